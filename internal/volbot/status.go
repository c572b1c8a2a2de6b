package volbot

import (
	"log"
	"time"
)

// statusTracker de-duplicates periodic status lines: a slot only logs
// again when the message changes or minInterval has passed.
type statusSlot struct {
	msg    string
	lastAt time.Time
}

type statusTracker struct {
	prefix      string
	minInterval time.Duration
	now         func() time.Time
	slots       map[string]statusSlot
}

func newStatusTracker(prefix string, minInterval time.Duration) statusTracker {
	if minInterval < 0 {
		minInterval = 0
	}
	return statusTracker{
		prefix:      prefix,
		minInterval: minInterval,
		now:         time.Now,
		slots:       make(map[string]statusSlot),
	}
}

func (s *statusTracker) Set(slot, msg string) bool {
	if s == nil || slot == "" || msg == "" {
		return false
	}
	if s.slots == nil {
		s.slots = make(map[string]statusSlot)
	}
	if s.now == nil {
		s.now = time.Now
	}
	now := s.now()
	prev := s.slots[slot]
	if prev.msg == msg && !prev.lastAt.IsZero() && now.Sub(prev.lastAt) < s.minInterval {
		return false
	}
	s.slots[slot] = statusSlot{msg: msg, lastAt: now}
	log.Printf("%s status %s=%s", s.prefix, slot, msg)
	return true
}
