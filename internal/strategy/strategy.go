// Package strategy implements the price-window signal state machine: track
// the high of a rolling mid-price window, buy when the drop from that high
// exceeds a threshold, and sell once the bid clears the entry price by a
// profit margin. The strategy only emits signals; sizing, precision and
// order placement belong to the execution layers. Emitted signals stay
// pending until the caller confirms them via OnBuyFilled / OnSellFilled or
// clears them via OnReject.
package strategy

import (
	"fmt"
	"time"
)

type ActionKind string

const (
	ActionBuy  ActionKind = "BUY"
	ActionSell ActionKind = "SELL"
)

type Phase string

const (
	PhaseFlat Phase = "FLAT"
	PhaseLong Phase = "LONG"
)

// priceEps resolves boundary equality for float comparisons: a trigger
// fires when the compared price is within priceEps of the threshold.
const priceEps = 1e-9

// positionEps is the dust threshold below which a remaining position is
// treated as fully exited.
const positionEps = 1e-4

// Config holds the per-run strategy parameters. Use NewConfig for the
// defaults, then adjust fields before constructing the Strategy.
type Config struct {
	TokenID string

	// BuyPriceThreshold triggers a BUY whenever best_ask falls to or below
	// it, independent of the drop window. <= 0 disables it.
	BuyPriceThreshold float64

	DropWindow       time.Duration
	DropPct          float64
	ProfitPct        float64
	MaxHistoryPoints int

	// Raise DropPct by Step after every full sell-to-flat cycle, up to Cap.
	EnableIncrementalDropPct bool
	IncrementalDropPctStep   float64
	IncrementalDropPctCap    float64

	// Suppress a second signal of the same kind while one is pending.
	DisableDuplicateSignal bool

	// Maker mode can disable SELL emission and handle exits itself.
	DisableSellSignals bool

	// Price band gate: ticks with bid or ask outside [MinPrice, MaxPrice]
	// are ignored entirely.
	MinPrice float64
	MaxPrice float64
}

func NewConfig(tokenID string) Config {
	return Config{
		TokenID:                  tokenID,
		DropWindow:               10 * time.Minute,
		DropPct:                  0.05,
		ProfitPct:                0.05,
		MaxHistoryPoints:         600,
		EnableIncrementalDropPct: true,
		IncrementalDropPctStep:   0.01,
		IncrementalDropPctCap:    0.20,
		DisableDuplicateSignal:   true,
		MinPrice:                 0.0,
		MaxPrice:                 1.0,
	}
}

func (c Config) validate() error {
	if c.TokenID == "" {
		return fmt.Errorf("strategy: token id required")
	}
	if c.DropWindow <= 0 {
		return fmt.Errorf("strategy: drop window must be > 0")
	}
	if c.DropPct < 0 {
		return fmt.Errorf("strategy: drop pct must be >= 0")
	}
	if c.ProfitPct < 0 {
		return fmt.Errorf("strategy: profit pct must be >= 0")
	}
	if c.MaxHistoryPoints < 1 {
		return fmt.Errorf("strategy: max history points must be >= 1")
	}
	if c.IncrementalDropPctStep < 0 {
		return fmt.Errorf("strategy: incremental drop step must be >= 0")
	}
	if c.MaxPrice < c.MinPrice {
		return fmt.Errorf("strategy: price band max < min")
	}
	return nil
}

// Action is an emitted BUY/SELL instruction. Immutable once returned.
type Action struct {
	Kind     ActionKind
	TokenID  string
	Reason   string
	RefPrice float64 // best_ask for BUY, best_bid for SELL

	// TargetPrice is the sell trigger price (entry * (1+profit)); zero for
	// BUY actions.
	TargetPrice float64

	// Diagnostics.
	DropRatio          float64
	WindowHigh         float64
	HistoryPoints      int
	DropTriggered      bool
	ThresholdTriggered bool
	GainRatio          float64
}

type sample struct {
	ts    time.Time
	price float64
}

// Strategy is the single-token signal state machine. It carries no
// internal locking; callers must serialize access.
type Strategy struct {
	cfg Config

	phase    Phase
	awaiting ActionKind // "" when no signal is pending

	entryPrice   float64 // valid only while positionSize > 0
	positionSize float64

	samples []sample

	windowHigh       float64
	windowLow        float64
	maxDropRatio     float64
	currentDropRatio float64
	haveWindowStats  bool

	lastTickTS  time.Time
	lastBestAsk float64
	lastBestBid float64

	lastSignal       ActionKind
	lastBuyPrice     float64
	lastSellPrice    float64
	manualStop       bool
	manualStopReason string
	sellOnly         bool
	sellOnlyReason   string
	lastRejectReason string

	// Floor for escalation resets via UpdateParams.
	initialDropPct float64
}

func New(cfg Config) (*Strategy, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Strategy{
		cfg:            cfg,
		phase:          PhaseFlat,
		initialDropPct: max64(cfg.DropPct, 0),
	}, nil
}

// OnTick ingests one market snapshot and returns a signal or nil.
func (s *Strategy) OnTick(bestAsk, bestBid float64, ts time.Time) *Action {
	if bestAsk < s.cfg.MinPrice-priceEps || bestBid < s.cfg.MinPrice-priceEps {
		return nil
	}
	if bestAsk > s.cfg.MaxPrice+priceEps || bestBid > s.cfg.MaxPrice+priceEps {
		return nil
	}

	s.lastTickTS = ts
	s.lastBestAsk = bestAsk
	s.lastBestBid = bestBid

	mid := (bestBid + bestAsk) / 2
	s.samples = append(s.samples, sample{ts: ts, price: mid})
	s.trimHistory(ts)

	if s.manualStop {
		return nil
	}
	if s.sellOnly && s.phase == PhaseFlat {
		return nil
	}

	switch s.phase {
	case PhaseFlat:
		return s.maybeBuy(mid, bestAsk)
	case PhaseLong:
		return s.maybeSell(bestBid)
	}
	return nil
}

func (s *Strategy) maybeBuy(dropPrice, bestAsk float64) *Action {
	if s.awaiting == ActionBuy && s.cfg.DisableDuplicateSignal {
		return nil
	}

	var (
		dropTrigger bool
		dropRatio   float64
	)
	if len(s.samples) > 1 && s.haveWindowStats && s.windowHigh > 0 {
		dropRatio = (s.windowHigh - dropPrice) / s.windowHigh
		dropTrigger = dropRatio >= s.cfg.DropPct-priceEps
	}

	thresholdTrigger := s.cfg.BuyPriceThreshold > 0 &&
		bestAsk <= s.cfg.BuyPriceThreshold+priceEps

	if !dropTrigger && !thresholdTrigger {
		return nil
	}

	reason := ""
	if dropTrigger {
		reason = fmt.Sprintf("drop(%.4f) >= threshold(%.4f) from high(%.5f)",
			dropRatio, s.cfg.DropPct, s.windowHigh)
	}
	if thresholdTrigger {
		if reason != "" {
			reason += "; "
		}
		reason += fmt.Sprintf("best_ask(%.5f) <= buy_threshold(%.5f)",
			bestAsk, s.cfg.BuyPriceThreshold)
	}

	act := &Action{
		Kind:               ActionBuy,
		TokenID:            s.cfg.TokenID,
		Reason:             reason,
		RefPrice:           bestAsk,
		DropRatio:          dropRatio,
		WindowHigh:         s.windowHigh,
		HistoryPoints:      len(s.samples),
		DropTriggered:      dropTrigger,
		ThresholdTriggered: thresholdTrigger,
	}
	s.lastSignal = ActionBuy
	s.awaiting = ActionBuy
	return act
}

func (s *Strategy) maybeSell(bestBid float64) *Action {
	if s.cfg.DisableSellSignals {
		return nil
	}
	if s.positionSize <= 0 {
		return nil
	}
	if s.awaiting == ActionSell && s.cfg.DisableDuplicateSignal {
		return nil
	}

	target := s.entryPrice * (1 + s.cfg.ProfitPct)
	if bestBid < target-priceEps {
		return nil
	}

	gain := 0.0
	if s.entryPrice > 0 {
		gain = (bestBid - s.entryPrice) / s.entryPrice
	}
	act := &Action{
		Kind:          ActionSell,
		TokenID:       s.cfg.TokenID,
		Reason:        fmt.Sprintf("best_bid(%.5f) >= target(%.5f) = entry(%.5f)*(1+%.4f)", bestBid, target, s.entryPrice, s.cfg.ProfitPct),
		RefPrice:      bestBid,
		TargetPrice:   target,
		GainRatio:     gain,
		HistoryPoints: len(s.samples),
	}
	s.lastSignal = ActionSell
	s.awaiting = ActionSell
	return act
}

func (s *Strategy) trimHistory(now time.Time) {
	cutoff := now.Add(-s.cfg.DropWindow)
	i := 0
	for i < len(s.samples) && s.samples[i].ts.Before(cutoff) {
		i++
	}
	if over := len(s.samples) - i - s.cfg.MaxHistoryPoints; over > 0 {
		i += over
	}
	if i > 0 {
		s.samples = append(s.samples[:0], s.samples[i:]...)
	}
	s.updateWindowStats()
}

func (s *Strategy) updateWindowStats() {
	if len(s.samples) == 0 {
		s.windowHigh = 0
		s.windowLow = 0
		s.maxDropRatio = 0
		s.currentDropRatio = 0
		s.haveWindowStats = false
		return
	}
	high := s.samples[0].price
	low := s.samples[0].price
	for _, sm := range s.samples[1:] {
		if sm.price > high {
			high = sm.price
		}
		if sm.price < low {
			low = sm.price
		}
	}
	current := s.samples[len(s.samples)-1].price
	s.windowHigh = high
	s.windowLow = low
	if high > 0 {
		s.maxDropRatio = (high - low) / high
		s.currentDropRatio = (high - current) / high
	} else {
		s.maxDropRatio = 0
		s.currentDropRatio = 0
	}
	s.haveWindowStats = true
}

// OnBuyFilled confirms a pending BUY. size is the fill size reported for
// this execution; totalPosition, when > 0, is the authoritative position
// after the fill (e.g. from a positions lookup) and wins over local
// accumulation. Pass 0 for unknown values.
func (s *Strategy) OnBuyFilled(avgPrice, size, totalPosition float64) {
	prior := max64(s.positionSize, 0)

	var added, newTotal float64
	switch {
	case totalPosition > 0:
		newTotal = totalPosition
		added = max64(newTotal-prior, 0)
	case size > 0:
		added = size
		newTotal = prior + size
	}

	if newTotal > 0 {
		if prior > 0 && added > 0 && s.entryPrice > 0 {
			weight := newTotal
			if totalPosition <= 0 {
				weight = prior + added
			}
			s.entryPrice = (s.entryPrice*prior + avgPrice*added) / max64(weight, 1e-12)
		} else if prior <= 0 {
			s.entryPrice = avgPrice
		}
		s.positionSize = newTotal
	} else {
		// Could not resolve a position; at least record the price.
		s.entryPrice = avgPrice
	}

	s.lastBuyPrice = avgPrice
	s.phase = PhaseLong
	s.awaiting = ""
	s.lastRejectReason = ""
}

// OnSellFilled confirms a pending SELL. remaining < 0 means unknown: it is
// derived from size when possible, otherwise the position is treated as
// fully exited. A remaining at or below the dust epsilon flattens the
// position and, when enabled, escalates the drop threshold. Pass 0 for an
// unknown avgPrice or size.
func (s *Strategy) OnSellFilled(avgPrice, size, remaining float64) {
	resolved := -1.0
	switch {
	case remaining >= 0:
		resolved = remaining
	case size > 0 && s.positionSize > 0:
		resolved = max64(s.positionSize-size, 0)
	}
	if resolved >= 0 && resolved <= positionEps {
		resolved = -1
	}

	if resolved < 0 {
		s.phase = PhaseFlat
		s.entryPrice = 0
		s.positionSize = 0
		s.awaiting = ""
	} else {
		s.positionSize = resolved
		s.phase = PhaseLong
		if s.awaiting == ActionSell {
			// Position remains; unblock the next SELL signal.
			s.awaiting = ""
		}
	}

	if avgPrice > 0 {
		s.lastSellPrice = avgPrice
	} else if s.phase == PhaseFlat && s.lastBestBid > 0 {
		s.lastSellPrice = s.lastBestBid
	}

	if s.phase == PhaseFlat {
		s.maybeIncrementDropPct()
	}
	s.lastRejectReason = ""
}

// OnReject clears the pending signal so the next qualifying tick can emit
// again.
func (s *Strategy) OnReject(reason string) {
	s.awaiting = ""
	s.lastRejectReason = reason
}

// Stop halts signal emission until Resume; it also clears any pending
// signal.
func (s *Strategy) Stop(reason string) {
	s.manualStop = true
	s.manualStopReason = reason
	s.awaiting = ""
}

func (s *Strategy) Resume() {
	s.manualStop = false
	s.manualStopReason = ""
}

// EnableSellOnly suppresses new BUY signals without touching an open
// position.
func (s *Strategy) EnableSellOnly(reason string) {
	s.sellOnly = true
	s.sellOnlyReason = reason
}

func (s *Strategy) DisableSellOnly() {
	s.sellOnly = false
	s.sellOnlyReason = ""
}

// SellTriggerPrice returns entry*(1+profit), or 0 when flat.
func (s *Strategy) SellTriggerPrice() float64 {
	if s.positionSize <= 0 || s.entryPrice <= 0 {
		return 0
	}
	return s.entryPrice * (1 + s.cfg.ProfitPct)
}

// ParamUpdate carries optional live-tunable parameter overrides; nil
// fields are left unchanged.
type ParamUpdate struct {
	BuyPriceThreshold        *float64
	DropWindow               *time.Duration
	DropPct                  *float64
	ProfitPct                *float64
	MaxHistoryPoints         *int
	EnableIncrementalDropPct *bool
	IncrementalDropPctStep   *float64
	IncrementalDropPctCap    *float64
}

func (s *Strategy) UpdateParams(p ParamUpdate) {
	if p.BuyPriceThreshold != nil {
		s.cfg.BuyPriceThreshold = *p.BuyPriceThreshold
	}
	if p.ProfitPct != nil {
		s.cfg.ProfitPct = *p.ProfitPct
	}
	if p.DropWindow != nil && *p.DropWindow > 0 {
		s.cfg.DropWindow = *p.DropWindow
		if !s.lastTickTS.IsZero() {
			s.trimHistory(s.lastTickTS)
		}
	}
	if p.DropPct != nil {
		s.cfg.DropPct = *p.DropPct
		s.initialDropPct = max64(*p.DropPct, 0)
	}
	if p.MaxHistoryPoints != nil {
		if *p.MaxHistoryPoints < 1 {
			s.cfg.MaxHistoryPoints = 1
		} else {
			s.cfg.MaxHistoryPoints = *p.MaxHistoryPoints
		}
		if !s.lastTickTS.IsZero() {
			s.trimHistory(s.lastTickTS)
		}
	}
	if p.EnableIncrementalDropPct != nil {
		s.cfg.EnableIncrementalDropPct = *p.EnableIncrementalDropPct
	}
	if p.IncrementalDropPctStep != nil {
		s.cfg.IncrementalDropPctStep = *p.IncrementalDropPctStep
	}
	if p.IncrementalDropPctCap != nil {
		s.cfg.IncrementalDropPctCap = *p.IncrementalDropPctCap
	}
}

func (s *Strategy) maybeIncrementDropPct() {
	if !s.cfg.EnableIncrementalDropPct {
		return
	}
	step := max64(s.cfg.IncrementalDropPctStep, 0)
	if step <= 0 {
		return
	}
	current := max64(s.cfg.DropPct, s.initialDropPct)
	ceil := max64(s.cfg.IncrementalDropPctCap, s.initialDropPct)
	if current > ceil {
		current = ceil
	}
	next := current + step
	if next > ceil {
		next = ceil
	}
	s.cfg.DropPct = next
}

// DropStats is the window-statistics part of a status snapshot.
type DropStats struct {
	WindowHigh       float64       `json:"window_high"`
	WindowLow        float64       `json:"window_low"`
	MaxDropRatio     float64       `json:"max_drop_ratio"`
	CurrentDropRatio float64       `json:"current_drop_ratio"`
	Window           time.Duration `json:"window"`
	HistoryPoints    int           `json:"history_points"`
}

// StatusSnapshot is a read-only observability view of the state machine.
type StatusSnapshot struct {
	Phase            Phase      `json:"phase"`
	Awaiting         ActionKind `json:"awaiting,omitempty"`
	EntryPrice       float64    `json:"entry_price,omitempty"`
	SellTrigger      float64    `json:"sell_trigger,omitempty"`
	PositionSize     float64    `json:"position_size,omitempty"`
	LastSignal       ActionKind `json:"last_signal,omitempty"`
	LastBuyPrice     float64    `json:"last_buy_price,omitempty"`
	LastSellPrice    float64    `json:"last_sell_price,omitempty"`
	ManualStop       bool       `json:"manual_stop,omitempty"`
	ManualStopReason string     `json:"manual_stop_reason,omitempty"`
	SellOnly         bool       `json:"sell_only,omitempty"`
	SellOnlyReason   string     `json:"sell_only_reason,omitempty"`
	LastRejectReason string     `json:"last_reject_reason,omitempty"`
	LastBestAsk      float64    `json:"last_best_ask,omitempty"`
	LastBestBid      float64    `json:"last_best_bid,omitempty"`
	LastTickTS       time.Time  `json:"last_tick_ts,omitempty"`
	DropStats        DropStats  `json:"drop_stats"`
	DropPct          float64    `json:"drop_pct"`
	ProfitPct        float64    `json:"profit_pct"`
}

func (s *Strategy) Status() StatusSnapshot {
	return StatusSnapshot{
		Phase:            s.phase,
		Awaiting:         s.awaiting,
		EntryPrice:       s.entryPrice,
		SellTrigger:      s.SellTriggerPrice(),
		PositionSize:     s.positionSize,
		LastSignal:       s.lastSignal,
		LastBuyPrice:     s.lastBuyPrice,
		LastSellPrice:    s.lastSellPrice,
		ManualStop:       s.manualStop,
		ManualStopReason: s.manualStopReason,
		SellOnly:         s.sellOnly,
		SellOnlyReason:   s.sellOnlyReason,
		LastRejectReason: s.lastRejectReason,
		LastBestAsk:      s.lastBestAsk,
		LastBestBid:      s.lastBestBid,
		LastTickTS:       s.lastTickTS,
		DropStats: DropStats{
			WindowHigh:       s.windowHigh,
			WindowLow:        s.windowLow,
			MaxDropRatio:     s.maxDropRatio,
			CurrentDropRatio: s.currentDropRatio,
			Window:           s.cfg.DropWindow,
			HistoryPoints:    len(s.samples),
		},
		DropPct:   s.cfg.DropPct,
		ProfitPct: s.cfg.ProfitPct,
	}
}

// DropPct returns the current (possibly escalated) drop threshold.
func (s *Strategy) DropPct() float64 { return s.cfg.DropPct }

// Position returns the locally tracked position size.
func (s *Strategy) Position() float64 { return s.positionSize }

// EntryPrice returns the volume-weighted entry cost, or 0 when flat.
func (s *Strategy) EntryPrice() float64 { return s.entryPrice }

// Restore seeds a previously checkpointed position and escalated drop
// threshold, used when resuming a run.
func (s *Strategy) Restore(entryPrice, positionSize, dropPct float64) {
	if positionSize > positionEps && entryPrice > 0 {
		s.entryPrice = entryPrice
		s.positionSize = positionSize
		s.phase = PhaseLong
	}
	if dropPct > s.cfg.DropPct {
		s.cfg.DropPct = dropPct
	}
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
