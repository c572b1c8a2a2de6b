package volbot

import (
	"log"
	"time"

	"poly-volmaker/internal/jsonl"
)

type botLogEvent struct {
	TsMs  int64  `json:"ts_ms"`
	Event string `json:"event"`

	Mode     string `json:"mode,omitempty"` // dry | live
	TokenID  string `json:"token_id,omitempty"`
	Question string `json:"question,omitempty"`

	// Signal diagnostics.
	Reason     string  `json:"reason,omitempty"`
	RefPrice   float64 `json:"ref_price,omitempty"`
	DropRatio  float64 `json:"drop_ratio,omitempty"`
	WindowHigh float64 `json:"window_high,omitempty"`

	// Fill results.
	Status   string  `json:"status,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Size     float64 `json:"size,omitempty"`
	AvgPrice float64 `json:"avg_price,omitempty"`
	Filled   float64 `json:"filled,omitempty"`

	// Position state after the event.
	EntryPrice float64 `json:"entry_price,omitempty"`
	Position   float64 `json:"position,omitempty"`
	DropPct    float64 `json:"drop_pct,omitempty"`

	EnableTrading bool   `json:"enable_trading,omitempty"`
	Err           string `json:"err,omitempty"`
	UptimeMs      int64  `json:"uptime_ms,omitempty"`
}

func botMode(enableTrading bool) string {
	if enableTrading {
		return "live"
	}
	return "dry"
}

func logBotEvent(w *jsonl.Writer, ev botLogEvent) {
	if w == nil {
		return
	}
	if ev.TsMs == 0 {
		ev.TsMs = time.Now().UnixMilli()
	}
	if err := w.Write(ev); err != nil {
		log.Printf("[warn] event log write failed: %v", err)
	}
}

func uptimeMs(startedAt time.Time) int64 {
	return time.Since(startedAt).Milliseconds()
}
