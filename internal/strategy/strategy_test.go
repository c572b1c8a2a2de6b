package strategy

import (
	"testing"
	"time"
)

func newTest(t *testing.T, mut func(*Config)) *Strategy {
	t.Helper()
	cfg := NewConfig("tok")
	cfg.EnableIncrementalDropPct = false
	if mut != nil {
		mut(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func ts(sec int) time.Time {
	return time.Unix(1_700_000_000+int64(sec), 0)
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"empty token", func(c *Config) { c.TokenID = "" }},
		{"zero window", func(c *Config) { c.DropWindow = 0 }},
		{"negative drop", func(c *Config) { c.DropPct = -0.01 }},
		{"negative profit", func(c *Config) { c.ProfitPct = -0.01 }},
		{"zero history", func(c *Config) { c.MaxHistoryPoints = 0 }},
		{"inverted band", func(c *Config) { c.MinPrice = 0.9; c.MaxPrice = 0.1 }},
	}
	for _, tc := range cases {
		cfg := NewConfig("tok")
		tc.mut(&cfg)
		if _, err := New(cfg); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestDropTriggerFiresBuy(t *testing.T) {
	s := newTest(t, nil)

	// Establish a window high around mid 0.50.
	if act := s.OnTick(0.51, 0.49, ts(0)); act != nil {
		t.Fatalf("unexpected action on first tick: %+v", act)
	}
	if act := s.OnTick(0.51, 0.49, ts(1)); act != nil {
		t.Fatalf("unexpected action: %+v", act)
	}

	// Mid 0.47 is a 6% drop from 0.50, above the 5% threshold.
	act := s.OnTick(0.48, 0.46, ts(2))
	if act == nil || act.Kind != ActionBuy {
		t.Fatalf("expected BUY, got %+v", act)
	}
	if !act.DropTriggered || act.ThresholdTriggered {
		t.Fatalf("expected drop-only trigger, got %+v", act)
	}
	if act.RefPrice != 0.48 {
		t.Fatalf("RefPrice = %v, want best_ask 0.48", act.RefPrice)
	}
}

func TestExactBoundaryDropTriggers(t *testing.T) {
	s := newTest(t, func(c *Config) { c.DropPct = 0.05 })

	s.OnTick(0.50, 0.50, ts(0))
	// Mid 0.475 is exactly a 5% drop from 0.50.
	act := s.OnTick(0.475, 0.475, ts(1))
	if act == nil || act.Kind != ActionBuy {
		t.Fatalf("boundary drop should trigger, got %+v", act)
	}
}

func TestSingleSampleNeverDropTriggers(t *testing.T) {
	s := newTest(t, nil)
	if act := s.OnTick(0.10, 0.10, ts(0)); act != nil {
		t.Fatalf("single sample must not drop-trigger: %+v", act)
	}
}

func TestBuyPriceThreshold(t *testing.T) {
	s := newTest(t, func(c *Config) { c.BuyPriceThreshold = 0.30 })

	if act := s.OnTick(0.35, 0.34, ts(0)); act != nil {
		t.Fatalf("ask above threshold must not trigger: %+v", act)
	}
	act := s.OnTick(0.30, 0.29, ts(1))
	if act == nil || !act.ThresholdTriggered {
		t.Fatalf("ask at threshold should trigger, got %+v", act)
	}
}

func TestDuplicateSignalSuppressed(t *testing.T) {
	s := newTest(t, func(c *Config) { c.BuyPriceThreshold = 0.30 })

	if act := s.OnTick(0.29, 0.28, ts(0)); act == nil {
		t.Fatal("expected BUY")
	}
	if act := s.OnTick(0.29, 0.28, ts(1)); act != nil {
		t.Fatalf("duplicate BUY must be suppressed: %+v", act)
	}
	s.OnReject("submit failed")
	if act := s.OnTick(0.29, 0.28, ts(2)); act == nil {
		t.Fatal("expected BUY to re-emit after reject")
	}
}

func TestSellAfterProfitTarget(t *testing.T) {
	s := newTest(t, func(c *Config) { c.BuyPriceThreshold = 0.30 })

	if act := s.OnTick(0.30, 0.29, ts(0)); act == nil {
		t.Fatal("expected BUY")
	}
	s.OnBuyFilled(0.30, 10, 0)

	if got := s.SellTriggerPrice(); !almost(got, 0.315) {
		t.Fatalf("SellTriggerPrice = %v, want 0.315", got)
	}

	if act := s.OnTick(0.32, 0.31, ts(1)); act != nil {
		t.Fatalf("bid below target must not sell: %+v", act)
	}
	act := s.OnTick(0.33, 0.315, ts(2))
	if act == nil || act.Kind != ActionSell {
		t.Fatalf("expected SELL at target, got %+v", act)
	}
	if !almost(act.TargetPrice, 0.315) || act.RefPrice != 0.315 {
		t.Fatalf("sell action prices wrong: %+v", act)
	}

	s.OnSellFilled(0.32, 10, 0)
	if st := s.Status(); st.Phase != PhaseFlat || st.PositionSize != 0 {
		t.Fatalf("expected flat after full sell, got %+v", st)
	}
}

func TestOnBuyFilledBlendsEntry(t *testing.T) {
	s := newTest(t, nil)
	s.OnBuyFilled(0.30, 10, 0)
	s.OnBuyFilled(0.40, 10, 0)
	if !almost(s.EntryPrice(), 0.35) {
		t.Fatalf("blended entry = %v, want 0.35", s.EntryPrice())
	}
	if s.Position() != 20 {
		t.Fatalf("position = %v, want 20", s.Position())
	}
}

func TestOnBuyFilledTotalPositionWins(t *testing.T) {
	s := newTest(t, nil)
	s.OnBuyFilled(0.30, 10, 0)
	// Exchange reports 25 total; only 15 were added at the new price.
	s.OnBuyFilled(0.40, 10, 25)
	if s.Position() != 25 {
		t.Fatalf("position = %v, want authoritative 25", s.Position())
	}
	want := (0.30*10 + 0.40*15) / 25
	if !almost(s.EntryPrice(), want) {
		t.Fatalf("entry = %v, want %v", s.EntryPrice(), want)
	}
}

func TestOnSellFilledPartialKeepsLong(t *testing.T) {
	s := newTest(t, nil)
	s.OnBuyFilled(0.30, 10, 0)
	s.OnSellFilled(0.35, 4, 6)
	if st := s.Status(); st.Phase != PhaseLong || st.PositionSize != 6 {
		t.Fatalf("expected LONG with 6 remaining, got %+v", st)
	}

	// Unknown remaining, known size: derive 6-6 = 0 and flatten.
	s.OnSellFilled(0.35, 6, -1)
	if st := s.Status(); st.Phase != PhaseFlat {
		t.Fatalf("expected flat, got %+v", st)
	}
}

func TestOnSellFilledDustFlattens(t *testing.T) {
	s := newTest(t, nil)
	s.OnBuyFilled(0.30, 10, 0)
	s.OnSellFilled(0.35, 9.99996, 0.00004)
	if st := s.Status(); st.Phase != PhaseFlat || st.PositionSize != 0 {
		t.Fatalf("dust remainder should flatten, got %+v", st)
	}
}

func TestIncrementalDropPct(t *testing.T) {
	s := newTest(t, func(c *Config) {
		c.EnableIncrementalDropPct = true
		c.DropPct = 0.05
		c.IncrementalDropPctStep = 0.01
		c.IncrementalDropPctCap = 0.07
	})

	cycle := func() {
		s.OnBuyFilled(0.30, 10, 0)
		s.OnSellFilled(0.35, 10, 0)
	}
	cycle()
	if !almost(s.DropPct(), 0.06) {
		t.Fatalf("drop pct after 1 cycle = %v, want 0.06", s.DropPct())
	}
	cycle()
	cycle()
	if !almost(s.DropPct(), 0.07) {
		t.Fatalf("drop pct must cap at 0.07, got %v", s.DropPct())
	}

	// Partial sells must not escalate.
	s.OnBuyFilled(0.30, 10, 0)
	s.OnSellFilled(0.35, 4, 6)
	if !almost(s.DropPct(), 0.07) {
		t.Fatalf("partial sell escalated drop pct to %v", s.DropPct())
	}
}

func TestSellOnlyBlocksBuysNotSells(t *testing.T) {
	s := newTest(t, func(c *Config) { c.BuyPriceThreshold = 0.30 })
	s.OnBuyFilled(0.30, 10, 0)
	s.EnableSellOnly("countdown")

	act := s.OnTick(0.33, 0.32, ts(0))
	if act == nil || act.Kind != ActionSell {
		t.Fatalf("sell-only must still emit SELL, got %+v", act)
	}
	s.OnSellFilled(0.32, 10, 0)

	if act := s.OnTick(0.20, 0.19, ts(1)); act != nil {
		t.Fatalf("sell-only must block BUY, got %+v", act)
	}
	s.DisableSellOnly()
	if act := s.OnTick(0.20, 0.19, ts(2)); act == nil {
		t.Fatal("expected BUY after sell-only disabled")
	}
}

func TestManualStop(t *testing.T) {
	s := newTest(t, func(c *Config) { c.BuyPriceThreshold = 0.30 })
	s.Stop("operator")
	if act := s.OnTick(0.20, 0.19, ts(0)); act != nil {
		t.Fatalf("stopped strategy emitted %+v", act)
	}
	s.Resume()
	if act := s.OnTick(0.20, 0.19, ts(1)); act == nil {
		t.Fatal("expected BUY after resume")
	}
}

func TestPriceBandIgnoresTicks(t *testing.T) {
	s := newTest(t, func(c *Config) {
		c.MinPrice = 0.10
		c.MaxPrice = 0.90
		c.BuyPriceThreshold = 0.30
	})
	if act := s.OnTick(0.05, 0.04, ts(0)); act != nil {
		t.Fatalf("out-of-band tick emitted %+v", act)
	}
	if st := s.Status(); st.DropStats.HistoryPoints != 0 {
		t.Fatalf("out-of-band tick entered history: %+v", st.DropStats)
	}
}

func TestWindowTrimByTimeAndCount(t *testing.T) {
	s := newTest(t, func(c *Config) {
		c.DropWindow = 10 * time.Second
		c.MaxHistoryPoints = 5
	})

	for i := 0; i < 8; i++ {
		s.OnTick(0.50, 0.50, ts(i))
	}
	if n := s.Status().DropStats.HistoryPoints; n != 5 {
		t.Fatalf("history points = %d, want capped 5", n)
	}

	// An old high outside the window must stop influencing the drop.
	s2 := newTest(t, func(c *Config) { c.DropWindow = 10 * time.Second })
	s2.OnTick(0.80, 0.80, ts(0))
	s2.OnTick(0.50, 0.50, ts(20)) // evicts the 0.80 sample
	if act := s2.OnTick(0.49, 0.49, ts(21)); act != nil {
		t.Fatalf("expired high still triggered: %+v", act)
	}
}

func TestRestore(t *testing.T) {
	s := newTest(t, func(c *Config) { c.DropPct = 0.05 })
	s.Restore(0.30, 12, 0.08)
	st := s.Status()
	if st.Phase != PhaseLong || st.PositionSize != 12 || !almost(st.EntryPrice, 0.30) {
		t.Fatalf("restore state wrong: %+v", st)
	}
	if !almost(s.DropPct(), 0.08) {
		t.Fatalf("restored drop pct = %v, want 0.08", s.DropPct())
	}
}

func TestUpdateParams(t *testing.T) {
	s := newTest(t, nil)
	newDrop := 0.10
	newProfit := 0.02
	s.UpdateParams(ParamUpdate{DropPct: &newDrop, ProfitPct: &newProfit})
	if !almost(s.DropPct(), 0.10) {
		t.Fatalf("drop pct = %v, want 0.10", s.DropPct())
	}
	s.OnBuyFilled(0.50, 10, 0)
	if !almost(s.SellTriggerPrice(), 0.51) {
		t.Fatalf("sell trigger = %v, want 0.51", s.SellTriggerPrice())
	}
}

func almost(got, want float64) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
