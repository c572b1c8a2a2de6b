package volbot

import (
	"context"
	"testing"
	"time"

	"poly-volmaker/internal/gamma"
	"poly-volmaker/internal/orderapi"
)

func TestOrderSizeForBudget(t *testing.T) {
	cases := []struct {
		budget, price, want float64
	}{
		{1.0, 0.50, 2},
		{1.0, 0.37, 3},  // 2.70 rounded up
		{5.0, 0.42, 12}, // 11.9 rounded up
		{1.0, 0, 1},     // invalid price falls back to one share
		{0, 0.5, 0},
	}
	for _, tc := range cases {
		if got := orderSizeForBudget(tc.budget, tc.price); got != tc.want {
			t.Fatalf("orderSizeForBudget(%v, %v) = %v, want %v", tc.budget, tc.price, got, tc.want)
		}
	}
}

func TestPickToken(t *testing.T) {
	res := gamma.ResolvedMarket{TokenIDs: []string{"yes-token", "no-token"}}
	if got := pickToken(res, "yes"); got != "yes-token" {
		t.Fatalf("yes side: got %q", got)
	}
	if got := pickToken(res, "no"); got != "no-token" {
		t.Fatalf("no side: got %q", got)
	}
	if got := pickToken(gamma.ResolvedMarket{}, "yes"); got != "" {
		t.Fatalf("empty market should yield no token, got %q", got)
	}
}

func TestStatusTrackerDedup(t *testing.T) {
	now := time.Unix(1000, 0)
	tr := newStatusTracker("[test]", 10*time.Second)
	tr.now = func() time.Time { return now }

	if !tr.Set("px", "bid=0.41") {
		t.Fatalf("first message should log")
	}
	if tr.Set("px", "bid=0.41") {
		t.Fatalf("repeat inside interval should be suppressed")
	}
	if !tr.Set("px", "bid=0.42") {
		t.Fatalf("changed message should log")
	}
	now = now.Add(11 * time.Second)
	if !tr.Set("px", "bid=0.42") {
		t.Fatalf("repeat after interval should log again")
	}
}

func TestDryRunAPIFillsImmediately(t *testing.T) {
	api := newDryRunAPI()
	ctx := context.Background()

	id, err := api.CreateOrder(ctx, orderapi.Order{
		TokenID: "tok1",
		Side:    orderapi.SideBuy,
		Price:   0.41,
		Size:    10,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	st, err := api.GetOrderStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetOrderStatus: %v", err)
	}
	if st.Status != "MATCHED" || st.FilledAmount != 10 {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.AvgPrice == nil || *st.AvgPrice != 0.41 {
		t.Fatalf("avg price should echo the order price: %+v", st.AvgPrice)
	}

	if !api.CancelOrder(ctx, id) {
		t.Fatalf("cancel should succeed")
	}
	if _, err := api.GetOrderStatus(ctx, id); err == nil {
		t.Fatalf("status of cancelled order should fail")
	}
}

func TestArgsConfigMapping(t *testing.T) {
	a := args{
		buyThreshold:    0.30,
		dropWindow:      5 * time.Minute,
		dropPct:         0.04,
		profitPct:       0.06,
		maxHistory:      100,
		incrementalDrop: true,
		incrementalStep: 0.02,
		incrementalCap:  0.10,
		minPrice:        0.05,
		maxPrice:        0.95,

		sliceMin:      1.5,
		sliceMax:      3.0,
		retryAttempts: 1,
		priceTolStep:  0.02,
		waitTime:      2 * time.Second,
		execPoll:      100 * time.Millisecond,
		orderInterval: -1,
		minQuote:      1.0,
		minOrderSize:  5.0,
	}

	sc := a.strategyConfig("tok1")
	if sc.TokenID != "tok1" || sc.DropPct != 0.04 || sc.DropWindow != 5*time.Minute {
		t.Fatalf("strategy config mismatch: %+v", sc)
	}
	if !sc.EnableIncrementalDropPct || sc.IncrementalDropPctCap != 0.10 {
		t.Fatalf("escalation config mismatch: %+v", sc)
	}
	if sc.MinPrice != 0.05 || sc.MaxPrice != 0.95 {
		t.Fatalf("price band mismatch: %+v", sc)
	}

	ec := a.executionConfig()
	if ec.OrderSliceMin != 1.5 || ec.OrderSliceMax != 3.0 || ec.RetryAttempts != 1 {
		t.Fatalf("execution config mismatch: %+v", ec)
	}
	if ec.MinMarketOrderSize != 5.0 {
		t.Fatalf("market minimum not carried: %+v", ec)
	}
}
