package maker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"poly-volmaker/internal/orderapi"
)

// fakeAPI scripts order lifecycles for the follow loops.
type fakeAPI struct {
	mu        sync.Mutex
	nextID    int
	created   []orderapi.Order
	status    map[string]orderapi.Status
	cancelled []string
	createErr func(orderapi.Order) error
	onCreate  func(id string, o orderapi.Order)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{status: make(map[string]orderapi.Status)}
}

func (f *fakeAPI) CreateOrder(_ context.Context, o orderapi.Order) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		if err := f.createErr(o); err != nil {
			return "", err
		}
	}
	f.nextID++
	id := fmt.Sprintf("o%d", f.nextID)
	f.created = append(f.created, o)
	if _, ok := f.status[id]; !ok {
		f.status[id] = orderapi.Status{Status: "OPEN"}
	}
	if f.onCreate != nil {
		f.onCreate(id, o)
	}
	return id, nil
}

func (f *fakeAPI) GetOrderStatus(_ context.Context, id string) (orderapi.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status[id], nil
}

func (f *fakeAPI) CancelOrder(_ context.Context, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return true
}

func (f *fakeAPI) setStatus(id string, st orderapi.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[id] = st
}

func fptr(v float64) *float64 { return &v }

func TestBuyFollowBidFillsInOneOrder(t *testing.T) {
	api := newFakeAPI()
	api.onCreate = func(id string, o orderapi.Order) {
		api.status[id] = orderapi.Status{Status: "FILLED", FilledAmount: o.Size, AvgPrice: fptr(o.Price)}
	}

	res, err := BuyFollowBid(context.Background(), api, "tok", 10, Options{
		BestBid: func() (float64, bool) { return 0.497, true },
		Sleep:   func(time.Duration) {},
	})
	if err != nil {
		t.Fatalf("BuyFollowBid: %v", err)
	}
	if res.Status != StatusFilled {
		t.Fatalf("status = %s, want FILLED", res.Status)
	}
	if res.Filled != 10 || res.Remaining != 0 {
		t.Fatalf("filled=%v remaining=%v", res.Filled, res.Remaining)
	}
	// Bid 0.497 rounds up to the 2dp tick.
	if got := api.created[0].Price; got != 0.50 {
		t.Fatalf("posted price = %v, want 0.50", got)
	}
	if api.created[0].Side != orderapi.SideBuy || api.created[0].TimeInForce != "GTC" {
		t.Fatalf("order = %+v", api.created[0])
	}
	if res.AvgPrice != 0.50 {
		t.Fatalf("avg price = %v, want 0.50", res.AvgPrice)
	}
}

func TestBuyFollowBidChasesRisingBid(t *testing.T) {
	api := newFakeAPI()
	bid := 0.50
	step := 0
	api.onCreate = func(id string, o orderapi.Order) {
		if id == "o2" {
			api.status[id] = orderapi.Status{Status: "FILLED", FilledAmount: o.Size, AvgPrice: fptr(o.Price)}
		}
	}

	res, err := BuyFollowBid(context.Background(), api, "tok", 10, Options{
		BestBid: func() (float64, bool) { return bid, true },
		Sleep: func(time.Duration) {
			step++
			if step == 1 {
				bid = 0.52
			}
		},
	})
	if err != nil {
		t.Fatalf("BuyFollowBid: %v", err)
	}
	if res.Status != StatusFilled {
		t.Fatalf("status = %s, want FILLED", res.Status)
	}
	if len(api.created) != 2 {
		t.Fatalf("created %d orders, want 2", len(api.created))
	}
	if api.created[1].Price != 0.52 {
		t.Fatalf("repost price = %v, want 0.52", api.created[1].Price)
	}
	if len(api.cancelled) == 0 || api.cancelled[0] != "o1" {
		t.Fatalf("expected o1 cancelled, got %v", api.cancelled)
	}
	if res.AvgPrice != 0.52 {
		t.Fatalf("avg price = %v, want 0.52", res.AvgPrice)
	}
}

func TestBuyFollowBidMatchedWithoutAmountCountsFullSize(t *testing.T) {
	api := newFakeAPI()
	api.onCreate = func(id string, o orderapi.Order) {
		// Some fills report a terminal status with no amount.
		api.status[id] = orderapi.Status{Status: "MATCHED"}
	}

	res, err := BuyFollowBid(context.Background(), api, "tok", 10, Options{
		BestBid: func() (float64, bool) { return 0.40, true },
		Sleep:   func(time.Duration) {},
	})
	if err != nil {
		t.Fatalf("BuyFollowBid: %v", err)
	}
	if res.Status != StatusFilled || res.Filled != 10 {
		t.Fatalf("result = %+v, want full fill", res)
	}
	if res.AvgPrice != 0.40 {
		t.Fatalf("avg price = %v, want posted 0.40", res.AvgPrice)
	}
}

func TestBuyFollowBidTruncatedRemainder(t *testing.T) {
	api := newFakeAPI()
	api.onCreate = func(id string, o orderapi.Order) {
		api.status[id] = orderapi.Status{Status: "OPEN", FilledAmount: 5.5, AvgPrice: fptr(o.Price)}
	}

	res, err := BuyFollowBid(context.Background(), api, "tok", 6, Options{
		BestBid: func() (float64, bool) { return 0.50, true },
		Sleep:   func(time.Duration) {},
	})
	if err != nil {
		t.Fatalf("BuyFollowBid: %v", err)
	}
	// 0.5 shares remain but the exchange minimum is 5: stop with what we got.
	if res.Status != StatusFilledTruncated {
		t.Fatalf("status = %s, want FILLED_TRUNCATED", res.Status)
	}
	if res.Filled != 5.5 {
		t.Fatalf("filled = %v, want 5.5", res.Filled)
	}
	if len(api.cancelled) != 1 {
		t.Fatalf("expected active order cancelled, got %v", api.cancelled)
	}
}

func TestBuyFollowBidSkippedWhenNothingToBuy(t *testing.T) {
	api := newFakeAPI()
	res, err := BuyFollowBid(context.Background(), api, "tok", 0, Options{
		MinOrderSize: -1,
		BestBid:      func() (float64, bool) { return 0.50, true },
		Sleep:        func(time.Duration) {},
	})
	if err != nil {
		t.Fatalf("BuyFollowBid: %v", err)
	}
	if res.Status != StatusSkipped || len(api.created) != 0 {
		t.Fatalf("result = %+v, want SKIPPED with no orders", res)
	}
}

func TestBuyFollowBidStop(t *testing.T) {
	api := newFakeAPI()
	stop := false

	res, err := BuyFollowBid(context.Background(), api, "tok", 10, Options{
		BestBid:   func() (float64, bool) { return 0.50, true },
		StopCheck: func() bool { return stop },
		Sleep:     func(time.Duration) { stop = true },
	})
	if err != nil {
		t.Fatalf("BuyFollowBid: %v", err)
	}
	if res.Status != StatusStopped {
		t.Fatalf("status = %s, want STOPPED", res.Status)
	}
	if len(api.cancelled) != 1 || api.cancelled[0] != "o1" {
		t.Fatalf("expected working order cancelled, got %v", api.cancelled)
	}
}

func TestSellFollowAskFillsAtAsk(t *testing.T) {
	api := newFakeAPI()
	api.onCreate = func(id string, o orderapi.Order) {
		api.status[id] = orderapi.Status{Status: "FILLED", FilledAmount: o.Size, AvgPrice: fptr(o.Price)}
	}

	res, err := SellFollowAskWithFloor(context.Background(), api, "tok", 10, 0.30, Options{
		BestAsk: func() (float64, bool) { return 0.3551, true },
		Sleep:   func(time.Duration) {},
	})
	if err != nil {
		t.Fatalf("SellFollowAskWithFloor: %v", err)
	}
	if res.Status != StatusFilled || res.Filled != 10 {
		t.Fatalf("result = %+v, want full fill", res)
	}
	if got := api.created[0].Price; got != 0.3551 {
		t.Fatalf("posted price = %v, want 0.3551", got)
	}
	if api.created[0].Size != 10 {
		t.Fatalf("posted size = %v, want 10", api.created[0].Size)
	}
}

func TestSellFollowAskWaitsBelowFloor(t *testing.T) {
	api := newFakeAPI()
	ask := 0.29
	api.onCreate = func(id string, o orderapi.Order) {
		api.status[id] = orderapi.Status{Status: "FILLED", FilledAmount: o.Size, AvgPrice: fptr(o.Price)}
	}

	res, err := SellFollowAskWithFloor(context.Background(), api, "tok", 10, 0.30, Options{
		BestAsk: func() (float64, bool) { return ask, true },
		Sleep:   func(time.Duration) { ask = 0.31 },
	})
	if err != nil {
		t.Fatalf("SellFollowAskWithFloor: %v", err)
	}
	if res.Status != StatusFilled {
		t.Fatalf("status = %s, want FILLED", res.Status)
	}
	// No order may ever be posted while the ask sits under the floor.
	if len(api.created) != 1 || api.created[0].Price != 0.31 {
		t.Fatalf("orders = %+v, want single post at 0.31", api.created)
	}
}

func TestSellFollowAskNeverPostsBelowFloor(t *testing.T) {
	api := newFakeAPI()
	api.onCreate = func(id string, o orderapi.Order) {
		api.status[id] = orderapi.Status{Status: "FILLED", FilledAmount: o.Size, AvgPrice: fptr(o.Price)}
	}

	// Ask at the floor exactly: post at the floor, not below.
	res, err := SellFollowAskWithFloor(context.Background(), api, "tok", 10, 0.30, Options{
		BestAsk: func() (float64, bool) { return 0.30, true },
		Sleep:   func(time.Duration) {},
	})
	if err != nil {
		t.Fatalf("SellFollowAskWithFloor: %v", err)
	}
	if res.Status != StatusFilled || api.created[0].Price != 0.30 {
		t.Fatalf("result=%+v price=%v", res, api.created[0].Price)
	}
}

func TestSellFollowAskShrinksOnInsufficientPosition(t *testing.T) {
	api := newFakeAPI()
	failures := 1
	api.createErr = func(o orderapi.Order) error {
		if failures > 0 {
			failures--
			return &orderapi.SubmissionError{Reason: "not enough balance / allowance"}
		}
		return nil
	}
	api.onCreate = func(id string, o orderapi.Order) {
		api.status[id] = orderapi.Status{Status: "FILLED", FilledAmount: o.Size, AvgPrice: fptr(o.Price)}
	}

	res, err := SellFollowAskWithFloor(context.Background(), api, "tok", 10, 0.30, Options{
		BestAsk: func() (float64, bool) { return 0.35, true },
		Sleep:   func(time.Duration) {},
	})
	if err != nil {
		t.Fatalf("SellFollowAskWithFloor: %v", err)
	}
	if res.Status != StatusFilled {
		t.Fatalf("status = %s, want FILLED", res.Status)
	}
	// One price tick (1e-4) shaved off, floored to sell precision.
	if got := api.created[0].Size; got != 9.99 {
		t.Fatalf("retried size = %v, want 9.99", got)
	}
}

func TestSellFollowAskAggressiveStepsDown(t *testing.T) {
	api := newFakeAPI()
	api.onCreate = func(id string, o orderapi.Order) {
		if id == "o2" {
			api.status[id] = orderapi.Status{Status: "FILLED", FilledAmount: o.Size, AvgPrice: fptr(o.Price)}
		}
	}

	now := time.Unix(1_700_000_000, 0)
	res, err := SellFollowAskWithFloor(context.Background(), api, "tok", 10, 0.30, Options{
		BestAsk:           func() (float64, bool) { return 0.40, true },
		PollInterval:      time.Second,
		SellMode:          SellModeAggressive,
		AggressiveStep:    0.01,
		AggressiveTimeout: 2 * time.Second,
		Now:               func() time.Time { return now },
		Sleep:             func(time.Duration) { now = now.Add(time.Second) },
	})
	if err != nil {
		t.Fatalf("SellFollowAskWithFloor: %v", err)
	}
	if res.Status != StatusFilled {
		t.Fatalf("status = %s, want FILLED", res.Status)
	}
	if len(api.created) != 2 {
		t.Fatalf("created %d orders, want 2", len(api.created))
	}
	if api.created[0].Price != 0.40 || api.created[1].Price != 0.39 {
		t.Fatalf("prices = %v / %v, want 0.40 then 0.39", api.created[0].Price, api.created[1].Price)
	}
}

func TestSellFollowAskSkipsDust(t *testing.T) {
	api := newFakeAPI()
	res, err := SellFollowAskWithFloor(context.Background(), api, "tok", 0.004, 0.30, Options{
		BestAsk: func() (float64, bool) { return 0.40, true },
		Sleep:   func(time.Duration) {},
	})
	if err != nil {
		t.Fatalf("SellFollowAskWithFloor: %v", err)
	}
	if res.Status != StatusSkipped || len(api.created) != 0 {
		t.Fatalf("result = %+v, want SKIPPED", res)
	}
}
