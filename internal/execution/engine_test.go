package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"poly-volmaker/internal/orderapi"
)

type fakeAPI struct {
	created   []orderapi.Order
	status    map[string]orderapi.Status
	createErr func(n int, o orderapi.Order) error
	onCreate  func(id string, o orderapi.Order)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{status: make(map[string]orderapi.Status)}
}

func (f *fakeAPI) CreateOrder(_ context.Context, o orderapi.Order) (string, error) {
	if f.createErr != nil {
		if err := f.createErr(len(f.created), o); err != nil {
			return "", err
		}
	}
	f.created = append(f.created, o)
	id := fmt.Sprintf("o%d", len(f.created))
	if _, ok := f.status[id]; !ok {
		f.status[id] = orderapi.Status{Status: "OPEN"}
	}
	if f.onCreate != nil {
		f.onCreate(id, o)
	}
	return id, nil
}

func (f *fakeAPI) GetOrderStatus(_ context.Context, id string) (orderapi.Status, error) {
	return f.status[id], nil
}

func (f *fakeAPI) CancelOrder(_ context.Context, id string) bool { return true }

func fptr(v float64) *float64 { return &v }

// newTestEngine wires a virtual clock that only advances on sleep.
func newTestEngine(t *testing.T, api orderapi.API, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(api, cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	e.now = func() time.Time { return now }
	e.sleep = func(d time.Duration) { now = now.Add(d) }
	return e
}

func almost(got, want float64) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"zero slice min", func(c *Config) { c.OrderSliceMin = 0 }},
		{"max below min", func(c *Config) { c.OrderSliceMax = 0.5 }},
		{"negative retries", func(c *Config) { c.RetryAttempts = -1 }},
		{"negative step", func(c *Config) { c.PriceToleranceStep = -0.01 }},
		{"zero wait", func(c *Config) { c.WaitTime = 0 }},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }},
		{"negative quote min", func(c *Config) { c.MinQuoteAmount = -1 }},
		{"negative market min", func(c *Config) { c.MinMarketOrderSize = -1 }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mut(&cfg)
		if _, err := NewEngine(newFakeAPI(), cfg); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestOrderIntervalDefaultsToWaitTime(t *testing.T) {
	cfg := DefaultConfig()
	e, err := NewEngine(newFakeAPI(), cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if e.cfg.OrderInterval != e.cfg.WaitTime {
		t.Fatalf("order interval = %v, want %v", e.cfg.OrderInterval, e.cfg.WaitTime)
	}
}

func TestSliceQuantities(t *testing.T) {
	cases := []struct {
		name      string
		cfg       Config
		total     float64
		side      orderapi.Side
		price     float64
		want      []float64
	}{
		{
			name:  "sell splits with residual tail",
			cfg:   Config{OrderSliceMin: 1, OrderSliceMax: 2},
			total: 5.3, side: orderapi.SideSell, price: 0.5,
			want: []float64{2, 2, 1.3},
		},
		{
			name:  "buy raised to market minimum",
			cfg:   Config{OrderSliceMin: 1, OrderSliceMax: 2, MinQuoteAmount: 1, MinMarketOrderSize: 5},
			total: 6, side: orderapi.SideBuy, price: 0.5,
			want: []float64{5, 1},
		},
		{
			name:  "small residual stays in one slice",
			cfg:   Config{OrderSliceMin: 1, OrderSliceMax: 2},
			total: 2.5, side: orderapi.SideSell, price: 0.5,
			want: []float64{2.5},
		},
		{
			name:  "single slice when under max",
			cfg:   Config{OrderSliceMin: 1, OrderSliceMax: 2},
			total: 1.7, side: orderapi.SideSell, price: 0.5,
			want: []float64{1.7},
		},
		{
			name:  "buy minimum notional raises slice floor",
			cfg:   Config{OrderSliceMin: 1, OrderSliceMax: 2, MinQuoteAmount: 1},
			total: 5.3, side: orderapi.SideBuy, price: 0.5,
			want: []float64{2, 2, 1.3},
		},
	}

	for _, tc := range cases {
		cfg := tc.cfg
		cfg.RetryAttempts = 0
		cfg.PriceToleranceStep = 0.01
		cfg.WaitTime = time.Second
		cfg.PollInterval = time.Millisecond
		e := newTestEngine(t, newFakeAPI(), cfg)
		got := e.sliceQuantities(tc.total, tc.side, tc.price)
		if len(got) != len(tc.want) {
			t.Fatalf("%s: slices = %v, want %v", tc.name, got, tc.want)
		}
		sum := 0.0
		for i := range got {
			if !almost(got[i], tc.want[i]) {
				t.Fatalf("%s: slices = %v, want %v", tc.name, got, tc.want)
			}
			sum += got[i]
		}
		if !almost(sum, tc.total) {
			t.Fatalf("%s: slices sum to %v, want %v", tc.name, sum, tc.total)
		}
	}
}

func TestExecuteBuyFilled(t *testing.T) {
	api := newFakeAPI()
	api.onCreate = func(id string, o orderapi.Order) {
		api.status[id] = orderapi.Status{Status: "FILLED", FilledAmount: o.Size, AvgPrice: fptr(o.Price)}
	}
	e := newTestEngine(t, api, DefaultConfig())

	res, err := e.ExecuteBuy(context.Background(), "tok", 0.50, 2)
	if err != nil {
		t.Fatalf("ExecuteBuy: %v", err)
	}
	if res.Status != StatusFilled || res.Filled != 2 || res.Attempts != 1 {
		t.Fatalf("result = %+v", res)
	}
	if !almost(res.AvgPrice, 0.50) || !almost(res.Remaining(), 0) {
		t.Fatalf("result = %+v", res)
	}
	if api.created[0].TimeInForce != "GTC" || !api.created[0].AllowPartial {
		t.Fatalf("order = %+v", api.created[0])
	}
}

func TestExecuteVWAPAcrossSlices(t *testing.T) {
	api := newFakeAPI()
	prices := []float64{0.50, 0.52}
	api.onCreate = func(id string, o orderapi.Order) {
		api.status[id] = orderapi.Status{
			Status:       "FILLED",
			FilledAmount: o.Size,
			AvgPrice:     fptr(prices[len(api.created)-1]),
		}
	}
	e := newTestEngine(t, api, DefaultConfig())

	res, err := e.ExecuteSell(context.Background(), "tok", 0.50, 4)
	if err != nil {
		t.Fatalf("ExecuteSell: %v", err)
	}
	if res.Status != StatusFilled {
		t.Fatalf("status = %s", res.Status)
	}
	if !almost(res.AvgPrice, 0.51) {
		t.Fatalf("vwap = %v, want 0.51", res.AvgPrice)
	}
}

func TestExecuteTimeoutEscalatesPrice(t *testing.T) {
	api := newFakeAPI() // all orders stay OPEN forever
	cfg := DefaultConfig()
	cfg.RetryAttempts = 2
	e := newTestEngine(t, api, cfg)

	res, err := e.ExecuteBuy(context.Background(), "tok", 0.50, 1)
	if err != nil {
		t.Fatalf("ExecuteBuy: %v", err)
	}
	if res.Status != StatusRejected || res.Attempts != 3 {
		t.Fatalf("result = %+v", res)
	}
	if res.Message != StatusTimeout {
		t.Fatalf("message = %q, want TIMEOUT", res.Message)
	}
	if len(api.created) != 3 {
		t.Fatalf("created %d orders, want 3", len(api.created))
	}
	// Buys escalate upward by the tolerance step each attempt.
	if !almost(api.created[1].Price, 0.505) || !almost(api.created[2].Price, 0.51005) {
		t.Fatalf("prices = %v %v", api.created[1].Price, api.created[2].Price)
	}
}

func TestExecuteSellAdjustsPriceDownward(t *testing.T) {
	api := newFakeAPI()
	cfg := DefaultConfig()
	cfg.RetryAttempts = 1
	e := newTestEngine(t, api, cfg)

	res, err := e.ExecuteSell(context.Background(), "tok", 0.50, 1)
	if err != nil {
		t.Fatalf("ExecuteSell: %v", err)
	}
	if res.Status != StatusRejected {
		t.Fatalf("status = %s", res.Status)
	}
	if !almost(api.created[1].Price, 0.495) {
		t.Fatalf("retry price = %v, want 0.495", api.created[1].Price)
	}
	if !almost(res.LimitPrice, 0.495) {
		t.Fatalf("limit price = %v, want 0.495", res.LimitPrice)
	}
}

func TestExecutePartialOnMidRunError(t *testing.T) {
	api := newFakeAPI()
	api.onCreate = func(id string, o orderapi.Order) {
		api.status[id] = orderapi.Status{Status: "FILLED", FilledAmount: o.Size, AvgPrice: fptr(o.Price)}
	}
	api.createErr = func(n int, o orderapi.Order) error {
		if n == 1 {
			return errors.New("exchange unavailable")
		}
		return nil
	}
	e := newTestEngine(t, api, DefaultConfig())

	res, err := e.ExecuteSell(context.Background(), "tok", 0.50, 4)
	if err != nil {
		t.Fatalf("mid-run error must not propagate once filled: %v", err)
	}
	if res.Status != StatusPartial || res.Filled != 2 {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Message, "exchange unavailable") {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestExecutePropagatesErrorWhenNothingFilled(t *testing.T) {
	api := newFakeAPI()
	boom := errors.New("rejected by exchange")
	api.createErr = func(int, orderapi.Order) error { return boom }
	e := newTestEngine(t, api, DefaultConfig())

	res, err := e.ExecuteSell(context.Background(), "tok", 0.50, 2)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want propagation", err)
	}
	if res.Status != StatusRejected || res.Filled != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestExecuteSkipsNonPositiveQuantity(t *testing.T) {
	e := newTestEngine(t, newFakeAPI(), DefaultConfig())
	res, err := e.ExecuteBuy(context.Background(), "tok", 0.50, 0)
	if err != nil {
		t.Fatalf("ExecuteBuy: %v", err)
	}
	if res.Status != StatusSkipped || res.Message != "NON_POSITIVE_QUANTITY" {
		t.Fatalf("result = %+v", res)
	}
}

func TestExecuteMatchedWithoutAmount(t *testing.T) {
	api := newFakeAPI()
	api.onCreate = func(id string, o orderapi.Order) {
		api.status[id] = orderapi.Status{Status: "MATCHED"}
	}
	e := newTestEngine(t, api, DefaultConfig())

	res, err := e.ExecuteBuy(context.Background(), "tok", 0.50, 2)
	if err != nil {
		t.Fatalf("ExecuteBuy: %v", err)
	}
	if res.Status != StatusFilled || res.Filled != 2 {
		t.Fatalf("result = %+v", res)
	}
}
