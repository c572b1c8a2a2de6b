package clob

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"poly-volmaker/internal/orderapi"
)

// OrderAPI exposes the Client through the minimal order contract consumed
// by the maker and execution engines: create, poll status, cancel.
type OrderAPI struct {
	client        *Client
	useServerTime bool
	salt          func() int64
}

// NewOrderAPI wraps a Client. saltGenerator may be nil, in which case a
// process-local PCG source is used.
func NewOrderAPI(client *Client, useServerTime bool, saltGenerator func() int64) *OrderAPI {
	if saltGenerator == nil {
		rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(time.Now().UnixNano()>>1)))
		var mu sync.Mutex
		saltGenerator = func() int64 {
			mu.Lock()
			defer mu.Unlock()
			return int64(rng.Uint64() & 0x7fffffffffffffff)
		}
	}
	return &OrderAPI{client: client, useServerTime: useServerTime, salt: saltGenerator}
}

func (a *OrderAPI) CreateOrder(ctx context.Context, o orderapi.Order) (string, error) {
	var side Side
	switch o.Side {
	case orderapi.SideBuy:
		side = SideBuy
	case orderapi.SideSell:
		side = SideSell
	default:
		return "", &orderapi.SubmissionError{Reason: fmt.Sprintf("unsupported side %q", o.Side)}
	}

	orderType := resolveOrderType(o.TimeInForce)

	res, err := a.client.CreateSignedLimitOrder(ctx, o.TokenID, side, o.Price, o.Size, a.salt)
	if err != nil {
		return "", &orderapi.SubmissionError{Reason: "build order", Err: err}
	}

	resp, _, err := a.client.PostSignedOrder(ctx, res.SignedOrder, orderType, false, a.useServerTime)
	if err != nil {
		return "", &orderapi.SubmissionError{Reason: "post order", Err: err}
	}
	if msg, _ := resp["errorMsg"].(string); msg != "" {
		return "", &orderapi.SubmissionError{Reason: msg}
	}
	id := extractOrderID(resp)
	if id == "" {
		return "", &orderapi.SubmissionError{Reason: fmt.Sprintf("order response missing order id: %v", resp)}
	}
	return id, nil
}

// GetOrderStatus maps the CLOB order payload onto the generic status
// shape. The exchange reports resting orders as LIVE; callers expect OPEN.
func (a *OrderAPI) GetOrderStatus(ctx context.Context, orderID string) (orderapi.Status, error) {
	info, err := a.client.GetOrder(ctx, orderID, a.useServerTime)
	if err != nil {
		return orderapi.Status{}, err
	}

	status := strings.ToUpper(strings.TrimSpace(info.Status))
	if status == "" {
		return orderapi.Status{}, fmt.Errorf("order %s: status missing in payload", orderID)
	}
	if status == "LIVE" {
		status = "OPEN"
	}

	out := orderapi.Status{Status: status}
	if info.SizeMatched != "" {
		matched, err := strconv.ParseFloat(info.SizeMatched, 64)
		if err != nil {
			return orderapi.Status{}, fmt.Errorf("order %s: bad size_matched %q", orderID, info.SizeMatched)
		}
		out.FilledAmount = matched
	}
	if info.Price != "" {
		if px, err := strconv.ParseFloat(info.Price, 64); err == nil && px > 0 {
			out.AvgPrice = &px
		}
	}
	return out, nil
}

// CancelOrder is best-effort and idempotent: an already-gone order counts
// as success.
func (a *OrderAPI) CancelOrder(ctx context.Context, orderID string) bool {
	resp, err := a.client.CancelOrder(ctx, orderID, a.useServerTime)
	if err == nil {
		return true
	}
	if resp != nil {
		if canceled, ok := resp["canceled"].([]any); ok && len(canceled) > 0 {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "already")
}

// MarketSell submits an immediate-or-cancel taker sell for the given number
// of shares. slippageBps bounds how far below the current book price the
// signed order may land; 0 takes the book price as-is.
func (a *OrderAPI) MarketSell(ctx context.Context, tokenID string, shares float64, slippageBps int) (filled, avgPrice float64, err error) {
	if shares <= 0 {
		return 0, 0, fmt.Errorf("shares must be > 0")
	}
	units, err := parseDecimalToUnits(strconv.FormatFloat(shares, 'f', -1, 64), collateralTokenDecimals)
	if err != nil {
		return 0, 0, fmt.Errorf("convert shares: %w", err)
	}

	res, err := a.client.CreateSignedMarketOrderWithSlippage(ctx, tokenID, SideSell, units, OrderTypeFAK, a.useServerTime, slippageBps, a.salt)
	if err != nil {
		return 0, 0, &orderapi.SubmissionError{Reason: "build market sell", Err: err}
	}
	resp, _, err := a.client.PostSignedOrder(ctx, res.SignedOrder, OrderTypeFAK, false, a.useServerTime)
	if err != nil {
		return 0, 0, &orderapi.SubmissionError{Reason: "post market sell", Err: err}
	}
	if msg, _ := resp["errorMsg"].(string); msg != "" {
		return 0, 0, &orderapi.SubmissionError{Reason: msg}
	}
	id := extractOrderID(resp)
	if id == "" {
		return 0, 0, &orderapi.SubmissionError{Reason: fmt.Sprintf("order response missing order id: %v", resp)}
	}

	st, err := a.GetOrderStatus(ctx, id)
	if err != nil {
		return 0, 0, fmt.Errorf("market sell %s status: %w", id, err)
	}
	avg := 0.0
	if st.AvgPrice != nil {
		avg = *st.AvgPrice
	}
	return st.FilledAmount, avg, nil
}

func resolveOrderType(tif string) OrderType {
	switch strings.ToUpper(strings.TrimSpace(tif)) {
	case "", "GTC":
		return OrderTypeGTC
	case "FOK":
		return OrderTypeFOK
	case "GTD":
		return OrderTypeGTD
	case "IOC", "FAK":
		// The CLOB spells immediate-or-cancel as FAK.
		return OrderTypeFAK
	default:
		return OrderTypeGTC
	}
}

func extractOrderID(resp map[string]any) string {
	for _, key := range []string{"orderID", "orderId", "id", "orderHash"} {
		if v, ok := resp[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var _ orderapi.API = (*OrderAPI)(nil)
