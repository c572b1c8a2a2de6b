// Package execution submits batched limit orders: a requested quantity is
// split into exchange-compliant slices, each slice is posted and polled for
// fills under a deadline, and unfilled remainders are retried at a price
// adjusted adversely to the trader.
package execution

import (
	"context"
	"math"
	"strings"
	"time"

	"poly-volmaker/internal/orderapi"
)

const fillEps = 1e-9

const (
	StatusFilled   = "FILLED"
	StatusPartial  = "PARTIAL"
	StatusRejected = "REJECTED"
	StatusSkipped  = "SKIPPED"
	StatusTimeout  = "TIMEOUT"
)

// Result summarises one execute call.
type Result struct {
	Side      orderapi.Side
	Requested float64
	Filled    float64

	// LastPrice is the last observed fill price, falling back to the last
	// submitted limit price when nothing filled.
	LastPrice float64

	Attempts int
	Status   string

	// Message carries the last slice status or error text for diagnosis.
	Message string

	// AvgPrice is the volume-weighted fill price across all slices, 0
	// when unknown.
	AvgPrice float64

	// LimitPrice is the limit price of the final attempt.
	LimitPrice float64
}

func (r Result) Remaining() float64 {
	return math.Max(r.Requested-r.Filled, 0)
}

// Engine is the batch order scheduler. Safe for sequential use only.
type Engine struct {
	api orderapi.API
	cfg Config

	// Test hooks.
	now   func() time.Time
	sleep func(time.Duration)
}

func NewEngine(api orderapi.API, cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		api:   api,
		cfg:   cfg,
		now:   time.Now,
		sleep: time.Sleep,
	}, nil
}

// ExecuteBuy submits a buy of quantity shares at the given limit price,
// sliced per the configuration.
func (e *Engine) ExecuteBuy(ctx context.Context, tokenID string, price, quantity float64) (Result, error) {
	return e.execute(ctx, orderapi.SideBuy, tokenID, price, quantity)
}

// ExecuteSell submits a sell of quantity shares at the given limit price,
// sliced per the configuration.
func (e *Engine) ExecuteSell(ctx context.Context, tokenID string, price, quantity float64) (Result, error) {
	return e.execute(ctx, orderapi.SideSell, tokenID, price, quantity)
}

func (e *Engine) execute(ctx context.Context, side orderapi.Side, tokenID string, price, quantity float64) (Result, error) {
	if quantity <= 0 {
		return Result{
			Side:       side,
			Requested:  quantity,
			LastPrice:  price,
			Status:     StatusSkipped,
			Message:    "NON_POSITIVE_QUANTITY",
			LimitPrice: price,
		}, nil
	}

	var (
		remaining     = quantity
		filledTotal   = 0.0
		currentPrice  = price
		lastSubmitted = price
		lastFillPrice float64
		haveFillPrice bool
		notional      float64
		lastMessage   string
		aborted       bool
	)

	maxAttempts := e.cfg.RetryAttempts + 1
	attempt := 0

	for remaining > fillEps && attempt < maxAttempts {
		attempt++
		slices := e.sliceQuantities(remaining, side, currentPrice)

		for i := 0; i < len(slices) && remaining > fillEps; i++ {
			sliceSize := slices[i]
			lastSubmitted = currentPrice

			filled, sliceStatus, avg, err := e.submitAndAwait(ctx, orderapi.Order{
				TokenID:      tokenID,
				Side:         side,
				Price:        currentPrice,
				Size:         sliceSize,
				TimeInForce:  "GTC",
				AllowPartial: true,
			})
			if err != nil {
				lastMessage = err.Error()
				if filledTotal > fillEps {
					// Keep what filled so far; stop issuing slices.
					remaining = math.Max(quantity-filledTotal, 0)
					aborted = true
					break
				}
				res := e.finalize(side, quantity, filledTotal, notional, lastFillPrice, haveFillPrice, lastSubmitted, currentPrice, attempt, lastMessage)
				return res, err
			}

			filled = math.Min(filled, sliceSize)
			filledTotal += filled
			remaining = math.Max(remaining-filled, 0)
			lastMessage = sliceStatus
			if avg != nil {
				lastFillPrice = *avg
				haveFillPrice = true
				notional += *avg * filled
			}

			if filled < sliceSize {
				// Remainder carries to the next attempt at an adjusted
				// price.
				break
			}
			if i+1 < len(slices) && e.cfg.OrderInterval > 0 {
				e.sleep(e.cfg.OrderInterval)
			}
		}

		if aborted || remaining <= fillEps {
			break
		}
		if attempt < maxAttempts {
			currentPrice = e.adjustPrice(side, currentPrice)
			lastSubmitted = currentPrice
			e.sleep(e.cfg.WaitTime)
		}
	}

	return e.finalize(side, quantity, filledTotal, notional, lastFillPrice, haveFillPrice, lastSubmitted, lastSubmitted, attempt, lastMessage), nil
}

func (e *Engine) finalize(side orderapi.Side, requested, filled, notional, lastFillPrice float64, haveFillPrice bool, lastSubmitted, limitPrice float64, attempts int, message string) Result {
	status := StatusRejected
	switch {
	case requested-filled <= fillEps:
		status = StatusFilled
	case filled > fillEps:
		status = StatusPartial
	}
	if message == "" {
		message = status
	}

	reported := lastSubmitted
	if haveFillPrice {
		reported = lastFillPrice
	}
	avg := 0.0
	if filled > fillEps && notional > 0 {
		avg = notional / filled
	} else if haveFillPrice {
		avg = lastFillPrice
	}

	return Result{
		Side:       side,
		Requested:  requested,
		Filled:     filled,
		LastPrice:  reported,
		Attempts:   attempts,
		Status:     status,
		Message:    message,
		AvgPrice:   avg,
		LimitPrice: limitPrice,
	}
}

func (e *Engine) adjustPrice(side orderapi.Side, price float64) float64 {
	step := math.Max(e.cfg.PriceToleranceStep, 0)
	if step == 0 {
		return price
	}
	if side == orderapi.SideSell {
		return math.Max(price*(1-step), 0)
	}
	return price * (1 + step)
}

// submitAndAwait posts one slice and polls it until filled, terminal, or
// the wait deadline passes. A terminal MATCHED without a reported amount
// counts as fully filled.
func (e *Engine) submitAndAwait(ctx context.Context, order orderapi.Order) (float64, string, *float64, error) {
	orderID, err := e.api.CreateOrder(ctx, order)
	if err != nil {
		return 0, "", nil, err
	}

	deadline := e.now().Add(e.cfg.WaitTime)
	filled := 0.0
	last := "OPEN"
	var lastAvg *float64

	for {
		st, err := e.api.GetOrderStatus(ctx, orderID)
		if err != nil {
			return math.Min(filled, order.Size), last, lastAvg, err
		}
		filled = st.FilledAmount
		last = st.Status
		if st.AvgPrice != nil {
			lastAvg = st.AvgPrice
		}

		if filled >= order.Size-fillEps {
			break
		}
		if orderapi.IsFinalStatus(st.Status) || orderapi.IsCancelStatus(st.Status) {
			if strings.EqualFold(st.Status, "MATCHED") && filled < order.Size-fillEps {
				filled = order.Size
			}
			break
		}
		if !e.now().Before(deadline) {
			last = StatusTimeout
			break
		}
		e.sleep(e.cfg.PollInterval)
	}
	return math.Min(filled, order.Size), last, lastAvg, nil
}

// sliceQuantities splits a quantity into order sizes between the
// configured bounds. The exchange minimum (and for buys, the minimum
// notional at the current price) raises the effective slice size, while a
// trailing residual below the configured slice minimum is folded into the
// previous slice instead of being submitted alone.
func (e *Engine) sliceQuantities(total float64, side orderapi.Side, price float64) []float64 {
	remaining := total
	if remaining <= 0 {
		return nil
	}

	minSize := e.cfg.OrderSliceMin
	preferredMax := e.cfg.OrderSliceMax

	enforcedMin := minSize
	if side == orderapi.SideBuy && price > 0 {
		enforcedMin = math.Max(enforcedMin, e.minimumBuySize(price))
	} else if e.cfg.MinMarketOrderSize > 0 {
		enforcedMin = math.Max(enforcedMin, ceilPrecision(e.cfg.MinMarketOrderSize))
	}
	preferredMax = math.Max(preferredMax, minSize)
	preferredMax = math.Max(preferredMax, enforcedMin)

	if remaining <= preferredMax {
		return []float64{remaining}
	}

	var slices []float64
	for remaining > fillEps {
		if remaining <= preferredMax {
			if remaining < minSize && len(slices) > 0 {
				slices[len(slices)-1] += remaining
			} else {
				slices = append(slices, remaining)
			}
			break
		}
		residual := remaining - preferredMax
		if residual > 0 && residual < minSize {
			slices = append(slices, remaining)
			break
		}
		slices = append(slices, preferredMax)
		remaining = residual
	}
	return slices
}

// minimumBuySize is the smallest buy slice satisfying both the exchange
// minimum and the minimum notional at the given price.
func (e *Engine) minimumBuySize(price float64) float64 {
	marketMin := e.cfg.MinMarketOrderSize
	if marketMin > 0 {
		marketMin = ceilPrecision(marketMin)
	}
	baseMin := math.Max(e.cfg.OrderSliceMin, marketMin)
	if price <= 0 || e.cfg.MinQuoteAmount <= 0 {
		return baseMin
	}
	return math.Max(baseMin, ceilPrecision(e.cfg.MinQuoteAmount/price))
}

// ceilPrecision rounds up to share precision (4 decimal places).
func ceilPrecision(v float64) float64 {
	const factor = 1e4
	return math.Ceil(v*factor-1e-12) / factor
}
