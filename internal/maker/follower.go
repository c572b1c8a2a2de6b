// Package maker maintains passive GTC limit orders that follow the top of
// book. BuyFollowBid chases the best bid upward until the requested size is
// filled; SellFollowAskWithFloor follows the best ask downward but never
// posts below a profit floor, waiting out periods where the market trades
// under it. Both routines poll order status, accumulate fills across
// repostings, and report a volume-weighted average price.
package maker

import (
	"context"
	"log"
	"math"
	"time"

	"poly-volmaker/internal/orderapi"
)

// Exchange precision: buys quote coarse prices and fine sizes, sells the
// reverse.
const (
	BuyPriceDP  = 2
	BuySizeDP   = 4
	SellPriceDP = 4
	SellSizeDP  = 2
)

// DefaultMinOrderSize is the exchange-wide minimum order size in shares.
const DefaultMinOrderSize = 5.0

const minFillEps = 1e-9

// minSellQty is the smallest sellable remainder at SELL_SIZE_DP precision.
const minSellQty = 0.01

const (
	StatusFilled          = "FILLED"
	StatusFilledTruncated = "FILLED_TRUNCATED"
	StatusSkipped         = "SKIPPED"
	StatusSkippedTooSmall = "SKIPPED_TOO_SMALL"
	StatusStopped         = "STOPPED"
	statusPending         = "PENDING"
)

const (
	SellModeConservative = "conservative"
	SellModeAggressive   = "aggressive"
)

// Options tunes a follow run. Zero values select the defaults noted per
// field; set a negative MinQuoteAmount or MinOrderSize to disable that
// minimum entirely.
type Options struct {
	// PollInterval between status checks. Default 10s.
	PollInterval time.Duration

	// MinQuoteAmount is the minimum notional per buy order. Default 1.0.
	MinQuoteAmount float64

	// MinOrderSize is the exchange minimum order size. Default
	// DefaultMinOrderSize.
	MinOrderSize float64

	// BestBid / BestAsk supply the top of book, typically backed by a
	// websocket cache. The bool reports availability.
	BestBid func() (float64, bool)
	BestAsk func() (float64, bool)

	// StopCheck aborts the run when it returns true. Context cancellation
	// has the same effect.
	StopCheck func() bool

	// Sleep and Now exist for tests; nil selects real time.
	Sleep func(time.Duration)
	Now   func() time.Time

	// SellMode selects conservative (default) or aggressive repricing.
	// Aggressive mode steps the ask down by AggressiveStep after
	// AggressiveTimeout without a fill, locking at the floor.
	SellMode          string
	AggressiveStep    float64       // default 0.01
	AggressiveTimeout time.Duration // default 2m

	// ProgressProbe, when set, runs right after each buy posting and then
	// every ProgressProbeInterval (default 1m) while the order rests.
	ProgressProbe         func()
	ProgressProbeInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.MinQuoteAmount == 0 {
		o.MinQuoteAmount = 1.0
	}
	if o.MinOrderSize == 0 {
		o.MinOrderSize = DefaultMinOrderSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.SellMode == "" {
		o.SellMode = SellModeConservative
	}
	if o.AggressiveStep == 0 {
		o.AggressiveStep = 0.01
	}
	if o.AggressiveTimeout <= 0 {
		o.AggressiveTimeout = 2 * time.Minute
	}
	if o.ProgressProbeInterval <= 0 {
		o.ProgressProbeInterval = time.Minute
	}
	return o
}

func (o Options) pause(ctx context.Context) {
	if o.Sleep != nil {
		o.Sleep(o.PollInterval)
		return
	}
	t := time.NewTimer(o.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (o Options) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return o.StopCheck != nil && o.StopCheck()
}

func (o Options) bid() (float64, bool) {
	if o.BestBid == nil {
		return 0, false
	}
	v, ok := o.BestBid()
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

func (o Options) ask() (float64, bool) {
	if o.BestAsk == nil {
		return 0, false
	}
	v, ok := o.BestAsk()
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

// OrderRecord is one posted order in a follow run's history.
type OrderRecord struct {
	ID       string
	Side     orderapi.Side
	Price    float64
	Size     float64
	Status   string
	Filled   float64
	AvgPrice float64
}

// Result summarises a follow run. AvgPrice is the volume-weighted fill
// price, 0 when nothing filled.
type Result struct {
	Status    string
	AvgPrice  float64
	Filled    float64
	Remaining float64
	Orders    []OrderRecord
}

func ceilDP(v float64, dp int) float64 {
	factor := math.Pow10(dp)
	return math.Ceil(v*factor-1e-12) / factor
}

func floorDP(v float64, dp int) float64 {
	factor := math.Pow10(dp)
	return math.Floor(v*factor+1e-12) / factor
}

func tickSize(dp int) float64 {
	return math.Pow10(-dp)
}

// fills accumulates fill totals across repostings. Fill amounts are
// absolute per order, so only the delta since the last observation is
// added to notional.
type fills struct {
	accounted map[string]float64
	notional  float64
}

func newFills() *fills {
	return &fills{accounted: make(map[string]float64)}
}

// observe folds one status snapshot into the totals and returns the
// order's absolute filled amount plus the price the delta was booked at.
// An order that went terminal without reporting an amount is assumed fully
// filled at its posted size.
func (f *fills) observe(orderID string, st orderapi.Status, lastPrice, expectedFull float64) (float64, float64) {
	filled := st.FilledAmount
	avg := lastPrice
	if st.AvgPrice != nil {
		avg = *st.AvgPrice
	}
	if filled <= minFillEps && orderapi.IsFinalStatus(st.Status) && expectedFull > 0 {
		filled = math.Max(filled, expectedFull)
	}
	prev := f.accounted[orderID]
	if delta := filled - prev; delta > 0 {
		f.notional += delta * avg
	}
	f.accounted[orderID] = filled
	return filled, avg
}

func (f *fills) total() float64 {
	sum := 0.0
	for _, v := range f.accounted {
		sum += v
	}
	return sum
}

func (f *fills) avgPrice() float64 {
	t := f.total()
	if t <= 0 {
		return 0
	}
	return f.notional / t
}

func cancelActive(ctx context.Context, api orderapi.API, id string, rec *OrderRecord) {
	if id == "" {
		return
	}
	api.CancelOrder(ctx, id)
	if rec != nil {
		rec.Status = "CANCELLED"
	}
}

// BuyFollowBid keeps a maker buy order pinned to the best bid until
// targetSize is filled, the remainder falls below the sizing minimums, or
// the run is stopped. It returns the accumulated result; a non-nil error
// indicates an order submission failure, with the partial result alongside.
func BuyFollowBid(ctx context.Context, api orderapi.API, tokenID string, targetSize float64, opts Options) (Result, error) {
	opts = opts.withDefaults()

	goal := math.Max(ceilDP(targetSize, BuySizeDP), 0)
	apiMin := 0.0
	if opts.MinOrderSize > 0 {
		apiMin = ceilDP(opts.MinOrderSize, BuySizeDP)
		goal = math.Max(goal, apiMin)
	}
	if goal <= 0 {
		return Result{Status: StatusSkipped}, nil
	}

	var (
		orders      []OrderRecord
		recIdx      = map[string]int{}
		tracker     = newFills()
		remaining   = goal
		activeID    string
		activePrice float64
		finalStatus = statusPending
		tick        = tickSize(BuyPriceDP)
		nextProbe   time.Time
	)

	recordOf := func(id string) *OrderRecord {
		if i, ok := recIdx[id]; ok {
			return &orders[i]
		}
		return nil
	}

	for {
		if opts.stopped(ctx) {
			cancelActive(ctx, api, activeID, recordOf(activeID))
			finalStatus = StatusStopped
			break
		}

		if activeID == "" {
			if apiMin > 0 && remaining+minFillEps < apiMin {
				finalStatus = truncatedOrTooSmall(tracker.total())
				break
			}
			bid, ok := opts.bid()
			if !ok {
				opts.pause(ctx)
				continue
			}
			px := ceilDP(bid, BuyPriceDP)
			if px <= 0 {
				opts.pause(ctx)
				continue
			}
			minQty := 0.0
			if opts.MinQuoteAmount > 0 {
				minQty = ceilDP(opts.MinQuoteAmount/math.Max(px, 1e-9), BuySizeDP)
			}
			qty := math.Max(remaining, minQty)
			if apiMin > 0 {
				qty = math.Max(qty, apiMin)
			}
			qty = ceilDP(qty, BuySizeDP)
			if qty <= 0 {
				finalStatus = StatusSkipped
				break
			}

			id, err := api.CreateOrder(ctx, orderapi.Order{
				TokenID:      tokenID,
				Side:         orderapi.SideBuy,
				Price:        px,
				Size:         qty,
				TimeInForce:  "GTC",
				AllowPartial: true,
			})
			if err != nil {
				return buildResult(finalStatus, tracker, goal, orders), err
			}
			orders = append(orders, OrderRecord{ID: id, Side: orderapi.SideBuy, Price: px, Size: qty, Status: "OPEN"})
			recIdx[id] = len(orders) - 1
			activeID = id
			activePrice = px
			if opts.ProgressProbe != nil {
				opts.ProgressProbe()
				nextProbe = opts.Now().Add(maxDuration(opts.ProgressProbeInterval, opts.PollInterval))
			}
			log.Printf("[maker][buy] posted price=%.2f qty=%.4f remaining=%.4f", px, qty, remaining)
			continue
		}

		opts.pause(ctx)
		if opts.ProgressProbe != nil && opts.Now().After(nextProbe) {
			opts.ProgressProbe()
			nextProbe = opts.Now().Add(maxDuration(opts.ProgressProbeInterval, opts.PollInterval))
		}

		st, err := api.GetOrderStatus(ctx, activeID)
		if err != nil {
			log.Printf("[maker][buy] status query failed: %v", err)
			st = orderapi.Status{Status: "UNKNOWN", FilledAmount: tracker.accounted[activeID]}
		}

		rec := recordOf(activeID)
		expected := 0.0
		if rec != nil {
			expected = rec.Size
		}
		filled, avg := tracker.observe(activeID, st, activePrice, expected)
		remaining = math.Max(goal-tracker.total(), 0)
		if rec != nil {
			rec.Filled = filled
			rec.Status = st.Status
			rec.AvgPrice = avg
			log.Printf("[maker][buy] order price=%.2f filled=%.4f slice_remaining=%.4f status=%s",
				rec.Price, filled, math.Max(rec.Size-filled, 0), st.Status)
		}

		bid, haveBid := opts.bid()
		minBuyable := 0.0
		if opts.MinQuoteAmount > 0 && haveBid {
			minBuyable = ceilDP(opts.MinQuoteAmount/math.Max(bid, 1e-9), BuySizeDP)
		}
		if apiMin > 0 {
			minBuyable = math.Max(minBuyable, apiMin)
		}

		if remaining <= minFillEps || (minBuyable > 0 && remaining < minBuyable) {
			cancelActive(ctx, api, activeID, recordOf(activeID))
			activeID = ""
			if remaining <= minFillEps {
				finalStatus = StatusFilled
			} else {
				finalStatus = truncatedOrTooSmall(tracker.total())
			}
			break
		}

		// Bid moved up a full tick: chase it.
		if haveBid && bid >= activePrice+tick-1e-12 {
			log.Printf("[maker][buy] bid rose, reposting old=%.2f new=%.2f", activePrice, bid)
			cancelActive(ctx, api, activeID, recordOf(activeID))
			activeID = ""
			activePrice = 0
			continue
		}

		if orderapi.IsFinalStatus(st.Status) || orderapi.IsCancelStatus(st.Status) {
			activeID = ""
			activePrice = 0
		}
	}

	return buildResult(finalStatus, tracker, goal, orders), nil
}

// SellFollowAskWithFloor keeps a maker sell order at max(best ask, floor)
// until positionSize is sold. While the ask trades below the floor the
// working order is cancelled and the routine waits for the market to
// recover. Aggressive mode additionally steps the price toward the floor
// when an order rests unfilled past the timeout.
func SellFollowAskWithFloor(ctx context.Context, api orderapi.API, tokenID string, positionSize, floor float64, opts Options) (Result, error) {
	opts = opts.withDefaults()

	goal := math.Max(floorDP(positionSize, SellSizeDP), 0)
	apiMin := 0.0
	if opts.MinOrderSize > 0 {
		apiMin = ceilDP(opts.MinOrderSize, SellSizeDP)
	}
	if goal < minSellQty {
		return Result{Status: StatusSkipped}, nil
	}

	var (
		orders      []OrderRecord
		recIdx      = map[string]int{}
		tracker     = newFills()
		remaining   = goal
		activeID    string
		activePrice float64
		waiting     bool
		finalStatus = statusPending
		tick        = tickSize(SellPriceDP)

		aggressive   = opts.SellMode == SellModeAggressive && opts.AggressiveStep > 0
		timerStart   time.Time
		floorLocked  bool
		nextOverride float64 // pending reprice from a timeout step-down
		lockedPrice  float64
	)

	recordOf := func(id string) *OrderRecord {
		if i, ok := recIdx[id]; ok {
			return &orders[i]
		}
		return nil
	}
	dropActive := func() {
		cancelActive(ctx, api, activeID, recordOf(activeID))
		activeID = ""
		activePrice = 0
		timerStart = time.Time{}
		nextOverride = 0
	}

	for {
		if opts.stopped(ctx) {
			cancelActive(ctx, api, activeID, recordOf(activeID))
			finalStatus = StatusStopped
			break
		}

		if apiMin > 0 && remaining+minFillEps < apiMin {
			finalStatus = truncatedOrTooSmall(tracker.total())
			break
		}

		ask, ok := opts.ask()
		if !ok {
			waiting = true
			if activeID != "" {
				dropActive()
			}
			opts.pause(ctx)
			continue
		}

		if ask < floor-1e-12 {
			if !waiting {
				log.Printf("[maker][sell] ask below floor, waiting ask=%.4f floor=%.4f", ask, floor)
			}
			waiting = true
			if activeID != "" {
				dropActive()
			}
			opts.pause(ctx)
			continue
		}
		if waiting && ask >= floor {
			waiting = false
		}

		if activeID == "" {
			px := math.Max(floorDP(ask, SellPriceDP), floor)
			if aggressive {
				if nextOverride > 0 {
					px = math.Max(floorDP(nextOverride, SellPriceDP), floor)
					nextOverride = 0
				} else if lockedPrice > 0 {
					px = math.Max(floorDP(lockedPrice, SellPriceDP), floor)
				}
			}
			qty := floorDP(remaining, SellSizeDP)
			if qty < minSellQty {
				finalStatus = StatusFilled
				break
			}
			if apiMin > 0 && qty+minFillEps < apiMin {
				finalStatus = truncatedOrTooSmall(tracker.total())
				break
			}

			id, err := api.CreateOrder(ctx, orderapi.Order{
				TokenID:      tokenID,
				Side:         orderapi.SideSell,
				Price:        px,
				Size:         qty,
				TimeInForce:  "GTC",
				AllowPartial: true,
			})
			if err != nil {
				if orderapi.IsInsufficient(err) {
					// The wallet holds less than we think; shrink by one
					// price tick worth and retry, or give up below minimum.
					cur := math.Max(goal-tracker.total(), 0)
					shrunk := floorDP(math.Max(cur-tick, 0), SellSizeDP)
					if shrunk >= minSellQty && (apiMin <= 0 || shrunk+minFillEps >= apiMin) {
						log.Printf("[maker][sell] insufficient position, shrinking old=%.2f new=%.2f", qty, shrunk)
						goal = tracker.total() + shrunk
						remaining = math.Max(goal-tracker.total(), 0)
						continue
					}
					log.Printf("[maker][sell] position below minimum order size, abandoning sell")
					finalStatus = truncatedOrTooSmall(tracker.total())
					break
				}
				return buildResult(finalStatus, tracker, goal, orders), err
			}
			orders = append(orders, OrderRecord{ID: id, Side: orderapi.SideSell, Price: px, Size: qty, Status: "OPEN"})
			recIdx[id] = len(orders) - 1
			activeID = id
			activePrice = px
			if aggressive {
				if px <= floor+1e-12 {
					lockedPrice = px
				}
				if lockedPrice > 0 {
					floorLocked = true
					timerStart = time.Time{}
				} else {
					floorLocked = false
					timerStart = opts.Now()
				}
			}
			log.Printf("[maker][sell] posted price=%.4f qty=%.2f remaining=%.2f", px, qty, remaining)
			continue
		}

		opts.pause(ctx)
		st, err := api.GetOrderStatus(ctx, activeID)
		if err != nil {
			log.Printf("[maker][sell] status query failed: %v", err)
			st = orderapi.Status{Status: "UNKNOWN", FilledAmount: tracker.accounted[activeID]}
		}

		rec := recordOf(activeID)
		expected := 0.0
		if rec != nil {
			expected = rec.Size
		}
		hint := activePrice
		if hint <= 0 {
			hint = floor
		}
		filled, avg := tracker.observe(activeID, st, hint, expected)
		remaining = math.Max(goal-tracker.total(), 0)
		if rec != nil {
			rec.Filled = filled
			rec.Status = st.Status
			rec.AvgPrice = avg
			log.Printf("[maker][sell] order price=%.4f sold=%.2f slice_remaining=%.2f status=%s",
				rec.Price, filled, math.Max(rec.Size-filled, 0), st.Status)
		}

		if apiMin > 0 && remaining < apiMin {
			dropActive()
			finalStatus = truncatedOrTooSmall(tracker.total())
			break
		}
		if remaining <= 0 || floorDP(remaining, SellSizeDP) < minSellQty {
			dropActive()
			finalStatus = StatusFilled
			break
		}

		ask, ok = opts.ask()
		if !ok {
			continue
		}

		if ask < floor-1e-12 {
			log.Printf("[maker][sell] ask fell below floor again, waiting ask=%.4f floor=%.4f", ask, floor)
			dropActive()
			waiting = true
			continue
		}

		if aggressive && activeID != "" && !waiting {
			if activePrice > 0 && activePrice <= floor+1e-12 {
				lockedPrice = activePrice
				floorLocked = true
				timerStart = time.Time{}
			}
			if !floorLocked && activePrice > 0 {
				if timerStart.IsZero() {
					timerStart = opts.Now()
				}
				if opts.Now().Sub(timerStart) >= opts.AggressiveTimeout {
					target := activePrice - opts.AggressiveStep
					if target >= floor-1e-12 {
						nextPx := math.Max(floorDP(target, SellPriceDP), floor)
						if nextPx >= activePrice-1e-12 {
							timerStart = opts.Now()
							if nextPx <= floor+1e-12 {
								lockedPrice = nextPx
								floorLocked = true
								timerStart = time.Time{}
							}
						} else {
							log.Printf("[maker][sell] timeout, stepping price down old=%.4f new=%.4f", activePrice, nextPx)
							cancelActive(ctx, api, activeID, recordOf(activeID))
							activeID = ""
							activePrice = 0
							nextOverride = nextPx
							timerStart = time.Time{}
							if nextPx <= floor+1e-12 {
								lockedPrice = nextPx
								floorLocked = true
							}
							continue
						}
					} else {
						lockedPrice = activePrice
						floorLocked = true
						timerStart = time.Time{}
					}
				}
			}
		}

		// Ask moved down a full tick: follow it (never below floor).
		if activePrice > 0 && ask <= activePrice-tick-1e-12 {
			newPx := math.Max(floorDP(ask, SellPriceDP), floor)
			log.Printf("[maker][sell] ask fell, reposting old=%.4f new=%.4f", activePrice, newPx)
			dropActive()
			continue
		}

		if orderapi.IsFinalStatus(st.Status) || orderapi.IsCancelStatus(st.Status) {
			activeID = ""
			activePrice = 0
			timerStart = time.Time{}
			nextOverride = 0
		}
	}

	return buildResult(finalStatus, tracker, goal, orders), nil
}

func truncatedOrTooSmall(filled float64) string {
	if filled > minFillEps {
		return StatusFilledTruncated
	}
	return StatusSkippedTooSmall
}

func buildResult(status string, tracker *fills, goal float64, orders []OrderRecord) Result {
	filled := tracker.total()
	return Result{
		Status:    status,
		AvgPrice:  tracker.avgPrice(),
		Filled:    filled,
		Remaining: math.Max(goal-filled, 0),
		Orders:    orders,
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
