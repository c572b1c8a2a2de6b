// Package marketws streams top-of-book updates from the CLOB market
// websocket channel. It subscribes by asset id, keeps the connection alive
// with text heartbeats, reconnects with jittered exponential backoff, and
// emits one Tick per asset update.
package marketws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const DefaultURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

// The server drops quiet connections; it answers text PING with PONG.
const DefaultPingInterval = 10 * time.Second

type subscribeRequest struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

// Tick is one top-of-book observation. Closed marks a market-closed
// notification; its prices may be zero.
type Tick struct {
	AssetID string
	BestBid float64
	BestAsk float64
	TS      time.Time
	Closed  bool
}

type Options struct {
	PingInterval time.Duration

	BackoffMin time.Duration
	BackoffMax time.Duration

	OutBuffer int
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = 500 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 15 * time.Second
	}
	if o.OutBuffer <= 0 {
		o.OutBuffer = 256
	}
	return o
}

// Start connects to the market channel and emits decoded ticks for the
// given asset ids until ctx is cancelled.
func Start(ctx context.Context, url string, assetIDs []string, opts Options) (<-chan Tick, <-chan error) {
	opts = opts.withDefaults()
	if url == "" {
		url = DefaultURL
	}

	out := make(chan Tick, opts.OutBuffer)
	errs := make(chan error, 16)

	go func() {
		defer close(out)
		defer close(errs)

		backoff := opts.BackoffMin
		for {
			if ctx.Err() != nil {
				return
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			if err != nil {
				emitErrNonBlocking(errs, fmt.Errorf("marketws dial: %w", err))
				sleepWithJitter(ctx, backoff)
				backoff = nextBackoff(backoff, opts.BackoffMax)
				continue
			}

			backoff = opts.BackoffMin

			if err := runSession(ctx, conn, assetIDs, opts.PingInterval, out, errs); err != nil && ctx.Err() == nil {
				emitErrNonBlocking(errs, err)
			}

			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			sleepWithJitter(ctx, backoff)
			backoff = nextBackoff(backoff, opts.BackoffMax)
		}
	}()

	return out, errs
}

func runSession(
	ctx context.Context,
	conn *websocket.Conn,
	assetIDs []string,
	pingInterval time.Duration,
	out chan<- Tick,
	errs chan<- error,
) error {
	if conn == nil {
		return fmt.Errorf("marketws session: nil conn")
	}

	req := subscribeRequest{Type: "market", AssetsIDs: assetIDs}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marketws subscribe marshal: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, reqBytes); err != nil {
		return fmt.Errorf("marketws subscribe write: %w", err)
	}

	var writeMu sync.Mutex
	stop := make(chan struct{})
	var stopOnce sync.Once
	stopAll := func() { stopOnce.Do(func() { close(stop) }) }

	go func() {
		defer stopAll()
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-t.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
				werr := conn.WriteMessage(websocket.TextMessage, []byte("PING"))
				writeMu.Unlock()
				if werr != nil {
					emitErrNonBlocking(errs, fmt.Errorf("marketws ping: %w", werr))
					_ = conn.Close()
					return
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			stopAll()
			if errors.Is(err, websocket.ErrCloseSent) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("marketws read: %w", err)
		}

		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		if len(msg) == 0 {
			continue
		}
		if s := string(msg); s == "PONG" || s == "PING" || s == "pong" {
			continue
		}

		ticks, err := parseEvents(msg)
		if err != nil {
			emitErrNonBlocking(errs, fmt.Errorf("marketws decode: %w", err))
			continue
		}
		for _, t := range ticks {
			select {
			case out <- t:
			default:
			}
		}
	}
}

// marketEvent covers the envelope shapes of book and price_change events,
// plus the status fields some feeds attach when a market closes.
type marketEvent struct {
	EventType    string            `json:"event_type"`
	AssetID      string            `json:"asset_id"`
	Market       string            `json:"market"`
	Timestamp    json.Number       `json:"timestamp"`
	Bids         []priceLevel      `json:"bids"`
	Asks         []priceLevel      `json:"asks"`
	PriceChanges []priceChangeItem `json:"price_changes"`

	Status       string `json:"status"`
	MarketStatus string `json:"market_status"`
	ClosedFlag   any    `json:"closed"`
	MarketClosed any    `json:"market_closed"`
}

type priceLevel struct {
	Price json.Number `json:"price"`
	Size  json.Number `json:"size"`
}

type priceChangeItem struct {
	AssetID string      `json:"asset_id"`
	BestBid json.Number `json:"best_bid"`
	BestAsk json.Number `json:"best_ask"`
}

// parseEvents decodes a raw frame, which may hold one event or an array
// of them, into ticks.
func parseEvents(raw []byte) ([]Tick, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, nil
	}

	var events []marketEvent
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, err
		}
	} else {
		var ev marketEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		events = []marketEvent{ev}
	}

	var ticks []Tick
	for _, ev := range events {
		ticks = append(ticks, ev.toTicks()...)
	}
	return ticks, nil
}

func (ev marketEvent) toTicks() []Tick {
	ts := parseEventTime(ev.Timestamp)

	if ev.indicatesClosed() {
		return []Tick{{AssetID: ev.AssetID, TS: ts, Closed: true}}
	}

	switch ev.EventType {
	case "book":
		bid := bestOfLevels(ev.Bids, false)
		ask := bestOfLevels(ev.Asks, true)
		if bid <= 0 && ask <= 0 {
			return nil
		}
		return []Tick{{AssetID: ev.AssetID, BestBid: bid, BestAsk: ask, TS: ts}}
	case "price_change", "":
		if len(ev.PriceChanges) == 0 {
			return nil
		}
		var out []Tick
		for _, pc := range ev.PriceChanges {
			bid, _ := pc.BestBid.Float64()
			ask, _ := pc.BestAsk.Float64()
			if bid <= 0 && ask <= 0 {
				continue
			}
			out = append(out, Tick{AssetID: pc.AssetID, BestBid: bid, BestAsk: ask, TS: ts})
		}
		return out
	}
	return nil
}

func (ev marketEvent) indicatesClosed() bool {
	for _, s := range []string{ev.Status, ev.MarketStatus} {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "closed", "settled", "resolved", "expired":
			return true
		}
	}
	for _, v := range []any{ev.ClosedFlag, ev.MarketClosed} {
		switch t := v.(type) {
		case bool:
			if t {
				return true
			}
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "1", "yes":
				return true
			}
		}
	}
	return false
}

// bestOfLevels picks the top of one book side: highest price for bids,
// lowest for asks. Level order on the wire is not guaranteed.
func bestOfLevels(levels []priceLevel, wantLowest bool) float64 {
	best := 0.0
	for _, lv := range levels {
		px, err := strconv.ParseFloat(lv.Price.String(), 64)
		if err != nil || px <= 0 {
			continue
		}
		if sz, err := strconv.ParseFloat(lv.Size.String(), 64); err == nil && sz <= 0 {
			continue
		}
		if best == 0 || (wantLowest && px < best) || (!wantLowest && px > best) {
			best = px
		}
	}
	return best
}

// parseEventTime accepts epoch seconds or milliseconds.
func parseEventTime(n json.Number) time.Time {
	v, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || v <= 0 {
		return time.Now()
	}
	if v > 1e12 {
		v /= 1000
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

func emitErrNonBlocking(ch chan<- error, err error) {
	if err == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	j := int64(d) / 7
	if j > 0 {
		d = time.Duration(int64(d) + rand.Int64N(2*j+1) - j)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
