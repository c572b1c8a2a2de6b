package marketws

import (
	"testing"
	"time"
)

func TestParsePriceChangeArray(t *testing.T) {
	raw := []byte(`[{"event_type":"price_change","market":"0xabc","timestamp":"1735689600123","price_changes":[{"asset_id":"tok1","best_bid":"0.41","best_ask":"0.43"},{"asset_id":"tok2","best_bid":"0.58","best_ask":"0.60"}]}]`)

	ticks, err := parseEvents(raw)
	if err != nil {
		t.Fatalf("parseEvents: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("expected 2 ticks, got %d", len(ticks))
	}
	if ticks[0].AssetID != "tok1" || ticks[0].BestBid != 0.41 || ticks[0].BestAsk != 0.43 {
		t.Fatalf("unexpected first tick: %+v", ticks[0])
	}
	if ticks[1].AssetID != "tok2" || ticks[1].BestBid != 0.58 {
		t.Fatalf("unexpected second tick: %+v", ticks[1])
	}
	// Millisecond timestamps come back as seconds.
	want := time.Unix(1735689600, 0)
	if d := ticks[0].TS.Sub(want); d < 0 || d > time.Second {
		t.Fatalf("timestamp not converted from ms: %v", ticks[0].TS)
	}
}

func TestParseBookEvent(t *testing.T) {
	raw := []byte(`{"event_type":"book","asset_id":"tok1","timestamp":"1735689600","bids":[{"price":"0.40","size":"120"},{"price":"0.42","size":"50"},{"price":"0.41","size":"10"}],"asks":[{"price":"0.47","size":"30"},{"price":"0.45","size":"5"}]}`)

	ticks, err := parseEvents(raw)
	if err != nil {
		t.Fatalf("parseEvents: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(ticks))
	}
	tk := ticks[0]
	if tk.BestBid != 0.42 {
		t.Fatalf("best bid should be highest level, got %v", tk.BestBid)
	}
	if tk.BestAsk != 0.45 {
		t.Fatalf("best ask should be lowest level, got %v", tk.BestAsk)
	}
}

func TestParseBookSkipsEmptyLevels(t *testing.T) {
	raw := []byte(`{"event_type":"book","asset_id":"tok1","bids":[{"price":"0.44","size":"0"},{"price":"0.40","size":"25"}],"asks":[]}`)

	ticks, err := parseEvents(raw)
	if err != nil {
		t.Fatalf("parseEvents: %v", err)
	}
	if len(ticks) != 1 || ticks[0].BestBid != 0.40 {
		t.Fatalf("zero-size level should be skipped, got %+v", ticks)
	}
}

func TestParseClosedStatus(t *testing.T) {
	cases := []string{
		`{"event_type":"market_status","asset_id":"tok1","status":"RESOLVED"}`,
		`{"event_type":"market_status","asset_id":"tok1","market_status":"closed"}`,
		`{"asset_id":"tok1","closed":true}`,
		`{"asset_id":"tok1","market_closed":"true"}`,
	}
	for _, raw := range cases {
		ticks, err := parseEvents([]byte(raw))
		if err != nil {
			t.Fatalf("parseEvents(%s): %v", raw, err)
		}
		if len(ticks) != 1 || !ticks[0].Closed {
			t.Fatalf("expected closed tick for %s, got %+v", raw, ticks)
		}
	}
}

func TestParseIgnoresUnknownEvents(t *testing.T) {
	ticks, err := parseEvents([]byte(`{"event_type":"last_trade_price","asset_id":"tok1","price":"0.44"}`))
	if err != nil {
		t.Fatalf("parseEvents: %v", err)
	}
	if len(ticks) != 0 {
		t.Fatalf("expected no ticks, got %+v", ticks)
	}
}

func TestTopBookKeepsOtherSide(t *testing.T) {
	book := NewTopBook()
	book.Apply(Tick{AssetID: "tok1", BestBid: 0.41, BestAsk: 0.43, TS: time.Now()})
	book.Apply(Tick{AssetID: "tok1", BestBid: 0.42, TS: time.Now()})

	bid, ok := book.BestBid("tok1")
	if !ok || bid != 0.42 {
		t.Fatalf("bid = %v ok=%v", bid, ok)
	}
	ask, ok := book.BestAsk("tok1")
	if !ok || ask != 0.43 {
		t.Fatalf("one-sided update must not erase ask, got %v ok=%v", ask, ok)
	}

	if _, ok := book.BestBid("tok2"); ok {
		t.Fatalf("unknown asset should report no quote")
	}
}

func TestTopBookClosedFlag(t *testing.T) {
	book := NewTopBook()
	if book.MarketClosed("tok1") {
		t.Fatalf("fresh book should not be closed")
	}
	book.Apply(Tick{AssetID: "tok1", Closed: true})
	if !book.MarketClosed("tok1") {
		t.Fatalf("closed tick should mark asset closed")
	}
}

func TestNextBackoffCapped(t *testing.T) {
	b := 500 * time.Millisecond
	for i := 0; i < 10; i++ {
		b = nextBackoff(b, 15*time.Second)
	}
	if b != 15*time.Second {
		t.Fatalf("backoff should cap at 15s, got %v", b)
	}
}
