package marketws

import (
	"sync"
	"time"
)

// Quote is the last observed top of book for one asset.
type Quote struct {
	BestBid float64
	BestAsk float64
	TS      time.Time
}

// TopBook caches per-asset quotes from the stream. Safe for concurrent use.
type TopBook struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	closed map[string]bool
}

func NewTopBook() *TopBook {
	return &TopBook{
		quotes: make(map[string]Quote),
		closed: make(map[string]bool),
	}
}

// Apply folds one tick into the cache. Zero prices keep the previous value
// so a one-sided update does not erase the other side.
func (b *TopBook) Apply(t Tick) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t.Closed {
		b.closed[t.AssetID] = true
		return
	}

	q := b.quotes[t.AssetID]
	if t.BestBid > 0 {
		q.BestBid = t.BestBid
	}
	if t.BestAsk > 0 {
		q.BestAsk = t.BestAsk
	}
	q.TS = t.TS
	b.quotes[t.AssetID] = q
}

func (b *TopBook) Quote(assetID string) (Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[assetID]
	return q, ok
}

// BestBid returns the cached bid for the asset, false when none seen yet.
func (b *TopBook) BestBid(assetID string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[assetID]
	if !ok || q.BestBid <= 0 {
		return 0, false
	}
	return q.BestBid, true
}

// BestAsk returns the cached ask for the asset, false when none seen yet.
func (b *TopBook) BestAsk(assetID string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[assetID]
	if !ok || q.BestAsk <= 0 {
		return 0, false
	}
	return q.BestAsk, true
}

// MarketClosed reports whether a closed notification was seen for the asset.
func (b *TopBook) MarketClosed(assetID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed[assetID]
}
