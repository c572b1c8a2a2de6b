package volbot

import (
	"context"
	"fmt"
	"log"
	"sync"

	"poly-volmaker/internal/orderapi"
)

// dryRunAPI simulates instant full fills at the submitted price so the
// whole execution path can run without touching the exchange.
type dryRunAPI struct {
	mu     sync.Mutex
	nextID int
	orders map[string]orderapi.Order
}

func newDryRunAPI() *dryRunAPI {
	return &dryRunAPI{orders: make(map[string]orderapi.Order)}
}

func (d *dryRunAPI) CreateOrder(_ context.Context, o orderapi.Order) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := fmt.Sprintf("dry-%d", d.nextID)
	d.orders[id] = o
	log.Printf("[dry] %s %s price=%.4f size=%.4f -> %s", o.Side, o.TokenID, o.Price, o.Size, id)
	return id, nil
}

func (d *dryRunAPI) GetOrderStatus(_ context.Context, orderID string) (orderapi.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.orders[orderID]
	if !ok {
		return orderapi.Status{}, fmt.Errorf("dry-run: unknown order %s", orderID)
	}
	price := o.Price
	return orderapi.Status{
		Status:       "MATCHED",
		FilledAmount: o.Size,
		AvgPrice:     &price,
	}, nil
}

// MarketSell pretends the whole amount crossed at a nominal price.
func (d *dryRunAPI) MarketSell(_ context.Context, tokenID string, shares float64, slippageBps int) (float64, float64, error) {
	log.Printf("[dry] market sell %s size=%.4f slippage=%dbps", tokenID, shares, slippageBps)
	return shares, 0.5, nil
}

func (d *dryRunAPI) CancelOrder(_ context.Context, orderID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.orders, orderID)
	return true
}

var _ orderapi.API = (*dryRunAPI)(nil)
