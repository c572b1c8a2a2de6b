// Package orderapi defines the order-API surface shared by the maker
// follower and the batch execution engine. Exchange adapters implement API
// once; the execution layers never probe a concrete client directly.
package orderapi

import (
	"context"
	"fmt"
	"strings"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order is a single limit-order request.
type Order struct {
	TokenID      string
	Side         Side
	Price        float64
	Size         float64
	TimeInForce  string // defaults to GTC
	AllowPartial bool
}

// Status is a normalized order-status snapshot.
//
// Status text is upper-cased by adapters. AvgPrice is nil when the exchange
// did not report a fill price.
type Status struct {
	Status       string
	FilledAmount float64
	AvgPrice     *float64
}

// API is the explicit order-entry contract.
//
// CancelOrder is idempotent: cancelling an order that is already gone
// returns false without an error.
type API interface {
	CreateOrder(ctx context.Context, order Order) (string, error)
	GetOrderStatus(ctx context.Context, orderID string) (Status, error)
	CancelOrder(ctx context.Context, orderID string) bool
}

// SubmissionError wraps an order rejection returned by the exchange at
// create time.
type SubmissionError struct {
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order submission: %s: %v", e.Reason, e.Err)
	}
	return "order submission: " + e.Reason
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// IsInsufficient reports whether err looks like an insufficient
// balance/position rejection, which the maker follower treats as a
// shrink-and-retry condition rather than a hard failure.
func IsInsufficient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"insufficient", "balance", "position"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// Terminal fill states. MATCHED responses sometimes omit the filled
// amount; callers fall back to the order's full size in that case.
func IsFinalStatus(status string) bool {
	switch strings.ToUpper(status) {
	case "FILLED", "MATCHED", "COMPLETED", "EXECUTED":
		return true
	}
	return false
}

// IsCancelStatus reports terminal states that end an order without a fill.
func IsCancelStatus(status string) bool {
	switch strings.ToUpper(status) {
	case "CANCELLED", "CANCELED", "REJECTED", "EXPIRED":
		return true
	}
	return false
}
