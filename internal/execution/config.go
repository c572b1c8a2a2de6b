package execution

import (
	"fmt"
	"time"
)

// Config controls slicing and retry behaviour for batched orders.
type Config struct {
	// Slice size bounds in shares.
	OrderSliceMin float64
	OrderSliceMax float64

	// RetryAttempts is the number of re-submissions after the first pass,
	// so the engine makes RetryAttempts+1 passes at most.
	RetryAttempts int

	// PriceToleranceStep is the fractional adverse price adjustment
	// between attempts: sells step down, buys step up.
	PriceToleranceStep float64

	// WaitTime bounds how long a single slice may rest before it is
	// abandoned as TIMEOUT.
	WaitTime time.Duration

	// PollInterval between fill-status checks.
	PollInterval time.Duration

	// OrderInterval is the pause between fully filled slices. Negative
	// means unset and defaults to WaitTime at validation.
	OrderInterval time.Duration

	// MinQuoteAmount is the minimum notional per buy slice.
	MinQuoteAmount float64

	// MinMarketOrderSize is the exchange minimum order size; 0 disables.
	MinMarketOrderSize float64
}

func DefaultConfig() Config {
	return Config{
		OrderSliceMin:      1.0,
		OrderSliceMax:      2.0,
		RetryAttempts:      2,
		PriceToleranceStep: 0.01,
		WaitTime:           5 * time.Second,
		PollInterval:       500 * time.Millisecond,
		OrderInterval:      -1,
		MinQuoteAmount:     1.0,
	}
}

func (c *Config) validate() error {
	if c.OrderSliceMin <= 0 {
		return fmt.Errorf("execution: order slice min must be positive")
	}
	if c.OrderSliceMax < c.OrderSliceMin {
		return fmt.Errorf("execution: order slice max must be >= slice min")
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("execution: retry attempts must be >= 0")
	}
	if c.PriceToleranceStep < 0 {
		return fmt.Errorf("execution: price tolerance step must be >= 0")
	}
	if c.WaitTime <= 0 {
		return fmt.Errorf("execution: wait time must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("execution: poll interval must be positive")
	}
	if c.OrderInterval < 0 {
		c.OrderInterval = c.WaitTime
	}
	if c.MinQuoteAmount < 0 {
		return fmt.Errorf("execution: min quote amount must be >= 0")
	}
	if c.MinMarketOrderSize < 0 {
		return fmt.Errorf("execution: min market order size must be >= 0")
	}
	return nil
}
