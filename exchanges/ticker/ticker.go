// Package ticker defines the point-in-time quote snapshot used to price
// orders.
package ticker

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhonabreul/krakenbrokerage/currency"
)

var (
	// ErrInvalidTick is returned for a tick with a crossed or empty book
	ErrInvalidTick = errors.New("invalid tick")
	// ErrStaleTick is returned when a tick is older than the caller allows
	ErrStaleTick = errors.New("stale tick")
)

// Tick is a best bid/ask snapshot for a pair. Refreshed per query, no
// persistent identity.
type Tick struct {
	Pair        currency.Pair
	Bid         decimal.Decimal
	Ask         decimal.Decimal
	Last        decimal.Decimal
	LastUpdated time.Time
}

// Validate checks the snapshot is usable for pricing
func (t *Tick) Validate() error {
	if t.Bid.IsZero() || t.Ask.IsZero() || t.Ask.LessThan(t.Bid) {
		return ErrInvalidTick
	}
	return nil
}

// Mid returns the midpoint price
func (t *Tick) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// Spread returns the bid/ask spread
func (t *Tick) Spread() decimal.Decimal {
	return t.Ask.Sub(t.Bid)
}

// CheckAge returns ErrStaleTick when the snapshot is older than maxAge
func (t *Tick) CheckAge(now time.Time, maxAge time.Duration) error {
	if maxAge > 0 && now.Sub(t.LastUpdated) > maxAge {
		return ErrStaleTick
	}
	return nil
}
