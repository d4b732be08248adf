// Package portfolio reconciles order events into per-currency cash
// balances so the engine's book can be checked against the exchange's.
package portfolio

import (
	"sync"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/jhonabreul/krakenbrokerage/currency"
	"github.com/jhonabreul/krakenbrokerage/exchanges/account"
	"github.com/jhonabreul/krakenbrokerage/exchanges/order"
)

// ErrEventAlreadyApplied is returned when an event id has already been
// booked; balances are unchanged
var ErrEventAlreadyApplied = errors.New("event already applied")

// CashBook tracks cash balances per currency. Fill events are applied at
// most once by event id, so a replayed feed cannot double-book a trade.
type CashBook struct {
	mtx      sync.Mutex
	balances map[currency.Code]decimal.Decimal
	applied  map[uuid.UUID]struct{}
}

// NewCashBook returns an empty cash book
func NewCashBook() *CashBook {
	return &CashBook{
		balances: make(map[currency.Code]decimal.Decimal),
		applied:  make(map[uuid.UUID]struct{}),
	}
}

// Seed sets the opening balance for a currency, replacing any prior value
func (c *CashBook) Seed(code currency.Code, amount decimal.Decimal) {
	c.mtx.Lock()
	c.balances[code] = amount
	c.mtx.Unlock()
}

// SeedFromBalances sets opening balances from an exchange snapshot
func (c *CashBook) SeedFromBalances(balances []account.Balance) {
	c.mtx.Lock()
	for _, b := range balances {
		c.balances[b.Currency] = b.Total
	}
	c.mtx.Unlock()
}

// Apply books one fill event: the base currency moves by the signed fill
// quantity, the quote currency by the opposing notional, and the fee is
// deducted from its currency. Non-fill events book nothing but are still
// recorded so replays stay idempotent.
func (c *CashBook) Apply(e order.Event) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if _, ok := c.applied[e.ID]; ok {
		return errors.Wrapf(ErrEventAlreadyApplied, "event %s for order %s", e.ID, e.OrderID)
	}
	c.applied[e.ID] = struct{}{}

	if e.FillQuantity.IsZero() {
		return nil
	}
	if e.Pair.IsEmpty() {
		return errors.Errorf("fill event %s for order %s has no pair", e.ID, e.OrderID)
	}

	quantity := e.FillQuantity.Abs()
	if e.Side == order.Sell {
		quantity = quantity.Neg()
	}
	notional := quantity.Mul(e.FillPrice)

	c.add(e.Pair.Base, quantity)
	c.add(e.Pair.Quote, notional.Neg())
	if !e.Fee.IsZero() {
		feeCurrency := e.FeeCurrency
		if feeCurrency.IsEmpty() {
			feeCurrency = e.Pair.Quote
		}
		c.add(feeCurrency, e.Fee.Neg())
	}
	return nil
}

func (c *CashBook) add(code currency.Code, amount decimal.Decimal) {
	c.balances[code] = c.balances[code].Add(amount)
}

// Balance returns the tracked balance for a currency; absent currencies
// are zero
func (c *CashBook) Balance(code currency.Code) decimal.Decimal {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.balances[code]
}

// Balances returns a copy of all tracked balances
func (c *CashBook) Balances() map[currency.Code]decimal.Decimal {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	out := make(map[currency.Code]decimal.Decimal, len(c.balances))
	for code, amount := range c.balances {
		out[code] = amount
	}
	return out
}

// Drift compares the book against an exchange snapshot and returns the
// per-currency difference, exchange total minus booked balance. Currencies
// matching exactly are omitted.
func (c *CashBook) Drift(snapshot []account.Balance) map[currency.Code]decimal.Decimal {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	drift := make(map[currency.Code]decimal.Decimal)
	seen := make(map[currency.Code]struct{}, len(snapshot))
	for _, b := range snapshot {
		seen[b.Currency] = struct{}{}
		if diff := b.Total.Sub(c.balances[b.Currency]); !diff.IsZero() {
			drift[b.Currency] = diff
		}
	}
	for code, amount := range c.balances {
		if _, ok := seen[code]; !ok && !amount.IsZero() {
			drift[code] = amount.Neg()
		}
	}
	return drift
}
