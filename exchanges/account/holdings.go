package account

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhonabreul/krakenbrokerage/currency"
	"github.com/jhonabreul/krakenbrokerage/exchanges/order"
)

// Position is one open position reported by the exchange
type Position struct {
	OrderID      string
	Pair         currency.Pair
	Side         order.Side
	Quantity     decimal.Decimal
	AveragePrice decimal.Decimal
	Cost         decimal.Decimal
	Fee          decimal.Decimal
	Leverage     decimal.Decimal
	OpenedAt     time.Time
}

// Holdings is the set of open positions for an account
type Holdings struct {
	Positions []Position
	FetchedAt time.Time
}

// Balance is a single asset balance
type Balance struct {
	Currency currency.Code
	Total    decimal.Decimal
	Hold     decimal.Decimal
}

// Free returns the balance available for trading
func (b Balance) Free() decimal.Decimal {
	return b.Total.Sub(b.Hold)
}
