package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhonabreul/krakenbrokerage/currency"
	"github.com/jhonabreul/krakenbrokerage/exchanges/account"
	"github.com/jhonabreul/krakenbrokerage/exchanges/order"
)

var xbtusd = currency.NewPair(currency.XBT, currency.USD)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fillEvent(side order.Side, quantity, price, fee string) order.Event {
	e := order.NewEvent("OU22CG-KLAF2-FWUDD7", xbtusd, order.Filled, side)
	e.FillQuantity = d(quantity)
	e.FillPrice = d(price)
	e.Fee = d(fee)
	e.FeeCurrency = currency.USD
	return e
}

func TestApplyBuyFill(t *testing.T) {
	t.Parallel()
	book := NewCashBook()
	book.Seed(currency.USD, d("1000"))

	require.NoError(t, book.Apply(fillEvent(order.Buy, "0.004", "52609.60", "0.54714")))

	assert.Equal(t, "0.004", book.Balance(currency.XBT).String(), "the base leg should credit")
	// 1000 - 210.4384 notional - 0.54714 fee
	assert.Equal(t, "789.01446", book.Balance(currency.USD).String(), "the quote leg should debit notional plus fee")
}

func TestApplySellFill(t *testing.T) {
	t.Parallel()
	book := NewCashBook()
	book.Seed(currency.XBT, d("1"))

	require.NoError(t, book.Apply(fillEvent(order.Sell, "0.5", "52000", "67.6")))

	assert.Equal(t, "0.5", book.Balance(currency.XBT).String(), "the base leg should debit")
	assert.Equal(t, "25932.4", book.Balance(currency.USD).String(), "the quote leg should credit net of fee")
}

func TestApplyRoundTripNetsToFees(t *testing.T) {
	t.Parallel()
	book := NewCashBook()
	book.Seed(currency.USD, d("1000"))

	require.NoError(t, book.Apply(fillEvent(order.Buy, "0.004", "52609.60", "0.54714")))
	require.NoError(t, book.Apply(fillEvent(order.Sell, "0.004", "52609.60", "0.54714")))

	assert.True(t, book.Balance(currency.XBT).IsZero(), "a full round trip should leave no base position")
	assert.Equal(t, "998.90572", book.Balance(currency.USD).String(),
		"a round trip at one price should cost exactly the two fees")
}

func TestApplyIsIdempotentPerEvent(t *testing.T) {
	t.Parallel()
	book := NewCashBook()
	book.Seed(currency.USD, d("1000"))

	event := fillEvent(order.Buy, "0.004", "52609.60", "0.54714")
	require.NoError(t, book.Apply(event))
	err := book.Apply(event)
	assert.ErrorIs(t, err, ErrEventAlreadyApplied, "a replayed event must be refused")
	assert.Equal(t, "789.01446", book.Balance(currency.USD).String(), "balances must be unchanged by the replay")
}

func TestApplyNonFillEventsBookNothing(t *testing.T) {
	t.Parallel()
	book := NewCashBook()
	book.Seed(currency.USD, d("1000"))

	ack := order.NewEvent("OU22CG-KLAF2-FWUDD7", xbtusd, order.Submitted, order.Buy)
	cancelled := order.NewEvent("OU22CG-KLAF2-FWUDD7", xbtusd, order.Cancelled, order.Buy)
	require.NoError(t, book.Apply(ack))
	require.NoError(t, book.Apply(cancelled))
	assert.Equal(t, "1000", book.Balance(currency.USD).String(),
		"placing then cancelling an order leaves the book untouched")

	err := book.Apply(ack)
	assert.ErrorIs(t, err, ErrEventAlreadyApplied, "lifecycle events still dedupe by id")
}

func TestSeedFromBalances(t *testing.T) {
	t.Parallel()
	book := NewCashBook()
	book.SeedFromBalances([]account.Balance{
		{Currency: currency.USD, Total: d("1000")},
		{Currency: currency.XBT, Total: d("0.25")},
	})

	assert.Equal(t, "1000", book.Balance(currency.USD).String())
	assert.Equal(t, "0.25", book.Balance(currency.XBT).String())
	assert.True(t, book.Balance(currency.ETH).IsZero(), "unseeded currencies read as zero")
}

func TestDrift(t *testing.T) {
	t.Parallel()
	book := NewCashBook()
	book.Seed(currency.USD, d("1000"))
	book.Seed(currency.XBT, d("0.004"))

	drift := book.Drift([]account.Balance{
		{Currency: currency.USD, Total: d("1000")},
		{Currency: currency.XBT, Total: d("0.005")},
		{Currency: currency.ETH, Total: d("2")},
	})

	assert.NotContains(t, drift, currency.USD, "matching balances are omitted")
	assert.Equal(t, "0.001", drift[currency.XBT].String(), "exchange surplus reports positive")
	assert.Equal(t, "2", drift[currency.ETH].String(), "untracked exchange assets report in full")

	book.Seed(currency.EUR, d("50"))
	drift = book.Drift(nil)
	assert.Equal(t, "-50", drift[currency.EUR].String(), "booked cash missing on the exchange reports negative")
}
