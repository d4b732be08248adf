package brokerage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/jhonabreul/krakenbrokerage/currency"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFeeScheduleRate(t *testing.T) {
	t.Parallel()
	for _, tt := range []struct {
		volume string
		maker  string
		taker  string
	}{
		{"0", "0.0016", "0.0026"},
		{"49999.99", "0.0016", "0.0026"},
		{"50000", "0.0014", "0.0024"},
		{"250000", "0.001", "0.002"},
		{"999999", "0.0008", "0.0018"},
		{"10000000", "0", "0.001"},
		{"99999999", "0", "0.001"},
	} {
		tt := tt
		t.Run(tt.volume, func(t *testing.T) {
			t.Parallel()
			fees := NewFeeSchedule(d(tt.volume))
			assert.Equal(t, tt.maker, fees.Rate(Maker).String(), "maker rate for volume %s", tt.volume)
			assert.Equal(t, tt.taker, fees.Rate(Taker).String(), "taker rate for volume %s", tt.volume)
		})
	}
}

func TestComputeFee(t *testing.T) {
	t.Parallel()
	fees := NewFeeSchedule(decimal.Zero)
	pair := currency.NewPair(currency.XBT, currency.USD)

	// 0.004 XBT taken at 52609.60 is a 210.4384 USD notional
	code, amount := fees.ComputeFee(pair, d("52609.60"), d("0.004"), Taker)
	assert.Equal(t, currency.USD, code, "fees are charged in the quote currency")
	assert.Equal(t, "0.54713984", amount.String(), "taker fee is 26 bps of notional at the base tier")

	_, amount = fees.ComputeFee(pair, d("52609.60"), d("0.004"), Maker)
	assert.Equal(t, "0.33670144", amount.String(), "maker fee is 16 bps of notional at the base tier")
}

func TestComputeFeeIgnoresQuantitySign(t *testing.T) {
	t.Parallel()
	fees := NewFeeSchedule(decimal.Zero)
	pair := currency.NewPair(currency.XBT, currency.USD)

	_, buy := fees.ComputeFee(pair, d("50000"), d("0.01"), Taker)
	_, sell := fees.ComputeFee(pair, d("50000"), d("-0.01"), Taker)
	assert.True(t, buy.Equal(sell), "fee magnitude is direction independent")
	assert.True(t, buy.IsPositive(), "fees are always charged, never credited")
}
