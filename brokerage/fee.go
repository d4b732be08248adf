package brokerage

import (
	"github.com/shopspring/decimal"

	"github.com/jhonabreul/krakenbrokerage/currency"
)

// Liquidity distinguishes maker from taker fills
type Liquidity int

// Liquidity kinds
const (
	Taker Liquidity = iota
	Maker
)

// feeTier is one row of the published volume schedule. Rates are fractions,
// not percentages.
type feeTier struct {
	volume decimal.Decimal // minimum 30-day USD volume for the tier
	maker  decimal.Decimal
	taker  decimal.Decimal
}

// FeeSchedule computes fees from the exchange's published maker/taker
// schedule for a fixed 30-day volume. It is used identically for live fill
// processing and replay so both produce the same cash effects.
type FeeSchedule struct {
	volume30d decimal.Decimal
	tiers     []feeTier
}

func tier(volume, maker, taker string) feeTier {
	return feeTier{
		volume: decimal.RequireFromString(volume),
		maker:  decimal.RequireFromString(maker),
		taker:  decimal.RequireFromString(taker),
	}
}

// spotFeeTiers is Kraken's published spot schedule, ascending by volume
var spotFeeTiers = []feeTier{
	tier("0", "0.0016", "0.0026"),
	tier("50000", "0.0014", "0.0024"),
	tier("100000", "0.0012", "0.0022"),
	tier("250000", "0.0010", "0.0020"),
	tier("500000", "0.0008", "0.0018"),
	tier("1000000", "0.0006", "0.0016"),
	tier("2500000", "0.0004", "0.0014"),
	tier("5000000", "0.0002", "0.0012"),
	tier("10000000", "0", "0.0010"),
}

// NewFeeSchedule returns a schedule for an account with the given 30-day
// USD volume
func NewFeeSchedule(volume30d decimal.Decimal) *FeeSchedule {
	return &FeeSchedule{volume30d: volume30d, tiers: spotFeeTiers}
}

// Rate returns the fee fraction for the liquidity kind at the schedule's
// volume tier
func (f *FeeSchedule) Rate(liquidity Liquidity) decimal.Decimal {
	selected := f.tiers[0]
	for _, t := range f.tiers[1:] {
		if f.volume30d.LessThan(t.volume) {
			break
		}
		selected = t
	}
	if liquidity == Maker {
		return selected.maker
	}
	return selected.taker
}

// ComputeFee returns the fee charged for a fill, denominated in the pair's
// quote currency. Pure function of its inputs.
func (f *FeeSchedule) ComputeFee(pair currency.Pair, fillPrice, fillQuantity decimal.Decimal, liquidity Liquidity) (currency.Code, decimal.Decimal) {
	notional := fillPrice.Mul(fillQuantity.Abs())
	return pair.Quote, notional.Mul(f.Rate(liquidity))
}
