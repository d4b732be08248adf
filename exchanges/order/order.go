// Package order defines the normalized order model the brokerage emits to
// the trading engine, independent of exchange-native encodings.
package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhonabreul/krakenbrokerage/currency"
)

// Side is the direction of an order
type Side string

// Order sides
const (
	Buy         Side = "BUY"
	Sell        Side = "SELL"
	UnknownSide Side = "UNKNOWN"
)

// Type is the execution style of an order
type Type string

// Order types
const (
	Market         Type = "MARKET"
	Limit          Type = "LIMIT"
	StopMarket     Type = "STOP MARKET"
	StopLimit      Type = "STOP LIMIT"
	LimitIfTouched Type = "LIMIT IF TOUCHED"
	UnknownType    Type = "UNKNOWN"
)

// Status is the lifecycle state of an order
type Status string

// Order statuses. Lifecycle: New -> Submitted -> {PartiallyFilled -> Filled
// | Filled | Cancelled | Invalid}.
const (
	New             Status = "NEW"
	Submitted       Status = "SUBMITTED"
	PartiallyFilled Status = "PARTIALLY FILLED"
	Filled          Status = "FILLED"
	Cancelled       Status = "CANCELLED"
	Invalid         Status = "INVALID"
	UnknownStatus   Status = "UNKNOWN"
)

var (
	// ErrSideIsInvalid occurs when the order side cannot be recognised
	ErrSideIsInvalid = errors.New("order side is invalid")
	// ErrTypeIsInvalid occurs when the order type cannot be recognised
	ErrTypeIsInvalid = errors.New("order type is invalid")
	// ErrUnrecognisedStatus occurs when an exchange status string has no
	// mapping; callers must fail closed to Invalid, never drop the event
	ErrUnrecognisedStatus = errors.New("unrecognised order status")
	// ErrPairIsEmpty occurs when a submission has no trading pair
	ErrPairIsEmpty = errors.New("order pair is empty")
	// ErrAmountIsInvalid occurs when a submission quantity is zero
	ErrAmountIsInvalid = errors.New("order amount is invalid")
	// ErrAmountBelowMinimum occurs when quantity is under the exchange's
	// published minimum for the base asset
	ErrAmountBelowMinimum = errors.New("order amount below exchange minimum")
	// ErrPriceMustBeSetIfLimitOrder occurs on priceless limit submissions
	ErrPriceMustBeSetIfLimitOrder = errors.New("limit price must be set")
	// ErrTriggerPriceMustBeSet occurs on stop submissions with no trigger
	ErrTriggerPriceMustBeSet = errors.New("trigger price must be set")
)

// StringToOrderSide parses an exchange side string
func StringToOrderSide(s string) (Side, error) {
	switch strings.ToUpper(s) {
	case "BUY", "BID":
		return Buy, nil
	case "SELL", "ASK":
		return Sell, nil
	}
	return UnknownSide, fmt.Errorf("%q: %w", s, ErrSideIsInvalid)
}

// StringToOrderType parses a Kraken ordertype string
func StringToOrderType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "market":
		return Market, nil
	case "limit":
		return Limit, nil
	case "stop-loss", "stop market":
		return StopMarket, nil
	case "stop-loss-limit", "stop limit":
		return StopLimit, nil
	case "take-profit-limit", "limit if touched":
		return LimitIfTouched, nil
	}
	return UnknownType, fmt.Errorf("%q: %w", s, ErrTypeIsInvalid)
}

// StringToOrderStatus parses a Kraken order status string. Unknown statuses
// return UnknownStatus with an error so downstream marks the order Invalid.
func StringToOrderStatus(s string) (Status, error) {
	switch strings.ToLower(s) {
	case "pending":
		return New, nil
	case "open":
		return Submitted, nil
	case "closed":
		return Filled, nil
	case "canceled", "cancelled", "expired":
		return Cancelled, nil
	}
	return UnknownStatus, fmt.Errorf("%q: %w", s, ErrUnrecognisedStatus)
}

// IsTerminal returns whether the status ends an order's lifecycle
func (s Status) IsTerminal() bool {
	return s == Filled || s == Cancelled || s == Invalid
}

// SupportsAmend returns whether in-place modification is valid for the type
func (t Type) SupportsAmend() bool {
	return t != Market && t != UnknownType
}

// minimumOrderSizes holds Kraken's published per-asset order minimums.
// Prone to change.
var minimumOrderSizes = map[currency.Code]decimal.Decimal{
	currency.XBT:  decimal.RequireFromString("0.0001"),
	currency.ETH:  decimal.RequireFromString("0.002"),
	currency.USDT: decimal.RequireFromString("5"),
}

// defaultMinimumOrderSize covers assets without a published entry
var defaultMinimumOrderSize = decimal.RequireFromString("0.00001")

// MinimumOrderSize returns the exchange minimum for the base asset
func MinimumOrderSize(base currency.Code) decimal.Decimal {
	if minimum, ok := minimumOrderSizes[base]; ok {
		return minimum
	}
	return defaultMinimumOrderSize
}

// Submit is an order submission. Quantity is signed: positive buys,
// negative sells.
type Submit struct {
	Pair         currency.Pair
	Type         Type
	Quantity     decimal.Decimal
	LimitPrice   decimal.Decimal
	TriggerPrice decimal.Decimal
	TimeInForce  string
	PostOnly     bool
}

// Side derives the direction from the signed quantity
func (s *Submit) Side() Side {
	if s.Quantity.IsNegative() {
		return Sell
	}
	return Buy
}

// AbsQuantity returns the unsigned quantity
func (s *Submit) AbsQuantity() decimal.Decimal {
	return s.Quantity.Abs()
}

// Validate checks the submission locally before any network call
func (s *Submit) Validate() error {
	if s.Pair.IsEmpty() {
		return ErrPairIsEmpty
	}
	if s.Quantity.IsZero() {
		return ErrAmountIsInvalid
	}
	if s.AbsQuantity().LessThan(MinimumOrderSize(s.Pair.Base)) {
		return fmt.Errorf("%w: %s %s < %s", ErrAmountBelowMinimum,
			s.AbsQuantity(), s.Pair.Base, MinimumOrderSize(s.Pair.Base))
	}
	switch s.Type {
	case Market:
	case Limit:
		if s.LimitPrice.IsZero() {
			return ErrPriceMustBeSetIfLimitOrder
		}
	case StopMarket:
		if s.TriggerPrice.IsZero() {
			return ErrTriggerPriceMustBeSet
		}
	case StopLimit, LimitIfTouched:
		if s.TriggerPrice.IsZero() {
			return ErrTriggerPriceMustBeSet
		}
		if s.LimitPrice.IsZero() {
			return ErrPriceMustBeSetIfLimitOrder
		}
	default:
		return fmt.Errorf("%q: %w", s.Type, ErrTypeIsInvalid)
	}
	return nil
}

// Event is an immutable record of a single order status transition,
// delivered at most once per ID to downstream reconciliation.
type Event struct {
	ID           uuid.UUID
	OrderID      string
	Pair         currency.Pair
	Timestamp    time.Time
	Status       Status
	Side         Side
	FillPrice    decimal.Decimal
	FillQuantity decimal.Decimal
	Fee          decimal.Decimal
	FeeCurrency  currency.Code
}

// NewEvent assigns a fresh event ID for a status transition
func NewEvent(orderID string, pair currency.Pair, status Status, side Side) Event {
	id, _ := uuid.NewV4()
	return Event{
		ID:        id,
		OrderID:   orderID,
		Pair:      pair,
		Timestamp: time.Now().UTC(),
		Status:    status,
		Side:      side,
	}
}
