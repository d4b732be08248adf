package kraken

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jhonabreul/krakenbrokerage/encoding/json"
	"github.com/jhonabreul/krakenbrokerage/exchanges/request"
	"github.com/jhonabreul/krakenbrokerage/types"
)

// Errors mapped from the exchange's response envelope
var (
	// ErrRejectedOrder is returned when the exchange declines an order,
	// e.g. insufficient funds or an invalid price
	ErrRejectedOrder = errors.New("order rejected by exchange")
	// ErrAuthFailed is returned when supplied credentials are refused;
	// the session must not continue unauthenticated
	ErrAuthFailed = errors.New("authentication failed")
	// ErrUnknownOrder is returned when the referenced order id does not
	// exist or is already terminal
	ErrUnknownOrder = errors.New("unknown order")
)

// apiError is Kraken's error array: "E"-prefixed entries are errors,
// "W"-prefixed entries warnings.
type apiError []string

// Errors converts the classified error entries into a Go error
func (e apiError) Errors() error {
	var errs error
	for _, entry := range e {
		if !strings.HasPrefix(entry, "E") {
			continue
		}
		switch {
		case strings.HasPrefix(entry, "EOrder:Unknown order"):
			errs = errors.Join(errs, fmt.Errorf("%w: %s", ErrUnknownOrder, entry))
		case strings.HasPrefix(entry, "EOrder:"):
			errs = errors.Join(errs, fmt.Errorf("%w: %s", ErrRejectedOrder, entry))
		case strings.HasPrefix(entry, "EAPI:Invalid key"),
			strings.HasPrefix(entry, "EAPI:Invalid signature"),
			strings.HasPrefix(entry, "EGeneral:Permission denied"):
			errs = errors.Join(errs, fmt.Errorf("%w: %s", ErrAuthFailed, entry))
		case strings.HasPrefix(entry, "EAPI:Rate limit exceeded"),
			strings.HasPrefix(entry, "EOrder:Rate limit exceeded"):
			errs = errors.Join(errs, fmt.Errorf("%w: %s", request.ErrRateLimited, entry))
		default:
			errs = errors.Join(errs, errors.New(entry))
		}
	}
	return errs
}

// Warnings returns the warning entries joined for logging
func (e apiError) Warnings() string {
	var warnings []string
	for _, entry := range e {
		if strings.HasPrefix(entry, "W") {
			warnings = append(warnings, entry)
		}
	}
	return strings.Join(warnings, ", ")
}

// envelopeThrottled reports throttling that Kraken delivers inside a 200
// response envelope, so the transport retries it on its normal budget.
// Anything else in the envelope is left for the full decode.
func envelopeThrottled(body []byte) error {
	var envelope struct {
		Error apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	if err := envelope.Error.Errors(); errors.Is(err, request.ErrRateLimited) {
		return err
	}
	return nil
}

// genericRESTResponse is the envelope wrapping every spot REST response
type genericRESTResponse struct {
	Error  apiError `json:"error"`
	Result any      `json:"result"`
}

// TimeResponse represents the server time
type TimeResponse struct {
	Unixtime int64  `json:"unixtime"`
	Rfc1123  string `json:"rfc1123"`
}

// SystemStatusResponse defines the current system status
type SystemStatusResponse struct {
	Status    string `json:"status"` // online, maintenance, cancel_only, post_only
	Timestamp string `json:"timestamp"`
}

// TickerResponse holds the raw ticker data as returned by the exchange.
// Array fields are [price, wholeLotVolume, lotVolume] triplets.
type TickerResponse struct {
	Ask    [3]types.Number `json:"a"`
	Bid    [3]types.Number `json:"b"`
	Last   [2]types.Number `json:"c"`
	Volume [2]types.Number `json:"v"`
	Low    [2]types.Number `json:"l"`
	High   [2]types.Number `json:"h"`
	Open   types.Number    `json:"o"`
}

// Ticker is the decoded ticker snapshot
type Ticker struct {
	Ask    float64
	Bid    float64
	Last   float64
	Volume float64
	Low    float64
	High   float64
	Open   float64
}

// Balance represents an account asset balance
type Balance struct {
	Total types.Number `json:"balance"`
	Hold  types.Number `json:"hold_trade"`
}

// TradeBalanceOptions are optional parameters for GetTradeBalance
type TradeBalanceOptions struct {
	Asset string // valuation asset, default ZUSD
}

// TradeBalanceInfo holds margin account valuations
type TradeBalanceInfo struct {
	EquivalentBalance float64 `json:"eb,string"` // combined balance of all currencies
	TradeBalance      float64 `json:"tb,string"` // combined balance of all equity currencies
	MarginAmount      float64 `json:"m,string"`  // margin amount of open positions
	Net               float64 `json:"n,string"`  // unrealized net profit/loss of open positions
	CostBasis         float64 `json:"c,string"`
	FloatingValuation float64 `json:"v,string"`
	Equity            float64 `json:"e,string"`
	FreeMargin        float64 `json:"mf,string"`
}

// OrderDescription describes an order's terms
type OrderDescription struct {
	Pair      string       `json:"pair"`
	Type      string       `json:"type"`
	OrderType string       `json:"ordertype"`
	Price     types.Number `json:"price"`
	Price2    types.Number `json:"price2"`
	Leverage  string       `json:"leverage"`
	Order     string       `json:"order"`
	Close     string       `json:"close"`
}

// OrderInfo is the exchange's view of one order
type OrderInfo struct {
	RefID          string           `json:"refid"`
	UserRef        int32            `json:"userref"`
	Status         string           `json:"status"`
	Reason         string           `json:"reason,omitempty"`
	OpenTime       types.Time       `json:"opentm"`
	CloseTime      types.Time       `json:"closetm"`
	Description    OrderDescription `json:"descr"`
	Volume         types.Number     `json:"vol"`
	VolumeExecuted types.Number     `json:"vol_exec"`
	Cost           types.Number     `json:"cost"`
	Fee            types.Number     `json:"fee"`
	Price          types.Number     `json:"price"`
	StopPrice      types.Number     `json:"stopprice"`
	LimitPrice     types.Number     `json:"limitprice"`
	Misc           string           `json:"misc"`
	OrderFlags     string           `json:"oflags"`
	Trades         []string         `json:"trades"`
}

// OrderInfoOptions are optional parameters for QueryOrdersInfo
type OrderInfoOptions struct {
	Trades  bool
	UserRef int32
}

// Position holds one opened margin position
type Position struct {
	OrderTxID    string       `json:"ordertxid"`
	Pair         string       `json:"pair"`
	Time         types.Time   `json:"time"`
	Type         string       `json:"type"`
	OrderType    string       `json:"ordertype"`
	Cost         types.Number `json:"cost"`
	Fee          types.Number `json:"fee"`
	Volume       types.Number `json:"vol"`
	VolumeClosed types.Number `json:"vol_closed"`
	Margin       types.Number `json:"margin"`
	Value        types.Number `json:"value,omitempty"`
	Misc         string       `json:"misc"`
	OrderFlags   string       `json:"oflags"`
}

// TradeVolumeResponse holds the account's 30-day volume and fee tiers
type TradeVolumeResponse struct {
	Currency  string                    `json:"currency"`
	Volume    types.Number              `json:"volume"`
	Fees      map[string]TradeVolumeFee `json:"fees"`
	FeesMaker map[string]TradeVolumeFee `json:"fees_maker"`
}

// TradeVolumeFee is one pair's fee tier information
type TradeVolumeFee struct {
	Fee        types.Number `json:"fee"`
	MinFee     types.Number `json:"minfee"`
	MaxFee     types.Number `json:"maxfee"`
	NextFee    types.Number `json:"nextfee"`
	NextVolume types.Number `json:"nextvolume"`
	TierVolume types.Number `json:"tiervolume"`
}

// AddOrderOptions represents the optional AddOrder parameters
type AddOrderOptions struct {
	UserRef     int32
	OrderFlags  string // maps to 'oflags'
	StartTm     string
	ExpireTm    string
	Validate    bool // validate only, do not submit
	TimeInForce string
	PostOnly    bool
}

// AddOrderResponse is returned from AddOrder
type AddOrderResponse struct {
	Description    OrderDescription `json:"descr"`
	TransactionIDs []string         `json:"txid"`
}

// AmendOrderOptions represents the AmendOrder parameters
type AmendOrderOptions struct {
	TxID         string
	Quantity     string // maps to 'order_qty'
	LimitPrice   string // maps to 'limit_price'
	TriggerPrice string // maps to 'trigger_price'
	PostOnly     bool
}

// AmendOrderResponse is returned from AmendOrder
type AmendOrderResponse struct {
	AmendID string `json:"amend_id"`
}

// CancelOrderResponse is returned from CancelOrder
type CancelOrderResponse struct {
	Count   int64 `json:"count"`
	Pending any   `json:"pending"`
}

// webSocketTokenResponse is returned from GetWebsocketsToken
type webSocketTokenResponse struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}
