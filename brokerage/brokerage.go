// Package brokerage connects a trading engine to Kraken: it places and
// manages orders over REST, consumes the private websocket feed, and
// translates exchange updates into a normalized order event stream.
package brokerage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jhonabreul/krakenbrokerage/currency"
	"github.com/jhonabreul/krakenbrokerage/exchanges/account"
	"github.com/jhonabreul/krakenbrokerage/exchanges/kraken"
	"github.com/jhonabreul/krakenbrokerage/exchanges/order"
	"github.com/jhonabreul/krakenbrokerage/exchanges/ticker"
)

var (
	// ErrNotSupported is returned for operations the exchange cannot
	// perform, such as amending a market order
	ErrNotSupported = errors.New("operation not supported")
	// ErrOrderPending is returned when an order has not reached a terminal
	// state within the caller's deadline
	ErrOrderPending = errors.New("order still pending")

	errNoTransactionID = errors.New("exchange returned no transaction id")
	errClientUnset     = errors.New("exchange client must be set")
	errSinkUnset       = errors.New("order sink must be set")
)

// ExchangeClient is the slice of the REST client the brokerage drives
type ExchangeClient interface {
	GetTicker(ctx context.Context, pair currency.Pair) (*kraken.Ticker, error)
	GetAccountBalance(ctx context.Context) (map[string]kraken.Balance, error)
	OpenPositions(ctx context.Context, docalcs bool) (map[string]kraken.Position, error)
	GetTradeVolume(ctx context.Context, feeinfo bool, pairs ...currency.Pair) (*kraken.TradeVolumeResponse, error)
	AddOrder(ctx context.Context, pair currency.Pair, side, orderType string, volume, price, price2 float64, args *kraken.AddOrderOptions) (*kraken.AddOrderResponse, error)
	AmendOrder(ctx context.Context, opts kraken.AmendOrderOptions) (*kraken.AmendOrderResponse, error)
	CancelExistingOrder(ctx context.Context, txid string) (*kraken.CancelOrderResponse, error)
	Translator() *currency.Translator
}

// OrderSink receives the normalized order event stream. Implementations
// must not block; slow consumers stall feed processing.
type OrderSink interface {
	OnOrderEvent(order.Event)
}

// UpdateFeed delivers decoded private websocket updates
type UpdateFeed interface {
	Data() <-chan any
}

// Options configures a Brokerage. Client and Sink are required.
type Options struct {
	Client   ExchangeClient
	Feed     UpdateFeed
	Sink     OrderSink
	Fees     *FeeSchedule
	Leverage int
	Logger   *zap.Logger
}

// Brokerage is the connector facade
type Brokerage struct {
	client   ExchangeClient
	feed     UpdateFeed
	sink     OrderSink
	orders   *Translator
	names    *currency.Translator
	leverage int
	log      *zap.Logger

	feesMtx sync.RWMutex
	fees    *FeeSchedule
}

// New returns a Brokerage from explicit options; it holds no process-global
// state
func New(opts Options) (*Brokerage, error) {
	if opts.Client == nil {
		return nil, errClientUnset
	}
	if opts.Sink == nil {
		return nil, errSinkUnset
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Fees == nil {
		opts.Fees = NewFeeSchedule(decimal.Zero)
	}
	if opts.Leverage < 1 {
		opts.Leverage = 1
	}
	return &Brokerage{
		client:   opts.Client,
		feed:     opts.Feed,
		sink:     opts.Sink,
		fees:     opts.Fees,
		orders:   NewTranslator(opts.Logger),
		names:    opts.Client.Translator(),
		leverage: opts.Leverage,
		log:      opts.Logger.Named("brokerage"),
	}, nil
}

// Fees exposes the fee schedule in use
func (b *Brokerage) Fees() *FeeSchedule {
	b.feesMtx.RLock()
	defer b.feesMtx.RUnlock()
	return b.fees
}

// Run consumes the private feed until the context is cancelled or the feed
// closes, emitting translated events to the sink.
func (b *Brokerage) Run(ctx context.Context) error {
	if b.feed == nil {
		return fmt.Errorf("%w: no update feed configured", ErrNotSupported)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-b.feed.Data():
			if !ok {
				return nil
			}
			b.dispatch(update)
		}
	}
}

func (b *Brokerage) dispatch(update any) {
	switch u := update.(type) {
	case *kraken.OwnTradeUpdate:
		b.emit(b.orders.TranslateTrade(u))
	case *kraken.OpenOrderUpdate:
		b.emit(b.orders.TranslateOrder(u))
	default:
		b.log.Warn("unhandled feed update", zap.Any("update", update))
	}
}

func (b *Brokerage) emit(events []order.Event) {
	for i := range events {
		b.sink.OnOrderEvent(events[i])
	}
}

// orderTypeToExchange maps the normalized order type onto Kraken's
// ordertype parameter
func orderTypeToExchange(t order.Type) (string, error) {
	switch t {
	case order.Market:
		return "market", nil
	case order.Limit:
		return "limit", nil
	case order.StopMarket:
		return "stop-loss", nil
	case order.StopLimit:
		return "stop-loss-limit", nil
	case order.LimitIfTouched:
		return "take-profit-limit", nil
	}
	return "", fmt.Errorf("%q: %w", t, order.ErrTypeIsInvalid)
}

// orderPrices maps the normalized prices onto Kraken's price/price2
// parameters. Triggered limit types carry the trigger in price and the
// limit in price2.
func orderPrices(s *order.Submit) (price, price2 float64) {
	switch s.Type {
	case order.Limit:
		price = s.LimitPrice.InexactFloat64()
	case order.StopMarket:
		price = s.TriggerPrice.InexactFloat64()
	case order.StopLimit, order.LimitIfTouched:
		price = s.TriggerPrice.InexactFloat64()
		price2 = s.LimitPrice.InexactFloat64()
	}
	return price, price2
}

// PlaceOrder validates and submits an order, returning the exchange
// transaction id. The Submitted event is emitted on acceptance; fills and
// terminal transitions follow over the feed.
func (b *Brokerage) PlaceOrder(ctx context.Context, submit order.Submit) (string, error) {
	if err := submit.Validate(); err != nil {
		return "", err
	}
	orderType, err := orderTypeToExchange(submit.Type)
	if err != nil {
		return "", err
	}
	price, price2 := orderPrices(&submit)

	args := &kraken.AddOrderOptions{
		TimeInForce: submit.TimeInForce,
		PostOnly:    submit.PostOnly,
	}
	resp, err := b.client.AddOrder(ctx, submit.Pair,
		string(submit.Side()), orderType, submit.AbsQuantity().InexactFloat64(),
		price, price2, args)
	if err != nil {
		if errors.Is(err, kraken.ErrRejectedOrder) {
			event := order.NewEvent("", submit.Pair, order.Invalid, submit.Side())
			b.sink.OnOrderEvent(event)
		}
		return "", err
	}
	if len(resp.TransactionIDs) == 0 {
		return "", errNoTransactionID
	}

	orderID := resp.TransactionIDs[0]
	b.emit(b.orders.Track(orderID, submit))
	b.emit(b.orders.Acknowledge(orderID))
	b.log.Info("order placed",
		zap.String("order_id", orderID),
		zap.String("pair", submit.Pair.String()),
		zap.String("type", string(submit.Type)),
		zap.String("quantity", submit.Quantity.String()))
	return orderID, nil
}

// UpdateParams are the amendable order terms. Zero values leave the
// corresponding term unchanged.
type UpdateParams struct {
	Quantity     decimal.Decimal
	LimitPrice   decimal.Decimal
	TriggerPrice decimal.Decimal
}

// UpdateOrder amends an open order in place. Market orders cannot be
// amended; that is rejected locally without a network call.
func (b *Brokerage) UpdateOrder(ctx context.Context, orderID string, params UpdateParams) error {
	tracked, err := b.orders.Submit(orderID)
	if err != nil {
		return err
	}
	if !tracked.Type.SupportsAmend() {
		return fmt.Errorf("cannot amend a %s order: %w", tracked.Type, ErrNotSupported)
	}

	opts := kraken.AmendOrderOptions{TxID: orderID}
	if !params.Quantity.IsZero() {
		opts.Quantity = params.Quantity.Abs().String()
	}
	if !params.LimitPrice.IsZero() {
		opts.LimitPrice = params.LimitPrice.String()
	}
	if !params.TriggerPrice.IsZero() {
		opts.TriggerPrice = params.TriggerPrice.String()
	}
	if _, err := b.client.AmendOrder(ctx, opts); err != nil {
		return err
	}
	if err := b.orders.Amend(orderID, params.Quantity, params.LimitPrice, params.TriggerPrice); err != nil {
		return err
	}
	b.log.Info("order amended", zap.String("order_id", orderID))
	return nil
}

// CancelOrder requests cancellation. It is idempotent: orders already
// terminal, locally or on the exchange, return false with no error. The
// Cancelled event arrives over the feed, not from this call.
func (b *Brokerage) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if status, ok := b.orders.Status(orderID); ok && status.IsTerminal() {
		return false, nil
	}
	if _, err := b.client.CancelExistingOrder(ctx, orderID); err != nil {
		if errors.Is(err, kraken.ErrUnknownOrder) {
			return false, nil
		}
		return false, err
	}
	b.log.Info("order cancel requested", zap.String("order_id", orderID))
	return true, nil
}

// Await blocks until the order is terminal or the timeout elapses
func (b *Brokerage) Await(orderID string, timeout time.Duration) (order.Status, error) {
	return b.orders.Await(orderID, timeout)
}

// GetTick returns the current quote snapshot for a pair
func (b *Brokerage) GetTick(ctx context.Context, pair currency.Pair) (*ticker.Tick, error) {
	raw, err := b.client.GetTicker(ctx, pair)
	if err != nil {
		return nil, err
	}
	tick := &ticker.Tick{
		Pair:        pair,
		Bid:         decimal.NewFromFloat(raw.Bid),
		Ask:         decimal.NewFromFloat(raw.Ask),
		Last:        decimal.NewFromFloat(raw.Last),
		LastUpdated: time.Now().UTC(),
	}
	if err := tick.Validate(); err != nil {
		return nil, err
	}
	return tick, nil
}

// GetCashBalances returns all asset balances with names translated out of
// Kraken's classic form
func (b *Brokerage) GetCashBalances(ctx context.Context) ([]account.Balance, error) {
	raw, err := b.client.GetAccountBalance(ctx)
	if err != nil {
		return nil, err
	}
	balances := make([]account.Balance, 0, len(raw))
	for asset, balance := range raw {
		balances = append(balances, account.Balance{
			Currency: currency.NewCode(b.names.LookupAltname(asset)),
			Total:    balance.Total.Decimal(),
			Hold:     balance.Hold.Decimal(),
		})
	}
	return balances, nil
}

// GetAccountHoldings returns open positions. At leverage 1 the exchange
// reports no open positions for spot balances, so holdings are empty and
// cash balances alone describe the account.
func (b *Brokerage) GetAccountHoldings(ctx context.Context) (account.Holdings, error) {
	holdings := account.Holdings{FetchedAt: time.Now().UTC()}
	if b.leverage <= 1 {
		return holdings, nil
	}

	positions, err := b.client.OpenPositions(ctx, true)
	if err != nil {
		return holdings, err
	}
	for id, p := range positions {
		side, err := order.StringToOrderSide(p.Type)
		if err != nil {
			return account.Holdings{}, fmt.Errorf("position %s: %w", id, err)
		}
		pair, err := b.parseExchangePair(p.Pair)
		if err != nil {
			return account.Holdings{}, fmt.Errorf("position %s: %w", id, err)
		}
		quantity := p.Volume.Decimal().Sub(p.VolumeClosed.Decimal())
		cost := p.Cost.Decimal()
		var avg decimal.Decimal
		if volume := p.Volume.Decimal(); !volume.IsZero() {
			avg = cost.Div(volume)
		}
		holdings.Positions = append(holdings.Positions, account.Position{
			OrderID:      p.OrderTxID,
			Pair:         pair,
			Side:         side,
			Quantity:     quantity,
			AveragePrice: avg,
			Cost:         cost,
			Fee:          p.Fee.Decimal(),
			OpenedAt:     p.Time.Time(),
		})
	}
	return holdings, nil
}

// LoadFeeSchedule replaces the fee schedule with one derived from the
// account's live 30-day volume
func (b *Brokerage) LoadFeeSchedule(ctx context.Context, pairs ...currency.Pair) error {
	volume, err := b.client.GetTradeVolume(ctx, true, pairs...)
	if err != nil {
		return err
	}
	b.feesMtx.Lock()
	b.fees = NewFeeSchedule(volume.Volume.Decimal())
	b.feesMtx.Unlock()
	b.log.Info("fee schedule loaded", zap.Float64("volume_30d", volume.Volume.Float64()))
	return nil
}

// parseExchangePair splits a classic position pair such as XXBTZUSD into
// its base and quote. Classic names are four characters, altnames three or
// four; try the known translations longest first.
func (b *Brokerage) parseExchangePair(symbol string) (currency.Pair, error) {
	for _, quoteLen := range []int{4, 3} {
		if len(symbol) <= quoteLen {
			continue
		}
		base := symbol[:len(symbol)-quoteLen]
		quote := symbol[len(symbol)-quoteLen:]
		if b.names.LookupAltname(base) != base || b.names.LookupAltname(quote) != quote {
			return currency.NewPair(
				currency.NewCode(b.names.LookupAltname(base)),
				currency.NewCode(b.names.LookupAltname(quote)),
			), nil
		}
	}
	// No classic prefixes recognised, assume a plain concatenated altname
	// pair with a standard three character quote
	if len(symbol) > 3 {
		return currency.NewPair(
			currency.NewCode(symbol[:len(symbol)-3]),
			currency.NewCode(symbol[len(symbol)-3:]),
		), nil
	}
	return currency.EMPTYPAIR, fmt.Errorf("unparseable pair %q: %w", symbol, currency.ErrCurrencyPairEmpty)
}
