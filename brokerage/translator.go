package brokerage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jhonabreul/krakenbrokerage/exchanges/kraken"
	"github.com/jhonabreul/krakenbrokerage/exchanges/order"
)

// ErrOrderNotFound is returned for operations on an order id this session
// never placed
var ErrOrderNotFound = errors.New("order not tracked")

// statusRank orders lifecycle states so stale feed replays cannot move an
// order backwards. Terminal states share the top rank.
var statusRank = map[order.Status]int{
	order.New:             0,
	order.Submitted:       1,
	order.PartiallyFilled: 2,
	order.Filled:          3,
	order.Cancelled:       3,
	order.Invalid:         3,
}

type trackedOrder struct {
	submit   order.Submit
	status   order.Status
	executed decimal.Decimal
	trades   map[string]struct{}
	done     chan struct{}
}

// Translator converts raw exchange order and trade updates into the
// normalized event stream. It owns the per-order state machine: transitions
// only ever advance, fills are deduplicated by exchange trade id, and
// updates arriving before the order is tracked are buffered until it is.
type Translator struct {
	mtx     sync.Mutex
	orders  map[string]*trackedOrder
	pending map[string][]any
	log     *zap.Logger
}

// NewTranslator returns an empty translator
func NewTranslator(logger *zap.Logger) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{
		orders:  make(map[string]*trackedOrder),
		pending: make(map[string][]any),
		log:     logger.Named("translator"),
	}
}

// Track registers a freshly placed order and replays any updates that beat
// the placement response over the websocket.
func (t *Translator) Track(orderID string, submit order.Submit) []order.Event {
	t.mtx.Lock()
	if _, ok := t.orders[orderID]; ok {
		t.mtx.Unlock()
		return nil
	}
	t.orders[orderID] = &trackedOrder{
		submit: submit,
		status: order.New,
		trades: make(map[string]struct{}),
		done:   make(chan struct{}),
	}
	buffered := t.pending[orderID]
	delete(t.pending, orderID)
	t.mtx.Unlock()

	var events []order.Event
	for _, update := range buffered {
		switch u := update.(type) {
		case *kraken.OwnTradeUpdate:
			events = append(events, t.TranslateTrade(u)...)
		case *kraken.OpenOrderUpdate:
			events = append(events, t.TranslateOrder(u)...)
		}
	}
	return events
}

// Acknowledge moves a tracked order from New to Submitted after the
// exchange accepts it
func (t *Translator) Acknowledge(orderID string) []order.Event {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	tracked, ok := t.orders[orderID]
	if !ok {
		return nil
	}
	return t.advance(orderID, tracked, order.Submitted)
}

// Reject marks a tracked order Invalid, e.g. after the exchange declines
// the placement
func (t *Translator) Reject(orderID string) []order.Event {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	tracked, ok := t.orders[orderID]
	if !ok {
		return nil
	}
	return t.advance(orderID, tracked, order.Invalid)
}

// TranslateTrade converts one ownTrades fill into fill events. Replayed
// trade ids produce nothing; a fill for an order still awaiting its
// placement ack first emits the Submitted transition.
func (t *Translator) TranslateTrade(update *kraken.OwnTradeUpdate) []order.Event {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	orderID := update.OrderTransactionID
	tracked, ok := t.orders[orderID]
	if !ok {
		t.buffer(orderID, update)
		return nil
	}
	if _, seen := tracked.trades[update.TradeID]; seen {
		return nil
	}
	if tracked.status.IsTerminal() {
		t.log.Warn("fill for terminal order dropped",
			zap.String("order_id", orderID), zap.String("trade_id", update.TradeID))
		return nil
	}
	tracked.trades[update.TradeID] = struct{}{}

	var events []order.Event
	if tracked.status == order.New {
		events = append(events, t.advance(orderID, tracked, order.Submitted)...)
	}

	volume := update.Vol.Decimal()
	tracked.executed = tracked.executed.Add(volume)
	status := order.PartiallyFilled
	if tracked.executed.GreaterThanOrEqual(tracked.submit.AbsQuantity()) {
		status = order.Filled
	}

	event := order.NewEvent(orderID, tracked.submit.Pair, status, tracked.submit.Side())
	event.Timestamp = update.Time.Time()
	event.FillPrice = update.Price.Decimal()
	event.FillQuantity = volume
	event.Fee = update.Fee.Decimal()
	event.FeeCurrency = tracked.submit.Pair.Quote
	t.transition(tracked, status)
	return append(events, event)
}

// TranslateOrder converts one openOrders status update into lifecycle
// events. Unmapped statuses fail closed to Invalid rather than being
// dropped.
func (t *Translator) TranslateOrder(update *kraken.OpenOrderUpdate) []order.Event {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	tracked, ok := t.orders[update.OrderID]
	if !ok {
		t.buffer(update.OrderID, update)
		return nil
	}

	status, err := order.StringToOrderStatus(update.Status)
	if err != nil {
		t.log.Error("order status unmapped, failing closed",
			zap.String("order_id", update.OrderID), zap.Error(err))
		status = order.Invalid
	}

	// Fill quantities and fees arrive on ownTrades; the openOrders channel
	// only confirms the lifecycle step.
	if status == order.Filled && tracked.executed.LessThan(tracked.submit.AbsQuantity()) {
		// Closed ack outran the final fill. Hold the terminal transition
		// until the fill lands so its event is not lost.
		return nil
	}
	return t.advance(update.OrderID, tracked, status)
}

// Await blocks until the order reaches a terminal state or the timeout
// elapses, in which case ErrOrderPending is returned with the last status.
func (t *Translator) Await(orderID string, timeout time.Duration) (order.Status, error) {
	t.mtx.Lock()
	tracked, ok := t.orders[orderID]
	t.mtx.Unlock()
	if !ok {
		return order.UnknownStatus, fmt.Errorf("%s: %w", orderID, ErrOrderNotFound)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tracked.done:
		return t.mustStatus(orderID), nil
	case <-timer.C:
		return t.mustStatus(orderID), ErrOrderPending
	}
}

// Amend updates the tracked submission once the exchange accepts an
// in-place modification, so fill accounting compares executed volume
// against the live terms rather than the original ones. Zero values leave
// the corresponding term unchanged; the quantity keeps the order's side.
func (t *Translator) Amend(orderID string, quantity, limitPrice, triggerPrice decimal.Decimal) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	tracked, ok := t.orders[orderID]
	if !ok {
		return fmt.Errorf("%s: %w", orderID, ErrOrderNotFound)
	}
	if !quantity.IsZero() {
		signed := quantity.Abs()
		if tracked.submit.Quantity.IsNegative() {
			signed = signed.Neg()
		}
		tracked.submit.Quantity = signed
	}
	if !limitPrice.IsZero() {
		tracked.submit.LimitPrice = limitPrice
	}
	if !triggerPrice.IsZero() {
		tracked.submit.TriggerPrice = triggerPrice
	}
	return nil
}

// Submit returns the original submission for a tracked order
func (t *Translator) Submit(orderID string) (order.Submit, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	tracked, ok := t.orders[orderID]
	if !ok {
		return order.Submit{}, fmt.Errorf("%s: %w", orderID, ErrOrderNotFound)
	}
	return tracked.submit, nil
}

// Status reports the last known status of a tracked order
func (t *Translator) Status(orderID string) (order.Status, bool) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	tracked, ok := t.orders[orderID]
	if !ok {
		return order.UnknownStatus, false
	}
	return tracked.status, true
}

func (t *Translator) mustStatus(orderID string) order.Status {
	status, _ := t.Status(orderID)
	return status
}

// buffer stashes an update for an order id we have not tracked yet. Ids the
// session never claims stay buffered; they belong to other sessions on the
// same account.
func (t *Translator) buffer(orderID string, update any) {
	t.pending[orderID] = append(t.pending[orderID], update)
}

// advance emits the transition when it moves the order forward, dropping
// stale or repeated states. Callers hold the mutex.
func (t *Translator) advance(orderID string, tracked *trackedOrder, status order.Status) []order.Event {
	if statusRank[status] <= statusRank[tracked.status] {
		return nil
	}
	event := order.NewEvent(orderID, tracked.submit.Pair, status, tracked.submit.Side())
	t.transition(tracked, status)
	return []order.Event{event}
}

func (t *Translator) transition(tracked *trackedOrder, status order.Status) {
	if tracked.status.IsTerminal() {
		return
	}
	tracked.status = status
	if status.IsTerminal() {
		close(tracked.done)
	}
}
