package kraken

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/buger/jsonparser"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jhonabreul/krakenbrokerage/encoding/json"
	"github.com/jhonabreul/krakenbrokerage/types"
)

// Websocket channel and event names
const (
	krakenWsHeartbeat          = "heartbeat"
	krakenWsSystemStatus       = "systemStatus"
	krakenWsSubscribe          = "subscribe"
	krakenWsSubscriptionStatus = "subscriptionStatus"
	krakenWsPong               = "pong"
	krakenWsOwnTrades          = "ownTrades"
	krakenWsOpenOrders         = "openOrders"
	krakenWsPingDelay          = time.Second * 27
)

var errSubscriptionFailed = errors.New("websocket subscription failed")

// WsOwnTrade is one fill reported on the ownTrades channel
type WsOwnTrade struct {
	OrderTransactionID string       `json:"ordertxid"`
	PositionID         string       `json:"postxid"`
	Pair               string       `json:"pair"`
	Time               types.Time   `json:"time"`
	Type               string       `json:"type"`
	OrderType          string       `json:"ordertype"`
	Price              types.Number `json:"price"`
	Cost               types.Number `json:"cost"`
	Fee                types.Number `json:"fee"`
	Vol                types.Number `json:"vol"`
	Margin             types.Number `json:"margin"`
}

// OwnTradeUpdate pairs a fill with its exchange trade id
type OwnTradeUpdate struct {
	TradeID string
	WsOwnTrade
}

// WsOpenOrder is one order state reported on the openOrders channel
type WsOpenOrder struct {
	RefID          string       `json:"refid"`
	UserRef        int32        `json:"userref"`
	Status         string       `json:"status"`
	OpenTime       types.Time   `json:"opentm"`
	Volume         types.Number `json:"vol"`
	ExecutedVolume types.Number `json:"vol_exec"`
	Cost           types.Number `json:"cost"`
	Fee            types.Number `json:"fee"`
	AveragePrice   types.Number `json:"avg_price"`
	CancelReason   string       `json:"cancel_reason"`
	Description    struct {
		Pair      string       `json:"pair"`
		Type      string       `json:"type"`
		OrderType string       `json:"ordertype"`
		Price     types.Number `json:"price"`
		Price2    types.Number `json:"price2"`
		Order     string       `json:"order"`
	} `json:"descr"`
}

// OpenOrderUpdate pairs an order state with its transaction id
type OpenOrderUpdate struct {
	OrderID string
	WsOpenOrder
}

// wsTokenSource mints fresh feed authentication tokens; satisfied by the
// REST client
type wsTokenSource interface {
	GetWebsocketToken(ctx context.Context) (string, error)
}

// Feed maintains the authenticated websocket connection and decodes private
// order and trade updates onto its data channel.
type Feed struct {
	url     string
	tokens  wsTokenSource
	dial    func(ctx context.Context, url string) (wsConn, error)
	log     *zap.Logger
	data    chan any
	lastSeq map[string]int64
	wg      sync.WaitGroup
}

// wsConn is the subset of *websocket.Conn the feed uses
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

func gorillaDial(ctx context.Context, url string) (wsConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	return conn, err
}

// NewFeed returns an unconnected feed
func NewFeed(url string, tokens wsTokenSource, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		url:     url,
		tokens:  tokens,
		dial:    gorillaDial,
		log:     logger.Named("kraken.ws"),
		data:    make(chan any, 128),
		lastSeq: make(map[string]int64),
	}
}

// Data returns the channel carrying decoded *OwnTradeUpdate and
// *OpenOrderUpdate values
func (f *Feed) Data() <-chan any {
	return f.data
}

// Run connects and consumes the feed until the context is cancelled,
// redialling with backoff on connection loss.
func (f *Feed) Run(ctx context.Context) error {
	defer close(f.data)
	for attempt := 0; ; attempt++ {
		err := f.runConn(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay := time.Duration(attempt+1) * time.Second
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		f.log.Warn("websocket connection lost, redialling",
			zap.Error(err), zap.Duration("delay", delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Feed) runConn(ctx context.Context) error {
	token, err := f.tokens.GetWebsocketToken(ctx)
	if err != nil {
		return fmt.Errorf("get websocket token: %w", err)
	}

	conn, err := f.dial(ctx, f.url)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}
	defer conn.Close()

	for _, channel := range []string{krakenWsOwnTrades, krakenWsOpenOrders} {
		sub := map[string]any{
			"event": krakenWsSubscribe,
			"subscription": map[string]any{
				"name":  channel,
				"token": token,
			},
		}
		payload, err := json.Marshal(sub)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
	}

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer func() {
		cancelPing()
		f.wg.Wait()
	}()
	f.wg.Add(1)
	go f.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := f.handleMessage(msg); err != nil {
			f.log.Error("websocket message rejected", zap.Error(err), zap.ByteString("message", msg))
		}
	}
}

func (f *Feed) pingLoop(ctx context.Context, conn wsConn) {
	defer f.wg.Done()
	ticker := time.NewTicker(krakenWsPingDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage dispatches one inbound frame. Object frames carry lifecycle
// events; array frames carry channel payloads.
func (f *Feed) handleMessage(msg []byte) error {
	if len(msg) == 0 {
		return errors.New("empty websocket frame")
	}

	if msg[0] == '{' {
		event, err := jsonparser.GetString(msg, "event")
		if err != nil {
			return fmt.Errorf("frame without event field: %w", err)
		}
		switch event {
		case krakenWsHeartbeat, krakenWsSystemStatus, krakenWsPong:
			return nil
		case krakenWsSubscriptionStatus:
			if status, _ := jsonparser.GetString(msg, "status"); status == "error" {
				errMsg, _ := jsonparser.GetString(msg, "errorMessage")
				return fmt.Errorf("%w: %s", errSubscriptionFailed, errMsg)
			}
			return nil
		}
		return fmt.Errorf("unidentified websocket event %q", event)
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(msg, &frame); err != nil {
		return err
	}
	if len(frame) < 2 {
		return errors.New("short websocket frame")
	}

	var channel string
	if err := json.Unmarshal(frame[1], &channel); err != nil {
		return err
	}

	// Private channels carry a sequence; replays during resubscribe are
	// dropped here so downstream sees each update at most once.
	if len(frame) >= 3 {
		if seq, err := jsonparser.GetInt(frame[2], "sequence"); err == nil {
			if seq <= f.lastSeq[channel] {
				return nil
			}
			f.lastSeq[channel] = seq
		}
	}

	switch channel {
	case krakenWsOwnTrades:
		return f.processOwnTrades(frame[0])
	case krakenWsOpenOrders:
		return f.processOpenOrders(frame[0])
	}
	return fmt.Errorf("unidentified websocket channel %q", channel)
}

func (f *Feed) processOwnTrades(payload json.RawMessage) error {
	var result []map[string]*WsOwnTrade
	if err := json.Unmarshal(payload, &result); err != nil {
		return err
	}
	for _, batch := range result {
		for tradeID, trade := range batch {
			f.publish(&OwnTradeUpdate{TradeID: tradeID, WsOwnTrade: *trade})
		}
	}
	return nil
}

func (f *Feed) processOpenOrders(payload json.RawMessage) error {
	var result []map[string]*WsOpenOrder
	if err := json.Unmarshal(payload, &result); err != nil {
		return err
	}
	for _, batch := range result {
		for orderID, status := range batch {
			f.publish(&OpenOrderUpdate{OrderID: orderID, WsOpenOrder: *status})
		}
	}
	return nil
}

func (f *Feed) publish(update any) {
	select {
	case f.data <- update:
	default:
		// A stalled consumer must not wedge the read loop
		f.log.Warn("dropping websocket update, consumer not keeping up")
	}
}
