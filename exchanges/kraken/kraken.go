// Package kraken implements a client for the Kraken spot REST API and the
// authenticated websocket feed.
package kraken

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jhonabreul/krakenbrokerage/currency"
	"github.com/jhonabreul/krakenbrokerage/encoding/json"
	"github.com/jhonabreul/krakenbrokerage/exchanges/account"
	"github.com/jhonabreul/krakenbrokerage/exchanges/nonce"
	"github.com/jhonabreul/krakenbrokerage/exchanges/request"
)

const (
	krakenAPIURL     = "https://api.kraken.com"
	krakenAuthWSURL  = "wss://ws-auth.kraken.com"
	krakenAPIVersion = "0"
)

var errCredentialsUnset = errors.New("credentials unset")

// OTPGenerator supplies the current one-time password for accounts with
// two-factor enabled on their API key
type OTPGenerator func() (string, error)

// Kraken is the overarching type across the kraken package
type Kraken struct {
	Name         string
	RESTEndpoint string
	WSEndpoint   string
	Verbose      bool

	requester  *request.Requester
	creds      *account.Credentials
	otp        OTPGenerator
	translator *currency.Translator
	log        *zap.Logger
}

// ClientOptions configures a Kraken client
type ClientOptions struct {
	RESTEndpoint      string
	WebsocketEndpoint string
	Credentials       *account.Credentials
	OTP               OTPGenerator
	HTTPClient        *http.Client
	Logger            *zap.Logger
	Verbose           bool
}

// NewClient returns a Kraken client
func NewClient(opts ClientOptions) *Kraken {
	if opts.RESTEndpoint == "" {
		opts.RESTEndpoint = krakenAPIURL
	}
	if opts.WebsocketEndpoint == "" {
		opts.WebsocketEndpoint = krakenAuthWSURL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Credentials == nil {
		opts.Credentials = &account.Credentials{}
	}
	return &Kraken{
		Name:         "Kraken",
		RESTEndpoint: strings.TrimSuffix(opts.RESTEndpoint, "/"),
		WSEndpoint:   opts.WebsocketEndpoint,
		Verbose:      opts.Verbose,
		requester: request.New("Kraken", opts.HTTPClient, opts.Logger,
			request.WithLimiter(request.NewLimiter(GetRateLimits()))),
		creds:      opts.Credentials,
		otp:        opts.OTP,
		translator: currency.NewTranslator(),
		log:        opts.Logger.Named("kraken"),
	}
}

// GetCredentials resolves the credentials for a request, preferring any
// deployed on the context
func (k *Kraken) GetCredentials(ctx context.Context) (*account.Credentials, error) {
	creds := account.CredentialsFromContext(ctx, k.creds)
	if creds.IsEmpty() {
		return nil, errCredentialsUnset
	}
	return creds, nil
}

// Translator exposes the asset name translator
func (k *Kraken) Translator() *currency.Translator {
	return k.translator
}

// FormatSymbol converts a pair to Kraken's undelimited request format
func (k *Kraken) FormatSymbol(pair currency.Pair) (string, error) {
	if pair.IsEmpty() {
		return "", currency.ErrCurrencyPairEmpty
	}
	return pair.Base.String() + pair.Quote.String(), nil
}

// GetCurrentServerTime returns the exchange server time
func (k *Kraken) GetCurrentServerTime(ctx context.Context) (*TimeResponse, error) {
	path := "/" + krakenAPIVersion + "/public/Time"
	var result TimeResponse
	if err := k.SendHTTPRequest(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSystemStatus returns the exchange's operational status
func (k *Kraken) GetSystemStatus(ctx context.Context) (*SystemStatusResponse, error) {
	path := "/" + krakenAPIVersion + "/public/SystemStatus"
	var result SystemStatusResponse
	if err := k.SendHTTPRequest(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTicker returns the ticker snapshot for a pair
func (k *Kraken) GetTicker(ctx context.Context, pair currency.Pair) (*Ticker, error) {
	symbolValue, err := k.FormatSymbol(pair)
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	values.Set("pair", symbolValue)

	var data map[string]*TickerResponse
	path := "/" + krakenAPIVersion + "/public/Ticker?" + values.Encode()
	if err := k.SendHTTPRequest(ctx, path, &data); err != nil {
		return nil, err
	}

	var tick Ticker
	for _, v := range data {
		tick.Ask = v.Ask[0].Float64()
		tick.Bid = v.Bid[0].Float64()
		tick.Last = v.Last[0].Float64()
		tick.Volume = v.Volume[1].Float64()
		tick.Low = v.Low[1].Float64()
		tick.High = v.High[1].Float64()
		tick.Open = v.Open.Float64()
	}
	return &tick, nil
}

// GetAccountBalance retrieves all cash balances, net of pending withdrawals
func (k *Kraken) GetAccountBalance(ctx context.Context) (map[string]Balance, error) {
	requestPath := "/" + krakenAPIVersion + "/private/BalanceEx"
	var result map[string]Balance
	if err := k.SendAuthenticatedHTTPRequest(ctx, requestPath, url.Values{}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetTradeBalance returns margin account valuations
func (k *Kraken) GetTradeBalance(ctx context.Context, args ...TradeBalanceOptions) (*TradeBalanceInfo, error) {
	params := url.Values{}
	if len(args) > 0 && args[0].Asset != "" {
		params.Set("asset", args[0].Asset)
	}

	requestPath := "/" + krakenAPIVersion + "/private/TradeBalance"
	var result TradeBalanceInfo
	if err := k.SendAuthenticatedHTTPRequest(ctx, requestPath, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// QueryOrdersInfo queries one or more orders by transaction id
func (k *Kraken) QueryOrdersInfo(ctx context.Context, args OrderInfoOptions, txid string, txids ...string) (map[string]OrderInfo, error) {
	params := url.Values{
		"txid": {strings.Join(append([]string{txid}, txids...), ",")},
	}
	if args.Trades {
		params.Set("trades", "true")
	}
	if args.UserRef != 0 {
		params.Set("userref", strconv.FormatInt(int64(args.UserRef), 10))
	}

	requestPath := "/" + krakenAPIVersion + "/private/QueryOrders"
	var result map[string]OrderInfo
	if err := k.SendAuthenticatedHTTPRequest(ctx, requestPath, params, &result); err != nil {
		return result, err
	}
	return result, nil
}

// OpenPositions returns the account's open margin positions
func (k *Kraken) OpenPositions(ctx context.Context, docalcs bool) (map[string]Position, error) {
	params := url.Values{}
	if docalcs {
		params.Set("docalcs", "true")
	}

	requestPath := "/" + krakenAPIVersion + "/private/OpenPositions"
	var result map[string]Position
	if err := k.SendAuthenticatedHTTPRequest(ctx, requestPath, params, &result); err != nil {
		return result, err
	}
	return result, nil
}

// GetTradeVolume returns 30-day volume and the resulting fee tiers for the
// requested pairs
func (k *Kraken) GetTradeVolume(ctx context.Context, feeinfo bool, pairs ...currency.Pair) (*TradeVolumeResponse, error) {
	params := url.Values{}
	if len(pairs) > 0 {
		symbols := make([]string, len(pairs))
		for i := range pairs {
			symbolValue, err := k.FormatSymbol(pairs[i])
			if err != nil {
				return nil, err
			}
			symbols[i] = symbolValue
		}
		params.Set("pair", strings.Join(symbols, ","))
	}
	if feeinfo {
		params.Set("fee-info", "true")
	}

	requestPath := "/" + krakenAPIVersion + "/private/TradeVolume"
	var result TradeVolumeResponse
	if err := k.SendAuthenticatedHTTPRequest(ctx, requestPath, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AddOrder places a new order
func (k *Kraken) AddOrder(ctx context.Context, pair currency.Pair, side, orderType string, volume, price, price2 float64, args *AddOrderOptions) (*AddOrderResponse, error) {
	symbolValue, err := k.FormatSymbol(pair)
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = &AddOrderOptions{}
	}
	params := url.Values{
		"pair":      {symbolValue},
		"type":      {strings.ToLower(side)},
		"ordertype": {strings.ToLower(orderType)},
		"volume":    {strconv.FormatFloat(volume, 'f', -1, 64)},
	}

	if price > 0 {
		params.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	}
	if price2 != 0 {
		params.Set("price2", strconv.FormatFloat(price2, 'f', -1, 64))
	}
	if args.UserRef != 0 {
		params.Set("userref", strconv.FormatInt(int64(args.UserRef), 10))
	}
	if args.OrderFlags != "" {
		params.Set("oflags", args.OrderFlags)
	}
	if args.StartTm != "" {
		params.Set("starttm", args.StartTm)
	}
	if args.ExpireTm != "" {
		params.Set("expiretm", args.ExpireTm)
	}
	if args.TimeInForce != "" {
		params.Set("timeinforce", args.TimeInForce)
	}
	if args.PostOnly {
		params.Set("oflags", strings.TrimPrefix(args.OrderFlags+",post", ","))
	}
	if args.Validate {
		params.Set("validate", "true")
	}

	requestPath := "/" + krakenAPIVersion + "/private/AddOrder"
	var result AddOrderResponse
	if err := k.SendAuthenticatedHTTPRequest(ctx, requestPath, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AmendOrder modifies an open order's quantity or prices in place
func (k *Kraken) AmendOrder(ctx context.Context, opts AmendOrderOptions) (*AmendOrderResponse, error) {
	if opts.TxID == "" {
		return nil, errors.New("txid is a required parameter")
	}
	params := url.Values{}
	params.Set("txid", opts.TxID)
	if opts.Quantity != "" {
		params.Set("order_qty", opts.Quantity)
	}
	if opts.LimitPrice != "" {
		params.Set("limit_price", opts.LimitPrice)
	}
	if opts.TriggerPrice != "" {
		params.Set("trigger_price", opts.TriggerPrice)
	}
	if opts.PostOnly {
		params.Set("post_only", "true")
	}

	requestPath := "/" + krakenAPIVersion + "/private/AmendOrder"
	var result AmendOrderResponse
	if err := k.SendAuthenticatedHTTPRequest(ctx, requestPath, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelExistingOrder cancels an order by transaction id
func (k *Kraken) CancelExistingOrder(ctx context.Context, txid string) (*CancelOrderResponse, error) {
	values := url.Values{
		"txid": {txid},
	}

	requestPath := "/" + krakenAPIVersion + "/private/CancelOrder"
	var result CancelOrderResponse
	if err := k.SendAuthenticatedHTTPRequest(ctx, requestPath, values, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetWebsocketToken returns a token for authenticating the private
// websocket feed
func (k *Kraken) GetWebsocketToken(ctx context.Context) (string, error) {
	requestPath := "/" + krakenAPIVersion + "/private/GetWebSocketsToken"
	var result webSocketTokenResponse
	if err := k.SendAuthenticatedHTTPRequest(ctx, requestPath, url.Values{}, &result); err != nil {
		return "", err
	}
	return result.Token, nil
}

// SendHTTPRequest sends an unauthenticated request
func (k *Kraken) SendHTTPRequest(ctx context.Context, path string, result any) error {
	var rawMessage json.RawMessage
	item := &request.Item{
		Method:      http.MethodGet,
		Path:        k.RESTEndpoint + path,
		Result:      &rawMessage,
		Verbose:     k.Verbose,
		InspectBody: envelopeThrottled,
	}

	err := k.requester.SendPayload(ctx, publicRateLimit, func() (*request.Item, error) {
		return item, nil
	}, request.UnauthenticatedRequest)
	if err != nil {
		return err
	}

	genResponse := genericRESTResponse{
		Result: result,
	}
	if err := json.Unmarshal(rawMessage, &genResponse); err != nil {
		return err
	}
	if warnings := genResponse.Error.Warnings(); warnings != "" {
		k.log.Warn("REST request warning", zap.String("warnings", warnings))
	}
	return genResponse.Error.Errors()
}

// SendAuthenticatedHTTPRequest signs and sends a private request. The
// signature is HMAC-SHA512 over path + SHA256(nonce + body) keyed with the
// base64-decoded API secret.
func (k *Kraken) SendAuthenticatedHTTPRequest(ctx context.Context, requestPath string, params url.Values, result any) error {
	creds, err := k.GetCredentials(ctx)
	if err != nil {
		return err
	}
	secret, err := base64.StdEncoding.DecodeString(creds.Secret)
	if err != nil {
		return fmt.Errorf("decode api secret: %w", err)
	}

	interim := json.RawMessage{}
	err = k.requester.SendPayload(ctx, privateRateLimit, func() (*request.Item, error) {
		if k.otp != nil {
			code, otpErr := k.otp()
			if otpErr != nil {
				return nil, otpErr
			}
			if code != "" {
				params.Set("otp", code)
			}
		}

		n := k.requester.GetNonce(nonce.UnixNano).String()
		params.Set("nonce", n)
		encoded := params.Encode()

		shasum := sha256.Sum256([]byte(n + encoded))
		mac := hmac.New(sha512.New, secret)
		mac.Write(append([]byte(requestPath), shasum[:]...))
		signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

		headers := map[string]string{
			"API-Key":      creds.Key,
			"API-Sign":     signature,
			"Content-Type": "application/x-www-form-urlencoded",
		}

		return &request.Item{
			Method:      http.MethodPost,
			Path:        k.RESTEndpoint + requestPath,
			Headers:     headers,
			Body:        strings.NewReader(encoded),
			Result:      &interim,
			Verbose:     k.Verbose,
			InspectBody: envelopeThrottled,
		}, nil
	}, request.AuthenticatedRequest)
	if err != nil {
		return err
	}

	genResponse := genericRESTResponse{
		Result: result,
	}
	if err := json.Unmarshal(interim, &genResponse); err != nil {
		return fmt.Errorf("%w: %w", request.ErrAuthRequestFailed, err)
	}
	if err := genResponse.Error.Errors(); err != nil {
		return fmt.Errorf("%w: %w", request.ErrAuthRequestFailed, err)
	}
	if warnings := genResponse.Error.Warnings(); warnings != "" {
		k.log.Warn("AUTH REST request warning", zap.String("warnings", warnings))
	}
	return nil
}
