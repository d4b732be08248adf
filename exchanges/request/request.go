// Package request is the transport core shared by exchange clients. It owns
// the HTTP client, applies per-endpoint rate limits, retries transient
// failures with backoff and serializes signed requests so nonces leave in
// strictly increasing order.
package request

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jhonabreul/krakenbrokerage/encoding/json"
	"github.com/jhonabreul/krakenbrokerage/exchanges/nonce"
)

// Default requester behaviour
const (
	MaxRetryAttempts      = 3
	DefaultTimeout        = time.Second * 15
	drainBodyLimit        = 100000
	userAgentHeader       = "User-Agent"
	defaultUserAgent      = "krakenbrokerage/1.0"
	retryAfterHeader      = "Retry-After"
)

var (
	// ErrRateLimited is returned once the retry budget for throttled
	// requests is exhausted
	ErrRateLimited = errors.New("rate limited by exchange")
	// ErrTimedOut is returned once the retry budget for timed-out requests
	// is exhausted; the request may or may not have reached the exchange
	ErrTimedOut = errors.New("request timed out")
	// ErrAuthRequestFailed is wrapped around authenticated request failures
	ErrAuthRequestFailed = errors.New("authenticated request failed")

	errRequestSystemIsNil   = errors.New("request system is nil")
	errRequestFunctionIsNil = errors.New("request function is nil")
	errRequestItemNil       = errors.New("request item is nil")
	errInvalidPath          = errors.New("invalid path")
)

// AuthType distinguishes signed from unsigned requests
type AuthType int

// Request auth types
const (
	UnauthenticatedRequest AuthType = iota
	AuthenticatedRequest
)

// Generate builds a request item. It is re-invoked on every retry attempt so
// nonce-bearing payloads are regenerated rather than replayed.
type Generate func() (*Item, error)

// Item is a single outbound request
type Item struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    io.Reader
	Result  any
	Verbose bool

	// InspectBody classifies application-level failures delivered with a
	// 2xx status, such as throttling reported inside a response envelope.
	// An error wrapping ErrRateLimited re-enters the retry loop; any other
	// error surfaces immediately.
	InspectBody func(body []byte) error
}

// Backoff returns the delay before retry attempt n
type Backoff func(n int) time.Duration

// DefaultBackoff is a doubling backoff starting at 100ms
func DefaultBackoff() Backoff {
	return func(n int) time.Duration {
		return time.Duration(n*n) * 100 * time.Millisecond
	}
}

// RetryPolicy decides whether a response warrants another attempt
type RetryPolicy func(resp *http.Response, err error) (bool, error)

// DefaultRetryPolicy retries timeouts, throttling and server errors
func DefaultRetryPolicy(resp *http.Response, err error) (bool, error) {
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true, nil
		}
		return false, err
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return true, nil
	}
	return false, nil
}

// Requester sends and rate limits outbound requests for a single service
type Requester struct {
	name        string
	client      *http.Client
	limiter     *Limiter
	backoff     Backoff
	retryPolicy RetryPolicy
	maxRetries  int
	nonce       nonce.Nonce
	authSem     chan struct{}
	log         *zap.Logger
}

// RequesterOption configures a Requester
type RequesterOption func(*Requester)

// WithLimiter installs per-endpoint rate limits
func WithLimiter(l *Limiter) RequesterOption {
	return func(r *Requester) { r.limiter = l }
}

// WithBackoff overrides the retry backoff
func WithBackoff(b Backoff) RequesterOption {
	return func(r *Requester) { r.backoff = b }
}

// WithRetryPolicy overrides the retry policy
func WithRetryPolicy(p RetryPolicy) RequesterOption {
	return func(r *Requester) { r.retryPolicy = p }
}

// WithMaxRetries overrides the retry ceiling
func WithMaxRetries(n int) RequesterOption {
	return func(r *Requester) { r.maxRetries = n }
}

// New returns a requester for the named service
func New(name string, client *http.Client, logger *zap.Logger, opts ...RequesterOption) *Requester {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Requester{
		name:        name,
		client:      client,
		backoff:     DefaultBackoff(),
		retryPolicy: DefaultRetryPolicy,
		maxRetries:  MaxRetryAttempts,
		authSem:     make(chan struct{}, 1),
		log:         logger.Named("request"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// GetNonce issues the next signing nonce
func (r *Requester) GetNonce(g nonce.Getter) nonce.Value {
	return r.nonce.GetInc(g)
}

// SendPayload generates and sends a request, unmarshalling the response body
// into the item's Result. Authenticated requests are serialized with each
// other so the exchange observes nonces in issue order.
func (r *Requester) SendPayload(ctx context.Context, ep EndpointLimit, newRequest Generate, auth AuthType) error {
	if r == nil {
		return errRequestSystemIsNil
	}
	if newRequest == nil {
		return errRequestFunctionIsNil
	}

	if auth == AuthenticatedRequest {
		select {
		case r.authSem <- struct{}{}:
			defer func() { <-r.authSem }()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return r.doRequest(ctx, ep, newRequest)
}

func (r *Requester) doRequest(ctx context.Context, ep EndpointLimit, newRequest Generate) error {
	for attempt := 1; ; attempt++ {
		if err := r.initiateRateLimit(ctx, ep); err != nil {
			return err
		}

		item, err := newRequest()
		if err != nil {
			return err
		}

		req, err := item.validate(ctx)
		if err != nil {
			return err
		}

		resp, err := r.client.Do(req)
		retry, checkErr := r.retryPolicy(resp, err)
		if checkErr != nil {
			return checkErr
		}
		if retry {
			if err == nil {
				drainBody(resp.Body)
			}
			if attempt > r.maxRetries {
				if err != nil {
					return fmt.Errorf("%w after %d attempts: %w", ErrTimedOut, attempt, err)
				}
				return fmt.Errorf("%w after %d attempts, status: %s", ErrRateLimited, attempt, resp.Status)
			}
			if waitErr := r.waitRetry(ctx, attempt, resp, item.Path); waitErr != nil {
				return waitErr
			}
			continue
		}

		contents, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}

		if item.Verbose {
			r.log.Debug("response received",
				zap.String("service", r.name),
				zap.String("path", item.Path),
				zap.Int("status", resp.StatusCode),
				zap.ByteString("body", contents))
		}

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return fmt.Errorf("%s unsuccessful HTTP status code: %d body: %s", r.name, resp.StatusCode, contents)
		}

		// Some exchanges report throttling inside a 200 envelope rather
		// than with a 429 status; those retry on the same budget.
		if item.InspectBody != nil {
			switch inspectErr := item.InspectBody(contents); {
			case inspectErr == nil:
			case errors.Is(inspectErr, ErrRateLimited):
				if attempt > r.maxRetries {
					return fmt.Errorf("%w after %d attempts", inspectErr, attempt)
				}
				if waitErr := r.waitRetry(ctx, attempt, resp, item.Path); waitErr != nil {
					return waitErr
				}
				continue
			default:
				return inspectErr
			}
		}

		if item.Result == nil {
			return nil
		}
		return json.Unmarshal(contents, item.Result)
	}
}

// waitRetry sleeps out the backoff before the next attempt, honouring any
// Retry-After header and the context deadline
func (r *Requester) waitRetry(ctx context.Context, attempt int, resp *http.Response, path string) error {
	delay := r.backoff(attempt)
	if resp != nil {
		if after := retryAfter(resp, time.Now()); after > delay {
			delay = after
		}
	}
	if d, ok := ctx.Deadline(); ok && time.Now().Add(delay).After(d) {
		return fmt.Errorf("retry delay %s would exceed deadline: %w", delay, context.DeadlineExceeded)
	}

	r.log.Warn("request throttled, retrying",
		zap.String("service", r.name),
		zap.String("path", path),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Item) validate(ctx context.Context) (*http.Request, error) {
	if i == nil {
		return nil, errRequestItemNil
	}
	if i.Path == "" {
		return nil, errInvalidPath
	}

	req, err := http.NewRequestWithContext(ctx, i.Method, i.Path, i.Body)
	if err != nil {
		return nil, err
	}
	for k, v := range i.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get(userAgentHeader) == "" {
		req.Header.Set(userAgentHeader, defaultUserAgent)
	}
	return req, nil
}

// retryAfter honours a Retry-After header when present
func retryAfter(resp *http.Response, now time.Time) time.Duration {
	h := resp.Header.Get(retryAfterHeader)
	if h == "" {
		return 0
	}
	if after, err := time.Parse(time.RFC1123, h); err == nil {
		return after.Sub(now)
	}
	if secs, err := time.ParseDuration(h + "s"); err == nil {
		return secs
	}
	return 0
}

// drainBody reads off the remaining body so the connection can be re-used
func drainBody(body io.ReadCloser) {
	defer body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(body, drainBodyLimit))
}
