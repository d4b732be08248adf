package request

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jhonabreul/krakenbrokerage/exchanges/nonce"
)

func instantBackoff() Backoff {
	return func(int) time.Duration { return time.Millisecond }
}

func TestSendPayloadNilChecks(t *testing.T) {
	t.Parallel()
	var r *Requester
	err := r.SendPayload(context.Background(), Unset, nil, UnauthenticatedRequest)
	assert.ErrorIs(t, err, errRequestSystemIsNil, "nil requester should error")

	r = New("test", nil, zap.NewNop())
	err = r.SendPayload(context.Background(), Unset, nil, UnauthenticatedRequest)
	assert.ErrorIs(t, err, errRequestFunctionIsNil, "nil generate function should error")

	err = r.SendPayload(context.Background(), Unset, func() (*Item, error) { return nil, nil }, UnauthenticatedRequest)
	assert.ErrorIs(t, err, errRequestItemNil, "nil item should error")

	err = r.SendPayload(context.Background(), Unset, func() (*Item, error) { return &Item{}, nil }, UnauthenticatedRequest)
	assert.ErrorIs(t, err, errInvalidPath, "empty path should error")
}

func TestSendPayload(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"field":"ok"}`))
	}))
	defer srv.Close()

	r := New("test", srv.Client(), zap.NewNop())
	var result struct {
		Field string `json:"field"`
	}
	err := r.SendPayload(context.Background(), Unset, func() (*Item, error) {
		return &Item{Method: http.MethodGet, Path: srv.URL, Result: &result}, nil
	}, UnauthenticatedRequest)
	require.NoError(t, err, "SendPayload must not error")
	assert.Equal(t, "ok", result.Field, "response should unmarshal into result")
}

func TestSendPayloadRetriesThrottled(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	r := New("test", srv.Client(), zap.NewNop(), WithBackoff(instantBackoff()))
	err := r.SendPayload(context.Background(), Unset, func() (*Item, error) {
		return &Item{Method: http.MethodGet, Path: srv.URL}, nil
	}, UnauthenticatedRequest)
	require.NoError(t, err, "SendPayload must succeed after retries")
	assert.Equal(t, int32(3), hits.Load(), "server should have been hit three times")
}

func TestSendPayloadRetryCeiling(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	r := New("test", srv.Client(), zap.NewNop(), WithBackoff(instantBackoff()), WithMaxRetries(2))
	err := r.SendPayload(context.Background(), Unset, func() (*Item, error) {
		return &Item{Method: http.MethodGet, Path: srv.URL}, nil
	}, UnauthenticatedRequest)
	assert.ErrorIs(t, err, ErrRateLimited, "exhausted retries should surface ErrRateLimited")
}

func TestSendPayloadRegeneratesOnRetry(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	var generated atomic.Int32
	r := New("test", srv.Client(), zap.NewNop(), WithBackoff(instantBackoff()))
	err := r.SendPayload(context.Background(), Unset, func() (*Item, error) {
		generated.Add(1)
		return &Item{Method: http.MethodPost, Path: srv.URL, Body: strings.NewReader("nonce=1")}, nil
	}, AuthenticatedRequest)
	require.NoError(t, err, "SendPayload must succeed on second attempt")
	assert.Equal(t, int32(2), generated.Load(), "generate should run once per attempt so nonces are fresh")
}

func TestGetNonceMonotonic(t *testing.T) {
	t.Parallel()
	r := New("test", nil, zap.NewNop())
	a := r.GetNonce(nonce.UnixNano)
	b := r.GetNonce(nonce.UnixNano)
	assert.Greater(t, int64(b), int64(a), "nonces should strictly increase")
}

func TestLimiterWait(t *testing.T) {
	t.Parallel()
	defs := RateLimitDefinitions{EndpointLimit(0): rate.NewLimiter(rate.Every(10*time.Millisecond), 1)}
	l := NewLimiter(defs)

	require.NoError(t, l.Wait(context.Background(), Unset), "Unset endpoint must bypass limits")
	require.NoError(t, l.Wait(context.Background(), EndpointLimit(0)), "first request must pass immediately")

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), EndpointLimit(0)), "second request must pass after refill")
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond, "second request should have been throttled")

	assert.ErrorIs(t, l.Wait(context.Background(), EndpointLimit(99)), errLimiterNotFound, "unknown endpoint should error")
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()
	resp := &http.Response{Header: http.Header{}}
	assert.Zero(t, retryAfter(resp, time.Now()), "absent header should yield zero")

	resp.Header.Set(retryAfterHeader, "2")
	assert.Equal(t, 2*time.Second, retryAfter(resp, time.Now()), "numeric header should parse as seconds")
}

func TestSendPayloadRetriesEnvelopeThrottle(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.Write([]byte(`{"error":["EAPI:Rate limit exceeded"]}`))
			return
		}
		w.Write([]byte(`{"error":[],"field":"ok"}`))
	}))
	defer srv.Close()

	inspect := func(body []byte) error {
		if strings.Contains(string(body), "Rate limit") {
			return fmt.Errorf("%w: EAPI:Rate limit exceeded", ErrRateLimited)
		}
		return nil
	}

	var result struct {
		Field string `json:"field"`
	}
	r := New("test", srv.Client(), zap.NewNop(), WithBackoff(instantBackoff()))
	err := r.SendPayload(context.Background(), Unset, func() (*Item, error) {
		return &Item{Method: http.MethodGet, Path: srv.URL, Result: &result, InspectBody: inspect}, nil
	}, UnauthenticatedRequest)
	require.NoError(t, err, "throttling inside a 200 envelope must be retried")
	assert.Equal(t, int32(3), hits.Load(), "server should have been hit three times")
	assert.Equal(t, "ok", result.Field, "the clean response should unmarshal")
}

func TestSendPayloadEnvelopeThrottleCeiling(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":["EAPI:Rate limit exceeded"]}`))
	}))
	defer srv.Close()

	r := New("test", srv.Client(), zap.NewNop(), WithBackoff(instantBackoff()), WithMaxRetries(1))
	err := r.SendPayload(context.Background(), Unset, func() (*Item, error) {
		return &Item{Method: http.MethodGet, Path: srv.URL, InspectBody: func([]byte) error {
			return fmt.Errorf("%w: EAPI:Rate limit exceeded", ErrRateLimited)
		}}, nil
	}, UnauthenticatedRequest)
	assert.ErrorIs(t, err, ErrRateLimited, "exhausted envelope retries should surface ErrRateLimited")
}

func TestSendPayloadInspectBodySurfacesOtherErrors(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	sentinel := errors.New("bad payload")
	r := New("test", srv.Client(), zap.NewNop(), WithBackoff(instantBackoff()))
	err := r.SendPayload(context.Background(), Unset, func() (*Item, error) {
		return &Item{Method: http.MethodGet, Path: srv.URL, InspectBody: func([]byte) error {
			return sentinel
		}}, nil
	}, UnauthenticatedRequest)
	assert.ErrorIs(t, err, sentinel, "non-throttle inspection failures must surface immediately")
	assert.Equal(t, int32(1), hits.Load(), "non-throttle failures must not be retried")
}

func TestSendPayloadTimeoutExhaustion(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 5 * time.Millisecond}
	r := New("test", client, zap.NewNop(), WithBackoff(instantBackoff()), WithMaxRetries(1))
	err := r.SendPayload(context.Background(), Unset, func() (*Item, error) {
		return &Item{Method: http.MethodGet, Path: srv.URL}, nil
	}, UnauthenticatedRequest)
	assert.ErrorIs(t, err, ErrTimedOut, "exhausted timeout retries should surface ErrTimedOut")
	assert.NotErrorIs(t, err, ErrRateLimited, "a timeout is not a rate limit")
}
