package resilience

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// PoolConfig configures a ConnectionPool.
type PoolConfig struct {
	MaxIdle     int
	MaxActive   int
	IdleTimeout time.Duration
	// RequestTimeout bounds a single attempt. Zero means 30s.
	RequestTimeout time.Duration
	Retry          RetryConfig
}

// ConnectionPool is an HTTP client for one upstream. It shares a transport,
// caps in-flight requests at MaxActive and routes every call through a
// circuit breaker and the retry policy.
type ConnectionPool struct {
	client  *http.Client
	breaker *CircuitBreaker
	retry   RetryConfig
	slots   chan struct{}

	inFlight atomic.Int64
	rejected atomic.Int64
	maxIdle  int
}

// NewConnectionPool creates a pool. A nil breaker gets a default one.
func NewConnectionPool(cfg PoolConfig, cb *CircuitBreaker) *ConnectionPool {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 10
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = cfg.MaxActive
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 90 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cb == nil {
		cb = NewCircuitBreaker(CircuitBreakerConfig{})
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          cfg.MaxIdle,
		MaxConnsPerHost:       cfg.MaxActive,
		MaxIdleConnsPerHost:   cfg.MaxIdle,
		IdleConnTimeout:       cfg.IdleTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &ConnectionPool{
		client:  &http.Client{Transport: transport, Timeout: cfg.RequestTimeout},
		breaker: cb,
		retry:   cfg.Retry,
		slots:   make(chan struct{}, cfg.MaxActive),
		maxIdle: cfg.MaxIdle,
	}
}

// ErrPoolExhausted is returned when ctx ends while waiting for a slot.
type ErrPoolExhausted struct {
	MaxActive int
}

func (e *ErrPoolExhausted) Error() string {
	return fmt.Sprintf("connection pool exhausted: %d active requests", e.MaxActive)
}

// DoRequest sends a request with an optional body. Each attempt re-sends the
// full body. The caller closes the returned response body.
func (cp *ConnectionPool) DoRequest(ctx context.Context, method, url string, headers map[string]string, body []byte) (*http.Response, error) {
	select {
	case cp.slots <- struct{}{}:
	case <-ctx.Done():
		cp.rejected.Add(1)
		return nil, &ErrPoolExhausted{MaxActive: cap(cp.slots)}
	}
	cp.inFlight.Add(1)
	defer func() {
		cp.inFlight.Add(-1)
		<-cp.slots
	}()

	var resp *http.Response
	err := cp.breaker.Call(func() error {
		var err error
		resp, err = RetryHTTP(ctx, cp.retry, func() (*http.Response, error) {
			req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			for key, value := range headers {
				req.Header.Set(key, value)
			}

			start := time.Now()
			r, err := cp.client.Do(req)
			if err != nil {
				slog.Warn("Upstream request failed", "method", method, "host", req.URL.Host, "error", err,
					"duration_ms", time.Since(start).Milliseconds())
				return nil, err
			}
			slog.Debug("Upstream request completed", "method", method, "host", req.URL.Host,
				"status", r.StatusCode, "duration_ms", time.Since(start).Milliseconds())
			return r, nil
		})
		if err != nil {
			return err
		}
		// Upstream 5xx responses that survived the retries count against the breaker.
		if resp.StatusCode >= 500 {
			return NewHTTPError(resp.StatusCode, resp.Status)
		}
		return nil
	})

	var httpErr *HTTPError
	if err != nil && resp != nil && asHTTPError(err, &httpErr) {
		// The caller still gets the response to read the error body.
		return resp, nil
	}
	if err != nil {
		discard(resp)
		return nil, err
	}
	return resp, nil
}

func asHTTPError(err error, target **HTTPError) bool {
	if e, ok := err.(*HTTPError); ok {
		*target = e
		return true
	}
	return false
}

// Breaker exposes the pool's circuit breaker.
func (cp *ConnectionPool) Breaker() *CircuitBreaker {
	return cp.breaker
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"in_flight":             cp.inFlight.Load(),
		"rejected":              cp.rejected.Load(),
		"max_active":            cap(cp.slots),
		"max_idle":              cp.maxIdle,
		"circuit_breaker_state": cp.breaker.State().String(),
	}
}

// Close releases idle connections.
func (cp *ConnectionPool) Close() error {
	cp.client.CloseIdleConnections()
	slog.Info("Connection pool closed")
	return nil
}
