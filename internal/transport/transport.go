// Package transport executes built request specs. It owns the only
// blocking I/O in the pipeline: every call has a bounded timeout, is
// cancellable through its context, and transient transport failures
// get exactly one retry. Non-transient failures are never retried here.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/openfold/brokergate/internal/core"
	"github.com/openfold/brokergate/internal/provider"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 15 * time.Second
	retryDelay     = 250 * time.Millisecond
	maxBodyBytes   = 4 << 20
)

// Result is a raw HTTP outcome: status and body for the provider
// client to parse, plus rate-limit telemetry.
type Result struct {
	Status int
	Body   []byte
	Rate   core.RateInfo
}

// Transport dispatches request specs with per-provider rate limiting.
type Transport struct {
	client   *http.Client
	limiters *limiterPool
}

// New creates a transport with the given per-request timeout.
func New(timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Transport{
		client:   &http.Client{Timeout: timeout},
		limiters: newLimiterPool(),
	}
}

// Do executes a built request. Transport-level failures (DNS, timeout,
// connection reset) map to PROVIDER_UNAVAILABLE after one retry; a 429
// maps to RATE_LIMITED with the provider's Retry-After. Other statuses
// are returned for the provider client to interpret.
func (t *Transport) Do(ctx context.Context, providerID string, rl provider.RateLimit, spec *provider.RequestSpec) (*Result, error) {
	if lim := t.limiters.get(providerID, rl); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// The local bucket cannot admit the request before the
			// caller's deadline.
			return nil, core.WrapError(core.ErrRateLimited, err)
		}
	}

	resp, err := t.roundTrip(ctx, spec)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Transient transport errors are often one-off; retry once
		// with a short fixed delay.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
		resp, err = t.roundTrip(ctx, spec)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, core.WrapError(core.ErrProviderUnavailable, err)
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.WrapError(core.ErrProviderUnavailable, fmt.Errorf("reading body: %w", err))
	}

	info := rateInfo(resp.Header)
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, core.NewRateLimited(info.RetryAfter)
	}

	return &Result{Status: resp.StatusCode, Body: body, Rate: info}, nil
}

func (t *Transport) roundTrip(ctx context.Context, spec *provider.RequestSpec) (*http.Response, error) {
	var body io.Reader
	if len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(ctx, spec.Method, spec.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range spec.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// rateInfo extracts the rate-limit headers providers commonly send.
func rateInfo(h http.Header) core.RateInfo {
	info := core.RateInfo{Remaining: -1}

	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.Remaining = n
			info.Exhausted = n <= 0
		}
	}
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			info.RetryAfter = time.Duration(secs * float64(time.Second))
		}
	}
	if info.RetryAfter == 0 {
		if v := h.Get("X-RateLimit-Reset-After"); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil {
				info.RetryAfter = time.Duration(secs * float64(time.Second))
			}
		}
	}
	return info
}

// limiterPool keeps one token bucket per provider, built from the
// provider's declared quota.
type limiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newLimiterPool() *limiterPool {
	return &limiterPool{
		limiters: make(map[string]*rate.Limiter),
	}
}

func (p *limiterPool) get(providerID string, rl provider.RateLimit) *rate.Limiter {
	if rl.PerMinute <= 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if lim, ok := p.limiters[providerID]; ok {
		return lim
	}
	burst := rl.Burst
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(float64(rl.PerMinute)/60), burst)
	p.limiters[providerID] = lim
	return lim
}
