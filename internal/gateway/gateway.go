// Package gateway is the single entry point for provider calls. It
// orchestrates routing, caching, transport, parsing and normalization,
// and guarantees that every failure crossing this boundary is a typed
// *core.Error.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/openfold/brokergate/internal/callcache"
	"github.com/openfold/brokergate/internal/calllog"
	"github.com/openfold/brokergate/internal/core"
	"github.com/openfold/brokergate/internal/metrics"
	"github.com/openfold/brokergate/internal/normalize"
	"github.com/openfold/brokergate/internal/provider"
	"github.com/openfold/brokergate/internal/router"
	"github.com/openfold/brokergate/internal/transport"
	"go.uber.org/zap"
)

// validSymbol matches symbols like AAPL, BRK.B, AAPL_US_EQ.
var validSymbol = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._]{0,19}$`)

var validIntervals = map[string]bool{
	"1Min": true, "5Min": true, "15Min": true, "30Min": true,
	"1Hour": true, "1Day": true, "1Week": true, "1Month": true,
}

// Dispatcher executes a built request. *transport.Transport is the
// production implementation; tests substitute counters and fakes.
type Dispatcher interface {
	Do(ctx context.Context, providerID string, rl provider.RateLimit, spec *provider.RequestSpec) (*transport.Result, error)
}

// Options wires the gateway's collaborators.
type Options struct {
	Router    *router.Router
	Cache     *callcache.Cache
	Transport Dispatcher
	Sink      calllog.Sink
	Metrics   *metrics.Registry
	Log       *zap.Logger
	CacheTTL  time.Duration
	// Fallback enables trying subsequent priority providers when the
	// selected one is unreachable. Only transport-level failures fall
	// back, and never when the caller named a provider.
	Fallback bool
}

// Gateway is the facade over all providers.
type Gateway struct {
	router    *router.Router
	cache     *callcache.Cache
	transport Dispatcher
	sink      calllog.Sink
	metrics   *metrics.Registry
	log       *zap.Logger
	cacheTTL  time.Duration
	fallback  bool

	rateMu sync.RWMutex
	rates  map[string]core.RateInfo
}

// New creates a gateway.
func New(opts Options) *Gateway {
	g := &Gateway{
		router:    opts.Router,
		cache:     opts.Cache,
		transport: opts.Transport,
		sink:      opts.Sink,
		metrics:   opts.Metrics,
		log:       opts.Log,
		cacheTTL:  opts.CacheTTL,
		fallback:  opts.Fallback,
		rates:     make(map[string]core.RateInfo),
	}
	if g.cache == nil {
		g.cache = callcache.New()
	}
	if g.sink == nil {
		g.sink = calllog.NopSink{}
	}
	if g.log == nil {
		g.log = zap.NewNop()
	}
	if g.cacheTTL == 0 {
		g.cacheTTL = 60 * time.Second
	}
	return g
}

// GetQuote returns the canonical quote for a symbol. An empty
// providerID lets the router pick by priority.
func (g *Gateway) GetQuote(ctx context.Context, symbol, providerID string) (*core.Quote, error) {
	if !validSymbol.MatchString(symbol) {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("invalid symbol %q", symbol))
	}

	raw, err := g.routed(ctx, core.DataQuote, providerID, provider.OpGetQuote, map[string]any{"symbol": symbol})
	if err != nil {
		return nil, err
	}
	return normalize.Quote(raw, symbol)
}

// GetBars returns canonical bars. start/end bound the range when
// non-zero.
func (g *Gateway) GetBars(ctx context.Context, symbol, interval string, start, end time.Time, providerID string) ([]core.Bar, error) {
	if !validSymbol.MatchString(symbol) {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("invalid symbol %q", symbol))
	}
	if !validIntervals[interval] {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("invalid interval %q", interval))
	}

	params := map[string]any{"symbol": symbol, "interval": interval}
	if !start.IsZero() {
		params["start"] = start.UTC().Format(time.RFC3339)
	}
	if !end.IsZero() {
		params["end"] = end.UTC().Format(time.RFC3339)
	}

	raw, err := g.routed(ctx, core.DataBars, providerID, provider.OpGetBars, params)
	if err != nil {
		return nil, err
	}
	return normalize.Bars(raw, symbol, interval)
}

// GetPositions returns open positions. The provider must be named:
// positions are account-scoped and cross-provider aggregation belongs
// to the caller.
func (g *Gateway) GetPositions(ctx context.Context, accountRef, providerID string) ([]core.Position, error) {
	if providerID == "" {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("positions require an explicit provider"))
	}
	params := map[string]any{}
	if accountRef != "" {
		params["account_id"] = accountRef
	}
	raw, err := g.routed(ctx, core.DataPositions, providerID, provider.OpGetPositions, params)
	if err != nil {
		return nil, err
	}
	return normalize.Positions(raw)
}

// GetOrders returns open orders for a named provider.
func (g *Gateway) GetOrders(ctx context.Context, accountRef, providerID string) ([]core.OrderAck, error) {
	if providerID == "" {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("orders require an explicit provider"))
	}
	params := map[string]any{}
	if accountRef != "" {
		params["account_id"] = accountRef
	}
	raw, err := g.routed(ctx, core.DataOrders, providerID, provider.OpGetOrders, params)
	if err != nil {
		return nil, err
	}
	return normalize.Orders(raw)
}

// GetAccount returns the canonical account summary for a provider.
func (g *Gateway) GetAccount(ctx context.Context, providerID string) (*core.Account, error) {
	if providerID == "" {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("account requires an explicit provider"))
	}
	raw, err := g.routed(ctx, core.DataAccount, providerID, provider.OpGetAccount, nil)
	if err != nil {
		return nil, err
	}
	return normalize.Account(raw)
}

// PlaceOrder submits an order through a named provider. Orders are
// never cached or deduplicated: two identical requests are two orders.
func (g *Gateway) PlaceOrder(ctx context.Context, order core.OrderRequest, providerID string) (*core.OrderAck, error) {
	if providerID == "" {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("orders require an explicit provider"))
	}
	if order.Symbol == "" || order.Quantity <= 0 {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("order requires a symbol and positive quantity"))
	}

	raw, err := g.routed(ctx, core.DataOrders, providerID, provider.OpPlaceOrder, map[string]any{"order": order})
	if err != nil {
		return nil, err
	}
	return normalize.OrderAck(raw)
}

// Notify posts a message through a notification-capable provider.
func (g *Gateway) Notify(ctx context.Context, content, providerID string) error {
	if providerID == "" {
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("notifications require an explicit provider"))
	}
	_, err := g.routed(ctx, core.DataNotification, providerID, provider.OpPostMessage, map[string]any{"content": content})
	return err
}

// Execute is the escape hatch for provider operations not modeled
// canonically. The raw result is returned unnormalized.
func (g *Gateway) Execute(ctx context.Context, providerID string, op provider.Operation, params map[string]any) (*provider.RawResult, error) {
	if providerID == "" {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("execute requires an explicit provider"))
	}
	dt := op.DataType()
	if dt == "" {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("unknown operation %q", op))
	}
	return g.routed(ctx, dt, providerID, op, params)
}

// routed selects a provider and runs the call, falling back through
// the priority list on transport failure when enabled and when the
// caller did not name a provider.
func (g *Gateway) routed(ctx context.Context, dt core.DataType, explicit string, op provider.Operation, params map[string]any) (*provider.RawResult, error) {
	client, creds, err := g.router.Select(dt, explicit)
	if err != nil {
		return nil, err
	}

	raw, err := g.call(ctx, client, creds, op, params)
	if err == nil || explicit != "" || !g.fallback || !errors.Is(err, core.ErrProviderUnavailable) {
		return raw, err
	}

	for current := client.Name(); ; {
		next, nextCreds, ok := g.router.Next(dt, current)
		if !ok {
			return nil, err
		}
		g.log.Warn("provider unavailable, falling back",
			zap.String("from", current),
			zap.String("to", next.Name()),
		)
		raw, err = g.call(ctx, next, nextCreds, op, params)
		if err == nil || !errors.Is(err, core.ErrProviderUnavailable) {
			return raw, err
		}
		current = next.Name()
	}
}

// mutating operations bypass the cache and dedup entirely.
func mutating(op provider.Operation) bool {
	return op == provider.OpPlaceOrder || op == provider.OpPostMessage
}

// call runs one provider call through cache, transport and parsing,
// then emits the call record.
func (g *Gateway) call(ctx context.Context, client provider.Client, creds provider.Credentials, op provider.Operation, params map[string]any) (*provider.RawResult, error) {
	started := time.Now()

	raw, cached, err := g.dispatch(ctx, client, creds, op, params)

	status := "ok"
	var gwErr *core.Error
	if err != nil && errors.As(err, &gwErr) {
		status = gwErr.Code
		if gwErr.Code == core.ErrRateLimited.Code {
			g.recordRate(client.Name(), core.RateInfo{
				Remaining:  0,
				Exhausted:  true,
				RetryAfter: gwErr.RetryAfter,
			})
		}
	} else if err != nil {
		status = "ERROR"
	}

	elapsed := time.Since(started)
	g.emit(calllog.Record{
		Time:       started.UTC(),
		Provider:   client.Name(),
		Operation:  string(op),
		Status:     status,
		DurationMS: elapsed.Milliseconds(),
		Cached:     cached,
	})
	if g.metrics != nil {
		g.metrics.ObserveRequest(client.Name(), string(op), status, elapsed.Seconds())
		g.metrics.ObserveCache(cached)
		if err != nil && gwErr != nil {
			g.metrics.ObserveProviderError(client.Name(), gwErr.Code)
		}
	}
	return raw, err
}

func (g *Gateway) dispatch(ctx context.Context, client provider.Client, creds provider.Credentials, op provider.Operation, params map[string]any) (*provider.RawResult, bool, error) {
	// Local providers (demo) serve without network I/O but still go
	// through the cache for read operations.
	if local, ok := client.(provider.Local); ok {
		if mutating(op) {
			raw, err := local.Execute(op, params)
			return raw, false, err
		}
		key := callcache.Key(client.Name(), op, fmt.Sprint(params))
		return g.cache.GetOrFetch(ctx, key, g.cacheTTL, func(ctx context.Context) (*provider.RawResult, bool, error) {
			raw, err := local.Execute(op, params)
			return raw, err == nil, err
		})
	}

	spec, err := client.BuildRequest(op, params, creds)
	if err != nil {
		// No network call is attempted when the request cannot be
		// built (missing credentials, bad params).
		return nil, false, err
	}

	fetch := func(ctx context.Context) (*provider.RawResult, bool, error) {
		res, err := g.transport.Do(ctx, client.Name(), client.Descriptor().RateLimit, spec)
		if err != nil {
			return nil, false, err
		}
		if res.Rate.Declared() {
			g.recordRate(client.Name(), res.Rate)
		}
		if res.Rate.Exhausted {
			g.log.Warn("provider rate quota exhausted",
				zap.String("provider", client.Name()),
				zap.Duration("retry_after", res.Rate.RetryAfter),
			)
			if g.metrics != nil {
				g.metrics.ObserveRateExhausted(client.Name())
			}
		}
		raw, err := client.ParseResponse(op, res.Status, res.Body)
		if err != nil {
			return nil, false, err
		}
		return raw, cacheable(raw, params), nil
	}

	if mutating(op) {
		raw, _, err := fetch(ctx)
		return raw, false, err
	}

	key := callcache.Key(client.Name(), op, spec.Method+" "+spec.URL+" "+string(spec.Body))
	return g.cache.GetOrFetch(ctx, key, g.cacheTTL, fetch)
}

// cacheable rejects results that must never be served from cache: for
// quotes, anything that does not normalize to a positive price. A zero
// or negative price is either a provider error or a halted instrument;
// serving it for a whole TTL window would mask recovery.
func cacheable(raw *provider.RawResult, params map[string]any) bool {
	if raw.Operation != provider.OpGetQuote {
		return true
	}
	symbol, _ := params["symbol"].(string)
	q, err := normalize.Quote(raw, symbol)
	return err == nil && q.Price > 0
}

func (g *Gateway) recordRate(providerID string, info core.RateInfo) {
	g.rateMu.Lock()
	g.rates[providerID] = info
	g.rateMu.Unlock()
}

// RateStatus returns the rate-limit state the provider declared on
// its most recent response, so callers can throttle before the next
// call comes back 429. ok is false until a provider response carries
// rate headers.
func (g *Gateway) RateStatus(providerID string) (core.RateInfo, bool) {
	g.rateMu.RLock()
	info, ok := g.rates[providerID]
	g.rateMu.RUnlock()
	return info, ok
}

// emit sends the call record without letting a panicking sink take the
// request down with it.
func (g *Gateway) emit(rec calllog.Record) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Warn("call log sink panicked", zap.Any("panic", r))
		}
	}()
	g.sink.Log(rec)
}
