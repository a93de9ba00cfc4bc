// Package demo implements a synthetic data provider. It exists so
// operators can exercise the gateway without live credentials; it is
// an explicit opt-in provider with its own capability flag, never a
// silent fallback inside a real provider.
package demo

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/openfold/brokergate/internal/core"
	"github.com/openfold/brokergate/internal/provider"
)

// Demo implements provider.Client and provider.Local.
type Demo struct {
	desc provider.Descriptor
	now  func() time.Time
}

// New creates a new demo provider
func New() *Demo {
	return &Demo{
		desc: provider.Descriptor{
			ID:          "demo",
			DisplayName: "Demo (synthetic data)",
			AuthScheme:  provider.AuthNone,
			Capabilities: []provider.Capability{
				provider.CapDemo, provider.CapQuotes, provider.CapBars,
			},
			Endpoints: map[provider.Operation]provider.EndpointRef{
				provider.OpGetQuote: {Capability: provider.CapQuotes, Method: "GET", Host: provider.HostMarketData, Path: "/quotes/{symbol}"},
				provider.OpGetBars:  {Capability: provider.CapBars, Method: "GET", Host: provider.HostMarketData, Path: "/bars/{symbol}"},
			},
			BaseURLs: map[core.Mode]map[provider.HostKind]string{
				core.ModeLive: {
					provider.HostMarketData: "local://demo",
					provider.HostTrading:    "local://demo",
				},
			},
		},
		now: time.Now,
	}
}

// NewWithClock creates a demo provider with a fixed clock (for testing).
func NewWithClock(now func() time.Time) *Demo {
	d := New()
	d.now = now
	return d
}

func (d *Demo) Name() string {
	return "demo"
}

func (d *Demo) Descriptor() provider.Descriptor {
	return d.desc
}

// BuildRequest exists to satisfy provider.Client; the gateway never
// dispatches demo requests because the client is Local.
func (d *Demo) BuildRequest(op provider.Operation, params map[string]any, creds provider.Credentials) (*provider.RequestSpec, error) {
	ep, ok := d.desc.Endpoint(op)
	if !ok {
		return nil, core.WrapError(core.ErrUnsupportedCapability,
			fmt.Errorf("demo does not implement %s", op))
	}
	u, err := provider.BuildURL("local://demo", ep.Path, params)
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidInput, err)
	}
	return &provider.RequestSpec{Method: ep.Method, URL: u}, nil
}

func (d *Demo) ParseResponse(op provider.Operation, status int, body []byte) (*provider.RawResult, error) {
	if status < 200 || status > 299 {
		return nil, core.NewHTTPError(status, string(body))
	}
	return &provider.RawResult{Provider: "demo", Operation: op, Body: body}, nil
}

// Execute serves deterministic synthetic data: the same symbol always
// yields the same base price, so repeated demo calls are stable.
func (d *Demo) Execute(op provider.Operation, params map[string]any) (*provider.RawResult, error) {
	symbol, _ := params["symbol"].(string)
	if symbol == "" {
		return nil, core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("demo %s requires symbol", op))
	}

	switch op {
	case provider.OpGetQuote:
		return d.quote(symbol)
	case provider.OpGetBars:
		interval, _ := params["interval"].(string)
		if interval == "" {
			interval = "1Day"
		}
		return d.bars(symbol, interval)
	default:
		return nil, core.WrapError(core.ErrUnsupportedCapability,
			fmt.Errorf("demo does not implement %s", op))
	}
}

// basePrice derives a stable pseudo-price from the symbol name.
func basePrice(symbol string) float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return 20 + float64(h.Sum32()%98000)/100
}

func (d *Demo) quote(symbol string) (*provider.RawResult, error) {
	price := basePrice(symbol)
	body, err := json.Marshal(map[string]any{
		"symbol":    symbol,
		"price":     price,
		"bid":       price - 0.02,
		"ask":       price + 0.02,
		"volume":    125000,
		"timestamp": d.now().UTC().Unix(),
	})
	if err != nil {
		return nil, core.NewParseError(err)
	}
	return &provider.RawResult{Provider: "demo", Operation: provider.OpGetQuote, Body: body}, nil
}

func (d *Demo) bars(symbol, interval string) (*provider.RawResult, error) {
	price := basePrice(symbol)
	end := d.now().UTC().Truncate(24 * time.Hour)

	bars := make([]map[string]any, 0, 10)
	for i := 9; i >= 0; i-- {
		// Small deterministic drift per bar.
		drift := float64(i%5-2) * 0.4
		open := price + drift
		close := open + 0.3
		bars = append(bars, map[string]any{
			"open":      open,
			"high":      close + 0.5,
			"low":       open - 0.5,
			"close":     close,
			"volume":    100000 + i*1000,
			"timestamp": end.AddDate(0, 0, -i).Unix(),
		})
	}

	body, err := json.Marshal(map[string]any{
		"symbol":   symbol,
		"interval": interval,
		"bars":     bars,
	})
	if err != nil {
		return nil, core.NewParseError(err)
	}
	return &provider.RawResult{Provider: "demo", Operation: provider.OpGetBars, Body: body}, nil
}
