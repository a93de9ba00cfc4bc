// Package trading212 implements the provider client for Trading212.
// The API key goes bare in the Authorization header, and the practice
// environment lives on a separate host.
package trading212

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/openfold/brokergate/internal/core"
	"github.com/openfold/brokergate/internal/provider"
	"github.com/tidwall/gjson"
)

const (
	liveURL = "https://live.trading212.com/api/v0"
	demoURL = "https://demo.trading212.com/api/v0"
)

// Trading212 implements provider.Client.
type Trading212 struct {
	desc provider.Descriptor
}

// New creates a new Trading212 client
func New() *Trading212 {
	return &Trading212{
		desc: provider.Descriptor{
			ID:          "trading212",
			DisplayName: "Trading 212",
			AuthScheme:  provider.AuthRawToken,
			Capabilities: []provider.Capability{
				provider.CapPositions, provider.CapOrders, provider.CapAccount,
			},
			Endpoints: map[provider.Operation]provider.EndpointRef{
				provider.OpGetPositions: {Capability: provider.CapPositions, Method: "GET", Host: provider.HostTrading, Path: "/equity/portfolio"},
				provider.OpGetOrders:    {Capability: provider.CapOrders, Method: "GET", Host: provider.HostTrading, Path: "/equity/orders"},
				provider.OpPlaceOrder:   {Capability: provider.CapOrders, Method: "POST", Host: provider.HostTrading, Path: "/equity/orders/{order_kind}"},
				provider.OpGetAccount:   {Capability: provider.CapAccount, Method: "GET", Host: provider.HostTrading, Path: "/equity/account/cash"},
			},
			// Trading212 throttles hard; one request per five seconds
			// on portfolio endpoints.
			RateLimit: provider.RateLimit{PerMinute: 12, Burst: 1},
			BaseURLs: map[core.Mode]map[provider.HostKind]string{
				core.ModeLive: {
					provider.HostMarketData: liveURL,
					provider.HostTrading:    liveURL,
				},
				core.ModePaper: {
					provider.HostMarketData: demoURL,
					provider.HostTrading:    demoURL,
				},
			},
		},
	}
}

func (t *Trading212) Name() string {
	return "trading212"
}

func (t *Trading212) Descriptor() provider.Descriptor {
	return t.desc
}

func (t *Trading212) BuildRequest(op provider.Operation, params map[string]any, creds provider.Credentials) (*provider.RequestSpec, error) {
	ep, ok := t.desc.Endpoint(op)
	if !ok {
		return nil, core.WrapError(core.ErrUnsupportedCapability,
			fmt.Errorf("trading212 does not implement %s", op))
	}

	apiKey, okKey := creds.Get("api_key")
	if !okKey {
		return nil, core.WrapError(core.ErrMissingCredentials,
			fmt.Errorf("trading212 requires api_key"))
	}

	base, err := t.desc.BaseURL(creds.Mode, ep.Host)
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidInput, err)
	}

	urlParams := params
	var body []byte
	if op == provider.OpPlaceOrder {
		var kind string
		kind, body, err = orderBody(params)
		if err != nil {
			return nil, err
		}
		urlParams = map[string]any{"order_kind": kind}
	}

	u, err := provider.BuildURL(base, ep.Path, urlParams)
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidInput, err)
	}

	header := http.Header{}
	header.Set("Authorization", apiKey)
	header.Set("Accept", "application/json")
	if body != nil {
		header.Set("Content-Type", "application/json")
	}

	return &provider.RequestSpec{
		Method: ep.Method,
		URL:    u,
		Header: header,
		Body:   body,
	}, nil
}

// orderBody builds the order payload. Trading212 splits order
// placement by kind: market and limit orders post to different paths.
func orderBody(params map[string]any) (string, []byte, error) {
	req, ok := params["order"].(core.OrderRequest)
	if !ok {
		return "", nil, core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("place_order requires an order request"))
	}

	qty := req.Quantity
	if req.Side == core.OrderSideSell {
		qty = -qty
	}

	switch req.Type {
	case core.OrderTypeMarket:
		body, err := json.Marshal(map[string]any{
			"ticker":   req.Symbol,
			"quantity": qty,
		})
		if err != nil {
			return "", nil, core.WrapError(core.ErrInvalidInput, err)
		}
		return "market", body, nil
	case core.OrderTypeLimit:
		validity := "DAY"
		if req.TimeInForce == "gtc" {
			validity = "GOOD_TILL_CANCEL"
		}
		body, err := json.Marshal(map[string]any{
			"ticker":       req.Symbol,
			"quantity":     qty,
			"limitPrice":   req.LimitPrice,
			"timeValidity": validity,
		})
		if err != nil {
			return "", nil, core.WrapError(core.ErrInvalidInput, err)
		}
		return "limit", body, nil
	default:
		return "", nil, core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("trading212 does not support %s orders", req.Type))
	}
}

// ParseResponse checks status and the errorMessage envelope.
func (t *Trading212) ParseResponse(op provider.Operation, status int, body []byte) (*provider.RawResult, error) {
	if status == http.StatusTooManyRequests {
		return nil, core.NewRateLimited(0)
	}
	if status < 200 || status > 299 {
		return nil, core.NewHTTPError(status, string(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, core.NewParseError(fmt.Errorf("trading212: invalid JSON body"))
	}
	if gjson.GetBytes(body, "errorMessage").Exists() {
		return nil, core.NewHTTPError(status, string(body))
	}
	return &provider.RawResult{Provider: "trading212", Operation: op, Body: body}, nil
}
