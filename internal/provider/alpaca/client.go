// Package alpaca implements the provider client for the Alpaca
// brokerage. Market data and trading live on different hosts; paper
// trading uses a third host for trading only.
package alpaca

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/openfold/brokergate/internal/core"
	"github.com/openfold/brokergate/internal/provider"
	"github.com/tidwall/gjson"
)

const (
	dataURL       = "https://data.alpaca.markets"
	tradingURL    = "https://api.alpaca.markets"
	paperURL      = "https://paper-api.alpaca.markets"
	headerKeyID   = "APCA-API-KEY-ID"
	headerSecret  = "APCA-API-SECRET-KEY"
	ratePerMinute = 200
)

// Alpaca implements provider.Client.
type Alpaca struct {
	desc provider.Descriptor
}

// New creates a new Alpaca client
func New() *Alpaca {
	return &Alpaca{
		desc: provider.Descriptor{
			ID:          "alpaca",
			DisplayName: "Alpaca",
			AuthScheme:  provider.AuthAPIKeySecret,
			Capabilities: []provider.Capability{
				provider.CapQuotes, provider.CapBars, provider.CapPositions,
				provider.CapOrders, provider.CapAccount,
			},
			Endpoints: map[provider.Operation]provider.EndpointRef{
				provider.OpGetQuote:     {Capability: provider.CapQuotes, Method: "GET", Host: provider.HostMarketData, Path: "/v2/stocks/{symbol}/quotes/latest"},
				provider.OpGetBars:      {Capability: provider.CapBars, Method: "GET", Host: provider.HostMarketData, Path: "/v2/stocks/{symbol}/bars"},
				provider.OpGetPositions: {Capability: provider.CapPositions, Method: "GET", Host: provider.HostTrading, Path: "/v2/positions"},
				provider.OpGetOrders:    {Capability: provider.CapOrders, Method: "GET", Host: provider.HostTrading, Path: "/v2/orders"},
				provider.OpPlaceOrder:   {Capability: provider.CapOrders, Method: "POST", Host: provider.HostTrading, Path: "/v2/orders"},
				provider.OpGetAccount:   {Capability: provider.CapAccount, Method: "GET", Host: provider.HostTrading, Path: "/v2/account"},
			},
			RateLimit: provider.RateLimit{PerMinute: ratePerMinute, Burst: 10},
			BaseURLs: map[core.Mode]map[provider.HostKind]string{
				core.ModeLive: {
					provider.HostMarketData: dataURL,
					provider.HostTrading:    tradingURL,
				},
				// Market data is served from the live data host even
				// for paper accounts.
				core.ModePaper: {
					provider.HostMarketData: dataURL,
					provider.HostTrading:    paperURL,
				},
			},
		},
	}
}

func (a *Alpaca) Name() string {
	return "alpaca"
}

func (a *Alpaca) Descriptor() provider.Descriptor {
	return a.desc
}

// BuildRequest builds an authenticated request for the operation.
func (a *Alpaca) BuildRequest(op provider.Operation, params map[string]any, creds provider.Credentials) (*provider.RequestSpec, error) {
	ep, ok := a.desc.Endpoint(op)
	if !ok {
		return nil, core.WrapError(core.ErrUnsupportedCapability,
			fmt.Errorf("alpaca does not implement %s", op))
	}

	keyID, okID := creds.Get("api_key")
	secret, okSecret := creds.Get("api_secret")
	if !okID || !okSecret {
		return nil, core.WrapError(core.ErrMissingCredentials,
			fmt.Errorf("alpaca requires api_key and api_secret"))
	}

	base, err := a.desc.BaseURL(creds.Mode, ep.Host)
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidInput, err)
	}

	var body []byte
	urlParams := params
	if op == provider.OpPlaceOrder {
		body, err = orderBody(params)
		if err != nil {
			return nil, err
		}
		urlParams = nil
	} else if op == provider.OpGetBars {
		urlParams = barParams(params)
	}

	u, err := provider.BuildURL(base, ep.Path, urlParams)
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidInput, err)
	}

	header := http.Header{}
	header.Set(headerKeyID, keyID)
	header.Set(headerSecret, secret)
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

// barParams maps canonical bar params onto Alpaca's query names.
func barParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		switch k {
		case "interval":
			out["timeframe"] = v
		default:
			out[k] = v
		}
	}
	return out
}

func orderBody(params map[string]any) ([]byte, error) {
	req, ok := params["order"].(core.OrderRequest)
	if !ok {
		return nil, core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("place_order requires an order request"))
	}

	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	tif := req.TimeInForce
	if tif == "" {
		tif = "day"
	}

	payload := map[string]any{
		"symbol":          req.Symbol,
		"qty":             fmt.Sprintf("%g", req.Quantity),
		"side":            string(req.Side),
		"type":            string(req.Type),
		"time_in_force":   tif,
		"client_order_id": clientID,
	}
	if req.Type == core.OrderTypeLimit {
		payload["limit_price"] = fmt.Sprintf("%g", req.LimitPrice)
	}
	if req.Type == core.OrderTypeStop {
		payload["stop_price"] = fmt.Sprintf("%g", req.StopPrice)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidInput, err)
	}
	return body, nil
}

// ParseResponse checks status and Alpaca's {"message": ...} error
// envelope and returns the raw body for normalization.
func (a *Alpaca) ParseResponse(op provider.Operation, status int, body []byte) (*provider.RawResult, error) {
	if status == http.StatusTooManyRequests {
		return nil, core.NewRateLimited(0)
	}
	if status < 200 || status > 299 {
		return nil, core.NewHTTPError(status, string(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, core.NewParseError(fmt.Errorf("alpaca: invalid JSON body"))
	}
	// Alpaca reports some failures with a 200 and a message envelope.
	if op == provider.OpGetQuote && gjson.GetBytes(body, "message").Exists() && !gjson.GetBytes(body, "quote").Exists() {
		return nil, core.NewHTTPError(status, string(body))
	}
	return &provider.RawResult{Provider: "alpaca", Operation: op, Body: body}, nil
}
