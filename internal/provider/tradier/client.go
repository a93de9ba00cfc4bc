// Package tradier implements the provider client for the Tradier
// brokerage. All endpoints share one host per mode; failures arrive in
// a "fault" envelope, sometimes with a 200 status.
package tradier

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/openfold/brokergate/internal/core"
	"github.com/openfold/brokergate/internal/provider"
	"github.com/tidwall/gjson"
)

const (
	liveURL    = "https://api.tradier.com/v1"
	sandboxURL = "https://sandbox.tradier.com/v1"
)

// Tradier implements provider.Client.
type Tradier struct {
	desc provider.Descriptor
}

// New creates a new Tradier client
func New() *Tradier {
	return &Tradier{
		desc: provider.Descriptor{
			ID:          "tradier",
			DisplayName: "Tradier",
			AuthScheme:  provider.AuthBearer,
			Capabilities: []provider.Capability{
				provider.CapQuotes, provider.CapBars, provider.CapPositions,
				provider.CapOrders, provider.CapAccount, provider.CapOptions,
			},
			Endpoints: map[provider.Operation]provider.EndpointRef{
				provider.OpGetQuote:     {Capability: provider.CapQuotes, Method: "GET", Host: provider.HostMarketData, Path: "/markets/quotes"},
				provider.OpGetBars:      {Capability: provider.CapBars, Method: "GET", Host: provider.HostMarketData, Path: "/markets/history"},
				provider.OpGetPositions: {Capability: provider.CapPositions, Method: "GET", Host: provider.HostTrading, Path: "/accounts/{account_id}/positions"},
				provider.OpGetOrders:    {Capability: provider.CapOrders, Method: "GET", Host: provider.HostTrading, Path: "/accounts/{account_id}/orders"},
				provider.OpPlaceOrder:   {Capability: provider.CapOrders, Method: "POST", Host: provider.HostTrading, Path: "/accounts/{account_id}/orders"},
				provider.OpGetAccount:   {Capability: provider.CapAccount, Method: "GET", Host: provider.HostTrading, Path: "/accounts/{account_id}/balances"},
			},
			RateLimit: provider.RateLimit{PerMinute: 120, Burst: 5},
			BaseURLs: map[core.Mode]map[provider.HostKind]string{
				core.ModeLive: {
					provider.HostMarketData: liveURL,
					provider.HostTrading:    liveURL,
				},
				core.ModePaper: {
					provider.HostMarketData: sandboxURL,
					provider.HostTrading:    sandboxURL,
				},
			},
		},
	}
}

func (t *Tradier) Name() string {
	return "tradier"
}

func (t *Tradier) Descriptor() provider.Descriptor {
	return t.desc
}

func (t *Tradier) BuildRequest(op provider.Operation, params map[string]any, creds provider.Credentials) (*provider.RequestSpec, error) {
	ep, ok := t.desc.Endpoint(op)
	if !ok {
		return nil, core.WrapError(core.ErrUnsupportedCapability,
			fmt.Errorf("tradier does not implement %s", op))
	}

	token, okToken := creds.Get("access_token")
	if !okToken {
		return nil, core.WrapError(core.ErrMissingCredentials,
			fmt.Errorf("tradier requires access_token"))
	}

	base, err := t.desc.BaseURL(creds.Mode, ep.Host)
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidInput, err)
	}

	urlParams := t.translateParams(op, params, creds)

	var body []byte
	if op == provider.OpPlaceOrder {
		body, err = orderBody(params)
		if err != nil {
			return nil, err
		}
		acct := urlParams["account_id"]
		urlParams = map[string]any{}
		if acct != nil {
			urlParams["account_id"] = acct
		}
	}

	u, err := provider.BuildURL(base, ep.Path, urlParams)
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidInput, err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("Accept", "application/json")
	if body != nil {
		// Tradier's order API takes form-encoded bodies, not JSON.
		header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	return &provider.RequestSpec{
		Method: ep.Method,
		URL:    u,
		Header: header,
		Body:   body,
	}, nil
}

// translateParams maps canonical param names onto Tradier's wire names
// and injects the configured account id for account-scoped endpoints.
func (t *Tradier) translateParams(op provider.Operation, params map[string]any, creds provider.Credentials) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		switch {
		case op == provider.OpGetQuote && k == "symbol":
			out["symbols"] = v
		case op == provider.OpGetBars && k == "interval":
			out["interval"] = toInterval(fmt.Sprint(v))
		default:
			out[k] = v
		}
	}
	switch op {
	case provider.OpGetPositions, provider.OpGetOrders, provider.OpPlaceOrder, provider.OpGetAccount:
		if _, ok := out["account_id"]; !ok {
			if acct, okAcct := creds.Get("account_id"); okAcct {
				out["account_id"] = acct
			}
		}
	}
	return out
}

// toInterval maps canonical intervals onto Tradier history intervals.
func toInterval(interval string) string {
	switch interval {
	case "1Day", "1d":
		return "daily"
	case "1Week", "1w":
		return "weekly"
	case "1Month":
		return "monthly"
	default:
		return "daily"
	}
}

func orderBody(params map[string]any) ([]byte, error) {
	req, ok := params["order"].(core.OrderRequest)
	if !ok {
		return nil, core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("place_order requires an order request"))
	}

	tag := req.ClientOrderID
	if tag == "" {
		tag = uuid.NewString()
	}
	duration := req.TimeInForce
	if duration == "" {
		duration = "day"
	}

	form := url.Values{}
	form.Set("class", "equity")
	form.Set("symbol", req.Symbol)
	form.Set("side", string(req.Side))
	form.Set("quantity", fmt.Sprintf("%g", req.Quantity))
	form.Set("type", string(req.Type))
	form.Set("duration", duration)
	form.Set("tag", tag)
	if req.Type == core.OrderTypeLimit {
		form.Set("price", fmt.Sprintf("%g", req.LimitPrice))
	}
	if req.Type == core.OrderTypeStop {
		form.Set("stop", fmt.Sprintf("%g", req.StopPrice))
	}
	return []byte(form.Encode()), nil
}

// ParseResponse checks status and the fault envelope. Tradier can
// return a fault body under a 200 status, so the envelope is checked
// regardless of status code.
func (t *Tradier) ParseResponse(op provider.Operation, status int, body []byte) (*provider.RawResult, error) {
	if status == http.StatusTooManyRequests {
		return nil, core.NewRateLimited(0)
	}
	if fault := gjson.GetBytes(body, "fault"); fault.Exists() {
		return nil, core.NewHTTPError(status, string(body))
	}
	if status < 200 || status > 299 {
		return nil, core.NewHTTPError(status, string(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, core.NewParseError(fmt.Errorf("tradier: invalid JSON body"))
	}
	return &provider.RawResult{Provider: "tradier", Operation: op, Body: body}, nil
}
