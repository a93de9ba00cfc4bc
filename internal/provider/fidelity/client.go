// Package fidelity implements the provider client for the Fidelity
// brokerage research and account APIs.
package fidelity

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/openfold/brokergate/internal/core"
	"github.com/openfold/brokergate/internal/provider"
	"github.com/tidwall/gjson"
)

const (
	liveURL    = "https://api.fidelity.com"
	sandboxURL = "https://api-sandbox.fidelity.com"
)

// Fidelity implements provider.Client.
type Fidelity struct {
	desc provider.Descriptor
}

// New creates a new Fidelity client
func New() *Fidelity {
	return &Fidelity{
		desc: provider.Descriptor{
			ID:          "fidelity",
			DisplayName: "Fidelity",
			AuthScheme:  provider.AuthBearer,
			Capabilities: []provider.Capability{
				provider.CapQuotes, provider.CapBars, provider.CapPositions,
				provider.CapAccount,
			},
			Endpoints: map[provider.Operation]provider.EndpointRef{
				provider.OpGetQuote:     {Capability: provider.CapQuotes, Method: "GET", Host: provider.HostMarketData, Path: "/research/quotes/{symbol}"},
				provider.OpGetBars:      {Capability: provider.CapBars, Method: "GET", Host: provider.HostMarketData, Path: "/research/history/{symbol}"},
				provider.OpGetPositions: {Capability: provider.CapPositions, Method: "GET", Host: provider.HostTrading, Path: "/accounts/{account_id}/positions"},
				provider.OpGetAccount:   {Capability: provider.CapAccount, Method: "GET", Host: provider.HostTrading, Path: "/accounts/{account_id}/summary"},
			},
			RateLimit: provider.RateLimit{PerMinute: 60, Burst: 5},
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

func (f *Fidelity) Name() string {
	return "fidelity"
}

func (f *Fidelity) Descriptor() provider.Descriptor {
	return f.desc
}

func (f *Fidelity) BuildRequest(op provider.Operation, params map[string]any, creds provider.Credentials) (*provider.RequestSpec, error) {
	ep, ok := f.desc.Endpoint(op)
	if !ok {
		return nil, core.WrapError(core.ErrUnsupportedCapability,
			fmt.Errorf("fidelity does not implement %s", op))
	}

	token, okToken := creds.Get("access_token")
	if !okToken {
		return nil, core.WrapError(core.ErrMissingCredentials,
			fmt.Errorf("fidelity requires access_token"))
	}

	base, err := f.desc.BaseURL(creds.Mode, ep.Host)
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidInput, err)
	}

	urlParams := make(map[string]any, len(params)+1)
	for k, v := range params {
		urlParams[k] = v
	}
	// Account-scoped paths take the configured account when the caller
	// gave none; data paths never see it.
	if op == provider.OpGetPositions || op == provider.OpGetAccount {
		if _, ok := urlParams["account_id"]; !ok {
			if acct, okAcct := creds.Get("account_id"); okAcct {
				urlParams["account_id"] = acct
			}
		}
	}

	u, err := provider.BuildURL(base, ep.Path, urlParams)
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidInput, err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("Accept", "application/json")
	header.Set("X-Request-ID", uuid.NewString())

	return &provider.RequestSpec{
		Method: ep.Method,
		URL:    u,
		Header: header,
	}, nil
}

// ParseResponse checks status and Fidelity's {"error": {"message"}}
// envelope.
func (f *Fidelity) ParseResponse(op provider.Operation, status int, body []byte) (*provider.RawResult, error) {
	if status == http.StatusTooManyRequests {
		return nil, core.NewRateLimited(0)
	}
	if status < 200 || status > 299 {
		return nil, core.NewHTTPError(status, string(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, core.NewParseError(fmt.Errorf("fidelity: invalid JSON body"))
	}
	if gjson.GetBytes(body, "error").Exists() {
		return nil, core.NewHTTPError(status, string(body))
	}
	return &provider.RawResult{Provider: "fidelity", Operation: op, Body: body}, nil
}
