package tradier

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/openfold/brokergate/internal/core"
	"github.com/openfold/brokergate/internal/provider"
)

func creds() provider.Credentials {
	return provider.Credentials{
		Provider: "tradier",
		Mode:     core.ModePaper,
		Secrets:  map[string]string{"access_token": "tok", "account_id": "VA123"},
	}
}

func TestTradier_ImplementsClient(t *testing.T) {
	var _ provider.Client = (*Tradier)(nil)
}

func TestTradier_DescriptorValid(t *testing.T) {
	if err := New().Descriptor().Validate(); err != nil {
		t.Fatalf("descriptor invalid: %v", err)
	}
}

func TestBuildRequest_QuoteSymbolsParam(t *testing.T) {
	spec, err := New().BuildRequest(provider.OpGetQuote, map[string]any{"symbol": "AAPL"}, creds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(spec.URL, "https://sandbox.tradier.com/v1/markets/quotes") {
		t.Errorf("paper mode must use the sandbox host, got %s", spec.URL)
	}
	if !strings.Contains(spec.URL, "symbols=AAPL") {
		t.Errorf("symbol must be sent as symbols, got %s", spec.URL)
	}
	if spec.Header.Get("Authorization") != "Bearer tok" {
		t.Errorf("unexpected auth header: %s", spec.Header.Get("Authorization"))
	}
}

func TestBuildRequest_LiveHost(t *testing.T) {
	c := creds()
	c.Mode = core.ModeLive
	spec, err := New().BuildRequest(provider.OpGetQuote, map[string]any{"symbol": "AAPL"}, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(spec.URL, "https://api.tradier.com/v1/") {
		t.Errorf("live mode must use the live host, got %s", spec.URL)
	}
}

func TestBuildRequest_BarsInterval(t *testing.T) {
	tests := []struct {
		canonical string
		wire      string
	}{
		{"1Day", "daily"},
		{"1Week", "weekly"},
		{"1Month", "monthly"},
		{"5Min", "daily"}, // intraday not served by history, fall back to daily
	}
	for _, tc := range tests {
		params := map[string]any{"symbol": "F", "interval": tc.canonical}
		spec, err := New().BuildRequest(provider.OpGetBars, params, creds())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(spec.URL, "interval="+tc.wire) {
			t.Errorf("interval %s: expected %s in %s", tc.canonical, tc.wire, spec.URL)
		}
	}
}

func TestBuildRequest_AccountIDInjected(t *testing.T) {
	spec, err := New().BuildRequest(provider.OpGetPositions, nil, creds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(spec.URL, "/accounts/VA123/positions") {
		t.Errorf("configured account id must fill the path, got %s", spec.URL)
	}
	if strings.Contains(spec.URL, "account_id=") {
		t.Errorf("path param must not leak into the query: %s", spec.URL)
	}
}

func TestBuildRequest_MissingToken(t *testing.T) {
	_, err := New().BuildRequest(provider.OpGetQuote, map[string]any{"symbol": "F"}, provider.Credentials{})
	if !errors.Is(err, core.ErrMissingCredentials) {
		t.Errorf("expected MISSING_CREDENTIALS, got %v", err)
	}
}

func TestBuildRequest_OrderFormEncoded(t *testing.T) {
	order := core.OrderRequest{
		Symbol:     "F",
		Side:       core.OrderSideSell,
		Type:       core.OrderTypeLimit,
		Quantity:   25,
		LimitPrice: 12.5,
	}
	spec, err := New().BuildRequest(provider.OpPlaceOrder, map[string]any{"order": order}, creds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := spec.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
		t.Errorf("expected form content type, got %s", ct)
	}

	form, err := url.ParseQuery(string(spec.Body))
	if err != nil {
		t.Fatalf("body is not form-encoded: %v", err)
	}
	if form.Get("class") != "equity" {
		t.Errorf("expected class equity, got %s", form.Get("class"))
	}
	if form.Get("side") != "sell" || form.Get("quantity") != "25" {
		t.Errorf("unexpected order fields: %v", form)
	}
	if form.Get("price") != "12.5" {
		t.Errorf("expected price 12.5, got %s", form.Get("price"))
	}
	if form.Get("tag") == "" {
		t.Error("expected a generated tag")
	}
}

func TestParseResponse_FaultOn200(t *testing.T) {
	body := []byte(`{"fault":{"faultstring":"Invalid Access Token"}}`)
	_, err := New().ParseResponse(provider.OpGetQuote, 200, body)
	if !errors.Is(err, core.ErrHTTP) {
		t.Fatalf("a fault envelope is a failure even under a 200, got %v", err)
	}
	var gerr *core.Error
	if !errors.As(err, &gerr) {
		t.Fatal("expected *core.Error")
	}
	if !strings.Contains(gerr.Body, "Invalid Access Token") {
		t.Errorf("expected fault body preserved, got %q", gerr.Body)
	}
}

func TestParseResponse_Success(t *testing.T) {
	raw, err := New().ParseResponse(provider.OpGetQuote, 200, []byte(`{"quotes":{"quote":{"symbol":"F"}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Provider != "tradier" {
		t.Errorf("unexpected provider: %s", raw.Provider)
	}
}

func TestParseResponse_RateLimited(t *testing.T) {
	_, err := New().ParseResponse(provider.OpGetQuote, 429, nil)
	if !errors.Is(err, core.ErrRateLimited) {
		t.Errorf("expected RATE_LIMITED, got %v", err)
	}
}
