package alpaca

import (
	"errors"
	"strings"
	"testing"

	"github.com/openfold/brokergate/internal/core"
	"github.com/openfold/brokergate/internal/provider"
	"github.com/tidwall/gjson"
)

func creds() provider.Credentials {
	return provider.Credentials{
		Provider: "alpaca",
		Mode:     core.ModePaper,
		Secrets:  map[string]string{"api_key": "key-id", "api_secret": "secret"},
	}
}

func TestAlpaca_ImplementsClient(t *testing.T) {
	var _ provider.Client = (*Alpaca)(nil)
}

func TestAlpaca_DescriptorValid(t *testing.T) {
	if err := New().Descriptor().Validate(); err != nil {
		t.Fatalf("descriptor invalid: %v", err)
	}
}

func TestBuildRequest_Quote(t *testing.T) {
	spec, err := New().BuildRequest(provider.OpGetQuote, map[string]any{"symbol": "AAPL"}, creds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Method != "GET" {
		t.Errorf("expected GET, got %s", spec.Method)
	}
	if spec.URL != "https://data.alpaca.markets/v2/stocks/AAPL/quotes/latest" {
		t.Errorf("unexpected URL: %s", spec.URL)
	}
	if spec.Header.Get("APCA-API-KEY-ID") != "key-id" {
		t.Error("missing key-id header")
	}
	if spec.Header.Get("APCA-API-SECRET-KEY") != "secret" {
		t.Error("missing secret header")
	}
}

func TestBuildRequest_TradingHostByMode(t *testing.T) {
	c := creds()
	spec, err := New().BuildRequest(provider.OpGetPositions, nil, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(spec.URL, "https://paper-api.alpaca.markets/") {
		t.Errorf("paper mode must use the paper trading host, got %s", spec.URL)
	}

	c.Mode = core.ModeLive
	spec, err = New().BuildRequest(provider.OpGetPositions, nil, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(spec.URL, "https://api.alpaca.markets/") {
		t.Errorf("live mode must use the live trading host, got %s", spec.URL)
	}
}

func TestBuildRequest_BarsTimeframe(t *testing.T) {
	params := map[string]any{"symbol": "AAPL", "interval": "1Day", "start": "2025-06-01"}
	spec, err := New().BuildRequest(provider.OpGetBars, params, creds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(spec.URL, "timeframe=1Day") {
		t.Errorf("interval must be sent as timeframe, got %s", spec.URL)
	}
	if strings.Contains(spec.URL, "interval=") {
		t.Errorf("canonical interval param must not leak: %s", spec.URL)
	}
}

func TestBuildRequest_MissingCredentials(t *testing.T) {
	_, err := New().BuildRequest(provider.OpGetQuote, map[string]any{"symbol": "AAPL"}, provider.Credentials{})
	if !errors.Is(err, core.ErrMissingCredentials) {
		t.Errorf("expected MISSING_CREDENTIALS, got %v", err)
	}
}

func TestBuildRequest_UnsupportedOperation(t *testing.T) {
	_, err := New().BuildRequest(provider.OpPostMessage, nil, creds())
	if !errors.Is(err, core.ErrUnsupportedCapability) {
		t.Errorf("expected UNSUPPORTED_CAPABILITY, got %v", err)
	}
}

func TestBuildRequest_Order(t *testing.T) {
	order := core.OrderRequest{
		Symbol:   "AAPL",
		Side:     core.OrderSideBuy,
		Type:     core.OrderTypeLimit,
		Quantity: 10,
		LimitPrice: 189.50,
	}
	spec, err := New().BuildRequest(provider.OpPlaceOrder, map[string]any{"order": order}, creds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Method != "POST" {
		t.Errorf("expected POST, got %s", spec.Method)
	}
	body := gjson.ParseBytes(spec.Body)
	if body.Get("symbol").String() != "AAPL" {
		t.Errorf("unexpected symbol: %s", body.Get("symbol"))
	}
	if body.Get("limit_price").String() != "189.5" {
		t.Errorf("unexpected limit price: %s", body.Get("limit_price"))
	}
	if body.Get("time_in_force").String() != "day" {
		t.Errorf("expected default tif day, got %s", body.Get("time_in_force"))
	}
	if body.Get("client_order_id").String() == "" {
		t.Error("expected a generated client order id")
	}
}

func TestBuildRequest_OrderKeepsClientID(t *testing.T) {
	order := core.OrderRequest{
		Symbol: "AAPL", Side: core.OrderSideBuy, Type: core.OrderTypeMarket,
		Quantity: 1, ClientOrderID: "my-id",
	}
	spec, err := New().BuildRequest(provider.OpPlaceOrder, map[string]any{"order": order}, creds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := gjson.GetBytes(spec.Body, "client_order_id").String(); got != "my-id" {
		t.Errorf("expected caller's client order id, got %s", got)
	}
}

func TestParseResponse_Success(t *testing.T) {
	body := []byte(`{"symbol":"AAPL","quote":{"bp":1,"ap":2}}`)
	raw, err := New().ParseResponse(provider.OpGetQuote, 200, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Provider != "alpaca" {
		t.Errorf("unexpected provider: %s", raw.Provider)
	}
}

func TestParseResponse_NonJSON(t *testing.T) {
	_, err := New().ParseResponse(provider.OpGetQuote, 200, []byte("<html>gateway error</html>"))
	if !errors.Is(err, core.ErrParse) {
		t.Errorf("expected PARSE_ERROR, got %v", err)
	}
}

func TestParseResponse_HTTPErrorPreservesBody(t *testing.T) {
	_, err := New().ParseResponse(provider.OpGetQuote, 403, []byte(`{"message":"forbidden"}`))
	if !errors.Is(err, core.ErrHTTP) {
		t.Fatalf("expected HTTP_ERROR, got %v", err)
	}
	var gerr *core.Error
	if !errors.As(err, &gerr) {
		t.Fatal("expected *core.Error")
	}
	if gerr.Status != 403 {
		t.Errorf("expected status 403, got %d", gerr.Status)
	}
	if !strings.Contains(gerr.Body, "forbidden") {
		t.Errorf("expected original body preserved, got %q", gerr.Body)
	}
}

func TestParseResponse_MessageEnvelopeOn200(t *testing.T) {
	_, err := New().ParseResponse(provider.OpGetQuote, 200, []byte(`{"message":"subscription does not permit querying"}`))
	if !errors.Is(err, core.ErrHTTP) {
		t.Errorf("a 200 with a message envelope and no quote is a failure, got %v", err)
	}
}

func TestParseResponse_RateLimited(t *testing.T) {
	_, err := New().ParseResponse(provider.OpGetQuote, 429, nil)
	if !errors.Is(err, core.ErrRateLimited) {
		t.Errorf("expected RATE_LIMITED, got %v", err)
	}
}
