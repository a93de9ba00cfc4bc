package normalize

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/openfold/brokergate/internal/core"
	"github.com/openfold/brokergate/internal/provider"
)

func raw(providerID string, body string) *provider.RawResult {
	return &provider.RawResult{Provider: providerID, Body: []byte(body)}
}

func TestQuote_Alpaca_Midpoint(t *testing.T) {
	body := `{"symbol":"AAPL","quote":{"bp":189.5,"ap":190.5,"bs":3,"as":2,"t":"2025-06-02T15:04:05Z"}}`

	q, err := Quote(raw("alpaca", body), "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Price != 190.0 {
		t.Errorf("expected midpoint 190.0, got %v", q.Price)
	}
	if !q.Bid.Valid || q.Bid.Value != 189.5 {
		t.Errorf("expected bid 189.5, got %+v", q.Bid)
	}
	if q.Volume.Valid {
		t.Error("alpaca quote endpoint reports no volume, expected absent")
	}
	if q.Time.Location() != time.UTC {
		t.Errorf("expected UTC timestamp, got %v", q.Time.Location())
	}
	if q.Provider != "alpaca" {
		t.Errorf("expected provider alpaca, got %s", q.Provider)
	}
}

func TestNormalizeTwice_Identical(t *testing.T) {
	quoteBody := raw("alpaca", `{"symbol":"AAPL","quote":{"bp":189.5,"ap":190.5,"bs":3,"as":2,"t":"2025-06-02T15:04:05Z"}}`)
	q1, err := Quote(quoteBody, "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q2, err := Quote(quoteBody, "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(q1, q2) {
		t.Errorf("repeated normalization diverged: %+v vs %+v", q1, q2)
	}

	barsBody := raw("alpaca", `{"bars":[
		{"o":100,"h":105,"l":99,"c":104,"v":5000,"t":"2025-06-02T00:00:00Z"},
		{"o":104,"h":106,"l":103,"c":105,"v":4200,"t":"2025-06-03T00:00:00Z"}
	]}`)
	b1, err := Bars(barsBody, "AAPL", "1Day")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b2, err := Bars(barsBody, "AAPL", "1Day")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(b1, b2) {
		t.Errorf("repeated bar normalization diverged")
	}
}

func TestQuote_Alpaca_NoBidNoAsk(t *testing.T) {
	body := `{"symbol":"AAPL","quote":{"t":"2025-06-02T15:04:05Z"}}`

	_, err := Quote(raw("alpaca", body), "AAPL")
	if !errors.Is(err, core.ErrParse) {
		t.Errorf("expected PARSE_ERROR, got %v", err)
	}
}

func TestQuote_Tradier(t *testing.T) {
	body := `{"quotes":{"quote":{"symbol":"MSFT","last":420.25,"bid":420.0,"ask":420.5,"volume":1000000,"trade_date":1748876645000}}}`

	q, err := Quote(raw("tradier", body), "MSFT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Symbol != "MSFT" {
		t.Errorf("expected MSFT, got %s", q.Symbol)
	}
	if q.Price != 420.25 {
		t.Errorf("expected 420.25, got %v", q.Price)
	}
	if !q.Volume.Valid || q.Volume.Value != 1000000 {
		t.Errorf("expected volume 1000000, got %+v", q.Volume)
	}
}

func TestQuote_Tradier_MissingEnvelope(t *testing.T) {
	_, err := Quote(raw("tradier", `{"quotes":{"unmatched_symbols":{}}}`), "NOPE")
	if !errors.Is(err, core.ErrParse) {
		t.Errorf("expected PARSE_ERROR, got %v", err)
	}
}

func TestQuote_AbsentVsZero(t *testing.T) {
	// volume present and zero is a valid value, not the same as absent
	withZero := `{"symbol":"ZVZZT","price":1.0,"volume":0,"timestamp":1748876645}`
	q, err := Quote(raw("demo", withZero), "ZVZZT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Volume.Valid || q.Volume.Value != 0 {
		t.Errorf("expected present zero volume, got %+v", q.Volume)
	}

	without := `{"symbol":"ZVZZT","price":1.0,"timestamp":1748876645}`
	q, err = Quote(raw("demo", without), "ZVZZT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Volume.Valid {
		t.Errorf("expected absent volume, got %+v", q.Volume)
	}
}

func TestQuote_NegativePriceRejected(t *testing.T) {
	body := `{"symbol":"BAD","price":-5.0,"timestamp":1748876645}`
	_, err := Quote(raw("demo", body), "BAD")
	if !errors.Is(err, core.ErrParse) {
		t.Errorf("expected PARSE_ERROR for negative price, got %v", err)
	}
}

func TestQuote_UnknownProvider(t *testing.T) {
	_, err := Quote(raw("nobody", `{}`), "AAPL")
	if !errors.Is(err, core.ErrParse) {
		t.Errorf("expected PARSE_ERROR, got %v", err)
	}
}

func TestBars_Alpaca(t *testing.T) {
	body := `{"bars":[
		{"o":100,"h":105,"l":99,"c":104,"v":5000,"t":"2025-06-02T00:00:00Z"},
		{"o":104,"h":106,"l":103,"c":105,"v":4200,"t":"2025-06-03T00:00:00Z"}
	]}`

	bars, err := Bars(raw("alpaca", body), "AAPL", "1Day")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].High != 105 || bars[0].Low != 99 {
		t.Errorf("unexpected first bar: %+v", bars[0])
	}
	if bars[1].Interval != "1Day" {
		t.Errorf("expected interval 1Day, got %s", bars[1].Interval)
	}
}

func TestBars_Tradier_DateFormat(t *testing.T) {
	body := `{"history":{"day":[{"date":"2025-06-02","open":10,"high":12,"low":9,"close":11,"volume":300}]}}`

	bars, err := Bars(raw("tradier", body), "F", "1Day")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
	want := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	if !bars[0].Time.Equal(want) {
		t.Errorf("expected %v, got %v", want, bars[0].Time)
	}
}

func TestBars_Tradier_SingleObjectAsArray(t *testing.T) {
	// one trading day comes back as an object, not a one-element array
	body := `{"history":{"day":{"date":"2025-06-02","open":10,"high":12,"low":9,"close":11,"volume":300}}}`

	bars, err := Bars(raw("tradier", body), "F", "1Day")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
}

func TestBars_InvalidOHLCFailsBatch(t *testing.T) {
	// high below low
	body := `{"bars":[{"o":100,"h":95,"l":99,"c":104,"v":5000,"t":"2025-06-02T00:00:00Z"}]}`

	_, err := Bars(raw("alpaca", body), "AAPL", "1Day")
	if !errors.Is(err, core.ErrParse) {
		t.Errorf("expected PARSE_ERROR, got %v", err)
	}
}

func TestBars_MissingList(t *testing.T) {
	_, err := Bars(raw("alpaca", `{"symbol":"AAPL"}`), "AAPL", "1Day")
	if !errors.Is(err, core.ErrParse) {
		t.Errorf("expected PARSE_ERROR, got %v", err)
	}
}

func TestPositions_Alpaca(t *testing.T) {
	body := `[{"symbol":"AAPL","qty":"10","avg_entry_price":"150.5","market_value":"1900","unrealized_pl":"395"}]`

	positions, err := Positions(raw("alpaca", body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	p := positions[0]
	if p.Quantity != 10 || p.AvgCost != 150.5 {
		t.Errorf("unexpected position: %+v", p)
	}
	if !p.MarketValue.Valid || p.MarketValue.Value != 1900 {
		t.Errorf("expected market value 1900, got %+v", p.MarketValue)
	}
}

func TestPositions_Tradier_CostBasisPerShare(t *testing.T) {
	body := `{"positions":{"position":{"symbol":"F","quantity":100,"cost_basis":1200}}}`

	positions, err := Positions(raw("tradier", body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	if positions[0].AvgCost != 12 {
		t.Errorf("expected per-share cost 12, got %v", positions[0].AvgCost)
	}
	if positions[0].MarketValue.Valid {
		t.Error("tradier positions report no market value, expected absent")
	}
}

func TestPositions_Tradier_FlatAccount(t *testing.T) {
	positions, err := Positions(raw("tradier", `{"positions":"null"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positions) != 0 {
		t.Errorf("expected no positions, got %d", len(positions))
	}
}

func TestPositions_Trading212_DerivedMarketValue(t *testing.T) {
	body := `[{"ticker":"AAPL_US_EQ","quantity":5,"averagePrice":180,"currentPrice":190,"ppl":50}]`

	positions, err := Positions(raw("trading212", body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	if !positions[0].MarketValue.Valid || positions[0].MarketValue.Value != 950 {
		t.Errorf("expected derived market value 950, got %+v", positions[0].MarketValue)
	}
}

func TestOrders_Alpaca(t *testing.T) {
	body := `[
		{"id":"o1","client_order_id":"c1","symbol":"AAPL","status":"new","filled_qty":"0","submitted_at":"2025-06-02T15:00:00Z"},
		{"id":"o2","client_order_id":"c2","symbol":"MSFT","status":"partially_filled","filled_qty":"3","filled_avg_price":"420.1","submitted_at":"2025-06-02T15:05:00Z"}
	]`

	orders, err := Orders(raw("alpaca", body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[1].FilledQty != 3 {
		t.Errorf("expected filled qty 3, got %v", orders[1].FilledQty)
	}
	if !orders[1].AvgFillPrice.Valid || orders[1].AvgFillPrice.Value != 420.1 {
		t.Errorf("expected avg fill 420.1, got %+v", orders[1].AvgFillPrice)
	}
	if orders[0].AvgFillPrice.Valid {
		t.Error("unfilled order must have an absent avg fill price")
	}
}

func TestOrders_Tradier_ObjectAndNull(t *testing.T) {
	orders, err := Orders(raw("tradier", `{"orders":{"order":{"id":7,"symbol":"F","status":"open","exec_quantity":0}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 1 || orders[0].OrderID != "7" {
		t.Errorf("unexpected orders: %+v", orders)
	}

	orders, err = Orders(raw("tradier", `{"orders":"null"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("expected no open orders, got %d", len(orders))
	}
}

func TestOrderAck_Alpaca(t *testing.T) {
	body := `{"id":"ord-1","client_order_id":"cli-1","symbol":"AAPL","status":"accepted","filled_qty":"0","submitted_at":"2025-06-02T15:04:05Z"}`

	ack, err := OrderAck(raw("alpaca", body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.OrderID != "ord-1" || ack.ClientOrderID != "cli-1" {
		t.Errorf("unexpected ack: %+v", ack)
	}
	if ack.Status != "accepted" {
		t.Errorf("expected status accepted, got %s", ack.Status)
	}
}

func TestOrderAck_Tradier(t *testing.T) {
	ack, err := OrderAck(raw("tradier", `{"order":{"id":123,"status":"ok"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.OrderID != "123" {
		t.Errorf("expected order id 123, got %s", ack.OrderID)
	}
}

func TestOrderAck_Tradier_MissingEnvelope(t *testing.T) {
	_, err := OrderAck(raw("tradier", `{"errors":{"error":"bad"}}`))
	if !errors.Is(err, core.ErrParse) {
		t.Errorf("expected PARSE_ERROR, got %v", err)
	}
}

func TestAccount_Tradier(t *testing.T) {
	body := `{"balances":{"account_number":"VA123","total_cash":5000.5,"equity":10000,"margin":{"stock_buying_power":20000}}}`

	acct, err := Account(raw("tradier", body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.AccountID != "VA123" || acct.Cash != 5000.5 {
		t.Errorf("unexpected account: %+v", acct)
	}
	if !acct.BuyingPower.Valid || acct.BuyingPower.Value != 20000 {
		t.Errorf("expected buying power 20000, got %+v", acct.BuyingPower)
	}
}

func TestAccount_Trading212(t *testing.T) {
	acct, err := Account(raw("trading212", `{"free":100.5,"total":250,"currencyCode":"GBP"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.Cash != 100.5 || acct.Currency != "GBP" {
		t.Errorf("unexpected account: %+v", acct)
	}
}
