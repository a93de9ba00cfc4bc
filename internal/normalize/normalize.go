// Package normalize maps provider-specific response shapes onto the
// canonical quote/bar/position/order/account schema. Field mappings
// are table-driven per provider; records violating the canonical
// invariants are dropped with a PARSE_ERROR, never corrected.
package normalize

import (
	"fmt"

	"github.com/openfold/brokergate/internal/core"
	"github.com/openfold/brokergate/internal/provider"
	"github.com/tidwall/gjson"
)

// quoteFields describes where one provider keeps its quote fields.
// Paths are gjson paths relative to root; empty paths mean the
// provider does not report the field, which surfaces as an absent
// value, not zero.
type quoteFields struct {
	root    string
	symbol  string // relative to the whole body, not root
	price   string
	bid     string
	ask     string
	bidSize string
	askSize string
	volume  string
	ts      string
	tsFmt   tsFormat
	// midpoint derives price from bid/ask when the provider's quote
	// endpoint reports no trade price.
	midpoint bool
}

var quoteTables = map[string]quoteFields{
	"alpaca": {
		root: "quote", symbol: "symbol",
		bid: "bp", ask: "ap", bidSize: "bs", askSize: "as",
		ts: "t", tsFmt: tsRFC3339, midpoint: true,
	},
	"tradier": {
		root: "quotes.quote", symbol: "quotes.quote.symbol",
		price: "last", bid: "bid", ask: "ask", volume: "volume",
		ts: "trade_date", tsFmt: tsUnixMilli,
	},
	"fidelity": {
		symbol: "symbol",
		price:  "lastPrice", bid: "bidPrice", ask: "askPrice", volume: "volume",
		ts: "quoteTime", tsFmt: tsRFC3339,
	},
	"demo": {
		symbol: "symbol",
		price:  "price", bid: "bid", ask: "ask", volume: "volume",
		ts: "timestamp", tsFmt: tsUnixSec,
	},
}

// barFields describes one provider's bar array shape.
type barFields struct {
	list   string
	open   string
	high   string
	low    string
	close  string
	volume string
	ts     string
	tsFmt  tsFormat
}

var barTables = map[string]barFields{
	"alpaca": {
		list: "bars",
		open: "o", high: "h", low: "l", close: "c", volume: "v",
		ts: "t", tsFmt: tsRFC3339,
	},
	"tradier": {
		list: "history.day",
		open: "open", high: "high", low: "low", close: "close", volume: "volume",
		ts: "date", tsFmt: tsDate,
	},
	"fidelity": {
		list: "candles",
		open: "open", high: "high", low: "low", close: "close", volume: "volume",
		ts: "timestamp", tsFmt: tsRFC3339,
	},
	"demo": {
		list: "bars",
		open: "open", high: "high", low: "low", close: "close", volume: "volume",
		ts: "timestamp", tsFmt: tsUnixSec,
	},
}

// optField reads an optional numeric field. Absent paths or missing
// values map to core.None so consumers can tell "zero" from "not
// provided".
func optField(obj gjson.Result, path string) core.Float {
	if path == "" {
		return core.None()
	}
	v := obj.Get(path)
	if !v.Exists() || v.Type == gjson.Null {
		return core.None()
	}
	return core.Some(v.Float())
}

// Quote normalizes a raw quote result into the canonical schema.
func Quote(raw *provider.RawResult, symbol string) (*core.Quote, error) {
	t, ok := quoteTables[raw.Provider]
	if !ok {
		return nil, core.NewParseError(fmt.Errorf("no quote mapping for provider %s", raw.Provider))
	}

	body := raw.JSON()
	obj := body
	if t.root != "" {
		obj = body.Get(t.root)
		if !obj.Exists() {
			return nil, core.NewParseError(fmt.Errorf("%s: quote envelope %q missing", raw.Provider, t.root))
		}
	}

	q := core.Quote{
		Symbol:   symbol,
		Bid:      optField(obj, t.bid),
		Ask:      optField(obj, t.ask),
		BidSize:  optField(obj, t.bidSize),
		AskSize:  optField(obj, t.askSize),
		Volume:   optField(obj, t.volume),
		Provider: raw.Provider,
	}
	if t.symbol != "" {
		if s := body.Get(t.symbol); s.Exists() && s.String() != "" {
			q.Symbol = s.String()
		}
	}

	if t.midpoint {
		switch {
		case q.Bid.Valid && q.Ask.Valid:
			q.Price = (q.Bid.Value + q.Ask.Value) / 2
		case q.Ask.Valid:
			q.Price = q.Ask.Value
		case q.Bid.Valid:
			q.Price = q.Bid.Value
		default:
			return nil, core.NewParseError(fmt.Errorf("%s: quote has neither bid nor ask", raw.Provider))
		}
	} else {
		p := obj.Get(t.price)
		if !p.Exists() || p.Type == gjson.Null {
			return nil, core.NewParseError(fmt.Errorf("%s: quote price missing", raw.Provider))
		}
		q.Price = p.Float()
	}

	ts, err := parseTime(t.tsFmt, obj.Get(t.ts))
	if err != nil {
		return nil, core.NewParseError(fmt.Errorf("%s: %w", raw.Provider, err))
	}
	q.Time = ts

	if !q.IsValid() {
		return nil, core.NewParseError(fmt.Errorf("%s: quote for %s violates invariants (price=%v)", raw.Provider, q.Symbol, q.Price))
	}
	return &q, nil
}

// Bars normalizes a raw bars result. Bars that violate the OHLCV
// invariants fail the whole batch with a PARSE_ERROR; a provider
// emitting impossible candles is a schema problem, not data to
// silently repair.
func Bars(raw *provider.RawResult, symbol, interval string) ([]core.Bar, error) {
	t, ok := barTables[raw.Provider]
	if !ok {
		return nil, core.NewParseError(fmt.Errorf("no bar mapping for provider %s", raw.Provider))
	}

	list := raw.JSON().Get(t.list)
	if !list.Exists() {
		return nil, core.NewParseError(fmt.Errorf("%s: bar list %q missing", raw.Provider, t.list))
	}

	// Some providers return a bare object instead of a one-element
	// array for single results.
	items := list.Array()

	bars := make([]core.Bar, 0, len(items))
	for _, item := range items {
		ts, err := parseTime(t.tsFmt, item.Get(t.ts))
		if err != nil {
			return nil, core.NewParseError(fmt.Errorf("%s: %w", raw.Provider, err))
		}
		bar := core.Bar{
			Symbol:   symbol,
			Interval: interval,
			Open:     item.Get(t.open).Float(),
			High:     item.Get(t.high).Float(),
			Low:      item.Get(t.low).Float(),
			Close:    item.Get(t.close).Float(),
			Volume:   item.Get(t.volume).Float(),
			Time:     ts,
		}
		if !bar.IsValid() {
			return nil, core.NewParseError(fmt.Errorf("%s: bar at %s violates OHLC invariants", raw.Provider, ts))
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// Positions normalizes a raw positions result.
func Positions(raw *provider.RawResult) ([]core.Position, error) {
	switch raw.Provider {
	case "alpaca":
		return alpacaPositions(raw)
	case "tradier":
		return tradierPositions(raw)
	case "trading212":
		return trading212Positions(raw)
	case "fidelity":
		return fidelityPositions(raw)
	}
	return nil, core.NewParseError(fmt.Errorf("no position mapping for provider %s", raw.Provider))
}

func alpacaPositions(raw *provider.RawResult) ([]core.Position, error) {
	items := raw.JSON().Array()
	positions := make([]core.Position, 0, len(items))
	for _, item := range items {
		positions = append(positions, core.Position{
			Symbol:       item.Get("symbol").String(),
			Quantity:     item.Get("qty").Float(),
			AvgCost:      item.Get("avg_entry_price").Float(),
			MarketValue:  optField(item, "market_value"),
			UnrealizedPL: optField(item, "unrealized_pl"),
			Provider:     raw.Provider,
		})
	}
	return positions, nil
}

func tradierPositions(raw *provider.RawResult) ([]core.Position, error) {
	node := raw.JSON().Get("positions.position")
	if !node.Exists() {
		// "positions": "null" means a flat account, not an error.
		return nil, nil
	}
	// Tradier returns an object for one position and an array for many.
	items := node.Array()

	positions := make([]core.Position, 0, len(items))
	for _, item := range items {
		qty := item.Get("quantity").Float()
		pos := core.Position{
			Symbol:   item.Get("symbol").String(),
			Quantity: qty,
			Provider: raw.Provider,
		}
		// Tradier reports total cost basis, not per-share cost.
		if cb := item.Get("cost_basis"); cb.Exists() && qty != 0 {
			pos.AvgCost = cb.Float() / qty
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func trading212Positions(raw *provider.RawResult) ([]core.Position, error) {
	items := raw.JSON().Array()
	positions := make([]core.Position, 0, len(items))
	for _, item := range items {
		qty := item.Get("quantity").Float()
		pos := core.Position{
			Symbol:       item.Get("ticker").String(),
			Quantity:     qty,
			AvgCost:      item.Get("averagePrice").Float(),
			UnrealizedPL: optField(item, "ppl"),
			Provider:     raw.Provider,
		}
		if cur := item.Get("currentPrice"); cur.Exists() {
			pos.MarketValue = core.Some(cur.Float() * qty)
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func fidelityPositions(raw *provider.RawResult) ([]core.Position, error) {
	items := raw.JSON().Get("positions").Array()
	positions := make([]core.Position, 0, len(items))
	for _, item := range items {
		positions = append(positions, core.Position{
			Symbol:       item.Get("symbol").String(),
			Quantity:     item.Get("quantity").Float(),
			AvgCost:      item.Get("costBasisPerShare").Float(),
			MarketValue:  optField(item, "marketValue"),
			UnrealizedPL: optField(item, "unrealizedPL"),
			Provider:     raw.Provider,
		})
	}
	return positions, nil
}

// Orders normalizes an open-orders listing into canonical order
// records. The record shape is shared with placed-order acks.
func Orders(raw *provider.RawResult) ([]core.OrderAck, error) {
	switch raw.Provider {
	case "alpaca":
		items := raw.JSON().Array()
		orders := make([]core.OrderAck, 0, len(items))
		for _, item := range items {
			ts, err := parseTime(tsRFC3339, item.Get("submitted_at"))
			if err != nil {
				return nil, core.NewParseError(fmt.Errorf("alpaca: %w", err))
			}
			orders = append(orders, core.OrderAck{
				OrderID:       item.Get("id").String(),
				ClientOrderID: item.Get("client_order_id").String(),
				Symbol:        item.Get("symbol").String(),
				Status:        item.Get("status").String(),
				FilledQty:     item.Get("filled_qty").Float(),
				AvgFillPrice:  optField(item, "filled_avg_price"),
				SubmittedAt:   ts,
				Provider:      raw.Provider,
			})
		}
		return orders, nil
	case "tradier":
		node := raw.JSON().Get("orders.order")
		if !node.Exists() {
			// "orders": "null" means no open orders.
			return nil, nil
		}
		items := node.Array()
		orders := make([]core.OrderAck, 0, len(items))
		for _, item := range items {
			orders = append(orders, core.OrderAck{
				OrderID:   item.Get("id").String(),
				Symbol:    item.Get("symbol").String(),
				Status:    item.Get("status").String(),
				FilledQty: item.Get("exec_quantity").Float(),
				Provider:  raw.Provider,
			})
		}
		return orders, nil
	case "trading212":
		items := raw.JSON().Array()
		orders := make([]core.OrderAck, 0, len(items))
		for _, item := range items {
			ts, err := parseTime(tsRFC3339, item.Get("creationTime"))
			if err != nil {
				return nil, core.NewParseError(fmt.Errorf("trading212: %w", err))
			}
			orders = append(orders, core.OrderAck{
				OrderID:     item.Get("id").String(),
				Symbol:      item.Get("ticker").String(),
				Status:      item.Get("status").String(),
				FilledQty:   item.Get("filledQuantity").Float(),
				SubmittedAt: ts,
				Provider:    raw.Provider,
			})
		}
		return orders, nil
	}
	return nil, core.NewParseError(fmt.Errorf("no order mapping for provider %s", raw.Provider))
}

// OrderAck normalizes a placed-order acknowledgement.
func OrderAck(raw *provider.RawResult) (*core.OrderAck, error) {
	body := raw.JSON()
	switch raw.Provider {
	case "alpaca":
		ts, err := parseTime(tsRFC3339, body.Get("submitted_at"))
		if err != nil {
			return nil, core.NewParseError(fmt.Errorf("alpaca: %w", err))
		}
		return &core.OrderAck{
			OrderID:       body.Get("id").String(),
			ClientOrderID: body.Get("client_order_id").String(),
			Symbol:        body.Get("symbol").String(),
			Status:        body.Get("status").String(),
			FilledQty:     body.Get("filled_qty").Float(),
			AvgFillPrice:  optField(body, "filled_avg_price"),
			SubmittedAt:   ts,
			Provider:      raw.Provider,
		}, nil
	case "tradier":
		order := body.Get("order")
		if !order.Exists() {
			return nil, core.NewParseError(fmt.Errorf("tradier: order envelope missing"))
		}
		return &core.OrderAck{
			OrderID:  order.Get("id").String(),
			Status:   order.Get("status").String(),
			Provider: raw.Provider,
		}, nil
	case "trading212":
		ts, err := parseTime(tsRFC3339, body.Get("creationTime"))
		if err != nil {
			return nil, core.NewParseError(fmt.Errorf("trading212: %w", err))
		}
		return &core.OrderAck{
			OrderID:      body.Get("id").String(),
			Symbol:       body.Get("ticker").String(),
			Status:       body.Get("status").String(),
			FilledQty:    body.Get("filledQuantity").Float(),
			AvgFillPrice: optField(body, "filledValue"),
			SubmittedAt:  ts,
			Provider:     raw.Provider,
		}, nil
	}
	return nil, core.NewParseError(fmt.Errorf("no order mapping for provider %s", raw.Provider))
}

// Account normalizes an account summary.
func Account(raw *provider.RawResult) (*core.Account, error) {
	body := raw.JSON()
	switch raw.Provider {
	case "alpaca":
		return &core.Account{
			AccountID:   body.Get("account_number").String(),
			Cash:        body.Get("cash").Float(),
			Equity:      optField(body, "equity"),
			BuyingPower: optField(body, "buying_power"),
			Currency:    body.Get("currency").String(),
			Provider:    raw.Provider,
		}, nil
	case "tradier":
		bal := body.Get("balances")
		if !bal.Exists() {
			return nil, core.NewParseError(fmt.Errorf("tradier: balances envelope missing"))
		}
		return &core.Account{
			AccountID:   bal.Get("account_number").String(),
			Cash:        bal.Get("total_cash").Float(),
			Equity:      optField(bal, "equity"),
			BuyingPower: optField(bal, "margin.stock_buying_power"),
			Currency:    "USD",
			Provider:    raw.Provider,
		}, nil
	case "trading212":
		return &core.Account{
			Cash:     body.Get("free").Float(),
			Equity:   optField(body, "total"),
			Currency: body.Get("currencyCode").String(),
			Provider: raw.Provider,
		}, nil
	case "fidelity":
		return &core.Account{
			AccountID:   body.Get("accountId").String(),
			Cash:        body.Get("cash").Float(),
			Equity:      optField(body, "equity"),
			BuyingPower: optField(body, "buyingPower"),
			Currency:    body.Get("currency").String(),
			Provider:    raw.Provider,
		}, nil
	}
	return nil, core.NewParseError(fmt.Errorf("no account mapping for provider %s", raw.Provider))
}
