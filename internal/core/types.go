package core

import "time"

// DataType identifies a logical kind of data a provider can serve.
type DataType string

const (
	DataQuote        DataType = "quote"
	DataBars         DataType = "bars"
	DataPositions    DataType = "positions"
	DataOrders       DataType = "orders"
	DataAccount      DataType = "account"
	DataNotification DataType = "notification"
)

// Mode selects live or paper/sandbox endpoints for a provider.
type Mode string

const (
	ModeLive  Mode = "live"
	ModePaper Mode = "paper"
)

// Float is an optional float64. Providers frequently omit bid/ask or
// volume entirely; Valid distinguishes "reported as zero" from "not
// provided".
type Float struct {
	Value float64
	Valid bool
}

// Some returns a present Float.
func Some(v float64) Float {
	return Float{Value: v, Valid: true}
}

// None returns an absent Float.
func None() Float {
	return Float{}
}

// Or returns the value if present, otherwise the fallback.
func (f Float) Or(fallback float64) float64 {
	if f.Valid {
		return f.Value
	}
	return fallback
}

// Quote is the canonical real-time quote shape shared by all providers.
type Quote struct {
	Symbol   string
	Price    float64
	Bid      Float
	Ask      Float
	BidSize  Float
	AskSize  Float
	Volume   Float
	Time     time.Time // always UTC
	Provider string
}

// IsValid checks the quote invariants: a symbol and a non-negative price.
func (q Quote) IsValid() bool {
	return q.Symbol != "" && q.Price >= 0
}

// Bar is a canonical OHLCV candlestick.
type Bar struct {
	Symbol   string
	Interval string // "1Min", "5Min", "1Hour", "1Day"
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Time     time.Time // always UTC
}

// IsValid checks the bar invariants. Violating bars are dropped by the
// normalizer, never corrected.
func (b Bar) IsValid() bool {
	if b.Volume < 0 {
		return false
	}
	if b.Low > b.Open || b.Low > b.Close || b.Low > b.High {
		return false
	}
	if b.High < b.Open || b.High < b.Close {
		return false
	}
	return true
}

// Position is a canonical open position.
type Position struct {
	Symbol       string
	Quantity     float64
	AvgCost      float64
	MarketValue  Float
	UnrealizedPL Float
	Provider     string
}

// OrderSide represents buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType represents the order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// OrderRequest describes an order to be placed through a provider.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Quantity      float64
	LimitPrice    float64 // required for limit orders
	StopPrice     float64 // required for stop orders
	TimeInForce   string  // "day", "gtc"; provider default when empty
	ClientOrderID string  // generated when empty
}

// OrderAck is the canonical acknowledgement a provider returns for a
// placed order.
type OrderAck struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Status        string
	FilledQty     float64
	AvgFillPrice  Float
	SubmittedAt   time.Time
	Provider      string
}

// Account is a canonical account summary.
type Account struct {
	AccountID   string
	Cash        float64
	Equity      Float
	BuyingPower Float
	Currency    string
	Provider    string
}

// RateInfo carries a provider's declared rate-limit state as read
// from response headers, so a caller can throttle before the next
// call comes back 429.
type RateInfo struct {
	// Remaining is the provider-reported remaining quota; -1 when the
	// provider sent no rate headers.
	Remaining  int
	RetryAfter time.Duration
	// Exhausted is true when the provider reports zero remaining
	// quota on an otherwise successful response.
	Exhausted bool
}

// Declared reports whether the provider sent any rate information.
// A zero value means no rate headers were seen.
func (r RateInfo) Declared() bool {
	return r.Remaining > 0 || r.Exhausted || r.RetryAfter > 0
}
