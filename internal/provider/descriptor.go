package provider

import (
	"fmt"

	"github.com/openfold/brokergate/internal/core"
)

// Capability is a declared ability of a provider.
type Capability string

const (
	CapQuotes        Capability = "quotes"
	CapBars          Capability = "bars"
	CapPositions     Capability = "positions"
	CapOrders        Capability = "orders"
	CapAccount       Capability = "account"
	CapOptions       Capability = "options"
	CapNotifications Capability = "notifications"
	// CapDemo marks a provider that serves synthetic data. Demo
	// providers are never selected implicitly.
	CapDemo Capability = "demo"
)

// Operation is a logical gateway operation a provider may implement.
type Operation string

const (
	OpGetQuote     Operation = "get_quote"
	OpGetBars      Operation = "get_bars"
	OpGetPositions Operation = "get_positions"
	OpGetOrders    Operation = "get_orders"
	OpPlaceOrder   Operation = "place_order"
	OpGetAccount   Operation = "get_account"
	OpPostMessage  Operation = "post_message"
)

// DataType maps an operation to the data type it serves.
func (op Operation) DataType() core.DataType {
	switch op {
	case OpGetQuote:
		return core.DataQuote
	case OpGetBars:
		return core.DataBars
	case OpGetPositions:
		return core.DataPositions
	case OpGetOrders, OpPlaceOrder:
		return core.DataOrders
	case OpGetAccount:
		return core.DataAccount
	case OpPostMessage:
		return core.DataNotification
	}
	return ""
}

// CapabilityForDataType maps a requested data type to the capability a
// provider must declare to serve it.
func CapabilityForDataType(dt core.DataType) Capability {
	switch dt {
	case core.DataQuote:
		return CapQuotes
	case core.DataBars:
		return CapBars
	case core.DataPositions:
		return CapPositions
	case core.DataOrders:
		return CapOrders
	case core.DataAccount:
		return CapAccount
	case core.DataNotification:
		return CapNotifications
	}
	return ""
}

// HostKind distinguishes the hosts a provider may split its API over.
// The same provider can serve market data and trading from different
// base URLs, so endpoint resolution is per operation, not per provider.
type HostKind string

const (
	HostMarketData HostKind = "market_data"
	HostTrading    HostKind = "trading"
)

// AuthScheme is how a provider expects credentials on the wire.
type AuthScheme string

const (
	// AuthAPIKeySecret sends a key id and secret as a header pair.
	AuthAPIKeySecret AuthScheme = "api_key_secret"
	// AuthBearer sends "Authorization: Bearer <token>".
	AuthBearer AuthScheme = "bearer"
	// AuthRawToken sends the token bare in the Authorization header.
	AuthRawToken AuthScheme = "raw_token"
	// AuthBotToken sends "Authorization: Bot <token>".
	AuthBotToken AuthScheme = "bot_token"
	// AuthNone is for providers that take no credentials (demo).
	AuthNone AuthScheme = "none"
)

// EndpointRef binds an operation to a concrete REST endpoint. Path
// segments in braces ("{symbol}", "{account_id}") are substituted from
// request params; remaining params become the query string.
type EndpointRef struct {
	Capability Capability
	Method     string
	Host       HostKind
	Path       string
}

// RateLimit describes a provider's declared request quota.
type RateLimit struct {
	PerMinute int
	Burst     int
}

// Descriptor is the static metadata for one provider. Descriptors are
// built once at startup and shared read-only.
type Descriptor struct {
	ID           string
	DisplayName  string
	AuthScheme   AuthScheme
	Capabilities []Capability
	Endpoints    map[Operation]EndpointRef
	RateLimit    RateLimit
	// BaseURLs maps mode and host kind to a concrete base URL. A
	// provider with a single host registers it under HostTrading and
	// HostMarketData both.
	BaseURLs map[core.Mode]map[HostKind]string
}

// HasCapability reports whether the descriptor declares the capability.
func (d Descriptor) HasCapability(cap Capability) bool {
	for _, c := range d.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Endpoint resolves the endpoint for an operation.
func (d Descriptor) Endpoint(op Operation) (EndpointRef, bool) {
	ep, ok := d.Endpoints[op]
	return ep, ok
}

// BaseURL resolves the base URL for a mode and host kind. Providers
// without a distinct sandbox fall back to their live host.
func (d Descriptor) BaseURL(mode core.Mode, host HostKind) (string, error) {
	hosts, ok := d.BaseURLs[mode]
	if !ok {
		hosts, ok = d.BaseURLs[core.ModeLive]
		if !ok {
			return "", fmt.Errorf("provider %s: no base URLs for mode %s", d.ID, mode)
		}
	}
	u, ok := hosts[host]
	if !ok {
		return "", fmt.Errorf("provider %s: no %s host", d.ID, host)
	}
	return u, nil
}

// Validate checks the descriptor invariant: every endpoint must
// reference a declared capability.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("descriptor has empty id")
	}
	for op, ep := range d.Endpoints {
		if !d.HasCapability(ep.Capability) {
			return fmt.Errorf("provider %s: endpoint %s references undeclared capability %s",
				d.ID, op, ep.Capability)
		}
	}
	return nil
}
