// Package router selects a capable, credentialed provider for a
// requested data type. Selection is deterministic: the fallback order
// is a fixed priority list from configuration, never computed.
package router

import (
	"fmt"

	"github.com/openfold/brokergate/internal/core"
	"github.com/openfold/brokergate/internal/provider"
)

// CredentialSource answers whether a provider has usable credentials.
// The config store implements it.
type CredentialSource interface {
	Secrets(providerID string) map[string]string
	Mode(providerID string) core.Mode
}

// Router picks providers from the registry.
type Router struct {
	registry *provider.Registry
	priority []string
	creds    CredentialSource
}

// New creates a router with a fixed priority ordering.
func New(registry *provider.Registry, priority []string, creds CredentialSource) *Router {
	return &Router{
		registry: registry,
		priority: priority,
		creds:    creds,
	}
}

// Select returns the client to use for a data type. When explicit is
// non-empty the caller asked for that provider: it is validated, never
// silently substituted. Otherwise candidates are filtered by
// capability and credentials and taken in priority order.
func (r *Router) Select(dt core.DataType, explicit string) (provider.Client, provider.Credentials, error) {
	cap := provider.CapabilityForDataType(dt)
	if cap == "" {
		return nil, provider.Credentials{}, core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("unknown data type %q", dt))
	}

	if explicit != "" {
		return r.selectExplicit(cap, explicit)
	}

	capable := r.registry.ListByCapability(cap)
	if len(capable) == 0 {
		return nil, provider.Credentials{}, core.WrapError(core.ErrUnsupportedCapability,
			fmt.Errorf("no provider declares %s", cap))
	}

	for _, id := range r.priority {
		for _, c := range capable {
			if c.Name() != id {
				continue
			}
			// Demo providers are opt-in only; implicit routing skips
			// them so missing credentials never masquerade as data.
			if c.Descriptor().HasCapability(provider.CapDemo) {
				continue
			}
			if creds := r.credentials(id); !creds.Empty() {
				return c, creds, nil
			}
		}
	}

	return nil, provider.Credentials{}, core.WrapError(core.ErrMissingCredentials,
		fmt.Errorf("providers capable of %s exist but none has credentials", cap))
}

func (r *Router) selectExplicit(cap provider.Capability, id string) (provider.Client, provider.Credentials, error) {
	c, ok := r.registry.Get(id)
	if !ok {
		return nil, provider.Credentials{}, core.WrapError(core.ErrProviderNotFound,
			fmt.Errorf("provider %q is not registered", id))
	}
	if !c.Descriptor().HasCapability(cap) {
		return nil, provider.Credentials{}, core.WrapError(core.ErrUnsupportedCapability,
			fmt.Errorf("provider %s does not support %s", id, cap))
	}
	creds := r.credentials(id)
	if creds.Empty() && c.Descriptor().AuthScheme != provider.AuthNone {
		return nil, provider.Credentials{}, core.WrapError(core.ErrMissingCredentials,
			fmt.Errorf("provider %s has no credentials configured", id))
	}
	return c, creds, nil
}

// Next returns the next credentialed candidate after the given
// provider in priority order. The facade uses it for its bounded,
// explicitly-enabled fallback; the router itself never retries.
func (r *Router) Next(dt core.DataType, after string) (provider.Client, provider.Credentials, bool) {
	cap := provider.CapabilityForDataType(dt)
	seen := false
	for _, id := range r.priority {
		if id == after {
			seen = true
			continue
		}
		if !seen {
			continue
		}
		c, ok := r.registry.Get(id)
		if !ok || !c.Descriptor().HasCapability(cap) || c.Descriptor().HasCapability(provider.CapDemo) {
			continue
		}
		if creds := r.credentials(id); !creds.Empty() {
			return c, creds, true
		}
	}
	return nil, provider.Credentials{}, false
}

func (r *Router) credentials(id string) provider.Credentials {
	return provider.Credentials{
		Provider: id,
		Mode:     r.creds.Mode(id),
		Secrets:  r.creds.Secrets(id),
	}
}
