package provider

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/openfold/brokergate/internal/core"
	"github.com/tidwall/gjson"
)

// Credentials is a read-only view of one provider's secrets for one
// request. The gateway borrows it from the config store and never
// persists it.
type Credentials struct {
	Provider string
	Mode     core.Mode
	Secrets  map[string]string
}

// Get returns a named secret.
func (c Credentials) Get(key string) (string, bool) {
	v, ok := c.Secrets[key]
	return v, ok && v != ""
}

// Empty reports whether no secrets are configured.
func (c Credentials) Empty() bool {
	for _, v := range c.Secrets {
		if v != "" {
			return false
		}
	}
	return true
}

// RequestSpec is a fully-built HTTP request: method, URL, headers and
// body. Clients build specs; the transport executes them.
type RequestSpec struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// RawResult is a provider's response after envelope checks but before
// normalization.
type RawResult struct {
	Provider  string
	Operation Operation
	Body      []byte
}

// JSON parses the raw body lazily for field extraction.
func (r RawResult) JSON() gjson.Result {
	return gjson.ParseBytes(r.Body)
}

// Client builds authenticated requests against one provider's concrete
// REST shape and parses that provider's responses. Clients perform no
// I/O, caching or logging themselves.
type Client interface {
	Name() string
	Descriptor() Descriptor

	// BuildRequest builds a signed request for a logical operation.
	// Returns MISSING_CREDENTIALS when the credentials the auth
	// scheme needs are absent.
	BuildRequest(op Operation, params map[string]any, creds Credentials) (*RequestSpec, error)

	// ParseResponse validates status and provider error envelopes and
	// returns the raw result. Non-2xx statuses become HTTP_ERROR with
	// the original status and body preserved; they are never coerced
	// into a zero-value success.
	ParseResponse(op Operation, status int, body []byte) (*RawResult, error)
}

// Local is implemented by clients that serve results without network
// I/O. The gateway calls Execute directly instead of building and
// dispatching an HTTP request. Only the demo provider is local.
type Local interface {
	Execute(op Operation, params map[string]any) (*RawResult, error)
}

// BuildURL joins a base URL with a templated path, substituting
// "{param}" placeholders from params and appending every remaining
// param as a sorted query string. Path params are consumed: they never
// leak into the query. The output is deterministic for identical
// params, which the call cache relies on for stable keys.
func BuildURL(base, path string, params map[string]any) (string, error) {
	remaining := make(map[string]string, len(params))
	for k, v := range params {
		remaining[k] = fmt.Sprint(v)
	}

	var b strings.Builder
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		b.WriteByte('/')
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := seg[1 : len(seg)-1]
			val, ok := remaining[name]
			if !ok || val == "" {
				return "", fmt.Errorf("missing path parameter %q", name)
			}
			b.WriteString(url.PathEscape(val))
			delete(remaining, name)
			continue
		}
		b.WriteString(seg)
	}

	u := strings.TrimSuffix(base, "/") + b.String()
	if len(remaining) == 0 {
		return u, nil
	}

	q := url.Values{}
	keys := make([]string, 0, len(remaining))
	for k := range remaining {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, remaining[k])
	}
	return u + "?" + q.Encode(), nil
}
