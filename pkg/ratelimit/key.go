package ratelimit

import (
	"strings"
)

// Key identifies one windowed counter in the backend. Two requests share a
// counter iff they share dimension, category, identifier and endpoint.
type Key struct {
	Dimension  Dimension
	Category   Category
	Identifier string
	Endpoint   string // normalized endpoint slug, per_endpoint only
}

// NewKey derives a key, normalizing the endpoint path into a slug.
func NewKey(dim Dimension, cat Category, identifier, endpoint string) Key {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		identifier = unknownClient
	}
	return Key{
		Dimension:  dim,
		Category:   cat,
		Identifier: identifier,
		Endpoint:   EndpointSlug(endpoint),
	}
}

// String renders the storage key:
//
//	rate_limit:{dimension}:{category}[:{endpoint_slug}]:{identifier}
func (k Key) String() string {
	var b strings.Builder
	b.Grow(len(keyPrefix) + len(k.Dimension) + len(k.Category) + len(k.Endpoint) + len(k.Identifier) + 4)
	b.WriteString(keyPrefix)
	b.WriteByte(':')
	b.WriteString(string(k.Dimension))
	b.WriteByte(':')
	b.WriteString(string(k.Category))
	if k.Endpoint != "" {
		b.WriteByte(':')
		b.WriteString(k.Endpoint)
	}
	b.WriteByte(':')
	b.WriteString(k.Identifier)
	return b.String()
}

// PenaltyKey is the storage key of the penalty marker belonging to k.
func (k Key) PenaltyKey() string {
	return k.String() + ":" + penaltySuffix
}

// EndpointSlug turns a request path into a key segment: query string dropped,
// lower-cased, surrounding slashes trimmed, inner slashes and colons replaced.
func EndpointSlug(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.Trim(strings.ToLower(strings.TrimSpace(path)), "/")
	if path == "" {
		return ""
	}
	return strings.NewReplacer("/", "_", ":", "_").Replace(path)
}
