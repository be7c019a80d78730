// Package providers implements C6: the provider registry mapping a short
// provider key to a uniform {search, download, display} triple, plus one
// adapter file per digital-library back-end. Dynamic dispatch-by-string-key
// from the original source is replaced with this static interface registry
// per the redesign flag in spec §9.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chronodownloader/internal/model"
	"chronodownloader/internal/workctx"
)

// QuotaDeferred is the distinguished error variant a Download returns when
// the provider signals quota exhaustion, instead of throwing.
type QuotaDeferred struct {
	ProviderKey string
	ResetTime   time.Time
}

func (e *QuotaDeferred) Error() string {
	return fmt.Sprintf("provider %s quota exhausted, resets at %s", e.ProviderKey, e.ResetTime.Format(time.RFC3339))
}

// AsQuotaDeferred reports whether err is (or wraps) a *QuotaDeferred.
func AsQuotaDeferred(err error) (*QuotaDeferred, bool) {
	var qd *QuotaDeferred
	if errors.As(err, &qd) {
		return qd, true
	}
	return nil, false
}

// Provider is the uniform contract every digital-library back-end
// implements, per spec §4.1 and the "heterogeneous search-function
// signatures disappear under the uniform trait" redesign flag.
type Provider interface {
	Key() string
	Display() string
	Search(ctx context.Context, wc *workctx.WorkContext, title, creator string, maxResults int) ([]model.SearchResult, error)
	Download(ctx context.Context, wc *workctx.WorkContext, result model.SearchResult, outputFolder string) (bool, error)
}

// Registry maps provider key to its Provider implementation and to the host
// names it owns, for C5's host->provider lookup.
type Registry struct {
	byKey  map[string]Provider
	byHost map[string]string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: map[string]Provider{}, byHost: map[string]string{}}
}

// Register adds a provider, associating it with the given hosts for C5's
// host->provider lookup table.
func (r *Registry) Register(p Provider, hosts ...string) {
	r.byKey[p.Key()] = p
	for _, h := range hosts {
		r.byHost[h] = p.Key()
	}
}

// Get returns the provider for key, if registered.
func (r *Registry) Get(key string) (Provider, bool) {
	p, ok := r.byKey[key]
	return p, ok
}

// All returns every registered provider, in registration-independent order
// (callers reorder by hierarchy themselves).
func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.byKey))
	for _, p := range r.byKey {
		out = append(out, p)
	}
	return out
}

// ProviderForHost implements httpclient.HostTable.
func (r *Registry) ProviderForHost(host string) string {
	return r.byHost[host]
}
