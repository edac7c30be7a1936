// Package registry implements the dispatch table that pairs provisioner
// kinds with the client kinds able to talk to the backends they launch.
//
// Mappings are registered by typed descriptor or by name (resolved through
// an injected kind.Resolver), merged in bulk from sources such as config
// pair lists and plugin manifests, and consulted at kernel start to select
// a client implementation. Lookup honors ancestor chains: a mapping
// registered for a base provisioner kind covers every kind descending from
// it unless a more specific mapping exists.
package registry

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kernelbridge/kernelbridge/internal/kind"
)

// Match describes which rule satisfied a lookup.
type Match string

const (
	// MatchExact means the provisioner kind itself was registered.
	MatchExact Match = "exact"
	// MatchAncestor means a kind from the ancestor chain was registered.
	MatchAncestor Match = "ancestor"
	// MatchFallback means the registry-wide fallback client was used.
	MatchFallback Match = "fallback"
	// MatchNone means no rule produced a client kind.
	MatchNone Match = "none"
)

// Mapping is one provisioner-to-client pair from a registry snapshot.
type Mapping struct {
	Provisioner string `json:"provisioner" yaml:"provisioner"`
	Client      string `json:"client" yaml:"client"`
}

// Resolution is the full outcome of a lookup: the chosen client kind, the
// rule that chose it, and the registered kind name that matched (for
// ancestor matches this is the ancestor, not the queried kind).
type Resolution struct {
	Client kind.Descriptor
	Match  Match
	Via    string
}

// NoMatchError is returned when a provisioner kind has no exact mapping, no
// registered ancestor, and the registry has no fallback client.
type NoMatchError struct {
	Kind string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no client mapping for provisioner kind %q", e.Kind)
}

// ResolutionError is returned when a name-based registration or merge entry
// cannot be applied: the name does not resolve, or a pair string is
// malformed. The failing name (or pair) is preserved for reporting.
type ResolutionError struct {
	Name string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot register mapping for %q: %v", e.Name, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Registry maps provisioner kinds to client kinds. All mutation goes
// through one exclusive lock; lookups and snapshots share a read lock, so
// concurrent kernel starts resolve without blocking each other.
type Registry struct {
	mu       sync.RWMutex
	resolver kind.Resolver
	entries  map[string]kind.Descriptor
	fallback *kind.Descriptor
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithResolver sets the resolver used for name-based registration.
// Defaults to kind.DefaultCatalog.
func WithResolver(r kind.Resolver) Option {
	return func(reg *Registry) {
		reg.resolver = r
	}
}

// WithFallback sets the fallback client kind used when no mapping matches.
func WithFallback(client kind.Descriptor) Option {
	return func(reg *Registry) {
		reg.fallback = &client
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	reg := &Registry{
		resolver: kind.DefaultCatalog,
		entries:  make(map[string]kind.Descriptor),
	}
	for _, opt := range opts {
		opt(reg)
	}
	return reg
}

// Register maps a provisioner kind to a client kind. Registration is an
// upsert: re-registering the same provisioner kind replaces the previous
// client (last write wins), and re-registering an identical pair is a
// no-op. The new pair is visible to lookups atomically.
func (r *Registry) Register(prov, client kind.Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[prov.Name] = client
}

// RegisterNames resolves both kind names through the resolver and registers
// the pair. Either accepted name syntax works; both forms of a name produce
// the identical entry. On resolution failure the registry is unchanged and
// a ResolutionError naming the failing side is returned.
func (r *Registry) RegisterNames(provName, clientName string) error {
	prov, err := r.resolver.Resolve(provName)
	if err != nil {
		return &ResolutionError{Name: provName, Err: err}
	}
	client, err := r.resolver.Resolve(clientName)
	if err != nil {
		return &ResolutionError{Name: clientName, Err: err}
	}
	r.Register(prov, client)
	return nil
}

// SetFallback sets the client kind returned when neither the queried kind
// nor any of its ancestors has a mapping.
func (r *Registry) SetFallback(client kind.Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = &client
}

// Fallback returns the configured fallback client kind, if any.
func (r *Registry) Fallback() (kind.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.fallback == nil {
		return kind.Descriptor{}, false
	}
	return *r.fallback, true
}

// Lookup selects the client kind for a provisioner kind. The decision is a
// pure function of the queried descriptor and current registry state:
//
//  1. an exact mapping for the kind itself wins;
//  2. otherwise the ancestor chain is walked most-specific first and the
//     first registered ancestor wins;
//  3. otherwise the fallback client is returned, if one is set;
//  4. otherwise ok is false.
func (r *Registry) Lookup(k kind.Descriptor) (client kind.Descriptor, ok bool) {
	res := r.Explain(k)
	return res.Client, res.Match != MatchNone
}

// Explain is Lookup plus provenance: which rule matched and through which
// registered kind name.
func (r *Registry) Explain(k kind.Descriptor) Resolution {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if client, ok := r.entries[k.Name]; ok {
		return Resolution{Client: client, Match: MatchExact, Via: k.Name}
	}
	for _, anc := range k.Ancestors {
		if client, ok := r.entries[anc]; ok {
			return Resolution{Client: client, Match: MatchAncestor, Via: anc}
		}
	}
	// The fallback applies only once the chain is exhausted, so a mapping
	// for a distant ancestor still beats it.
	if r.fallback != nil {
		return Resolution{Client: *r.fallback, Match: MatchFallback}
	}
	return Resolution{Match: MatchNone}
}

// Resolve is Lookup with the no-match outcome surfaced as a NoMatchError.
func (r *Registry) Resolve(k kind.Descriptor) (kind.Descriptor, error) {
	client, ok := r.Lookup(k)
	if !ok {
		return kind.Descriptor{}, &NoMatchError{Kind: k.Name}
	}
	return client, nil
}

// Mappings returns a snapshot of all registered pairs sorted by provisioner
// kind name. The snapshot is independent of later mutation.
func (r *Registry) Mappings() []Mapping {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mappings := make([]Mapping, 0, len(r.entries))
	for prov, client := range r.entries {
		mappings = append(mappings, Mapping{Provisioner: prov, Client: client.Name})
	}
	slices.SortFunc(mappings, func(a, b Mapping) int {
		return strings.Compare(a.Provisioner, b.Provisioner)
	})
	return mappings
}

// Len returns the number of registered pairs, excluding the fallback.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear removes every mapping and the fallback. Afterwards Mappings is
// empty and every lookup is a no-match. Intended for test scopes and full
// reloads.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]kind.Descriptor)
	r.fallback = nil
}
