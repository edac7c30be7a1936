package registry

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Entry is one provisioner-to-client name pair supplied by a Source. Names
// may use either accepted kind syntax; they are resolved at merge time.
type Entry struct {
	Provisioner string
	Client      string
}

// Source supplies mapping entries for a bulk merge. Implementations include
// StaticSource for in-process pair lists and DirSource for plugin manifest
// directories.
type Source interface {
	// Entries returns the pairs this source contributes. A non-nil error
	// reports entries the source could not read; pairs returned alongside
	// the error are still merged.
	Entries() ([]Entry, error)
}

// FallbackSource is implemented by sources that also propose a fallback
// client kind. When several merged sources propose one, the last merge
// wins.
type FallbackSource interface {
	FallbackClient() (string, bool)
}

// StaticSource is a fixed list of entries.
type StaticSource []Entry

// Entries returns the list unchanged.
func (s StaticSource) Entries() ([]Entry, error) {
	return s, nil
}

// Merge registers every entry the source supplies. The merge is
// best-effort: a malformed or unresolvable entry is recorded and skipped,
// and every remaining entry is still registered. The returned error, if
// any, aggregates all per-entry failures; it never indicates a rollback.
// Individual pairs become visible to lookups as they are registered.
func (r *Registry) Merge(src Source) error {
	var merged *multierror.Error

	entries, err := src.Entries()
	if err != nil {
		merged = multierror.Append(merged, err)
	}
	for _, e := range entries {
		if err := r.RegisterNames(e.Provisioner, e.Client); err != nil {
			merged = multierror.Append(merged, err)
		}
	}

	if fs, ok := src.(FallbackSource); ok {
		if name, set := fs.FallbackClient(); set {
			client, err := r.resolver.Resolve(name)
			if err != nil {
				merged = multierror.Append(merged, &ResolutionError{Name: name, Err: err})
			} else {
				r.SetFallback(client)
			}
		}
	}

	return merged.ErrorOrNil()
}

// MergeStrings merges config-style pair strings of the form
// "provisionerKindName:clientKindName". Both names must use the dotted
// syntax here; the colon is reserved as the pair separator. Malformed pairs
// are collected like any other merge failure and do not abort their
// siblings.
func (r *Registry) MergeStrings(pairs []string) error {
	entries := make(StaticSource, 0, len(pairs))
	var merged *multierror.Error

	for _, pair := range pairs {
		entry, err := parsePair(pair)
		if err != nil {
			merged = multierror.Append(merged, err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := r.Merge(entries); err != nil {
		merged = multierror.Append(merged, err)
	}
	return merged.ErrorOrNil()
}

// parsePair splits a "provisioner:client" config string into an Entry.
func parsePair(pair string) (Entry, error) {
	trimmed := strings.TrimSpace(pair)
	if strings.Count(trimmed, ":") != 1 {
		return Entry{}, &ResolutionError{
			Name: pair,
			Err:  fmt.Errorf("want exactly one ':' separating dotted kind names"),
		}
	}

	sep := strings.Index(trimmed, ":")
	prov := strings.TrimSpace(trimmed[:sep])
	client := strings.TrimSpace(trimmed[sep+1:])
	if prov == "" || client == "" {
		return Entry{}, &ResolutionError{
			Name: pair,
			Err:  fmt.Errorf("empty kind name in pair"),
		}
	}
	return Entry{Provisioner: prov, Client: client}, nil
}
