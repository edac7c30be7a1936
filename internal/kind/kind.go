// Package kind models the identities of provisioner and client kinds.
// A kind is a named point in a single-inheritance taxonomy: each Descriptor
// carries its own canonical name plus the ordered chain of ancestor names
// the dispatch registry walks when no exact mapping exists.
package kind

import (
	"fmt"
	"strings"
)

// Descriptor identifies a provisioner or client kind.
// Identity is by Name: two descriptors with equal names are the same kind.
type Descriptor struct {
	// Name is the canonical qualified kind name in dotted form,
	// e.g. "kernelbridge.provisioners.Local".
	Name string

	// Ancestors lists ancestor kind names ordered most-specific first,
	// ending at the root kind. The descriptor's own name is excluded.
	// Empty for root kinds.
	Ancestors []string
}

// InvalidNameError is returned when a kind name parses in neither the
// dotted nor the path-colon-name syntax.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid kind name %q: %s", e.Name, e.Reason)
}

// NotDefinedError is returned when a kind name has no catalog entry.
type NotDefinedError struct {
	Name string
}

func (e *NotDefinedError) Error() string {
	return fmt.Sprintf("kind %q is not defined", e.Name)
}

// ParseName normalizes a kind name to its canonical dotted form.
// Two syntaxes are accepted and produce the same canonical name:
//
//	"pkg.path:Name" (path-colon-name)
//	"pkg.path.Name" (fully dotted)
//
// A bare single-segment name is already canonical. Empty names, empty
// segments, embedded whitespace, and more than one colon are rejected.
func ParseName(s string) (string, error) {
	name := strings.TrimSpace(s)
	if name == "" {
		return "", &InvalidNameError{Name: s, Reason: "empty name"}
	}
	if strings.ContainsAny(name, " \t\n") {
		return "", &InvalidNameError{Name: s, Reason: "embedded whitespace"}
	}

	switch strings.Count(name, ":") {
	case 0:
		// Already dotted.
	case 1:
		sep := strings.Index(name, ":")
		path, base := name[:sep], name[sep+1:]
		if path == "" || base == "" {
			return "", &InvalidNameError{Name: s, Reason: "empty segment around ':'"}
		}
		name = path + "." + base
	default:
		return "", &InvalidNameError{Name: s, Reason: "more than one ':'"}
	}

	for _, seg := range strings.Split(name, ".") {
		if seg == "" {
			return "", &InvalidNameError{Name: s, Reason: "empty dotted segment"}
		}
	}
	return name, nil
}

// Validate checks that the descriptor's name and ancestor chain parse and
// that the chain is acyclic: no self-reference and no repeated entry.
func (d Descriptor) Validate() error {
	_, err := canonicalize(d)
	return err
}

// Root returns the root kind name: the last ancestor, or the descriptor's
// own name when the chain is empty.
func (d Descriptor) Root() string {
	if len(d.Ancestors) == 0 {
		return d.Name
	}
	return d.Ancestors[len(d.Ancestors)-1]
}

// IsA reports whether name identifies this kind or one of its ancestors.
// The name may use either accepted syntax.
func (d Descriptor) IsA(name string) bool {
	canon, err := ParseName(name)
	if err != nil {
		return false
	}
	if canon == d.Name {
		return true
	}
	for _, anc := range d.Ancestors {
		if anc == canon {
			return true
		}
	}
	return false
}

func (d Descriptor) String() string {
	return d.Name
}

// canonicalize returns a copy of d with the name and every ancestor
// normalized to dotted form, validating the chain along the way.
func canonicalize(d Descriptor) (Descriptor, error) {
	name, err := ParseName(d.Name)
	if err != nil {
		return Descriptor{}, err
	}

	out := Descriptor{Name: name}
	if len(d.Ancestors) > 0 {
		out.Ancestors = make([]string, len(d.Ancestors))
	}
	seen := make(map[string]bool, len(d.Ancestors))
	for i, anc := range d.Ancestors {
		canon, err := ParseName(anc)
		if err != nil {
			return Descriptor{}, err
		}
		if canon == name {
			return Descriptor{}, fmt.Errorf("kind %q lists itself as an ancestor", name)
		}
		if seen[canon] {
			return Descriptor{}, fmt.Errorf("kind %q ancestor chain repeats %q", name, canon)
		}
		seen[canon] = true
		out.Ancestors[i] = canon
	}
	return out, nil
}
