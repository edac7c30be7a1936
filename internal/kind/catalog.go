package kind

import (
	"fmt"
	"slices"
	"sync"
)

// Resolver resolves kind names to descriptors. The dispatch registry depends
// on this interface rather than on a concrete catalog so tests and embedders
// can inject their own resolution.
type Resolver interface {
	// Resolve returns the descriptor for a kind name in either accepted
	// syntax. Returns InvalidNameError for unparseable names and
	// NotDefinedError for unknown ones.
	Resolve(name string) (Descriptor, error)
}

// Catalog is a thread-safe registry of kind descriptors keyed by canonical
// name. It implements Resolver.
type Catalog struct {
	mu    sync.RWMutex
	kinds map[string]Descriptor
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{kinds: make(map[string]Descriptor)}
}

// Define adds a descriptor to the catalog. The name and ancestors are
// normalized to dotted form first. Defining the same kind twice is a no-op
// when the ancestor chains match and an error when they differ.
func (c *Catalog) Define(d Descriptor) error {
	canon, err := canonicalize(d)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.kinds[canon.Name]; ok {
		if slices.Equal(existing.Ancestors, canon.Ancestors) {
			return nil
		}
		return fmt.Errorf("kind %q already defined with a different ancestor chain", canon.Name)
	}
	c.kinds[canon.Name] = canon
	return nil
}

// MustDefine is Define that panics on error.
// This should be called in init() functions of kind-providing packages.
func (c *Catalog) MustDefine(d Descriptor) {
	if err := c.Define(d); err != nil {
		panic(err)
	}
}

// Resolve returns the descriptor for a kind name in either accepted syntax.
func (c *Catalog) Resolve(name string) (Descriptor, error) {
	canon, err := ParseName(name)
	if err != nil {
		return Descriptor{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.kinds[canon]
	if !ok {
		return Descriptor{}, &NotDefinedError{Name: canon}
	}
	// Copy so callers cannot mutate the stored chain.
	d.Ancestors = slices.Clone(d.Ancestors)
	return d, nil
}

// Defined returns the canonical names of all defined kinds, sorted.
func (c *Catalog) Defined() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.kinds))
	for name := range c.kinds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of defined kinds.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.kinds)
}

// DefaultCatalog is the process-wide catalog. Shipped provisioner and client
// packages define their kinds against it from init().
var DefaultCatalog = NewCatalog()

// Define adds a descriptor to DefaultCatalog.
func Define(d Descriptor) error {
	return DefaultCatalog.Define(d)
}

// MustDefine adds a descriptor to DefaultCatalog, panicking on error.
func MustDefine(d Descriptor) {
	DefaultCatalog.MustDefine(d)
}

// Resolve resolves a kind name against DefaultCatalog.
func Resolve(name string) (Descriptor, error) {
	return DefaultCatalog.Resolve(name)
}
