package kind

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// === Unit Tests: Define ===

func TestCatalog_Define_StoresKind(t *testing.T) {
	catalog := NewCatalog()

	err := catalog.Define(Descriptor{
		Name:      "kb.provisioners.Local",
		Ancestors: []string{"kb.provisioners.Base"},
	})
	require.NoError(t, err)

	d, err := catalog.Resolve("kb.provisioners.Local")
	require.NoError(t, err)
	require.Equal(t, "kb.provisioners.Local", d.Name)
	require.Equal(t, []string{"kb.provisioners.Base"}, d.Ancestors)
}

func TestCatalog_Define_NormalizesColonForm(t *testing.T) {
	catalog := NewCatalog()

	err := catalog.Define(Descriptor{
		Name:      "kb.provisioners:Local",
		Ancestors: []string{"kb.provisioners:Base"},
	})
	require.NoError(t, err)

	d, err := catalog.Resolve("kb.provisioners.Local")
	require.NoError(t, err)
	require.Equal(t, "kb.provisioners.Local", d.Name)
	require.Equal(t, []string{"kb.provisioners.Base"}, d.Ancestors)
}

func TestCatalog_Define_IdenticalRedefinitionIsNoOp(t *testing.T) {
	catalog := NewCatalog()
	d := Descriptor{Name: "kb.A", Ancestors: []string{"kb.Base"}}

	require.NoError(t, catalog.Define(d))
	require.NoError(t, catalog.Define(d))
	require.Equal(t, 1, catalog.Len())
}

func TestCatalog_Define_RejectsConflictingChain(t *testing.T) {
	catalog := NewCatalog()

	require.NoError(t, catalog.Define(Descriptor{Name: "kb.A", Ancestors: []string{"kb.Base"}}))

	err := catalog.Define(Descriptor{Name: "kb.A", Ancestors: []string{"kb.Other"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "different ancestor chain")
}

func TestCatalog_Define_RejectsInvalidDescriptor(t *testing.T) {
	catalog := NewCatalog()

	err := catalog.Define(Descriptor{Name: "a:b:c"})
	require.Error(t, err)
	require.Equal(t, 0, catalog.Len())
}

// === Unit Tests: Resolve ===

func TestCatalog_Resolve_BothSyntaxesHitSameEntry(t *testing.T) {
	catalog := NewCatalog()
	require.NoError(t, catalog.Define(Descriptor{
		Name:      "kb.provisioners.Local",
		Ancestors: []string{"kb.provisioners.Base"},
	}))

	dotted, err := catalog.Resolve("kb.provisioners.Local")
	require.NoError(t, err)
	colon, err := catalog.Resolve("kb.provisioners:Local")
	require.NoError(t, err)
	require.Equal(t, dotted, colon)
}

func TestCatalog_Resolve_UnknownName(t *testing.T) {
	catalog := NewCatalog()

	_, err := catalog.Resolve("kb.Missing")
	require.Error(t, err)

	var notDefined *NotDefinedError
	require.ErrorAs(t, err, &notDefined)
	require.Equal(t, "kb.Missing", notDefined.Name)
}

func TestCatalog_Resolve_InvalidName(t *testing.T) {
	catalog := NewCatalog()

	_, err := catalog.Resolve("a:b:c")
	var invalid *InvalidNameError
	require.ErrorAs(t, err, &invalid)
}

func TestCatalog_Resolve_ReturnsDefensiveCopy(t *testing.T) {
	catalog := NewCatalog()
	require.NoError(t, catalog.Define(Descriptor{
		Name:      "kb.A",
		Ancestors: []string{"kb.B", "kb.Base"},
	}))

	d, err := catalog.Resolve("kb.A")
	require.NoError(t, err)
	d.Ancestors[0] = "mutated"

	again, err := catalog.Resolve("kb.A")
	require.NoError(t, err)
	require.Equal(t, []string{"kb.B", "kb.Base"}, again.Ancestors)
}

// === Unit Tests: Defined ===

func TestCatalog_Defined_ReturnsSortedNames(t *testing.T) {
	catalog := NewCatalog()
	require.NoError(t, catalog.Define(Descriptor{Name: "kb.C"}))
	require.NoError(t, catalog.Define(Descriptor{Name: "kb.A"}))
	require.NoError(t, catalog.Define(Descriptor{Name: "kb.B"}))

	require.Equal(t, []string{"kb.A", "kb.B", "kb.C"}, catalog.Defined())
}

// === Concurrency Tests ===

func TestCatalog_ConcurrentDefineAndResolve(t *testing.T) {
	catalog := NewCatalog()
	const numGoroutines = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("kb.kinds.K%d", n)
			_ = catalog.Define(Descriptor{Name: name, Ancestors: []string{"kb.kinds.Base"}})
			_, _ = catalog.Resolve(name)
		}(i)
	}
	wg.Wait()

	require.Equal(t, numGoroutines, catalog.Len())
}
