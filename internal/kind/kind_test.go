package kind

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// === Unit Tests: ParseName ===

func TestParseName_AcceptsBothSyntaxes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"dotted form", "kernelbridge.provisioners.Local", "kernelbridge.provisioners.Local"},
		{"colon form", "kernelbridge.provisioners:Local", "kernelbridge.provisioners.Local"},
		{"bare name", "Local", "Local"},
		{"two segments dotted", "pkg.Name", "pkg.Name"},
		{"two segments colon", "pkg:Name", "pkg.Name"},
		{"surrounding whitespace", "  pkg.Name  ", "pkg.Name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseName(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseName_RejectsMalformedNames(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"two colons", "a:b:c"},
		{"leading colon", ":Name"},
		{"trailing colon", "pkg.path:"},
		{"leading dot", ".Name"},
		{"trailing dot", "pkg.Name."},
		{"double dot", "pkg..Name"},
		{"embedded space", "pkg. Name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseName(tt.input)
			require.Error(t, err)

			var invalid *InvalidNameError
			require.ErrorAs(t, err, &invalid)
		})
	}
}

// === Unit Tests: Descriptor ===

func TestDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		desc    Descriptor
		wantErr string
	}{
		{
			name: "valid root kind",
			desc: Descriptor{Name: "kb.provisioners.Base"},
		},
		{
			name: "valid chain",
			desc: Descriptor{
				Name:      "kb.provisioners.Slurm",
				Ancestors: []string{"kb.provisioners.Remote", "kb.provisioners.Base"},
			},
		},
		{
			name:    "self reference",
			desc:    Descriptor{Name: "kb.A", Ancestors: []string{"kb.A"}},
			wantErr: "itself as an ancestor",
		},
		{
			name:    "self reference via colon form",
			desc:    Descriptor{Name: "kb.A", Ancestors: []string{"kb:A"}},
			wantErr: "itself as an ancestor",
		},
		{
			name:    "repeated ancestor",
			desc:    Descriptor{Name: "kb.A", Ancestors: []string{"kb.B", "kb.B"}},
			wantErr: "repeats",
		},
		{
			name:    "bad name",
			desc:    Descriptor{Name: "a:b:c"},
			wantErr: "invalid kind name",
		},
		{
			name:    "bad ancestor",
			desc:    Descriptor{Name: "kb.A", Ancestors: []string{""}},
			wantErr: "invalid kind name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDescriptor_Root(t *testing.T) {
	root := Descriptor{Name: "kb.Base"}
	require.Equal(t, "kb.Base", root.Root())

	leaf := Descriptor{Name: "kb.Slurm", Ancestors: []string{"kb.Remote", "kb.Base"}}
	require.Equal(t, "kb.Base", leaf.Root())
}

func TestDescriptor_IsA(t *testing.T) {
	d := Descriptor{
		Name:      "kb.provisioners.Slurm",
		Ancestors: []string{"kb.provisioners.Remote", "kb.provisioners.Base"},
	}

	require.True(t, d.IsA("kb.provisioners.Slurm"))
	require.True(t, d.IsA("kb.provisioners.Remote"))
	require.True(t, d.IsA("kb.provisioners.Base"))
	// Colon syntax resolves to the same identity.
	require.True(t, d.IsA("kb.provisioners:Remote"))

	require.False(t, d.IsA("kb.provisioners.Local"))
	require.False(t, d.IsA("not a name"))
}

// === Property-Based Tests ===

func TestParseName_PropertyBased_SyntaxEquivalence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numSegments := rapid.IntRange(1, 4).Draw(t, "numSegments")
		segments := make([]string, 0, numSegments+1)
		for i := 0; i < numSegments; i++ {
			segments = append(segments, rapid.StringMatching(`[a-z][a-z0-9_]{0,8}`).Draw(t, "segment"))
		}
		base := rapid.StringMatching(`[A-Z][a-zA-Z0-9]{0,8}`).Draw(t, "base")

		path := strings.Join(segments, ".")
		dotted := path + "." + base
		colon := path + ":" + base

		fromDotted, err := ParseName(dotted)
		require.NoError(t, err)
		fromColon, err := ParseName(colon)
		require.NoError(t, err)

		// Both syntaxes name the same kind.
		require.Equal(t, fromDotted, fromColon)

		// Canonical output is a fixed point of ParseName.
		again, err := ParseName(fromDotted)
		require.NoError(t, err)
		require.Equal(t, fromDotted, again)
	})
}
