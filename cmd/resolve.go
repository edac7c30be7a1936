package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kernelbridge/kernelbridge/internal/kind"
	"github.com/kernelbridge/kernelbridge/internal/registry"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <provisioner-kind>",
	Short: "Resolve which client a provisioner kind dispatches to",
	Long: `Resolve a provisioner kind name against the configured mappings and
report the chosen client kind plus the rule that chose it: an exact
mapping for the kind itself, a mapping for one of its ancestors, or the
registry-wide fallback.

Either kind name syntax is accepted:
  kernelbridge resolve kernelbridge.provisioners.Local
  kernelbridge resolve kernelbridge.provisioners:Local`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, err := kind.Resolve(args[0])
		if err != nil {
			return fmt.Errorf("unknown provisioner kind: %w", err)
		}

		reg, regErr := buildRegistry(cfg)
		if regErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: some mappings failed to load:\n%v\n", regErr)
		}

		res := reg.Explain(desc)
		if res.Match == registry.MatchNone {
			return &registry.NoMatchError{Kind: desc.Name}
		}
		renderResolution(cmd.OutOrStdout(), desc, res)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

// renderResolution prints one lookup outcome with its provenance.
func renderResolution(w io.Writer, prov kind.Descriptor, res registry.Resolution) {
	fmt.Fprintf(w, "provisioner: %s\n", prov.Name)
	fmt.Fprintf(w, "client:      %s\n", res.Client.Name)
	switch res.Match {
	case registry.MatchExact:
		fmt.Fprintf(w, "rule:        exact mapping for %s\n", res.Via)
	case registry.MatchAncestor:
		fmt.Fprintf(w, "rule:        inherited from ancestor %s\n", res.Via)
	case registry.MatchFallback:
		fmt.Fprintln(w, "rule:        fallback client")
	}
}
