package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kernelbridge/kernelbridge/internal/config"
	"github.com/kernelbridge/kernelbridge/internal/kind"
	"github.com/kernelbridge/kernelbridge/internal/registry"
)

var mappingsFormat string

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Print the provisioner-to-client mapping table",
	Long: `Build the dispatch registry from the config file and plugin manifests,
then print the resulting mapping snapshot and fallback client.

Merge failures (unknown kinds, malformed pairs, broken manifests) are
reported as warnings; the remaining mappings still load and print.

Examples:
  kernelbridge mappings
  kernelbridge mappings --format json | jq '.mappings[].client'
  kernelbridge mappings --format yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildRegistry(cfg)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: some mappings failed to load:\n%v\n", err)
		}

		out := mappingsOutput{Mappings: reg.Mappings()}
		if fb, ok := reg.Fallback(); ok {
			out.Fallback = fb.Name
		}
		return renderMappings(cmd.OutOrStdout(), mappingsFormat, out)
	},
}

func init() {
	mappingsCmd.Flags().StringVarP(&mappingsFormat, "format", "f", "table",
		"output format: table, json, or yaml")
	rootCmd.AddCommand(mappingsCmd)
}

// mappingsOutput is the serializable registry snapshot.
type mappingsOutput struct {
	Mappings []registry.Mapping `json:"mappings" yaml:"mappings"`
	Fallback string             `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// buildRegistry constructs the dispatch registry the way the daemon
// would: config pairs first, then plugin manifests (so an installed
// extension can override a config mapping), then the config fallback.
func buildRegistry(cfg config.Config) (*registry.Registry, error) {
	reg := registry.New()

	var failures error
	if err := reg.MergeStrings(cfg.ClientMappings); err != nil {
		failures = err
	}

	if cfg.Plugins.Dir != "" {
		src := registry.NewDirSource(os.DirFS(cfg.Plugins.Dir), ".")
		if err := reg.Merge(src); err != nil {
			if failures != nil {
				failures = fmt.Errorf("%w\n%w", failures, err)
			} else {
				failures = err
			}
		}
	}

	if cfg.FallbackClient != "" {
		client, err := kind.Resolve(cfg.FallbackClient)
		if err != nil {
			if failures != nil {
				failures = fmt.Errorf("%w\nfallback_client: %w", failures, err)
			} else {
				failures = fmt.Errorf("fallback_client: %w", err)
			}
		} else {
			reg.SetFallback(client)
		}
	}

	return reg, failures
}

// renderMappings writes the snapshot in the requested format.
func renderMappings(w io.Writer, format string, out mappingsOutput) error {
	switch format {
	case "table":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROVISIONER\tCLIENT")
		for _, m := range out.Mappings {
			fmt.Fprintf(tw, "%s\t%s\n", m.Provisioner, m.Client)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if out.Fallback != "" {
			fmt.Fprintf(w, "\nfallback: %s\n", out.Fallback)
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want table, json, or yaml)", format)
	}
}
