package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lucerohealth/psiflow/internal/ingest"
	"github.com/lucerohealth/psiflow/internal/psi/engine"
)

func newValidateCmd() *cobra.Command {
	var (
		appendix   string
		indicators []string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check an appendix file for the code sets the indicators need",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := ingest.LoadAppendix(appendix)
			if err != nil {
				return err
			}

			eng := engine.New(registry)
			if len(indicators) == 0 {
				indicators = eng.Indicators()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Appendix: %s\n", appendix)
			fmt.Fprintf(out, "Code sets loaded: %d\n", len(registry.Names()))

			missing := map[string][]string{}
			empty := map[string][]string{}
			for _, name := range indicators {
				sets, err := eng.RequiredCodeSets(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\n%s:\n", name)
				for _, set := range sets {
					switch {
					case !registry.Has(set):
						fmt.Fprintf(out, "  %-22s MISSING\n", set)
						missing[set] = append(missing[set], name)
					case registry.Get(set).Len() == 0:
						fmt.Fprintf(out, "  %-22s empty\n", set)
						empty[set] = append(empty[set], name)
					default:
						fmt.Fprintf(out, "  %-22s %d codes\n", set, registry.Get(set).Len())
					}
				}
			}
			fmt.Fprintln(out)

			if len(missing) == 0 && len(empty) == 0 {
				fmt.Fprintf(out, "All code sets present for: %v\n", indicators)
				return nil
			}
			for _, set := range sortedKeys(missing) {
				fmt.Fprintf(out, "MISSING %s (needed by %v)\n", set, missing[set])
			}
			for _, set := range sortedKeys(empty) {
				fmt.Fprintf(out, "EMPTY   %s (needed by %v)\n", set, empty[set])
			}
			// Missing sets are reported, not fatal: an absent set matches
			// nothing, and partial appendixes are common during setup.
			return nil
		},
	}

	cmd.Flags().StringVarP(&appendix, "appendix", "a", "", "appendix code set file (.xlsx or .csv)")
	cmd.Flags().StringSliceVarP(&indicators, "psi", "p", nil, "indicators to check (default: all)")
	cmd.MarkFlagRequired("appendix")

	return cmd
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
