package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"authgate/core"
)

// writeProviderReport prints availability per provider. Credential values
// are never printed, only which keys are missing.
func writeProviderReport(out io.Writer, source core.ConfigSource) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tSTATUS\tMISSING")

	for _, p := range core.AllProviders() {
		if _, ok := core.ProviderCredentials(source, p); ok {
			fmt.Fprintf(tw, "%s\tavailable\t-\n", core.ProviderName(p))
			continue
		}

		var missing []string
		for _, key := range core.RequiredKeys(p) {
			if v, ok := source.Lookup(key); !ok || v == "" {
				missing = append(missing, key)
			}
		}
		fmt.Fprintf(tw, "%s\tunavailable\t%v\n", core.ProviderName(p), missing)
	}
	tw.Flush()

	magic := "disabled"
	if core.ResolveMagicLinkEnabled(source) {
		magic = "enabled"
	}
	fmt.Fprintf(out, "\nMagic link: %s\n", magic)
}
