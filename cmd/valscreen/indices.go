package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/newthinker/valscreen/internal/index"
	"github.com/spf13/cobra"
)

var indicesJSON bool

var indicesCmd = &cobra.Command{
	Use:   "indices",
	Short: "List the supported indices",
	Args:  cobra.NoArgs,
	RunE:  runIndices,
}

func init() {
	indicesCmd.Flags().BoolVar(&indicesJSON, "json", false, "print descriptors as JSON")
	rootCmd.AddCommand(indicesCmd)
}

func runIndices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog, err := index.NewCatalog(cfg.Descriptors()...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if indicesJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(catalog.List())
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tSUFFIX\tSOURCE\t")
	for _, d := range catalog.List() {
		suffix := d.Venue.Suffix
		if suffix == "" {
			suffix = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", d.Key, d.Name, suffix, d.URL)
	}
	return tw.Flush()
}
