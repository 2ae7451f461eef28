package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List schedulable resources and their per-credential quotas",
	Args:  cobra.NoArgs,
	RunE:  runResources,
}

func init() {
	rootCmd.AddCommand(resourcesCmd)
}

func runResources(cmd *cobra.Command, _ []string) error {
	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODEL\tPROVIDER\tTIER\tRPM\tTPM\tRPD")
	for _, id := range catalog.IDs() {
		p, _ := catalog.Lookup(id)
		marker := ""
		if id == cfg.Extract.Resource {
			marker = " *"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, marker, p.Model, p.Provider, p.Tier,
			humanize.Comma(int64(p.Limits.RPM)),
			humanize.Comma(int64(p.Limits.TPM)),
			humanize.Comma(int64(p.Limits.RPD)))
	}
	return tw.Flush()
}
