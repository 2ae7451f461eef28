package commands

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/distill/internal/logger"
	"github.com/jmylchreest/distill/pkg/usage"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show stored quota usage per credential and resource",
	Args:  cobra.NoArgs,
	RunE:  runUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	names := make(map[string]string)
	if creds, err := loadCredentials(ctx, cfg); err != nil {
		logger.Debug("credential names unavailable", "error", err)
	} else {
		for i := range creds {
			names[creds[i].ID()] = creds[i].Name
		}
	}

	store, err := usage.Open(ctx, cfg.Usage)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	counters, err := store.List(ctx)
	if err != nil {
		return err
	}
	sort.Slice(counters, func(i, j int) bool {
		if counters[i].ResourceID != counters[j].ResourceID {
			return counters[i].ResourceID < counters[j].ResourceID
		}
		return counters[i].CredentialID < counters[j].CredentialID
	})

	now := time.Now()
	today := usage.DayStamp(now)
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREDENTIAL\tRESOURCE\tRPM\tTPM\tRPD\tWINDOW")
	for _, c := range counters {
		name, ok := names[c.CredentialID]
		if !ok {
			name = c.CredentialID[:min(len(c.CredentialID), 12)]
		}

		rpm, tpm, rpd := c.RequestsInWindow, c.TokensInWindow, c.RequestsToday
		window := humanize.RelTime(c.WindowStart, now, "ago", "from now")
		if c.WindowElapsed(now) {
			rpm, tpm, window = 0, 0, "idle"
		}
		if c.DayStamp != today {
			rpd = 0
		}

		rpmCol, tpmCol, rpdCol := fmt.Sprint(rpm), humanize.Comma(int64(tpm)), fmt.Sprint(rpd)
		if p, ok := catalog.Lookup(c.ResourceID); ok {
			rpmCol += fmt.Sprintf("/%d", p.Limits.RPM)
			tpmCol += "/" + humanize.Comma(int64(p.Limits.TPM))
			rpdCol += fmt.Sprintf("/%d", p.Limits.RPD)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", name, c.ResourceID, rpmCol, tpmCol, rpdCol, window)
	}
	return tw.Flush()
}
