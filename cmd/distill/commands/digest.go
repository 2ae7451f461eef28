package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/distill/internal/logger"
	"github.com/jmylchreest/distill/internal/output"
	"github.com/jmylchreest/distill/pkg/digest"
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Render a records file as compact synthesis text",
	Long: `Render extracted records as dense plain text grouped by entity.

The input is any file written by distill extract in json, jsonl or yaml,
with or without the run envelope.

Examples:
  distill digest -i records.json
  distill digest -i records.jsonl -o digest.txt`,
	Args: cobra.NoArgs,
	RunE: runDigest,
}

func init() {
	rootCmd.AddCommand(digestCmd)

	flags := digestCmd.Flags()
	flags.StringP("input", "i", "", "records file (required)")
	flags.String("input-format", "", "records format: json, jsonl, yaml (default from extension)")
	flags.StringP("output", "o", "", "output file (default: stdout)")

	_ = digestCmd.MarkFlagRequired("input")
}

func runDigest(cmd *cobra.Command, _ []string) error {
	inPath, _ := cmd.Flags().GetString("input")
	inFormat, _ := cmd.Flags().GetString("input-format")
	outPath, _ := cmd.Flags().GetString("output")

	format, err := outputFormat(inFormat, inPath)
	if err != nil {
		return err
	}

	in, err := os.Open(inPath) //#nosec G304 -- CLI tool reads a user-specified file
	if err != nil {
		return fmt.Errorf("failed to open records file: %w", err)
	}
	defer func() { _ = in.Close() }()

	records, err := output.ReadRecords(in, format)
	if err != nil {
		return err
	}

	text := digest.Render(records)

	out, closeOut, err := createOutput(outPath)
	if err != nil {
		return err
	}
	defer closeOut()

	if _, err := fmt.Fprintln(out, text); err != nil {
		return err
	}

	if savings, err := digest.Compare(records, text); err == nil {
		logger.Info("digest written", "records", len(records), "size", savings.String())
	}
	return nil
}
