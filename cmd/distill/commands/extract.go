package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/distill/internal/logger"
	"github.com/jmylchreest/distill/internal/output"
	"github.com/jmylchreest/distill/pkg/extractor"
	"github.com/jmylchreest/distill/pkg/news"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract structured records from a news feed",
	Long: `Extract structured event records from a feed of news articles.

The feed is a JSON array (or an object holding "items", "news" or
"articles"), JSON lines, or YAML. Each article needs a title and a
body; "content" may be a string or a list of paragraphs and may hold
HTML.

Examples:
  distill extract -i news.json -o records.json
  distill extract -i news.jsonl --format jsonl --records-only
  distill extract -i news.yaml -r gemma-3-27b --context "Focus on banks"`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	flags := extractCmd.Flags()

	flags.StringP("input", "i", "", "feed file (required)")
	flags.String("input-format", "", "feed format: json, jsonl, yaml (default from extension)")

	flags.StringP("output", "o", "", "output file (default: stdout)")
	flags.String("format", "", "output format: json, jsonl, yaml, digest (default from extension, then json)")
	flags.Bool("records-only", false, "write only the records, without report and stats")
	flags.Bool("compact", false, "disable pretty-printing")

	flags.StringP("resource", "r", "", "resource id from the catalog (see distill resources)")
	flags.IntP("workers", "w", 0, "max concurrent workers")
	flags.Int("chunk-budget", 0, "token budget per chunk")
	flags.Int("max-attempts", 0, "attempts per task")
	flags.Int("max-depth", 0, "max split and residual depth")
	flags.String("context", "", "extra guidance appended to every prompt")
	flags.String("context-file", "", "file holding extra prompt guidance")

	_ = extractCmd.MarkFlagRequired("input")
}

func runExtract(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	flags := cmd.Flags()
	inPath, _ := flags.GetString("input")
	inFormat, _ := flags.GetString("input-format")
	outPath, _ := flags.GetString("output")
	formatName, _ := flags.GetString("format")
	recordsOnly, _ := flags.GetBool("records-only")
	compact, _ := flags.GetBool("compact")

	format, err := outputFormat(formatName, outPath)
	if err != nil {
		return err
	}

	extractCfg := cfg.Extract
	if contextFile, _ := flags.GetString("context-file"); contextFile != "" {
		data, err := os.ReadFile(contextFile) //#nosec G304 -- CLI tool reads a user-specified file
		if err != nil {
			return fmt.Errorf("failed to read context file: %w", err)
		}
		extractCfg.Context = string(data)
	}

	items, err := news.FileFeed{Path: inPath, Format: inFormat}.Items(ctx)
	if err != nil {
		logger.Error("failed to load feed", "path", inPath, "error", err)
		return err
	}
	logger.Debug("feed loaded", "path", inPath, "items", len(items))

	sess, err := openSession(ctx, cfg)
	if err != nil {
		logger.Error("failed to open session", "error", err)
		return err
	}
	defer func() { _ = sess.Close() }()

	orch, err := extractor.New(sess.client, extractCfg)
	if err != nil {
		return err
	}

	res, runErr := orch.Run(ctx, items)

	outFile, closeOut, err := createOutput(outPath)
	if err != nil {
		return err
	}
	defer closeOut()

	writer, err := output.NewWriter(outFile, format,
		output.WithPretty(!compact),
		output.WithRecordsOnly(recordsOnly))
	if err != nil {
		return err
	}
	if err := writer.WriteResult(res); err != nil {
		logger.Error("failed to write output", "error", err)
		return err
	}

	outcomes, tokens := sess.calls.Snapshot()
	logger.Info("extraction complete",
		"records", len(res.Records),
		"covered", fmt.Sprintf("%d/%d (%.1f%%)", res.Report.Covered, res.Report.Total, res.Report.Score*100),
		"failed", len(res.Failed),
		"attempts", res.Stats.Attempts,
		"outcomes", outcomes,
		"tokens", humanize.Comma(int64(tokens)),
		"duration", res.Stats.Duration.Round(time.Millisecond))

	for _, f := range res.Failed {
		logger.Warn("headline not covered", "title", f.Title, "reason", f.Reason, "task", f.Task)
	}

	return runErr
}
