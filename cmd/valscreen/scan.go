package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/newthinker/valscreen/internal/core"
	"github.com/newthinker/valscreen/internal/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	scanLimit    uint
	scanSort     string
	scanDesc     bool
	scanFormat   string
	scanArchive  bool
	scanTreemap  string
	scanProgress bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <index>",
	Short: "Value the largest constituents of an index",
	Long: `Resolve the index, keep the largest constituents and compare each
forward P/E with its reconstructed historical average. Ctrl-C stops
dispatching new instruments and prints the partial result.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().UintVarP(&scanLimit, "limit", "n", 0, "number of constituents to value (default from config)")
	scanCmd.Flags().StringVar(&scanSort, "sort", string(report.SortPremium), "sort key: premium, historical_pe, forward_pe, market_cap, identifier, sector")
	scanCmd.Flags().BoolVar(&scanDesc, "desc", false, "sort descending")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "output format: table, csv or json")
	scanCmd.Flags().BoolVar(&scanArchive, "archive", false, "archive the result snapshot")
	scanCmd.Flags().StringVar(&scanTreemap, "treemap", "", "write the treemap hierarchy as JSON to this file")
	scanCmd.Flags().BoolVar(&scanProgress, "progress", true, "report progress on stderr")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	sortKey, err := report.ParseSortKey(scanSort)
	if err != nil {
		return err
	}
	switch scanFormat {
	case "table", "csv", "json":
	default:
		return fmt.Errorf("unknown format %q", scanFormat)
	}

	_, log, a, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limit := scanLimit
	if limit == 0 {
		limit = a.DefaultLimit()
	}

	sel, err := a.ResolveAndRank(ctx, args[0], limit)
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	var progress func(completed, total int)
	if scanProgress {
		progress = func(completed, total int) {
			fmt.Fprintf(stderr, "\rvaluing %s: %d/%d", sel.Index, completed, total)
			if completed == total {
				fmt.Fprintln(stderr)
			}
		}
	}

	table := a.RunBatch(ctx, sel, progress)
	if table.Cancelled && scanProgress {
		fmt.Fprintln(stderr)
	}

	if scanArchive && !table.Cancelled {
		path, err := a.Archive(cmd.Context(), table)
		if err != nil {
			log.Warn("archiving failed", zap.Error(err))
		} else {
			fmt.Fprintf(stderr, "archived %s\n", path)
		}
	}

	if scanTreemap != "" {
		root := sel.Index
		if d, ok := a.Index(sel.Index); ok && d.Name != "" {
			root = d.Name
		}
		if err := writeTreemap(scanTreemap, table, root); err != nil {
			return err
		}
	}

	if table.IsEmpty() {
		fmt.Fprintf(stderr, "no valuation results for %s (%d skipped)\n", sel.Index, len(table.Skipped))
	}

	sorted := *table
	sorted.Records = report.SortRecords(table.Records, sortKey, scanDesc)
	return render(cmd.OutOrStdout(), &sorted)
}

func render(out io.Writer, t *core.ResultTable) error {
	switch scanFormat {
	case "csv":
		return report.WriteCSV(out, t.Records)
	case "json":
		return report.WriteJSON(out, t)
	default:
		if err := report.WriteSummary(out, report.Summarize(t)); err != nil {
			return err
		}
		if t.IsEmpty() {
			return nil
		}
		fmt.Fprintln(out)
		return report.WriteTable(out, t.Records)
	}
}

func writeTreemap(path string, t *core.ResultTable, root string) error {
	data, err := json.MarshalIndent(report.Treemap(t, root), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding treemap: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing treemap: %w", err)
	}
	return nil
}
