package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resolveLimit uint

var resolveCmd = &cobra.Command{
	Use:   "resolve <index>",
	Short: "Resolve an index and print its largest constituents",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().UintVarP(&resolveLimit, "limit", "n", 0, "number of constituents to keep (default from config)")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	_, log, a, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limit := resolveLimit
	if limit == 0 {
		limit = a.DefaultLimit()
	}

	sel, err := a.ResolveAndRank(ctx, args[0], limit)
	if err != nil {
		return err
	}
	log.Debug("selection ready", zap.String("index", sel.Index), zap.Int("count", sel.Len()))

	if sel.Len() == 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "no constituents resolved for %s\n", sel.Index)
		return nil
	}
	out := cmd.OutOrStdout()
	for i, id := range sel.Identifiers {
		fmt.Fprintf(out, "%3d  %s\n", i+1, id)
	}
	return nil
}
