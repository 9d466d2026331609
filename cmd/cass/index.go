package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/cass/internal/config"
	"github.com/fyrsmithlabs/cass/internal/indexer"
	"github.com/fyrsmithlabs/cass/internal/logging"
	"github.com/fyrsmithlabs/cass/internal/searchindex"
	"github.com/fyrsmithlabs/cass/internal/store"
)

var (
	indexFull  bool
	indexWatch bool
)

func init() {
	indexCmd.Flags().BoolVar(&indexFull, "full", false, "ignore checkpoints and rescan every connector from scratch")
	indexCmd.Flags().BoolVar(&indexWatch, "watch", false, "keep running, rescanning on filesystem changes")
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Scan every connector and update the local index",
	RunE:  runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return &errUsage{cause: err}
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := cfg.Validate(); err != nil {
		return &errUsage{cause: err}
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	st, err := store.Open(filepath.Join(cfg.DataDir, "agent_search.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	idx, err := searchindex.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer idx.Close()

	ix := indexer.New(st, idx, logger.Underlying())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		ix.Cancelled.Store(true)
		cancel()
	}()

	if indexWatch {
		fmt.Fprintln(os.Stdout, "cass: watching for changes, press Ctrl-C to stop")
		return ix.Watch(ctx)
	}

	if indexFull {
		if err := idx.DeleteAll(); err != nil {
			return err
		}
	}
	results, err := ix.ScanAll(ctx, indexFull)
	if err != nil {
		return err
	}
	printScanSummary(results)
	return nil
}

func printScanSummary(results []indexer.Result) {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "cass: %s: %v\n", r.ConnectorSlug, r.Err)
			continue
		}
		fmt.Printf("%-12s %4d conversations, %5d messages\n", r.ConnectorSlug, r.ConversationsIn, r.MessagesIn)
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "cass: %d connector(s) failed\n", failed)
	}
}
