package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/cass/internal/config"
	"github.com/fyrsmithlabs/cass/internal/query"
	"github.com/fyrsmithlabs/cass/internal/searchindex"
	"github.com/fyrsmithlabs/cass/internal/store"
	"github.com/fyrsmithlabs/cass/internal/tui"
	"github.com/fyrsmithlabs/cass/internal/tuistate"
)

var tuiOnce bool

func init() {
	tuiCmd.Flags().BoolVar(&tuiOnce, "once", false, "run a single render pass and exit, for headless testing")
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive search TUI",
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
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

	st, err := store.OpenReadOnly(filepath.Join(cfg.DataDir, "agent_search.db"))
	if err != nil {
		if errors.Is(err, store.ErrSchemaMismatch) || os.IsNotExist(err) {
			return errMissingIndex
		}
		return err
	}
	defer st.Close()

	idx, err := searchindex.OpenReadOnly(cfg.DataDir)
	if err != nil {
		return errMissingIndex
	}
	defer idx.Close()

	engine := query.New(idx, st)
	state := tuistate.Load(cfg.DataDir)

	model := tui.New(engine, state, cfg.DataDir, cfg.DebugCacheMetrics || os.Getenv("CASS_DEBUG_CACHE_METRICS") != "")

	opts := []tea.ProgramOption{}
	if tuiOnce || os.Getenv("TUI_HEADLESS") != "" {
		opts = append(opts, tea.WithInput(nil), tea.WithoutRenderer())
	}
	p := tea.NewProgram(model, opts...)
	if tuiOnce {
		fmt.Println(model.View())
		return nil
	}
	_, err = p.Run()
	return err
}
