// Package tui is a thin bubbletea program driving internal/query end to
// end: a debounced search box, a result list, and a cache-stat footer.
// Rendering polish, keybindings, animations, and palettes are out of
// scope (spec §1); this exists to prove the wiring, not to compete with
// the project's separate ratatui-style export surface.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/cass/internal/query"
	"github.com/fyrsmithlabs/cass/internal/tuistate"
)

// debounce matches spec §5: a pending edit only fires a search once this
// much time elapses without a further keystroke.
const debounce = 60 * time.Millisecond

// sparseThreshold is the TUI's wildcard-fallback trigger, per spec §4.5.3.
const sparseThreshold = 3

const pageSize = 20

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
	footerStyle = lipgloss.NewStyle().Faint(true).MarginTop(1)
)

type searchResultMsg struct {
	result *query.SearchResult
	err    error
	gen    int64
}

type debounceFireMsg struct{ gen int64 }

// Model is the bubbletea model wiring the TUI's keystroke loop to the
// search engine.
type Model struct {
	engine  *query.Engine
	state   *tuistate.State
	dataDir string

	input   textinput.Model
	results []query.SearchHit
	stats   query.CacheStats
	fallback bool
	lastErr  error

	showCacheStats bool
	editGen        int64
	quitting       bool
}

// New builds a Model ready to run via tea.NewProgram.
func New(engine *query.Engine, state *tuistate.State, dataDir string, showCacheStats bool) Model {
	ti := textinput.New()
	ti.Placeholder = "search your agent history…"
	ti.Focus()
	return Model{engine: engine, state: state, dataDir: dataDir, input: ti, showCacheStats: showCacheStats}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			_ = m.state.Save(m.dataDir)
			return m, tea.Quit
		case tea.KeyEnter:
			m.state.PushQuery(m.input.Value())
			_ = m.state.Save(m.dataDir)
			return m, m.fireSearch()
		case tea.KeyTab:
			if m.state.MatchMode == "prefix" {
				m.state.MatchMode = "standard"
			} else {
				m.state.MatchMode = "prefix"
			}
			m.editGen++
			return m, m.scheduleDebounce()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		m.editGen++
		return m, tea.Batch(cmd, m.scheduleDebounce())

	case debounceFireMsg:
		if msg.gen != m.editGen {
			return m, nil // a newer edit superseded this debounce window
		}
		return m, m.fireSearch()

	case searchResultMsg:
		if msg.gen != m.editGen {
			return m, nil
		}
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.lastErr = nil
		m.results = msg.result.Hits
		m.stats = msg.result.CacheStats
		m.fallback = msg.result.WildcardFallback
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	if m.lastErr != nil {
		b.WriteString("error: " + m.lastErr.Error() + "\n")
	}
	if m.fallback {
		b.WriteString(dimStyle.Render("(broadened to a wildcard search)") + "\n")
	}
	for _, h := range m.results {
		b.WriteString(titleStyle.Render(h.Title))
		b.WriteString("  ")
		b.WriteString(dimStyle.Render(h.Agent))
		b.WriteString("  ")
		b.WriteString(scoreStyle.Render(fmt.Sprintf("%.2f", h.Score)))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(truncate(h.Content, 100)))
		b.WriteString("\n\n")
	}

	footer := fmt.Sprintf("mode=%s  results=%d", m.state.MatchMode, len(m.results))
	if m.showCacheStats {
		footer += fmt.Sprintf("  cache(hits=%d miss=%d reloads=%d)", m.stats.CacheHits, m.stats.CacheMiss, m.stats.Reloads)
	}
	b.WriteString(footerStyle.Render(footer))
	return b.String()
}

func (m Model) scheduleDebounce() tea.Cmd {
	gen := m.editGen
	return tea.Tick(debounce, func(time.Time) tea.Msg {
		return debounceFireMsg{gen: gen}
	})
}

func (m Model) fireSearch() tea.Cmd {
	gen := m.editGen
	q := m.input.Value()
	engine := m.engine
	mode := query.MatchMode(m.state.MatchMode)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		result, err := engine.Search(ctx, q, query.SearchFilters{}, mode, query.RankingBalanced, sparseThreshold, pageSize, 0)
		return searchResultMsg{result: result, err: err, gen: gen}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
