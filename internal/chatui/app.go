// Package chatui is a terminal viewer for one synchronized chat list.
package chatui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/chatsync/internal/chatlist"
	"github.com/tOgg1/chatsync/internal/grouping"
	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/session"
)

const (
	defaultBatchSize = 50
	defaultStatusTTL = 5 * time.Second

	// Rows from the end of the window at which the next page is requested.
	prefetchDistance = 5
	actionTimeout    = 5 * time.Second
)

// Backend is the session the viewer follows and mutates.
type Backend interface {
	session.Session
	Entry(ctx context.Context, list models.ListID, id models.ChatID) (models.Entry, error)
	UpdateChat(ctx context.Context, id models.ChatID, fn func(*models.Snapshot)) (models.Snapshot, error)
}

// Config controls the viewer.
type Config struct {
	List           models.ListID
	Filter         models.Filter
	BatchSize      int
	LoadMoreSize   int
	Theme          string
	Grouping       grouping.Options
	ShowTimestamps bool
}

// Result describes the view when the viewer exits, so it can be restored.
type Result struct {
	Collapsed bool
	Stats     chatlist.Stats
}

// Run opens the viewer and blocks until the user quits.
func Run(backend Backend, cfg Config) (Result, error) {
	exec := newProgramExecutor()
	defer exec.Close()

	ctrl, err := chatlist.New(backend, chatlist.Config{
		List:         cfg.List,
		Filter:       cfg.Filter,
		BatchSize:    cfg.BatchSize,
		Presentation: exec,
	})
	if err != nil {
		return Result{}, err
	}
	defer ctrl.Destroy()

	m := newModel(ctrl, backend, cfg)
	program := tea.NewProgram(m, tea.WithAltScreen())
	exec.bind(program)

	final, err := program.Run()
	result := Result{Stats: ctrl.Stats()}
	if fm, ok := final.(model); ok {
		result.Collapsed = fm.opts.Collapsed
	}
	return result, err
}

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusErr
)

type model struct {
	ctrl    *chatlist.Controller
	backend Backend
	view    *listView
	palette palette

	list         models.ListID
	filter       models.Filter
	batchSize    int
	loadMoreSize int
	opts         grouping.Options
	timestamps   bool

	width  int
	height int

	rows       []grouping.Row
	selected   int
	selectedID models.ChatID
	top        int // first visible line

	statusText    string
	statusKind    statusKind
	statusExpires time.Time
	quitting      bool
}

type actionResultMsg struct {
	Message string
	Err     error
}

type tickMsg struct{}

func newModel(ctrl *chatlist.Controller, backend Backend, cfg Config) model {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.LoadMoreSize <= 0 {
		cfg.LoadMoreSize = cfg.BatchSize
	}
	return model{
		ctrl:         ctrl,
		backend:      backend,
		view:         &listView{},
		palette:      resolvePalette(cfg.Theme),
		list:         cfg.List,
		filter:       cfg.Filter,
		batchSize:    cfg.BatchSize,
		loadMoreSize: cfg.LoadMoreSize,
		opts:         cfg.Grouping,
		timestamps:   cfg.ShowTimestamps,
		width:        80,
		height:       24,
	}
}

func (m model) Init() tea.Cmd {
	view := m.view
	err := m.ctrl.Initialize(view.apply, m.batchSize, func(err error) {
		view.lastErr = err
	})
	if err != nil {
		return func() tea.Msg { return actionResultMsg{Err: err} }
	}
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.refresh()
		return m, nil
	case runMsg:
		msg.fn()
		m.refresh()
		return m, nil
	case tickMsg:
		if !m.statusExpires.IsZero() && time.Now().After(m.statusExpires) {
			m.statusText = ""
			m.statusExpires = time.Time{}
		}
		return m, tickCmd()
	case actionResultMsg:
		if msg.Err != nil {
			m.setStatus(statusErr, msg.Err.Error())
		} else if msg.Message != "" {
			m.setStatus(statusOK, msg.Message)
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		m.ctrl.Destroy()
		return m, tea.Quit
	case "down", "j":
		m.moveSelection(1)
	case "up", "k":
		m.moveSelection(-1)
	case "pgdown", "ctrl+d":
		m.moveSelection(m.bodyHeight())
	case "pgup", "ctrl+u":
		m.moveSelection(-m.bodyHeight())
	case "g", "home":
		m.moveSelection(-len(m.rows))
	case "G", "end":
		m.moveSelection(len(m.rows))
	case "l":
		if !m.ctrl.LoadMore(m.loadMoreSize, m.onLoaded()) {
			m.setStatus(statusInfo, "nothing to load")
		}
		return m, nil
	case "a":
		m.opts.Collapsed = !m.opts.Collapsed
		m.refresh()
		return m, nil
	case "t":
		return m, m.bringToTop()
	case "r":
		return m, m.updateSelected("marked read", func(s *models.Snapshot) {
			s.UnreadCount = 0
			s.MentionCount = 0
		})
	case "u":
		return m, m.updateSelected("marked unread", func(s *models.Snapshot) {
			if s.UnreadCount == 0 {
				s.UnreadCount = 1
			}
		})
	case "m":
		return m, m.updateSelected("toggled mute", func(s *models.Snapshot) {
			s.Muted = !s.Muted
		})
	default:
		return m, nil
	}

	m.maybeLoadMore()
	return m, nil
}

func (m *model) onLoaded() func(error) {
	view := m.view
	return func(err error) {
		view.lastErr = err
	}
}

// maybeLoadMore requests the next page once the selection nears the end
// of the loaded window.
func (m *model) maybeLoadMore() {
	if len(m.rows)-m.selected > prefetchDistance || !m.ctrl.CanLoad() {
		return
	}
	m.ctrl.LoadMore(m.loadMoreSize, m.onLoaded())
}

func (m *model) moveSelection(delta int) {
	if len(m.rows) == 0 {
		m.selected = 0
		m.selectedID = 0
		return
	}
	m.selected = clamp(m.selected+delta, 0, len(m.rows)-1)
	m.selectedID = m.rows[m.selected].Entry.ID
	m.scrollToSelection()
}

// refresh rebuilds the rows and keeps the selection on the same chat.
func (m *model) refresh() {
	m.rows = grouping.Derive(m.view.entries, m.opts)
	if len(m.rows) == 0 {
		m.selected, m.selectedID, m.top = 0, 0, 0
		return
	}

	if m.selectedID != 0 {
		if idx, ok := grouping.RowIndex(m.rows, m.selectedID); ok {
			m.selected = idx
		} else if idx, ok := grouping.ArchiveRowIndex(m.rows); ok && m.opts.Collapsed && m.archivedSelected() {
			m.selected = idx
		}
	}
	m.selected = clamp(m.selected, 0, len(m.rows)-1)
	m.selectedID = m.rows[m.selected].Entry.ID
	m.scrollToSelection()
}

func (m *model) archivedSelected() bool {
	idx := m.view.indexOf(m.selectedID)
	return idx >= 0 && m.view.entries[idx].Metadata.Archived
}

func (m *model) scrollToSelection() {
	height := m.bodyHeight()
	offset := grouping.Offset(m.rows, m.selected, rowMetrics)
	if offset < m.top {
		m.top = offset
	}
	if offset >= m.top+height {
		m.top = offset - height + 1
	}
	maxTop := grouping.Height(m.rows, rowMetrics) - height
	m.top = clamp(m.top, 0, max(0, maxTop))
}

func (m model) selectedEntry() (models.Entry, bool) {
	if m.selected < 0 || m.selected >= len(m.rows) {
		return models.Entry{}, false
	}
	row := m.rows[m.selected]
	if row.Kind == grouping.GroupArchiveRow {
		return models.Entry{}, false
	}
	return row.Entry, true
}

func (m *model) bringToTop() tea.Cmd {
	entry, ok := m.selectedEntry()
	if !ok {
		return nil
	}
	backend, list := m.backend, m.list
	fallback := func(ctx context.Context) (models.Entry, error) {
		return backend.Entry(ctx, list, entry.ID)
	}
	view := m.view
	err := m.ctrl.BringToTop(entry.ID, fallback, func(err error) {
		if err != nil {
			view.lastErr = err
			return
		}
		view.notice = fmt.Sprintf("moved %s to top", entry.Metadata.Title)
	})
	if err != nil {
		return func() tea.Msg { return actionResultMsg{Err: err} }
	}
	return nil
}

func (m model) updateSelected(done string, fn func(*models.Snapshot)) tea.Cmd {
	entry, ok := m.selectedEntry()
	if !ok {
		return nil
	}
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if _, err := backend.UpdateChat(ctx, entry.ID, fn); err != nil {
			return actionResultMsg{Err: err}
		}
		return actionResultMsg{Message: done}
	}
}

func (m *model) setStatus(kind statusKind, text string) {
	m.statusKind = kind
	m.statusText = strings.TrimSpace(text)
	m.statusExpires = time.Now().Add(defaultStatusTTL)
}

// bodyHeight is the number of lines available for rows.
func (m model) bodyHeight() int {
	return max(1, m.height-4)
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	parts := []string{m.renderHeader()}
	parts = append(parts, m.renderBody()...)
	parts = append(parts, m.renderFooter())
	return strings.Join(parts, "\n")
}

func (m model) renderHeader() string {
	title := lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Accent)).Bold(true).Render(string(m.list))

	state := m.view.state.String()
	if m.view.state == models.StateEndNotReached {
		state = "more available"
	}
	info := fmt.Sprintf(" %d loaded, %s", len(m.view.entries), state)
	if !m.filter.IsZero() {
		info += ", filtered"
	}
	return title + lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.TextMuted)).Render(info)
}

func (m model) renderBody() []string {
	height := m.bodyHeight()
	lines := make([]string, 0, height)
	sep := lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Border)).
		Render(strings.Repeat("─", max(1, m.width-1)))

	line := 0
	for i, row := range m.rows {
		if row.Boundary {
			if line >= m.top && line < m.top+height {
				lines = append(lines, sep)
			}
			line++
		}
		if line >= m.top+height {
			break
		}
		if line >= m.top {
			lines = append(lines, renderRow(m.palette, row, i == m.selected, m.width-1, m.timestamps))
		}
		line++
	}

	switch {
	case len(m.rows) == 0 && m.view.state == models.StateLoading:
		lines = append(lines, "  loading...")
	case len(m.rows) == 0:
		lines = append(lines, "  no chats")
	case m.view.state == models.StateLoading && len(lines) < height:
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.TextMuted)).Render("  loading more..."))
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return lines
}

func (m model) renderFooter() string {
	status := m.statusText
	kind := m.statusKind
	if err := m.view.lastErr; err != nil {
		status = err.Error()
		kind = statusErr
		var fetchErr *chatlist.FetchError
		if errors.As(err, &fetchErr) && fetchErr.Retryable() {
			status += " (press l to retry)"
		}
	} else if status == "" && m.view.notice != "" {
		status = m.view.notice
		kind = statusOK
	}

	style := lipgloss.NewStyle()
	switch kind {
	case statusOK:
		style = style.Foreground(lipgloss.Color(m.palette.Success)).Bold(true)
	case statusErr:
		style = style.Foreground(lipgloss.Color(m.palette.Error)).Bold(true)
	default:
		style = style.Foreground(lipgloss.Color(m.palette.Info))
	}

	help := lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.TextMuted)).
		Render("j/k move  t top  r read  u unread  m mute  a archive  l load  q quit")
	if status == "" {
		return help
	}
	return style.Render(truncate(status, max(1, m.width-1))) + "\n" + help
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
