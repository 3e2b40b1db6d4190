// Package tui provides interactive terminal UI components.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lepinkainen/libsearch/internal/library"
	"github.com/lepinkainen/libsearch/internal/session"
)

const (
	defaultListWidth  = 72
	defaultListHeight = 20
)

var runProgram = func(m tea.Model) (tea.Model, error) {
	return tea.NewProgram(m).Run()
}

// WatchAction represents the user's action in the viewer.
type WatchAction int

const (
	// ActionNone indicates no action was taken.
	ActionNone WatchAction = iota
	// ActionSelected indicates the user selected a holding.
	ActionSelected
	// ActionClosed indicates the user closed the viewer and left the search running.
	ActionClosed
	// ActionStopped indicates the user asked to stop the search.
	ActionStopped
)

// WatchResult holds the outcome of a Watch call.
type WatchResult struct {
	Action    WatchAction
	Selection *library.BookRecord
	// Snapshot and State are the last update the viewer received.
	Snapshot library.Snapshot
	State    session.State
}

type updateMsg struct {
	snap  library.Snapshot
	state session.State
}

type contextDoneMsg struct{}

// feed hands session updates to the program without ever blocking the
// session. Only the latest update is kept.
type feed struct {
	mu     sync.Mutex
	latest updateMsg
	notify chan struct{}
}

func newFeed() *feed {
	return &feed{notify: make(chan struct{}, 1)}
}

func (f *feed) push(snap library.Snapshot, state session.State) {
	f.mu.Lock()
	f.latest = updateMsg{snap: snap, state: state}
	f.mu.Unlock()

	select {
	case f.notify <- struct{}{}:
	default:
	}
}

func (f *feed) next(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-f.notify:
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.latest
		case <-ctx.Done():
			return contextDoneMsg{}
		}
	}
}

type holdingItem struct {
	library.BookRecord
}

func (i holdingItem) FilterValue() string {
	return i.BookRecord.Title
}

type itemStyles struct {
	normal        lipgloss.Style
	selected      lipgloss.Style
	libraryStyle  lipgloss.Style
	titleStyle    lipgloss.Style
	statusStyle   lipgloss.Style
	metadataStyle lipgloss.Style
}

func newItemStyles() itemStyles {
	asciiBorder := lipgloss.Border{
		Top:         "-",
		Bottom:      "-",
		Left:        "|",
		Right:       "|",
		TopLeft:     "+",
		TopRight:    "+",
		BottomLeft:  "+",
		BottomRight: "+",
	}

	container := lipgloss.NewStyle().
		Border(asciiBorder).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1).
		Foreground(lipgloss.Color("252"))

	selected := container.Copy().
		BorderForeground(lipgloss.Color("214")).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("237"))

	return itemStyles{
		normal:   container,
		selected: selected,
		libraryStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("110")),
		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("254")),
		statusStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("178")),
		metadataStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("247")).
			Faint(true),
	}
}

type holdingDelegate struct {
	styles itemStyles
}

func newDelegate() holdingDelegate {
	return holdingDelegate{styles: newItemStyles()}
}

func (d holdingDelegate) Height() int                         { return 4 }
func (d holdingDelegate) Spacing() int                        { return 1 }
func (d holdingDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }

func (d holdingDelegate) Render(w io.Writer, m list.Model, idx int, item list.Item) {
	holding, ok := item.(holdingItem)
	if !ok {
		return
	}

	status := holding.Status
	if status == "" {
		status = "status unknown"
	}

	libraryLine := d.styles.libraryStyle.Render(fmt.Sprintf("[%s]", holding.LibraryID))
	titleLine := d.styles.titleStyle.Render(truncate(holding.BookRecord.Title, m.Width()-4))
	metadataLine := d.styles.metadataStyle.Render(formatMetadata(holding.BookRecord, m.Width()-4))
	statusLine := d.styles.statusStyle.Render(status)

	content := lipgloss.JoinVertical(lipgloss.Left, libraryLine, titleLine, metadataLine, statusLine)

	container := d.styles.normal
	if idx == m.Index() {
		container = d.styles.selected
	}
	_, _ = fmt.Fprint(w, container.Render(content))
}

type model struct {
	ctx        context.Context
	feed       *feed
	list       list.Model
	queryLabel string
	snap       library.Snapshot
	state      session.State
	result     WatchResult
}

func newModel(ctx context.Context, f *feed, queryLabel string) *model {
	delegate := newDelegate()
	l := list.New(nil, delegate, defaultListWidth, defaultListHeight)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowTitle(false)
	l.SetShowPagination(true)
	l.DisableQuitKeybindings()
	l.Styles.NoItems = lipgloss.NewStyle()

	return &model{
		ctx:        ctx,
		feed:       f,
		list:       l,
		queryLabel: queryLabel,
		state:      session.StatePending,
		result:     WatchResult{Action: ActionNone},
	}
}

func (m *model) Init() tea.Cmd { return m.feed.next(m.ctx) }

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		m.snap = msg.snap
		m.state = msg.state
		items := make([]list.Item, len(msg.snap.Records))
		for i, rec := range msg.snap.Records {
			items[i] = holdingItem{BookRecord: rec}
		}
		cmd := m.list.SetItems(items)
		return m, tea.Batch(cmd, m.feed.next(m.ctx))
	case contextDoneMsg:
		m.finish(ActionStopped, nil)
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if selected, ok := m.list.SelectedItem().(holdingItem); ok {
				record := selected.BookRecord
				m.finish(ActionSelected, &record)
				return m, tea.Quit
			}
		case "esc":
			m.finish(ActionClosed, nil)
			return m, tea.Quit
		case "ctrl+c", "q":
			m.finish(ActionStopped, nil)
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		width := clamp(defaultListWidth, msg.Width-4, 40)
		height := clamp(defaultListHeight, msg.Height-8, 5)
		m.list.SetSize(width, height)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *model) finish(action WatchAction, selection *library.BookRecord) {
	m.result = WatchResult{
		Action:    action,
		Selection: selection,
		Snapshot:  m.snap,
		State:     m.state,
	}
}

func (m *model) View() string {
	header := headerStyle.Render(fmt.Sprintf("Library search: %s", m.queryLabel))
	status := statusStyle(m.state).Render(formatStatus(m.snap, m.state))
	listView := m.list.View()
	help := helpStyle.Render("Up/Down navigate | Enter select | esc close | q stop")
	return lipgloss.JoinVertical(lipgloss.Left, header, status, listView, help)
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	runningStyle = lipgloss.NewStyle().
			MarginBottom(1).
			Foreground(lipgloss.Color("178"))

	doneStyle = lipgloss.NewStyle().
			MarginBottom(1).
			Foreground(lipgloss.Color("114"))

	failedStyle = lipgloss.NewStyle().
			MarginBottom(1).
			Foreground(lipgloss.Color("161")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			MarginTop(1).
			Foreground(lipgloss.Color("244"))
)

func statusStyle(state session.State) lipgloss.Style {
	switch state {
	case session.StateComplete:
		return doneStyle
	case session.StateFailed, session.StateCancelled:
		return failedStyle
	default:
		return runningStyle
	}
}

// formatStatus renders the progress line. count is advisory and may
// differ from the number of records received.
func formatStatus(snap library.Snapshot, state session.State) string {
	switch state {
	case session.StatePending:
		return "Starting search..."
	case session.StatePolling:
		return fmt.Sprintf("Searching... %d holdings received (%d reported)", len(snap.Records), snap.Count)
	case session.StateComplete:
		return fmt.Sprintf("Complete: %d holdings (%d reported)", len(snap.Records), snap.Count)
	case session.StateCancelled:
		return fmt.Sprintf("Cancelled: %d holdings received", len(snap.Records))
	default:
		return fmt.Sprintf("Failed: %d holdings received", len(snap.Records))
	}
}

// Watch shows sess in a live-updating list until the user selects a
// holding, closes the viewer or stops, or ctx ends. The viewer stops
// receiving updates once the session is cancelled.
func Watch(ctx context.Context, sess *session.Session) (WatchResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	f := newFeed()
	m := newModel(ctx, f, library.QueryString(sess.Query()))

	unsubscribe := sess.Subscribe(f.push)
	defer unsubscribe()

	finalModel, err := runProgram(m)
	if err != nil {
		return WatchResult{}, err
	}

	if typed, ok := finalModel.(*model); ok {
		return typed.result, nil
	}

	return WatchResult{}, fmt.Errorf("unexpected program result")
}

func truncate(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if width <= 0 || len(runes) <= width {
		return value
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}

// formatMetadata creates the metadata line with author, publisher, date and ISBN
func formatMetadata(rec library.BookRecord, availableWidth int) string {
	var parts []string
	for _, part := range []string{rec.Author, rec.Publisher, rec.PubDate} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if rec.ISBN != "" {
		parts = append(parts, "ISBN "+rec.ISBN)
	}

	if len(parts) == 0 {
		return "No metadata available"
	}

	metadata := strings.Join(parts, " | ")
	if availableWidth > 0 && len([]rune(metadata)) > availableWidth {
		metadata = truncate(metadata, availableWidth)
	}

	return metadata
}

func clamp(defaultValue, available, minimum int) int {
	width := defaultValue
	if available > 0 && available < defaultValue {
		width = available
	}
	if width < minimum {
		width = minimum
	}
	return width
}
