// Package tui is the interactive list. It renders the session's projected
// view and redraws whenever the session reports a change, so edits made by
// collaborators show up live.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/session"
	"github.com/idilsaglam/tada/internal/view"
)

// listItem adapts a todo to bubbles/list.Item
type listItem struct {
	todo model.Todo
}

func (i listItem) Title() string       { return i.todo.Text }
func (i listItem) Description() string { return "" }
func (i listItem) FilterValue() string { return i.todo.Text }

// Custom delegate to control how items render (single line)
type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, _ := item.(listItem)
	box := mutedStyle.Render(boxUnchecked)
	text := it.todo.Text
	if it.todo.Completed {
		box = successStyle.Render(boxChecked)
		text = doneStyle.Render(text)
	}
	prefix := "  "
	if index == m.Index() {
		prefix = selectedStyle.Render("> ")
	}
	fmt.Fprintln(w, prefix+box+" "+text)
}

type mode int

const (
	modeBrowse mode = iota
	modeAdd
	modeEdit
	modeSearch
)

// changedMsg means the session store moved on.
type changedMsg struct{}

// doneMsg carries the result of a dispatched mutation.
type doneMsg struct {
	verb string
	err  error
}

type keyMap struct {
	Toggle, Add, Edit, Delete, Clear, Up, Down, Search, Reload key.Binding
}

var keys = keyMap{
	Toggle: key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("space", "toggle")),
	Add:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add")),
	Edit:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
	Delete: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
	Clear:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear done")),
	Up:     key.NewBinding(key.WithKeys("K", "shift+up"), key.WithHelp("K", "move up")),
	Down:   key.NewBinding(key.WithKeys("J", "shift+down"), key.WithHelp("J", "move down")),
	Search: key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Reload: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
}

func (k keyMap) bindings() []key.Binding {
	return []key.Binding{k.Toggle, k.Add, k.Edit, k.Delete, k.Clear, k.Up, k.Down, k.Search, k.Reload}
}

// Model is the bubbletea model over one session.
type Model struct {
	ctx   context.Context
	sess  *session.Session
	title string

	list  list.Model
	ti    textinput.Model
	mode  mode
	query string
	cur   view.View

	status string
	err    string

	width, height int
}

// New builds the model. The session should already have a list open.
func New(ctx context.Context, sess *session.Session, title string) Model {
	l := list.New(nil, itemDelegate{}, 0, 0)
	l.SetShowHelp(true)
	l.SetShowPagination(true)
	l.SetShowStatusBar(false)
	// Search goes through the session's projector, not the list's filter.
	l.SetFilteringEnabled(false)
	l.Styles.Title = titleStyle
	l.Styles.HelpStyle = helpStyle
	l.Styles.PaginationStyle = helpStyle
	l.AdditionalShortHelpKeys = func() []key.Binding { return keys.bindings()[:4] }
	l.AdditionalFullHelpKeys = keys.bindings

	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 500

	m := Model{ctx: ctx, sess: sess, title: title, list: l, ti: ti, width: 80, height: 24}
	m.refresh()
	return m
}

// Run starts the program in the alternate screen and blocks until it quits.
func Run(ctx context.Context, sess *session.Session, title string) error {
	p := tea.NewProgram(New(ctx, sess, title), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func waitForChange(sess *session.Session) tea.Cmd {
	return func() tea.Msg {
		<-sess.Changes()
		return changedMsg{}
	}
}

func (m Model) Init() tea.Cmd { return waitForChange(m.sess) }

// refresh re-projects the session and keeps the cursor on the same todo.
func (m *Model) refresh() {
	selected := m.selectedID()
	m.cur = m.sess.View(m.query)
	rows := m.cur.Rows()
	items := make([]list.Item, len(rows))
	at := 0
	for i, it := range rows {
		items[i] = listItem{todo: it}
		if it.ID == selected {
			at = i
		}
	}
	m.list.SetItems(items)
	if len(items) > 0 {
		m.list.Select(min(at, len(items)-1))
	}
	m.list.Title = m.header()
	if err := m.sess.Err(); err != nil {
		m.err = err.Error()
	}
}

func (m Model) header() string {
	c := m.cur.Counts
	h := fmt.Sprintf("%s   %s %d  %s %d  %s %d",
		titleStyle.Render(m.title),
		successStyle.Render("✔"), c.Done,
		pendingStyle.Render("•"), c.Pending,
		accentStyle.Render("Total"), c.Total,
	)
	if m.query != "" {
		h += mutedStyle.Render(fmt.Sprintf("   /%s (%d)", m.query, m.cur.Matched()))
	}
	if m.sess.Loading() {
		h += mutedStyle.Render("   loading...")
	}
	return h
}

func (m Model) selected() (model.Todo, bool) {
	it, ok := m.list.SelectedItem().(listItem)
	return it.todo, ok
}

func (m Model) selectedID() string {
	t, _ := m.selected()
	return t.ID
}

// dispatch runs fn off the update loop and reports its outcome.
func (m Model) dispatch(verb string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg { return doneMsg{verb: verb, err: fn(ctx)} }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case changedMsg:
		m.refresh()
		return m, waitForChange(m.sess)
	case doneMsg:
		if msg.err != nil {
			m.err = fmt.Sprintf("%s: %v", msg.verb, msg.err)
			m.status = ""
		} else {
			m.err = ""
			m.status = msg.verb
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		switch m.mode {
		case modeAdd, modeEdit:
			return m.updateInput(msg)
		case modeSearch:
			return m.updateSearch(msg)
		}
		return m.updateBrowse(msg)
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "q" || msg.String() == "ctrl+c":
		return m, tea.Quit
	case msg.String() == "esc":
		if m.query != "" {
			m.query = ""
			m.refresh()
			return m, nil
		}
		return m, tea.Quit
	case key.Matches(msg, keys.Toggle):
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		op, err := m.sess.BeginFlip(t.ID)
		if err != nil {
			m.err = err.Error()
			return m, nil
		}
		m.refresh()
		return m, m.dispatch("toggled", op.Do)
	case key.Matches(msg, keys.Add):
		m.startInput(modeAdd, "", "New todo...")
		return m, textinput.Blink
	case key.Matches(msg, keys.Edit):
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.startInput(modeEdit, t.Text, "Edit todo...")
		return m, textinput.Blink
	case key.Matches(msg, keys.Delete):
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, m.dispatch("deleted", func(ctx context.Context) error { return m.sess.Delete(ctx, t.ID) })
	case key.Matches(msg, keys.Clear):
		return m, m.dispatch("cleared", func(ctx context.Context) error {
			_, err := m.sess.ClearCompleted(ctx)
			return err
		})
	case key.Matches(msg, keys.Up), key.Matches(msg, keys.Down):
		return m.move(key.Matches(msg, keys.Up))
	case key.Matches(msg, keys.Search):
		m.startInput(modeSearch, m.query, "Search...")
		return m, textinput.Blink
	case key.Matches(msg, keys.Reload):
		return m, m.dispatch("reloaded", m.sess.Reload)
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// move shifts the selected active todo one slot within the active
// partition. The reorder is applied before the command returns.
func (m Model) move(up bool) (tea.Model, tea.Cmd) {
	t, ok := m.selected()
	if !ok || t.Completed {
		return m, nil
	}
	ids := m.sess.View("").ActiveIDs()
	at := -1
	for i, id := range ids {
		if id == t.ID {
			at = i
		}
	}
	target := at + 1
	if up {
		target = at - 1
	}
	if at < 0 || target < 0 || target >= len(ids) {
		return m, nil
	}
	ids[at], ids[target] = ids[target], ids[at]
	op, err := m.sess.BeginReorder(ids)
	if err != nil {
		m.err = err.Error()
		return m, nil
	}
	m.refresh()
	return m, m.dispatch("moved", op.Do)
}

func (m *Model) startInput(md mode, value, placeholder string) {
	m.mode = md
	m.err = ""
	m.ti.SetValue(value)
	m.ti.Placeholder = placeholder
	m.ti.CursorEnd()
	m.ti.Focus()
}

func (m *Model) stopInput() {
	m.mode = modeBrowse
	m.ti.SetValue("")
	m.ti.Blur()
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.stopInput()
		return m, nil
	case "enter":
		text := model.NormalizeText(m.ti.Value())
		if text == "" {
			m.err = "text cannot be empty"
			return m, nil
		}
		var cmd tea.Cmd
		if m.mode == modeAdd {
			cmd = m.dispatch("added", func(ctx context.Context) error {
				_, err := m.sess.Add(ctx, text)
				return err
			})
		} else {
			id := m.selectedID()
			cmd = m.dispatch("edited", func(ctx context.Context) error {
				_, err := m.sess.Edit(ctx, id, text)
				return err
			})
		}
		m.stopInput()
		return m, cmd
	}
	var cmd tea.Cmd
	m.ti, cmd = m.ti.Update(msg)
	return m, cmd
}

// updateSearch filters live as the query is typed.
func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.query = ""
		m.stopInput()
		m.refresh()
		return m, nil
	case "enter":
		m.stopInput()
		return m, nil
	}
	var cmd tea.Cmd
	m.ti, cmd = m.ti.Update(msg)
	m.query = strings.TrimSpace(m.ti.Value())
	m.refresh()
	return m, cmd
}

func (m Model) View() string {
	inputRows := 0
	if m.mode != modeBrowse {
		inputRows = 4
	}
	m.list.SetSize(max(m.width-4, 10), max(m.height-4-inputRows, 3))

	content := m.list.View()
	if m.cur.Counts.Total == 0 && !m.sess.Loading() {
		content += "\n" + mutedStyle.Render("no todos yet, press a to add one")
	} else if m.cur.Empty() && m.query != "" {
		content += "\n" + mutedStyle.Render("nothing matches")
	}
	if m.mode != modeBrowse {
		title := map[mode]string{modeAdd: "Add todo", modeEdit: "Edit todo", modeSearch: "Search"}[m.mode]
		content += "\n" + frameStyle.Render(title+"\n"+m.ti.View())
	}
	switch {
	case m.err != "":
		content += "\n" + errorStyle.Render("✖ "+m.err)
	case m.status != "":
		content += "\n" + successStyle.Render("✔ "+m.status)
	}
	return frameStyle.Render(content)
}
