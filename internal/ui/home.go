// Package ui contains all TUI view components.
// Each view is a Bubbletea model that can be composed into the main app.
package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

const defaultHelpWidth = 80

// HomeModel is the account list view
type HomeModel struct {
	list     list.Model
	accounts []AccountEntry
	err      error
	width    int
	height   int
	keys     homeKeyMap
	loading  bool
	now      func() time.Time
}

type homeKeyMap struct {
	Login      key.Binding
	Select     key.Binding
	NewAccount key.Binding
	Logout     key.Binding
}

func defaultHomeKeyMap() homeKeyMap {
	return homeKeyMap{
		Login: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "log in"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select"),
		),
		NewAccount: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "add account"),
		),
		Logout: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "log out"),
		),
	}
}

// accountItem represents an account in the list
type accountItem struct {
	entry AccountEntry
	now   time.Time
}

func (i accountItem) Title() string {
	if i.entry.Selected {
		return "● " + i.entry.Account.Username
	}
	return i.entry.Account.Username
}

func (i accountItem) Description() string {
	return describeSession(i.entry, i.now)
}

func (i accountItem) FilterValue() string { return i.entry.Account.Username }

// describeSession summarizes what is cached for an account.
func describeSession(e AccountEntry, now time.Time) string {
	switch {
	case !e.SignedIn:
		return "Signed out"
	case e.SessionExpiry.After(now):
		return "Session valid, expires " + humanize.RelTime(e.SessionExpiry, now, "ago", "from now")
	default:
		return "Session expired, will refresh on next login"
	}
}

// NewHomeModel creates a new home view model
func NewHomeModel() *HomeModel {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorPrimary).
		BorderLeftForeground(ColorPrimary)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSecondary).
		BorderLeftForeground(ColorPrimary)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = "Minecraft Accounts"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = TitleStyle
	l.SetShowHelp(false)

	return &HomeModel{
		list:    l,
		keys:    defaultHomeKeyMap(),
		loading: true,
		now:     time.Now,
	}
}

// SetAccounts updates the account list
func (m *HomeModel) SetAccounts(accounts []AccountEntry) {
	m.accounts = accounts
	m.loading = false

	now := m.now()
	items := make([]list.Item, len(accounts))
	selected := 0
	for i, entry := range accounts {
		items[i] = accountItem{entry: entry, now: now}
		if entry.Selected {
			selected = i
		}
	}
	m.list.SetItems(items)
	m.list.Select(selected)
}

// SelectedEntry returns the account under the cursor
func (m *HomeModel) SelectedEntry() *AccountEntry {
	if item, ok := m.list.SelectedItem().(accountItem); ok {
		return &item.entry
	}
	return nil
}

// activeEntry returns the account marked as selected in the index.
func (m *HomeModel) activeEntry() *AccountEntry {
	for i := range m.accounts {
		if m.accounts[i].Selected {
			return &m.accounts[i]
		}
	}
	return nil
}

// SetSize updates the dimensions of the home view
func (m *HomeModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-7)
}

// Init implements tea.Model
func (m *HomeModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m *HomeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case AccountsLoaded:
		m.err = msg.Error
		if msg.Error == nil {
			m.SetAccounts(msg.Accounts)
		} else {
			m.loading = false
		}
		return m, nil

	case tea.KeyMsg:
		// Don't handle keys if filtering
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch {
		case key.Matches(msg, m.keys.Login):
			return m, func() tea.Msg { return NavigateToLogin{} }
		case key.Matches(msg, m.keys.NewAccount):
			return m, func() tea.Msg { return NavigateToLogin{NewAccount: true} }
		case key.Matches(msg, m.keys.Select):
			if entry := m.SelectedEntry(); entry != nil && !entry.Selected {
				id := entry.Account.ID
				return m, func() tea.Msg { return SelectAccount{ID: id} }
			}
		case key.Matches(msg, m.keys.Logout):
			if entry := m.SelectedEntry(); entry != nil {
				id := entry.Account.ID
				return m, func() tea.Msg { return LogoutAccount{ID: id} }
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model
func (m *HomeModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().
			Foreground(ColorSubtle).
			Render("Loading accounts...")
	}

	header := m.headerView()

	if m.err != nil {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			ErrorStyle.Render("Could not read accounts: "+m.err.Error()),
			HelpStyle.Render(buildHelpText([]string{"[n] add account", "[q] quit"}, m.width)),
		)
	}

	if len(m.accounts) == 0 {
		empty := lipgloss.NewStyle().
			Foreground(ColorSubtle).
			Render("No accounts yet. Press 'n' to sign in with Microsoft.")

		help := HelpStyle.Render("\n\n" + buildHelpText([]string{"[n] add account", "[q] quit"}, m.width))

		return lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			empty,
			help,
		)
	}

	help := HelpStyle.Render(buildHelpText([]string{
		"[l] log in",
		"[enter] select",
		"[n] add account",
		"[d] log out",
		"[q] quit",
	}, m.width))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		m.list.View(),
		help,
	)
}

// headerView shows the selected account with its skin head.
func (m *HomeModel) headerView() string {
	active := m.activeEntry()
	if active == nil {
		return lipgloss.JoinHorizontal(lipgloss.Center,
			placeholderHead(), "  ", HelpStyle.Render("No account selected"))
	}

	head := RenderHead(active.Account.Head)
	if head == "" {
		head = placeholderHead()
	}
	info := lipgloss.JoinVertical(lipgloss.Left,
		SelectedStyle.Render(active.Account.Username),
		HelpStyle.Render(active.Account.ID.String()),
		HelpStyle.Render(describeSession(*active, m.now())),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, head, "  ", info)
}

// buildHelpText joins help items with " • ", wrapping to width without
// splitting an item across lines. A width of 0 uses a default.
func buildHelpText(items []string, width int) string {
	if len(items) == 0 {
		return ""
	}
	if width <= 0 {
		width = defaultHelpWidth
	}

	const sep = " • "
	var lines []string
	current := items[0]
	for _, item := range items[1:] {
		if len(current)+len(sep)+len(item) > width {
			lines = append(lines, current)
			current = item
			continue
		}
		current += sep + item
	}
	lines = append(lines, current)
	return strings.Join(lines, "\n")
}
