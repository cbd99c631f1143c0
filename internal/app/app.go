// Package app contains the main Bubbletea application model.
// This is the central hub that manages app state and delegates to child views.
package app

import (
	"context"
	"log/slog"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/quasar/mcauth/internal/core"
	"github.com/quasar/mcauth/internal/login"
	"github.com/quasar/mcauth/internal/ui"
)

// State represents the current view/screen of the application
type State int

const (
	StateHome State = iota
	StateLogin
)

// Services are the dependencies the TUI drives.
type Services struct {
	Accounts *core.AccountManager
	Store    login.CredentialStore
	// NewSession builds a login session reporting to progress.
	NewSession func(progress login.Progress) *login.Session
	Logger     *slog.Logger
}

// Model is the main application model
type Model struct {
	state  State
	width  int
	height int

	// Child models for each view
	home *ui.HomeModel
	auth *ui.AuthModel

	svc Services

	// Login state
	tracker     *ui.ProgressTracker
	loginCancel context.CancelFunc

	// Key bindings
	keys keyMap

	// Shared state
	ready bool
}

// keyMap defines the keybindings for the app
type keyMap struct {
	Quit      key.Binding
	ForceQuit key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

// New creates a new application model
func New(svc Services) *Model {
	if svc.Logger == nil {
		svc.Logger = slog.Default()
	}
	return &Model{
		state: StateHome,
		home:  ui.NewHomeModel(),
		svc:   svc,
		keys:  defaultKeyMap(),
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.home.Init(),
		m.loadAccounts(),
	)
}

func (m *Model) loadAccounts() tea.Cmd {
	return func() tea.Msg {
		if err := m.svc.Accounts.Load(); err != nil {
			return ui.AccountsLoaded{Error: err}
		}
		return ui.AccountsLoaded{Accounts: m.entries()}
	}
}

func (m *Model) entries() []ui.AccountEntry {
	sorted := m.svc.Accounts.Sorted()
	entries := make([]ui.AccountEntry, 0, len(sorted))
	for _, acc := range sorted {
		entry := ui.AccountEntry{
			Account:  acc,
			Selected: acc.ID == m.svc.Accounts.Selected,
		}
		creds, err := m.svc.Store.Read(acc.ID)
		if err != nil {
			m.svc.Logger.Warn("reading stored credentials failed", "account", acc.ID, "error", err)
		}
		if creds != nil && !creds.IsEmpty() {
			entry.SignedIn = true
			if creds.AccessToken != nil {
				entry.SessionExpiry = creds.AccessToken.Expiry
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		// Propagate size to child models
		m.home.SetSize(msg.Width, msg.Height)
		if m.auth != nil {
			m.auth.SetSize(msg.Width, msg.Height)
		}

	// Navigation messages
	case ui.NavigateToHome:
		m.state = StateHome
		m.auth = nil
		return m, m.loadAccounts()

	case ui.NavigateToLogin:
		if m.tracker != nil {
			return m, nil
		}
		m.state = StateLogin
		m.auth = ui.NewAuthModel()
		m.auth.SetSize(m.width, m.height)
		return m, tea.Batch(
			m.auth.Init(),
			m.startLogin(msg.NewAccount),
		)

	// Account management
	case ui.SelectAccount:
		if err := m.svc.Accounts.SetSelected(msg.ID); err != nil {
			m.svc.Logger.Warn("selecting account failed", "account", msg.ID, "error", err)
			return m, nil
		}
		if err := m.svc.Accounts.Save(); err != nil {
			m.svc.Logger.Error("saving accounts failed", "error", err)
		}
		return m, m.loadAccounts()

	case ui.LogoutAccount:
		return m, m.logout(msg.ID)

	// Login events - keep listening until the login finishes
	case ui.LoginProgressMsg, ui.VisitURLMsg, ui.VisitURLClearedMsg:
		if m.auth != nil {
			_, cmd := m.auth.Update(msg)
			cmds = append(cmds, cmd)
		}
		if m.tracker != nil {
			cmds = append(cmds, m.tracker.Next())
		}
		return m, tea.Batch(cmds...)

	case ui.CancelLogin:
		if m.loginCancel != nil {
			m.loginCancel()
		}
		return m, nil

	case ui.LoginFinished:
		if m.loginCancel != nil {
			m.loginCancel()
			m.loginCancel = nil
		}
		m.tracker = nil
		if msg.Err != nil {
			login.LogError(m.svc.Logger, "login failed", msg.Err)
		}
		if m.auth != nil {
			_, cmd := m.auth.Update(msg)
			return m, cmd
		}
		return m, m.loadAccounts()

	// Global key handlers
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.ForceQuit):
			if m.loginCancel != nil {
				m.loginCancel()
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Quit):
			if m.state == StateHome {
				return m, tea.Quit
			}
		}
	}

	// Delegate to current view
	switch m.state {
	case StateHome:
		newHome, cmd := m.home.Update(msg)
		m.home = newHome.(*ui.HomeModel)
		cmds = append(cmds, cmd)

	case StateLogin:
		if m.auth != nil {
			newAuth, cmd := m.auth.Update(msg)
			m.auth = newAuth.(*ui.AuthModel)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// startLogin runs the login in the background; its events arrive through
// the tracker.
func (m *Model) startLogin(newAccount bool) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	tracker := ui.NewProgressTracker()
	m.loginCancel = cancel
	m.tracker = tracker

	session := m.svc.NewSession(tracker)
	go func() {
		result, err := session.Run(ctx, newAccount)
		tracker.Finish(ui.LoginFinished{Result: result, Err: err})
	}()

	return tracker.Next()
}

func (m *Model) logout(id uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		session := m.svc.NewSession(nil)
		if err := session.Logout(id); err != nil {
			m.svc.Logger.Warn("logout failed", "account", id, "error", err)
		}
		if err := m.svc.Accounts.Load(); err != nil {
			return ui.AccountsLoaded{Error: err}
		}
		return ui.AccountsLoaded{Accounts: m.entries()}
	}
}

// View implements tea.Model
func (m *Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	// Delegate to current view
	switch m.state {
	case StateHome:
		return m.home.View()
	case StateLogin:
		if m.auth != nil {
			return m.auth.View()
		}
	}

	return "Unknown state"
}
