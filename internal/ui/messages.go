// Package ui provides TUI view messages shared between components.
package ui

import (
	"time"

	"github.com/google/uuid"

	"github.com/quasar/mcauth/internal/core"
	"github.com/quasar/mcauth/internal/login"
)

// Navigation messages
type (
	// NavigateToHome returns to the account list
	NavigateToHome struct{}

	// NavigateToLogin opens the login screen. NewAccount skips the
	// selected account's cached credentials.
	NavigateToLogin struct {
		NewAccount bool
	}
)

// Action messages
type (
	// SelectAccount makes an account the selection
	SelectAccount struct {
		ID uuid.UUID
	}

	// LogoutAccount forgets an account and its credentials
	LogoutAccount struct {
		ID uuid.UUID
	}

	// CancelLogin abandons the login in progress
	CancelLogin struct{}

	// AccountsLoaded is sent when the account index is read from disk
	AccountsLoaded struct {
		Accounts []AccountEntry
		Error    error
	}

	// LoginProgressMsg reports the stage reached by the login
	LoginProgressMsg struct {
		Count int
		Total int
	}

	// VisitURLMsg asks the user to finish signing in in a browser
	VisitURLMsg struct {
		Message string
		URL     string
	}

	// VisitURLClearedMsg is sent once the browser redirect was captured
	VisitURLClearedMsg struct{}

	// LoginFinished is sent when the login returns
	LoginFinished struct {
		Result *login.Result
		Err    error
	}
)

// AccountEntry is an account as shown in the list.
type AccountEntry struct {
	Account  *core.Account
	Selected bool
	// SessionExpiry is when the cached Minecraft token expires; zero when
	// none is cached.
	SessionExpiry time.Time
	// SignedIn reports whether any credential is stored for the account.
	SignedIn bool
}
