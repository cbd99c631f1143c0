package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// AccountManager handles the account index stored in accounts.json.
type AccountManager struct {
	Accounts []*Account `json:"accounts"`
	Selected uuid.UUID  `json:"selectedAccount"` // uuid.Nil when nothing is selected

	filePath   string
	backupPath string
}

// NewAccountManager creates a new manager
func NewAccountManager(dataDir string) *AccountManager {
	return &AccountManager{
		Accounts:   []*Account{},
		filePath:   filepath.Join(dataDir, "accounts.json"),
		backupPath: filepath.Join(dataDir, "accounts.json.bak"),
	}
}

// Load reads accounts from disk, falling back to the backup written by the
// previous Save when the primary file is missing or corrupt.
func (m *AccountManager) Load() error {
	err := m.loadFrom(m.filePath)
	if err == nil {
		return nil
	}
	if backupErr := m.loadFrom(m.backupPath); backupErr == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (m *AccountManager) loadFrom(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var loaded AccountManager
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	m.Accounts = loaded.Accounts
	m.Selected = loaded.Selected
	if m.Accounts == nil {
		m.Accounts = []*Account{}
	}
	return nil
}

// Save writes accounts to disk. A previous file that still parses is kept
// as accounts.json.bak first.
func (m *AccountManager) Save() error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	if prev, err := os.ReadFile(m.filePath); err == nil && json.Valid(prev) {
		_ = os.Rename(m.filePath, m.backupPath)
	}

	if err := os.MkdirAll(filepath.Dir(m.filePath), 0755); err != nil {
		return err
	}
	return os.WriteFile(m.filePath, data, 0644)
}

// Upsert adds an account or refreshes the username of an existing one.
// It reports whether anything changed.
func (m *AccountManager) Upsert(id uuid.UUID, username string) bool {
	if a := m.Get(id); a != nil {
		if a.Username == username {
			return false
		}
		a.Username = username
		return true
	}
	m.Accounts = append(m.Accounts, &Account{ID: id, Username: username})
	return true
}

// Get returns the account with the given ID, or nil.
func (m *AccountManager) Get(id uuid.UUID) *Account {
	for _, a := range m.Accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// Remove drops an account, clearing the selection if it pointed at it.
func (m *AccountManager) Remove(id uuid.UUID) bool {
	for i, a := range m.Accounts {
		if a.ID == id {
			m.Accounts = append(m.Accounts[:i], m.Accounts[i+1:]...)
			if m.Selected == id {
				m.Selected = uuid.Nil
			}
			return true
		}
	}
	return false
}

// GetSelected returns the currently selected account
func (m *AccountManager) GetSelected() *Account {
	if m.Selected == uuid.Nil {
		return nil
	}
	return m.Get(m.Selected)
}

// SetSelected sets the selected account
func (m *AccountManager) SetSelected(id uuid.UUID) error {
	if m.Get(id) == nil {
		return fmt.Errorf("account not found: %s", id)
	}
	m.Selected = id
	return nil
}

// SetHead stores the rendered skin face for an account.
func (m *AccountManager) SetHead(id uuid.UUID, png []byte) bool {
	a := m.Get(id)
	if a == nil {
		return false
	}
	a.Head = png
	return true
}

// Sorted returns the accounts ordered by username, case-insensitively.
func (m *AccountManager) Sorted() []*Account {
	out := make([]*Account, len(m.Accounts))
	copy(out, m.Accounts)
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username)
	})
	return out
}
