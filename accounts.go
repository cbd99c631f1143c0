package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quasar/mcauth/internal/core"
)

// accountsConfig holds configuration for the accounts command.
type accountsConfig struct {
	prune bool
}

// newAccountsCmd creates the accounts subcommand.
func newAccountsCmd() *cobra.Command {
	cfg := &accountsConfig{}

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List known accounts and their cached sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAccounts(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.prune, "prune", false, "delete stored credentials that belong to no account")

	return cmd
}

// runAccounts executes the accounts command.
func runAccounts(cmd *cobra.Command, cfg *accountsConfig) error {
	svc, err := openServices(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer svc.Close()

	accounts := svc.accounts.Sorted()
	if len(accounts) == 0 {
		cmd.Println("No accounts. Run 'mcauth login' to add one.")
	} else {
		rows := make([]accountRow, 0, len(accounts))
		for _, acc := range accounts {
			creds, err := svc.store.Read(acc.ID)
			if err != nil {
				svc.logger.Warn("reading stored credentials failed", "account", acc.ID, "error", err)
			}
			rows = append(rows, accountRow{
				account:  acc,
				selected: acc.ID == svc.accounts.Selected,
				creds:    creds,
			})
		}
		cmd.Print(formatAccountsTable(rows, time.Now()))
	}

	orphans, err := orphanedCredentials(svc)
	if err != nil {
		return fmt.Errorf("listing stored credentials: %w", err)
	}
	if len(orphans) == 0 {
		return nil
	}
	if !cfg.prune {
		cmd.Printf("%d stored credential(s) belong to no account; run 'mcauth accounts --prune' to delete them\n", len(orphans))
		return nil
	}
	for _, id := range orphans {
		if err := svc.store.Delete(id); err != nil {
			return fmt.Errorf("deleting credentials for %s: %w", id, err)
		}
	}
	cmd.Printf("Deleted %d orphaned credential(s)\n", len(orphans))
	return nil
}

// orphanedCredentials lists stored credential ids missing from the account
// index, left behind by an interrupted login or a hand-edited index.
func orphanedCredentials(svc *services) ([]uuid.UUID, error) {
	ids, err := svc.store.IDs()
	if err != nil {
		return nil, err
	}
	var orphans []uuid.UUID
	for _, id := range ids {
		if svc.accounts.Get(id) == nil {
			orphans = append(orphans, id)
		}
	}
	return orphans, nil
}

type accountRow struct {
	account  *core.Account
	selected bool
	creds    *core.AccountCredentials
}

// formatAccountsTable formats accounts as a human-readable table.
func formatAccountsTable(rows []accountRow, now time.Time) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "\tNAME\tUUID\tSESSION")
	for _, row := range rows {
		marker := ""
		if row.selected {
			marker = "*"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", marker, row.account.Username, row.account.ID, sessionState(row.creds, now))
	}

	_ = w.Flush()
	return sb.String()
}

func sessionState(creds *core.AccountCredentials, now time.Time) string {
	switch {
	case creds == nil || creds.IsEmpty():
		return "signed out"
	case creds.AccessToken.ValidAt(now):
		return "expires " + humanize.RelTime(creds.AccessToken.Expiry, now, "ago", "from now")
	case creds.MsaRefresh != "":
		return "expired, refreshable"
	default:
		return "expired"
	}
}

// newLogoutCmd creates the logout subcommand.
func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <uuid|name>",
		Short: "Forget an account and its cached tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer svc.Close()

			acc := findAccount(svc.accounts, args[0])
			if acc == nil {
				return fmt.Errorf("no account matches %q", args[0])
			}
			if err := svc.session(nil).Logout(acc.ID); err != nil {
				return err
			}
			cmd.Printf("Logged out %s\n", acc.Username)
			return nil
		},
	}
}

// findAccount resolves a profile UUID or a case-insensitive name.
func findAccount(m *core.AccountManager, ref string) *core.Account {
	if id, err := uuid.Parse(ref); err == nil {
		return m.Get(id)
	}
	for _, acc := range m.Sorted() {
		if strings.EqualFold(acc.Username, ref) {
			return acc
		}
	}
	return nil
}
