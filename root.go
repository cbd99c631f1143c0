package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/quasar/mcauth/internal/api"
	"github.com/quasar/mcauth/internal/app"
	"github.com/quasar/mcauth/internal/config"
	"github.com/quasar/mcauth/internal/core"
	"github.com/quasar/mcauth/internal/logging"
	"github.com/quasar/mcauth/internal/login"
	"github.com/quasar/mcauth/internal/redirect"
	"github.com/quasar/mcauth/internal/secret"
	"github.com/quasar/mcauth/internal/skin"
)

// Global flags available to all subcommands.
var logLevel string

// NewRootCmd creates the root command. Without a subcommand it runs the
// account manager TUI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcauth",
		Short: "Sign in to Minecraft: Java Edition with a Microsoft account",
		Long: `mcauth signs Minecraft accounts in through Microsoft, Xbox Live and
the Minecraft services, caching every token so later logins skip the browser.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newAccountsCmd())
	cmd.AddCommand(newLogoutCmd())

	return cmd
}

// services are the long-lived pieces every command needs.
type services struct {
	cfg        *config.Config
	logger     *slog.Logger
	accounts   *core.AccountManager
	store      *secret.Store
	httpClient *http.Client
	heads      *skin.Fetcher
	closers    []io.Closer
}

// openServices loads the config, opens the credential store and logs to
// logOut, or to the log file when logOut is nil.
func openServices(logOut io.Writer) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	svc := &services{cfg: cfg}
	firstRun := !cfg.Exists()

	if logOut == nil {
		f, err := logging.OpenFile(cfg.LogPath())
		if err != nil {
			return nil, fmt.Errorf("opening log: %w", err)
		}
		svc.closers = append(svc.closers, f)
		logOut = f
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.logger = logging.Setup(version, cfg.LogFormat, level, logOut)

	if firstRun {
		// Leave an editable config behind, without any env overrides.
		starter := config.DefaultConfig()
		starter.DataDir = cfg.DataDir
		if err := starter.Save(); err != nil {
			svc.logger.Warn("writing default config failed", "path", cfg.Path(), "error", err)
		}
	}

	store, err := secret.Open(cfg.DataDir)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("opening credential store: %w", err)
	}
	svc.closers = append(svc.closers, store)
	svc.store = store

	svc.accounts = core.NewAccountManager(cfg.DataDir)
	if err := svc.accounts.Load(); err != nil {
		svc.Close()
		return nil, fmt.Errorf("loading accounts: %w", err)
	}

	svc.httpClient = &http.Client{Timeout: cfg.Timeout()}
	svc.heads = skin.NewFetcher(svc.logger)
	return svc, nil
}

// authenticator builds a client for one login attempt on the shared transport.
func (s *services) authenticator() *api.AuthClient {
	return api.NewAuthClient(s.httpClient, s.cfg.MSAClientID, redirect.RedirectURL(s.cfg.RedirectAddr))
}

// session builds a login session reporting to progress.
func (s *services) session(progress login.Progress) *login.Session {
	auth := s.authenticator()
	capture := func(ctx context.Context, pending core.PendingAuthorization) (*core.FinishedAuthorization, error) {
		return redirect.StartServer(ctx, s.cfg.RedirectAddr, pending, s.logger)
	}
	return &login.Session{
		Accounts:     s.accounts,
		Store:        s.store,
		Orchestrator: login.New(auth, capture, s.logger, login.WithProgress(progress)),
		Heads:        s.heads,
		Logger:       s.logger,
	}
}

// Close releases the store and the log file, newest first.
func (s *services) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func runTUI(cmd *cobra.Command) error {
	svc, err := openServices(nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	svc.logger.Info("starting tui", "data_dir", svc.cfg.DataDir)
	model := app.New(app.Services{
		Accounts:   svc.accounts,
		Store:      svc.store,
		NewSession: svc.session,
		Logger:     svc.logger,
	})

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),       // Use alternate screen buffer
		tea.WithMouseCellMotion(), // Clicks copy the sign-in link
		tea.WithContext(cmd.Context()),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running tui: %w", err)
	}
	return nil
}
