package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/quasar/mcauth/internal/core"
	"github.com/quasar/mcauth/internal/login"
	"github.com/quasar/mcauth/internal/ui"
)

// loginConfig holds configuration for the login command.
type loginConfig struct {
	newAccount bool
	noBrowser  bool
	printToken bool
}

// newLoginCmd creates the login subcommand with all flags configured.
func newLoginCmd() *cobra.Command {
	cfg := &loginConfig{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in the selected account, or add a new one",
		Long: `Log in the selected account from its cached tokens, falling back to a
browser sign-in when nothing usable is cached. Progress goes to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.newAccount, "new", false, "sign in a new account instead of the selected one")
	cmd.Flags().BoolVar(&cfg.noBrowser, "no-browser", false, "print the sign-in link without opening a browser")
	cmd.Flags().BoolVar(&cfg.printToken, "print-token", false, "print the Minecraft access token to stdout")

	return cmd
}

// runLogin executes the login command.
func runLogin(cmd *cobra.Command, cfg *loginConfig) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	svc, err := openServices(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer svc.Close()

	progress := &consoleProgress{w: cmd.ErrOrStderr(), openBrowser: !cfg.noBrowser}
	result, err := svc.session(progress).Run(ctx, cfg.newAccount)
	if err != nil {
		if errors.Is(err, login.ErrCancelled) {
			cmd.PrintErrln("Login cancelled")
			return nil
		}
		login.LogError(svc.logger, "login failed", err)
		return fmt.Errorf("login failed: %s", login.UserMessage(err))
	}

	cmd.PrintErrf("Logged in as %s (%s)\n", result.Profile.Name, result.Profile.ID)
	if cfg.printToken {
		fmt.Fprintln(cmd.OutOrStdout(), result.AccessToken.Secret())
	}
	return nil
}

// stepLabels describe what the step starting at each stage does.
var stepLabels = map[int]string{
	int(core.StageInitial) + 1:     "Signing in with Microsoft",
	int(core.StageMsaRefresh) + 1:  "Refreshing Microsoft session",
	int(core.StageMsaAccess) + 1:   "Authenticating with Xbox Live",
	int(core.StageXboxLive) + 1:    "Requesting Xbox security token",
	int(core.StageXboxSecure) + 1:  "Logging in to Minecraft",
	int(core.StageAccessToken) + 1: "Fetching Minecraft profile",
	login.ProgressTotal:            "Done",
}

// consoleProgress prints login progress as lines of text.
type consoleProgress struct {
	w           io.Writer
	total       int
	openBrowser bool
}

func (p *consoleProgress) SetTotal(total int) { p.total = total }

func (p *consoleProgress) SetCount(count int) {
	fmt.Fprintf(p.w, "[%d/%d] %s\n", count, p.total, stepLabels[count])
}

func (p *consoleProgress) SetVisitURL(message, url string) {
	fmt.Fprintf(p.w, "%s:\n\n  %s\n\n", message, url)
	if p.openBrowser {
		ui.OpenBrowser(url)
	}
}

func (p *consoleProgress) ClearVisitURL() {}
