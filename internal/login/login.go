// Package login drives a Microsoft account through the Xbox Live chain to a
// Minecraft profile, resuming from whatever cached credential is still valid.
package login

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/quasar/mcauth/internal/api"
	"github.com/quasar/mcauth/internal/core"
	"github.com/quasar/mcauth/internal/redirect"
)

// ProgressTotal is the number of progress steps: one per stage plus the
// final profile fetch.
const ProgressTotal = core.StageCount + 1

// Authenticator performs the remote exchanges of the credential chain.
// *api.AuthClient is the production implementation.
type Authenticator interface {
	CreateAuthorization() core.PendingAuthorization
	FinishAuthorization(ctx context.Context, finished core.FinishedAuthorization) (*api.MsaTokens, error)
	// RefreshMsa returns (nil, nil) when the refresh token is no longer accepted.
	RefreshMsa(ctx context.Context, refreshToken string) (*api.MsaTokens, error)
	AuthenticateXbox(ctx context.Context, msaAccessToken string) (*core.TokenWithExpiry, error)
	ObtainXsts(ctx context.Context, xblToken string) (*core.XstsToken, error)
	AuthenticateMinecraft(ctx context.Context, xstsToken, userhash string) (*core.TokenWithExpiry, error)
	GetMinecraftProfile(ctx context.Context, accessToken core.MinecraftAccessToken) (*api.MinecraftProfile, error)
}

// CaptureFunc blocks until the browser completes pending or ctx is done.
// redirect.StartServer bound to an address is the production implementation.
type CaptureFunc func(ctx context.Context, pending core.PendingAuthorization) (*core.FinishedAuthorization, error)

// Progress receives login progress. Implementations must not block.
type Progress interface {
	SetTotal(total int)
	SetCount(count int)
	// SetVisitURL asks the user to open url in a browser.
	SetVisitURL(message, url string)
	ClearVisitURL()
}

type noProgress struct{}

func (noProgress) SetTotal(int)               {}
func (noProgress) SetCount(int)               {}
func (noProgress) SetVisitURL(string, string) {}
func (noProgress) ClearVisitURL()             {}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProgress reports progress to p. A nil p discards progress.
func WithProgress(p Progress) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.progress = p
		}
	}
}

// WithClock replaces time.Now when deciding which credentials are valid.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs one login attempt at a time over a credential bundle.
type Orchestrator struct {
	auth     Authenticator
	capture  CaptureFunc
	progress Progress
	logger   *slog.Logger
	now      func() time.Time
}

func New(auth Authenticator, capture CaptureFunc, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		auth:     auth,
		capture:  capture,
		progress: noProgress{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Login advances creds until the Minecraft profile can be fetched.
//
// Each iteration resumes at the most advanced valid stage and fills in the
// next credential. A cached token rejected as stale (invalid grant or HTTP
// 401) is dropped so the next iteration falls back one stage, but only
// until the attempt has made forward progress; after that every failure is
// fatal. creds is updated in place and should be persisted by the caller.
func (o *Orchestrator) Login(ctx context.Context, creds *core.AccountCredentials) (*api.MinecraftProfile, core.MinecraftAccessToken, error) {
	logger := o.logger.With("attempt", ulid.Make().String())
	o.progress.SetTotal(ProgressTotal)

	allowBackwards := true
	var last core.StageWithData

	for {
		if err := ctx.Err(); err != nil {
			return nil, core.MinecraftAccessToken{}, cancelled(err)
		}

		stage := creds.Stage(o.now())
		if last != nil {
			switch {
			case stage.Stage() > last.Stage():
				allowBackwards = false
			case stage.Stage() < last.Stage():
				if !allowBackwards {
					return nil, core.MinecraftAccessToken{}, oops.Code(CodeWentBackwards).
						With("from", last.Stage().String()).
						With("to", stage.Stage().String()).
						Wrap(ErrWentBackwards)
				}
			default:
				return nil, core.MinecraftAccessToken{}, oops.Code(CodeStageDidNotChange).
					With("stage", stage.Stage().String()).
					Wrap(ErrStageDidNotChange)
			}
		}
		last = stage
		o.progress.SetCount(int(stage.Stage()) + 1)
		logger.Debug("attempting stage", "stage", stage.Stage().String(), "allow_backwards", allowBackwards)

		switch s := stage.(type) {
		case core.InitialStage:
			if err := o.authorize(ctx, logger, creds); err != nil {
				return nil, core.MinecraftAccessToken{}, err
			}

		case core.MsaRefreshStage:
			tokens, err := o.auth.RefreshMsa(ctx, s.RefreshToken)
			if err != nil {
				return nil, core.MinecraftAccessToken{}, o.fail(ctx, CodeMsa, stage, err)
			}
			if tokens == nil {
				if !allowBackwards {
					return nil, core.MinecraftAccessToken{}, o.fail(ctx, CodeMsa, stage, &api.MsaError{Kind: api.MsaInvalidGrant})
				}
				logger.Info("refresh token rejected, signing in again")
				creds.MsaRefresh = ""
				continue
			}
			storeMsaTokens(creds, tokens)

		case core.MsaAccessStage:
			xbl, err := o.auth.AuthenticateXbox(ctx, s.AccessToken)
			if err != nil {
				if staleToken(err, allowBackwards) {
					logger.Info("microsoft access token rejected, falling back", "stage", stage.Stage().String())
					creds.MsaAccess = nil
					continue
				}
				return nil, core.MinecraftAccessToken{}, o.fail(ctx, CodeXbox, stage, err)
			}
			creds.Xbl = xbl

		case core.XboxLiveStage:
			xsts, err := o.auth.ObtainXsts(ctx, s.Token)
			if err != nil {
				if staleToken(err, allowBackwards) {
					logger.Info("xbox live token rejected, falling back", "stage", stage.Stage().String())
					creds.Xbl = nil
					continue
				}
				return nil, core.MinecraftAccessToken{}, o.fail(ctx, CodeXbox, stage, err)
			}
			creds.Xsts = xsts

		case core.XboxSecureStage:
			token, err := o.auth.AuthenticateMinecraft(ctx, s.Xsts, s.Userhash)
			if err != nil {
				if staleToken(err, allowBackwards) {
					logger.Info("xsts token rejected, falling back", "stage", stage.Stage().String())
					creds.Xsts = nil
					continue
				}
				return nil, core.MinecraftAccessToken{}, o.fail(ctx, CodeXbox, stage, err)
			}
			creds.AccessToken = token

		case core.AccessTokenStage:
			profile, err := o.auth.GetMinecraftProfile(ctx, s.AccessToken)
			if err != nil {
				if staleToken(err, allowBackwards) {
					logger.Info("minecraft access token rejected, falling back", "stage", stage.Stage().String())
					creds.AccessToken = nil
					continue
				}
				return nil, core.MinecraftAccessToken{}, o.fail(ctx, CodeXbox, stage, err)
			}
			o.progress.SetCount(ProgressTotal)
			logger.Info("login complete", "profile", profile.ID, "name", profile.Name)
			return profile, s.AccessToken, nil
		}
	}
}

// authorize runs the browser sign-in and redeems the captured code.
func (o *Orchestrator) authorize(ctx context.Context, logger *slog.Logger, creds *core.AccountCredentials) error {
	pending := o.auth.CreateAuthorization()
	o.progress.SetVisitURL("Sign in with your Microsoft account in the browser", pending.URL)
	logger.Info("waiting for browser sign-in")

	finished, err := o.capture(ctx, pending)
	o.progress.ClearVisitURL()
	if err != nil {
		var redirectErr *redirect.Error
		if (errors.As(err, &redirectErr) && redirectErr.Kind == redirect.KindCancelledByUser) || ctx.Err() != nil {
			return cancelled(err)
		}
		return oops.Code(CodeRedirect).With("stage", core.StageInitial.String()).Wrap(err)
	}

	tokens, err := o.auth.FinishAuthorization(ctx, *finished)
	if err != nil {
		return o.fail(ctx, CodeMsa, core.InitialStage{}, err)
	}
	storeMsaTokens(creds, tokens)
	return nil
}

// fail wraps an exchange error, unless the exchange only failed because the
// attempt was cancelled.
func (o *Orchestrator) fail(ctx context.Context, code string, stage core.StageWithData, err error) error {
	if ctx.Err() != nil {
		return cancelled(err)
	}
	return oops.Code(code).With("stage", stage.Stage().String()).Wrap(err)
}

func cancelled(cause error) error {
	return oops.Code(CodeCancelled).With("cause", cause.Error()).Wrap(ErrCancelled)
}

func storeMsaTokens(creds *core.AccountCredentials, tokens *api.MsaTokens) {
	access := tokens.Access
	creds.MsaAccess = &access
	if tokens.Refresh != "" {
		creds.MsaRefresh = tokens.Refresh
	}
}

// staleToken reports whether err means a cached token was rejected and the
// stage before it may be retried.
func staleToken(err error, allowBackwards bool) bool {
	if !allowBackwards {
		return false
	}
	var xboxErr *api.XboxError
	return errors.As(err, &xboxErr) && xboxErr.Unauthorized()
}
