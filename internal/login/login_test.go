package login

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quasar/mcauth/internal/api"
	"github.com/quasar/mcauth/internal/core"
	"github.com/quasar/mcauth/internal/redirect"
)

var (
	fixedNow  = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	profileID = uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5")
)

func validFor(token string, d time.Duration) *core.TokenWithExpiry {
	return &core.TokenWithExpiry{Token: token, Expiry: fixedNow.Add(d)}
}

// fakeAuth succeeds at every exchange unless a step is overridden.
type fakeAuth struct {
	calls []string

	finish    func(core.FinishedAuthorization) (*api.MsaTokens, error)
	refresh   func(string) (*api.MsaTokens, error)
	xbox      func(string) (*core.TokenWithExpiry, error)
	xsts      func(string) (*core.XstsToken, error)
	minecraft func(string, string) (*core.TokenWithExpiry, error)
	profile   func(core.MinecraftAccessToken) (*api.MinecraftProfile, error)
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		finish: func(core.FinishedAuthorization) (*api.MsaTokens, error) {
			return &api.MsaTokens{Access: *validFor("msa-access", time.Hour), Refresh: "msa-refresh"}, nil
		},
		refresh: func(string) (*api.MsaTokens, error) {
			return &api.MsaTokens{Access: *validFor("msa-access-refreshed", time.Hour), Refresh: "msa-refresh-2"}, nil
		},
		xbox: func(string) (*core.TokenWithExpiry, error) {
			return validFor("xbl", time.Hour), nil
		},
		xsts: func(string) (*core.XstsToken, error) {
			return &core.XstsToken{TokenWithExpiry: *validFor("xsts", time.Hour), Userhash: "uhs"}, nil
		},
		minecraft: func(string, string) (*core.TokenWithExpiry, error) {
			return validFor("mc-access", 24*time.Hour), nil
		},
		profile: func(core.MinecraftAccessToken) (*api.MinecraftProfile, error) {
			return &api.MinecraftProfile{ID: profileID, Name: "Notch"}, nil
		},
	}
}

func (f *fakeAuth) CreateAuthorization() core.PendingAuthorization {
	f.calls = append(f.calls, "create")
	return core.PendingAuthorization{URL: "https://login.example/authorize", CSRFToken: "csrf", PKCEVerifier: "verifier"}
}

func (f *fakeAuth) FinishAuthorization(_ context.Context, finished core.FinishedAuthorization) (*api.MsaTokens, error) {
	f.calls = append(f.calls, "finish")
	return f.finish(finished)
}

func (f *fakeAuth) RefreshMsa(_ context.Context, refreshToken string) (*api.MsaTokens, error) {
	f.calls = append(f.calls, "refresh")
	return f.refresh(refreshToken)
}

func (f *fakeAuth) AuthenticateXbox(_ context.Context, msaAccessToken string) (*core.TokenWithExpiry, error) {
	f.calls = append(f.calls, "xbox")
	return f.xbox(msaAccessToken)
}

func (f *fakeAuth) ObtainXsts(_ context.Context, xblToken string) (*core.XstsToken, error) {
	f.calls = append(f.calls, "xsts")
	return f.xsts(xblToken)
}

func (f *fakeAuth) AuthenticateMinecraft(_ context.Context, xstsToken, userhash string) (*core.TokenWithExpiry, error) {
	f.calls = append(f.calls, "minecraft")
	return f.minecraft(xstsToken, userhash)
}

func (f *fakeAuth) GetMinecraftProfile(_ context.Context, accessToken core.MinecraftAccessToken) (*api.MinecraftProfile, error) {
	f.calls = append(f.calls, "profile")
	return f.profile(accessToken)
}

// fakeProgress records everything the orchestrator reports.
type fakeProgress struct {
	total     int
	counts    []int
	visitURLs []string
	cleared   int
}

func (p *fakeProgress) SetTotal(total int) { p.total = total }
func (p *fakeProgress) SetCount(count int) { p.counts = append(p.counts, count) }
func (p *fakeProgress) SetVisitURL(_, url string) {
	p.visitURLs = append(p.visitURLs, url)
}
func (p *fakeProgress) ClearVisitURL() { p.cleared++ }

func captureCode(code string) CaptureFunc {
	return func(_ context.Context, pending core.PendingAuthorization) (*core.FinishedAuthorization, error) {
		return &core.FinishedAuthorization{Pending: pending, Code: code}, nil
	}
}

func noCapture(t *testing.T) CaptureFunc {
	return func(context.Context, core.PendingAuthorization) (*core.FinishedAuthorization, error) {
		t.Fatal("browser sign-in was not expected")
		return nil, nil
	}
}

func newTestOrchestrator(auth Authenticator, capture CaptureFunc, opts ...Option) *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(auth, capture, logger, opts...)
}

func unauthorized() error {
	return &api.XboxError{Kind: api.XboxNonOkHttpStatus, Status: http.StatusUnauthorized}
}

// assertErrorCode asserts that err is an oops error with the given code.
func assertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, code, oopsErr.Code())
}

func TestLogin_FromEmptyCredentials(t *testing.T) {
	auth := newFakeAuth()
	progress := &fakeProgress{}
	var captured core.PendingAuthorization
	capture := func(_ context.Context, pending core.PendingAuthorization) (*core.FinishedAuthorization, error) {
		captured = pending
		return &core.FinishedAuthorization{Pending: pending, Code: "the-code"}, nil
	}
	auth.finish = func(finished core.FinishedAuthorization) (*api.MsaTokens, error) {
		assert.Equal(t, "the-code", finished.Code)
		assert.Equal(t, "verifier", finished.Pending.PKCEVerifier)
		return &api.MsaTokens{Access: *validFor("msa-access", time.Hour), Refresh: "msa-refresh"}, nil
	}

	creds := &core.AccountCredentials{}
	profile, token, err := newTestOrchestrator(auth, capture, WithProgress(progress)).Login(context.Background(), creds)
	require.NoError(t, err)

	assert.Equal(t, profileID, profile.ID)
	assert.Equal(t, "mc-access", token.Secret())
	assert.Equal(t, []string{"create", "finish", "xbox", "xsts", "minecraft", "profile"}, auth.calls)
	assert.Equal(t, "csrf", captured.CSRFToken)

	assert.Equal(t, "msa-refresh", creds.MsaRefresh)
	assert.Equal(t, "msa-access", creds.MsaAccess.Token)
	assert.Equal(t, "xbl", creds.Xbl.Token)
	assert.Equal(t, "uhs", creds.Xsts.Userhash)
	assert.Equal(t, "mc-access", creds.AccessToken.Token)

	assert.Equal(t, ProgressTotal, progress.total)
	assert.Equal(t, []int{1, 3, 4, 5, 6, 7}, progress.counts)
	assert.Equal(t, []string{"https://login.example/authorize"}, progress.visitURLs)
	assert.Equal(t, 1, progress.cleared)
}

func TestLogin_ValidAccessTokenFetchesProfileOnly(t *testing.T) {
	auth := newFakeAuth()
	creds := &core.AccountCredentials{AccessToken: validFor("cached", time.Minute)}

	_, token, err := newTestOrchestrator(auth, noCapture(t)).Login(context.Background(), creds)
	require.NoError(t, err)

	assert.Equal(t, []string{"profile"}, auth.calls)
	assert.Equal(t, "cached", token.Secret())
}

func TestLogin_ExpiredAccessTokenResumesFromXsts(t *testing.T) {
	auth := newFakeAuth()
	creds := &core.AccountCredentials{
		Xsts:        &core.XstsToken{TokenWithExpiry: *validFor("xsts", time.Hour), Userhash: "uhs"},
		AccessToken: validFor("stale", -time.Minute),
	}

	_, token, err := newTestOrchestrator(auth, noCapture(t)).Login(context.Background(), creds)
	require.NoError(t, err)

	assert.Equal(t, []string{"minecraft", "profile"}, auth.calls)
	assert.Equal(t, "mc-access", token.Secret())
	assert.Equal(t, "mc-access", creds.AccessToken.Token)
}

func TestLogin_InvalidRefreshFallsBackToBrowser(t *testing.T) {
	auth := newFakeAuth()
	auth.refresh = func(string) (*api.MsaTokens, error) { return nil, nil }
	creds := &core.AccountCredentials{MsaRefresh: "revoked"}

	_, _, err := newTestOrchestrator(auth, captureCode("code")).Login(context.Background(), creds)
	require.NoError(t, err)

	assert.Equal(t, []string{"refresh", "create", "finish", "xbox", "xsts", "minecraft", "profile"}, auth.calls)
	assert.Equal(t, "msa-refresh", creds.MsaRefresh)
}

func TestLogin_InvalidRefreshAfterProgressIsFatal(t *testing.T) {
	auth := newFakeAuth()
	// The fresh access token is already expired, so the next stage is the
	// refresh, reached by moving forward.
	auth.finish = func(core.FinishedAuthorization) (*api.MsaTokens, error) {
		return &api.MsaTokens{Access: *validFor("msa-access", -time.Minute), Refresh: "msa-refresh"}, nil
	}
	auth.refresh = func(string) (*api.MsaTokens, error) { return nil, nil }
	creds := &core.AccountCredentials{}

	_, _, err := newTestOrchestrator(auth, captureCode("code")).Login(context.Background(), creds)
	require.Error(t, err)

	assertErrorCode(t, err, CodeMsa)
	var msaErr *api.MsaError
	require.ErrorAs(t, err, &msaErr)
	assert.Equal(t, api.MsaInvalidGrant, msaErr.Kind)
	assert.Equal(t, []string{"create", "finish", "refresh"}, auth.calls)
}

func TestLogin_RefreshKeepsOldTokenWhenNoneIssued(t *testing.T) {
	auth := newFakeAuth()
	auth.refresh = func(string) (*api.MsaTokens, error) {
		return &api.MsaTokens{Access: *validFor("msa-access", time.Hour)}, nil
	}
	creds := &core.AccountCredentials{MsaRefresh: "long-lived"}

	_, _, err := newTestOrchestrator(auth, noCapture(t)).Login(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, "long-lived", creds.MsaRefresh)
}

func TestLogin_UnauthorizedFallsBackOneStage(t *testing.T) {
	tests := []struct {
		name  string
		creds func() *core.AccountCredentials
		fail  func(*fakeAuth, *int)
		calls []string
	}{
		{
			name: "msa access rejected by xbox",
			creds: func() *core.AccountCredentials {
				return &core.AccountCredentials{MsaRefresh: "refresh", MsaAccess: validFor("msa", time.Hour)}
			},
			fail: func(f *fakeAuth, n *int) {
				f.xbox = func(string) (*core.TokenWithExpiry, error) {
					if *n++; *n == 1 {
						return nil, unauthorized()
					}
					return validFor("xbl", time.Hour), nil
				}
			},
			calls: []string{"xbox", "refresh", "xbox", "xsts", "minecraft", "profile"},
		},
		{
			name: "xbl rejected by xsts",
			creds: func() *core.AccountCredentials {
				return &core.AccountCredentials{MsaAccess: validFor("msa", time.Hour), Xbl: validFor("xbl", time.Hour)}
			},
			fail: func(f *fakeAuth, n *int) {
				f.xsts = func(string) (*core.XstsToken, error) {
					if *n++; *n == 1 {
						return nil, unauthorized()
					}
					return &core.XstsToken{TokenWithExpiry: *validFor("xsts", time.Hour), Userhash: "uhs"}, nil
				}
			},
			calls: []string{"xsts", "xbox", "xsts", "minecraft", "profile"},
		},
		{
			name: "access token rejected by profile",
			creds: func() *core.AccountCredentials {
				return &core.AccountCredentials{
					Xsts:        &core.XstsToken{TokenWithExpiry: *validFor("xsts", time.Hour), Userhash: "uhs"},
					AccessToken: validFor("revoked", time.Hour),
				}
			},
			fail: func(f *fakeAuth, n *int) {
				f.profile = func(core.MinecraftAccessToken) (*api.MinecraftProfile, error) {
					if *n++; *n == 1 {
						return nil, unauthorized()
					}
					return &api.MinecraftProfile{ID: profileID, Name: "Notch"}, nil
				}
			},
			calls: []string{"profile", "minecraft", "profile"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := newFakeAuth()
			var n int
			tt.fail(auth, &n)

			_, _, err := newTestOrchestrator(auth, noCapture(t)).Login(context.Background(), tt.creds())
			require.NoError(t, err)
			assert.Equal(t, tt.calls, auth.calls)
		})
	}
}

func TestLogin_UnauthorizedAfterProgressIsFatal(t *testing.T) {
	auth := newFakeAuth()
	auth.xsts = func(string) (*core.XstsToken, error) { return nil, unauthorized() }
	creds := &core.AccountCredentials{MsaRefresh: "refresh", MsaAccess: validFor("msa", time.Hour)}

	_, _, err := newTestOrchestrator(auth, noCapture(t)).Login(context.Background(), creds)
	require.Error(t, err)

	assertErrorCode(t, err, CodeXbox)
	var xboxErr *api.XboxError
	require.ErrorAs(t, err, &xboxErr)
	assert.True(t, xboxErr.Unauthorized())
	assert.Equal(t, []string{"xbox", "xsts"}, auth.calls)
	assert.Equal(t, "xbl", creds.Xbl.Token, "the fresh credential stays for the caller to persist or purge")
}

func TestLogin_FatalErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeAuth)
		code  string
		check func(*testing.T, error)
	}{
		{
			name: "connection error",
			setup: func(f *fakeAuth) {
				f.xbox = func(string) (*core.TokenWithExpiry, error) {
					return nil, &api.XboxError{Kind: api.XboxConnectionError, Err: errors.New("dial tcp: refused")}
				}
			},
			code: CodeXbox,
			check: func(t *testing.T, err error) {
				var xboxErr *api.XboxError
				require.ErrorAs(t, err, &xboxErr)
				assert.True(t, xboxErr.IsConnectionError())
			},
		},
		{
			name: "server error",
			setup: func(f *fakeAuth) {
				f.xbox = func(string) (*core.TokenWithExpiry, error) {
					return nil, &api.XboxError{Kind: api.XboxNonOkHttpStatus, Status: http.StatusInternalServerError}
				}
			},
			code: CodeXbox,
		},
		{
			name: "missing xbox profile",
			setup: func(f *fakeAuth) {
				f.xsts = func(string) (*core.XstsToken, error) {
					return nil, &api.XboxError{Kind: api.XboxMissingXui}
				}
			},
			code: CodeXbox,
			check: func(t *testing.T, err error) {
				assert.Equal(t, "missing xbox user identity", UserMessage(err))
			},
		},
		{
			name: "refresh rejected by provider",
			setup: func(f *fakeAuth) {
				f.xbox = func(string) (*core.TokenWithExpiry, error) { return nil, unauthorized() }
				f.refresh = func(string) (*api.MsaTokens, error) {
					return nil, &api.MsaError{Kind: api.MsaExternalError, Code: "unauthorized_client"}
				}
			},
			code: CodeMsa,
			check: func(t *testing.T, err error) {
				assert.Contains(t, UserMessage(err), "unauthorized_client")
			},
		},
		{
			name: "exchange succeeded without advancing",
			setup: func(f *fakeAuth) {
				f.xbox = func(string) (*core.TokenWithExpiry, error) {
					return validFor("already-expired", -time.Second), nil
				}
			},
			code: CodeStageDidNotChange,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrStageDidNotChange)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := newFakeAuth()
			tt.setup(auth)
			creds := &core.AccountCredentials{MsaRefresh: "refresh", MsaAccess: validFor("msa", time.Hour)}

			profile, token, err := newTestOrchestrator(auth, noCapture(t)).Login(context.Background(), creds)
			require.Error(t, err)
			assert.Nil(t, profile)
			assert.True(t, token.IsZero())
			assertErrorCode(t, err, tt.code)
			assert.NotEmpty(t, UserMessage(err))
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestLogin_WentBackwards(t *testing.T) {
	auth := newFakeAuth()
	auth.xbox = func(string) (*core.TokenWithExpiry, error) {
		return validFor("xbl", time.Minute), nil
	}
	// The clock jumps past every short-lived token between iterations, so
	// the resolver drops back to the refresh token after progress was made.
	times := []time.Time{fixedNow, fixedNow, fixedNow.Add(2 * time.Hour)}
	var tick int
	clock := func() time.Time {
		now := times[min(tick, len(times)-1)]
		tick++
		return now
	}
	creds := &core.AccountCredentials{MsaRefresh: "refresh", MsaAccess: validFor("msa", time.Minute)}

	_, _, err := newTestOrchestrator(auth, noCapture(t), WithClock(clock)).Login(context.Background(), creds)
	require.Error(t, err)

	assertErrorCode(t, err, CodeWentBackwards)
	assert.ErrorIs(t, err, ErrWentBackwards)
	assert.Equal(t, []string{"xbox", "xsts"}, auth.calls)
}

func TestLogin_CancelledBeforeStart(t *testing.T) {
	auth := newFakeAuth()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newTestOrchestrator(auth, noCapture(t)).Login(ctx, &core.AccountCredentials{})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrCancelled)
	assertErrorCode(t, err, CodeCancelled)
	assert.Empty(t, UserMessage(err))
	assert.Empty(t, auth.calls)
}

func TestLogin_CancelledWhileWaitingForBrowser(t *testing.T) {
	auth := newFakeAuth()
	progress := &fakeProgress{}
	ctx, cancel := context.WithCancel(context.Background())
	capture := func(ctx context.Context, _ core.PendingAuthorization) (*core.FinishedAuthorization, error) {
		cancel()
		<-ctx.Done()
		return nil, &redirect.Error{Kind: redirect.KindCancelledByUser, Err: ctx.Err()}
	}

	_, _, err := newTestOrchestrator(auth, capture, WithProgress(progress)).Login(ctx, &core.AccountCredentials{})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, UserMessage(err))
	assert.Equal(t, []string{"create"}, auth.calls)
	assert.Equal(t, 1, progress.cleared)
}

func TestLogin_CancelledDuringExchange(t *testing.T) {
	auth := newFakeAuth()
	ctx, cancel := context.WithCancel(context.Background())
	auth.xbox = func(string) (*core.TokenWithExpiry, error) {
		cancel()
		return nil, &api.XboxError{Kind: api.XboxConnectionError, Err: context.Canceled}
	}
	creds := &core.AccountCredentials{MsaAccess: validFor("msa", time.Hour)}

	_, _, err := newTestOrchestrator(auth, noCapture(t)).Login(ctx, creds)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestLogin_RedirectFailure(t *testing.T) {
	auth := newFakeAuth()
	capture := func(context.Context, core.PendingAuthorization) (*core.FinishedAuthorization, error) {
		return nil, &redirect.Error{Kind: redirect.KindCsrfMismatch}
	}

	_, _, err := newTestOrchestrator(auth, capture).Login(context.Background(), &core.AccountCredentials{})
	require.Error(t, err)

	assertErrorCode(t, err, CodeRedirect)
	assert.NotErrorIs(t, err, ErrCancelled)
	assert.Contains(t, UserMessage(err), "csrf")
	assert.Equal(t, []string{"create"}, auth.calls)
}

func TestLogin_CodeExchangeFailure(t *testing.T) {
	auth := newFakeAuth()
	auth.finish = func(core.FinishedAuthorization) (*api.MsaTokens, error) {
		return nil, &api.MsaError{Kind: api.MsaInvalidGrant}
	}

	_, _, err := newTestOrchestrator(auth, captureCode("code")).Login(context.Background(), &core.AccountCredentials{})
	require.Error(t, err)

	assertErrorCode(t, err, CodeMsa)
	var msaErr *api.MsaError
	require.ErrorAs(t, err, &msaErr)
	assert.Equal(t, api.MsaInvalidGrant, msaErr.Kind)
}
