package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quasar/mcauth/internal/api"
	"github.com/quasar/mcauth/internal/core"
)

// CredentialStore persists credential bundles keyed by Minecraft profile id.
// Read returns (nil, nil) when nothing is stored for id.
type CredentialStore interface {
	Read(id uuid.UUID) (*core.AccountCredentials, error)
	Write(id uuid.UUID, creds *core.AccountCredentials) error
	Delete(id uuid.UUID) error
}

// HeadFetcher renders the face of a skin texture as a PNG.
type HeadFetcher interface {
	Head(ctx context.Context, skinURL string) ([]byte, error)
}

// Result is a successful login.
type Result struct {
	Account     *core.Account
	Profile     *api.MinecraftProfile
	AccessToken core.MinecraftAccessToken
}

// Session ties a login attempt to the account index and the credential store.
type Session struct {
	Accounts     *core.AccountManager
	Store        CredentialStore
	Orchestrator *Orchestrator
	Heads        HeadFetcher // optional
	Logger       *slog.Logger
}

func (s *Session) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Run logs in the selected account, or a new one when newAccount is set or
// nothing is selected.
//
// On success the credentials are stored under the profile id and the
// account becomes the selection; credentials of a previously selected
// account that turned out to be a different profile are dropped. On any
// failure except cancellation the selected account's stored credentials
// are purged so the next attempt starts clean.
func (s *Session) Run(ctx context.Context, newAccount bool) (*Result, error) {
	logger := s.logger()

	target := uuid.Nil
	if !newAccount && s.Accounts.GetSelected() != nil {
		target = s.Accounts.Selected
	}

	creds := &core.AccountCredentials{}
	if target != uuid.Nil {
		stored, err := s.Store.Read(target)
		switch {
		case err != nil:
			logger.Warn("stored credentials unreadable, starting over", "account", target, "error", err)
		case stored != nil:
			creds = stored
		}
	}

	profile, token, err := s.Orchestrator.Login(ctx, creds)
	if err != nil {
		if target != uuid.Nil && !errors.Is(err, ErrCancelled) {
			if delErr := s.Store.Delete(target); delErr != nil {
				logger.Warn("purging credentials failed", "account", target, "error", delErr)
			}
		}
		return nil, err
	}

	if target != uuid.Nil && target != profile.ID {
		logger.Info("signed in as a different profile", "selected", target, "profile", profile.ID)
		if err := s.Store.Delete(target); err != nil {
			logger.Warn("dropping old credentials failed", "account", target, "error", err)
		}
	}

	if err := s.Store.Write(profile.ID, creds); err != nil {
		return nil, fmt.Errorf("storing credentials: %w", err)
	}

	s.Accounts.Upsert(profile.ID, profile.Name)
	if err := s.Accounts.SetSelected(profile.ID); err != nil {
		return nil, err
	}
	s.updateHead(ctx, profile)
	if err := s.Accounts.Save(); err != nil {
		return nil, fmt.Errorf("saving accounts: %w", err)
	}

	return &Result{
		Account:     s.Accounts.Get(profile.ID),
		Profile:     profile,
		AccessToken: token,
	}, nil
}

// updateHead refreshes the stored skin face. Failures only cost the picture.
func (s *Session) updateHead(ctx context.Context, profile *api.MinecraftProfile) {
	if s.Heads == nil {
		return
	}
	skin, ok := profile.ActiveSkin()
	if !ok {
		return
	}
	head, err := s.Heads.Head(ctx, skin.URL)
	if err != nil {
		s.logger().Warn("fetching skin head failed", "profile", profile.ID, "error", err)
		return
	}
	s.Accounts.SetHead(profile.ID, head)
}

// Logout forgets an account and its stored credentials.
func (s *Session) Logout(id uuid.UUID) error {
	if err := s.Store.Delete(id); err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	if !s.Accounts.Remove(id) {
		return fmt.Errorf("account not found: %s", id)
	}
	return s.Accounts.Save()
}
