package login

import (
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/quasar/mcauth/internal/api"
	"github.com/quasar/mcauth/internal/redirect"
)

// Error codes attached to every failed login.
const (
	CodeMsa               = "LOGIN_MSA"
	CodeXbox              = "LOGIN_XBOX"
	CodeRedirect          = "LOGIN_REDIRECT"
	CodeWentBackwards     = "LOGIN_WENT_BACKWARDS"
	CodeStageDidNotChange = "LOGIN_STAGE_DID_NOT_CHANGE"
	CodeCancelled         = "LOGIN_CANCELLED"
)

var (
	// ErrCancelled is matched with errors.Is when the user abandoned the login.
	ErrCancelled = errors.New("login cancelled")

	// ErrWentBackwards means a stage regressed after the attempt had already
	// advanced. It signals a bug or a revoked token, never routine staleness.
	ErrWentBackwards = errors.New("auth stage went backwards")

	// ErrStageDidNotChange means an exchange succeeded without moving the
	// resolver forward, so looping again would never terminate.
	ErrStageDidNotChange = errors.New("auth stage did not change")
)

// UserMessage returns the text to show for a failed login: the message of
// the innermost exchange or redirect error, or "" for a cancellation.
func UserMessage(err error) string {
	if err == nil || errors.Is(err, ErrCancelled) {
		return ""
	}
	var msaErr *api.MsaError
	if errors.As(err, &msaErr) {
		return msaErr.Error()
	}
	var xboxErr *api.XboxError
	if errors.As(err, &xboxErr) {
		return xboxErr.Error()
	}
	var redirectErr *redirect.Error
	if errors.As(err, &redirectErr) {
		return redirectErr.Error()
	}
	switch {
	case errors.Is(err, ErrWentBackwards):
		return ErrWentBackwards.Error()
	case errors.Is(err, ErrStageDidNotChange):
		return ErrStageDidNotChange.Error()
	}
	return err.Error()
}

// LogError logs err with its code and context when it carries them.
func LogError(logger *slog.Logger, msg string, err error) {
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs := []any{"error", oopsErr.Error()}
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
		logger.Error(msg, attrs...)
		return
	}
	logger.Error(msg, "error", err)
}
