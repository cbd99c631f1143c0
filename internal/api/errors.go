package api

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
)

// MsaErrorKind classifies why a Microsoft token exchange failed.
type MsaErrorKind int

const (
	MsaConnectionError MsaErrorKind = iota
	// MsaInvalidGrant means the code or refresh token is expired, invalid or revoked.
	MsaInvalidGrant
	// MsaExternalError means the provider rejected the request; Code holds its error code.
	MsaExternalError
	// MsaInternalError means the provider's answer could not be understood.
	MsaInternalError
)

// MsaError is returned by the Microsoft identity platform exchanges.
type MsaError struct {
	Kind MsaErrorKind
	Code string
	Err  error
}

func (e *MsaError) Error() string {
	switch e.Kind {
	case MsaConnectionError:
		return fmt.Sprintf("connection error: %v", e.Err)
	case MsaInvalidGrant:
		return "invalid grant (token is expired, invalid or revoked)"
	case MsaExternalError:
		if e.Code != "" {
			return fmt.Sprintf("microsoft rejected the request: %s", e.Code)
		}
		return "microsoft rejected the request"
	default:
		return "unexpected response from microsoft"
	}
}

func (e *MsaError) Unwrap() error { return e.Err }

func (e *MsaError) IsConnectionError() bool { return e.Kind == MsaConnectionError }

// classifyMsaError maps an oauth2 exchange failure to exactly one MsaError kind.
func classifyMsaError(err error) *MsaError {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "invalid_grant" {
			return &MsaError{Kind: MsaInvalidGrant, Code: retrieveErr.ErrorCode, Err: err}
		}
		return &MsaError{Kind: MsaExternalError, Code: retrieveErr.ErrorCode, Err: err}
	}
	if isConnectionFailure(err) {
		return &MsaError{Kind: MsaConnectionError, Err: err}
	}
	return &MsaError{Kind: MsaInternalError, Err: err}
}

func isConnectionFailure(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// XboxErrorKind classifies why an Xbox Live or Minecraft Services call failed.
type XboxErrorKind int

const (
	XboxConnectionError XboxErrorKind = iota
	XboxSerializationError
	XboxNonOkHttpStatus
	// XboxMissingXui means the XSTS answer had no user identity, typically
	// an account without an Xbox profile.
	XboxMissingXui
	XboxMissingUhs
)

// XboxError is returned by the Xbox Live and Minecraft Services calls.
type XboxError struct {
	Kind   XboxErrorKind
	Status int
	// XErr is the numeric Xbox error from a non-200 body, when present.
	XErr int64
	Hint string
	Err  error
}

func (e *XboxError) Error() string {
	switch e.Kind {
	case XboxConnectionError:
		return fmt.Sprintf("connection error: %v", e.Err)
	case XboxSerializationError:
		return "unexpected response format"
	case XboxNonOkHttpStatus:
		msg := fmt.Sprintf("non-OK http status: %d %s", e.Status, http.StatusText(e.Status))
		if e.Hint != "" {
			msg += " (" + e.Hint + ")"
		}
		return msg
	case XboxMissingXui:
		return "missing xbox user identity"
	default:
		return "missing userhash"
	}
}

func (e *XboxError) Unwrap() error { return e.Err }

func (e *XboxError) IsConnectionError() bool { return e.Kind == XboxConnectionError }

// Unauthorized reports whether the service rejected the presented token,
// which for a cached token usually just means it went stale.
func (e *XboxError) Unauthorized() bool {
	return e.Kind == XboxNonOkHttpStatus && e.Status == http.StatusUnauthorized
}

// Known XSTS XErr values. The account can sign in to Microsoft but cannot
// use Xbox services until the user acts on the account.
var xErrHints = map[int64]string{
	2148916227: "account banned from xbox",
	2148916229: "account restricted by parental controls",
	2148916233: "account has no xbox profile",
	2148916234: "xbox terms of use not accepted",
	2148916235: "xbox live is not available in the account's country",
	2148916236: "account needs adult verification",
	2148916237: "account needs adult verification",
	2148916238: "child account must be added to a family group",
}
