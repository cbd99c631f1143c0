package core

// PendingAuthorization is one browser sign-in in flight: the URL the user
// must visit, the CSRF token the redirect has to echo back as state, and
// the PKCE verifier matching the challenge embedded in URL.
type PendingAuthorization struct {
	URL          string
	CSRFToken    string
	PKCEVerifier string
}

// FinishedAuthorization is a PendingAuthorization whose redirect arrived
// with an authorization code. It is exchanged exactly once.
type FinishedAuthorization struct {
	Pending PendingAuthorization
	Code    string
}
