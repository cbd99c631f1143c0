// Package api MSA (Microsoft Authentication) client.
package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/quasar/mcauth/internal/core"
)

var (
	msaAuthorizeURL = "https://login.microsoftonline.com/consumers/oauth2/v2.0/authorize"
	msaTokenURL     = "https://login.microsoftonline.com/consumers/oauth2/v2.0/token"
	xboxUserAuthURL = "https://user.auth.xboxlive.com/user/authenticate"
	xstsAuthURL     = "https://xsts.auth.xboxlive.com/xsts/authorize"
	mcAuthURL       = "https://api.minecraftservices.com/authentication/login_with_xbox"
	mcProfileURL    = "https://api.minecraftservices.com/minecraft/profile"
)

var msaScopes = []string{"XboxLive.signin", "XboxLive.offline_access"}

const (
	xboxRelyingParty      = "http://auth.xboxlive.com"
	minecraftRelyingParty = "rp://api.minecraftservices.com/"

	// defaultMsaLifetime applies when the token response omits expires_in.
	defaultMsaLifetime = time.Hour

	maxErrorBody = 64 << 10
)

// AuthClient handles Microsoft/Xbox/Minecraft authentication. Callers build
// one per login attempt; the transport may be shared between them.
type AuthClient struct {
	httpClient  *http.Client
	clientID    string
	redirectURL string
	now         func() time.Time

	oauthOnce sync.Once
	oauth     *oauth2.Config
}

func NewAuthClient(httpClient *http.Client, clientID, redirectURL string) *AuthClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &AuthClient{
		httpClient:  httpClient,
		clientID:    clientID,
		redirectURL: redirectURL,
		now:         time.Now,
	}
}

func (c *AuthClient) oauthConfig() *oauth2.Config {
	c.oauthOnce.Do(func() {
		c.oauth = &oauth2.Config{
			ClientID:    c.clientID,
			RedirectURL: c.redirectURL,
			Scopes:      msaScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   msaAuthorizeURL,
				TokenURL:  msaTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
	})
	return c.oauth
}

// oauthContext makes the oauth2 package use our transport.
func (c *AuthClient) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// CreateAuthorization prepares a browser sign-in with a fresh PKCE pair and
// CSRF token. The account chooser is always shown, even when the browser
// already holds a Microsoft session.
func (c *AuthClient) CreateAuthorization() core.PendingAuthorization {
	verifier := oauth2.GenerateVerifier()
	state := rand.Text()

	authURL := c.oauthConfig().AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)

	return core.PendingAuthorization{
		URL:          authURL,
		CSRFToken:    state,
		PKCEVerifier: verifier,
	}
}

// FinishAuthorization exchanges the captured code and PKCE verifier for
// Microsoft access and refresh tokens.
func (c *AuthClient) FinishAuthorization(ctx context.Context, finished core.FinishedAuthorization) (*MsaTokens, error) {
	token, err := c.oauthConfig().Exchange(c.oauthContext(ctx), finished.Code,
		oauth2.VerifierOption(finished.Pending.PKCEVerifier))
	if err != nil {
		return nil, classifyMsaError(err)
	}
	return c.msaTokens(token), nil
}

// RefreshMsa redeems a refresh token. It returns (nil, nil) when Microsoft
// reports the grant as invalid, expired or revoked: the caller is expected
// to fall back to a browser sign-in rather than treat it as a failure.
func (c *AuthClient) RefreshMsa(ctx context.Context, refreshToken string) (*MsaTokens, error) {
	source := c.oauthConfig().TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		msaErr := classifyMsaError(err)
		if msaErr.Kind == MsaInvalidGrant {
			return nil, nil
		}
		return nil, msaErr
	}
	return c.msaTokens(token), nil
}

func (c *AuthClient) msaTokens(token *oauth2.Token) *MsaTokens {
	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = c.now().Add(defaultMsaLifetime)
	}
	return &MsaTokens{
		Access:  core.TokenWithExpiry{Token: token.AccessToken, Expiry: expiry},
		Refresh: token.RefreshToken,
	}
}

// AuthenticateXbox exchanges MSA Access Token for Xbox Live Token
func (c *AuthClient) AuthenticateXbox(ctx context.Context, msaAccessToken string) (*core.TokenWithExpiry, error) {
	reqBody := XboxAuthRequest{
		Properties: XboxAuthProperties{
			AuthMethod: "RPS",
			SiteName:   "user.auth.xboxlive.com",
			RpsTicket:  "d=" + msaAccessToken,
		},
		RelyingParty: xboxRelyingParty,
		TokenType:    "JWT",
	}

	var result XboxAuthResponse
	if err := c.postJSON(ctx, xboxUserAuthURL, reqBody, &result, true); err != nil {
		return nil, err
	}

	expiry, err := c.skewCorrected(result.IssueInstant, result.NotAfter)
	if err != nil {
		return nil, err
	}
	return &core.TokenWithExpiry{Token: result.Token, Expiry: expiry}, nil
}

// ObtainXsts exchanges an Xbox Live token for an XSTS token scoped to
// Minecraft Services.
func (c *AuthClient) ObtainXsts(ctx context.Context, xblToken string) (*core.XstsToken, error) {
	reqBody := XboxAuthRequest{
		Properties: XboxAuthProperties{
			SandboxId:  "RETAIL",
			UserTokens: []string{xblToken},
		},
		RelyingParty: minecraftRelyingParty,
		TokenType:    "JWT",
	}

	var result XboxAuthResponse
	if err := c.postJSON(ctx, xstsAuthURL, reqBody, &result, true); err != nil {
		return nil, err
	}

	expiry, err := c.skewCorrected(result.IssueInstant, result.NotAfter)
	if err != nil {
		return nil, err
	}
	if len(result.DisplayClaims.XUI) == 0 {
		return nil, &XboxError{Kind: XboxMissingXui}
	}
	uhs, ok := result.DisplayClaims.XUI[0]["uhs"]
	if !ok {
		return nil, &XboxError{Kind: XboxMissingUhs}
	}

	return &core.XstsToken{
		TokenWithExpiry: core.TokenWithExpiry{Token: result.Token, Expiry: expiry},
		Userhash:        uhs,
	}, nil
}

// AuthenticateMinecraft exchanges XSTS Token and UHS for Minecraft Access Token
func (c *AuthClient) AuthenticateMinecraft(ctx context.Context, xstsToken, userhash string) (*core.TokenWithExpiry, error) {
	reqBody := MinecraftAuthRequest{
		IdentityToken: fmt.Sprintf("XBL3.0 x=%s;%s", userhash, xstsToken),
	}

	var result MinecraftAuthResponse
	if err := c.postJSON(ctx, mcAuthURL, reqBody, &result, false); err != nil {
		return nil, err
	}

	return &core.TokenWithExpiry{
		Token:  result.AccessToken,
		Expiry: c.now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}, nil
}

// GetMinecraftProfile gets the Minecraft profile (uuid, name, skins)
func (c *AuthClient) GetMinecraftProfile(ctx context.Context, accessToken core.MinecraftAccessToken) (*MinecraftProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mcProfileURL, nil)
	if err != nil {
		return nil, &XboxError{Kind: XboxConnectionError, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken.Secret())
	req.Header.Set("Accept", "application/json")

	var result MinecraftProfile
	if err := c.do(req, &result, false); err != nil {
		return nil, err
	}
	return &result, nil
}

// skewCorrected converts a server validity window into local clock time,
// so a machine whose clock is off still expires the token on schedule.
func (c *AuthClient) skewCorrected(issued, notAfter time.Time) (time.Time, error) {
	if notAfter.IsZero() {
		return time.Time{}, &XboxError{Kind: XboxSerializationError}
	}
	if issued.IsZero() {
		return notAfter, nil
	}
	return c.now().Add(notAfter.Sub(issued)), nil
}

func (c *AuthClient) postJSON(ctx context.Context, url string, body, out any, xbox bool) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return &XboxError{Kind: XboxSerializationError, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return &XboxError{Kind: XboxConnectionError, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if xbox {
		req.Header.Set("x-xbl-contract-version", "1")
	}
	return c.do(req, out, xbox)
}

func (c *AuthClient) do(req *http.Request, out any, xbox bool) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &XboxError{Kind: XboxConnectionError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nonOkError(resp.StatusCode, respBody, xbox)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &XboxError{Kind: XboxConnectionError, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &XboxError{Kind: XboxSerializationError, Err: err}
	}
	return nil
}

func nonOkError(status int, body []byte, xbox bool) *XboxError {
	e := &XboxError{Kind: XboxNonOkHttpStatus, Status: status}
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return e
	}
	if xbox {
		e.XErr = gjson.GetBytes(body, "XErr").Int()
		e.Hint = xErrHints[e.XErr]
		return e
	}
	if msg := gjson.GetBytes(body, "errorMessage").String(); msg != "" {
		e.Hint = msg
	} else {
		e.Hint = gjson.GetBytes(body, "error").String()
	}
	return e
}
