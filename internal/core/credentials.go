package core

import (
	"log/slog"
	"time"
)

// TokenWithExpiry is a bearer token together with the local instant after
// which it must no longer be used. Expiries are stored in local clock time,
// already corrected for any skew between the issuing server and this machine.
type TokenWithExpiry struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry"`
}

// ValidAt reports whether the token is present and has not expired at now.
func (t *TokenWithExpiry) ValidAt(now time.Time) bool {
	return t != nil && now.Before(t.Expiry)
}

// XstsToken is an Xbox Secure Token Service token scoped to the Minecraft
// relying party, plus the user hash needed to present it.
type XstsToken struct {
	TokenWithExpiry
	Userhash string `json:"userhash"`
}

// MinecraftAccessToken is the bearer token for Minecraft Services. Its
// String and LogValue forms are redacted so it never ends up in logs.
type MinecraftAccessToken struct {
	secret string
}

func NewMinecraftAccessToken(secret string) MinecraftAccessToken {
	return MinecraftAccessToken{secret: secret}
}

// Secret returns the raw token for use in an Authorization header.
func (t MinecraftAccessToken) Secret() string { return t.secret }

func (t MinecraftAccessToken) IsZero() bool { return t.secret == "" }

func (t MinecraftAccessToken) String() string { return "MinecraftAccessToken(redacted)" }

func (t MinecraftAccessToken) LogValue() slog.Value { return slog.StringValue("redacted") }

// AccountCredentials holds every cached token of one Microsoft account.
//
// The fields form a dependency chain: AccessToken is derived from Xsts,
// Xsts from Xbl, Xbl from MsaAccess and MsaAccess from MsaRefresh. Each
// field can be re-derived from the one before it, so clearing one never
// requires clearing another.
type AccountCredentials struct {
	MsaRefresh  string           `json:"msaRefresh,omitempty"`
	MsaAccess   *TokenWithExpiry `json:"msaAccess,omitempty"`
	Xbl         *TokenWithExpiry `json:"xbl,omitempty"`
	Xsts        *XstsToken       `json:"xsts,omitempty"`
	AccessToken *TokenWithExpiry `json:"accessToken,omitempty"`
}

// IsEmpty reports whether no credential of any stage is cached.
func (c *AccountCredentials) IsEmpty() bool {
	return c.MsaRefresh == "" && c.MsaAccess == nil && c.Xbl == nil && c.Xsts == nil && c.AccessToken == nil
}

// AuthStage is the position in the credential chain a login resumes from.
type AuthStage int

const (
	StageInitial AuthStage = iota
	StageMsaRefresh
	StageMsaAccess
	StageXboxLive
	StageXboxSecure
	StageAccessToken
)

// StageCount is the number of distinct auth stages.
const StageCount = 6

func (s AuthStage) String() string {
	switch s {
	case StageInitial:
		return "Initial"
	case StageMsaRefresh:
		return "MsaRefresh"
	case StageMsaAccess:
		return "MsaAccess"
	case StageXboxLive:
		return "XboxLive"
	case StageXboxSecure:
		return "XboxSecure"
	case StageAccessToken:
		return "AccessToken"
	default:
		return "Unknown"
	}
}

// StageWithData is an AuthStage carrying the token the stage consumes.
// The concrete types below are the only implementations.
type StageWithData interface {
	Stage() AuthStage
	isStageWithData()
}

type (
	// InitialStage means nothing usable is cached; the browser flow must run.
	InitialStage struct{}

	MsaRefreshStage struct {
		RefreshToken string
	}

	MsaAccessStage struct {
		AccessToken string
	}

	XboxLiveStage struct {
		Token string
	}

	XboxSecureStage struct {
		Xsts     string
		Userhash string
	}

	AccessTokenStage struct {
		AccessToken MinecraftAccessToken
	}
)

func (InitialStage) Stage() AuthStage     { return StageInitial }
func (MsaRefreshStage) Stage() AuthStage  { return StageMsaRefresh }
func (MsaAccessStage) Stage() AuthStage   { return StageMsaAccess }
func (XboxLiveStage) Stage() AuthStage    { return StageXboxLive }
func (XboxSecureStage) Stage() AuthStage  { return StageXboxSecure }
func (AccessTokenStage) Stage() AuthStage { return StageAccessToken }

func (InitialStage) isStageWithData()     {}
func (MsaRefreshStage) isStageWithData()  {}
func (MsaAccessStage) isStageWithData()   {}
func (XboxLiveStage) isStageWithData()    {}
func (XboxSecureStage) isStageWithData()  {}
func (AccessTokenStage) isStageWithData() {}

// Stage returns the most advanced stage whose credential is still valid at
// now. Every more advanced credential inspected before it has expired and is
// dropped, so calling Stage again with the same now returns the same value
// without further changes.
func (c *AccountCredentials) Stage(now time.Time) StageWithData {
	if c.AccessToken.ValidAt(now) {
		return AccessTokenStage{AccessToken: NewMinecraftAccessToken(c.AccessToken.Token)}
	}
	c.AccessToken = nil

	if c.Xsts != nil && c.Xsts.ValidAt(now) {
		return XboxSecureStage{Xsts: c.Xsts.Token, Userhash: c.Xsts.Userhash}
	}
	c.Xsts = nil

	if c.Xbl.ValidAt(now) {
		return XboxLiveStage{Token: c.Xbl.Token}
	}
	c.Xbl = nil

	if c.MsaAccess.ValidAt(now) {
		return MsaAccessStage{AccessToken: c.MsaAccess.Token}
	}
	c.MsaAccess = nil

	// Refresh tokens carry no expiry; the provider tells us when one is dead.
	if c.MsaRefresh != "" {
		return MsaRefreshStage{RefreshToken: c.MsaRefresh}
	}

	return InitialStage{}
}
