package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/quasar/mcauth/internal/core"
)

// MsaTokens is the result of a Microsoft code or refresh exchange.
type MsaTokens struct {
	Access core.TokenWithExpiry
	// Refresh is empty when the provider did not issue one.
	Refresh string
}

type XboxAuthRequest struct {
	Properties   XboxAuthProperties `json:"Properties"`
	RelyingParty string             `json:"RelyingParty"`
	TokenType    string             `json:"TokenType"`
}

type XboxAuthProperties struct {
	AuthMethod string   `json:"AuthMethod,omitempty"`
	SiteName   string   `json:"SiteName,omitempty"`
	RpsTicket  string   `json:"RpsTicket,omitempty"`
	SandboxId  string   `json:"SandboxId,omitempty"`
	UserTokens []string `json:"UserTokens,omitempty"`
}

type XboxAuthResponse struct {
	IssueInstant  time.Time `json:"IssueInstant"`
	NotAfter      time.Time `json:"NotAfter"`
	Token         string    `json:"Token"`
	DisplayClaims struct {
		XUI []map[string]string `json:"xui"`
	} `json:"DisplayClaims"`
}

type MinecraftAuthRequest struct {
	IdentityToken string `json:"identityToken"`
}

type MinecraftAuthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

const SkinStateActive = "ACTIVE"

type Skin struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	URL     string `json:"url"`
	Variant string `json:"variant"`
}

type Cape struct {
	ID    string `json:"id"`
	State string `json:"state"`
	URL   string `json:"url"`
	Alias string `json:"alias"`
}

type MinecraftProfile struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Skins []Skin    `json:"skins"`
	Capes []Cape    `json:"capes"`
}

// ActiveSkin returns the skin currently worn by the profile.
func (p *MinecraftProfile) ActiveSkin() (Skin, bool) {
	for _, s := range p.Skins {
		if s.State == SkinStateActive {
			return s, true
		}
	}
	return Skin{}, false
}
