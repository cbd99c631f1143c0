package core

import (
	"github.com/google/uuid"
)

// Account is the non-secret record of a Minecraft profile that has signed
// in before. Tokens live in the credential store, never here.
type Account struct {
	ID       uuid.UUID `json:"id"`       // Minecraft profile UUID
	Username string    `json:"username"` // Last seen profile name
	Head     []byte    `json:"head,omitempty"` // 32x32 PNG of the skin face
}
