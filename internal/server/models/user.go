// Package models holds the row types shared by repositories and services.
package models

import (
	"time"

	"github.com/aformulationoftruth/server/internal/cryptox"
)

// Roles a user can hold. Authorization decisions re-read the stored role,
// never a value cached in a session credential.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an identity record. The email address is stored encrypted; the
// deterministic EmailHash of the normalized address is the lookup key.
// Users are never hard-deleted, historical responses reference them.
type User struct {
	ID          string
	EmailHash   []byte
	Email       *cryptox.EncryptedField
	DisplayName string
	Role        string
	Locale      string
	Timezone    string
	CreatedAt   time.Time
}
