package auth

import (
	"github.com/google/uuid"

	"github.com/otgil/rethread/internal/models"
)

// Identity is the caller a request was authenticated as.
type Identity struct {
	UserID   uuid.UUID
	Nickname string
	Role     models.Role
}

// IsAdmin reports whether the caller holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

// Resolver maps a bearer credential to an Identity.
type Resolver interface {
	Resolve(credential string) (*Identity, error)
}
