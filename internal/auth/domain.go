package auth

import (
	"errors"
	"time"

	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

var (
	// ErrInvalidCredentials is returned for unknown, inactive or mismatched logins.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned when a bearer token cannot be trusted.
	ErrInvalidToken = errors.New("invalid token")
)

// User represents an account that may act on purchase orders.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         shared.Role
	PasswordHash string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor converts the user into the identity passed to core services.
func (u User) Actor() shared.CurrentActor {
	return shared.CurrentActor{ID: u.ID, Name: u.Name, Role: u.Role}
}
