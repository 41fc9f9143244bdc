package users

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// User is an operator account that owns invoices and inventory.
type User struct {
	ID         uuid.UUID
	Email      string
	Name       string
	APIKeyHash string
	CreatedAt  time.Time
}

// MailToken tracks whether a user's mailbox access is still valid.
// Token issuance and renewal happen outside this service; only expiry
// housekeeping lives here.
type MailToken struct {
	UserID    uuid.UUID
	ExpiresAt time.Time
	UpdatedAt time.Time
}

// ErrUserNotFound indicates no user matches the lookup.
var ErrUserNotFound = errors.New("users: user not found")
