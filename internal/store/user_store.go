package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sifterhq/sifter/internal/models"
)

// Sentinel errors for user store operations
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("username already exists in organization")
	ErrUserLimitReached  = errors.New("organization user limit reached")
)

// UserStore defines the interface for user storage operations.
// Usernames are unique per organization; the addressing key for updates is
// (username, orgID).
type UserStore interface {
	// Create creates a new user, enforcing the owning organization's user
	// limit at creation time. The limit check and the insert are a single
	// atomic operation so concurrent provisioning cannot overshoot the limit.
	// Returns ErrUserAlreadyExists on a duplicate username within the org,
	// ErrUserLimitReached when the org already has userLimit users.
	Create(ctx context.Context, user *models.User, userLimit int) error

	// GetByCredentialDigest retrieves a user by the digest of its API key.
	// Returns ErrUserNotFound when no digest matches.
	GetByCredentialDigest(ctx context.Context, digest string) (*models.User, error)

	// ListByOrg returns all users belonging to an organization, ordered by
	// creation time.
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.User, error)

	// AddUsage atomically increments the usage counters of the user
	// addressed by (username, orgID) by the given deltas. This is an
	// increment-by-delta, not a snapshot write, so concurrent requests from
	// the same user never lose updates.
	// Returns ErrUserNotFound if no user matches the address.
	AddUsage(ctx context.Context, username string, orgID uuid.UUID, delta models.Usage) error
}
