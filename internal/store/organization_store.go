package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sifterhq/sifter/internal/models"
)

// Sentinel errors for organization store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization email already registered")
)

// OrganizationStore defines the interface for organization storage operations.
// Organizations are the tenants of the system; each one owns its users.
type OrganizationStore interface {
	// Create creates a new organization.
	// Returns ErrOrganizationAlreadyExists if the email is already registered.
	Create(ctx context.Context, org *models.Organization) error

	// Get retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// GetByCredentialDigest retrieves an organization by the digest of its
	// API key. Returns ErrOrganizationNotFound when no digest matches.
	GetByCredentialDigest(ctx context.Context, digest string) (*models.Organization, error)
}
