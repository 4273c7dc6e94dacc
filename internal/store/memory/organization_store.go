package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sifterhq/sifter/internal/models"
	"github.com/sifterhq/sifter/internal/store"
)

// OrganizationStore implements store.OrganizationStore using in-memory
// storage. This implementation is for testing and development only - data is
// lost on restart.
type OrganizationStore struct {
	mu sync.RWMutex

	organizations map[uuid.UUID]*models.Organization // org_id -> Organization
	byEmail       map[string]uuid.UUID               // unique email index
	byDigest      map[string]uuid.UUID               // credential digest index
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{
		organizations: make(map[uuid.UUID]*models.Organization),
		byEmail:       make(map[string]uuid.UUID),
		byDigest:      make(map[string]uuid.UUID),
	}
}

// Create creates a new organization in memory.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[org.Email]; exists {
		return store.ErrOrganizationAlreadyExists
	}
	if _, exists := s.organizations[org.OrgID]; exists {
		return store.ErrOrganizationAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *org
	s.organizations[org.OrgID] = &clone
	s.byEmail[org.Email] = org.OrgID
	s.byDigest[org.CredentialDigest] = org.OrgID

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *org
	return &clone, nil
}

// GetByCredentialDigest retrieves an organization by credential digest.
func (s *OrganizationStore) GetByCredentialDigest(ctx context.Context, digest string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orgID, exists := s.byDigest[digest]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *s.organizations[orgID]
	return &clone, nil
}
