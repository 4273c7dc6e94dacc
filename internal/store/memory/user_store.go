package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sifterhq/sifter/internal/models"
	"github.com/sifterhq/sifter/internal/store"
)

type userKey struct {
	orgID    uuid.UUID
	username string
}

// UserStore implements store.UserStore using in-memory storage. Usernames
// are keyed per organization. This implementation is for testing and
// development only - data is lost on restart.
type UserStore struct {
	mu sync.RWMutex

	users    map[userKey]*models.User
	byDigest map[string]userKey
	perOrg   map[uuid.UUID]int // user count per org
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:    make(map[userKey]*models.User),
		byDigest: make(map[string]userKey),
		perOrg:   make(map[uuid.UUID]int),
	}
}

// Create creates a new user, enforcing the org's user limit under the same
// lock as the insert.
func (s *UserStore) Create(ctx context.Context, user *models.User, userLimit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey{orgID: user.OrgID, username: user.Username}
	if _, exists := s.users[key]; exists {
		return store.ErrUserAlreadyExists
	}
	if s.perOrg[user.OrgID] >= userLimit {
		return store.ErrUserLimitReached
	}

	clone := *user
	s.users[key] = &clone
	s.byDigest[user.CredentialDigest] = key
	s.perOrg[user.OrgID]++

	return nil
}

// GetByCredentialDigest retrieves a user by credential digest.
func (s *UserStore) GetByCredentialDigest(ctx context.Context, digest string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, exists := s.byDigest[digest]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := *s.users[key]
	return &clone, nil
}

// ListByOrg returns all users of an organization ordered by creation time.
func (s *UserStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.User
	for key, user := range s.users {
		if key.orgID == orgID {
			clone := *user
			result = append(result, &clone)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

// AddUsage atomically increments the counters of (username, orgID).
func (s *UserStore) AddUsage(ctx context.Context, username string, orgID uuid.UUID, delta models.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userKey{orgID: orgID, username: username}]
	if !exists {
		return store.ErrUserNotFound
	}

	user.Usage = user.Usage.Add(delta)
	user.UpdatedAt = time.Now()

	return nil
}
