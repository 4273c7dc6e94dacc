package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/sifterhq/sifter/internal/models"
	"github.com/sifterhq/sifter/internal/store"
	"github.com/sifterhq/sifter/internal/store/memory"
)

func seedOrgAndUser(t *testing.T) (*memory.OrganizationStore, *memory.UserStore, string, string) {
	t.Helper()
	ctx := context.Background()

	orgs := memory.NewOrganizationStore()
	users := memory.NewUserStore()

	orgKey, err := GenerateAPIKey(models.PrincipalKindOrganization)
	require.NoError(t, err)

	org := &models.Organization{
		OrgID:            uuid.Must(uuid.NewV7()),
		Email:            "org@example.com",
		CredentialDigest: DigestAPIKey(orgKey),
		UserLimit:        5,
		License:          models.LicenseSpamAndPhishing,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	require.NoError(t, orgs.Create(ctx, org))

	userKey, err := GenerateAPIKey(models.PrincipalKindUser)
	require.NoError(t, err)

	user := &models.User{
		UserID:           uuid.Must(uuid.NewV7()),
		OrgID:            org.OrgID,
		Username:         "alice",
		CredentialDigest: DigestAPIKey(userKey),
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	require.NoError(t, users.Create(ctx, user, org.UserLimit))

	return orgs, users, orgKey, userKey
}

func TestResolver_Resolve(t *testing.T) {
	orgs, users, orgKey, userKey := seedOrgAndUser(t)
	resolver := NewResolver(orgs, users)
	ctx := context.Background()

	t.Run("org credential resolves to org principal", func(t *testing.T) {
		p, err := resolver.Resolve(ctx, "Bearer "+orgKey)
		require.NoError(t, err)
		require.Equal(t, models.PrincipalKindOrganization, p.Kind)
		require.NotNil(t, p.Org)
		require.Equal(t, "org@example.com", p.Org.Email)
	})

	t.Run("user credential resolves to user principal", func(t *testing.T) {
		p, err := resolver.Resolve(ctx, "Bearer "+userKey)
		require.NoError(t, err)
		require.Equal(t, models.PrincipalKindUser, p.Kind)
		require.NotNil(t, p.User)
		require.Equal(t, "alice", p.User.Username)
	})

	t.Run("absent header", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "")
		require.ErrorIs(t, err, ErrMissingCredential)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "Basic "+userKey)
		require.ErrorIs(t, err, ErrMissingCredential)
	})

	t.Run("empty token after scheme", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "Bearer   ")
		require.ErrorIs(t, err, ErrMalformedCredential)
	})

	t.Run("unknown prefix", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "Bearer tok_abcdefghij")
		require.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("no matching digest", func(t *testing.T) {
		unknown, err := GenerateAPIKey(models.PrincipalKindUser)
		require.NoError(t, err)

		_, err = resolver.Resolve(ctx, "Bearer "+unknown)
		require.ErrorIs(t, err, ErrInvalidCredential)
	})
}

type failingOrgStore struct {
	store.OrganizationStore
}

func (f *failingOrgStore) GetByCredentialDigest(ctx context.Context, digest string) (*models.Organization, error) {
	return nil, errors.New("connection refused")
}

func TestResolver_StoreUnavailable(t *testing.T) {
	// A transient store failure must surface as 5xx-class, not as a bad
	// credential.
	resolver := NewResolver(&failingOrgStore{}, memory.NewUserStore())

	key, err := GenerateAPIKey(models.PrincipalKindOrganization)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), "Bearer "+key)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.NotErrorIs(t, err, ErrInvalidCredential)
}
