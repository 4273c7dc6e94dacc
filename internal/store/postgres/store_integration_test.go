//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/sifterhq/sifter/internal/models"
	"github.com/sifterhq/sifter/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*OrganizationStore, *UserStore, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := NewPool(ctx, &PoolConfig{ConnString: connString})
	require.NoError(t, err)

	err = RunMigrations(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return NewOrganizationStore(pool), NewUserStore(pool), cleanup
}

func testOrg(email string) *models.Organization {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Organization{
		OrgID:            uuid.Must(uuid.NewV7()),
		Email:            email,
		CredentialDigest: "digest-" + email,
		UserLimit:        3,
		License:          models.LicenseSpamAndPhishing,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func testUser(orgID uuid.UUID, username string) *models.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.User{
		UserID:           uuid.Must(uuid.NewV7()),
		OrgID:            orgID,
		Username:         username,
		CredentialDigest: "digest-" + username + "-" + orgID.String(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestPostgresOrganizationStore(t *testing.T) {
	ctx := context.Background()
	orgs, _, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	t.Run("create and lookup by digest", func(t *testing.T) {
		org := testOrg("a@example.com")
		require.NoError(t, orgs.Create(ctx, org))

		got, err := orgs.GetByCredentialDigest(ctx, org.CredentialDigest)
		require.NoError(t, err)
		require.Equal(t, org.OrgID, got.OrgID)
		require.Equal(t, org.License, got.License)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		first := testOrg("dup@example.com")
		require.NoError(t, orgs.Create(ctx, first))

		second := testOrg("dup@example.com")
		err := orgs.Create(ctx, second)
		require.ErrorIs(t, err, store.ErrOrganizationAlreadyExists)
	})

	t.Run("unknown digest not found", func(t *testing.T) {
		_, err := orgs.GetByCredentialDigest(ctx, "nope")
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	})
}

func TestPostgresUserStore(t *testing.T) {
	ctx := context.Background()
	orgs, users, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	org := testOrg("users@example.com")
	require.NoError(t, orgs.Create(ctx, org))

	t.Run("limit-th user succeeds, limit+1 conflicts", func(t *testing.T) {
		for i := range org.UserLimit {
			err := users.Create(ctx, testUser(org.OrgID, fmt.Sprintf("user-%d", i)), org.UserLimit)
			require.NoError(t, err)
		}

		err := users.Create(ctx, testUser(org.OrgID, "one-too-many"), org.UserLimit)
		require.ErrorIs(t, err, store.ErrUserLimitReached)
	})

	t.Run("list preserves creation order", func(t *testing.T) {
		got, err := users.ListByOrg(ctx, org.OrgID)
		require.NoError(t, err)
		require.Len(t, got, org.UserLimit)
		for i, u := range got {
			require.Equal(t, fmt.Sprintf("user-%d", i), u.Username)
		}
	})

	t.Run("missing org is referential integrity error", func(t *testing.T) {
		err := users.Create(ctx, testUser(uuid.Must(uuid.NewV7()), "orphan"), 5)
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	})

	t.Run("concurrent AddUsage is exact", func(t *testing.T) {
		const workers = 20

		var wg sync.WaitGroup
		wg.Add(workers)
		for range workers {
			go func() {
				defer wg.Done()
				err := users.AddUsage(ctx, "user-0", org.OrgID, models.Usage{
					SpamRequests:  1,
					SpamPositives: 1,
				})
				require.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := users.ListByOrg(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, int64(workers), got[0].Usage.SpamRequests)
		require.Equal(t, int64(workers), got[0].Usage.SpamPositives)
	})

	t.Run("AddUsage on vanished user conflicts", func(t *testing.T) {
		err := users.AddUsage(ctx, "ghost", org.OrgID, models.Usage{SpamRequests: 1})
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})
}
