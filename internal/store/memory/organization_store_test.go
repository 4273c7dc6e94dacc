package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/sifterhq/sifter/internal/models"
	"github.com/sifterhq/sifter/internal/store"
)

func newTestOrg(email string) *models.Organization {
	return &models.Organization{
		OrgID:            uuid.Must(uuid.NewV7()),
		Email:            email,
		CredentialDigest: "digest-" + email,
		UserLimit:        5,
		License:          models.LicenseSpamAndPhishing,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
}

func TestMemoryOrganizationStore_Create(t *testing.T) {
	t.Run("create new organization", func(t *testing.T) {
		st := NewOrganizationStore()
		ctx := context.Background()

		err := st.Create(ctx, newTestOrg("a@example.com"))
		require.NoError(t, err)
	})

	t.Run("duplicate email returns error", func(t *testing.T) {
		st := NewOrganizationStore()
		ctx := context.Background()

		err := st.Create(ctx, newTestOrg("a@example.com"))
		require.NoError(t, err)

		err = st.Create(ctx, newTestOrg("a@example.com"))
		require.ErrorIs(t, err, store.ErrOrganizationAlreadyExists)
	})
}

func TestMemoryOrganizationStore_Get(t *testing.T) {
	st := NewOrganizationStore()
	ctx := context.Background()

	org := newTestOrg("a@example.com")
	require.NoError(t, st.Create(ctx, org))

	t.Run("found", func(t *testing.T) {
		got, err := st.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, org.Email, got.Email)
		require.Equal(t, org.License, got.License)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := st.Get(ctx, uuid.Must(uuid.NewV7()))
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		got, err := st.Get(ctx, org.OrgID)
		require.NoError(t, err)
		got.Email = "mutated@example.com"

		again, err := st.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, org.Email, again.Email)
	})
}

func TestMemoryOrganizationStore_GetByCredentialDigest(t *testing.T) {
	st := NewOrganizationStore()
	ctx := context.Background()

	org := newTestOrg("a@example.com")
	require.NoError(t, st.Create(ctx, org))

	got, err := st.GetByCredentialDigest(ctx, org.CredentialDigest)
	require.NoError(t, err)
	require.Equal(t, org.OrgID, got.OrgID)

	_, err = st.GetByCredentialDigest(ctx, "no-such-digest")
	require.ErrorIs(t, err, store.ErrOrganizationNotFound)
}
