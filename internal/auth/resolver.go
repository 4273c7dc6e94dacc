package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sifterhq/sifter/internal/models"
	"github.com/sifterhq/sifter/internal/store"
)

// Credential resolution failures. The 401-class errors (missing, malformed,
// invalid) are deliberately distinct from ErrStoreUnavailable, which is a
// 5xx-class outcome: a flaky database must never look like a bad credential.
var (
	ErrMissingCredential   = errors.New("missing or malformed authorization header")
	ErrMalformedCredential = errors.New("empty bearer token")
	ErrInvalidCredential   = errors.New("invalid api key")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)

const bearerScheme = "Bearer "

// Resolver turns an opaque Authorization header value into an authenticated
// Principal by digesting the presented key and looking up the digest.
type Resolver struct {
	orgs  store.OrganizationStore
	users store.UserStore
}

// NewResolver creates a credential resolver backed by the given stores.
func NewResolver(orgs store.OrganizationStore, users store.UserStore) *Resolver {
	return &Resolver{
		orgs:  orgs,
		users: users,
	}
}

// Resolve authenticates the caller from the raw Authorization header value.
// The raw key is digested immediately and never retained, logged or echoed.
func (r *Resolver) Resolve(ctx context.Context, authorization string) (*models.Principal, error) {
	if authorization == "" || !strings.HasPrefix(authorization, bearerScheme) {
		return nil, ErrMissingCredential
	}

	rawKey := strings.TrimSpace(strings.TrimPrefix(authorization, bearerScheme))
	if rawKey == "" {
		return nil, ErrMalformedCredential
	}

	kind, ok := keyKind(rawKey)
	if !ok {
		return nil, ErrInvalidCredential
	}

	digest := DigestAPIKey(rawKey)

	switch kind {
	case models.PrincipalKindOrganization:
		org, err := r.orgs.GetByCredentialDigest(ctx, digest)
		if err != nil {
			if errors.Is(err, store.ErrOrganizationNotFound) {
				return nil, ErrInvalidCredential
			}
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		return models.OrgPrincipal(org), nil

	case models.PrincipalKindUser:
		user, err := r.users.GetByCredentialDigest(ctx, digest)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				return nil, ErrInvalidCredential
			}
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		return models.UserPrincipal(user), nil
	}

	return nil, ErrInvalidCredential
}
