package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sifterhq/sifter/internal/models"
	"github.com/sifterhq/sifter/internal/store"
)

// Authorization failures, both 403-class.
var (
	ErrInsufficientRole      = errors.New("endpoint not allowed for this credential kind")
	ErrCapabilityNotLicensed = errors.New("organization's license doesn't include this capability")
)

// Gate performs the two authorization checks that guard every detection
// endpoint: the role check (users only) and the capability check against the
// owning organization's license. The license is read at call time rather
// than cached on the user, so a license change takes effect immediately.
type Gate struct {
	orgs store.OrganizationStore
}

// NewGate creates an authorization gate backed by the organization store.
func NewGate(orgs store.OrganizationStore) *Gate {
	return &Gate{orgs: orgs}
}

// RequireOrganization authorizes organization-management operations.
// Only an organization principal may provision users or read usage summaries.
func (g *Gate) RequireOrganization(p *models.Principal) (*models.Organization, error) {
	if p == nil || p.Kind != models.PrincipalKindOrganization || p.Org == nil {
		return nil, ErrInsufficientRole
	}
	return p.Org, nil
}

// RequireDetection authorizes a detection endpoint requiring the given
// capability. Returns the authenticated user on success.
func (g *Gate) RequireDetection(ctx context.Context, p *models.Principal, c models.Capability) (*models.User, error) {
	if p == nil || p.Kind != models.PrincipalKindUser || p.User == nil {
		return nil, ErrInsufficientRole
	}

	org, err := g.orgs.Get(ctx, p.User.OrgID)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			// Deny by default: a user without a resolvable org has no license.
			return nil, ErrCapabilityNotLicensed
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	if !org.License.Covers(c) {
		return nil, ErrCapabilityNotLicensed
	}

	return p.User, nil
}
