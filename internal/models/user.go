package models

import (
	"time"

	"github.com/google/uuid"
)

// Usage holds the per-user classification counters. The counters are only
// ever mutated through the store's atomic increment operation.
type Usage struct {
	SpamRequests      int64
	PhishingRequests  int64
	SpamPositives     int64
	PhishingPositives int64
}

// Add returns the element-wise sum of two usage snapshots.
func (u Usage) Add(d Usage) Usage {
	return Usage{
		SpamRequests:      u.SpamRequests + d.SpamRequests,
		PhishingRequests:  u.PhishingRequests + d.PhishingRequests,
		SpamPositives:     u.SpamPositives + d.SpamPositives,
		PhishingPositives: u.PhishingPositives + d.PhishingPositives,
	}
}

// IsZero reports whether no counter would change.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// User represents a sub-credential provisioned by an organization.
// Usernames are unique within their organization, not globally.
type User struct {
	UserID           uuid.UUID // UUIDv7
	OrgID            uuid.UUID // FK to organizations
	Username         string
	CredentialDigest string // base58(SHA-256(api key)), never the raw key
	Usage            Usage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
