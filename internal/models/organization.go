package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// License is the capability set an organization purchased. The values are
// wire values and must not change without a migration.
type License string

const (
	LicenseSpam            License = "spamDetection"
	LicensePhishing        License = "phishingDetection"
	LicenseSpamAndPhishing License = "spamAndPhishingDetection"
)

// Capability is a single detection an endpoint requires.
type Capability string

const (
	CapabilitySpam     Capability = "spam"
	CapabilityPhishing Capability = "phishing"
	CapabilityBoth     Capability = "both"
)

// ParseLicense validates a license wire value against the closed set.
func ParseLicense(s string) (License, error) {
	switch License(s) {
	case LicenseSpam, LicensePhishing, LicenseSpamAndPhishing:
		return License(s), nil
	default:
		return "", fmt.Errorf("unknown license type %q", s)
	}
}

// Covers reports whether the license includes the given capability.
// The combined endpoint requires the full license, not the union of singles.
func (l License) Covers(c Capability) bool {
	switch c {
	case CapabilitySpam:
		return l == LicenseSpam || l == LicenseSpamAndPhishing
	case CapabilityPhishing:
		return l == LicensePhishing || l == LicenseSpamAndPhishing
	case CapabilityBoth:
		return l == LicenseSpamAndPhishing
	default:
		return false
	}
}

// Organization represents a tenant in the system. Each organization can
// provision up to UserLimit users, which hold their own credentials.
type Organization struct {
	OrgID            uuid.UUID // UUIDv7
	Email            string    // globally unique
	CredentialDigest string    // base58(SHA-256(api key)), never the raw key
	UserLimit        int
	License          License
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
