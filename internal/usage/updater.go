// Package usage turns detection aggregates into durable per-user counters
// that billing and limits depend on.
package usage

import (
	"context"
	"errors"
	"fmt"

	"github.com/sifterhq/sifter/internal/detect"
	"github.com/sifterhq/sifter/internal/models"
	"github.com/sifterhq/sifter/internal/store"
)

// ErrCounterConflict is returned when the counter update matched no user
// record: the row vanished or the addressing predicate no longer holds.
var ErrCounterConflict = errors.New("failed to update usage counters for user")

// Updater persists usage deltas after a detection batch completes. It is the
// only writer of the counter fields.
type Updater struct {
	users store.UserStore
}

// NewUpdater creates an updater backed by the user store.
func NewUpdater(users store.UserStore) *Updater {
	return &Updater{users: users}
}

// DeltaFor computes counter deltas from the successful outcomes of a batch.
// Failed sub-tasks never increment anything.
func DeltaFor(agg detect.Aggregate) models.Usage {
	var delta models.Usage

	if agg.Text != nil {
		delta.SpamRequests++
		if agg.Text.Positive {
			delta.SpamPositives++
		}
	}

	for _, res := range agg.URLs {
		if res.Outcome == nil {
			continue
		}
		delta.PhishingRequests++
		if res.Outcome.Positive {
			delta.PhishingPositives++
		}
	}

	return delta
}

// Record persists the deltas for one batch via a single atomic
// increment-by-delta addressed by (username, orgID).
func (u *Updater) Record(ctx context.Context, user *models.User, agg detect.Aggregate) error {
	delta := DeltaFor(agg)
	if delta.IsZero() {
		return nil
	}

	err := u.users.AddUsage(ctx, user.Username, user.OrgID, delta)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return ErrCounterConflict
		}
		return fmt.Errorf("failed to record usage: %w", err)
	}

	return nil
}
