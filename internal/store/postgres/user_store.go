package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/sifterhq/sifter/internal/models"
	"github.com/sifterhq/sifter/internal/store"
)

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new PostgreSQL-backed user store.
// It shares the connection pool with the organization store.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{
		pool: pool,
	}
}

// Create creates a new user, enforcing the organization's user limit. The
// owning org row is locked for the duration of the transaction so concurrent
// provisioning for the same org serializes and cannot overshoot the limit.
func (s *UserStore) Create(ctx context.Context, user *models.User, userLimit int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var orgID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT org_id FROM organizations WHERE org_id = $1 FOR UPDATE`,
		user.OrgID,
	).Scan(&orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to lock organization: %w", mapPostgresError(err))
	}

	var count int
	err = tx.QueryRow(ctx,
		`SELECT count(*) FROM users WHERE org_id = $1`,
		user.OrgID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", mapPostgresError(err))
	}

	if count >= userLimit {
		return store.ErrUserLimitReached
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO users (
			user_id, org_id, username, credential_digest,
			spam_requests, phishing_requests, spam_positives, phishing_positives,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`,
		user.UserID,
		user.OrgID,
		user.Username,
		user.CredentialDigest,
		user.Usage.SpamRequests,
		user.Usage.PhishingRequests,
		user.Usage.SpamPositives,
		user.Usage.PhishingPositives,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "users_org_id_username_key") {
			return store.ErrUserAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return store.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to create user: %w", mapPostgresError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit user creation: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("user_id", user.UserID.String()).
		Str("org_id", user.OrgID.String()).
		Str("username", user.Username).
		Msg("Created user")

	return nil
}

// GetByCredentialDigest retrieves a user by credential digest.
func (s *UserStore) GetByCredentialDigest(ctx context.Context, digest string) (*models.User, error) {
	query := `
		SELECT user_id, org_id, username, credential_digest,
			spam_requests, phishing_requests, spam_positives, phishing_positives,
			created_at, updated_at
		FROM users
		WHERE credential_digest = $1
	`

	var u models.User
	err := s.pool.QueryRow(ctx, query, digest).Scan(
		&u.UserID,
		&u.OrgID,
		&u.Username,
		&u.CredentialDigest,
		&u.Usage.SpamRequests,
		&u.Usage.PhishingRequests,
		&u.Usage.SpamPositives,
		&u.Usage.PhishingPositives,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", mapPostgresError(err))
	}

	return &u, nil
}

// ListByOrg returns all users of an organization ordered by creation time.
func (s *UserStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.User, error) {
	query := `
		SELECT user_id, org_id, username, credential_digest,
			spam_requests, phishing_requests, spam_positives, phishing_positives,
			created_at, updated_at
		FROM users
		WHERE org_id = $1
		ORDER BY created_at
	`

	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		err := rows.Scan(
			&u.UserID,
			&u.OrgID,
			&u.Username,
			&u.CredentialDigest,
			&u.Usage.SpamRequests,
			&u.Usage.PhishingRequests,
			&u.Usage.SpamPositives,
			&u.Usage.PhishingPositives,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", mapPostgresError(err))
	}

	return users, nil
}

// AddUsage atomically increments the counters of (username, orgID) with a
// single increment-by-delta UPDATE. There is no read-modify-write cycle, so
// concurrent requests from the same user cannot lose updates.
func (s *UserStore) AddUsage(ctx context.Context, username string, orgID uuid.UUID, delta models.Usage) error {
	query := `
		UPDATE users SET
			spam_requests = spam_requests + $3,
			phishing_requests = phishing_requests + $4,
			spam_positives = spam_positives + $5,
			phishing_positives = phishing_positives + $6,
			updated_at = now()
		WHERE username = $1 AND org_id = $2
	`

	tag, err := s.pool.Exec(ctx, query,
		username,
		orgID,
		delta.SpamRequests,
		delta.PhishingRequests,
		delta.SpamPositives,
		delta.PhishingPositives,
	)
	if err != nil {
		return fmt.Errorf("failed to update usage counters: %w", mapPostgresError(err))
	}

	if tag.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}

	return nil
}
