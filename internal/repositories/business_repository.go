package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zoner/backend/internal/db"
	"github.com/zoner/backend/internal/models"
)

// BusinessRepository stores business profiles, follower edges and the
// author rankings used by the discovery feed.
type BusinessRepository interface {
	CreateProfile(ctx context.Context, profile models.BusinessProfile, stage models.RegistrationStage) error
	FindByUser(ctx context.Context, userID string) (models.BusinessProfile, error)
	Follow(ctx context.Context, followerID, businessID string, at time.Time) (bool, error)
	Unfollow(ctx context.Context, followerID, businessID string) (bool, error)
	FollowedBusinessIDs(ctx context.Context, followerID string) ([]string, error)
	PopularBusinessIDs(ctx context.Context, exclude string, limit int) ([]string, error)
	SimilarBusinessIDs(ctx context.Context, viewerID string, limit int) ([]string, error)
	RandomBusinessIDs(ctx context.Context, exclude string, limit int) ([]string, error)
}

// PostgresBusinessRepository implements BusinessRepository on PostgreSQL.
type PostgresBusinessRepository struct {
	pool db.Pool
}

var _ BusinessRepository = (*PostgresBusinessRepository)(nil)

// NewPostgresBusinessRepository constructs a business repository backed by PostgreSQL.
func NewPostgresBusinessRepository(pool db.Pool) *PostgresBusinessRepository {
	return &PostgresBusinessRepository{pool: pool}
}

// CreateProfile inserts the profile and promotes its owner to the BUSINESS
// role in one transaction. A second profile for the same user is ErrConflict.
func (r *PostgresBusinessRepository) CreateProfile(ctx context.Context, profile models.BusinessProfile, stage models.RegistrationStage) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO business_profiles (id, user_id, business_name, category, phone_number, description,
                location, country, business_logo, is_verified, terms_accepted_at, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, $10, $11, $11)
        `, profile.ID, profile.UserID, profile.BusinessName, profile.Category, profile.PhoneNumber, profile.Description,
			profile.Location, profile.Country, profile.LogoURL, profile.TermsAcceptedAt.UTC(), profile.CreatedAt.UTC())
		if err != nil {
			return mapError("insert business profile", err)
		}

		tag, err := tx.Exec(ctx, `
            UPDATE users SET role = $2, registration_stage = $3, updated_at = $4 WHERE id = $1
        `, profile.UserID, string(models.RoleBusiness), string(stage), profile.CreatedAt.UTC())
		if err != nil {
			return mapError("promote business owner", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// FindByUser loads the profile owned by userID.
func (r *PostgresBusinessRepository) FindByUser(ctx context.Context, userID string) (models.BusinessProfile, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.BusinessProfile{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var p models.BusinessProfile
	err = conn.QueryRow(ctx, `
        SELECT id, user_id, business_name, category, phone_number, description, location, country,
            business_logo, is_verified, terms_accepted_at, created_at, updated_at
        FROM business_profiles
        WHERE user_id = $1
    `, userID).Scan(&p.ID, &p.UserID, &p.BusinessName, &p.Category, &p.PhoneNumber, &p.Description, &p.Location,
		&p.Country, &p.LogoURL, &p.Verified, &p.TermsAcceptedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return models.BusinessProfile{}, mapError("select business profile", err)
	}
	p.TermsAcceptedAt = p.TermsAcceptedAt.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// Follow records that followerID follows businessID. Following twice is a
// benign false.
func (r *PostgresBusinessRepository) Follow(ctx context.Context, followerID, businessID string, at time.Time) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        INSERT INTO business_followers (follower_id, business_id, created_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (follower_id, business_id) DO NOTHING
    `, followerID, businessID, at.UTC())
	if err != nil {
		return false, mapError("insert follower", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Unfollow removes the follower edge and reports whether it existed.
func (r *PostgresBusinessRepository) Unfollow(ctx context.Context, followerID, businessID string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM business_followers WHERE follower_id = $1 AND business_id = $2
    `, followerID, businessID)
	if err != nil {
		return false, mapError("delete follower", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FollowedBusinessIDs lists the businesses followerID follows, most recent first.
func (r *PostgresBusinessRepository) FollowedBusinessIDs(ctx context.Context, followerID string) ([]string, error) {
	return r.ids(ctx, "select followed businesses", `
        SELECT f.business_id
        FROM business_followers f
        JOIN users u ON u.id = f.business_id
        WHERE f.follower_id = $1 AND u.role = 'BUSINESS' AND u.is_active = TRUE
        ORDER BY f.created_at DESC
    `, followerID)
}

// PopularBusinessIDs ranks business accounts by how many non-deleted
// statuses they have posted.
func (r *PostgresBusinessRepository) PopularBusinessIDs(ctx context.Context, exclude string, limit int) ([]string, error) {
	return r.ids(ctx, "select popular businesses", `
        SELECT u.id
        FROM users u
        JOIN statuses s ON s.user_id = u.id
        WHERE u.role = 'BUSINESS' AND u.id::TEXT <> $1 AND s.deleted = FALSE
        GROUP BY u.id
        ORDER BY COUNT(s.id) DESC, u.id
        LIMIT $2
    `, exclude, limit)
}

// SimilarBusinessIDs returns businesses sharing a category or location with
// the viewer's own business profile. Viewers without a profile get none.
func (r *PostgresBusinessRepository) SimilarBusinessIDs(ctx context.Context, viewerID string, limit int) ([]string, error) {
	return r.ids(ctx, "select similar businesses", `
        SELECT other.user_id
        FROM business_profiles mine
        JOIN business_profiles other
            ON other.user_id <> mine.user_id
            AND (other.category = mine.category OR (mine.location <> '' AND other.location = mine.location))
        JOIN users u ON u.id = other.user_id
        WHERE mine.user_id = $1 AND u.role = 'BUSINESS' AND u.is_active = TRUE
        ORDER BY other.created_at DESC
        LIMIT $2
    `, viewerID, limit)
}

// RandomBusinessIDs samples active business accounts.
func (r *PostgresBusinessRepository) RandomBusinessIDs(ctx context.Context, exclude string, limit int) ([]string, error) {
	return r.ids(ctx, "select random businesses", `
        SELECT id
        FROM users
        WHERE role = 'BUSINESS' AND is_active = TRUE AND id::TEXT <> $1
        ORDER BY random()
        LIMIT $2
    `, exclude, limit)
}

func (r *PostgresBusinessRepository) ids(ctx context.Context, op, sql string, args ...any) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}
