package repositories

import (
	"context"
	"fmt"

	"github.com/zoner/backend/internal/db"
	"github.com/zoner/backend/internal/models"
)

// VerificationRepository stores hashed one-time codes. Each user holds at
// most one code per purpose.
type VerificationRepository interface {
	Upsert(ctx context.Context, code models.VerificationCode) error
	Find(ctx context.Context, userID string, purpose models.CodePurpose) (models.VerificationCode, error)
	MarkUsed(ctx context.Context, id string) error
}

// PostgresVerificationRepository implements VerificationRepository on PostgreSQL.
type PostgresVerificationRepository struct {
	pool db.Pool
}

var _ VerificationRepository = (*PostgresVerificationRepository)(nil)

// NewPostgresVerificationRepository constructs a verification code repository.
func NewPostgresVerificationRepository(pool db.Pool) *PostgresVerificationRepository {
	return &PostgresVerificationRepository{pool: pool}
}

// Upsert stores code, replacing any previous code for the same user and purpose.
func (r *PostgresVerificationRepository) Upsert(ctx context.Context, code models.VerificationCode) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO verification_codes (id, user_id, purpose, code_hash, expires_at, used, created_at)
        VALUES ($1, $2, $3, $4, $5, FALSE, $6)
        ON CONFLICT (user_id, purpose)
        DO UPDATE SET id = EXCLUDED.id, code_hash = EXCLUDED.code_hash, expires_at = EXCLUDED.expires_at,
            used = FALSE, created_at = EXCLUDED.created_at
    `, code.ID, code.UserID, string(code.Purpose), code.CodeHash, code.ExpiresAt.UTC(), code.CreatedAt.UTC())
	return mapError("upsert verification code", err)
}

// Find loads the current code for a user and purpose.
func (r *PostgresVerificationRepository) Find(ctx context.Context, userID string, purpose models.CodePurpose) (models.VerificationCode, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.VerificationCode{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var (
		code models.VerificationCode
		p    string
	)
	err = conn.QueryRow(ctx, `
        SELECT id, user_id, purpose, code_hash, expires_at, used, created_at
        FROM verification_codes
        WHERE user_id = $1 AND purpose = $2
    `, userID, string(purpose)).Scan(&code.ID, &code.UserID, &p, &code.CodeHash, &code.ExpiresAt, &code.Used, &code.CreatedAt)
	if err != nil {
		return models.VerificationCode{}, mapError("select verification code", err)
	}
	code.Purpose = models.CodePurpose(p)
	code.ExpiresAt = code.ExpiresAt.UTC()
	code.CreatedAt = code.CreatedAt.UTC()
	return code, nil
}

// MarkUsed consumes a code. A code that was already used is ErrNotFound.
func (r *PostgresVerificationRepository) MarkUsed(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `UPDATE verification_codes SET used = TRUE WHERE id = $1 AND used = FALSE`, id)
	if err != nil {
		return mapError("mark verification code used", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
