package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zoner/backend/internal/db"
	"github.com/zoner/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

var _ UserRepository = (*PostgresUserRepository)(nil)

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

const userColumns = `id, email, name, auth_provider, password_hash, COALESCE(username, ''), profile_pic_url,
        is_email_verified, email_verified_at, registration_stage, role, is_active, is_banned,
        fcm_token, created_at, updated_at, last_login_at`

func scanUser(row pgx.Row) (models.User, error) {
	var (
		user     models.User
		provider string
		stage    string
		role     string
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &provider, &user.Password, &user.Username, &user.ProfilePicURL,
		&user.EmailVerified, &user.EmailVerifiedAt, &stage, &role, &user.Active, &user.Banned,
		&user.FCMToken, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt,
	)
	if err != nil {
		return models.User{}, err
	}
	user.AuthProvider = models.AuthProvider(provider)
	user.RegistrationStage = models.RegistrationStage(stage)
	user.Role = models.Role(role)
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, email, name, auth_provider, password_hash, username, profile_pic_url,
            is_email_verified, email_verified_at, registration_stage, role, is_active, is_banned,
            fcm_token, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
    `, user.ID, strings.ToLower(user.Email), user.Name, string(user.AuthProvider), user.Password, user.Username,
		user.ProfilePicURL, user.EmailVerified, user.EmailVerifiedAt, string(user.RegistrationStage), string(user.Role),
		user.Active, user.Banned, user.FCMToken, user.CreatedAt, user.UpdatedAt)
	return mapError("insert user", err)
}

// FindByID fetches a user by primary key.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	user, err := scanUser(conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return models.User{}, mapError("select user by id", err)
	}
	return user, nil
}

// FindByEmail fetches a user by their email address, ignoring case.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	user, err := scanUser(conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
	if err != nil {
		return models.User{}, mapError("select user by email", err)
	}
	return user, nil
}

// Update rewrites the mutable columns of a user.
func (r *PostgresUserRepository) Update(ctx context.Context, user models.User) error {
	return r.exec(ctx, "update user", `
        UPDATE users
        SET name = $2, username = NULLIF($3, ''), profile_pic_url = $4, registration_stage = $5,
            role = $6, is_active = $7, is_banned = $8, updated_at = $9
        WHERE id = $1
    `, user.ID, user.Name, user.Username, user.ProfilePicURL, string(user.RegistrationStage),
		string(user.Role), user.Active, user.Banned, user.UpdatedAt)
}

// MarkEmailVerified flags the email as verified and advances the stage.
func (r *PostgresUserRepository) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "verify user email", `
        UPDATE users
        SET is_email_verified = TRUE, email_verified_at = $2, registration_stage = $3, updated_at = $2
        WHERE id = $1
    `, id, at, string(models.StageEmailVerified))
}

// UpdatePassword stores a new password hash.
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	return r.exec(ctx, "update password", `
        UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1
    `, id, passwordHash, at)
}

// UpdateFCMToken replaces the device token used for push notifications.
func (r *PostgresUserRepository) UpdateFCMToken(ctx context.Context, id, token string, at time.Time) error {
	return r.exec(ctx, "update fcm token", `
        UPDATE users SET fcm_token = $2, updated_at = $3 WHERE id = $1
    `, id, token, at)
}

// RecordLogin stamps last_login_at.
func (r *PostgresUserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "record login", `
        UPDATE users SET last_login_at = $2 WHERE id = $1
    `, id, at)
}

// UsernameTaken reports whether another user already holds username.
func (r *PostgresUserRepository) UsernameTaken(ctx context.Context, username, exceptUserID string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var taken bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM users WHERE username = $1 AND id::TEXT <> $2
        )
    `, username, exceptUserID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return taken, nil
}

// TakenUsernames returns the subset of candidates already held by a user.
func (r *PostgresUserRepository) TakenUsernames(ctx context.Context, candidates []string) (map[string]bool, error) {
	taken := make(map[string]bool)
	if len(candidates) == 0 {
		return taken, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT username FROM users WHERE username = ANY($1::TEXT[])`, candidates)
	if err != nil {
		return nil, fmt.Errorf("query taken usernames: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect taken usernames: %w", err)
	}
	for _, name := range names {
		taken[name] = true
	}
	return taken, nil
}

// BasicInfo returns the public projection for each existing id.
func (r *PostgresUserRepository) BasicInfo(ctx context.Context, ids []string) ([]models.UserBasicInfo, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, name, profile_pic_url FROM users WHERE id = ANY($1::UUID[])
    `, ids)
	if err != nil {
		return nil, fmt.Errorf("query user basic info: %w", err)
	}
	defer rows.Close()

	var infos []models.UserBasicInfo
	for rows.Next() {
		var info models.UserBasicInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.ProfilePicURL); err != nil {
			return nil, fmt.Errorf("scan user basic info: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user basic info: %w", err)
	}
	return infos, nil
}

func (r *PostgresUserRepository) exec(ctx context.Context, op, sql string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return mapError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
