package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zoner/backend/internal/db"
	"github.com/zoner/backend/internal/models"
)

// StatusRepository persists statuses together with their views, likes and replies.
type StatusRepository interface {
	Create(ctx context.Context, status models.Status) error
	FindByID(ctx context.Context, id string) (models.Status, error)
	ListActiveByAuthor(ctx context.Context, authorID string, now time.Time, limit int) ([]models.Status, error)
	ListActiveByAuthors(ctx context.Context, authorIDs []string, now time.Time) ([]models.Status, error)
	Paginate(ctx context.Context, authorIDs []string, exclude string, now time.Time, page, pageSize int) ([]models.Status, error)
	PaginateRecentBusiness(ctx context.Context, exclude string, now time.Time, page, pageSize int) ([]models.Status, error)
	CountActiveBusiness(ctx context.Context, exclude string, now time.Time) (int, error)
	ViewedIDs(ctx context.Context, viewerID string, authorIDs []string) (map[string]bool, error)
	RecordView(ctx context.Context, statusID, viewerID string, durationMillis int64, at time.Time) (bool, error)
	Like(ctx context.Context, statusID, userID string, at time.Time) (bool, error)
	Unlike(ctx context.Context, statusID, userID string, at time.Time) (bool, error)
	AddReply(ctx context.Context, reply models.StatusReply) (models.StatusReply, error)
	ListReplies(ctx context.Context, statusID string, page, pageSize int) ([]models.StatusReply, error)
	DeleteReply(ctx context.Context, replyID, userID string, at time.Time) (bool, error)
	Version(ctx context.Context, id string) (int64, error)
	UpdateCaption(ctx context.Context, id, userID, caption string, expected int64, at time.Time) (bool, error)
	SoftDelete(ctx context.Context, id, userID string, expected int64, at time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PostgresStatusRepository stores statuses in PostgreSQL.
type PostgresStatusRepository struct {
	pool db.Pool
}

var _ StatusRepository = (*PostgresStatusRepository)(nil)

// NewPostgresStatusRepository constructs a status repository backed by PostgreSQL.
func NewPostgresStatusRepository(pool db.Pool) *PostgresStatusRepository {
	return &PostgresStatusRepository{pool: pool}
}

const statusColumns = `s.id, s.user_id, s.media_url, s.media_type, COALESCE(s.caption, ''), COALESCE(s.blur_hash, ''),
        COALESCE(s.duration_millis, 0), s.view_count, s.like_count, s.reply_count, s.expires_at,
        s.created_at, s.updated_at, s.deleted, s.deleted_at, s.version`

// activeBusinessStatuses joins statuses to their authors and keeps visible
// statuses posted by business accounts. $1 is the instant, $2 the excluded viewer.
const activeBusinessStatuses = `
        FROM statuses s
        JOIN users u ON u.id = s.user_id
        WHERE u.role = 'BUSINESS'
            AND s.user_id::TEXT <> $2
            AND s.deleted = FALSE
            AND s.expires_at > $1`

func scanStatus(row pgx.Row) (models.Status, error) {
	var (
		status    models.Status
		mediaType string
	)
	err := row.Scan(
		&status.ID, &status.UserID, &status.MediaURL, &mediaType, &status.Caption, &status.BlurHash,
		&status.DurationMillis, &status.ViewCount, &status.LikeCount, &status.ReplyCount, &status.ExpiresAt,
		&status.CreatedAt, &status.UpdatedAt, &status.Deleted, &status.DeletedAt, &status.Version,
	)
	if err != nil {
		return models.Status{}, err
	}
	status.MediaType = models.MediaType(mediaType)
	status.ExpiresAt = status.ExpiresAt.UTC()
	status.CreatedAt = status.CreatedAt.UTC()
	status.UpdatedAt = status.UpdatedAt.UTC()
	return status, nil
}

func collectStatuses(rows pgx.Rows) ([]models.Status, error) {
	defer rows.Close()
	var statuses []models.Status
	for rows.Next() {
		status, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		statuses = append(statuses, status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statuses: %w", err)
	}
	return statuses, nil
}

// Create persists a new status.
func (r *PostgresStatusRepository) Create(ctx context.Context, status models.Status) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO statuses (id, user_id, media_url, media_type, caption, blur_hash, duration_millis,
                view_count, like_count, reply_count, expires_at, created_at, updated_at, deleted, version)
            VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, 0), 0, 0, 0, $8, $9, $10, FALSE, $11)
        `, status.ID, status.UserID, status.MediaURL, string(status.MediaType), status.Caption, status.BlurHash,
			status.DurationMillis, status.ExpiresAt.UTC(), status.CreatedAt.UTC(), status.UpdatedAt.UTC(), status.Version)
		return mapError("insert status", err)
	})
}

// FindByID loads a status that has not been soft deleted.
func (r *PostgresStatusRepository) FindByID(ctx context.Context, id string) (models.Status, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Status{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	status, err := scanStatus(conn.QueryRow(ctx, `
        SELECT `+statusColumns+`
        FROM statuses s
        WHERE s.id = $1 AND s.deleted = FALSE
    `, id))
	if err != nil {
		return models.Status{}, mapError("select status", err)
	}
	return status, nil
}

// ListActiveByAuthor returns an author's visible statuses, newest first.
func (r *PostgresStatusRepository) ListActiveByAuthor(ctx context.Context, authorID string, now time.Time, limit int) ([]models.Status, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+statusColumns+`
        FROM statuses s
        WHERE s.user_id = $1 AND s.deleted = FALSE AND s.expires_at > $2
        ORDER BY s.created_at DESC
        LIMIT $3
    `, authorID, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("select author statuses: %w", err)
	}
	return collectStatuses(rows)
}

// ListActiveByAuthors returns the visible statuses of several authors, newest first.
func (r *PostgresStatusRepository) ListActiveByAuthors(ctx context.Context, authorIDs []string, now time.Time) ([]models.Status, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+statusColumns+`
        FROM statuses s
        WHERE s.user_id = ANY($1::UUID[]) AND s.deleted = FALSE AND s.expires_at > $2
        ORDER BY s.created_at DESC
    `, authorIDs, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("select statuses by authors: %w", err)
	}
	return collectStatuses(rows)
}

// Paginate returns one page of visible statuses posted by authorIDs, skipping
// the excluded user. An empty author list yields an empty page without a query.
func (r *PostgresStatusRepository) Paginate(ctx context.Context, authorIDs []string, exclude string, now time.Time, page, pageSize int) ([]models.Status, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+statusColumns+`
        FROM statuses s
        WHERE s.user_id = ANY($3::UUID[])
            AND s.user_id::TEXT <> $2
            AND s.deleted = FALSE
            AND s.expires_at > $1
        ORDER BY s.created_at DESC
        LIMIT $4 OFFSET $5
    `, now.UTC(), exclude, authorIDs, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, fmt.Errorf("paginate statuses: %w", err)
	}
	return collectStatuses(rows)
}

// PaginateRecentBusiness returns one page of the newest visible business statuses.
func (r *PostgresStatusRepository) PaginateRecentBusiness(ctx context.Context, exclude string, now time.Time, page, pageSize int) ([]models.Status, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+statusColumns+activeBusinessStatuses+`
        ORDER BY s.created_at DESC
        LIMIT $3 OFFSET $4
    `, now.UTC(), exclude, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, fmt.Errorf("paginate business statuses: %w", err)
	}
	return collectStatuses(rows)
}

// CountActiveBusiness counts visible business statuses not posted by exclude.
func (r *PostgresStatusRepository) CountActiveBusiness(ctx context.Context, exclude string, now time.Time) (int, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*)`+activeBusinessStatuses, now.UTC(), exclude).Scan(&total); err != nil {
		return 0, fmt.Errorf("count business statuses: %w", err)
	}
	return total, nil
}

// ViewedIDs returns the ids of statuses by authorIDs that viewerID has seen.
func (r *PostgresStatusRepository) ViewedIDs(ctx context.Context, viewerID string, authorIDs []string) (map[string]bool, error) {
	viewed := make(map[string]bool)
	if len(authorIDs) == 0 {
		return viewed, nil
	}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT v.status_id
        FROM status_views v
        JOIN statuses s ON s.id = v.status_id
        WHERE v.viewer_id = $1 AND s.user_id = ANY($2::UUID[])
    `, viewerID, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("select viewed statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan viewed status: %w", err)
		}
		viewed[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate viewed statuses: %w", err)
	}
	return viewed, nil
}

// RecordView stores a view. A repeat view only refreshes the duration and
// timestamp and reports false; a first view bumps view_count and version.
func (r *PostgresStatusRepository) RecordView(ctx context.Context, statusID, viewerID string, durationMillis int64, at time.Time) (bool, error) {
	var inserted bool
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE status_views
            SET view_duration_millis = $3, viewed_at = $4
            WHERE status_id = $1 AND viewer_id = $2
        `, statusID, viewerID, durationMillis, at.UTC())
		if err != nil {
			return mapError("update status view", err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}

		tag, err = tx.Exec(ctx, `
            INSERT INTO status_views (id, status_id, viewer_id, view_duration_millis, viewed_at)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (status_id, viewer_id) DO NOTHING
        `, uuid.NewString(), statusID, viewerID, durationMillis, at.UTC())
		if err != nil {
			return mapError("insert status view", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		if err := bumpCounter(ctx, tx, statusID, "view_count", 1, at); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// Like records a like. A repeated like is a benign false.
func (r *PostgresStatusRepository) Like(ctx context.Context, statusID, userID string, at time.Time) (bool, error) {
	var liked bool
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            INSERT INTO status_likes (id, status_id, user_id, created_at)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (status_id, user_id) DO NOTHING
        `, uuid.NewString(), statusID, userID, at.UTC())
		if err != nil {
			if isUniqueViolation(err) {
				return nil
			}
			return mapError("insert status like", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if err := bumpCounter(ctx, tx, statusID, "like_count", 1, at); err != nil {
			return err
		}
		liked = true
		return nil
	})
	return liked, err
}

// Unlike removes a like and reports whether one existed.
func (r *PostgresStatusRepository) Unlike(ctx context.Context, statusID, userID string, at time.Time) (bool, error) {
	var removed bool
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM status_likes WHERE status_id = $1 AND user_id = $2`, statusID, userID)
		if err != nil {
			return mapError("delete status like", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if err := bumpCounter(ctx, tx, statusID, "like_count", -1, at); err != nil {
			return err
		}
		removed = true
		return nil
	})
	return removed, err
}

// AddReply stores a reply and bumps the parent's reply_count.
func (r *PostgresStatusRepository) AddReply(ctx context.Context, reply models.StatusReply) (models.StatusReply, error) {
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `
            SELECT EXISTS (SELECT 1 FROM statuses WHERE id = $1 AND deleted = FALSE)
        `, reply.StatusID).Scan(&exists); err != nil {
			return mapError("check status", err)
		}
		if !exists {
			return ErrNotFound
		}

		_, err := tx.Exec(ctx, `
            INSERT INTO status_replies (id, status_id, user_id, reply_text, media_url, media_type, created_at, updated_at, deleted, version)
            VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $7, FALSE, 0)
        `, reply.ID, reply.StatusID, reply.UserID, reply.Text, reply.MediaURL, string(reply.MediaType), reply.CreatedAt.UTC())
		if err != nil {
			return mapError("insert status reply", err)
		}
		return bumpCounter(ctx, tx, reply.StatusID, "reply_count", 1, reply.CreatedAt)
	})
	if err != nil {
		return models.StatusReply{}, err
	}
	reply.CreatedAt = reply.CreatedAt.UTC()
	reply.UpdatedAt = reply.CreatedAt
	return reply, nil
}

// ListReplies returns a page of live replies, oldest first.
func (r *PostgresStatusRepository) ListReplies(ctx context.Context, statusID string, page, pageSize int) ([]models.StatusReply, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, status_id, user_id, reply_text, COALESCE(media_url, ''), COALESCE(media_type, ''),
            created_at, updated_at, deleted, deleted_at, version
        FROM status_replies
        WHERE status_id = $1 AND deleted = FALSE
        ORDER BY created_at ASC, id ASC
        LIMIT $2 OFFSET $3
    `, statusID, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, fmt.Errorf("select status replies: %w", err)
	}
	defer rows.Close()

	var replies []models.StatusReply
	for rows.Next() {
		var (
			reply     models.StatusReply
			mediaType string
		)
		if err := rows.Scan(&reply.ID, &reply.StatusID, &reply.UserID, &reply.Text, &reply.MediaURL, &mediaType,
			&reply.CreatedAt, &reply.UpdatedAt, &reply.Deleted, &reply.DeletedAt, &reply.Version); err != nil {
			return nil, fmt.Errorf("scan status reply: %w", err)
		}
		reply.MediaType = models.MediaType(mediaType)
		reply.CreatedAt = reply.CreatedAt.UTC()
		reply.UpdatedAt = reply.UpdatedAt.UTC()
		replies = append(replies, reply)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status replies: %w", err)
	}
	return replies, nil
}

// DeleteReply soft deletes a reply owned by userID and decrements the
// parent's reply_count.
func (r *PostgresStatusRepository) DeleteReply(ctx context.Context, replyID, userID string, at time.Time) (bool, error) {
	var deleted bool
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var statusID string
		err := tx.QueryRow(ctx, `
            UPDATE status_replies
            SET deleted = TRUE, deleted_at = $3, updated_at = $3, version = version + 1
            WHERE id = $1 AND user_id = $2 AND deleted = FALSE
            RETURNING status_id
        `, replyID, userID, at.UTC()).Scan(&statusID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return mapError("delete status reply", err)
		}
		if err := bumpCounter(ctx, tx, statusID, "reply_count", -1, at); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// Version returns the current version of a status, deleted or not.
func (r *PostgresStatusRepository) Version(ctx context.Context, id string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var version int64
	if err := conn.QueryRow(ctx, `SELECT version FROM statuses WHERE id = $1`, id).Scan(&version); err != nil {
		return 0, mapError("select status version", err)
	}
	return version, nil
}

// UpdateCaption replaces the caption when the row is still at expected.
func (r *PostgresStatusRepository) UpdateCaption(ctx context.Context, id, userID, caption string, expected int64, at time.Time) (bool, error) {
	var updated bool
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE statuses
            SET caption = NULLIF($4, ''), version = $3 + 1, updated_at = $5
            WHERE id = $1 AND user_id = $2 AND version = $3 AND deleted = FALSE
        `, id, userID, expected, caption, at.UTC())
		if err != nil {
			return mapError("update status caption", err)
		}
		updated = tag.RowsAffected() > 0
		return nil
	})
	return updated, err
}

// SoftDelete marks the status deleted when the row is still at expected.
func (r *PostgresStatusRepository) SoftDelete(ctx context.Context, id, userID string, expected int64, at time.Time) (bool, error) {
	var deleted bool
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE statuses
            SET deleted = TRUE, deleted_at = $4, version = $3 + 1, updated_at = $4
            WHERE id = $1 AND user_id = $2 AND version = $3 AND deleted = FALSE
        `, id, userID, expected, at.UTC())
		if err != nil {
			return mapError("soft delete status", err)
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	return deleted, err
}

// DeleteExpired hard deletes expired statuses. Soft-deleted rows stay
// readable by id for models.DeletedStatusRetention after deletion before
// they are swept too. Views, likes and replies go with them through
// ON DELETE CASCADE.
func (r *PostgresStatusRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            DELETE FROM statuses
            WHERE expires_at < $1 AND (deleted = FALSE OR deleted_at IS NULL OR deleted_at < $2)
        `, now.UTC(), now.Add(-models.DeletedStatusRetention).UTC())
		if err != nil {
			return fmt.Errorf("delete expired statuses: %w", err)
		}
		removed = tag.RowsAffected()
		return nil
	})
	return removed, err
}

// bumpCounter adjusts one of the denormalised counters and the row version.
// column is always a literal chosen by this package.
func bumpCounter(ctx context.Context, tx pgx.Tx, statusID, column string, delta int, at time.Time) error {
	_, err := tx.Exec(ctx, `
        UPDATE statuses
        SET `+column+` = GREATEST(`+column+` + $2, 0), version = version + 1, updated_at = $3
        WHERE id = $1
    `, statusID, delta, at.UTC())
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	return nil
}
