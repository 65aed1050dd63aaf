package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sealchat/backend/internal/db"
	"github.com/sealchat/backend/internal/models"
)

// SessionRepository defines data access for device sessions.
type SessionRepository interface {
	// CreateWithLimit inserts the session unless the user already has
	// maxActive non-revoked sessions; the count and insert run in one
	// transaction so concurrent logins cannot overshoot the limit.
	CreateWithLimit(ctx context.Context, session models.Session, maxActive int) error
	FindByAccessTokenHash(ctx context.Context, hash string) (models.Session, error)
	// Rotate atomically swaps the token pair keyed by the old refresh
	// token. Exactly one of two racing calls can win; the loser gets
	// ErrNotFound.
	Rotate(ctx context.Context, oldRefreshToken, accessTokenHash, refreshToken, ipAddress string, now time.Time) (models.Session, error)
	Revoke(ctx context.Context, userID, sessionID string) error
	RevokeAll(ctx context.Context, userID, exceptSessionID string) error
	ListActive(ctx context.Context, userID string) ([]models.Session, error)
}

// PostgresSessionRepository persists device sessions to PostgreSQL.
type PostgresSessionRepository struct {
	pool db.Pool
}

// NewPostgresSessionRepository constructs a session repository backed by PostgreSQL.
func NewPostgresSessionRepository(pool db.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

// CreateWithLimit inserts a new session if the user is under the active-session cap.
func (r *PostgresSessionRepository) CreateWithLimit(ctx context.Context, session models.Session, maxActive int) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	err = crdbpgx.ExecuteTx(ctx, conn, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		var active int
		if err := tx.QueryRow(ctx, `
            SELECT COUNT(*) FROM sessions
            WHERE user_id = $1 AND NOT revoked
        `, session.UserID).Scan(&active); err != nil {
			return fmt.Errorf("count active sessions: %w", err)
		}

		if active >= maxActive {
			return ErrLimitExceeded
		}

		_, err := tx.Exec(ctx, `
            INSERT INTO sessions (id, user_id, device_id, device_model, ip_address,
                access_token_hash, refresh_token, expires_at, revoked, created_at, last_active_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9, $9)
        `, session.ID, session.UserID, session.DeviceID, session.DeviceModel, session.IPAddress,
			session.AccessTokenHash, session.RefreshToken, session.ExpiresAt.UTC(), session.CreatedAt.UTC())
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				switch pgErr.Code {
				case "23505":
					return ErrConflict
				case "23503":
					return ErrNotFound
				}
			}
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLimitExceeded) || errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindByAccessTokenHash loads the non-revoked session matching the token hash.
func (r *PostgresSessionRepository) FindByAccessTokenHash(ctx context.Context, hash string) (models.Session, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Session{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, user_id, device_id, COALESCE(device_model, ''), COALESCE(ip_address, ''),
            access_token_hash, refresh_token, expires_at, revoked, created_at, last_active_at
        FROM sessions
        WHERE access_token_hash = $1 AND NOT revoked
    `, hash)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrNotFound
		}
		return models.Session{}, fmt.Errorf("select session by token hash: %w", err)
	}
	return session, nil
}

// Rotate swaps the token pair in a single guarded update.
func (r *PostgresSessionRepository) Rotate(ctx context.Context, oldRefreshToken, accessTokenHash, refreshToken, ipAddress string, now time.Time) (models.Session, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Session{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        UPDATE sessions
        SET access_token_hash = $2,
            refresh_token = $3,
            ip_address = COALESCE(NULLIF($4, ''), ip_address),
            last_active_at = $5
        WHERE refresh_token = $1 AND NOT revoked AND expires_at > $5
        RETURNING id, user_id, device_id, COALESCE(device_model, ''), COALESCE(ip_address, ''),
            access_token_hash, refresh_token, expires_at, revoked, created_at, last_active_at
    `, oldRefreshToken, accessTokenHash, refreshToken, ipAddress, now.UTC())

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrNotFound
		}
		return models.Session{}, fmt.Errorf("rotate session tokens: %w", err)
	}
	return session, nil
}

// Revoke marks one owned, non-revoked session as revoked.
func (r *PostgresSessionRepository) Revoke(ctx context.Context, userID, sessionID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE sessions
        SET revoked = true
        WHERE id = $1 AND user_id = $2 AND NOT revoked
    `, sessionID, userID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeAll revokes every active session of a user except the one provided.
func (r *PostgresSessionRepository) RevokeAll(ctx context.Context, userID, exceptSessionID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        UPDATE sessions
        SET revoked = true
        WHERE user_id = $1 AND NOT revoked AND ($2 = '' OR id != $2)
    `, userID, exceptSessionID)
	if err != nil {
		return fmt.Errorf("revoke all sessions: %w", err)
	}
	return nil
}

// ListActive returns non-revoked sessions ordered by most recent activity.
func (r *PostgresSessionRepository) ListActive(ctx context.Context, userID string) ([]models.Session, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, user_id, device_id, COALESCE(device_model, ''), COALESCE(ip_address, ''),
            access_token_hash, refresh_token, expires_at, revoked, created_at, last_active_at
        FROM sessions
        WHERE user_id = $1 AND NOT revoked
        ORDER BY last_active_at DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(row pgx.Row) (models.Session, error) {
	var s models.Session
	var expiresAt, createdAt, lastActiveAt time.Time
	if err := row.Scan(&s.ID, &s.UserID, &s.DeviceID, &s.DeviceModel, &s.IPAddress,
		&s.AccessTokenHash, &s.RefreshToken, &expiresAt, &s.Revoked, &createdAt, &lastActiveAt); err != nil {
		return models.Session{}, err
	}
	s.ExpiresAt = expiresAt.UTC()
	s.CreatedAt = createdAt.UTC()
	s.LastActiveAt = lastActiveAt.UTC()
	return s, nil
}

var _ SessionRepository = (*PostgresSessionRepository)(nil)
