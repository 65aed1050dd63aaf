package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sealchat/backend/internal/db"
	"github.com/sealchat/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, public_key, display_name, created_at)
        VALUES ($1, $2, NULLIF($3, ''), $4)
    `, user.ID, user.PublicKey, user.DisplayName, user.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByID fetches a user by identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

// FindByPublicKey fetches a user by their raw public key.
func (r *PostgresUserRepository) FindByPublicKey(ctx context.Context, publicKey []byte) (models.User, error) {
	return r.findOne(ctx, `WHERE public_key = $1`, publicKey)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, where string, arg any) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, public_key, COALESCE(display_name, ''), created_at
        FROM users `+where, arg)

	var user models.User
	var createdAt time.Time
	if err := row.Scan(&user.ID, &user.PublicKey, &user.DisplayName, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}
	user.CreatedAt = createdAt.UTC()
	return user, nil
}

// GetProfile resolves the public projection of a user, including the
// optional username.
func (r *PostgresUserRepository) GetProfile(ctx context.Context, id string) (models.Profile, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Profile{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT u.id, COALESCE(u.display_name, ''), COALESCE(n.username, '')
        FROM users u
        LEFT JOIN usernames n ON n.user_id = u.id
        WHERE u.id = $1
    `, id)

	var profile models.Profile
	if err := row.Scan(&profile.ID, &profile.DisplayName, &profile.Username); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, ErrNotFound
		}
		return models.Profile{}, fmt.Errorf("select profile: %w", err)
	}
	return profile, nil
}

// PostgresUsernameRepository provides PostgreSQL-backed persistence for usernames.
type PostgresUsernameRepository struct {
	pool db.Pool
}

// NewPostgresUsernameRepository constructs a username repository backed by PostgreSQL.
func NewPostgresUsernameRepository(pool db.Pool) *PostgresUsernameRepository {
	return &PostgresUsernameRepository{pool: pool}
}

// Set binds a username to a user. Taken by another user means conflict;
// re-setting one's own name only updates its searchability. The check
// and write run in one transaction.
func (r *PostgresUsernameRepository) Set(ctx context.Context, userID, username string, searchable bool) (models.Username, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Username{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var record models.Username
	err = crdbpgx.ExecuteTx(ctx, conn, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		var ownerID string
		err := tx.QueryRow(ctx, `
            SELECT user_id FROM usernames WHERE username = $1
        `, username).Scan(&ownerID)
		switch {
		case err == nil && ownerID != userID:
			return ErrConflict
		case err == nil:
			row := tx.QueryRow(ctx, `
                UPDATE usernames SET is_searchable = $2
                WHERE username = $1
                RETURNING id, user_id, username, is_searchable, created_at
            `, username, searchable)
			return scanUsername(row, &record)
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("select username: %w", err)
		}

		// Replace any previous handle the user held.
		if _, err := tx.Exec(ctx, `DELETE FROM usernames WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("delete previous username: %w", err)
		}

		row := tx.QueryRow(ctx, `
            INSERT INTO usernames (id, user_id, username, is_searchable, created_at)
            VALUES ($1, $2, $3, $4, $5)
            RETURNING id, user_id, username, is_searchable, created_at
        `, uuid.NewString(), userID, username, searchable, time.Now().UTC())
		return scanUsername(row, &record)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return models.Username{}, ErrConflict
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return models.Username{}, ErrConflict
			case "23503":
				return models.Username{}, ErrNotFound
			}
		}
		return models.Username{}, fmt.Errorf("set username: %w", err)
	}
	return record, nil
}

// FindSearchable resolves a searchable username to the owning user's
// public profile and raw public key.
func (r *PostgresUsernameRepository) FindSearchable(ctx context.Context, username string) (models.Profile, []byte, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Profile{}, nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT u.id, COALESCE(u.display_name, ''), n.username, u.public_key
        FROM usernames n
        JOIN users u ON u.id = n.user_id
        WHERE n.username = $1 AND n.is_searchable
    `, username)

	var profile models.Profile
	var publicKey []byte
	if err := row.Scan(&profile.ID, &profile.DisplayName, &profile.Username, &publicKey); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, nil, ErrNotFound
		}
		return models.Profile{}, nil, fmt.Errorf("select username: %w", err)
	}
	return profile, publicKey, nil
}

func scanUsername(row pgx.Row, record *models.Username) error {
	var createdAt time.Time
	if err := row.Scan(&record.ID, &record.UserID, &record.Username, &record.IsSearchable, &createdAt); err != nil {
		return fmt.Errorf("scan username: %w", err)
	}
	record.CreatedAt = createdAt.UTC()
	return nil
}

// PostgresContactRequestRepository provides PostgreSQL-backed persistence
// for contact requests.
type PostgresContactRequestRepository struct {
	pool db.Pool
}

// NewPostgresContactRequestRepository constructs a contact request repository backed by PostgreSQL.
func NewPostgresContactRequestRepository(pool db.Pool) *PostgresContactRequestRepository {
	return &PostgresContactRequestRepository{pool: pool}
}

const contactRequestColumns = `id, from_user_id, to_user_id, status, COALESCE(message, ''), created_at, updated_at`

// Create persists a new pending contact request. The canonical-pair
// unique index rejects a second request in either direction.
func (r *PostgresContactRequestRepository) Create(ctx context.Context, request models.ContactRequest) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO contact_requests (id, from_user_id, to_user_id, status, message, created_at, updated_at)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $6)
    `, request.ID, request.FromUserID, request.ToUserID, request.Status, request.Message, request.CreatedAt.UTC())
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
		return fmt.Errorf("insert contact request: %w", err)
	}
	return nil
}

// FindBetween returns the single request existing between two users, in
// either direction and in any state.
func (r *PostgresContactRequestRepository) FindBetween(ctx context.Context, userID, otherUserID string) (models.ContactRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.ContactRequest{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+contactRequestColumns+`
        FROM contact_requests
        WHERE (from_user_id = $1 AND to_user_id = $2)
           OR (from_user_id = $2 AND to_user_id = $1)
    `, userID, otherUserID)

	return scanContactRequest(row)
}

// FindPendingForReceiver loads a pending request addressed to the user.
func (r *PostgresContactRequestRepository) FindPendingForReceiver(ctx context.Context, requestID, toUserID string) (models.ContactRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.ContactRequest{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+contactRequestColumns+`
        FROM contact_requests
        WHERE id = $1 AND to_user_id = $2 AND status = $3
    `, requestID, toUserID, models.ContactRequestPending)

	return scanContactRequest(row)
}

// MarkResolved transitions a pending request into a terminal status.
func (r *PostgresContactRequestRepository) MarkResolved(ctx context.Context, requestID, status string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE contact_requests
        SET status = $2, updated_at = $3
        WHERE id = $1 AND status = $4
    `, requestID, status, time.Now().UTC(), models.ContactRequestPending)
	if err != nil {
		return fmt.Errorf("update contact request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListIncomingPending returns pending requests addressed to the user, newest first.
func (r *PostgresContactRequestRepository) ListIncomingPending(ctx context.Context, userID string) ([]models.ContactRequest, error) {
	return r.list(ctx, `WHERE to_user_id = $1 AND status = 'pending' ORDER BY created_at DESC`, userID)
}

// ListOutgoing returns requests the user has sent, newest first.
func (r *PostgresContactRequestRepository) ListOutgoing(ctx context.Context, userID string) ([]models.ContactRequest, error) {
	return r.list(ctx, `WHERE from_user_id = $1 ORDER BY created_at DESC`, userID)
}

// ListAccepted returns accepted requests involving the user, most recently resolved first.
func (r *PostgresContactRequestRepository) ListAccepted(ctx context.Context, userID string) ([]models.ContactRequest, error) {
	return r.list(ctx, `WHERE (from_user_id = $1 OR to_user_id = $1) AND status = 'accepted' ORDER BY updated_at DESC`, userID)
}

func (r *PostgresContactRequestRepository) list(ctx context.Context, clause string, userID string) ([]models.ContactRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+contactRequestColumns+`
        FROM contact_requests `+clause, userID)
	if err != nil {
		return nil, fmt.Errorf("query contact requests: %w", err)
	}
	defer rows.Close()

	var requests []models.ContactRequest
	for rows.Next() {
		request, err := scanContactRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contact requests: %w", err)
	}
	return requests, nil
}

func scanContactRequest(row pgx.Row) (models.ContactRequest, error) {
	var request models.ContactRequest
	var createdAt, updatedAt time.Time
	if err := row.Scan(&request.ID, &request.FromUserID, &request.ToUserID, &request.Status,
		&request.Message, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ContactRequest{}, ErrNotFound
		}
		return models.ContactRequest{}, fmt.Errorf("scan contact request: %w", err)
	}
	request.CreatedAt = createdAt.UTC()
	request.UpdatedAt = updatedAt.UTC()
	return request, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ UsernameRepository = (*PostgresUsernameRepository)(nil)
var _ ContactRequestRepository = (*PostgresContactRequestRepository)(nil)
