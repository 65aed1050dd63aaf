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

// PostgresChatRepository provides PostgreSQL-backed persistence for chats.
type PostgresChatRepository struct {
	pool db.Pool
}

// NewPostgresChatRepository constructs a chat repository backed by PostgreSQL.
func NewPostgresChatRepository(pool db.Pool) *PostgresChatRepository {
	return &PostgresChatRepository{pool: pool}
}

// FindPrivateByPairKey looks up the private chat for a canonical pair.
func (r *PostgresChatRepository) FindPrivateByPairKey(ctx context.Context, pairKey string) (models.Chat, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Chat{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, type, COALESCE(title, ''), COALESCE(avatar_url, ''), COALESCE(pair_key, ''), created_at
        FROM chats
        WHERE type = $1 AND pair_key = $2
    `, models.ChatTypePrivate, pairKey)

	chat, err := scanChat(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Chat{}, ErrNotFound
		}
		return models.Chat{}, fmt.Errorf("select chat by pair key: %w", err)
	}
	return chat, nil
}

// CreatePrivate inserts the chat and both member rows in one transaction.
func (r *PostgresChatRepository) CreatePrivate(ctx context.Context, chat models.Chat, members [2]models.ChatMember) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	err = crdbpgx.ExecuteTx(ctx, conn, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO chats (id, type, pair_key, created_at)
            VALUES ($1, $2, $3, $4)
        `, chat.ID, chat.Type, chat.PairKey, chat.CreatedAt.UTC()); err != nil {
			return err
		}

		for _, member := range members {
			if _, err := tx.Exec(ctx, `
                INSERT INTO chat_members (chat_id, user_id, role, joined_at)
                VALUES ($1, $2, $3, $4)
            `, chat.ID, member.UserID, member.Role, chat.CreatedAt.UTC()); err != nil {
				return err
			}
		}
		return nil
	})
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
		return fmt.Errorf("insert private chat: %w", err)
	}
	return nil
}

// GetByID loads a chat along with its members.
func (r *PostgresChatRepository) GetByID(ctx context.Context, chatID string) (models.Chat, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Chat{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, type, COALESCE(title, ''), COALESCE(avatar_url, ''), COALESCE(pair_key, ''), created_at
        FROM chats
        WHERE id = $1
    `, chatID)

	chat, err := scanChat(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Chat{}, ErrNotFound
		}
		return models.Chat{}, fmt.Errorf("select chat: %w", err)
	}

	rows, err := conn.Query(ctx, `
        SELECT chat_id, user_id, role, joined_at
        FROM chat_members
        WHERE chat_id = $1
        ORDER BY joined_at
    `, chatID)
	if err != nil {
		return models.Chat{}, fmt.Errorf("query chat members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var member models.ChatMember
		var joinedAt time.Time
		if err := rows.Scan(&member.ChatID, &member.UserID, &member.Role, &joinedAt); err != nil {
			return models.Chat{}, fmt.Errorf("scan chat member: %w", err)
		}
		member.JoinedAt = joinedAt.UTC()
		chat.Members = append(chat.Members, member)
	}

	if err := rows.Err(); err != nil {
		return models.Chat{}, fmt.Errorf("iterate chat members: %w", err)
	}
	return chat, nil
}

func scanChat(row pgx.Row) (models.Chat, error) {
	var chat models.Chat
	var createdAt time.Time
	if err := row.Scan(&chat.ID, &chat.Type, &chat.Title, &chat.AvatarURL, &chat.PairKey, &createdAt); err != nil {
		return models.Chat{}, err
	}
	chat.CreatedAt = createdAt.UTC()
	return chat, nil
}

// PostgresMessageRepository provides PostgreSQL-backed persistence for
// message metadata.
type PostgresMessageRepository struct {
	pool db.Pool
}

// NewPostgresMessageRepository constructs a message metadata repository backed by PostgreSQL.
func NewPostgresMessageRepository(pool db.Pool) *PostgresMessageRepository {
	return &PostgresMessageRepository{pool: pool}
}

// Create stores one message audit record. Encrypted bodies are never
// written here, only the recipient's encrypted key copy.
func (r *PostgresMessageRepository) Create(ctx context.Context, metadata models.MessageMetadata) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO message_metadata (id, chat_id, sender_id, type, media_url, media_size,
            mime_type, encrypted_key, client_ts, created_at)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, 0), NULLIF($7, ''), $8, $9, $10)
    `, metadata.ID, metadata.ChatID, metadata.SenderID, metadata.Type, metadata.MediaURL,
		metadata.MediaSize, metadata.MimeType, metadata.EncryptedKey,
		metadata.Timestamp.UTC(), metadata.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("insert message metadata: %w", err)
	}
	return nil
}

var _ ChatRepository = (*PostgresChatRepository)(nil)
var _ MessageRepository = (*PostgresMessageRepository)(nil)
