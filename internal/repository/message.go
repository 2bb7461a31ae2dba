package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sociogram/internal/logger"
	"github.com/sociogram/internal/model"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Create inserts the message and seeds its read_by set with the sender in a
// single statement, so a message is read by its author from the moment it
// exists.
func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`WITH ins AS (
		   INSERT INTO messages (id, chat_id, sender_id, body, created_at)
		   VALUES ($1, $2, $3, $4, $5)
		   RETURNING id, sender_id
		 )
		 INSERT INTO message_reads (message_id, user_id, read_at)
		 SELECT id, sender_id, $5 FROM ins`,
		m.ID, m.ChatID, m.SenderID, m.Body, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	m.ReadBy = []string{m.SenderID}
	return nil
}

const msgSelect = `SELECT m.id, m.chat_id, m.sender_id, m.body, m.created_at,
	COALESCE((SELECT array_agg(mr.user_id ORDER BY mr.read_at) FROM message_reads mr WHERE mr.message_id = m.id), '{}')
	FROM messages m`

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Body, &m.CreatedAt, &m.ReadBy)
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx, msgSelect+` WHERE m.id = $1`, id)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// ListByChat returns messages newest-first. before is an exclusive cursor
// (message id); empty means start from the latest.
func (r *MessageRepository) ListByChat(ctx context.Context, chatID, before string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListByChat", time.Now())()
	query := msgSelect + ` WHERE m.chat_id = $1`
	args := []any{chatID}
	if before != "" {
		query += ` AND (m.created_at, m.id) < (SELECT created_at, id FROM messages WHERE id = $2)`
		args = append(args, before)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY m.created_at DESC, m.id DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListByChat query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.ListByChat scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ListByChat rows: %w", err)
	}
	return messages, nil
}

// MarkRead adds userID to read_by for exactly the listed messages within the
// given chat. Ids belonging to another chat are filtered out by the join, and
// insert-or-ignore keeps the set monotonic. Returns how many rows were added.
func (r *MessageRepository) MarkRead(ctx context.Context, chatID string, messageIDs []string, userID string) (int64, error) {
	defer logger.DeferLogDuration("msg.MarkRead", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id, read_at)
		 SELECT m.id, $3, $4 FROM messages m
		 WHERE m.id = ANY($2) AND m.chat_id = $1
		 ON CONFLICT DO NOTHING`,
		chatID, messageIDs, userID, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.MarkRead: %w", err)
	}
	return tag.RowsAffected(), nil
}
