package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sociogram/internal/logger"
	"github.com/sociogram/internal/model"
)

const chatCols = `id, member_low, member_high, last_message_id, created_at`

type ChatRepository struct {
	pool *pgxpool.Pool
}

func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

func scanChat(s interface{ Scan(dest ...any) error }, c *model.Chat) error {
	return s.Scan(&c.ID, &c.MemberLow, &c.MemberHigh, &c.LastMessageID, &c.CreatedAt)
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.GetByID", time.Now())()
	c := &model.Chat{}
	row := r.pool.QueryRow(ctx, `SELECT `+chatCols+` FROM chats WHERE id = $1`, id)
	if err := scanChat(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("chatRepo.GetByID: %w", err)
	}
	return c, nil
}

// FindByMembers returns the chat for the given unordered member pair.
func (r *ChatRepository) FindByMembers(ctx context.Context, a, b string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.FindByMembers", time.Now())()
	low, high := model.NormalizePair(a, b)
	c := &model.Chat{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+chatCols+` FROM chats WHERE member_low = $1 AND member_high = $2`, low, high)
	if err := scanChat(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("chatRepo.FindByMembers: %w", err)
	}
	return c, nil
}

// GetOrCreate returns the chat for the pair, creating it lazily on first
// message. Insert-or-ignore followed by a reselect makes concurrent first
// senders converge on the same row instead of creating duplicates.
func (r *ChatRepository) GetOrCreate(ctx context.Context, a, b string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.GetOrCreate", time.Now())()
	low, high := model.NormalizePair(a, b)
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chats (id, member_low, member_high, created_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT (member_low, member_high) DO NOTHING`,
		uuid.New().String(), low, high, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetOrCreate insert: %w", err)
	}
	return r.FindByMembers(ctx, low, high)
}

// SetLastMessage advances the advisory last-message pointer. The pointer is
// for list previews only; history reads always query messages by chat id.
func (r *ChatRepository) SetLastMessage(ctx context.Context, chatID, messageID string) error {
	defer logger.DeferLogDuration("chat.SetLastMessage", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE chats SET last_message_id = $1 WHERE id = $2`, messageID, chatID)
	if err != nil {
		return fmt.Errorf("chatRepo.SetLastMessage: %w", err)
	}
	return nil
}

// MemberIDs returns both member ids of a chat.
func (r *ChatRepository) MemberIDs(ctx context.Context, chatID string) ([]string, error) {
	defer logger.DeferLogDuration("chat.MemberIDs", time.Now())()
	var low, high string
	err := r.pool.QueryRow(ctx,
		`SELECT member_low, member_high FROM chats WHERE id = $1`, chatID,
	).Scan(&low, &high)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.MemberIDs: %w", err)
	}
	return []string{low, high}, nil
}

// ListForUser returns the user's chats newest-activity-first, each with the
// peer summary, last message (with its read_by set) and unread count.
func (r *ChatRepository) ListForUser(ctx context.Context, userID string) ([]model.ChatPreview, error) {
	defer logger.DeferLogDuration("chat.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.created_at,
		        p.id, p.username, p.image_url,
		        m.id, m.chat_id, m.sender_id, m.body, m.created_at,
		        COALESCE((SELECT array_agg(mr.user_id) FROM message_reads mr WHERE mr.message_id = m.id), '{}'),
		        (SELECT COUNT(*) FROM messages um
		         WHERE um.chat_id = c.id
		           AND um.sender_id != $1
		           AND NOT EXISTS (SELECT 1 FROM message_reads mr
		                           WHERE mr.message_id = um.id AND mr.user_id = $1))
		 FROM chats c
		 JOIN users p ON p.id = CASE WHEN c.member_low = $1 THEN c.member_high ELSE c.member_low END
		 LEFT JOIN messages m ON m.id = c.last_message_id
		 WHERE c.member_low = $1 OR c.member_high = $1
		 ORDER BY COALESCE(m.created_at, c.created_at) DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	previews := make([]model.ChatPreview, 0, 16)
	for rows.Next() {
		var (
			pv     model.ChatPreview
			msgID  *string
			chatID *string
			sender *string
			body   *string
			msgAt  *time.Time
			readBy []string
		)
		if err := rows.Scan(&pv.ID, &pv.CreatedAt,
			&pv.Peer.ID, &pv.Peer.Username, &pv.Peer.ImageURL,
			&msgID, &chatID, &sender, &body, &msgAt, &readBy,
			&pv.UnreadCount); err != nil {
			return nil, fmt.Errorf("chatRepo.ListForUser scan: %w", err)
		}
		if msgID != nil {
			pv.LastMessage = &model.Message{
				ID:        *msgID,
				ChatID:    *chatID,
				SenderID:  *sender,
				Body:      *body,
				ReadBy:    readBy,
				CreatedAt: *msgAt,
			}
		}
		previews = append(previews, pv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatRepo.ListForUser rows: %w", err)
	}
	return previews, nil
}
