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

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Create inserts a notification. For like and follow the partial unique index
// on (type, from, to, post) absorbs duplicates, including concurrent ones;
// the return value reports whether a row was actually created.
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) (bool, error) {
	defer logger.DeferLogDuration("notif.Create", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (id, type, from_user_id, to_user_id, post_id, comment_body, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, false, $7)
		 ON CONFLICT DO NOTHING`,
		n.ID, n.Type, n.FromUserID, n.ToUserID, n.PostID, n.Comment, n.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("notifRepo.Create: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteForAction removes the notification produced by an undoable action
// (unlike, unfollow). postID may be nil for follow notifications.
func (r *NotificationRepository) DeleteForAction(ctx context.Context, typ model.NotificationType, fromUserID, toUserID string, postID *string) error {
	defer logger.DeferLogDuration("notif.DeleteForAction", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM notifications
		 WHERE type = $1 AND from_user_id = $2 AND to_user_id = $3
		   AND COALESCE(post_id, '') = COALESCE($4, '')`,
		typ, fromUserID, toUserID, postID,
	)
	if err != nil {
		return fmt.Errorf("notifRepo.DeleteForAction: %w", err)
	}
	return nil
}

const notifCols = `n.id, n.type, n.from_user_id, n.to_user_id, n.post_id, n.comment_body, n.is_read, n.created_at`

// GetByID returns a notification with actor and post details populated.
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	defer logger.DeferLogDuration("notif.GetByID", time.Now())()
	n := &model.Notification{From: &model.UserSummary{}}
	err := r.pool.QueryRow(ctx,
		`SELECT `+notifCols+`, u.id, u.username, u.image_url, COALESCE(p.image_url, '')
		 FROM notifications n
		 JOIN users u ON u.id = n.from_user_id
		 LEFT JOIN posts p ON p.id = n.post_id
		 WHERE n.id = $1`, id,
	).Scan(&n.ID, &n.Type, &n.FromUserID, &n.ToUserID, &n.PostID, &n.Comment, &n.IsRead, &n.CreatedAt,
		&n.From.ID, &n.From.Username, &n.From.ImageURL, &n.PostImage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notifRepo.GetByID: %w", err)
	}
	return n, nil
}

// ListForUser returns the user's notifications newest-first with actor and
// post details populated.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	defer logger.DeferLogDuration("notif.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+notifCols+`, u.id, u.username, u.image_url, COALESCE(p.image_url, '')
		 FROM notifications n
		 JOIN users u ON u.id = n.from_user_id
		 LEFT JOIN posts p ON p.id = n.post_id
		 WHERE n.to_user_id = $1
		 ORDER BY n.created_at DESC
		 LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("notifRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	notifs := make([]model.Notification, 0, limit)
	for rows.Next() {
		n := model.Notification{From: &model.UserSummary{}}
		if err := rows.Scan(&n.ID, &n.Type, &n.FromUserID, &n.ToUserID, &n.PostID, &n.Comment, &n.IsRead, &n.CreatedAt,
			&n.From.ID, &n.From.Username, &n.From.ImageURL, &n.PostImage); err != nil {
			return nil, fmt.Errorf("notifRepo.ListForUser scan: %w", err)
		}
		notifs = append(notifs, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notifRepo.ListForUser rows: %w", err)
	}
	return notifs, nil
}

// MarkRead flips the read flag. Guarded by ownership: only the target user
// can mutate their notification. Returns ErrNotFound if the row does not
// exist or belongs to someone else.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	defer logger.DeferLogDuration("notif.MarkRead", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE id = $1 AND to_user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("notifRepo.MarkRead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	defer logger.DeferLogDuration("notif.MarkAllRead", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE to_user_id = $1 AND is_read = false`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("notifRepo.MarkAllRead: %w", err)
	}
	return nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	defer logger.DeferLogDuration("notif.CountUnread", time.Now())()
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE to_user_id = $1 AND is_read = false`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("notifRepo.CountUnread: %w", err)
	}
	return count, nil
}
