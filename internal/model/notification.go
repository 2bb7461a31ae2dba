package model

import "time"

type NotificationType string

const (
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
	NotificationFollow  NotificationType = "follow"
)

// Notification records a like, comment or follow directed at a user.
// For like and follow, at most one record exists per (type, from, to, post);
// comment notifications are one per comment.
type Notification struct {
	ID         string           `json:"id"`
	Type       NotificationType `json:"type"`
	FromUserID string           `json:"from_user_id"`
	ToUserID   string           `json:"to_user_id"`
	PostID     *string          `json:"post_id,omitempty"`
	Comment    string           `json:"comment,omitempty"`
	IsRead     bool             `json:"is_read"`
	CreatedAt  time.Time        `json:"created_at"`

	// Populated for delivery and listing.
	From      *UserSummary `json:"from,omitempty"`
	PostImage string       `json:"post_image,omitempty"`
}
