package model

import "time"

// Session is an authenticated session issued by the identity service.
// The token itself lives in the session store (Redis); the row keeps
// ownership and last-activity for auditing.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
