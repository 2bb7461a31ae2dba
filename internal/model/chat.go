package model

import "time"

// Chat is a two-party conversation. Exactly one chat exists per unordered
// pair of users: members are normalized so that MemberLow < MemberHigh, and
// the pair is unique in storage.
type Chat struct {
	ID            string    `json:"id"`
	MemberLow     string    `json:"-"`
	MemberHigh    string    `json:"-"`
	LastMessageID *string   `json:"last_message_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Members returns both member ids (normalized order).
func (c *Chat) Members() []string {
	return []string{c.MemberLow, c.MemberHigh}
}

// HasMember reports whether userID is one of the two members.
func (c *Chat) HasMember(userID string) bool {
	return c.MemberLow == userID || c.MemberHigh == userID
}

// Peer returns the other member of the chat relative to userID.
func (c *Chat) Peer(userID string) string {
	if c.MemberLow == userID {
		return c.MemberHigh
	}
	return c.MemberLow
}

// NormalizePair orders a member pair so that lookups and inserts always see
// the same (low, high) key regardless of who initiated the chat.
func NormalizePair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

// ChatPreview is a chat enriched for the conversation list: the peer,
// the last message and the caller's unread count.
type ChatPreview struct {
	ID          string      `json:"id"`
	Peer        UserSummary `json:"peer"`
	LastMessage *Message    `json:"last_message,omitempty"`
	UnreadCount int         `json:"unread_count"`
	CreatedAt   time.Time   `json:"created_at"`
}
