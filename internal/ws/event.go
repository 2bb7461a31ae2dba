package ws

import "time"

// Wire event names. Client→server requests that expect an acknowledgement
// carry a request id; the server answers with a correlated "ack" frame.
const (
	// server → all open connections
	EventOnlineUsers = "onlineUsers"

	// client → server
	EventSendMessage  = "sendMessage"
	EventMessagesRead = "messagesRead"
	EventTyping       = "typing"
	EventLikePost     = "likePost"
	EventCommentPost  = "commentPost"
	EventFollowUser   = "followUser"

	// server → client
	EventNewMessage    = "newMessage"
	EventPostLiked     = "postLiked"
	EventPostCommented = "postCommented"
	EventNewFollower   = "newFollower"
	EventNotification  = "notification"
	EventAck           = "ack"
	EventError         = "error"
)

// IncomingEvent is the client→server envelope. Fields are a union over all
// event types; each handler validates the ones it needs.
type IncomingEvent struct {
	// ID correlates the eventual ack frame with this request. Required for
	// sendMessage and messagesRead; ignored for fire-and-forget events.
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`

	// sendMessage / typing
	Receiver string `json:"receiver,omitempty"`
	Content  string `json:"content,omitempty"`

	// messagesRead
	ChatID     string   `json:"chat_id,omitempty"`
	MessageIDs []string `json:"message_ids,omitempty"`

	// likePost / commentPost
	PostID string `json:"post_id,omitempty"`

	// followUser
	UserID string `json:"user_id,omitempty"`
}

// OutgoingEvent is the server→client envelope. ID is set only on ack frames.
type OutgoingEvent struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Payload any    `json:"payload"`
}

// AckPayload is the result of an acked request. The client must not assume
// delivery until it sees Success; on failure it rolls back its optimistic
// render using Message as the reason.
type AckPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// NewMessagePayload is pushed to the receiver and echoed to the sender; the
// same shape rides in the send ack so the client can reconcile its optimistic
// entry. Field names follow the established client contract.
type NewMessagePayload struct {
	ID        string    `json:"_id"`
	Sender    string    `json:"sender"`
	Chat      string    `json:"chat"`
	Message   string    `json:"message"`
	ReadBy    []string  `json:"read_by"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessagesReadPayload notifies chat members that reader has read messages.
type MessagesReadPayload struct {
	ChatID   string `json:"chatId"`
	ReaderID string `json:"readerId"`
}

// TypingPayload is forwarded to the receiver of a typing event.
type TypingPayload struct {
	Sender string `json:"sender"`
}

// ActorPayload carries the acting user's summary for the lightweight
// postLiked / postCommented / newFollower pushes.
type ActorPayload struct {
	PostImage string `json:"post_image,omitempty"`
	Username  string `json:"username"`
	Image     string `json:"image"`
}
