package ws

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sociogram/internal/logger"
	"github.com/sociogram/internal/model"
	"github.com/sociogram/internal/presence"
	"github.com/sociogram/internal/repository"
)

// Store interfaces cover exactly what the routing engine needs, so the hub
// can be constructed over fakes in tests. The pgx repositories satisfy them.

type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

type ChatStore interface {
	GetOrCreate(ctx context.Context, a, b string) (*model.Chat, error)
	SetLastMessage(ctx context.Context, chatID, messageID string) error
	MemberIDs(ctx context.Context, chatID string) ([]string, error)
}

type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	MarkRead(ctx context.Context, chatID string, messageIDs []string, userID string) (int64, error)
}

type PostStore interface {
	GetByID(ctx context.Context, id string) (*model.Post, error)
}

// Hub is the realtime gateway: it owns connection lifecycle, the presence
// table registration, and routes domain events between connected clients.
type Hub struct {
	presence *presence.Table
	users    UserStore
	chats    ChatStore
	messages MessageStore
	posts    PostStore
	maxConns int

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(
	table *presence.Table,
	users UserStore,
	chats ChatStore,
	messages MessageStore,
	posts PostStore,
	maxConns int,
) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		presence:   table,
		users:      users,
		chats:      chats,
		messages:   messages,
		posts:      posts,
		maxConns:   maxConns,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

// Run processes connection registrations until ctx is cancelled. Register and
// deregister are serialized here, so roster broadcasts always reflect a
// consistent table state.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	clients := make([]*Client, 0, h.presence.Len())
	for _, id := range h.presence.ActiveUserIDs() {
		if conn, ok := h.presence.Lookup(id); ok {
			if c, ok := conn.(*Client); ok {
				h.presence.Deregister(id, conn)
				clients = append(clients, c)
			}
		}
	}
	for _, c := range clients {
		c.Close()
	}
	for _, c := range clients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	if h.presence.Len() >= h.maxConns {
		if _, online := h.presence.Lookup(c.userID); !online {
			logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
			c.Close()
			return
		}
	}
	prev := h.presence.Register(c.userID, c)
	if prev != nil {
		// Last connection wins: the replaced session is closed, and its
		// deregistration later is a no-op because the slot moved on.
		if old, ok := prev.(*Client); ok {
			old.Close()
		}
	}
	h.broadcastRoster()
}

func (h *Hub) removeClient(c *Client) {
	removed := h.presence.Deregister(c.userID, c)
	c.Close()
	if removed {
		h.broadcastRoster()
	}
}

// broadcastRoster pushes the current online-user list to every open
// connection. Best effort: a client may briefly observe a stale roster.
func (h *Hub) broadcastRoster() {
	ids := h.presence.ActiveUserIDs()
	for _, id := range ids {
		if conn, ok := h.presence.Lookup(id); ok {
			conn.Send(EventOnlineUsers, ids)
		}
	}
}

// Register hands a new authenticated connection to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister removes a connection (called from the client's read pump on
// disconnect).
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// HandleEvent dispatches one inbound event. It runs on the connection's
// reader goroutine: events from one client are handled in order, and a
// failure here is converted to an ack or swallowed, never propagated.
func (h *Hub) HandleEvent(ctx context.Context, c *Client, ev IncomingEvent) {
	switch ev.Type {
	case EventSendMessage:
		h.handleSendMessage(ctx, c, ev)
	case EventMessagesRead:
		h.handleMessagesRead(ctx, c, ev)
	case EventTyping:
		h.handleTyping(c, ev)
	case EventLikePost:
		h.handlePostActivity(ctx, c, ev.PostID, EventPostLiked)
	case EventCommentPost:
		h.handlePostActivity(ctx, c, ev.PostID, EventPostCommented)
	case EventFollowUser:
		h.handleFollowUser(ctx, c, ev)
	default:
		c.Send(EventError, "unknown event type")
	}
}

// ack sends the request/response frame for an acked event. Exactly one ack
// per request id: every return path in an acked handler goes through here
// exactly once.
func (h *Hub) ack(c *Client, requestID string, p AckPayload) {
	c.enqueue(OutgoingEvent{Type: EventAck, ID: requestID, Payload: p})
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("ws.handleSendMessage", time.Now())()

	content := strings.TrimSpace(ev.Content)
	if ev.Receiver == "" || content == "" || ev.Receiver == c.userID {
		h.ack(c, ev.ID, AckPayload{Success: false, Message: "Invalid payload"})
		return
	}

	// Persistence outlives the connection: a disconnect or session
	// replacement mid-write must not abort the write. Only the timeout
	// bounds it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	sender, err := h.users.GetByID(ctx, c.userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.ack(c, ev.ID, AckPayload{Success: false, Message: "Sender not found"})
			return
		}
		logger.Errorf("ws send message: get sender user=%s: %v", c.userID, err)
		h.ack(c, ev.ID, AckPayload{Success: false, Message: "Internal server error"})
		return
	}

	receiver, err := h.users.GetByID(ctx, ev.Receiver)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.ack(c, ev.ID, AckPayload{Success: false, Message: "Receiver not found"})
			return
		}
		logger.Errorf("ws send message: get receiver user=%s: %v", ev.Receiver, err)
		h.ack(c, ev.ID, AckPayload{Success: false, Message: "Internal server error"})
		return
	}

	chat, err := h.chats.GetOrCreate(ctx, sender.ID, receiver.ID)
	if err != nil {
		logger.Errorf("ws send message: get chat %s/%s: %v", sender.ID, receiver.ID, err)
		h.ack(c, ev.ID, AckPayload{Success: false, Message: "Internal server error"})
		return
	}

	msg := &model.Message{
		ID:        uuid.New().String(),
		ChatID:    chat.ID,
		SenderID:  sender.ID,
		Body:      content,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.messages.Create(ctx, msg); err != nil {
		// Write-then-notify: nothing was pushed, nothing to roll back.
		logger.Errorf("ws save message chat=%s user=%s: %v", chat.ID, sender.ID, err)
		h.ack(c, ev.ID, AckPayload{Success: false, Message: "Internal server error"})
		return
	}
	if err := h.chats.SetLastMessage(ctx, chat.ID, msg.ID); err != nil {
		// The pointer is advisory (list previews); history reads do not
		// depend on it, so a failed update is logged and tolerated.
		logger.Errorf("ws update last message chat=%s: %v", chat.ID, err)
	}

	out := NewMessagePayload{
		ID:        msg.ID,
		Sender:    msg.SenderID,
		Chat:      msg.ChatID,
		Message:   msg.Body,
		ReadBy:    msg.ReadBy,
		CreatedAt: msg.CreatedAt,
	}
	if conn, ok := h.presence.Lookup(receiver.ID); ok {
		conn.Send(EventNewMessage, out)
	}
	// Echo to the sender's own connection so its other views stay in sync.
	c.Send(EventNewMessage, out)

	h.ack(c, ev.ID, AckPayload{Success: true, Message: "Message sent", Data: out})
}

func (h *Hub) handleMessagesRead(ctx context.Context, c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("ws.handleMessagesRead", time.Now())()

	if ev.ChatID == "" || len(ev.MessageIDs) == 0 {
		h.ack(c, ev.ID, AckPayload{Success: false})
		return
	}

	// Same as send: receipts are written even if the reader drops mid-call.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	// Scoped to the chat: ids from other chats are silently ignored, and the
	// insert-or-ignore keeps read_by monotonic.
	if _, err := h.messages.MarkRead(ctx, ev.ChatID, ev.MessageIDs, c.userID); err != nil {
		logger.Errorf("ws mark read chat=%s user=%s: %v", ev.ChatID, c.userID, err)
		h.ack(c, ev.ID, AckPayload{Success: false})
		return
	}

	members, err := h.chats.MemberIDs(ctx, ev.ChatID)
	if err != nil {
		logger.Errorf("ws get members for read chat=%s: %v", ev.ChatID, err)
		h.ack(c, ev.ID, AckPayload{Success: false})
		return
	}

	out := MessagesReadPayload{ChatID: ev.ChatID, ReaderID: c.userID}
	for _, uid := range members {
		if uid == c.userID {
			continue
		}
		if conn, ok := h.presence.Lookup(uid); ok {
			conn.Send(EventMessagesRead, out)
		}
	}

	h.ack(c, ev.ID, AckPayload{Success: true})
}

// handleTyping forwards a typing signal. Fire-and-forget: no ack, no
// persistence, an offline receiver is silently skipped.
func (h *Hub) handleTyping(c *Client, ev IncomingEvent) {
	if ev.Receiver == "" {
		return
	}
	if conn, ok := h.presence.Lookup(ev.Receiver); ok {
		conn.Send(EventTyping, TypingPayload{Sender: c.userID})
	}
}

// handlePostActivity pushes the lightweight postLiked / postCommented signal
// to the post's author if they are online. Best effort, errors are only
// logged.
func (h *Hub) handlePostActivity(ctx context.Context, c *Client, postID, event string) {
	if postID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	actor, err := h.users.GetByID(ctx, c.userID)
	if err != nil {
		logger.Errorf("ws %s: get actor user=%s: %v", event, c.userID, err)
		return
	}
	post, err := h.posts.GetByID(ctx, postID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Errorf("ws %s: get post %s: %v", event, postID, err)
		}
		return
	}
	if conn, ok := h.presence.Lookup(post.AuthorID); ok {
		conn.Send(event, ActorPayload{
			PostImage: post.ImageURL,
			Username:  actor.Username,
			Image:     actor.ImageURL,
		})
	}
}

func (h *Hub) handleFollowUser(ctx context.Context, c *Client, ev IncomingEvent) {
	if ev.UserID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	actor, err := h.users.GetByID(ctx, c.userID)
	if err != nil {
		logger.Errorf("ws followUser: get actor user=%s: %v", c.userID, err)
		return
	}
	if conn, ok := h.presence.Lookup(ev.UserID); ok {
		conn.Send(EventNewFollower, ActorPayload{
			Username: actor.Username,
			Image:    actor.ImageURL,
		})
	}
}
