package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sociogram/internal/model"
	"github.com/sociogram/internal/presence"
	"github.com/sociogram/internal/repository"
)

type fakeUsers struct {
	users map[string]*model.User
	err   error
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

type fakeChats struct {
	chat        *model.Chat
	members     []string
	lastMsgSet  []string
	getOrCreate int
	err         error
}

func (f *fakeChats) GetOrCreate(ctx context.Context, a, b string) (*model.Chat, error) {
	f.getOrCreate++
	if f.err != nil {
		return nil, f.err
	}
	return f.chat, nil
}

func (f *fakeChats) SetLastMessage(ctx context.Context, chatID, messageID string) error {
	f.lastMsgSet = append(f.lastMsgSet, messageID)
	return nil
}

func (f *fakeChats) MemberIDs(ctx context.Context, chatID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.members, nil
}

type markReadCall struct {
	chatID     string
	messageIDs []string
	userID     string
}

type fakeMessages struct {
	created   []*model.Message
	createErr error
	markCalls []markReadCall
	markErr   error
}

func (f *fakeMessages) Create(ctx context.Context, m *model.Message) error {
	if f.createErr != nil {
		return f.createErr
	}
	m.ReadBy = []string{m.SenderID}
	f.created = append(f.created, m)
	return nil
}

func (f *fakeMessages) MarkRead(ctx context.Context, chatID string, messageIDs []string, userID string) (int64, error) {
	if f.markErr != nil {
		return 0, f.markErr
	}
	f.markCalls = append(f.markCalls, markReadCall{chatID: chatID, messageIDs: messageIDs, userID: userID})
	return int64(len(messageIDs)), nil
}

type fakePosts struct {
	posts map[string]*model.Post
}

func (f *fakePosts) GetByID(ctx context.Context, id string) (*model.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

type sentEvent struct {
	event   string
	payload any
}

type recordConn struct {
	sent []sentEvent
}

func (r *recordConn) Send(event string, payload any) bool {
	r.sent = append(r.sent, sentEvent{event: event, payload: payload})
	return true
}

type hubFixture struct {
	hub      *Hub
	table    *presence.Table
	users    *fakeUsers
	chats    *fakeChats
	messages *fakeMessages
	posts    *fakePosts
}

func newHubFixture() *hubFixture {
	users := &fakeUsers{users: map[string]*model.User{
		"u1": {ID: "u1", Username: "alice", ImageURL: "alice.png"},
		"u2": {ID: "u2", Username: "bob", ImageURL: "bob.png"},
	}}
	chats := &fakeChats{
		chat:    &model.Chat{ID: "chat-1", MemberLow: "u1", MemberHigh: "u2"},
		members: []string{"u1", "u2"},
	}
	messages := &fakeMessages{}
	posts := &fakePosts{posts: map[string]*model.Post{
		"p1": {ID: "p1", AuthorID: "u2", ImageURL: "post.png"},
	}}
	table := presence.NewTable()
	hub := NewHub(table, users, chats, messages, posts, 100)
	return &hubFixture{hub: hub, table: table, users: users, chats: chats, messages: messages, posts: posts}
}

// drain collects everything buffered on the client's outgoing channel.
func drain(c *Client) []OutgoingEvent {
	var out []OutgoingEvent
	for {
		select {
		case ev := <-c.send:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func lastAck(t *testing.T, c *Client) (string, AckPayload) {
	t.Helper()
	events := drain(c)
	require.NotEmpty(t, events)
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == EventAck {
			ack, ok := events[i].Payload.(AckPayload)
			require.True(t, ok, "ack payload type")
			return events[i].ID, ack
		}
	}
	t.Fatal("no ack frame found")
	return "", AckPayload{}
}

func TestSendMessageDeliversAndAcks(t *testing.T) {
	f := newHubFixture()
	sender := NewClient(f.hub, nil, "u1")
	receiver := &recordConn{}
	f.table.Register("u2", receiver)

	f.hub.HandleEvent(context.Background(), sender, IncomingEvent{
		ID:       "req-1",
		Type:     EventSendMessage,
		Receiver: "u2",
		Content:  "hello bob",
	})

	require.Len(t, f.messages.created, 1)
	msg := f.messages.created[0]
	assert.Equal(t, "chat-1", msg.ChatID)
	assert.Equal(t, "u1", msg.SenderID)
	assert.Equal(t, "hello bob", msg.Body)
	assert.Equal(t, []string{msg.ID}, f.chats.lastMsgSet)

	require.Len(t, receiver.sent, 1)
	assert.Equal(t, EventNewMessage, receiver.sent[0].event)
	pushed, ok := receiver.sent[0].payload.(NewMessagePayload)
	require.True(t, ok)
	assert.Equal(t, msg.ID, pushed.ID)
	assert.Equal(t, "chat-1", pushed.Chat)
	assert.Equal(t, "hello bob", pushed.Message)
	assert.Equal(t, []string{"u1"}, pushed.ReadBy)

	events := drain(sender)
	var sawEcho bool
	for _, ev := range events {
		if ev.Type == EventNewMessage {
			sawEcho = true
		}
	}
	assert.True(t, sawEcho, "sender should receive the echo frame")

	var ack AckPayload
	var ackID string
	for _, ev := range events {
		if ev.Type == EventAck {
			ackID = ev.ID
			ack = ev.Payload.(AckPayload)
		}
	}
	assert.Equal(t, "req-1", ackID)
	assert.True(t, ack.Success)
	assert.Equal(t, "Message sent", ack.Message)
}

func TestSendMessageOfflineReceiverStillPersists(t *testing.T) {
	f := newHubFixture()
	sender := NewClient(f.hub, nil, "u1")

	f.hub.HandleEvent(context.Background(), sender, IncomingEvent{
		ID: "req-1", Type: EventSendMessage, Receiver: "u2", Content: "hi",
	})

	require.Len(t, f.messages.created, 1)
	_, ack := lastAck(t, sender)
	assert.True(t, ack.Success)
	assert.Equal(t, "Message sent", ack.Message)
}

func TestSendMessageInvalidPayload(t *testing.T) {
	f := newHubFixture()
	sender := NewClient(f.hub, nil, "u1")

	cases := []IncomingEvent{
		{ID: "r1", Type: EventSendMessage, Receiver: "u2", Content: "   "},
		{ID: "r2", Type: EventSendMessage, Receiver: "", Content: "hi"},
		{ID: "r3", Type: EventSendMessage, Receiver: "u1", Content: "hi"},
	}
	for _, ev := range cases {
		f.hub.HandleEvent(context.Background(), sender, ev)
		id, ack := lastAck(t, sender)
		assert.Equal(t, ev.ID, id)
		assert.False(t, ack.Success)
		assert.Equal(t, "Invalid payload", ack.Message)
	}
	assert.Empty(t, f.messages.created)
	assert.Zero(t, f.chats.getOrCreate)
}

func TestSendMessageUnknownReceiver(t *testing.T) {
	f := newHubFixture()
	sender := NewClient(f.hub, nil, "u1")

	f.hub.HandleEvent(context.Background(), sender, IncomingEvent{
		ID: "r1", Type: EventSendMessage, Receiver: "ghost", Content: "hi",
	})

	_, ack := lastAck(t, sender)
	assert.False(t, ack.Success)
	assert.Equal(t, "Receiver not found", ack.Message)
	assert.Empty(t, f.messages.created)
}

func TestSendMessageUnknownSender(t *testing.T) {
	f := newHubFixture()
	sender := NewClient(f.hub, nil, "deleted-user")

	f.hub.HandleEvent(context.Background(), sender, IncomingEvent{
		ID: "r1", Type: EventSendMessage, Receiver: "u2", Content: "hi",
	})

	_, ack := lastAck(t, sender)
	assert.False(t, ack.Success)
	assert.Equal(t, "Sender not found", ack.Message)
}

func TestSendMessageStoreFailure(t *testing.T) {
	f := newHubFixture()
	f.messages.createErr = errors.New("db down")
	sender := NewClient(f.hub, nil, "u1")
	receiver := &recordConn{}
	f.table.Register("u2", receiver)

	f.hub.HandleEvent(context.Background(), sender, IncomingEvent{
		ID: "r1", Type: EventSendMessage, Receiver: "u2", Content: "hi",
	})

	_, ack := lastAck(t, sender)
	assert.False(t, ack.Success)
	assert.Equal(t, "Internal server error", ack.Message)
	// Nothing persisted means nothing pushed.
	assert.Empty(t, receiver.sent)
}

func TestMessagesReadNotifiesOtherMembers(t *testing.T) {
	f := newHubFixture()
	reader := NewClient(f.hub, nil, "u1")
	peer := &recordConn{}
	f.table.Register("u1", reader)
	f.table.Register("u2", peer)

	f.hub.HandleEvent(context.Background(), reader, IncomingEvent{
		ID:         "r1",
		Type:       EventMessagesRead,
		ChatID:     "chat-1",
		MessageIDs: []string{"m1", "m2"},
	})

	require.Len(t, f.messages.markCalls, 1)
	call := f.messages.markCalls[0]
	assert.Equal(t, "chat-1", call.chatID)
	assert.Equal(t, []string{"m1", "m2"}, call.messageIDs)
	assert.Equal(t, "u1", call.userID)

	require.Len(t, peer.sent, 1)
	assert.Equal(t, EventMessagesRead, peer.sent[0].event)
	payload := peer.sent[0].payload.(MessagesReadPayload)
	assert.Equal(t, "chat-1", payload.ChatID)
	assert.Equal(t, "u1", payload.ReaderID)

	// The reader gets only the ack, not their own read receipt.
	events := drain(reader)
	require.Len(t, events, 1)
	assert.Equal(t, EventAck, events[0].Type)
	assert.True(t, events[0].Payload.(AckPayload).Success)
}

func TestMessagesReadEmptyPayload(t *testing.T) {
	f := newHubFixture()
	reader := NewClient(f.hub, nil, "u1")

	f.hub.HandleEvent(context.Background(), reader, IncomingEvent{
		ID: "r1", Type: EventMessagesRead, ChatID: "chat-1",
	})

	_, ack := lastAck(t, reader)
	assert.False(t, ack.Success)
	assert.Empty(t, f.messages.markCalls)
}

func TestMessagesReadStoreFailure(t *testing.T) {
	f := newHubFixture()
	f.messages.markErr = errors.New("db down")
	reader := NewClient(f.hub, nil, "u1")
	peer := &recordConn{}
	f.table.Register("u2", peer)

	f.hub.HandleEvent(context.Background(), reader, IncomingEvent{
		ID: "r1", Type: EventMessagesRead, ChatID: "chat-1", MessageIDs: []string{"m1"},
	})

	_, ack := lastAck(t, reader)
	assert.False(t, ack.Success)
	assert.Empty(t, peer.sent)
}

func TestTypingForwarded(t *testing.T) {
	f := newHubFixture()
	sender := NewClient(f.hub, nil, "u1")
	receiver := &recordConn{}
	f.table.Register("u2", receiver)

	f.hub.HandleEvent(context.Background(), sender, IncomingEvent{
		Type: EventTyping, Receiver: "u2",
	})

	require.Len(t, receiver.sent, 1)
	assert.Equal(t, EventTyping, receiver.sent[0].event)
	assert.Equal(t, TypingPayload{Sender: "u1"}, receiver.sent[0].payload)
	// Fire and forget: no ack, no error frame.
	assert.Empty(t, drain(sender))
}

func TestTypingOfflineReceiverDropped(t *testing.T) {
	f := newHubFixture()
	sender := NewClient(f.hub, nil, "u1")

	f.hub.HandleEvent(context.Background(), sender, IncomingEvent{
		Type: EventTyping, Receiver: "u2",
	})
	assert.Empty(t, drain(sender))
}

func TestLikePostSignalsAuthor(t *testing.T) {
	f := newHubFixture()
	actor := NewClient(f.hub, nil, "u1")
	author := &recordConn{}
	f.table.Register("u2", author)

	f.hub.HandleEvent(context.Background(), actor, IncomingEvent{
		Type: EventLikePost, PostID: "p1",
	})

	require.Len(t, author.sent, 1)
	assert.Equal(t, EventPostLiked, author.sent[0].event)
	payload := author.sent[0].payload.(ActorPayload)
	assert.Equal(t, "post.png", payload.PostImage)
	assert.Equal(t, "alice", payload.Username)
	assert.Equal(t, "alice.png", payload.Image)
}

func TestCommentPostSignalsAuthor(t *testing.T) {
	f := newHubFixture()
	actor := NewClient(f.hub, nil, "u1")
	author := &recordConn{}
	f.table.Register("u2", author)

	f.hub.HandleEvent(context.Background(), actor, IncomingEvent{
		Type: EventCommentPost, PostID: "p1",
	})

	require.Len(t, author.sent, 1)
	assert.Equal(t, EventPostCommented, author.sent[0].event)
}

func TestLikePostMissingPostIgnored(t *testing.T) {
	f := newHubFixture()
	actor := NewClient(f.hub, nil, "u1")
	author := &recordConn{}
	f.table.Register("u2", author)

	f.hub.HandleEvent(context.Background(), actor, IncomingEvent{
		Type: EventLikePost, PostID: "missing",
	})
	assert.Empty(t, author.sent)
}

func TestFollowUserSignalsTarget(t *testing.T) {
	f := newHubFixture()
	actor := NewClient(f.hub, nil, "u1")
	target := &recordConn{}
	f.table.Register("u2", target)

	f.hub.HandleEvent(context.Background(), actor, IncomingEvent{
		Type: EventFollowUser, UserID: "u2",
	})

	require.Len(t, target.sent, 1)
	assert.Equal(t, EventNewFollower, target.sent[0].event)
	payload := target.sent[0].payload.(ActorPayload)
	assert.Equal(t, "alice", payload.Username)
	assert.Empty(t, payload.PostImage)
}

func TestUnknownEventType(t *testing.T) {
	f := newHubFixture()
	c := NewClient(f.hub, nil, "u1")

	f.hub.HandleEvent(context.Background(), c, IncomingEvent{Type: "bogus"})

	events := drain(c)
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
}

func findRoster(events []OutgoingEvent) ([]string, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == EventOnlineUsers {
			ids, ok := events[i].Payload.([]string)
			return ids, ok
		}
	}
	return nil, false
}

func TestRosterBroadcastOnJoinAndLeave(t *testing.T) {
	f := newHubFixture()
	c1 := NewClient(f.hub, nil, "u1")
	c2 := NewClient(f.hub, nil, "u2")

	f.hub.addClient(c1)
	ids, ok := findRoster(drain(c1))
	require.True(t, ok)
	assert.Equal(t, []string{"u1"}, ids)

	f.hub.addClient(c2)
	ids, ok = findRoster(drain(c1))
	require.True(t, ok)
	assert.Equal(t, []string{"u1", "u2"}, ids)
	ids, ok = findRoster(drain(c2))
	require.True(t, ok)
	assert.Equal(t, []string{"u1", "u2"}, ids)

	f.hub.removeClient(c2)
	ids, ok = findRoster(drain(c1))
	require.True(t, ok)
	assert.Equal(t, []string{"u1"}, ids)
}

func TestLastConnectionWins(t *testing.T) {
	f := newHubFixture()
	first := NewClient(f.hub, nil, "u1")
	second := NewClient(f.hub, nil, "u1")

	f.hub.addClient(first)
	f.hub.addClient(second)

	// The first session was closed and replaced.
	select {
	case <-first.done:
	case <-time.After(time.Second):
		t.Fatal("replaced client was not closed")
	}
	conn, ok := f.table.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, second, conn.(*Client))

	// The stale session's disconnect must not remove the live one.
	f.hub.removeClient(first)
	_, ok = f.table.Lookup("u1")
	assert.True(t, ok)
}

// blockingMessages parks Create until released so a test can change the
// connection state mid-write, then records what the store's context saw.
type blockingMessages struct {
	fakeMessages
	entered chan struct{}
	release chan struct{}
	seenErr error
}

func (b *blockingMessages) Create(ctx context.Context, m *model.Message) error {
	close(b.entered)
	<-b.release
	b.seenErr = ctx.Err()
	if b.seenErr != nil {
		return b.seenErr
	}
	return b.fakeMessages.Create(ctx, m)
}

func (b *blockingMessages) MarkRead(ctx context.Context, chatID string, messageIDs []string, userID string) (int64, error) {
	close(b.entered)
	<-b.release
	b.seenErr = ctx.Err()
	if b.seenErr != nil {
		return 0, b.seenErr
	}
	return b.fakeMessages.MarkRead(ctx, chatID, messageIDs, userID)
}

func TestSendMessageSurvivesSessionReplacement(t *testing.T) {
	f := newHubFixture()
	messages := &blockingMessages{entered: make(chan struct{}), release: make(chan struct{})}
	hub := NewHub(f.table, f.users, f.chats, messages, f.posts, 100)

	first := NewClient(hub, nil, "u1")
	hub.addClient(first)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.HandleEvent(ctx, first, IncomingEvent{
			ID: "req-1", Type: EventSendMessage, Receiver: "u2", Content: "hi",
		})
	}()

	<-messages.entered
	// A fresh session for the same user closes the old one while the
	// write is still in flight.
	second := NewClient(hub, nil, "u1")
	hub.addClient(second)
	select {
	case <-first.done:
	case <-time.After(time.Second):
		t.Fatal("replaced client was not closed")
	}
	cancel()
	close(messages.release)
	<-done

	assert.NoError(t, messages.seenErr)
	require.Len(t, messages.created, 1)
	assert.Equal(t, "hi", messages.created[0].Body)
}

func TestMessagesReadSurvivesDisconnect(t *testing.T) {
	f := newHubFixture()
	messages := &blockingMessages{entered: make(chan struct{}), release: make(chan struct{})}
	hub := NewHub(f.table, f.users, f.chats, messages, f.posts, 100)

	reader := NewClient(hub, nil, "u1")
	hub.addClient(reader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.HandleEvent(ctx, reader, IncomingEvent{
			ID: "req-2", Type: EventMessagesRead, ChatID: "chat-1", MessageIDs: []string{"m1"},
		})
	}()

	<-messages.entered
	reader.Close()
	cancel()
	close(messages.release)
	<-done

	assert.NoError(t, messages.seenErr)
	require.Len(t, messages.markCalls, 1)
	assert.Equal(t, "chat-1", messages.markCalls[0].chatID)
}
