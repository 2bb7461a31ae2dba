package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sociogram/internal/model"
	"github.com/sociogram/internal/presence"
	"github.com/sociogram/internal/repository"
	"github.com/sociogram/internal/ws"
)

type fakeNotifications struct {
	byID map[string]*model.Notification
	err  error
}

func (f *fakeNotifications) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	if f.err != nil {
		return nil, f.err
	}
	n, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return n, nil
}

type fakeFollows struct {
	following map[string]bool
	err       error
}

func (f *fakeFollows) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.following[followerID+"->"+followeeID], nil
}

type fakePush struct {
	enabled bool
	calls   []string
	last    any
}

func (f *fakePush) Enabled() bool { return f.enabled }

func (f *fakePush) Notify(ctx context.Context, userID string, payload any) {
	f.calls = append(f.calls, userID)
	f.last = payload
}

type sentEvent struct {
	event   string
	payload any
}

type recordConn struct {
	sent []sentEvent
	ok   bool
}

func (r *recordConn) Send(event string, payload any) bool {
	r.sent = append(r.sent, sentEvent{event: event, payload: payload})
	return r.ok
}

func fixture() (*Notifier, *fakeNotifications, *fakeFollows, *presence.Table, *fakePush) {
	notif := &model.Notification{
		ID:         "n1",
		Type:       model.NotificationFollow,
		FromUserID: "u1",
		ToUserID:   "u2",
		From:       &model.UserSummary{ID: "u1", Username: "alice"},
	}
	notifs := &fakeNotifications{byID: map[string]*model.Notification{"n1": notif}}
	follows := &fakeFollows{following: map[string]bool{}}
	table := presence.NewTable()
	push := &fakePush{enabled: true}
	return NewNotifier(notifs, follows, table, push), notifs, follows, table, push
}

func TestNotifyCreatedOnlineRecipient(t *testing.T) {
	n, _, follows, table, push := fixture()
	follows.following["u2->u1"] = true
	conn := &recordConn{ok: true}
	table.Register("u2", conn)

	n.NotifyCreated(context.Background(), "n1")

	require.Len(t, conn.sent, 1)
	assert.Equal(t, ws.EventNotification, conn.sent[0].event)
	payload := conn.sent[0].payload.(EventPayload)
	assert.Equal(t, "n1", payload.Details.ID)
	assert.True(t, payload.IsFollowing)
	// Delivered over the socket, so no web push.
	assert.Empty(t, push.calls)
}

func TestNotifyCreatedOfflineFallsBackToPush(t *testing.T) {
	n, _, _, _, push := fixture()

	n.NotifyCreated(context.Background(), "n1")

	require.Equal(t, []string{"u2"}, push.calls)
	payload := push.last.(EventPayload)
	assert.Equal(t, "n1", payload.Details.ID)
	assert.False(t, payload.IsFollowing)
}

func TestNotifyCreatedSlowSocketFallsBackToPush(t *testing.T) {
	n, _, _, table, push := fixture()
	conn := &recordConn{ok: false}
	table.Register("u2", conn)

	n.NotifyCreated(context.Background(), "n1")

	// Enqueue failed, so the push channel takes over.
	assert.Equal(t, []string{"u2"}, push.calls)
}

func TestNotifyCreatedPushDisabled(t *testing.T) {
	n, _, _, _, push := fixture()
	push.enabled = false

	n.NotifyCreated(context.Background(), "n1")

	assert.Empty(t, push.calls)
}

func TestNotifyCreatedMissingRecordIsSwallowed(t *testing.T) {
	n, notifs, _, table, push := fixture()
	notifs.err = errors.New("db down")
	conn := &recordConn{ok: true}
	table.Register("u2", conn)

	n.NotifyCreated(context.Background(), "n1")

	assert.Empty(t, conn.sent)
	assert.Empty(t, push.calls)
}

func TestNotifyCreatedFollowCheckFailureDefaultsFalse(t *testing.T) {
	n, _, follows, table, _ := fixture()
	follows.err = errors.New("db down")
	conn := &recordConn{ok: true}
	table.Register("u2", conn)

	n.NotifyCreated(context.Background(), "n1")

	require.Len(t, conn.sent, 1)
	payload := conn.sent[0].payload.(EventPayload)
	assert.False(t, payload.IsFollowing)
}
