// Package notify delivers notification records to their recipients: over the
// websocket when the recipient is online, over Web Push when they are not.
package notify

import (
	"context"
	"time"

	"github.com/sociogram/internal/logger"
	"github.com/sociogram/internal/model"
	"github.com/sociogram/internal/presence"
	"github.com/sociogram/internal/ws"
)

type NotificationStore interface {
	GetByID(ctx context.Context, id string) (*model.Notification, error)
}

type FollowStore interface {
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
}

// PushSender is the offline delivery channel; push.Sender satisfies it.
type PushSender interface {
	Enabled() bool
	Notify(ctx context.Context, userID string, payload any)
}

// EventPayload is the body of a "notification" websocket frame.
type EventPayload struct {
	Details     *model.Notification `json:"notificationDetails"`
	IsFollowing bool                `json:"isFollowing"`
}

type Notifier struct {
	notifications NotificationStore
	follows       FollowStore
	presence      *presence.Table
	push          PushSender
}

func NewNotifier(
	notifications NotificationStore,
	follows FollowStore,
	table *presence.Table,
	push PushSender,
) *Notifier {
	return &Notifier{
		notifications: notifications,
		follows:       follows,
		presence:      table,
		push:          push,
	}
}

// NotifyCreated fans out a freshly stored notification to its recipient.
// Delivery is best effort and never fails the triggering request: the record
// is already persisted, so an offline or unreachable recipient simply sees it
// on their next notification list fetch.
func (n *Notifier) NotifyCreated(ctx context.Context, notificationID string) {
	defer logger.DeferLogDuration("notify.NotifyCreated", time.Now())()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Reloaded with the actor summary and post image joined in, so the
	// pushed payload matches what the list endpoint returns.
	notif, err := n.notifications.GetByID(ctx, notificationID)
	if err != nil {
		logger.Errorf("notify: load notification %s: %v", notificationID, err)
		return
	}

	// Whether the recipient already follows the actor back; the client uses
	// it to render the follow-back button on follow notifications.
	isFollowing, err := n.follows.IsFollowing(ctx, notif.ToUserID, notif.FromUserID)
	if err != nil {
		logger.Errorf("notify: check follow-back %s->%s: %v", notif.ToUserID, notif.FromUserID, err)
		isFollowing = false
	}

	payload := EventPayload{Details: notif, IsFollowing: isFollowing}
	if conn, ok := n.presence.Lookup(notif.ToUserID); ok {
		if conn.Send(ws.EventNotification, payload) {
			return
		}
	}
	if n.push != nil && n.push.Enabled() {
		n.push.Notify(ctx, notif.ToUserID, payload)
	}
}
