package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/sociogram/internal/logger"
	"github.com/sociogram/internal/repository"
)

// Sender delivers Web Push notifications to a user's saved browser
// subscriptions. A Sender with empty VAPID keys is a no-op.
type Sender struct {
	subs       *repository.PushSubscriptionRepository
	publicKey  string
	privateKey string
	subscriber string
}

func NewSender(subs *repository.PushSubscriptionRepository, keys *VAPIDKeys, subscriber string) *Sender {
	s := &Sender{subs: subs, subscriber: subscriber}
	if keys != nil {
		s.publicKey = keys.PublicKey
		s.privateKey = keys.PrivateKey
	}
	return s
}

// Enabled reports whether push delivery is configured.
func (s *Sender) Enabled() bool {
	return s != nil && s.subs != nil && s.publicKey != "" && s.privateKey != ""
}

// Notify sends the payload to every subscription the user has. Delivery is
// best effort: failures are logged, and subscriptions the push service
// reports as gone (404/410) are removed.
func (s *Sender) Notify(ctx context.Context, userID string, payload any) {
	if !s.Enabled() {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("push notify marshal user=%s: %v", userID, err)
		return
	}
	subs, err := s.subs.ListForUser(ctx, userID)
	if err != nil {
		logger.Errorf("push notify list subs user=%s: %v", userID, err)
		return
	}
	for _, sub := range subs {
		target := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.Keys.P256dh,
				Auth:   sub.Keys.Auth,
			},
		}
		resp, err := webpush.SendNotification(body, target, &webpush.Options{
			Subscriber:      s.subscriber,
			VAPIDPublicKey:  s.publicKey,
			VAPIDPrivateKey: s.privateKey,
			TTL:             int((24 * time.Hour).Seconds()),
		})
		if err != nil {
			logger.Errorf("push notify user=%s: %v", userID, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			if err := s.subs.Delete(ctx, sub.Endpoint); err != nil {
				logger.Errorf("push drop stale subscription: %v", err)
			}
			continue
		}
		if resp.StatusCode >= 400 {
			logger.Errorf("push notify user=%s: status %d", userID, resp.StatusCode)
		}
	}
}
