package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sociogram/internal/logger"
	"github.com/sociogram/internal/middleware"
	"github.com/sociogram/internal/model"
	"github.com/sociogram/internal/notify"
	"github.com/sociogram/internal/presence"
	"github.com/sociogram/internal/repository"
)

type UserHandler struct {
	users         *repository.UserRepository
	follows       *repository.FollowRepository
	notifications *repository.NotificationRepository
	notifier      *notify.Notifier
	presence      *presence.Table
}

func NewUserHandler(
	users *repository.UserRepository,
	follows *repository.FollowRepository,
	notifications *repository.NotificationRepository,
	notifier *notify.Notifier,
	table *presence.Table,
) *UserHandler {
	return &UserHandler{
		users:         users,
		follows:       follows,
		notifications: notifications,
		notifier:      notifier,
		presence:      table,
	}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusOK, []model.UserSummary{})
		return
	}
	limit := queryInt(r, "limit", 20)
	if limit > 50 {
		limit = 50
	}
	users, err := h.users.Search(r.Context(), userID, query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	identifier := chi.URLParam(r, "identifier")

	user, err := h.users.GetByIdentifier(r.Context(), identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	following, err := h.follows.IsFollowing(r.Context(), userID, user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get follow state")
		return
	}
	_, online := h.presence.Lookup(user.ID)

	writeJSON(w, http.StatusOK, map[string]any{
		"user":      user,
		"following": following,
		"online":    online,
	})
}

// ToggleFollow follows the target user, or unfollows when already following.
// The follow notification appears on follow and is withdrawn on unfollow.
func (h *UserHandler) ToggleFollow(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	targetID := chi.URLParam(r, "id")

	if targetID == userID {
		writeError(w, http.StatusBadRequest, "cannot follow yourself")
		return
	}
	target, err := h.users.GetByID(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	following, err := h.follows.IsFollowing(r.Context(), userID, target.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get follow state")
		return
	}

	if following {
		if err := h.follows.Unfollow(r.Context(), userID, target.ID); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to unfollow")
			return
		}
		if err := h.notifications.DeleteForAction(r.Context(), model.NotificationFollow, userID, target.ID, nil); err != nil {
			logger.Errorf("withdraw follow notification %s->%s: %v", userID, target.ID, err)
		}
		writeJSON(w, http.StatusOK, map[string]bool{"following": false})
		return
	}

	created, err := h.follows.Follow(r.Context(), userID, target.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to follow")
		return
	}
	if created {
		n := &model.Notification{
			ID:         uuid.New().String(),
			Type:       model.NotificationFollow,
			FromUserID: userID,
			ToUserID:   target.ID,
			CreatedAt:  time.Now().UTC(),
		}
		wasNew, err := h.notifications.Create(r.Context(), n)
		if err != nil {
			logger.Errorf("record follow notification %s->%s: %v", userID, target.ID, err)
		} else if wasNew {
			go h.notifier.NotifyCreated(context.Background(), n.ID)
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"following": true})
}
