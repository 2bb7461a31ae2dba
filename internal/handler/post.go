package handler

import (
	"context"
	"encoding/json"
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
	"github.com/sociogram/internal/repository"
)

type PostHandler struct {
	posts         *repository.PostRepository
	comments      *repository.CommentRepository
	follows       *repository.FollowRepository
	notifications *repository.NotificationRepository
	notifier      *notify.Notifier
}

func NewPostHandler(
	posts *repository.PostRepository,
	comments *repository.CommentRepository,
	follows *repository.FollowRepository,
	notifications *repository.NotificationRepository,
	notifier *notify.Notifier,
) *PostHandler {
	return &PostHandler{
		posts:         posts,
		comments:      comments,
		follows:       follows,
		notifications: notifications,
		notifier:      notifier,
	}
}

type createPostRequest struct {
	Caption  string `json:"caption"`
	ImageURL string `json:"image_url"`
}

func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	if req.ImageURL == "" {
		writeError(w, http.StatusBadRequest, "image_url required")
		return
	}

	post := &model.Post{
		ID:        uuid.New().String(),
		AuthorID:  userID,
		Caption:   strings.TrimSpace(req.Caption),
		ImageURL:  req.ImageURL,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.posts.Create(r.Context(), post); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create post")
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	postID := chi.URLParam(r, "id")

	post, err := h.posts.GetByID(r.Context(), postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get post")
		return
	}

	comments, err := h.comments.ListByPost(r.Context(), postID, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get comments")
		return
	}
	liked, err := h.posts.HasLiked(r.Context(), postID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get like state")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"post":     post,
		"comments": comments,
		"liked":    liked,
	})
}

// ToggleLike likes the post, or removes the like when it already exists. The
// author's like notification is created on like and withdrawn on unlike.
func (h *PostHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	postID := chi.URLParam(r, "id")

	post, err := h.posts.GetByID(r.Context(), postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get post")
		return
	}

	liked, err := h.posts.HasLiked(r.Context(), postID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get like state")
		return
	}

	if liked {
		if err := h.posts.Unlike(r.Context(), postID, userID); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to unlike")
			return
		}
		if err := h.notifications.DeleteForAction(r.Context(), model.NotificationLike, userID, post.AuthorID, &postID); err != nil {
			logger.Errorf("withdraw like notification post=%s: %v", postID, err)
		}
		writeJSON(w, http.StatusOK, map[string]bool{"liked": false})
		return
	}

	created, err := h.posts.Like(r.Context(), postID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to like")
		return
	}
	// Liking your own post is recorded but never announced.
	if created && post.AuthorID != userID {
		h.recordAndNotify(r.Context(), &model.Notification{
			ID:         uuid.New().String(),
			Type:       model.NotificationLike,
			FromUserID: userID,
			ToUserID:   post.AuthorID,
			PostID:     &postID,
			CreatedAt:  time.Now().UTC(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]bool{"liked": true})
}

type createCommentRequest struct {
	Body string `json:"body"`
}

func (h *PostHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	postID := chi.URLParam(r, "id")

	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		writeError(w, http.StatusBadRequest, "body required")
		return
	}

	post, err := h.posts.GetByID(r.Context(), postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get post")
		return
	}

	comment := &model.Comment{
		ID:        uuid.New().String(),
		PostID:    postID,
		AuthorID:  userID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.comments.Create(r.Context(), comment); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create comment")
		return
	}

	if post.AuthorID != userID {
		// Comment notifications are not deduplicated: every comment is its
		// own event, with its text on the record.
		h.recordAndNotify(r.Context(), &model.Notification{
			ID:         uuid.New().String(),
			Type:       model.NotificationComment,
			FromUserID: userID,
			ToUserID:   post.AuthorID,
			PostID:     &postID,
			Comment:    body,
			CreatedAt:  time.Now().UTC(),
		})
	}
	writeJSON(w, http.StatusCreated, comment)
}

// recordAndNotify persists the notification record and, when it is new
// rather than a duplicate, fans it out. The record is the source of truth:
// fan-out happens only after the write succeeded.
func (h *PostHandler) recordAndNotify(ctx context.Context, n *model.Notification) {
	created, err := h.notifications.Create(ctx, n)
	if err != nil {
		logger.Errorf("record %s notification %s->%s: %v", n.Type, n.FromUserID, n.ToUserID, err)
		return
	}
	if !created {
		return
	}
	go h.notifier.NotifyCreated(context.Background(), n.ID)
}
