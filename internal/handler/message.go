package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sociogram/internal/middleware"
	"github.com/sociogram/internal/model"
	"github.com/sociogram/internal/repository"
)

type MessageHandler struct {
	users    *repository.UserRepository
	chats    *repository.ChatRepository
	messages *repository.MessageRepository
}

func NewMessageHandler(
	users *repository.UserRepository,
	chats *repository.ChatRepository,
	messages *repository.MessageRepository,
) *MessageHandler {
	return &MessageHandler{users: users, chats: chats, messages: messages}
}

type conversationResponse struct {
	Chat     *model.Chat       `json:"chat"`
	Peer     model.UserSummary `json:"peer"`
	Messages []model.Message   `json:"messages"`
}

// GetConversation returns the chat with the given peer (addressed by user id
// or username) and its message history, newest first. A peer the caller has
// never written to yields an empty history, not a 404: the chat is only
// created when the first message is sent.
func (h *MessageHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	identifier := chi.URLParam(r, "identifier")

	peer, err := h.users.GetByIdentifier(r.Context(), identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to resolve user")
		return
	}
	if peer.ID == userID {
		writeError(w, http.StatusBadRequest, "cannot open a chat with yourself")
		return
	}

	resp := conversationResponse{Peer: peer.Summary(), Messages: []model.Message{}}

	chat, err := h.chats.FindByMembers(r.Context(), userID, peer.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get chat")
		return
	}
	resp.Chat = chat

	limit := queryInt(r, "limit", 50)
	if limit > 100 {
		limit = 100
	}
	before := r.URL.Query().Get("before")

	msgs, err := h.messages.ListByChat(r.Context(), chat.ID, before, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get messages")
		return
	}
	resp.Messages = msgs

	writeJSON(w, http.StatusOK, resp)
}

type chatListResponse struct {
	Chats      []model.ChatPreview `json:"chats"`
	Candidates []model.UserSummary `json:"candidates"`
}

// ListChats returns the caller's chats with previews plus follow-graph users
// they could start a new chat with.
func (h *MessageHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	chats, err := h.chats.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}

	candidates, err := h.users.ChatCandidates(r.Context(), userID, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list chat candidates")
		return
	}

	writeJSON(w, http.StatusOK, chatListResponse{Chats: chats, Candidates: candidates})
}
