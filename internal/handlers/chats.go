package handlers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/internal/services"
	"github.com/WencesJ/Speer-Tweeter/pkg/utils"
)

// ChatService defines the chat operations the chat endpoints need.
type ChatService interface {
	GetOrCreateWith(ctx context.Context, principal *models.Principal, recipient bson.ObjectID) (*models.Chat, error)
	List(ctx context.Context, params url.Values) (*services.Page[models.Chat], error)
	DeleteForMember(ctx context.Context, principal *models.Principal, chatID bson.ObjectID) (*models.ChatDeletion, error)
}

// ChatHandler handles the /chats endpoints. Every route is gated.
type ChatHandler struct {
	chats ChatService
}

// NewChatHandler creates a chat handler.
func NewChatHandler(chats ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// List lists the chats the caller is a member of.
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	page, err := h.chats.List(r.Context(), services.AttachIdentity(principal, r.URL.Query()))
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusOK, "", page.Response())
}

// WithRecipient returns the direct chat between the caller and the
// recipient, opening it on first use.
func (h *ChatHandler) WithRecipient(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	recipient, err := objectIDParam(r, "recipient")
	if err != nil {
		respondError(w, r, err)
		return
	}

	chat, err := h.chats.GetOrCreateWith(r.Context(), principal, recipient)
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusOK, "", chat)
}

// Delete removes a chat of the caller together with all its messages.
// Deleting a chat that does not exist, or that the caller is not a member
// of, succeeds with deleted=false.
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	chatID, err := objectIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.chats.DeleteForMember(r.Context(), principal, chatID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	message := "Chat deleted successfully"
	if !result.Deleted {
		log.Debug().
			Str("chat_id", chatID.Hex()).
			Str("user_id", principal.ID.Hex()).
			Msg("Chat delete matched nothing")
		message = "Nothing to delete"
	}

	utils.RespondWithSuccess(w, r, http.StatusOK, message, result)
}
