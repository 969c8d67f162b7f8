package handlers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/internal/services"
	"github.com/WencesJ/Speer-Tweeter/pkg/utils"
)

// MessageService defines the message operations the message endpoints need.
type MessageService interface {
	ListForChat(ctx context.Context, principal *models.Principal, chatID bson.ObjectID, params url.Values) (*services.Page[models.Message], error)
	Send(ctx context.Context, principal *models.Principal, chatID bson.ObjectID, in services.MessageInput) (*models.Message, error)
	Delete(ctx context.Context, principal *models.Principal, msgID bson.ObjectID) (*models.Message, error)
}

// MessageHandler handles the /msgs endpoints. Every route is gated.
type MessageHandler struct {
	messages MessageService
}

// NewMessageHandler creates a message handler.
func NewMessageHandler(messages MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// SendMessageRequest is the body of POST /msgs/{chat}/msg.
type SendMessageRequest struct {
	Text      string            `json:"text" validate:"required,max=200"`
	Date      *time.Time        `json:"date" validate:"required"`
	Time      *models.ClockTime `json:"time" validate:"required"`
	Recipient string            `json:"recipient" validate:"required,mongodb"`
}

// ListForChat lists the messages of a chat the caller belongs to, oldest
// first unless the query asks otherwise.
func (h *MessageHandler) ListForChat(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	chatID, err := objectIDParam(r, "chat")
	if err != nil {
		respondError(w, r, err)
		return
	}

	page, err := h.messages.ListForChat(r.Context(), principal, chatID, r.URL.Query())
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusOK, "", page.Response())
}

// Send posts a message to a chat of the caller.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	chatID, err := objectIDParam(r, "chat")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	recipient, _ := bson.ObjectIDFromHex(req.Recipient)

	msg, err := h.messages.Send(r.Context(), principal, chatID, services.MessageInput{
		Text:      req.Text,
		Date:      *req.Date,
		Time:      *req.Time,
		Recipient: recipient,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusCreated, "Message sent successfully", msg)
}

// Delete removes a message the caller authored.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	msgID, err := objectIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	msg, err := h.messages.Delete(r.Context(), principal, msgID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusOK, "Message deleted successfully", msg)
}
