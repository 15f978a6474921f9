package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bbff-chat/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
)

const (
	chatNotOwned    = "chat not found or user not authorized"
	messageNotFound = "message not found"
)

type MessageHandler struct {
	messages *services.MessageService
}

func NewMessageHandler(messages *services.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// MessageRouter registers /messages routes behind requireAuth.
func MessageRouter(r chi.Router, messages *services.MessageService, requireAuth func(http.Handler) http.Handler) {
	handler := NewMessageHandler(messages)

	r.Route("/messages", func(r chi.Router) {
		r.Use(requireAuth)

		r.Post("/", handler.Create)
		r.Get("/", handler.List)
		r.Put("/{id}", handler.Update)
		r.Delete("/{id}", handler.Delete)
	})
}

type CreateMessageRequest struct {
	ChatID  int    `json:"chat_id"`
	Content string `json:"content"`
}

type UpdateMessageRequest struct {
	Content string `json:"content"`
}

type MessageEnvelope struct {
	Message string `json:"message"`
	Data    any    `json:"messageData"`
}

func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	var req CreateMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	message, err := h.messages.Create(r.Context(), identity.ID, req.ChatID, req.Content)
	if err != nil {
		respondError(w, r, err, chatNotOwned)
		return
	}
	writeJSON(w, http.StatusCreated, MessageEnvelope{Message: "Message created successfully", Data: message})
}

// List returns the messages of the chat named by the chat_id query
// parameter, which must belong to the caller.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	chatID, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("chat_id")))
	if err != nil || chatID < 1 {
		writeError(w, http.StatusBadRequest, "invalid chat_id")
		return
	}

	messages, err := h.messages.List(r.Context(), identity.ID, chatID)
	if err != nil {
		respondError(w, r, err, chatNotOwned)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Messages retrieved successfully", Data: messages})
}

func (h *MessageHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	message, err := h.messages.Update(r.Context(), identity.ID, id, req.Content)
	if err != nil {
		respondError(w, r, err, messageNotFound)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Message updated successfully", Data: message})
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.messages.Delete(r.Context(), identity.ID, id); err != nil {
		respondError(w, r, err, messageNotFound)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Message deleted successfully"})
}
