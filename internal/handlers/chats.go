package handlers

import (
	"net/http"
	"strconv"

	"github.com/bbff-chat/apiserver/internal/auth"
	"github.com/bbff-chat/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
)

const (
	chatNotFound       = "chat not found"
	transcriptNotFound = "transcript not found"
)

type ChatHandler struct {
	chats *services.ChatService
}

func NewChatHandler(chats *services.ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// ChatRouter registers /chats routes behind requireAuth. Ownership is
// enforced by the service.
func ChatRouter(r chi.Router, chats *services.ChatService, requireAuth func(http.Handler) http.Handler) {
	handler := NewChatHandler(chats)

	r.Route("/chats", func(r chi.Router) {
		r.Use(requireAuth)

		r.Post("/", handler.Create)
		r.Get("/", handler.List)
		r.Get("/{id}", handler.Get)
		r.Put("/{id}", handler.Update)
		r.Delete("/{id}", handler.Delete)
		r.Post("/{id}/export", handler.Export)
		r.Get("/{id}/transcripts/{exportedAt}", handler.GetTranscript)
		r.Delete("/{id}/transcripts/{exportedAt}", handler.DeleteTranscript)
	})
}

type ChatRequest struct {
	Title string `json:"title"`
}

type ExportResponse struct {
	Key        string `json:"key"`
	ExportedAt int64  `json:"exported_at"`
}

func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	chat, err := h.chats.Create(r.Context(), identity.ID, req.Title)
	if err != nil {
		respondError(w, r, err, "user not found")
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	chats, err := h.chats.List(r.Context(), identity.ID)
	if err != nil {
		respondError(w, r, err, chatNotFound)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	chat, err := h.chats.Get(r.Context(), identity.ID, id)
	if err != nil {
		respondError(w, r, err, chatNotFound)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *ChatHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	chat, err := h.chats.UpdateTitle(r.Context(), identity.ID, id, req.Title)
	if err != nil {
		respondError(w, r, err, chatNotFound)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.chats.Delete(r.Context(), identity.ID, id); err != nil {
		respondError(w, r, err, chatNotFound)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Chat deleted successfully"})
}

// Export stores a transcript of the chat and returns its object key.
func (h *ChatHandler) Export(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.chats.Export(r.Context(), identity.ID, id)
	if err != nil {
		respondError(w, r, err, chatNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, ExportResponse{Key: result.Key, ExportedAt: result.ExportedAt})
}

// GetTranscript returns a transcript previously stored by Export.
func (h *ChatHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	identity, id, exportedAt, ok := transcriptParams(w, r)
	if !ok {
		return
	}
	transcript, err := h.chats.Transcript(r.Context(), identity.ID, id, exportedAt)
	if err != nil {
		respondError(w, r, err, transcriptNotFound)
		return
	}
	writeJSON(w, http.StatusOK, transcript)
}

func (h *ChatHandler) DeleteTranscript(w http.ResponseWriter, r *http.Request) {
	identity, id, exportedAt, ok := transcriptParams(w, r)
	if !ok {
		return
	}
	if err := h.chats.DeleteTranscript(r.Context(), identity.ID, id, exportedAt); err != nil {
		respondError(w, r, err, transcriptNotFound)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Transcript deleted successfully"})
}

func transcriptParams(w http.ResponseWriter, r *http.Request) (auth.Identity, int, int64, bool) {
	identity, ok := caller(w, r)
	if !ok {
		return auth.Identity{}, 0, 0, false
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return auth.Identity{}, 0, 0, false
	}
	exportedAt, err := strconv.ParseInt(chi.URLParam(r, "exportedAt"), 10, 64)
	if err != nil || exportedAt <= 0 {
		writeError(w, http.StatusBadRequest, "invalid export timestamp")
		return auth.Identity{}, 0, 0, false
	}
	return identity, id, exportedAt, true
}
