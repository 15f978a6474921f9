package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bbff-chat/apiserver/internal/services"
	"github.com/bbff-chat/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// decodeJSON reads a bounded JSON body into dst and reports a 400 on
// failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter and reports a 400 on
// failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, name)))
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// respondError maps service and store errors to HTTP statuses. notFound is
// the message for store.ErrNotFound; ownership mismatches land there too.
// Anything unrecognized is logged and answered with a generic 500.
func respondError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), services.ErrInvalidInput.Error()+": "))
	case errors.Is(err, services.ErrNoFieldsToUpdate):
		writeError(w, http.StatusBadRequest, "no fields provided for update")
	case errors.Is(err, services.ErrUnknownRole):
		writeError(w, http.StatusBadRequest, "role not found")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid password")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "you can only manage your own account")
	case errors.Is(err, services.ErrUserExists):
		writeError(w, http.StatusConflict, "username or email already exists")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, services.ErrExportDisabled):
		writeError(w, http.StatusServiceUnavailable, "transcript export is not configured")
	default:
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
