package handlers

import (
	"net/http"

	"github.com/bbff-chat/apiserver/internal/services"
	"github.com/bbff-chat/apiserver/types"
	"github.com/go-chi/chi/v5"
)

type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// UserRouter registers /users routes. Every route needs a valid token; the
// id-only variants additionally need the admin role.
func UserRouter(r chi.Router, users *services.UserService, requireAuth func(http.Handler) http.Handler) {
	handler := NewUserHandler(users)
	adminOnly := RequireRole(types.RoleAdmin)

	r.Route("/users", func(r chi.Router) {
		r.Use(requireAuth)

		r.With(adminOnly).Get("/", handler.List)
		r.Get("/{id}", handler.Get)
		r.Put("/profile/{id}", handler.UpdateProfile)
		r.Delete("/profile/{id}", handler.DeleteProfile)
		r.With(adminOnly).Put("/{id}", handler.UpdateAny)
		r.With(adminOnly).Delete("/{id}", handler.DeleteAny)
	})
}

type UpdateUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
}

type UserResponse struct {
	Message string     `json:"message"`
	User    types.User `json:"user"`
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		respondError(w, r, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, r, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile changes the caller's own username or email; role is ignored.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), identity.ID, id, types.UserUpdate{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		respondError(w, r, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Message: "Profile updated successfully", User: user})
}

// UpdateAny changes any account. The admin gate in front of it is the only
// authorization check.
func (h *UserHandler) UpdateAny(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.users.UpdateAny(r.Context(), identity.ID, id, types.UserUpdate{
		Username: req.Username,
		Email:    req.Email,
		Role:     req.Role,
	})
	if err != nil {
		respondError(w, r, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Message: "User updated successfully", User: user})
}

func (h *UserHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.users.DeleteSelf(r.Context(), identity.ID, id); err != nil {
		respondError(w, r, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "User and related data deleted successfully"})
}

func (h *UserHandler) DeleteAny(w http.ResponseWriter, r *http.Request) {
	identity, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.users.DeleteAny(r.Context(), identity.ID, id); err != nil {
		respondError(w, r, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "User and related data deleted successfully"})
}
