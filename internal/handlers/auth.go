package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bbff-chat/apiserver/internal/auth"
	"github.com/bbff-chat/apiserver/internal/services"
	"github.com/bbff-chat/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// TokenVerifier decodes a bearer token into the caller's identity.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// RequireAuth rejects requests without an Authorization header (403) or
// with a token that is malformed or fails verification (401), and attaches the verified identity to the
// request context otherwise. The store is never consulted, so the role is
// the one embedded at issuance.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if errors.Is(err, errNoToken) {
				writeError(w, http.StatusForbidden, "token not provided")
				return
			}
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			identity, err := verifier.Verify(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole admits only identities whose role is in roles. Mount it after
// RequireAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok || !auth.HasRole(identity, roles...) {
				writeError(w, http.StatusForbidden, "access denied: insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthHandler serves login, registration and the identity echo.
type AuthHandler struct {
	users *services.UserService
}

func NewAuthHandler(users *services.UserService) *AuthHandler {
	return &AuthHandler{users: users}
}

// AuthRouter registers the public auth routes plus /protected behind
// requireAuth. limit wraps the public routes; pass nil to skip it.
func AuthRouter(r chi.Router, users *services.UserService, requireAuth, limit func(http.Handler) http.Handler) {
	handler := NewAuthHandler(users)

	public := r
	if limit != nil {
		public = r.With(limit)
	}
	public.Post("/register", handler.Register)
	public.Post("/login", handler.Login)
	r.With(requireAuth).Get("/protected", handler.Protected)
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleName string `json:"role_name"`

	// Role is accepted as an alias of RoleName.
	Role string `json:"role"`
}

func (req RegisterRequest) roleName() string {
	if req.RoleName != "" {
		return req.RoleName
	}
	return req.Role
}

type RegisterResponse struct {
	Message string     `json:"message"`
	User    types.User `json:"user"`
	Role    string     `json:"role"`
	Token   string     `json:"token"`
}

// Register creates an account. The optional role_name names an existing
// role; it defaults to "user".
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.users.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.roleName(),
	})
	if err != nil {
		respondError(w, r, err, "user not found")
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Message: "User registered successfully",
		User:    result.User,
		Role:    result.Role,
		Token:   result.Token,
	})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// Login answers 404 for an unknown username and 401 for a wrong password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, r, err, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}

type ProtectedResponse struct {
	Message string        `json:"message"`
	User    auth.Identity `json:"user"`
}

// Protected echoes the identity decoded from the caller's token.
func (h *AuthHandler) Protected(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, ProtectedResponse{Message: "This is a protected route", User: identity})
}

// caller returns the verified identity; routes mounting it sit behind
// RequireAuth.
func caller(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
	}
	return identity, ok
}

var errNoToken = errors.New("missing authorization")

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errNoToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
