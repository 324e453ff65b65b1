package handler

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/blake2b"

	"github.com/starterkit/starterkit/internal/handler/dto"
	"github.com/starterkit/starterkit/internal/model"
	"github.com/starterkit/starterkit/internal/service"
)

// UserHandler handles HTTP requests for user operations.
type UserHandler struct {
	svc    *service.UserService
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		svc:    svc,
		logger: logger,
	}
}

// Create handles POST /api/v1/users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isBodyTooLarge(err) {
			writeBodyTooLarge(w)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	user, err := h.svc.CreateUser(r.Context(), service.CreateUserInput{Email: req.Email})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("user_created", "user_id", user.ID)

	w.Header().Set("Location", "/api/v1/users/"+strconv.FormatInt(user.ID, 10))
	writeJSON(w, http.StatusCreated, dto.ToUserResponse(user))
}

// Get handles GET /api/v1/users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "User ID must be a positive integer")
		return
	}

	user, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	etag := UserETag(user)
	w.Header().Set("ETag", etag)
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToUserResponse(user))
}

// List handles GET /api/v1/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 20
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	result, err := h.svc.ListUsers(r.Context(), service.ListUsersInput{
		Cursor: query.Get("cursor"),
		Limit:  limit,
		Email:  query.Get("email"),
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToUserListResponse(result.Users, result.NextCursor, result.HasMore))
}

// handleServiceError maps service errors to HTTP responses.
func (h *UserHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, service.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "INVALID_EMAIL", "Invalid email address")
	case errors.Is(err, service.ErrEmailTooLong):
		writeError(w, http.StatusBadRequest, "EMAIL_TOO_LONG", "Email address exceeds maximum length")
	case errors.Is(err, service.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Invalid pagination cursor")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// UserETag returns a strong entity tag for a stored user.
// Users are immutable once inserted, so the tag never changes for a given id.
func UserETag(user *model.User) string {
	// blake2b.New only fails for sizes outside 1..64 or oversized keys.
	hash, _ := blake2b.New(16, nil)
	hash.Write([]byte(strconv.FormatInt(user.ID, 10)))
	hash.Write([]byte{0})
	hash.Write([]byte(user.Email))
	hash.Write([]byte{0})
	hash.Write([]byte(user.CreatedAt.UTC().Format(time.RFC3339Nano)))
	return `"` + hex.EncodeToString(hash.Sum(nil)) + `"`
}

// etagMatches reports whether an If-None-Match header matches etag.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
