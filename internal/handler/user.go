package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/foodgram/internal/service"
	"github.com/sakif/foodgram/internal/validation"
)

// UserHandler serves registration, profiles, avatars, password changes and
// subscriptions under /api/users.
type UserHandler struct {
	users  *service.UserService
	subs   *service.SubscriptionService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, subs *service.SubscriptionService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, subs: subs, logger: logger}
}

type registerRequest struct {
	Email     string `json:"email"      validate:"required,email,max=254"`
	Username  string `json:"username"   validate:"required,max=150,username"`
	FirstName string `json:"first_name" validate:"required,max=48"`
	LastName  string `json:"last_name"  validate:"required,max=48"`
	Password  string `json:"password"   validate:"required,min=8"`
}

type registerResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type avatarRequest struct {
	Avatar string `json:"avatar" validate:"required"`
}

type avatarResponse struct {
	Avatar string `json:"avatar"`
}

type setPasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password"     validate:"required,min=8"`
}

// HandleRegister creates a password account.
//
// HTTP: POST /api/users
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	u, err := h.users.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	})
}

// HTTP: GET /api/users?limit=&page=
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	views, total, err := h.users.List(r.Context(), listOptions(r), viewerID(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(views, total))
}

// HTTP: GET /api/users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "user")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.users.Get(r.Context(), id, viewerID(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleMe returns the caller's own profile.
//
// HTTP: GET /api/users/me (auth)
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.users.Get(r.Context(), userID, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HTTP: PUT /api/users/me/avatar (auth)
func (h *UserHandler) HandleSetAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req avatarRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	url, err := h.users.SetAvatar(r.Context(), userID, req.Avatar)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, avatarResponse{Avatar: url})
}

// HTTP: DELETE /api/users/me/avatar (auth)
func (h *UserHandler) HandleDeleteAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.users.DeleteAvatar(r.Context(), userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: POST /api/users/set_password (auth)
func (h *UserHandler) HandleSetPassword(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req setPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.users.SetPassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSubscribe follows an author and returns them with their latest
// recipes.
//
// HTTP: POST /api/users/{id}/subscribe?recipes_limit=N (auth)
func (h *UserHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	authorID, err := pathID(r, "id", "user")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	view, err := h.subs.Subscribe(r.Context(), userID, authorID, optionalInt(r, "recipes_limit", 0))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// HTTP: DELETE /api/users/{id}/subscribe (auth)
func (h *UserHandler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	authorID, err := pathID(r, "id", "user")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.subs.Unsubscribe(r.Context(), userID, authorID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: GET /api/users/subscriptions?recipes_limit=N&limit=&page= (auth)
func (h *UserHandler) HandleSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views, total, err := h.subs.Subscriptions(r.Context(), userID, listOptions(r), optionalInt(r, "recipes_limit", 0))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(views, total))
}
