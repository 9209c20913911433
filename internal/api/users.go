package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/oddaja/internal/model"
	"github.com/erazemk/oddaja/internal/store"
)

// UsersHandler manages operator accounts (admin only).
type UsersHandler struct {
	DB *sql.DB
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	Role string `json:"role"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListOperators(r.Context(), h.DB)
	if err != nil {
		slog.Error("listing operators", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	jsonResponse(w, http.StatusOK, users)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" || req.Role == "" {
		jsonError(w, http.StatusBadRequest, "username, password, and role required")
		return
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "invalid role")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := store.CreateOperator(r.Context(), h.DB, req.Username, string(hash), req.Role)
	if err != nil {
		slog.Warn("creating operator", "username", req.Username, "error", err)
		jsonError(w, http.StatusConflict, "username already exists")
		return
	}

	slog.Info("operator created", "user", GetClaims(r.Context()).Username, "new_user", req.Username, "role", req.Role)
	jsonResponse(w, http.StatusCreated, user)
}

// Update handles PUT /api/users/{id}.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "invalid role")
		return
	}

	if req.Role != model.RoleAdmin && !h.keepsAnAdmin(w, r, id) {
		return
	}

	if err := store.SetOperatorRole(r.Context(), h.DB, id, req.Role); err != nil {
		h.writeErr(w, "updating operator role", err)
		return
	}

	user, err := store.GetOperator(r.Context(), h.DB, id)
	if err != nil {
		h.writeErr(w, "loading operator", err)
		return
	}
	slog.Info("operator role updated", "user", GetClaims(r.Context()).Username, "target_user", user.Username, "new_role", req.Role)
	jsonResponse(w, http.StatusOK, user)
}

// ResetPassword handles PUT /api/users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	if err := store.SetOperatorPassword(r.Context(), h.DB, id, string(hash)); err != nil {
		h.writeErr(w, "resetting password", err)
		return
	}

	slog.Info("operator password reset", "user", GetClaims(r.Context()).Username, "target_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// Delete handles DELETE /api/users/{id}. The account is disabled, not
// removed.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	claims := GetClaims(r.Context())
	if self, err := claims.OperatorID(); err == nil && self == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}
	if !h.keepsAnAdmin(w, r, id) {
		return
	}

	if err := store.DisableOperator(r.Context(), h.DB, id); err != nil {
		h.writeErr(w, "disabling operator", err)
		return
	}

	slog.Info("operator disabled", "user", claims.Username, "target_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// keepsAnAdmin writes a 409 and returns false when id is the last active
// admin.
func (h *UsersHandler) keepsAnAdmin(w http.ResponseWriter, r *http.Request, id int64) bool {
	target, err := store.GetOperator(r.Context(), h.DB, id)
	if err != nil {
		h.writeErr(w, "loading operator", err)
		return false
	}
	if target.Role != model.RoleAdmin || target.DeletedAt != nil {
		return true
	}
	n, err := store.CountAdmins(r.Context(), h.DB)
	if err != nil {
		h.writeErr(w, "counting admins", err)
		return false
	}
	if n <= 1 {
		jsonError(w, http.StatusConflict, "cannot remove the last admin")
		return false
	}
	return true
}

func (h *UsersHandler) writeErr(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, model.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	slog.Error(op, "error", err)
	jsonError(w, http.StatusInternalServerError, "internal error")
}
