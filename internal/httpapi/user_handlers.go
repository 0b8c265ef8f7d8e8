package httpapi

import (
	"net/http"
	"strings"

	"hostria.io/internal/auth"
	"hostria.io/internal/directory"
)

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
	BranchID string `json:"branch_id"`
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	BranchID *string `json:"branch_id"`
	Active   *bool   `json:"active"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
		scope := auth.ResolveScope(auth.Scope{}, auth.Scope{}, auth.Scope{TenantID: tenantID})
		if !a.authorize(w, r, actor, tenantAdmin, scope) {
			return
		}
		users, err := a.dir.ListUsers(r.Context(), actor, tenantID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": users})
	case http.MethodPost:
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := auth.ParseRole(req.Role)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		scope := auth.ResolveScope(
			auth.Scope{},
			auth.Scope{TenantID: strings.TrimSpace(req.TenantID), BranchID: strings.TrimSpace(req.BranchID)},
			auth.Scope{},
		)
		if !a.authorize(w, r, actor, tenantAdmin, scope) {
			return
		}
		user, err := a.dir.CreateUser(r.Context(), actor, directory.UserInput{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
			Role:     role,
			TenantID: req.TenantID,
			BranchID: req.BranchID,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/users/"+user.ID)
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]

	if len(parts) == 2 && parts[1] == "password" {
		a.handleResetPassword(w, r, actor, userID)
		return
	}
	if len(parts) != 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !a.authorize(w, r, actor, anyAdmin, auth.Scope{}) {
			return
		}
		user, err := a.dir.GetUser(r.Context(), actor, userID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		if !a.authorize(w, r, actor, tenantAdmin, auth.Scope{}) {
			return
		}
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.dir.UpdateUser(r.Context(), actor, userID, directory.UserUpdate{
			Email:    req.Email,
			BranchID: req.BranchID,
			Active:   req.Active,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if !a.authorize(w, r, actor, tenantAdmin, auth.Scope{}) {
			return
		}
		if err := a.dir.DeleteUser(r.Context(), actor, userID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request, actor auth.AuthenticatedContext, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.authorize(w, r, actor, tenantAdmin, auth.Scope{}) {
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.dir.ResetPassword(r.Context(), actor, userID, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
