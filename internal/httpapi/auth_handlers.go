package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"hostria.io/internal/auth"
	"hostria.io/internal/obs"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	AccessToken        string    `json:"access_token"`
	RefreshToken       string    `json:"refresh_token"`
	TokenType          string    `json:"token_type"`
	ExpiresAt          time.Time `json:"expires_at"`
	MustChangePassword bool      `json:"must_change_password,omitempty"`

	User *auth.Principal `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	All          bool   `json:"all"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type changeCredentialsRequest struct {
	CurrentPassword string `json:"current_password"`
	NewUsername     string `json:"new_username"`
	NewPassword     string `json:"new_password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "identifier and password are required")
		return
	}

	res, err := a.core.Login(r.Context(), req.Identifier, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAccountLocked):
			obs.LoginAttempts.WithLabelValues("locked").Inc()
		case errors.Is(err, auth.ErrInvalidCredentials),
			errors.Is(err, auth.ErrAccountInactive),
			errors.Is(err, auth.ErrTenantInactive):
			obs.LoginAttempts.WithLabelValues("denied").Inc()
		default:
			obs.LoginAttempts.WithLabelValues("error").Inc()
		}
		handleAuthError(w, r, err)
		return
	}

	obs.LoginAttempts.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:        res.AccessToken,
		RefreshToken:       res.RefreshToken,
		TokenType:          "Bearer",
		ExpiresAt:          res.AccessExpires,
		MustChangePassword: res.Principal.MustChangePassword,
		User:               res.Principal,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}

	access, expires, err := a.core.RefreshAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		obs.TokenRefreshes.WithLabelValues("denied").Inc()
		handleAuthError(w, r, err)
		return
	}

	obs.TokenRefreshes.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresAt:   expires,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req logoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token := strings.TrimSpace(req.RefreshToken)
	if req.All {
		token = ""
	}
	if err := a.core.Logout(r.Context(), actor.PrincipalID, token); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.core.ChangePassword(r.Context(), actor.PrincipalID, req.CurrentPassword, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleChangeCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req changeCredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err := a.core.ChangeUsernameAndPassword(r.Context(), actor.PrincipalID,
		req.CurrentPassword, strings.TrimSpace(req.NewUsername), req.NewPassword)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
