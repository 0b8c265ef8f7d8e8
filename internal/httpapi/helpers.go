package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"hostria.io/internal/auth"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleAuthError maps the auth taxonomy onto HTTP statuses. Credential and
// token failures stay deliberately vague; a locked account is the one state
// the client is told about explicitly.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var policyErr *auth.PasswordPolicyError
	if errors.As(err, &policyErr) {
		payload := map[string]any{
			"error":      "password does not meet the policy",
			"violations": policyErr.Violations,
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusBadRequest, payload)
		return
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrAccountLocked):
		writeError(w, r, http.StatusLocked, "account temporarily locked")
	case errors.Is(err, auth.ErrAccountInactive), errors.Is(err, auth.ErrTenantInactive):
		writeError(w, r, http.StatusForbidden, "account is not allowed to sign in")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenRevoked), errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, auth.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "storage unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
