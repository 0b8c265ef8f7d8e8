package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"hostria.io/internal/auth"
	"hostria.io/internal/directory"
	"hostria.io/internal/obs"
)

type tenantRequest struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Type         string `json:"type"`
	Subscription string `json:"subscription_status"`
	Active       *bool  `json:"active"`
}

type branchRequest struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Phone    string `json:"phone"`
	Active   *bool  `json:"active"`
}

var (
	anyAdmin    = []auth.Role{auth.RoleSuperAdmin, auth.RoleTenantAdmin, auth.RoleBranchAdmin}
	tenantAdmin = []auth.Role{auth.RoleSuperAdmin, auth.RoleTenantAdmin}
	superOnly   = []auth.Role{auth.RoleSuperAdmin}
)

// authorize runs the route-level role and scope decision, counting denials.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, actor auth.AuthenticatedContext, required []auth.Role, scope auth.Scope) bool {
	if err := a.core.Authorize(r.Context(), actor, required, scope); err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			obs.AuthzDenials.Inc()
		}
		handleAuthError(w, r, err)
		return false
	}
	return true
}

func (a *API) handleTenantsCollection(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !a.authorize(w, r, actor, superOnly, auth.Scope{}) {
			return
		}
		tenants, err := a.dir.ListTenants(r.Context(), actor)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": tenants})
	case http.MethodPost:
		if !a.authorize(w, r, actor, superOnly, auth.Scope{}) {
			return
		}
		var req tenantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.dir.CreateTenant(r.Context(), actor, directory.TenantInput{
			Name:         req.Name,
			Slug:         req.Slug,
			Type:         auth.TenantType(strings.ToLower(strings.TrimSpace(req.Type))),
			Subscription: auth.SubscriptionStatus(strings.ToLower(strings.TrimSpace(req.Subscription))),
			Active:       req.Active,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/tenants/"+t.ID)
		writeJSON(w, http.StatusCreated, t)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTenantResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/tenants/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	tenantID := parts[0]

	if len(parts) == 2 && parts[1] == "branches" {
		a.handleTenantBranches(w, r, actor, tenantID)
		return
	}
	if len(parts) != 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !a.authorize(w, r, actor, anyAdmin, auth.Scope{TenantID: tenantID}) {
			return
		}
		t, err := a.dir.GetTenant(r.Context(), actor, tenantID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodPatch:
		if !a.authorize(w, r, actor, superOnly, auth.Scope{TenantID: tenantID}) {
			return
		}
		var req tenantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.dir.UpdateTenant(r.Context(), actor, tenantID, directory.TenantInput{
			Name:         req.Name,
			Type:         auth.TenantType(strings.ToLower(strings.TrimSpace(req.Type))),
			Subscription: auth.SubscriptionStatus(strings.ToLower(strings.TrimSpace(req.Subscription))),
			Active:       req.Active,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodDelete:
		if !a.authorize(w, r, actor, superOnly, auth.Scope{TenantID: tenantID}) {
			return
		}
		if err := a.dir.DeleteTenant(r.Context(), actor, tenantID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleTenantBranches(w http.ResponseWriter, r *http.Request, actor auth.AuthenticatedContext, tenantID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.authorize(w, r, actor, anyAdmin, auth.Scope{TenantID: tenantID}) {
			return
		}
		branches, err := a.dir.ListBranches(r.Context(), actor, tenantID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": branches})
	case http.MethodPost:
		var req branchRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		scope := auth.ResolveScope(
			auth.Scope{TenantID: tenantID},
			auth.Scope{TenantID: strings.TrimSpace(req.TenantID)},
			auth.Scope{},
		)
		if !a.authorize(w, r, actor, tenantAdmin, scope) {
			return
		}
		req.TenantID = scope.TenantID
		b, err := a.dir.CreateBranch(r.Context(), actor, directory.BranchInput{
			TenantID: req.TenantID,
			Name:     req.Name,
			Address:  req.Address,
			City:     req.City,
			Phone:    req.Phone,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/branches/"+b.ID)
		writeJSON(w, http.StatusCreated, b)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleBranchResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/branches/"), "/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	branchID := path

	switch r.Method {
	case http.MethodGet:
		if !a.authorize(w, r, actor, anyAdmin, auth.Scope{BranchID: branchID}) {
			return
		}
		b, err := a.dir.GetBranch(r.Context(), actor, branchID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	case http.MethodPatch:
		if !a.authorize(w, r, actor, anyAdmin, auth.Scope{BranchID: branchID}) {
			return
		}
		var req branchRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		b, err := a.dir.UpdateBranch(r.Context(), actor, branchID, directory.BranchInput{
			TenantID: req.TenantID,
			Name:     req.Name,
			Address:  req.Address,
			City:     req.City,
			Phone:    req.Phone,
			Active:   req.Active,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	case http.MethodDelete:
		if !a.authorize(w, r, actor, tenantAdmin, auth.Scope{BranchID: branchID}) {
			return
		}
		if err := a.dir.DeleteBranch(r.Context(), actor, branchID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}
