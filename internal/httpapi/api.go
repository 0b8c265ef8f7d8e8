// Package httpapi is the HTTP surface of the service: authentication
// endpoints, the tenant/branch/user admin API and the security event stream.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"hostria.io/internal/audit"
	"hostria.io/internal/auth"
	"hostria.io/internal/directory"
	"hostria.io/internal/obs"
)

// ReadyProbe pings the database for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options tunes the HTTP layer.
type Options struct {
	Version          string
	MaxBodyBytes     int64
	RateLimitPerSec  int
	RateLimitBurst   int
	ShutdownGraceful time.Duration
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	core       *auth.Service
	dir        *directory.Service
	stream     *audit.Stream
	log        *zap.Logger
	readyProbe ReadyProbe
	version    string
	opts       Options
}

// New wires routes onto a fresh mux. The stream may be nil, which disables
// /v1/security/events.
func New(core *auth.Service, dir *directory.Service, stream *audit.Stream, log *zap.Logger, rp ReadyProbe, opts Options) *API {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{
		mux:        http.NewServeMux(),
		core:       core,
		dir:        dir,
		stream:     stream,
		log:        log,
		readyProbe: rp,
		version:    opts.Version,
		opts:       opts,
	}

	// health/ready
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session lifecycle; login and refresh carry a per-IP rate limit since
	// they are the unauthenticated brute-force surface
	limited := func(h http.HandlerFunc) http.Handler {
		if opts.RateLimitPerSec <= 0 {
			return h
		}
		return RateLimit(h, opts.RateLimitBurst, opts.RateLimitPerSec)
	}
	a.mux.Handle("/v1/auth/login", limited(a.handleLogin))
	a.mux.Handle("/v1/auth/refresh", limited(a.handleRefresh))
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/password", a.handleChangePassword)
	a.mux.HandleFunc("/v1/auth/credentials", a.handleChangeCredentials)

	// directory admin
	a.mux.HandleFunc("/v1/tenants", a.handleTenantsCollection)
	a.mux.HandleFunc("/v1/tenants/", a.handleTenantResource)
	a.mux.HandleFunc("/v1/branches/", a.handleBranchResource)
	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	// security event stream
	a.mux.HandleFunc("/v1/security/events", a.handleSecurityEvents)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = SecurityHeaders(h)
	h = Logging(a.log)(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "hostria-auth",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
