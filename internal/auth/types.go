package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of principal roles. Every authorization decision
// switches exhaustively over this type; adding a role is a compile-visible
// change at each decision point.
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleTenantAdmin Role = "tenant_admin"
	RoleBranchAdmin Role = "branch_admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleTenantAdmin, RoleBranchAdmin:
		return true
	default:
		return false
	}
}

// ParseRole normalizes and validates a role string.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
	return r, nil
}

// TenantType distinguishes the two supported businesses.
type TenantType string

const (
	TenantTypeRestaurant TenantType = "restaurant"
	TenantTypeHotel      TenantType = "hotel"
)

// Valid reports whether t is a known tenant type.
func (t TenantType) Valid() bool {
	return t == TenantTypeRestaurant || t == TenantTypeHotel
}

// SubscriptionStatus tracks the tenant's billing state.
type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionSuspended SubscriptionStatus = "suspended"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Valid reports whether s is a known subscription status.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionTrial, SubscriptionActive, SubscriptionSuspended, SubscriptionCancelled:
		return true
	default:
		return false
	}
}

// Principal is an authenticated actor. SuperAdmin carries no tenant or
// branch reference; TenantAdmin carries a tenant; BranchAdmin carries both,
// and the branch must belong to the same tenant.
type Principal struct {
	ID                 string     `json:"id"`
	Username           string     `json:"username"`
	Email              string     `json:"email,omitempty"`
	PasswordHash       string     `json:"-"`
	Role               Role       `json:"role"`
	TenantID           string     `json:"tenant_id,omitempty"`
	BranchID           string     `json:"branch_id,omitempty"`
	Active             bool       `json:"active"`
	MustChangePassword bool       `json:"must_change_password"`
	FailedAttempts     int        `json:"-"`
	LockUntil          *time.Time `json:"-"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeletedAt          *time.Time `json:"-"`
}

// Usable is the single "may this row participate in authentication"
// predicate. Every query path goes through it instead of re-spelling the
// active/soft-delete checks.
func (p *Principal) Usable() bool {
	return p != nil && p.Active && p.DeletedAt == nil
}

// LockedAt reports whether the account lockout is in force at the given time.
func (p *Principal) LockedAt(now time.Time) bool {
	return p != nil && p.LockUntil != nil && p.LockUntil.After(now)
}

// Tenant is a billable customer organization: a restaurant or hotel chain.
type Tenant struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Slug               string             `json:"slug"`
	Type               TenantType         `json:"type"`
	Active             bool               `json:"active"`
	Subscription       SubscriptionStatus `json:"subscription_status"`
	SubscriptionEndsAt *time.Time         `json:"subscription_ends_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	DeletedAt          *time.Time         `json:"-"`
}

// Usable reports whether principals of this tenant may authenticate.
// A suspended or cancelled subscription disables the whole tenant.
func (t *Tenant) Usable() bool {
	if t == nil || !t.Active || t.DeletedAt != nil {
		return false
	}
	switch t.Subscription {
	case SubscriptionSuspended, SubscriptionCancelled:
		return false
	default:
		return true
	}
}

// Branch is a physical location owned by exactly one tenant. The tenant
// reference is immutable after creation.
type Branch struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Name      string     `json:"name"`
	Address   string     `json:"address,omitempty"`
	City      string     `json:"city,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// Usable reports whether the branch row may be acted on.
func (b *Branch) Usable() bool {
	return b != nil && b.Active && b.DeletedAt == nil
}

// RefreshToken is the server-side record backing one issued refresh token.
// Only a SHA-256 digest of the opaque token value is stored; the raw value
// never touches the database or logs.
type RefreshToken struct {
	ID          string
	PrincipalID string
	TokenDigest string
	ExpiresAt   time.Time
	Revoked     bool
	RevokedAt   *time.Time
	CreatedAt   time.Time
}

// LoginState is the atomically-updated per-principal login bookkeeping.
type LoginState struct {
	FailedAttempts int
	LockUntil      *time.Time
	LastLoginAt    *time.Time
}

// LoginResult is returned by a successful authentication.
type LoginResult struct {
	Principal      *Principal
	AccessToken    string
	RefreshToken   string
	AccessExpires  time.Time
	RefreshExpires time.Time
}
