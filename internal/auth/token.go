package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims are the verified contents of an issued token. Tenant and branch
// ids mirror the principal's scope at issue time; the live row is still
// re-read on every request.
type Claims struct {
	Username  string `json:"username"`
	Role      Role   `json:"role"`
	TenantID  string `json:"tenant_id,omitempty"`
	BranchID  string `json:"branch_id,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenConfig carries the signing material and lifetimes for both token
// kinds. Access and refresh tokens are signed with distinct keys so a leaked
// refresh secret cannot mint access tokens and vice versa.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenManager mints and verifies the signed access/refresh token pair.
// Access tokens are stateless; refresh tokens are additionally backed by a
// server-side record so they can be revoked before their signature expires.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// TokenOption configures TokenManager behavior.
type TokenOption func(*TokenManager)

// WithTokenClock overrides the time source, useful for tests.
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(m *TokenManager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewTokenManager validates the configuration and constructs a manager.
func NewTokenManager(cfg TokenConfig, opts ...TokenOption) (*TokenManager, error) {
	access := strings.TrimSpace(cfg.AccessSecret)
	refresh := strings.TrimSpace(cfg.RefreshSecret)
	if access == "" || refresh == "" {
		return nil, errors.New("auth: both access and refresh signing secrets are required")
	}
	if subtle.ConstantTimeCompare([]byte(access), []byte(refresh)) == 1 {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	m := &TokenManager{
		accessSecret:  []byte(access),
		refreshSecret: []byte(refresh),
		issuer:        strings.TrimSpace(cfg.Issuer),
		audience:      strings.TrimSpace(cfg.Audience),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		now:           time.Now,
	}
	if cfg.AccessTTL > 0 {
		m.accessTTL = cfg.AccessTTL
	}
	if cfg.RefreshTTL > 0 {
		m.refreshTTL = cfg.RefreshTTL
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *TokenManager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

// IssueAccess signs a short-lived access token for the principal.
func (m *TokenManager) IssueAccess(p *Principal) (string, time.Time, error) {
	return m.sign(p, tokenTypeAccess, m.accessSecret, m.accessTTL)
}

// IssueRefresh signs a long-lived refresh token. The returned JTI is the id
// of the server-side record the caller must persist alongside the digest.
func (m *TokenManager) IssueRefresh(p *Principal) (token, jti string, expiresAt time.Time, err error) {
	token, expiresAt, err = m.sign(p, tokenTypeRefresh, m.refreshSecret, m.refreshTTL)
	if err != nil {
		return "", "", time.Time{}, err
	}
	claims, err := m.verify(token, tokenTypeRefresh, m.refreshSecret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, claims.ID, expiresAt, nil
}

// VerifyAccess checks signature, algorithm, issuer, audience, token type and
// expiry of an access token and returns its claims.
func (m *TokenManager) VerifyAccess(token string) (*Claims, error) {
	return m.verify(token, tokenTypeAccess, m.accessSecret)
}

// VerifyRefresh performs the cryptographic half of refresh validation. The
// server-side record is the source of truth for revocation and must be
// checked separately.
func (m *TokenManager) VerifyRefresh(token string) (*Claims, error) {
	return m.verify(token, tokenTypeRefresh, m.refreshSecret)
}

func (m *TokenManager) sign(p *Principal, tokenType string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	if p == nil || p.ID == "" {
		return "", time.Time{}, errors.New("auth: principal is required")
	}
	now := m.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Username:  p.Username,
		Role:      p.Role,
		TenantID:  p.TenantID,
		BranchID:  p.BranchID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (m *TokenManager) verify(token, wantType string, secret []byte) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		// Pin the algorithm; a token claiming any other method is rejected
		// before signature verification.
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return m.now().UTC() }),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenDigest returns the hex SHA-256 of an opaque token value. Refresh
// token records store only this digest.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
