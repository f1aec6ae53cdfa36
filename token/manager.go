package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrMalformed is returned when a token cannot be parsed or carries claims
// that fail structural validation.
var ErrMalformed = errors.New("malformed token")

// ErrSignatureInvalid is returned when no key in the verify set matches the
// token's signature.
var ErrSignatureInvalid = errors.New("token signature invalid")

// ErrExpired is returned when a token's exp has passed.
var ErrExpired = errors.New("token expired")

// SigningMethod selects the signature algorithm for issued tokens.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

const (
	accessTokenUse  = "access"
	refreshTokenUse = "refresh"
)

// Config holds signing material, claim policy, and TTLs for the manager.
//
// Key rotation: the manager signs with PrivateKey under KeyID and verifies
// against every entry in VerifyKeys (current plus recently retired keys).
// When VerifyKeys is empty, PublicKey (or PrivateKey for HS256) is the only
// accepted verification key.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte

	// Now is the injected clock used for iat/exp on issue and for expiry
	// checks on parse. Defaults to time.Now.
	Now func() time.Time
}

// Manager issues and verifies the stateless token pair: short-lived access
// JWTs and longer-lived refresh JWTs. It performs no I/O; revocation state
// lives in the ledger and is consulted by the caller, never here.
type Manager struct {
	config Config
	now    func() time.Time
}

// AccessClaims is the self-contained access-token claim set. Subject is the
// principal ID and ID (jti) is unique per issued token. Use pins the claim
// set to access checks; a refresh token never verifies as an access token
// even though both carry the same signature.
type AccessClaims struct {
	Use   string   `json:"use"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the refresh-token claim set. Use distinguishes refresh
// tokens from access tokens so one can never stand in for the other. Roles
// ride along so rotation can mint equivalent access tokens without a
// credential lookup.
type RefreshClaims struct {
	Use   string   `json:"use"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Pair is an issued access+refresh token pair. RefreshJTI and
// RefreshExpiresAt are surfaced so the caller can track the refresh token in
// the revocation ledger.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	RefreshJTI       string
	RefreshExpiresAt time.Time
}

// NewManager validates the configuration and key material.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must be >= access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{config: cfg, now: now}, nil
}

// IssuePair signs a fresh access+refresh pair for the principal. Each call
// produces new jti values; pairs are never reissued.
func (m *Manager) IssuePair(principalID string, roles []string) (Pair, error) {
	now := m.now()
	refreshExpiry := now.Add(m.config.RefreshTTL)
	refreshJTI := uuid.NewString()

	access := AccessClaims{
		Use:   accessTokenUse,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	refresh := RefreshClaims{
		Use:   refreshTokenUse,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			ID:        refreshJTI,
			ExpiresAt: jwt.NewNumericDate(refreshExpiry),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		access.Audience = jwt.ClaimStrings{m.config.Audience}
		refresh.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	accessToken, err := m.sign(access)
	if err != nil {
		return Pair{}, err
	}
	refreshToken, err := m.sign(refresh)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshJTI:       refreshJTI,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

// VerifyAccess checks signature and expiry of an access token and returns
// its claims. Pure function of the token and the configured key set: no
// I/O, no ledger lookup. Failures are [ErrMalformed],
// [ErrSignatureInvalid], or [ErrExpired].
func (m *Manager) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Use != accessTokenUse {
		return nil, ErrMalformed
	}
	return claims, nil
}

// ParseRefresh checks signature, expiry, and the refresh use marker.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Use != refreshTokenUse {
		return nil, ErrMalformed
	}
	if claims.ID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (m *Manager) sign(claims jwt.Claims) (string, error) {
	tok := jwt.NewWithClaims(m.method(), claims)
	if m.config.KeyID != "" {
		tok.Header["kid"] = m.config.KeyID
	}

	signKey, err := m.signKey()
	if err != nil {
		return "", err
	}

	return tok.SignedString(signKey)
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, claims, m.keyFunc)
	if err != nil {
		return mapParseError(err)
	}
	if !tok.Valid {
		return ErrMalformed
	}

	return nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != m.method().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(m.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := m.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return m.verifyKeyFromBytes(key)
	}

	if m.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		if kid != m.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return m.verifyKey()
}

// mapParseError collapses the jwt library's error space into the package
// taxonomy. Expiry is checked before signature problems because the library
// can report both joined.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return ErrMalformed
	}
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(m.config.PrivateKey)
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPublicKey(m.config.PublicKey)
	}
}

func (m *Manager) verifyKeyFromBytes(key []byte) (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
