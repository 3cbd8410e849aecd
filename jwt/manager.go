package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWS algorithm used for access tokens.
type SigningMethod string

const (
	// MethodEd25519 is an exported constant or variable used by the trust engine.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 is an exported constant or variable used by the trust engine.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrVerifyOnly is returned by CreateAccess on a manager built without a
	// signing key.
	ErrVerifyOnly = errors.New("jwt: manager has no signing key")
	// ErrUnboundToken is returned for a validly signed token that lacks the
	// principal or session claim.
	ErrUnboundToken = errors.New("jwt: token is not bound to a session")
)

// Config controls access-token issuance and verification.
//
// VerifyKeys is optional. When set, tokens must carry a kid header that
// resolves to one of the listed public keys, which allows key rotation
// without invalidating live sessions.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Manager signs and parses session-bound access tokens. Key material is
// decoded once in [NewManager].
type Manager struct {
	config Config
	method jwt.SigningMethod

	signKey     any
	verifyKey   any
	verifyByKid map[string]any

	now    func() time.Time
	parser *jwt.Parser
}

// AccessClaims binds a token to one principal and one session.
type AccessClaims struct {
	UID string `json:"uid"`
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// NewManager validates cfg, decodes its keys and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg, now: time.Now}
	var err error
	switch cfg.SigningMethod {
	case MethodHS256:
		err = m.loadHMACKeys()
	case MethodEd25519:
		err = m.loadEdKeys()
	default:
		return nil, errors.New("unsupported signing method")
	}
	if err != nil {
		return nil, err
	}

	if cfg.KeyID != "" && m.verifyByKid != nil {
		if _, ok := m.verifyByKid[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	m.parser = m.newParser()
	return m, nil
}

func (j *Manager) loadHMACKeys() error {
	if len(j.config.PrivateKey) == 0 {
		return errors.New("hs256 requires private key")
	}
	j.method = jwt.SigningMethodHS256
	j.signKey = j.config.PrivateKey
	j.verifyKey = j.config.PrivateKey
	if len(j.config.VerifyKeys) > 0 {
		j.verifyByKid = make(map[string]any, len(j.config.VerifyKeys))
		for kid, key := range j.config.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return errors.New("verify key map contains empty kid")
			}
			j.verifyByKid[kid] = key
		}
	}
	return nil
}

func (j *Manager) loadEdKeys() error {
	j.method = jwt.SigningMethodEdDSA
	if len(j.config.PrivateKey) > 0 {
		priv, err := parseEdPrivateKey(j.config.PrivateKey)
		if err != nil {
			return err
		}
		j.signKey = priv
	}
	if len(j.config.PublicKey) > 0 {
		pub, err := parseEdPublicKey(j.config.PublicKey)
		if err != nil {
			return err
		}
		j.verifyKey = pub
	}
	if len(j.config.VerifyKeys) == 0 && j.verifyKey == nil {
		return errors.New("ed25519 requires public key or verify key set")
	}
	if len(j.config.VerifyKeys) > 0 {
		j.verifyByKid = make(map[string]any, len(j.config.VerifyKeys))
		for kid, key := range j.config.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return errors.New("verify key map contains empty kid")
			}
			pub, err := parseEdPublicKey(key)
			if err != nil {
				return fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
			j.verifyByKid[kid] = pub
		}
	}
	return nil
}

func (j *Manager) newParser() *jwt.Parser {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}
	return jwt.NewParser(options...)
}

// WithClock returns a copy of the manager that reads time from now.
func (j *Manager) WithClock(now func() time.Time) *Manager {
	cp := *j
	if now != nil {
		cp.now = now
		cp.parser = cp.newParser()
	}
	return &cp
}

// CreateAccess signs a token for principalID bound to sessionID.
//
// The token lifetime is the configured AccessTTL; the session record remains
// the authority for whether the session is still live.
func (j *Manager) CreateAccess(principalID, sessionID string) (string, error) {
	if principalID == "" || sessionID == "" {
		return "", errors.New("principal and session are required")
	}
	if j.signKey == nil {
		return "", ErrVerifyOnly
	}

	now := j.now()
	claims := AccessClaims{
		UID: principalID,
		SID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.method, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}
	return token.SignedString(j.signKey)
}

// ParseAccess verifies tokenStr and returns its claims.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	token, err := j.parser.ParseWithClaims(tokenStr, &AccessClaims{}, j.keyFor)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UID == "" || claims.SID == "" {
		return nil, ErrUnboundToken
	}
	if claims.IssuedAt != nil && j.config.MaxFutureIAT > 0 {
		if claims.IssuedAt.Time.After(j.now().Add(j.config.MaxFutureIAT)) {
			return nil, errors.New("token iat too far in the future")
		}
	}

	return claims, nil
}

// keyFor selects the verification key. With a kid set, the header must name
// it; with a rotation set, the header picks one of its keys.
func (j *Manager) keyFor(t *jwt.Token) (any, error) {
	if t.Method.Alg() != j.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	kid, _ := t.Header["kid"].(string)
	switch {
	case j.verifyByKid != nil:
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := j.verifyByKid[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return key, nil
	case j.config.KeyID != "" && kid != j.config.KeyID:
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return nil, errors.New("unknown kid")
	}

	if j.verifyKey == nil {
		return nil, errors.New("no verification key")
	}
	return j.verifyKey, nil
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
