// Package auth guards the operational endpoints with one operator account.
// Clients present either HTTP basic credentials checked against a bcrypt
// hash or an HS256 bearer token issued for that account.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "warden"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingCredentials = errors.New("missing credentials")
)

// Config is the [auth] section of the server configuration.
type Config struct {
	Enabled      bool          `toml:"enabled" mapstructure:"enabled"`
	Username     string        `toml:"username" mapstructure:"username"`
	PasswordHash string        `toml:"password_hash" mapstructure:"password_hash"`
	JWTSecret    string        `toml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `toml:"token_ttl" mapstructure:"token_ttl"`
}

// Validate checks an enabled configuration can authenticate anyone.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Username == "" {
		return errors.New("auth.username is required when auth is enabled")
	}
	if c.PasswordHash == "" && c.JWTSecret == "" {
		return errors.New("auth needs password_hash or jwt_secret")
	}
	if c.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(c.PasswordHash)); err != nil {
			return fmt.Errorf("auth.password_hash: %w", err)
		}
	}
	return nil
}

// Claims are carried by issued bearer tokens.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator verifies requests. A nil Authenticator admits everything.
type Authenticator struct {
	cfg    Config
	secret []byte
}

// New returns nil when auth is disabled.
func New(cfg Config) (*Authenticator, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	return &Authenticator{cfg: cfg, secret: []byte(cfg.JWTSecret)}, nil
}

// HashPassword returns the bcrypt hash to put in auth.password_hash.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Authenticate returns the username the request authenticated as.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	if a == nil {
		return "", nil
	}
	if user, pass, ok := r.BasicAuth(); ok {
		return a.checkPassword(user, pass)
	}
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		claims, err := a.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			return "", err
		}
		return claims.Username, nil
	}
	return "", ErrMissingCredentials
}

func (a *Authenticator) checkPassword(user, pass string) (string, error) {
	if a.cfg.PasswordHash == "" {
		return "", ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.cfg.Username)) == 1
	if err := bcrypt.CompareHashAndPassword([]byte(a.cfg.PasswordHash), []byte(pass)); err != nil || !userOK {
		return "", ErrInvalidCredentials
	}
	return user, nil
}

// IssueToken signs a bearer token for the configured user.
func (a *Authenticator) IssueToken(now time.Time) (string, time.Time, error) {
	if len(a.secret) == 0 {
		return "", time.Time{}, errors.New("auth.jwt_secret is not set")
	}
	exp := now.Add(a.cfg.TokenTTL)
	claims := &Claims{
		Username: a.cfg.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   a.cfg.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return s, exp, nil
}

// ValidateToken parses and verifies a bearer token.
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	if len(a.secret) == 0 || tokenString == "" {
		return nil, ErrInvalidCredentials
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Username != a.cfg.Username {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}
