// Package auth issues and verifies bearer tokens for campfire profiles.
//
// Tokens are HS256 JWTs whose subject is the profile id. Admin rights are
// not carried in the token: they are read from the profile on every admin
// request, so revoking them takes effect at once.
//
// An optional access code gates participant writes during an alpha: a
// profile passes once it has entered the code, and admins always pass.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/twilner89/campfire-alpha/internal/game"
	"github.com/twilner89/campfire-alpha/internal/store"
)

var (
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrForbidden          = errors.New("admin access required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoAccess           = errors.New("access code required")
	ErrWrongAccessCode    = errors.New("invalid access code")
	ErrGateMisconfigured  = errors.New("access gate has no code configured")
)

const issuer = "campfire"

// Profiles is the profile lookup auth needs.
type Profiles interface {
	ProfileByUsername(ctx context.Context, username string) (game.Profile, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
	HasAccess(ctx context.Context, userID string) (bool, error)
	GrantAccess(ctx context.Context, userID string) error
}

type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the verified caller of a request.
type Identity struct {
	UserID   string
	Username string
}

type Authenticator struct {
	secret   []byte
	ttl      time.Duration
	profiles   Profiles
	accessCode string
	gated      bool
	now        func() time.Time
}

type Option func(*Authenticator)

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// WithAccessGate turns the access-code gate on. An empty code keeps the
// gate closed to everyone but admins.
func WithAccessGate(code string) Option {
	return func(a *Authenticator) {
		a.gated = true
		a.accessCode = strings.TrimSpace(code)
	}
}

func New(secret string, ttl time.Duration, profiles Profiles, opts ...Option) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	a := &Authenticator{
		secret:   []byte(secret),
		ttl:      ttl,
		profiles: profiles,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Issue signs a token for p and returns it with its expiry.
func (a *Authenticator) Issue(p game.Profile) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: p.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks the signature and expiry of a bearer token.
func (a *Authenticator) Verify(tokenString string) (Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}
	return Identity{UserID: claims.Subject, Username: claims.Username}, nil
}

// Login checks a username and password and issues a token for the profile.
func (a *Authenticator) Login(ctx context.Context, username, password string) (game.Profile, string, time.Time, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return game.Profile{}, "", time.Time{}, ErrInvalidCredentials
	}

	p, err := a.profiles.ProfileByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return game.Profile{}, "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return game.Profile{}, "", time.Time{}, fmt.Errorf("loading profile: %w", err)
	}
	if p.PasswordHash == "" {
		return game.Profile{}, "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		return game.Profile{}, "", time.Time{}, ErrInvalidCredentials
	}

	token, exp, err := a.Issue(p)
	if err != nil {
		return game.Profile{}, "", time.Time{}, err
	}
	return p, token, exp, nil
}

// IsAdmin reports whether userID currently holds admin rights.
func (a *Authenticator) IsAdmin(ctx context.Context, userID string) (bool, error) {
	ok, err := a.profiles.IsAdmin(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("checking admin: %w", err)
	}
	return ok, nil
}

// RequireAdmin returns ErrForbidden unless userID is an admin.
func (a *Authenticator) RequireAdmin(ctx context.Context, userID string) error {
	ok, err := a.IsAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// Gated reports whether participant writes need an access code.
func (a *Authenticator) Gated() bool { return a.gated }

// HasAccess reports whether userID may play. Everyone may when the gate is
// off.
func (a *Authenticator) HasAccess(ctx context.Context, userID string) (bool, error) {
	if !a.gated {
		return true, nil
	}
	ok, err := a.profiles.HasAccess(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("checking access: %w", err)
	}
	return ok, nil
}

// RequireAccess returns ErrNoAccess unless userID may play.
func (a *Authenticator) RequireAccess(ctx context.Context, userID string) error {
	ok, err := a.HasAccess(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoAccess
	}
	return nil
}

// EnterAccessCode grants userID access when code matches the configured
// one. Surrounding whitespace is ignored on both sides.
func (a *Authenticator) EnterAccessCode(ctx context.Context, userID, code string) error {
	if a.accessCode == "" {
		return ErrGateMisconfigured
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(a.accessCode)) != 1 {
		return ErrWrongAccessCode
	}
	if err := a.profiles.GrantAccess(ctx, userID); err != nil {
		return fmt.Errorf("granting access: %w", err)
	}
	return nil
}
