package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	// Audience is the aud claim every accepted token must carry.
	Audience = "ticketbridge-operator-api"
	issuer   = "ticketbridge"

	DefaultTokenTTL = 12 * time.Hour
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Service issues and verifies operator API tokens.
type Service struct {
	store  *Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Service)

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now for issuing and verifying tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store *Store, secret string, opts ...Option) *Service {
	s := &Service{
		store:  store,
		secret: []byte(secret),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Principal Principal `json:"operator"`
}

// Login checks the operator's password and issues a token carrying the
// capabilities of their role.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	op, err := s.store.GetByUsername(ctx, username)
	if errors.Is(err, ErrOperatorNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.Issue(Principal{Username: op.Username, Role: op.Role, Capabilities: op.Role.Capabilities()})
}

type claims struct {
	Role         Role         `json:"role"`
	Capabilities []Capability `json:"caps"`
	jwt.RegisteredClaims
}

func (s *Service) Issue(p Principal) (Session, error) {
	now := s.now().UTC().Truncate(time.Second)
	exp := now.Add(s.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role:         p.Role,
		Capabilities: p.Capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Username,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: signed, ExpiresAt: exp, Principal: p}, nil
}

// Verify returns the principal a token was issued to.
func (s *Service) Verify(token string) (Principal, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if c.Subject == "" {
		return Principal{}, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return Principal{Username: c.Subject, Role: c.Role, Capabilities: c.Capabilities}, nil
}
