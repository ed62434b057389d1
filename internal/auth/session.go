package auth

import (
	"context"
	"sync"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// TokenSource yields the bearer token for outgoing requests. Token blocks until
// the identity state has settled; "" means signed out.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Session tracks the signed-in identity. It starts unsettled; the first SignIn
// or SignOut settles it and releases every waiting Token call.
type Session struct {
	mu      sync.RWMutex
	token   string
	settled chan struct{}
	once    sync.Once
	now     func() time.Time
	logger  *zap.Logger
}

func NewSession(logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		settled: make(chan struct{}),
		now:     time.Now,
		logger:  logger,
	}
}

// NewStaticSession returns a session already settled with token ("" = signed out).
func NewStaticSession(token string, logger *zap.Logger) *Session {
	s := NewSession(logger)
	if token == "" {
		s.SignOut()
	} else {
		s.SignIn(token)
	}
	return s
}

func (s *Session) SignIn(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	s.settle()
}

func (s *Session) SignOut() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	s.settle()
}

func (s *Session) settle() {
	s.once.Do(func() { close(s.settled) })
}

// Token waits for the session to settle and returns the current token. An
// expired JWT is treated as signed out so the request goes unauthenticated.
func (s *Session) Token(ctx context.Context) (string, error) {
	select {
	case <-s.settled:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token == "" {
		return "", nil
	}
	if expired(token, s.now()) {
		s.logger.Debug("bearer token expired, sending request unauthenticated")
		return "", nil
	}
	return token, nil
}

// Subject returns the "sub" claim of the current token without verifying it.
func (s *Session) Subject() string {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token == "" {
		return ""
	}
	claims, ok := parseUnverified(token)
	if !ok {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

// The backend verifies signatures; here only the expiry matters. Tokens that are
// not JWTs are passed through untouched.
func expired(token string, now time.Time) bool {
	claims, ok := parseUnverified(token)
	if !ok {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

func parseUnverified(token string) (gojwt.MapClaims, bool) {
	parser := gojwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, gojwt.MapClaims{})
	if err != nil {
		return nil, false
	}
	claims, ok := parsed.Claims.(gojwt.MapClaims)
	return claims, ok
}
