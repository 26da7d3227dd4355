package gateway

import (
	"errors"
	"strings"
	"sync"
)

// ErrNotAuthenticated is returned by remote calls made without a session token.
var ErrNotAuthenticated = errors.New("gateway: not authenticated")

// Session holds the bearer credential for one authenticated user. It is
// passed explicitly to the HTTP gateway; there is no process-wide session.
type Session struct {
	mu    sync.RWMutex
	token string
}

// NewSession returns a session already logged in with token. An empty token
// yields a logged out session.
func NewSession(token string) *Session {
	s := &Session{}
	if token != "" {
		_ = s.Login(token)
	}
	return s
}

// Login stores token as the active credential.
func (s *Session) Login(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("gateway: empty token")
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Logout drops the credential.
func (s *Session) Logout() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// Token returns the active credential.
func (s *Session) Token() (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}
