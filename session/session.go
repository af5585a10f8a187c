// Package session signs users in against the tasks API and keeps their sessions in a
// shared store.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskflow/client"
	"taskflow/domain"
)

var (
	// ErrNotFound is returned by stores for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is wrapped when a stored session outlived its token.
	ErrExpired = errors.New("session expired")
)

// Session binds a bearer token to the user it was issued for.
type Session struct {
	ID        string      `json:"id"`
	Token     string      `json:"token"`
	User      domain.User `json:"user"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Store persists sessions.
type Store interface {
	Save(ctx context.Context, s Session) error
	Load(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}

// Gateway is the part of the tasks API that issues tokens and describes their owner.
type Gateway interface {
	Login(ctx context.Context, email, password string) (client.TokenResponse, error)
	Register(ctx context.Context, email, password string) (client.TokenResponse, error)
	Profile(ctx context.Context, token string) (domain.User, error)
}

// Manager opens, resumes and closes sessions.
type Manager struct {
	gateway   Gateway
	store     Store
	inspector *TokenInspector
	maxTTL    time.Duration
	logger    *log.Logger
	now       func() time.Time
}

// NewManager creates a manager. maxTTL caps how long a session is kept even when the
// token lives longer; zero means no cap.
func NewManager(gateway Gateway, store Store, inspector *TokenInspector, maxTTL time.Duration, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if inspector == nil {
		inspector = NewTokenInspector(nil, nil, "", "")
	}
	return &Manager{gateway: gateway, store: store, inspector: inspector, maxTTL: maxTTL, logger: logger, now: time.Now}
}

// Login exchanges credentials for a new session.
func (m *Manager) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return Session{}, domain.Invalid("login", err)
	}
	tr, err := m.gateway.Login(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return m.open(ctx, "login", tr.Token)
}

// Register creates an account and opens a session for it.
func (m *Manager) Register(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return Session{}, domain.Invalid("register", err)
	}
	tr, err := m.gateway.Register(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return m.open(ctx, "register", tr.Token)
}

func (m *Manager) open(ctx context.Context, op, token string) (Session, error) {
	claims, err := m.inspector.Inspect(token)
	if err != nil {
		return Session{}, &domain.Failure{Kind: domain.KindUnauthorized, Op: op, Err: err}
	}
	user, err := m.gateway.Profile(ctx, token)
	if err != nil {
		return Session{}, err
	}

	expires := claims.ExpiresAt
	if m.maxTTL > 0 {
		if limit := m.now().Add(m.maxTTL); expires.IsZero() || limit.Before(expires) {
			expires = limit
		}
	}
	s := Session{ID: uuid.NewString(), Token: token, User: user, ExpiresAt: expires}
	if err := m.store.Save(ctx, s); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	m.logger.WithField("session", s.ID).WithField("user", user.ID).Info("session opened")
	return s, nil
}

// Resume loads a stored session. Unknown and expired sessions are unauthorized.
func (m *Manager) Resume(ctx context.Context, id string) (Session, error) {
	const op = "resume"
	if id == "" {
		return Session{}, &domain.Failure{Kind: domain.KindUnauthorized, Op: op, Err: ErrNotFound}
	}
	s, err := m.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Session{}, &domain.Failure{Kind: domain.KindUnauthorized, Op: op, Err: err}
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	if s.Expired(m.now()) {
		if err := m.store.Delete(ctx, id); err != nil {
			m.logger.WithError(err).WithField("session", id).Warn("expired session not deleted")
		}
		return Session{}, &domain.Failure{Kind: domain.KindUnauthorized, Op: op, Err: ErrExpired}
	}
	return s, nil
}

// Logout deletes a session. Deleting an unknown session is not an error.
func (m *Manager) Logout(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func validateCredentials(email, password string) error {
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}
	return nil
}

// Identity is the read-only view of a session handed to the engines.
type Identity struct {
	mu      sync.RWMutex
	session Session
	valid   bool
	now     func() time.Time
}

// NewIdentity wraps s.
func NewIdentity(s Session) *Identity {
	return &Identity{session: s, valid: true, now: time.Now}
}

// CurrentUser returns the session's user while the session is valid.
func (i *Identity) CurrentUser() (domain.Actor, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.valid || i.session.Expired(i.now()) {
		return domain.Actor{}, false
	}
	return i.session.User.Actor(), true
}

// Session returns the wrapped session.
func (i *Identity) Session() Session {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.session
}

// Invalidate marks the session unusable.
func (i *Identity) Invalidate() {
	i.mu.Lock()
	i.valid = false
	i.mu.Unlock()
}
