// Package auth owns the persisted session: the bearer token and the cached
// user.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Joseda-hg/taskboard/internal/model"
)

const (
	TokenKey = "auth_token"
	UserKey  = "auth_user"
)

// ErrSessionChanged means the session token was replaced or removed while a
// write that depended on it was in flight.
var ErrSessionChanged = errors.New("session changed")

type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetItems(ctx context.Context, items map[string]string) error
	CompareAndSetItems(ctx context.Context, key, expected string, items map[string]string) (bool, error)
	RemoveItems(ctx context.Context, keys ...string) error
}

type Source int

const (
	SourceLocal Source = iota
	SourceRemote
)

func (s Source) String() string {
	if s == SourceRemote {
		return "remote"
	}
	return "local"
}

// Change describes a session write. Local session writes are reported under
// TokenKey, user-only updates under UserKey.
type Change struct {
	Key    string
	Source Source
}

type Listener func(Change)

type Store struct {
	storage Storage
	logger  *zap.Logger

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
}

func NewStore(storage Storage, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		storage:   storage,
		logger:    logger,
		listeners: make(map[int]Listener),
	}
}

func (s *Store) Token(ctx context.Context) (string, bool) {
	token, ok, err := s.storage.Get(ctx, TokenKey)
	if err != nil {
		s.logger.Error("read session token", zap.Error(err))
		return "", false
	}
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func (s *Store) IsAuthenticated(ctx context.Context) bool {
	_, ok := s.Token(ctx)
	return ok
}

func (s *Store) CurrentUser(ctx context.Context) (model.User, bool) {
	raw, ok, err := s.storage.Get(ctx, UserKey)
	if err != nil {
		s.logger.Error("read session user", zap.Error(err))
		return model.User{}, false
	}
	if !ok {
		return model.User{}, false
	}
	var user model.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.logger.Warn("discarding unreadable session user", zap.Error(err))
		return model.User{}, false
	}
	return user, true
}

func (s *Store) SetSession(ctx context.Context, token string, user model.User) error {
	if token == "" {
		return fmt.Errorf("set session: empty token")
	}
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}
	if err := s.storage.SetItems(ctx, map[string]string{
		TokenKey: token,
		UserKey:  string(payload),
	}); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	s.logger.Info("session stored", zap.String("user_id", string(user.ID)))
	s.broadcast(Change{Key: TokenKey, Source: SourceLocal})
	return nil
}

// UpdateUser replaces the stored user only while token is still the session
// token.
func (s *Store) UpdateUser(ctx context.Context, token string, user model.User) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}
	swapped, err := s.storage.CompareAndSetItems(ctx, TokenKey, token, map[string]string{UserKey: string(payload)})
	if err != nil {
		return fmt.Errorf("persist session user: %w", err)
	}
	if !swapped {
		s.logger.Info("skipping user update for a replaced session")
		return ErrSessionChanged
	}
	s.broadcast(Change{Key: UserKey, Source: SourceLocal})
	return nil
}

func (s *Store) ClearSession(ctx context.Context) error {
	if err := s.storage.RemoveItems(ctx, TokenKey, UserKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.logger.Info("session cleared")
	s.broadcast(Change{Key: TokenKey, Source: SourceLocal})
	return nil
}

func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) ExternalChange(key string) {
	if key != TokenKey && key != UserKey {
		return
	}
	s.broadcast(Change{Key: key, Source: SourceRemote})
}

func (s *Store) broadcast(change Change) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(change)
	}
}
