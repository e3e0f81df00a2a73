// Package session holds the console's bearer token, user and admin flag.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"invigilation/internal/model"
)

// Redirect targets after an authentication failure.
const (
	AdminLoginPath = "/login?role=admin"
	LoginPath      = "/login"
)

// State is what survives between console runs.
type State struct {
	Token   string      `json:"token"`
	User    *model.User `json:"user,omitempty"`
	IsAdmin bool        `json:"isAdmin"`
}

// Store persists State.
type Store interface {
	Load() (State, error)
	Save(State) error
	Clear() error
}

// FileStore keeps State in a JSON file readable only by its owner.
type FileStore struct {
	Path string
}

func (f FileStore) Load() (State, error) {
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read session: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("parse session %s: %w", f.Path, err)
	}
	return st, nil
}

func (f FileStore) Save(st State) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return err
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, raw, 0o600)
}

func (f FileStore) Clear() error {
	err := os.Remove(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryStore is a Store for tests and the kiosk.
type MemoryStore struct {
	mu sync.Mutex
	st State
}

func (m *MemoryStore) Load() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st, nil
}

func (m *MemoryStore) Save(st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = st
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = State{}
	return nil
}

// Session is shared by every call site. It is read at the start of each
// request and invalidated by whichever caller observes an auth failure.
type Session struct {
	mu       sync.RWMutex
	store    Store
	state    State
	redirect string
	hooks    []func(redirect string)
}

// New loads the persisted state from store.
func New(store Store) (*Session, error) {
	st, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Session{store: store, state: st}, nil
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token
}

func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsAdmin
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.User == nil {
		return nil
	}
	u := *s.state.User
	return &u
}

func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// Begin stores a fresh login.
func (s *Session) Begin(res model.LoginResult) error {
	user := res.User
	user.IsAdmin = res.IsAdmin
	st := State{Token: res.Token, User: &user, IsAdmin: res.IsAdmin}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(st); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.state = st
	s.redirect = ""
	return nil
}

// End clears the session after an explicit logout.
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{}
	return s.store.Clear()
}

// OnInvalidate registers fn to run when an auth failure clears the session.
func (s *Session) OnInvalidate(fn func(redirect string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Invalidate clears the session and returns where the operator must sign
// in again. Repeated calls return the same target and run hooks once.
func (s *Session) Invalidate() string {
	s.mu.Lock()
	if s.state.Token == "" {
		redirect := s.redirect
		s.mu.Unlock()
		if redirect == "" {
			return LoginPath
		}
		return redirect
	}

	redirect := LoginPath
	if s.state.IsAdmin {
		redirect = AdminLoginPath
	}
	s.redirect = redirect
	s.state = State{}
	_ = s.store.Clear()
	hooks := append([]func(string){}, s.hooks...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(redirect)
	}
	return redirect
}
