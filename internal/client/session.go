package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Credentials is what a CredentialStore persists between runs.
type Credentials struct {
	Server string `yaml:"server,omitempty"`
	Token  string `yaml:"token"`
	User   *User  `yaml:"user,omitempty"`
}

// CredentialStore persists the signed-in state.
type CredentialStore interface {
	// Load returns nil credentials, not an error, when nothing is stored.
	Load() (*Credentials, error)
	Save(c *Credentials) error
	Clear() error
}

// Session is the signed-in state of one user: the bearer token and the last
// known account. Every API call takes the Session explicitly.
type Session struct {
	mu     sync.RWMutex
	server string
	token  string
	user   *User
	store  CredentialStore
}

// NewSession restores the state kept in store. A nil store keeps the
// session in memory only.
func NewSession(store CredentialStore) (*Session, error) {
	s := &Session{store: store}
	if store == nil {
		return s, nil
	}
	c, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("client: loading credentials: %w", err)
	}
	if c != nil {
		s.server, s.token, s.user = c.Server, c.Token, c.User
	}
	return s, nil
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the last known account, or nil.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Server is the API the token was issued by.
func (s *Session) Server() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.server
}

func (s *Session) IsAuthenticated() bool {
	return s.Token() != ""
}

// SignIn stores a freshly issued token.
func (s *Session) SignIn(server, token string, user User) error {
	s.mu.Lock()
	s.server, s.token, s.user = server, token, &user
	s.mu.Unlock()
	return s.save()
}

// SetUser refreshes the cached account, e.g. after points changed.
func (s *Session) SetUser(user User) error {
	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	return s.save()
}

// SignOut forgets the token locally. Tokens are stateless, so nothing is sent
// to the server.
func (s *Session) SignOut() error {
	s.mu.Lock()
	s.server, s.token, s.user = "", "", nil
	s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	return s.store.Clear()
}

func (s *Session) save() error {
	if s.store == nil {
		return nil
	}
	s.mu.RLock()
	c := &Credentials{Server: s.server, Token: s.token, User: s.user}
	s.mu.RUnlock()
	return s.store.Save(c)
}

// ===== STORES =====

// MemoryStore keeps credentials in memory.
type MemoryStore struct {
	mu sync.Mutex
	c  *Credentials
}

func (m *MemoryStore) Load() (*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c == nil {
		return nil, nil
	}
	c := *m.c
	return &c, nil
}

func (m *MemoryStore) Save(c *Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.c = &cp
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c = nil
	return nil
}

// FileStore keeps credentials in a YAML file readable only by the owner.
type FileStore struct {
	Path string
}

// DefaultCredentialsPath is <user config dir>/estudo/credentials.yaml.
func DefaultCredentialsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("client: locating config dir: %w", err)
	}
	return filepath.Join(dir, "estudo", "credentials.yaml"), nil
}

func (f *FileStore) Load() (*Credentials, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("client: reading %s: %w", f.Path, err)
	}

	var c Credentials
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("client: parsing %s: %w", f.Path, err)
	}
	return &c, nil
}

func (f *FileStore) Save(c *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("client: creating %s: %w", filepath.Dir(f.Path), err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("client: encoding credentials: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0o600); err != nil {
		return fmt.Errorf("client: writing %s: %w", f.Path, err)
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(f.Path, 0o600)
}

func (f *FileStore) Clear() error {
	err := os.Remove(f.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("client: removing %s: %w", f.Path, err)
	}
	return nil
}
