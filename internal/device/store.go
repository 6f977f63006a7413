package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// ErrNotPaired is returned when no device credentials have been stored yet.
var ErrNotPaired = errors.New("device not paired")

// Store persists device credentials and branding between launches.
type Store interface {
	// Load returns the stored identity or ErrNotPaired.
	Load(ctx context.Context) (*Identity, error)

	// Save stores the identity, replacing any previous one.
	Save(ctx context.Context, identity *Identity) error

	// Clear removes the stored identity.
	Clear(ctx context.Context) error
}

// FileStore implements Store using a JSON file on disk.
type FileStore struct {
	logger *zap.Logger
	path   string
	mu     sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed credential store at path.
func NewFileStore(logger *zap.Logger, path string) *FileStore {
	return &FileStore{
		logger: logger.Named("device.store"),
		path:   path,
	}
}

// Load implements Store.Load
func (s *FileStore) Load(_ context.Context) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotPaired
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var identity Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	if !identity.Valid() {
		return nil, ErrNotPaired
	}
	return &identity, nil
}

// Save implements Store.Save
func (s *FileStore) Save(_ context.Context, identity *Identity) error {
	if !identity.Valid() {
		return fmt.Errorf("refusing to store incomplete identity")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	data, err := json.MarshalIndent(identity, "", "  ")
	if err != nil {
		return err
	}

	// Credentials include the device token, keep them private.
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}

	s.logger.Info("device credentials stored",
		zap.String("deviceId", identity.DeviceID),
		zap.String("path", s.path))
	return nil
}

// Clear implements Store.Clear
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// MemoryStore implements Store in memory, used in tests and for ephemeral
// kiosk deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	identity *Identity
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.Load
func (s *MemoryStore) Load(_ context.Context) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.identity == nil {
		return nil, ErrNotPaired
	}
	cp := *s.identity
	return &cp, nil
}

// Save implements Store.Save
func (s *MemoryStore) Save(_ context.Context, identity *Identity) error {
	if !identity.Valid() {
		return fmt.Errorf("refusing to store incomplete identity")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *identity
	s.identity = &cp
	return nil
}

// Clear implements Store.Clear
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity = nil
	return nil
}
