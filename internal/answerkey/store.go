package answerkey

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// Store persists keys by scenario instance ID. Keys are written once by the
// generator and read by any number of graders.
type Store interface {
	Put(ctx context.Context, instanceID string, k *Key) error
	Get(ctx context.Context, instanceID string) (*Key, error)
}

var instanceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

func checkInstanceID(id string) error {
	if !instanceIDPattern.MatchString(id) {
		return fmt.Errorf("%w %q", ErrInvalidInstance, id)
	}
	return nil
}

// FileStore keeps one JSON file per instance in a directory. With a
// passphrase the files are sealed.
type FileStore struct {
	dir        string
	passphrase string
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir, passphrase string) *FileStore {
	return &FileStore{dir: dir, passphrase: passphrase}
}

func (s *FileStore) path(id string) string {
	if s.passphrase != "" {
		return filepath.Join(s.dir, id+".sealed")
	}
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) Put(_ context.Context, instanceID string, k *Key) error {
	if err := checkInstanceID(instanceID); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if s.passphrase != "" {
		data, err = Seal(k, s.passphrase)
	} else {
		data, err = k.MarshalIndent()
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	return os.WriteFile(s.path(instanceID), data, 0o600)
}

func (s *FileStore) Get(_ context.Context, instanceID string) (*Key, error) {
	if err := checkInstanceID(instanceID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(instanceID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading key: %w", err)
	}
	return Decode(data, s.passphrase)
}

// Decode parses a plain or sealed key record.
func Decode(data []byte, passphrase string) (*Key, error) {
	if IsSealed(data) {
		if passphrase == "" {
			return nil, fmt.Errorf("%w: key is sealed and no passphrase is configured", ErrSealOpen)
		}
		return Open(data, passphrase)
	}
	return Parse(data)
}

// ReadFile loads a key record from disk.
func ReadFile(path, passphrase string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key: %w", err)
	}
	return Decode(data, passphrase)
}

// MemoryStore keeps keys in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*Key
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]*Key)}
}

func (s *MemoryStore) Put(_ context.Context, instanceID string, k *Key) error {
	if err := checkInstanceID(instanceID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[instanceID] = k
	return nil
}

func (s *MemoryStore) Get(_ context.Context, instanceID string) (*Key, error) {
	if err := checkInstanceID(instanceID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[instanceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, instanceID)
	}
	return k, nil
}
