package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// FileKV keeps every key in one JSON document on the device filesystem.
// Each Set rewrites the whole file.
type FileKV struct {
	mu       sync.RWMutex
	fs       afero.Fs
	filePath string
	data     map[string][]byte
}

func NewFileKV(fs afero.Fs, filePath string) *FileKV {
	return &FileKV{
		fs:       fs,
		filePath: filePath,
		data:     map[string][]byte{},
	}
}

// Load reads the file. A missing or empty file is an empty store.
func (s *FileKV) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := afero.ReadFile(s.fs, s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.data = map[string][]byte{}
			return nil
		}
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(raw) == 0 {
		s.data = map[string][]byte{}
		return nil
	}

	data := map[string][]byte{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	s.data = data
	return nil
}

func (s *FileKV) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *FileKV) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	s.data[key] = v
	return s.save()
}

func (s *FileKV) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.filePath, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
