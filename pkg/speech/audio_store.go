package speech

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xhad/xiaowei/internal/models"
)

// AudioStore persists audio blobs and returns the URL they are served from.
type AudioStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// audioReader is implemented by stores that can resolve their own URLs
// without a network round trip.
type audioReader interface {
	Read(ctx context.Context, url string) ([]byte, bool, error)
}

// FileAudioStore writes blobs under Dir and serves them below PublicBase.
type FileAudioStore struct {
	Dir        string
	PublicBase string
}

func NewFileAudioStore(dir, publicBase string) (*FileAudioStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}
	return &FileAudioStore{Dir: dir, PublicBase: strings.TrimSuffix(publicBase, "/")}, nil
}

func (s *FileAudioStore) Save(_ context.Context, key string, data []byte, _ string) (string, error) {
	key, path, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create audio directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	return s.PublicBase + "/" + key, nil
}

// Read returns the blob behind url when url points into this store.
func (s *FileAudioStore) Read(_ context.Context, url string) ([]byte, bool, error) {
	prefix := s.PublicBase + "/"
	if !strings.HasPrefix(url, prefix) {
		return nil, false, nil
	}
	_, path, err := s.path(strings.TrimPrefix(url, prefix))
	if err != nil {
		return nil, true, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read audio: %w", err)
	}
	return data, true, nil
}

// path confines key to Dir and returns the cleaned key with its file path.
func (s *FileAudioStore) path(key string) (string, string, error) {
	clean := filepath.ToSlash(filepath.Clean("/" + key))
	if clean == "/" {
		return "", "", fmt.Errorf("%w: empty audio key", models.ErrInvalidInput)
	}
	return strings.TrimPrefix(clean, "/"), filepath.Join(s.Dir, filepath.FromSlash(clean)), nil
}
