package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/newsdesk/console/internal/domain"
)

// fileDocument is the on-disk shape. Keys match the browser's localStorage
// names.
type fileDocument struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// FileStore persists the pair as a JSON document with 0600 permissions.
// Writes go through a temp file and rename so a crash never leaves half a
// document behind.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore at path. The file is not touched until the
// first operation.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFilePath returns $XDG_CONFIG_HOME/newsdesk/credentials.json (or the
// platform equivalent).
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "newsdesk", "credentials.json"), nil
}

// Path returns the document location.
func (s *FileStore) Path() string { return s.path }

// Save writes both tokens, replacing the document.
func (s *FileStore) Save(_ context.Context, pair domain.CredentialPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := fileDocument{
		AccessToken:  pair.AccessToken.Expose(),
		RefreshToken: pair.RefreshToken.Expose(),
	}
	if err := s.write(doc); err != nil {
		return unavailable("save tokens", err)
	}
	return nil
}

// Clear removes the document.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return unavailable("clear tokens", err)
	}
	return nil
}

// AccessToken reads the document. A missing file means no token.
func (s *FileStore) AccessToken(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return "", unavailable("read access token", err)
	}
	return doc.AccessToken, nil
}

func (s *FileStore) read() (fileDocument, error) {
	var doc fileDocument
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *FileStore) write(doc fileDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// clientFilePath derives a per-client document path from base:
// /dir/credentials.json -> /dir/credentials-{clientID}.json.
func clientFilePath(base, clientID string) string {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + clientID + ext
}
