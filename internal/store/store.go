package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Secret keys.
const (
	KeyAPIKey      = "apiKey"
	KeyGitHubToken = "githubToken"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("store: not found")

// Settings configures the chat backend.
type Settings struct {
	Provider  string `yaml:"provider,omitempty" json:"provider"`
	BaseURL   string `yaml:"baseUrl,omitempty" json:"baseUrl"`
	ModelName string `yaml:"modelName,omitempty" json:"modelName"`
}

// Store persists secrets and settings. Callers treat any error as "not
// configured".
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Settings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

type document struct {
	Secrets  map[string]string `yaml:"secrets,omitempty"`
	Settings Settings          `yaml:"settings,omitempty"`
}

// FileStore keeps everything in a single YAML file readable only by the
// owner.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on first
// write.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	return &FileStore{path: path}, nil
}

// DefaultPath returns the per-user location of the store file.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "gitpanel", "store.yaml"), nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", err
	}
	value, ok := doc.Secrets[key]
	if !ok || value == "" {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return value, nil
}

func (s *FileStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("store key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if doc.Secrets == nil {
		doc.Secrets = map[string]string{}
	}
	doc.Secrets[key] = value
	return s.save(doc)
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Secrets[key]; !ok {
		return nil
	}
	delete(doc.Secrets, key)
	return s.save(doc)
}

func (s *FileStore) Settings(ctx context.Context) (Settings, error) {
	if err := ctx.Err(); err != nil {
		return Settings{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return Settings{}, err
	}
	return doc.Settings, nil
}

func (s *FileStore) SaveSettings(ctx context.Context, settings Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Settings = settings
	return s.save(doc)
}

func (s *FileStore) load() (document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return document{}, nil
	}
	if err != nil {
		return document{}, fmt.Errorf("read store: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("parse store %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *FileStore) save(doc document) error {
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".store-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp store: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

// Memory is an in-process Store. The zero value is ready to use.
type Memory struct {
	mu       sync.Mutex
	secrets  map[string]string
	settings Settings
	// Err, when set, is returned by every call.
	Err error
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	v, ok := m.secrets[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.secrets == nil {
		m.secrets = map[string]string{}
	}
	m.secrets[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.secrets, key)
	return nil
}

func (m *Memory) Settings(context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return Settings{}, m.Err
	}
	return m.settings, nil
}

func (m *Memory) SaveSettings(_ context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.settings = s
	return nil
}
