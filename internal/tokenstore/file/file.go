// file — хранилище токенов в локальном файле (для CLI).
// Формат — JSON с именами access_token/refresh_token и сроком истечения.
// Файл создаётся с правами 0600 и перезаписывается атомарно (tmp + rename).
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pribylovaa/hackathon-site/internal/tokenstore"
)

type record struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Store — файловое хранилище.
type Store struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

// New создаёт хранилище по пути path. Файл может не существовать.
func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// DefaultPath — ~/.config/hackathon-site/session.json (или эквивалент ОС).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}

	return filepath.Join(dir, "hackathon-site", "session.json")
}

// Path возвращает путь к файлу.
func (s *Store) Path() string { return s.path }

func (s *Store) Get(_ context.Context, kind tokenstore.Kind) (string, bool, error) {
	if err := kind.Validate(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return "", false, err
	}

	rec, ok := recs[kind.Name()]
	if !ok || rec.Value == "" {
		return "", false, nil
	}

	if !rec.ExpiresAt.IsZero() && !s.now().Before(rec.ExpiresAt) {
		return "", false, nil
	}

	return rec.Value, true, nil
}

func (s *Store) Set(_ context.Context, kind tokenstore.Kind, value string, ttl time.Duration) error {
	if err := kind.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return err
	}

	rec := record{Value: value}
	if ttl > 0 {
		rec.ExpiresAt = s.now().Add(ttl).UTC()
	}
	recs[kind.Name()] = rec

	return s.save(recs)
}

func (s *Store) Clear(_ context.Context, kinds ...tokenstore.Kind) error {
	kinds, err := tokenstore.Resolve(kinds)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return err
	}

	for _, k := range kinds {
		delete(recs, k.Name())
	}

	if len(recs) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("tokenstore/file/Clear: %w", err)
		}
		return nil
	}

	return s.save(recs)
}

func (s *Store) load() (map[string]record, error) {
	const op = "tokenstore/file/load"

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	recs := map[string]record{}
	if len(data) == 0 {
		return recs, nil
	}

	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%s: corrupted session file %q: %w", op, s.path, err)
	}

	return recs, nil
}

func (s *Store) save(recs map[string]record) error {
	const op = "tokenstore/file/save"

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*.json")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Проверка выполнения контракта верхнего уровня.
var _ tokenstore.Store = (*Store)(nil)
