// memory — хранилище токенов в памяти процесса.
// Истёкшие записи считаются отсутствующими и удаляются лениво при чтении.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pribylovaa/hackathon-site/internal/tokenstore"
)

type entry struct {
	value     string
	expiresAt time.Time // нулевое значение — без срока
}

// Store — потокобезопасное in-memory хранилище.
type Store struct {
	mu      sync.RWMutex
	entries map[tokenstore.Kind]entry
	now     func() time.Time
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		entries: make(map[tokenstore.Kind]entry, len(tokenstore.Kinds)),
		now:     time.Now,
	}
}

// WithClock подменяет источник времени (для тестов).
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.now = now
	return s
}

func (s *Store) Get(_ context.Context, kind tokenstore.Kind) (string, bool, error) {
	if err := kind.Validate(); err != nil {
		return "", false, err
	}

	s.mu.RLock()
	e, ok := s.entries[kind]
	now := s.now()
	s.mu.RUnlock()

	if !ok {
		return "", false, nil
	}

	if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
		s.mu.Lock()
		// запись могли перезаписать между RUnlock и Lock.
		if cur, still := s.entries[kind]; still && cur == e {
			delete(s.entries, kind)
		}
		s.mu.Unlock()

		return "", false, nil
	}

	return e.value, true, nil
}

func (s *Store) Set(_ context.Context, kind tokenstore.Kind, value string, ttl time.Duration) error {
	if err := kind.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[kind] = e

	return nil
}

func (s *Store) Clear(_ context.Context, kinds ...tokenstore.Kind) error {
	kinds, err := tokenstore.Resolve(kinds)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range kinds {
		delete(s.entries, k)
	}

	return nil
}

// Проверка выполнения контракта верхнего уровня.
var _ tokenstore.Store = (*Store)(nil)
