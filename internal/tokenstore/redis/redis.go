// redis — серверное хранилище токенов в Redis.
//
// Браузер держит только непрозрачный id сессии (cookie), а сами токены
// лежат в Redis под ключами "<prefix><sessionID>:<kind>_token" с TTL,
// равным сроку жизни токена. Это аналог httpOnly-хранения, в котором токены
// не покидают сервер вовсе.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pribylovaa/hackathon-site/internal/tokenstore"
)

// DefaultPrefix — префикс ключей по умолчанию.
const DefaultPrefix = "site:sess:"

// ErrEmptySessionID — попытка открыть хранилище без id сессии.
var ErrEmptySessionID = errors.New("empty session id")

// Backend — подключение к Redis, из которого нарезаются хранилища сессий.
type Backend struct {
	rdb    goredis.UniversalClient
	prefix string
}

// New создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется DefaultPrefix.
func New(ctx context.Context, redisURL, prefix string) (*Backend, error) {
	const op = "tokenstore/redis/New"

	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := goredis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return NewWithClient(rdb, prefix), nil
}

// NewWithClient оборачивает готовый клиент (в том числе cluster/sentinel).
func NewWithClient(rdb goredis.UniversalClient, prefix string) *Backend {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Backend{rdb: rdb, prefix: prefix}
}

// Session возвращает хранилище токенов конкретной сессии.
func (b *Backend) Session(sessionID string) (*Store, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	return &Store{b: b, sid: sessionID}, nil
}

// Ping проверяет доступность Redis (readiness).
func (b *Backend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close закрывает клиент Redis.
func (b *Backend) Close() error { return b.rdb.Close() }

// Store — токены одной сессии.
type Store struct {
	b   *Backend
	sid string
}

func (s *Store) key(kind tokenstore.Kind) string {
	return s.b.prefix + s.sid + ":" + kind.Name()
}

func (s *Store) Get(ctx context.Context, kind tokenstore.Kind) (string, bool, error) {
	const op = "tokenstore/redis/Get"

	if err := kind.Validate(); err != nil {
		return "", false, err
	}

	v, err := s.b.rdb.Get(ctx, s.key(kind)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	return v, v != "", nil
}

func (s *Store) Set(ctx context.Context, kind tokenstore.Kind, value string, ttl time.Duration) error {
	const op = "tokenstore/redis/Set"

	if err := kind.Validate(); err != nil {
		return err
	}

	if ttl < 0 {
		ttl = 0
	}

	if err := s.b.rdb.Set(ctx, s.key(kind), value, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Store) Clear(ctx context.Context, kinds ...tokenstore.Kind) error {
	const op = "tokenstore/redis/Clear"

	kinds, err := tokenstore.Resolve(kinds)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(kinds))
	for _, k := range kinds {
		keys = append(keys, s.key(k))
	}

	if err := s.b.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Проверка выполнения контракта верхнего уровня.
var _ tokenstore.Store = (*Store)(nil)
