// tokenstore описывает хранилище пары токенов сессии (access/refresh).
//
// Контракт:
//   - отсутствие токена — нормальное состояние (первый визит, после logout),
//     поэтому Get возвращает ok=false, а не ошибку;
//   - Set перезаписывает значение того же вида; ttl <= 0 — без явного срока;
//   - Clear без аргументов удаляет оба токена;
//   - содержимое токенов не валидируется.
//
// Реализации: memory (процесс), cookie (HTTP-запрос браузера),
// redis (серверное хранение по id сессии), file (CLI).
package tokenstore

//go:generate mockgen -source=store.go -destination=../../mocks/mock_store.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind — вид токена.
type Kind string

const (
	// Access — короткоживущий токен доступа.
	Access Kind = "access"
	// Refresh — долгоживущий токен обновления.
	Refresh Kind = "refresh"
)

// Kinds — все виды токенов в порядке очистки.
var Kinds = []Kind{Access, Refresh}

// ErrUnknownKind — передан вид токена, отличный от Access/Refresh.
var ErrUnknownKind = errors.New("unknown token kind")

// Name возвращает имя, под которым токен хранится (cookie, ключ, поле файла).
func (k Kind) Name() string {
	return string(k) + "_token"
}

// Validate проверяет, что вид токена известен.
func (k Kind) Validate() error {
	switch k {
	case Access, Refresh:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
	}
}

// Store — хранилище токенов. Реализации безопасны для конкурентного использования.
type Store interface {
	// Get возвращает значение и признак наличия.
	Get(ctx context.Context, kind Kind) (string, bool, error)
	// Set сохраняет значение с подсказкой срока жизни.
	Set(ctx context.Context, kind Kind, value string, ttl time.Duration) error
	// Clear удаляет указанные токены (или оба, если kinds пуст).
	Clear(ctx context.Context, kinds ...Kind) error
}

// Resolve нормализует аргумент Clear: пустой список означает оба токена.
func Resolve(kinds []Kind) ([]Kind, error) {
	if len(kinds) == 0 {
		return Kinds, nil
	}

	for _, k := range kinds {
		if err := k.Validate(); err != nil {
			return nil, err
		}
	}

	return kinds, nil
}
