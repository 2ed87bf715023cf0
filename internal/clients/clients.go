// clients собирает исходящие зависимости шлюза: диспетчер запросов к API
// и (для драйвера redis) серверное хранилище токенов.
package clients

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pribylovaa/hackathon-site/internal/apiclient"
	"github.com/pribylovaa/hackathon-site/internal/config"
	"github.com/pribylovaa/hackathon-site/internal/tokenstore/memory"
	"github.com/pribylovaa/hackathon-site/internal/tokenstore/redis"
)

// Clients агрегирует исходящие клиенты шлюза.
type Clients struct {
	// API — базовый диспетчер. Собственное хранилище пустое, поэтому
	// хендлеры всегда работают через API.With(store конкретного запроса).
	API *apiclient.Client
	// Sessions — хранилище токенов в Redis; nil для драйвера cookie.
	Sessions *redis.Backend
}

// New создаёт диспетчер API и, если нужно, подключение к Redis.
// reg может быть nil (метрики не регистрируются).
func New(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer) (*Clients, error) {
	const op = "internal/clients/New"

	api, err := apiclient.New(memory.New(), apiclient.Options{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.API.Timeout,
		RefreshTimeout: cfg.API.RefreshTimeout,
		AccessTTL:      cfg.Tokens.AccessTTL,
		UserAgent:      cfg.API.UserAgent,
		Logger:         log,
		Metrics:        apiclient.NewMetrics(reg),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: api client: %w", op, err)
	}

	c := &Clients{API: api}

	if cfg.Store.Driver == config.StoreRedis {
		backend, err := redis.New(ctx, cfg.Store.RedisURL, cfg.Store.Prefix)
		if err != nil {
			return nil, fmt.Errorf("%s: redis: %w", op, err)
		}
		c.Sessions = backend
	}

	return c, nil
}

// Ready проверяет доступность зависимостей для /healthz.
func (c *Clients) Ready(ctx context.Context) error {
	if c.Sessions == nil {
		return nil
	}

	return c.Sessions.Ping(ctx)
}

// Close закрывает открытые подключения.
func (c *Clients) Close() error {
	if c.Sessions == nil {
		return nil
	}

	return c.Sessions.Close()
}
