package apiclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/pribylovaa/hackathon-site/internal/models"
	"github.com/pribylovaa/hackathon-site/internal/tokenstore"
	"github.com/pribylovaa/hackathon-site/pkg/redact"
)

// RefreshPath — эндпоинт обмена refresh-токена.
const RefreshPath = "/auth/token/refresh/"

// RefreshState — состояние координатора refresh.
type RefreshState int32

const (
	RefreshIdle RefreshState = iota
	RefreshInFlight
	RefreshFailed
)

func (s RefreshState) String() string {
	switch s {
	case RefreshIdle:
		return "idle"
	case RefreshInFlight:
		return "refreshing"
	case RefreshFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// refresher объединяет параллельные обмены одного и того же refresh-токена
// в один запрос к API.
type refresher struct {
	group    singleflight.Group
	state    atomic.Int32
	inflight atomic.Int32
}

func newRefresher() *refresher {
	return &refresher{}
}

func (r *refresher) State() RefreshState {
	if r.inflight.Load() > 0 {
		return RefreshInFlight
	}

	return RefreshState(r.state.Load())
}

// refresh получает новый access-токен.
//
// Все конкурентные вызовы с одинаковым refresh-токеном разделяют один
// обмен. Сам обмен не привязан к ctx вызвавшего: отмена одного ожидающего
// не обрывает запрос для остальных. Каждый ожидающий сам пишет результат
// в своё хранилище.
//
// Возвращает errNoRefreshToken, если refresh-токена нет; обёрнутый
// ErrSessionExpired, если API отверг обмен (токены очищены, редирект
// выполнен); ctx.Err(), если ctx отменён во время ожидания.
func (c *Client) refresh(ctx context.Context) (string, error) {
	const op = "apiclient/refresh"

	log := c.logger(ctx)

	token, ok, err := c.store.Get(ctx, tokenstore.Refresh)
	if err != nil {
		return "", fmt.Errorf("%s: read refresh token: %w", op, err)
	}
	if !ok || token == "" {
		c.flights.state.Store(int32(RefreshFailed))
		c.opts.Metrics.observeRefresh(refreshNoToken)
		log.Info("token_refresh_skipped", slog.String("reason", "no_refresh_token"))

		return "", errNoRefreshToken
	}

	ch := c.flights.group.DoChan(token, func() (any, error) {
		c.flights.inflight.Add(1)
		defer c.flights.inflight.Add(-1)

		return c.exchange(ctx, token)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	case res = <-ch:
	}

	if res.Err != nil {
		c.flights.state.Store(int32(RefreshFailed))
		c.opts.Metrics.observeRefresh(refreshFailure)
		log.Warn("token_refresh_failed",
			slog.String("refresh", redact.Token(token)),
			slog.String("err", res.Err.Error()),
		)
		c.teardown(ctx)

		return "", fmt.Errorf("%s: %w: %w", op, ErrSessionExpired, res.Err)
	}

	access := res.Val.(string)

	if err := c.store.Set(ctx, tokenstore.Access, access, c.opts.AccessTTL); err != nil {
		return "", fmt.Errorf("%s: store access token: %w", op, err)
	}

	c.flights.state.Store(int32(RefreshIdle))
	if res.Shared {
		c.opts.Metrics.observeRefresh(refreshShared)
	} else {
		c.opts.Metrics.observeRefresh(refreshSuccess)
	}
	log.Info("token_refreshed", slog.Bool("shared", res.Shared))

	return access, nil
}

// exchange — сам POST на RefreshPath.
func (c *Client) exchange(ctx context.Context, token string) (string, error) {
	const op = "apiclient/exchange"

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.RefreshTimeout)
	defer cancel()

	req, err := NewJSONRequest(http.MethodPost, RefreshPath, models.RefreshRequest{Refresh: token})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	req.Anonymous = true
	req.NoRefresh = true

	var out models.RefreshResponse
	if err := c.DoJSON(ctx, req, &out); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if out.Access == "" {
		return "", fmt.Errorf("%s: %w: empty access token", op, ErrMalformedResponse)
	}

	return out.Access, nil
}

// teardown очищает оба токена и отправляет пользователя на логин.
// Выполняется даже если ctx вызвавшего уже отменён.
func (c *Client) teardown(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	if err := c.store.Clear(ctx, tokenstore.Access, tokenstore.Refresh); err != nil {
		c.logger(ctx).Error("token_clear_failed", slog.String("err", err.Error()))
	}

	if c.opts.Redirector != nil {
		c.opts.Redirector.RedirectToLogin(ctx)
	}
}

// IsSessionExpired — удобная проверка для обработчиков.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}
