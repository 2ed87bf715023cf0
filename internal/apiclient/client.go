// apiclient — диспетчер запросов к REST API сайта.
//
// Client прикладывает текущий access-токен из tokenstore.Store к каждому
// запросу, а при 401 передаёт управление координатору refresh (refresh.go):
// обмен refresh-токена на новый access, ровно один повтор исходного запроса,
// при провале — очистка сессии и редирект на логин.
//
// Client безопасен для конкурентного использования. With(store) даёт копию,
// привязанную к другому хранилищу (например, к cookie конкретного браузера),
// с общими http.Client, метриками и single-flight группой refresh.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/hackathon-site/internal/tokenstore"
	logctx "github.com/pribylovaa/hackathon-site/pkg/log"
	"github.com/pribylovaa/hackathon-site/pkg/redact"
)

const (
	defaultUserAgent      = "hackathon-site"
	defaultTimeout        = 15 * time.Second
	defaultRefreshTimeout = 10 * time.Second
	defaultAccessTTL      = 24 * time.Hour
)

// LoginRedirector отправляет пользователя на страницу логина после
// необратимого провала refresh.
type LoginRedirector interface {
	RedirectToLogin(ctx context.Context)
}

// RedirectFunc — адаптер функции к LoginRedirector.
type RedirectFunc func(ctx context.Context)

func (f RedirectFunc) RedirectToLogin(ctx context.Context) { f(ctx) }

// Options — параметры клиента.
type Options struct {
	// BaseURL — корень API, например "https://example.com/api".
	BaseURL string
	// HTTPClient — транспорт; если nil, создаётся с Timeout.
	HTTPClient *http.Client
	// Timeout — общий таймаут запроса (включая чтение тела).
	Timeout time.Duration
	// RefreshTimeout — дедлайн обмена refresh-токена.
	RefreshTimeout time.Duration
	// AccessTTL — срок жизни access-токена, записываемого после refresh.
	AccessTTL time.Duration
	UserAgent string
	Logger    *slog.Logger
	Metrics   *Metrics
	// Redirector — может быть nil.
	Redirector LoginRedirector
}

// Client — диспетчер запросов.
type Client struct {
	base    string
	hc      *http.Client
	opts    Options
	store   tokenstore.Store
	flights *refresher
}

// New создаёт клиент поверх хранилища store.
func New(store tokenstore.Store, opts Options) (*Client, error) {
	const op = "apiclient/New"

	if store == nil {
		return nil, fmt.Errorf("%s: nil token store", op)
	}

	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%s: base url %q must be http(s)", op, opts.BaseURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = defaultRefreshTimeout
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = defaultAccessTTL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		base:    strings.TrimRight(u.String(), "/"),
		hc:      hc,
		opts:    opts,
		store:   store,
		flights: newRefresher(),
	}, nil
}

// With возвращает клиент, работающий с другим хранилищем токенов.
// Группа single-flight, транспорт и метрики общие.
func (c *Client) With(store tokenstore.Store) *Client {
	cp := *c
	cp.store = store

	return &cp
}

// WithRedirector возвращает клиент с другим обработчиком редиректа.
func (c *Client) WithRedirector(r LoginRedirector) *Client {
	cp := *c
	cp.opts.Redirector = r

	return &cp
}

// Redirector возвращает текущий обработчик редиректа (может быть nil).
func (c *Client) Redirector() LoginRedirector { return c.opts.Redirector }

// Store возвращает хранилище токенов клиента.
func (c *Client) Store() tokenstore.Store { return c.store }

// AccessTTL возвращает срок жизни access-токена.
func (c *Client) AccessTTL() time.Duration { return c.opts.AccessTTL }

// RefreshState возвращает состояние координатора refresh.
func (c *Client) RefreshState() RefreshState { return c.flights.State() }

// Do отправляет запрос с access-токеном и обрабатывает 401.
//
// Поведение:
//   - не-401 ответы и транспортные ошибки возвращаются как есть;
//   - 401 на запрос с NoRefresh возвращается как есть;
//   - 401 без refresh-токена — исходный ответ 401 без изменений;
//   - 401 и успешный refresh — один повтор с новым токеном; его ответ
//     (в том числе повторный 401) возвращается как есть;
//   - провал refresh — ошибка ErrSessionExpired, токены очищены.
//
// Тело ответа закрывает вызывающая сторона.
func (c *Client) Do(ctx context.Context, req *Request) (*http.Response, error) {
	if RequestID(ctx) == "" {
		ctx = WithRequestID(ctx, uuid.NewString())
	}

	resp, err := c.send(ctx, req, "", 1)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || req.NoRefresh || req.Anonymous {
		return resp, nil
	}

	access, err := c.refresh(ctx)
	if errors.Is(err, errNoRefreshToken) {
		return resp, nil
	}

	drainClose(resp)

	if err != nil {
		return nil, err
	}

	return c.send(ctx, req, access, 2)
}

// DoJSON выполняет Do и декодирует 2xx JSON-ответ в out (out может быть nil).
// Не-2xx ответы превращаются в ошибки через DecodeError.
func (c *Client) DoJSON(ctx context.Context, req *Request, out any) error {
	const op = "apiclient/DoJSON"

	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer drainClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DecodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
	}

	return nil
}

// send — одна попытка. access != "" — явный токен (повтор после refresh),
// иначе токен читается из хранилища.
func (c *Client) send(ctx context.Context, req *Request, access string, attempt int) (*http.Response, error) {
	const op = "apiclient/send"

	hreq, err := http.NewRequestWithContext(ctx, req.Method, c.url(req), req.bodyReader())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}

	hreq.Header.Set("User-Agent", c.opts.UserAgent)
	if rid := RequestID(ctx); rid != "" {
		hreq.Header.Set("X-Request-Id", rid)
	}
	if loc := Locale(ctx); loc != "" && hreq.Header.Get("Accept-Language") == "" {
		hreq.Header.Set("Accept-Language", loc)
	}

	if !req.Anonymous {
		if access == "" {
			token, ok, err := c.store.Get(ctx, tokenstore.Access)
			if err != nil {
				return nil, fmt.Errorf("%s: read access token: %w", op, err)
			}
			if ok {
				access = token
			}
		}

		if access != "" {
			hreq.Header.Set("Authorization", "Bearer "+access)
		} else {
			hreq.Header.Del("Authorization")
		}
	}

	start := time.Now()
	resp, err := c.hc.Do(hreq)
	dur := time.Since(start)

	l := c.logger(ctx).With(
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("attempt", attempt),
		slog.Bool("auth", hreq.Header.Get("Authorization") != ""),
	)

	if err != nil {
		c.opts.Metrics.observeRequest(req.Method, 0, dur)
		l.Warn("api_request_failed", slog.Duration("dur", dur), slog.String("err", err.Error()))

		return nil, fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
	}

	c.opts.Metrics.observeRequest(req.Method, resp.StatusCode, dur)
	l.Info("api", slog.Int("status", resp.StatusCode), slog.Duration("dur", dur))
	if l.Enabled(ctx, slog.LevelDebug) {
		l.Debug("api_headers",
			slog.Any("request", redact.Header(hreq.Header)),
			slog.Any("response", redact.Header(resp.Header)),
		)
	}

	return resp, nil
}

func (c *Client) url(req *Request) string {
	u := c.base + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	return u
}

func (c *Client) logger(ctx context.Context) *slog.Logger {
	if c.opts.Logger != nil && logctx.From(ctx) == slog.Default() {
		return c.opts.Logger
	}

	return logctx.From(ctx)
}

// drainClose дочитывает (ограниченно) и закрывает тело, чтобы соединение
// вернулось в пул.
func drainClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
