// Package cli — команды site-cli: вход, регистрация, профиль и сырые
// запросы к API сайта из терминала. Токены хранятся в локальном файле.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pribylovaa/hackathon-site/internal/apiclient"
	"github.com/pribylovaa/hackathon-site/internal/session"
	"github.com/pribylovaa/hackathon-site/internal/tokenstore/file"
)

const defaultAPI = "https://syria-vision-backend-production.up.railway.app/api"

// MsgSessionExpired — текст для пользователя, когда refresh не удался.
const MsgSessionExpired = "session expired, please log in again"

// Build information, set via ldflags.
var Version = "dev"

// App собирает приложение site-cli.
func App() *cli.App {
	return &cli.App{
		Name:    "site-cli",
		Usage:   "hackathon site account from the command line",
		Version: Version,
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			loginCommand(),
			registerCommand(),
			logoutCommand(),
			meCommand(),
			profileCommand(),
			passwordCommand(),
			avatarCommand(),
			getCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "api",
			Usage:   "API base URL",
			EnvVars: []string{"SITE_API"},
			Value:   defaultAPI,
		},
		&cli.StringFlag{
			Name:    "store",
			Usage:   "token file path",
			EnvVars: []string{"SITE_STORE"},
			Value:   file.DefaultPath(),
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: json, yaml",
			Value:   string(FormatJSON),
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "API request timeout",
			Value: 15 * time.Second,
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "log API requests to stderr",
		},
	}
}

// Run запускает приложение и возвращает код выхода.
// Ошибки печатаются в stderr понятным пользователю текстом.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := App()
	app.Writer = stdout
	app.ErrWriter = stderr

	if err := app.RunContext(ctx, args); err != nil {
		fmt.Fprintln(stderr, "error: "+describe(err))
		return 1
	}

	return 0
}

func describe(err error) string {
	var ve *apiclient.ValidationError
	switch {
	case apiclient.IsSessionExpired(err):
		return MsgSessionExpired
	case errors.Is(err, session.ErrNotAuthenticated):
		return "not logged in, run: site-cli login"
	case errors.Is(err, apiclient.ErrInvalidCredentials):
		return "invalid email or password"
	case errors.As(err, &ve):
		for _, f := range ve.Fields {
			if len(f.Messages) == 0 {
				continue
			}
			if f.Field == "detail" || f.Field == "non_field_errors" {
				return f.Messages[0]
			}
			return f.Field + ": " + f.Messages[0]
		}
		return ve.Error()
	case errors.Is(err, apiclient.ErrNetwork):
		return "API unreachable: " + err.Error()
	}

	return err.Error()
}

// openSession собирает диспетчер и фасад поверх файлового хранилища.
func openSession(c *cli.Context) (*session.Session, error) {
	const op = "cli/openSession"

	store := file.New(c.String("store"))

	opts := apiclient.Options{
		BaseURL:   c.String("api"),
		Timeout:   c.Duration("timeout"),
		UserAgent: "site-cli/" + Version,
	}
	if c.Bool("verbose") {
		opts.Logger = slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: slog.LevelDebug}))
	} else {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client, err := apiclient.New(store, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return session.New(client, store, session.Options{
		RevokeOnLogout: c.Bool("revoke"),
	}), nil
}
