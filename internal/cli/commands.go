package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pribylovaa/hackathon-site/internal/apiclient"
	"github.com/pribylovaa/hackathon-site/internal/models"
	"github.com/pribylovaa/hackathon-site/internal/session"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in and save tokens",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "password (read from stdin if empty)",
				EnvVars: []string{"SITE_PASSWORD"},
			},
		},
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			password, err := secret(c, "password")
			if err != nil {
				return err
			}

			if err := s.Login(c.Context, c.String("email"), password); err != nil {
				return err
			}

			return printUser(c, s)
		},
	}
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create an account and log in",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
			&cli.StringFlag{Name: "full-name"},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, EnvVars: []string{"SITE_PASSWORD"}},
			&cli.StringFlag{Name: "password-confirm", Usage: "defaults to --password"},
		},
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			password, err := secret(c, "password")
			if err != nil {
				return err
			}
			confirm := c.String("password-confirm")
			if !c.IsSet("password-confirm") {
				confirm = password
			}

			err = s.Register(c.Context, models.RegisterInput{
				Email:           c.String("email"),
				Username:        c.String("username"),
				Password:        password,
				PasswordConfirm: confirm,
				FullName:        c.String("full-name"),
			})
			if err != nil {
				return err
			}

			return printUser(c, s)
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget saved tokens",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "revoke", Usage: "also revoke the refresh token on the server"},
		},
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Logout(c.Context); err != nil {
				return err
			}

			fmt.Fprintln(c.App.Writer, "logged out")
			return nil
		},
	}
}

func meCommand() *cli.Command {
	return &cli.Command{
		Name:  "me",
		Usage: "Show the current user",
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.RefreshUser(c.Context); err != nil {
				return err
			}

			return printUser(c, s)
		},
	}
}

// profileFields — флаги, соответствующие полям models.ProfileUpdate.
var profileFields = []struct {
	flag string
	set  func(*models.ProfileUpdate, *string)
}{
	{"full-name", func(u *models.ProfileUpdate, v *string) { u.FullName = v }},
	{"bio", func(u *models.ProfileUpdate, v *string) { u.Bio = v }},
	{"phone", func(u *models.ProfileUpdate, v *string) { u.Phone = v }},
	{"location", func(u *models.ProfileUpdate, v *string) { u.Location = v }},
	{"website", func(u *models.ProfileUpdate, v *string) { u.Website = v }},
	{"linkedin", func(u *models.ProfileUpdate, v *string) { u.LinkedIn = v }},
	{"twitter", func(u *models.ProfileUpdate, v *string) { u.Twitter = v }},
	{"github", func(u *models.ProfileUpdate, v *string) { u.GitHub = v }},
}

func profileCommand() *cli.Command {
	flags := make([]cli.Flag, 0, len(profileFields))
	for _, f := range profileFields {
		flags = append(flags, &cli.StringFlag{Name: f.flag})
	}

	return &cli.Command{
		Name:  "profile",
		Usage: "Manage the profile",
		Subcommands: []*cli.Command{
			{
				Name:  "update",
				Usage: "Update profile fields (only the given flags are sent)",
				Flags: flags,
				Action: func(c *cli.Context) error {
					var upd models.ProfileUpdate
					for _, f := range profileFields {
						if c.IsSet(f.flag) {
							v := c.String(f.flag)
							f.set(&upd, &v)
						}
					}

					s, err := openSession(c)
					if err != nil {
						return err
					}
					defer s.Close()

					user, err := s.UpdateProfile(c.Context, upd)
					if err != nil {
						return err
					}

					return render(c, user)
				},
			},
		},
	}
}

func passwordCommand() *cli.Command {
	return &cli.Command{
		Name:  "password",
		Usage: "Change the password",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "old", Required: true},
			&cli.StringFlag{Name: "new", Required: true},
		},
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.ChangePassword(c.Context, c.String("old"), c.String("new")); err != nil {
				return err
			}

			fmt.Fprintln(c.App.Writer, "password changed")
			return nil
		},
	}
}

func avatarCommand() *cli.Command {
	return &cli.Command{
		Name:      "avatar",
		Usage:     "Upload a new avatar image",
		ArgsUsage: "FILE",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return errors.New("avatar: FILE is required")
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.UploadAvatar(c.Context, filepath.Base(path), f); err != nil {
				return err
			}

			return printUser(c, s)
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Authenticated GET of an API path, e.g. /events/",
		ArgsUsage: "PATH",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return errors.New("get: PATH is required")
			}

			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			req := apiclient.NewRequest(http.MethodGet, path)

			var body any
			if err := s.Client().DoJSON(c.Context, req, &body); err != nil {
				return err
			}

			return render(c, body)
		},
	}
}

func render(c *cli.Context, v any) error {
	format, err := ParseFormat(c.String("output"))
	if err != nil {
		return err
	}

	return Print(c.App.Writer, format, v)
}

func printUser(c *cli.Context, s *session.Session) error {
	user := s.User()
	if user == nil {
		return session.ErrNotAuthenticated
	}

	return render(c, user)
}

// secret берёт значение флага или первую строку stdin.
func secret(c *cli.Context, name string) (string, error) {
	if v := c.String(name); v != "" {
		return v, nil
	}

	fmt.Fprintf(c.App.ErrWriter, "%s: ", name)

	reader := c.App.Reader
	if reader == nil {
		reader = os.Stdin
	}

	line, err := bufio.NewReader(reader).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}
