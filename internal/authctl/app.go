// Package authctl implements the administrative command line of authkeeper:
// schema migrations, account creation, one-shot cleanup and revocation.
package authctl

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/server/cleanup"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/gateway"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

// ErrUsage is returned for an unknown command or bad command flags.
var ErrUsage = errors.New("usage error")

// globalValueFlags are skipped when looking for the command name.
var globalValueFlags = append(append([]string{}, config.ValueFlags...), flagx.ConfigFileFlags...)

// Backend is what the commands operate on. *server.App implements it.
type Backend interface {
	Migrate(ctx context.Context) error
	Gateway() *gateway.Gateway
	Sweeper() *cleanup.Sweeper
}

type App struct {
	backend Backend
	in      *bufio.Reader
	out     io.Writer
}

func NewApp(b Backend, in io.Reader, out io.Writer) *App {
	return &App{backend: b, in: bufio.NewReader(in), out: out}
}

// Usage prints the command summary.
func (a *App) Usage() {
	fmt.Fprint(a.out, `usage: authctl [config flags] <command> [command flags]

commands:
  migrate                                       apply schema migrations
  create-user -email E -username U [-name N]    create an active user, password read from the terminal
  sweep                                         purge expired and revoked refresh tokens
  revoke-all -user ID                           revoke every refresh token of a user
  list-users [-page P] [-size S]                list users ordered by id
`)
}

// Run executes the command found in args.
func (a *App) Run(ctx context.Context, args []string) error {
	cmd, rest := flagx.SplitCommand(args, globalValueFlags)

	switch cmd {
	case "migrate":
		return a.migrate(ctx)
	case "create-user":
		return a.createUser(ctx, rest)
	case "sweep":
		return a.sweep(ctx)
	case "revoke-all":
		return a.revokeAll(ctx, rest)
	case "list-users":
		return a.listUsers(ctx, rest)
	default:
		a.Usage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func (a *App) migrate(ctx context.Context) error {
	if err := a.backend.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "migrations applied")
	return nil
}

func (a *App) createUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(a.out)
	email := fs.String("email", "", "email address")
	username := fs.String("username", "", "username")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	if *email == "" {
		v, err := GetSimpleText(a.in, "Email", a.out)
		if err != nil {
			return err
		}
		*email = v
	}
	if *username == "" {
		v, err := GetSimpleText(a.in, "Username", a.out)
		if err != nil {
			return err
		}
		*username = v
	}

	pw, err := GetPassword(a.in, a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	user, err := a.backend.Gateway().Register(ctx, services.NewUser{
		Email:    *email,
		Username: *username,
		Name:     *name,
		Password: string(pw),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "created user id=%d email=%s username=%s\n", user.ID, user.Email, user.Username)
	return nil
}

func (a *App) sweep(ctx context.Context) error {
	n, err := a.backend.Sweeper().Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %d refresh tokens\n", n)
	return nil
}

func (a *App) revokeAll(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("revoke-all", flag.ContinueOnError)
	fs.SetOutput(a.out)
	userID := fs.Int64("user", 0, "user id")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *userID <= 0 {
		return fmt.Errorf("%w: -user is required", ErrUsage)
	}

	n, err := a.backend.Gateway().LogoutAll(ctx, *userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "revoked %d refresh tokens\n", n)
	return nil
}

func (a *App) listUsers(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list-users", flag.ContinueOnError)
	fs.SetOutput(a.out)
	page := fs.Int("page", 1, "page number, starting at 1")
	size := fs.Int("size", services.DefaultPageSize, "users per page")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	res, err := a.backend.Gateway().ListUsers(ctx, *page, *size)
	if err != nil {
		return err
	}

	for _, u := range res.Users {
		fmt.Fprintf(a.out, "%d\t%s\t%s\tactive=%t\n", u.ID, u.Email, u.Username, u.Active)
	}
	fmt.Fprintf(a.out, "page %d/%d, %d users\n", res.Page, res.Pages, res.Total)
	return nil
}
