package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"invigilation/internal/apperrors"
	"invigilation/internal/client"
	"invigilation/internal/config"
	"invigilation/internal/session"
)

var (
	readPasswordFunc = func() ([]byte, error) { return term.ReadPassword(int(syscall.Stdin)) } // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	cfg  config.Console
	sess *session.Session
	api  *client.Client
	out    io.Writer
	errOut io.Writer
	in     io.Reader
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, `Usage:
  login -email EMAIL                      - sign in (password is prompted)
  logout | whoami
  faculty list [-q TERM] | add | delete -id ID | import -file F.xlsx
  venues list | add | delete -id ID | import -file F.xlsx
  alloc generate -date D -slot S -per-venue N | list [-date D|all] | export [-date D|all] -out F.pdf
  attendance list [-date D|all] | export -date D -format excel|pdf -out F | mark -allocation ID -date D
  duties [-mark ID]                       - your own duties
  kiosk                                   - RFID attendance terminal`)
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	rest := args[2:]
	switch args[1] {
	case "login":
		return cli.login(ctx, rest)
	case "logout":
		if err := cli.api.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "Logged out")
		return nil
	case "whoami":
		return cli.whoami(ctx)
	case "faculty":
		return cli.faculty(ctx, rest)
	case "venues":
		return cli.venues(ctx, rest)
	case "alloc":
		return cli.alloc(ctx, rest)
	case "attendance":
		return cli.attendance(ctx, rest)
	case "duties":
		return cli.duties(ctx, rest)
	case "kiosk":
		return cli.kiosk(ctx)
	default:
		cli.printUsage()
		return errHelp
	}
}

// report prints err the way the operator should see it.
func (cli *commandLine) report(err error) {
	if redirect, ok := client.IsRedirect(err); ok {
		fmt.Fprintf(cli.errOut, "%s\nPlease sign in again: %s\n", apperrors.Message(err), redirect)
		return
	}
	fmt.Fprintln(cli.errOut, "error:", apperrors.Message(err))
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// parse wraps FlagSet.Parse so a bad flag reads as a validation error.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errHelp
		}
		return apperrors.Validation(err.Error())
	}
	return nil
}

func subcommand(args []string) (string, []string) {
	if len(args) == 0 {
		return "list", nil
	}
	return args[0], args[1:]
}

func (cli *commandLine) table(header ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	return tw
}

func (cli *commandLine) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "account e-mail")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *email == "" {
		return apperrors.Validation("-email is required")
	}
	fmt.Fprint(cli.out, "Password: ")
	pwd, err := readPasswordFunc()
	fmt.Fprintln(cli.out)
	if err != nil {
		return err
	}
	res, err := cli.api.Login(ctx, *email, string(pwd))
	if err != nil {
		return err
	}
	role := "faculty"
	if res.IsAdmin {
		role = "admin"
	}
	fmt.Fprintf(cli.out, "Signed in as %s (%s)\n", res.User.Name, role)
	return nil
}

func (cli *commandLine) whoami(ctx context.Context) error {
	u, err := cli.api.CurrentUser(ctx)
	if err != nil {
		return err
	}
	role := "faculty"
	if u.IsAdmin {
		role = "admin"
	}
	fmt.Fprintf(cli.out, "%s <%s> (%s)\n", u.Name, u.Email, role)
	return nil
}
