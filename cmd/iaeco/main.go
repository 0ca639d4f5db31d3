// Command iaeco is the command line client of the IaEco carbon platform.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"iaeco.app/internal/app"
	"iaeco.app/internal/auth"
	"iaeco.app/internal/config"
	"iaeco.app/internal/notify"
	"iaeco.app/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

type cli struct {
	stdout io.Writer
	stderr io.Writer
	stdin  *bufio.Reader

	cfgFile string
	output  string
	verbose bool

	// appOpts are appended to the defaults when the app is built.
	appOpts []app.Option
}

type command struct {
	name    string
	summary string
	run     func(c *cli, ctx context.Context, args []string) error
}

func commands() []command {
	return []command{
		{"login", "sign in and store the session tokens", runLogin},
		{"logout", "forget the stored session", runLogout},
		{"whoami", "show the signed-in user, role and menu", runWhoami},
		{"companies", "list, add, update or remove micro companies", runCompanies},
		{"upload", "send emission documents", runUpload},
		{"history", "list uploaded documents or show one status", runHistory},
		{"notifications", "list notifications", runNotifications},
		{"dashboard", "show dashboard summary and emissions", runDashboard},
		{"users", "administer company users", runUsers},
		{"change-password", "change the signed-in user's password", runChangePassword},
		{"forgot-password", "request a password reset e-mail", runForgotPassword},
		{"watch", "keep the session validated and serve local status", runWatch},
		{"migrate", "manage the sql token store schema", runMigrate},
		{"version", "print version", runVersion},
	}
}

func main() {
	c := &cli{stdout: os.Stdout, stderr: os.Stderr, stdin: bufio.NewReader(os.Stdin)}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := c.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func (c *cli) run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("iaeco", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.StringVar(&c.cfgFile, "config", "", "config file (default ./iaeco.yaml)")
	fs.StringVar(&c.output, "output", "text", "output format: text, json or yaml")
	fs.BoolVar(&c.verbose, "v", false, "write structured logs to stderr")
	fs.Usage = c.usage
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		c.usage()
		return 2
	}
	switch c.output {
	case "text", "json", "yaml":
	default:
		fmt.Fprintf(c.stderr, "iaeco: unknown output format %q\n", c.output)
		return 2
	}
	if !c.verbose {
		obs.Logger().SetOutput(io.Discard)
	}
	obs.InitBuildInfo(version, commit)

	name := fs.Arg(0)
	for _, cmd := range commands() {
		if cmd.name != name {
			continue
		}
		if err := cmd.run(c, ctx, fs.Args()[1:]); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 0
			}
			fmt.Fprintf(c.stderr, "iaeco %s: %s\n", name, describe(err))
			return exitCode(err)
		}
		return 0
	}
	fmt.Fprintf(c.stderr, "iaeco: unknown command %q\n", name)
	c.usage()
	return 2
}

func (c *cli) usage() {
	fmt.Fprintln(c.stderr, "usage: iaeco [-config file] [-output text|json|yaml] [-v] <command> [args]")
	fmt.Fprintln(c.stderr, "\ncommands:")
	for _, cmd := range commands() {
		fmt.Fprintf(c.stderr, "  %-16s %s\n", cmd.name, cmd.summary)
	}
}

// open loads the config, wires the app and restores the stored session.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return nil, err
	}
	opts := append([]app.Option{app.WithNotifier(&notify.Writer{W: c.stderr})}, c.appOpts...)
	a, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.Start(ctx); err != nil {
		if ctx.Err() != nil {
			_ = a.Close()
			return nil, ctx.Err()
		}
		fmt.Fprintln(c.stderr, "[info] stored session is no longer valid")
	}
	return a, nil
}

// prompt reads one line from stdin after writing label to stderr.
func (c *cli) prompt(label string) (string, error) {
	fmt.Fprint(c.stderr, label)
	line, err := c.stdin.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSpace(strings.TrimSuffix(label, ":")), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// secret returns value, else $env, else a line from stdin.
func (c *cli) secret(value, env, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	return c.prompt(label)
}

func describe(err error) string {
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Message
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "usuário ou senha inválidos"
	}
	return err.Error()
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, errNotSignedIn), errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrNotAuthenticated):
		return 3
	case errors.Is(err, errDenied), errors.Is(err, errPasswordChange):
		return 4
	case errors.Is(err, context.Canceled):
		return 130
	}
	return 1
}

func runVersion(c *cli, _ context.Context, _ []string) error {
	fmt.Fprintf(c.stdout, "iaeco %s (%s)\n", version, commit)
	return nil
}
