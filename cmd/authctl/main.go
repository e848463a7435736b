// Command authctl drives the session core from a terminal: it decodes
// tokens, logs in and out against the library backend, walks the password
// reset flow and can run a development backend.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"

	auth "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/internal/config"
)

type commandFn func(app *app, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

func commands() map[string]command {
	return map[string]command{
		"decode": {
			name:        "decode",
			description: "Decode a token and print the identity it maps to",
			run:         runDecode,
		},
		"login": {
			name:        "login",
			description: "Log in against the backend and store the credential",
			run:         runLogin,
		},
		"logout": {
			name:        "logout",
			description: "Clear the stored credential",
			run:         runLogout,
		},
		"whoami": {
			name:        "whoami",
			description: "Print the current session",
			run:         runWhoami,
		},
		"reset": {
			name:        "reset",
			description: "Reset a forgotten password",
			run:         runReset,
		},
		"watch": {
			name:        "watch",
			description: "Follow session changes made by other processes",
			run:         runWatch,
		},
		"serve-dev": {
			name:        "serve-dev",
			description: "Run the development backend",
			run:         runServeDev,
		},
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage(os.Stderr)
		return 2
	}

	cmd, ok := commands()[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printUsage(os.Stderr)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, cfg, newLogger(cfg), os.Stdin, os.Stdout)
	if err := cmd.run(a, args[1:]); err != nil {
		if isUsageError(err) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", cmd.name, err)
			return 2
		}
		a.logger.Error("command failed", "command", cmd.name, "error", err)
		return 1
	}
	return 0
}

func newLogger(cfg config.Config) *glog.BaseLogger {
	if cfg.Verbose {
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Trace),
			glog.WithName("authctl"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
		)
	}
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithName("authctl"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
}

// isUsageError reports input problems the user can fix.
func isUsageError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryValidation || richErr.Category == goerrors.CategoryBadInput
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: authctl <command> [flags]\n\n")
	fmt.Fprintf(w, "Available commands:\n")

	all := commands()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %s\n", name, all[name].description)
	}
}

// app carries what every command needs.
type app struct {
	ctx      context.Context
	cfg      config.Config
	logger   auth.Logger
	provider auth.LoggerProvider
	in       *bufio.Reader
	out      io.Writer

	// readSecret reads a line without echo
	readSecret func() (string, error)
	// credentials overrides the sqlite store, e.g. in tests
	credentials auth.CredentialStore
}

func newApp(ctx context.Context, cfg config.Config, base *glog.BaseLogger, in io.Reader, out io.Writer) *app {
	provider := glog.ProviderFromLogger(base)
	_, logger := auth.ResolveLogger("authctl", provider, nil)

	a := &app{
		ctx:      ctx,
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		in:       bufio.NewReader(in),
		out:      out,
	}
	a.readSecret = terminalSecretReader(in, a.in)
	return a
}
