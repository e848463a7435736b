package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	auth "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/activitymap"
	"github.com/goliatone/go-auth-client/devserver"
	"github.com/goliatone/go-auth-client/httpgateway"
	"github.com/goliatone/go-auth-client/redisbus"
	"github.com/goliatone/go-auth-client/repository"
)

const shutdownTimeout = 5 * time.Second

type sessionView struct {
	Authenticated bool           `json:"authenticated"`
	Identity      *auth.Identity `json:"identity,omitempty"`
	ExpiresAt     *time.Time     `json:"expiresAt,omitempty"`
	ExpiresIn     string         `json:"expiresIn,omitempty"`
}

type decodeView struct {
	Identity  auth.Identity `json:"identity"`
	Expired   bool          `json:"expired"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
	Claims    auth.ClaimSet `json:"claims"`
}

type signalView struct {
	Kind       auth.SignalKind `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Session    sessionView     `json:"session"`
}

func runDecode(a *app, args []string) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	fs.SetOutput(a.out)
	if err := fs.Parse(args); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid flags")
	}

	token := strings.TrimSpace(fs.Arg(0))
	if token == "" || token == "-" {
		line, err := readLine(a.in)
		if err != nil && err != io.EOF {
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read token")
		}
		token = line
	}

	view, err := decodeToken(token, time.Now)
	if err != nil {
		return err
	}
	a.printJSON(view)
	return nil
}

func decodeToken(token string, now func() time.Time) (decodeView, error) {
	claims, err := auth.DecodeToken(token)
	if err != nil {
		return decodeView{}, err
	}

	oracle := auth.NewExpiryOracle(auth.WithExpiryClock(now))
	view := decodeView{
		Identity: auth.MapClaims(claims),
		Expired:  oracle.IsExpired(claims),
		Claims:   claims,
	}
	if expiresAt, ok := oracle.ExpiresAt(claims); ok {
		view.ExpiresAt = &expiresAt
	}
	return view, nil
}

func runLogin(a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.out)
	identifier := fs.String("u", "", "account email")
	if err := fs.Parse(args); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid flags")
	}

	client, err := a.gateway()
	if err != nil {
		return err
	}

	if *identifier == "" {
		if *identifier, err = a.prompt("Email"); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read email")
		}
	}
	password, err := a.promptSecret("Password")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read password")
	}

	token, err := client.Login(a.ctx, *identifier, password)
	if err != nil {
		return err
	}

	return a.withSession(func(manager *auth.SessionManager) error {
		if _, err := manager.Login(a.ctx, token); err != nil {
			return err
		}
		a.announce(manager, auth.SignalLogin)
		a.printJSON(describeSession(a.ctx, manager))
		return nil
	})
}

func runLogout(a *app, _ []string) error {
	return a.withSession(func(manager *auth.SessionManager) error {
		manager.Refresh(a.ctx)
		manager.Logout(a.ctx)
		a.announce(manager, auth.SignalLogout)
		a.printJSON(describeSession(a.ctx, manager))
		return nil
	})
}

func runWhoami(a *app, _ []string) error {
	return a.withSession(func(manager *auth.SessionManager) error {
		manager.Refresh(a.ctx)
		a.printJSON(describeSession(a.ctx, manager))
		return nil
	})
}

func describeSession(ctx context.Context, manager *auth.SessionManager) sessionView {
	identity, ok := manager.Current(ctx)
	if !ok {
		return sessionView{}
	}

	view := sessionView{Authenticated: true, Identity: &identity}
	if expiresAt, ok := manager.ExpiresAt(ctx); ok {
		view.ExpiresAt = &expiresAt
		view.ExpiresIn = time.Until(expiresAt).Round(time.Second).String()
	}
	return view
}

func runReset(a *app, _ []string) error {
	client, err := a.gateway()
	if err != nil {
		return err
	}

	flow := auth.NewResetFlow(client,
		auth.WithResetLoggerProvider(a.provider),
		auth.WithResetActivitySink(a.activitySink()),
		auth.WithResetCompletedHook(func(_ context.Context, email string) {
			fmt.Fprintf(a.out, "Password updated for %s. You can log in now.\n", email)
		}),
	)
	return driveResetFlow(a, flow)
}

// driveResetFlow prompts for each stage until the flow completes or the
// user leaves it. Empty input steps back, or cancels from the first steps.
func driveResetFlow(a *app, flow *auth.ResetFlow) error {
	if err := flow.Start(); err != nil {
		return err
	}

	for {
		if a.ctx.Err() != nil {
			flow.Cancel()
			return nil
		}

		var err error
		switch flow.Stage() {
		case auth.ResetStageIdle:
			return nil

		case auth.ResetStageEmail:
			email, readErr := a.prompt("Account email (empty to cancel)")
			if readErr != nil || email == "" {
				flow.Cancel()
				fmt.Fprintln(a.out, "Password reset cancelled.")
				return nil
			}
			if err = flow.SubmitEmail(a.ctx, email); err == nil {
				fmt.Fprintf(a.out, "A verification code was sent to %s.\n", email)
			}

		case auth.ResetStageCode:
			code, readErr := a.prompt("Verification code (empty to cancel)")
			if readErr != nil || code == "" {
				flow.Cancel()
				fmt.Fprintln(a.out, "Password reset cancelled.")
				return nil
			}
			err = flow.SubmitCode(code)

		case auth.ResetStageNewPassword:
			password, readErr := a.promptSecret("New password (empty to re-enter the code)")
			if readErr != nil {
				flow.Cancel()
				return nil
			}
			if password == "" {
				err = flow.Back()
				break
			}
			confirmation, readErr := a.promptSecret("Confirm new password")
			if readErr != nil {
				flow.Cancel()
				return nil
			}
			err = flow.SubmitNewPassword(a.ctx, password, confirmation)
		}

		if err != nil {
			fmt.Fprintf(a.out, "error: %s\n", userMessage(err))
		}
	}
}

func userMessage(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Message != "" {
		return richErr.Message
	}
	return err.Error()
}

func runWatch(a *app, _ []string) error {
	return a.withSession(func(manager *auth.SessionManager) error {
		store := manager.Store()
		bus, ok := auth.BusOf(store)
		if !ok {
			return goerrors.New("session store exposes no signal bus", goerrors.CategoryInternal)
		}

		unsubscribe := store.Subscribe(func(signal auth.Signal) {
			a.printJSON(signalView{
				Kind:       signal.Kind,
				OccurredAt: signal.OccurredAt,
				Session:    describeSessionNow(store),
			})
		})
		defer unsubscribe()

		manager.Refresh(a.ctx)
		a.printJSON(describeSession(a.ctx, manager))

		repo, _ := a.credentials.(auth.VersionedCredentialStore)
		group, ctx := errgroup.WithContext(a.ctx)
		if repo != nil {
			watcher := auth.NewCredentialWatcher(repo, bus,
				auth.WithWatchInterval(a.cfg.Store.PollInterval),
				auth.WithWatcherLoggerProvider(a.provider),
			)
			group.Go(func() error { return watcher.Run(ctx) })
		}
		if a.cfg.Redis.Enabled() {
			client := a.redisClient()
			defer client.Close()
			bridge := redisbus.New(client, bus,
				redisbus.WithChannel(a.cfg.Redis.Channel),
				redisbus.WithLoggerProvider(a.provider),
			)
			group.Go(func() error { return bridge.Run(ctx) })
		}
		group.Go(func() error { return manager.Watch(ctx) })

		if err := group.Wait(); err != nil && a.ctx.Err() == nil {
			return err
		}
		return nil
	})
}

func describeSessionNow(store auth.SessionStore) sessionView {
	identity, ok := store.Current()
	if !ok {
		return sessionView{}
	}
	return sessionView{Authenticated: true, Identity: &identity}
}

type seedUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	Role      auth.Role `json:"role"`
	RoleClaim string    `json:"roleClaim"`
}

var demoUsers = []seedUser{
	{ID: "A-1", Name: "Ada Admin", Email: "admin@library.test", Password: "admin-password", Role: auth.RoleAdmin, RoleClaim: "SystemAdmin"},
	{ID: "STF-1", Name: "Lee Librarian", Email: "staff@library.test", Password: "staff-password", Role: auth.RoleStaff, RoleClaim: "LibraryStaff"},
	{ID: "S-1001", Name: "Sam Student", Email: "student@library.test", Password: "student-password", Role: auth.RoleStudent, RoleClaim: "Student"},
}

func runServeDev(a *app, args []string) error {
	fs := flag.NewFlagSet("serve-dev", flag.ContinueOnError)
	fs.SetOutput(a.out)
	addr := fs.String("addr", a.cfg.DevServer.Addr, "listen address")
	seed := fs.String("seed", a.cfg.DevServer.SeedFile, "JSON file with users to load")
	if err := fs.Parse(args); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid flags")
	}

	users, err := loadSeedUsers(*seed)
	if err != nil {
		return err
	}

	server, err := devserver.New(
		devserver.WithSigningKey([]byte(a.cfg.DevServer.SigningKey)),
		devserver.WithIssuer(a.cfg.DevServer.Issuer),
		devserver.WithTokenTTL(a.cfg.DevServer.TokenTTL),
		devserver.WithCodeTTL(a.cfg.DevServer.CodeTTL),
		devserver.WithLoggerProvider(a.provider),
	)
	if err != nil {
		return err
	}

	for _, u := range users {
		if err := server.AddUser(devserver.UserSpec{
			ID:        u.ID,
			Name:      u.Name,
			Email:     u.Email,
			Password:  u.Password,
			Role:      u.Role,
			RoleClaim: u.RoleClaim,
		}); err != nil {
			return err
		}
		a.logger.Info("dev user", "email", u.Email, "role", u.Role.String())
	}

	group, ctx := errgroup.WithContext(a.ctx)
	group.Go(func() error { return server.Listen(*addr) })
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func loadSeedUsers(path string) ([]seedUser, error) {
	if strings.TrimSpace(path) == "" {
		return demoUsers, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read seed file").
			WithMetadata(map[string]any{"path": path})
	}

	var users []seedUser
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse seed file").
			WithMetadata(map[string]any{"path": path})
	}
	return users, nil
}

func (a *app) printJSON(v any) {
	fmt.Fprintln(a.out, print.MaybePrettyJSON(v))
}

func (a *app) gateway() (*httpgateway.Client, error) {
	_, logger := auth.ResolveLogger("auth.httpgateway", a.provider, nil)
	return httpgateway.New(httpgateway.Config{
		BaseURL: a.cfg.API.BaseURL,
		Timeout: a.cfg.API.Timeout,
		Logger:  logger,
	})
}

func (a *app) redisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
}

func (a *app) activitySink() auth.ActivitySink {
	return activitymap.Sink(func(_ context.Context, record activitymap.Normalized) error {
		a.logger.Debug("activity",
			"verb", record.Verb,
			"actor", record.ActorID,
			"object_type", record.ObjectType,
			"object_id", record.ObjectID,
		)
		return nil
	})
}

// withSession opens the shared credential store, restores the session from
// it and hands a manager to fn.
func (a *app) withSession(fn func(manager *auth.SessionManager) error) error {
	if a.credentials == nil {
		db, err := repository.OpenSQLite(a.cfg.Store.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := repository.NewCredentialRepository(db,
			repository.WithSlot(a.cfg.Store.Slot),
			repository.WithLoggerProvider(a.provider),
		)
		if err := repo.EnsureSchema(a.ctx); err != nil {
			return err
		}
		a.credentials = repo
		defer func() { a.credentials = nil }()
	}

	manager := auth.NewSessionManager(a.credentials,
		auth.WithSessionLoggerProvider(a.provider),
		auth.WithSessionActivitySink(a.activitySink()),
	)
	return fn(manager)
}

// announce tells other processes about a local login or logout. Processes
// that only share the database notice through the credential watcher.
func (a *app) announce(manager *auth.SessionManager, kind auth.SignalKind) {
	if !a.cfg.Redis.Enabled() {
		return
	}
	bus, ok := auth.BusOf(manager.Store())
	if !ok {
		return
	}

	client := a.redisClient()
	defer client.Close()

	bridge := redisbus.New(client, bus,
		redisbus.WithChannel(a.cfg.Redis.Channel),
		redisbus.WithLoggerProvider(a.provider),
	)
	if err := bridge.Announce(a.ctx, kind); err != nil {
		a.logger.Warn("announce session change", "kind", string(kind), "error", err)
	}
}
