package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/devserver"
	"github.com/goliatone/go-auth-client/httpgateway"
	"github.com/goliatone/go-auth-client/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type nopLogger struct{}

func (nopLogger) Trace(string, ...any)                       {}
func (nopLogger) Debug(string, ...any)                       {}
func (nopLogger) Info(string, ...any)                        {}
func (nopLogger) Warn(string, ...any)                        {}
func (nopLogger) Error(string, ...any)                       {}
func (nopLogger) Fatal(string, ...any)                       {}
func (nopLogger) WithContext(context.Context) auth.Logger { return nopLogger{} }

type fiberDoer struct {
	server *devserver.Server
}

func (d fiberDoer) Do(req *http.Request) (*http.Response, error) {
	return d.server.App().Test(req, -1)
}

func newTestApp(t *testing.T, input string) (*app, *bytes.Buffer) {
	t.Helper()

	out := &bytes.Buffer{}
	a := &app{
		ctx:         context.Background(),
		cfg:         config.Config{},
		logger:      nopLogger{},
		in:          bufio.NewReader(strings.NewReader(input)),
		out:         out,
		credentials: auth.NewMemoryCredentialStore(),
	}
	a.readSecret = func() (string, error) { return readLine(a.in) }
	return a, out
}

func mintToken(t *testing.T, identity auth.Identity, roleClaim string, ttl time.Duration) string {
	t.Helper()
	token, _, err := auth.MintDevToken(identity, auth.DevTokenOptions{
		SigningKey: []byte("test"),
		TTL:        ttl,
		RoleClaim:  roleClaim,
	})
	require.NoError(t, err)
	return token
}

func TestDecodeToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	token, _, err := auth.MintDevToken(auth.Identity{ID: "A-1", Name: "Ada"}, auth.DevTokenOptions{
		SigningKey: []byte("test"),
		IssuedAt:   now,
		RoleClaim:  "ADMIN",
	})
	require.NoError(t, err)

	view, err := decodeToken(token, func() time.Time { return now })
	require.NoError(t, err)
	assert.Equal(t, "A-1", view.Identity.ID)
	assert.Equal(t, auth.RoleAdmin, view.Identity.Role)
	assert.False(t, view.Expired)
	require.NotNil(t, view.ExpiresAt)
	assert.Equal(t, now.Add(time.Hour).Unix(), view.ExpiresAt.Unix())

	view, err = decodeToken(token, func() time.Time { return now.Add(2 * time.Hour) })
	require.NoError(t, err)
	assert.True(t, view.Expired)

	_, err = decodeToken("garbage", time.Now)
	assert.True(t, auth.IsUnparsable(err))
}

func TestWhoamiRestoresStoredSession(t *testing.T) {
	a, out := newTestApp(t, "")
	token := mintToken(t, auth.Identity{ID: "S-7", Name: "Sam"}, "Student", time.Hour)
	require.NoError(t, a.credentials.Save(context.Background(), token))

	require.NoError(t, runWhoami(a, nil))

	var view sessionView
	require.NoError(t, json.Unmarshal(out.Bytes(), &view), out.String())
	assert.True(t, view.Authenticated)
	require.NotNil(t, view.Identity)
	assert.Equal(t, "S-7", view.Identity.ID)
	assert.Equal(t, "S-7", view.Identity.StudentNumber)
	assert.NotNil(t, view.ExpiresAt)
}

func TestWhoamiWithExpiredCredential(t *testing.T) {
	a, out := newTestApp(t, "")
	token, _, err := auth.MintDevToken(auth.Identity{ID: "S-7"}, auth.DevTokenOptions{
		SigningKey: []byte("test"),
		IssuedAt:   time.Now().Add(-2 * time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, a.credentials.Save(context.Background(), token))

	require.NoError(t, runWhoami(a, nil))

	var view sessionView
	require.NoError(t, json.Unmarshal(out.Bytes(), &view), out.String())
	assert.False(t, view.Authenticated)
	assert.Nil(t, view.Identity)
}

func TestLogoutClearsStoredCredential(t *testing.T) {
	a, _ := newTestApp(t, "")
	token := mintToken(t, auth.Identity{ID: "STF-1"}, "Staff", time.Hour)
	require.NoError(t, a.credentials.Save(context.Background(), token))

	require.NoError(t, runLogout(a, nil))

	_, err := a.credentials.Load(context.Background())
	assert.True(t, auth.IsNoCredential(err))
}

func setupResetBackend(t *testing.T) *httpgateway.Client {
	t.Helper()

	server, err := devserver.New(
		devserver.WithSigningKey([]byte("dev")),
		devserver.WithBcryptCost(bcrypt.MinCost),
		devserver.WithLogger(nopLogger{}),
		devserver.WithCodeGenerator(func() (int, error) { return 123456, nil }),
		devserver.WithCodeNotifier(devserver.CodeNotifierFunc(func(context.Context, string, string) error { return nil })),
	)
	require.NoError(t, err)
	require.NoError(t, server.AddUser(devserver.UserSpec{
		ID:       "S-1",
		Email:    "sam@example.com",
		Password: "initial-password",
	}))

	client, err := httpgateway.New(httpgateway.Config{
		BaseURL:    "http://backend.test",
		HTTPClient: fiberDoer{server: server},
		Logger:     nopLogger{},
	})
	require.NoError(t, err)
	return client
}

func TestDriveResetFlow(t *testing.T) {
	client := setupResetBackend(t)

	input := strings.Join([]string{
		"nobody@example.com",
		"sam@example.com",
		"12ab",
		"999999",
		"brand-new-password",
		"brand-new-password",
		"",
		"123456",
		"short",
		"short",
		"brand-new-password",
		"brand-new-password",
	}, "\n") + "\n"

	a, out := newTestApp(t, input)
	flow := auth.NewResetFlow(client,
		auth.WithResetLogger(nopLogger{}),
		auth.WithResetCompletedHook(func(_ context.Context, email string) {
			a.out.Write([]byte("done:" + email + "\n"))
		}),
	)

	require.NoError(t, driveResetFlow(a, flow))
	assert.Equal(t, auth.ResetStageIdle, flow.Stage())

	output := out.String()
	assert.Contains(t, output, "account not found")
	assert.Contains(t, output, "A verification code was sent to sam@example.com.")
	assert.Contains(t, output, "invalid verification code")
	assert.Contains(t, output, "done:sam@example.com")

	_, err := client.Login(context.Background(), "sam@example.com", "brand-new-password")
	assert.NoError(t, err)
}

func TestDriveResetFlowCancel(t *testing.T) {
	client := setupResetBackend(t)

	a, out := newTestApp(t, "sam@example.com\n\n")
	flow := auth.NewResetFlow(client, auth.WithResetLogger(nopLogger{}))

	require.NoError(t, driveResetFlow(a, flow))
	assert.Equal(t, auth.ResetStageIdle, flow.Stage())
	assert.Contains(t, out.String(), "Password reset cancelled.")
}

func TestLoadSeedUsers(t *testing.T) {
	users, err := loadSeedUsers("")
	require.NoError(t, err)
	assert.Len(t, users, len(demoUsers))

	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"X-1","email":"x@example.com","password":"pw","role":"staff","roleClaim":"LibraryStaff"}]`), 0o600))

	users, err = loadSeedUsers(path)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, auth.RoleStaff, users[0].Role)
	assert.Equal(t, "LibraryStaff", users[0].RoleClaim)

	_, err = loadSeedUsers(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, isUsageError(err))
}

func TestUnknownCommand(t *testing.T) {
	assert.Equal(t, 2, run([]string{"nope"}))
	assert.Equal(t, 2, run(nil))
}
