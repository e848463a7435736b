package auth_test

import (
	"context"
	"sync"

	auth "github.com/goliatone/go-auth-client"
	"github.com/stretchr/testify/mock"
)

// MockResetGateway implements auth.ResetGateway
type MockResetGateway struct {
	mock.Mock
}

func (m *MockResetGateway) RequestResetCode(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockResetGateway) ConfirmReset(ctx context.Context, email string, code int, newPassword string) error {
	args := m.Called(ctx, email, code, newPassword)
	return args.Error(0)
}

// MockCredentialStore implements auth.CredentialStore
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) Load(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockCredentialStore) Save(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockCredentialStore) Delete(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockActivitySink implements auth.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event auth.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type signalRecorder struct {
	mu    sync.Mutex
	kinds []auth.SignalKind
}

func (r *signalRecorder) handle(signal auth.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, signal.Kind)
}

func (r *signalRecorder) received() []auth.SignalKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]auth.SignalKind(nil), r.kinds...)
}

type testLogger struct{}

func (testLogger) Trace(string, ...any) {}
func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}
func (testLogger) Fatal(string, ...any) {}
func (testLogger) WithContext(context.Context) auth.Logger {
	return testLogger{}
}
