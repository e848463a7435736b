package auth

import (
	"context"
	"fmt"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger used across the package.
type Logger = glog.Logger

// LoggerProvider hands out named loggers.
type LoggerProvider = glog.LoggerProvider

// CredentialStore is the external collaborator that persists the raw token.
// The core never stores tokens itself.
type CredentialStore interface {
	// Load returns ErrNoCredential when nothing is stored.
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

// VersionedCredentialStore exposes a change counter so other processes
// sharing the same storage can detect external writes.
type VersionedCredentialStore interface {
	CredentialStore
	Version(ctx context.Context) (int64, error)
}

// ResetGateway performs the backend calls of the password reset flow.
type ResetGateway interface {
	RequestResetCode(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, email string, code int, newPassword string) error
}

// ResolveLogger picks a named logger from provider, falling back to logger
// and finally to the default printing logger.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if named := provider.GetLogger(name); named != nil {
			return provider, named
		}
	}
	if logger == nil {
		logger = defaultLogger()
	}
	return staticProvider{logger: logger}, logger
}

type staticProvider struct {
	logger Logger
}

func (p staticProvider) GetLogger(string) Logger {
	return p.logger
}

func defaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Trace(msg string, args ...any) { printLine("TRC", msg, args...) }
func (d defLogger) Debug(msg string, args ...any) { printLine("DBG", msg, args...) }
func (d defLogger) Info(msg string, args ...any)  { printLine("INF", msg, args...) }
func (d defLogger) Warn(msg string, args ...any)  { printLine("WRN", msg, args...) }
func (d defLogger) Error(msg string, args ...any) { printLine("ERR", msg, args...) }
func (d defLogger) Fatal(msg string, args ...any) { printLine("FTL", msg, args...) }

func (d defLogger) WithContext(context.Context) Logger {
	return d
}

func printLine(level, msg string, args ...any) {
	line := fmt.Sprintf("[%s] AUTH %s", level, msg)
	for i := 0; i+1 < len(args); i += 2 {
		line += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	if len(args)%2 == 1 {
		line += fmt.Sprintf(" %v", args[len(args)-1])
	}
	fmt.Println(line)
}
