package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	auth "github.com/goliatone/go-auth-client"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// DefaultSlot is the row used when no slot is configured
const DefaultSlot = "default"

// CredentialModel is the Bun model for stored credentials.
type CredentialModel struct {
	bun.BaseModel `bun:"table:credentials"`

	Slot      string    `bun:"slot,pk"`
	Token     string    `bun:"token,notnull"`
	Version   int64     `bun:"version,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// CredentialRepository implements auth.VersionedCredentialStore using Bun.
// Several processes pointing at the same database share one slot, and the
// version column lets an auth.CredentialWatcher notice writes made elsewhere.
type CredentialRepository struct {
	db     *bun.DB
	slot   string
	logger auth.Logger
	now    func() time.Time
}

var _ auth.VersionedCredentialStore = (*CredentialRepository)(nil)

// Option customizes the repository
type Option func(*CredentialRepository)

// WithSlot stores the credential under slot, so one database can hold
// credentials for several profiles.
func WithSlot(slot string) Option {
	return func(r *CredentialRepository) {
		if slot != "" {
			r.slot = slot
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger auth.Logger) Option {
	return func(r *CredentialRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithLoggerProvider resolves the "auth.repository" logger.
func WithLoggerProvider(provider auth.LoggerProvider) Option {
	return func(r *CredentialRepository) {
		_, r.logger = auth.ResolveLogger("auth.repository", provider, r.logger)
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(r *CredentialRepository) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewCredentialRepository creates a new repository.
func NewCredentialRepository(db *bun.DB, opts ...Option) *CredentialRepository {
	r := &CredentialRepository{
		db:   db,
		slot: DefaultSlot,
		now:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		_, r.logger = auth.ResolveLogger("auth.repository", nil, nil)
	}
	return r
}

// OpenSQLite opens a Bun handle on a sqlite database through sqliteshim.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open credential database")
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// EnsureSchema creates the credentials table if missing.
func (r *CredentialRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*CredentialModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create credentials table")
	}
	return nil
}

// Load implements auth.CredentialStore.
func (r *CredentialRepository) Load(ctx context.Context) (string, error) {
	var model CredentialModel
	err := r.db.NewSelect().
		Model(&model).
		Where("slot = ?", r.slot).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", auth.ErrNoCredential
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load credential")
	}
	if model.Token == "" {
		return "", auth.ErrNoCredential
	}
	return model.Token, nil
}

// Save implements auth.CredentialStore.
func (r *CredentialRepository) Save(ctx context.Context, token string) error {
	return r.write(ctx, token, "failed to save credential")
}

// Delete implements auth.CredentialStore. The row is kept with an empty
// token so the version keeps increasing.
func (r *CredentialRepository) Delete(ctx context.Context) error {
	return r.write(ctx, "", "failed to delete credential")
}

// Version implements auth.VersionedCredentialStore.
func (r *CredentialRepository) Version(ctx context.Context) (int64, error) {
	version, err := versionOf(ctx, r.db, r.slot)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read credential version")
	}
	return version, nil
}

func (r *CredentialRepository) write(ctx context.Context, token, message string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := versionOf(ctx, tx, r.slot)
		if err != nil {
			return err
		}

		model := &CredentialModel{
			Slot:      r.slot,
			Token:     token,
			Version:   current + 1,
			UpdatedAt: r.now().UTC(),
		}

		_, err = tx.NewInsert().
			Model(model).
			On("CONFLICT (slot) DO UPDATE").
			Set("token = EXCLUDED.token").
			Set("version = EXCLUDED.version").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
	if err != nil {
		r.logger.Error("credential write failed", "slot", r.slot, "error", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, message)
	}
	return nil
}

func versionOf(ctx context.Context, db bun.IDB, slot string) (int64, error) {
	var version int64
	err := db.NewSelect().
		Model((*CredentialModel)(nil)).
		Column("version").
		Where("slot = ?", slot).
		Scan(ctx, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return version, nil
}
