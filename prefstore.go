package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Preference slot keys. The credential only ever lives in the legacy slot on
// installations that predate the secure store.
const (
	PrefKeyUserData  = "user_data"
	PrefKeyThemeMode = "theme_mode"
	PrefKeyLanguage  = "language"

	legacyCredentialKey = "auth_token"
)

// PreferenceRecord is a single key/value preference row.
type PreferenceRecord struct {
	bun.BaseModel `bun:"table:preferences,alias:pref"`
	Key           string    `bun:"key,pk" json:"key"`
	Value         string    `bun:"value,notnull" json:"value"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// PreferenceStore is the general (non-encrypted) slot backing, shared with
// out-of-scope screens for theme and language preferences.
type PreferenceStore struct {
	db     *bun.DB
	logger Logger
}

// PreferenceStoreOption customizes store construction.
type PreferenceStoreOption func(*PreferenceStore)

// WithPreferenceLogger overrides the store logger.
func WithPreferenceLogger(logger Logger) PreferenceStoreOption {
	return func(p *PreferenceStore) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPreferenceStore opens (and if needed creates) the preference database.
// Use ":memory:" as dsn for throwaway stores.
func NewPreferenceStore(ctx context.Context, dsn string, opts ...PreferenceStoreOption) (*PreferenceStore, error) {
	if dsn == "" {
		return nil, goerrors.New("preference store dsn is required", goerrors.CategoryBadInput)
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "open preference database")
	}

	store := &PreferenceStore{
		db:     bun.NewDB(sqldb, sqlitedialect.New()),
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if _, err := store.db.NewCreateTable().
		Model((*PreferenceRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		_ = store.db.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "create preferences table")
	}

	return store, nil
}

// Close releases the underlying database.
func (p *PreferenceStore) Close() error {
	return p.db.Close()
}

// Get reads a slot. Absence is reported through the boolean, never an error.
func (p *PreferenceStore) Get(ctx context.Context, key string) (string, bool, error) {
	record := new(PreferenceRecord)
	err := p.db.NewSelect().
		Model(record).
		Where("pref.key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, goerrors.Wrap(err, goerrors.CategoryInternal, "read preference slot")
	}
	return record.Value, true, nil
}

// Set writes a slot, replacing any previous value.
func (p *PreferenceStore) Set(ctx context.Context, key, value string) error {
	record := &PreferenceRecord{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}

	_, err := p.db.NewInsert().
		Model(record).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "write preference slot")
	}

	return nil
}

// Delete removes a slot; deleting an absent slot is a no-op.
func (p *PreferenceStore) Delete(ctx context.Context, key string) error {
	_, err := p.db.NewDelete().
		Model((*PreferenceRecord)(nil)).
		Where("pref.key = ?", key).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "delete preference slot")
	}
	return nil
}

// UserRecord reads and strictly decodes the persisted user record.
func (p *PreferenceStore) UserRecord(ctx context.Context, region string) (*User, bool, error) {
	raw, ok, err := p.Get(ctx, PrefKeyUserData)
	if err != nil || !ok {
		return nil, false, err
	}

	user, err := DecodeUser([]byte(raw), region)
	if err != nil {
		return nil, false, err
	}

	return user, true, nil
}

// SetUserRecord persists the user record in canonical form.
func (p *PreferenceStore) SetUserRecord(ctx context.Context, user *User) error {
	data, err := EncodeUser(user)
	if err != nil {
		return err
	}
	return p.Set(ctx, PrefKeyUserData, string(data))
}

// ThemeMode returns the persisted theme preference, empty when unset.
func (p *PreferenceStore) ThemeMode(ctx context.Context) (string, error) {
	value, _, err := p.Get(ctx, PrefKeyThemeMode)
	return value, err
}

// SetThemeMode persists the theme preference.
func (p *PreferenceStore) SetThemeMode(ctx context.Context, mode string) error {
	return p.Set(ctx, PrefKeyThemeMode, mode)
}

// Language returns the persisted language preference, empty when unset.
func (p *PreferenceStore) Language(ctx context.Context) (string, error) {
	value, _, err := p.Get(ctx, PrefKeyLanguage)
	return value, err
}

// SetLanguage persists the language preference.
func (p *PreferenceStore) SetLanguage(ctx context.Context, language string) error {
	return p.Set(ctx, PrefKeyLanguage, language)
}
