// Package bunstore keeps remember-me series in a SQL table through Bun.
// It works with any Bun dialect; tests run it on SQLite.
package bunstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	remember "github.com/goliatone/go-remember"
	"github.com/uptrace/bun"
)

var (
	_ remember.TokenStore         = (*Store)(nil)
	_ remember.TokenRotator       = (*Store)(nil)
	_ remember.ExpiredTokenPurger = (*Store)(nil)
)

type Store struct {
	db   *bun.DB
	repo repository.Repository[*PersistentLoginModel]
}

func NewStore(db *bun.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("bunstore: bun db is required", errors.CategoryBadInput)
	}
	repo := repository.NewRepository[*PersistentLoginModel](db, persistentLoginHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "bunstore: invalid persistent login repository wiring")
		}
	}
	return &Store{db: db, repo: repo}, nil
}

// CreateSchema creates the persistent_logins table and its username
// index when missing.
func (s *Store) CreateSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*PersistentLoginModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "bunstore: create persistent_logins table")
	}
	if _, err := s.db.NewCreateIndex().
		Model((*PersistentLoginModel)(nil)).
		Index("persistent_logins_username_idx").
		Column("username").
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "bunstore: create persistent_logins username index")
	}
	return nil
}

func (s *Store) CreateNewToken(ctx context.Context, token remember.PersistentToken) error {
	if strings.TrimSpace(token.Series) == "" || strings.TrimSpace(token.Username) == "" {
		return errors.New("bunstore: series and username are required", errors.CategoryBadInput)
	}
	if _, err := s.repo.Create(ctx, fromDomain(token)); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "bunstore: create persistent login")
	}
	return nil
}

func (s *Store) GetTokenForSeries(ctx context.Context, series string) (remember.PersistentToken, bool, error) {
	record := &PersistentLoginModel{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.series = ?", series).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return remember.PersistentToken{}, false, nil
		}
		return remember.PersistentToken{}, false, errors.Wrap(err, errors.CategoryInternal, "bunstore: load persistent login")
	}
	return record.toDomain(), true, nil
}

// ListUserTokens returns the series of username, most recently used first
func (s *Store) ListUserTokens(ctx context.Context, username string) ([]remember.PersistentToken, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("username", "=", username),
		repository.OrderBy("last_used DESC"),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "bunstore: list persistent logins")
	}
	out := make([]remember.PersistentToken, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *Store) UpdateToken(ctx context.Context, series, tokenValue string, lastUsed time.Time) error {
	_, err := s.db.NewUpdate().
		Model((*PersistentLoginModel)(nil)).
		Set("token = ?", tokenValue).
		Set("last_used = ?", lastUsed.UTC()).
		Where("series = ?", series).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "bunstore: update persistent login")
	}
	return nil
}

// RotateToken replaces the token only while it still equals presented
func (s *Store) RotateToken(ctx context.Context, series, presented, next string, lastUsed time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*PersistentLoginModel)(nil)).
		Set("token = ?", next).
		Set("last_used = ?", lastUsed.UTC()).
		Where("series = ?", series).
		Where("token = ?", presented).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "bunstore: rotate persistent login")
	}
	affected, err := affectedRows(res, "rotate persistent login")
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	_, ok, err := s.GetTokenForSeries(ctx, series)
	if err != nil {
		return err
	}
	if !ok {
		return remember.ErrSeriesNotFound
	}
	return remember.ErrTokenMismatch
}

func (s *Store) RemoveSeries(ctx context.Context, series string) error {
	_, err := s.db.NewDelete().
		Model((*PersistentLoginModel)(nil)).
		Where("series = ?", series).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "bunstore: remove persistent login")
	}
	return nil
}

func (s *Store) RemoveUserTokens(ctx context.Context, username string) error {
	_, err := s.db.NewDelete().
		Model((*PersistentLoginModel)(nil)).
		Where("username = ?", username).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "bunstore: remove user persistent logins")
	}
	return nil
}

func (s *Store) RemoveTokensUsedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*PersistentLoginModel)(nil)).
		Where("last_used < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "bunstore: purge persistent logins")
	}
	return affectedRows(res, "purge persistent logins")
}

// affectedRows fails when the driver cannot report the count, so callers
// never read an unknown outcome as zero rows.
func affectedRows(res sql.Result, action string) (int64, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "bunstore: "+action+": rows affected")
	}
	return affected, nil
}
