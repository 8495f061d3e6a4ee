// Package pgstore keeps remember-me series in Postgres through a pgx pool
package pgstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	remember "github.com/goliatone/go-remember"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const DefaultTable = "persistent_logins"

var (
	_ remember.TokenStore         = (*Store)(nil)
	_ remember.TokenRotator       = (*Store)(nil)
	_ remember.ExpiredTokenPurger = (*Store)(nil)
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type Option func(*Store)

// WithTable sets the table name, optionally schema qualified
func WithTable(table string) Option {
	return func(s *Store) {
		s.table = table
	}
}

type Store struct {
	pg    *pgxpool.Pool
	table string
}

func NewStore(pool *pgxpool.Pool, opts ...Option) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pgstore: pgx pool is required", errors.CategoryBadInput)
	}
	s := &Store{pg: pool, table: DefaultTable}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if !tableNamePattern.MatchString(s.table) {
		return nil, errors.New("pgstore: invalid table name", errors.CategoryBadInput).
			WithMetadata(map[string]any{"table": s.table})
	}
	return s, nil
}

// CreateSchema creates the table and its username index when missing
func (s *Store) CreateSchema(ctx context.Context) error {
	_, err := s.pg.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	series    TEXT PRIMARY KEY,
	username  TEXT NOT NULL,
	token     TEXT NOT NULL,
	last_used TIMESTAMPTZ NOT NULL
)`, s.table))
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "pgstore: create table")
	}
	_, err = s.pg.Exec(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_username_idx ON %[2]s (username)`, indexPrefix(s.table), s.table))
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "pgstore: create username index")
	}
	return nil
}

func (s *Store) CreateNewToken(ctx context.Context, token remember.PersistentToken) error {
	_, err := s.pg.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (series, username, token, last_used) VALUES ($1, $2, $3, $4)`, s.table),
		token.Series, token.Username, token.Token, token.LastUsed.UTC())
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "pgstore: insert persistent login")
	}
	return nil
}

func (s *Store) GetTokenForSeries(ctx context.Context, series string) (remember.PersistentToken, bool, error) {
	var token remember.PersistentToken
	err := s.pg.QueryRow(ctx,
		fmt.Sprintf(`SELECT series, username, token, last_used FROM %s WHERE series=$1`, s.table),
		series).Scan(&token.Series, &token.Username, &token.Token, &token.LastUsed)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return remember.PersistentToken{}, false, nil
	}
	if err != nil {
		return remember.PersistentToken{}, false, errors.Wrap(err, errors.CategoryInternal, "pgstore: load persistent login")
	}
	return token, true, nil
}

func (s *Store) UpdateToken(ctx context.Context, series, tokenValue string, lastUsed time.Time) error {
	_, err := s.pg.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET token=$2, last_used=$3 WHERE series=$1`, s.table),
		series, tokenValue, lastUsed.UTC())
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "pgstore: update persistent login")
	}
	return nil
}

// RotateToken replaces the token only while it still equals presented
func (s *Store) RotateToken(ctx context.Context, series, presented, next string, lastUsed time.Time) error {
	var rotated string
	err := s.pg.QueryRow(ctx,
		fmt.Sprintf(`UPDATE %s SET token=$3, last_used=$4 WHERE series=$1 AND token=$2 RETURNING series`, s.table),
		series, presented, next, lastUsed.UTC()).Scan(&rotated)
	if err == nil {
		return nil
	}
	if !stderrors.Is(err, pgx.ErrNoRows) {
		return errors.Wrap(err, errors.CategoryInternal, "pgstore: rotate persistent login")
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
	_, err := s.pg.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE series=$1`, s.table), series)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "pgstore: remove persistent login")
	}
	return nil
}

func (s *Store) RemoveUserTokens(ctx context.Context, username string) error {
	_, err := s.pg.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE username=$1`, s.table), username)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "pgstore: remove user persistent logins")
	}
	return nil
}

func (s *Store) RemoveTokensUsedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pg.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE last_used < $1`, s.table), cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "pgstore: purge persistent logins")
	}
	return tag.RowsAffected(), nil
}

func indexPrefix(table string) string {
	return strings.ReplaceAll(table, ".", "_")
}
