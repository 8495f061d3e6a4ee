// Package memory provides an in process TokenStore for tests and single
// instance deployments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	remember "github.com/goliatone/go-remember"
)

var (
	_ remember.TokenStore         = (*Store)(nil)
	_ remember.TokenRotator       = (*Store)(nil)
	_ remember.ExpiredTokenPurger = (*Store)(nil)
)

type Store struct {
	mu     sync.Mutex
	series map[string]remember.PersistentToken
}

func NewStore() *Store {
	return &Store{series: map[string]remember.PersistentToken{}}
}

func (s *Store) CreateNewToken(_ context.Context, token remember.PersistentToken) error {
	if strings.TrimSpace(token.Series) == "" || strings.TrimSpace(token.Username) == "" {
		return errors.New("memory: series and username are required", errors.CategoryBadInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.series[token.Series]; exists {
		return errors.New("memory: series already exists", errors.CategoryConflict).
			WithMetadata(map[string]any{"series": token.Series})
	}
	s.series[token.Series] = token
	return nil
}

func (s *Store) GetTokenForSeries(_ context.Context, series string) (remember.PersistentToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.series[series]
	return token, ok, nil
}

func (s *Store) UpdateToken(_ context.Context, series, tokenValue string, lastUsed time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.series[series]
	if !ok {
		return nil
	}
	token.Token = tokenValue
	token.LastUsed = lastUsed
	s.series[series] = token
	return nil
}

func (s *Store) RotateToken(_ context.Context, series, presented, next string, lastUsed time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.series[series]
	if !ok {
		return remember.ErrSeriesNotFound
	}
	if token.Token != presented {
		return remember.ErrTokenMismatch
	}
	token.Token = next
	token.LastUsed = lastUsed
	s.series[series] = token
	return nil
}

func (s *Store) RemoveSeries(_ context.Context, series string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.series, series)
	return nil
}

func (s *Store) RemoveUserTokens(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for series, token := range s.series {
		if token.Username == username {
			delete(s.series, series)
		}
	}
	return nil
}

func (s *Store) RemoveTokensUsedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for series, token := range s.series {
		if token.LastUsed.Before(cutoff) {
			delete(s.series, series)
			removed++
		}
	}
	return removed, nil
}

// UserTokens returns the series of username ordered by series
func (s *Store) UserTokens(username string) []remember.PersistentToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []remember.PersistentToken
	for _, token := range s.series {
		if token.Username == username {
			out = append(out, token)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Series < out[j].Series })
	return out
}

// Len returns the number of stored series
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.series)
}
