// Package storetest holds the behaviour every remember.TokenStore
// implementation in this module is expected to share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	remember "github.com/goliatone/go-remember"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Store is the capability set exercised by the contract
type Store interface {
	remember.TokenStore
	remember.TokenRotator
}

// Factory returns an empty store for a single subtest
type Factory func(t *testing.T) Store

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func token(username, series, value string, lastUsed time.Time) remember.PersistentToken {
	return remember.PersistentToken{Username: username, Series: series, Token: value, LastUsed: lastUsed}
}

// Run exercises newStore against the shared contract. Purge checks run
// only when the store implements remember.ExpiredTokenPurger.
func Run(t *testing.T, newStore Factory) {
	t.Run("create and get", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.CreateNewToken(ctx, token("alice", "series-1", "token-1", base)))

		got, found, err := s.GetTokenForSeries(ctx, "series-1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, "series-1", got.Series)
		assert.Equal(t, "token-1", got.Token)
		assert.WithinDuration(t, base, got.LastUsed, time.Millisecond)

		_, found, err = s.GetTokenForSeries(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("update token", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.CreateNewToken(ctx, token("alice", "series-1", "token-1", base)))

		later := base.Add(time.Hour)
		require.NoError(t, s.UpdateToken(ctx, "series-1", "token-2", later))

		got, found, err := s.GetTokenForSeries(ctx, "series-1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "token-2", got.Token)
		assert.Equal(t, "alice", got.Username)
		assert.WithinDuration(t, later, got.LastUsed, time.Millisecond)
	})

	t.Run("rotate token", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.CreateNewToken(ctx, token("alice", "series-1", "token-1", base)))

		later := base.Add(time.Minute)
		require.NoError(t, s.RotateToken(ctx, "series-1", "token-1", "token-2", later))

		err := s.RotateToken(ctx, "series-1", "token-1", "token-3", later)
		assert.True(t, remember.IsTokenMismatch(err), "stale token must not rotate: %v", err)

		err = s.RotateToken(ctx, "missing", "token-1", "token-3", later)
		assert.True(t, remember.IsSeriesNotFound(err), "unknown series: %v", err)

		got, _, err := s.GetTokenForSeries(ctx, "series-1")
		require.NoError(t, err)
		assert.Equal(t, "token-2", got.Token)
		assert.WithinDuration(t, later, got.LastUsed, time.Millisecond)
	})

	t.Run("concurrent rotation has one winner", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.CreateNewToken(ctx, token("alice", "series-1", "token-1", base)))

		const contenders = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := range contenders {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.RotateToken(ctx, "series-1", "token-1", fmt.Sprintf("next-%d", i), base.Add(time.Second))
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("remove series", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.CreateNewToken(ctx, token("alice", "series-1", "token-1", base)))
		require.NoError(t, s.CreateNewToken(ctx, token("alice", "series-2", "token-2", base)))

		require.NoError(t, s.RemoveSeries(ctx, "series-1"))
		require.NoError(t, s.RemoveSeries(ctx, "missing"))

		_, found, err := s.GetTokenForSeries(ctx, "series-1")
		require.NoError(t, err)
		assert.False(t, found)
		_, found, err = s.GetTokenForSeries(ctx, "series-2")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("remove user tokens", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.CreateNewToken(ctx, token("alice", "series-1", "token-1", base)))
		require.NoError(t, s.CreateNewToken(ctx, token("alice", "series-2", "token-2", base)))
		require.NoError(t, s.CreateNewToken(ctx, token("bob", "series-3", "token-3", base)))

		require.NoError(t, s.RemoveUserTokens(ctx, "alice"))
		require.NoError(t, s.RemoveUserTokens(ctx, "nobody"))

		for _, series := range []string{"series-1", "series-2"} {
			_, found, err := s.GetTokenForSeries(ctx, series)
			require.NoError(t, err)
			assert.False(t, found, series)
		}
		_, found, err := s.GetTokenForSeries(ctx, "series-3")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("duplicate series rejected", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.CreateNewToken(ctx, token("alice", "series-1", "token-1", base)))
		assert.Error(t, s.CreateNewToken(ctx, token("bob", "series-1", "token-2", base)))
	})

	t.Run("purge expired tokens", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		purger, ok := s.(remember.ExpiredTokenPurger)
		if !ok {
			t.Skip("store expires tokens on its own")
		}
		require.NoError(t, s.CreateNewToken(ctx, token("alice", "old", "token-1", base.Add(-2*time.Hour))))
		require.NoError(t, s.CreateNewToken(ctx, token("alice", "new", "token-2", base)))

		removed, err := purger.RemoveTokensUsedBefore(ctx, base.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		_, found, err := s.GetTokenForSeries(ctx, "old")
		require.NoError(t, err)
		assert.False(t, found)
		_, found, err = s.GetTokenForSeries(ctx, "new")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("persistent mechanism round trip", func(t *testing.T) {
		s := newStore(t)
		users := remember.NewStaticUsers(remember.User{Name: "alice", PasswordHash: "hash"})
		m := remember.NewPersistentMechanism("contract", users, s)

		cookie := issue(t, m)
		auth, rotated := autoLogin(t, m, cookie)
		require.NotNil(t, auth)
		assert.Equal(t, "alice", auth.Name)
		require.NotNil(t, rotated)

		replayed, _ := autoLogin(t, m, cookie)
		assert.Nil(t, replayed, "replayed cookie must be rejected")

		again, _ := autoLogin(t, m, rotated)
		assert.Nil(t, again, "theft invalidates the series")
	})
}
