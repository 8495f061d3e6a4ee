package bunstore

import (
	"database/sql"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	remember "github.com/goliatone/go-remember"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResult struct {
	affected int64
	err      error
}

func (r stubResult) LastInsertId() (int64, error) { return 0, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.affected, r.err }

var _ sql.Result = stubResult{}

func TestAffectedRows(t *testing.T) {
	n, err := affectedRows(stubResult{affected: 3}, "purge persistent logins")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = affectedRows(stubResult{}, "rotate persistent login")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAffectedRowsUnsupported(t *testing.T) {
	n, err := affectedRows(stubResult{err: errors.New("not supported")}, "rotate persistent login")
	require.Error(t, err)
	assert.Zero(t, n)

	assert.True(t, goerrors.IsCategory(err, goerrors.CategoryInternal))
	assert.Contains(t, err.Error(), "rotate persistent login")
	assert.False(t, remember.IsTokenMismatch(err))
	assert.False(t, remember.IsSeriesNotFound(err))
}
