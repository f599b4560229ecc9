package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool {
	return f(v)
}

// anyTime accepts any value, used for timestamps we can't predict exactly.
var anyTime = ArgumentMatcherFunc(func(v interface{}) bool {
	return true
})

const sqlMarkErrored = `UPDATE targets SET status = $2, last_error = $3, updated_at = $4 WHERE id = $1;`

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	store, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return store, mockPool
}

// -- Test Cases --

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestHasCompleted(t *testing.T) {
	ctx := context.Background()

	t.Run("applied target reports completed", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT status FROM targets WHERE id = $1;`)).
			WithArgs("t-1").
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("applied"))

		done, err := store.HasCompleted(ctx, "t-1")
		require.NoError(t, err)
		assert.True(t, done)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("non-terminal statuses report not completed", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		for _, status := range []string{"found", "skipped", "error"} {
			mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT status FROM targets WHERE id = $1;`)).
				WithArgs("t-1").
				WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(status))

			done, err := store.HasCompleted(ctx, "t-1")
			require.NoError(t, err)
			assert.False(t, done, "status=%s", status)
		}
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("unknown target is simply not completed", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT status FROM targets WHERE id = $1;`)).
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)

		done, err := store.HasCompleted(ctx, "ghost")
		require.NoError(t, err)
		assert.False(t, done)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("query failures propagate", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT status FROM targets WHERE id = $1;`)).
			WithArgs("t-1").
			WillReturnError(errors.New("connection reset"))

		_, err := store.HasCompleted(ctx, "t-1")
		assert.Error(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestMarkApplied(t *testing.T) {
	ctx := context.Background()

	t.Run("updates exactly one row", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		mockPool.ExpectExec(flexibleSQLMatcher(
			`UPDATE targets SET status = $2, updated_at = $3, skip_reason = NULL, last_error = NULL WHERE id = $1;`)).
			WithArgs("t-1", "applied", anyTime).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, store.MarkApplied(ctx, "t-1"))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("missing target is an error", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		mockPool.ExpectExec(flexibleSQLMatcher(
			`UPDATE targets SET status = $2, updated_at = $3, skip_reason = NULL, last_error = NULL WHERE id = $1;`)).
			WithArgs("ghost", "applied", anyTime).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := store.MarkApplied(ctx, "ghost")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no target with id")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestMarkSkipped(t *testing.T) {
	store, mockPool := newMockStore(t)

	mockPool.ExpectExec(flexibleSQLMatcher(
		`UPDATE targets SET status = $2, skip_reason = $3, updated_at = $4 WHERE id = $1;`)).
		WithArgs("t-1", "skipped", "entry point unavailable", anyTime).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkSkipped(context.Background(), "t-1", "entry point unavailable"))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestMarkError(t *testing.T) {
	// The bare message lands inside a serialized context object.
	messagePayload := ArgumentMatcherFunc(func(v interface{}) bool {
		data, ok := v.([]byte)
		return ok && strings.Contains(string(data), `"message":"container missing"`)
	})

	store, mockPool := newMockStore(t)

	mockPool.ExpectExec(flexibleSQLMatcher(sqlMarkErrored)).
		WithArgs("t-1", "error", messagePayload, anyTime).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkError(context.Background(), "t-1", "container missing"))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestMarkErrorContext(t *testing.T) {
	ec := schemas.ErrorContext{
		Category:     schemas.CategoryTimeout,
		Severity:     schemas.SeverityHigh,
		TargetID:     "t-1",
		RetryAttempt: 3,
		Message:      "workflow container did not appear",
	}

	contextPayload := ArgumentMatcherFunc(func(v interface{}) bool {
		data, ok := v.([]byte)
		if !ok {
			return false
		}
		var decoded schemas.ErrorContext
		if err := json.Unmarshal(data, &decoded); err != nil {
			return false
		}
		return decoded.Category == schemas.CategoryTimeout &&
			decoded.Severity == schemas.SeverityHigh &&
			decoded.RetryAttempt == 3 &&
			!decoded.OccurredAt.IsZero()
	})

	store, mockPool := newMockStore(t)

	mockPool.ExpectExec(flexibleSQLMatcher(sqlMarkErrored)).
		WithArgs("t-1", "error", contextPayload, anyTime).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkErrorContext(context.Background(), "t-1", ec))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestListPending(t *testing.T) {
	ctx := context.Background()
	sqlListPending := `
        SELECT id, title, company, location, url, status
        FROM targets
        WHERE status = $1
        ORDER BY created_at ASC
        LIMIT $2;
    `

	t.Run("returns pending targets in order", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		rows := pgxmock.NewRows([]string{"id", "title", "company", "location", "url", "status"}).
			AddRow("t-1", "Backend Engineer", "Acme", "Remote", "https://board.example.com/jobs/1", "found").
			AddRow("t-2", "SRE", "Globex", "Berlin", "https://board.example.com/jobs/2", "found")

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlListPending)).
			WithArgs("found", 10).
			WillReturnRows(rows)

		targets, err := store.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, targets, 2)
		assert.Equal(t, "t-1", targets[0].ID)
		assert.Equal(t, schemas.StatusFound, targets[0].Status)
		assert.Equal(t, "Globex", targets[1].Company)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlListPending)).
			WithArgs("found", 5).
			WillReturnRows(pgxmock.NewRows([]string{"id", "title", "company", "location", "url", "status"}))

		targets, err := store.ListPending(ctx, 5)
		require.NoError(t, err)
		assert.Empty(t, targets)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestErrorPayload(t *testing.T) {
	t.Run("stamps a timestamp when missing", func(t *testing.T) {
		data := errorPayload(schemas.ErrorContext{Message: "boom"})

		var decoded schemas.ErrorContext
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.False(t, decoded.OccurredAt.IsZero())
		assert.Equal(t, "boom", decoded.Message)
	})
}
