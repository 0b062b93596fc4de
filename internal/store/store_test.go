package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/DoyleJ11/map-veto-backend/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var pool = []string{"CrossPort", "City Cat", "DragonRoad", "5th Depot", "Old Town", "Provence", "White Squall"}

func newSession(t *testing.T, id string) engine.State {
	t.Helper()
	s, err := engine.NewSession(id, engine.FormatBO3, pool)
	require.NoError(t, err)
	return s
}

func veto(t *testing.T, s engine.State, m string) engine.State {
	t.Helper()
	_, next, err := engine.Apply(s, engine.Command{Team: s.Turn, Map: m, Action: s.NextAction})
	require.NoError(t, err)
	return next
}

// testStore runs the behaviour every backend must share.
func testStore(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create get roundtrip", func(t *testing.T) {
		st := open(t)
		s := newSession(t, "ROUND1")
		require.NoError(t, st.Create(ctx, s))

		got, err := st.Get(ctx, "ROUND1")
		require.NoError(t, err)
		assert.Equal(t, s, got)

		ok, err := st.Exists(ctx, "ROUND1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("duplicate create", func(t *testing.T) {
		st := open(t)
		require.NoError(t, st.Create(ctx, newSession(t, "DUPE01")))
		err := st.Create(ctx, newSession(t, "DUPE01"))
		assert.ErrorIs(t, err, ErrSessionExists)
	})

	t.Run("missing session", func(t *testing.T) {
		st := open(t)
		_, err := st.Get(ctx, "NOPE")
		assert.ErrorIs(t, err, ErrSessionNotFound)

		ok, err := st.Exists(ctx, "NOPE")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.ErrorIs(t, st.Delete(ctx, "NOPE"), ErrSessionNotFound)
		assert.ErrorIs(t, st.Update(ctx, newSession(t, "NOPE"), 0), ErrSessionNotFound)
	})

	t.Run("update with expected version", func(t *testing.T) {
		st := open(t)
		s := newSession(t, "UPD001")
		require.NoError(t, st.Create(ctx, s))

		next := veto(t, s, "CrossPort")
		require.NoError(t, st.Update(ctx, next, s.Version))

		got, err := st.Get(ctx, "UPD001")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Version)
		assert.Equal(t, []string{"CrossPort"}, got.Banned)

		// replaying the same write from the old base is stale
		assert.ErrorIs(t, st.Update(ctx, next, s.Version), ErrVersionConflict)
	})

	t.Run("concurrent updates from one base", func(t *testing.T) {
		st := open(t)
		base := newSession(t, "RACE01")
		require.NoError(t, st.Create(ctx, base))

		choices := []string{"CrossPort", "City Cat", "DragonRoad", "Old Town"}
		var won, lost atomic.Int32
		var g errgroup.Group
		for _, m := range choices {
			next := veto(t, base, m)
			g.Go(func() error {
				err := st.Update(ctx, next, base.Version)
				switch {
				case err == nil:
					won.Add(1)
				case errors.Is(err, ErrVersionConflict):
					lost.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.Equal(t, int32(1), won.Load())
		assert.Equal(t, int32(len(choices)-1), lost.Load())

		got, err := st.Get(ctx, "RACE01")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Version)
		assert.Len(t, got.History, 1)
	})

	t.Run("delete", func(t *testing.T) {
		st := open(t)
		require.NoError(t, st.Create(ctx, newSession(t, "DEL001")))
		require.NoError(t, st.Delete(ctx, "DEL001"))
		_, err := st.Get(ctx, "DEL001")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestMemory(t *testing.T) {
	testStore(t, func(t *testing.T) Store { return NewMemory() })
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	require.NoError(t, st.Create(ctx, newSession(t, "COPY01")))

	got, err := st.Get(ctx, "COPY01")
	require.NoError(t, err)
	got.Pool[0] = "mutated"

	again, err := st.Get(ctx, "COPY01")
	require.NoError(t, err)
	assert.Equal(t, "CrossPort", again.Pool[0])
}

func openTestSQLite(t *testing.T) Store {
	t.Helper()
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "veto.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLite(t *testing.T) {
	testStore(t, openTestSQLite)
}

func TestSQLite_RejectsCorruptDocument(t *testing.T) {
	ctx := context.Background()
	st := openTestSQLite(t).(*SQLite)
	require.NoError(t, st.Create(ctx, newSession(t, "BAD001")))

	_, err := st.db.ExecContext(ctx, `UPDATE veto_sessions SET data = ? WHERE id = ?`,
		`{"id":"BAD001","format":"bo3","pool":["a"],"banned":["z"],"picked":[],"history":[],"turn":"teamA"}`, "BAD001")
	require.NoError(t, err)

	_, err = st.Get(ctx, "BAD001")
	assert.ErrorIs(t, err, ErrCorruptSession)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("VETO_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("VETO_TEST_DATABASE_URL not set")
	}
	testStore(t, func(t *testing.T) Store {
		st, err := OpenPostgres(dsn, zap.NewNop())
		require.NoError(t, err)
		require.NoError(t, st.db.Exec("DELETE FROM veto_sessions").Error)
		t.Cleanup(func() { st.Close() })
		return st
	})
}
