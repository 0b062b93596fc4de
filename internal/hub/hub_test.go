package hub

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DoyleJ11/map-veto-backend/internal/engine"
	"github.com/DoyleJ11/map-veto-backend/internal/lobby"
	"github.com/DoyleJ11/map-veto-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func persisted(t *testing.T, st store.Store, id string) engine.State {
	t.Helper()
	s, err := engine.NewSession(id, engine.FormatBO1, []string{"Frozen", "Western", "Depot"})
	require.NoError(t, err)
	require.NoError(t, st.Create(context.Background(), s))
	return s
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	h := NewHub(ctx, st, zap.NewNop())
	reply := make(chan *lobby.Lobby, 1)

	state := persisted(t, st, "ZED123")
	h.Inbox() <- CreateLobby{State: state, Reply: reply}
	lb1 := <-reply

	lookup := make(chan Lookup, 1)
	h.Inbox() <- GetLobby{ID: "ZED123", Reply: lookup}
	lb2 := (<-lookup).Lobby

	if lb1 == nil || lb2 == nil || lb1 != lb2 {
		t.Fatalf("expected same lobby pointer")
	}
}

func TestHub_Get_LoadsFromStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	h := NewHub(ctx, st, zap.NewNop())
	persisted(t, st, "LOAD01")

	lb, err := h.Get(ctx, "LOAD01")
	require.NoError(t, err)
	require.NotNil(t, lb)

	v, err := lb.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "LOAD01", v.State.ID)

	again, err := h.Get(ctx, "LOAD01")
	require.NoError(t, err)
	assert.Same(t, lb, again)

	n, err := h.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHub_Get_UnknownSession(t *testing.T) {
	h := NewHub(context.Background(), store.NewMemory(), zap.NewNop())
	lb, err := h.Get(context.Background(), "MISSING")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	assert.Nil(t, lb)
}

func TestHub_Remove_StopsLobby(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	h := NewHub(ctx, st, zap.NewNop())
	lb, err := h.Create(ctx, persisted(t, st, "RM0001"))
	require.NoError(t, err)

	require.NoError(t, h.Remove(ctx, "RM0001"))
	select {
	case <-lb.Done():
	case <-time.After(time.Second):
		t.Fatalf("lobby not stopped")
	}

	// the session is still in the store, so a fresh lobby is started
	next, err := h.Get(ctx, "RM0001")
	require.NoError(t, err)
	assert.NotSame(t, lb, next)
}

func TestHub_Shutdown(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	h := NewHub(ctx, st, zap.NewNop())
	lb, err := h.Create(ctx, persisted(t, st, "SHUT01"))
	require.NoError(t, err)

	sctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(sctx))

	<-lb.Done()
	_, err = h.Get(ctx, "SHUT01")
	assert.ErrorIs(t, err, ErrHubClosed)
}

func finishedBO1(t *testing.T, st store.Store, id string) {
	t.Helper()
	s, err := engine.NewSession(id, engine.FormatBO1, []string{"Frozen", "Western"})
	require.NoError(t, err)
	_, s, err = engine.Apply(s, engine.Command{Team: engine.TeamA, Map: "Frozen", Action: engine.ActionVeto})
	require.NoError(t, err)
	require.NoError(t, st.Create(context.Background(), s))
}

func TestHub_ReleasesIdleLobbies(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	h := NewHub(ctx, st, zap.NewNop(), WithIdleTTL(30*time.Millisecond))

	for i := range 200 {
		id := fmt.Sprintf("FIN%03d", i)
		finishedBO1(t, st, id)
		_, err := h.Get(ctx, id)
		require.NoError(t, err)
	}
	open := persisted(t, st, "OPEN01")
	_, err := h.Create(ctx, open)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, err := h.Len(ctx)
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	// released sessions come back on demand
	lb, err := h.Get(ctx, "OPEN01")
	require.NoError(t, err)
	v, err := lb.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OPEN01", v.State.ID)
}

func TestHub_Snapshot_DoesNotStartLobby(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	h := NewHub(ctx, st, zap.NewNop())
	finishedBO1(t, st, "READ01")

	s, err := h.Snapshot(ctx, "READ01")
	require.NoError(t, err)
	assert.True(t, s.Finished())

	n, err := h.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = h.Snapshot(ctx, "NOPE00")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestHub_Snapshot_PrefersLiveLobby(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	h := NewHub(ctx, st, zap.NewNop())
	lb, err := h.Create(ctx, persisted(t, st, "LIVE01"))
	require.NoError(t, err)

	_, err = lb.Submit(ctx, engine.Command{Team: engine.TeamA, Map: "Frozen", Action: engine.ActionVeto})
	require.NoError(t, err)

	s, err := h.Snapshot(ctx, "LIVE01")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Version)
}

func TestHub_ConcurrentLoadsShareOneLobby(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	h := NewHub(ctx, st, zap.NewNop())
	persisted(t, st, "SHARE1")

	lobbies := make([]*lobby.Lobby, 16)
	var g errgroup.Group
	for i := range lobbies {
		g.Go(func() error {
			lb, err := h.Get(ctx, "SHARE1")
			lobbies[i] = lb
			return err
		})
	}
	require.NoError(t, g.Wait())
	for _, lb := range lobbies {
		assert.Same(t, lobbies[0], lb)
	}
}

// slowStore blocks Get for one id until release is closed.
type slowStore struct {
	store.Store
	slowID  string
	release chan struct{}
}

func (s *slowStore) Get(ctx context.Context, id string) (engine.State, error) {
	if id == s.slowID {
		select {
		case <-s.release:
		case <-ctx.Done():
			return engine.State{}, ctx.Err()
		}
	}
	return s.Store.Get(ctx, id)
}

func TestHub_SlowLoadDoesNotBlockOtherSessions(t *testing.T) {
	ctx := context.Background()
	st := &slowStore{Store: store.NewMemory(), slowID: "SLOW01", release: make(chan struct{})}
	h := NewHub(ctx, st, zap.NewNop())
	persisted(t, st, "SLOW01")
	persisted(t, st, "FAST01")

	slow := make(chan error, 1)
	go func() {
		_, err := h.Get(ctx, "SLOW01")
		slow <- err
	}()

	fctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	lb, err := h.Get(fctx, "FAST01")
	require.NoError(t, err, "lookup of another session waited on the slow load")
	require.NotNil(t, lb)

	close(st.release)
	select {
	case err := <-slow:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("slow lookup never completed")
	}
}

func TestHub_WithLobby_RestartsReleasedLobby(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	h := NewHub(ctx, st, zap.NewNop())
	first, err := h.Create(ctx, persisted(t, st, "RETRY1"))
	require.NoError(t, err)

	calls := 0
	err = h.WithLobby(ctx, "RETRY1", func(lb *lobby.Lobby) error {
		calls++
		if calls == 1 {
			// stop it behind the hub's back, as an idle release would
			lb.Inbox() <- lobby.Shutdown{}
			<-lb.Done()
			return lobby.ErrClosed
		}
		assert.NotSame(t, first, lb)
		_, err := lb.State(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
