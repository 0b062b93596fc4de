package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/map-veto-backend/internal/engine"
	"github.com/DoyleJ11/map-veto-backend/internal/hub"
	"github.com/DoyleJ11/map-veto-backend/internal/store"
	"github.com/DoyleJ11/map-veto-backend/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func newServer(t *testing.T) *httptest.Server {
	return newServerWithOrigins(t, []string{"*"})
}

func newServerWithOrigins(t *testing.T, origins []string) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st := store.NewMemory()
	s, err := engine.NewSession("WS0001", engine.FormatBO3, []string{"Airport", "CrossPort", "Frozen", "Western", "Depot"})
	require.NoError(t, err)
	require.NoError(t, st.Create(ctx, s))

	srv := httptest.NewServer(Handler(hub.NewHub(ctx, st, zap.NewNop()), zap.NewNop(), origins))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv, query), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var msg types.ServerMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, msg types.ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

func TestHandler_VetoBroadcastsScopedViews(t *testing.T) {
	srv := newServer(t)
	a := dial(t, srv, "session=WS0001&role=teamA")
	watcher := dial(t, srv, "session=WS0001&role=spectator")

	first := read(t, a)
	require.Equal(t, "StateSnapshot", first.Type)
	require.NotNil(t, first.View)
	assert.True(t, first.View.YourTurn)
	assert.Equal(t, engine.RoleTeam, first.View.Role)
	_ = read(t, watcher)

	send(t, a, types.ClientMessage{Type: "Veto", Map: "Frozen"})

	next := read(t, a)
	assert.Equal(t, 1, next.Version)
	assert.False(t, next.View.YourTurn)

	seen := read(t, watcher)
	assert.Equal(t, 1, seen.Version)
	assert.Equal(t, engine.RoleSpectator, seen.View.Role)
	require.Len(t, seen.View.History, 1)
	assert.Equal(t, "Frozen", seen.View.History[0].Map)
}

func TestHandler_ErrorsGoOnlyToSender(t *testing.T) {
	srv := newServer(t)
	b := dial(t, srv, "session=WS0001&role=teamB")
	_ = read(t, b)

	send(t, b, types.ClientMessage{Type: "Veto", Map: "Frozen"})
	msg := read(t, b)
	assert.Equal(t, "Error", msg.Type)
	assert.Equal(t, types.CodeNotYourTurn, msg.Code)

	send(t, b, types.ClientMessage{Type: "Ban", Map: "Frozen"})
	msg = read(t, b)
	assert.Equal(t, types.CodeBadRequest, msg.Code)
}

func TestHandler_SpectatorCannotAct(t *testing.T) {
	srv := newServer(t)
	watcher := dial(t, srv, "session=WS0001")
	first := read(t, watcher)
	assert.Equal(t, engine.RoleSpectator, first.View.Role)

	send(t, watcher, types.ClientMessage{Type: "Veto", Map: "Frozen"})
	msg := read(t, watcher)
	assert.Equal(t, "Error", msg.Type)
	assert.Equal(t, types.CodeBadRequest, msg.Code)
}

func TestHandler_StaleExpectedVersion(t *testing.T) {
	srv := newServer(t)
	a := dial(t, srv, "session=WS0001&role=teamA")
	_ = read(t, a)

	stale := 3
	send(t, a, types.ClientMessage{Type: "Veto", Map: "Frozen", ExpectedVersion: &stale})
	msg := read(t, a)
	assert.Equal(t, types.CodeStaleVersion, msg.Code)
}

func TestHandler_RejectsBeforeUpgrade(t *testing.T) {
	srv := newServer(t)

	res, err := http.Get(srv.URL + "/ws?session=NOPE00")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, err = http.Get(srv.URL + "/ws?session=WS0001&role=referee")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, err = http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestHandler_OriginCheck(t *testing.T) {
	srv := newServerWithOrigins(t, []string{"https://app.test"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, res, err := websocket.Dial(ctx, wsURL(srv, "session=WS0001&role=teamA"), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.test"}},
	})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "session=WS0001&role=teamA"), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://app.test"}},
	})
	require.NoError(t, err)
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t,
		[]string{"*", "app.test", "localhost:3000"},
		OriginPatterns([]string{"*", "https://app.test/", " http://localhost:3000 ", ""}))
}
