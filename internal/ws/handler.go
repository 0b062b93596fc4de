package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/DoyleJ11/map-veto-backend/internal/engine"
	"github.com/DoyleJ11/map-veto-backend/internal/hub"
	"github.com/DoyleJ11/map-veto-backend/internal/lobby"
	"github.com/DoyleJ11/map-veto-backend/internal/store"
	"github.com/DoyleJ11/map-veto-backend/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeTimeout  = 3 * time.Second
	idleTimeout   = 10 * time.Minute
	submitTimeout = 5 * time.Second
)

var errSpectator = fmt.Errorf("%w: only teams can veto or pick", types.ErrBadRequest)

// Handler serves /ws?session=ID&role=ROLE. Every client receives a view of the
// session scoped to its role after each change; team clients may also send
// Veto and Pick messages. origins are the allowed browser origins, as in
// CORS_ORIGINS.
func Handler(h *hub.Hub, log *zap.Logger, origins []string) http.HandlerFunc {
	accept := &websocket.AcceptOptions{OriginPatterns: OriginPatterns(origins)}

	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("session")
		if id == "" {
			http.Error(w, "missing session", http.StatusBadRequest)
			return
		}
		roleParam := r.URL.Query().Get("role")
		if roleParam == "" {
			roleParam = string(engine.RoleSpectator)
		}
		role, team, ok := engine.ParseRole(roleParam)
		if !ok {
			http.Error(w, "unknown role", http.StatusBadRequest)
			return
		}

		clientID := uuid.NewString()
		out := make(chan lobby.Snapshot, 8)
		var lb *lobby.Lobby
		err := h.WithLobby(r.Context(), id, func(l *lobby.Lobby) error {
			if !l.Join(clientID, out) {
				return lobby.ErrClosed
			}
			lb = l
			return nil
		})
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				http.Error(w, "session not found", http.StatusNotFound)
				return
			}
			log.Error("lookup session failed", zap.String("session_id", id), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		defer lb.Leave(clientID)

		conn, err := websocket.Accept(w, r, accept)
		if err != nil {
			log.Debug("websocket accept failed", zap.String("origin", r.Header.Get("Origin")), zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clog := log.With(
			zap.String("session_id", id),
			zap.String("client_id", clientID),
			zap.String("role", roleParam))
		clog.Info("client connected")

		replies := make(chan types.ServerMessage, 4)
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			defer cancel()
			writeLoop(ctx, conn, lb.Done(), out, replies, role, team)
		}()

		for {
			readCtx, readCancel := context.WithTimeout(ctx, idleTimeout)
			_, data, err := conn.Read(readCtx)
			readCancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					clog.Info("client disconnected")
				default:
					clog.Debug("read failed", zap.Error(err))
				}
				return
			}

			err = handleMessage(ctx, lb, data, role, team)
			if err != nil {
				select {
				case replies <- errorMessage(err):
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// writeLoop is the only writer on conn. It returns when out is closed (Leave,
// lobby shutdown, slow client) or when the lobby stops before seeing the Join.
func writeLoop(ctx context.Context, conn *websocket.Conn, lobbyDone <-chan struct{}, out <-chan lobby.Snapshot, replies <-chan types.ServerMessage, role engine.Role, team engine.Team) {
	for {
		var msg types.ServerMessage
		select {
		case snap, ok := <-out:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			view := engine.ProjectView(snap.State, role, team)
			msg = types.ServerMessage{Type: "StateSnapshot", Version: snap.Version, View: &view}
		case msg = <-replies:
		case <-lobbyDone:
			conn.Close(websocket.StatusGoingAway, "session closed")
			return
		case <-ctx.Done():
			return
		}

		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(wctx, conn, msg)
		cancel()
		if err != nil {
			return
		}
	}
}

func submit(ctx context.Context, lb *lobby.Lobby, cmd engine.Command) error {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	res, err := lb.Submit(ctx, cmd)
	if err != nil {
		return err
	}
	return res.Err
}

// OriginPatterns turns CORS-style origins ("https://app.example.com", "*")
// into the host patterns websocket.Accept matches against.
func OriginPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		if o = strings.TrimSuffix(o, "/"); o != "" {
			patterns = append(patterns, o)
		}
	}
	return patterns
}

func handleMessage(ctx context.Context, lb *lobby.Lobby, data []byte, role engine.Role, team engine.Team) error {
	var cm types.ClientMessage
	if err := json.Unmarshal(data, &cm); err != nil {
		return fmt.Errorf("%w: bad json", types.ErrBadRequest)
	}
	cmd, err := toEngineCommand(cm, role, team)
	if err != nil {
		return err
	}
	return submit(ctx, lb, cmd)
}

func toEngineCommand(m types.ClientMessage, role engine.Role, team engine.Team) (engine.Command, error) {
	if role != engine.RoleTeam {
		return engine.Command{}, errSpectator
	}
	var action engine.Action
	switch m.Type {
	case "Veto":
		action = engine.ActionVeto
	case "Pick":
		action = engine.ActionPick
	default:
		return engine.Command{}, fmt.Errorf("%w: unknown message type %q", types.ErrBadRequest, m.Type)
	}
	return engine.Command{Team: team, Map: m.Map, Action: action, ExpectedVersion: m.ExpectedVersion}, nil
}

func errorMessage(err error) types.ServerMessage {
	code := types.ErrorCode(err)
	msg := err.Error()
	if code == types.CodeInternal {
		msg = "internal error"
	}
	return types.ServerMessage{Type: "Error", Code: code, Error: msg}
}
