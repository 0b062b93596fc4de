package hub

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/map-veto-backend/internal/engine"
	"github.com/DoyleJ11/map-veto-backend/internal/lobby"
	"github.com/DoyleJ11/map-veto-backend/internal/store"
	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("hub closed")

const (
	loadTimeout    = 5 * time.Second
	defaultIdleTTL = 10 * time.Minute
)

type HubMsg interface{ isHubMsg() }

// CreateLobby starts a lobby for a session that has already been persisted.
type CreateLobby struct {
	State engine.State
	Reply chan *lobby.Lobby
}

// GetLobby returns the live lobby for ID, loading the session from the store
// when no lobby is running.
type GetLobby struct {
	ID    string
	Reply chan Lookup
}

type Lookup struct {
	Lobby *lobby.Lobby
	Err   error // store.ErrSessionNotFound for unknown ids
}

type RemoveLobby struct {
	ID string
}

type ShutdownHub struct{}

// GetLive returns the running lobby for ID, or nil. It never loads.
type GetLive struct {
	ID    string
	Reply chan *lobby.Lobby
}

type countLobbies struct {
	Reply chan int
}

// loaded carries the result of a store read done outside the loop.
type loaded struct {
	ID    string
	State engine.State
	Err   error
}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	pending map[string][]chan Lookup
	store   store.Store
	log     *zap.Logger
	idleTTL time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func (CreateLobby) isHubMsg()  {}
func (GetLobby) isHubMsg()     {}
func (GetLive) isHubMsg()      {}
func (RemoveLobby) isHubMsg()  {}
func (ShutdownHub) isHubMsg()  {}
func (countLobbies) isHubMsg() {}
func (loaded) isHubMsg()       {}

type Option func(*Hub)

// WithIdleTTL sets how long a lobby with no clients lives without activity.
// Finished sessions are released as soon as their last client leaves.
func WithIdleTTL(ttl time.Duration) Option {
	return func(h *Hub) {
		if ttl > 0 {
			h.idleTTL = ttl
		}
	}
}

func NewHub(parent context.Context, st store.Store, log *zap.Logger, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		pending: make(map[string][]chan Lookup),
		store:   st,
		log:     log,
		idleTTL: defaultIdleTTL,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)

	reap := time.NewTicker(h.idleTTL)
	defer reap.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-reap.C:
			h.prune()

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				if lb := h.live(msg.State.ID); lb != nil {
					msg.Reply <- lb
					break
				}
				msg.Reply <- h.start(msg.State)

			case GetLobby:
				if lb := h.live(msg.ID); lb != nil {
					msg.Reply <- Lookup{Lobby: lb}
					break
				}
				waiters, loading := h.pending[msg.ID]
				h.pending[msg.ID] = append(waiters, msg.Reply)
				if !loading {
					go h.load(msg.ID)
				}

			case loaded:
				res := Lookup{Err: msg.Err}
				if msg.Err == nil {
					lb := h.live(msg.ID)
					if lb == nil {
						lb = h.start(msg.State)
					}
					res.Lobby = lb
				}
				for _, reply := range h.pending[msg.ID] {
					reply <- res
				}
				delete(h.pending, msg.ID)

			case GetLive:
				msg.Reply <- h.live(msg.ID)

			case RemoveLobby:
				if lb := h.lobbies[msg.ID]; lb != nil {
					stopLobby(lb)
					delete(h.lobbies, msg.ID)
					h.log.Info("lobby removed", zap.String("session_id", msg.ID))
				}

			case countLobbies:
				h.prune()
				msg.Reply <- len(h.lobbies)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// live returns a running lobby, forgetting ones that have stopped.
func (h *Hub) live(id string) *lobby.Lobby {
	lb := h.lobbies[id]
	if lb == nil {
		return nil
	}
	select {
	case <-lb.Done():
		delete(h.lobbies, id)
		return nil
	default:
		return lb
	}
}

// prune forgets every lobby that has stopped on its own.
func (h *Hub) prune() {
	for id := range h.lobbies {
		h.live(id)
	}
}

// load reads a session outside the loop and hands the result back to it.
func (h *Hub) load(id string) {
	ctx, cancel := context.WithTimeout(h.ctx, loadTimeout)
	st, err := h.store.Get(ctx, id)
	cancel()
	if err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		h.log.Error("load session failed", zap.String("session_id", id), zap.Error(err))
	}
	select {
	case h.inbox <- loaded{ID: id, State: st, Err: err}:
	case <-h.done:
	}
}

func (h *Hub) start(st engine.State) *lobby.Lobby {
	lb := lobby.NewLobby(h.ctx, st, h.store, h.log, lobby.WithIdleTTL(h.idleTTL))
	h.lobbies[st.ID] = lb
	h.log.Debug("lobby started", zap.String("session_id", st.ID), zap.Int("version", st.Version))
	return lb
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		stopLobby(lb)
	}
	for _, lb := range h.lobbies {
		<-lb.Done()
	}
	clear(h.lobbies)
	h.cancel()
}

func stopLobby(lb *lobby.Lobby) {
	select {
	case lb.Inbox() <- lobby.Shutdown{}:
	case <-lb.Done():
	}
}

// Create starts a lobby for st.
func (h *Hub) Create(ctx context.Context, st engine.State) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.send(ctx, CreateLobby{State: st, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case lb := <-reply:
		return lb, nil
	case <-h.done:
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the lobby for id, or store.ErrSessionNotFound.
func (h *Hub) Get(ctx context.Context, id string) (*lobby.Lobby, error) {
	reply := make(chan Lookup, 1)
	if err := h.send(ctx, GetLobby{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.Lobby, res.Err
	case <-h.done:
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WithLobby runs fn against the lobby for id. A lobby that stops between the
// lookup and fn (idle release) is restarted once from the store.
func (h *Hub) WithLobby(ctx context.Context, id string, fn func(*lobby.Lobby) error) error {
	for attempt := 0; ; attempt++ {
		lb, err := h.Get(ctx, id)
		if err != nil {
			return err
		}
		err = fn(lb)
		if errors.Is(err, lobby.ErrClosed) && attempt == 0 {
			continue
		}
		return err
	}
}

// Snapshot returns the current state of id without starting a lobby: the
// live lobby answers if there is one, otherwise the store does.
func (h *Hub) Snapshot(ctx context.Context, id string) (engine.State, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.send(ctx, GetLive{ID: id, Reply: reply}); err != nil {
		return engine.State{}, err
	}
	var lb *lobby.Lobby
	select {
	case lb = <-reply:
	case <-h.done:
		return engine.State{}, ErrHubClosed
	case <-ctx.Done():
		return engine.State{}, ctx.Err()
	}
	if lb != nil {
		v, err := lb.State(ctx)
		if err == nil {
			return v.State, nil
		}
		if !errors.Is(err, lobby.ErrClosed) {
			return engine.State{}, err
		}
	}
	return h.store.Get(ctx, id)
}

func (h *Hub) Remove(ctx context.Context, id string) error {
	return h.send(ctx, RemoveLobby{ID: id})
}

// Shutdown stops every lobby and the hub, waiting until they are done.
func (h *Hub) Shutdown(ctx context.Context) error {
	if err := h.send(ctx, ShutdownHub{}); err != nil && !errors.Is(err, ErrHubClosed) {
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports the number of live lobbies.
func (h *Hub) Len(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if err := h.send(ctx, countLobbies{Reply: reply}); err != nil {
		return 0, err
	}
	select {
	case n := <-reply:
		return n, nil
	case <-h.done:
		return 0, ErrHubClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (h *Hub) send(ctx context.Context, msg HubMsg) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.inbox <- msg:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
