package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/map-veto-backend/internal/engine"
	"github.com/DoyleJ11/map-veto-backend/internal/store"
	"go.uber.org/zap"
)

const storeTimeout = 5 * time.Second

var ErrClosed = errors.New("lobby closed")

type Msg interface{ isLobbyMsg() }

// FromClient asks the lobby to apply Cmd. The outcome goes to Reply if set.
type FromClient struct {
	Cmd   engine.Command
	Reply chan Result
}

func (FromClient) isLobbyMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type Snapshot struct {
	Version int
	State   engine.State
}

// Result is the outcome of one FromClient. State is the lobby's state after
// the attempt, whether or not it succeeded.
type Result struct {
	Events []engine.Event
	State  engine.State
	Err    error
}

type View struct {
	Version    int
	NumClients int
	State      engine.State
}

type Lobby struct {
	inbox      chan Msg
	state      engine.State
	store      store.Store
	log        *zap.Logger
	clients    map[string]chan Snapshot
	idleTTL    time.Duration
	lastActive time.Time
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

type Option func(*Lobby)

// WithIdleTTL makes the lobby stop itself once it has no clients and either
// the veto is finished or nothing has happened for ttl. Zero disables it.
func WithIdleTTL(ttl time.Duration) Option {
	return func(l *Lobby) { l.idleTTL = ttl }
}

// NewLobby starts the actor for initial, which must already be persisted.
func NewLobby(parent context.Context, initial engine.State, st store.Store, log *zap.Logger, opts ...Option) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		inbox:      make(chan Msg, 64), // Small buffer
		state:      initial,
		store:      st,
		log:        log.With(zap.String("session_id", initial.ID)),
		clients:    make(map[string]chan Snapshot),
		lastActive: time.Now(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	defer close(l.done)

	var idleCheck <-chan time.Time
	if l.idleTTL > 0 {
		t := time.NewTicker(checkInterval(l.idleTTL))
		defer t.Stop()
		idleCheck = t.C
	}

	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case <-idleCheck:
			if l.idle() {
				l.log.Debug("lobby idle, stopping", zap.Bool("finished", l.state.Finished()))
				l.shutdown()
				return
			}

		case m := <-l.inbox:
			l.lastActive = time.Now()
			switch msg := m.(type) {
			case Join:
				// Register client + send current snapshot immediately
				select {
				case msg.Outbox <- l.snapshot():
					l.clients[msg.ClientID] = msg.Outbox
					l.log.Debug("client joined", zap.String("client_id", msg.ClientID), zap.Int("clients", len(l.clients)))
				default:
					l.log.Info("dropping client with full outbox", zap.String("client_id", msg.ClientID))
					close(msg.Outbox)
				}

			case Leave:
				if ch, ok := l.clients[msg.ClientID]; ok {
					close(ch)
					delete(l.clients, msg.ClientID)
				}

			case FromClient:
				res := l.apply(msg.Cmd)
				if msg.Reply != nil {
					msg.Reply <- res
				}

			case GetState:
				msg.Reply <- View{
					Version:    l.state.Version,
					NumClients: len(l.clients),
					State:      l.state,
				}

			case Shutdown:
				l.shutdown()
				return
			}
			if l.idleTTL > 0 && len(l.clients) == 0 && l.state.Finished() {
				l.log.Debug("veto finished and no clients left, stopping")
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) apply(cmd engine.Command) Result {
	events, next, err := engine.Apply(l.state, cmd)
	if err != nil {
		l.log.Debug("action rejected",
			zap.String("team", string(cmd.Team)),
			zap.String("map", cmd.Map),
			zap.String("action", string(cmd.Action)),
			zap.Error(err))
		return Result{State: l.state, Err: err}
	}

	ctx, cancel := context.WithTimeout(l.ctx, storeTimeout)
	defer cancel()

	if err := l.store.Update(ctx, next, l.state.Version); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			// Someone else wrote this session; adopt their state.
			l.log.Warn("version conflict, reloading session", zap.Int("version", l.state.Version))
			l.reload(ctx)
		} else {
			l.log.Error("persist session failed", zap.Error(err))
		}
		return Result{State: l.state, Err: err}
	}

	l.state = next
	for _, e := range events {
		l.log.Info("veto event",
			zap.String("event", string(e.Type)),
			zap.String("team", string(e.Team)),
			zap.String("map", e.Map),
			zap.Int("version", next.Version))
	}
	l.broadcast(l.snapshot())
	return Result{Events: events, State: l.state}
}

func (l *Lobby) idle() bool {
	if len(l.clients) > 0 {
		return false
	}
	return l.state.Finished() || time.Since(l.lastActive) >= l.idleTTL
}

func checkInterval(ttl time.Duration) time.Duration {
	return min(max(ttl/4, 10*time.Millisecond), time.Minute)
}

func (l *Lobby) reload(ctx context.Context) {
	fresh, err := l.store.Get(ctx, l.state.ID)
	if err != nil {
		l.log.Error("reload session failed", zap.Error(err))
		return
	}
	if fresh.Version == l.state.Version {
		return
	}
	l.state = fresh
	l.broadcast(l.snapshot())
}

func (l *Lobby) snapshot() Snapshot {
	return Snapshot{Version: l.state.Version, State: l.state.Clone()}
}

func (l *Lobby) shutdown() {
	for id, ch := range l.clients {
		close(ch) // Tell client no more snapshots
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(snap Snapshot) {
	for id, ch := range l.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Client is slow/full - drop them.
			l.log.Info("dropping slow client", zap.String("client_id", id))
			close(ch)
			delete(l.clients, id)
		}
	}
}

// Inbox exposes the inbox so the ws and http layers can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the actor has stopped.
func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Submit sends cmd and waits for its result.
func (l *Lobby) Submit(ctx context.Context, cmd engine.Command) (Result, error) {
	if l.closed() {
		return Result{}, ErrClosed
	}
	reply := make(chan Result, 1)
	select {
	case l.inbox <- FromClient{Cmd: cmd, Reply: reply}:
	case <-l.done:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res, nil
	case <-l.done:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Join registers out for snapshots. It reports false if the lobby is gone.
func (l *Lobby) Join(clientID string, out chan Snapshot) bool {
	if l.closed() {
		return false
	}
	select {
	case l.inbox <- Join{ClientID: clientID, Outbox: out}:
		return true
	case <-l.done:
		return false
	}
}

// Leave unregisters a client; safe to call after shutdown.
func (l *Lobby) Leave(clientID string) {
	select {
	case l.inbox <- Leave{ClientID: clientID}:
	case <-l.done:
	}
}

// State returns the lobby's current view.
func (l *Lobby) State(ctx context.Context) (View, error) {
	if l.closed() {
		return View{}, ErrClosed
	}
	reply := make(chan View, 1)
	select {
	case l.inbox <- GetState{Reply: reply}:
	case <-l.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}
