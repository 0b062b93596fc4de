package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/DoyleJ11/map-veto-backend/internal/config"
	"github.com/DoyleJ11/map-veto-backend/internal/engine"
	"github.com/DoyleJ11/map-veto-backend/internal/hub"
	"github.com/DoyleJ11/map-veto-backend/internal/links"
	"github.com/DoyleJ11/map-veto-backend/internal/lobby"
	"github.com/DoyleJ11/map-veto-backend/internal/store"
	"github.com/DoyleJ11/map-veto-backend/pkg/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxIDAttempts = 10

type API struct {
	hub     *hub.Hub
	store   store.Store
	links   *links.Issuer
	catalog config.Catalog
	log     *zap.Logger
}

func NewAPI(h *hub.Hub, st store.Store, iss *links.Issuer, cfg *config.Config, log *zap.Logger) *API {
	return &API{hub: h, store: st, links: iss, catalog: cfg.Catalog, log: log}
}

func (a *API) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req types.CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	format, ok := engine.ParseFormat(req.Format)
	if !ok {
		writeError(w, fmt.Errorf("%w: unknown format %q", errBadRequest, req.Format))
		return
	}
	pool := req.Pool
	if len(pool) == 0 {
		pool = a.catalog.DefaultPool
	}
	for _, m := range pool {
		if !a.catalog.Allows(m) {
			writeError(w, fmt.Errorf("%w: map not allowed: %s", errBadRequest, m))
			return
		}
	}

	ctx := r.Context()
	var state engine.State
	for attempt := 1; ; attempt++ {
		if attempt > maxIDAttempts {
			writeError(w, errors.New("could not allocate a session id"))
			return
		}
		id, err := a.links.NewID()
		if err != nil {
			writeError(w, err)
			return
		}
		state, err = engine.NewSession(id, format, pool)
		if err != nil {
			writeError(w, err)
			return
		}
		err = a.store.Create(ctx, state)
		if errors.Is(err, store.ErrSessionExists) {
			a.log.Info("collision on session id, regenerating", zap.String("session_id", id))
			continue
		}
		if err != nil {
			a.log.Error("create session failed", zap.Error(err))
			writeError(w, err)
			return
		}
		break
	}

	if _, err := a.hub.Create(ctx, state); err != nil {
		a.log.Error("start lobby failed", zap.String("session_id", state.ID), zap.Error(err))
		if derr := a.store.Delete(context.WithoutCancel(ctx), state.ID); derr != nil {
			a.log.Error("roll back session failed", zap.String("session_id", state.ID), zap.Error(derr))
		}
		writeError(w, err)
		return
	}
	a.log.Info("session created",
		zap.String("session_id", state.ID),
		zap.String("format", string(state.Format)),
		zap.Int("pool_size", len(state.Pool)))

	l := a.links.Links(state.ID)
	writeJSON(w, http.StatusCreated, types.CreateSessionResponse{
		ID:      state.ID,
		Format:  string(state.Format),
		Pool:    state.Pool,
		Version: state.Version,
		Links: types.SessionLinks{
			Host:      l.Host,
			TeamA:     l.TeamA,
			TeamB:     l.TeamB,
			Spectator: l.Spectator,
		},
	})
}

func (a *API) GetView(w http.ResponseWriter, r *http.Request) {
	roleParam := r.URL.Query().Get("role")
	if roleParam == "" {
		roleParam = "spectator"
	}
	role, team, ok := engine.ParseRole(roleParam)
	if !ok {
		writeError(w, fmt.Errorf("%w: unknown role %q", errBadRequest, roleParam))
		return
	}
	state, err := a.currentState(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, engine.ProjectView(state, role, team))
}

func (a *API) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := a.currentState(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) SubmitAction(w http.ResponseWriter, r *http.Request) {
	var req types.ActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	team, ok := engine.ParseTeam(req.Team)
	if !ok {
		writeError(w, fmt.Errorf("%w: unknown team %q", errBadRequest, req.Team))
		return
	}
	action, ok := engine.ParseAction(req.Action)
	if !ok {
		writeError(w, fmt.Errorf("%w: unknown action %q", errBadRequest, req.Action))
		return
	}

	cmd := engine.Command{
		Team:            team,
		Map:             req.Map,
		Action:          action,
		ExpectedVersion: req.ExpectedVersion,
	}
	var res lobby.Result
	err := a.hub.WithLobby(r.Context(), chi.URLParam(r, "id"), func(lb *lobby.Lobby) error {
		var err error
		res, err = lb.Submit(r.Context(), cmd)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if res.Err != nil {
		writeError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, engine.ProjectView(res.State, engine.RoleTeam, team))
}

func (a *API) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.store.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if err := a.hub.Remove(r.Context(), id); err != nil {
		a.log.Warn("remove lobby failed", zap.String("session_id", id), zap.Error(err))
	}
	a.log.Info("session deleted", zap.String("session_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) Maps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.MapsResponse{
		Maps:        a.catalog.Maps,
		DefaultPool: a.catalog.DefaultPool,
	})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// currentState reads the session without waking its lobby.
func (a *API) currentState(r *http.Request) (engine.State, error) {
	return a.hub.Snapshot(r.Context(), chi.URLParam(r, "id"))
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed JSON body: %v", errBadRequest, err)
	}
	return nil
}
