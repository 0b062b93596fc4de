package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/DoyleJ11/map-veto-backend/internal/config"
	fxmodules "github.com/DoyleJ11/map-veto-backend/internal/fx"
	"github.com/DoyleJ11/map-veto-backend/internal/httpapi"
	"github.com/DoyleJ11/map-veto-backend/internal/hub"
	"github.com/DoyleJ11/map-veto-backend/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	api *httpapi.API,
	h *hub.Hub,
	st store.Store,
	cfg *config.Config,
	log *zap.Logger,
) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(api, cfg.CORSOrigins),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("server starting", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()

			var err error
			if e := srv.Shutdown(shutdownCtx); e != nil {
				log.Error("server shutdown failed", zap.Error(e))
				err = multierr.Append(err, e)
			}
			if e := h.Shutdown(shutdownCtx); e != nil {
				log.Warn("error stopping lobbies", zap.Error(e))
				err = multierr.Append(err, e)
			}
			if e := st.Close(); e != nil {
				log.Warn("error closing session store", zap.Error(e))
				err = multierr.Append(err, e)
			}
			_ = log.Sync()
			if err == nil {
				log.Info("server stopped gracefully")
			}
			return err
		},
	})
}
