package fx

import (
	"context"

	"github.com/DoyleJ11/map-veto-backend/internal/config"
	"github.com/DoyleJ11/map-veto-backend/internal/httpapi"
	"github.com/DoyleJ11/map-veto-backend/internal/hub"
	"github.com/DoyleJ11/map-veto-backend/internal/links"
	"github.com/DoyleJ11/map-veto-backend/internal/logger"
	"github.com/DoyleJ11/map-veto-backend/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func ProvideConfig() (*config.Config, error) {
	boot, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	defer func() { _ = boot.Sync() }()
	return config.Load(boot)
}

func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(cfg.LogLevel)
}

func ProvideStore(cfg *config.Config, log *zap.Logger) (store.Store, error) {
	return store.Open(cfg, log.With(zap.String("component", "store")))
}

func ProvideHub(cfg *config.Config, st store.Store, log *zap.Logger) *hub.Hub {
	return hub.NewHub(context.Background(), st, log.With(zap.String("component", "lobby")),
		hub.WithIdleTTL(cfg.LobbyIdleTTL))
}

func ProvideIssuer(cfg *config.Config) (*links.Issuer, error) {
	return links.NewIssuer(cfg.PublicBaseURL, cfg.SessionIDLength)
}

var Module = fx.Options(
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideLogger),
	fx.Provide(ProvideStore),
	fx.Provide(ProvideHub),
	fx.Provide(ProvideIssuer),
	fx.Provide(httpapi.NewAPI),
)
