package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// DefaultCatalog is every map the service knows about.
var DefaultCatalog = []string{
	"Airport", "CrossPort", "City Cat", "Depot", "Desert 2", "DragonRoad",
	"5th Depot", "Frozen", "Old Town", "Provence", "Western", "White Squall", "Two Face",
}

// DefaultPool has enough maps for every format, bo5 included.
var DefaultPool = []string{
	"CrossPort", "City Cat", "DragonRoad", "5th Depot", "Old Town",
	"Provence", "White Squall", "Two Face", "Airport",
}

type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	PublicBaseURL   string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080/"`
	StoreDriver     string        `env:"STORE_DRIVER" envDefault:"memory"`
	SQLitePath      string        `env:"SQLITE_PATH" envDefault:"veto.db"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	SessionIDLength int           `env:"SESSION_ID_LENGTH" envDefault:"6"`
	MapCatalogFile  string        `env:"MAP_CATALOG_FILE"`
	DefaultMapPool  []string      `env:"DEFAULT_MAP_POOL" envSeparator:","`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LobbyIdleTTL    time.Duration `env:"LOBBY_IDLE_TTL" envDefault:"10m"`

	Catalog Catalog `env:"-"`
}

// Catalog is the set of maps sessions may use and the pool used when a
// session is created without one.
type Catalog struct {
	Maps        []string `yaml:"maps"`
	DefaultPool []string `yaml:"default_pool"`
}

// Allows reports whether m may appear in a pool. An empty catalog allows
// everything.
func (c Catalog) Allows(m string) bool {
	return len(c.Maps) == 0 || slices.Contains(c.Maps, m)
}

// Load reads .env (if present) and the environment. The logger is optional.
func Load(logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := godotenv.Load(); err != nil {
		logger.Debug(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.resolveCatalog(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger.Info("configuration loaded",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("store_driver", cfg.StoreDriver),
		zap.String("log_level", cfg.LogLevel),
		zap.Int("catalog_maps", len(cfg.Catalog.Maps)),
		zap.Strings("default_pool", cfg.Catalog.DefaultPool),
	)
	return cfg, nil
}

func (c *Config) resolveCatalog() error {
	c.Catalog = Catalog{Maps: DefaultCatalog, DefaultPool: DefaultPool}
	if c.MapCatalogFile != "" {
		cat, err := LoadCatalog(c.MapCatalogFile)
		if err != nil {
			return err
		}
		c.Catalog = cat
	}
	if len(c.DefaultMapPool) > 0 {
		pool := make([]string, 0, len(c.DefaultMapPool))
		for _, m := range c.DefaultMapPool {
			if m = strings.TrimSpace(m); m != "" {
				pool = append(pool, m)
			}
		}
		c.Catalog.DefaultPool = pool
	}
	return nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.LobbyIdleTTL <= 0 {
		return fmt.Errorf("LOBBY_IDLE_TTL must be positive, got %s", c.LobbyIdleTTL)
	}
	if c.SessionIDLength < 4 {
		return fmt.Errorf("SESSION_ID_LENGTH must be at least 4, got %d", c.SessionIDLength)
	}
	for _, m := range c.Catalog.DefaultPool {
		if !c.Catalog.Allows(m) {
			return fmt.Errorf("default pool map %q is not in the catalog", m)
		}
	}
	return nil
}

// LoadCatalog reads a YAML map catalog:
//
//	maps: [Airport, CrossPort, ...]
//	default_pool: [CrossPort, ...]
func LoadCatalog(path string) (Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Catalog{}, fmt.Errorf("map catalog %s not found", path)
		}
		return Catalog{}, fmt.Errorf("read map catalog: %w", err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(b, &cat); err != nil {
		return Catalog{}, fmt.Errorf("parse map catalog %s: %w", path, err)
	}
	if len(cat.DefaultPool) == 0 {
		cat.DefaultPool = slices.Clone(cat.Maps)
	}
	return cat, nil
}
