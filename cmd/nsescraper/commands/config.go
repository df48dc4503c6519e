package commands

import (
	"fmt"

	"nsemarket-backend/internal/scrapers/stockanalysis"
	"nsemarket-backend/internal/store"
	"nsemarket-backend/lib/configutil"
)

type FetchConfig struct {
	// Mode is "http" or "browser", browser renders the listing page in
	// headless chrome while screener requests stay on plain http.
	Mode              string  `json:"mode"`
	UserAgent         string  `json:"user_agent"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
	ChromePath        string  `json:"chrome_path"`
	// DumpDir keeps a transcript of every http exchange, the saved pages
	// can be fed to the parse command.
	DumpDir string `json:"dump_dir"`
}

type CacheConfig struct {
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	// TTLSeconds of 0 disables caching, without a redis address responses
	// are cached in memory.
	TTLSeconds int `json:"ttl_seconds"`
}

type ServeConfig struct {
	Port           int      `json:"port"`
	AccessToken    string   `json:"access_token"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type Config struct {
	StartURL        string       `json:"start_url"`
	ScreenerAPIBase string       `json:"screener_api_base"`
	Timezone        string       `json:"timezone"`
	Fetch           FetchConfig  `json:"fetch"`
	Cache           CacheConfig  `json:"cache"`
	Store           store.Config `json:"store"`
	Schedule        string       `json:"schedule"`
	LogLevel        string       `json:"log_level"`
	LogJSON         bool         `json:"log_json"`
	Serve           ServeConfig  `json:"serve"`
}

func DefaultConfig() Config {
	return Config{
		StartURL:        stockanalysis.DefaultStartURL,
		ScreenerAPIBase: stockanalysis.DefaultScreenerAPIBase,
		Timezone:        "Africa/Nairobi",
		Fetch: FetchConfig{
			Mode:              "http",
			TimeoutSeconds:    30,
			RequestsPerSecond: 2,
			Burst:             2,
		},
		Store: store.Config{
			Backend:    store.BackendSQLite,
			SQLitePath: "nsemarket.db",
		},
		// every 30 minutes while the exchange is open
		Schedule: "*/30 9-15 * * 1-5",
		LogLevel: "info",
		Serve: ServeConfig{
			Port: 8080,
		},
	}
}

func applyEnv(env *configutil.EnvOverrides, config *Config) {
	env.String("START_URL", &config.StartURL)
	env.String("SCREENER_API_BASE", &config.ScreenerAPIBase)
	env.String("TIMEZONE", &config.Timezone)
	env.String("FETCH_MODE", &config.Fetch.Mode)
	env.String("USER_AGENT", &config.Fetch.UserAgent)
	env.Int("FETCH_TIMEOUT_SECONDS", &config.Fetch.TimeoutSeconds)
	env.Float("REQUESTS_PER_SECOND", &config.Fetch.RequestsPerSecond)
	env.String("CHROME_PATH", &config.Fetch.ChromePath)
	env.String("DUMP_DIR", &config.Fetch.DumpDir)
	env.String("REDIS_ADDR", &config.Cache.RedisAddr)
	env.String("REDIS_PASSWORD", &config.Cache.RedisPassword)
	env.Int("REDIS_DB", &config.Cache.RedisDB)
	env.Int("CACHE_TTL_SECONDS", &config.Cache.TTLSeconds)
	env.String("STORE_BACKEND", &config.Store.Backend)
	env.String("SQLITE_PATH", &config.Store.SQLitePath)
	env.String("LIBSQL_URL", &config.Store.LibsqlURL)
	env.String("LIBSQL_AUTH_TOKEN", &config.Store.LibsqlAuthToken)
	env.String("POSTGRES_DSN", &config.Store.PostgresDSN)
	env.String("SCHEDULE", &config.Schedule)
	env.String("LOG_LEVEL", &config.LogLevel)
	env.Bool("LOG_JSON", &config.LogJSON)
	env.Int("PORT", &config.Serve.Port)
	env.String("ACCESS_TOKEN", &config.Serve.AccessToken)
}

// LoadConfig reads path (plus its .local override), fills whatever it leaves
// out with DefaultConfig and applies NSE_* environment variables, .env is
// loaded first. A missing file is only an error when explicit is set.
func LoadConfig(path string, explicit bool) (Config, error) {
	opts := []configutil.Option[Config]{
		configutil.WithDotenv[Config](),
		configutil.WithDefaults(DefaultConfig()),
		configutil.WithEnv("NSE_", applyEnv),
	}
	if !explicit {
		opts = append(opts, configutil.AllowMissing[Config]())
	}

	config, err := configutil.ReadConfig[Config](path, opts...)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return config, nil
}
