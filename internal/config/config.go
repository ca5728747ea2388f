package config

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN           string `yaml:"dsn"`
		MigrationsDir string `yaml:"migrations_dir"`
	} `yaml:"db"`
	Facilitator struct {
		URL            string `yaml:"url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"facilitator"`
	Payments struct {
		Network       string `yaml:"network"`
		Asset         string `yaml:"asset"`
		FallbackPayTo string `yaml:"fallback_pay_to"`
		DefaultPrice  string `yaml:"default_price"`
		Scheme        string `yaml:"scheme"`
	} `yaml:"payments"`
	Rooms struct {
		URL       string `yaml:"url"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
	} `yaml:"rooms"`
	Tokens struct {
		APITokenTTLMinutes  int `yaml:"api_token_ttl_minutes"`
		RoomTokenTTLMinutes int `yaml:"room_token_ttl_minutes"`
	} `yaml:"tokens"`
	Feed struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"feed"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.Facilitator.URL == "" {
		return nil, errors.New("facilitator.url is required")
	}
	if cfg.Rooms.APIKey == "" || cfg.Rooms.APISecret == "" {
		return nil, errors.New("rooms credentials are incomplete")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DB.MigrationsDir == "" {
		cfg.DB.MigrationsDir = "migrations"
	}
	if cfg.Payments.Scheme == "" {
		cfg.Payments.Scheme = "exact"
	}
	if cfg.Payments.Asset == "" {
		cfg.Payments.Asset = "USDC"
	}
	if cfg.Payments.DefaultPrice == "" {
		cfg.Payments.DefaultPrice = "1.00"
	}
	if cfg.Facilitator.TimeoutSeconds <= 0 {
		cfg.Facilitator.TimeoutSeconds = 10
	}
	if cfg.Tokens.APITokenTTLMinutes <= 0 {
		cfg.Tokens.APITokenTTLMinutes = 60
	}
	if cfg.Tokens.RoomTokenTTLMinutes <= 0 {
		cfg.Tokens.RoomTokenTTLMinutes = 240
	}
	if cfg.Feed.IntervalSeconds <= 0 {
		cfg.Feed.IntervalSeconds = 5
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("DB_MIGRATIONS_DIR"); v != "" {
		cfg.DB.MigrationsDir = v
	}
	if v := os.Getenv("FACILITATOR_URL"); v != "" {
		cfg.Facilitator.URL = v
	}
	if v := os.Getenv("FACILITATOR_TIMEOUT_SECONDS"); v != "" {
		cfg.Facilitator.TimeoutSeconds = atoiOr(cfg.Facilitator.TimeoutSeconds, v)
	}
	if v := os.Getenv("PAYMENT_NETWORK"); v != "" {
		cfg.Payments.Network = v
	}
	if v := os.Getenv("PAYMENT_ASSET"); v != "" {
		cfg.Payments.Asset = v
	}
	if v := os.Getenv("FALLBACK_PAY_TO"); v != "" {
		cfg.Payments.FallbackPayTo = v
	}
	if v := os.Getenv("DEFAULT_PRICE"); v != "" {
		cfg.Payments.DefaultPrice = v
	}
	if v := os.Getenv("ROOMS_URL"); v != "" {
		cfg.Rooms.URL = v
	}
	if v := os.Getenv("ROOMS_API_KEY"); v != "" {
		cfg.Rooms.APIKey = v
	}
	if v := os.Getenv("ROOMS_API_SECRET"); v != "" {
		cfg.Rooms.APISecret = v
	}
	if v := os.Getenv("API_TOKEN_TTL_MINUTES"); v != "" {
		cfg.Tokens.APITokenTTLMinutes = atoiOr(cfg.Tokens.APITokenTTLMinutes, v)
	}
	if v := os.Getenv("ROOM_TOKEN_TTL_MINUTES"); v != "" {
		cfg.Tokens.RoomTokenTTLMinutes = atoiOr(cfg.Tokens.RoomTokenTTLMinutes, v)
	}
	if v := os.Getenv("FEED_INTERVAL_SECONDS"); v != "" {
		cfg.Feed.IntervalSeconds = atoiOr(cfg.Feed.IntervalSeconds, v)
	}
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
