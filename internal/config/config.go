package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Game GameConfig `yaml:"game"`
}

// GameConfig tunes live games.
type GameConfig struct {
	LeaderboardSize  int    `yaml:"leaderboard_size"`
	DefaultTimeLimit int    `yaml:"default_time_limit"`
	AnswerGrace      string `yaml:"answer_grace"`
	// Retention is how long game, player and leaderboard documents live in Redis.
	Retention  string `yaml:"retention"`
	AutoFinish *bool  `yaml:"auto_finish"`
}

// Defaults returns the configuration used when no file sets a value.
func Defaults() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Game.LeaderboardSize = 20
	cfg.Game.DefaultTimeLimit = 20
	cfg.Game.AnswerGrace = "2s"
	cfg.Game.Retention = "2h"
	return cfg
}

// Load reads an optional .env file, then YAML config from path, then env overrides.
// A missing YAML file is not an error; the defaults and environment apply.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		cfg.Postgres.URL = v
	}
}

// AutoFinishEnabled reports whether questions close on their own; defaults to true.
func (g GameConfig) AutoFinishEnabled() bool {
	return g.AutoFinish == nil || *g.AutoFinish
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
