package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxWalkDays     = 366
	DefaultDailyTasks      = 4
	DefaultRateLimitRPS    = 10
	DefaultRateLimitBurst  = 20
	DefaultRateLimitIdle   = 10 * time.Minute
	ScoreCachePostgres     = "postgres"
	ScoreCacheRedis        = "redis"
	ScoreCacheMemory       = "memory"
	QuestionSourceEmbedded = "embedded"
	QuestionSourcePostgres = "postgres"
)

type Config struct {
	Server struct {
		Port      string `yaml:"port"`
		RateLimit struct {
			// RPS is nil when unset; zero or negative disables limiting.
			RPS   *float64 `yaml:"rps"`
			Burst int      `yaml:"burst"`
			Idle  string   `yaml:"idle"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	QuestionSets struct {
		Source string `yaml:"source"`
		TTL    string `yaml:"ttl"`
	} `yaml:"question_sets"`
	Engine struct {
		MaxWalkDays       int    `yaml:"max_walk_days"`
		DefaultDailyTasks int    `yaml:"default_daily_tasks"`
		ScoreCache        string `yaml:"score_cache"`
	} `yaml:"engine"`
}

// Load reads YAML config from path. A missing file yields defaults so the
// service can run from environment variables alone.
func Load(path string) (Config, error) {
	cfg := Config{}
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
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment if one exists.
func LoadDotEnv(paths ...string) {
	// Missing .env files are normal outside local development.
	_ = godotenv.Load(paths...)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("LOG_MODE"); v != "" {
		c.Log.Mode = v
	}
}

func (c *Config) applyDefaults() {
	if c.Engine.MaxWalkDays <= 0 {
		c.Engine.MaxWalkDays = DefaultMaxWalkDays
	}
	if c.Engine.DefaultDailyTasks <= 0 {
		c.Engine.DefaultDailyTasks = DefaultDailyTasks
	}
	if c.Engine.ScoreCache == "" {
		switch {
		case c.Postgres.URL != "":
			c.Engine.ScoreCache = ScoreCachePostgres
		case c.Redis.Addr != "":
			c.Engine.ScoreCache = ScoreCacheRedis
		default:
			c.Engine.ScoreCache = ScoreCacheMemory
		}
	}
	if c.QuestionSets.Source == "" {
		c.QuestionSets.Source = QuestionSourceEmbedded
	}
	if c.Server.RateLimit.RPS == nil {
		rps := float64(DefaultRateLimitRPS)
		c.Server.RateLimit.RPS = &rps
	}
	if c.Server.RateLimit.Burst <= 0 {
		c.Server.RateLimit.Burst = DefaultRateLimitBurst
	}
}

// RateLimitRPS returns the configured request rate; non-positive means unlimited.
func (c Config) RateLimitRPS() float64 {
	if c.Server.RateLimit.RPS == nil {
		return DefaultRateLimitRPS
	}
	return *c.Server.RateLimit.RPS
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
