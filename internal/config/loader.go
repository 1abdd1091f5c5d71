package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/example/room-timetable/internal/application"
)

// Environment names understood by the logger setup.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures file and environment driven configuration for the timetable service.
type Config struct {
	Env          string       `yaml:"env" env:"TIMETABLE_ENV" env-default:"local"`
	HTTPServer   HTTPServer   `yaml:"http_server"`
	Storage      Storage      `yaml:"storage"`
	Booking      Booking      `yaml:"booking"`
	Jobs         Jobs         `yaml:"jobs"`
	Redis        Redis        `yaml:"redis"`
	Notification Notification `yaml:"notification"`
}

// HTTPServer configures the HTTP listener and its request guards.
type HTTPServer struct {
	Address         string        `yaml:"address" env:"TIMETABLE_HTTP_ADDRESS" env-default:"localhost:8080"`
	Timeout         time.Duration `yaml:"timeout" env:"TIMETABLE_HTTP_TIMEOUT" env-default:"4s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"TIMETABLE_HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"TIMETABLE_HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
	// RateLimit is the sustained number of write requests per second allowed
	// per client address; RateBurst bounds bursts.
	RateLimit float64       `yaml:"rate_limit" env:"TIMETABLE_HTTP_RATE_LIMIT" env-default:"5"`
	RateBurst int           `yaml:"rate_burst" env:"TIMETABLE_HTTP_RATE_BURST" env-default:"10"`
	CacheTTL  time.Duration `yaml:"cache_ttl" env:"TIMETABLE_HTTP_CACHE_TTL" env-default:"30s"`
}

// Storage selects and configures the persistence backend.
type Storage struct {
	Driver      string `yaml:"driver" env:"TIMETABLE_STORAGE_DRIVER" env-default:"sqlite"`
	SQLitePath  string `yaml:"sqlite_path" env:"TIMETABLE_SQLITE_PATH" env-default:"timetable.db"`
	PostgresDSN string `yaml:"postgres_dsn" env:"TIMETABLE_POSTGRES_DSN"`
}

// Booking holds the institutional booking rules.
type Booking struct {
	Timezone             string `yaml:"timezone" env:"TIMETABLE_TIMEZONE" env-default:"UTC"`
	OpensAt              string `yaml:"opens_at" env:"TIMETABLE_OPENS_AT" env-default:"07:30"`
	ClosesAt             string `yaml:"closes_at" env:"TIMETABLE_CLOSES_AT" env-default:"22:30"`
	AllowWeekendBookings bool   `yaml:"allow_weekend_bookings" env:"TIMETABLE_ALLOW_WEEKEND_BOOKINGS" env-default:"true"`
	UnmatchedOwnerPolicy string `yaml:"unmatched_template_owner_policy" env:"TIMETABLE_UNMATCHED_OWNER_POLICY" env-default:"assignToAdmin"`
}

// Jobs configures the periodic materialization run.
type Jobs struct {
	Enabled        bool          `yaml:"enabled" env:"TIMETABLE_JOBS_ENABLED" env-default:"true"`
	Interval       time.Duration `yaml:"interval" env:"TIMETABLE_JOBS_INTERVAL" env-default:"1h"`
	LookaheadWeeks int           `yaml:"lookahead_weeks" env:"TIMETABLE_LOOKAHEAD_WEEKS" env-default:"2"`
	LockTTL        time.Duration `yaml:"lock_ttl" env:"TIMETABLE_JOBS_LOCK_TTL" env-default:"10m"`
}

// Redis configures the optional distributed run lock. An empty address keeps
// the lock local to the process.
type Redis struct {
	Address string `yaml:"address" env:"TIMETABLE_REDIS_ADDRESS"`
}

// Notification sizes the asynchronous notifier.
type Notification struct {
	Workers   int `yaml:"workers" env:"TIMETABLE_NOTIFY_WORKERS" env-default:"2"`
	QueueSize int `yaml:"queue_size" env:"TIMETABLE_NOTIFY_QUEUE_SIZE" env-default:"100"`
}

// Load reads an optional .env file, then the YAML file named by
// TIMETABLE_CONFIG if set, then environment overrides, and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	var cfg Config
	if path := strings.TrimSpace(os.Getenv("TIMETABLE_CONFIG")); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid key at once.
func (c Config) Validate() error {
	invalid := make([]string, 0, 4)

	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		invalid = append(invalid, "TIMETABLE_ENV")
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			invalid = append(invalid, "TIMETABLE_SQLITE_PATH")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			invalid = append(invalid, "TIMETABLE_POSTGRES_DSN")
		}
	default:
		invalid = append(invalid, "TIMETABLE_STORAGE_DRIVER")
	}

	if _, err := c.Policy(); err != nil {
		var keyErr *keyError
		if errors.As(err, &keyErr) {
			invalid = append(invalid, keyErr.key)
		} else {
			return err
		}
	}

	if c.Jobs.Interval <= 0 {
		invalid = append(invalid, "TIMETABLE_JOBS_INTERVAL")
	}
	if c.HTTPServer.RateLimit <= 0 || c.HTTPServer.RateBurst <= 0 {
		invalid = append(invalid, "TIMETABLE_HTTP_RATE_LIMIT")
	}
	if c.Notification.Workers <= 0 || c.Notification.QueueSize <= 0 {
		invalid = append(invalid, "TIMETABLE_NOTIFY_WORKERS")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}
	return nil
}

type keyError struct {
	key string
	err error
}

func (e *keyError) Error() string { return e.key + ": " + e.err.Error() }
func (e *keyError) Unwrap() error { return e.err }

// Policy converts the booking and job settings into engine rules.
func (c Config) Policy() (application.Policy, error) {
	location, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return application.Policy{}, &keyError{key: "TIMETABLE_TIMEZONE", err: err}
	}
	opens, err := application.ParseClock(c.Booking.OpensAt)
	if err != nil {
		return application.Policy{}, &keyError{key: "TIMETABLE_OPENS_AT", err: err}
	}
	closes, err := application.ParseClock(c.Booking.ClosesAt)
	if err != nil {
		return application.Policy{}, &keyError{key: "TIMETABLE_CLOSES_AT", err: err}
	}
	if closes <= opens {
		return application.Policy{}, &keyError{key: "TIMETABLE_CLOSES_AT", err: errors.New("closing time must be after opening time")}
	}
	ownerPolicy, err := application.ParseUnmatchedOwnerPolicy(c.Booking.UnmatchedOwnerPolicy)
	if err != nil {
		return application.Policy{}, &keyError{key: "TIMETABLE_UNMATCHED_OWNER_POLICY", err: err}
	}
	if c.Jobs.LookaheadWeeks < 1 {
		return application.Policy{}, &keyError{key: "TIMETABLE_LOOKAHEAD_WEEKS", err: errors.New("must be at least 1")}
	}

	return application.Policy{
		Location:             location,
		OpensAt:              opens,
		ClosesAt:             closes,
		AllowWeekendBookings: c.Booking.AllowWeekendBookings,
		UnmatchedOwnerPolicy: ownerPolicy,
		LookaheadWeeks:       c.Jobs.LookaheadWeeks,
	}, nil
}
