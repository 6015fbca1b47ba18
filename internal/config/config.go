// Package config resolves dsein settings from flags, the environment, a .env
// file and built-in defaults, in that order.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config is the resolved configuration of a dsein process.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Store     StoreConfig
	Server    ServerConfig
	Auth      AuthConfig
	Invites   InvitesConfig
	Reconcile ReconcileConfig
	RateLimit RateLimitConfig
	Events    EventsConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	Driver        string // badger, sqlite or mongo (default: badger)
	DataPath      string // Directory for badger data, the sqlite file and the search index
	MongoURI      string // Required for the mongo driver; the server must be a replica set
	MongoDatabase string // default: dsein
	TxMaxAttempts int    // Conflict retries per transaction (default: 8)
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s); SSE routes are exempt
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
}

// AuthConfig describes how the gateway identifies callers.
type AuthConfig struct {
	// UserIDHeader carries the authenticated user id set by the gateway.
	UserIDHeader string
	// AdminUserIDs may call the admin routes.
	AdminUserIDs []string
}

// InvitesConfig holds invite ledger settings.
type InvitesConfig struct {
	DefaultQuota int           // Quota for new users; -1 means unlimited (default: 3)
	Expiry       time.Duration // Age after which unused codes are purged (default: 12h)
}

// ReconcileConfig schedules the counter repair job.
type ReconcileConfig struct {
	Interval time.Duration // 0 disables the job (default: 1h)
}

// RateLimitConfig limits mutating requests per user.
type RateLimitConfig struct {
	PerMinute int // 0 disables limiting (default: 120)
	Burst     int // default: 20
}

// EventsConfig enables cross-replica event fan-out.
type EventsConfig struct {
	RedisURL     string // Empty keeps events in-process
	RedisChannel string // default: dsein:events
}

var (
	environments = []string{"development", "staging", "production"}
	logLevels    = []string{"debug", "info", "warn", "error"}
)

// Validate reports the first setting that is missing or out of range.
func (c *Config) Validate() error {
	if !slices.Contains(environments, c.App.Environment) {
		return fmt.Errorf("invalid environment %q (must be one of %s)", c.App.Environment, strings.Join(environments, ", "))
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Logger.Level)) {
		return fmt.Errorf("invalid log level %q (must be one of %s)", c.Logger.Level, strings.Join(logLevels, ", "))
	}

	switch c.Store.Driver {
	case DriverBadger, DriverSQLite:
		if c.Store.DataPath == "" {
			return errors.New("DATA_PATH is required for local stores")
		}
	case DriverMongo:
		if c.Store.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo store")
		}
	default:
		return fmt.Errorf("invalid store driver %q (must be badger, sqlite or mongo)", c.Store.Driver)
	}

	switch {
	case c.Store.TxMaxAttempts < 1:
		return fmt.Errorf("STORE_TX_MAX_ATTEMPTS must be at least 1, got %d", c.Store.TxMaxAttempts)
	case c.Invites.DefaultQuota < -1:
		return fmt.Errorf("INVITES_DEFAULT_QUOTA must be -1 or more, got %d", c.Invites.DefaultQuota)
	case c.Invites.Expiry <= 0:
		return errors.New("INVITES_EXPIRY must be positive")
	case c.Reconcile.Interval < 0:
		return errors.New("RECONCILE_INTERVAL cannot be negative")
	case c.RateLimit.PerMinute < 0, c.RateLimit.Burst < 0:
		return errors.New("rate limit settings cannot be negative")
	case c.Auth.UserIDHeader == "":
		return errors.New("AUTH_USER_ID_HEADER cannot be empty")
	}
	return nil
}

// IsAdmin reports whether userID is listed in Auth.AdminUserIDs.
func (c *Config) IsAdmin(userID string) bool {
	return userID != "" && slices.Contains(c.Auth.AdminUserIDs, userID)
}
