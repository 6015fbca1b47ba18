package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// setting binds one flag and one environment variable to a Config field.
type setting struct {
	flag  string
	env   string
	def   string
	usage string
	apply func(string) error
}

func settings(c *Config) []setting {
	return []setting{
		{"env", "ENV", "development", "Environment (development, staging, production)", text(&c.App.Environment)},
		{"log-level", "LOG_LEVEL", "info", "Log level (debug, info, warn, error)", text(&c.Logger.Level)},

		{"store", "STORE_DRIVER", DriverBadger, "Storage backend: badger, sqlite or mongo", lower(&c.Store.Driver)},
		{"data-path", "DATA_PATH", "", "Directory for local data (default: ~/dsein/data)", text(&c.Store.DataPath)},
		{"mongo-uri", "MONGO_URI", "", "MongoDB connection string; the server must be a replica set", text(&c.Store.MongoURI)},
		{"mongo-database", "MONGO_DATABASE", "dsein", "MongoDB database name", text(&c.Store.MongoDatabase)},
		{"tx-max-attempts", "STORE_TX_MAX_ATTEMPTS", "8", "Attempts per conflicting transaction", integer(&c.Store.TxMaxAttempts)},

		{"port", "SERVER_PORT", "8080", "Server port", text(&c.Server.Port)},
		{"read-timeout", "SERVER_READ_TIMEOUT", "15s", "HTTP read timeout", duration(&c.Server.ReadTimeout)},
		{"write-timeout", "SERVER_WRITE_TIMEOUT", "15s", "HTTP write timeout", duration(&c.Server.WriteTimeout)},
		{"idle-timeout", "SERVER_IDLE_TIMEOUT", "60s", "HTTP idle timeout", duration(&c.Server.IdleTimeout)},

		{"user-id-header", "AUTH_USER_ID_HEADER", "X-User-ID", "Header carrying the authenticated user id", text(&c.Auth.UserIDHeader)},
		{"admin-user-ids", "AUTH_ADMIN_USER_IDS", "", "Comma-separated user ids allowed to call admin routes", list(&c.Auth.AdminUserIDs)},

		{"invite-quota", "INVITES_DEFAULT_QUOTA", "3", "Invites granted to new users, -1 for unlimited", integer(&c.Invites.DefaultQuota)},
		{"invite-expiry", "INVITES_EXPIRY", "12h", "Age after which unused invites are purged", duration(&c.Invites.Expiry)},
		{"reconcile-interval", "RECONCILE_INTERVAL", "1h", "Counter reconciliation interval, 0 to disable", duration(&c.Reconcile.Interval)},
		{"rate-limit", "RATE_LIMIT_PER_MINUTE", "120", "Mutating requests per user per minute, 0 to disable", integer(&c.RateLimit.PerMinute)},
		{"rate-burst", "RATE_LIMIT_BURST", "20", "Rate limit burst", integer(&c.RateLimit.Burst)},

		{"redis-url", "REDIS_URL", "", "Redis URL for cross-replica events", text(&c.Events.RedisURL)},
		{"redis-channel", "REDIS_CHANNEL", "dsein:events", "Redis pub/sub channel", text(&c.Events.RedisChannel)},
	}
}

// LoadConfig is Load over the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load resolves every setting from, highest first: args, the environment,
// the .env file named by -env-file, the built-in default.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	all := settings(cfg)

	fs := flag.NewFlagSet("dsein", flag.ContinueOnError)
	given := make([]*string, len(all))
	for i, s := range all {
		usage := s.usage
		if s.def != "" {
			usage += " (default: " + s.def + ")"
		}
		given[i] = fs.String(s.flag, "", usage)
	}
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", *envFile, err)
	}

	for i, s := range all {
		raw := resolve(*given[i], s.env, s.def)
		if err := s.apply(raw); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", s.env, raw, err)
		}
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// resolve returns the flag value, else the environment value, else def.
func resolve(flagValue, envKey, def string) string {
	if flagValue != "" {
		return flagValue
	}
	if v, ok := os.LookupEnv(envKey); ok && v != "" {
		return v
	}
	return def
}

func text(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func lower(dst *string) func(string) error {
	return func(v string) error {
		*dst = strings.ToLower(v)
		return nil
	}
}

func integer(dst *int) func(string) error {
	return func(v string) (err error) {
		*dst, err = strconv.Atoi(strings.TrimSpace(v))
		return err
	}
}

func duration(dst *time.Duration) func(string) error {
	return func(v string) (err error) {
		*dst, err = time.ParseDuration(v)
		return err
	}
}

// list splits a comma-separated value, dropping empty items.
func list(dst *[]string) func(string) error {
	return func(v string) error {
		*dst = nil
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				*dst = append(*dst, item)
			}
		}
		return nil
	}
}

// expandDataPath resolves ~ and relative paths, defaulting to ~/dsein/data.
func (c *Config) expandDataPath() error {
	if c.Store.DataPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		c.Store.DataPath = filepath.Join(home, "dsein", "data")
		return nil
	}
	p, err := expandPath(c.Store.DataPath, "")
	if err != nil {
		return err
	}
	c.Store.DataPath = p
	return nil
}

// expandPath turns path into a clean absolute path, resolving a leading ~/.
// An empty path yields def unchanged.
func expandPath(path, def string) (string, error) {
	if path == "" {
		return def, nil
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, rest)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return abs, nil
}
