package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:     AppConfig{Environment: "development"},
		Logger:  LoggerConfig{Level: "info"},
		Store:   StoreConfig{Driver: DriverBadger, DataPath: "/some/path", TxMaxAttempts: 8},
		Auth:    AuthConfig{UserIDHeader: "X-User-ID"},
		Invites: InvitesConfig{DefaultQuota: 3, Expiry: 12 * time.Hour},
	}
}

// noEnvFile points Load at a file that does not exist.
func noEnvFile(t *testing.T) string {
	return "-env-file=" + filepath.Join(t.TempDir(), "missing.env")
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_Store(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		valid  bool
	}{
		{"sqlite", func(c *Config) { c.Store.Driver = DriverSQLite }, true},
		{"mongo without uri", func(c *Config) { c.Store.Driver = DriverMongo }, false},
		{"mongo with uri", func(c *Config) {
			c.Store.Driver = DriverMongo
			c.Store.MongoURI = "mongodb://localhost:27017/?replicaSet=rs0"
		}, true},
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }, false},
		{"empty data path", func(c *Config) { c.Store.DataPath = "" }, false},
		{"zero attempts", func(c *Config) { c.Store.TxMaxAttempts = 0 }, false},
		{"unlimited quota", func(c *Config) { c.Invites.DefaultQuota = -1 }, true},
		{"negative quota", func(c *Config) { c.Invites.DefaultQuota = -2 }, false},
		{"zero expiry", func(c *Config) { c.Invites.Expiry = 0 }, false},
		{"negative rate", func(c *Config) { c.RateLimit.PerMinute = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]string{noEnvFile(t)})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, DriverBadger, cfg.Store.Driver)
	assert.True(t, filepath.IsAbs(cfg.Store.DataPath))
	assert.Equal(t, 8, cfg.Store.TxMaxAttempts)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "X-User-ID", cfg.Auth.UserIDHeader)
	assert.Equal(t, 3, cfg.Invites.DefaultQuota)
	assert.Equal(t, 12*time.Hour, cfg.Invites.Expiry)
	assert.Equal(t, time.Hour, cfg.Reconcile.Interval)
	assert.Equal(t, 120, cfg.RateLimit.PerMinute)
	assert.Equal(t, "dsein:events", cfg.Events.RedisChannel)
}

func TestLoad_Precedence(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"# comment\nSERVER_PORT=7000\nINVITES_DEFAULT_QUOTA=5\nAUTH_ADMIN_USER_IDS=root, ops-1 ,\n",
	), 0o600))
	t.Cleanup(func() {
		for _, k := range []string{"SERVER_PORT", "INVITES_DEFAULT_QUOTA", "AUTH_ADMIN_USER_IDS"} {
			_ = os.Unsetenv(k)
		}
	})

	// Environment beats the .env file.
	t.Setenv("INVITES_DEFAULT_QUOTA", "-1")

	cfg, err := Load([]string{"-env-file=" + envFile, "-port=9000"})
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, -1, cfg.Invites.DefaultQuota)
	assert.Equal(t, []string{"root", "ops-1"}, cfg.Auth.AdminUserIDs)
	assert.True(t, cfg.IsAdmin("ops-1"))
	assert.False(t, cfg.IsAdmin("someone"))
	assert.False(t, cfg.IsAdmin(""))
}

func TestLoad_InvalidValues(t *testing.T) {
	_, err := Load([]string{noEnvFile(t), "-invite-expiry=soon"})
	assert.Error(t, err)

	_, err = Load([]string{noEnvFile(t), "-rate-limit=lots"})
	assert.Error(t, err)

	_, err = Load([]string{noEnvFile(t), "-store=postgres"})
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("~/dsein/data", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(homeDir, "dsein", "data"), got)

	got, err = expandPath("", "/default")
	require.NoError(t, err)
	assert.Equal(t, "/default", got)

	got, err = expandPath("relative/dir", "")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestResolve_Precedence(t *testing.T) {
	t.Setenv("DSEIN_TEST_KEY", "from-env")

	assert.Equal(t, "from-flag", resolve("from-flag", "DSEIN_TEST_KEY", "default"))
	assert.Equal(t, "from-env", resolve("", "DSEIN_TEST_KEY", "default"))
	assert.Equal(t, "default", resolve("", "DSEIN_TEST_UNSET", "default"))
}

func TestSettings_UniqueNames(t *testing.T) {
	flags := map[string]bool{"env-file": true}
	envs := map[string]bool{}
	for _, s := range settings(&Config{}) {
		assert.False(t, flags[s.flag], "duplicate flag %s", s.flag)
		assert.False(t, envs[s.env], "duplicate env %s", s.env)
		flags[s.flag], envs[s.env] = true, true
	}
}

func TestLoad_StoreDriverIsCaseInsensitive(t *testing.T) {
	cfg, err := Load([]string{noEnvFile(t), "-store=SQLite", "-data-path=" + t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
}
