package config

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// managedEnv lists every variable these tests touch. Empty values are ignored by viper.
var managedEnv = []string{
	"CLAIMSYNC_APP_NAME",
	"CLAIMSYNC_APP_ENV",
	"CLAIMSYNC_APP_PORT",
	"CLAIMSYNC_DATABASE_HOST",
	"CLAIMSYNC_DATABASE_PORT",
	"CLAIMSYNC_DATABASE_PASSWORD",
	"CLAIMSYNC_DATABASE_SSLMODE",
	"CLAIMSYNC_DATABASE_MAX_OPEN_CONNS",
	"CLAIMSYNC_DATABASE_MAX_IDLE_CONNS",
	"CLAIMSYNC_AUTH_ENABLED",
	"CLAIMSYNC_AUTH_SECRET",
	"CLAIMSYNC_MARKETPLACE_CLIENT_ID",
	"CLAIMSYNC_MARKETPLACE_CLIENT_SECRET",
	"CLAIMSYNC_MARKETPLACE_PAGE_SIZE",
	"CLAIMSYNC_MARKETPLACE_PAGE_DELAY",
	"CLAIMSYNC_CREDENTIALS_ENCRYPTION_KEY",
	"CLAIMSYNC_SCHEDULER_ENABLED",
	"CLAIMSYNC_SCHEDULER_ACCOUNTS",
	"CLAIMSYNC_SHIPMENTS_TTL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managedEnv {
		t.Setenv(k, "")
	}
}

var validKey = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", credentialKeySize)))

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "claimsync", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "claimsync", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)

		assert.Equal(t, 50, cfg.Marketplace.PageSize)
		assert.Equal(t, 200*time.Millisecond, cfg.Marketplace.PageDelay)
		assert.Equal(t, 3, cfg.Marketplace.RetryAttempts)
		assert.Equal(t, 500*time.Millisecond, cfg.Marketplace.RetryBaseDelay)
		assert.Equal(t, 30*24*time.Hour, cfg.Marketplace.DefaultWindow)

		assert.Equal(t, 50, cfg.Enrichment.DefaultLimit)
		assert.Equal(t, 300*time.Millisecond, cfg.Enrichment.RecordDelay)

		assert.Equal(t, 15*time.Minute, cfg.Shipments.TTL)
		assert.Equal(t, 10, cfg.Shipments.MaxPages)
		assert.Equal(t, 5, cfg.Shipments.DetailConcurrency)

		assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
		assert.Equal(t, 2, cfg.Scheduler.Workers)
		assert.Equal(t, "claimsync", cfg.Auth.Audience)
	})

	t.Run("loads values from environment variables with CLAIMSYNC prefix", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CLAIMSYNC_APP_PORT", "9000")
		t.Setenv("CLAIMSYNC_DATABASE_HOST", "db.internal")
		t.Setenv("CLAIMSYNC_MARKETPLACE_PAGE_SIZE", "100")
		t.Setenv("CLAIMSYNC_MARKETPLACE_PAGE_DELAY", "1s")
		t.Setenv("CLAIMSYNC_SHIPMENTS_TTL", "5m")
		t.Setenv("CLAIMSYNC_SCHEDULER_ENABLED", "true")
		t.Setenv("CLAIMSYNC_SCHEDULER_ACCOUNTS", "acc-1 acc-2")
		t.Setenv("CLAIMSYNC_CREDENTIALS_ENCRYPTION_KEY", validKey)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 100, cfg.Marketplace.PageSize)
		assert.Equal(t, time.Second, cfg.Marketplace.PageDelay)
		assert.Equal(t, 5*time.Minute, cfg.Shipments.TTL)
		assert.Equal(t, []string{"acc-1", "acc-2"}, cfg.Scheduler.Accounts)

		key, err := cfg.Credentials.Key()
		require.NoError(t, err)
		assert.Len(t, key, credentialKeySize)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CLAIMSYNC_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("CLAIMSYNC_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects oversized page size", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CLAIMSYNC_MARKETPLACE_PAGE_SIZE", "500")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "marketplace.page_size")
	})

	t.Run("enabled scheduler needs accounts", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CLAIMSYNC_SCHEDULER_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scheduler.accounts")
	})

	t.Run("rejects short credential key", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CLAIMSYNC_CREDENTIALS_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString([]byte("short")))

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must decode to 32 bytes")
	})

	t.Run("rejects non-base64 credential key", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CLAIMSYNC_CREDENTIALS_ENCRYPTION_KEY", "not base64!")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not valid base64")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CLAIMSYNC_APP_ENV", "production")
		t.Setenv("CLAIMSYNC_DATABASE_PASSWORD", "secure-password")
		t.Setenv("CLAIMSYNC_DATABASE_SSLMODE", "require")
		t.Setenv("CLAIMSYNC_AUTH_ENABLED", "true")
		t.Setenv("CLAIMSYNC_AUTH_SECRET", "this-is-a-very-secure-service-secret-32")
		t.Setenv("CLAIMSYNC_MARKETPLACE_CLIENT_ID", "client")
		t.Setenv("CLAIMSYNC_MARKETPLACE_CLIENT_SECRET", "secret")
		t.Setenv("CLAIMSYNC_CREDENTIALS_ENCRYPTION_KEY", validKey)
	}

	tests := []struct {
		name    string
		mutate  func(t *testing.T)
		wantErr string
	}{
		{
			name:   "passes with valid production config",
			mutate: func(t *testing.T) {},
		},
		{
			name:    "requires database.password",
			mutate:  func(t *testing.T) { t.Setenv("CLAIMSYNC_DATABASE_PASSWORD", "") },
			wantErr: "database.password is required in production",
		},
		{
			name:    "requires SSL",
			mutate:  func(t *testing.T) { t.Setenv("CLAIMSYNC_DATABASE_SSLMODE", "disable") },
			wantErr: "database.sslmode cannot be 'disable' in production",
		},
		{
			name:    "requires credential key",
			mutate:  func(t *testing.T) { t.Setenv("CLAIMSYNC_CREDENTIALS_ENCRYPTION_KEY", "") },
			wantErr: "credentials.encryption_key is required in production",
		},
		{
			name:    "requires marketplace client",
			mutate:  func(t *testing.T) { t.Setenv("CLAIMSYNC_MARKETPLACE_CLIENT_SECRET", "") },
			wantErr: "marketplace.client_id and marketplace.client_secret are required",
		},
		{
			name:    "requires service auth",
			mutate:  func(t *testing.T) { t.Setenv("CLAIMSYNC_AUTH_ENABLED", "false") },
			wantErr: "auth.enabled must be true in production",
		},
		{
			name:    "requires long auth secret",
			mutate:  func(t *testing.T) { t.Setenv("CLAIMSYNC_AUTH_SECRET", "short") },
			wantErr: "auth.secret must be at least 32 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setValidProductionBase(t)
			tt.mutate(t)

			cfg, err := Load()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "production", cfg.App.Env)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "/testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
