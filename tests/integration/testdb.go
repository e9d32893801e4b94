// Package integration runs the persistence layer against a real PostgreSQL
// started with testcontainers. The schema comes from the embedded migrations.
package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/erp/claimsync/internal/infrastructure/config"
	"github.com/erp/claimsync/internal/infrastructure/migration"
	"github.com/erp/claimsync/internal/infrastructure/persistence"
)

// pipelineTables are truncated between tests; schema_migrations is kept.
var pipelineTables = []string{
	"return_claims",
	"sync_runs",
	"marketplace_shipments",
	"marketplace_credentials",
}

// postgresServer is the package-wide container, started and migrated once.
var postgresServer struct {
	mu        sync.Mutex
	container *tcpostgres.PostgresContainer
	cfg       config.DatabaseConfig
}

// TestDB is a connection to the shared container opened the way the service opens it.
type TestDB struct {
	DB *gorm.DB
	t  *testing.T
}

// NewSharedTestDB connects to the shared PostgreSQL container, starting and
// migrating it on first use. Skipped with -short.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := startPostgres(t)
	db, err := persistence.Open(context.Background(), &cfg)
	require.NoError(t, err, "Failed to connect to database")
	t.Cleanup(func() { _ = db.Close() })

	return &TestDB{DB: db.DB, t: t}
}

func startPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()
	postgresServer.mu.Lock()
	defer postgresServer.mu.Unlock()

	if postgresServer.container != nil {
		return postgresServer.cfg
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("claimsync_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "postgres",
		Password:        "postgres",
		DBName:          "claimsync_test",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5,
	}

	db, err := persistence.Open(ctx, &cfg)
	require.NoError(t, err, "Failed to connect to database")
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	m, err := migration.New(sqlDB, migration.Config{}, nil)
	require.NoError(t, err, "Failed to create migrator")
	require.NoError(t, m.Up(), "Failed to run migrations")
	_ = db.Close()

	postgresServer.container = container
	postgresServer.cfg = cfg
	return cfg
}

// CleanTables empties the pipeline tables.
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()
	for _, table := range pipelineTables {
		require.NoError(tdb.t, tdb.DB.Exec("TRUNCATE TABLE "+table+" CASCADE").Error, "Failed to truncate %s", table)
	}
}

// CleanupSharedContainer terminates the shared container; TestMain calls it.
func CleanupSharedContainer() {
	postgresServer.mu.Lock()
	defer postgresServer.mu.Unlock()

	if postgresServer.container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = postgresServer.container.Terminate(ctx)
	postgresServer.container = nil
}
