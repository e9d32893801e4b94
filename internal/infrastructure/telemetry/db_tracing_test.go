package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type tracedClaim struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:100"`
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedClaim{}))
	return db
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()
	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "postgresql", cfg.DBSystem)
}

func TestNewDBTracingPlugin_DefaultsThreshold(t *testing.T) {
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, zap.NewNop())
	assert.Equal(t, 200*time.Millisecond, p.config.SlowQueryThresh)
}

func TestDBTracingPlugin_RegisterDisabled(t *testing.T) {
	db := setupTestDB(t)
	p := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())

	require.NoError(t, p.Register(db))
	assert.Nil(t, db.Callback().Create().Get("otel_timing:before_create"))
}

func TestDBTracingPlugin_RegisterEnabled(t *testing.T) {
	db := setupTestDB(t)
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true, DBSystem: "sqlite"}, zap.NewNop())

	require.NoError(t, p.Register(db))
	assert.NotNil(t, db.Callback().Create().Get("otel_timing:before_create"))
	assert.NotNil(t, db.Callback().Query().Get("otel_timing:after_query"))

	require.NoError(t, db.Create(&tracedClaim{Name: "claim"}).Error)
	var got tracedClaim
	require.NoError(t, db.First(&got).Error)
	assert.Equal(t, "claim", got.Name)
}

func TestDBTracingPlugin_After(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true, SlowQueryThresh: 50 * time.Millisecond}, zap.NewNop())
	db := setupTestDB(t)

	run := func(start time.Time, err error) sdktrace.ReadOnlySpan {
		ctx, span := tp.Tracer("test").Start(context.Background(), "db")
		ctx = context.WithValue(ctx, queryStartKey{}, start)
		tx := db.WithContext(ctx)
		tx.Statement.Table = "return_claims"
		tx.Statement.RowsAffected = 3
		tx.Error = err
		p.after(tx)
		span.End()
		ended := sr.Ended()
		return ended[len(ended)-1]
	}

	t.Run("fast query", func(t *testing.T) {
		span := run(time.Now(), nil)
		attrs := attrMap(span.Attributes())
		assert.Equal(t, "return_claims", attrs["db.sql.table"])
		assert.Equal(t, "3", attrs["db.rows_affected"])
		assert.NotContains(t, attrs, "db.slow_query")
		assert.Equal(t, codes.Unset, span.Status().Code)
	})

	t.Run("slow query", func(t *testing.T) {
		span := run(time.Now().Add(-time.Second), nil)
		assert.Equal(t, "true", attrMap(span.Attributes())["db.slow_query"])
		require.Len(t, span.Events(), 1)
		assert.Equal(t, "slow_query_warning", span.Events()[0].Name)
	})

	t.Run("record not found is not an error", func(t *testing.T) {
		span := run(time.Now(), gorm.ErrRecordNotFound)
		assert.Equal(t, codes.Unset, span.Status().Code)
	})

	t.Run("error marks span", func(t *testing.T) {
		span := run(time.Now(), errors.New("deadlock detected"))
		assert.Equal(t, codes.Error, span.Status().Code)
		assert.Equal(t, "deadlock detected", span.Status().Description)
	})
}
