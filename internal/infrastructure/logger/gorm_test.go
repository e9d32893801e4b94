package logger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var _ gormlogger.Interface = (*GormLogger)(nil)

func newObservedGormLogger(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), logs
}

func statement(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestNewGormLogger_Defaults(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Warn)

	assert.Equal(t, gormlogger.Warn, gl.logLevel)
	assert.Equal(t, defaultSlowThreshold, gl.slowThreshold)
	assert.Equal(t, defaultMaxSQLLength, gl.maxSQLLength)

	gl, _ = newObservedGormLogger(gormlogger.Info, WithSlowThreshold(time.Second), WithMaxSQLLength(0))
	assert.Equal(t, time.Second, gl.slowThreshold)
	assert.Zero(t, gl.maxSQLLength)
}

func TestGormLogger_LogMode(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Warn)

	silent := gl.LogMode(gormlogger.Silent).(*GormLogger)
	assert.Equal(t, gormlogger.Silent, silent.logLevel)
	assert.Equal(t, gormlogger.Warn, gl.logLevel)
}

func TestGormLogger_MessageLevels(t *testing.T) {
	gl, logs := newObservedGormLogger(gormlogger.Warn)
	ctx := context.Background()

	gl.Info(ctx, "migrated %d tables", 4)
	gl.Warn(ctx, "pool at %d%%", 90)
	gl.Error(ctx, "connection lost: %s", "eof")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "pool at 90%", entries[0].Message)
	assert.Equal(t, "connection lost: eof", entries[1].Message)
	assert.Equal(t, "gorm", entries[0].LoggerName)
}

func TestGormLogger_Trace(t *testing.T) {
	tests := []struct {
		name      string
		level     gormlogger.LogLevel
		elapsed   time.Duration
		err       error
		wantMsg   string
		wantLevel zapcore.Level
	}{
		{name: "error", level: gormlogger.Warn, err: errors.New("connection refused"), wantMsg: "SQL error", wantLevel: zapcore.ErrorLevel},
		{name: "record not found", level: gormlogger.Warn, err: gorm.ErrRecordNotFound, wantMsg: "SQL expected error", wantLevel: zapcore.DebugLevel},
		{name: "translated duplicate", level: gormlogger.Warn, err: gorm.ErrDuplicatedKey, wantMsg: "SQL expected error", wantLevel: zapcore.DebugLevel},
		{name: "raw postgres duplicate", level: gormlogger.Warn, err: errors.New(`pq: duplicate key value violates unique constraint "uq_return_claims_account_claim"`), wantMsg: "SQL expected error", wantLevel: zapcore.DebugLevel},
		{name: "slow query", level: gormlogger.Warn, elapsed: time.Second, wantMsg: "Slow SQL", wantLevel: zapcore.WarnLevel},
		{name: "normal query at info", level: gormlogger.Info, wantMsg: "SQL query", wantLevel: zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gl, logs := newObservedGormLogger(tt.level)

			gl.Trace(context.Background(), time.Now().Add(-tt.elapsed), statement("SELECT 1", 1), tt.err)

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantMsg, entries[0].Message)
			assert.Equal(t, tt.wantLevel, entries[0].Level)
			assert.Equal(t, "SELECT 1", entries[0].ContextMap()["sql"])
		})
	}
}

func TestGormLogger_Trace_Suppressed(t *testing.T) {
	t.Run("silent", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Silent)
		gl.Trace(context.Background(), time.Now(), statement("SELECT 1", 0), errors.New("boom"))
		assert.Zero(t, logs.Len())
	})
	t.Run("fast query below info", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Warn)
		gl.Trace(context.Background(), time.Now(), statement("SELECT 1", 0), nil)
		assert.Zero(t, logs.Len())
	})
	t.Run("slow threshold disabled", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Warn, WithSlowThreshold(0))
		gl.Trace(context.Background(), time.Now().Add(-time.Minute), statement("SELECT 1", 0), nil)
		assert.Zero(t, logs.Len())
	})
}

func TestGormLogger_Trace_CorrelationFields(t *testing.T) {
	gl, logs := newObservedGormLogger(gormlogger.Info)

	ctx, _ := WithRequestID(context.Background(), zap.NewNop(), "req-7")
	ctx, _ = WithAccountID(ctx, zap.NewNop(), "acc-1")
	ctx, _ = WithRunID(ctx, zap.NewNop(), "run-2")
	gl.Trace(ctx, time.Now(), statement("UPDATE return_claims SET buyer_info = ?", 1), nil)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-7", fields["request_id"])
	assert.Equal(t, "acc-1", fields["account_id"])
	assert.Equal(t, "run-2", fields["run_id"])
	assert.Equal(t, int64(1), fields["rows"])
}

func TestGormLogger_Trace_TruncatesLongSQL(t *testing.T) {
	gl, logs := newObservedGormLogger(gormlogger.Info, WithMaxSQLLength(16))

	gl.Trace(context.Background(), time.Now(), statement("INSERT INTO marketplace_shipments "+strings.Repeat("(?),", 100), 100), nil)

	sql := logs.All()[0].ContextMap()["sql"].(string)
	assert.Equal(t, "INSERT INTO mark...(truncated)", sql)
}

func TestMapGormLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"fatal", gormlogger.Error},
		{"warn", gormlogger.Warn},
		{"info", gormlogger.Info},
		{"DEBUG", gormlogger.Info},
		{"unknown", gormlogger.Warn},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapGormLogLevel(tt.input))
		})
	}
}
