package telemetry

import (
	"context"
	"runtime/pprof"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewProfiler_Disabled(t *testing.T) {
	p, err := NewProfiler(ProfilerConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestNewProfiler_Validation(t *testing.T) {
	_, err := NewProfiler(ProfilerConfig{Enabled: true, ApplicationName: "claimsync"}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "server address")

	_, err = NewProfiler(ProfilerConfig{Enabled: true, ServerAddress: "http://pyroscope:4040"}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "application name")
}

func TestSanitizeLabels(t *testing.T) {
	long := strings.Repeat("x", MaxLabelValueLength+10)
	got := sanitizeLabels(map[string]string{
		"operation":  "sync",
		"Account-ID": "acc-1",
		"run_id":     "run-1",
		"mode":       "",
		"!!":         "dropped",
		"region":     long,
	})

	assert.Equal(t, []string{
		"account_id", "acc-1",
		"operation", "sync",
		"region", long[:MaxLabelValueLength],
	}, got)
	assert.Empty(t, sanitizeLabels(nil))
}

func TestOperationLabels(t *testing.T) {
	extra := map[string]string{ProfilingLabelMode: "incremental", ProfilingLabelOperation: "other"}
	labels := OperationLabels("sync", extra)

	assert.Equal(t, "sync", labels[ProfilingLabelOperation])
	assert.Equal(t, "incremental", labels[ProfilingLabelMode])
	assert.Equal(t, "other", extra[ProfilingLabelOperation])
}

func TestWithProfilingLabels(t *testing.T) {
	var operation, account string
	var called bool
	WithProfilingLabels(context.Background(), OperationLabels("enrich", map[string]string{
		ProfilingLabelAccountID: "acc-1",
	}), func(ctx context.Context) {
		called = true
		operation, _ = pprof.Label(ctx, ProfilingLabelOperation)
		account, _ = pprof.Label(ctx, ProfilingLabelAccountID)
	})

	assert.True(t, called)
	assert.Equal(t, "enrich", operation)
	assert.Equal(t, "acc-1", account)

	called = false
	WithProfilingLabels(context.Background(), nil, func(context.Context) { called = true })
	assert.True(t, called)
}
