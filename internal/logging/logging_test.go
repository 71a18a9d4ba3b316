package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Levels(t *testing.T) {
	quiet, err := New(false)
	require.NoError(t, err)
	assert.False(t, quiet.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, quiet.Core().Enabled(zapcore.InfoLevel))

	verbose, err := New(true)
	require.NoError(t, err)
	assert.True(t, verbose.Core().Enabled(zapcore.DebugLevel))
}

func TestForRun_TagsRunID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := ForRun(zap.New(core), "demo-Q1-minimal")

	logger.Info("planned")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "demo-Q1-minimal", logs.All()[0].ContextMap()["run_id"])
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	assert.NotPanics(t, func() { ForRun(nil, "x").Info("ignored") })
}
