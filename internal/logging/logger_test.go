package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_NopByDefault(t *testing.T) {
	require.NotNil(t, Logger)
	assert.NotPanics(t, func() {
		Logger.Infow("discarded", "key", "value")
	})
}

func TestInitialize_JSON(t *testing.T) {
	prev := Logger
	defer func() { Logger = prev }()

	require.NoError(t, Initialize(true, "debug"))
	assert.True(t, Logger.Desugar().Core().Enabled(-1)) // debug
}

func TestInitialize_BadLevelFallsBackToInfo(t *testing.T) {
	prev := Logger
	defer func() { Logger = prev }()

	require.NoError(t, Initialize(false, "loud"))
	assert.False(t, Logger.Desugar().Core().Enabled(-1))
	assert.True(t, Logger.Desugar().Core().Enabled(0))
}

func TestNamed(t *testing.T) {
	assert.NotNil(t, Named("scheduler"))
}
