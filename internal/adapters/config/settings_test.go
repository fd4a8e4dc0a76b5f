package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dake/internal/adapters/config"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	s, err := config.Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1808, s.Port)
	assert.Equal(t, 3, s.DialAttempts)
	assert.Equal(t, 200*time.Millisecond, s.DialBackoff.Std())
	assert.Zero(t, s.BuildTimeout)
	assert.Zero(t, s.NodeParallelism)
	assert.Positive(t, s.Parallelism)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	content := `
port: 9000
dial_attempts: 5
build_timeout: 2m
node_parallelism: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.Filename), []byte(content), 0o600))

	s, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9000, s.Port)
	assert.Equal(t, 5, s.DialAttempts)
	assert.Equal(t, 2*time.Minute, s.BuildTimeout.Std())
	assert.Equal(t, 4, s.NodeParallelism)
	// Unset keys keep their defaults.
	assert.Equal(t, 200*time.Millisecond, s.DialBackoff.Std())
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.Filename), []byte("port: [nope"), 0o600))

	_, err := config.Load(dir)
	assert.Error(t, err)
}
