package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_PositionalArgBecomesRootDir(t *testing.T) {
	cfg, remaining, err := Load([]string{"/var/naccazy"})
	require.NoError(t, err)
	assert.Equal(t, "/var/naccazy", cfg.RootDir)
	assert.Equal(t, []string{"/var/naccazy"}, remaining)
}

func TestLoad_DefaultsWhenNoArgs(t *testing.T) {
	cfg, _, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultLocalCacheDir, cfg.RootDir)
	assert.Equal(t, DefaultForwardIndexPath, cfg.ForwardIndexPath)
	assert.Equal(t, DefaultInvertedIndexPath, cfg.InvertedIndexPath)
	assert.Equal(t, DefaultLockFilePath, cfg.LockFilePath)
}

func TestLoad_RemoteFlagPrefersLocalCacheOverPositional(t *testing.T) {
	cfg, _, err := Load([]string{"-remote", `\\share\Накази`, "-cache", "/tmp/cache", "/var/naccazy"})
	require.NoError(t, err)
	assert.Equal(t, `\\share\Накази`, cfg.RemotePath)
	assert.Equal(t, "/tmp/cache", cfg.RootDir)
}
