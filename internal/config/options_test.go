package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOptions(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "options.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadLaunchOptions(t *testing.T) {
	path := writeOptions(t, `{
		"device": "iPhone 15",
		"app": "/tmp/App.app",
		"template": "Automation",
		"args": ["-AppleLanguages", "(de)"],
		"flush_interval_ms": 500,
		"timeout_sec": 90
	}`)

	opts, err := LoadLaunchOptions(path)
	require.NoError(t, err)

	assert.Equal(t, "iPhone 15", opts.Device)
	assert.Equal(t, "/tmp/App.app", opts.App)
	assert.Equal(t, []string{"-AppleLanguages", "(de)"}, opts.Args)
	assert.Equal(t, 500, opts.FlushIntervalMS)
	assert.Equal(t, 90, opts.TimeoutSec)
}

func TestLoadLaunchOptionsEmptyObject(t *testing.T) {
	path := writeOptions(t, `{}`)

	opts, err := LoadLaunchOptions(path)
	require.NoError(t, err)
	assert.Empty(t, opts.Device)
}

func TestLoadLaunchOptionsRejectsUnknownKey(t *testing.T) {
	path := writeOptions(t, `{"device": "iPhone 15", "bogus": true}`)

	_, err := LoadLaunchOptions(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestLoadLaunchOptionsRejectsWrongType(t *testing.T) {
	path := writeOptions(t, `{"args": "not-a-list"}`)

	_, err := LoadLaunchOptions(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid options")
}

func TestLoadLaunchOptionsRejectsNegativeInterval(t *testing.T) {
	path := writeOptions(t, `{"flush_interval_ms": -1}`)

	_, err := LoadLaunchOptions(path)
	assert.Error(t, err)
}

func TestLoadLaunchOptionsMissingFile(t *testing.T) {
	_, err := LoadLaunchOptions(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
