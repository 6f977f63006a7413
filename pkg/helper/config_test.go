package helper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCfgPath_Absolute(t *testing.T) {
	assert.Equal(t, "/tmp/conf.yaml", GetCfgPath("/tmp/conf.yaml"))
}

func TestGetCfgPath_CurrentDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "signpad.yaml"), []byte("{}"), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	got := GetCfgPath("signpad.yaml")
	assert.Equal(t, "signpad.yaml", filepath.Base(got))
	assert.True(t, filepath.IsAbs(got))
}

func TestGetCfgPath_Fallback(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	assert.Equal(t, "/etc/signpad/missing.yaml", GetCfgPath("missing.yaml"))
}

func TestGetCfgPath_EmptyPanics(t *testing.T) {
	assert.Panics(t, func() { GetCfgPath("") })
}
