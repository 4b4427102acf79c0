package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "picapture.yaml")
	data := `
device: /dev/video2
output_dir: /srv/incoming
ntp_server: pool.ntp.org
max_clock_offset: 500ms
capture:
  width: 1280
  quality: 90
`
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))

	cfg, err := LoadFromFile(p)
	require.NoError(t, err)
	assert.Equal(t, "/dev/video2", cfg.Device)
	assert.Equal(t, "/srv/incoming", cfg.OutputDir)
	assert.Equal(t, "pool.ntp.org", cfg.NTPServer)
	assert.Equal(t, 500*time.Millisecond, cfg.MaxClockOffset)
	assert.Equal(t, 1280, cfg.Capture.Width)
	// Unset keys keep their defaults.
	assert.Equal(t, 1080, cfg.Capture.Height)
	assert.Equal(t, 90, cfg.Capture.Quality)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvDevice, "/dev/video7")
	t.Setenv(EnvOutputDir, "/tmp/out")
	t.Setenv(EnvNTPServer, "time.example.org")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/dev/video7", cfg.Device)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, "time.example.org", cfg.NTPServer)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, loadDotenv(filepath.Join(dir, ".env")))

	good := filepath.Join(dir, "good.env")
	require.NoError(t, os.WriteFile(good, []byte("PICAPTURE_TEST_DOTENV=yes\n"), 0o644))
	t.Setenv("PICAPTURE_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("PICAPTURE_TEST_DOTENV"))
	require.NoError(t, loadDotenv(good))
	assert.Equal(t, "yes", os.Getenv("PICAPTURE_TEST_DOTENV"))

	bad := filepath.Join(dir, "bad.env")
	require.NoError(t, os.WriteFile(bad, []byte("BAD-KEY=1\n"), 0o644))
	assert.ErrorContains(t, loadDotenv(bad), "unexpected character")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Capture.Quality = 0
	err := cfg.Validate()
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "capture.quality", vErr.Field)

	cfg = DefaultConfig()
	cfg.Device = ""
	require.ErrorAs(t, cfg.Validate(), &vErr)
	assert.Equal(t, "device", vErr.Field)
}

func TestResolveOutputDir(t *testing.T) {
	root := t.TempDir()
	exeDir := filepath.Join(root, "capture_image")
	require.NoError(t, os.MkdirAll(exeDir, 0o755))

	dir, fallback := ResolveOutputDir("/explicit", "/configured", exeDir)
	assert.Equal(t, "/explicit", dir)
	assert.False(t, fallback)

	dir, fallback = ResolveOutputDir("", "/configured", exeDir)
	assert.Equal(t, "/configured", dir)
	assert.False(t, fallback)

	dir, fallback = ResolveOutputDir("", "", exeDir)
	assert.Equal(t, filepath.Join(exeDir, "incoming"), dir)
	assert.True(t, fallback)

	auto := filepath.Join(root, "image", "incoming")
	require.NoError(t, os.MkdirAll(auto, 0o755))
	dir, fallback = ResolveOutputDir("", "", exeDir)
	assert.Equal(t, auto, dir)
	assert.False(t, fallback)
}
