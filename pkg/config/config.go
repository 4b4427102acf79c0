package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pi-capture/pkg/utils"
)

const (
	EnvConfig    = "PICAPTURE_CONFIG"
	EnvDevice    = "PICAPTURE_DEVICE"
	EnvOutputDir = "PICAPTURE_OUTPUT_DIR"
	EnvNTPServer = "PICAPTURE_NTP_SERVER"
)

type Config struct {
	Device    string `yaml:"device"`
	OutputDir string `yaml:"output_dir"`

	// NTPServer is queried before each capture; empty disables the check.
	NTPServer      string        `yaml:"ntp_server"`
	MaxClockOffset time.Duration `yaml:"max_clock_offset"`
	// MinFreeMB below which a capture logs a low disk warning.
	MinFreeMB uint64 `yaml:"min_free_mb"`

	Capture CaptureDefaults `yaml:"capture"`
	Server  ServerConfig    `yaml:"server"`
}

type CaptureDefaults struct {
	Width   int `yaml:"width"`
	Height  int `yaml:"height"`
	Quality int `yaml:"quality"`
	// Preview is in seconds.
	Preview int `yaml:"preview"`
}

type ServerConfig struct {
	Port       int `yaml:"port"`
	WebdavPort int `yaml:"webdav_port"`
}

func DefaultConfig() *Config {
	return &Config{
		Device:         "/dev/video0",
		MaxClockOffset: time.Second,
		MinFreeMB:      100,
		Capture: CaptureDefaults{
			Width:   1920,
			Height:  1080,
			Quality: 85,
			Preview: 2,
		},
		Server: ServerConfig{
			Port:       9999,
			WebdavPort: 9998,
		},
	}
}

// loadDotenv treats a missing file as empty.
func loadDotenv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Load reads .env, then the YAML file at path (or $PICAPTURE_CONFIG) when
// given, then the environment overrides.
func Load(path string) (*Config, error) {
	if err := loadDotenv(); err != nil {
		utils.GetLogger().Warnf("load .env: %s", err)
	}

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDevice); v != "" {
		c.Device = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.OutputDir = v
	}
	if v, ok := os.LookupEnv(EnvNTPServer); ok {
		c.NTPServer = v
	}
}

func (c *Config) Validate() error {
	if c.Device == "" {
		return &ValidationError{Field: "device", Message: "device path is required"}
	}
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
		return &ValidationError{Field: "capture", Message: "width and height must be positive"}
	}
	if c.Capture.Quality < 1 || c.Capture.Quality > 100 {
		return &ValidationError{Field: "capture.quality", Message: "quality must be between 1 and 100"}
	}
	if c.Capture.Preview < 0 {
		return &ValidationError{Field: "capture.preview", Message: "preview can not be negative"}
	}
	if c.MaxClockOffset <= 0 {
		c.MaxClockOffset = time.Second
	}

	return nil
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ResolveOutputDir picks the capture directory: the explicit value, then the
// configured one, then <exe dir>/../image/incoming when it exists, then
// <exe dir>/incoming. fallback reports the last case.
func ResolveOutputDir(explicit, configured, exeDir string) (dir string, fallback bool) {
	if explicit != "" {
		return explicit, false
	}
	if configured != "" {
		return configured, false
	}
	auto := filepath.Join(filepath.Dir(exeDir), "image", "incoming")
	if info, err := os.Stat(auto); err == nil && info.IsDir() {
		return auto, false
	}

	return filepath.Join(exeDir, "incoming"), true
}

// ExecutableDir is the directory of the running binary.
func ExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}
