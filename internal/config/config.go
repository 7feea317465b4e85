// Package config provides configuration management for the Framecut engine.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// Default values
	DefaultPort     = 8797
	DefaultLogLevel = "info"
	DefaultDataDir  = ".framecut"

	// Environment variable names
	EnvPort     = "FRAMECUT_PORT"
	EnvLogLevel = "FRAMECUT_LOG_LEVEL"
	EnvDataDir  = "FRAMECUT_DATA_DIR"
	EnvHeadless = "FRAMECUT_HEADLESS"

	// Playback environment variable names
	EnvPreviewMode       = "FRAMECUT_PREVIEW_MODE"
	EnvSeekEpsilonMs     = "FRAMECUT_SEEK_EPSILON_MS"
	EnvFollowToleranceMs = "FRAMECUT_FOLLOW_TOLERANCE_MS"
	EnvDefaultGain       = "FRAMECUT_DEFAULT_GAIN"

	// Editing environment variable names
	EnvGridMode        = "FRAMECUT_GRID_MODE"
	EnvSnapThresholdPx = "FRAMECUT_SNAP_THRESHOLD_PX"

	// Database filename
	DBFilename = "framecut.db"

	// Playback defaults
	PreviewModeSingle        = "single"
	PreviewModeMultitrack    = "multitrack"
	DefaultPreviewMode       = PreviewModeMultitrack
	DefaultSeekEpsilonMs     = 50
	DefaultFollowToleranceMs = 250
	DefaultGain              = 0.5

	// Editing defaults
	DefaultGridMode        = "frame"
	DefaultSnapThresholdPx = 8.0
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	Headless() bool
	PreviewMode() string
	SeekEpsilon() time.Duration
	FollowTolerance() time.Duration
	DefaultGain() float64
	GridMode() string
	SnapThresholdPx() float64
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	headless bool

	previewMode       string
	seekEpsilonMs     int
	followToleranceMs int
	defaultGain       float64

	gridMode        string
	snapThresholdPx float64
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:              DefaultPort,
		logLevel:          DefaultLogLevel,
		dataDir:           defaultDataDir(),
		previewMode:       DefaultPreviewMode,
		seekEpsilonMs:     DefaultSeekEpsilonMs,
		followToleranceMs: DefaultFollowToleranceMs,
		defaultGain:       DefaultGain,
		gridMode:          DefaultGridMode,
		snapThresholdPx:   DefaultSnapThresholdPx,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	if pm := os.Getenv(EnvPreviewMode); pm != "" {
		pm = strings.ToLower(pm)
		if pm != PreviewModeSingle && pm != PreviewModeMultitrack {
			return nil, fmt.Errorf("invalid %s: must be %q or %q", EnvPreviewMode, PreviewModeSingle, PreviewModeMultitrack)
		}
		cfg.previewMode = pm
	}

	if v := os.Getenv(EnvSeekEpsilonMs); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvSeekEpsilonMs)
		}
		cfg.seekEpsilonMs = ms
	}

	if v := os.Getenv(EnvFollowToleranceMs); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvFollowToleranceMs)
		}
		cfg.followToleranceMs = ms
	}

	if v := os.Getenv(EnvDefaultGain); v != "" {
		gain, err := strconv.ParseFloat(v, 64)
		if err != nil || gain < 0 || gain > 1 {
			return nil, fmt.Errorf("invalid %s: must be between 0 and 1", EnvDefaultGain)
		}
		cfg.defaultGain = gain
	}

	if gm := os.Getenv(EnvGridMode); gm != "" {
		gm = strings.ToLower(gm)
		switch gm {
		case "off", "frame", "half", "second":
		default:
			return nil, fmt.Errorf("invalid %s: %q", EnvGridMode, gm)
		}
		cfg.gridMode = gm
	}

	if v := os.Getenv(EnvSnapThresholdPx); v != "" {
		px, err := strconv.ParseFloat(v, 64)
		if err != nil || px < 0 {
			return nil, fmt.Errorf("invalid %s: must be a non-negative number", EnvSnapThresholdPx)
		}
		cfg.snapThresholdPx = px
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// Headless disables the system tray
func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) PreviewMode() string {
	return c.previewMode
}

// SeekEpsilon is the tolerance under which surface and playhead times are
// considered equal.
func (c *EnvConfig) SeekEpsilon() time.Duration {
	return time.Duration(c.seekEpsilonMs) * time.Millisecond
}

// FollowTolerance is the drift an overlay surface may accumulate against the
// playhead while playing before it is re-seeked.
func (c *EnvConfig) FollowTolerance() time.Duration {
	return time.Duration(c.followToleranceMs) * time.Millisecond
}

func (c *EnvConfig) DefaultGain() float64 {
	return c.defaultGain
}

func (c *EnvConfig) GridMode() string {
	return c.gridMode
}

func (c *EnvConfig) SnapThresholdPx() float64 {
	return c.snapThresholdPx
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
