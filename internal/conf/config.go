// config.go process-level configuration for the producer and consumer binaries
package conf

import (
	"embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var defaultConfig embed.FS

// RotationMode names how the audit log is rotated once it exceeds its size bound.
type RotationMode string

const (
	RotationSize RotationMode = "size"
	RotationDaily RotationMode = "daily"
)

// LogConfig controls the lumberjack-backed audit log sink shared by every lane.
type LogConfig struct {
	Path       string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Rotation   RotationMode
}

// ModelConfig describes how the Inference Orchestrator should load the
// quantized acoustic model.
type ModelConfig struct {
	Path    string
	UseGPU  bool
	Threads int // 0 means auto-detect via cpuspec
}

// Settings is the process-level configuration for either the producer or
// consumer binary. It is distinct from protocol.Settings, which is the
// runtime record exchanged through the rendezvous (see settings/settings.json).
type Settings struct {
	Debug bool

	Rendezvous struct {
		Root string // shared container root holding audio/, transcripts/, control/, settings/
	}

	Producer struct {
		PollInterval         time.Duration
		TranscriptionTimeout time.Duration
	}

	Consumer struct {
		PollInterval   time.Duration
		StatusInterval time.Duration
	}

	Sequencer struct {
		Capacity int
	}

	Reaper struct {
		Interval            time.Duration
		StartupSweepAge     time.Duration
		PartialMaxAge       time.Duration
		AudioMaxAge         time.Duration
		ArchiveMaxAge       time.Duration
		DiskCriticalPercent float64
	}

	Model ModelConfig

	Log LogConfig

	Telemetry struct {
		SentryDSN string
		Enabled   bool
	}

	Metrics struct {
		Enabled     bool
		ListenAddr string
	}
}

var (
	settingsMu sync.RWMutex
	settings   *Settings
)

// Setting returns the process-wide Settings instance, loading defaults if
// Load has not yet been called.
func Setting() *Settings {
	settingsMu.RLock()
	if settings != nil {
		defer settingsMu.RUnlock()
		return settings
	}
	settingsMu.RUnlock()

	s, err := Load("")
	if err != nil {
		// Fall back to pure defaults; Load only fails on malformed user config.
		s = defaults()
	}
	return s
}

// Load reads the embedded defaults, then overlays a user config file (if
// configPath is non-empty) and WHISPERBOARD_-prefixed environment variables.
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaultBytes, err := defaultConfig.ReadFile("config.yaml")
	if err != nil {
		return nil, fmt.Errorf("conf: read embedded defaults: %w", err)
	}
	if err := v.ReadConfig(bytesReader(defaultBytes)); err != nil {
		return nil, fmt.Errorf("conf: parse embedded defaults: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("conf: merge user config %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix("WHISPERBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	s := defaults()
	if err := v.Unmarshal(s, viper.DecodeHook(durationHookFunc())); err != nil {
		return nil, fmt.Errorf("conf: unmarshal: %w", err)
	}

	settingsMu.Lock()
	settings = s
	settingsMu.Unlock()

	return s, nil
}

// defaults returns hardcoded fallback settings matching the bundled config.yaml.
func defaults() *Settings {
	s := &Settings{}
	s.Rendezvous.Root = "./rendezvous"
	s.Producer.PollInterval = 100 * time.Millisecond
	s.Producer.TranscriptionTimeout = 10 * time.Second
	s.Consumer.PollInterval = 50 * time.Millisecond
	s.Consumer.StatusInterval = 1 * time.Second
	s.Sequencer.Capacity = 10
	s.Reaper.Interval = 1 * time.Minute
	s.Reaper.StartupSweepAge = 1 * time.Hour
	s.Reaper.PartialMaxAge = 5 * time.Minute
	s.Reaper.AudioMaxAge = 60 * time.Second
	s.Reaper.ArchiveMaxAge = 7 * 24 * time.Hour
	s.Reaper.DiskCriticalPercent = 90.0
	s.Model.UseGPU = false
	s.Model.Threads = 0
	s.Log.Path = "logs/whisperboard.log"
	s.Log.Level = "info"
	s.Log.MaxSizeMB = 5
	s.Log.MaxBackups = 7
	s.Log.MaxAgeDays = 7
	s.Log.Rotation = RotationSize
	s.Log.Compress = true
	s.Metrics.Enabled = true
	s.Metrics.ListenAddr = "127.0.0.1:9105"
	return s
}
