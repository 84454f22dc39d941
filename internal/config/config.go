// Package config provides configuration management for the co-regulator.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Affect       AffectConfig       `mapstructure:"affect"`
	Triggers     TriggerConfig      `mapstructure:"triggers"`
	Sampling     SamplingConfig     `mapstructure:"sampling"`
	Analysis     AnalysisConfig     `mapstructure:"analysis"`
	Intervention InterventionConfig `mapstructure:"intervention"`
	Sensors      SensorConfig       `mapstructure:"sensors"`
	EventLog     EventLogConfig     `mapstructure:"event_log"`
}

// AppConfig configures the application shell
type AppConfig struct {
	DefaultMode       string        `mapstructure:"default_mode"`        // active, paused, snoozed, dnd
	TickInterval      time.Duration `mapstructure:"tick_interval"`       // main loop cadence
	SnoozeDuration    time.Duration `mapstructure:"snooze_duration"`     // auto-return to active
	SensorCheckTicks  int           `mapstructure:"sensor_check_ticks"`  // health check every N ticks
	ShutdownJoinLimit time.Duration `mapstructure:"shutdown_join_limit"` // max wait for worker exit
}

// AffectConfig configures state smoothing
type AffectConfig struct {
	Alpha        float64 `mapstructure:"alpha"`         // smoothing factor (0,1]
	RestingValue float64 `mapstructure:"resting_value"` // decay target when no sample arrives
}

// TriggerConfig configures threshold crossing detection
type TriggerConfig struct {
	AudioLevelHigh    float64  `mapstructure:"audio_level_high"`    // RMS high-water mark
	VideoActivityHigh float64  `mapstructure:"video_activity_high"` // frame-diff high-water mark
	ArousalHigh       float64  `mapstructure:"arousal_high"`        // specialized arousal signal mark
	Precedence        []string `mapstructure:"precedence"`          // ordered, highest priority first
}

// SamplingConfig configures the adaptive video sampling policy
type SamplingConfig struct {
	EcoEnabled        bool          `mapstructure:"eco_enabled"`
	ActiveDelay       time.Duration `mapstructure:"active_delay"`        // face present
	EcoDelay          time.Duration `mapstructure:"eco_delay"`           // no face, eco mode
	IdleDelay         time.Duration `mapstructure:"idle_delay"`          // mode not active
	WakeThreshold     float64       `mapstructure:"wake_threshold"`      // activity that forces detection
	FaceCheckInterval int           `mapstructure:"face_check_interval"` // run detection every Nth skipped frame
}

// AnalysisConfig configures the external reasoning service and its breaker
type AnalysisConfig struct {
	ServiceURL   string        `mapstructure:"service_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CallInterval time.Duration `mapstructure:"call_interval"` // debounce between call attempts
	MaxFailures  int           `mapstructure:"max_failures"`  // breaker opens at this count
	Cooldown     time.Duration `mapstructure:"cooldown"`      // open breaker hold time
}

// InterventionConfig configures delivery and feedback correlation
type InterventionConfig struct {
	MinTimeBetween  time.Duration `mapstructure:"min_time_between"` // proactive intervention cooldown
	FeedbackWindow  time.Duration `mapstructure:"feedback_window"`
	DefaultDuration time.Duration `mapstructure:"default_duration"`
}

// SensorConfig configures the sensor workers
type SensorConfig struct {
	VideoQueueSize  int           `mapstructure:"video_queue_size"`
	AudioQueueSize  int           `mapstructure:"audio_queue_size"`
	AudioPollDelay  time.Duration `mapstructure:"audio_poll_delay"`
	VideoSidecarURL string        `mapstructure:"video_sidecar_url"` // websocket capture sidecar
	AudioSidecarURL string        `mapstructure:"audio_sidecar_url"`
}

// EventLogConfig configures the structured event sink
type EventLogConfig struct {
	DatabaseFile string `mapstructure:"database_file"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		App: AppConfig{
			DefaultMode:       "active",
			TickInterval:      500 * time.Millisecond,
			SnoozeDuration:    time.Hour,
			SensorCheckTicks:  5,
			ShutdownJoinLimit: 3 * time.Second,
		},
		Affect: AffectConfig{
			Alpha:        0.2,
			RestingValue: 50,
		},
		Triggers: TriggerConfig{
			AudioLevelHigh:    0.6,
			VideoActivityHigh: 25.0,
			ArousalHigh:       80.0,
			Precedence:        []string{"high_sexual_arousal", "high_audio_level", "high_video_activity"},
		},
		Sampling: SamplingConfig{
			EcoEnabled:        true,
			ActiveDelay:       50 * time.Millisecond,
			EcoDelay:          1 * time.Second,
			IdleDelay:         200 * time.Millisecond,
			WakeThreshold:     5.0,
			FaceCheckInterval: 5,
		},
		Analysis: AnalysisConfig{
			ServiceURL:   "http://localhost:8090/analyze",
			Timeout:      10 * time.Second,
			CallInterval: 30 * time.Second,
			MaxFailures:  3,
			Cooldown:     2 * time.Minute,
		},
		Intervention: InterventionConfig{
			MinTimeBetween:  5 * time.Minute,
			FeedbackWindow:  15 * time.Second,
			DefaultDuration: 10 * time.Second,
		},
		Sensors: SensorConfig{
			VideoQueueSize:  2,
			AudioQueueSize:  10,
			AudioPollDelay:  100 * time.Millisecond,
			VideoSidecarURL: "ws://localhost:8091/frames",
			AudioSidecarURL: "ws://localhost:8091/audio",
		},
		EventLog: EventLogConfig{
			DatabaseFile: filepath.Join(home, ".coregulator", "events.sqlite"),
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".coregulator")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("COREGULATOR")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	cfg.Normalize()
	return cfg, nil
}

// Watch re-reads the config whenever the file changes and calls onChange
// with the freshly parsed result. Parse failures keep the previous values.
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(_ fsnotify.Event) {
		cfg := DefaultConfig()
		if err := viper.Unmarshal(cfg); err != nil {
			return
		}
		cfg.Normalize()
		onChange(cfg)
	})
	viper.WatchConfig()
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".coregulator")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("app", cfg.App)
	viper.Set("affect", cfg.Affect)
	viper.Set("triggers", cfg.Triggers)
	viper.Set("sampling", cfg.Sampling)
	viper.Set("analysis", cfg.Analysis)
	viper.Set("intervention", cfg.Intervention)
	viper.Set("sensors", cfg.Sensors)
	viper.Set("event_log", cfg.EventLog)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// Normalize replaces invalid or missing values with documented defaults and
// returns the list of fields that fell back, for one-time logging.
func (c *Config) Normalize() []string {
	def := DefaultConfig()
	var fixed []string

	if c.App.TickInterval <= 0 {
		c.App.TickInterval = def.App.TickInterval
		fixed = append(fixed, "app.tick_interval")
	}
	if c.App.SnoozeDuration <= 0 {
		c.App.SnoozeDuration = def.App.SnoozeDuration
		fixed = append(fixed, "app.snooze_duration")
	}
	if c.App.SensorCheckTicks <= 0 {
		c.App.SensorCheckTicks = def.App.SensorCheckTicks
		fixed = append(fixed, "app.sensor_check_ticks")
	}
	if c.App.ShutdownJoinLimit <= 0 {
		c.App.ShutdownJoinLimit = def.App.ShutdownJoinLimit
		fixed = append(fixed, "app.shutdown_join_limit")
	}
	switch c.App.DefaultMode {
	case "active", "paused", "snoozed", "dnd":
	default:
		c.App.DefaultMode = def.App.DefaultMode
		fixed = append(fixed, "app.default_mode")
	}

	if c.Affect.Alpha <= 0 || c.Affect.Alpha > 1 {
		c.Affect.Alpha = def.Affect.Alpha
		fixed = append(fixed, "affect.alpha")
	}
	if c.Affect.RestingValue < 0 || c.Affect.RestingValue > 100 {
		c.Affect.RestingValue = def.Affect.RestingValue
		fixed = append(fixed, "affect.resting_value")
	}

	if len(c.Triggers.Precedence) == 0 {
		c.Triggers.Precedence = def.Triggers.Precedence
		fixed = append(fixed, "triggers.precedence")
	}

	if c.Sampling.ActiveDelay <= 0 {
		c.Sampling.ActiveDelay = def.Sampling.ActiveDelay
		fixed = append(fixed, "sampling.active_delay")
	}
	if c.Sampling.EcoDelay <= 0 {
		c.Sampling.EcoDelay = def.Sampling.EcoDelay
		fixed = append(fixed, "sampling.eco_delay")
	}
	if c.Sampling.IdleDelay <= 0 {
		c.Sampling.IdleDelay = def.Sampling.IdleDelay
		fixed = append(fixed, "sampling.idle_delay")
	}
	if c.Sampling.FaceCheckInterval <= 0 {
		c.Sampling.FaceCheckInterval = def.Sampling.FaceCheckInterval
		fixed = append(fixed, "sampling.face_check_interval")
	}

	if c.Analysis.Timeout <= 0 {
		c.Analysis.Timeout = def.Analysis.Timeout
		fixed = append(fixed, "analysis.timeout")
	}
	if c.Analysis.CallInterval <= 0 {
		c.Analysis.CallInterval = def.Analysis.CallInterval
		fixed = append(fixed, "analysis.call_interval")
	}
	if c.Analysis.MaxFailures <= 0 {
		c.Analysis.MaxFailures = def.Analysis.MaxFailures
		fixed = append(fixed, "analysis.max_failures")
	}
	if c.Analysis.Cooldown <= 0 {
		c.Analysis.Cooldown = def.Analysis.Cooldown
		fixed = append(fixed, "analysis.cooldown")
	}

	if c.Intervention.FeedbackWindow <= 0 {
		c.Intervention.FeedbackWindow = def.Intervention.FeedbackWindow
		fixed = append(fixed, "intervention.feedback_window")
	}
	if c.Intervention.MinTimeBetween < 0 {
		c.Intervention.MinTimeBetween = def.Intervention.MinTimeBetween
		fixed = append(fixed, "intervention.min_time_between")
	}
	if c.Intervention.DefaultDuration <= 0 {
		c.Intervention.DefaultDuration = def.Intervention.DefaultDuration
		fixed = append(fixed, "intervention.default_duration")
	}

	if c.Sensors.VideoQueueSize <= 0 {
		c.Sensors.VideoQueueSize = def.Sensors.VideoQueueSize
		fixed = append(fixed, "sensors.video_queue_size")
	}
	if c.Sensors.AudioQueueSize <= 0 {
		c.Sensors.AudioQueueSize = def.Sensors.AudioQueueSize
		fixed = append(fixed, "sensors.audio_queue_size")
	}
	if c.Sensors.AudioPollDelay <= 0 {
		c.Sensors.AudioPollDelay = def.Sensors.AudioPollDelay
		fixed = append(fixed, "sensors.audio_poll_delay")
	}

	if c.EventLog.DatabaseFile == "" {
		c.EventLog.DatabaseFile = def.EventLog.DatabaseFile
		fixed = append(fixed, "event_log.database_file")
	}

	return fixed
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".coregulator"), nil
}
