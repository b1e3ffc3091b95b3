package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/Bazza1982/lily-remote/internal/logging"
)

var log = logging.L("config")

// Config is the agent's full runtime configuration, loaded via viper from a
// YAML file and environment variables (prefix LILY_), with the environment
// taking priority. No CLI flags are bound to config keys.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	ListenPort int    `mapstructure:"listen_port"`
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`

	LANMode bool `mapstructure:"lan_mode"`

	PairingChallengeTTLSeconds int `mapstructure:"pairing_challenge_ttl_seconds"`
	SessionMaxDurationSeconds  int `mapstructure:"session_max_duration_seconds"`

	CommandQueueCapacity      int `mapstructure:"command_queue_capacity"`
	CommandTimeoutSeconds     int `mapstructure:"command_timeout_seconds"`
	CommandCompletedMaxAgeSec int `mapstructure:"command_completed_max_age_seconds"`

	FrameMinFPS      int     `mapstructure:"frame_min_fps"`
	FrameMaxFPS      int     `mapstructure:"frame_max_fps"`
	FrameInitialFPS  int     `mapstructure:"frame_initial_fps"`
	FrameMinQuality  int     `mapstructure:"frame_min_quality"`
	FrameMaxQuality  int     `mapstructure:"frame_max_quality"`
	FrameInitQuality int     `mapstructure:"frame_initial_quality"`
	FrameScale       float64 `mapstructure:"frame_scale"`
	FrameMonitorIdx  int     `mapstructure:"frame_monitor_index"`

	RateRequestsPerSecond      float64 `mapstructure:"rate_requests_per_second"`
	RatePairingPerMinute       float64 `mapstructure:"rate_pairing_per_minute"`
	RateCommandsPerSecond      float64 `mapstructure:"rate_commands_per_second"`
	RateWSMessagesPerSecond    float64 `mapstructure:"rate_websocket_messages_per_second"`
	RateBurstMultiplier        float64 `mapstructure:"rate_burst_multiplier"`

	AuditDir        string `mapstructure:"audit_dir"`
	AuditMaxSizeMB  int    `mapstructure:"audit_max_size_mb"`
	AuditMaxBackups int    `mapstructure:"audit_max_backups"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	DiscoveryEnabled bool   `mapstructure:"discovery_enabled"`
	DiscoveryName    string `mapstructure:"discovery_name"`
}

func Default() *Config {
	return &Config{
		ListenAddr: "0.0.0.0",
		ListenPort: 8443,

		LANMode: true,

		PairingChallengeTTLSeconds: 300,
		SessionMaxDurationSeconds:  3600,

		CommandQueueCapacity:      1000,
		CommandTimeoutSeconds:     30,
		CommandCompletedMaxAgeSec: 300,

		FrameMinFPS:      2,
		FrameMaxFPS:      10,
		FrameInitialFPS:  5,
		FrameMinQuality:  30,
		FrameMaxQuality:  90,
		FrameInitQuality: 70,
		FrameScale:       1.0,
		FrameMonitorIdx:  0,

		RateRequestsPerSecond:   10,
		RatePairingPerMinute:    5,
		RateCommandsPerSecond:   20,
		RateWSMessagesPerSecond: 30,
		RateBurstMultiplier:     1.5,

		AuditDir:        filepath.Join(GetDataDir(), "audit"),
		AuditMaxSizeMB:  10,
		AuditMaxBackups: 5,

		LogLevel:  "info",
		LogFormat: "text",

		DiscoveryEnabled: true,
		DiscoveryName:    "lily-remote",
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("agent")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("LILY")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("listen_addr", cfg.ListenAddr)
	viper.Set("listen_port", cfg.ListenPort)
	viper.Set("lan_mode", cfg.LANMode)
	viper.Set("rate_requests_per_second", cfg.RateRequestsPerSecond)
	viper.Set("rate_pairing_per_minute", cfg.RatePairingPerMinute)
	viper.Set("rate_commands_per_second", cfg.RateCommandsPerSecond)
	viper.Set("rate_websocket_messages_per_second", cfg.RateWSMessagesPerSecond)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "agent.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	tmpPath := cfgPath + ".tmp"
	if err := viper.WriteConfigAs(tmpPath); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, cfgPath)
}

// GetDataDir returns the platform-specific data directory for the agent.
func GetDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "LilyRemote", "data")
	case "darwin":
		return "/Library/Application Support/LilyRemote/data"
	default:
		return "/var/lib/lily-remote"
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "LilyRemote")
	case "darwin":
		return "/Library/Application Support/LilyRemote"
	default:
		return "/etc/lily-remote"
	}
}
