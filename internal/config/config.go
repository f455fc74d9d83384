package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// RootConfig is the on-disk layout: named profiles plus the one currently active
type RootConfig struct {
	ActiveConfig string             `mapstructure:"active_config" yaml:"active_config"`
	Configs      map[string]*Config `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Tracking  TrackingConfig  `mapstructure:"tracking" yaml:"tracking"`
	Overlay   OverlayConfig   `mapstructure:"overlay" yaml:"overlay"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Share     ShareConfig     `mapstructure:"share" yaml:"share"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`

	// Name of the profile this config was resolved from
	Profile string `mapstructure:"-" yaml:"-"`
}

type TrackingConfig struct {
	Command       []string `mapstructure:"command" yaml:"command"`               // tracker helper, e.g. ["mindar-tracker"]
	TargetFile    string   `mapstructure:"target_file" yaml:"target_file"`       // compiled image target descriptor
	Facing        string   `mapstructure:"facing" yaml:"facing"`                 // "back" (default) or "front"
	BackDevice    string   `mapstructure:"back_device" yaml:"back_device"`       // camera used for facing=back
	FrontDevice   string   `mapstructure:"front_device" yaml:"front_device"`     // camera used for facing=front
	FrameRate     int      `mapstructure:"frame_rate" yaml:"frame_rate"`         // render loop cadence
	StopTimeoutMs int      `mapstructure:"stop_timeout_ms" yaml:"stop_timeout_ms"`
}

type OverlayConfig struct {
	ModelFile string  `mapstructure:"model_file" yaml:"model_file"`
	Scale     float64 `mapstructure:"scale" yaml:"scale"`
}

type RecordingConfig struct {
	AutoStart     *bool  `mapstructure:"auto_start" yaml:"auto_start"` // unset means on
	Codec         string `mapstructure:"codec" yaml:"codec"`
	MediaType     string `mapstructure:"media_type" yaml:"media_type"`
	ChunkSize     int    `mapstructure:"chunk_size" yaml:"chunk_size"`
	StopTimeoutMs int    `mapstructure:"stop_timeout_ms" yaml:"stop_timeout_ms"`
}

type ShareConfig struct {
	Title             string   `mapstructure:"title" yaml:"title"`
	Command           []string `mapstructure:"command" yaml:"command"` // {url} and {title} are substituted
	Filename          string   `mapstructure:"filename" yaml:"filename"`
	DownloadDirectory string   `mapstructure:"download_directory" yaml:"download_directory"`
}

type ServerConfig struct {
	Port        string  `mapstructure:"port" yaml:"port"`
	PublicURL   string  `mapstructure:"public_url" yaml:"public_url"`
	IntentRate  float64 `mapstructure:"intent_rate" yaml:"intent_rate"` // intents per second
	IntentBurst int     `mapstructure:"intent_burst" yaml:"intent_burst"`
}

// Default returns the built-in configuration used when a profile leaves fields empty
func Default() *Config {
	return &Config{
		Tracking: TrackingConfig{
			Command:       []string{"mindar-tracker"},
			TargetFile:    "assets/targets.mind",
			Facing:        "back",
			BackDevice:    "/dev/video0",
			FrontDevice:   "/dev/video1",
			FrameRate:     60,
			StopTimeoutMs: 5000,
		},
		Overlay: OverlayConfig{
			ModelFile: "assets/coffeeMug.glb",
			Scale:     0.5,
		},
		Recording: RecordingConfig{
			AutoStart:     Bool(true),
			Codec:         "libvpx",
			MediaType:     "video/webm",
			ChunkSize:     64 * 1024,
			StopTimeoutMs: 5000,
		},
		Share: ShareConfig{
			Title:             "My AR Coffee Hunt",
			Filename:          "coffee-hunt.webm",
			DownloadDirectory: filepath.Join(os.Getenv("HOME"), "Videos", "CoffeeHunt"),
		},
		Server: ServerConfig{
			Port:        "8080",
			IntentRate:  5,
			IntentBurst: 10,
		},
		Profile: "default",
	}
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	rootConfig, err := ReadRootConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return resolveProfile(rootConfig, profile)
}

// ReadRootConfig reads and unmarshals the config file with viper
func ReadRootConfig(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvPrefix("COFFEEHUNT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("configs section is required")
	}

	return &rootConfig, nil
}

func resolveProfile(rootConfig *RootConfig, profile string) (*Config, error) {
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selected, exists := rootConfig.Configs[configName]
	if !exists || selected == nil {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	// Profiles fall back to the file's default profile, which falls back to built-ins
	base := Default()
	if configName != "default" {
		if defaultProfile, ok := rootConfig.Configs["default"]; ok && defaultProfile != nil {
			base = mergeConfigs(base, defaultProfile)
		}
	}
	result := mergeConfigs(base, selected)
	result.Profile = configName

	result.Tracking.TargetFile = expandPath(result.Tracking.TargetFile)
	result.Overlay.ModelFile = expandPath(result.Overlay.ModelFile)
	result.Share.DownloadDirectory = expandPath(result.Share.DownloadDirectory)

	if err := Validate(result); err != nil {
		return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
	}

	return result, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// mergeConfigs overlays every non-zero field of profile on top of base
func mergeConfigs(base, profile *Config) *Config {
	result := *base
	if profile == nil {
		return &result
	}

	if len(profile.Tracking.Command) > 0 {
		result.Tracking.Command = profile.Tracking.Command
	}
	if profile.Tracking.TargetFile != "" {
		result.Tracking.TargetFile = profile.Tracking.TargetFile
	}
	if profile.Tracking.Facing != "" {
		result.Tracking.Facing = profile.Tracking.Facing
	}
	if profile.Tracking.BackDevice != "" {
		result.Tracking.BackDevice = profile.Tracking.BackDevice
	}
	if profile.Tracking.FrontDevice != "" {
		result.Tracking.FrontDevice = profile.Tracking.FrontDevice
	}
	if profile.Tracking.FrameRate != 0 {
		result.Tracking.FrameRate = profile.Tracking.FrameRate
	}
	if profile.Tracking.StopTimeoutMs != 0 {
		result.Tracking.StopTimeoutMs = profile.Tracking.StopTimeoutMs
	}

	if profile.Overlay.ModelFile != "" {
		result.Overlay.ModelFile = profile.Overlay.ModelFile
	}
	if profile.Overlay.Scale != 0 {
		result.Overlay.Scale = profile.Overlay.Scale
	}

	if profile.Recording.AutoStart != nil {
		result.Recording.AutoStart = Bool(*profile.Recording.AutoStart)
	}
	if profile.Recording.Codec != "" {
		result.Recording.Codec = profile.Recording.Codec
	}
	if profile.Recording.MediaType != "" {
		result.Recording.MediaType = profile.Recording.MediaType
	}
	if profile.Recording.ChunkSize != 0 {
		result.Recording.ChunkSize = profile.Recording.ChunkSize
	}
	if profile.Recording.StopTimeoutMs != 0 {
		result.Recording.StopTimeoutMs = profile.Recording.StopTimeoutMs
	}

	if profile.Share.Title != "" {
		result.Share.Title = profile.Share.Title
	}
	if len(profile.Share.Command) > 0 {
		result.Share.Command = profile.Share.Command
	}
	if profile.Share.Filename != "" {
		result.Share.Filename = profile.Share.Filename
	}
	if profile.Share.DownloadDirectory != "" {
		result.Share.DownloadDirectory = profile.Share.DownloadDirectory
	}

	if profile.Server.Port != "" {
		result.Server.Port = profile.Server.Port
	}
	if profile.Server.PublicURL != "" {
		result.Server.PublicURL = profile.Server.PublicURL
	}
	if profile.Server.IntentRate != 0 {
		result.Server.IntentRate = profile.Server.IntentRate
	}
	if profile.Server.IntentBurst != 0 {
		result.Server.IntentBurst = profile.Server.IntentBurst
	}

	return &result
}

// AutoStartEnabled reports whether recording starts when tracking is ready
func (r RecordingConfig) AutoStartEnabled() bool {
	return r.AutoStart == nil || *r.AutoStart
}

// Bool returns a pointer to v, for optional config fields
func Bool(v bool) *bool {
	return &v
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Validate checks a resolved configuration
func Validate(cfg *Config) error {
	if len(cfg.Tracking.Command) == 0 || strings.TrimSpace(cfg.Tracking.Command[0]) == "" {
		return fmt.Errorf("tracking.command is required")
	}
	if cfg.Tracking.TargetFile == "" {
		return fmt.Errorf("tracking.target_file is required")
	}
	if cfg.Tracking.Facing != "back" && cfg.Tracking.Facing != "front" {
		return fmt.Errorf("tracking.facing must be 'back' or 'front', got: %s", cfg.Tracking.Facing)
	}
	if cfg.Tracking.FrameRate <= 0 || cfg.Tracking.FrameRate > 240 {
		return fmt.Errorf("tracking.frame_rate must be between 1 and 240, got: %d", cfg.Tracking.FrameRate)
	}
	if cfg.Tracking.StopTimeoutMs < 0 {
		return fmt.Errorf("tracking.stop_timeout_ms must be >= 0, got: %d", cfg.Tracking.StopTimeoutMs)
	}

	if cfg.Overlay.Scale <= 0 {
		return fmt.Errorf("overlay.scale must be > 0, got: %.2f", cfg.Overlay.Scale)
	}

	if cfg.Recording.ChunkSize <= 0 {
		return fmt.Errorf("recording.chunk_size must be > 0, got: %d", cfg.Recording.ChunkSize)
	}
	if cfg.Recording.MediaType != "video/webm" {
		return fmt.Errorf("recording.media_type must be video/webm, got: %s", cfg.Recording.MediaType)
	}

	if cfg.Share.Filename == "" || strings.ContainsAny(cfg.Share.Filename, `/\`) {
		return fmt.Errorf("share.filename must be a plain file name, got: %q", cfg.Share.Filename)
	}

	if cfg.Server.IntentRate < 0 || cfg.Server.IntentBurst < 0 {
		return fmt.Errorf("server.intent_rate and server.intent_burst must be >= 0")
	}

	return nil
}
