package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wricardo/mcp-training/roadracer/game/service"
)

var (
	ErrDifficultyNotFound = errors.New("difficulty not found")
	ErrInvalidSettings    = errors.New("invalid settings")
)

const (
	SettingsName = "roadracer"
	EnvPrefix    = "ROADRACER"
)

// DifficultySettings is one preset as written in the settings file
type DifficultySettings struct {
	Description    string  `mapstructure:"description" json:"description,omitempty"`
	MaxSpeedFactor float64 `mapstructure:"max_speed_factor" json:"max_speed_factor"`
	BurstFactor    float64 `mapstructure:"burst_factor" json:"burst_factor"`
	Track          string  `mapstructure:"track" json:"track"`
}

// NgrokSettings configures the optional public tunnel
type NgrokSettings struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Domain  string `mapstructure:"domain" json:"domain,omitempty"`
}

// Settings are the process-wide options for the server and local clients
type Settings struct {
	Host              string                        `mapstructure:"host" json:"host"`
	Port              int                           `mapstructure:"port" json:"port"`
	TracksDir         string                        `mapstructure:"tracks_dir" json:"tracks_dir"`
	LogLevel          string                        `mapstructure:"log_level" json:"log_level"`
	LogPretty         bool                          `mapstructure:"log_pretty" json:"log_pretty"`
	TickRate          int                           `mapstructure:"tick_rate" json:"tick_rate"`
	SessionTTL        time.Duration                 `mapstructure:"session_ttl" json:"session_ttl"`
	MusicFile         string                        `mapstructure:"music_file" json:"music_file,omitempty"`
	DefaultDifficulty string                        `mapstructure:"default_difficulty" json:"default_difficulty"`
	Presets           map[string]DifficultySettings `mapstructure:"difficulties" json:"difficulties"`
	Ngrok             NgrokSettings                 `mapstructure:"ngrok" json:"ngrok"`
}

// SetDefaults registers the built-in values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 8080)
	v.SetDefault("tracks_dir", "tracks")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", true)
	v.SetDefault("tick_rate", service.DefaultTickRate)
	v.SetDefault("session_ttl", "30m")
	v.SetDefault("music_file", "")
	v.SetDefault("default_difficulty", service.DefaultDifficulty)

	v.SetDefault("difficulties.easy.description", "Short straight with one slow stretch")
	v.SetDefault("difficulties.easy.max_speed_factor", 0.8)
	v.SetDefault("difficulties.easy.burst_factor", 0.7)
	v.SetDefault("difficulties.easy.track", "track_a")

	v.SetDefault("difficulties.hard.description", "Switchbacks and chicanes")
	v.SetDefault("difficulties.hard.max_speed_factor", 0.8)
	v.SetDefault("difficulties.hard.burst_factor", 0.7)
	v.SetDefault("difficulties.hard.track", "track_b")

	v.SetDefault("ngrok.enabled", false)
	v.SetDefault("ngrok.domain", "")
}

// NewViper returns a viper instance with defaults and ROADRACER_* env
// overrides. path selects a settings file; empty searches for
// roadracer.json in the working directory.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(SettingsName)
		v.SetConfigType("json")
		v.AddConfigPath(".")
	}
	return v
}

// LoadSettings reads the settings file if there is one and validates the
// result. A missing file is only an error when a path was given.
func LoadSettings(v *viper.Viper) (*Settings, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || v.ConfigFileUsed() != "" {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks ports, rates and every difficulty preset
func (s *Settings) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("%w: port must be between 0 and 65535, got %d", ErrInvalidSettings, s.Port)
	}
	if s.TickRate <= 0 || s.TickRate > service.MaxTickRate {
		return fmt.Errorf("%w: tick_rate must be between 1 and %d, got %d", ErrInvalidSettings, service.MaxTickRate, s.TickRate)
	}
	if len(s.Presets) == 0 {
		return fmt.Errorf("%w: at least one difficulty is required", ErrInvalidSettings)
	}
	for name, d := range s.Presets {
		if !(d.MaxSpeedFactor > 0) || math.IsInf(d.MaxSpeedFactor, 0) {
			return fmt.Errorf("%w: difficulty %s: max_speed_factor must be positive", ErrInvalidSettings, name)
		}
		if !(d.BurstFactor > 0) || math.IsInf(d.BurstFactor, 0) {
			return fmt.Errorf("%w: difficulty %s: burst_factor must be positive", ErrInvalidSettings, name)
		}
		if d.Track == "" {
			return fmt.Errorf("%w: difficulty %s: track is required", ErrInvalidSettings, name)
		}
	}
	if _, ok := s.Presets[strings.ToLower(s.DefaultDifficulty)]; !ok {
		return fmt.Errorf("%w: default_difficulty %q is not defined", ErrInvalidSettings, s.DefaultDifficulty)
	}
	return nil
}

// Addr is host:port for the HTTP listener
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Difficulty resolves a preset by name, case-insensitively
func (s *Settings) Difficulty(name string) (*service.Difficulty, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = strings.ToLower(s.DefaultDifficulty)
	}
	d, ok := s.Presets[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDifficultyNotFound, name)
	}
	return &service.Difficulty{
		Name:           key,
		Description:    d.Description,
		MaxSpeedFactor: d.MaxSpeedFactor,
		BurstFactor:    d.BurstFactor,
		TrackID:        d.Track,
	}, nil
}

// Difficulties lists every preset sorted by name
func (s *Settings) Difficulties() []*service.Difficulty {
	names := make([]string, 0, len(s.Presets))
	for name := range s.Presets {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*service.Difficulty, 0, len(names))
	for _, name := range names {
		d, _ := s.Difficulty(name)
		out = append(out, d)
	}
	return out
}
