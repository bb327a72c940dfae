// Package config loads the unit's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chase3718/glowsync/internal/audio"
	"github.com/chase3718/glowsync/internal/button"
	"github.com/chase3718/glowsync/internal/pattern"
	"github.com/chase3718/glowsync/internal/syncproto"
)

// SerialConfig selects the LED controller port.
type SerialConfig struct {
	Enabled bool     `yaml:"enabled"`
	Device  string   `yaml:"device"`
	Baud    int      `yaml:"baud"`
	Mirrors []string `yaml:"mirrors,omitempty"` // extra controllers showing the same frame
}

// AudioConfig selects the sample source and tunes the brightness envelope.
type AudioConfig struct {
	WAV        string `yaml:"wav,omitempty"` // looped in place of a microphone; empty means silence
	SampleRate int    `yaml:"sample_rate"`
	Window     int    `yaml:"window"` // samples per tick

	BaseBrightness      float64       `yaml:"base_brightness"`
	MaxBrightness       float64       `yaml:"max_brightness"`
	ExcitementThreshold float64       `yaml:"excitement_threshold"`
	Exponent            float64       `yaml:"exponent"`
	DecayTime           time.Duration `yaml:"decay_time"`
}

// SyncConfig controls the broadcast channel.
type SyncConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Broadcast string `yaml:"broadcast"`
	Advertise bool   `yaml:"advertise"`
}

// MIDIConfig filters controller ports used as the button.
type MIDIConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Preferred []string `yaml:"preferred,omitempty"`
	Excluded  []string `yaml:"excluded,omitempty"`
}

// Config is the main configuration structure.
type Config struct {
	LEDs             int    `yaml:"leds"`
	NormalBrightness uint8  `yaml:"normal_brightness"`
	Seed             uint64 `yaml:"seed,omitempty"` // 0 picks a random seed

	Serial SerialConfig `yaml:"serial"`
	Audio  AudioConfig  `yaml:"audio"`
	Sync   SyncConfig   `yaml:"sync"`
	MIDI   MIDIConfig   `yaml:"midi"`
}

// Default returns the configuration of the reference costume.
func Default() *Config {
	p := audio.DefaultParams()
	return &Config{
		LEDs:             pattern.DefaultLEDCount,
		NormalBrightness: 160,
		Serial: SerialConfig{
			Enabled: true,
			Device:  "/dev/ttyACM0",
			Baud:    500000,
		},
		Audio: AudioConfig{
			SampleRate:          16000,
			Window:              256,
			BaseBrightness:      p.BaseBrightness,
			MaxBrightness:       p.MaxBrightness,
			ExcitementThreshold: p.ExcitementThreshold,
			Exponent:            p.Exponent,
			DecayTime:           p.DecayTime,
		},
		Sync: SyncConfig{
			Enabled:   true,
			Listen:    fmt.Sprintf(":%d", syncproto.DefaultPort),
			Broadcast: fmt.Sprintf("255.255.255.255:%d", syncproto.DefaultPort),
			Advertise: true,
		},
		MIDI: MIDIConfig{
			Enabled:   true,
			Preferred: append([]string(nil), button.DefaultPreferred...),
			Excluded:  append([]string(nil), button.DefaultExcluded...),
		},
	}
}

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "glowsync", "config.yaml"), nil
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %q: %w", path, err)
	}
	return cfg, nil
}

var (
	ErrLEDCount = errors.New("led count out of range")
	ErrAudio    = errors.New("invalid audio settings")
	ErrSerial   = errors.New("invalid serial settings")
	ErrSync     = errors.New("invalid sync settings")
)

// Validate checks ranges the rest of the program relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.LEDs < 1 || c.LEDs > syncproto.MaxLEDs {
		errs = append(errs, fmt.Errorf("%w: %d not in [1,%d]", ErrLEDCount, c.LEDs, syncproto.MaxLEDs))
	}
	if c.Serial.Enabled && (c.Serial.Device == "" || c.Serial.Baud <= 0) {
		errs = append(errs, fmt.Errorf("%w: device %q baud %d", ErrSerial, c.Serial.Device, c.Serial.Baud))
	}
	for _, m := range c.Serial.Mirrors {
		if m == "" || m == c.Serial.Device {
			errs = append(errs, fmt.Errorf("%w: mirror %q", ErrSerial, m))
		}
	}
	a := c.Audio
	switch {
	case a.Window <= 0 || a.SampleRate <= 0:
		errs = append(errs, fmt.Errorf("%w: window %d sample rate %d", ErrAudio, a.Window, a.SampleRate))
	case a.BaseBrightness < 0 || a.MaxBrightness > 255 || a.BaseBrightness > a.MaxBrightness:
		errs = append(errs, fmt.Errorf("%w: brightness %v..%v", ErrAudio, a.BaseBrightness, a.MaxBrightness))
	case a.ExcitementThreshold < 0 || a.ExcitementThreshold >= 1:
		errs = append(errs, fmt.Errorf("%w: excitement threshold %v", ErrAudio, a.ExcitementThreshold))
	case a.Exponent <= 0 || a.DecayTime < 0:
		errs = append(errs, fmt.Errorf("%w: exponent %v decay %v", ErrAudio, a.Exponent, a.DecayTime))
	}
	if c.Sync.Enabled && (c.Sync.Listen == "" || c.Sync.Broadcast == "") {
		errs = append(errs, fmt.Errorf("%w: listen %q broadcast %q", ErrSync, c.Sync.Listen, c.Sync.Broadcast))
	}
	return errors.Join(errs...)
}

// AudioParams merges the envelope settings into the engine defaults.
func (c *Config) AudioParams() audio.Params {
	p := audio.DefaultParams()
	p.BaseBrightness = c.Audio.BaseBrightness
	p.MaxBrightness = c.Audio.MaxBrightness
	p.ExcitementThreshold = c.Audio.ExcitementThreshold
	p.Exponent = c.Audio.Exponent
	p.DecayTime = c.Audio.DecayTime
	return p
}
