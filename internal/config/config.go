package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

// Config is the castbridge configuration file.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Control   ControlConfig   `yaml:"control"`
	Probe     ProbeConfig     `yaml:"probe"`
	Media     MediaConfig     `yaml:"media"`
	Selection SelectionConfig `yaml:"selection"`
}

// DiscoveryConfig selects and tunes the DNS-SD browser.
type DiscoveryConfig struct {
	Backend          string        `yaml:"backend"`
	Service          string        `yaml:"service"`
	Domain           string        `yaml:"domain"`
	Interface        string        `yaml:"interface,omitempty"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	QueriesPerSecond float64       `yaml:"queries_per_second"`
}

// ControlConfig tunes the cast control connection.
type ControlConfig struct {
	ConnectRetries   int           `yaml:"connect_retries"`
	LaunchTimeout    time.Duration `yaml:"launch_timeout"`
	StatusInterval   time.Duration `yaml:"status_interval"`
	AppID            string        `yaml:"app_id"`
	StopMediaOnClose bool          `yaml:"stop_media_on_close"`
}

// ProbeConfig tunes the content-type probe.
type ProbeConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	Retries       int           `yaml:"retries"`
	SniffFallback bool          `yaml:"sniff_fallback"`
}

// MediaConfig is what the receiver shows while buffering.
type MediaConfig struct {
	Title      string `yaml:"title"`
	ImageURL   string `yaml:"image_url,omitempty"`
	StreamType string `yaml:"stream_type"`
}

// SelectionConfig restricts which discovered devices are connected to.
// An empty DeviceName means the most recently discovered device wins.
type SelectionConfig struct {
	DeviceName string `yaml:"device_name,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Discovery: DiscoveryConfig{
			Backend:          "mdns",
			Service:          "_googlecast._tcp",
			Domain:           "local.",
			QueryTimeout:     750 * time.Millisecond,
			PollInterval:     4 * time.Second,
			QueriesPerSecond: 4,
		},
		Control: ControlConfig{
			ConnectRetries: 5,
			LaunchTimeout:  15 * time.Second,
			StatusInterval: 1 * time.Second,
			AppID:          "CC1AD845",
		},
		Probe: ProbeConfig{
			Timeout:       10 * time.Second,
			Retries:       2,
			SniffFallback: true,
		},
		Media: MediaConfig{
			Title:      "Chromecast Stream",
			ImageURL:   "http://commondatastorage.googleapis.com/gtv-videos-bucket/sample/images/BigBuckBunny.jpg",
			StreamType: "BUFFERED",
		},
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch c.Discovery.Backend {
	case "mdns", "zeroconf":
	default:
		return errors.Wrapf(ErrInvalid, "discovery.backend %q", c.Discovery.Backend)
	}
	switch c.Media.StreamType {
	case "BUFFERED", "LIVE":
	default:
		return errors.Wrapf(ErrInvalid, "media.stream_type %q", c.Media.StreamType)
	}
	if c.Discovery.QueryTimeout <= 0 || c.Discovery.PollInterval <= 0 || c.Discovery.QueriesPerSecond <= 0 {
		return errors.Wrap(ErrInvalid, "discovery timings must be positive")
	}
	if c.Control.LaunchTimeout <= 0 || c.Control.StatusInterval <= 0 {
		return errors.Wrap(ErrInvalid, "control timings must be positive")
	}
	if c.Probe.Timeout <= 0 || c.Probe.Retries < 0 {
		return errors.Wrap(ErrInvalid, "probe timeout must be positive and retries non-negative")
	}
	if c.Control.AppID == "" {
		return errors.Wrap(ErrInvalid, "control.app_id is empty")
	}
	return nil
}

// DefaultPath returns the config file location under the user config dir.
func DefaultPath() (string, error) {
	oscfg, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("DefaultPath: failed to get config dir: %w", err)
	}

	return filepath.Join(oscfg, "castbridge", "config.yaml"), nil
}

// Load reads the config at path. A missing file is created with the
// defaults. Fields absent from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			conf := Default()
			if err := Save(path, conf); err != nil {
				return nil, err
			}
			return conf, nil
		}

		return nil, fmt.Errorf("Load: failed to read config: %w", err)
	}

	conf := Default()
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("Load: failed to parse config: %w", err)
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return conf, nil
}

// Save writes conf to path, creating parent directories.
func Save(path string, conf *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("Save: failed to create config dir: %w", err)
	}

	b, err := yaml.Marshal(conf)
	if err != nil {
		return fmt.Errorf("Save: failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("Save: failed to write config: %w", err)
	}

	return nil
}
