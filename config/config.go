// Package config holds the tunable options of an animation session and
// loads them from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Overflow policies for subscriber notification buffers. A slow
// subscriber either loses its oldest pending events or applies
// backpressure to the notifier.
const (
	OverflowDropOldest = "drop-oldest"
	OverflowBlock      = "block"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "250ms" or "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Options configures a session and the stores under it.
type Options struct {
	// CacheCapacity bounds the keyframe cache; 0 selects the storage
	// default.
	CacheCapacity int `yaml:"cache_capacity"`

	// SubscriberBuffer is the per-subscriber change event queue length.
	SubscriberBuffer int `yaml:"subscriber_buffer"`

	// Overflow picks what happens when a subscriber buffer fills.
	Overflow string `yaml:"overflow"`

	// QueueTimeout bounds how long a mutation may wait behind others
	// before it is cancelled. Zero means wait indefinitely.
	QueueTimeout Duration `yaml:"queue_timeout"`

	// StrictLoad makes document loads fail on the first corrupt record
	// instead of skipping it.
	StrictLoad bool `yaml:"strict_load"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the options used when nothing is configured.
func Default() Options {
	return Options{
		SubscriberBuffer: 64,
		Overflow:         OverflowDropOldest,
		LogLevel:         "info",
	}
}

// Validate reports the first invalid option.
func (o Options) Validate() error {
	if o.CacheCapacity < 0 {
		return fmt.Errorf("config: cache_capacity %d is negative", o.CacheCapacity)
	}
	if o.SubscriberBuffer < 1 {
		return fmt.Errorf("config: subscriber_buffer %d must be at least 1", o.SubscriberBuffer)
	}
	switch o.Overflow {
	case OverflowDropOldest, OverflowBlock:
	default:
		return fmt.Errorf("config: unknown overflow policy %q", o.Overflow)
	}
	if o.QueueTimeout < 0 {
		return fmt.Errorf("config: queue_timeout is negative")
	}
	switch o.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", o.LogLevel)
	}
	return nil
}

// Level converts LogLevel to a slog.Level.
func (o Options) Level() slog.Level {
	switch o.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads options from a YAML file, filling unset fields from
// Default and validating the result.
func Load(path string) (Options, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	opts := Default()
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		return Options{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}
