// Package config loads the evaluator configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sanonone/streamrpq/pkg/adaptive"
	"github.com/sanonone/streamrpq/pkg/core/automaton"
	"github.com/sanonone/streamrpq/pkg/core/graph"
	"github.com/sanonone/streamrpq/pkg/core/types"
	"github.com/sanonone/streamrpq/pkg/drift"
	"github.com/sanonone/streamrpq/pkg/window"
)

var validate = validator.New()

// Config is the full run configuration.
type Config struct {
	Query     QueryConfig     `yaml:"query"`
	Window    WindowConfig    `yaml:"window"`
	Mode      string          `yaml:"mode" validate:"oneof=fixed resize drift shed"`
	Cost      string          `yaml:"cost" validate:"omitempty,oneof=n_over_max_degree avg_degree n max_degree init_times_edges"`
	Warmup    int             `yaml:"warmup" validate:"gte=0"`
	Retention RetentionConfig `yaml:"retention"`
	Drift     DriftConfig     `yaml:"drift"`
	Shed      ShedConfig      `yaml:"shed"`
	Input     InputConfig     `yaml:"input"`
	Output    OutputConfig    `yaml:"output"`
	Debug     DebugConfig     `yaml:"debug"`
	Log       LogConfig       `yaml:"log"`
}

// QueryConfig selects a query template and binds its symbols to labels.
type QueryConfig struct {
	ID     int     `yaml:"id" validate:"required,oneof=1 2 3 4 5 6 7 10 11"`
	Labels []int64 `yaml:"labels" validate:"required,min=1,max=3"`
}

type WindowConfig struct {
	Size    int64 `yaml:"size" validate:"gt=0"`
	Slide   int64 `yaml:"slide" validate:"gt=0"`
	MinSize int64 `yaml:"min_size" validate:"gte=0"`
	MaxSize int64 `yaml:"max_size" validate:"gte=0"`
}

type RetentionConfig struct {
	Enabled bool `yaml:"enabled"`
	// ZScore is the density threshold: edges with an endpoint above it are
	// deleted at eviction, the others migrate while they have lives left.
	ZScore float64 `yaml:"zscore"`
	Lives  int     `yaml:"lives" validate:"gte=1"`
}

type DriftConfig struct {
	Delta        float64 `yaml:"delta" validate:"gt=0,lt=1"`
	Warmup       int     `yaml:"warmup" validate:"gte=0"`
	MaxWindow    int     `yaml:"max_window" validate:"gt=0"`
	MinSubWindow int     `yaml:"min_sub_window" validate:"gt=0"`
	Clock        int     `yaml:"clock" validate:"gt=0"`
}

type ShedConfig struct {
	Condition          string        `yaml:"condition" validate:"oneof=probabilistic latency"`
	Granularity        float64       `yaml:"granularity" validate:"gt=0,lte=1"`
	MaxProbability     float64       `yaml:"max_probability" validate:"gte=0,lte=1"`
	InitialProbability float64       `yaml:"initial_probability" validate:"gte=0,lte=1"`
	LatencyMax         time.Duration `yaml:"latency_max"`
	Seed               uint64        `yaml:"seed"`
}

type InputConfig struct {
	Path       string `yaml:"path"`
	OutOfOrder string `yaml:"out_of_order" validate:"oneof=skip fail"`
}

type OutputConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

type DebugConfig struct {
	// Addr enables the step gate server when non-empty.
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
	// Step starts the run paused.
	Step bool `yaml:"step"`
	// Token, when set, is required as a bearer token by the debug server.
	Token string `yaml:"token"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// DefaultConfig returns a runnable configuration: query a+ over label 1,
// fixed windows of size 10 and slide 1.
func DefaultConfig() Config {
	return Config{
		Query:  QueryConfig{ID: 1, Labels: []int64{1}},
		Window: WindowConfig{Size: 10, Slide: 1, MinSize: 1, MaxSize: 100},
		Mode:   adaptive.ModeFixed,
		Cost:   adaptive.CostInitOverMaxDegree,
		Warmup: 10,
		Retention: RetentionConfig{
			ZScore: 2,
			Lives:  1,
		},
		Drift: DriftConfig{
			Delta:        0.002,
			Warmup:       2700,
			MaxWindow:    4096,
			MinSubWindow: 5,
			Clock:        32,
		},
		Shed: ShedConfig{
			Condition:      adaptive.ShedProbabilistic,
			Granularity:    0.01,
			MaxProbability: 0.5,
			LatencyMax:     time.Millisecond,
			Seed:           42,
		},
		Input:  InputConfig{OutOfOrder: "skip"},
		Output: OutputConfig{Dir: "results"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads path over DefaultConfig and validates the result. An
// empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("YAML syntax error in config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints and the relations between fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	if c.Window.Size < c.Window.Slide {
		errs = append(errs, fmt.Errorf("window.size %d is smaller than window.slide %d", c.Window.Size, c.Window.Slide))
	}
	if c.Mode == adaptive.ModeResize {
		if c.Window.MinSize < c.Window.Slide || c.Window.MaxSize < c.Window.MinSize {
			errs = append(errs, fmt.Errorf("window bounds must satisfy slide <= min_size <= max_size (slide=%d min=%d max=%d)",
				c.Window.Slide, c.Window.MinSize, c.Window.MaxSize))
		}
	}
	if c.Retention.Enabled && c.Retention.ZScore <= -1 {
		errs = append(errs, fmt.Errorf("retention.zscore %.3f must exceed -1", c.Retention.ZScore))
	}
	if c.Shed.InitialProbability > c.Shed.MaxProbability {
		errs = append(errs, fmt.Errorf("shed.initial_probability %.3f exceeds shed.max_probability %.3f",
			c.Shed.InitialProbability, c.Shed.MaxProbability))
	}
	if _, err := c.Automaton(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Automaton builds the configured query automaton.
func (c *Config) Automaton() (*automaton.Automaton, error) {
	labels := make([]types.Label, len(c.Query.Labels))
	copy(labels, c.Query.Labels)
	return automaton.FromQuery(c.Query.ID, labels)
}

func (c *Config) GraphOptions() graph.Options {
	return graph.Options{Lives: c.Retention.Lives}
}

func (c *Config) WindowOptions() window.Options {
	opts := window.Options{
		Size:  c.Window.Size,
		Slide: c.Window.Slide,
		Retention: window.RetentionOptions{
			Enabled:   c.Retention.Enabled,
			Threshold: c.Retention.ZScore,
		},
	}
	if c.Mode == adaptive.ModeResize {
		opts.MaxSize = c.Window.MaxSize
	}
	return opts
}

func (c *Config) AdaptiveConfig() adaptive.Config {
	warmup := c.Warmup
	if c.Mode == adaptive.ModeDrift {
		warmup = c.Drift.Warmup
	}
	return adaptive.Config{
		Mode:    c.Mode,
		Cost:    c.Cost,
		Warmup:  warmup,
		MinSize: c.Window.MinSize,
		MaxSize: c.Window.MaxSize,
		Shed: adaptive.ShedOptions{
			Condition:          c.Shed.Condition,
			Granularity:        c.Shed.Granularity,
			MaxProbability:     c.Shed.MaxProbability,
			InitialProbability: c.Shed.InitialProbability,
			LatencyMax:         c.Shed.LatencyMax,
			Seed:               c.Shed.Seed,
		},
	}
}

func (c *Config) DriftOptions() drift.Options {
	return drift.Options{
		Delta:        c.Drift.Delta,
		MaxWindow:    c.Drift.MaxWindow,
		MinSubWindow: c.Drift.MinSubWindow,
		Clock:        c.Drift.Clock,
	}
}

// LogLevel maps Log.Level to a slog level.
func (c *Config) LogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
