// Package config loads the YAML configuration file. Every knob has a
// default so a missing file or empty section still yields a runnable setup.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

type Config struct {
	HTTP      HTTP        `yaml:"http"`
	DB        DB          `yaml:"db"`
	Scheduler Scheduler   `yaml:"scheduler"`
	Recurring []Recurring `yaml:"recurring"`
}

type HTTP struct {
	Addr            string  `yaml:"addr"`
	SubmitPerSecond float64 `yaml:"submit_per_second"`
	SubmitBurst     int     `yaml:"submit_burst"`
}

type DB struct {
	Path string `yaml:"path"`
}

// Scheduler carries the scheduling knobs. Durations are Go duration strings
// ("250ms", "5s"); they are validated at load time.
type Scheduler struct {
	TickInterval    string `yaml:"tick_interval"`
	MaxConcurrent   int    `yaml:"max_concurrent"`
	FetchBatch      int    `yaml:"fetch_batch"`
	BackoffUnit     string `yaml:"backoff_unit"`
	DefaultPriority int    `yaml:"default_priority"`
}

type Recurring struct {
	Type     string `yaml:"type"`
	Every    string `yaml:"every"`
	Payload  string `yaml:"payload"` // JSON document, passed verbatim
	Priority int    `yaml:"priority"`
	AgentID  string `yaml:"agent_id"`
}

func Default() Config {
	return Config{
		HTTP: HTTP{Addr: ":8080", SubmitPerSecond: 50, SubmitBurst: 100},
		DB:   DB{Path: "agentflow.db"},
		Scheduler: Scheduler{
			TickInterval:    "250ms",
			MaxConcurrent:   4,
			FetchBatch:      50,
			BackoffUnit:     "5s",
			DefaultPriority: 5,
		},
	}
}

// Load reads path over the defaults. Unknown keys are errors so typos don't
// silently fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := ParseDurationField("scheduler.tick_interval", c.Scheduler.TickInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.backoff_unit", c.Scheduler.BackoffUnit); err != nil {
		return err
	}
	for i, r := range c.Recurring {
		if r.Type == "" {
			return fmt.Errorf("recurring[%d]: type is required", i)
		}
		d, err := ParseDurationField(fmt.Sprintf("recurring[%d].every", i), r.Every)
		if err != nil {
			return err
		}
		if d <= 0 {
			return fmt.Errorf("recurring[%d].every: interval is required", i)
		}
	}
	return nil
}

// ParseDurationField parses a duration string, reporting the config path on
// error. Empty input yields zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for empty or
// zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
