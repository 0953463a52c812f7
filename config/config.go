package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	yaml "go.yaml.in/yaml/v3"
)

// Default returns the configuration used when no file is given: built-in
// worker counts, info-level console logging, metrics and tracing off.
func Default() *Config {
	return &Config{
		Delay: DelayConfig{MaxIdle: "1h"},
		Log:   LogConfig{Level: "info", Format: "console"},
		Metrics: MetricsConfig{
			Namespace:    "dispatch",
			PollInterval: "1s",
			Listen:       ":9090",
		},
		Tracing: TracingConfig{
			ServiceName: "dispatch",
			Output:      "stdout",
		},
		History:         100,
		RejectedLogRate: 1,
	}
}

// Parse decodes a YAML (or JSON) document over Default and validates the
// result. Unknown keys and trailing documents are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errors.New("config: trailing document")
		}
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	for _, q := range []struct {
		path    string
		workers int
	}{
		{"queues.user_interactive.workers", c.Queues.UserInteractive.Workers},
		{"queues.user_initiated.workers", c.Queues.UserInitiated.Workers},
		{"queues.utility.workers", c.Queues.Utility.Workers},
		{"queues.background.workers", c.Queues.Background.Workers},
	} {
		if q.workers < 0 {
			check(fmt.Errorf("%s: must be >= 0, got %d", q.path, q.workers))
		}
	}

	_, err := ParseDurationField("queues.stall_timeout", c.Queues.StallTimeout)
	check(err)

	_, err = ParseDurationField("delay.max_idle", c.Delay.MaxIdle)
	check(err)

	if _, err := parseLevel(c.Log.Level); err != nil {
		check(fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "console", "json":
	default:
		check(fmt.Errorf("log.format: want console or json, got %q", c.Log.Format))
	}

	_, err = ParseDurationField("metrics.poll_interval", c.Metrics.PollInterval)
	check(err)
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Namespace) == "" {
		check(errors.New("metrics.namespace: required when metrics are enabled"))
	}

	if c.Tracing.Enabled && strings.TrimSpace(c.Tracing.ServiceName) == "" {
		check(errors.New("tracing.service_name: required when tracing is enabled"))
	}

	if c.History < 0 {
		check(fmt.Errorf("history: must be >= 0, got %d", c.History))
	}
	if c.RejectedLogRate < 0 {
		check(fmt.Errorf("rejected_log_rate: must be >= 0, got %d", c.RejectedLogRate))
	}

	return errors.Join(errs...)
}

// parseLevel maps a level name to zerolog. Empty input is info.
func parseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, err
	}
	if lvl == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("unknown level %q", s)
	}
	return lvl, nil
}
