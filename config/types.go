// Package config loads dispatcher settings from YAML and turns them into
// core.Options plus the logging, metrics and tracing wiring around them.
package config

// Config is the root of a dispatcher configuration file.
type Config struct {
	Queues          QueuesConfig  `yaml:"queues" json:"queues"`
	Delay           DelayConfig   `yaml:"delay" json:"delay"`
	Log             LogConfig     `yaml:"log" json:"log"`
	Metrics         MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing         TracingConfig `yaml:"tracing" json:"tracing"`
	History         int           `yaml:"history" json:"history"`
	RejectedLogRate int           `yaml:"rejected_log_rate" json:"rejected_log_rate"`
}

// QueuesConfig sizes the concurrent class queues. Main is always serial.
type QueuesConfig struct {
	UserInteractive QueueConfig `yaml:"user_interactive" json:"user_interactive"`
	UserInitiated   QueueConfig `yaml:"user_initiated" json:"user_initiated"`
	Utility         QueueConfig `yaml:"utility" json:"utility"`
	Background      QueueConfig `yaml:"background" json:"background"`

	// StallTimeout is how long a class may sit with a backlog and every
	// worker busy before an overflow worker is added. Empty selects 100ms.
	StallTimeout string `yaml:"stall_timeout" json:"stall_timeout"`
}

// QueueConfig sizes one queue. Zero workers selects the built-in default.
type QueueConfig struct {
	Workers int `yaml:"workers" json:"workers"`
}

type DelayConfig struct {
	MaxIdle string `yaml:"max_idle" json:"max_idle"`
}

// LogConfig selects the level and encoding of the dispatcher log.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // trace|debug|info|warn|error
	Format string `yaml:"format" json:"format"` // console|json
}

type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	Namespace    string `yaml:"namespace" json:"namespace"`
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
	Listen       string `yaml:"listen" json:"listen"`
}

type TracingConfig struct {
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	ServiceName    string `yaml:"service_name" json:"service_name"`
	ServiceVersion string `yaml:"service_version" json:"service_version"`
	Output         string `yaml:"output" json:"output"` // stdout|stderr|<file>
}
