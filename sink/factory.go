package sink

import (
	"fmt"
	"strings"
)

type Config struct {
	Type    string        `json:"type" yaml:"type" toml:"type"`
	Console ConsoleConfig `json:"console,omitempty" yaml:"console,omitempty" toml:"console,omitempty"`
	Stdout  StdoutConfig  `json:"stdout,omitempty" yaml:"stdout,omitempty" toml:"stdout,omitempty"`
	Redis   RedisConfig   `json:"redis,omitempty" yaml:"redis,omitempty" toml:"redis,omitempty"`
	Pebble  PebbleConfig  `json:"pebble,omitempty" yaml:"pebble,omitempty" toml:"pebble,omitempty"`
	Kafka   KafkaConfig   `json:"kafka,omitempty" yaml:"kafka,omitempty" toml:"kafka,omitempty"`
}

type ConsoleConfig struct {
	NoColor        bool   `json:"no_color" yaml:"no_color" toml:"no_color"`
	MaxColumnWidth int    `json:"max_column_width" yaml:"max_column_width" toml:"max_column_width"`
	BinaryFormat   string `json:"binary_format" yaml:"binary_format" toml:"binary_format"`
}

type StdoutConfig struct {
	PrettyPrint bool `json:"pretty_print" yaml:"pretty_print" toml:"pretty_print"`
}

// Types lists the sink types New understands.
var Types = []string{"console", "stdout", "redis", "pebble", "kafka", "debug"}

// New builds the sink selected by cfg.Type.
func New(cfg Config) (Sink, error) {
	switch strings.ToLower(cfg.Type) {
	case "console":
		opts := []ConsoleSinkOption{WithColorOutput(!cfg.Console.NoColor)}
		if cfg.Console.MaxColumnWidth > 0 {
			opts = append(opts, WithMaxColumnWidth(cfg.Console.MaxColumnWidth))
		}
		if cfg.Console.BinaryFormat != "" {
			opts = append(opts, WithBinaryFormat(cfg.Console.BinaryFormat))
		}
		return NewConsoleSink(opts...), nil
	case "stdout":
		return NewStdoutSink(cfg.Stdout.PrettyPrint), nil
	case "redis":
		return NewRedisSink(cfg.Redis)
	case "pebble":
		return NewPebbleSink(cfg.Pebble)
	case "kafka":
		return NewKafkaSink(cfg.Kafka)
	case "debug":
		return NewDebugSink(), nil
	default:
		return nil, fmt.Errorf("unsupported sink type: %s", cfg.Type)
	}
}
