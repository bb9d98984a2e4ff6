package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/web3tea/pgcdc-sentinel/keyvalue"
	"github.com/web3tea/pgcdc-sentinel/sentinel"
	"github.com/web3tea/pgcdc-sentinel/sink"
)

type Config struct {
	AppName  string `json:"app_name" yaml:"app_name" toml:"app_name"`
	Version  string `json:"version" yaml:"version" toml:"version"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	// Source is a file of test_decoding lines, "-" reads stdin.
	Source        string   `json:"source" yaml:"source" toml:"source"`
	BatchSize     int      `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	FlushInterval Duration `json:"flush_interval" yaml:"flush_interval" toml:"flush_interval"`

	Decoder   DecoderConfig   `json:"decoder" yaml:"decoder" toml:"decoder"`
	KeyValue  KeyValueConfig  `json:"keyvalue" yaml:"keyvalue" toml:"keyvalue"`
	Processor ProcessorConfig `json:"processor" yaml:"processor" toml:"processor"`
	Sink      sink.Config     `json:"sink" yaml:"sink" toml:"sink"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics" toml:"metrics"`
}

type DecoderConfig struct {
	// OnError is "halt" or "skip".
	OnError string `json:"on_error" yaml:"on_error" toml:"on_error"`
}

type KeyValueConfig struct {
	Delimiter string `json:"delimiter" yaml:"delimiter" toml:"delimiter"`
	// ValueFormat is "json" or "msgpack".
	ValueFormat string `json:"value_format" yaml:"value_format" toml:"value_format"`
	// PrimaryKeys maps "schema<delimiter>table" to primary key column indices.
	PrimaryKeys map[string][]int `json:"primary_keys" yaml:"primary_keys" toml:"primary_keys"`
	// Catalog, when set, resolves tables missing from PrimaryKeys against Postgres.
	Catalog   *keyvalue.DatabaseConfig `json:"catalog,omitempty" yaml:"catalog,omitempty" toml:"catalog,omitempty"`
	CacheSize int                      `json:"cache_size" yaml:"cache_size" toml:"cache_size"`
}

type ProcessorConfig struct {
	Filter FilterConfig `json:"filter" yaml:"filter" toml:"filter"`
	// DatasetRename maps a dataset name to the name used by the sink.
	DatasetRename map[string]string `json:"dataset_rename" yaml:"dataset_rename" toml:"dataset_rename"`
}

type FilterConfig struct {
	Types          []string `json:"types" yaml:"types" toml:"types"`
	Schemas        []string `json:"schemas" yaml:"schemas" toml:"schemas"`
	Tables         []string `json:"tables" yaml:"tables" toml:"tables"`
	ExcludeSchemas []string `json:"exclude_schemas" yaml:"exclude_schemas" toml:"exclude_schemas"`
	ExcludeTables  []string `json:"exclude_tables" yaml:"exclude_tables" toml:"exclude_tables"`
}

func (f FilterConfig) Empty() bool {
	return len(f.Types) == 0 && len(f.Schemas) == 0 && len(f.Tables) == 0 &&
		len(f.ExcludeSchemas) == 0 && len(f.ExcludeTables) == 0
}

type MetricsConfig struct {
	// Listen is the address serving /metrics. Empty disables metrics.
	Listen string `json:"listen" yaml:"listen" toml:"listen"`
}

// Duration reads "5s" style strings from TOML and JSON.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	switch {
	case strings.HasSuffix(path, ".json"):
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case strings.HasSuffix(path, ".toml"):
		if _, err := toml.Decode(string(data), config); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", path)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, errors.Newf("log_level %q is not a known level", c.LogLevel))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, errors.Newf("batch_size must be positive, got %d", c.BatchSize))
	}
	if c.FlushInterval < 0 {
		errs = append(errs, errors.New("flush_interval must not be negative"))
	}
	if !sentinel.OnError(c.Decoder.OnError).Valid() {
		errs = append(errs, errors.Newf("decoder.on_error must be halt or skip, got %q", c.Decoder.OnError))
	}
	if !lo.Contains([]string{"json", "msgpack"}, c.KeyValue.ValueFormat) {
		errs = append(errs, errors.Newf("keyvalue.value_format must be json or msgpack, got %q", c.KeyValue.ValueFormat))
	}
	if c.KeyValue.Delimiter == "" {
		errs = append(errs, errors.New("keyvalue.delimiter must not be empty"))
	}
	if c.KeyValue.CacheSize < 0 {
		errs = append(errs, errors.New("keyvalue.cache_size must not be negative"))
	}
	for dataset, indices := range c.KeyValue.PrimaryKeys {
		if len(indices) == 0 {
			errs = append(errs, errors.Newf("keyvalue.primary_keys.%s has no indices", dataset))
		}
		if lo.SomeBy(indices, func(i int) bool { return i < 0 }) {
			errs = append(errs, errors.Newf("keyvalue.primary_keys.%s has a negative index", dataset))
		}
	}
	if cat := c.KeyValue.Catalog; cat != nil && (len(cat.Hosts) == 0 || cat.Database == "") {
		errs = append(errs, errors.New("keyvalue.catalog needs hosts and database"))
	}
	if !lo.Contains(sink.Types, strings.ToLower(c.Sink.Type)) {
		errs = append(errs, errors.Newf("sink.type must be one of %s, got %q", strings.Join(sink.Types, ", "), c.Sink.Type))
	}

	return errors.Join(errs...)
}

func DefaultConfig() *Config {
	return &Config{
		AppName:       "pgcdc-sentinel",
		Version:       "0.1.0",
		LogLevel:      "info",
		Source:        "-",
		BatchSize:     1000,
		FlushInterval: Duration(5 * time.Second),
		Decoder: DecoderConfig{
			OnError: string(sentinel.OnErrorHalt),
		},
		KeyValue: KeyValueConfig{
			Delimiter:   keyvalue.DefaultDelimiter,
			ValueFormat: "json",
			CacheSize:   1024,
		},
		Sink: sink.Config{
			Type: "console",
		},
	}
}
