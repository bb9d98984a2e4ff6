package di

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"
	"github.com/web3tea/pgcdc-sentinel/config"
	"github.com/web3tea/pgcdc-sentinel/keyvalue"
	"github.com/web3tea/pgcdc-sentinel/pkg/log"
	"github.com/web3tea/pgcdc-sentinel/processor"
	"github.com/web3tea/pgcdc-sentinel/processor/filter"
	"github.com/web3tea/pgcdc-sentinel/processor/transformer"
	"github.com/web3tea/pgcdc-sentinel/sentinel"
	"github.com/web3tea/pgcdc-sentinel/sink"
	"github.com/web3tea/pgcdc-sentinel/telemetry"
	"github.com/web3tea/pgcdc-sentinel/testdecoding"
)

const catalogConnectTimeout = 10 * time.Second

func SetupContainer(cfgPath string) do.Injector {
	injector := do.New()

	do.ProvideNamedValue(injector, "configPath", cfgPath)
	do.Provide(injector, NewConfig)
	provideServices(injector)

	return injector
}

// SetupContainerWithConfig wires the services around an already loaded config.
func SetupContainerWithConfig(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	provideServices(injector)

	return injector
}

func provideServices(injector do.Injector) {
	do.Provide(injector, NewRegistry)
	do.Provide(injector, NewMetrics)
	do.Provide(injector, NewCatalog)
	do.Provide(injector, NewResolver)
	do.Provide(injector, NewAdapter)
	do.Provide(injector, NewDecoder)
	do.Provide(injector, NewProcessor)
	do.Provide(injector, NewSink)
	do.Provide(injector, NewSentinel)
}

func NewConfig(i do.Injector) (*config.Config, error) {
	return config.LoadFromFile(do.MustInvokeNamed[string](i, "configPath"))
}

func NewRegistry(i do.Injector) (*prometheus.Registry, error) {
	return telemetry.NewRegistry(), nil
}

func NewMetrics(i do.Injector) (*telemetry.Metrics, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.Metrics.Listen == "" {
		return telemetry.Noop(), nil
	}
	return telemetry.Register(do.MustInvoke[*prometheus.Registry](i)), nil
}

// Catalog holds the optional Postgres connection used for primary key lookups.
type Catalog struct {
	Querier *keyvalue.PgQuerier
}

func (c *Catalog) Close() error {
	if c.Querier == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), catalogConnectTimeout)
	defer cancel()
	return c.Querier.Close(ctx)
}

func NewCatalog(i do.Injector) (*Catalog, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.KeyValue.Catalog == nil {
		return &Catalog{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), catalogConnectTimeout)
	defer cancel()
	q, err := keyvalue.Connect(ctx, *cfg.KeyValue.Catalog, log.Named("catalog"))
	if err != nil {
		return nil, err
	}
	return &Catalog{Querier: q}, nil
}

// NewResolver consults the static primary_keys table first and the catalog,
// when configured, after it.
func NewResolver(i do.Injector) (keyvalue.PrimaryKeyResolver, error) {
	cfg := do.MustInvoke[*config.Config](i)
	catalog, err := do.Invoke[*Catalog](i)
	if err != nil {
		return nil, err
	}

	chain := keyvalue.ChainResolver{keyvalue.NewMapResolver(cfg.KeyValue.PrimaryKeys, cfg.KeyValue.Delimiter)}
	if catalog.Querier != nil {
		cached, err := keyvalue.NewCachedResolver(keyvalue.NewCatalogResolver(catalog.Querier, log.Named("catalog")), cfg.KeyValue.CacheSize)
		if err != nil {
			return nil, err
		}
		chain = append(chain, cached)
	}
	return chain, nil
}

func NewAdapter(i do.Injector) (*keyvalue.Adapter, error) {
	cfg := do.MustInvoke[*config.Config](i)
	resolver, err := do.Invoke[keyvalue.PrimaryKeyResolver](i)
	if err != nil {
		return nil, err
	}

	opts := []keyvalue.Option{
		keyvalue.WithDelimiter(cfg.KeyValue.Delimiter),
		keyvalue.WithLogger(log.Named("keyvalue")),
	}
	if cfg.KeyValue.ValueFormat == "msgpack" {
		opts = append(opts, keyvalue.WithValueEncoder(keyvalue.MsgpackValue{}))
	}
	return keyvalue.NewAdapter(resolver, opts...), nil
}

func NewDecoder(i do.Injector) (*testdecoding.Decoder, error) {
	return testdecoding.NewDecoder(), nil
}

func NewProcessor(i do.Injector) (processor.Processor, error) {
	cfg := do.MustInvoke[*config.Config](i)
	chain := processor.NewProcessorChain()

	if f := cfg.Processor.Filter; !f.Empty() {
		glob, err := filter.NewGlobFilter(filter.Rules{
			Kinds:          f.Types,
			Schemas:        f.Schemas,
			Tables:         f.Tables,
			ExcludeSchemas: f.ExcludeSchemas,
			ExcludeTables:  f.ExcludeTables,
		})
		if err != nil {
			return nil, err
		}
		chain.AddFilter(glob)
	}
	if len(cfg.Processor.DatasetRename) > 0 {
		chain.AddTransformer(transformer.NewRenameTransformer(cfg.Processor.DatasetRename))
	}
	if cfg.LogLevel == "trace" {
		chain.AddFilter(filter.NewDebugFilter())
		chain.AddTransformer(transformer.NewDebugTransformer())
	}
	return chain, nil
}

func NewSink(i do.Injector) (sink.Sink, error) {
	return sink.New(do.MustInvoke[*config.Config](i).Sink)
}

func NewSentinel(i do.Injector) (*sentinel.Sentinel, error) {
	cfg := do.MustInvoke[*config.Config](i)
	adapter, err := do.Invoke[*keyvalue.Adapter](i)
	if err != nil {
		return nil, err
	}
	proc, err := do.Invoke[processor.Processor](i)
	if err != nil {
		return nil, err
	}
	s, err := do.Invoke[sink.Sink](i)
	if err != nil {
		return nil, err
	}

	return sentinel.NewSentinel(
		do.MustInvoke[*testdecoding.Decoder](i),
		adapter,
		proc,
		s,
		sentinel.WithBatchSize(cfg.BatchSize),
		sentinel.WithFlushInterval(time.Duration(cfg.FlushInterval)),
		sentinel.WithOnError(sentinel.OnError(cfg.Decoder.OnError)),
		sentinel.WithLogger(log.Named("sentinel")),
		sentinel.WithMetrics(do.MustInvoke[*telemetry.Metrics](i)),
	), nil
}
