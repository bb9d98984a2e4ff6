package keyvalue

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/yugabyte/pgx/v5/pgconn"
)

const (
	columnsQuery = `
SELECT a.attname
FROM pg_attribute a
WHERE a.attrelid = (quote_ident($1) || '.' || quote_ident($2))::regclass
  AND a.attnum > 0
  AND NOT a.attisdropped
ORDER BY a.attnum`

	primaryKeyQuery = `
SELECT a.attname
FROM pg_index i
JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
WHERE i.indrelid = (quote_ident($1) || '.' || quote_ident($2))::regclass
  AND i.indisprimary
ORDER BY array_position(i.indkey::int2[], a.attnum)`
)

// Querier runs a catalog query with text parameters and returns the text rows.
type Querier interface {
	QueryText(ctx context.Context, sql string, args ...string) ([][]string, error)
}

// CatalogResolver looks primary keys up in the PostgreSQL system catalog. The
// indices are the positions of the primary key columns within the table's
// ordered column list, which is the column order the decoding plugin emits.
type CatalogResolver struct {
	q      Querier
	logger Logger
}

func NewCatalogResolver(q Querier, logger Logger) *CatalogResolver {
	if logger == nil {
		logger = &noopLogger{}
	}
	return &CatalogResolver{q: q, logger: logger}
}

func (r *CatalogResolver) PrimaryKeyIndices(ctx context.Context, schema, table string) ([]int, error) {
	columns, err := r.column(ctx, columnsQuery, schema, table)
	if err != nil {
		return nil, errors.Wrap(err, "list columns")
	}
	pks, err := r.column(ctx, primaryKeyQuery, schema, table)
	if err != nil {
		return nil, errors.Wrap(err, "list primary key columns")
	}
	r.logger.Debugf("%s.%s columns %v, primary key %v", schema, table, columns, pks)
	if len(pks) == 0 {
		return nil, nil
	}

	indices := make([]int, 0, len(pks))
	for _, pk := range pks {
		idx := lo.IndexOf(columns, pk)
		if idx < 0 {
			return nil, errors.Newf("primary key column %s not found in %s.%s", pk, schema, table)
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

func (r *CatalogResolver) column(ctx context.Context, sql, schema, table string) ([]string, error) {
	rows, err := r.q.QueryText(ctx, sql, schema, table)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) != 1 {
			return nil, errors.Newf("expected 1 column in result, got %d", len(row))
		}
		out = append(out, row[0])
	}
	return out, nil
}

// DatabaseConfig locates the database whose catalog is queried.
type DatabaseConfig struct {
	Hosts    []string `json:"hosts" yaml:"hosts" toml:"hosts"`
	Port     uint16   `json:"port" yaml:"port" toml:"port"`
	Username string   `json:"username" yaml:"username" toml:"username"`
	Password string   `json:"password" yaml:"password" toml:"password"`
	Database string   `json:"database" yaml:"database" toml:"database"`
}

// PgQuerier is a Querier over a single connection. Queries are serialized
// since a PgConn handles one query at a time.
type PgQuerier struct {
	conn *pgconn.PgConn
	mu   sync.Mutex
}

// Connect opens a catalog connection, trying the configured hosts in order.
func Connect(ctx context.Context, cfg DatabaseConfig, logger Logger) (*PgQuerier, error) {
	if logger == nil {
		logger = &noopLogger{}
	}
	connCfg, err := buildConnConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build connection config: %w", err)
	}
	conn, err := pgconn.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PgQuerier{conn: conn}, nil
}

func (p *PgQuerier) QueryText(ctx context.Context, sql string, args ...string) ([][]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	params := lo.Map(args, func(a string, _ int) []byte { return []byte(a) })
	resultReader := p.conn.ExecParams(ctx, sql, params, nil, nil, nil)
	result := resultReader.Read()
	if result.Err != nil {
		return nil, fmt.Errorf("failed to read result: %w", result.Err)
	}

	rows := make([][]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		rows = append(rows, lo.Map(row, func(b []byte, _ int) string { return string(b) }))
	}
	return rows, nil
}

func (p *PgQuerier) Close(ctx context.Context) error {
	return p.conn.Close(ctx)
}

func buildConnConfig(cfg DatabaseConfig, logger Logger) (*pgconn.Config, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("no database hosts provided")
	}

	connString := "host=" + cfg.Hosts[0] + " "
	for k, v := range map[string]string{
		"user":     cfg.Username,
		"password": cfg.Password,
		"dbname":   cfg.Database,
		"port":     fmt.Sprintf("%d", cfg.Port),
	} {
		if strings.TrimSpace(v) != "" && v != "0" {
			connString += k + "=" + v + " "
		}
	}
	connCfg, err := pgconn.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	for _, host := range cfg.Hosts[1:] {
		connCfg.Fallbacks = append(connCfg.Fallbacks, &pgconn.FallbackConfig{
			Host: host,
			Port: connCfg.Port,
		})
	}
	connCfg.OnNotice = func(_ *pgconn.PgConn, notice *pgconn.Notice) {
		logger.Warnf("Database notice: %s", notice.Message)
	}
	connCfg.AfterConnect = func(ctx context.Context, conn *pgconn.PgConn) error {
		logger.Infof("Catalog connection established")
		return nil
	}
	return connCfg, nil
}

var (
	_ PrimaryKeyResolver = (*CatalogResolver)(nil)
	_ Querier            = (*PgQuerier)(nil)
)
