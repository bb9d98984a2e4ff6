package main

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/urfave/cli/v3"
	"github.com/web3tea/pgcdc-sentinel/keyvalue"
	"github.com/web3tea/pgcdc-sentinel/pkg/log"
)

func catalogFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Usage: "catalog host, overrides keyvalue.catalog.hosts"},
		&cli.UintFlag{Name: "port", Usage: "catalog port"},
		&cli.StringFlag{Name: "user", Usage: "catalog user"},
		&cli.StringFlag{Name: "password", Usage: "catalog password"},
		&cli.StringFlag{Name: "database", Usage: "catalog database"},
	}
}

var pkCmd = &cli.Command{
	Name:      "pk",
	Usage:     "Print the primary key column indices of a table from the Postgres catalog",
	ArgsUsage: "<schema> <table>",
	Flags:     catalogFlags(),
	Action: func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 2 {
			return fmt.Errorf("expected <schema> <table>, got %d arguments", c.Args().Len())
		}
		schema, table := c.Args().Get(0), c.Args().Get(1)

		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		db, err := catalogConfig(c, cfg.KeyValue.Catalog)
		if err != nil {
			return err
		}

		q, err := keyvalue.Connect(ctx, db, log.Named("catalog"))
		if err != nil {
			return err
		}
		defer q.Close(ctx)

		indices, err := keyvalue.NewCatalogResolver(q, log.Named("catalog")).PrimaryKeyIndices(ctx, schema, table)
		if err != nil {
			return err
		}
		if indices == nil {
			return fmt.Errorf("%s.%s: %w", schema, table, keyvalue.ErrUnknownDataset)
		}

		dataset := schema + cfg.KeyValue.Delimiter + table
		fmt.Printf("%s = %v\n", strconv.Quote(dataset), indices)
		return nil
	},
}

// catalogConfig overlays the catalog flags on the configured catalog.
func catalogConfig(c *cli.Command, base *keyvalue.DatabaseConfig) (keyvalue.DatabaseConfig, error) {
	db := keyvalue.DatabaseConfig{Port: 5432}
	if base != nil {
		db = *base
	}
	if h := c.String("host"); h != "" {
		db.Hosts = []string{h}
	}
	if c.IsSet("port") {
		port := c.Uint("port")
		if port == 0 || port > math.MaxUint16 {
			return db, fmt.Errorf("invalid port %d", port)
		}
		db.Port = uint16(port)
	}
	if u := c.String("user"); u != "" {
		db.Username = u
	}
	if pw := c.String("password"); pw != "" {
		db.Password = pw
	}
	if d := c.String("database"); d != "" {
		db.Database = d
	}
	if len(db.Hosts) == 0 || db.Database == "" {
		return db, fmt.Errorf("no catalog configured: set keyvalue.catalog or pass --host and --database")
	}
	return db, nil
}
