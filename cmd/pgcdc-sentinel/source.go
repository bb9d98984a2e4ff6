package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"github.com/web3tea/pgcdc-sentinel/config"
	"github.com/web3tea/pgcdc-sentinel/pkg/log"
)

var sourceFlag = &cli.StringFlag{
	Name:    "source",
	Aliases: []string{"s"},
	Usage:   "file of test_decoding lines, - for stdin (e.g. pg_recvlogical -o include-xids=on -f -)",
}

// loadConfig reads --config when given and falls back to defaults otherwise.
func loadConfig(c *cli.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if src := c.String("source"); src != "" {
		cfg.Source = src
	}
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openSource(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	return f, nil
}
