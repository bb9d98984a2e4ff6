package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"
	"github.com/web3tea/pgcdc-sentinel/pkg/log"
)

func main() {
	cmd := &cli.Command{
		Name:  "pgcdc-sentinel",
		Usage: "Replicate PostgreSQL test_decoding output into key/value stores",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a .toml or .json config file",
			},
		},
		Commands: []*cli.Command{
			runCmd,
			decodeCmd,
			pkCmd,
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("%v", err)
	}
}
