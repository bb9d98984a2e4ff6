package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"github.com/web3tea/pgcdc-sentinel/pkg/log"
	"github.com/web3tea/pgcdc-sentinel/sentinel"
	"github.com/web3tea/pgcdc-sentinel/testdecoding"
	"github.com/web3tea/pgcdc-sentinel/wal2json"
)

var decodeCmd = &cli.Command{
	Name:  "decode",
	Usage: "Print every committed transaction as wal2json JSON",
	Flags: []cli.Flag{
		sourceFlag,
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "indent the JSON output",
		},
		&cli.BoolFlag{
			Name:  "skip-errors",
			Usage: "log malformed lines and continue",
		},
	},
	Action: func(ctx context.Context, c *cli.Command) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		src, err := openSource(cfg.Source)
		if err != nil {
			return err
		}
		defer src.Close()

		return decode(src, os.Stdout, c.Bool("pretty"), c.Bool("skip-errors"))
	},
}

func decode(r io.Reader, w io.Writer, pretty, skipErrors bool) error {
	dec := testdecoding.NewDecoder()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), sentinel.MaxLineSize)

	out := bufio.NewWriter(w)
	defer out.Flush()

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		change, err := dec.Decode(scanner.Text())
		if err != nil {
			if skipErrors {
				log.Warnf("line %d: %v", lineNo, err)
				continue
			}
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if change == nil {
			continue
		}
		if err := writeChange(out, change, pretty); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func writeChange(w io.Writer, change *wal2json.Change, pretty bool) error {
	data, err := wal2json.Marshal(change)
	if err != nil {
		return err
	}
	if pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return err
		}
		data = buf.Bytes()
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
