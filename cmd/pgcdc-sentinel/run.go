package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"
	"github.com/urfave/cli/v3"
	"github.com/web3tea/pgcdc-sentinel/di"
	"github.com/web3tea/pgcdc-sentinel/pkg/log"
	"github.com/web3tea/pgcdc-sentinel/sentinel"
	"github.com/web3tea/pgcdc-sentinel/sink"
	"github.com/web3tea/pgcdc-sentinel/telemetry"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Apply decoded changes to the configured sink",
	Flags: []cli.Flag{
		sourceFlag,
		&cli.StringFlag{
			Name:  "sink",
			Usage: "override the configured sink type",
		},
	},
	Action: func(ctx context.Context, c *cli.Command) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		if t := c.String("sink"); t != "" {
			cfg.Sink.Type = t
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		injector := di.SetupContainerWithConfig(cfg)
		s, err := do.Invoke[*sentinel.Sentinel](injector)
		if err != nil {
			return err
		}
		defer func() {
			if err := do.MustInvoke[sink.Sink](injector).Close(); err != nil {
				log.Errorf("Failed to close sink: %v", err)
			}
			if err := do.MustInvoke[*di.Catalog](injector).Close(); err != nil {
				log.Errorf("Failed to close catalog connection: %v", err)
			}
		}()

		if cfg.Metrics.Listen != "" {
			registry := do.MustInvoke[*prometheus.Registry](injector)
			go func() {
				if err := telemetry.Serve(ctx, cfg.Metrics.Listen, registry); err != nil {
					log.Errorf("Metrics server stopped: %v", err)
				}
			}()
		}

		src, err := openSource(cfg.Source)
		if err != nil {
			return err
		}
		defer src.Close()

		log.Infof("Applying changes from %s to %s sink", cfg.Source, cfg.Sink.Type)
		if err := s.Run(ctx, src); err != nil {
			return err
		}
		log.Infof("Sentinel stopped")
		return nil
	},
}
