package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/txnroute/txnroute/feeder/internal/config"
	"github.com/txnroute/txnroute/feeder/internal/probe"
	"github.com/txnroute/txnroute/feeder/internal/security"
	"github.com/txnroute/txnroute/feeder/internal/shipper"
	"github.com/txnroute/txnroute/feeder/internal/source"
	"github.com/txnroute/txnroute/pkg/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	fc := cfg.Feeder

	logger, level, err := logging.New(os.Stdout, fc.Logging.Level, fc.Logging.Format)
	if err != nil {
		slog.Error("failed to configure logging", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	slog.Info("txnroute-feeder starting",
		"config", *configPath,
		"router_endpoint", fc.RouterEndpoint,
		"sources", len(fc.Sources),
		"poll_interval", fc.PollInterval,
		"batch_size", fc.BatchSize,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var sources []source.Source
	for _, sc := range fc.Sources {
		if cs := security.Check(ctx, sc); cs != nil {
			lvl := slog.LevelInfo
			if cs.Status != security.StatusValid || !cs.Verified {
				lvl = slog.LevelWarn
			}
			slog.Log(ctx, lvl, "source certificate",
				"source", sc.ID, "status", cs.Status, "days_left", cs.DaysLeft,
				"issuer", cs.Issuer, "verified", cs.Verified)
		}

		s, err := source.New(sc)
		if err != nil {
			slog.Error("skipping source: could not build it", "source", sc.ID, "err", err)
			continue
		}
		sources = append(sources, s)
		slog.Info("registered source", "id", sc.ID, "type", sc.Type)
	}
	if len(sources) == 0 {
		slog.Warn("no sources configured, feeder will idle")
	}

	ship := shipper.New(fc)
	go ship.Run(ctx)

	if fc.RouterMetricsURL != "" {
		go probe.New(fc.RouterMetricsURL, nil).Run(ctx, fc.ProbeInterval)
	}

	reload := make(chan *config.Config, 1)
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			select {
			case reload <- next:
			default:
			}
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	ticker := time.NewTicker(fc.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			st := ship.Stats()
			slog.Info("txnroute-feeder shutting down",
				"shipped", st.Shipped, "routed", st.Routed, "dropped", st.Dropped,
				"evicted", st.Evicted, "discarded", st.Discarded)
			return

		case next := <-reload:
			if err := logging.SetLevel(level, next.Feeder.Logging.Level); err != nil {
				slog.Error("config reload: log level rejected", "err", err)
			}
			if d := next.Feeder.PollInterval; d != fc.PollInterval {
				fc.PollInterval = d
				ticker.Reset(d)
				slog.Info("config reload: poll interval changed", "poll_interval", d)
			}

		case <-ticker.C:
			for _, s := range sources {
				recs, err := s.Poll(ctx)
				if err != nil {
					slog.Warn("poll error", "source", s.ID(), "err", err)
				}
				for _, r := range recs {
					ship.Ship(r)
				}
				if len(recs) > 0 {
					slog.Debug("polled records", "source", s.ID(), "records", len(recs))
				}
			}
		}
	}
}
