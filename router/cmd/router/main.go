package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/txnroute/txnroute/pkg/logging"
	"github.com/txnroute/txnroute/pkg/wire"
	"github.com/txnroute/txnroute/router/internal/api"
	"github.com/txnroute/txnroute/router/internal/auth"
	"github.com/txnroute/txnroute/router/internal/config"
	"github.com/txnroute/txnroute/router/internal/flow"
	"github.com/txnroute/txnroute/router/internal/metrics"
	"github.com/txnroute/txnroute/router/internal/processor"
	"github.com/txnroute/txnroute/router/internal/receiver"
	"github.com/txnroute/txnroute/router/internal/sink"
	"github.com/txnroute/txnroute/router/internal/store"
	"github.com/txnroute/txnroute/router/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	rc := cfg.Router

	logger, level, err := logging.New(os.Stdout, rc.Logging.Level, rc.Logging.Format)
	if err != nil {
		slog.Error("failed to configure logging", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	slog.Info("txnroute-router starting",
		"config", *configPath,
		"grpc_port", rc.GRPCPort,
		"http_port", rc.HTTPPort,
		"auth_mode", rc.Auth.Mode,
		"threshold", rc.Processor.Threshold,
		"sinks", len(rc.Sinks),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mc, err := metrics.New()
	if err != nil {
		slog.Error("failed to register metrics", "err", err)
		os.Exit(1)
	}

	proc, err := processor.New(rc.Processor.Threshold,
		processor.WithLogger(logger),
		processor.WithObserver(mc),
	)
	if err != nil {
		slog.Error("invalid processor configuration", "err", err)
		os.Exit(1)
	}
	mc.SetThreshold(proc.Threshold())

	// Window of recently routed records with background TTL eviction.
	st := store.New(rc.Window.TTL, rc.Window.MaxPerChannel)
	go st.Run(ctx)

	sinks, err := sink.Build(ctx, rc.Sinks)
	if err != nil {
		slog.Error("failed to open sinks", "err", err)
		os.Exit(1)
	}
	dispatcher := sink.NewDispatcher(rc.Dispatch.BufferSize, mc)
	for _, sc := range rc.Sinks {
		dispatcher.Add(sc.Name, sinks[sc.Name], sc.Channels)
		slog.Info("sink registered", "name", sc.Name, "type", sc.Type, "channels", sc.Channels)
	}
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(ctx)
	}()

	f := flow.New(proc, st, dispatcher)

	authSettings := auth.Settings{
		Mode:   rc.Auth.Mode,
		Header: rc.Auth.EffectiveHeader(),
		Key:    rc.Auth.Key(),
		Secret: rc.Auth.Secret(),
	}

	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(auth.UnaryInterceptor(authSettings)))
	wire.RegisterRecordServiceServer(grpcSrv, receiver.New(f))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", rc.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port", "port", rc.GRPCPort, "err", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("gRPC receiver listening", "port", rc.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	hub := ws.New(f, rc.BroadcastInterval)
	go hub.Run(ctx)

	apiHandler := api.New(f, st,
		api.WithThresholdGauge(mc),
		api.WithQueueStats(dispatcher),
	)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", mc.InstrumentHandler(auth.Middleware(authSettings)(apiHandler)))
	httpMux.Handle("/metrics", mc.Handler())
	httpMux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", rc.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", rc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	// Threshold and log level are applied live; everything else needs a restart.
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			if err := proc.SetThreshold(next.Router.Processor.Threshold); err != nil {
				slog.Error("config reload: threshold rejected", "err", err)
			} else {
				mc.SetThreshold(proc.Threshold())
			}
			if err := logging.SetLevel(level, next.Router.Logging.Level); err != nil {
				slog.Error("config reload: log level rejected", "err", err)
			}
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("txnroute-router shutting down")
	grpcSrv.GracefulStop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck

	<-dispatchDone

	if totals, err := mc.Totals(); err == nil {
		slog.Info("final totals", "routed", totals.Routed, "dropped", totals.Dropped)
	}
}
