// Command tracehub-daemon wires the dataset engine to both ingress
// fronts (the binary wire protocol and OTLP gRPC+HTTP) and the
// query/subscribe API: load config, construct collaborators, start
// each transport in its own goroutine, then wait for a signal and
// shut everything down in priority order (spec.md §5 "Shutdown").
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"brokle-tracehub/internal/apiserver"
	"brokle-tracehub/internal/config"
	"brokle-tracehub/internal/engine"
	"brokle-tracehub/internal/ingest/otlp"
	"brokle-tracehub/internal/ingest/wire"
	"brokle-tracehub/internal/tracestore"
	"brokle-tracehub/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tracehub-daemon: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLoggerWithFormat(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	slog.SetDefault(logger)

	store, err := openStore(cfg.Storage)
	if err != nil {
		logger.Error("tracehub-daemon: failed to open storage", "error", err)
		os.Exit(1)
	}

	syncEngine := engine.NewSyncEngine(store, logger)
	if err := syncEngine.Load(); err != nil {
		logger.Error("tracehub-daemon: failed to load engine state", "error", err)
		os.Exit(1)
	}

	facade := engine.NewFacade(syncEngine, logger, engine.FacadeConfig{
		QueryChannelDepth:  cfg.Engine.QueryChannelDepth,
		InsertChannelDepth: cfg.Engine.InsertChannelDepth,
	})

	var wireListener *wire.Listener
	if cfg.WireIngest.Enabled {
		wireListener = wire.NewListener(cfg.WireIngest.Addr, facade, logger)
		go func() {
			if err := wireListener.Start(context.Background()); err != nil {
				logger.Error("tracehub-daemon: wire listener stopped", "error", err)
			}
		}()
	}

	otlpGRPC := otlp.NewServer(cfg.OTLP.GRPCAddr, facade, logger)
	go func() {
		if err := otlpGRPC.Start(); err != nil {
			logger.Error("tracehub-daemon: otlp grpc server stopped", "error", err)
		}
	}()

	otlpHTTP := otlp.NewHTTPHandler(facade, logger)
	httpSrv := newOTLPHTTPServer(cfg.OTLP.HTTPAddr, otlpHTTP)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("tracehub-daemon: otlp http server stopped", "error", err)
		}
	}()

	api := apiserver.NewServer(&cfg.API, facade, logger)
	go func() {
		if err := api.Start(); err != nil {
			logger.Error("tracehub-daemon: apiserver stopped", "error", err)
		}
	}()

	logger.Info("tracehub-daemon: started",
		"wire_addr", cfg.WireIngest.Addr, "otlp_grpc_addr", cfg.OTLP.GRPCAddr,
		"otlp_http_addr", cfg.OTLP.HTTPAddr, "api_addr", cfg.API.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("tracehub-daemon: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := api.Shutdown(ctx); err != nil {
		logger.Warn("tracehub-daemon: apiserver shutdown error", "error", err)
	}
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("tracehub-daemon: otlp http shutdown error", "error", err)
	}
	if err := otlpGRPC.Shutdown(ctx); err != nil {
		logger.Warn("tracehub-daemon: otlp grpc shutdown error", "error", err)
	}
	if err := facade.Shutdown(ctx); err != nil {
		logger.Warn("tracehub-daemon: engine shutdown error", "error", err)
	}
	logger.Info("tracehub-daemon: stopped")
}

func newOTLPHTTPServer(addr string, h *otlp.HTTPHandler) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	h.Register(r)
	return &http.Server{Addr: addr, Handler: r}
}

func openStore(cfg config.StorageConfig) (tracestore.Store, error) {
	switch cfg.Backend {
	case "file":
		return tracestore.NewFile(cfg.FileDir, 0)
	default:
		return tracestore.NewMemory(), nil
	}
}
