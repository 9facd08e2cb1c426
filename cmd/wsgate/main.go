package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/wsgate/internal/auth"
	"github.com/adred-codev/wsgate/internal/config"
	"github.com/adred-codev/wsgate/internal/control"
	"github.com/adred-codev/wsgate/internal/delivery"
	"github.com/adred-codev/wsgate/internal/gateway"
	"github.com/adred-codev/wsgate/internal/logging"
	"github.com/adred-codev/wsgate/internal/registry"
	"github.com/adred-codev/wsgate/internal/session"
)

func main() {
	var (
		debug = flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	)
	flag.Parse()

	// Basic logger for startup, before config decides level and format.
	startupLog := log.New(os.Stdout, "[wsgate] ", log.LstdFlags)

	cfg, err := config.Load(nil)
	if err != nil {
		startupLog.Fatalf("Failed to load configuration: %v", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	cfg.LogConfig(logger)

	verifier, err := auth.NewVerifierFromFile(cfg.PublicKeyPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("path", cfg.PublicKeyPath).
			Msg("Failed to load signing public key")
	}

	reg := registry.New()
	sessions := session.NewHandler(verifier, reg, cfg.HandshakeTimeout, logger)
	svc := delivery.NewService(reg, logger)

	server := gateway.NewServer(gateway.Config{
		Addr:           cfg.Addr,
		MaxConnections: cfg.MaxConnections,
		AcceptRate:     cfg.AcceptRate,
		AcceptBurst:    cfg.AcceptBurst,
		ShutdownGrace:  cfg.ShutdownGrace,
	}, sessions, reg, logger)

	natsConn, err := control.Connect(cfg.NATSUrl, logger)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("url", cfg.NATSUrl).
			Msg("Failed to connect to NATS")
	}
	defer natsConn.Close()

	endpoint := control.NewEndpoint(natsConn, svc, cfg.ControlPrefix, logger)
	if err := endpoint.Start(); err != nil {
		logger.Fatal().
			Err(err).
			Msg("Failed to start control plane")
	}

	if err := server.Start(); err != nil {
		logger.Fatal().
			Err(err).
			Str("addr", cfg.Addr).
			Msg("Failed to start gateway")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("Shutting down")
	endpoint.Stop()
	if err := server.Shutdown(); err != nil {
		logger.Error().
			Err(err).
			Msg("Error during shutdown")
	}
}
