// Command injointd runs the joint as a standalone websocket server,
// wired the way the teacher repository's main.go and
// adwski-webrtc-playground's cmd/app.go wire their servers: pflag for
// CLI overrides, zerolog for structured logs, signal.NotifyContext for
// graceful shutdown, and go-metrics periodic reporting.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/injoint/injoint/config"
	"github.com/injoint/injoint/joint"
	"github.com/injoint/injoint/reducer/chat"
	"github.com/injoint/injoint/transport/wsserver"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	fs := pflag.NewFlagSet("injointd", pflag.ContinueOnError)
	config.Flags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	cfg, err := config.Load(fs)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse log level")
	}
	logger = logger.Level(lvl)

	j := joint.New(chat.Factory(),
		joint.WithLogger(logger),
		joint.WithIntakeBuffer(cfg.IntakeBuffer),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	j.StartMetricsReporting(os.Stdout, cfg.MetricsTick)

	srv := wsserver.New(wsserver.Config{
		Addr:   cfg.ListenAddr,
		Path:   cfg.WSPath,
		Logger: logger,
	}, j)

	errc := make(chan error, 2)
	go func() {
		errc <- j.Run(ctx)
	}()
	go func() {
		errc <- srv.ListenAndServe(ctx)
	}()

	select {
	case err := <-errc:
		if err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("unexpected server error, shutting down")
		}
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
}
