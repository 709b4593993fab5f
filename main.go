package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/k-avy/weatherCli/internal/config"
	"github.com/k-avy/weatherCli/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := config.NewFlagSet(args[0], stderr)
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		fs.Usage()
		return 1
	}
	if err := config.ApplyArgs(fs); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		fs.Usage()
		return 1
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		fs.Usage()
		return 1
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	h, cleanup, err := server.NewHandler(ctx, cfg, logger)
	if err != nil {
		logger.Errorw("could not initialise handler", "error", err)
		return 1
	}
	defer cleanup()

	srv := server.New(cfg.Server, h)
	if err := server.Run(ctx, srv, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Errorw("server stopped", "error", err)
		return 1
	}
	logger.Infow("server stopped")
	return 0
}
