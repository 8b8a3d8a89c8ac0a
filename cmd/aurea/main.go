package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aurea-hq/underwriting/internal/app"
	"github.com/aurea-hq/underwriting/internal/cli"
	"github.com/aurea-hq/underwriting/internal/config"
	"github.com/aurea-hq/underwriting/internal/server"
)

// main is the entrypoint for the aurea assessment service.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) error {
	opts, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Default()
	if opts.ConfigPath != "" {
		cfg, err = config.Load(ctx, opts.ConfigPath)
		if err != nil {
			return err
		}
	}

	aureaApp, err := app.New(outW, cfg, opts.LogLevel, opts.LogFormat)
	if err != nil {
		return err
	}
	defer aureaApp.Close()

	srv := server.New(aureaApp)
	return aureaApp.Serve(ctx, cfg.Server.ListenAddr, srv.Handler())
}
