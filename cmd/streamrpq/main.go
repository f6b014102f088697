// Command streamrpq evaluates a regular path query over a timestamped edge
// stream with sliding windows and writes CSV reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/sanonone/streamrpq/internal/server"
	"github.com/sanonone/streamrpq/pkg/config"
	"github.com/sanonone/streamrpq/pkg/engine"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	inputPath := flag.String("input", "", "Edge stream file (overrides input.path, '-' for stdin)")
	outputDir := flag.String("output", "", "Report directory (overrides output.dir)")
	debugAddr := flag.String("debug-addr", "", "Address of the step gate server, e.g. 127.0.0.1:9092 (overrides debug.addr)")
	step := flag.Bool("step", false, "Start paused; edges are released through the debug server")
	flag.Parse()

	os.Exit(exitCode(run(*configPath, *inputPath, *outputDir, *debugAddr, *step)))
}

// exitCode maps the run result to the process status. A run stopped by a
// signal is a clean shutdown.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		slog.Info("Run interrupted, shutting down")
		return 0
	default:
		slog.Error("streamrpq failed", "error", err)
		return 1
	}
}

func run(configPath, inputPath, outputDir, debugAddr string, step bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if inputPath != "" {
		cfg.Input.Path = inputPath
	}
	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}
	if debugAddr != "" {
		cfg.Debug.Addr = debugAddr
	}
	if step {
		cfg.Debug.Step = true
	}
	if cfg.Debug.Step && cfg.Debug.Addr == "" {
		return fmt.Errorf("step mode needs a debug server address")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	setupLogger(cfg)

	in, err := openInput(cfg.Input.Path)
	if err != nil {
		return err
	}
	defer in.Close()

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting run", "run_id", eng.RunID, "mode", cfg.Mode, "size", cfg.Window.Size,
		"slide", cfg.Window.Slide, "input", cfg.Input.Path, "output", cfg.Output.Dir)

	if cfg.Debug.Addr == "" {
		return eng.Run(ctx, in)
	}

	srv := server.NewServer(eng, cfg.Debug.Addr, cfg.Debug.Token)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		defer srv.Shutdown()
		return eng.Run(gctx, in)
	})
	return g.Wait()
}

func setupLogger(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}
