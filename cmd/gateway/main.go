// Command gateway runs the edge gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/edgegate/internal/config"
	"github.com/vyrodovalexey/edgegate/internal/gateway"
	"github.com/vyrodovalexey/edgegate/internal/observability"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	watch := flag.Bool("watch", false, "reload routing configuration on file change")
	flag.Parse()

	if env := os.Getenv("GATEWAY_CONFIG"); env != "" && !isFlagSet("config") {
		*configPath = env
	}

	if err := run(*configPath, *watch); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, watch bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Logging.ToLogConfig())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gw.Start(ctx); err != nil {
		return err
	}

	var watcher *config.Watcher
	if watch {
		watcher, err = config.NewWatcher(configPath,
			func(next *config.Config) { gw.Reload(next) },
			config.WithWatcherLogger(logger),
		)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("shutting down", observability.String("signal", sig.String()))

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warn("config watcher shutdown failed", observability.Error(err))
		}
	}

	if err := gw.Stop(context.Background()); err != nil {
		logger.Error("shutdown incomplete", observability.Error(err))
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

// isFlagSet reports whether the named flag was set on the command line.
func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
