// Command tickbusd runs the frame loop, signal hub and debug API as a daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tickbus/tickbus/config"
	"github.com/tickbus/tickbus/pkg/logger"
	"github.com/tickbus/tickbus/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	serverPort = flag.Int("port", 0, "Override debug API port")
	logLevel   = flag.String("log-level", "", "Override log level")
	timeScale  = flag.Float64("time-scale", -1, "Override loop time scale")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}
	if *versionFlag {
		fmt.Print(version.String())
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath, buildOverrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	logCfg := cfg.Log.ToLoggerConfig()
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)
	defer log.Close()

	log.Info("Starting tickbusd",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	if err := run(cfg, loader, log); err != nil {
		log.Error("tickbusd failed", "error", err)
		os.Exit(1)
	}
	log.Info("tickbusd stopped gracefully")
}

func run(cfg *config.Config, loader *config.Loader, log logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := a.start(ctx); err != nil {
		_ = a.shutdown(context.Background())
		return err
	}

	if *configPath != "" {
		watchConfig(ctx, a, loader, log)
	}

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case err := <-a.failures():
		log.Error("component failed", "error", err)
	}

	timeout := cfg.Server.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()
	return a.shutdown(shutdownCtx)
}

// watchConfig hot-reloads the log level and time scale while ctx lives.
func watchConfig(ctx context.Context, a *app, loader *config.Loader, log logger.Logger) {
	w, err := config.NewWatcher(*configPath, loader, config.WithWatcherLogger(log))
	if err != nil {
		log.Warn("config hot reload disabled", "error", err)
		return
	}

	current := config.ExtractHotReloadable(a.cfg)
	updates := make(chan config.HotReloadableConfig, 1)
	w.OnChange(func(c *config.Config) {
		select {
		case updates <- config.ExtractHotReloadable(c):
		default:
		}
	})

	go func() {
		if err := w.Watch(ctx); err != nil && ctx.Err() == nil {
			log.Warn("config watcher stopped", "error", err)
		}
	}()
	go func() {
		defer w.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case next := <-updates:
				if current.Changed(next) {
					a.applyHotReload(current, next)
					current = next
				}
			}
		}
	}()
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *timeScale >= 0 {
		overrides["loop.time_scale"] = *timeScale
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

func printHelp() {
	fmt.Printf("tickbusd - frame-driven timers, typed signals and state machines\n\n")
	fmt.Printf("Usage: tickbusd [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  tickbusd                                  # Run with default config\n")
	fmt.Printf("  tickbusd -config tickbus.yaml             # Use specific config file\n")
	fmt.Printf("  tickbusd -port 9090 -log-level debug      # Override specific options\n")
	fmt.Printf("  tickbusd -time-scale 0.5                  # Run game time at half speed\n")
	fmt.Printf("  tickbusd -version                         # Print version info\n")
}
