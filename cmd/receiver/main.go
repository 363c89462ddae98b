// Command receiver ingests sensor node telemetry from a serial link into the
// sensor database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/telemetry.receiver/internal/config"
	"github.com/banshee-data/telemetry.receiver/internal/db"
	"github.com/banshee-data/telemetry.receiver/internal/ingest"
	"github.com/banshee-data/telemetry.receiver/internal/monitoring"
	"github.com/banshee-data/telemetry.receiver/internal/report"
	"github.com/banshee-data/telemetry.receiver/internal/serialmux"
	"github.com/banshee-data/telemetry.receiver/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, serialmux.OpenRealPort)
	stop()
	if err != nil {
		log.Printf("receiver: %v", err)
		os.Exit(1)
	}
}

// run dispatches to a subcommand. Ingestion is the default when the first
// argument is a flag or absent.
func run(ctx context.Context, args []string, out, errOut io.Writer, opener serialmux.SerialPortOpener) error {
	if len(args) > 0 {
		switch args[0] {
		case "run":
			return runIngest(ctx, args[1:], errOut, opener)
		case "migrate":
			return runMigrate(args[1:], out)
		case "summary":
			return runSummary(ctx, args[1:], out)
		case "version":
			fmt.Fprintln(out, version.String())
			return nil
		case "help", "-h", "-help", "--help":
			printUsage(out)
			return nil
		}
		if args[0] != "" && args[0][0] != '-' {
			printUsage(errOut)
			return fmt.Errorf("unknown command: %s", args[0])
		}
	}
	return runIngest(ctx, args, errOut, opener)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `receiver - sensor node telemetry receiver

Usage:
  receiver [run] [flags]                 Ingest frames from the serial link
  receiver migrate <action> [args]       Manage the database schema
  receiver summary [-since 24h]          Print per sensor statistics
  receiver version                       Show version information

Run flags:
  -config <file>        YAML configuration (default config/receiver.yaml)
  -port <device>        Serial device, overrides serial.port
  -baud <rate>          Baud rate, overrides serial.baud_rate
  -db <path>            Database file, overrides store.path
  -debug-listen <addr>  Serve /debug/ routes on addr, overrides debug.listen
  -log-level <level>    DEBUG, INFO, WARN or ERROR
  -log-format <format>  text or json
`)
}

// loadConfig reads the configuration file and applies the flags that were
// explicitly set on fs.
func loadConfig(fs *flag.FlagSet, path string, overrides map[string]func(*config.Config)) (config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply(&cfg)
		}
	})
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runIngest(ctx context.Context, args []string, logOut io.Writer, opener serialmux.SerialPortOpener) error {
	fs := flag.NewFlagSet("receiver", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "Path to YAML configuration")
	port := fs.String("port", "", "Serial device")
	baud := fs.Int("baud", 0, "Baud rate")
	dbPath := fs.String("db", "", "Database file")
	debugListen := fs.String("debug-listen", "", "Debug HTTP listen address")
	logLevel := fs.String("log-level", "", "Log level")
	logFormat := fs.String("log-format", "", "Log format (text or json)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(fs, *configPath, map[string]func(*config.Config){
		"port":         func(c *config.Config) { c.Serial.Port = *port },
		"baud":         func(c *config.Config) { c.Serial.BaudRate = *baud },
		"db":           func(c *config.Config) { c.Store.Path = *dbPath },
		"debug-listen": func(c *config.Config) { c.Debug.Listen = *debugListen },
		"log-level":    func(c *config.Config) { c.Log.Level = *logLevel },
		"log-format":   func(c *config.Config) { c.Log.Format = *logFormat },
	})
	if err != nil {
		return err
	}

	logger, err := monitoring.NewLogger(logOut, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	monitoring.SetLogger(logger)
	logger.Info("starting receiver", "version", version.Version, "git_sha", version.GitSHA,
		"port", cfg.Serial.Port, "baud", cfg.Serial.BaudRate, "db", cfg.Store.Path)

	opts := serialmux.PortOptions{
		BaudRate: cfg.Serial.BaudRate,
		DataBits: cfg.Serial.DataBits,
		StopBits: cfg.Serial.StopBits,
		Parity:   cfg.Serial.Parity,
	}
	link, err := serialmux.Open(cfg.Serial.Port, opts, cfg.GetReadTimeout(), opener)
	if err != nil {
		return fmt.Errorf("%w: %w", ingest.ErrLinkUnavailable, err)
	}
	defer link.Close()

	store, err := db.NewDB(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	if cfg.Store.MaxOpenConns > 0 {
		store.SetMaxOpenConns(cfg.Store.MaxOpenConns)
	}

	dispatcher := ingest.NewDispatcher(link, store, nil)

	if cfg.Debug.Listen != "" {
		mux, err := debugMux(link, store, dispatcher)
		if err != nil {
			return err
		}
		server := &http.Server{Addr: cfg.Debug.Listen, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("debug server stopped", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shut down debug server", "err", err)
			}
		}()
		logger.Info("debug server listening", "addr", cfg.Debug.Listen)
	}

	err = dispatcher.Run(ctx)
	stats := dispatcher.Stats()
	logger.Info("receiver stopped", "frames", stats.Frames, "readings", stats.Readings, "errors", stats.Errors)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// debugMux mounts every component's /debug/ routes on one mux.
func debugMux(link *serialmux.SerialMux[serialmux.SerialPorter], store *db.DB, d *ingest.Dispatcher) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	link.AttachAdminRoutes(mux)
	if err := store.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	d.AttachAdminRoutes(mux)
	report.AttachAdminRoutes(mux, store)
	return mux, nil
}

func runMigrate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "Path to YAML configuration")
	dbPath := fs.String("db", "", "Database file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(fs, *configPath, map[string]func(*config.Config){
		"db": func(c *config.Config) { c.Store.Path = *dbPath },
	})
	if err != nil {
		return err
	}
	return db.RunMigrateCommand(fs.Args(), cfg.Store.Path, out)
}

func runSummary(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "Path to YAML configuration")
	dbPath := fs.String("db", "", "Database file")
	since := fs.Duration("since", report.DefaultSummaryWindow, "Look-back window")
	chartPath := fs.String("chart", "", "Also write an HTML chart to this file")
	plotPath := fs.String("plot", "", "Also write a PNG plot to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(fs, *configPath, map[string]func(*config.Config){
		"db": func(c *config.Config) { c.Store.Path = *dbPath },
	})
	if err != nil {
		return err
	}

	store, err := db.NewDB(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	readings, err := store.ReadingsSince(ctx, time.Now().Add(-*since))
	if err != nil {
		return err
	}
	if err := report.WriteSummary(out, report.Summarize(readings)); err != nil {
		return err
	}

	if *chartPath != "" {
		if err := writeFile(*chartPath, func(w io.Writer) error {
			return report.RenderChart(w, "Readings", readings)
		}); err != nil {
			return err
		}
	}
	if *plotPath != "" {
		if len(readings) == 0 {
			return fmt.Errorf("no readings in the last %s to plot", *since)
		}
		if err := writeFile(*plotPath, func(w io.Writer) error {
			return report.RenderPlot(w, "Readings", readings)
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
