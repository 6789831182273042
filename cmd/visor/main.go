// Command visor captures and compares visual fingerprints of rendered
// pages.
//
// Usage:
//
//	visor -config visor.yaml -compare home     # compare against baseline
//	visor -config visor.yaml -capture home     # capture and persist
//	visor -config visor.yaml -update home      # accept actual as baseline
//	visor -url https://example.com -compare home
//
// Compare exits 1 on mismatch so CI pipelines fail without parsing output.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/visor"
	"github.com/hazyhaar/visor/artifact"
)

func main() {
	configPath := flag.String("config", "", "path to visor.yaml config file")
	captureName := flag.String("capture", "", "capture the named page and persist the artifact")
	compareName := flag.String("compare", "", "capture the named page and compare against its baseline")
	updateName := flag.String("update", "", "accept the latest actual capture as the new baseline")
	adhocURL := flag.String("url", "", "ad-hoc page URL (registered under the given name)")
	strategy := flag.String("strategy", "", "capture strategy: compositor, pixel, or auto")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code, err := run(ctx, logger, *configPath, *captureName, *compareName, *updateName, *adhocURL, *strategy)
	if err != nil {
		logger.Error("visor: fatal", "error", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func run(ctx context.Context, logger *slog.Logger, configPath, captureName, compareName, updateName, adhocURL, strategy string) (int, error) {
	name := firstNonEmpty(captureName, compareName, updateName)
	if name == "" {
		fmt.Fprintln(os.Stderr, "usage: visor [-config <file>] [-url <url>] -capture <name> | -compare <name> | -update <name>")
		return 1, nil
	}

	var cfg *visor.Config
	if configPath != "" {
		loaded, err := visor.LoadConfigFile(configPath)
		if err != nil {
			return 0, err
		}
		cfg = loaded
	} else {
		cfg = &visor.Config{}
	}
	if strategy != "" {
		cfg.Strategy = strategy
	}
	if adhocURL != "" {
		cfg.Pages = append(cfg.Pages, visor.PageConfig{Name: name, URL: adhocURL})
	}

	svc, err := visor.New(cfg, logger)
	if err != nil {
		return 0, err
	}
	defer svc.Close()

	switch {
	case updateName != "":
		if err := svc.UpdateBaseline(ctx, name); err != nil {
			return 0, err
		}
		logger.Info("visor: baseline updated", "name", name)
		return 0, nil

	case captureName != "":
		a, err := svc.Capture(ctx, name)
		if err != nil {
			return 0, err
		}
		return 0, emit(a)

	default:
		res, err := svc.Compare(ctx, name)
		if err != nil {
			return 0, err
		}
		if err := emit(res); err != nil {
			return 0, err
		}
		if res.Status == artifact.StatusMismatch {
			return 1, nil
		}
		return 0, nil
	}
}

func emit(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
