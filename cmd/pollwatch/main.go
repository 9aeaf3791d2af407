// Command pollwatch loads the trigger configuration, wires each trigger
// to its provider adapter and the shared state store, and prints every
// emitted batch event as a JSON line on stdout.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nhle/pollwatch/internal/config"
	"github.com/nhle/pollwatch/internal/credential"
	"github.com/nhle/pollwatch/internal/model"
	"github.com/nhle/pollwatch/internal/sched"
	"github.com/nhle/pollwatch/internal/source"
	"github.com/nhle/pollwatch/internal/source/drive"
	"github.com/nhle/pollwatch/internal/source/mailbox"
	"github.com/nhle/pollwatch/internal/state"
	"github.com/nhle/pollwatch/internal/trigger"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "path to config file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	if err := run(*configPath, logger); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if len(cfg.Triggers) == 0 {
		return fmt.Errorf("no triggers configured in %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	store, err := state.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	creds, err := credential.Open()
	if err != nil {
		return err
	}

	poller := sched.New(logger)

	for _, tc := range cfg.Triggers {
		if err := tc.Validate(); err != nil {
			return err
		}

		lister, err := buildLister(tc, creds)
		if err != nil {
			return err
		}

		tctx := model.TriggerContext{
			Namespace: "default",
			FlowID:    "cli",
			TriggerID: tc.Name,
		}

		poller.Register(
			trigger.New(tc, tctx, lister, store, logger),
			tc.Interval(),
		)

		logger.Info("trigger registered",
			slog.String("trigger", tc.Name),
			slog.String("type", tc.Type),
			slog.String("target", tc.ListTarget()),
			slog.String("mode", string(tc.Mode)),
		)
	}

	poller.Start()
	defer poller.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	encoder := json.NewEncoder(os.Stdout)
	for {
		select {
		case event := <-poller.Events():
			if err := encoder.Encode(event); err != nil {
				return fmt.Errorf("writing event: %w", err)
			}
		case sig := <-sigCh:
			logger.Info("shutting down", slog.String("signal", sig.String()))
			return nil
		}
	}
}

// buildLister constructs the provider adapter for one trigger,
// resolving its secret from the system keyring.
func buildLister(tc config.TriggerConfig, creds *credential.Store) (source.Lister, error) {
	secret := ""
	if tc.CredentialKey != "" {
		var err error
		secret, err = creds.Get(tc.CredentialKey)
		if err != nil {
			if keys, kerr := creds.Keys(); kerr == nil && len(keys) > 0 {
				return nil, fmt.Errorf("trigger %q: %w (stored keys: %s)",
					tc.Name, err, strings.Join(keys, ", "))
			}
			return nil, fmt.Errorf("trigger %q: %w", tc.Name, err)
		}
	}

	switch tc.Type {
	case config.TypeDrive:
		return drive.NewAdapter(tc.BaseURL, secret, "me"), nil
	case config.TypeMailbox:
		return mailbox.NewAdapter(
			tc.Host, tc.Port, tc.Username, secret, tc.TLS, tc.MaxItems,
		), nil
	default:
		return nil, fmt.Errorf("trigger %q: unknown type %q", tc.Name, tc.Type)
	}
}
