// Gray Logic State Store
//
// This is the main entry point for the per-room State Store. It holds the
// room's control state in memory and exposes it over:
//   - MQTT (retained state topics, set and query commands)
//   - HTTP REST and WebSocket
//   - InfluxDB (every accepted change recorded as a point)
//
// Run "graylogic-state token --subject NAME --role operator" to mint an API
// token signed with the configured JWT secret.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-statestore/internal/api"
	"github.com/nerrad567/gray-logic-statestore/internal/bridge"
	"github.com/nerrad567/gray-logic-statestore/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-statestore/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-statestore/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-statestore/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-statestore/internal/statestore"
	"github.com/nerrad567/gray-logic-statestore/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/statestore.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. The root command runs the service;
// subcommands are maintenance tools sharing the --config flag.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "graylogic-state",
		Short:         "Per-room control state table with MQTT, HTTP and WebSocket access",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(),
		"path to the YAML configuration file (env GRAYLOGIC_CONFIG)")

	root.AddCommand(newTokenCmd(&configPath))
	return root
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML file to load; defaults are used when it does not exist
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // linear startup sequence with optional integrations
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic State Store",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(configPath, log)
	if err != nil {
		return err
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// State table
	table := statestore.New(statestore.WithLogger(log.Component("statestore")))
	defer func() {
		log.Info("closing state table")
		table.Close()
	}()
	table.Initialize(cfg.Room.ID, cfg.Room.AuthToken)
	seeded := seedTable(table, cfg.StateStore.Seed)
	log.Info("state table initialised", "room", cfg.Room.ID, "room_name", cfg.Room.Name, "seeded", seeded)

	checks := make(map[string]api.HealthChecker)
	apiDeps := api.Deps{
		Config:         cfg.API,
		WS:             cfg.WebSocket,
		Security:       cfg.Security,
		RoomID:         cfg.Room.ID,
		Logger:         log.Component("api"),
		Table:          table,
		Checks:         checks,
		ObserverBuffer: cfg.StateStore.ObserverBuffer,
		Version:        version,
	}

	// MQTT bridge (optional)
	if cfg.MQTT.Enabled {
		mqttClient, connErr := mqtt.Connect(cfg.MQTT, cfg.Room.ID)
		if connErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", connErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT connection lost, reconnecting", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		stateBridge, bridgeErr := bridge.New(bridge.Options{
			Table:  table,
			MQTT:   mqttClient,
			Room:   cfg.Room.ID,
			QoS:    mqttClient.QoS(),
			Buffer: cfg.StateStore.ObserverBuffer,
			Logger: log.Component("bridge"),
		})
		if bridgeErr != nil {
			return fmt.Errorf("creating MQTT bridge: %w", bridgeErr)
		}
		if startErr := stateBridge.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			stateBridge.Stop()
		}()
		mqttClient.SetOnConnect(stateBridge.Resync)

		checks["mqtt"] = mqttClient
		apiDeps.Bridge = stateBridge
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB telemetry (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		recorder := telemetry.NewRecorder(influxClient, cfg.Room.ID)
		subID, attachErr := recorder.Attach(table, cfg.StateStore.ObserverBuffer)
		if attachErr != nil {
			return fmt.Errorf("attaching telemetry recorder: %w", attachErr)
		}
		defer table.Unsubscribe(subID)

		checks["influxdb"] = influxClient
		apiDeps.Telemetry = recorder
	} else {
		log.Info("InfluxDB disabled")
	}

	// HTTP API (optional)
	if cfg.API.Enabled {
		server, newErr := api.New(apiDeps)
		if newErr != nil {
			return fmt.Errorf("creating API server: %w", newErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Telemetry recorder and InfluxDB (if enabled)
	// 3. MQTT bridge and client (if enabled)
	// 4. State table

	log.Info("Gray Logic State Store stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig loads path, falling back to defaults (plus environment
// overrides) when the file does not exist.
func loadConfig(path string, log *logging.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		log.Info("configuration loaded", "path", path)
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg = config.Default()
	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("loading config: %w", validateErr)
	}
	log.Warn("config file not found, using defaults", "path", path)
	return cfg, nil
}

// seedTable applies the configured initial state in key order and returns
// how many entries were stored.
func seedTable(table *statestore.Table, seed map[string]string) int {
	keys := make([]string, 0, len(seed))
	for k := range seed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	stored := 0
	for _, k := range keys {
		if table.Update(k, statestore.String(seed[k])) {
			stored++
		}
	}
	return stored
}
