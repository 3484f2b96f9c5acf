// PackPilot - multi-device screen automation
//
// This is the main entry point for the packpilot command. It drives a fleet
// of Android emulators over adb through scripted scenarios:
//   - one worker per device, each with its own retry budget
//   - template and pixel anchors polled from screen captures
//   - a single host clipboard shared under a mutual-exclusion gate
//
// Usage:
//
//	packpilot [scenario]
//
// The scenario defaults to engine.scenario from the configuration file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/packpilot/internal/adb"
	"github.com/nerrad567/packpilot/internal/automation"
	"github.com/nerrad567/packpilot/internal/clipboard"
	"github.com/nerrad567/packpilot/internal/events"
	"github.com/nerrad567/packpilot/internal/gate"
	"github.com/nerrad567/packpilot/internal/infrastructure/config"
	"github.com/nerrad567/packpilot/internal/infrastructure/database"
	"github.com/nerrad567/packpilot/internal/infrastructure/influxdb"
	"github.com/nerrad567/packpilot/internal/infrastructure/logging"
	"github.com/nerrad567/packpilot/internal/infrastructure/mqtt"
	"github.com/nerrad567/packpilot/internal/results"
	"github.com/nerrad567/packpilot/internal/supervisor"
	"github.com/nerrad567/packpilot/internal/template"
	"github.com/nerrad567/packpilot/internal/worker"
	"github.com/nerrad567/packpilot/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// eventBuffer is the dispatcher queue length shared by all workers.
	eventBuffer = 1024

	serverRestartDelay    = 2 * time.Second
	serverMaxRestarts     = 5
	serverGracefulTimeout = 5 * time.Second
	serverHealthInterval  = 30 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns once every worker has finished and the results are written.
func run(ctx context.Context, args []string) error {
	log := logging.Default()
	log.Info("starting packpilot",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	kind := automation.Kind(cfg.Engine.Scenario)
	if len(args) > 0 {
		kind = automation.Kind(args[0])
	}

	registry := automation.NewRegistry()
	registry.SetLogger(log)
	if err := automation.RegisterBuiltins(registry, automation.BuiltinOptions{Pack: cfg.Engine.Pack}); err != nil {
		return fmt.Errorf("registering scenarios: %w", err)
	}
	sc, err := registry.Get(kind)
	if err != nil {
		return fmt.Errorf("selecting scenario (have %v): %w", registry.Kinds(), err)
	}

	// An unreadable template directory is fatal before any device is touched.
	store := template.NewStore()
	store.SetLogger(log)
	count, err := store.Load(ctx, cfg.Engine.TemplateDir)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}
	if missing := missingTemplates(store, sc); len(missing) > 0 {
		log.Warn("scenario references absent templates", "scenario", kind, "keys", missing)
	}
	log.Info("templates loaded", "dir", cfg.Engine.TemplateDir, "count", count)

	var names automation.NicknameSource
	if kind == automation.KindPackGather {
		list, loadErr := automation.LoadNicknames(cfg.Engine.NicknameFile)
		if loadErr != nil {
			return fmt.Errorf("loading nicknames: %w", loadErr)
		}
		names = list
		log.Info("nicknames loaded", "path", cfg.Engine.NicknameFile, "count", list.Len())
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)
	repo := results.NewSQLiteRepository(db.DB)

	sinks := []events.Sink{events.LogSink{Logger: log}}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		sink := mqtt.NewEventSink(mqttClient, cfg.MQTT.QoS)
		sink.SetLogger(log)
		sinks = append(sinks, sink)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

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
		sinks = append(sinks, influxdb.NewMetricsSink(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Registered after the sinks' clients so it drains before they close.
	dispatcher := events.NewDispatcher(eventBuffer, sinks...)
	dispatcher.SetLogger(log)
	defer dispatcher.Close()

	client := adb.NewClient(cfg.ADB)
	client.SetLogger(log)

	if cfg.ADB.ManagedServer {
		server, startErr := startADBServer(ctx, cfg.ADB, client, log)
		if startErr != nil {
			return fmt.Errorf("starting adb server: %w", startErr)
		}
		defer func() {
			log.Info("stopping adb server")
			if stopErr := server.Stop(); stopErr != nil {
				log.Error("error stopping adb server", "error", stopErr)
			}
		}()
	}

	devices, err := connectDevices(ctx, client, cfg.ADB.Devices, log)
	if err != nil {
		return err
	}

	clip := clipboard.New()
	if !clip.Available() {
		log.Warn("no clipboard command found, clipboard reads will fail")
	}

	g := gate.New("clipboard")
	runner := automation.NewRunner(store, g, clip, names, automation.Options{
		PollAttempts:     cfg.Engine.PollAttempts,
		PollDelay:        cfg.Engine.PollDelay,
		SettleDelay:      cfg.Engine.SettleDelay,
		DefaultThreshold: cfg.Engine.DefaultThreshold,
	})
	runner.SetLogger(log)

	// Results are stored even after a shutdown signal cancelled ctx.
	saveCtx := context.WithoutCancel(ctx)
	sup, err := supervisor.New(supervisor.Config{
		Scenarios: registry,
		Runner:    runner,
		Gate:      g,
		Backoff:   cfg.Engine.RetryBackoff,
		Events:    dispatcher,
		OnFinished: func(runID string, res worker.Result) {
			if saveErr := repo.Save(saveCtx, runID, res); saveErr != nil {
				log.Error("error saving task result", "task_id", res.TaskID, "device", res.Device, "error", saveErr)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("creating supervisor: %w", err)
	}
	sup.SetLogger(log)

	if mqttClient != nil {
		if subErr := mqttClient.OnStop(func(device string) {
			if device == "" {
				log.Info("remote stop requested")
				go sup.StopAll()
				return
			}
			log.Info("remote stop requested", "device", device)
			sup.Stop(device)
		}); subErr != nil {
			return fmt.Errorf("subscribing to stop commands: %w", subErr)
		}
	}

	runID, err := sup.StartAll(ctx, devices, kind, cfg.Engine.RetryBudget)
	if err != nil {
		return fmt.Errorf("starting workers: %w", err)
	}

	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received, stopping workers")
			sup.StopAll()
		case <-finished:
		}
	}()

	all, err := sup.Wait(saveCtx)
	close(finished)
	if err != nil {
		return fmt.Errorf("waiting for workers: %w", err)
	}

	written, err := results.AppendFile(cfg.Output.ResultsFile, all)
	if err != nil {
		return fmt.Errorf("writing results: %w", err)
	}

	s := summarise(all)
	log.Info("run complete",
		"run_id", runID,
		"scenario", kind,
		"succeeded", s.succeeded,
		"failed", s.failed,
		"cancelled", s.cancelled,
		"results_file", cfg.Output.ResultsFile,
		"lines_written", written,
	)
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PACKPILOT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PACKPILOT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startADBServer runs a managed "adb nodaemon server" on the configured port.
func startADBServer(ctx context.Context, cfg config.ADBConfig, client *adb.Client, log *logging.Logger) (*adb.Server, error) {
	server := adb.NewServer(adb.ServerConfig{
		Binary:             cfg.Path,
		Port:               cfg.ServerPort,
		RestartDelay:       serverRestartDelay,
		MaxRestartAttempts: serverMaxRestarts,
		GracefulTimeout:    serverGracefulTimeout,
		HealthCheck: func(ctx context.Context) error {
			_, err := client.Devices(ctx)
			return err
		},
		HealthCheckInterval: serverHealthInterval,
	})
	server.SetLogger(log)

	if err := server.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("adb server started", "port", cfg.ServerPort)
	return server, nil
}

// connectDevices resolves the configured devices into worker targets.
// Port-addressed emulators are connected first; a device that fails to
// connect is skipped. With no devices configured, every attached device
// is used.
func connectDevices(ctx context.Context, client *adb.Client, cfgs []config.DeviceConfig, log *logging.Logger) ([]supervisor.Device, error) {
	if len(cfgs) == 0 {
		serials, err := client.Devices(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing devices: %w", err)
		}
		for _, s := range serials {
			cfgs = append(cfgs, config.DeviceConfig{Serial: s})
		}
	}

	devices := make([]supervisor.Device, 0, len(cfgs))
	for _, dc := range cfgs {
		serial := dc.ID()
		if dc.Serial == "" {
			if err := client.Connect(ctx, serial); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil, err
				}
				log.Warn("skipping device", "name", dc.Name, "serial", serial, "error", err)
				continue
			}
		}
		devices = append(devices, supervisor.Device{
			ID:     serial,
			Driver: adb.NewDriver(client, serial),
		})
		log.Info("device ready", "name", dc.Name, "serial", serial, "root", client.IsRoot(serial))
	}

	if len(devices) == 0 {
		return nil, supervisor.ErrNoDevices
	}
	return devices, nil
}

// missingTemplates lists the template keys sc needs that the store lacks.
func missingTemplates(store *template.Store, sc *automation.Scenario) []string {
	var missing []string
	for _, key := range automation.TemplateKeys(sc) {
		if _, ok := store.Get(key); !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

type summary struct {
	succeeded, failed, cancelled int
}

func summarise(all []worker.Result) summary {
	var s summary
	for _, r := range all {
		switch r.State {
		case worker.StateSuccess:
			s.succeeded++
		case worker.StateFailed:
			s.failed++
		case worker.StateCancelled:
			s.cancelled++
		}
	}
	return s
}
