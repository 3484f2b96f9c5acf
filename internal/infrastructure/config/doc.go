// Package config loads the packpilot configuration.
//
// Values are resolved in three layers: built-in defaults, the YAML file,
// then PACKPILOT_* environment variables. Validate reports every problem
// at once rather than stopping at the first.
//
// The engine section tunes polling and retries, the adb section names the
// emulators to drive (by serial, or by port for 127.0.0.1:<port>), and the
// remaining sections configure result persistence and telemetry.
//
// Durations use Go syntax in YAML ("100ms", "1s").
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	for _, d := range cfg.ADB.Devices {
//	    fmt.Println(d.ID())
//	}
package config
