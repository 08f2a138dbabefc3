// podcompanion is the tray application: it connects to AirPods through
// BlueZ, shows the model, battery levels and the audio controls the model
// supports, and publishes the battery level to BlueZ.
//
// Usage:
//
//	podcompanion [-config path] [-icons dir]
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"

	"podcompanion/internal/bluez"
	"podcompanion/internal/config"
	"podcompanion/internal/indicator"
	"podcompanion/internal/session"
)

const batteryName = "airpods_battery"

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "path to config file")
	iconDir := flag.String("icons", "/usr/share/podcompanion/icons", "directory holding tray icons")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}
	if err := cfg.SetupLogging(); err != nil {
		log.Fatalf("logging: %v", err)
	}
	key, _ := cfg.Key()

	client, err := bluez.NewClient(cfg.Adapter, key)
	if err != nil {
		log.Fatalf("Failed to create BlueZ client: %v", err)
	}
	defer client.Close()

	coord := session.NewCoordinator(client, session.Options{
		ScanTimeout:    cfg.ScanTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.BatteryProvider {
		if provider := createBatteryProvider(cfg.Adapter, coord); provider != nil {
			defer provider.Close()
		}
	}

	tray := createTrayIndicator(ctx, *iconDir, coord, stop)
	defer tray.Stop()

	// Pick up accessories that are already connected.
	go func() {
		if _, err := coord.Connect(ctx); err != nil && !errors.Is(err, bluez.ErrNotFound) {
			slog.Warn("initial connect", "error", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")
}

// createBatteryProvider publishes the lowest earbud level to BlueZ so it
// shows up in the desktop's Bluetooth settings.
func createBatteryProvider(adapter string, coord *session.Coordinator) *bluez.BatteryProvider {
	provider, err := bluez.NewBatteryProvider(adapter)
	if err != nil {
		log.Printf("Warning: Failed to create BlueZ battery provider: %v", err)
		log.Println("Battery won't appear in the system settings, the tray still works")
		return nil
	}

	coord.RegisterCallback(func(state session.State) {
		if state.Session == nil || state.Battery == nil {
			if err := provider.Remove(batteryName); err != nil {
				slog.Warn("remove BlueZ battery", "error", err)
			}
			return
		}
		lowest, ok := state.Battery.Lowest()
		if !ok {
			return
		}
		if err := provider.Set(batteryName, lowest, dbus.ObjectPath(state.Session.Path)); err != nil {
			slog.Warn("update BlueZ battery", "error", err)
		}
	})

	return provider
}

func createTrayIndicator(ctx context.Context, iconDir string, coord *session.Coordinator, quit func()) *indicator.Indicator {
	tray := indicator.New(indicator.Actions{
		Toggle: func() {
			if err := coord.Toggle(ctx); err != nil {
				slog.Warn("toggle connection", "error", err)
			}
		},
		Refresh: func() {
			if err := coord.Refresh(ctx); err != nil {
				slog.Warn("refresh", "error", err)
			}
		},
		SetNoise: func(mode session.NoiseMode) {
			if err := coord.SetNoiseMode(mode); err != nil {
				slog.Warn("noise mode", "mode", mode, "error", err)
			}
		},
		SetSpatial: func(mode session.SpatialMode) {
			if err := coord.SetSpatialMode(mode); err != nil {
				slog.Warn("spatial mode", "mode", mode, "error", err)
			}
		},
		Quit: quit,
	}, iconDir)
	tray.Start()

	coord.RegisterCallback(tray.Update)
	return tray
}
