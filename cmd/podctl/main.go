// podctl is a command line tool for inspecting model resolution and the
// accessories BlueZ knows about.
//
// Usage:
//
//	podctl [-config path] resolve NAME
//	podctl [-config path] devices
//	podctl [-config path] scan
//	podctl [-config path] connect
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"podcompanion/internal/bluez"
	"podcompanion/internal/config"
	"podcompanion/internal/model"
	"podcompanion/internal/session"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [-config path] <resolve NAME|devices|scan|connect>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "path to config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	switch args[0] {
	case "resolve":
		if len(args) < 2 {
			log.Fatal("resolve: missing device name")
		}
		printModel(model.Resolve(model.DiscoveredDevice{Name: strings.Join(args[1:], " ")}))
	case "devices":
		client := newClient(cfg)
		defer client.Close()
		devices, err := client.Devices(ctx)
		if err != nil {
			log.Fatalf("devices: %v", err)
		}
		if len(devices) == 0 {
			fmt.Println("No devices found")
		}
		for _, d := range devices {
			printDevice(d)
		}
	case "scan":
		client := newClient(cfg)
		defer client.Close()
		scanCtx, cancel := context.WithTimeout(ctx, cfg.ScanTimeout)
		defer cancel()
		fmt.Println("Scanning for AirPods...")
		d, err := client.Scan(scanCtx)
		if err != nil {
			log.Fatalf("scan: %v", err)
		}
		printDevice(d)
	case "connect":
		client := newClient(cfg)
		defer client.Close()
		coord := session.NewCoordinator(client, session.Options{
			ScanTimeout:    cfg.ScanTimeout,
			ConnectTimeout: cfg.ConnectTimeout,
		})
		sess, err := coord.Connect(ctx)
		if err != nil {
			log.Fatalf("connect: %v", err)
		}
		fmt.Printf("Connected to %s (%s), session %s\n", sess.Name, sess.Address, sess.ID)
		printModel(sess.Model)
		if b := coord.State().Battery; b != nil {
			if lowest, ok := b.Lowest(); ok {
				fmt.Printf("  Battery:      %d%%\n", lowest)
			}
		}
	default:
		usage()
		os.Exit(2)
	}
}

func newClient(cfg *config.Config) *bluez.Client {
	key, _ := cfg.Key()
	client, err := bluez.NewClient(cfg.Adapter, key)
	if err != nil {
		log.Fatalf("Failed to connect to BlueZ: %v", err)
	}
	return client
}

func printModel(m model.Model) {
	caps := model.CapabilitiesOf(m)
	fmt.Printf("  Model:        %s (%s)\n", m.DisplayName(), m)
	fmt.Printf("  ANC:          %t\n", caps.NoiseCancellation)
	fmt.Printf("  Transparency: %t\n", caps.Transparency)
	fmt.Printf("  Spatial:      %t\n", caps.SpatialAudio)
}

func printDevice(d *bluez.Device) {
	fmt.Printf("%s %s\n", d.Address, d.DisplayName())
	fmt.Printf("  Path:         %s\n", d.Path)
	fmt.Printf("  Connected:    %t  Paired: %t  RSSI: %d\n", d.Connected, d.Paired, d.RSSI)
	if !d.IsAccessory() {
		fmt.Println("  Not an AirPods accessory")
		return
	}
	if !d.Paired && !d.Connected {
		fmt.Println("  Not paired with this computer")
	}
	printModel(model.Resolve(d.Discovered()))
	if d.Proximity != nil {
		fmt.Printf("  Proximity:    %s\n", d.Proximity)
	}
}
