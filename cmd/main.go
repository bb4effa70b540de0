// Package main is the production entry point for the Primal Radio player.
//
// Primal Radio plays the Primal Radio streams with clean architecture:
// - Event-driven communication (no callbacks)
// - Dependency injection for testability
// - MVP pattern for UI decoupling
// - Optional headless mode with an HTTP and websocket surface
//
// Build:
//
//	go build -o build/primalradio ./cmd
//
// Run:
//
//	./build/primalradio [--config file] [--headless] [--web] [--mock-audio] [--log-level debug]
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/primalradio/primalradio/internal/app"
	"github.com/primalradio/primalradio/internal/config"
)

func main() {
	config.RegisterFlags(flag.CommandLine)
	showVersion := flag.BoolP("version", "v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(app.GetVersionInfo().FullString())
		return
	}

	opts := config.DefaultOptions()
	opts.Flags = flag.CommandLine
	settings, err := config.Load(opts)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create the application with dependency injection
	application, err := app.NewApplication(ctx, app.ConfigFrom(settings))
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Ensure a graceful shutdown
	defer func() {
		fmt.Println("\nShutting down...")
		if err := application.Shutdown(); err != nil {
			fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
		}
		fmt.Println("Shutdown complete")
	}()

	// Run application (blocks until the window is closed or a signal arrives)
	if err := application.Run(ctx); err != nil {
		log.Printf("Application error: %v", err)
	}

	fmt.Println("Application exited cleanly")
}
