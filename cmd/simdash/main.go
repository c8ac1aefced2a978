package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"simdash/internal/app"
	"simdash/internal/config"
	"simdash/internal/telemetry"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "optional YAML configuration file")
	flag.Parse()

	logger := telemetry.WrapLogger(log.Default())

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			log.Fatalf("%v", err)
		}
		cfg = loaded
	}
	cfg = config.ApplyEnv(cfg, os.Getenv, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, app.Options{Logger: logger}); err != nil {
		log.Fatalf("%v", err)
	}
}
