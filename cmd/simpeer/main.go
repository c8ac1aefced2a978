package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"simdash/internal/simpeer"
	"simdash/internal/telemetry"
)

func main() {
	world := simpeer.DefaultWorldConfig()

	var (
		addr       string
		configPath string
	)
	flag.StringVar(&addr, "addr", ":8521", "listen address")
	flag.StringVar(&configPath, "config", "", "optional YAML world configuration")
	flag.Uint64Var(&world.MaxSteps, "max-steps", world.MaxSteps, "steps before the run ends (0 runs forever)")
	flag.Int64Var(&world.Seed, "seed", world.Seed, "world random seed")
	flag.IntVar(&world.MobileNodes, "mobile", world.MobileNodes, "number of mobile nodes")
	flag.Parse()

	if configPath != "" {
		if err := loadWorld(configPath, &world); err != nil {
			log.Fatalf("%v", err)
		}
	}

	logger := telemetry.WrapLogger(log.Default())
	peer := simpeer.NewServer(simpeer.ServerConfig{World: world, Logger: logger})
	srv := &http.Server{Addr: addr, Handler: peer.Handler()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("reference peer listening on %s (%d fixed, %d mobile nodes)", addr, world.FixedNodes, world.MobileNodes)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("peer failed: %v", err)
	}
}

func loadWorld(path string, world *simpeer.WorldConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(world); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
