package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"simdash/internal/config"
	"simdash/internal/dashboard"
	"simdash/internal/params"
	"simdash/internal/playback"
	"simdash/internal/render"
	"simdash/internal/telemetry"
	"simdash/internal/transport"
	"simdash/logging"
	loggingSinks "simdash/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

// Options carry process-level collaborators that do not belong in the
// configuration file.
type Options struct {
	Logger telemetry.Logger
	// Listener overrides Dashboard.ListenAddr, mostly for tests.
	Listener net.Listener
	Stdout   io.Writer
}

// Run connects to the simulation peer, serves the dashboard and drives
// playback until ctx is cancelled or the peer goes away.
func Run(ctx context.Context, cfg config.Config, opts Options) error {
	telemetryLogger := opts.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	sinks, err := buildSinks(cfg.Logging, stdout)
	if err != nil {
		return err
	}
	router, err := logging.NewRouter(cfg.Logging, logging.SystemClock{}, fallbackLogger, sinks)
	if err != nil {
		closeSinks(sinks)
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	counters := telemetry.NewCounters()

	dialCtx := ctx
	if cfg.Peer.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.Peer.DialTimeout)
		defer cancel()
	}
	channel, err := transport.Dial(dialCtx, cfg.Peer.URL, transport.Options{
		InboundBuffer: cfg.Peer.InboundBuffer,
		WriteTimeout:  cfg.Peer.WriteTimeout,
		Logger:        telemetryLogger,
		Publisher:     router,
		Metrics:       counters,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to simulation peer: %w", err)
	}
	defer channel.Close()

	registry := params.NewRegistry(channel)
	nodes := render.NewNodeTable(telemetryLogger, counters)
	renderers := render.NewRegistry(telemetryLogger)
	renderers.Register(nodes)
	renderers.RegisterWhole(render.NewLogSink(router))

	synchronizer := playback.New(cfg.PlaybackRates(), playback.Deps{
		Channel:   channel,
		Sinks:     renderers,
		Params:    registry,
		Publisher: router,
		Logger:    telemetryLogger,
		Metrics:   counters,
	})
	loop := playback.NewLoop(synchronizer, channel.Inbound(), cfg.Playback.CommandBuffer)

	hub := dashboard.NewHub(dashboard.HubConfig{
		Controller: loop,
		Params:     registry,
		Logger:     telemetryLogger,
		Publisher:  router,
		Metrics:    counters,
	})
	defer hub.Close()
	synchronizer.Observe(hub)
	renderers.RegisterWhole(hub)

	handler := dashboard.NewHandler(hub, dashboard.HandlerConfig{
		ClientDir:     cfg.Dashboard.ClientDir,
		Logger:        telemetryLogger,
		Counters:      counters,
		RouterStats:   router.Stats,
		Nodes:         nodes.View,
		Observability: cfg.Observability,
	})

	listener := opts.Listener
	if listener == nil {
		listener, err = net.Listen("tcp", cfg.Dashboard.ListenAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.Dashboard.ListenAddr, err)
		}
	}
	srv := &http.Server{Handler: handler}
	telemetryLogger.Printf("dashboard listening on %s, peer %s", listener.Addr(), cfg.Peer.URL)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	loopErr := make(chan error, 1)
	go func() { loopErr <- loop.Run(runCtx) }()
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(listener) }()

	var result error
	select {
	case <-ctx.Done():
	case err := <-loopErr:
		loopErr = nil
		if !errors.Is(err, context.Canceled) {
			result = fmt.Errorf("playback stopped: %w", err)
		}
	case err := <-serveErr:
		serveErr = nil
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			result = fmt.Errorf("dashboard failed: %w", err)
		}
	}

	cancelRun()
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetryLogger.Printf("dashboard shutdown: %v", err)
	}
	if loopErr != nil {
		<-loopErr
	}
	telemetryLogger.Printf("stopped at tick %d (%d frames received)", loop.Status().Tick, loop.Status().Received)
	return result
}

func buildSinks(cfg logging.Config, stdout io.Writer) (map[string]logging.Sink, error) {
	sinks := make(map[string]logging.Sink, len(cfg.EnabledSinks))
	for _, name := range cfg.EnabledSinks {
		switch name {
		case "console":
			sinks[name] = loggingSinks.NewConsoleSink(stdout, cfg.Console)
		case "memory":
			sinks[name] = loggingSinks.NewMemorySink()
		case "json":
			file, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				closeSinks(sinks)
				return nil, fmt.Errorf("failed to open json log %s: %w", cfg.JSON.FilePath, err)
			}
			sinks[name] = loggingSinks.NewJSON(file, cfg.JSON.FlushInterval)
		default:
			closeSinks(sinks)
			return nil, fmt.Errorf("unknown logging sink %q", name)
		}
	}
	return sinks, nil
}

func closeSinks(sinks map[string]logging.Sink) {
	for _, sink := range sinks {
		sink.Close(context.Background())
	}
}
