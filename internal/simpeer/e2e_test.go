package simpeer_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"simdash/internal/params"
	"simdash/internal/playback"
	"simdash/internal/render"
	"simdash/internal/simpeer"
	"simdash/internal/telemetry"
	"simdash/internal/transport"
)

func TestPlaybackAgainstReferencePeer(t *testing.T) {
	world := simpeer.DefaultWorldConfig()
	world.MaxSteps = 25
	srv := httptest.NewServer(simpeer.NewServer(simpeer.ServerConfig{World: world}).Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	channel, err := transport.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", transport.Options{})
	if err != nil {
		t.Fatalf("dial reference peer: %v", err)
	}
	defer channel.Close()

	metrics := telemetry.NewCounters()
	sinks := render.NewRegistry(nil)
	table := render.NewNodeTable(nil, metrics)
	sinks.Register(table)
	registry := params.NewRegistry(channel)
	synchronizer := playback.New(playback.Config{DefaultRate: 30, MaxRate: 30}, playback.Deps{
		Channel: channel,
		Sinks:   sinks,
		Params:  registry,
		Metrics: metrics,
	})
	loop := playback.NewLoop(synchronizer, channel.Inbound(), 16)

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for registry.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if registry.Len() != len(simpeer.Schema(world)) {
		t.Fatalf("expected the peer schema to be installed, got %d descriptors", registry.Len())
	}

	if err := loop.Submit(playback.Command{Type: playback.CommandPlay}); err != nil {
		t.Fatalf("play: %v", err)
	}
	for loop.Status().State != playback.StateFinished && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	status := loop.Status()
	if status.State != playback.StateFinished {
		t.Fatalf("expected the peer to end the run, got %+v", status)
	}
	if status.Received > status.Tick {
		t.Fatalf("receipts exceeded ticks: %+v", status)
	}
	if status.Received < world.MaxSteps {
		t.Fatalf("expected at least %d frames, got %d", world.MaxSteps, status.Received)
	}

	view := table.View()
	if len(view.Nodes) != world.FixedNodes+world.MobileNodes {
		t.Fatalf("expected node table to track %d nodes, got %d", world.FixedNodes+world.MobileNodes, len(view.Nodes))
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected loop exit: %v", err)
	}
}
