package mqttpub

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nugget/herald/internal/config"
	"github.com/nugget/herald/internal/events"
)

func testPublisher(bus *events.Bus) *Publisher {
	cfg := config.MQTTConfig{
		Broker:             "mqtt://broker:1883",
		DeviceName:         "herald-test",
		PublishIntervalSec: 60,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, nil, bus, logger)
}

func TestTopics(t *testing.T) {
	p := testPublisher(nil)

	if got := p.availabilityTopic(); got != "herald/herald-test/availability" {
		t.Errorf("availabilityTopic() = %q", got)
	}
	if got := p.stateTopic("uptime"); got != "herald/herald-test/uptime/state" {
		t.Errorf("stateTopic(uptime) = %q", got)
	}
}

func TestCountDispatches(t *testing.T) {
	bus := events.New()
	p := testPublisher(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.countDispatches(ctx)

	// Give the subscriber a moment to register before publishing.
	time.Sleep(10 * time.Millisecond)

	bus.Publish(events.Event{Source: events.SourceDispatch, Kind: events.KindCommandDispatched})
	bus.Publish(events.Event{Source: events.SourceDispatch, Kind: events.KindCommandFailed})
	bus.Publish(events.Event{Source: events.SourceLifecycle, Kind: events.KindReady})
	bus.Publish(events.Event{Source: events.SourceDispatch, Kind: events.KindCommandDispatched})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.dispatched.Load() == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("dispatched = %d, want 2", p.dispatched.Load())
}

func TestStopWithoutStart(t *testing.T) {
	p := testPublisher(nil)
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop() before Start() error = %v", err)
	}
}
