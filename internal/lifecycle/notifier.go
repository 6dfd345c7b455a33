// Package lifecycle manages the session's arrival and departure: when
// the gateway reaches ready it resyncs the command surface and greets
// every community's broadcast channel, and on shutdown it says goodbye
// to the same channels before closing the connection.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nugget/herald/internal/command"
	"github.com/nugget/herald/internal/events"
	"github.com/nugget/herald/internal/platform"
)

// State tracks the notifier's progress through the session.
type State int

// Session states, in order.
const (
	StateStarting State = iota
	StateReady
	StateShuttingDown
	StateClosed
)

// Gateway is the subset of the client the notifier needs.
type Gateway interface {
	Communities() []platform.Community
	SendMessage(ctx context.Context, channelID, content string, files []platform.File) error
	RegisterCommands(ctx context.Context, specs []platform.CommandSpec) (int, error)
	Close() error
}

// NotifierConfig holds the dependencies and messages for a Notifier.
type NotifierConfig struct {
	Gateway  Gateway
	Registry *command.Registry
	// Channel is the name of the broadcast channel looked up in each
	// community.
	Channel  string
	Greeting string
	Farewell string
	Logger   *slog.Logger
	// Bus receives lifecycle events. May be nil.
	Bus *events.Bus
}

// Notifier owns the greeting and farewell broadcasts. All methods must
// be called from the dispatch loop; state is not locked.
type Notifier struct {
	gateway  Gateway
	registry *command.Registry
	channel  string
	greeting string
	farewell string
	logger   *slog.Logger
	bus      *events.Bus

	state State
	// pendingShutdown is set when a shutdown request arrives before the
	// session is ready. HandleReady honors it after greeting.
	pendingShutdown bool
}

// NewNotifier creates a notifier in StateStarting.
func NewNotifier(cfg NotifierConfig) *Notifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		gateway:  cfg.Gateway,
		registry: cfg.Registry,
		channel:  cfg.Channel,
		greeting: cfg.Greeting,
		farewell: cfg.Farewell,
		logger:   logger,
		bus:      cfg.Bus,
	}
}

// State returns the current session state.
func (n *Notifier) State() State {
	return n.state
}

// HandleReady runs the arrival sequence: resync the command surface,
// then greet every community's broadcast channel. A failed resync is
// logged but does not abort the session; a failed greeting in one
// community never blocks the others.
func (n *Notifier) HandleReady(ctx context.Context, ev platform.ReadyEvent) {
	if n.state != StateStarting {
		n.logger.Debug("ready received again, session already up", "state", int(n.state))
		return
	}

	n.logger.Info("session ready",
		"bot", ev.BotUser.Name,
		"communities", len(ev.Communities),
	)
	n.bus.Publish(events.Event{
		Source: events.SourceGateway,
		Kind:   events.KindReady,
		Data:   map[string]any{"communities": len(ev.Communities)},
	})

	synced, syncErr := n.gateway.RegisterCommands(ctx, n.registry.Specs())
	if syncErr != nil {
		n.logger.Error("command resync failed", "error", syncErr)
	} else {
		n.logger.Info("command surface synced", "count", synced)
	}

	for _, community := range ev.Communities {
		n.broadcast(ctx, community, "greeting", func(channelID string) error {
			if err := n.gateway.SendMessage(ctx, channelID, n.greeting, nil); err != nil {
				return err
			}
			if syncErr != nil {
				return nil
			}
			return n.gateway.SendMessage(ctx, channelID, syncNotice(synced), nil)
		})
	}

	n.state = StateReady
	if n.pendingShutdown {
		n.logger.Info("honoring shutdown requested before ready")
		n.Shutdown(ctx)
	}
}

// Shutdown runs the departure sequence: farewell every community's
// broadcast channel, then close the gateway. Safe to call repeatedly;
// only the first call after ready does anything. A call before ready
// defers the shutdown until HandleReady completes.
func (n *Notifier) Shutdown(ctx context.Context) {
	switch n.state {
	case StateStarting:
		n.pendingShutdown = true
		n.logger.Info("shutdown requested before ready, deferring")
		return
	case StateShuttingDown, StateClosed:
		return
	}

	n.state = StateShuttingDown
	n.logger.Info("shutting down")
	n.bus.Publish(events.Event{
		Source: events.SourceLifecycle,
		Kind:   events.KindShutdown,
	})

	for _, community := range n.gateway.Communities() {
		n.broadcast(ctx, community, "farewell", func(channelID string) error {
			return n.gateway.SendMessage(ctx, channelID, n.farewell, nil)
		})
	}

	if err := n.gateway.Close(); err != nil {
		n.logger.Warn("gateway close failed", "error", err)
	}
	n.state = StateClosed
}

// broadcast resolves the community's broadcast channel and runs send
// against it, reporting the outcome. Errors are contained per
// community.
func (n *Notifier) broadcast(ctx context.Context, community platform.Community, phase string, send func(channelID string) error) {
	target, ok := findChannel(community, n.channel)
	if !ok {
		n.logger.Info("community has no broadcast channel",
			"community", community.Name,
			"channel", n.channel,
		)
		return
	}

	if err := send(target.ID); err != nil {
		n.logger.Error("broadcast failed",
			"community", community.Name,
			"channel", target.Name,
			"phase", phase,
			"error", err,
		)
		n.bus.Publish(events.Event{
			Source: events.SourceLifecycle,
			Kind:   events.KindBroadcastFailed,
			Data: map[string]any{
				"community_id": community.ID,
				"phase":        phase,
				"reason":       err.Error(),
			},
		})
		return
	}

	n.logger.Debug("broadcast sent", "community", community.Name, "phase", phase)
	n.bus.Publish(events.Event{
		Source: events.SourceLifecycle,
		Kind:   events.KindBroadcastSent,
		Data: map[string]any{
			"community_id": community.ID,
			"phase":        phase,
		},
	})
}

// findChannel locates a sendable text channel by name.
func findChannel(community platform.Community, name string) (platform.Channel, bool) {
	for _, ch := range community.Channels {
		if ch.Name == name && ch.Type == platform.ChannelText && ch.Sendable {
			return ch, true
		}
	}
	return platform.Channel{}, false
}

func syncNotice(count int) string {
	if count == 1 {
		return "Synced 1 command."
	}
	return fmt.Sprintf("Synced %d commands.", count)
}
