// Package dispatch routes gateway events to command handlers under a
// single cooperative loop. Events and enqueued tasks run one at a time
// in arrival order; handlers that need to suspend (the timer) schedule
// their continuation back onto the loop instead of blocking it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"unicode/utf8"

	"github.com/nugget/herald/internal/command"
	"github.com/nugget/herald/internal/events"
	"github.com/nugget/herald/internal/platform"
)

// genericFailure is the reply sent when a handler fails unexpectedly.
const genericFailure = "Something went wrong handling that command."

// Sender is the subset of the gateway client the dispatcher needs to
// deliver replies.
type Sender interface {
	SendMessage(ctx context.Context, channelID, content string, files []platform.File) error
	SendDirect(ctx context.Context, userID, content string) error
}

// CompletionRecorder persists a record of each completed structured
// command. Satisfied by audit.Store.
type CompletionRecorder interface {
	RecordCompletion(ctx context.Context, commandName, userID, communityID, channelID string) error
}

// Observer sees every non-bot plain message before prefix-command
// matching. Observers must not block for long; they run on the loop.
type Observer func(ctx context.Context, msg platform.Message)

// Config holds the dependencies for a Dispatcher.
type Config struct {
	Registry *command.Registry
	Sender   Sender
	// Prefix is the marker character for text commands, e.g. "!".
	Prefix string
	Logger *slog.Logger
	// Bus receives operational events. May be nil.
	Bus *events.Bus
	// Recorder persists command completions. May be nil.
	Recorder CompletionRecorder
}

// Dispatcher consumes gateway events and enqueued tasks on a single
// loop, routing structured invocations and prefix commands to their
// handlers and converting handler failures into user-visible replies.
type Dispatcher struct {
	registry *command.Registry
	sender   Sender
	prefix   string
	logger   *slog.Logger
	bus      *events.Bus
	recorder CompletionRecorder

	observers    []Observer
	readyHandler func(ctx context.Context, ev platform.ReadyEvent)

	tasks chan func(ctx context.Context)
}

// NewDispatcher creates a dispatcher. Call [Dispatcher.Run] to start
// consuming events.
func NewDispatcher(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: cfg.Registry,
		sender:   cfg.Sender,
		prefix:   cfg.Prefix,
		logger:   logger,
		bus:      cfg.Bus,
		recorder: cfg.Recorder,
		tasks:    make(chan func(ctx context.Context), 64),
	}
}

// SetReadyHandler registers the function invoked on the loop when the
// gateway reports ready. Must be called before Run.
func (d *Dispatcher) SetReadyHandler(fn func(ctx context.Context, ev platform.ReadyEvent)) {
	d.readyHandler = fn
}

// AddObserver registers a message observer. Must be called before Run.
func (d *Dispatcher) AddObserver(obs Observer) {
	d.observers = append(d.observers, obs)
}

// Enqueue schedules a task to run on the dispatch loop. Safe to call
// from any goroutine, including OS signal handling context. This is
// the only way work from outside the loop enters it.
func (d *Dispatcher) Enqueue(task func(ctx context.Context)) {
	select {
	case d.tasks <- task:
	default:
		// The loop is badly backed up; run a blocking send in a
		// goroutine so the caller (possibly a signal handler) returns
		// immediately.
		go func() { d.tasks <- task }()
	}
}

// Run consumes gateway events and enqueued tasks until the event
// channel closes, a DisconnectEvent arrives, or ctx is cancelled.
// Everything runs serially on this one goroutine.
func (d *Dispatcher) Run(ctx context.Context, gateway <-chan platform.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case task := <-d.tasks:
			task(ctx)

		case ev, ok := <-gateway:
			if !ok {
				return nil
			}
			switch e := ev.(type) {
			case platform.ReadyEvent:
				if d.readyHandler != nil {
					d.readyHandler(ctx, e)
				}

			case platform.CommandEvent:
				d.dispatchCommand(ctx, e.Invocation)

			case platform.MessageEvent:
				d.dispatchMessage(ctx, e.Message)

			case platform.DisconnectEvent:
				if e.Err != nil {
					return fmt.Errorf("gateway disconnected: %w", e.Err)
				}
				return nil
			}
		}
	}
}

// dispatchCommand resolves a structured invocation against the registry
// and runs its handler inside the error boundary.
func (d *Dispatcher) dispatchCommand(ctx context.Context, inv platform.Invocation) {
	r := &responder{sender: d.sender, channelID: inv.ChannelID, userID: inv.User.ID}

	spec, ok := d.registry.Get(inv.Command)
	if !ok {
		d.logger.Warn("unknown command invoked", "command", inv.Command, "user", inv.User.Name)
		d.reply(ctx, r, true, "Unknown command.")
		return
	}

	args, err := command.BuildArgs(spec.Params, inv.Options)
	if err != nil {
		d.reply(ctx, r, true, "Invalid arguments: "+err.Error())
		return
	}

	d.logger.Info("command invoked",
		"command", inv.Command,
		"user", inv.User.Name,
		"user_id", inv.User.ID,
		"community_id", inv.CommunityID,
		"channel_id", inv.ChannelID,
	)

	if ok := d.invoke(ctx, r, inv.Command, func(ctx context.Context) error {
		return spec.Handler(ctx, &inv, args, r)
	}); !ok {
		return
	}

	d.bus.Publish(events.Event{
		Source: events.SourceDispatch,
		Kind:   events.KindCommandDispatched,
		Data: map[string]any{
			"command": inv.Command,
			"user_id": inv.User.ID,
		},
	})

	if d.recorder != nil {
		if err := d.recorder.RecordCompletion(ctx, inv.Command, inv.User.ID, inv.CommunityID, inv.ChannelID); err != nil {
			d.logger.Warn("command completion record failed", "command", inv.Command, "error", err)
		}
	}
}

// dispatchMessage runs observers over a plain message and then checks
// for a prefix command.
func (d *Dispatcher) dispatchMessage(ctx context.Context, msg platform.Message) {
	if msg.Author.Bot {
		return
	}

	for _, obs := range d.observers {
		obs(ctx, msg)
	}

	word, rest, ok := d.splitPrefix(msg.Content)
	if !ok {
		return
	}

	spec, found := d.registry.GetPrefix(word)
	if !found {
		d.logger.Debug("unknown prefix command", "word", word)
		return
	}

	r := &responder{sender: d.sender, channelID: msg.ChannelID, userID: msg.Author.ID}
	d.invoke(ctx, r, d.prefix+word, func(ctx context.Context) error {
		return spec.Handler(ctx, msg, rest, r)
	})
}

// invoke runs fn inside the dispatch error boundary: panics and
// unexpected errors become a log entry plus a generic failure reply;
// UserErrors become a private reply with no alarm. Returns true when
// fn completed without error.
func (d *Dispatcher) invoke(ctx context.Context, r *responder, name string, fn func(ctx context.Context) error) (completed bool) {
	defer func() {
		if rec := recover(); rec != nil {
			completed = false
			d.logger.Error("command handler panicked",
				"command", name,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			d.reply(ctx, r, true, genericFailure)
			d.publishFailure(name, fmt.Sprint(rec))
		}
	}()

	err := fn(ctx)
	if err == nil {
		return true
	}

	var ue *UserError
	if errors.As(err, &ue) {
		d.reply(ctx, r, true, ue.Message)
		return false
	}

	d.logger.Error("command handler failed", "command", name, "error", err)
	d.reply(ctx, r, true, genericFailure)
	d.publishFailure(name, err.Error())
	return false
}

// reply delivers an error or notice reply, logging delivery failures
// rather than propagating them. The loop must stay responsive.
func (d *Dispatcher) reply(ctx context.Context, r *responder, private bool, content string) {
	var err error
	if private {
		err = r.ReplyPrivate(ctx, content)
	} else {
		err = r.Reply(ctx, content)
	}
	if err != nil {
		d.logger.Warn("reply delivery failed", "error", err)
	}
}

func (d *Dispatcher) publishFailure(name, reason string) {
	d.bus.Publish(events.Event{
		Source: events.SourceDispatch,
		Kind:   events.KindCommandFailed,
		Data: map[string]any{
			"command": name,
			"reason":  reason,
		},
	})
}

// splitPrefix parses a prefix-command line into its command word and
// the raw remainder. Returns ok=false for ordinary messages.
func (d *Dispatcher) splitPrefix(content string) (word, rest string, ok bool) {
	if d.prefix == "" || !strings.HasPrefix(content, d.prefix) {
		return "", "", false
	}
	body := content[len(d.prefix):]
	if body == "" {
		return "", "", false
	}
	// A doubled marker ("!!") or leading space is not a command.
	first, _ := utf8.DecodeRuneInString(body)
	if first == ' ' || strings.HasPrefix(body, d.prefix) {
		return "", "", false
	}

	word, rest, _ = strings.Cut(body, " ")
	return word, strings.TrimSpace(rest), true
}

// responder delivers replies for one invocation or message. Private
// replies go to the user's direct channel.
type responder struct {
	sender    Sender
	channelID string
	userID    string
}

func (r *responder) Reply(ctx context.Context, content string) error {
	return r.sender.SendMessage(ctx, r.channelID, content, nil)
}

func (r *responder) ReplyPrivate(ctx context.Context, content string) error {
	return r.sender.SendDirect(ctx, r.userID, content)
}

func (r *responder) Followup(ctx context.Context, content string) error {
	return r.sender.SendMessage(ctx, r.channelID, content, nil)
}
