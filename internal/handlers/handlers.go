// Package handlers implements the agent's command surface: schedule
// management, dice and timers, roulette selection, canned replies,
// moderation, and the prefix send commands. Handlers receive their
// dependencies through Deps and report user mistakes as
// dispatch.UserError so the dispatcher can reply without alarm.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/nugget/herald/internal/command"
	"github.com/nugget/herald/internal/platform"
	"github.com/nugget/herald/internal/roulette"
	"github.com/nugget/herald/internal/schedule"
)

// Gateway is the subset of the platform client the handlers need.
type Gateway interface {
	Latency() time.Duration
	SendMessage(ctx context.Context, channelID, content string, files []platform.File) error
	SendDirect(ctx context.Context, userID, content string) error
	Kick(ctx context.Context, communityID, userID, reason string) error
	Ban(ctx context.Context, communityID, userID, reason string) error
	Unban(ctx context.Context, communityID, userID string) error
}

// Enqueuer schedules a task onto the dispatch loop. Used by deferred
// handlers (the timer) to resume without blocking the loop.
type Enqueuer interface {
	Enqueue(task func(ctx context.Context))
}

// Deps carries the dependencies shared by the handler set.
type Deps struct {
	Schedules *schedule.Store
	Picker    *roulette.Picker
	Gateway   Gateway
	Enqueuer  Enqueuer
	Rand      *rand.Rand
	Logger    *slog.Logger
	// DataDir anchors the relative paths of the prefix send commands.
	DataDir string
	// ForwardChannel and ForwardUser configure the question-forwarding
	// observer. Either empty disables forwarding.
	ForwardChannel string
	ForwardUser    string
	// After schedules a callback, defaulting to time.AfterFunc. Tests
	// replace it to fire timers synchronously.
	After func(d time.Duration, fn func())
}

// RegisterAll registers every command herald ships. Any registration
// error (duplicate name, nil handler) is returned immediately; callers
// treat it as fatal at startup.
func RegisterAll(reg *command.Registry, deps Deps) error {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.After == nil {
		deps.After = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}

	specs := []command.Spec{
		scheduleAddSpec(deps),
		scheduleListSpec(deps),
		scheduleRemoveSpec(deps),
		rollSpec(deps),
		timerSpec(deps),
		rouletteSpec(deps),
		pingSpec(deps),
		fortuneSpec(deps),
		tukkomiSpec(deps),
		helpMeSpec(deps),
		kickSpec(deps),
		banSpec(deps),
		unbanSpec(deps),
	}
	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			return fmt.Errorf("register handlers: %w", err)
		}
	}

	prefixes := []command.PrefixSpec{
		msgPrefixSpec(deps),
		filePrefixSpec(deps),
		sendPrefixSpec(deps),
	}
	for _, spec := range prefixes {
		if err := reg.RegisterPrefix(spec); err != nil {
			return fmt.Errorf("register handlers: %w", err)
		}
	}
	return nil
}
