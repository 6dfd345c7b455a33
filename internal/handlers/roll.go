package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/nugget/herald/internal/command"
	"github.com/nugget/herald/internal/dispatch"
	"github.com/nugget/herald/internal/platform"
)

func rollSpec(deps Deps) command.Spec {
	return command.Spec{
		Name:        "roll",
		Description: "Roll a die",
		Params: []command.Param{
			{Name: "sides", Description: "Number of sides", Type: command.TypeInteger, Default: int64(6)},
		},
		Handler: func(ctx context.Context, inv *platform.Invocation, args command.Args, r command.Responder) error {
			sides := args.Int("sides")
			if sides <= 1 {
				return dispatch.Userf("A die needs at least 2 sides.")
			}
			result := deps.Rand.Int64N(sides) + 1
			return r.Reply(ctx, fmt.Sprintf("Rolled %d (1-%d).", result, sides))
		},
	}
}

func timerSpec(deps Deps) command.Spec {
	return command.Spec{
		Name:        "timer",
		Description: "Start a timer and get pinged when it finishes",
		Params: []command.Param{
			{Name: "minutes", Description: "Minutes to wait", Type: command.TypeInteger, Default: int64(0)},
			{Name: "seconds", Description: "Seconds to wait", Type: command.TypeInteger, Default: int64(0)},
		},
		Handler: func(ctx context.Context, inv *platform.Invocation, args command.Args, r command.Responder) error {
			minutes := args.Int("minutes")
			seconds := args.Int("seconds")
			total := time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
			if total <= 0 {
				return dispatch.Userf("The timer needs a positive duration.")
			}

			if err := r.Reply(ctx, fmt.Sprintf("Timer started: %s.", total)); err != nil {
				return fmt.Errorf("acknowledge timer: %w", err)
			}

			mention := inv.User.Mention()
			deps.After(total, func() {
				// Resume on the loop; the follow-up interleaves with
				// whatever else dispatched meanwhile.
				deps.Enqueuer.Enqueue(func(ctx context.Context) {
					notice := fmt.Sprintf("%s your %s timer is up!", mention, total)
					if err := r.Followup(ctx, notice); err != nil {
						deps.Logger.Warn("timer follow-up failed", "user", mention, "error", err)
					}
				})
			})
			return nil
		},
	}
}
