package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nugget/herald/internal/command"
	"github.com/nugget/herald/internal/dispatch"
	"github.com/nugget/herald/internal/platform"
	"github.com/nugget/herald/internal/schedule"
)

func scheduleAddSpec(deps Deps) command.Spec {
	return command.Spec{
		Name:        "schedule_add",
		Description: "Add an item to your schedule",
		Params: []command.Param{
			{Name: "time", Description: "When, as YYYY-MM-DD HH:MM", Type: command.TypeString, Required: true},
			{Name: "title", Description: "What", Type: command.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, inv *platform.Invocation, args command.Args, r command.Responder) error {
			when := args.String("time")
			title := args.String("title")

			if _, err := schedule.ParseTime(when); err != nil {
				return dispatch.Userf("That time doesn't look right. Use YYYY-MM-DD HH:MM, e.g. 2026-09-05 14:30.")
			}
			if err := deps.Schedules.Add(inv.User.ID, when, title); err != nil {
				return fmt.Errorf("add schedule entry: %w", err)
			}
			return r.Reply(ctx, fmt.Sprintf("Scheduled %q for %s.", title, when))
		},
	}
}

func scheduleListSpec(deps Deps) command.Spec {
	return command.Spec{
		Name:        "schedule_list",
		Description: "List your scheduled items",
		Handler: func(ctx context.Context, inv *platform.Invocation, args command.Args, r command.Responder) error {
			entries, err := deps.Schedules.List(inv.User.ID)
			if err != nil {
				return fmt.Errorf("list schedule: %w", err)
			}
			if len(entries) == 0 {
				return r.ReplyPrivate(ctx, "You have nothing scheduled.")
			}

			var b strings.Builder
			b.WriteString("Your schedule:\n")
			for i, e := range entries {
				fmt.Fprintf(&b, "%d. %s  %s\n", i+1, e.Time, e.Title)
			}
			return r.Reply(ctx, strings.TrimRight(b.String(), "\n"))
		},
	}
}

func scheduleRemoveSpec(deps Deps) command.Spec {
	return command.Spec{
		Name:        "schedule_remove",
		Description: "Remove a scheduled item by its list number",
		Params: []command.Param{
			{Name: "index", Description: "Position from schedule_list", Type: command.TypeInteger, Required: true},
		},
		Handler: func(ctx context.Context, inv *platform.Invocation, args command.Args, r command.Responder) error {
			position := int(args.Int("index"))
			removed, err := deps.Schedules.Remove(inv.User.ID, position)
			if errors.Is(err, schedule.ErrOutOfRange) {
				return dispatch.Userf("There is no item %d on your schedule.", position)
			}
			if err != nil {
				return fmt.Errorf("remove schedule entry: %w", err)
			}
			return r.Reply(ctx, fmt.Sprintf("Removed %q (%s).", removed.Title, removed.Time))
		},
	}
}
