package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/nugget/herald/internal/command"
	"github.com/nugget/herald/internal/dispatch"
	"github.com/nugget/herald/internal/platform"
	"github.com/nugget/herald/internal/roulette"
)

func rouletteSpec(deps Deps) command.Spec {
	return command.Spec{
		Name:        "roulette",
		Description: "Pick a random member",
		Params: []command.Param{
			{
				Name:        "mode",
				Description: "Where to draw candidates from",
				Type:        command.TypeString,
				Required:    true,
				Choices:     []string{"voice", "roster", "role", "text"},
			},
			{Name: "role", Description: "Role to draw from (role mode)", Type: command.TypeRole},
			{Name: "channel", Description: "Channel to draw from (text mode)", Type: command.TypeChannel},
		},
		Handler: func(ctx context.Context, inv *platform.Invocation, args command.Args, r command.Responder) error {
			var (
				winner platform.User
				err    error
			)

			switch mode := args.String("mode"); mode {
			case "voice":
				winner, err = deps.Picker.PickVoice(ctx, inv.CommunityID, inv.Member)
			case "roster":
				winner, err = deps.Picker.PickRoster(ctx, inv.CommunityID)
			case "role":
				if !args.Provided("role") {
					return dispatch.Userf("Role mode needs a role.")
				}
				winner, err = deps.Picker.PickRole(ctx, inv.CommunityID, args.String("role"))
			case "text":
				if !args.Provided("channel") {
					return dispatch.Userf("Text mode needs a channel.")
				}
				winner, err = deps.Picker.PickText(ctx, args.String("channel"))
			default:
				return dispatch.Userf("Unknown mode %q.", mode)
			}

			switch {
			case errors.Is(err, roulette.ErrNotInVoice):
				return dispatch.Userf("Join a voice channel first.")
			case errors.Is(err, roulette.ErrNoCandidates):
				return dispatch.Userf("Nobody to pick from.")
			case err != nil:
				return fmt.Errorf("roulette selection: %w", err)
			}

			return r.Reply(ctx, fmt.Sprintf("The roulette chooses %s!", winner.Mention()))
		},
	}
}
