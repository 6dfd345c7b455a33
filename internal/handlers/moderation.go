package handlers

import (
	"context"
	"fmt"

	"github.com/nugget/herald/internal/command"
	"github.com/nugget/herald/internal/dispatch"
	"github.com/nugget/herald/internal/platform"
)

func kickSpec(deps Deps) command.Spec {
	return command.Spec{
		Name:        "kick",
		Description: "Remove a member from this community",
		Params: []command.Param{
			{Name: "member", Description: "Who to kick", Type: command.TypeUser, Required: true},
			{Name: "reason", Description: "Why", Type: command.TypeString},
		},
		Handler: func(ctx context.Context, inv *platform.Invocation, args command.Args, r command.Responder) error {
			if !inv.Member.Permissions.KickMembers {
				return dispatch.Userf("You don't have permission to kick members.")
			}
			target := args.String("member")
			if err := deps.Gateway.Kick(ctx, inv.CommunityID, target, args.String("reason")); err != nil {
				return fmt.Errorf("kick member: %w", err)
			}
			deps.Logger.Info("member kicked", "community_id", inv.CommunityID, "target", target, "by", inv.User.ID)
			return r.Reply(ctx, fmt.Sprintf("Kicked <@%s>.", target))
		},
	}
}

func banSpec(deps Deps) command.Spec {
	return command.Spec{
		Name:        "ban",
		Description: "Ban a member from this community",
		Params: []command.Param{
			{Name: "member", Description: "Who to ban", Type: command.TypeUser, Required: true},
			{Name: "reason", Description: "Why", Type: command.TypeString},
		},
		Handler: func(ctx context.Context, inv *platform.Invocation, args command.Args, r command.Responder) error {
			if !inv.Member.Permissions.BanMembers {
				return dispatch.Userf("You don't have permission to ban members.")
			}
			target := args.String("member")
			if err := deps.Gateway.Ban(ctx, inv.CommunityID, target, args.String("reason")); err != nil {
				return fmt.Errorf("ban member: %w", err)
			}
			deps.Logger.Info("member banned", "community_id", inv.CommunityID, "target", target, "by", inv.User.ID)
			return r.Reply(ctx, fmt.Sprintf("Banned <@%s>.", target))
		},
	}
}

func unbanSpec(deps Deps) command.Spec {
	return command.Spec{
		Name:        "unban",
		Description: "Lift a ban by user ID",
		Params: []command.Param{
			{Name: "user", Description: "ID of the banned user", Type: command.TypeUser, Required: true},
		},
		Handler: func(ctx context.Context, inv *platform.Invocation, args command.Args, r command.Responder) error {
			if !inv.Member.Permissions.BanMembers {
				return dispatch.Userf("You don't have permission to manage bans.")
			}
			target := args.String("user")
			if err := deps.Gateway.Unban(ctx, inv.CommunityID, target); err != nil {
				return fmt.Errorf("unban user: %w", err)
			}
			deps.Logger.Info("user unbanned", "community_id", inv.CommunityID, "target", target, "by", inv.User.ID)
			return r.Reply(ctx, fmt.Sprintf("Unbanned <@%s>.", target))
		},
	}
}
