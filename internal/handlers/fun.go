package handlers

import (
	"context"
	"fmt"

	"github.com/nugget/herald/internal/command"
	"github.com/nugget/herald/internal/platform"
)

// fortunes, best to worst.
var fortunes = []string{
	"Great fortune",
	"Good fortune",
	"Modest fortune",
	"Small fortune",
	"Fortune",
	"Misfortune",
	"Great misfortune",
}

func fortuneSpec(deps Deps) command.Spec {
	return command.Spec{
		Name:        "fortune",
		Description: "Draw today's fortune",
		Handler: func(ctx context.Context, inv *platform.Invocation, args command.Args, r command.Responder) error {
			drawn := fortunes[deps.Rand.IntN(len(fortunes))]
			return r.Reply(ctx, fmt.Sprintf("%s draws... %s!", inv.User.Name, drawn))
		},
	}
}

func pingSpec(deps Deps) command.Spec {
	return command.Spec{
		Name:        "ping",
		Description: "Check the gateway round-trip latency",
		Handler: func(ctx context.Context, inv *platform.Invocation, args command.Args, r command.Responder) error {
			latency := deps.Gateway.Latency()
			return r.Reply(ctx, fmt.Sprintf("Pong! %d ms", latency.Milliseconds()))
		},
	}
}

func tukkomiSpec(deps Deps) command.Spec {
	return command.Spec{
		Name:        "tukkomi",
		Description: "Get a retort",
		Params: []command.Param{
			{Name: "text", Description: "The setup line", Type: command.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, inv *platform.Invocation, args command.Args, r command.Responder) error {
			return r.Reply(ctx, fmt.Sprintf("%q... no way, come on!", args.String("text")))
		},
	}
}

func helpMeSpec(deps Deps) command.Spec {
	return command.Spec{
		Name:        "help_me",
		Description: "Call someone for help in this channel",
		Params: []command.Param{
			{Name: "who", Description: "Who to call for", Type: command.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, inv *platform.Invocation, args command.Args, r command.Responder) error {
			return r.Reply(ctx, fmt.Sprintf("%s, please help!!", args.String("who")))
		},
	}
}
