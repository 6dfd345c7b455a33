package handlers

import (
	"context"
	"fmt"

	"github.com/nugget/herald/internal/dispatch"
	"github.com/nugget/herald/internal/platform"
)

// NewForwardObserver returns a message observer that relays posts from
// the configured question channel to the handler user's direct
// messages. Returns nil when forwarding is not configured.
func NewForwardObserver(deps Deps) dispatch.Observer {
	if deps.ForwardChannel == "" || deps.ForwardUser == "" {
		return nil
	}

	return func(ctx context.Context, msg platform.Message) {
		if msg.ChannelName != deps.ForwardChannel {
			return
		}

		relay := fmt.Sprintf("Question from %s (%s / #%s):\n%s",
			msg.Author.Name, msg.CommunityName, msg.ChannelName, msg.Content)
		if err := deps.Gateway.SendDirect(ctx, deps.ForwardUser, relay); err != nil {
			deps.Logger.Warn("question forward failed",
				"author", msg.Author.Name,
				"channel", msg.ChannelName,
				"error", err,
			)
		}
	}
}
