package daemon

import (
	"context"
	"errors"

	"github.com/salim/tukang/pkg/slack"
	"github.com/salim/tukang/pkg/thread"
)

// User-facing replies for rejected events
const (
	busyReply     = ":hourglass: Still working on the previous request in this thread. Send it again once I reply."
	capacityReply = ":no_entry: All workspaces are busy right now. Please try again in a bit."
	failureReply  = ":warning: Something went wrong while running that task."
)

// handleEvent is the single ingress point for Slack events, shared by
// the webhook server and the socket mode client
func (d *Daemon) handleEvent(ctx context.Context, ev slack.Event) {
	// Our own replies come back as message events, in socket mode
	// through this very handler; reacting to them would loop forever
	if ev.BotID != "" {
		return
	}

	if ev.Type != "app_mention" && !ev.IsDirectMessage() {
		return
	}

	prompt := ev.TaskText()
	if prompt == "" {
		return
	}

	logger := d.logger.GetZerolog().With().
		Str("channel", ev.Channel).
		Str("thread_id", ev.ThreadKey()).
		Logger()

	// Acknowledge receipt before the run; the agent can take a while
	if reaction := d.config.Slack.AckReaction; reaction != "" {
		if err := d.slackClient.AddReaction(ctx, ev.Channel, ev.TS, reaction); err != nil {
			logger.Warn().Err(err).Msg("Failed to add ack reaction")
		}
	}

	result, err := d.manager.Handle(ctx, ev.ThreadKey(), prompt)

	reply := result.Text
	switch {
	case errors.Is(err, thread.ErrBusy):
		reply = busyReply
	case errors.Is(err, thread.ErrCapacity):
		reply = capacityReply
	case err != nil:
		logger.Error().Err(err).Msg("Event handling failed")
		reply = failureReply
	}

	if err := d.slackClient.PostMessage(ctx, ev.Channel, ev.ThreadKey(), reply); err != nil {
		logger.Error().Err(err).Msg("Failed to post reply")
	}
}
