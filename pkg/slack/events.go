package slack

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"
)

// Event is the subset of a Slack event the daemon consumes
type Event struct {
	Type        string // app_mention, message
	Channel     string
	ChannelType string // im for direct messages
	User        string
	Text        string
	TS          string
	ThreadTS    string
	BotID       string
}

// Handler processes one inbound event
type Handler func(ctx context.Context, ev Event)

// ParseEvent extracts the inner event from an event_callback body
func ParseEvent(body []byte) Event {
	ev := gjson.GetBytes(body, "event")
	return Event{
		Type:        ev.Get("type").String(),
		Channel:     ev.Get("channel").String(),
		ChannelType: ev.Get("channel_type").String(),
		User:        ev.Get("user").String(),
		Text:        ev.Get("text").String(),
		TS:          ev.Get("ts").String(),
		ThreadTS:    ev.Get("thread_ts").String(),
		BotID:       ev.Get("bot_id").String(),
	}
}

// ThreadKey returns the identifier grouping this event's conversation:
// the thread timestamp when the message is in a thread, otherwise the
// message's own timestamp (which starts the thread).
func (e Event) ThreadKey() string {
	if e.ThreadTS != "" {
		return e.ThreadTS
	}
	return e.TS
}

// IsDirectMessage reports whether the event is a DM to the bot
func (e Event) IsDirectMessage() bool {
	return e.Type == "message" && e.ChannelType == "im"
}

// TaskText returns the prompt text for the agent. For app mentions the
// leading @mention token is stripped; DM text is used verbatim.
func (e Event) TaskText() string {
	if e.Type != "app_mention" {
		return strings.TrimSpace(e.Text)
	}

	fields := strings.Fields(e.Text)
	if len(fields) <= 1 {
		return ""
	}
	return strings.Join(fields[1:], " ")
}
