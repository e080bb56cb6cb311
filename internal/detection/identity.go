package detection

import (
	"errors"
	"strings"
)

// ErrInvalidEvent is returned for events that cannot be attributed to a thread.
var ErrInvalidEvent = errors.New("invalid message event")

// RawEvent is a verified, parsed chat message event as delivered by the intake layer.
type RawEvent struct {
	Type     string
	SubType  string
	Channel  string
	User     string
	BotID    string
	Text     string
	TS       string
	ThreadTS string
}

// Eligible reports whether the event is a plain user message. Edits,
// deletions and bot posts are excluded.
func (e RawEvent) Eligible() bool {
	return e.Type == "message" && e.SubType == "" && e.BotID == ""
}

// ThreadIdentity identifies a conversation thread: the channel plus the
// timestamp of the thread's root message.
type ThreadIdentity struct {
	ChannelID string
	ThreadTS  string
}

// Key returns a stable string form usable as a map or cache key.
func (id ThreadIdentity) Key() string {
	return id.ChannelID + ":" + id.ThreadTS
}

func (id ThreadIdentity) String() string {
	return id.Key()
}

// ResolveIdentity derives the thread identity of an event. A reply belongs to
// its parent's thread; any other message roots its own thread.
func ResolveIdentity(e RawEvent) (ThreadIdentity, error) {
	ts := strings.TrimSpace(e.TS)
	channel := strings.TrimSpace(e.Channel)
	if ts == "" {
		return ThreadIdentity{}, errors.Join(ErrInvalidEvent, errors.New("missing event timestamp"))
	}
	if channel == "" {
		return ThreadIdentity{}, errors.Join(ErrInvalidEvent, errors.New("missing channel"))
	}

	root := strings.TrimSpace(e.ThreadTS)
	if root == "" {
		root = ts
	}
	return ThreadIdentity{ChannelID: channel, ThreadTS: root}, nil
}

// IsRoot reports whether the event started the thread it belongs to.
func IsRoot(e RawEvent, id ThreadIdentity) bool {
	return strings.TrimSpace(e.TS) == id.ThreadTS
}
