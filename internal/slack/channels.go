package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/slack-go/slack"
)

// ChannelResolver maps channel names to IDs and back, caching successful
// lookups.
type ChannelResolver struct {
	client *slack.Client
	cache  map[string]string // name -> id
	names  map[string]string // id -> name
	mu     sync.RWMutex
}

// NewChannelResolver creates a resolver backed by client.
func NewChannelResolver(client *slack.Client) *ChannelResolver {
	return &ChannelResolver{
		client: client,
		cache:  make(map[string]string),
		names:  make(map[string]string),
	}
}

// ResolveChannel accepts a channel ID, "#name" or "name" and returns the ID.
func (r *ChannelResolver) ResolveChannel(nameOrID string) (string, error) {
	nameOrID = strings.TrimSpace(nameOrID)
	if nameOrID == "" {
		return "", fmt.Errorf("channel name/ID is empty")
	}
	if isChannelID(nameOrID) {
		return nameOrID, nil
	}

	name := strings.TrimPrefix(nameOrID, "#")

	r.mu.RLock()
	id, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	if r.client == nil {
		return "", fmt.Errorf("channel %q not found: slack not configured", name)
	}
	id, err := r.lookupChannel(context.Background(), name)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[name] = id
	r.mu.Unlock()

	slog.Debug("resolved channel", "name", name, "id", id)
	return id, nil
}

func (r *ChannelResolver) lookupChannel(ctx context.Context, name string) (string, error) {
	for _, kind := range []string{"public_channel", "private_channel"} {
		cursor := ""
		for {
			channels, next, err := r.client.GetConversationsContext(ctx, &slack.GetConversationsParameters{
				Cursor:          cursor,
				ExcludeArchived: true,
				Limit:           1000,
				Types:           []string{kind},
			})
			if err != nil {
				if kind == "private_channel" {
					slog.Warn("failed to list private channels", "error", err)
					break
				}
				return "", fmt.Errorf("failed to list public channels: %w", err)
			}
			for _, ch := range channels {
				if ch.Name == name {
					return ch.ID, nil
				}
			}
			if next == "" {
				break
			}
			cursor = next
		}
	}
	return "", fmt.Errorf("channel %q not found", name)
}

// ChannelName returns the name of the channel with the given ID.
func (r *ChannelResolver) ChannelName(ctx context.Context, channelID string) (string, error) {
	r.mu.RLock()
	name, ok := r.names[channelID]
	r.mu.RUnlock()
	if ok {
		return name, nil
	}

	if r.client == nil {
		return "", fmt.Errorf("channel %s: slack not configured", channelID)
	}
	ch, err := r.client.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID})
	if err != nil {
		return "", fmt.Errorf("conversations.info %s: %w", channelID, err)
	}

	r.mu.Lock()
	r.names[channelID] = ch.Name
	r.cache[ch.Name] = channelID
	r.mu.Unlock()
	return ch.Name, nil
}

// ClearCache forgets all resolved names.
func (r *ChannelResolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]string)
	r.names = make(map[string]string)
}

// isChannelID reports whether s looks like a public (C) or private (G)
// channel ID.
func isChannelID(s string) bool {
	if len(s) < 9 || len(s) > 15 {
		return false
	}
	if s[0] != 'C' && s[0] != 'G' {
		return false
	}
	for _, c := range s[1:] {
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
