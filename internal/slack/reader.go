package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/akmatori/incidentwatch/internal/detection"
)

// Reader reads threads and user profiles through the Web API.
type Reader struct {
	client *slack.Client
}

// NewReader creates a reader backed by client.
func NewReader(client *slack.Client) *Reader {
	return &Reader{client: client}
}

// FetchThread returns up to limit messages of the thread rooted at rootTS,
// root included, following pagination cursors. Messages without a timestamp
// are dropped. Slack repeats the root on every page, so each timestamp is
// counted once.
func (r *Reader) FetchThread(ctx context.Context, channelID, rootTS string, limit int) ([]detection.PlatformMessage, error) {
	var (
		out    []detection.PlatformMessage
		cursor string
		seen   = make(map[string]struct{})
	)
	for {
		page := limit - len(out)
		if page <= 0 {
			break
		}
		msgs, hasMore, next, err := r.client.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: rootTS,
			Cursor:    cursor,
			Limit:     page,
			Inclusive: true,
		})
		if err != nil {
			return nil, fmt.Errorf("conversations.replies %s/%s: %w", channelID, rootTS, err)
		}
		for _, m := range msgs {
			if m.Timestamp == "" {
				continue
			}
			if _, dup := seen[m.Timestamp]; dup {
				continue
			}
			seen[m.Timestamp] = struct{}{}
			author := m.User
			if author == "" {
				author = m.BotID
			}
			out = append(out, detection.PlatformMessage{AuthorID: author, Text: m.Text, TS: m.Timestamp})
			if len(out) >= limit {
				break
			}
		}
		if !hasMore || next == "" {
			break
		}
		cursor = next
	}
	return out, nil
}

// ResolveDisplayName returns the user's real name, falling back to the
// profile names and finally the handle.
func (r *Reader) ResolveDisplayName(ctx context.Context, authorID string) (string, error) {
	user, err := r.client.GetUserInfoContext(ctx, authorID)
	if err != nil {
		return "", fmt.Errorf("users.info %s: %w", authorID, err)
	}
	for _, name := range []string{user.RealName, user.Profile.RealName, user.Profile.DisplayName, user.Name} {
		if name != "" {
			return name, nil
		}
	}
	return "", nil
}
