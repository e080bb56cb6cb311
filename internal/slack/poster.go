package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// Poster posts messages with Block Kit layouts.
type Poster struct {
	client *slack.Client
}

// NewPoster creates a poster backed by client.
func NewPoster(client *slack.Client) *Poster {
	return &Poster{client: client}
}

// PostMessage posts text, with blocks when given, to channelID.
func (p *Poster) PostMessage(ctx context.Context, channelID, text string, blocks []slack.Block) error {
	options := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if len(blocks) > 0 {
		options = append(options, slack.MsgOptionBlocks(blocks...))
	}
	if _, _, err := p.client.PostMessageContext(ctx, channelID, options...); err != nil {
		return fmt.Errorf("chat.postMessage %s: %w", channelID, err)
	}
	return nil
}
