package detection

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/slack-go/slack"

	"github.com/akmatori/incidentwatch/internal/database"
	"github.com/akmatori/incidentwatch/internal/utils"
)

// Poster delivers a chat message with structured blocks.
type Poster interface {
	PostMessage(ctx context.Context, channelID, text string, blocks []slack.Block) error
}

// ChannelResolver maps a channel name or ID to a channel ID.
type ChannelResolver interface {
	ResolveChannel(nameOrID string) (string, error)
}

// NotifierConfig controls escalation of freshly created incidents.
type NotifierConfig struct {
	Enabled           bool
	SeverityThreshold int
	// TargetChannel overrides the source channel when set. Names are resolved.
	TargetChannel string
}

// Notifier posts an alert for high-severity incidents. Delivery failures are
// logged and never affect the incident itself.
type Notifier struct {
	poster   Poster
	resolver ChannelResolver
	cfg      NotifierConfig
}

// NewNotifier creates a notifier. resolver may be nil when TargetChannel is an ID.
func NewNotifier(poster Poster, resolver ChannelResolver, cfg NotifierConfig) *Notifier {
	return &Notifier{poster: poster, resolver: resolver, cfg: cfg}
}

// ShouldNotify reports whether an incident of the given severity escalates.
func (n *Notifier) ShouldNotify(severity int) bool {
	return n.cfg.Enabled && n.poster != nil && severity >= n.cfg.SeverityThreshold
}

// Notify sends the alert if the incident qualifies and reports whether a
// delivery was attempted.
func (n *Notifier) Notify(ctx context.Context, incident *database.Incident, sourceChannel string) bool {
	if !n.ShouldNotify(incident.SeverityLevel) {
		slog.Debug("notification skipped",
			"incident", incident.UUID,
			"severity", incident.SeverityLevel,
			"threshold", n.cfg.SeverityThreshold,
			"enabled", n.cfg.Enabled,
		)
		return false
	}

	target := n.target(sourceChannel)
	text, blocks := BuildAlert(incident, sourceChannel)
	if err := n.poster.PostMessage(ctx, target, text, blocks); err != nil {
		slog.Warn("failed to send incident notification",
			"incident", incident.UUID,
			"target", target,
			"error", err,
		)
		return true
	}

	slog.Info("incident notification sent", "incident", incident.UUID, "target", target)
	return true
}

func (n *Notifier) target(sourceChannel string) string {
	if n.cfg.TargetChannel == "" {
		return sourceChannel
	}
	if n.resolver == nil {
		return n.cfg.TargetChannel
	}
	id, err := n.resolver.ResolveChannel(n.cfg.TargetChannel)
	if err != nil {
		slog.Warn("could not resolve notification channel, using source channel",
			"channel", n.cfg.TargetChannel, "error", err)
		return sourceChannel
	}
	return id
}

// maxFieldLen keeps section fields under Slack's 2000 character limit.
const maxFieldLen = 1900

// BuildAlert renders the fallback text and Block Kit layout of an incident alert.
func BuildAlert(incident *database.Incident, sourceChannel string) (string, []slack.Block) {
	band := ConfidenceBand(incident.ConfidenceScore)
	percent := int(math.Round(incident.ConfidenceScore * 100))

	text := fmt.Sprintf("High-severity incident detected: %s (severity %d)", incident.Title, incident.SeverityLevel)

	header := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, ":rotating_light: *High-severity incident detected*", false, false),
		nil, nil,
	)
	fields := slack.NewSectionBlock(nil, []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, "*Title:*\n"+incident.Title, false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Severity:*\nLevel %d", incident.SeverityLevel), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*Description:*\n"+utils.TruncateText(incident.Description, maxFieldLen), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Confidence:*\n%d%% - %s", percent, band), false, false),
	}, nil)
	source := slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("Detected in <#%s>", sourceChannel), false, false),
	)

	return text, []slack.Block{header, fields, source}
}
