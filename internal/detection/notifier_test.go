package detection

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/slack-go/slack"

	"github.com/akmatori/incidentwatch/internal/database"
)

type postedMessage struct {
	channel string
	text    string
	blocks  []slack.Block
}

type fakePoster struct {
	mu    sync.Mutex
	posts []postedMessage
	err   error
}

func (f *fakePoster) PostMessage(ctx context.Context, channelID, text string, blocks []slack.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, postedMessage{channel: channelID, text: text, blocks: blocks})
	return f.err
}

func (f *fakePoster) Posts() []postedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]postedMessage(nil), f.posts...)
}

type fakeResolver struct {
	ids map[string]string
}

func (f *fakeResolver) ResolveChannel(nameOrID string) (string, error) {
	if id, ok := f.ids[nameOrID]; ok {
		return id, nil
	}
	return "", errors.New("channel not found")
}

func testIncident(severity int) *database.Incident {
	return &database.Incident{
		UUID:            "inc-1",
		ChannelID:       "C1",
		ThreadTS:        "1.000001",
		Title:           "Checkout 502",
		Description:     "Payments failing",
		SeverityLevel:   severity,
		ConfidenceScore: 0.82,
	}
}

func TestNotifier_Threshold(t *testing.T) {
	tests := []struct {
		name     string
		cfg      NotifierConfig
		severity int
		want     bool
	}{
		{"at threshold", NotifierConfig{Enabled: true, SeverityThreshold: 3}, 3, true},
		{"above threshold", NotifierConfig{Enabled: true, SeverityThreshold: 3}, 4, true},
		{"below threshold", NotifierConfig{Enabled: true, SeverityThreshold: 3}, 2, false},
		{"disabled", NotifierConfig{Enabled: false, SeverityThreshold: 3}, 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poster := &fakePoster{}
			n := NewNotifier(poster, nil, tt.cfg)
			if got := n.Notify(context.Background(), testIncident(tt.severity), "C1"); got != tt.want {
				t.Errorf("expected attempted=%v, got %v", tt.want, got)
			}
			wantPosts := 0
			if tt.want {
				wantPosts = 1
			}
			if len(poster.Posts()) != wantPosts {
				t.Errorf("expected %d posts, got %d", wantPosts, len(poster.Posts()))
			}
		})
	}
}

func TestNotifier_Target(t *testing.T) {
	resolver := &fakeResolver{ids: map[string]string{"#incidents": "C999"}}

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"source channel by default", "", "C1"},
		{"configured channel resolved", "#incidents", "C999"},
		{"unresolvable channel falls back to source", "#missing", "C1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poster := &fakePoster{}
			n := NewNotifier(poster, resolver, NotifierConfig{Enabled: true, SeverityThreshold: 3, TargetChannel: tt.target})
			n.Notify(context.Background(), testIncident(4), "C1")
			posts := poster.Posts()
			if len(posts) != 1 {
				t.Fatalf("expected 1 post, got %d", len(posts))
			}
			if posts[0].channel != tt.want {
				t.Errorf("expected channel %s, got %s", tt.want, posts[0].channel)
			}
		})
	}
}

func TestNotifier_DeliveryFailureIsSwallowed(t *testing.T) {
	poster := &fakePoster{err: errors.New("channel_not_found")}
	n := NewNotifier(poster, nil, NotifierConfig{Enabled: true, SeverityThreshold: 3})
	if !n.Notify(context.Background(), testIncident(3), "C1") {
		t.Error("expected delivery to be attempted")
	}
}

func TestBuildAlert(t *testing.T) {
	text, blocks := BuildAlert(testIncident(4), "C1")

	if !strings.Contains(text, "Checkout 502") || !strings.Contains(text, "severity 4") {
		t.Errorf("unexpected fallback text %q", text)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}

	fields, ok := blocks[1].(*slack.SectionBlock)
	if !ok {
		t.Fatalf("expected section block, got %T", blocks[1])
	}
	var rendered []string
	for _, f := range fields.Fields {
		rendered = append(rendered, f.Text)
	}
	joined := strings.Join(rendered, "\n")
	for _, want := range []string{"Checkout 502", "Level 4", "Payments failing", "82% - likely"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected alert fields to contain %q:\n%s", want, joined)
		}
	}

	ctxBlock, ok := blocks[2].(*slack.ContextBlock)
	if !ok {
		t.Fatalf("expected context block, got %T", blocks[2])
	}
	elem, ok := ctxBlock.ContextElements.Elements[0].(*slack.TextBlockObject)
	if !ok || elem.Text != "Detected in <#C1>" {
		t.Errorf("unexpected source reference %+v", ctxBlock.ContextElements.Elements[0])
	}
}
