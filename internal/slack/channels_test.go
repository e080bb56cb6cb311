package slack

import (
	"context"
	"testing"
)

func TestIsChannelID(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"C01234567890", true},
		{"C01234567", true},
		{"G0ABC123DEF", true},
		{"C012345678901234", false},
		{"", false},
		{"C1234567", false},
		{"D01234567890", false},
		{"U01234567890", false},
		{"C01234abcdef", false},
		{"#alerts", false},
		{"alerts", false},
		{"C0123-4567890", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := isChannelID(tt.input); got != tt.want {
				t.Errorf("isChannelID(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestChannelResolver_ResolveChannel_PassThroughAndErrors(t *testing.T) {
	resolver := NewChannelResolver(nil)

	got, err := resolver.ResolveChannel("C01234567890")
	if err != nil || got != "C01234567890" {
		t.Errorf("expected ID to pass through, got %q, %v", got, err)
	}
	if _, err := resolver.ResolveChannel("  "); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := resolver.ResolveChannel("#incidents"); err == nil {
		t.Error("expected error without a client")
	}
}

func TestChannelResolver_ResolveChannel_Lookup(t *testing.T) {
	api, client := newFakeSlackAPI(t)
	api.on("conversations.list",
		`{"ok":true,"channels":[{"id":"C0000000001","name":"general"}],"response_metadata":{"next_cursor":"p2"}}`,
		`{"ok":true,"channels":[{"id":"C0000000002","name":"incidents"}],"response_metadata":{"next_cursor":""}}`,
	)
	resolver := NewChannelResolver(client)

	for _, input := range []string{"#incidents", "incidents"} {
		got, err := resolver.ResolveChannel(input)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "C0000000002" {
			t.Errorf("ResolveChannel(%q) = %q, want C0000000002", input, got)
		}
	}
	if n := len(api.callsTo("conversations.list")); n != 2 {
		t.Errorf("expected second lookup to hit the cache, got %d API calls", n)
	}

	resolver.ClearCache()
	if len(resolver.cache) != 0 {
		t.Errorf("expected empty cache, got %d entries", len(resolver.cache))
	}
}

func TestChannelResolver_ResolveChannel_PrivateFallback(t *testing.T) {
	api, client := newFakeSlackAPI(t)
	api.on("conversations.list",
		`{"ok":true,"channels":[{"id":"C0000000001","name":"general"}]}`,
		`{"ok":true,"channels":[{"id":"G0000000009","name":"sre-private"}]}`,
	)

	got, err := NewChannelResolver(client).ResolveChannel("sre-private")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "G0000000009" {
		t.Errorf("expected private channel id, got %q", got)
	}
	calls := api.callsTo("conversations.list")
	if len(calls) != 2 || calls[1].Get("types") != "private_channel" {
		t.Errorf("expected a private channel lookup, got %v", calls)
	}
}

func TestChannelResolver_ResolveChannel_NotFound(t *testing.T) {
	api, client := newFakeSlackAPI(t)
	api.on("conversations.list", `{"ok":true,"channels":[]}`)

	if _, err := NewChannelResolver(client).ResolveChannel("#missing"); err == nil {
		t.Error("expected not found error")
	}
}

func TestChannelResolver_ChannelName(t *testing.T) {
	api, client := newFakeSlackAPI(t)
	api.on("conversations.info", `{"ok":true,"channel":{"id":"C0000000002","name":"incidents"}}`)
	resolver := NewChannelResolver(client)

	for i := 0; i < 2; i++ {
		name, err := resolver.ChannelName(context.Background(), "C0000000002")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if name != "incidents" {
			t.Errorf("expected incidents, got %q", name)
		}
	}
	calls := api.callsTo("conversations.info")
	if len(calls) != 1 {
		t.Fatalf("expected second lookup to hit the cache, got %d API calls", len(calls))
	}
	if calls[0].Get("channel") != "C0000000002" {
		t.Errorf("unexpected request %v", calls[0])
	}

	// The reverse lookup also primes name resolution.
	id, err := resolver.ResolveChannel("#incidents")
	if err != nil || id != "C0000000002" {
		t.Errorf("expected cached id, got %q, %v", id, err)
	}
	if n := len(api.callsTo("conversations.list")); n != 0 {
		t.Errorf("expected no channel listing, got %d", n)
	}
}

func TestChannelResolver_ChannelNameErrors(t *testing.T) {
	if _, err := NewChannelResolver(nil).ChannelName(context.Background(), "C0000000002"); err == nil {
		t.Error("expected error without a client")
	}

	api, client := newFakeSlackAPI(t)
	api.on("conversations.info", `{"ok":false,"error":"channel_not_found"}`)
	if _, err := NewChannelResolver(client).ChannelName(context.Background(), "C0000000404"); err == nil {
		t.Error("expected error")
	}
}
