package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/akmatori/incidentwatch/internal/detection"
)

// MessageProcessor consumes verified message events.
type MessageProcessor interface {
	ProcessMessageEvent(ctx context.Context, ev detection.RawEvent)
}

// processTimeout bounds the synchronous part of handling one event.
const processTimeout = 30 * time.Second

// SlackHandler receives Slack events over Socket Mode or the HTTP Events API
// and hands message events to the detection pipeline.
type SlackHandler struct {
	processor     MessageProcessor
	signingSecret string

	mu        sync.RWMutex
	botUserID string

	inflight sync.WaitGroup
}

// NewSlackHandler creates a handler. signingSecret is required for the HTTP
// endpoint only.
func NewSlackHandler(processor MessageProcessor, signingSecret string) *SlackHandler {
	return &SlackHandler{processor: processor, signingSecret: signingSecret}
}

// SetBotUserID sets the bot's own user ID so its messages are ignored.
func (h *SlackHandler) SetBotUserID(botUserID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.botUserID = botUserID
}

// Wait blocks until all dispatched events have been processed.
func (h *SlackHandler) Wait() {
	h.inflight.Wait()
}

// SetupRoutes registers the HTTP Events API endpoint.
func (h *SlackHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /slack/events", h.handleEvents)
}

// HandleSocketMode consumes Socket Mode events until the client's event
// channel is closed. Every envelope is acknowledged before processing.
func (h *SlackHandler) HandleSocketMode(socketClient *socketmode.Client) {
	go func() {
		for evt := range socketClient.Events {
			switch evt.Type {
			case socketmode.EventTypeConnecting:
				slog.Info("connecting to slack socket mode")
			case socketmode.EventTypeConnected:
				slog.Info("connected to slack socket mode")
			case socketmode.EventTypeConnectionError:
				slog.Warn("slack socket mode connection error", "data", evt.Data)
			case socketmode.EventTypeEventsAPI:
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					slog.Debug("ignored socket mode event", "type", evt.Type)
					continue
				}
				if evt.Request != nil {
					socketClient.Ack(*evt.Request)
				}
				h.dispatch(eventsAPIEvent)
			case socketmode.EventTypeInteractive, socketmode.EventTypeSlashCommand:
				if evt.Request != nil {
					socketClient.Ack(*evt.Request)
				}
			default:
				slog.Debug("unhandled socket mode event", "type", evt.Type)
			}
		}
	}()
}

// handleEvents handles POST /slack/events. Requests must carry a valid
// signing-secret signature.
func (h *SlackHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	verifier, err := slack.NewSecretsVerifier(r.Header, h.signingSecret)
	if err != nil {
		slog.Warn("rejected slack request", "reason", "missing or stale signature headers", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	if _, err := verifier.Write(body); err != nil {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	if err := verifier.Ensure(); err != nil {
		slog.Warn("rejected slack request", "reason", "signature mismatch")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		slog.Warn("failed to parse slack event", "error", err)
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "invalid challenge", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(challenge.Challenge))
	case slackevents.CallbackEvent:
		if retry := r.Header.Get("X-Slack-Retry-Num"); retry != "" {
			slog.Debug("slack event redelivery", "retry", retry, "reason", r.Header.Get("X-Slack-Retry-Reason"))
		}
		w.WriteHeader(http.StatusOK)
		h.dispatch(event)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// dispatch processes a callback event in the background so the
// acknowledgement is never delayed by analysis work.
func (h *SlackHandler) dispatch(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	msg, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		h.handleMessage(msg)
	}()
}

func (h *SlackHandler) handleMessage(msg *slackevents.MessageEvent) {
	h.mu.RLock()
	self := h.botUserID
	h.mu.RUnlock()
	if self != "" && msg.User == self {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()
	h.processor.ProcessMessageEvent(ctx, toRawEvent(msg))
}

func toRawEvent(msg *slackevents.MessageEvent) detection.RawEvent {
	return detection.RawEvent{
		Type:     msg.Type,
		SubType:  msg.SubType,
		Channel:  msg.Channel,
		User:     msg.User,
		BotID:    msg.BotID,
		Text:     msg.Text,
		TS:       msg.TimeStamp,
		ThreadTS: msg.ThreadTimeStamp,
	}
}
