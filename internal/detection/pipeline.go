package detection

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/akmatori/incidentwatch/internal/database"
	"github.com/akmatori/incidentwatch/internal/utils"
)

// maxTitleLen matches the incidents.title column.
const maxTitleLen = 255

// IncidentStore is the deduplication store and incident writer.
type IncidentStore interface {
	FindIncidentByThread(ctx context.Context, channelID, threadTS string) (*database.Incident, error)
	HasMessage(ctx context.Context, sourceTS string) (bool, error)
	CreateIncidentWithMessages(ctx context.Context, incident *database.Incident, messages []database.IncidentMessage) (bool, error)
	AppendMessage(ctx context.Context, incidentID uint, msg *database.IncidentMessage) (bool, error)
}

// Options tunes the pipeline.
type Options struct {
	// MinConfidence is the auto-create threshold; a verdict at exactly this value creates an incident.
	MinConfidence float64
	// MonitorChannels restricts processing to these channel IDs. Empty means all.
	MonitorChannels []string
	// AnalysisTimeout bounds a single deferred analysis.
	AnalysisTimeout time.Duration
}

// Pipeline turns chat events into incidents.
type Pipeline struct {
	store      IncidentStore
	aggregator *Aggregator
	classifier Classifier
	scheduler  *Scheduler
	notifier   *Notifier
	opts       Options
	monitored  map[string]struct{}
}

// NewPipeline wires the pipeline. notifier may be nil.
func NewPipeline(store IncidentStore, aggregator *Aggregator, classifier Classifier, scheduler *Scheduler, notifier *Notifier, opts Options) *Pipeline {
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = 2 * time.Minute
	}
	monitored := make(map[string]struct{}, len(opts.MonitorChannels))
	for _, ch := range opts.MonitorChannels {
		monitored[ch] = struct{}{}
	}
	return &Pipeline{
		store:      store,
		aggregator: aggregator,
		classifier: classifier,
		scheduler:  scheduler,
		notifier:   notifier,
		opts:       opts,
		monitored:  monitored,
	}
}

func (p *Pipeline) monitors(channelID string) bool {
	if len(p.monitored) == 0 {
		return true
	}
	_, ok := p.monitored[channelID]
	return ok
}

// ProcessMessageEvent handles one inbound event. It never fails or panics;
// every outcome is logged.
func (p *Pipeline) ProcessMessageEvent(ctx context.Context, ev RawEvent) {
	log := slog.With("channel", ev.Channel, "ts", ev.TS)
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing message event", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if !ev.Eligible() {
		log.Debug("skipping event", "reason", "not a plain message", "type", ev.Type, "subtype", ev.SubType)
		return
	}
	if !p.monitors(ev.Channel) {
		log.Debug("skipping event", "reason", "channel not monitored")
		return
	}

	id, err := ResolveIdentity(ev)
	if err != nil {
		log.Warn("dropping invalid event", "error", err)
		return
	}
	log = log.With("thread_ts", id.ThreadTS)
	log.Debug("message received", "user", ev.User, "text", utils.EscapeForLogging(ev.Text, 120))

	incident, err := p.store.FindIncidentByThread(ctx, id.ChannelID, id.ThreadTS)
	if err != nil {
		log.Error("incident lookup failed", "error", err)
		return
	}
	if incident != nil {
		p.appendMessage(ctx, log, incident, ev)
		return
	}

	if !IsRoot(ev, id) {
		log.Info("skipping reply", "reason", "thread has no incident")
		return
	}

	if p.scheduler.Schedule(ctx, id, func(ctx context.Context) { p.AnalyzeThread(ctx, id) }) {
		log.Info("thread analysis scheduled")
	} else {
		log.Debug("skipping event", "reason", "analysis already scheduled", "state", p.scheduler.State(id).String())
	}
}

func (p *Pipeline) appendMessage(ctx context.Context, log *slog.Logger, incident *database.Incident, ev RawEvent) {
	log = log.With("incident", incident.UUID)

	exists, err := p.store.HasMessage(ctx, ev.TS)
	if err != nil {
		log.Error("message lookup failed", "error", err)
		return
	}
	if exists {
		log.Debug("skipping event", "reason", "message already recorded")
		return
	}

	msg := &database.IncidentMessage{
		SourceTS: ev.TS,
		AuthorID: ev.User,
		Author:   p.aggregator.DisplayName(ctx, ev.User),
		Text:     ev.Text,
	}
	added, err := p.store.AppendMessage(ctx, incident.ID, msg)
	if err != nil {
		log.Error("failed to append message to incident", "error", err)
		return
	}
	if !added {
		log.Debug("skipping event", "reason", "message recorded concurrently")
		return
	}
	log.Info("message appended to incident")
}

// AnalyzeThread is the deferred analysis of a thread. It re-checks that no
// incident exists, so running it again for an already classified thread is a no-op.
func (p *Pipeline) AnalyzeThread(ctx context.Context, id ThreadIdentity) {
	log := slog.With("channel", id.ChannelID, "thread_ts", id.ThreadTS)
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while analyzing thread", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.opts.AnalysisTimeout)
	defer cancel()

	existing, err := p.store.FindIncidentByThread(ctx, id.ChannelID, id.ThreadTS)
	if err != nil {
		log.Error("incident lookup failed before analysis", "error", err)
		return
	}
	if existing != nil {
		log.Info("analysis skipped", "reason", "incident already exists", "incident", existing.UUID)
		return
	}

	thread, err := p.aggregator.Aggregate(ctx, id)
	if err != nil {
		log.Warn("analysis abandoned", "reason", "thread unavailable", "error", err)
		return
	}

	verdict := p.classifier.Classify(ctx, thread)
	log = log.With(
		"is_incident", verdict.IsIncident,
		"confidence", verdict.Confidence,
		"threshold", p.opts.MinConfidence,
		"severity", verdict.SeverityLevel,
	)
	if !verdict.IsIncident || verdict.Confidence < p.opts.MinConfidence {
		log.Info("no incident created", "reason", "below auto-create threshold", "messages", len(thread))
		return
	}

	incident := &database.Incident{
		ChannelID:       id.ChannelID,
		ThreadTS:        id.ThreadTS,
		Title:           utils.TruncateText(verdict.Title, maxTitleLen),
		Description:     verdict.Description,
		SeverityLevel:   verdict.SeverityLevel,
		Status:          database.IncidentStatusOpen,
		ConfidenceScore: verdict.Confidence,
		DetectedAt:      time.Now(),
		RawVerdict:      database.JSONB(verdict.Map()),
	}
	messages := make([]database.IncidentMessage, 0, len(thread))
	for _, m := range thread {
		messages = append(messages, database.IncidentMessage{
			SourceTS: m.TS,
			AuthorID: m.AuthorID,
			Author:   m.DisplayName,
			Text:     m.Text,
		})
	}

	created, err := p.store.CreateIncidentWithMessages(ctx, incident, messages)
	if err != nil {
		log.Error("failed to create incident", "error", err)
		return
	}
	if !created {
		log.Info("no incident created", "reason", "lost race to another writer")
		return
	}
	log.Info("incident created", "incident", incident.UUID, "messages", len(messages))

	if p.notifier != nil {
		p.notifier.Notify(ctx, incident, id.ChannelID)
	}
}
