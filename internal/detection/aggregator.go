package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/akmatori/incidentwatch/internal/cache"
)

// ErrEmptyThread is returned when the platform reports no messages for a thread.
var ErrEmptyThread = errors.New("thread has no messages")

// PlatformMessage is a message as returned by the chat platform's read API.
type PlatformMessage struct {
	AuthorID string
	Text     string
	TS       string
}

// ThreadReader fetches the messages of a thread, root included.
type ThreadReader interface {
	FetchThread(ctx context.Context, channelID, rootTS string, limit int) ([]PlatformMessage, error)
}

// NameResolver looks up an author's display name. An empty name or an error
// means the caller falls back to the author ID.
type NameResolver interface {
	ResolveDisplayName(ctx context.Context, authorID string) (string, error)
}

// ThreadMessage is one entry of an aggregated thread.
type ThreadMessage struct {
	AuthorID    string
	DisplayName string
	Text        string
	TS          string
}

// Aggregator builds the ordered, de-duplicated view of a thread that is handed
// to the classifier.
type Aggregator struct {
	reader ThreadReader
	names  NameResolver
	limit  int
	cache  *cache.Cache[string]
}

// NewAggregator creates an aggregator fetching at most limit messages per
// thread. Display names are cached for nameTTL.
func NewAggregator(reader ThreadReader, names NameResolver, limit int, nameTTL time.Duration) *Aggregator {
	if limit <= 0 {
		limit = 100
	}
	if nameTTL <= 0 {
		nameTTL = time.Hour
	}
	return &Aggregator{
		reader: reader,
		names:  names,
		limit:  limit,
		cache:  cache.New[string](nameTTL, nameTTL),
	}
}

// Close stops the display-name cache.
func (a *Aggregator) Close() {
	a.cache.Stop()
}

// Aggregate fetches the thread rooted at id and returns one entry per distinct
// timestamp, oldest first.
func (a *Aggregator) Aggregate(ctx context.Context, id ThreadIdentity) ([]ThreadMessage, error) {
	raw, err := a.reader.FetchThread(ctx, id.ChannelID, id.ThreadTS, a.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thread %s: %w", id, err)
	}

	seen := make(map[string]struct{}, len(raw))
	msgs := make([]ThreadMessage, 0, len(raw))
	for _, m := range raw {
		ts := strings.TrimSpace(m.TS)
		if ts == "" {
			continue
		}
		if _, dup := seen[ts]; dup {
			continue
		}
		seen[ts] = struct{}{}
		msgs = append(msgs, ThreadMessage{AuthorID: m.AuthorID, Text: m.Text, TS: ts})
	}
	if len(msgs) == 0 {
		return nil, ErrEmptyThread
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return CompareTS(msgs[i].TS, msgs[j].TS) < 0
	})

	names := make(map[string]string)
	for i := range msgs {
		author := msgs[i].AuthorID
		name, ok := names[author]
		if !ok {
			name = a.DisplayName(ctx, author)
			names[author] = name
		}
		msgs[i].DisplayName = name
	}
	return msgs, nil
}

// DisplayName resolves authorID to a display name, falling back to the ID.
// Failed lookups are not cached.
func (a *Aggregator) DisplayName(ctx context.Context, authorID string) string {
	if authorID == "" {
		return "unknown"
	}
	if name, ok := a.cache.Get(authorID); ok {
		return name
	}
	if a.names == nil {
		return authorID
	}

	name, err := a.names.ResolveDisplayName(ctx, authorID)
	if err != nil {
		slog.Debug("display name lookup failed", "user", authorID, "error", err)
		return authorID
	}
	if name = strings.TrimSpace(name); name == "" {
		return authorID
	}
	a.cache.Set(authorID, name)
	return name
}

// CompareTS orders platform timestamps of the form "seconds.micros"
// numerically. Unparseable values compare as strings.
func CompareTS(a, b string) int {
	as, af, aok := splitTS(a)
	bs, bf, bok := splitTS(b)
	if !aok || !bok {
		return strings.Compare(a, b)
	}
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

func splitTS(ts string) (int64, int64, bool) {
	secPart, fracPart, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if fracPart == "" {
		return sec, 0, true
	}
	if len(fracPart) > 9 {
		fracPart = fracPart[:9]
	}
	fracPart += strings.Repeat("0", 9-len(fracPart))
	frac, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return sec, frac, true
}
