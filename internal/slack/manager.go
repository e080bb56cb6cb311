package slack

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/akmatori/incidentwatch/internal/logging"
)

// Config holds the workspace credentials.
type Config struct {
	BotToken   string
	AppToken   string
	SocketMode bool
	// APIURL overrides the Web API base URL. It must end with a slash.
	APIURL string
}

// Manager owns the Slack Web API client and, when enabled, the Socket Mode
// connection.
type Manager struct {
	mu sync.RWMutex

	cfg          Config
	client       *slack.Client
	socketClient *socketmode.Client

	cancel   context.CancelFunc
	doneChan chan struct{}

	// eventHandler receives the socket client before the connection starts.
	eventHandler func(*socketmode.Client)

	botUserID string
	running   bool
}

// NewManager creates the Web API client. With no bot token the manager is
// inert and GetClient returns nil.
func NewManager(cfg Config) *Manager {
	m := &Manager{cfg: cfg}
	if cfg.BotToken == "" {
		return m
	}

	options := []slack.Option{slack.OptionDebug(false)}
	if cfg.AppToken != "" {
		options = append(options, slack.OptionAppLevelToken(cfg.AppToken))
	}
	if cfg.APIURL != "" {
		options = append(options, slack.OptionAPIURL(cfg.APIURL))
	}
	m.client = slack.New(cfg.BotToken, options...)
	return m
}

// GetClient returns the Web API client (nil when not configured).
func (m *Manager) GetClient() *slack.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// GetSocketClient returns the Socket Mode client (nil until started).
func (m *Manager) GetSocketClient() *socketmode.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.socketClient
}

// IsRunning reports whether Socket Mode is active.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// BotUserID is the bot's own user ID, known after Start.
func (m *Manager) BotUserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.botUserID
}

// SetEventHandler sets the function that consumes Socket Mode events.
func (m *Manager) SetEventHandler(handler func(*socketmode.Client)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventHandler = handler
}

// Start resolves the bot identity and, if Socket Mode is enabled, opens the
// connection in the background.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		slog.Info("slack integration disabled", "reason", "no bot token")
		return nil
	}
	if m.running {
		return nil
	}

	auth, err := m.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test failed: %w", err)
	}
	m.botUserID = auth.UserID
	slog.Info("slack authenticated", "team", auth.Team, "bot_user", auth.UserID)

	if !m.cfg.SocketMode || m.cfg.AppToken == "" {
		slog.Info("slack socket mode disabled, expecting HTTP event delivery")
		return nil
	}

	m.socketClient = socketmode.New(
		m.client,
		socketmode.OptionDebug(false),
		socketmode.OptionLog(logging.StdLogger(slog.Default(), "socketmode")),
	)

	if m.eventHandler != nil {
		m.eventHandler(m.socketClient)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.doneChan = make(chan struct{})
	done := m.doneChan
	socketClient := m.socketClient

	go func() {
		defer close(done)
		slog.Info("starting slack socket mode connection")
		if err := socketClient.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			slog.Error("slack socket mode stopped", "error", err)
		}
	}()

	m.running = true
	return nil
}

// Stop closes the Socket Mode connection. It is a no-op when not running.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	slog.Info("stopping slack socket mode connection")
	m.cancel()
	<-m.doneChan

	m.running = false
	m.socketClient = nil
}
