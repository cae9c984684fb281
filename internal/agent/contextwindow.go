package agent

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/haasonsaas/finsight/internal/knowledge"
	"github.com/haasonsaas/finsight/pkg/models"
)

// WindowConfig configures context bundle assembly. All budgets are in
// characters, a cheap proxy for tokens.
type WindowConfig struct {
	// MaxChars is the total budget for packed messages, tuned to leave
	// room for the system instruction, the knowledge block, and the
	// model's own output budget.
	// Default: 30000
	MaxChars int

	// RecentMessageCap is the per-message cap for the newest turns.
	// Default: 4000
	RecentMessageCap int

	// OlderMessageCap is the harsher per-message cap applied beyond the
	// recent window, before messages are dropped entirely.
	// Default: 1000
	OlderMessageCap int

	// RecentWindow is how many of the newest turns get RecentMessageCap.
	// Default: 4
	RecentWindow int

	// MaxKnowledgeChars caps the knowledge-context block.
	// Default: 4000
	MaxKnowledgeChars int

	// EpochLength is the cache window length used to derive the
	// request-scoped cache epoch.
	// Default: 5 minutes
	EpochLength time.Duration
}

// DefaultWindowConfig returns the default window configuration.
func DefaultWindowConfig() *WindowConfig {
	return &WindowConfig{
		MaxChars:          30000,
		RecentMessageCap:  4000,
		OlderMessageCap:   1000,
		RecentWindow:      4,
		MaxKnowledgeChars: 4000,
		EpochLength:       5 * time.Minute,
	}
}

// Bundle is the bounded context sent to the model for one inference call.
type Bundle struct {
	System    string
	Knowledge string
	Messages  []CompletionMessage

	// Dropped counts history messages omitted entirely. When positive, a
	// placeholder turn is present so the model knows context was cut.
	Dropped int

	// CacheEpoch is floor(now / EpochLength), computed per request.
	CacheEpoch int64
}

// Window assembles context bundles.
type Window struct {
	config *WindowConfig
}

// NewWindow creates a window manager with the given config.
func NewWindow(config *WindowConfig) *Window {
	if config == nil {
		config = DefaultWindowConfig()
	}
	cfg := *config
	defaults := DefaultWindowConfig()
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = defaults.MaxChars
	}
	if cfg.RecentMessageCap <= 0 {
		cfg.RecentMessageCap = defaults.RecentMessageCap
	}
	if cfg.OlderMessageCap <= 0 {
		cfg.OlderMessageCap = defaults.OlderMessageCap
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = defaults.RecentWindow
	}
	if cfg.MaxKnowledgeChars <= 0 {
		cfg.MaxKnowledgeChars = defaults.MaxKnowledgeChars
	}
	if cfg.EpochLength <= 0 {
		cfg.EpochLength = defaults.EpochLength
	}
	if cfg.MaxChars < minWindowChars {
		cfg.MaxChars = minWindowChars
	}
	// The incoming turn is never dropped, so its cap plus the reserved
	// placeholder space must fit inside the total budget.
	if maxCap := cfg.MaxChars - placeholderReserve; cfg.RecentMessageCap > maxCap {
		cfg.RecentMessageCap = maxCap
	}
	if cfg.OlderMessageCap > cfg.RecentMessageCap {
		cfg.OlderMessageCap = cfg.RecentMessageCap
	}
	return &Window{config: &cfg}
}

// Build packs history plus the incoming user message into a Bundle.
//
// The newest turns are preserved at full fidelity up to RecentMessageCap;
// older turns get OlderMessageCap before being dropped entirely. The
// incoming message is never dropped, only truncated. When history is
// dropped, a visible placeholder turn is inserted so the model knows.
func (w *Window) Build(system string, history []*models.Message, incoming *models.Message, kctx *knowledge.Context, now time.Time) *Bundle {
	bundle := &Bundle{
		System:     system,
		CacheEpoch: now.Unix() / int64(w.config.EpochLength.Seconds()),
	}

	if kctx != nil && kctx.Summary != "" {
		bundle.Knowledge = truncateString(kctx.Summary, w.config.MaxKnowledgeChars)
	}

	// The incoming message is the newest turn: truncated if oversized,
	// never dropped. Space for a possible omission placeholder is reserved
	// up front so the total budget holds even when one is inserted.
	incomingMsg := w.truncate(toCompletionMessage(incoming), w.config.RecentMessageCap)
	budget := w.config.MaxChars - messageChars(incomingMsg) - placeholderReserve

	// Walk history newest-first, spending budget. Position 0 below is the
	// newest history turn; it sits inside the recent window together with
	// the incoming message.
	selectedReverse := make([]CompletionMessage, 0, len(history))
	dropped := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i] == nil {
			continue
		}
		age := len(selectedReverse) + 1 // +1 for the incoming turn
		perMsgCap := w.config.OlderMessageCap
		if age < w.config.RecentWindow {
			perMsgCap = w.config.RecentMessageCap
		}
		msg := w.truncate(toCompletionMessage(history[i]), perMsgCap)
		cost := messageChars(msg)
		if dropped > 0 || cost > budget {
			// Once one message is dropped, everything older goes too;
			// keeping non-contiguous history would scramble the thread.
			dropped++
			continue
		}
		selectedReverse = append(selectedReverse, msg)
		budget -= cost
	}

	messages := make([]CompletionMessage, 0, len(selectedReverse)+2)
	if dropped > 0 {
		messages = append(messages, CompletionMessage{
			Role:    "user",
			Content: fmt.Sprintf("[Note: %d earlier message(s) in this conversation were omitted to fit the context window.]", dropped),
		})
	}
	for i := len(selectedReverse) - 1; i >= 0; i-- {
		messages = append(messages, selectedReverse[i])
	}
	messages = append(messages, incomingMsg)

	bundle.Messages = messages
	bundle.Dropped = dropped
	return bundle
}

// TotalChars reports the packed size of the bundle's messages. Used by
// tests and budget diagnostics.
func (b *Bundle) TotalChars() int {
	total := 0
	for _, m := range b.Messages {
		total += messageChars(m)
	}
	return total
}

const truncationMarker = "\n...[truncated]"

// placeholderReserve is budget held back for the omission placeholder turn.
const placeholderReserve = 120

// minWindowChars is the floor for MaxChars. Anything smaller cannot fit a
// truncated incoming turn next to the omission placeholder.
const minWindowChars = 512

// truncate cuts content so the result, marker included, stays within limit.
func (w *Window) truncate(msg CompletionMessage, limit int) CompletionMessage {
	msg.Content = truncateString(msg.Content, limit)
	for i, tr := range msg.ToolResults {
		if len(tr.Content) > limit {
			tr.Content = truncateString(tr.Content, limit)
			msg.ToolResults[i] = tr
		}
	}
	return msg
}

func truncateString(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	keep := limit - len(truncationMarker)
	if keep < 0 {
		keep = 0
	}
	// Back up to a rune boundary so the cut never splits a multibyte
	// character.
	for keep > 0 && !utf8.RuneStart(s[keep]) {
		keep--
	}
	return s[:keep] + truncationMarker
}

func toCompletionMessage(m *models.Message) CompletionMessage {
	if m == nil {
		return CompletionMessage{Role: "user"}
	}
	role := string(m.Role)
	if role == "" {
		role = "user"
	}
	return CompletionMessage{
		Role:        role,
		Content:     m.Content,
		ToolCalls:   append([]models.ToolCall(nil), m.ToolCalls...),
		ToolResults: append([]models.ToolResult(nil), m.ToolResults...),
	}
}

func messageChars(m CompletionMessage) int {
	chars := len(m.Content)
	for _, tc := range m.ToolCalls {
		chars += len(tc.Name) + len(tc.Input)
	}
	for _, tr := range m.ToolResults {
		chars += len(tr.Content)
	}
	return chars
}
