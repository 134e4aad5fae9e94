// Package chat implements ChatSession: a turn-taking history manager that
// formats prompts via a pluggable ChatTemplate, keeps a session under its
// context budget by auto-summarizing old turns, and commits updates
// atomically only once the underlying generation succeeds.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edgeveda/core/internal/domain"
)

// Generator is the typed callable a ChatSession invokes inference through.
// In production this is backed by a Worker; tests supply a stub.
type Generator interface {
	Generate(ctx context.Context, prompt string, params domain.GenerateParams) (domain.GenerateResult, error)
	Stream(ctx context.Context, prompt string, params domain.GenerateParams, onToken func(domain.Token)) (domain.GenerateResult, error)
}

const (
	// DefaultMaxContextTokens bounds a session's estimated token usage.
	DefaultMaxContextTokens = 4096
	// DefaultSummarizeAtRatio triggers summarization once estimated usage
	// crosses this fraction of MaxContextTokens.
	DefaultSummarizeAtRatio = 0.70
	// keepRecentNonSystem is the number of most-recent non-system,
	// non-summary messages that summarization never touches.
	keepRecentNonSystem = 2
)

// SummarizationParams are the fixed generation parameters used for the
// dedicated summarization turn, distinct from the caller's own request
// parameters.
var SummarizationParams = domain.GenerateParams{
	MaxTokens:   256,
	Temperature: 0.2,
	TopP:        1.0,
}

// summarizationTemplateID names the dedicated template used to ask the
// model to compress a run of prior turns into one summary message.
const summarizationTemplateID = "role_tagged"

// Session holds one chat conversation's history and resolution policy.
type Session struct {
	mu sync.Mutex

	gen Generator

	templateID       string
	preset           Preset
	maxContextTokens int
	summarizeAtRatio float64

	history   []domain.ChatMessage
	turnCount int
}

// Option configures a Session at construction.
type Option func(*Session)

func WithTemplate(id string) Option {
	return func(s *Session) { s.templateID = id }
}

func WithMaxContextTokens(n int) Option {
	return func(s *Session) { s.maxContextTokens = n }
}

func WithSummarizeAtRatio(r float64) Option {
	return func(s *Session) { s.summarizeAtRatio = r }
}

// New creates a Session with the given preset's system prompt seeded as the
// first message.
func New(gen Generator, preset Preset, opts ...Option) *Session {
	s := &Session{
		gen:              gen,
		templateID:       "role_tagged",
		preset:           preset,
		maxContextTokens: DefaultMaxContextTokens,
		summarizeAtRatio: DefaultSummarizeAtRatio,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.history = []domain.ChatMessage{{Role: domain.RoleSystem, Content: SystemPrompt(preset), CreatedAt: time.Now()}}
	return s
}

// Reset discards all turns and recreates the system message from the
// session's current preset.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = []domain.ChatMessage{{Role: domain.RoleSystem, Content: SystemPrompt(s.preset), CreatedAt: time.Now()}}
	s.turnCount = 0
}

// SetPreset recreates the system message for a new preset, discarding the
// rest of the history (§4.3.2 default discard-and-reset policy).
func (s *Session) SetPreset(p Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preset = p
	s.history = []domain.ChatMessage{{Role: domain.RoleSystem, Content: SystemPrompt(p), CreatedAt: time.Now()}}
	s.turnCount = 0
}

// Messages returns a defensive copy of the current history.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

// TurnCount returns the number of user turns committed so far. This is a
// monotonic counter, not a count of domain.RoleUser messages currently in
// history: summarization replaces old turns with a single summary message,
// and turn_count must stay accurate across that compaction.
func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

// ContextUsage returns estimated_tokens / max_context_tokens for the
// current history.
func (s *Session) ContextUsage() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(estimateTokens(s.history)) / float64(s.maxContextTokens)
}

// estimateTokens is the default heuristic: ceil(total_chars / 4).
func estimateTokens(messages []domain.ChatMessage) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return (chars + 3) / 4
}

// Send appends userText as a user turn, generating a reply. On failure the
// session's committed history is left unchanged.
func (s *Session) Send(ctx context.Context, userText string, params domain.GenerateParams) (string, error) {
	result, err := s.run(ctx, userText, params, nil)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// SendStream is Send's streaming counterpart, invoking onToken for each
// emitted token.
func (s *Session) SendStream(ctx context.Context, userText string, params domain.GenerateParams, onToken func(domain.Token)) (string, error) {
	result, err := s.run(ctx, userText, params, onToken)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

func (s *Session) run(ctx context.Context, userText string, params domain.GenerateParams, onToken func(domain.Token)) (domain.GenerateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tentative := append(append([]domain.ChatMessage{}, s.history...), domain.ChatMessage{
		Role: domain.RoleUser, Content: userText, CreatedAt: time.Now(),
	})

	usage := float64(estimateTokens(tentative)) / float64(s.maxContextTokens)
	if usage >= s.summarizeAtRatio {
		summarized, err := s.summarize(ctx, tentative)
		if err != nil {
			return domain.GenerateResult{}, fmt.Errorf("summarize: %w", err)
		}
		tentative = summarized
	}

	if estimateTokens(tentative) > s.maxContextTokens {
		return domain.GenerateResult{}, domain.ErrContextOverflow
	}

	prompt := TemplateByID(s.templateID).Format(tentative)

	var (
		result domain.GenerateResult
		err    error
	)
	if onToken != nil {
		result, err = s.gen.Stream(ctx, prompt, params, onToken)
	} else {
		result, err = s.gen.Generate(ctx, prompt, params)
	}
	if err != nil {
		return domain.GenerateResult{}, err
	}

	tentative = append(tentative, domain.ChatMessage{
		Role: domain.RoleAssistant, Content: result.Text, CreatedAt: time.Now(),
	})
	s.history = tentative
	s.turnCount++
	return result, nil
}

// summarize replaces the contiguous run of messages after the system
// message (earlier summary messages included) - excluding the most recent
// user message just appended and the last keepRecentNonSystem prior
// messages - with a single
// summary message, via a dedicated generation call. On failure it returns
// the original slice unchanged alongside the error.
func (s *Session) summarize(ctx context.Context, messages []domain.ChatMessage) ([]domain.ChatMessage, error) {
	// Identify the protected tail: the just-appended user message plus the
	// last keepRecentNonSystem non-system/non-summary messages before it.
	protectedFrom := len(messages) - 1 // the new user message itself
	kept := 0
	for i := protectedFrom - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleSystem {
			break
		}
		kept++
		if kept >= keepRecentNonSystem {
			protectedFrom = i
			break
		}
		protectedFrom = i
	}

	// The summarizable run spans everything after the system message (if
	// any) up to protectedFrom.
	start := 0
	if len(messages) > 0 && messages[0].Role == domain.RoleSystem {
		start = 1
	}
	if start >= protectedFrom {
		// Nothing eligible to summarize; proceed with the unmodified
		// history and let the overflow check downstream decide.
		return messages, nil
	}

	run := messages[start:protectedFrom]
	instruction := []domain.ChatMessage{{Role: domain.RoleUser, Content: summarizationInstruction(run)}}
	prompt := TemplateByID(summarizationTemplateID).Format(instruction)

	result, err := s.gen.Generate(ctx, prompt, SummarizationParams)
	if err != nil {
		return messages, err
	}

	out := make([]domain.ChatMessage, 0, len(messages)-len(run)+1)
	out = append(out, messages[:start]...)
	out = append(out, domain.ChatMessage{Role: domain.RoleSummary, Content: result.Text, CreatedAt: time.Now()})
	out = append(out, messages[protectedFrom:]...)
	return out, nil
}

func summarizationInstruction(run []domain.ChatMessage) string {
	var sb []byte
	sb = append(sb, "Summarize the following conversation turns concisely, preserving any facts or decisions relevant to later turns:\n\n"...)
	for _, m := range run {
		sb = append(sb, '[')
		sb = append(sb, m.Role.String()...)
		sb = append(sb, "] "...)
		sb = append(sb, m.Content...)
		sb = append(sb, '\n')
	}
	return string(sb)
}
