package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/edgeveda/core/internal/domain"
)

type stubGenerator struct {
	generateFn func(prompt string, params domain.GenerateParams) (domain.GenerateResult, error)
	calls      []string
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string, params domain.GenerateParams) (domain.GenerateResult, error) {
	g.calls = append(g.calls, prompt)
	if g.generateFn != nil {
		return g.generateFn(prompt, params)
	}
	return domain.GenerateResult{Text: "ok", TokensGenerated: 1}, nil
}

func (g *stubGenerator) Stream(ctx context.Context, prompt string, params domain.GenerateParams, onToken func(domain.Token)) (domain.GenerateResult, error) {
	if onToken != nil {
		onToken(domain.Token{Text: "ok"})
	}
	return g.Generate(ctx, prompt, params)
}

func TestSession_SendCommitsOnSuccess(t *testing.T) {
	gen := &stubGenerator{}
	s := New(gen, PresetAssistant)

	reply, err := s.Send(context.Background(), "hello", domain.GenerateParams{MaxTokens: 50})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply != "ok" {
		t.Fatalf("reply = %q, want ok", reply)
	}
	msgs := s.Messages()
	if len(msgs) != 3 { // system, user, assistant
		t.Fatalf("len(Messages()) = %d, want 3", len(msgs))
	}
	if msgs[1].Role != domain.RoleUser || msgs[2].Role != domain.RoleAssistant {
		t.Fatalf("unexpected roles: %+v", msgs)
	}
	if s.TurnCount() != 1 {
		t.Fatalf("TurnCount = %d, want 1", s.TurnCount())
	}
}

func TestSession_FailureLeavesHistoryUnchanged(t *testing.T) {
	gen := &stubGenerator{generateFn: func(string, domain.GenerateParams) (domain.GenerateResult, error) {
		return domain.GenerateResult{}, errors.New("boom")
	}}
	s := New(gen, PresetAssistant)
	before := len(s.Messages())

	_, err := s.Send(context.Background(), "hello", domain.GenerateParams{})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(s.Messages()) != before {
		t.Fatalf("history changed on failure: got %d messages, want %d", len(s.Messages()), before)
	}
}

func TestSession_ResetRecreatesSystemMessage(t *testing.T) {
	gen := &stubGenerator{}
	s := New(gen, PresetCoder)
	s.Send(context.Background(), "hi", domain.GenerateParams{})
	s.Reset()

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Role != domain.RoleSystem {
		t.Fatalf("after Reset, Messages() = %+v, want single system message", msgs)
	}
	if msgs[0].Content != SystemPrompt(PresetCoder) {
		t.Fatalf("system message = %q, want coder preset prompt", msgs[0].Content)
	}
	if s.TurnCount() != 0 {
		t.Fatalf("TurnCount after Reset = %d, want 0", s.TurnCount())
	}
}

func TestSession_OverflowTriggersSummarization(t *testing.T) {
	gen := &stubGenerator{generateFn: func(prompt string, params domain.GenerateParams) (domain.GenerateResult, error) {
		if strings.Contains(prompt, "Summarize") {
			return domain.GenerateResult{Text: "summary of earlier turns"}, nil
		}
		return domain.GenerateResult{Text: "reply"}, nil
	}}
	s := New(gen, PresetAssistant, WithMaxContextTokens(200))

	longText := strings.Repeat("word ", 40) // ~200 chars -> ~50 tokens per turn
	var lastMsgs []domain.ChatMessage
	for i := 0; i < 10; i++ {
		_, err := s.Send(context.Background(), fmt.Sprintf("%s turn-%d", longText, i), domain.GenerateParams{})
		if err != nil {
			t.Fatalf("Send turn %d: %v", i, err)
		}
		lastMsgs = s.Messages()
	}

	summaryCount := 0
	for _, m := range lastMsgs {
		if m.Role == domain.RoleSummary {
			summaryCount++
		}
	}
	if summaryCount == 0 {
		t.Fatal("expected at least one summary message after repeated long turns")
	}

	// At least two non-system, non-summary messages must survive
	// summarization (the "last 2 prior" protection keeps recent turns).
	nonSys := 0
	for _, m := range lastMsgs {
		if m.Role != domain.RoleSystem && m.Role != domain.RoleSummary {
			nonSys++
		}
	}
	if nonSys < 2 {
		t.Fatalf("expected recent turns preserved, got %d non-system/summary messages", nonSys)
	}

	// turn_count must reflect all 10 completed sends, not the 2 user
	// messages summarization left verbatim in history.
	if s.TurnCount() != 10 {
		t.Fatalf("TurnCount = %d, want 10 (summarization must not reset the turn counter)", s.TurnCount())
	}
}

func TestSession_SetPresetDiscardsHistory(t *testing.T) {
	gen := &stubGenerator{}
	s := New(gen, PresetAssistant)
	s.Send(context.Background(), "hi", domain.GenerateParams{})

	s.SetPreset(PresetCreative)
	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("len(Messages()) after SetPreset = %d, want 1", len(msgs))
	}
	if msgs[0].Content != SystemPrompt(PresetCreative) {
		t.Fatal("system message not updated to new preset")
	}
}

func TestSession_ContextUsageReflectsHistory(t *testing.T) {
	gen := &stubGenerator{}
	s := New(gen, PresetAssistant, WithMaxContextTokens(1000))
	if u := s.ContextUsage(); u <= 0 {
		t.Fatalf("ContextUsage = %v, want > 0 (system prompt already counts)", u)
	}
}

func TestTemplateByID_DefaultsToRoleTagged(t *testing.T) {
	if TemplateByID("nonexistent").ID() != "role_tagged" {
		t.Fatal("expected fallback to role_tagged")
	}
	if TemplateByID("instruction").ID() != "instruction" {
		t.Fatal("expected instruction template lookup")
	}
}
