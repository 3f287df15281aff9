package chatctx

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hazem-soussi-HA/hazoom/pkg/api"
)

func newTestManager(ctxSize int) *Manager {
	return NewManager(Config{
		CtxSize:        ctxSize,
		ResponseBudget: 100,
	}, NewTokenEstimator())
}

func TestMessagesUnderBudget(t *testing.T) {
	mgr := newTestManager(10000)
	mgr.SetSystemPrompt("You are HAZoom.")
	mgr.Append(api.Message{Role: "user", Content: "Hello"})
	mgr.Append(api.Message{Role: "assistant", Content: "Hi there!"})

	msgs := mgr.Window(0)
	if len(msgs) != 3 { // system + 2 history
		t.Errorf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("first message should be system, got %s", msgs[0].Role)
	}
	if msgs[1].Content != "Hello" {
		t.Errorf("expected 'Hello', got %q", msgs[1].Content)
	}
}

func TestMessagesOverBudget(t *testing.T) {
	mgr := newTestManager(200)
	mgr.SetSystemPrompt("sys")

	for i := 0; i < 20; i++ {
		mgr.Append(api.Message{Role: "user", Content: fmt.Sprintf("Message number %d with some extra text padding", i)})
		mgr.Append(api.Message{Role: "assistant", Content: fmt.Sprintf("Response number %d with some extra text padding", i)})
	}

	msgs := mgr.Window(0)
	if len(msgs) >= 41 {
		t.Errorf("expected windowing to drop messages, got %d messages", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("first message should be system, got %s", msgs[0].Role)
	}
	last := msgs[len(msgs)-1]
	if last.Content != "Response number 19 with some extra text padding" {
		t.Errorf("last message should be most recent, got %q", last.Content)
	}
}

func TestWindowMessageCap(t *testing.T) {
	mgr := newTestManager(100000)
	mgr.SetSystemPrompt("sys")
	for i := 0; i < 30; i++ {
		mgr.Append(api.Message{Role: "user", Content: fmt.Sprintf("m%d", i)})
	}

	msgs := mgr.Window(10)
	if len(msgs) != 11 {
		t.Fatalf("expected system + 10 history, got %d", len(msgs))
	}
	if msgs[1].Content != "m20" {
		t.Errorf("oldest kept = %q, want m20", msgs[1].Content)
	}

	short := mgr.Window(5)
	if len(short) != 6 {
		t.Fatalf("Window(5) = %d messages, want 6", len(short))
	}
	if short[1].Content != "m25" {
		t.Errorf("Window(5) oldest = %q, want m25", short[1].Content)
	}
}

func TestSystemPromptAlwaysFirst(t *testing.T) {
	mgr := newTestManager(200)
	mgr.SetSystemPrompt("Important system prompt")

	for i := 0; i < 50; i++ {
		mgr.Append(api.Message{Role: "user", Content: strings.Repeat("x", 100)})
	}

	msgs := mgr.Window(0)
	if len(msgs) == 0 {
		t.Fatal("expected at least system message")
	}
	if msgs[0].Role != "system" || msgs[0].Content != "Important system prompt" {
		t.Errorf("system prompt should always be first, got role=%s content=%q", msgs[0].Role, msgs[0].Content)
	}
}

func TestClear(t *testing.T) {
	mgr := newTestManager(4096)
	mgr.SetSystemPrompt("keep me")
	mgr.Append(api.Message{Role: "user", Content: "hello"})
	mgr.Append(api.Message{Role: "assistant", Content: "hi"})

	mgr.Clear()

	if mgr.Len() != 0 {
		t.Error("history should be empty after Clear")
	}
	msgs := mgr.Window(0)
	if len(msgs) != 1 || msgs[0].Content != "keep me" {
		t.Errorf("system prompt should be preserved, got %+v", msgs)
	}
}

func TestBudgetInfo(t *testing.T) {
	mgr := newTestManager(4096)
	mgr.SetSystemPrompt("system prompt here")
	mgr.Append(api.Message{Role: "user", Content: "hello"})
	mgr.Append(api.Message{Role: "assistant", Content: "hi"})

	budget := mgr.Budget()

	if budget.Total != 4096 {
		t.Errorf("Total = %d, want 4096", budget.Total)
	}
	if budget.System <= 0 {
		t.Errorf("System = %d, want > 0", budget.System)
	}
	if budget.HistoryCount != 2 {
		t.Errorf("HistoryCount = %d, want 2", budget.HistoryCount)
	}
	if budget.TotalHistory != 2 {
		t.Errorf("TotalHistory = %d, want 2", budget.TotalHistory)
	}
	sum := budget.System + budget.History + budget.Available + 100
	if sum != budget.Total {
		t.Errorf("budget components add up to %d, want %d", sum, budget.Total)
	}
}

func TestBudgetExcludesEvicted(t *testing.T) {
	mgr := newTestManager(200)
	mgr.SetSystemPrompt("sys")
	for i := 0; i < 20; i++ {
		mgr.Append(api.Message{Role: "user", Content: strings.Repeat("y", 60)})
	}

	budget := mgr.Budget()
	if budget.TotalHistory != 20 {
		t.Errorf("TotalHistory = %d, want 20", budget.TotalHistory)
	}
	if budget.HistoryCount >= budget.TotalHistory {
		t.Errorf("HistoryCount = %d, want fewer than %d", budget.HistoryCount, budget.TotalHistory)
	}
	if budget.HistoryCount != len(mgr.Window(0))-1 {
		t.Errorf("HistoryCount = %d, window holds %d", budget.HistoryCount, len(mgr.Window(0))-1)
	}
}

func TestHistoryIsCopy(t *testing.T) {
	mgr := newTestManager(4096)
	mgr.Append(api.Message{Role: "user", Content: "original"})

	h := mgr.History()
	h[0].Content = "mutated"

	if mgr.History()[0].Content != "original" {
		t.Error("History should return a copy")
	}
}

func TestDefaultConfig(t *testing.T) {
	mgr := NewManager(Config{}, nil)
	if mgr.cfg.CtxSize != 4096 {
		t.Errorf("default CtxSize = %d, want 4096", mgr.cfg.CtxSize)
	}
	if mgr.cfg.ResponseBudget != 512 {
		t.Errorf("default ResponseBudget = %d, want 512", mgr.cfg.ResponseBudget)
	}
}

func TestNoSystemPromptMessages(t *testing.T) {
	mgr := newTestManager(4096)
	mgr.Append(api.Message{Role: "user", Content: "hello"})

	msgs := mgr.Window(0)
	if len(msgs) != 1 {
		t.Errorf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Role != "user" {
		t.Errorf("expected user message, got %s", msgs[0].Role)
	}
}

func TestEmptyHistory(t *testing.T) {
	mgr := newTestManager(4096)
	mgr.SetSystemPrompt("sys")

	if msgs := mgr.Window(0); len(msgs) != 1 {
		t.Errorf("expected 1 message (system only), got %d", len(msgs))
	}
}
