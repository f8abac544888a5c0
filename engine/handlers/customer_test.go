package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/crisalvesdev/atendebot/engine/budget"
	"github.com/crisalvesdev/atendebot/engine/cache"
	"github.com/crisalvesdev/atendebot/engine/contract"
	"github.com/crisalvesdev/atendebot/engine/docstore"
	"github.com/crisalvesdev/atendebot/engine/state"
)

type stubCompleter struct {
	text  string
	usage contract.TokenUsage
	err   error
	calls int
}

func (s *stubCompleter) Complete(ctx context.Context, system, user string, maxTokens int, temp float64) (contract.Completion, error) {
	s.calls++
	if s.err != nil {
		return contract.Completion{}, s.err
	}
	return contract.Completion{Text: s.text, Usage: s.usage}, nil
}

type stubArchive struct{ answer string }

func (s *stubArchive) Answer(ctx context.Context, tenant, question string) (string, error) {
	return s.answer, nil
}

type stubCatalog struct{ snapshot string }

func (s *stubCatalog) Snapshot(ctx context.Context, tenant string, maxChars int) (string, error) {
	return s.snapshot, nil
}

func openGuard() *budget.Guard {
	return budget.New(cache.New(nil), budget.Config{MonthlyUSD: 100, MinRemainLLM: 1, LLMDailyCap: 1000, EnableLLM: true})
}

func newCustomer(llm contract.Completer, archive contract.ArchiveSearcher) *Customer {
	st := state.New(docstore.NewMemoryStore(), state.Config{})
	return NewCustomer(llm, archive, &stubCatalog{snapshot: "Serviços:\n- Corte (R$ 50, 40 min)"}, st, openGuard(), CustomerConfig{})
}

func TestArchiveAnswerWinsOverLLM(t *testing.T) {
	t.Parallel()
	llm := &stubCompleter{text: "resposta da ia"}
	h := newCustomer(llm, &stubArchive{answer: "O corte custa R$ 50."})

	res, err := h.GenerateReply(context.Background(), "acme", "quanto custa o corte de cabelo?", &contract.ConversationContext{ContactKey: "5511988880001"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.RouteTaken != "customer:archive" || res.ReplyText != "O corte custa R$ 50." {
		t.Fatalf("got %+v", res)
	}
	if llm.calls != 0 {
		t.Fatalf("llm should not be called when the archive answers")
	}
}

func TestShowModeThenEconomical(t *testing.T) {
	t.Parallel()
	llm := &stubCompleter{text: "Oi! Temos horário quinta às 10h. Quer marcar?"}
	h := newCustomer(llm, &stubArchive{})

	ctx := context.Background()
	conv := &contract.ConversationContext{ContactKey: "5511988880002"}

	for turn := 1; turn <= 5; turn++ {
		res, err := h.GenerateReply(ctx, "acme", "tem horário quinta?", conv)
		if err != nil {
			t.Fatalf("turn %d: %v", turn, err)
		}
		if res.RouteTaken != "customer:ai" {
			t.Fatalf("turn %d route = %s", turn, res.RouteTaken)
		}
	}

	// 6th turn: turn budget exhausted, no LLM call, fixed reply
	before := llm.calls
	res, err := h.GenerateReply(ctx, "acme", "tem horário sexta?", conv)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.RouteTaken != "customer:econ" || res.ReplyText != economicalReply {
		t.Fatalf("got %+v", res)
	}
	if llm.calls != before {
		t.Fatalf("llm called on economical turn")
	}
	if res.TokenUsage.Total() != 0 {
		t.Fatalf("economical reply must not report token usage")
	}
}

func TestShowModeTurnBudgetIsConfigurable(t *testing.T) {
	t.Parallel()
	llm := &stubCompleter{text: "Claro! Posso ver pra você."}
	st := state.New(docstore.NewMemoryStore(), state.Config{})
	h := NewCustomer(llm, &stubArchive{}, &stubCatalog{}, st, openGuard(), CustomerConfig{ShowModeTurns: 2})

	ctx := context.Background()
	conv := &contract.ConversationContext{ContactKey: "5511988880007"}

	for turn := 1; turn <= 2; turn++ {
		res, err := h.GenerateReply(ctx, "acme", "tem horário quinta?", conv)
		if err != nil {
			t.Fatalf("turn %d: %v", turn, err)
		}
		if res.RouteTaken != "customer:ai" {
			t.Fatalf("turn %d route = %s", turn, res.RouteTaken)
		}
	}

	res, err := h.GenerateReply(ctx, "acme", "tem horário sexta?", conv)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.RouteTaken != "customer:econ" {
		t.Fatalf("3rd turn with a budget of 2 routed %s", res.RouteTaken)
	}
}

func TestLLMFailureFallsBackToEconomical(t *testing.T) {
	t.Parallel()
	llm := &stubCompleter{err: errors.New("boom")}
	h := newCustomer(llm, &stubArchive{})

	res, err := h.GenerateReply(context.Background(), "acme", "tem horário amanhã?", &contract.ConversationContext{ContactKey: "5511988880003"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.RouteTaken != "customer:econ" {
		t.Fatalf("route = %s", res.RouteTaken)
	}
}

func TestNoHeadroomSkipsLLM(t *testing.T) {
	t.Parallel()
	llm := &stubCompleter{text: "resposta"}
	st := state.New(docstore.NewMemoryStore(), state.Config{})
	guard := budget.New(cache.New(nil), budget.Config{MonthlyUSD: 100, EnableLLM: false})
	h := NewCustomer(llm, &stubArchive{}, &stubCatalog{}, st, guard, CustomerConfig{})

	res, err := h.GenerateReply(context.Background(), "acme", "tem horário amanhã?", &contract.ConversationContext{ContactKey: "5511988880004"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.RouteTaken != "customer:econ" || llm.calls != 0 {
		t.Fatalf("route = %s calls = %d", res.RouteTaken, llm.calls)
	}
}

func TestSalesPitchFallback(t *testing.T) {
	t.Parallel()
	h := NewSales(&stubCompleter{err: errors.New("down")}, openGuard())

	conv := &contract.ConversationContext{IsLead: true, ChannelHint: contract.ChannelVoice}
	res, err := h.GenerateReply(context.Background(), "acme", "oi", conv)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.ReplyText != salesFallbackPitch || res.RouteTaken != "sales:pitch" {
		t.Fatalf("got %+v", res)
	}
}

func TestSalesFallsThroughForTextLead(t *testing.T) {
	t.Parallel()
	h := NewSales(&stubCompleter{text: "pitch"}, openGuard())

	conv := &contract.ConversationContext{IsLead: true, ChannelHint: contract.ChannelText}
	if _, err := h.GenerateReply(context.Background(), "acme", "oi", conv); !errors.Is(err, contract.ErrNotApplicable) {
		t.Fatalf("err = %v, want ErrNotApplicable", err)
	}
}

func TestSalesUsesLLMWhenAvailable(t *testing.T) {
	t.Parallel()
	llm := &stubCompleter{text: "Oi! Eu automatizo seu WhatsApp. Qual é o seu ramo?"}
	h := NewSales(llm, openGuard())

	conv := &contract.ConversationContext{IsLead: true, ChannelHint: contract.ChannelVoice}
	res, err := h.GenerateReply(context.Background(), "acme", "o que vocês fazem?", conv)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.RouteTaken != "sales:ai" {
		t.Fatalf("route = %s", res.RouteTaken)
	}
}
