package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/crisalvesdev/atendebot/engine/budget"
	"github.com/crisalvesdev/atendebot/engine/cache"
	"github.com/crisalvesdev/atendebot/engine/contract"
	"github.com/crisalvesdev/atendebot/engine/front"
	"github.com/crisalvesdev/atendebot/engine/pack"
	"github.com/crisalvesdev/atendebot/engine/router"
	"github.com/crisalvesdev/atendebot/engine/state"
)

type scriptedCompleter struct {
	text  string
	usage contract.TokenUsage
	err   error
	calls int
}

func (s *scriptedCompleter) Complete(ctx context.Context, system, user string, maxTokens int, temp float64) (contract.Completion, error) {
	s.calls++
	if s.err != nil {
		return contract.Completion{}, s.err
	}
	return contract.Completion{Text: s.text, Usage: s.usage}, nil
}

type staticKnowledge struct{ snapshot string }

func (s *staticKnowledge) Snapshot(ctx context.Context, tenant string, maxChars int) (string, error) {
	return s.snapshot, nil
}

type scriptedHandler struct {
	reply *contract.ReplyResult
	err   error
}

func (s *scriptedHandler) GenerateReply(ctx context.Context, tenant, text string, conv *contract.ConversationContext) (*contract.ReplyResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.reply, nil
}

type buildOpts struct {
	mode     contract.RolloutMode
	llm      contract.Completer
	handlers []contract.ReplyHandler
	budget   budget.Config
}

func buildService(t *testing.T, opts buildOpts) *Service {
	t.Helper()
	kv := cache.New(nil)
	st := state.New(nil, state.Config{})
	bcfg := opts.budget
	if bcfg.MonthlyUSD == 0 {
		bcfg = budget.Config{MonthlyUSD: 100, MinRemainLLM: 1, LLMDailyCap: 1000, EnableLLM: true}
	}
	guard := budget.New(kv, bcfg)
	llm := opts.llm
	if llm == nil {
		llm = &scriptedCompleter{err: errors.New("no llm in this test")}
	}
	svc, err := New(
		router.New(router.Config{Mode: opts.mode}, kv),
		st,
		opts.handlers,
		front.New(llm, guard),
		pack.NewRenderer(nil),
		guard,
		&staticKnowledge{snapshot: "Atende Bot responde clientes no WhatsApp."},
		nil,
		Config{},
	)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

func TestAlwaysReturnsNonEmptyReply(t *testing.T) {
	t.Parallel()
	svc := buildService(t, buildOpts{mode: contract.RolloutOn, llm: &scriptedCompleter{err: errors.New("llm down")}})
	ctx := context.Background()

	inputs := []string{"", "quanto custa?", "vocês fazem software sob medida?", "asdfgh"}
	for _, text := range inputs {
		res, err := svc.Orchestrate(ctx, "acme", "5511988880001", text, contract.ChannelText)
		if err != nil {
			t.Fatalf("input %q: %v", text, err)
		}
		if strings.TrimSpace(res.ReplyText) == "" {
			t.Fatalf("input %q produced empty reply (route %s)", text, res.RouteTaken)
		}
		if strings.Count(res.ReplyText, "?") > 1 {
			t.Fatalf("input %q reply has multiple questions: %q", text, res.ReplyText)
		}
	}
}

func TestOutOfScopeRedirectScenario(t *testing.T) {
	t.Parallel()
	svc := buildService(t, buildOpts{mode: contract.RolloutOn})

	res, err := svc.Orchestrate(context.Background(), "acme", "5511988880002", "vocês programam um sistema sob medida pra mim?", contract.ChannelText)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.RouteTaken != "router:redirect" {
		t.Fatalf("route = %s", res.RouteTaken)
	}
	low := strings.ToLower(res.ReplyText)
	if !strings.Contains(low, "não faz programa sob medida") {
		t.Fatalf("redirect should disclaim bespoke work: %q", res.ReplyText)
	}
	if res.TokenUsage.Total() != 0 {
		t.Fatalf("redirect must be zero-cost, usage=%+v", res.TokenUsage)
	}
}

func TestShadowModeFallsThroughToFront(t *testing.T) {
	t.Parallel()
	llm := &scriptedCompleter{
		text: `{"understanding": {"topic": "PRECO", "confidence": "high"}, "nextStep": "NONE"}`,
	}
	svc := buildService(t, buildOpts{mode: contract.RolloutShadow, llm: llm})

	res, err := svc.Orchestrate(context.Background(), "acme", "5511988880003", "vocês fazem software sob medida?", contract.ChannelText)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if strings.HasPrefix(res.RouteTaken, "router:") {
		t.Fatalf("shadow plan affected the reply: %s", res.RouteTaken)
	}
	if llm.calls == 0 {
		t.Fatalf("shadow should fall through to the front")
	}
}

func TestNoHeadroomUsesPackOnly(t *testing.T) {
	t.Parallel()
	llm := &scriptedCompleter{text: "should never run"}
	svc := buildService(t, buildOpts{
		mode:   contract.RolloutOn,
		llm:    llm,
		budget: budget.Config{MonthlyUSD: 100, EnableLLM: false, MinRemainLLM: 1},
	})

	res, err := svc.Orchestrate(context.Background(), "acme", "5511988880004", "como funciona a agenda?", contract.ChannelText)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.RouteTaken != "front:pack_economy" {
		t.Fatalf("route = %s", res.RouteTaken)
	}
	if res.TokenUsage.Total() != 0 {
		t.Fatalf("economy path must report zero usage: %+v", res.TokenUsage)
	}
	if llm.calls != 0 {
		t.Fatalf("llm called despite exhausted budget")
	}
}

func TestHandlerAnswerShortCircuitsFront(t *testing.T) {
	t.Parallel()
	llm := &scriptedCompleter{text: "should never run"}
	handled := &contract.ReplyResult{ReplyText: "Resposta do handler.", RouteTaken: "support:contatos:action_map"}
	svc := buildService(t, buildOpts{
		mode:     contract.RolloutOn,
		llm:      llm,
		handlers: []contract.ReplyHandler{&scriptedHandler{reply: handled}},
	})

	res, err := svc.Orchestrate(context.Background(), "acme", "5511988880005", "como criar contato?", contract.ChannelText)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.RouteTaken != "support:contatos:action_map" {
		t.Fatalf("route = %s", res.RouteTaken)
	}
	if llm.calls != 0 {
		t.Fatalf("front invoked despite handler answer")
	}
}

func TestHandlerErrorsFallThrough(t *testing.T) {
	t.Parallel()
	llm := &scriptedCompleter{
		text: `{"understanding": {"topic": "AGENDA", "confidence": "high"}, "nextStep": "NONE"}`,
	}
	svc := buildService(t, buildOpts{
		mode: contract.RolloutOn,
		llm:  llm,
		handlers: []contract.ReplyHandler{
			&scriptedHandler{err: contract.ErrNotApplicable},
			&scriptedHandler{err: errors.New("kb exploded")},
		},
	})

	res, err := svc.Orchestrate(context.Background(), "acme", "5511988880006", "como marco horário?", contract.ChannelText)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.HasPrefix(res.RouteTaken, "front:pack:") {
		t.Fatalf("route = %s", res.RouteTaken)
	}
	if res.ReplyText == "" {
		t.Fatalf("empty reply")
	}
}

func TestSendLinkDecisionEndsConversation(t *testing.T) {
	t.Parallel()
	llm := &scriptedCompleter{
		text:  `{"replyText": "Fechado! O link tá no site. Até já?", "understanding": {"topic": "ORCAMENTO", "confidence": "high"}, "nextStep": "SEND_LINK", "shouldEnd": true}`,
		usage: contract.TokenUsage{Input: 100, Output: 30},
	}
	svc := buildService(t, buildOpts{mode: contract.RolloutOn, llm: llm})

	res, err := svc.Orchestrate(context.Background(), "acme", "5511988880007", "quero assinar, me manda o link", contract.ChannelText)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.RouteTaken != "front:send_link" || res.NextStep != contract.StepSendLink || !res.ShouldEndConversation {
		t.Fatalf("got %+v", res)
	}
	if res.TokenUsage.Total() != 130 {
		t.Fatalf("usage = %+v", res.TokenUsage)
	}
}

func TestAmbiguousDecisionAsksOneQuestion(t *testing.T) {
	t.Parallel()
	llm := &scriptedCompleter{
		text:  `{"understanding": {"topic": "OTHER", "confidence": "low"}, "needsClarify": true, "nextStep": "NONE"}`,
		usage: contract.TokenUsage{Input: 40, Output: 15},
	}
	svc := buildService(t, buildOpts{mode: contract.RolloutOn, llm: llm})

	res, err := svc.Orchestrate(context.Background(), "acme", "5511988880012", "hmm e aquilo outro?", contract.ChannelText)
	if err != nil {
		t.Fatalf("orchestrate: %v", err)
	}
	if res.RouteTaken != "front:clarify" {
		t.Fatalf("route = %s, want front:clarify", res.RouteTaken)
	}
	if res.ReplyText != front.FallbackReply {
		t.Fatalf("reply = %q, want the fixed clarify question", res.ReplyText)
	}
	if strings.Count(res.ReplyText, "?") != 1 {
		t.Fatalf("clarify reply must carry exactly one question: %q", res.ReplyText)
	}
}

func TestFrontUsageIncrementsTurnCounter(t *testing.T) {
	t.Parallel()
	kv := cache.New(nil)
	st := state.New(nil, state.Config{})
	guard := budget.New(kv, budget.Config{MonthlyUSD: 100, MinRemainLLM: 1, LLMDailyCap: 1000, EnableLLM: true})
	llm := &scriptedCompleter{
		text:  `{"understanding": {"topic": "PRECO", "confidence": "high"}, "nextStep": "NONE"}`,
		usage: contract.TokenUsage{Input: 50, Output: 20},
	}
	svc, err := New(router.New(router.Config{Mode: contract.RolloutOn}, kv), st, nil, front.New(llm, guard), pack.NewRenderer(nil), guard, nil, nil, Config{})
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := svc.Orchestrate(ctx, "acme", "5511988880008", "quanto custa?", contract.ChannelText); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}
	got, ok := st.Get(ctx, "acme", "5511988880008")
	if !ok || got.AITurns != 3 {
		t.Fatalf("turns = %+v ok=%v, want 3", got, ok)
	}
}

func TestVoiceChannelPreserved(t *testing.T) {
	t.Parallel()
	svc := buildService(t, buildOpts{mode: contract.RolloutOn})

	res, err := svc.Orchestrate(context.Background(), "acme", "5511988880009", "vocês fazem software sob medida?", contract.ChannelVoice)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.PreferredChannel != contract.ChannelVoice {
		t.Fatalf("channel = %s", res.PreferredChannel)
	}
	if res.TraceID == "" {
		t.Fatalf("trace id missing")
	}
}
