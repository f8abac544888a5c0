package pack

import (
	"strings"
	"testing"

	"github.com/crisalvesdev/atendebot/engine/contract"
)

func TestSelectionOrder(t *testing.T) {
	t.Parallel()
	r := NewRenderer(DefaultKnowledgeBase())

	// explicit pack id wins
	out := r.Render(Request{Intent: contract.IntentSchedule, PackID: PackPedidos})
	if out.PackID != PackPedidos {
		t.Fatalf("explicit pack id ignored: got %s", out.PackID)
	}

	// unknown explicit id falls through to segment preference
	out = r.Render(Request{Intent: contract.IntentPrice, Segment: "salao", PackID: "PACK_X_NOPE"})
	if out.PackID != PackAgenda {
		t.Fatalf("segment preference not applied: got %s", out.PackID)
	}

	// intent profile when no segment
	out = r.Render(Request{Intent: contract.IntentOrders})
	if out.PackID != PackPedidos {
		t.Fatalf("orders profile: got %s", out.PackID)
	}
	out = r.Render(Request{Intent: contract.IntentActivate})
	if out.PackID != PackStatus {
		t.Fatalf("activate profile: got %s", out.PackID)
	}

	// unknown intent falls back to the generic pack
	out = r.Render(Request{Intent: contract.IntentOfftopic})
	if out.PackID != PackServicos {
		t.Fatalf("generic fallback: got %s", out.PackID)
	}
}

func TestDoNotUseReplacement(t *testing.T) {
	t.Parallel()
	r := NewRenderer(DefaultKnowledgeBase())

	// oficina forbids PACK_A_AGENDA even when asked for explicitly
	out := r.Render(Request{Intent: contract.IntentSchedule, Segment: "oficina", PackID: PackAgenda})
	if out.PackID != PackServicos {
		t.Fatalf("do_not_use not enforced: got %s", out.PackID)
	}
}

func TestTokenSubstitution(t *testing.T) {
	t.Parallel()
	r := NewRenderer(DefaultKnowledgeBase())

	// segment token overrides the pack default
	out := r.Render(Request{Intent: contract.IntentSchedule, Segment: "salao"})
	if !strings.Contains(out.ReplyText, "corte e escova") {
		t.Fatalf("segment token not applied: %q", out.ReplyText)
	}

	// no segment: slot default is used and no {{...}} leaks
	out = r.Render(Request{Intent: contract.IntentSchedule})
	if !strings.Contains(out.ReplyText, "seu atendimento") {
		t.Fatalf("slot default not applied: %q", out.ReplyText)
	}
	if strings.Contains(out.ReplyText, "{{") {
		t.Fatalf("placeholder leaked: %q", out.ReplyText)
	}
}

func TestExampleLineAppendedOnce(t *testing.T) {
	t.Parallel()
	r := NewRenderer(DefaultKnowledgeBase())

	out := r.Render(Request{Intent: contract.IntentSchedule, Segment: "salao"})
	ex := "a cliente marca a escova de quinta"
	if strings.Count(out.ReplyText, ex) != 1 {
		t.Fatalf("example line count != 1 in %q", out.ReplyText)
	}
}

func TestRenderModes(t *testing.T) {
	t.Parallel()
	r := NewRenderer(DefaultKnowledgeBase())

	short := r.Render(Request{Intent: contract.IntentOrders, RenderMode: contract.RenderShort})
	long := r.Render(Request{Intent: contract.IntentOrders, RenderMode: contract.RenderLong})
	if short.ReplyText == long.ReplyText {
		t.Fatalf("short and long renders should differ")
	}
	if len(long.ReplyText) <= len(short.ReplyText) {
		t.Fatalf("long render should be longer: short=%d long=%d", len(short.ReplyText), len(long.ReplyText))
	}

	// invalid mode falls back to the policy default
	out := r.Render(Request{Intent: contract.IntentOrders, RenderMode: contract.RenderMode("weird")})
	if out.RenderMode != contract.RenderShort {
		t.Fatalf("default render mode: got %s", out.RenderMode)
	}
}

func TestSegmentQuestionPolicy(t *testing.T) {
	t.Parallel()
	kb := DefaultKnowledgeBase()
	kb.Policy.AskSegmentOnlyIfNeeded = false
	r := NewRenderer(kb)

	out := r.Render(Request{Intent: contract.IntentOrders})
	if !strings.Contains(out.ReplyText, kb.Policy.SegmentQuestion) {
		t.Fatalf("segment question not appended: %q", out.ReplyText)
	}
	if strings.Count(out.ReplyText, "?") != 1 {
		t.Fatalf("want exactly one question mark: %q", out.ReplyText)
	}

	// already has a segment: no question
	out = r.Render(Request{Intent: contract.IntentOrders, Segment: "salao"})
	if strings.Contains(out.ReplyText, kb.Policy.SegmentQuestion) {
		t.Fatalf("question appended despite known segment: %q", out.ReplyText)
	}
}

func TestDeterminism(t *testing.T) {
	t.Parallel()
	r := NewRenderer(DefaultKnowledgeBase())
	req := Request{Intent: contract.IntentStatus, Segment: "oficina", RenderMode: contract.RenderLong}

	first := r.Render(req)
	for i := 0; i < 50; i++ {
		if got := r.Render(req); got != first {
			t.Fatalf("render not deterministic: %+v vs %+v", got, first)
		}
	}
}
