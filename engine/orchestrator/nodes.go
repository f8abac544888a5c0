package orchestrator

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/crisalvesdev/atendebot/engine/budget"
	"github.com/crisalvesdev/atendebot/engine/contract"
	"github.com/crisalvesdev/atendebot/engine/front"
	"github.com/crisalvesdev/atendebot/engine/pack"
)

// GraphInput is one inbound message.
type GraphInput struct {
	Tenant      string
	ContactKey  string
	Text        string
	ChannelHint contract.ChannelHint
	NLU         *contract.NLUSignals
}

// GraphOutput is the engine's reply.
type GraphOutput = contract.ReplyResult

// GraphState is threaded through the pipeline. Once Result is set the
// remaining nodes pass it through untouched.
type GraphState struct {
	Input GraphInput
	Conv  *contract.ConversationContext
	Plan  contract.RoutingPlan

	Result *contract.ReplyResult
}

func (s *GraphState) done() bool { return s != nil && s.Result != nil }

func (s *GraphState) finish(res *contract.ReplyResult) *GraphState {
	s.Result = res
	return s
}

// validateRequest normalizes the input and opens the conversation context.
// An empty message short-circuits to the clarify fallback instead of erroring.
func (o *Service) validateRequest(in GraphInput) (*GraphState, error) {
	in.Tenant = strings.TrimSpace(in.Tenant)
	in.ContactKey = strings.TrimSpace(in.ContactKey)
	in.Text = strings.TrimSpace(in.Text)
	if in.ChannelHint != contract.ChannelVoice {
		in.ChannelHint = contract.ChannelText
	}

	st := &GraphState{
		Input: in,
		Conv: &contract.ConversationContext{
			TraceID:     uuid.NewString(),
			Tenant:      in.Tenant,
			ContactKey:  in.ContactKey,
			ChannelHint: in.ChannelHint,
			NLU:         in.NLU,
		},
	}

	if in.Tenant == "" || in.Text == "" {
		return st.finish(&contract.ReplyResult{
			ReplyText:        front.FallbackReply,
			PreferredChannel: in.ChannelHint,
			RouteTaken:       "validate:clarify",
			NextStep:         contract.StepNone,
		}), nil
	}
	return st, nil
}

// loadState hydrates the contact's durable counters and the tenant snapshot.
// Both reads are best-effort.
func (o *Service) loadState(ctx context.Context, st *GraphState) (*GraphState, error) {
	if st.done() {
		return st, nil
	}

	if cs, ok := o.state.Get(ctx, st.Input.Tenant, st.Input.ContactKey); ok {
		st.Conv.AITurns = cs.AITurns
		st.Conv.DisplayName = cs.DisplayName
	}

	// Unknown contacts are leads; a failed lookup degrades to lead too.
	st.Conv.IsLead = true
	if o.audience != nil {
		isCustomer, err := o.audience.IsCustomer(ctx, st.Input.Tenant, st.Input.ContactKey)
		if err != nil {
			o.log.Warn().Err(err).Str("tenant", st.Input.Tenant).Msg("audience lookup failed")
		} else if isCustomer {
			st.Conv.IsLead = false
		}
	}

	if o.knowledge != nil {
		snap, err := o.knowledge.Snapshot(ctx, st.Input.Tenant, o.cfg.SnapshotMaxChars)
		if err != nil {
			o.log.Warn().Err(err).Str("tenant", st.Input.Tenant).Msg("snapshot load failed")
		} else {
			st.Conv.KBSnapshot = snap
		}
	}
	return st, nil
}

// route consults the router. A handled plan (clarify or redirect in "on"
// mode) terminates the pipeline here.
func (o *Service) route(ctx context.Context, st *GraphState) (*GraphState, error) {
	if st.done() || o.router.Mode() == contract.RolloutOff {
		return st, nil
	}

	st.Plan = o.router.Decide(ctx, st.Input.Tenant, st.Input.Text, st.Input.NLU)
	if !st.Plan.Handled {
		return st, nil
	}

	box := "clarify"
	if st.Plan.RouteBox == contract.BoxRedirect {
		box = "redirect"
	}
	return st.finish(&contract.ReplyResult{
		ReplyText:        st.Plan.ReplyText,
		PreferredChannel: st.Input.ChannelHint,
		RouteTaken:       "router:" + box,
		NextStep:         st.Plan.NextStep,
	}), nil
}

// dispatchHandlers walks the specialized handler chain. ErrNotApplicable
// falls through; any other handler error is logged and also falls through.
func (o *Service) dispatchHandlers(ctx context.Context, st *GraphState) (*GraphState, error) {
	if st.done() {
		return st, nil
	}

	for _, h := range o.handlers {
		res, err := h.GenerateReply(ctx, st.Input.Tenant, st.Input.Text, st.Conv)
		if err != nil {
			if !errors.Is(err, contract.ErrNotApplicable) {
				o.log.Warn().Err(err).Str("tenant", st.Input.Tenant).Msg("handler failed, falling through")
			}
			continue
		}
		if res != nil && strings.TrimSpace(res.ReplyText) != "" {
			return st.finish(res), nil
		}
	}
	return st, nil
}

// invokeFront is the last resort: one bounded LLM classification, rendered
// deterministically, or the pack-only economy path when the budget is out.
func (o *Service) invokeFront(ctx context.Context, st *GraphState) (*GraphState, error) {
	if st.done() {
		return st, nil
	}

	if !o.guard.HasHeadroom(ctx, st.Input.Tenant, budget.OpLLMMessage) {
		reply := o.packs.Render(pack.Request{Intent: st.Plan.Intent})
		return st.finish(&contract.ReplyResult{
			ReplyText:        reply.ReplyText,
			PreferredChannel: st.Input.ChannelHint,
			RouteTaken:       "front:pack_economy",
			NextStep:         contract.StepNone,
		}), nil
	}

	dec := o.front.Decide(ctx, st.Input.Tenant, st.Input.Text, front.StateSummary{
		AITurns:    st.Conv.AITurns,
		IsLead:     st.Conv.IsLead,
		NameHint:   st.Conv.DisplayName,
		LastIntent: st.Conv.LastIntent,
	}, st.Conv.KBSnapshot)

	if dec.TokenUsage.Total() > 0 && st.Input.ContactKey != "" {
		o.state.IncrementTurns(ctx, st.Input.Tenant, st.Input.ContactKey)
	}

	if dec.NextStep == contract.StepSendLink && dec.ReplyText != "" {
		return st.finish(&contract.ReplyResult{
			ReplyText:             dec.ReplyText,
			PreferredChannel:      st.Input.ChannelHint,
			RouteTaken:            "front:send_link",
			NextStep:              contract.StepSendLink,
			ShouldEndConversation: dec.ShouldEnd,
			TokenUsage:            dec.TokenUsage,
		}), nil
	}

	if dec.NeedsClarify {
		// An ambiguous turn terminates in exactly one question; the model
		// only writes text on SEND_LINK, so the fixed template fills in.
		text := dec.ReplyText
		if text == "" {
			text = front.FallbackReply
		}
		return st.finish(&contract.ReplyResult{
			ReplyText:        text,
			PreferredChannel: st.Input.ChannelHint,
			RouteTaken:       "front:clarify",
			NextStep:         contract.StepNone,
			TokenUsage:       dec.TokenUsage,
		}), nil
	}

	reply := o.packs.Render(pack.Request{
		Intent:     dec.Intent,
		Segment:    dec.SegmentKey,
		RenderMode: dec.RenderMode,
	})
	return st.finish(&contract.ReplyResult{
		ReplyText:        reply.ReplyText,
		PreferredChannel: st.Input.ChannelHint,
		RouteTaken:       "front:pack:" + reply.PackID,
		NextStep:         contract.StepNone,
		TokenUsage:       dec.TokenUsage,
	}), nil
}

// finalizeReply enforces the outbound invariants: non-empty text, at most
// one question mark, trace id attached.
func (o *Service) finalizeReply(st *GraphState) (GraphOutput, error) {
	res := st.Result
	if res == nil {
		res = &contract.ReplyResult{
			ReplyText:        front.FallbackReply,
			PreferredChannel: st.Input.ChannelHint,
			RouteTaken:       "fallback:clarify",
			NextStep:         contract.StepNone,
		}
	}
	if strings.TrimSpace(res.ReplyText) == "" {
		res.ReplyText = front.FallbackReply
		res.RouteTaken = "fallback:clarify"
	}
	res.ReplyText = limitQuestions(res.ReplyText)
	if res.PreferredChannel == "" {
		res.PreferredChannel = st.Input.ChannelHint
	}
	if st.Conv != nil {
		res.TraceID = st.Conv.TraceID
	}
	return *res, nil
}

// limitQuestions keeps the first question mark and flattens the rest.
func limitQuestions(text string) string {
	first := strings.IndexByte(text, '?')
	if first < 0 {
		return text
	}
	return text[:first+1] + strings.ReplaceAll(text[first+1:], "?", ".")
}
