// Package front is the bounded LLM front: one chat completion per call,
// structured classification out, free text only on the send-link close.
package front

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/crisalvesdev/atendebot/engine/budget"
	"github.com/crisalvesdev/atendebot/engine/contract"
	"github.com/crisalvesdev/atendebot/pkg/metrics"
)

const (
	kbSnapshotMaxChars = 2500
	answerMaxTokens    = 260
	temperature        = 0.5
)

// FallbackReply is returned whenever the model fails or produces output we
// cannot parse. It is a single safe clarifying question.
const FallbackReply = "Me conta um pouquinho melhor o que você quer resolver?"

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// topic enum the model answers with. Mapped onto the router's intent
// vocabulary before the decision leaves this package.
var topicToIntent = map[string]contract.Intent{
	"AGENDA":    contract.IntentSchedule,
	"PRECO":     contract.IntentPrice,
	"ORCAMENTO": contract.IntentActivate,
	"VOZ":       contract.IntentVoice,
	"SOCIAL":    contract.IntentSocial,
	"OTHER":     contract.IntentOther,
}

// StateSummary is the compact conversation state handed to the model.
type StateSummary struct {
	AITurns    uint
	IsLead     bool
	NameHint   string
	LastIntent contract.Intent
}

// Front classifies one user message and, on a close-of-sale signal, writes
// the closing line itself.
type Front struct {
	llm   contract.Completer
	guard *budget.Guard
	log   zerolog.Logger
}

func New(llm contract.Completer, guard *budget.Guard) *Front {
	return &Front{
		llm:   llm,
		guard: guard,
		log:   log.With().Str("component", "front").Logger(),
	}
}

// Decide runs one classification turn. It never returns an error: any
// failure degrades to a safe clarifying decision.
func (f *Front) Decide(ctx context.Context, tenant, userText string, state StateSummary, kbSnapshot string) contract.Decision {
	kbSnapshot = strings.TrimSpace(kbSnapshot)
	if len(kbSnapshot) > kbSnapshotMaxChars {
		kbSnapshot = truncateRunes(kbSnapshot, kbSnapshotMaxChars)
	}

	comp, err := f.llm.Complete(ctx, systemPrompt, f.userPrompt(userText, state, kbSnapshot), answerMaxTokens, temperature)
	if err != nil {
		f.log.Warn().Err(err).Str("tenant", tenant).Msg("completion failed")
		metrics.LLMFallbacks.WithLabelValues("invoke_error").Inc()
		return f.fallback(contract.TokenUsage{})
	}
	f.guard.Record(ctx, tenant, budget.OpLLMMessage, 1)

	dec, err := f.parse(comp.Text, kbSnapshot)
	if err != nil {
		f.log.Warn().Err(err).Str("tenant", tenant).Msg("unparsable model output")
		metrics.LLMFallbacks.WithLabelValues("parse_error").Inc()
		return f.fallback(comp.Usage)
	}
	dec.TokenUsage = comp.Usage

	f.log.Info().
		Str("tenant", tenant).
		Uint("ai_turns", state.AITurns).
		Str("intent", string(dec.Intent)).
		Str("confidence", string(dec.Confidence)).
		Str("next_step", string(dec.NextStep)).
		Bool("should_end", dec.ShouldEnd).
		Int("kb_chars", len(kbSnapshot)).
		Msg("decision")
	return dec
}

func (f *Front) userPrompt(userText string, state StateSummary, kbSnapshot string) string {
	lastIntent := string(state.LastIntent)
	if lastIntent == "" {
		lastIntent = "NONE"
	}
	return fmt.Sprintf(userPromptTemplate, userText, state.AITurns, lastIntent, kbSnapshot)
}

// modelOutput mirrors the JSON contract the prompt asks for.
type modelOutput struct {
	ReplyText     string `json:"replyText"`
	Understanding struct {
		Topic      string `json:"topic"`
		Confidence string `json:"confidence"`
	} `json:"understanding"`
	NeedsClarify bool   `json:"needsClarify"`
	SegmentKey   string `json:"segmentKey"`
	RenderMode   string `json:"renderMode"`
	NextStep     string `json:"nextStep"`
	ShouldEnd    bool   `json:"shouldEnd"`
}

func (f *Front) parse(raw, kbSnapshot string) (contract.Decision, error) {
	// Models wrap JSON in prose or ```json fences; take the outermost object.
	obj := jsonObjectRe.FindString(raw)
	if obj == "" {
		return contract.Decision{}, fmt.Errorf("%w: no json object in output", contract.ErrUnparsableLLMOutput)
	}
	var out modelOutput
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return contract.Decision{}, fmt.Errorf("%w: %v", contract.ErrUnparsableLLMOutput, err)
	}

	intent, ok := topicToIntent[strings.ToUpper(strings.TrimSpace(out.Understanding.Topic))]
	if !ok {
		intent = contract.IntentOther
	}

	conf := contract.Confidence(strings.ToLower(strings.TrimSpace(out.Understanding.Confidence)))
	switch conf {
	case contract.ConfidenceHigh, contract.ConfidenceMedium, contract.ConfidenceLow:
	default:
		conf = contract.ConfidenceLow
	}

	mode := contract.RenderMode(strings.ToLower(strings.TrimSpace(out.RenderMode)))
	if mode != contract.RenderLong {
		mode = contract.RenderShort
	}

	step := contract.StepNone
	if strings.EqualFold(strings.TrimSpace(out.NextStep), "SEND_LINK") {
		step = contract.StepSendLink
	}

	dec := contract.Decision{
		Intent:       intent,
		Confidence:   conf,
		NeedsClarify: out.NeedsClarify || conf == contract.ConfidenceLow,
		PackProfile:  profileFor(intent),
		RenderMode:   mode,
		SegmentKey:   strings.ToLower(strings.TrimSpace(out.SegmentKey)),
		NextStep:     step,
		ShouldEnd:    out.ShouldEnd,
	}

	// Free text leaves the front only on the terminal send-link action.
	if step == contract.StepSendLink {
		text := sanitizeReply(out.ReplyText, kbSnapshot, intent)
		if text == "" {
			text = FallbackReply
		}
		dec.ReplyText = text
		dec.SpokenText = text
	}
	return dec, nil
}

func (f *Front) fallback(usage contract.TokenUsage) contract.Decision {
	return contract.Decision{
		Intent:       contract.IntentOther,
		Confidence:   contract.ConfidenceLow,
		NeedsClarify: true,
		RenderMode:   contract.RenderShort,
		NextStep:     contract.StepNone,
		ReplyText:    FallbackReply,
		TokenUsage:   usage,
	}
}

func profileFor(intent contract.Intent) string {
	switch intent {
	case contract.IntentOrders:
		return "by_orders"
	case contract.IntentSchedule, contract.IntentPrice, contract.IntentWhatIs:
		return "by_schedule"
	case contract.IntentStatus, contract.IntentActivate:
		return "by_status"
	}
	return ""
}
