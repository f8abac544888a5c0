package contract

// ChannelHint tells the engine whether the inbound message arrived as text or
// as transcribed voice, so replies can prefer a copy-pasteable or a spoken
// style.
type ChannelHint string

const (
	ChannelText  ChannelHint = "text"
	ChannelVoice ChannelHint = "voice"
)

// Fit is the router's scope decision for one message.
type Fit string

const (
	FitInScope    Fit = "in_scope"
	FitUnclear    Fit = "unclear"
	FitOutOfScope Fit = "out_of_scope"
)

// Intent is the closed routing vocabulary. Values outside this set are
// clamped to IntentOther at the collaborator boundary.
type Intent string

const (
	IntentWhatIs          Intent = "WHAT_IS"
	IntentPrice           Intent = "PRICE"
	IntentSchedule        Intent = "SCHEDULE"
	IntentOrders          Intent = "ORDERS"
	IntentStatus          Intent = "STATUS"
	IntentActivate        Intent = "ACTIVATE"
	IntentVoice           Intent = "VOICE"
	IntentSocial          Intent = "SOCIAL"
	IntentOfftopic        Intent = "OFFTOPIC"
	IntentCustomRequest   Intent = "CUSTOM_REQUEST"
	IntentPersonalMessage Intent = "PERSONAL_MESSAGE"
	IntentOther           Intent = "OTHER"
)

// RouteBox names the box a message is dispatched to.
type RouteBox string

const (
	BoxClarify    RouteBox = "clarify"
	BoxRedirect   RouteBox = "redirect"
	BoxSpecialist RouteBox = "specialized_handler"
	BoxLLMFront   RouteBox = "llm_front"
)

type NextStep string

const (
	StepNone     NextStep = "none"
	StepSendLink NextStep = "send_link"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type RenderMode string

const (
	RenderShort RenderMode = "short"
	RenderLong  RenderMode = "long"
)

// RolloutMode controls whether the router is allowed to affect replies.
type RolloutMode string

const (
	RolloutOff    RolloutMode = "off"
	RolloutShadow RolloutMode = "shadow"
	RolloutCanary RolloutMode = "canary"
	RolloutOn     RolloutMode = "on"
)

type TokenUsage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
}

func (u TokenUsage) Total() int64 { return u.Input + u.Output }

func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{Input: u.Input + other.Input, Output: u.Output + other.Output}
}

// RoutingPlan is the router's transient output for one message. It is never
// persisted as-is; only out_of_scope/unclear plans are memoized.
type RoutingPlan struct {
	Version  int         `json:"v"`
	Mode     RolloutMode `json:"mode"`
	Fit      Fit         `json:"fit"`
	Intent   Intent      `json:"intent"`
	RouteBox RouteBox    `json:"route_box"`
	NextStep NextStep    `json:"next_step"`
	Handled  bool        `json:"handled"`

	// ReplyText is non-empty iff Handled is true.
	ReplyText string `json:"reply_text"`

	// Reason is diagnostic only, never shown to the end user.
	Reason string `json:"reason"`
}

// ReplyResult is the engine's external contract. ReplyText carries at most
// one question mark; the orchestrator enforces that before returning.
type ReplyResult struct {
	ReplyText             string      `json:"reply_text"`
	PreferredChannel      ChannelHint `json:"preferred_channel"`
	RouteTaken            string      `json:"route_taken"`
	NextStep              NextStep    `json:"next_step"`
	ShouldEndConversation bool        `json:"should_end_conversation"`
	TokenUsage            TokenUsage  `json:"token_usage"`
	TraceID               string      `json:"trace_id,omitempty"`
}

// Decision is the Bounded LLM Front's structured output. The front is a
// classifier, not a copywriter: ReplyText/SpokenText are populated only when
// NextStep is send_link.
type Decision struct {
	Intent       Intent     `json:"intent"`
	Confidence   Confidence `json:"confidence"`
	NeedsClarify bool       `json:"needs_clarify"`
	PackProfile  string     `json:"pack_profile,omitempty"`
	RenderMode   RenderMode `json:"render_mode"`
	SegmentKey   string     `json:"segment_key,omitempty"`
	NextStep     NextStep   `json:"next_step"`
	ShouldEnd    bool       `json:"should_end"`
	ReplyText    string     `json:"reply_text,omitempty"`
	SpokenText   string     `json:"spoken_text,omitempty"`
	TokenUsage   TokenUsage `json:"token_usage"`
}

// NLUSignals are optional upstream classifier hints the router may consume.
type NLUSignals struct {
	Route              string     `json:"route,omitempty"`
	Intent             Intent     `json:"intent,omitempty"`
	Confidence         Confidence `json:"confidence,omitempty"`
	NeedsClarification bool       `json:"needs_clarification,omitempty"`
	ClarifyingQuestion string     `json:"clarifying_question,omitempty"`
}

// ConversationContext is the explicit per-message context passed to handlers
// and the LLM front. There is no process-wide conversation state.
type ConversationContext struct {
	TraceID     string
	Tenant      string
	ContactKey  string
	ChannelHint ChannelHint

	// AITurns is the contact's consumed LLM-turn count before this message.
	AITurns uint

	IsLead      bool
	DisplayName string
	LastIntent  Intent

	// KBSnapshot is the size-capped tenant catalog/persona snapshot. Opaque
	// to the engine.
	KBSnapshot string

	NLU *NLUSignals
}
