package handlers

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/crisalvesdev/atendebot/engine/budget"
	"github.com/crisalvesdev/atendebot/engine/contract"
	"github.com/crisalvesdev/atendebot/engine/state"
)

const (
	customerAnswerMaxTokens = 220
	customerTemperature     = 0.2
)

// CustomerConfig tunes the customer desk per deployment.
type CustomerConfig struct {
	// ShowModeTurns is how many LLM-backed turns a contact gets per
	// conversation window before the economical fallback takes over.
	ShowModeTurns uint `envconfig:"SHOW_MODE_TURNS" split_words:"true" default:"5"`

	SnapshotMaxChars int `envconfig:"SNAPSHOT_MAX_CHARS" split_words:"true" default:"2500"`
	ReplyMaxChars    int `envconfig:"REPLY_MAX_CHARS" split_words:"true" default:"900"`
}

const economicalReply = "Perfeito. Pra eu te ajudar sem enrolar: você quer *preço* ou *agendar*? Se for agendar, me diga o dia e o horário."

const customerSystemPrompt = `Você é um atendente de WhatsApp de um pequeno negócio.
Seja direto, útil e educado.
Use frases curtas.
Nunca invente preço ou horário.
Se faltar dado, faça 1 pergunta objetiva.`

// Customer serves an existing tenant's own customers: archive answers first,
// a short LLM turn while the turn budget lasts, then a fixed economical ask.
type Customer struct {
	llm     contract.Completer
	archive contract.ArchiveSearcher
	catalog contract.KnowledgeProvider
	turns   *state.Store
	guard   *budget.Guard
	cfg     CustomerConfig
	log     zerolog.Logger
}

var _ contract.ReplyHandler = (*Customer)(nil)

func NewCustomer(llm contract.Completer, archive contract.ArchiveSearcher, catalog contract.KnowledgeProvider, turns *state.Store, guard *budget.Guard, cfg CustomerConfig) *Customer {
	if cfg.ShowModeTurns == 0 {
		cfg.ShowModeTurns = 5
	}
	if cfg.SnapshotMaxChars <= 0 {
		cfg.SnapshotMaxChars = 2500
	}
	if cfg.ReplyMaxChars <= 0 {
		cfg.ReplyMaxChars = 900
	}
	return &Customer{
		llm:     llm,
		archive: archive,
		catalog: catalog,
		turns:   turns,
		guard:   guard,
		cfg:     cfg,
		log:     log.With().Str("component", "customer").Logger(),
	}
}

func (h *Customer) GenerateReply(ctx context.Context, tenant, text string, conv *contract.ConversationContext) (*contract.ReplyResult, error) {
	q := strings.TrimSpace(text)
	if tenant == "" || q == "" {
		return nil, contract.ErrNotApplicable
	}
	// Leads belong to the sales funnel, not the customer desk.
	if conv == nil || conv.IsLead {
		return nil, contract.ErrNotApplicable
	}

	contactKey := ""
	channel := contract.ChannelText
	if conv != nil {
		contactKey = conv.ContactKey
		if conv.ChannelHint != "" {
			channel = conv.ChannelHint
		}
	}

	turn := uint(1)
	if contactKey != "" {
		turn = h.turns.IncrementTurns(ctx, tenant, contactKey)
	}

	// Content questions go to the archive first: cheap and assertive.
	if ans := h.fromArchive(ctx, tenant, q); ans != "" {
		return &contract.ReplyResult{
			ReplyText:        ans,
			PreferredChannel: channel,
			RouteTaken:       "customer:archive",
			NextStep:         contract.StepNone,
		}, nil
	}

	if turn <= h.cfg.ShowModeTurns && h.guard.HasHeadroom(ctx, tenant, budget.OpLLMMini) {
		if ans, usage, ok := h.fromLLM(ctx, tenant, q); ok {
			return &contract.ReplyResult{
				ReplyText:        ans,
				PreferredChannel: channel,
				RouteTaken:       "customer:ai",
				NextStep:         contract.StepNone,
				TokenUsage:       usage,
			}, nil
		}
	}

	h.log.Info().Str("tenant", tenant).Uint("turn", turn).Msg("economical reply")
	return &contract.ReplyResult{
		ReplyText:        economicalReply,
		PreferredChannel: channel,
		RouteTaken:       "customer:econ",
		NextStep:         contract.StepNone,
	}, nil
}

func (h *Customer) fromArchive(ctx context.Context, tenant, question string) string {
	if h.archive == nil || len(question) < 8 {
		return ""
	}
	ans, err := h.archive.Answer(ctx, tenant, question)
	if err != nil {
		h.log.Warn().Err(err).Str("tenant", tenant).Msg("archive query failed")
		return ""
	}
	return strings.TrimSpace(ans)
}

func (h *Customer) fromLLM(ctx context.Context, tenant, question string) (string, contract.TokenUsage, bool) {
	snapshot := ""
	if h.catalog != nil {
		snap, err := h.catalog.Snapshot(ctx, tenant, h.cfg.SnapshotMaxChars)
		if err != nil {
			h.log.Warn().Err(err).Str("tenant", tenant).Msg("catalog snapshot failed")
		} else {
			snapshot = strings.TrimSpace(snap)
		}
	}

	prompt := "Mensagem do cliente:\n" + question
	if snapshot != "" {
		prompt += "\n\nCatálogo/Contexto do profissional (resumo):\n" + snapshot
	}

	comp, err := h.llm.Complete(ctx, customerSystemPrompt, prompt, customerAnswerMaxTokens, customerTemperature)
	if err != nil {
		h.log.Warn().Err(err).Str("tenant", tenant).Msg("customer completion failed")
		return "", contract.TokenUsage{}, false
	}
	h.guard.Record(ctx, tenant, budget.OpLLMMini, 1)

	ans := strings.TrimSpace(comp.Text)
	if ans == "" {
		return "", comp.Usage, false
	}
	if len(ans) > h.cfg.ReplyMaxChars {
		ans = strings.TrimSpace(truncateRunes(ans, h.cfg.ReplyMaxChars))
	}
	return ans, comp.Usage, true
}
