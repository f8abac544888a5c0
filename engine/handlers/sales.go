package handlers

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/crisalvesdev/atendebot/engine/budget"
	"github.com/crisalvesdev/atendebot/engine/contract"
)

const (
	salesAnswerMaxTokens = 180
	salesTemperature     = 0.4
)

const salesSystemPrompt = `Você é o atendente de VENDAS do Atende Bot no WhatsApp.
Responda em PT-BR, curto, simpático e direto.
Explique valor sem jargão. Faça 1 CTA claro.
Não peça dados sensíveis. Não prometa detalhes técnicos profundos.
Se a pessoa disser apenas 'oi/olá', apresente o produto e pergunte o ramo.
Se perguntar preço, ofereça ver os planos.`

const salesFallbackPitch = `Oi! 👋 Eu sou o Atende Bot.

Eu automatizo seu WhatsApp pra você vender mais e perder menos tempo:
• respondo clientes
• organizo agenda
• ajudo com preços/serviços

Quer que eu te explique os planos? (responde: *planos*)
Ou me diz rapidinho: qual é o seu negócio?`

// Sales answers leads with no tenant relationship yet. One short pitch turn;
// the fixed pitch covers LLM failure and budget exhaustion alike.
type Sales struct {
	llm   contract.Completer
	guard *budget.Guard
	log   zerolog.Logger
}

var _ contract.ReplyHandler = (*Sales)(nil)

func NewSales(llm contract.Completer, guard *budget.Guard) *Sales {
	return &Sales{
		llm:   llm,
		guard: guard,
		log:   log.With().Str("component", "sales").Logger(),
	}
}

func (h *Sales) GenerateReply(ctx context.Context, tenant, text string, conv *contract.ConversationContext) (*contract.ReplyResult, error) {
	// Text leads go through the routed front; this handler covers voice
	// leads, whose messages arrive without a usable transcript.
	if conv == nil || !conv.IsLead || conv.ChannelHint != contract.ChannelVoice {
		return nil, contract.ErrNotApplicable
	}

	q := strings.TrimSpace(text)
	if q == "" {
		q = "Lead enviou um áudio."
	}

	channel := contract.ChannelText
	if conv.ChannelHint != "" {
		channel = conv.ChannelHint
	}

	if h.llm != nil && h.guard.HasHeadroom(ctx, tenant, budget.OpLLMMini) {
		prompt := "Mensagem do lead: " + q + "\n\nResponda como vendas do Atende Bot. Finalize com uma pergunta curta para qualificar o lead."
		comp, err := h.llm.Complete(ctx, salesSystemPrompt, prompt, salesAnswerMaxTokens, salesTemperature)
		if err == nil && strings.TrimSpace(comp.Text) != "" {
			h.guard.Record(ctx, tenant, budget.OpLLMMini, 1)
			return &contract.ReplyResult{
				ReplyText:        strings.TrimSpace(comp.Text),
				PreferredChannel: channel,
				RouteTaken:       "sales:ai",
				NextStep:         contract.StepNone,
				TokenUsage:       comp.Usage,
			}, nil
		}
		if err != nil {
			h.log.Warn().Err(err).Str("tenant", tenant).Msg("sales completion failed")
		}
	}

	return &contract.ReplyResult{
		ReplyText:        salesFallbackPitch,
		PreferredChannel: channel,
		RouteTaken:       "sales:pitch",
		NextStep:         contract.StepNone,
	}, nil
}
