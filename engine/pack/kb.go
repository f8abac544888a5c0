// Package pack renders deterministic value-pack replies from a tenant's
// knowledge base. No network, no randomness: same inputs, same bytes out.
package pack

// Pack ids used as fallbacks. Tenants can define more.
const (
	PackAgenda   = "PACK_A_AGENDA"
	PackServicos = "PACK_B_SERVICOS"
	PackPedidos  = "PACK_C_PEDIDOS"
	PackStatus   = "PACK_D_STATUS"
)

// Slot is one template placeholder with its default value.
type Slot struct {
	Default string `json:"default"`
}

// Pack holds one value pack's templates and slot defaults.
type Pack struct {
	Slots map[string]Slot `json:"segment_slots,omitempty"`
	Short string          `json:"short"`
	Long  string          `json:"long"`
}

// Segment customizes pack selection and slot values for one business type.
type Segment struct {
	PreferredPacks []string                     `json:"preferred_packs,omitempty"`
	DoNotUse       []string                     `json:"do_not_use,omitempty"`
	Tokens         map[string]map[string]string `json:"tokens,omitempty"`
}

// Policy controls render defaults and segment questioning.
type Policy struct {
	DefaultRenderMode      string `json:"default_render_mode,omitempty"`
	AskSegmentOnlyIfNeeded bool   `json:"ask_segment_only_if_needed,omitempty"`
	SegmentQuestion        string `json:"segment_question_text,omitempty"`
}

// KnowledgeBase is the per-tenant pack configuration.
type KnowledgeBase struct {
	Policy          Policy             `json:"policy"`
	Segments        map[string]Segment `json:"segments,omitempty"`
	ProfileDefaults map[string][]string `json:"profile_defaults,omitempty"`
	Packs           map[string]Pack    `json:"packs"`
}

// DefaultKnowledgeBase returns the stock packs shipped to tenants that have
// not customized their KB yet.
func DefaultKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		Policy: Policy{
			DefaultRenderMode:      "short",
			AskSegmentOnlyIfNeeded: true,
			SegmentQuestion:        "Qual é seu tipo de negócio?",
		},
		ProfileDefaults: map[string][]string{
			"by_orders":   {PackPedidos},
			"by_schedule": {PackAgenda},
			"by_status":   {PackStatus},
		},
		Segments: map[string]Segment{
			"salao": {
				PreferredPacks: []string{PackAgenda},
				Tokens: map[string]map[string]string{
					PackAgenda: {"servico": "corte e escova", "example_line": "Ex.: a cliente marca a escova de quinta direto pelo WhatsApp."},
				},
			},
			"oficina": {
				PreferredPacks: []string{PackStatus},
				DoNotUse:       []string{PackAgenda},
				Tokens: map[string]map[string]string{
					PackStatus: {"item": "o carro"},
				},
			},
		},
		Packs: map[string]Pack{
			PackAgenda: {
				Slots: map[string]Slot{
					"servico":      {Default: "seu atendimento"},
					"example_line": {Default: ""},
				},
				Short: "Seus clientes marcam {{servico}} direto pelo WhatsApp e você recebe tudo organizado, sem papel.",
				Long:  "A agenda funciona assim: o cliente manda mensagem, escolhe o horário de {{servico}} e pronto. Você vê tudo num lugar só, recebe lembrete e o cliente também. Sem caderno, sem horário furado.",
			},
			PackServicos: {
				Slots: map[string]Slot{
					"example_line": {Default: ""},
				},
				Short: "A gente responde seus clientes no WhatsApp: agenda, pedidos e dúvidas, tudo automático.",
				Long:  "O serviço cuida do seu WhatsApp: responde dúvidas comuns, anota pedidos, marca horários e te avisa do que precisa de você. Você configura uma vez e ele trabalha o dia todo.",
			},
			PackPedidos: {
				Slots: map[string]Slot{
					"produto":      {Default: "seus produtos"},
					"example_line": {Default: ""},
				},
				Short: "Os pedidos de {{produto}} chegam prontos: item, quantidade e endereço, sem você digitar nada.",
				Long:  "Quando o cliente pede {{produto}}, o assistente anota item por item, confirma o endereço e te entrega o pedido fechado. Você só prepara e envia.",
			},
			PackStatus: {
				Slots: map[string]Slot{
					"item":         {Default: "o serviço"},
					"example_line": {Default: ""},
				},
				Short: "Seu cliente pergunta \"e aí, como tá?\" e recebe o status de {{item}} na hora, sem te interromper.",
				Long:  "Cada vez que você atualiza o andamento, o assistente já sabe responder quando o cliente perguntar por {{item}}. Menos cobrança no seu telefone, cliente mais tranquilo.",
			},
		},
	}
}
