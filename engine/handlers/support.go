// Package handlers holds the specialized reply handlers. All of them share
// the contract.ReplyHandler interface and fall through with ErrNotApplicable
// instead of guessing.
package handlers

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/crisalvesdev/atendebot/engine/cache"
	"github.com/crisalvesdev/atendebot/engine/contract"
	"github.com/crisalvesdev/atendebot/engine/docstore"
	"github.com/crisalvesdev/atendebot/engine/state"
)

const (
	supportKBTTL         = 600 * time.Second
	conceptualHeadChars  = 520
	actionMapsCollection = "kb_action_maps"
	articlesCollection   = "kb_articles"
)

// ActionEntry is one canonical how-to answer. Exists=false entries answer
// "that feature does not exist" with a pre-authored line.
type ActionEntry struct {
	Exists   *bool    `json:"exists,omitempty"`
	Answer   string   `json:"answer,omitempty"`
	Goal     string   `json:"goal,omitempty"`
	Steps    []string `json:"steps,omitempty"`
	Notes    []string `json:"notes,omitempty"`
	Required []string `json:"required,omitempty"`
}

// ActionMap is a page's how-to table keyed by detected micro-action.
type ActionMap struct {
	HowTo map[string]ActionEntry `json:"how_to"`
}

// SupportKB serves pre-authored support content per page.
type SupportKB interface {
	ActionMap(ctx context.Context, tenant, page string) (ActionMap, error)
	Article(ctx context.Context, tenant, page string) (string, error)
}

// DocstoreKB reads support content from the document store at
// kb_action_maps/<tenant>__<page> and kb_articles/<tenant>__<page>.
type DocstoreKB struct {
	docs docstore.Store
}

func NewDocstoreKB(docs docstore.Store) *DocstoreKB {
	return &DocstoreKB{docs: docs}
}

func (k *DocstoreKB) ActionMap(ctx context.Context, tenant, page string) (ActionMap, error) {
	path, err := docstore.SanitizePath(actionMapsCollection + "/" + tenant + "__" + page)
	if err != nil {
		return ActionMap{}, err
	}
	doc, err := k.docs.Get(ctx, path)
	if err != nil {
		return ActionMap{}, err
	}
	var am ActionMap
	if err := doc.Decode(&am); err != nil {
		return ActionMap{}, err
	}
	return am, nil
}

func (k *DocstoreKB) Article(ctx context.Context, tenant, page string) (string, error) {
	path, err := docstore.SanitizePath(articlesCollection + "/" + tenant + "__" + page)
	if err != nil {
		return "", err
	}
	doc, err := k.docs.Get(ctx, path)
	if err != nil {
		return "", err
	}
	if body, ok := doc["body"].(string); ok {
		return strings.TrimSpace(body), nil
	}
	return "", nil
}

// Support answers "how do I do X" questions from the action map and concept
// questions from the article head, without an LLM.
type Support struct {
	kb    SupportKB
	cache *cache.Cache
	state *state.Store
	log   zerolog.Logger
}

var _ contract.ReplyHandler = (*Support)(nil)

func NewSupport(kb SupportKB, kv *cache.Cache, st *state.Store) *Support {
	return &Support{
		kb:    kb,
		cache: kv,
		state: st,
		log:   log.With().Str("component", "support").Logger(),
	}
}

func (h *Support) GenerateReply(ctx context.Context, tenant, text string, conv *contract.ConversationContext) (*contract.ReplyResult, error) {
	q := strings.TrimSpace(text)
	if tenant == "" || q == "" {
		return nil, contract.ErrNotApplicable
	}

	if name := learnedName(q); name != "" && conv != nil && conv.ContactKey != "" {
		h.state.SetDisplayName(ctx, tenant, conv.ContactKey, name)
	}
	channel := contract.ChannelHint("")
	if conv != nil {
		channel = conv.ChannelHint
	}
	if wantsText(q) {
		channel = contract.ChannelText
	}

	page := detectPage(q)
	if page == "" {
		return nil, contract.ErrNotApplicable
	}

	if ans := h.fromActionMap(ctx, tenant, page, q); ans != "" {
		return &contract.ReplyResult{
			ReplyText:        ans,
			PreferredChannel: channel,
			RouteTaken:       "support:" + page + ":action_map",
			NextStep:         contract.StepNone,
		}, nil
	}

	if looksConceptual(q) {
		if ans := h.fromArticle(ctx, tenant, page); ans != "" {
			return &contract.ReplyResult{
				ReplyText:        ans,
				PreferredChannel: channel,
				RouteTaken:       "support:" + page + ":article",
				NextStep:         contract.StepNone,
			}, nil
		}
	}

	return nil, contract.ErrNotApplicable
}

func (h *Support) fromActionMap(ctx context.Context, tenant, page, text string) string {
	am, ok := h.cachedActionMap(ctx, tenant, page)
	if !ok || len(am.HowTo) == 0 {
		return ""
	}

	action := ""
	if page == "contatos" {
		action = detectContactsAction(text)
	}
	if action == "" {
		return ""
	}

	entry, ok := am.HowTo[action]
	if !ok {
		return ""
	}
	if entry.Exists != nil && !*entry.Exists {
		return strings.TrimSpace(entry.Answer)
	}
	return renderSteps(entry)
}

func (h *Support) fromArticle(ctx context.Context, tenant, page string) string {
	body, ok := h.cachedArticle(ctx, tenant, page)
	if !ok || body == "" {
		return ""
	}
	head := articleHead(body, conceptualHeadChars)
	if head == "" {
		return ""
	}
	return head + " Se tu me disser o que quer fazer primeiro, eu te digo o caminho mais rápido, combinado?"
}

func (h *Support) cachedActionMap(ctx context.Context, tenant, page string) (ActionMap, bool) {
	key := cache.MakeKey(tenant, "action_map", page)
	var am ActionMap
	if h.cache.Get(ctx, "support_kb", key, &am) {
		return am, true
	}
	am, err := h.kb.ActionMap(ctx, tenant, page)
	if err != nil {
		h.log.Warn().Err(err).Str("tenant", tenant).Str("page", page).Msg("action map lookup failed")
		return ActionMap{}, false
	}
	h.cache.Put(ctx, "support_kb", key, am, supportKBTTL)
	return am, true
}

func (h *Support) cachedArticle(ctx context.Context, tenant, page string) (string, bool) {
	key := cache.MakeKey(tenant, "article", page)
	var body string
	if h.cache.Get(ctx, "support_kb", key, &body) {
		return body, true
	}
	body, err := h.kb.Article(ctx, tenant, page)
	if err != nil {
		h.log.Warn().Err(err).Str("tenant", tenant).Str("page", page).Msg("article lookup failed")
		return "", false
	}
	h.cache.Put(ctx, "support_kb", key, body, supportKBTTL)
	return body, true
}

// renderSteps keeps the canonical shape: goal line, minimum-required line,
// numbered steps, one trailing tip.
func renderSteps(entry ActionEntry) string {
	var lines []string
	if goal := strings.TrimSpace(entry.Goal); goal != "" {
		lines = append(lines, goal+".")
	}
	if len(entry.Required) > 0 {
		var req []string
		for _, r := range entry.Required {
			if r = strings.TrimSpace(r); r != "" {
				req = append(req, r)
			}
		}
		if len(req) > 0 {
			lines = append(lines, "Pra salvar, o mínimo é: "+strings.Join(req, ", ")+".")
		}
	}
	n := 0
	for _, step := range entry.Steps {
		if step = strings.TrimSpace(step); step != "" {
			n++
			lines = append(lines, strconv.Itoa(n)+") "+step)
		}
	}
	if len(entry.Notes) > 0 {
		if tip := strings.TrimSpace(entry.Notes[0]); tip != "" {
			lines = append(lines, tip)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

var blankRunRe = regexp.MustCompile(`\n{3,}`)
var wsRunRe = regexp.MustCompile(`\s+`)

// articleHead takes the first one or two paragraphs, collapses whitespace and
// closes the sentence so the result reads well spoken aloud.
func articleHead(body string, maxChars int) string {
	txt := blankRunRe.ReplaceAllString(strings.TrimSpace(body), "\n\n")
	var parts []string
	for _, p := range strings.Split(txt, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
		if len(parts) == 2 {
			break
		}
	}
	head := wsRunRe.ReplaceAllString(strings.Join(parts, " "), " ")
	head = strings.TrimSpace(head)
	if len(head) > maxChars {
		cut := head[:maxChars]
		if i := strings.LastIndexByte(cut, ' '); i > 0 {
			cut = cut[:i]
		}
		head = strings.TrimSpace(cut)
	}
	if head != "" && !strings.ContainsAny(head[len(head)-1:], ".!?") {
		head += "."
	}
	return head
}

func detectPage(text string) string {
	t := norm(text)
	for _, k := range []string{"contato", "contatos", "acervo", "autorização", "autorizacao", "csv"} {
		if strings.Contains(t, k) {
			return "contatos"
		}
	}
	return ""
}

func detectContactsAction(text string) string {
	t := norm(text)
	has := func(keys ...string) bool {
		for _, k := range keys {
			if strings.Contains(t, k) {
				return true
			}
		}
		return false
	}
	switch {
	case has("foto", "imagem no contato", "foto de perfil", "perfil do contato", "avatar"):
		return "foto_no_contato"
	case has("novo contato", "criar contato", "cadastrar contato", "lançar contato", "adicionar contato"):
		return "criar_contato"
	case has("acervo", "anexar", "anexo", "pdf", "arquivo", "enviar arquivo", "tamanho", "limite", "mb", "gb", "capacidade"):
		return "abrir_acervo"
	case has("autorização", "autorizacao", "optin", "janela 24"):
		return "autorizacao_whatsapp"
	case has("csv", "import"):
		return "importar_csv"
	}
	return ""
}

func looksConceptual(text string) bool {
	t := norm(text)
	for _, k := range []string{
		"pra que serve", "para que serve", "o que é", "como funciona",
		"qual a diferença", "diferença",
		"tamanho", "limite", "capacidade", "quanto cabe", "quanto posso",
		"qual o máximo", "máximo", "mb", "gb", "arquivo grande",
	} {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

func wantsText(text string) bool {
	t := norm(text)
	for _, k := range []string{
		"só texto", "somente texto", "apenas texto",
		"por texto", "por escrito", "me manda escrito",
		"passo a passo por texto", "me manda a instrução",
	} {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmeu nome é\s+([A-Za-zÀ-ÿ]{2,})\b`),
	regexp.MustCompile(`(?i)\baqui é\s+([A-Za-zÀ-ÿ]{2,})\b`),
	regexp.MustCompile(`(?i)\bnão é\s+[A-Za-zÀ-ÿ]{2,}\s*,?\s*é\s+([A-Za-zÀ-ÿ]{2,})\b`),
	regexp.MustCompile(`(?i)\bnão sou\s+[A-Za-zÀ-ÿ]{2,}\s*,?\s*sou\s+([A-Za-zÀ-ÿ]{2,})\b`),
}

func learnedName(text string) string {
	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
