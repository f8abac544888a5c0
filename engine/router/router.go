// Package router is the per-message decider: fit, intent and terminal box,
// computed from cheap detectors and upstream NLU signals, gated by a staged
// rollout flag.
package router

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/crisalvesdev/atendebot/engine/cache"
	"github.com/crisalvesdev/atendebot/engine/contract"
	"github.com/crisalvesdev/atendebot/pkg/metrics"
)

const (
	planVersion      = 1
	normTextMaxChars = 600
)

const (
	reasonNLUClarify      = "nlu_needs_clarification"
	reasonCustomQuote     = "custom_software_quote"
	reasonPersonalMessage = "personal_message_request"
	reasonOfftopic        = "nlu_offtopic"
)

type Config struct {
	Mode        contract.RolloutMode `envconfig:"MODE" split_words:"true" default:"off"`
	CanaryPct   int                  `envconfig:"CANARY_PCT" split_words:"true" default:"10"`
	CacheTTL    time.Duration        `envconfig:"CACHE_TTL" split_words:"true" default:"24h"`
	ProductName string               `envconfig:"PRODUCT_NAME" split_words:"true" default:"Atende Bot"`
	SiteURL     string               `envconfig:"SITE_URL" split_words:"true" default:"www.atendebot.com.br"`
}

// Router computes one RoutingPlan per message. It holds no per-conversation
// state; everything is recomputed from the text and the supplied signals.
type Router struct {
	cfg Config
	kv  *cache.Cache
	log zerolog.Logger
}

func New(cfg Config, kv *cache.Cache) *Router {
	if cfg.Mode != contract.RolloutShadow && cfg.Mode != contract.RolloutCanary && cfg.Mode != contract.RolloutOn {
		cfg.Mode = contract.RolloutOff
	}
	if cfg.CanaryPct <= 0 || cfg.CanaryPct > 100 {
		cfg.CanaryPct = 10
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &Router{
		cfg: cfg,
		kv:  kv,
		log: log.With().Str("component", "router").Logger(),
	}
}

func (r *Router) Mode() contract.RolloutMode { return r.cfg.Mode }

// Decide computes the plan for one message. In shadow the plan is computed
// and memoized but Handled is always false; in canary the normalized text's
// hash bucket picks between on and shadow behavior.
func (r *Router) Decide(ctx context.Context, tenant, text string, nlu *contract.NLUSignals) contract.RoutingPlan {
	norm := normalizeText(text)
	effective := r.effectiveMode(norm)

	plan := contract.RoutingPlan{
		Version:  planVersion,
		Mode:     effective,
		Fit:      contract.FitInScope,
		Intent:   contract.IntentOther,
		RouteBox: contract.BoxSpecialist,
		NextStep: contract.StepNone,
	}
	if nlu != nil && nlu.Intent != "" {
		plan.Intent = nlu.Intent
	}

	if effective == contract.RolloutOff {
		plan.Reason = "router_off"
		metrics.RoutedDecisions.WithLabelValues(string(effective), string(plan.RouteBox)).Inc()
		return plan
	}

	cacheKey := cache.MakeKey("plan", "v1", cache.HashText(norm))
	var cached contract.RoutingPlan
	if r.kv.Get(ctx, "router", cacheKey, &cached) && cached.Version == planVersion {
		cached.Mode = effective
		if effective == contract.RolloutShadow {
			cached.Handled = false
			cached.ReplyText = ""
		}
		metrics.RoutedDecisions.WithLabelValues(string(effective), string(cached.RouteBox)).Inc()
		return cached
	}

	needsClarify := nlu != nil && nlu.NeedsClarification
	if needsClarify {
		plan.Fit = contract.FitUnclear
		plan.RouteBox = contract.BoxClarify
		plan.Reason = reasonNLUClarify
		if effective == contract.RolloutOn {
			q := ""
			if nlu != nil {
				q = nlu.ClarifyingQuestion
			}
			plan.ReplyText = RenderOneQuestion(q)
			plan.Handled = true
		}
	}

	if !plan.Handled && plan.Fit == contract.FitInScope {
		offTopic := nlu != nil && (strings.EqualFold(nlu.Route, "offtopic") || nlu.Intent == contract.IntentOfftopic)
		customQuote := r.looksCustomSoftwareQuote(norm)
		personalMsg := looksPersonalMessage(norm)

		if offTopic || customQuote || personalMsg {
			plan.Fit = contract.FitOutOfScope
			plan.RouteBox = contract.BoxRedirect
			switch {
			case customQuote:
				plan.Intent = contract.IntentCustomRequest
				plan.Reason = reasonCustomQuote
			case personalMsg:
				plan.Intent = contract.IntentPersonalMessage
				plan.Reason = reasonPersonalMessage
			default:
				plan.Intent = contract.IntentOfftopic
				plan.Reason = reasonOfftopic
			}
			if effective == contract.RolloutOn {
				plan.ReplyText = r.RenderRedirect(plan.Reason)
				plan.Handled = true
			}
		}
	}

	if effective == contract.RolloutShadow {
		plan.Handled = false
		plan.ReplyText = ""
	}

	// Only scope rejections and clarifications are repeatable enough to
	// memoize; in-scope decisions depend on conversation context.
	if plan.Fit == contract.FitOutOfScope || plan.Fit == contract.FitUnclear {
		r.kv.Put(ctx, "router", cacheKey, plan, r.cfg.CacheTTL)
	}

	metrics.RoutedDecisions.WithLabelValues(string(effective), string(plan.RouteBox)).Inc()
	r.log.Debug().
		Str("tenant", tenant).
		Str("mode", string(effective)).
		Str("fit", string(plan.Fit)).
		Str("intent", string(plan.Intent)).
		Str("box", string(plan.RouteBox)).
		Bool("handled", plan.Handled).
		Msg("plan")
	return plan
}

func (r *Router) effectiveMode(norm string) contract.RolloutMode {
	if r.cfg.Mode != contract.RolloutCanary {
		return r.cfg.Mode
	}
	if canaryBucket(norm) < r.cfg.CanaryPct {
		return contract.RolloutOn
	}
	return contract.RolloutShadow
}

// canaryBucket maps the normalized text onto 0..99 with a stable hash so the
// same message always lands on the same side of the canary split.
func canaryBucket(norm string) int {
	sum := sha1.Sum([]byte(norm))
	return int(binary.BigEndian.Uint32(sum[:4]) % 100)
}

var wsRe = regexp.MustCompile(`\s+`)

func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = wsRe.ReplaceAllString(s, " ")
	if len(s) > normTextMaxChars {
		cut := normTextMaxChars
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

var softwareTerms = []string{
	"programa", "programas", "software", "sistema", "sistemas",
	"app", "aplicativo", "site", "website", "plataforma",
	"desenvolver", "desenvolvimento", "programar", "programação",
	"codigo", "código", "automacao", "automação", "integracao", "integração",
}

var priceTerms = []string{
	"preço", "preco", "quanto custa", "valor", "mensal", "por mês", "por mes", "assinatura",
}

var recadoTerms = []string{
	"recado", "mensagem pro", "mensagem para", "manda um recado", "poderia avisar", "fala pra", "diz pra",
}

var familyTerms = []string{
	"meu filho", "meu marido", "minha esposa", "minha filha",
}

// mentionsProduct suppresses the custom-software detector when the person is
// asking about the product itself, not bespoke work.
func (r *Router) mentionsProduct(t string) bool {
	name := strings.ToLower(strings.TrimSpace(r.cfg.ProductName))
	if name == "" {
		return false
	}
	return strings.Contains(t, name) || strings.Contains(t, strings.ReplaceAll(name, " ", ""))
}

func (r *Router) looksCustomSoftwareQuote(t string) bool {
	if r.mentionsProduct(t) {
		return false
	}
	if !containsAny(t, softwareTerms) {
		return false
	}
	if containsAny(t, priceTerms) {
		return true
	}
	return strings.Contains(t, "vocês fazem") || strings.Contains(t, "voces fazem") || strings.Contains(t, "fazem") ||
		strings.Contains(t, "vocês programam") || strings.Contains(t, "voces programam") || strings.Contains(t, "programam")
}

func looksPersonalMessage(t string) bool {
	return containsAny(t, recadoTerms) && containsAny(t, familyTerms)
}

func containsAny(t string, terms []string) bool {
	for _, k := range terms {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}
