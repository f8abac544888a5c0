// Package orchestrator wires router, handlers, front and renderer into one
// per-message pipeline behind Orchestrate.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/crisalvesdev/atendebot/engine/budget"
	"github.com/crisalvesdev/atendebot/engine/contract"
	"github.com/crisalvesdev/atendebot/engine/front"
	"github.com/crisalvesdev/atendebot/engine/pack"
	"github.com/crisalvesdev/atendebot/engine/router"
	"github.com/crisalvesdev/atendebot/engine/state"
)

type Config struct {
	// RequestTimeout bounds one Orchestrate call end to end. A slow LLM
	// call degrades to the deterministic fallback instead of hanging the
	// caller.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" split_words:"true" default:"15s"`

	SnapshotMaxChars int `envconfig:"SNAPSHOT_MAX_CHARS" split_words:"true" default:"2500"`
}

// Service is one engine instance. Instances are independent; all shared
// state lives in the injected collaborators.
type Service struct {
	router    *router.Router
	state     *state.Store
	handlers  []contract.ReplyHandler
	front     *front.Front
	packs     *pack.Renderer
	guard     *budget.Guard
	knowledge contract.KnowledgeProvider
	audience  contract.AudienceResolver

	graphRunner compose.Runnable[GraphInput, GraphOutput]

	cfg Config
	log zerolog.Logger
}

func New(
	rt *router.Router,
	st *state.Store,
	handlers []contract.ReplyHandler,
	fr *front.Front,
	packs *pack.Renderer,
	guard *budget.Guard,
	knowledge contract.KnowledgeProvider,
	audience contract.AudienceResolver,
	cfg Config,
) (*Service, error) {
	if rt == nil {
		return nil, errors.New("router is required")
	}
	if st == nil {
		return nil, errors.New("state store is required")
	}
	if fr == nil {
		return nil, errors.New("llm front is required")
	}
	if guard == nil {
		return nil, errors.New("budget guard is required")
	}
	if packs == nil {
		packs = pack.NewRenderer(nil)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.SnapshotMaxChars <= 0 {
		cfg.SnapshotMaxChars = 2500
	}

	o := &Service{
		router:    rt,
		state:     st,
		handlers:  handlers,
		front:     fr,
		packs:     packs,
		guard:     guard,
		knowledge: knowledge,
		audience:  audience,
		cfg:       cfg,
		log:       log.With().Str("component", "orchestrator").Logger(),
	}

	graphRunner, err := o.compileOrchestrateGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner
	return o, nil
}

// Orchestrate handles one inbound message and always produces a reply with
// non-empty text; collaborator failures degrade through the fallback chain
// instead of surfacing.
func (o *Service) Orchestrate(ctx context.Context, tenant, contactKey, text string, channelHint contract.ChannelHint) (contract.ReplyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	out, err := o.graphRunner.Invoke(ctx, GraphInput{
		Tenant:      tenant,
		ContactKey:  contactKey,
		Text:        text,
		ChannelHint: channelHint,
	})
	if err != nil {
		// The graph nodes themselves never error in steady state, so this
		// covers compile-time bugs and context expiry mid-node.
		o.log.Error().Err(err).Str("tenant", tenant).Msg("graph invoke failed")
		ch := channelHint
		if ch != contract.ChannelVoice {
			ch = contract.ChannelText
		}
		return contract.ReplyResult{
			ReplyText:        front.FallbackReply,
			PreferredChannel: ch,
			RouteTaken:       "fallback:clarify",
			NextStep:         contract.StepNone,
		}, nil
	}

	o.log.Info().
		Str("tenant", tenant).
		Str("route", out.RouteTaken).
		Str("trace_id", out.TraceID).
		Int64("tokens", out.TokenUsage.Total()).
		Msg("reply")
	return out, nil
}

// OrchestrateWithSignals is Orchestrate with upstream NLU hints attached,
// for callers that run their own classifier before the engine.
func (o *Service) OrchestrateWithSignals(ctx context.Context, tenant, contactKey, text string, channelHint contract.ChannelHint, nlu *contract.NLUSignals) (contract.ReplyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	out, err := o.graphRunner.Invoke(ctx, GraphInput{
		Tenant:      tenant,
		ContactKey:  contactKey,
		Text:        text,
		ChannelHint: channelHint,
		NLU:         nlu,
	})
	if err != nil {
		o.log.Error().Err(err).Str("tenant", tenant).Msg("graph invoke failed")
		return contract.ReplyResult{
			ReplyText:        front.FallbackReply,
			PreferredChannel: contract.ChannelText,
			RouteTaken:       "fallback:clarify",
			NextStep:         contract.StepNone,
		}, nil
	}
	return out, nil
}
