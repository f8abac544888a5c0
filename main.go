package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/crisalvesdev/atendebot/engine/budget"
	"github.com/crisalvesdev/atendebot/engine/cache"
	"github.com/crisalvesdev/atendebot/engine/contract"
	"github.com/crisalvesdev/atendebot/engine/docstore"
	"github.com/crisalvesdev/atendebot/engine/front"
	"github.com/crisalvesdev/atendebot/engine/handlers"
	"github.com/crisalvesdev/atendebot/engine/orchestrator"
	"github.com/crisalvesdev/atendebot/engine/pack"
	"github.com/crisalvesdev/atendebot/engine/router"
	"github.com/crisalvesdev/atendebot/engine/state"
	configx "github.com/crisalvesdev/atendebot/pkg/config"
	_ "github.com/crisalvesdev/atendebot/pkg/logger/autoload"
	openaix "github.com/crisalvesdev/atendebot/pkg/openai"
)

type AppConfig struct {
	Tenant string `envconfig:"TENANT" default:"dev"`
}

// newDocstore picks the durable backend: Upstash Redis when configured, else
// Postgres, else the in-process store.
func newDocstore(ctx context.Context) docstore.Store {
	redisCfg := configx.MustNew[docstore.UpstashRedisConfig]("UPSTASH_REDIS")
	if redisCfg.Configured() {
		store, err := docstore.NewUpstashRedisStore(*redisCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("upstash redis store init failed")
		}
		log.Info().Msg("document store: upstash redis")
		return store
	}

	pgCfg := configx.MustNew[docstore.PostgresConfig]("POSTGRES")
	if pgCfg.Configured() {
		store, err := docstore.NewPostgresStore(*pgCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres store init failed")
		}
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres schema init failed")
		}
		log.Info().Msg("document store: postgres")
		return store
	}

	log.Warn().Msg("no durable backend configured, using in-process store")
	return docstore.NewMemoryStore()
}

func main() {
	ctx := context.Background()
	appCfg := configx.MustNew[AppConfig]("")

	docs := newDocstore(ctx)
	kv := cache.New(docs)
	turns := state.New(docs, *configx.MustNew[state.Config]("STATE"))
	guard := budget.New(kv, *configx.MustNew[budget.Config]("BUDGET"))

	llm, err := openaix.New(*configx.MustNew[openaix.Config]("OPENAI"))
	if err != nil {
		log.Fatal().Err(err).Msg("openai client init failed")
	}

	catalog := handlers.NewDocstoreCatalog(docs)
	handlerChain := []contract.ReplyHandler{
		handlers.NewSupport(handlers.NewDocstoreKB(docs), kv, turns),
		handlers.NewCustomer(llm, nil, catalog, turns, guard, *configx.MustNew[handlers.CustomerConfig]("CUSTOMER")),
		handlers.NewSales(llm, guard),
	}

	svc, err := orchestrator.New(
		router.New(*configx.MustNew[router.Config]("ROUTER"), kv),
		turns,
		handlerChain,
		front.New(llm, guard),
		pack.NewRenderer(pack.DefaultKnowledgeBase()),
		guard,
		catalog,
		handlers.NewDocstoreDirectory(docs),
		*configx.MustNew[orchestrator.Config]("ORCHESTRATOR"),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("orchestrator init failed")
	}

	log.Info().Str("tenant", appCfg.Tenant).Msg("engine ready, reading messages from stdin")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		result, err := svc.Orchestrate(ctx, appCfg.Tenant, "stdin", text, contract.ChannelText)
		if err != nil {
			log.Error().Err(err).Msg("orchestrate failed")
			continue
		}
		fmt.Printf("[%s] %s\n", result.RouteTaken, result.ReplyText)
	}
}
