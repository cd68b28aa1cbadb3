package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	classifyx "github.com/leadloop-ai/leadloop/agent/classify"
	ledgerx "github.com/leadloop-ai/leadloop/agent/ledger"
	llmx "github.com/leadloop-ai/leadloop/agent/llm"
	pipelinex "github.com/leadloop-ai/leadloop/agent/pipeline"
	promptx "github.com/leadloop-ai/leadloop/agent/prompt"
	queryx "github.com/leadloop-ai/leadloop/agent/query"
	storex "github.com/leadloop-ai/leadloop/agent/store"
	configx "github.com/leadloop-ai/leadloop/pkg/config"
	_ "github.com/leadloop-ai/leadloop/pkg/logger/autoload"
	openrouterx "github.com/leadloop-ai/leadloop/pkg/openrouter"
	worktoolx "github.com/leadloop-ai/leadloop/pkg/worktool"
	serverx "github.com/leadloop-ai/leadloop/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storeCfg := configx.MustNew[storex.Config]("DB")
	store, err := storex.Open(ctx, *storeCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer store.Close()

	reader, err := storex.OpenReader(*storeCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open read-only store")
	}
	defer reader.Close()

	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	if err := llmCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("llm config")
	}
	llmClient, err := openrouterx.NewClient(llmCfg.OpenRouterFor(llmx.RoleTranslator))
	if err != nil {
		log.Fatal().Err(err).Msg("openrouter client")
	}

	prompts := promptx.LoadPromptSet()
	translator := llmx.NewTranslator(llmClient, llmCfg.OpenRouterFor(llmx.RoleTranslator), prompts.Translator)
	summarizer := llmx.NewSummarizer(llmClient, llmCfg.OpenRouterFor(llmx.RoleSummarizer), prompts.Summarizer)

	queryCfg := configx.MustNew[queryx.Config]("QUERY_AGENT")
	queryAgent := queryx.NewAgent(*queryCfg, translator, summarizer, reader, storex.SchemaDescription)

	classifier := classifyx.NewEngine(store)
	ledger := ledgerx.New(store)

	p, err := pipelinex.New(store, classifier, ledger, queryAgent)
	if err != nil {
		log.Fatal().Err(err).Msg("build pipeline")
	}

	worktoolCfg := configx.MustNew[worktoolx.Config]("WORKTOOL")
	deliverer := worktoolx.MustNew(*worktoolCfg)

	serverCfg := configx.MustNew[serverx.Config]("SERVER")
	srv := serverx.New(*serverCfg, p, deliverer)

	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("shutdown complete")
}
