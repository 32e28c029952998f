// Command zoe-server runs the Zoe conversation core: intent-routed domain
// experts, hybrid memory retrieval, and the streaming chat surface.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zoehome/zoe/internal/apiclient"
	"github.com/zoehome/zoe/internal/config"
	"github.com/zoehome/zoe/internal/contextbuilder"
	"github.com/zoehome/zoe/internal/conversation"
	"github.com/zoehome/zoe/internal/expert"
	"github.com/zoehome/zoe/internal/llm"
	"github.com/zoehome/zoe/internal/orchestrator"
	"github.com/zoehome/zoe/internal/retrieval"
	"github.com/zoehome/zoe/internal/server"
	"github.com/zoehome/zoe/internal/storage"
	"github.com/zoehome/zoe/internal/storage/postgres"
	"github.com/zoehome/zoe/internal/storage/sqlite"
)

func main() {
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	experts, err := config.LoadExpertsFile(cfg.Experts.ConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid experts file")
	}

	store, search, graph, turns := openStorage(cfg)
	defer store.Close()

	chatModel, err := llm.NewChatModel(cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid LLM configuration")
	}
	embedder, err := llm.NewEmbeddingModel(cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid embedding configuration")
	}
	reranker := llm.NewReranker(cfg.LLM)

	api := apiclient.New(apiclient.Config{
		BaseURL: cfg.Experts.APIBaseURL,
		Token:   cfg.Experts.APIToken,
	})

	registry, err := orchestrator.NewRegistry(
		expert.NewListExpert(experts.Tuning("list"), api),
		expert.NewReminderExpert(experts.Tuning("reminder"), api),
		expert.NewCalendarExpert(experts.Tuning("calendar"), api),
		expert.NewHomeExpert(experts.Tuning("home"), api),
		expert.NewJournalExpert(experts.Tuning("journal"), api),
		expert.NewPersonExpert(experts.Tuning("person"), api),
		expert.NewPlannerExpert(experts.Tuning("planner"), api),
		expert.NewBirthdayExpert(experts.Tuning("birthday"), api),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("expert registry misconfigured")
	}
	orch := orchestrator.New(registry, experts.Threshold)

	retriever := retrieval.New(store, search, graph, embedder, reranker, cfg.Retrieval)
	builder := contextbuilder.New(retriever, turns, api, cfg.Context)
	engine := conversation.New(orch, builder, chatModel, turns)

	srv := server.New(engine, cfg.Server, cfg.Security)

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-done
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown did not drain cleanly")
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("goodbye")
}

// openStorage builds the configured backend. Both backends implement all
// four storage roles on one handle.
func openStorage(cfg *config.Config) (storage.MemoryStore, storage.SearchProvider, storage.GraphProvider, storage.TurnStore) {
	switch cfg.Storage.Engine {
	case "postgres":
		s, err := postgres.New(cfg.Storage.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open postgres store")
		}
		return s, s, s, s
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			log.Fatal().Err(err).Str("path", cfg.Storage.DataPath).Msg("failed to create data directory")
		}
		s, err := sqlite.New(cfg.Storage.DataPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open sqlite store")
		}
		return s, s, s, s
	}
}

// setupLogging configures zerolog: JSON to stderr by default, pretty
// console output when ZOE_LOG_PRETTY is set, level from ZOE_LOG_LEVEL.
func setupLogging() {
	level, err := zerolog.ParseLevel(os.Getenv("ZOE_LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if os.Getenv("ZOE_LOG_PRETTY") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
}
