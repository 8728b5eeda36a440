package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/wolfman30/lead-qualifier/internal/conversation"
	"github.com/wolfman30/lead-qualifier/internal/events"
	"github.com/wolfman30/lead-qualifier/internal/extraction"
)

// BuildStore returns the Redis-backed conversation store, or the in-memory
// store when Redis is not configured.
func BuildStore(rt *Runtime) conversation.Store {
	cfg := rt.Config
	if client := rt.Redis(); client != nil {
		rt.Logger.Info("using redis conversation store", "addr", cfg.RedisAddr, "retention", cfg.ConversationTTL.String())
		return conversation.NewRedisStore(client,
			conversation.WithLockTTL(cfg.LockTTL),
			conversation.WithLockWait(cfg.LockWait),
		)
	}
	rt.Logger.Warn("REDIS_ADDR not set; using in-memory conversation store")
	return conversation.NewMemoryStore(cfg.LockWait)
}

// BuildGuard selects the duplicate-message guard backend.
func BuildGuard(ctx context.Context, rt *Runtime) (events.Guard, error) {
	cfg := rt.Config
	pending := events.WithPendingWindow(cfg.DedupePendingWindow())
	switch cfg.DedupeBackend {
	case "redis", "":
		client := rt.Redis()
		if client == nil {
			rt.Logger.Warn("REDIS_ADDR not set; using in-memory dedupe guard")
			return events.NewMemoryGuard(cfg.DedupeTTL, pending), nil
		}
		return events.NewRedisGuard(client, cfg.DedupeTTL, pending), nil
	case "dynamodb":
		awsCfg, err := rt.AWS(ctx)
		if err != nil {
			return nil, err
		}
		return events.NewDynamoGuard(dynamodb.NewFromConfig(awsCfg), cfg.DedupeTable, cfg.DedupeTTL, pending), nil
	case "postgres":
		pool, err := rt.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		return events.NewPostgresGuard(pool, cfg.DedupeTTL, pending), nil
	case "memory":
		return events.NewMemoryGuard(cfg.DedupeTTL, pending), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown DEDUPE_BACKEND %q", cfg.DedupeBackend)
	}
}

// BuildExtractor wires the LLM extractor for EXTRACTOR, always chained with
// the heuristic extractor so a model outage still yields fields.
func BuildExtractor(ctx context.Context, rt *Runtime) (conversation.FieldExtractor, error) {
	cfg := rt.Config
	heuristic := extraction.NewHeuristicExtractor()

	var clients []extraction.LLMClient
	addGemini := func() error {
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required", ErrNotConfigured)
		}
		client, err := extraction.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return err
		}
		rt.onClose(func() { _ = client.Close() })
		clients = append(clients, client)
		return nil
	}
	addBedrock := func() error {
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return fmt.Errorf("%w: BEDROCK_MODEL_ID is required", ErrNotConfigured)
		}
		awsCfg, err := rt.AWS(ctx)
		if err != nil {
			return err
		}
		clients = append(clients, extraction.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID))
		return nil
	}

	switch cfg.Extractor {
	case "heuristic":
	case "gemini":
		if err := addGemini(); err != nil {
			return nil, err
		}
	case "bedrock":
		if err := addBedrock(); err != nil {
			return nil, err
		}
	case "auto", "":
		if cfg.GeminiAPIKey != "" {
			if err := addGemini(); err != nil {
				return nil, err
			}
		}
		if cfg.BedrockModelID != "" {
			if err := addBedrock(); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("bootstrap: unknown EXTRACTOR %q", cfg.Extractor)
	}

	switch len(clients) {
	case 0:
		rt.Logger.Info("using heuristic field extractor")
		return heuristic, nil
	case 1:
		rt.Logger.Info("using llm field extractor", "extractor", cfg.Extractor)
		return extraction.NewChainExtractor(rt.Logger, extraction.NewLLMExtractor(clients[0], rt.Logger), heuristic), nil
	default:
		rt.Logger.Info("using llm field extractor with bedrock fallback")
		llm := extraction.NewFallbackLLMClient(clients[0], clients[1], rt.Logger)
		return extraction.NewChainExtractor(rt.Logger, extraction.NewLLMExtractor(llm, rt.Logger), heuristic), nil
	}
}
