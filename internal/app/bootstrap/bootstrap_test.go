package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/lead-qualifier/internal/config"
	"github.com/wolfman30/lead-qualifier/internal/conversation"
	"github.com/wolfman30/lead-qualifier/internal/events"
	"github.com/wolfman30/lead-qualifier/internal/extraction"
	"github.com/wolfman30/lead-qualifier/internal/leads"
	"github.com/wolfman30/lead-qualifier/internal/notify"
	"github.com/wolfman30/lead-qualifier/internal/qualification"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

func baseConfig() *config.Config {
	return &config.Config{
		ConversationTTL: time.Hour,
		DedupeTTL:       24 * time.Hour,
		LockTTL:         5 * time.Second,
		LockWait:        time.Second,
		Extractor:       "heuristic",
		CRMBackend:      "memory",
		DedupeBackend:   "memory",
		ArchiveBackend:  "none",
		NotifyBackend:   "none",
		WorkerCount:     1,
	}
}

func newRuntime(t *testing.T, cfg *config.Config) *Runtime {
	t.Helper()
	rt := NewRuntime(cfg, logging.Default())
	t.Cleanup(rt.Close)
	return rt
}

func TestNewRuntimePanicsWithoutConfig(t *testing.T) {
	assert.Panics(t, func() { NewRuntime(nil, nil) })
}

func TestBuildRedisClient(t *testing.T) {
	assert.Nil(t, BuildRedisClient(nil))
	assert.Nil(t, BuildRedisClient(&config.Config{}))

	client := BuildRedisClient(&config.Config{RedisAddr: "localhost:6379", RedisTLS: true})
	require.NotNil(t, client)
	defer client.Close()
	assert.NotNil(t, client.Options().TLSConfig)
}

func TestBuildStore(t *testing.T) {
	rt := newRuntime(t, baseConfig())
	_, ok := BuildStore(rt).(*conversation.MemoryStore)
	assert.True(t, ok, "expected memory store without redis")

	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.RedisAddr = mr.Addr()
	rt = newRuntime(t, cfg)
	rt.SetRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	_, ok = BuildStore(rt).(*conversation.RedisStore)
	assert.True(t, ok, "expected redis store")
}

func TestBuildGuard(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		backend string
		redis   bool
		want    any
		wantErr error
	}{
		{name: "memory", backend: "memory", want: &events.MemoryGuard{}},
		{name: "redis without client falls back", backend: "redis", want: &events.MemoryGuard{}},
		{name: "redis", backend: "redis", redis: true, want: &events.RedisGuard{}},
		{name: "postgres without url", backend: "postgres", wantErr: ErrNotConfigured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			cfg.DedupeBackend = tt.backend
			rt := newRuntime(t, cfg)
			if tt.redis {
				rt.SetRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
			}
			guard, err := BuildGuard(ctx, rt)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, guard)
		})
	}

	cfg := baseConfig()
	cfg.DedupeBackend = "kafka"
	_, err := BuildGuard(ctx, newRuntime(t, cfg))
	require.Error(t, err)
}

func TestBuildExtractor(t *testing.T) {
	ctx := context.Background()

	rt := newRuntime(t, baseConfig())
	ex, err := BuildExtractor(ctx, rt)
	require.NoError(t, err)
	assert.IsType(t, &extraction.HeuristicExtractor{}, ex)

	cfg := baseConfig()
	cfg.Extractor = "auto"
	ex, err = BuildExtractor(ctx, newRuntime(t, cfg))
	require.NoError(t, err)
	assert.IsType(t, &extraction.HeuristicExtractor{}, ex, "auto without credentials is heuristic only")

	cfg = baseConfig()
	cfg.Extractor = "gemini"
	_, err = BuildExtractor(ctx, newRuntime(t, cfg))
	require.ErrorIs(t, err, ErrNotConfigured)

	cfg = baseConfig()
	cfg.Extractor = "bedrock"
	_, err = BuildExtractor(ctx, newRuntime(t, cfg))
	require.ErrorIs(t, err, ErrNotConfigured)

	cfg = baseConfig()
	cfg.Extractor = "gpt"
	_, err = BuildExtractor(ctx, newRuntime(t, cfg))
	require.Error(t, err)
}

func TestBuildLeadRepository(t *testing.T) {
	ctx := context.Background()

	repo, err := BuildLeadRepository(ctx, newRuntime(t, baseConfig()))
	require.NoError(t, err)
	assert.IsType(t, &leads.InMemoryRepository{}, repo)

	cfg := baseConfig()
	cfg.CRMBackend = "odoo"
	_, err = BuildLeadRepository(ctx, newRuntime(t, cfg))
	require.ErrorIs(t, err, ErrNotConfigured)

	cfg.OdooURL = "https://crm.example.com"
	cfg.OdooDB = "leads"
	repo, err = BuildLeadRepository(ctx, newRuntime(t, cfg))
	require.NoError(t, err)
	assert.IsType(t, &leads.OdooRepository{}, repo)

	cfg = baseConfig()
	cfg.CRMBackend = "postgres"
	_, err = BuildLeadRepository(ctx, newRuntime(t, cfg))
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestBuildEmitter(t *testing.T) {
	ctx := context.Background()
	repo := leads.NewInMemoryRepository()

	emitter, err := BuildEmitter(ctx, newRuntime(t, baseConfig()), repo)
	require.NoError(t, err)
	assert.IsType(t, &leads.Emitter{}, emitter)

	cfg := baseConfig()
	cfg.NotifyBackend = "stub"
	emitter, err = BuildEmitter(ctx, newRuntime(t, cfg), repo)
	require.NoError(t, err)
	assert.IsType(t, &leads.Emitter{}, emitter, "no recipients means no alerts")

	cfg.NotifyEmailTo = []string{"sales@example.com"}
	emitter, err = BuildEmitter(ctx, newRuntime(t, cfg), repo)
	require.NoError(t, err)
	assert.IsType(t, &notify.LeadAlerter{}, emitter)

	cfg = baseConfig()
	cfg.NotifyBackend = "sendgrid"
	cfg.NotifyEmailTo = []string{"sales@example.com"}
	_, err = BuildEmitter(ctx, newRuntime(t, cfg), repo)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestParseTier(t *testing.T) {
	assert.Equal(t, qualification.TierHot, parseTier(""))
	assert.Equal(t, qualification.TierWarm, parseTier(" WARM "))
	assert.Equal(t, qualification.TierCold, parseTier("cold"))
	assert.Equal(t, qualification.TierHot, parseTier("lukewarm"))
}

func TestBuildArchive(t *testing.T) {
	ctx := context.Background()

	arch, err := BuildArchive(ctx, newRuntime(t, baseConfig()))
	require.NoError(t, err)
	assert.Nil(t, arch.Archiver)
	assert.Nil(t, arch.Lister)

	cfg := baseConfig()
	cfg.ArchiveBackend = "s3"
	_, err = BuildArchive(ctx, newRuntime(t, cfg))
	require.ErrorIs(t, err, ErrNotConfigured)

	cfg = baseConfig()
	cfg.ArchiveBackend = "sql"
	_, err = BuildArchive(ctx, newRuntime(t, cfg))
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestBuildQueue(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, baseConfig())

	q, err := BuildQueue(ctx, rt, "")
	require.NoError(t, err)
	assert.Nil(t, q)

	q, err = BuildQueue(ctx, rt, QueueMemory)
	require.NoError(t, err)
	assert.IsType(t, &conversation.MemoryQueue{}, q)

	replies, err := BuildReplyPublisher(ctx, rt)
	require.NoError(t, err)
	assert.Nil(t, replies)
}

func TestBuildEngineProcessesTurn(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, baseConfig())

	comp, err := BuildEngine(ctx, rt, nil)
	require.NoError(t, err)
	require.NotNil(t, comp.Engine)

	res, err := comp.Engine.ProcessTurn(ctx, "+15551234567", "Hola, me interesa el botox", "SM1")
	require.NoError(t, err)
	assert.False(t, res.Dropped)
	assert.NotEmpty(t, res.Reply)
	assert.Equal(t, 1, res.TurnCount)
}

func TestBuildEngineFailsOnBadBackend(t *testing.T) {
	cfg := baseConfig()
	cfg.CRMBackend = "salesforce"
	_, err := BuildEngine(context.Background(), newRuntime(t, cfg), nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotConfigured))
}
