package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "REDIS_ADDR", "CONVERSATION_TTL", "TURN_CEILING", "EXTRACTOR", "CRM_BACKEND", "DEDUPE_TTL"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("expected empty redis addr, got %s", cfg.RedisAddr)
	}
	if cfg.ConversationTTL != 7*24*time.Hour {
		t.Fatalf("expected 7 day retention, got %s", cfg.ConversationTTL)
	}
	if cfg.DedupeTTL != 24*time.Hour {
		t.Fatalf("expected 24h dedupe window, got %s", cfg.DedupeTTL)
	}
	if cfg.TurnCeiling != 8 {
		t.Fatalf("expected turn ceiling 8, got %d", cfg.TurnCeiling)
	}
	if cfg.Extractor != "auto" || cfg.CRMBackend != "memory" {
		t.Fatalf("unexpected backends: extractor=%s crm=%s", cfg.Extractor, cfg.CRMBackend)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_FORMAT", "TEXT")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("LOCK_WAIT", "2s")
	t.Setenv("TURN_CEILING", "5")
	t.Setenv("HOT_THRESHOLD", "0.8")
	t.Setenv("CRM_BACKEND", " Odoo ")
	t.Setenv("WORKER_COUNT", "6")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.LogFormat != "text" {
		t.Fatalf("expected text log format, got %s", cfg.LogFormat)
	}
	if cfg.RedisAddr != "cache:6379" {
		t.Fatalf("expected redis override, got %s", cfg.RedisAddr)
	}
	if cfg.LockWait != 2*time.Second {
		t.Fatalf("expected lock wait override, got %s", cfg.LockWait)
	}
	if cfg.CRMBackend != "odoo" {
		t.Fatalf("expected odoo backend, got %s", cfg.CRMBackend)
	}
	if cfg.WorkerCount != 6 {
		t.Fatalf("expected worker count override, got %d", cfg.WorkerCount)
	}
	s := cfg.QualificationSettings()
	if s.TurnCeiling != 5 || s.HotThreshold != 0.8 {
		t.Fatalf("unexpected settings %+v", s)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("TURN_CEILING", "many")
	t.Setenv("STORE_TIMEOUT", "soon")
	t.Setenv("WEIGHT_CONTACT", "-2")
	t.Setenv("WARM_THRESHOLD", "0.9")
	cfg := Load()
	if cfg.TurnCeiling != 8 {
		t.Fatalf("expected default ceiling, got %d", cfg.TurnCeiling)
	}
	if cfg.StoreTimeout != 3*time.Second {
		t.Fatalf("expected default store timeout, got %s", cfg.StoreTimeout)
	}
	s := cfg.QualificationSettings()
	if math.Abs(s.Weights.Contact-1.0/3) > 1e-9 {
		t.Fatalf("expected default contact weight, got %f", s.Weights.Contact)
	}
	if s.WarmThreshold != 0.40 || s.HotThreshold != 0.75 {
		t.Fatalf("expected default thresholds, got hot=%f warm=%f", s.HotThreshold, s.WarmThreshold)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("ODOO_DB=crm_test\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("ODOO_DB", "")
	os.Unsetenv("ODOO_DB")

	cfg := Load()
	if cfg.OdooDB != "crm_test" {
		t.Fatalf("expected .env value, got %q", cfg.OdooDB)
	}
}

func TestLoadNotifyRecipients(t *testing.T) {
	t.Setenv("NOTIFY_BACKEND", "SES")
	t.Setenv("NOTIFY_EMAIL_TO", " ventas@example.com, ,gerencia@example.com ")
	cfg := Load()
	if cfg.NotifyBackend != "ses" {
		t.Fatalf("expected ses backend, got %s", cfg.NotifyBackend)
	}
	if len(cfg.NotifyEmailTo) != 2 || cfg.NotifyEmailTo[0] != "ventas@example.com" || cfg.NotifyEmailTo[1] != "gerencia@example.com" {
		t.Fatalf("unexpected recipients %q", cfg.NotifyEmailTo)
	}
	if cfg.NotifyMinTier != "hot" {
		t.Fatalf("expected hot min tier, got %s", cfg.NotifyMinTier)
	}
}

func TestTurnBudgetCoversEveryStage(t *testing.T) {
	for _, key := range []string{"LOCK_WAIT", "STORE_TIMEOUT", "EXTRACTOR_TIMEOUT", "EMITTER_TIMEOUT", "ARCHIVE_TIMEOUT", "DEDUPE_PENDING_TTL"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.ArchiveTimeout != 10*time.Second {
		t.Fatalf("expected 10s archive timeout, got %s", cfg.ArchiveTimeout)
	}
	want := cfg.LockWait + 5*cfg.StoreTimeout + cfg.ExtractorTimeout + cfg.EmitterTimeout + cfg.ArchiveTimeout
	if got := cfg.TurnBudget(); got != want {
		t.Fatalf("expected turn budget %s, got %s", want, got)
	}
	if cfg.DedupePendingWindow() != 2*time.Minute {
		t.Fatalf("expected 2m pending window, got %s", cfg.DedupePendingWindow())
	}
}

func TestDedupePendingWindowNeverShorterThanTurn(t *testing.T) {
	t.Setenv("DEDUPE_PENDING_TTL", "5s")
	t.Setenv("EXTRACTOR_TIMEOUT", "90s")
	cfg := Load()
	if got := cfg.DedupePendingWindow(); got != cfg.TurnBudget() {
		t.Fatalf("expected pending window to stretch to %s, got %s", cfg.TurnBudget(), got)
	}
}
