package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/zapflow")
	t.Setenv("JWT_ACCESS_SECRET", "access")
	t.Setenv("CRON_SECRET", "cron")
	t.Setenv("SEQUENCES_TIMEZONE", "UTC")
	for _, key := range []string{"SEQUENCES_RUN_BUDGET", "PROCESS_TIMEOUT"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestLoadDefaultProcessTimeoutCoversRunBudget(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GetProcessTimeout() < cfg.GetSequencesRunBudget()+RunTimeoutMargin {
		t.Fatalf("process timeout %s shorter than run budget %s plus margin %s",
			cfg.GetProcessTimeout(), cfg.GetSequencesRunBudget(), RunTimeoutMargin)
	}
	if cfg.GetProcessTimeout() != 90*time.Second {
		t.Fatalf("expected 90s default, got %s", cfg.GetProcessTimeout())
	}
}

func TestLoadRejectsProcessTimeoutWithoutMargin(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SEQUENCES_RUN_BUDGET", "55s")
	t.Setenv("PROCESS_TIMEOUT", "60s")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "PROCESS_TIMEOUT") {
		t.Fatalf("expected PROCESS_TIMEOUT error, got %v", err)
	}
}
