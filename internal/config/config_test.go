package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "SOLVER_URL", "DISPATCH_MODE", "STATUS_DELIMITER", "SESSION_TTL", "ALLOWED_ORIGINS", "FRONTEND_URL"} {
		t.Setenv(key, "")
	}
	t.Setenv("PORT", "8080")
	t.Setenv("SOLVER_URL", "http://solver:5000/query")
	t.Setenv("DISPATCH_MODE", "concurrent")
	t.Setenv("SESSION_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StatusDelimiter != '~' {
		t.Errorf("StatusDelimiter = %q, want ~", cfg.StatusDelimiter)
	}
	if cfg.SessionTTL != 60*time.Minute {
		t.Errorf("SessionTTL = %v, want fallback 60m", cfg.SessionTTL)
	}
	if len(cfg.AllowedOrigins) == 0 {
		t.Error("expected development origins")
	}
	if !cfg.IsDevelopment() {
		t.Error("empty FRONTEND_URL should mean development")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DISPATCH_MODE", "Sequential")
	t.Setenv("SOLVER_TIMEOUT", "3s")
	t.Setenv("STATUS_DELIMITER", "|")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("CONVERSATION_LOG_ENABLED", "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Solver.Mode != "sequential" || cfg.Solver.Timeout != 3*time.Second {
		t.Errorf("unexpected solver config: %+v", cfg.Solver)
	}
	if cfg.StatusDelimiter != '|' {
		t.Errorf("StatusDelimiter = %q, want |", cfg.StatusDelimiter)
	}
	if got := strings.Join(cfg.AllowedOrigins, " "); got != "https://a.example https://b.example" {
		t.Errorf("AllowedOrigins = %q", got)
	}
	if cfg.ConversationLog.Enabled {
		t.Error("conversation log should be disabled")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"DISPATCH_MODE":    "parallel",
		"STATUS_DELIMITER": "~~",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), key) {
				t.Fatalf("expected %s to be rejected, got %v", key, err)
			}
		})
	}
}
