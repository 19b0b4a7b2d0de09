package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Security.JWTAlgorithm != "HS256" || cfg.Security.TokenTTLMinutes != 1440 {
		t.Fatalf("unexpected security defaults: %+v", cfg.Security)
	}
	if cfg.App.MaxUploadMB != 10 || cfg.MaxUploadBytes() != 10<<20 {
		t.Fatalf("unexpected upload limit: %d", cfg.App.MaxUploadMB)
	}
	if cfg.App.DailyWindowDays != 7 || cfg.App.EvolutionMonths != 6 {
		t.Fatalf("unexpected window defaults: %+v", cfg.App)
	}
	if cfg.Supabase.Bucket != "evidencias" || cfg.Storage.UploadDir != "uploads" {
		t.Fatalf("unexpected storage defaults: %+v %+v", cfg.Supabase, cfg.Storage)
	}
	if cfg.TokenTTL() != 24*time.Hour {
		t.Fatalf("expected 24h ttl, got %s", cfg.TokenTTL())
	}
}

func TestLoad_FileWithPartialValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"app": {"env": "production", "upload_dedup_window": "90s", "allowed_origins": ["https://a.example"]},
		"security": {"jwt_secret": "file-secret"},
		"gateway": {"backend": "mysql"}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env, got %q", cfg.App.Env)
	}
	if cfg.App.UploadDedupWindow != 90*time.Second {
		t.Fatalf("expected 90s dedup window, got %s", cfg.App.UploadDedupWindow)
	}
	if cfg.Security.JWTSecret != "file-secret" || cfg.Security.JWTAlgorithm != "HS256" {
		t.Fatalf("unexpected security: %+v", cfg.Security)
	}
	if cfg.Gateway.Backend != BackendMySQL {
		t.Fatalf("expected mysql backend, got %q", cfg.Gateway.Backend)
	}
	if cfg.App.HTTPAddr != ":8000" {
		t.Fatalf("expected default addr, got %q", cfg.App.HTTPAddr)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"app": {"upload_dedup_window": "soon"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "upload_dedup_window") {
		t.Fatalf("expected duration error, got %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://project.supabase.co/")
	t.Setenv("SUPABASE_KEY", "anon")
	t.Setenv("SUPABASE_SERVICE_KEY", "service")
	t.Setenv("SECRET_KEY", "env-secret")
	t.Setenv("ALGORITHM", "hs512")
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "30")
	t.Setenv("MAX_FILE_SIZE_MB", "5")
	t.Setenv("UPLOAD_DIR", "/tmp/evidence")
	t.Setenv("SUPABASE_BUCKET_NAME", "proofs")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Supabase.URL != "https://project.supabase.co" {
		t.Fatalf("expected trimmed url, got %q", cfg.Supabase.URL)
	}
	if cfg.Supabase.AnonKey != "anon" || cfg.Supabase.ServiceKey != "service" || cfg.Supabase.Bucket != "proofs" {
		t.Fatalf("unexpected supabase config: %+v", cfg.Supabase)
	}
	if cfg.Security.JWTSecret != "env-secret" || cfg.Security.JWTAlgorithm != "HS512" || cfg.TokenTTL() != 30*time.Minute {
		t.Fatalf("unexpected security config: %+v", cfg.Security)
	}
	if cfg.App.MaxUploadMB != 5 || cfg.Storage.UploadDir != "/tmp/evidence" {
		t.Fatalf("unexpected upload config: %d %q", cfg.App.MaxUploadMB, cfg.Storage.UploadDir)
	}
	if len(cfg.App.AllowedOrigins) != 2 || cfg.App.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.App.AllowedOrigins)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production")
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("expected redis enabled at redis:6379, got %+v", cfg.Redis)
	}
}

func TestLoad_DBPartsRebuildDSN(t *testing.T) {
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "plans")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	parsed := parseMySQLDSN(cfg.MySQL.DSN)
	if parsed.Addr != "db:3307" || parsed.User != "app" || parsed.Passwd != "pw" || parsed.DBName != "plans" {
		t.Fatalf("unexpected dsn: %s", cfg.MySQL.DSN)
	}
}
