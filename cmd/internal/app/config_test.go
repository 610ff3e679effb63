package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("TDP_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("TDP_ENV", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Env != "dev" || cfg.LogFormat != "pretty" || !cfg.Seed {
		t.Fatalf("dev defaults not applied: %+v", cfg)
	}
	if cfg.DBLockTimeout != 5*time.Second || cfg.DBStatementTimeout != 15*time.Second {
		t.Fatalf("db timeouts: %v %v", cfg.DBLockTimeout, cfg.DBStatementTimeout)
	}
	if cfg.SeedAdminEmail != "admin@tdp.local" {
		t.Fatalf("seed admin email: %q", cfg.SeedAdminEmail)
	}
}

func TestLoadConfig_ProdDefaults(t *testing.T) {
	t.Setenv("TDP_ENV_FILE", "")
	t.Setenv("TDP_ENV", "prod")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Seed || cfg.LogFormat != "json" || !cfg.ReadinessRequireDB {
		t.Fatalf("prod defaults not applied: %+v", cfg)
	}
}

func TestLoadConfig_Dotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("TDP_HTTP_ADDR=127.0.0.1:9999\nTDP_DB_MAX_CONNS=3\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TDP_ENV_FILE", path)
	// Already-set variables win over the file.
	t.Setenv("TDP_DB_MAX_CONNS", "7")
	t.Setenv("TDP_HTTP_ADDR", "")
	os.Unsetenv("TDP_HTTP_ADDR")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.DBMaxConns != 7 {
		t.Fatalf("DBMaxConns=%d", cfg.DBMaxConns)
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("TDP_TEST_LIST", " a, ,b ,c")
	got := EnvList("TDP_TEST_LIST", nil)
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("EnvList=%v", got)
	}
	t.Setenv("TDP_TEST_LIST", " , ")
	if got := EnvList("TDP_TEST_LIST", []string{"d"}); len(got) != 1 || got[0] != "d" {
		t.Fatalf("EnvList fallback=%v", got)
	}
}

func TestEnvHelpers_FallBackOnInvalid(t *testing.T) {
	t.Setenv("TDP_TEST_INT", "-3")
	t.Setenv("TDP_TEST_INT32", "99999999999")
	t.Setenv("TDP_TEST_BOOL", "perhaps")
	t.Setenv("TDP_TEST_DUR", "0s")

	if got := EnvInt("TDP_TEST_INT", 4); got != 4 {
		t.Fatalf("EnvInt=%d", got)
	}
	if got := EnvInt32("TDP_TEST_INT32", 5); got != 5 {
		t.Fatalf("EnvInt32=%d", got)
	}
	if got := EnvBool("TDP_TEST_BOOL", true); !got {
		t.Fatalf("EnvBool=%v", got)
	}
	if got := EnvDuration("TDP_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("EnvDuration=%v", got)
	}

	t.Setenv("TDP_TEST_DUR", "250ms")
	if got := EnvDuration("TDP_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("EnvDuration=%v", got)
	}
}
