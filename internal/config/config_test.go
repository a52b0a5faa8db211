package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_EnvOnlyDefaults(t *testing.T) {
	cfg, err := Load("", true)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if cfg.Clint.PerPage != 200 {
		t.Fatalf("per_page=%d want=200", cfg.Clint.PerPage)
	}
	if cfg.Sync.AutoMaxPages != 5 {
		t.Fatalf("auto_max_pages=%d want=5", cfg.Sync.AutoMaxPages)
	}
	if cfg.Sync.FullMaxPages != 1000 {
		t.Fatalf("full_max_pages=%d want=1000", cfg.Sync.FullMaxPages)
	}
	if cfg.Sync.PageDelay != 300*time.Millisecond {
		t.Fatalf("page_delay=%s want=300ms", cfg.Sync.PageDelay)
	}
	if cfg.Lock.Backend != "memory" {
		t.Fatalf("lock.backend=%q want=memory", cfg.Lock.Backend)
	}
	if cfg.DB.Driver != "postgres" {
		t.Fatalf("db.driver=%q want=postgres", cfg.DB.Driver)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CRM_CLINT_TOKEN", "secret-token")
	t.Setenv("CRM_SYNC_AUTO_MAX_PAGES", "3")
	cfg, err := Load("", true)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if cfg.Clint.Token != "secret-token" {
		t.Fatalf("token=%q want=secret-token", cfg.Clint.Token)
	}
	if cfg.Sync.AutoMaxPages != 3 {
		t.Fatalf("auto_max_pages=%d want=3", cfg.Sync.AutoMaxPages)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
db:
  driver: sqlite
  dsn: file:crm.db
sync:
  page_delay: 1s
  origin_ids: ["o-1", "o-2"]
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.DSN != "file:crm.db" {
		t.Fatalf("db=%+v", cfg.DB)
	}
	if cfg.Sync.PageDelay != time.Second {
		t.Fatalf("page_delay=%s want=1s", cfg.Sync.PageDelay)
	}
	if len(cfg.Sync.OriginIDs) != 2 || cfg.Sync.OriginIDs[1] != "o-2" {
		t.Fatalf("origin_ids=%v", cfg.Sync.OriginIDs)
	}
}
