package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	os.Clearenv()
	cfg := LoadConfig()
	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.DefaultTTL != 300*time.Second {
		t.Errorf("expected default TTL 300s, got %v", cfg.DefaultTTL)
	}
	if cfg.StorageBackend != "filesystem" {
		t.Errorf("expected default storage filesystem, got %s", cfg.StorageBackend)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("expected default data dir ./data, got %s", cfg.DataDir)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("TASKGRAB_PORT", "9090")
	os.Setenv("TASKGRAB_TTL", "15m")
	os.Setenv("TASKGRAB_STORAGE", "mongodb")
	os.Setenv("TASKGRAB_MONGO_URL", "mongodb://db:27017")
	os.Setenv("TASKGRAB_MONGO_DB", "exchange")
	os.Setenv("TASKGRAB_OFFICIAL_FILE", "/etc/taskgrab/official.json")
	defer os.Clearenv()

	cfg := LoadConfig()
	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.DefaultTTL != 15*time.Minute {
		t.Errorf("expected TTL 15m, got %v", cfg.DefaultTTL)
	}
	if cfg.StorageBackend != "mongodb" {
		t.Errorf("expected storage mongodb, got %s", cfg.StorageBackend)
	}
	if cfg.MongoURL != "mongodb://db:27017" {
		t.Errorf("expected mongo url override, got %s", cfg.MongoURL)
	}
	if cfg.MongoDB != "exchange" {
		t.Errorf("expected mongo db override, got %s", cfg.MongoDB)
	}
	if cfg.OfficialFile != "/etc/taskgrab/official.json" {
		t.Errorf("expected official file override, got %s", cfg.OfficialFile)
	}
}

func TestLoadConfig_InvalidEnvIgnored(t *testing.T) {
	os.Clearenv()
	os.Setenv("TASKGRAB_PORT", "not-a-number")
	os.Setenv("TASKGRAB_TTL", "not-a-duration")
	defer os.Clearenv()

	cfg := LoadConfig()
	if cfg.Port != 8080 {
		t.Errorf("invalid TASKGRAB_PORT should keep default, got %d", cfg.Port)
	}
	if cfg.DefaultTTL != 300*time.Second {
		t.Errorf("invalid TASKGRAB_TTL should keep default, got %v", cfg.DefaultTTL)
	}
}
