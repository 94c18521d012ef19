package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppPort != 8080 {
		t.Fatalf("expected default port 8080 got %d", cfg.AppPort)
	}
	if cfg.ObjectStore.Driver != DriverHTTP {
		t.Fatalf("expected http storage driver got %q", cfg.ObjectStore.Driver)
	}
	if cfg.CleanupSchedule != "@every 1h" {
		t.Fatalf("unexpected cleanup schedule %q", cfg.CleanupSchedule)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zoner.yaml")
	contents := []byte(`
port: 9090
auth:
  jwtSecret: file-secret-0123456789
  accessTtl: 2h
objectStore:
  driver: minio
  bucket: from-file
`)
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("ZONER_CONFIG_FILE", path)
	t.Setenv("ZONER_STORAGE_BUCKET", "from-env")
	t.Setenv("ZONER_MEDIA_WORKERS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.AppPort != 9090 {
		t.Fatalf("expected port from file got %d", cfg.AppPort)
	}
	if cfg.Auth.AccessTTL != 2*time.Hour {
		t.Fatalf("expected access ttl from file got %s", cfg.Auth.AccessTTL)
	}
	if cfg.ObjectStore.Driver != DriverMinio {
		t.Fatalf("expected minio driver got %q", cfg.ObjectStore.Driver)
	}
	if cfg.ObjectStore.Bucket != "from-env" {
		t.Fatalf("expected env bucket to win got %q", cfg.ObjectStore.Bucket)
	}
	if cfg.Media.Workers != 2 {
		t.Fatalf("expected invalid worker count to fall back to 2 got %d", cfg.Media.Workers)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database", func(c *Config) { c.DatabaseURL = " " }},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }},
		{"unknown driver", func(c *Config) { c.ObjectStore.Driver = "ftp" }},
		{"upload timeout below transcode", func(c *Config) { c.HTTP.UploadTimeout = c.Media.TranscodeTimeout }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := defaults().Validate(); err != nil {
		t.Fatalf("expected defaults to validate got %v", err)
	}
}

func TestLoadHTTPTimeouts(t *testing.T) {
	t.Setenv("ZONER_HTTP_WRITE_TIMEOUT", "45s")
	t.Setenv("ZONER_TRANSCODE_TIMEOUT", "3m")
	t.Setenv("ZONER_HTTP_UPLOAD_TIMEOUT", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.WriteTimeout != 45*time.Second {
		t.Fatalf("expected write timeout 45s got %s", cfg.HTTP.WriteTimeout)
	}
	if cfg.HTTP.UploadTimeout != 5*time.Minute {
		t.Fatalf("expected upload timeout 5m got %s", cfg.HTTP.UploadTimeout)
	}
	if cfg.HTTP.ReadTimeout != time.Minute {
		t.Fatalf("expected default read timeout 1m got %s", cfg.HTTP.ReadTimeout)
	}

	t.Setenv("ZONER_HTTP_UPLOAD_TIMEOUT", "90s")
	if _, err := Load(); err == nil {
		t.Fatal("expected upload timeout shorter than transcode timeout to fail")
	}
}
