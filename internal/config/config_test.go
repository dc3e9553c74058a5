package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Market != "ph" || c.Lang != "en" || c.Source != "play" {
		t.Fatalf("defaults = %+v", c)
	}
	if c.OutputDir != "app_reviews" || c.RollingWindowDays != 30 || c.PacingMillis != 1000 {
		t.Fatalf("defaults = %+v", c)
	}
	if c.Database.DSN != filepath.Join("app_reviews", "reviews.db") {
		t.Fatalf("dsn = %s", c.Database.DSN)
	}
	if c.Concurrency.Apps != 1 || c.Concurrency.Attempts != 4 {
		t.Fatalf("concurrency = %+v", c.Concurrency)
	}
}

func TestLoad_ParsesAndValidates(t *testing.T) {
	path := writeConfig(t, `
MARKET: us
SOURCE: appstore
MAX_REVIEWS: 500
OUTPUT_DIR: out
ROLLING_WINDOW_DAYS: 7
PACING_MS: 250
CONCURRENCY:
  apps: 2
  attempts: 3
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Market != "us" || c.Source != "appstore" || c.MaxReviews != 500 {
		t.Fatalf("config = %+v", c)
	}
	if c.RollingWindowDays != 7 || c.PacingMillis != 250 {
		t.Fatalf("config = %+v", c)
	}
	if c.Concurrency.Apps != 2 || c.Concurrency.Attempts != 3 {
		t.Fatalf("concurrency = %+v", c.Concurrency)
	}
	if c.Database.DSN != filepath.Join("out", "reviews.db") {
		t.Fatalf("dsn = %s", c.Database.DSN)
	}
}

func TestValidate_Rejections(t *testing.T) {
	bad := []string{
		"MAX_REVIEWS: -1",
		"ROLLING_WINDOW_DAYS: -5",
		"PACING_MS: -1",
		"SOURCE: steam",
		"DATABASE:\n  type: postgres",
	}
	for _, body := range bad {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("config %q accepted, want error", body)
		}
	}
}

func TestValidate_ConcurrencyCappedAtThree(t *testing.T) {
	c := &Config{Concurrency: Concurrency{Apps: 10}}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.Concurrency.Apps != 3 {
		t.Fatalf("apps = %d, want capped at 3", c.Concurrency.Apps)
	}
}
