package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "berth.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error when config file missing")
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
environment: STAGING
pools:
  - name: db
    capacity: 4
  - name: scanners
    capacity: 2
runner:
  workers: 6
  queue: 16
  ratePerSecond: 25
  burst: 5
telemetry:
  otlpEndpoint: http://localhost:4318
  serviceName: berth-soak
  otlpInsecure: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Environment != EnvStaging {
		t.Fatalf("expected normalised staging environment, got %q", cfg.Environment)
	}
	if len(cfg.Pools) != 2 || cfg.Pools[0].Name != "db" || cfg.Pools[0].Capacity != 4 {
		t.Fatalf("unexpected pools: %+v", cfg.Pools)
	}
	if got := cfg.Runner.Workers.Count(); got != 6 {
		t.Fatalf("expected 6 workers, got %d", got)
	}
	if cfg.Runner.Queue != 16 || cfg.Runner.Burst != 5 {
		t.Fatalf("unexpected runner config: %+v", cfg.Runner)
	}
	if cfg.Telemetry.ServiceName != "berth-soak" || !cfg.Telemetry.OTLPInsecure {
		t.Fatalf("unexpected telemetry config: %+v", cfg.Telemetry)
	}
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	cfg, loaded, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if loaded {
		t.Fatalf("expected fallback to defaults")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadOrDefaultSurfacesInvalidFile(t *testing.T) {
	path := writeConfig(t, `
environment: dev
pools:
  - name: workers
    capacity: 0
`)
	_, _, err := LoadOrDefault(path)
	if err == nil || !strings.Contains(err.Error(), "capacity must be >0") {
		t.Fatalf("expected capacity validation error, got %v", err)
	}
}

func TestWorkerSettingScalars(t *testing.T) {
	cases := []struct {
		value string
		check func(t *testing.T, got int)
	}{
		{"auto", func(t *testing.T, got int) {
			if got <= 0 {
				t.Fatalf("auto workers must resolve positive, got %d", got)
			}
		}},
		{"default", func(t *testing.T, got int) {
			if got != defaultWorkerCount {
				t.Fatalf("expected default worker count, got %d", got)
			}
		}},
		{"3", func(t *testing.T, got int) {
			if got != 3 {
				t.Fatalf("expected 3 workers, got %d", got)
			}
		}},
	}

	for _, tc := range cases {
		path := writeConfig(t, `
environment: dev
pools:
  - name: workers
    capacity: 1
runner:
  workers: `+tc.value+`
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("load with workers=%s: %v", tc.value, err)
		}
		tc.check(t, cfg.Runner.Workers.Count())
	}
}

func TestWorkerSettingRejectsInvalidValues(t *testing.T) {
	for _, bad := range []string{"none", "-2", "0"} {
		path := writeConfig(t, `
environment: dev
pools:
  - name: workers
    capacity: 1
runner:
  workers: "`+bad+`"
`)
		if _, err := Load(path); err == nil {
			t.Fatalf("expected rejection of workers=%q", bad)
		}
	}
}

func TestValidateRejectsDuplicatePools(t *testing.T) {
	path := writeConfig(t, `
environment: dev
pools:
  - name: same
    capacity: 1
  - name: same
    capacity: 2
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "declared twice") {
		t.Fatalf("expected duplicate pool rejection, got %v", err)
	}
}

func TestValidateRejectsUnknownEnvironment(t *testing.T) {
	path := writeConfig(t, `
environment: sandbox
pools:
  - name: workers
    capacity: 1
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected environment validation error")
	}
}
