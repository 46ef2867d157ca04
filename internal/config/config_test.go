package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadEngine_FileEnvAndDefaults(t *testing.T) {
	path := write(t, t.TempDir(), "engine.yml", `schema_version: v1
processes_dir: /etc/pipeflow/processes
log: { level: debug }
subprocess:
  max_processes: 3
  sleep_interval: 250ms
`)
	t.Setenv("PIPEFLOW__HISTORY__PATH", "/var/lib/pipeflow/history")
	t.Setenv("PIPEFLOW__SUBPROCESS__MAX_PROCESSES", "8")
	t.Setenv("PIPEFLOW__GRPC_PORT", "7171")

	cfg, err := LoadEngine(path)
	if err != nil {
		t.Fatalf("LoadEngine: %v", err)
	}
	if cfg.ProcessesDir != "/etc/pipeflow/processes" || cfg.Log.Level != "debug" {
		t.Fatalf("file values not loaded: %+v", cfg)
	}
	if cfg.History.Path != "/var/lib/pipeflow/history" {
		t.Fatalf("history path from env, got %q", cfg.History.Path)
	}
	if cfg.Subprocess.MaxProcesses != 8 || cfg.GRPCPort != 7171 {
		t.Fatalf("env must override file: %+v", cfg)
	}
	if cfg.Subprocess.SleepInterval != 250*time.Millisecond {
		t.Fatalf("sleep_interval: got %v", cfg.Subprocess.SleepInterval)
	}
	if cfg.Subprocess.KillGracePeriod != 5*time.Second || cfg.MetricsPort != 9100 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadEngine_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadEngine(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("LoadEngine: %v", err)
	}
	if cfg.ProcessesDir != "processes" || cfg.Log.Level != "info" || cfg.Subprocess.MaxProcesses != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadEngine_InvalidSchema(t *testing.T) {
	path := write(t, t.TempDir(), "engine.yml", "schema_version: v9\n")
	if _, err := LoadEngine(path); err == nil {
		t.Fatal("expected error for invalid schema_version")
	}
}

func TestLoadProcesses_Directory(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.yml", `schema_version: v1
processes:
  orders.import:
    tasks:
      read: { service: iterate }
`)
	write(t, dir, "b.yaml", `processes:
  orders.export:
    public: false
    tasks:
      read: { service: iterate }
`)
	write(t, dir, "notes.txt", "not a definition")

	cat, err := LoadProcesses(dir)
	if err != nil {
		t.Fatalf("LoadProcesses: %v", err)
	}
	procs := cat.Processes()
	if len(procs) != 2 || procs[0].Code != "orders.export" || procs[1].Code != "orders.import" {
		t.Fatalf("unexpected processes: %v", procs)
	}
	if procs[0].IsPublic() {
		t.Fatal("orders.export is declared private")
	}
}

func TestLoadProcesses_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := write(t, dir, "bad.yml", "schema_version: v999\nprocesses: {}\n")
	if _, err := LoadProcesses(bad); err == nil {
		t.Fatal("expected error for invalid schema_version")
	}

	dup := t.TempDir()
	body := "processes:\n  p:\n    tasks:\n      a: { service: iterate }\n"
	write(t, dup, "one.yml", body)
	write(t, dup, "two.yml", body)
	if _, err := LoadProcesses(dup); err == nil {
		t.Fatal("expected error for a process defined twice")
	}

	if _, err := LoadProcesses(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for a missing path")
	}
}

func TestLoadEngine_KeepsExplicitZeroDurations(t *testing.T) {
	path := write(t, t.TempDir(), "engine.yml", `subprocess:
  sleep_interval_after_launch: 50ms
  kill_grace_period: 0s
  sleep_interval: 0
`)
	cfg, err := LoadEngine(path)
	if err != nil {
		t.Fatalf("LoadEngine: %v", err)
	}
	if cfg.Subprocess.KillGracePeriod != 0 || cfg.Subprocess.SleepInterval != 0 {
		t.Fatalf("explicit zero replaced: %+v", cfg.Subprocess)
	}
	if cfg.Subprocess.SleepOnFinalizeInterval != time.Second || cfg.Subprocess.MaxProcesses != 5 {
		t.Fatalf("unset fields must keep defaults: %+v", cfg.Subprocess)
	}
	if cfg.Subprocess.SleepIntervalAfterLaunch != 50*time.Millisecond {
		t.Fatalf("sleep_interval_after_launch: got %v", cfg.Subprocess.SleepIntervalAfterLaunch)
	}
}
