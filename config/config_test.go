package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadKernelConfig(t *testing.T) {
	raw := []byte(`
mounts:
  - prefix: /
    backend: memory
  - prefix: /wallet
    backend: memory
    history: true
    max_patches: 5
`)
	cfg, err := LoadKernelConfig(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Mounts) != 2 {
		t.Fatalf("mounts = %+v", cfg.Mounts)
	}
	if cfg.Mounts[1].Prefix != "/wallet" || !cfg.Mounts[1].History || cfg.Mounts[1].MaxPatches != 5 {
		t.Fatalf("mounts[1] = %+v", cfg.Mounts[1])
	}
}

func TestLoadKernelConfigRejectsUnknownBackend(t *testing.T) {
	raw := []byte(`
mounts:
  - prefix: /
    backend: bogus
`)
	if _, err := LoadKernelConfig(raw); err == nil {
		t.Fatal("expected error for unrecognized backend")
	}
}

func TestBuildWiresMemoryMounts(t *testing.T) {
	cfg, err := LoadKernelConfig([]byte(`
mounts:
  - prefix: /
    backend: memory
  - prefix: /wallet
    backend: memory
`))
	if err != nil {
		t.Fatal(err)
	}
	k, err := Build(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := k.Write("/wallet/balance", map[string]any{"v": 1.0}); err != nil {
		t.Fatal(err)
	}
	if _, err := k.Read("/wallet/balance"); err != nil {
		t.Fatal(err)
	}
}

func TestLoadProcessDefaultsFromRCFile(t *testing.T) {
	dir := t.TempDir()
	rc := filepath.Join(dir, "nine_s.rc")
	if err := os.WriteFile(rc, []byte("# comment\nstore_root = /var/nine_s\nwatcher_cap = 2048\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := LoadProcessDefaults(rc)
	if err != nil {
		t.Fatal(err)
	}
	if d.StoreRoot != "/var/nine_s" || d.WatcherCap != 2048 {
		t.Fatalf("defaults = %+v", d)
	}
}

func TestLoadProcessDefaultsEnvOverride(t *testing.T) {
	t.Setenv("NINE_S_STORE_ROOT", "/from/env")
	d, err := LoadProcessDefaults("")
	if err != nil {
		t.Fatal(err)
	}
	if d.StoreRoot != "/from/env" {
		t.Fatalf("StoreRoot = %q, want env override", d.StoreRoot)
	}
}
