// Copyright 2026 The Nines Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the ambient settings a process hosting a Kernel or
// Store needs at startup: a mount table and per-backend encryption/history
// settings, expressed as YAML, grounded on the teacher's structured-config
// convention. It also supports the teacher's simpler RC-file "key = value"
// format for process-level defaults (store root, key file, default mount
// table path), mirroring its InitContext loader.
package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/beescroll/nines/file"
	"github.com/beescroll/nines/kernel"
	"github.com/beescroll/nines/memory"
	"github.com/beescroll/nines/nine"
	"github.com/beescroll/nines/store"
)

// MountConfig describes one entry of a Kernel's mount table.
type MountConfig struct {
	Prefix  string `yaml:"prefix"`
	Backend string `yaml:"backend"` // "memory" or "file"
	Root    string `yaml:"root,omitempty"`

	Encrypted  bool   `yaml:"encrypted,omitempty"`
	KeyFile    string `yaml:"key_file,omitempty"`
	AppName    string `yaml:"app_name,omitempty"`
	History    bool   `yaml:"history,omitempty"`
	HistoryDir string `yaml:"history_dir,omitempty"`
	MaxPatches int    `yaml:"max_patches,omitempty"`
	MaxAnchors int    `yaml:"max_anchors,omitempty"`
}

// KernelConfig is the top-level YAML document describing a Kernel's mount
// table.
type KernelConfig struct {
	Mounts []MountConfig `yaml:"mounts"`
}

// LoadKernelConfig parses a Kernel mount-table YAML document.
func LoadKernelConfig(raw []byte) (*KernelConfig, error) {
	const op = "config.LoadKernelConfig"
	var cfg KernelConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, nine.E(op, nine.InvalidData, err)
	}
	for _, m := range cfg.Mounts {
		if m.Prefix == "" {
			return nil, nine.E(op, nine.InvalidData, nine.Err("mount entry missing prefix"))
		}
		if m.Backend != "memory" && m.Backend != "file" {
			return nil, nine.E(op, nine.InvalidData, nine.Err("mount entry has unrecognized backend: "+m.Backend))
		}
	}
	return &cfg, nil
}

// LoadKernelConfigFile reads and parses path as a Kernel mount-table YAML
// document.
func LoadKernelConfigFile(path string) (*KernelConfig, error) {
	const op = "config.LoadKernelConfigFile"
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nine.E(op, nine.Internal, err)
	}
	return LoadKernelConfig(raw)
}

// ProcessDefaults holds the process-level settings the teacher's
// InitContext loads from a small "key = value" RC file, overridable by
// environment variables of the same upper-cased name prefixed NINE_S_.
type ProcessDefaults struct {
	StoreRoot       string
	KeyFile         string
	DefaultMountCfg string
	WatcherCap      int
}

// LoadProcessDefaults reads path as a "key = value" RC file (blank lines
// and lines beginning with "#" are ignored), then applies any
// NINE_S_-prefixed environment variable overrides.
func LoadProcessDefaults(path string) (*ProcessDefaults, error) {
	const op = "config.LoadProcessDefaults"
	values := map[string]string{}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, nine.E(op, nine.Internal, err)
			}
		} else {
			defer f.Close()
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				parts := strings.SplitN(line, "=", 2)
				if len(parts) != 2 {
					return nil, nine.E(op, nine.InvalidData, nine.Err("malformed RC line: "+line))
				}
				values[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
			}
			if err := scanner.Err(); err != nil {
				return nil, nine.E(op, nine.Internal, err)
			}
		}
	}

	d := &ProcessDefaults{
		StoreRoot:       values["store_root"],
		KeyFile:         values["key_file"],
		DefaultMountCfg: values["default_mount_config"],
		WatcherCap:      1024,
	}
	if v, ok := values["watcher_cap"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, nine.E(op, nine.InvalidData, nine.Err("watcher_cap must be an integer"))
		}
		d.WatcherCap = n
	}

	applyEnvOverride(&d.StoreRoot, "NINE_S_STORE_ROOT")
	applyEnvOverride(&d.KeyFile, "NINE_S_KEY_FILE")
	applyEnvOverride(&d.DefaultMountCfg, "NINE_S_DEFAULT_MOUNT_CONFIG")
	if v, ok := os.LookupEnv("NINE_S_WATCHER_CAP"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			d.WatcherCap = n
		}
	}
	return d, nil
}

func applyEnvOverride(field *string, envVar string) {
	if v, ok := os.LookupEnv(envVar); ok {
		*field = v
	}
}

// Build constructs a Kernel with every entry of cfg mounted, wiring a
// Memory or File backend (optionally wrapped in a Store for encryption or
// history) per entry's settings.
func Build(cfg *KernelConfig) (*kernel.Kernel, error) {
	const op = "config.Build"
	k := kernel.New()
	for _, m := range cfg.Mounts {
		ns, err := buildMount(m)
		if err != nil {
			return nil, nine.E(op, nine.InvalidData, err)
		}
		if err := k.Mount(m.Prefix, ns); err != nil {
			return nil, err
		}
	}
	return k, nil
}

func buildMount(m MountConfig) (nine.Namespace, error) {
	var backend nine.Namespace
	switch m.Backend {
	case "memory":
		backend = memory.New()
	case "file":
		root := m.Root
		if root == "" {
			root = "."
		}
		f, err := file.New(root)
		if err != nil {
			return nil, err
		}
		backend = f
	default:
		return nil, nine.Err("unrecognized backend: " + m.Backend)
	}

	if !m.Encrypted && !m.History {
		return backend, nil
	}

	storeCfg := store.Config{
		History:    m.History,
		HistoryDir: m.HistoryDir,
		MaxPatches: m.MaxPatches,
		MaxAnchors: m.MaxAnchors,
	}
	if m.Encrypted {
		key, err := loadKey(m.KeyFile, m.AppName)
		if err != nil {
			return nil, err
		}
		storeCfg.Encrypted = true
		storeCfg.Key = key
	}
	return store.New(backend, storeCfg)
}

func loadKey(keyFile, appName string) ([]byte, error) {
	if keyFile == "" {
		return nil, nine.Err("encrypted mount requires key_file")
	}
	master, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}
	if appName == "" {
		if len(master) != 32 {
			return nil, nine.Err("key_file must contain exactly 32 bytes when app_name is unset")
		}
		return master, nil
	}
	return store.DeriveAppKey(master, appName)
}
