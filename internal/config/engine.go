// Package config loads the engine settings and the process definitions.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"pipeflow/internal/subprocess"
)

const envPrefix = "PIPEFLOW__"

type Log struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type History struct {
	// Path of the history directory, one YAML file per run; empty keeps
	// history in memory.
	Path string `koanf:"path"`
}

// Engine holds the process-wide settings.
type Engine struct {
	Log          Log               `koanf:"log"`
	ProcessesDir string            `koanf:"processes_dir"`
	History      History           `koanf:"history"`
	MetricsPort  int               `koanf:"metrics_port"`
	GRPCPort     int               `koanf:"grpc_port"`
	Subprocess   subprocess.Config `koanf:"subprocess"`
}

// LoadEngine merges YAML (if present) with env-vars (prefix `PIPEFLOW__`,
// delimiter `__`, so PIPEFLOW__SUBPROCESS__MAX_PROCESSES=8).
func LoadEngine(path string) (Engine, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Engine{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if sv := k.String("schema_version"); sv != "" && sv != SupportedSchema {
		return Engine{}, fmt.Errorf("engine schema_version %q not supported (want %s)", sv, SupportedSchema)
	}

	_ = k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)

	cfg := Engine{Subprocess: subprocess.DefaultConfig()}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(c *Engine) {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.ProcessesDir == "" {
		c.ProcessesDir = "processes"
	}
	if c.MetricsPort == 0 {
		c.MetricsPort = 9100
	}
	if c.GRPCPort == 0 {
		c.GRPCPort = 7070
	}
	c.Subprocess = c.Subprocess.Normalize()
}
