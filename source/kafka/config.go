package kafka

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Brokers   []string `koanf:"brokers"`
	Topics    []string `koanf:"topics"`
	StartFrom string   `koanf:"start_from"` // oldest|newest (default oldest)
	Version   string   `koanf:"version"`
	TLSEn     bool     `koanf:"tls_enabled"`
	SASLUser  string   `koanf:"sasl_user"`
	SASLPass  string   `koanf:"sasl_pass"`

	// MaxMessages stops the read after that many messages; 0 reads until idle.
	MaxMessages int           `koanf:"max_messages"`
	IdleTimeout time.Duration `koanf:"idle_timeout"`
}

// LoadConfig merges YAML (if present) with env-vars
// (prefix `PIPEFLOW_KAFKA__`, delimiter `__`).
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	// schema version check (only when YAML is present)
	sv := k.String("schema_version")
	if sv != "" && sv != "v1" {
		return Config{}, fmt.Errorf("kafka schema_version %q not supported (want v1)", sv)
	}

	_ = k.Load(env.Provider("PIPEFLOW_KAFKA__", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "PIPEFLOW_KAFKA__"))
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(c *Config) {
	if c.StartFrom == "" {
		c.StartFrom = "oldest"
	}
	if c.Version == "" {
		c.Version = "2.1.0"
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 5 * time.Second
	}
}

// ApplyDefaults fills unset fields of c.
func ApplyDefaults(c Config) Config {
	applyDefaults(&c)
	return c
}

func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	if len(c.Topics) == 0 {
		return errors.New("kafka: no topics configured")
	}
	if c.StartFrom != "oldest" && c.StartFrom != "newest" {
		return fmt.Errorf("kafka: start_from %q (want oldest or newest)", c.StartFrom)
	}
	return nil
}
