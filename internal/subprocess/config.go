package subprocess

import (
	"time"
)

// Config bounds the pool. Loaders decode over DefaultConfig, so a field left
// out keeps its default while an explicit zero duration is kept.
type Config struct {
	MaxProcesses             int           `koanf:"max_processes" option:"max_processes"`
	SleepInterval            time.Duration `koanf:"sleep_interval" option:"sleep_interval"`
	SleepIntervalAfterLaunch time.Duration `koanf:"sleep_interval_after_launch" option:"sleep_interval_after_launch"`
	SleepOnFinalizeInterval  time.Duration `koanf:"sleep_on_finalize_interval" option:"sleep_on_finalize_interval"`
	KillGracePeriod          time.Duration `koanf:"kill_grace_period" option:"kill_grace_period"`
}

func DefaultConfig() Config {
	return Config{
		MaxProcesses:            5,
		SleepInterval:           time.Second,
		SleepOnFinalizeInterval: time.Second,
		KillGracePeriod:         5 * time.Second,
	}
}

// Normalize returns DefaultConfig for a zero Config. Otherwise it raises
// MaxProcesses below 1 to the default and clamps negative durations to 0.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c == (Config{}) {
		return def
	}
	if c.MaxProcesses < 1 {
		c.MaxProcesses = def.MaxProcesses
	}
	for _, d := range []*time.Duration{&c.SleepInterval, &c.SleepIntervalAfterLaunch, &c.SleepOnFinalizeInterval, &c.KillGracePeriod} {
		if *d < 0 {
			*d = 0
		}
	}
	return c
}
