package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pipeflow/internal/config"
	"pipeflow/internal/engine"
	"pipeflow/internal/history"
	"pipeflow/internal/subprocess"
)

var (
	version = "0.1.0"

	configPath   string
	processesDir string

	rootCmd = &cobra.Command{
		Use:   "pipeflow",
		Short: "Run record-processing graphs declared in YAML",
		Long: `pipeflow runs processes: graphs of tasks declared in YAML that read,
transform, filter, aggregate and write records.

Engine settings come from --config and PIPEFLOW__* environment variables
(PIPEFLOW__SUBPROCESS__MAX_PROCESSES=8).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// exitError carries the return code of a failed run to main.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	var ee *exitError
	if errors.As(err, &ee) && ee.code != 0 {
		os.Exit(ee.code)
	}
	os.Exit(1)
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "pipeflow.yml", "engine config file")
	rootCmd.PersistentFlags().StringVar(&processesDir, "processes", "", "process definition file or directory (overrides processes_dir)")

	rootCmd.AddCommand(executeCmd, listCmd, treeCmd, purgeCmd, historyCmd, serveCmd, healthCmd)
}

func loadConfig() (config.Engine, error) {
	cfg, err := config.LoadEngine(configPath)
	if err != nil {
		return cfg, err
	}
	if processesDir != "" {
		cfg.ProcessesDir = processesDir
	}
	return cfg, nil
}

// bootstrap builds the engine. Children of the subprocess task re-run this
// binary with the same config.
func bootstrap() (*engine.Engine, config.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	self, err := os.Executable()
	if err != nil {
		return nil, cfg, err
	}
	args := []string{"--config", configPath}
	if processesDir != "" {
		args = append(args, "--processes", processesDir)
	}
	e, err := engine.Bootstrap(cfg, subprocess.SelfCommand(self, args...))
	return e, cfg, err
}

func openStore() (history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.History.Path == "" {
		return nil, errors.New("history.path is not configured; in-memory history does not outlive a run")
	}
	return history.NewDirStore(cfg.History.Path), nil
}
