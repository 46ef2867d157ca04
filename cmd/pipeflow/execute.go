package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pipeflow/internal/record"
)

var (
	execInput     string
	execFromStdin bool
	execContext   []string

	executeCmd = &cobra.Command{
		Use:   "execute <process>...",
		Short: "Run one or more processes in order",
		Long: `Run processes one after the other, stopping at the first failure.

The input is decoded as JSON when it parses, and kept as a string otherwise.
--context entries are substituted into "{{ key }}" placeholders of task
options. The output of each process end_point is printed as JSON.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runExecute,
	}
)

func init() {
	executeCmd.Flags().StringVarP(&execInput, "input", "i", "", "run input")
	executeCmd.Flags().BoolVar(&execFromStdin, "input-from-stdin", false, "read the run input from stdin")
	executeCmd.Flags().StringArrayVarP(&execContext, "context", "c", nil, "run context entry key:value (repeatable)")
}

func runExecute(cmd *cobra.Command, args []string) error {
	runContext, err := parseContext(execContext)
	if err != nil {
		return err
	}
	input, err := readInput(cmd.InOrStdin())
	if err != nil {
		return err
	}

	e, _, err := bootstrap()
	if err != nil {
		return err
	}
	defer e.Recorder().Close()

	for _, code := range args {
		res, err := e.Execute(cmd.Context(), code, input, runContext)
		if err != nil {
			return &exitError{code: res.ReturnCode, err: fmt.Errorf("%s: %w", code, err)}
		}
		if res.HasOutput {
			out, err := record.Encode(res.Output)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
		}
	}
	return nil
}

func readInput(stdin io.Reader) (any, error) {
	raw := execInput
	switch {
	case execFromStdin:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = string(b)
	case raw == "":
		return nil, nil
	}
	return decodeInput(raw), nil
}

func decodeInput(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	if v, err := record.Decode([]byte(trimmed)); err == nil {
		return v
	}
	return raw
}

// parseContext reads "key:value" entries; the value may contain colons.
func parseContext(entries []string) (map[string]any, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid context %q (want key:value)", entry)
		}
		out[key] = value
	}
	return out, nil
}
