package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	listAll bool

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List the runnable processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := bootstrap()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, p := range e.Catalog().Processes() {
				if !p.IsPublic() && !listAll {
					continue
				}
				fmt.Fprintf(w, "  %s\t%s\n", p.Code, firstLine(p.Description))
			}
			return w.Flush()
		},
	}

	treeCmd = &cobra.Command{
		Use:   "tree <process>",
		Short: "Print the task graph of a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := bootstrap()
			if err != nil {
				return err
			}
			g, err := e.Graph(args[0])
			if err != nil {
				return err
			}
			if p, ok := e.Catalog().Get(args[0]); ok && p.Help != "" {
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(p.Help))
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return g.Render(cmd.OutOrStdout())
		},
	}
)

func init() {
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "include processes declared public: false")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
