package graph

import (
	"fmt"
	"io"
	"strings"
)

// Render draws the graph one task per row in topological order. Each column
// of the lane table holds the node a branch is heading to:
//
//	* read (iterate) -> map
//	* map (transformer) -> write, stats !> log
//	| \ \
//	* | | write (sink) [end]
//	* | stats (counter)
//	* log (log) [error branch]
func (g *Graph) Render(w io.Writer) error {
	var lanes []*Node
	for _, n := range g.Order {
		col := indexOf(lanes, n)
		if col < 0 {
			lanes = append(lanes, n)
			col = len(lanes) - 1
		}
		if err := row(w, lanes, col, "*", g.label(n)); err != nil {
			return err
		}

		var fresh []*Node
		joined := -1
		for _, child := range successors(n) {
			if j := indexOf(lanes, child); j >= 0 {
				if joined < 0 {
					joined = j
				}
				continue
			}
			if indexOf(fresh, child) < 0 {
				fresh = append(fresh, child)
			}
		}

		if len(fresh) == 0 {
			if joined >= 0 && joined != col {
				mark := "/"
				if joined > col {
					mark = "\\"
				}
				if err := row(w, lanes, col, mark, ""); err != nil {
					return err
				}
			}
			lanes = append(lanes[:col:col], lanes[col+1:]...)
			continue
		}

		lanes[col] = fresh[0]
		if len(fresh) > 1 {
			rest := append(append([]*Node(nil), fresh[1:]...), lanes[col+1:]...)
			lanes = append(lanes[:col+1], rest...)
			cells := make([]string, len(lanes))
			for i := range lanes {
				cells[i] = "|"
				if i > col && i < col+len(fresh) {
					cells[i] = "\\"
				}
			}
			if _, err := fmt.Fprintln(w, strings.Join(cells, " ")); err != nil {
				return err
			}
		}
	}
	return nil
}

// Tree returns Render's output as a string.
func (g *Graph) Tree() string {
	var b strings.Builder
	_ = g.Render(&b)
	return b.String()
}

func row(w io.Writer, lanes []*Node, col int, mark, label string) error {
	cells := make([]string, len(lanes))
	for i := range lanes {
		cells[i] = "|"
	}
	cells[col] = mark
	line := strings.Join(cells, " ")
	if label != "" {
		line += " " + label
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func (g *Graph) label(n *Node) string {
	var b strings.Builder
	b.WriteString(n.Code)
	if s := n.Service(); s != "" {
		fmt.Fprintf(&b, " (%s)", s)
	}
	if len(n.Next) > 0 {
		b.WriteString(" -> " + codes(n.Next))
	}
	if len(n.Errors) > 0 {
		b.WriteString(" !> " + codes(n.Errors))
	}
	if n == g.EntryPoint && len(g.Roots) > 1 {
		b.WriteString(" [entry]")
	}
	if n == g.EndPoint {
		b.WriteString(" [end]")
	}
	if n.InErrorBranch {
		b.WriteString(" [error branch]")
	}
	return b.String()
}

func codes(nodes []*Node) string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Code
	}
	return strings.Join(out, ", ")
}

func indexOf(nodes []*Node, n *Node) int {
	for i, x := range nodes {
		if x == n {
			return i
		}
	}
	return -1
}
