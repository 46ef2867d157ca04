// Package graph builds and validates the task graph of a process.
package graph

import (
	"sort"

	"pipeflow/internal/definition"
)

// Node is one task of a process graph.
type Node struct {
	Code  string
	Task  *definition.Task
	Index int

	Previous      []*Node
	ErrorPrevious []*Node
	Next          []*Node
	Errors        []*Node

	// InErrorBranch is set on nodes that no root reaches through normal
	// edges only.
	InErrorBranch bool
}

// IsRoot reports whether the node has no predecessor of any kind.
func (n *Node) IsRoot() bool {
	return len(n.Previous) == 0 && len(n.ErrorPrevious) == 0
}

// Service is the task registry code of the node.
func (n *Node) Service() string {
	if n.Task == nil {
		return ""
	}
	return n.Task.Service
}

type Graph struct {
	Process *definition.Process
	// Nodes are in declaration order.
	Nodes []*Node
	// Order is a topological order; ties keep declaration order.
	Order []*Node
	Roots []*Node

	// EntryPoint receives the run input. It is nil when the process has
	// several roots and declares none.
	EntryPoint *Node
	EndPoint   *Node

	byCode map[string]*Node
}

// Build links the tasks of p and validates the result.
func Build(p *definition.Process) (*Graph, error) {
	if len(p.Tasks) == 0 {
		return nil, invalidf(p.Code, "no tasks")
	}
	g := &Graph{Process: p, byCode: make(map[string]*Node, len(p.Tasks))}
	for i, t := range p.Tasks {
		n := &Node{Code: t.Code, Task: t, Index: i}
		g.Nodes = append(g.Nodes, n)
		g.byCode[t.Code] = n
	}

	for _, n := range g.Nodes {
		for _, code := range n.Task.Outputs {
			next, ok := g.byCode[code]
			if !ok {
				return nil, invalidf(p.Code, "task %q outputs to unknown task %q", n.Code, code)
			}
			if contains(n.Next, next) {
				continue
			}
			n.Next = append(n.Next, next)
			next.Previous = append(next.Previous, n)
		}
		for _, code := range n.Task.Errors {
			next, ok := g.byCode[code]
			if !ok {
				return nil, invalidf(p.Code, "task %q sends errors to unknown task %q", n.Code, code)
			}
			if contains(n.Errors, next) {
				continue
			}
			n.Errors = append(n.Errors, next)
			next.ErrorPrevious = append(next.ErrorPrevious, n)
		}
	}

	if err := g.sort(); err != nil {
		return nil, err
	}
	for _, n := range g.Nodes {
		if n.IsRoot() {
			g.Roots = append(g.Roots, n)
		}
	}
	g.flagErrorBranches()

	if p.EntryPoint != "" {
		n, ok := g.byCode[p.EntryPoint]
		if !ok {
			return nil, invalidf(p.Code, "unknown entry_point %q", p.EntryPoint)
		}
		if !n.IsRoot() {
			return nil, invalidf(p.Code, "entry_point %q has previous tasks", p.EntryPoint)
		}
		g.EntryPoint = n
	} else if len(g.Roots) == 1 {
		g.EntryPoint = g.Roots[0]
	}
	if p.EndPoint != "" {
		n, ok := g.byCode[p.EndPoint]
		if !ok {
			return nil, invalidf(p.Code, "unknown end_point %q", p.EndPoint)
		}
		g.EndPoint = n
	}
	return g, nil
}

func contains(nodes []*Node, n *Node) bool {
	for _, x := range nodes {
		if x == n {
			return true
		}
	}
	return false
}

func (g *Graph) Node(code string) (*Node, bool) {
	n, ok := g.byCode[code]
	return n, ok
}

// sort computes Order with Kahn's algorithm over normal and error edges.
func (g *Graph) sort() error {
	indegree := make(map[*Node]int, len(g.Nodes))
	var ready []*Node
	for _, n := range g.Nodes {
		indegree[n] = len(n.Previous) + len(n.ErrorPrevious)
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].Index < ready[j].Index })
		n := ready[0]
		ready = ready[1:]
		g.Order = append(g.Order, n)
		for _, next := range successors(n) {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	if len(g.Order) != len(g.Nodes) {
		var stuck []string
		for _, n := range g.Nodes {
			if indegree[n] > 0 {
				stuck = append(stuck, n.Code)
			}
		}
		return cycleError(g.Process.Code, stuck)
	}
	return nil
}

// successors lists next then error targets. A node linked through both
// kinds of edge appears twice.
func successors(n *Node) []*Node {
	out := make([]*Node, 0, len(n.Next)+len(n.Errors))
	out = append(out, n.Next...)
	return append(out, n.Errors...)
}

func (g *Graph) flagErrorBranches() {
	reached := map[*Node]bool{}
	stack := append([]*Node(nil), g.Roots...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reached[n] {
			continue
		}
		reached[n] = true
		stack = append(stack, n.Next...)
	}
	for _, n := range g.Nodes {
		n.InErrorBranch = !reached[n]
	}
}

// Descendants returns every node reachable from n through any edge, n
// excluded, in topological order.
func (g *Graph) Descendants(n *Node) []*Node {
	seen := map[*Node]bool{}
	stack := successors(n)
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[x] {
			continue
		}
		seen[x] = true
		stack = append(stack, successors(x)...)
	}
	out := make([]*Node, 0, len(seen))
	for _, x := range g.Order {
		if seen[x] {
			out = append(out, x)
		}
	}
	return out
}

// Ancestors returns every node from which n is reachable, in topological
// order.
func (g *Graph) Ancestors(n *Node) []*Node {
	seen := map[*Node]bool{}
	stack := append(append([]*Node(nil), n.Previous...), n.ErrorPrevious...)
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[x] {
			continue
		}
		seen[x] = true
		stack = append(stack, x.Previous...)
		stack = append(stack, x.ErrorPrevious...)
	}
	out := make([]*Node, 0, len(seen))
	for _, x := range g.Order {
		if seen[x] {
			out = append(out, x)
		}
	}
	return out
}
