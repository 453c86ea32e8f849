package dag

import (
	"fmt"
	"strings"
)

// Colors of the iterative depth-first search. A node is white until first
// visited, gray while somewhere on the explicit stack, and black once every
// path out of it has been explored.
const (
	white uint8 = iota
	gray
	black
)

// frame is one entry of the explicit DFS stack: the node being expanded and
// the offset of the next outgoing edge to follow.
type frame struct {
	idx  int
	next int
}

// DetectCycles verifies the graph is acyclic. The search is iterative over
// the index arena, so deep dependency chains never exhaust the stack. On
// failure the error names the full cycle, e.g.
// "Circular dependency detected: a -> b -> a".
func (g *Graph) DetectCycles() error {
	colors := make([]uint8, len(g.nodes))

	for start := range g.nodes {
		if colors[start] != white {
			continue
		}

		stack := []frame{{idx: start}}
		colors[start] = gray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			n := &g.nodes[top.idx]

			if top.next < len(n.deps) {
				dep := n.deps[top.next]
				top.next++

				switch colors[dep] {
				case white:
					colors[dep] = gray
					stack = append(stack, frame{idx: dep})
				case gray:
					// dep is already on the stack: the slice from its frame
					// to the top, plus dep again, is the cycle.
					return fmt.Errorf("Circular dependency detected: %s", g.cyclePath(stack, dep))
				}
				continue
			}

			colors[top.idx] = black
			stack = stack[:len(stack)-1]
		}
	}

	return nil
}

// cyclePath renders the stack segment that closes a cycle at node `at`.
func (g *Graph) cyclePath(stack []frame, at int) string {
	from := 0
	for i, f := range stack {
		if f.idx == at {
			from = i
			break
		}
	}
	names := make([]string, 0, len(stack)-from+1)
	for _, f := range stack[from:] {
		names = append(names, g.nodes[f.idx].name)
	}
	names = append(names, g.nodes[at].name)
	return strings.Join(names, " -> ")
}
