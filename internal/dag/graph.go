package dag

import (
	"context"
	"fmt"

	"github.com/vk/sessionkit/internal/config"
	"github.com/vk/sessionkit/internal/ctxlog"
)

// Graph is the immutable rule dependency graph. It is built fresh per apply
// call and is safe to share across workers once Build returns.
type Graph struct {
	nodes []node
	index map[string]int
}

// node is one rule in the arena. deps and dependents hold arena indices.
type node struct {
	name       string
	spec       *config.RuleSpec
	deps       []int
	dependents []int
}

// Build constructs a validated dependency graph from the config model.
// Unknown dependency names and cycles are rejected here.
func Build(ctx context.Context, model *config.Model) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)

	g := &Graph{
		nodes: make([]node, 0, len(model.Rules)),
		index: make(map[string]int, len(model.Rules)),
	}

	for _, spec := range model.Rules {
		if _, dup := g.index[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate rule name: %s", spec.Name)
		}
		g.index[spec.Name] = len(g.nodes)
		g.nodes = append(g.nodes, node{name: spec.Name, spec: spec})
	}

	for i := range g.nodes {
		for _, depName := range g.nodes[i].spec.Dependencies {
			j, ok := g.index[depName]
			if !ok {
				return nil, fmt.Errorf("Unknown dependency: %s", depName)
			}
			if j == i {
				return nil, fmt.Errorf("Circular dependency detected: %s -> %s", g.nodes[i].name, g.nodes[i].name)
			}
			g.nodes[i].deps = append(g.nodes[i].deps, j)
			g.nodes[j].dependents = append(g.nodes[j].dependents, i)
		}
	}

	if err := g.DetectCycles(); err != nil {
		return nil, err
	}

	logger.Debug("Dependency graph built.", "rules", len(g.nodes))
	return g, nil
}

// Len returns the number of rules in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// Spec returns the rule spec for the given name.
func (g *Graph) Spec(name string) *config.RuleSpec {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.nodes[i].spec
}

// Dependencies returns the names of the rules the given rule depends on, in
// declaration order of the dependencies list.
func (g *Graph) Dependencies(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.nodes[i].deps))
	for _, j := range g.nodes[i].deps {
		out = append(out, g.nodes[j].name)
	}
	return out
}

// Dependents returns the names of the rules that depend on the given rule.
func (g *Graph) Dependents(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.nodes[i].dependents))
	for _, j := range g.nodes[i].dependents {
		out = append(out, g.nodes[j].name)
	}
	return out
}
