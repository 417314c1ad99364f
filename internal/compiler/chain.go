package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/opinionated/internal/ir"
)

// ChainWarning reports rules whose output is itself deprecated.
//
// The rewriter makes a single pass over an entity's original keys, so a
// chained migration (a -> b, b -> c) needs a second run to settle, and a
// cycle (a -> b, b -> a) never settles. Neither is an error: rule sources
// legitimately replace one deprecated tag with another.
type ChainWarning struct {
	Path    []string `json:"path"`    // Key path: ["a", "b", "c"] or ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" for cycles, "info" for chains
}

// AnalyzeChains builds the key graph (old_key -> keys written by its rules)
// restricted to keys that are themselves deprecated, and reports cycles
// (Tarjan's algorithm) and chain edges.
func AnalyzeChains(rules []ir.Rule) []ChainWarning {
	if len(rules) == 0 {
		return []ChainWarning{}
	}

	graph := buildKeyGraph(rules)
	var warnings []ChainWarning

	inCycle := make(map[string]bool)
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			for _, k := range scc {
				inCycle[k] = true
			}
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}

	for _, from := range sortedNodes(graph) {
		if inCycle[from] {
			continue
		}
		for _, to := range graph[from] {
			warnings = append(warnings, ChainWarning{
				Path:    []string{from, to},
				Message: fmt.Sprintf("Chained migration: %s is rewritten to deprecated key %s", from, to),
				Level:   "info",
			})
		}
	}

	return warnings
}

// keyGraph maps old_key -> deprecated keys its rules write.
type keyGraph map[string][]string

func buildKeyGraph(rules []ir.Rule) keyGraph {
	deprecated := make(map[string]bool, len(rules))
	for _, r := range rules {
		deprecated[r.OldKey] = true
	}

	graph := make(keyGraph)
	for _, r := range rules {
		if graph[r.OldKey] == nil {
			graph[r.OldKey] = []string{}
		}
		for _, k := range outputKeys(r.Recipe) {
			if deprecated[k] && !slices.Contains(graph[r.OldKey], k) {
				graph[r.OldKey] = append(graph[r.OldKey], k)
			}
		}
	}
	return graph
}

func outputKeys(recipe ir.Recipe) []string {
	switch rc := recipe.(type) {
	case ir.FixedFixed:
		return []string{rc.Key}
	case ir.FixedFixedFixed:
		return []string{rc.Key1, rc.Key2}
	case ir.Yes:
		return []string{rc.Key}
	case ir.FixedPlusCarry:
		return []string{rc.Key1, rc.Key2}
	case ir.CarryTo:
		return []string{rc.Key}
	}
	return nil
}

func sortedNodes(graph keyGraph) []string {
	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	return nodes
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph keyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are deterministic.
func tarjanSCC(graph keyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	for _, node := range sortedNodes(graph) {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a ChainWarning.
func cycleSCCToWarning(scc []string, graph keyGraph) ChainWarning {
	if len(scc) == 1 {
		key := scc[0]
		return ChainWarning{
			Path:    []string{key, key},
			Message: fmt.Sprintf("Self-rewriting key detected: %s → %s", key, key),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return ChainWarning{
		Path:    path,
		Message: fmt.Sprintf("Migration cycle detected: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath follows edges inside the SCC from its first member
// until the walk returns to it.
func reconstructCyclePath(scc []string, graph keyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool, len(scc))
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
