package mission

import (
	"fmt"
	"sort"

	"flotilla/planner"
	"flotilla/store"
)

// Graph is an in-memory dependency view of a plan's tasks, keyed by
// task key.
type Graph struct {
	keys []string
	deps map[string][]string
}

// NewGraphFromSpecs builds a graph from a planner draft's task specs.
// Duplicate keys are rejected here so every later lookup is unambiguous.
func NewGraphFromSpecs(specs []planner.TaskSpec) (*Graph, error) {
	g := &Graph{deps: make(map[string][]string, len(specs))}
	for _, spec := range specs {
		if _, dup := g.deps[spec.Key]; dup {
			return nil, fmt.Errorf("duplicate task key '%s'", spec.Key)
		}
		g.keys = append(g.keys, spec.Key)
		g.deps[spec.Key] = append([]string(nil), spec.DependsOn...)
	}
	return g, nil
}

// NewGraphFromRecords builds a graph from persisted task records.
func NewGraphFromRecords(records []*store.TaskRecord) (*Graph, error) {
	g := &Graph{deps: make(map[string][]string, len(records))}
	for _, rec := range records {
		if _, dup := g.deps[rec.TaskKey]; dup {
			return nil, fmt.Errorf("duplicate task key '%s'", rec.TaskKey)
		}
		g.keys = append(g.keys, rec.TaskKey)
		g.deps[rec.TaskKey] = append([]string(nil), rec.DependsOn...)
	}
	return g, nil
}

// Validate checks that every dependency names a task in the same plan
// and that the graph contains no cycles. A cycle error includes the
// offending path.
func (g *Graph) Validate() error {
	for _, key := range g.keys {
		for _, dep := range g.deps[key] {
			if _, ok := g.deps[dep]; !ok {
				return fmt.Errorf("task '%s' depends on unknown task '%s'", key, dep)
			}
		}
	}

	// DFS with three states: 0=unvisited, 1=in progress, 2=done.
	state := make(map[string]int, len(g.keys))
	var path []string

	var visit func(key string) error
	visit = func(key string) error {
		switch state[key] {
		case 1:
			cycle := append(append([]string(nil), path...), key)
			return fmt.Errorf("dependency cycle detected: %v", cycle)
		case 2:
			return nil
		}

		state[key] = 1
		path = append(path, key)
		for _, dep := range g.deps[key] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[key] = 2
		return nil
	}

	for _, key := range g.keys {
		if err := visit(key); err != nil {
			return err
		}
	}
	return nil
}

// TopoSort returns the task keys in dependency order using Kahn's
// algorithm. Keys with equal depth come out in lexical order so the
// result is stable across runs. The graph must already be validated.
func (g *Graph) TopoSort() []string {
	inDegree := make(map[string]int, len(g.keys))
	dependents := make(map[string][]string, len(g.keys))
	for _, key := range g.keys {
		inDegree[key] = len(g.deps[key])
		for _, dep := range g.deps[key] {
			dependents[dep] = append(dependents[dep], key)
		}
	}

	var queue []string
	for _, key := range g.keys {
		if inDegree[key] == 0 {
			queue = append(queue, key)
		}
	}
	sort.Strings(queue)

	var sorted []string
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		sorted = append(sorted, key)

		var released []string
		for _, dep := range dependents[key] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				released = append(released, dep)
			}
		}
		sort.Strings(released)
		queue = append(queue, released...)
	}

	return sorted
}

// Dependents returns the reverse adjacency map: for each task key, the
// keys of tasks that depend on it directly.
func (g *Graph) Dependents() map[string][]string {
	dependents := make(map[string][]string, len(g.keys))
	for _, key := range g.keys {
		for _, dep := range g.deps[key] {
			dependents[dep] = append(dependents[dep], key)
		}
	}
	return dependents
}

// TransitiveDependents returns every task key downstream of the given
// key, direct or indirect.
func (g *Graph) TransitiveDependents(key string) []string {
	dependents := g.Dependents()

	visited := make(map[string]bool)
	var result []string
	queue := append([]string(nil), dependents[key]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if visited[next] {
			continue
		}
		visited[next] = true
		result = append(result, next)
		queue = append(queue, dependents[next]...)
	}
	sort.Strings(result)
	return result
}

// Deps returns the direct dependencies of a task key.
func (g *Graph) Deps(key string) []string {
	return g.deps[key]
}

// Keys returns all task keys in insertion order.
func (g *Graph) Keys() []string {
	return g.keys
}
