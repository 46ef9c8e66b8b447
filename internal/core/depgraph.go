package core

// depgraph.go orders entity types and rows for commit.
//
// The graph is small and known at startup, so the sort favours determinism
// over speed: among the types whose dependencies are satisfied, the one
// registered first always goes next.

import "slices"

// Graph is a dependency graph over entity types. An edge from A to B means
// A references B, so B must be committed first.
type Graph struct {
	nodes []EntityType
	index map[EntityType]int
	deps  map[EntityType][]EntityType
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		index: make(map[EntityType]int),
		deps:  make(map[EntityType][]EntityType),
	}
}

// AddNode adds an entity type. Adding an existing node is a no-op.
func (g *Graph) AddNode(t EntityType) {
	if _, ok := g.index[t]; ok {
		return
	}
	g.index[t] = len(g.nodes)
	g.nodes = append(g.nodes, t)
}

// AddEdge records that from depends on to. Missing nodes are added.
func (g *Graph) AddEdge(from, to EntityType) {
	g.AddNode(from)
	g.AddNode(to)
	if slices.Contains(g.deps[from], to) {
		return
	}
	g.deps[from] = append(g.deps[from], to)
}

// Dependencies returns the direct dependencies of t.
func (g *Graph) Dependencies(t EntityType) []EntityType {
	return slices.Clone(g.deps[t])
}

// Sort returns every node so that each appears after all of its
// dependencies. A cycle yields a CycleError listing the types that could
// not be placed.
func (g *Graph) Sort() ([]EntityType, error) {
	remaining := make(map[EntityType]int, len(g.nodes))
	dependents := make(map[EntityType][]EntityType)
	for _, n := range g.nodes {
		remaining[n] = len(g.deps[n])
		for _, d := range g.deps[n] {
			dependents[d] = append(dependents[d], n)
		}
	}

	var ready []EntityType
	for _, n := range g.nodes {
		if remaining[n] == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]EntityType, 0, len(g.nodes))
	for len(ready) > 0 {
		slices.SortFunc(ready, func(a, b EntityType) int { return g.index[a] - g.index[b] })
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, dep := range dependents[n] {
			remaining[dep]--
			if remaining[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) < len(g.nodes) {
		var stuck []EntityType
		for _, n := range g.nodes {
			if remaining[n] > 0 {
				stuck = append(stuck, n)
			}
		}
		return nil, &CycleError{Members: stuck}
	}
	return order, nil
}

// Order sorts the whole graph and keeps only the given types. A cycle
// anywhere in the graph is an error, even if it does not touch present.
func (g *Graph) Order(present []EntityType) ([]EntityType, error) {
	all, err := g.Sort()
	if err != nil {
		return nil, err
	}
	want := make(map[EntityType]bool, len(present))
	for _, t := range present {
		want[t] = true
	}
	out := make([]EntityType, 0, len(present))
	for _, t := range all {
		if want[t] {
			out = append(out, t)
		}
	}
	for _, t := range present {
		if _, ok := g.index[t]; !ok && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// orderRows sequences the rows of one entity type: ADD, then UPDATE, then
// DELETE. ADD rows that reference ids added by other rows of the same batch
// through a self-referencing field are placed after those rows. Rows caught
// in a reference cycle keep their sheet order at the end of the ADD group.
func orderRows(def *EntityDefinition, rows []*Row) []*Row {
	var adds, updates, deletes []*Row
	for _, r := range rows {
		switch r.Operation {
		case OpUpdate:
			updates = append(updates, r)
		case OpDelete:
			deletes = append(deletes, r)
		default:
			adds = append(adds, r)
		}
	}

	out := make([]*Row, 0, len(rows))
	out = append(out, orderSelfReferences(def, adds)...)
	out = append(out, updates...)
	out = append(out, deletes...)
	return out
}

func orderSelfReferences(def *EntityDefinition, rows []*Row) []*Row {
	var selfFields []FieldSpec
	for _, f := range def.ReferenceFields() {
		if f.References == def.Type {
			selfFields = append(selfFields, f)
		}
	}
	if len(selfFields) == 0 || len(rows) < 2 {
		return rows
	}

	byKey := make(map[string]int, len(rows))
	for i, r := range rows {
		if k := r.Value(def.KeyField); k != "" {
			if _, dup := byKey[k]; !dup {
				byKey[k] = i
			}
		}
	}

	remaining := make([]int, len(rows))
	dependents := make([][]int, len(rows))
	for i, r := range rows {
		for _, f := range selfFields {
			refs := []string{r.Value(f.Name)}
			if f.List {
				refs = splitList(r.Value(f.Name))
			}
			for _, ref := range refs {
				j, ok := byKey[ref]
				if !ok || j == i {
					continue
				}
				remaining[i]++
				dependents[j] = append(dependents[j], i)
			}
		}
	}

	placed := make([]bool, len(rows))
	out := make([]*Row, 0, len(rows))
	for {
		next := -1
		for i := range rows {
			if !placed[i] && remaining[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		placed[next] = true
		out = append(out, rows[next])
		for _, d := range dependents[next] {
			remaining[d]--
		}
	}
	for i, r := range rows {
		if !placed[i] {
			out = append(out, r)
		}
	}
	return out
}
