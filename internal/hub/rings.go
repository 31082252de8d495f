package hub

import (
	"cmp"
	"slices"

	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/store"
)

// Ring is a strongly connected set of hubs: participants leaving any member
// can come back to it. Rings are legal; the hop quota is what ends a chain
// that keeps circling one.
type Ring struct {
	Members []ir.HubID `json:"members"` // ascending
	Path    []ir.HubID `json:"path"`    // a walk through the ring from its lowest id
}

// Graph maps each hub to its outputs in edge order.
type Graph map[ir.HubID][]ir.HubID

// LoadGraph reads the output edges of every registered hub.
func LoadGraph(tx *store.Tx) (Graph, error) {
	total, err := tx.CountEntries()
	if err != nil {
		return nil, err
	}
	g := make(Graph, total)
	for id := ir.HubID(1); uint64(id) <= total; id++ {
		outs, err := tx.Outputs(id)
		if err != nil {
			return nil, err
		}
		g[id] = outs
	}
	return g, nil
}

// Rings returns the rings in g ordered by lowest member. A single hub is a
// ring only when it outputs to itself.
//
// Components come from Tarjan's algorithm; nodes are visited in id order so
// the result is stable.
func Rings(g Graph) []Ring {
	nodes := make([]ir.HubID, 0, len(g))
	for id := range g {
		nodes = append(nodes, id)
	}
	slices.Sort(nodes)

	var (
		next    int
		stack   []ir.HubID
		index   = make(map[ir.HubID]int)
		lowlink = make(map[ir.HubID]int)
		onStack = make(map[ir.HubID]bool)
		rings   []Ring
	)

	var connect func(ir.HubID)
	connect = func(v ir.HubID) {
		index[v], lowlink[v] = next, next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g[v] {
			if _, seen := index[w]; !seen {
				connect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], index[w])
			}
		}

		if lowlink[v] != index[v] {
			return
		}
		var scc []ir.HubID
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		if len(scc) > 1 || slices.Contains(g[v], v) {
			slices.Sort(scc)
			rings = append(rings, Ring{Members: scc, Path: walk(g, scc)})
		}
	}

	for _, v := range nodes {
		if _, seen := index[v]; !seen {
			connect(v)
		}
	}

	slices.SortFunc(rings, func(a, b Ring) int { return cmp.Compare(a.Members[0], b.Members[0]) })
	return rings
}

// walk follows the first unvisited in-ring output from the lowest member
// until it gets back to the start or runs out of unvisited members.
func walk(g Graph, members []ir.HubID) []ir.HubID {
	start := members[0]
	path := []ir.HubID{start}
	visited := map[ir.HubID]bool{start: true}

	for cur := start; ; {
		var step ir.HubID
		for _, w := range g[cur] {
			if _, in := slices.BinarySearch(members, w); in && (w == start || !visited[w]) {
				step = w
				break
			}
		}
		if step == 0 {
			return path
		}
		path = append(path, step)
		if step == start {
			return path
		}
		visited[step] = true
		cur = step
	}
}
