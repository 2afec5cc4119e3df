// Package inheritance maintains the theme inheritance forest: the
// child -> parent edges, the reverse children index, and for every theme its
// full ancestor chain and generation number.
//
// Every mutation is validated completely before anything is changed. After a
// change the chains of the edited theme and all of its descendants are
// rebuilt with a breadth-first worklist over the children index, and their
// generations are bumped so that derived data (resolved configurations) can
// be recognised as stale.
package inheritance

import (
	"maps"
	"slices"
	"sync"
)

// DefaultMaxDepth is the default bound on len(chain) - 1.
const DefaultMaxDepth = 5

// Graph is safe for concurrent use. Mutations are serialized internally;
// callers that need to combine a mutation with other I/O must serialize
// those sequences themselves.
type Graph struct {
	mu       sync.RWMutex
	maxDepth int

	nodes    map[string]struct{}
	parents  map[string]string
	children map[string]map[string]struct{}

	chains      map[string][]string
	generations map[string]uint64
	clock       uint64
}

// New returns an empty graph. A maxDepth below zero selects DefaultMaxDepth.
func New(maxDepth int) *Graph {
	if maxDepth < 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Graph{
		maxDepth:    maxDepth,
		nodes:       make(map[string]struct{}),
		parents:     make(map[string]string),
		children:    make(map[string]map[string]struct{}),
		chains:      make(map[string][]string),
		generations: make(map[string]uint64),
	}
}

// MaxDepth returns the configured depth bound.
func (g *Graph) MaxDepth() int {
	return g.maxDepth
}

// AddNode makes id known to the graph as a root. Adding a known node is a no-op.
func (g *Graph) AddNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.addNodeLocked(id)
}

func (g *Graph) addNodeLocked(id string) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = struct{}{}
	g.chains[id] = []string{id}
	g.bumpLocked(id)
}

// Has reports whether id is known.
func (g *Graph) Has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.nodes[id]
	return ok
}

// CheckEdge validates child -> parent without installing it.
func (g *Graph) CheckEdge(child, parent string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.checkEdgeLocked(child, parent)
}

func (g *Graph) checkEdgeLocked(child, parent string) error {
	if child == parent {
		return &CycleError{Child: child, Parent: parent, Path: []string{child, child}}
	}

	path := []string{child}
	for cur := parent; cur != ""; cur = g.parents[cur] {
		path = append(path, cur)
		if cur == child {
			return &CycleError{Child: child, Parent: parent, Path: path}
		}
	}

	depth := g.depthLocked(parent) + 1 + g.heightLocked(child)
	if depth > g.maxDepth {
		return &DepthExceededError{Child: child, Parent: parent, Depth: depth, Max: g.maxDepth}
	}
	return nil
}

// RegisterEdge installs child -> parent, replacing any previous parent of
// child. Unknown themes are added as nodes. It returns the themes whose
// chains changed: child followed by its descendants in breadth-first order.
// Re-registering an existing edge changes nothing and returns nil.
func (g *Graph) RegisterEdge(child, parent string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkEdgeLocked(child, parent); err != nil {
		return nil, err
	}
	if current, ok := g.parents[child]; ok && current == parent {
		return nil, nil
	}

	g.addNodeLocked(child)
	g.addNodeLocked(parent)
	g.detachLocked(child)

	g.parents[child] = parent
	kids := g.children[parent]
	if kids == nil {
		kids = make(map[string]struct{})
		g.children[parent] = kids
	}
	kids[child] = struct{}{}

	return g.rebuildLocked(child), nil
}

// RemoveEdge detaches child from its parent, making it a root. It returns
// the affected subtree and whether an edge existed.
func (g *Graph) RemoveEdge(child string) (affected []string, parent string, removed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	parent, removed = g.parents[child]
	if !removed {
		return nil, "", false
	}
	g.detachLocked(child)
	return g.rebuildLocked(child), parent, true
}

// RemoveNode forgets id. Its children become roots. The returned slice lists
// id followed by every former descendant.
func (g *Graph) RemoveNode(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return nil
	}

	g.detachLocked(id)
	affected := []string{id}
	for _, kid := range slices.Sorted(maps.Keys(g.children[id])) {
		delete(g.parents, kid)
		affected = append(affected, g.rebuildLocked(kid)...)
	}

	delete(g.children, id)
	delete(g.nodes, id)
	delete(g.chains, id)
	delete(g.generations, id)
	return affected
}

// Touch bumps the generation of id and of all its descendants without any
// structural change, and returns them. Used when a theme's own configuration
// changes.
func (g *Graph) Touch(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return nil
	}
	affected := g.subtreeLocked(id)
	for _, n := range affected {
		g.bumpLocked(n)
	}
	return affected
}

func (g *Graph) detachLocked(child string) {
	old, ok := g.parents[child]
	if !ok {
		return
	}
	delete(g.parents, child)
	if kids := g.children[old]; kids != nil {
		delete(kids, child)
		if len(kids) == 0 {
			delete(g.children, old)
		}
	}
}

// rebuildLocked rewrites the chain of root and of every descendant. The
// worklist visits parents before children, so each chain is the node
// prepended to its parent's already rebuilt chain.
func (g *Graph) rebuildLocked(root string) []string {
	affected := g.subtreeLocked(root)
	for _, n := range affected {
		chain := []string{n}
		if p, ok := g.parents[n]; ok {
			chain = append(chain, g.chains[p]...)
		}
		g.chains[n] = chain
		g.bumpLocked(n)
	}
	return affected
}

// subtreeLocked returns root and its descendants in breadth-first order,
// siblings sorted.
func (g *Graph) subtreeLocked(root string) []string {
	out := []string{root}
	for i := 0; i < len(out); i++ {
		out = append(out, slices.Sorted(maps.Keys(g.children[out[i]]))...)
	}
	return out
}

func (g *Graph) bumpLocked(id string) {
	g.clock++
	g.generations[id] = g.clock
}

func (g *Graph) depthLocked(id string) int {
	depth := 0
	for cur, ok := g.parents[id]; ok; cur, ok = g.parents[cur] {
		depth++
	}
	return depth
}

// heightLocked is the length of the longest downward path below id.
func (g *Graph) heightLocked(id string) int {
	height := 0
	level := []string{id}
	for {
		var next []string
		for _, n := range level {
			for kid := range g.children[n] {
				next = append(next, kid)
			}
		}
		if len(next) == 0 {
			return height
		}
		height++
		level = next
	}
}

// Chain returns [id, parent, ..., root], or nil when id is unknown.
func (g *Graph) Chain(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return slices.Clone(g.chains[id])
}

// Parent returns the parent of id, if any.
func (g *Graph) Parent(id string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	p, ok := g.parents[id]
	return p, ok
}

// Children returns the direct children of id, sorted.
func (g *Graph) Children(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return slices.Sorted(maps.Keys(g.children[id]))
}

// Descendants returns every theme below id, sorted.
func (g *Graph) Descendants(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return nil
	}
	sub := g.subtreeLocked(id)[1:]
	slices.Sort(sub)
	return sub
}

// Subtree returns id followed by its descendants in breadth-first order.
func (g *Graph) Subtree(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return []string{id}
	}
	return g.subtreeLocked(id)
}

// Depth returns len(Chain(id)) - 1.
func (g *Graph) Depth(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.depthLocked(id)
}

// Generation returns the current generation of id; zero for unknown themes.
func (g *Graph) Generation(id string) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.generations[id]
}

// Nodes returns every known theme, sorted.
func (g *Graph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return slices.Sorted(maps.Keys(g.nodes))
}

// Len returns the number of known themes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.nodes)
}

// Chains returns a copy of the whole hierarchy index.
func (g *Graph) Chains() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string][]string, len(g.chains))
	for id, chain := range g.chains {
		out[id] = slices.Clone(chain)
	}
	return out
}
