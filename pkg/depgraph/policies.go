package depgraph

// FifoGraph orders independent nodes by the order they were added.
//
// The node values themselves need no ordering: the graph keeps an ordered
// slave graph keyed by insertion index and maps the sorted indices back to
// the original nodes.
type FifoGraph[T comparable] struct {
	nodes []T
	index map[T]int
	slave OrderedGraph[int]
}

// NewFifoGraph returns an empty FIFO-ordered graph.
func NewFifoGraph[T comparable]() *FifoGraph[T] {
	return &FifoGraph[T]{index: map[T]int{}, slave: *NewOrderedGraph[int]()}
}

// AddNode adds a node. The node must not be present yet.
func (g *FifoGraph[T]) AddNode(node T) {
	if _, exists := g.index[node]; exists {
		panic("depgraph: node added twice")
	}
	g.slave.AddNode(len(g.nodes))
	g.index[node] = len(g.nodes)
	g.nodes = append(g.nodes, node)
}

// AddEdge records that dependentNode requires requiredNode.
func (g *FifoGraph[T]) AddEdge(dependentNode, requiredNode T) {
	g.slave.AddEdge(g.mustIndex(dependentNode), g.mustIndex(requiredNode))
}

// Sort performs the topological sort.
func (g *FifoGraph[T]) Sort() []T {
	sorted := g.slave.Sort()
	result := make([]T, 0, len(sorted))
	for _, i := range sorted {
		result = append(result, g.nodes[i])
	}
	return result
}

func (g *FifoGraph[T]) mustIndex(node T) int {
	idx, ok := g.index[node]
	if !ok {
		panic("depgraph: node unknown")
	}
	return idx
}

// LifoGraph orders independent nodes by reverse order of addition. It works
// like FifoGraph with negated insertion indices as slave keys.
type LifoGraph[T comparable] struct {
	nodes []T
	index map[T]int
	slave OrderedGraph[int]
}

// NewLifoGraph returns an empty LIFO-ordered graph.
func NewLifoGraph[T comparable]() *LifoGraph[T] {
	return &LifoGraph[T]{index: map[T]int{}, slave: *NewOrderedGraph[int]()}
}

// AddNode adds a node. The node must not be present yet.
func (g *LifoGraph[T]) AddNode(node T) {
	if _, exists := g.index[node]; exists {
		panic("depgraph: node added twice")
	}
	g.slave.AddNode(-len(g.nodes))
	g.index[node] = len(g.nodes)
	g.nodes = append(g.nodes, node)
}

// AddEdge records that dependentNode requires requiredNode.
func (g *LifoGraph[T]) AddEdge(dependentNode, requiredNode T) {
	g.slave.AddEdge(-g.mustIndex(dependentNode), -g.mustIndex(requiredNode))
}

// Sort performs the topological sort.
func (g *LifoGraph[T]) Sort() []T {
	sorted := g.slave.Sort()
	result := make([]T, 0, len(sorted))
	for _, i := range sorted {
		result = append(result, g.nodes[-i])
	}
	return result
}

func (g *LifoGraph[T]) mustIndex(node T) int {
	idx, ok := g.index[node]
	if !ok {
		panic("depgraph: node unknown")
	}
	return idx
}

// stripedKey orders independent nodes by stripe first, then by the second
// component (insertion index for FIFO, negated index for LIFO).
type stripedKey struct {
	stripe int
	order  int
}

func stripedLess(a, b stripedKey) bool {
	if a.stripe != b.stripe {
		return a.stripe < b.stripe
	}
	return a.order < b.order
}

// StripedFifoGraph interlaces independent nodes by stripe: among nodes with
// no dependency between them, lower stripes come out first, and within a
// stripe the insertion order is kept.
//
// Consider nodes added as A1, B1, A2, B2 with stripes 1, 2, 1, 2 and no
// edges: the sort emits A1, A2, B1, B2 as if all stripe-1 nodes had been
// added first.
type StripedFifoGraph[T comparable] struct {
	nodes   []T
	stripes []int
	index   map[T]int
	slave   core[stripedKey]
}

// NewStripedFifoGraph returns an empty striped FIFO graph.
func NewStripedFifoGraph[T comparable]() *StripedFifoGraph[T] {
	g := &StripedFifoGraph[T]{index: map[T]int{}}
	g.slave.less = stripedLess
	return g
}

// AddNode adds a node with its stripe number. The node must not be present
// yet.
func (g *StripedFifoGraph[T]) AddNode(node T, stripe int) {
	if _, exists := g.index[node]; exists {
		panic("depgraph: node added twice")
	}
	g.slave.addNode(stripedKey{stripe: stripe, order: len(g.nodes)})
	g.index[node] = len(g.nodes)
	g.nodes = append(g.nodes, node)
	g.stripes = append(g.stripes, stripe)
}

// AddEdge records that dependentNode requires requiredNode.
func (g *StripedFifoGraph[T]) AddEdge(dependentNode, requiredNode T) {
	dIdx := g.mustIndex(dependentNode)
	rIdx := g.mustIndex(requiredNode)
	g.slave.addEdge(
		stripedKey{stripe: g.stripes[dIdx], order: dIdx},
		stripedKey{stripe: g.stripes[rIdx], order: rIdx})
}

// Sort performs the topological sort.
func (g *StripedFifoGraph[T]) Sort() []T {
	sorted := g.slave.sort()
	result := make([]T, 0, len(sorted))
	for _, key := range sorted {
		result = append(result, g.nodes[key.order])
	}
	return result
}

func (g *StripedFifoGraph[T]) mustIndex(node T) int {
	idx, ok := g.index[node]
	if !ok {
		panic("depgraph: node unknown")
	}
	return idx
}

// StripedLifoGraph groups independent nodes by stripe like
// StripedFifoGraph, but keeps reverse insertion order within a stripe.
type StripedLifoGraph[T comparable] struct {
	nodes   []T
	stripes []int
	index   map[T]int
	slave   core[stripedKey]
}

// NewStripedLifoGraph returns an empty striped LIFO graph.
func NewStripedLifoGraph[T comparable]() *StripedLifoGraph[T] {
	g := &StripedLifoGraph[T]{index: map[T]int{}}
	g.slave.less = stripedLess
	return g
}

// AddNode adds a node with its stripe number. The node must not be present
// yet.
func (g *StripedLifoGraph[T]) AddNode(node T, stripe int) {
	if _, exists := g.index[node]; exists {
		panic("depgraph: node added twice")
	}
	g.slave.addNode(stripedKey{stripe: stripe, order: -len(g.nodes)})
	g.index[node] = len(g.nodes)
	g.nodes = append(g.nodes, node)
	g.stripes = append(g.stripes, stripe)
}

// AddEdge records that dependentNode requires requiredNode.
func (g *StripedLifoGraph[T]) AddEdge(dependentNode, requiredNode T) {
	dIdx := g.mustIndex(dependentNode)
	rIdx := g.mustIndex(requiredNode)
	g.slave.addEdge(
		stripedKey{stripe: g.stripes[dIdx], order: -dIdx},
		stripedKey{stripe: g.stripes[rIdx], order: -rIdx})
}

// Sort performs the topological sort.
func (g *StripedLifoGraph[T]) Sort() []T {
	sorted := g.slave.sort()
	result := make([]T, 0, len(sorted))
	for _, key := range sorted {
		result = append(result, g.nodes[-key.order])
	}
	return result
}

func (g *StripedLifoGraph[T]) mustIndex(node T) int {
	idx, ok := g.index[node]
	if !ok {
		panic("depgraph: node unknown")
	}
	return idx
}
