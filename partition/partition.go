package partition

import (
	"container/heap"
	"sort"

	"github.com/kyra-lang/nativeimage/errors"
	"github.com/kyra-lang/nativeimage/unit"
)

// Partition is one shard's share of a unit: the set of preserved symbol
// names, its slices of the global index tables, and its accumulated
// compilation weight.
type Partition struct {
	Globals map[string]bool
	FVars   map[string]uint32
	GVars   map[string]uint32
	Weight  uint64
}

func newPartition() Partition {
	return Partition{
		Globals: make(map[string]bool),
		FVars:   make(map[string]uint32),
		GVars:   make(map[string]uint32),
	}
}

// CanPartition reports whether a symbol may be assigned to a shard.
// Forced-inline symbols stay local to every shard that needs them, so
// they are excluded from partitioning entirely.
func CanPartition(s *unit.Symbol) bool {
	return !s.NoPartition
}

// Union-find over definitions, since only def->use edges are available
// before materialization. Path halving plus union by size; weight
// accumulates at the root.
type node struct {
	sym    *unit.Symbol
	parent int
	size   int
	weight uint64
	shard  int
}

type partitioner struct {
	nodes   []node
	nodeMap map[string]int
}

func (p *partitioner) make(s *unit.Symbol, weight uint64) {
	idx := len(p.nodes)
	p.nodes = append(p.nodes, node{sym: s, parent: idx, size: 1, weight: weight, shard: -1})
	p.nodeMap[s.Name] = idx
}

func (p *partitioner) find(idx int) int {
	for p.nodes[idx].parent != idx {
		p.nodes[idx].parent = p.nodes[p.nodes[idx].parent].parent
		idx = p.nodes[idx].parent
	}
	return idx
}

func (p *partitioner) merge(x, y int) {
	x = p.find(x)
	y = p.find(y)
	if x == y {
		return
	}
	if p.nodes[x].size < p.nodes[y].size {
		x, y = y, x
	}
	p.nodes[y].parent = x
	p.nodes[x].size += p.nodes[y].size
	p.nodes[x].weight += p.nodes[y].weight
}

// Min-heap of shard accumulators so the lightest shard is always
// assigned next. Ties break on shard index to keep assignment
// deterministic regardless of heap internals.
type accumulator struct {
	p   *Partition
	idx int
}

type shardHeap []accumulator

func (h shardHeap) Len() int { return len(h) }
func (h shardHeap) Less(i, j int) bool {
	if h[i].p.Weight != h[j].p.Weight {
		return h[i].p.Weight < h[j].p.Weight
	}
	return h[i].idx < h[j].idx
}
func (h shardHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *shardHeap) Push(x any)        { *h = append(*h, x.(accumulator)) }
func (h *shardHeap) Pop() any {
	old := *h
	n := len(old)
	out := old[n-1]
	*h = old[:n-1]
	return out
}

// PartitionUnit chops a unit as equally as possible by weight into
// threads shards. Connected components of the reference graph always
// land in the same shard; components are placed largest-first onto the
// currently lightest shard (LPT scheduling, within 4/3 of the optimal
// makespan). fvars and gvars are the flat-id maps from
// unit.ExtractIndexTables; each assigned symbol's ids are copied into
// its shard's local sub-tables.
//
// Assignment is deterministic for identical inputs, weights and thread
// counts.
func PartitionUnit(u *unit.Unit, fvars, gvars map[string]uint32, threads int) ([]Partition, error) {
	if threads < 1 {
		return nil, errors.Invariant(errors.PhasePartition, "thread count %d < 1", threads)
	}

	p := partitioner{nodeMap: make(map[string]int)}
	for _, s := range u.Symbols() {
		if s.Declaration || !CanPartition(s) {
			continue
		}
		if s.Name == "" {
			return nil, errors.Invariant(errors.PhasePartition, "unnamed definition; synthetic naming must run first")
		}
		// Partitioned definitions resolve across shard boundaries only
		// within the final image.
		s.Linkage = unit.LinkageExternal
		s.Visibility = unit.VisibilityHidden
		p.make(s, unit.SymbolWeight(s))
	}

	// Merge every use edge so users and their dependencies stay together.
	// References to declarations and to non-partitionable symbols carry
	// no placement constraint.
	for i := range p.nodes {
		refs := p.nodes[i].sym.Refs
		if p.nodes[i].sym.AliasTarget != "" {
			refs = append(refs[:len(refs):len(refs)], p.nodes[i].sym.AliasTarget)
		}
		for _, ref := range refs {
			if j, ok := p.nodeMap[ref]; ok {
				p.merge(i, j)
			}
		}
	}

	partitions := make([]Partition, threads)
	for i := range partitions {
		partitions[i] = newPartition()
	}
	pq := make(shardHeap, threads)
	for i := range partitions {
		pq[i] = accumulator{p: &partitions[i], idx: i}
	}
	heap.Init(&pq)

	// Roots accumulate their component's weight, so a descending sort
	// yields every root before its members. Name tie-break keeps the
	// order stable across runs.
	idxs := make([]int, len(p.nodes))
	for i := range idxs {
		idxs[i] = i
	}
	sort.Slice(idxs, func(a, b int) bool {
		na, nb := &p.nodes[idxs[a]], &p.nodes[idxs[b]]
		if na.weight != nb.weight {
			return na.weight > nb.weight
		}
		return na.sym.Name < nb.sym.Name
	})

	assign := func(P *Partition, shard int, n *node) {
		name := n.sym.Name
		P.Globals[name] = true
		if id, ok := fvars[name]; ok {
			P.FVars[name] = id
		}
		if id, ok := gvars[name]; ok {
			P.GVars[name] = id
		}
		n.shard = shard
	}

	for _, i := range idxs {
		root := p.find(i)
		if p.nodes[root].weight > 0 {
			// First time this component is seen: place the whole
			// component on the lightest shard.
			n := &p.nodes[root]
			acc := pq[0]
			assign(acc.p, acc.idx, n)
			acc.p.Weight += n.weight
			n.weight = 0
			heap.Fix(&pq, 0)
		}
		if root != i {
			// The root is already placed; members follow it without
			// touching the heap, since component weight already counted.
			n := &p.nodes[i]
			shard := p.nodes[root].shard
			assign(&partitions[shard], shard, n)
			n.weight = 0
		}
	}

	return partitions, nil
}
