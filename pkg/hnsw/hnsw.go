// Package hnsw implements a hierarchical navigable small-world graph:
// greedy descent from a single entry point through upper layers, bounded
// best-first search at the base layer, the canonical
// select-neighbors-heuristic diversity rule, bidirectional edges with
// re-pruning, and soft delete via tombstone (filtered at emit time, not
// traversal time, to preserve graph connectivity). The base-layer
// traversal is generalized over its distance function, so the same graph
// structure also serves Hamming-distance coarse search over quantized
// vectors (see SearchHamming).
//
// Grounded on sqvect's pkg/index/hnsw.go (HNSWNode/HNSW, Insert's
// greedy-descent-then-searchLayer-then-selectNeighborsHeuristic shape,
// Search's per-layer descent, Delete's tombstone-and-reassign-entry-point),
// generalized from sqvect's map[string]*HNSWNode + [][]string neighbor
// slices to a dense uint32 node table whose per-layer neighbor lists are
// VByte-encoded into a pkg/neighbor.Pool arena. Per the acyclic ownership
// design recorded in DESIGN.md, the graph never holds vectors itself; every
// operation that needs one takes a VectorSource explicitly.
package hnsw

import (
	"container/heap"
	"errors"
	"math"
	"math/rand"

	"github.com/bits-and-blooms/bitset"

	"github.com/matte1782/edgevec-sub002/pkg/metric"
	"github.com/matte1782/edgevec-sub002/pkg/neighbor"
	"github.com/matte1782/edgevec-sub002/pkg/storage"
)

var (
	// ErrEmptyIndex is returned by Search when the graph has no live nodes.
	ErrEmptyIndex = errors.New("hnsw: index is empty")
	// ErrDimensionMismatch is returned when a query or inserted vector's
	// length does not match the graph's configured dimension.
	ErrDimensionMismatch = errors.New("hnsw: dimension mismatch")
	// ErrCorruptedGraph is returned when neighbor-list decoding fails.
	ErrCorruptedGraph = errors.New("hnsw: corrupted neighbor list")
	// ErrAlreadyExists is returned by Insert for a VectorId already present
	// in the graph.
	ErrAlreadyExists = errors.New("hnsw: vector id already present")
	// ErrNotFound is returned by SoftDelete for an unknown VectorId.
	ErrNotFound = errors.New("hnsw: vector id not found")
)

// maxLayerCap bounds the layer an inserted node may reach, matching
// sqvect's pragmatic cap on the level-assignment distribution.
const maxLayerCap = 16

// VectorSource resolves a VectorId to its float vector. Storage implements
// this; the graph never stores vectors itself.
type VectorSource interface {
	Get(id storage.VectorId) ([]float32, error)
}

// BQVectorSource resolves a VectorId to its quantized bit vector, for
// SearchHamming's coarse traversal. A missing id reports ok=false.
type BQVectorSource interface {
	GetBits(id storage.VectorId) ([]byte, bool)
}

// SearchContext holds the reusable visited-set bitset for one or more
// searchLayer traversals. A context is sized lazily to the graph's node
// count and cleared (not reallocated) between uses, so repeated queries
// against the same graph avoid a fresh allocation per call. A nil context
// anywhere a *SearchContext is accepted falls back to the graph's own
// pooled context.
type SearchContext struct {
	visited *bitset.BitSet
}

// NewSearchContext creates an empty, reusable search context. Pass the same
// context across multiple Search/SearchHamming calls (never concurrently)
// to skip the bitset allocation on every call.
func NewSearchContext() *SearchContext {
	return &SearchContext{visited: bitset.New(0)}
}

// reset grows the context's bitset to size if needed, otherwise clears it
// in place, and returns it ready for a fresh traversal.
func (c *SearchContext) reset(size uint) *bitset.BitSet {
	if c.visited.Len() < size {
		c.visited = bitset.New(size)
	} else {
		c.visited.ClearAll()
	}
	return c.visited
}

// distanceFunc computes the traversal distance from the query to a node,
// identified by its dense internal index. searchLayer is agnostic to what
// the distance actually measures: the float-vector callers below and
// SearchHamming's Hamming-distance traversal both supply one.
type distanceFunc func(nodeIdx uint32) (float32, error)

// layerSlot locates one node's neighbor list at one layer inside the pool.
type layerSlot struct {
	offset   uint32
	capacity uint32
	length   uint32 // bytes actually in use, <= capacity
}

// node is one dense entry in the graph's node table.
type node struct {
	id        storage.VectorId
	maxLayer  int
	slots     []layerSlot // len == maxLayer+1
	tombstone bool
}

// Config parameterizes graph construction.
type Config struct {
	Dim            int
	Metric         metric.Kind
	M              int // max bidirectional links per node above layer 0
	M0             int // max links at layer 0 (conventionally 2*M)
	EfConstruction int
	Seed           int64
}

// Graph is the HNSW index. Internal node IDs are dense uint32 indices into
// nodes; a VectorId <-> internal-id mapping is maintained alongside.
type Graph struct {
	cfg  Config
	ml   float64 // level-assignment normalizer, 1/ln(M)
	pool *neighbor.Pool
	rng  *rand.Rand

	nodes      []*node
	idToNode   map[storage.VectorId]uint32
	entryPoint int32 // index into nodes, or -1 if empty

	ctx *SearchContext // pooled context reused by Insert and Search
}

// New creates an empty graph for the given configuration.
func New(cfg Config) *Graph {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.M0 <= 0 {
		cfg.M0 = cfg.M * 2
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 200
	}
	m := cfg.M
	if m < 2 {
		m = 2
	}
	return &Graph{
		cfg:        cfg,
		ml:         1.0 / math.Log(float64(m)),
		pool:       neighbor.New(),
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		idToNode:   make(map[storage.VectorId]uint32),
		entryPoint: -1,
		ctx:        NewSearchContext(),
	}
}

// MetricKind reports the distance metric this graph was configured with.
func (g *Graph) MetricKind() metric.Kind { return g.cfg.Metric }

// Size returns the number of live (non-tombstoned) nodes.
func (g *Graph) Size() int {
	count := 0
	for _, n := range g.nodes {
		if !n.tombstone {
			count++
		}
	}
	return count
}

// selectLayer draws a random insertion layer via floor(-ln(U) * mL), capped
// at maxLayerCap, the standard HNSW level-assignment distribution.
func (g *Graph) selectLayer() int {
	u := g.rng.Float64()
	for u == 0 {
		u = g.rng.Float64()
	}
	layer := int(math.Floor(-math.Log(u) * g.ml))
	if layer > maxLayerCap {
		layer = maxLayerCap
	}
	return layer
}

// Insert adds vector under id to the graph. If the graph is empty, the new
// node becomes the entry point at its assigned layer with no links.
func (g *Graph) Insert(vs VectorSource, id storage.VectorId, vector []float32) error {
	if len(vector) != g.cfg.Dim {
		return ErrDimensionMismatch
	}
	if _, exists := g.idToNode[id]; exists {
		return ErrAlreadyExists
	}

	layer := g.selectLayer()
	n := &node{id: id, maxLayer: layer, slots: make([]layerSlot, layer+1)}
	nodeIdx := uint32(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.idToNode[id] = nodeIdx

	if g.entryPoint == -1 {
		g.entryPoint = int32(nodeIdx)
		return nil
	}

	distFn := g.floatDistanceFunc(vs, vector)

	entry := g.nodes[g.entryPoint]
	curNearest := []uint32{uint32(g.entryPoint)}

	for lc := entry.maxLayer; lc > layer; lc-- {
		best, err := g.searchLayerClosest(g.ctx, distFn, curNearest, 1, lc)
		if err != nil {
			return err
		}
		if len(best) > 0 {
			curNearest = best
		}
	}

	for lc := layer; lc >= 0; lc-- {
		m := g.cfg.M
		if lc == 0 {
			m = g.cfg.M0
		}

		candidates, err := g.searchLayer(g.ctx, distFn, curNearest, g.cfg.EfConstruction, lc)
		if err != nil {
			return err
		}
		chosen, err := g.selectNeighborsHeuristic(vs, vector, candidates, m)
		if err != nil {
			return err
		}

		if err := g.setNeighbors(nodeIdx, lc, chosen); err != nil {
			return err
		}
		for _, neighborIdx := range chosen {
			if err := g.addConnection(vs, neighborIdx, nodeIdx, lc, m); err != nil {
				return err
			}
		}

		if len(chosen) > 0 {
			curNearest = chosen
		}
	}

	if layer > entry.maxLayer {
		g.entryPoint = int32(nodeIdx)
	}
	return nil
}

// addConnection adds a bidirectional link from->to at layer, re-pruning
// from's neighbor list down to maxConn via the diversity heuristic if it
// overflows.
func (g *Graph) addConnection(vs VectorSource, from, to uint32, layer, maxConn int) error {
	fromNode := g.nodes[from]
	if layer > fromNode.maxLayer {
		return nil
	}
	existing, err := g.getNeighbors(from, layer)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e == to {
			return nil
		}
	}
	existing = append(existing, to)

	if len(existing) > maxConn {
		fromVec, err := vs.Get(fromNode.id)
		if err != nil {
			return err
		}
		pruned, err := g.selectNeighborsHeuristic(vs, fromVec, existing, maxConn)
		if err != nil {
			return err
		}
		existing = pruned
	}
	return g.setNeighbors(from, layer, existing)
}

// searchLayer runs the bounded best-first search at one layer, returning up
// to ef nearest node indices per distFn, closest first. The visited set
// comes from ctx (a caller-provided or the graph's own pooled context),
// cleared in place rather than reallocated on every call.
func (g *Graph) searchLayer(ctx *SearchContext, distFn distanceFunc, entryPoints []uint32, ef, layer int) ([]uint32, error) {
	if ctx == nil {
		ctx = g.ctx
	}
	visited := ctx.reset(uint(len(g.nodes)))
	candidates := &minHeap{}
	found := &maxHeap{}

	for _, ep := range entryPoints {
		d, err := distFn(ep)
		if err != nil {
			return nil, err
		}
		heap.Push(candidates, item{idx: ep, dist: d})
		heap.Push(found, item{idx: ep, dist: d})
		visited.Set(uint(ep))
	}

	for candidates.Len() > 0 {
		cur := heap.Pop(candidates).(item)
		if found.Len() > 0 && cur.dist > (*found)[0].dist && found.Len() >= ef {
			break
		}

		neighbors, err := g.getNeighbors(cur.idx, layer)
		if err != nil {
			return nil, err
		}
		for _, neighborIdx := range neighbors {
			if visited.Test(uint(neighborIdx)) {
				continue
			}
			visited.Set(uint(neighborIdx))

			d, err := distFn(neighborIdx)
			if err != nil {
				return nil, err
			}
			if found.Len() < ef || d < (*found)[0].dist {
				heap.Push(candidates, item{idx: neighborIdx, dist: d})
				heap.Push(found, item{idx: neighborIdx, dist: d})
				if found.Len() > ef {
					heap.Pop(found)
				}
			}
		}
	}

	result := make([]uint32, found.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(found).(item).idx
	}
	return result, nil
}

func (g *Graph) searchLayerClosest(ctx *SearchContext, distFn distanceFunc, entryPoints []uint32, num, layer int) ([]uint32, error) {
	result, err := g.searchLayer(ctx, distFn, entryPoints, num, layer)
	if err != nil {
		return nil, err
	}
	if len(result) > num {
		result = result[:num]
	}
	return result, nil
}

// selectNeighborsHeuristic picks up to m candidates, applying the canonical
// HNSW diversity rule: a candidate is kept only if it is closer to the
// query than to every neighbor already selected, falling back to filling
// remaining slots by plain distance order once the diverse set is
// exhausted (mirrors sqvect's simpler distance-sort but restores the
// standard algorithm's diversity property, which sqvect's
// implementation omitted).
func (g *Graph) selectNeighborsHeuristic(vs VectorSource, query []float32, candidates []uint32, m int) ([]uint32, error) {
	if len(candidates) <= m {
		return candidates, nil
	}

	pairs := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		vec, err := vs.Get(g.nodes[c].id)
		if err != nil {
			return nil, err
		}
		d, err := g.distanceTo(vs, query, c)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, scoredCandidate{idx: c, dist: d, vec: vec})
	}
	sortScoredByDist(pairs)

	selected := make([]scoredCandidate, 0, m)
	var leftovers []scoredCandidate
	for _, cand := range pairs {
		if len(selected) >= m {
			break
		}
		diverse := true
		for _, s := range selected {
			dSel, err := g.distanceBetween(s.vec, cand.vec)
			if err != nil {
				return nil, err
			}
			if dSel <= cand.dist {
				diverse = false
				break
			}
		}
		if diverse {
			selected = append(selected, cand)
		} else {
			leftovers = append(leftovers, cand)
		}
	}
	for _, l := range leftovers {
		if len(selected) >= m {
			break
		}
		selected = append(selected, l)
	}

	out := make([]uint32, len(selected))
	for i, s := range selected {
		out[i] = s.idx
	}
	return out, nil
}

// scoredCandidate pairs a candidate node index with its distance to the
// query and its resolved vector, used while applying the diversity rule in
// selectNeighborsHeuristic.
type scoredCandidate struct {
	idx  uint32
	dist float32
	vec  []float32
}

func sortScoredByDist(pairs []scoredCandidate) {
	for i := 0; i < len(pairs)-1; i++ {
		for j := i + 1; j < len(pairs); j++ {
			if pairs[j].dist < pairs[i].dist {
				pairs[i], pairs[j] = pairs[j], pairs[i]
			}
		}
	}
}

func (g *Graph) distanceTo(vs VectorSource, query []float32, nodeIdx uint32) (float32, error) {
	vec, err := vs.Get(g.nodes[nodeIdx].id)
	if err != nil {
		return 0, err
	}
	return g.distanceBetween(query, vec)
}

func (g *Graph) distanceBetween(a, b []float32) (float32, error) {
	return metric.Distance(g.cfg.Metric, a, b)
}

// floatDistanceFunc binds a VectorSource and query into a distanceFunc
// using the graph's configured metric, for Insert/Search's traversals.
func (g *Graph) floatDistanceFunc(vs VectorSource, query []float32) distanceFunc {
	return func(nodeIdx uint32) (float32, error) {
		return g.distanceTo(vs, query, nodeIdx)
	}
}

// Result is one ranked search hit.
type Result struct {
	ID       storage.VectorId
	Distance float32
}

// Search returns up to k nearest live vectors to query, using ef candidates
// at the base layer. Tombstoned nodes are filtered at emit time, not
// traversal time, to preserve connectivity for other live nodes. Search
// uses the graph's own pooled SearchContext; use SearchWithContext to
// supply one explicitly (e.g. to give each concurrent query goroutine its
// own instance).
func (g *Graph) Search(vs VectorSource, query []float32, k, ef int) ([]Result, error) {
	return g.SearchWithContext(g.ctx, vs, query, k, ef)
}

// SearchWithContext is Search with a caller-supplied SearchContext. The
// context's visited-set bitset is cleared and reused, never reallocated,
// once it has grown to cover the graph's node count.
func (g *Graph) SearchWithContext(ctx *SearchContext, vs VectorSource, query []float32, k, ef int) ([]Result, error) {
	if len(query) != g.cfg.Dim {
		return nil, ErrDimensionMismatch
	}
	if g.entryPoint == -1 {
		return nil, ErrEmptyIndex
	}
	if ef < k {
		ef = k
	}
	if ctx == nil {
		ctx = g.ctx
	}
	distFn := g.floatDistanceFunc(vs, query)

	entry := g.nodes[g.entryPoint]
	curNearest := []uint32{uint32(g.entryPoint)}
	for lc := entry.maxLayer; lc > 0; lc-- {
		best, err := g.searchLayerClosest(ctx, distFn, curNearest, 1, lc)
		if err != nil {
			return nil, err
		}
		if len(best) > 0 {
			curNearest = best
		}
	}

	candidates, err := g.searchLayer(ctx, distFn, curNearest, ef, 0)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		n := g.nodes[c]
		if n.tombstone {
			continue
		}
		d, err := g.distanceTo(vs, query, c)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{ID: n.id, Distance: d})
	}

	for i := 0; i < len(results)-1; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Distance < results[i].Distance {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// SearchHamming runs the same bounded best-first traversal as Search, but
// measuring distance with Hamming against bs's quantized bit vectors
// instead of the graph's configured float metric. It returns up to ef live
// candidate ids, closest first, for a caller to rescore against the real
// float vectors. This is the coarse stage of BQ search: the HNSW graph
// structure (entry point, layers, neighbor lists) is reused unchanged, only
// the distance function differs.
func (g *Graph) SearchHamming(ctx *SearchContext, bs BQVectorSource, queryBits []byte, ef int) ([]storage.VectorId, error) {
	if g.entryPoint == -1 {
		return nil, ErrEmptyIndex
	}
	if ctx == nil {
		ctx = g.ctx
	}

	distFn := func(nodeIdx uint32) (float32, error) {
		bits, ok := bs.GetBits(g.nodes[nodeIdx].id)
		if !ok {
			return math.MaxFloat32, nil
		}
		d, err := metric.Hamming(queryBits, bits)
		if err != nil {
			return 0, err
		}
		return float32(d), nil
	}

	entry := g.nodes[g.entryPoint]
	curNearest := []uint32{uint32(g.entryPoint)}
	for lc := entry.maxLayer; lc > 0; lc-- {
		best, err := g.searchLayerClosest(ctx, distFn, curNearest, 1, lc)
		if err != nil {
			return nil, err
		}
		if len(best) > 0 {
			curNearest = best
		}
	}

	candidates, err := g.searchLayer(ctx, distFn, curNearest, ef, 0)
	if err != nil {
		return nil, err
	}

	out := make([]storage.VectorId, 0, len(candidates))
	for _, c := range candidates {
		n := g.nodes[c]
		if n.tombstone {
			continue
		}
		out = append(out, n.id)
	}
	return out, nil
}

// SoftDelete tombstones id. Neighbor lists are left unchanged; a new entry
// point is chosen if necessary.
func (g *Graph) SoftDelete(id storage.VectorId) error {
	idx, ok := g.idToNode[id]
	if !ok {
		return ErrNotFound
	}
	g.nodes[idx].tombstone = true

	if int32(idx) == g.entryPoint {
		g.entryPoint = -1
		for i, n := range g.nodes {
			if !n.tombstone {
				g.entryPoint = int32(i)
				break
			}
		}
	}
	return nil
}

func (g *Graph) getNeighbors(nodeIdx uint32, layer int) ([]uint32, error) {
	n := g.nodes[nodeIdx]
	if layer > n.maxLayer {
		return nil, nil
	}
	slot := n.slots[layer]
	if slot.length == 0 {
		return nil, nil
	}
	b, err := g.pool.Read(slot.offset, slot.length)
	if err != nil {
		return nil, err
	}
	ids, err := neighbor.Decode(b)
	if err != nil {
		return nil, ErrCorruptedGraph
	}
	return ids, nil
}

func (g *Graph) setNeighbors(nodeIdx uint32, layer int, ids []uint32) error {
	n := g.nodes[nodeIdx]
	if layer > n.maxLayer {
		return nil
	}
	sorted := append([]uint32(nil), ids...)
	insertionSort(sorted)

	encoded := neighbor.Encode(sorted)
	slot := n.slots[layer]

	if uint32(len(encoded)) <= slot.capacity {
		if err := g.pool.Write(slot.offset, encoded); err != nil {
			return err
		}
		slot.length = uint32(len(encoded))
		n.slots[layer] = slot
		return nil
	}

	if slot.capacity > 0 {
		g.pool.Free(slot.offset, slot.capacity)
	}
	offset, capacity := g.pool.Alloc(uint32(len(encoded)))
	if err := g.pool.Write(offset, encoded); err != nil {
		return err
	}
	n.slots[layer] = layerSlot{offset: offset, capacity: capacity, length: uint32(len(encoded))}
	return nil
}

func insertionSort(ids []uint32) {
	for i := 1; i < len(ids); i++ {
		v := ids[i]
		j := i - 1
		for j >= 0 && ids[j] > v {
			ids[j+1] = ids[j]
			j--
		}
		ids[j+1] = v
	}
}

// item is one entry in the search-time priority queues.
type item struct {
	idx  uint32
	dist float32
}

// minHeap pops the smallest distance first (the candidate queue).
type minHeap []item

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(item)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// maxHeap pops the largest distance first (the bounded "found" set, so the
// worst-so-far is always at the root for eviction).
type maxHeap []item

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(item)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
