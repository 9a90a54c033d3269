package hnsw

import (
	"errors"
	"math"
	"math/rand"

	encpkg "github.com/matte1782/edgevec-sub002/internal/encoding"
	"github.com/matte1782/edgevec-sub002/pkg/metric"
	"github.com/matte1782/edgevec-sub002/pkg/neighbor"
	"github.com/matte1782/edgevec-sub002/pkg/storage"
)

// ErrCorruptedSnapshot is returned by Unmarshal when the payload's declared
// lengths do not match its actual contents.
var ErrCorruptedSnapshot = errors.New("hnsw: corrupted graph snapshot")

// Marshal encodes the graph block payload for the engine's snapshot format:
// the graph configuration, entry point, each node's id/maxLayer/tombstone
// and per-layer neighbor-list slots, followed by the raw neighbor-pool
// arena. BQ bitvectors are not part of this block; they are rebuilt
// separately on load.
func (g *Graph) Marshal() []byte {
	var out []byte

	cfgHead := make([]byte, 4+4+4+4+4+8)
	encpkg.PutUint32(cfgHead[0:4], uint32(g.cfg.Dim))
	encpkg.PutUint32(cfgHead[4:8], uint32(g.cfg.Metric))
	encpkg.PutUint32(cfgHead[8:12], uint32(g.cfg.M))
	encpkg.PutUint32(cfgHead[12:16], uint32(g.cfg.M0))
	encpkg.PutUint32(cfgHead[16:20], uint32(g.cfg.EfConstruction))
	encpkg.PutUint64(cfgHead[20:28], uint64(g.cfg.Seed))
	out = append(out, cfgHead...)

	entryBuf := make([]byte, 4)
	encpkg.PutUint32(entryBuf, uint32(g.entryPoint))
	out = append(out, entryBuf...)

	nodeCountBuf := make([]byte, 4)
	encpkg.PutUint32(nodeCountBuf, uint32(len(g.nodes)))
	out = append(out, nodeCountBuf...)

	for _, n := range g.nodes {
		head := make([]byte, 8+4+1)
		encpkg.PutUint64(head[0:8], uint64(n.id))
		encpkg.PutUint32(head[8:12], uint32(n.maxLayer))
		if n.tombstone {
			head[12] = 1
		}
		out = append(out, head...)

		for _, slot := range n.slots {
			slotBuf := make([]byte, 12)
			encpkg.PutUint32(slotBuf[0:4], slot.offset)
			encpkg.PutUint32(slotBuf[4:8], slot.capacity)
			encpkg.PutUint32(slotBuf[8:12], slot.length)
			out = append(out, slotBuf...)
		}
	}

	arena := g.pool.Bytes()
	arenaLenBuf := make([]byte, 4)
	encpkg.PutUint32(arenaLenBuf, uint32(len(arena)))
	out = append(out, arenaLenBuf...)
	out = append(out, arena...)

	return out
}

// Unmarshal reconstructs a Graph from a payload produced by Marshal. The
// neighbor pool's free-list is not restored (Marshal only persists the
// arena bytes, not free-region bookkeeping); new allocations after Load
// fall back to tail-growth until Free is called on a stale slot, which is
// consistent with pkg/neighbor.Pool's documented LoadArena contract.
func Unmarshal(payload []byte) (*Graph, error) {
	if len(payload) < 28+4+4 {
		return nil, ErrCorruptedSnapshot
	}
	cfg := Config{
		Dim:            int(encpkg.Uint32(payload[0:4])),
		Metric:         metric.Kind(encpkg.Uint32(payload[4:8])),
		M:              int(encpkg.Uint32(payload[8:12])),
		M0:             int(encpkg.Uint32(payload[12:16])),
		EfConstruction: int(encpkg.Uint32(payload[16:20])),
		Seed:           int64(encpkg.Uint64(payload[20:28])),
	}
	pos := 28

	entryPoint := int32(encpkg.Uint32(payload[pos : pos+4]))
	pos += 4

	nodeCount := int(encpkg.Uint32(payload[pos : pos+4]))
	pos += 4

	m := cfg.M
	if m < 2 {
		m = 2
	}

	g := &Graph{
		cfg:        cfg,
		ml:         1.0 / math.Log(float64(m)),
		pool:       neighbor.New(),
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		idToNode:   make(map[storage.VectorId]uint32),
		entryPoint: entryPoint,
		ctx:        NewSearchContext(),
	}

	g.nodes = make([]*node, 0, nodeCount)
	for i := 0; i < nodeCount; i++ {
		if pos+8+4+1 > len(payload) {
			return nil, ErrCorruptedSnapshot
		}
		id := storage.VectorId(encpkg.Uint64(payload[pos : pos+8]))
		maxLayer := int(encpkg.Uint32(payload[pos+8 : pos+12]))
		tombstone := payload[pos+12] != 0
		pos += 13

		slots := make([]layerSlot, maxLayer+1)
		for l := 0; l <= maxLayer; l++ {
			if pos+12 > len(payload) {
				return nil, ErrCorruptedSnapshot
			}
			slots[l] = layerSlot{
				offset:   encpkg.Uint32(payload[pos : pos+4]),
				capacity: encpkg.Uint32(payload[pos+4 : pos+8]),
				length:   encpkg.Uint32(payload[pos+8 : pos+12]),
			}
			pos += 12
		}

		n := &node{id: id, maxLayer: maxLayer, slots: slots, tombstone: tombstone}
		nodeIdx := uint32(len(g.nodes))
		g.nodes = append(g.nodes, n)
		g.idToNode[id] = nodeIdx
	}

	if pos+4 > len(payload) {
		return nil, ErrCorruptedSnapshot
	}
	arenaLen := int(encpkg.Uint32(payload[pos : pos+4]))
	pos += 4
	if pos+arenaLen > len(payload) {
		return nil, ErrCorruptedSnapshot
	}
	g.pool.LoadArena(payload[pos : pos+arenaLen])

	return g, nil
}
