// Package edgevec's root file implements the Index facade: the public
// external interface wired on top of pkg/storage, pkg/hnsw, pkg/quantize,
// pkg/sparse, pkg/hybrid, pkg/metadata, pkg/filter, and pkg/persist.
// Grounded on sqvect's store.go (SQLiteStore's field-of-owned-
// components shape, InsertBatch's per-item BatchError aggregation,
// uuid.New().String() instance-id pattern), adapted to an acyclic
// storage/graph ownership split (see DESIGN.md): the facade holds both
// and passes them explicitly into every hnsw call rather than letting the
// graph own vectors itself.
package edgevec

import (
	"bytes"
	"io"
	"os"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"

	"github.com/matte1782/edgevec-sub002/pkg/filter"
	"github.com/matte1782/edgevec-sub002/pkg/hnsw"
	"github.com/matte1782/edgevec-sub002/pkg/hybrid"
	"github.com/matte1782/edgevec-sub002/pkg/metadata"
	"github.com/matte1782/edgevec-sub002/pkg/metric"
	"github.com/matte1782/edgevec-sub002/pkg/persist"
	"github.com/matte1782/edgevec-sub002/pkg/quantize"
	"github.com/matte1782/edgevec-sub002/pkg/sparse"
	"github.com/matte1782/edgevec-sub002/pkg/storage"
)

// VectorId identifies a stored vector; re-exported from pkg/storage so
// callers never need to import it directly.
type VectorId = storage.VectorId

// Value is a typed metadata value; re-exported from pkg/metadata.
type Value = metadata.Value

// Convenience constructors mirroring pkg/metadata's, so callers only ever
// import the root package for simple programs.
var (
	String  = metadata.String
	Integer = metadata.Integer
	Float   = metadata.Float
	Boolean = metadata.Boolean
	Null    = metadata.Null
	Array   = metadata.Array
)

// SearchResult is one ranked dense search hit.
type SearchResult struct {
	ID       VectorId
	Distance float32
}

// SparseVector is re-exported from pkg/sparse for callers of SparseSearch.
type SparseVector = sparse.Vector

// SparseEntry is re-exported from pkg/sparse.
type SparseEntry = sparse.Entry

// HybridConfig selects the fusion method and its parameters for
// HybridSearch.
type HybridConfig struct {
	// Method is "rrf" or "linear"; empty defaults to "rrf".
	Method string
	RRFK   int
	Alpha  float32
}

// InsertItem is one entry of an InsertBatch call: an optional metadata map
// alongside the vector.
type InsertItem struct {
	Vector   []float32
	Metadata map[string]Value
}

// Index is the embeddable vector search engine facade. It owns storage,
// the HNSW graph, the optional BQ index, the sparse/BM25 index, and the
// metadata store, and coordinates filtered search strategy selection.
type Index struct {
	id     string
	cfg    Config
	logger Logger

	store *storage.Storage
	graph *hnsw.Graph
	meta  *metadata.Store

	bq        *quantize.BinaryQuantizer
	bqVectors map[VectorId][]byte
	bqEnabled bool

	sparseIdx *sparse.Index
}

// New constructs an Index for the given configuration.
func New(cfg Config) (*Index, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger()
	}
	id := uuid.New().String()
	logger = logger.With("instance", id)

	store, recovering, err := openOrRecoverStorage(cfg)
	if err != nil {
		return nil, wrapErrorf("New", ErrIOError, err)
	}

	graph := hnsw.New(hnsw.Config{
		Dim:            cfg.Dim,
		Metric:         cfg.Metric,
		M:              cfg.M,
		M0:             cfg.M0,
		EfConstruction: cfg.EfConstruction,
		Seed:           cfg.Seed,
	})
	if recovering {
		if err := replayGraph(graph, store); err != nil {
			return nil, wrapErrorf("New", ErrIOError, err)
		}
	}

	idx := &Index{
		id:        id,
		cfg:       cfg,
		logger:    logger,
		store:     store,
		graph:     graph,
		meta:      metadata.New(),
		sparseIdx: sparse.New(cfg.SparseDim),
	}
	idx.logger.Info("index created", "dim", cfg.Dim, "metric", cfg.Metric.String())
	if cfg.BQ.Enabled {
		if err := idx.EnableBQ(); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// openOrRecoverStorage opens a fresh Storage, or, when WAL is enabled and a
// non-empty log already exists at cfg.WAL.Path, replays it first before
// reattaching the log for subsequent appends. The
// returned bool reports whether recovery ran, so the caller knows to also
// rebuild the HNSW graph (which the WAL does not cover) from the recovered
// vectors.
func openOrRecoverStorage(cfg Config) (*storage.Storage, bool, error) {
	if !cfg.WAL.Enabled {
		s, err := storage.New(cfg.Dim)
		return s, false, err
	}

	info, statErr := os.Stat(cfg.WAL.Path)
	if statErr != nil || info.Size() == 0 {
		s, err := storage.New(cfg.Dim, storage.WithWAL(cfg.WAL.Path))
		return s, false, err
	}

	s, err := storage.Replay(cfg.WAL.Path, cfg.Dim, true)
	if err != nil {
		return nil, false, err
	}
	if err := s.AttachWAL(cfg.WAL.Path); err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// replayGraph rebuilds the HNSW graph from every live vector in store, in
// VectorId order, since the write-ahead log only covers storage state.
func replayGraph(graph *hnsw.Graph, store *storage.Storage) error {
	for i := 1; i <= store.Len(); i++ {
		id := VectorId(i)
		if store.IsDeleted(id) {
			continue
		}
		vec, err := store.Get(id)
		if err != nil {
			return err
		}
		if err := graph.Insert(store, id, vec); err != nil {
			return err
		}
	}
	return nil
}

// Insert dimension-checks and inserts vec, assigning it a new VectorId,
// optionally attaching a metadata record, and optionally enrolling it in
// the BQ index if BQ is enabled.
func (idx *Index) Insert(vec []float32, meta map[string]Value) (VectorId, error) {
	id, err := idx.store.Insert(vec)
	if err != nil {
		return 0, translateStorageErr("Insert", err)
	}
	if err := idx.graph.Insert(idx.store, id, vec); err != nil {
		return 0, translateHNSWErr("Insert", err)
	}
	if len(meta) > 0 {
		idx.meta.Set(id, metadata.Record(meta))
	}
	if idx.bqEnabled {
		bits, err := idx.bq.Encode(vec)
		if err != nil {
			return 0, wrapErrorf("Insert", ErrInvalidInput, err)
		}
		idx.bqVectors[id] = bits
	}
	idx.logger.Debug("insert", "id", id)
	return id, nil
}

// InsertBatch inserts each item in order, collecting a BatchError for any
// item that fails without aborting the remaining items.
func (idx *Index) InsertBatch(items []InsertItem) ([]VectorId, []BatchError) {
	batchID := uuid.New().String()
	ids := make([]VectorId, 0, len(items))
	var errs []BatchError
	for i, item := range items {
		id, err := idx.Insert(item.Vector, item.Metadata)
		if err != nil {
			errs = append(errs, BatchError{Index: i, Cause: err})
			continue
		}
		ids = append(ids, id)
	}
	idx.logger.Debug("insert_batch", "batch_id", batchID, "count", len(items), "failures", len(errs))
	return ids, errs
}

// Search returns up to k nearest vectors to query. If f is non-nil, a
// filter strategy is selected and applied; a nil f searches unfiltered.
func (idx *Index) Search(query []float32, k int, f filter.Expr) ([]SearchResult, error) {
	ef := idx.cfg.EfSearch
	if ef < k {
		ef = k
	}

	if f == nil {
		return idx.searchRaw(query, k, ef)
	}
	return idx.searchFiltered(query, k, ef, f)
}

func (idx *Index) searchRaw(query []float32, k, ef int) ([]SearchResult, error) {
	results, err := idx.graph.Search(idx.store, query, k, ef)
	if err != nil {
		return idx.emptyOnEmptyIndex(err)
	}
	return toSearchResults(results), nil
}

func (idx *Index) emptyOnEmptyIndex(err error) ([]SearchResult, error) {
	if err == hnsw.ErrEmptyIndex {
		return nil, nil
	}
	return nil, translateHNSWErr("Search", err)
}

// searchFiltered applies a cost-based strategy: pre-filter materializes
// the admitted ID set and scans it linearly; post-filter runs
// an oversampled unfiltered search and discards non-admitted results;
// in-graph currently falls back to post-filter's oversample (the
// candidate-admission hook into pkg/hnsw's traversal is not exposed, so
// in-graph and post-filter share an implementation here until pkg/hnsw
// grows a filtered-admission callback).
func (idx *Index) searchFiltered(query []float32, k, ef int, f filter.Expr) ([]SearchResult, error) {
	records := make(map[uint64]metadata.Record)
	ids := idx.liveIDs()
	for _, id := range ids {
		records[uint64(id)] = idx.meta.Get(VectorId(id))
	}

	plan := filter.SelectStrategy(f, records, ids)
	switch plan.Strategy {
	case filter.StrategyEmpty:
		return nil, nil
	case filter.StrategyBypass:
		return idx.searchRaw(query, k, ef)
	case filter.StrategyPreFilter:
		return idx.preFilterSearch(query, k, f)
	default: // StrategyPostFilter, StrategyInGraph
		oversampledEf := filter.EffectiveEf(ef, plan.Oversample)
		return idx.postFilterSearch(query, k, oversampledEf, f)
	}
}

func (idx *Index) liveIDs() []uint64 {
	n := idx.store.Len()
	ids := make([]uint64, 0, n)
	for i := 1; i <= n; i++ {
		id := VectorId(i)
		if !idx.store.IsDeleted(id) {
			ids = append(ids, uint64(id))
		}
	}
	return ids
}

// preFilterSearch materializes the admitted candidate set as a
// roaring.Bitmap: every id passing the filter goes in, then one AndNot
// against the storage layer's deleted bitmap drops tombstones, rather than
// probing IsDeleted per id.
func (idx *Index) preFilterSearch(query []float32, k int, f filter.Expr) ([]SearchResult, error) {
	n := idx.store.Len()
	admittedIDs := roaring.New()
	for i := 1; i <= n; i++ {
		id := VectorId(i)
		if filter.Eval(f, idx.meta.Get(id)) {
			admittedIDs.Add(uint32(id))
		}
	}
	admittedIDs.AndNot(idx.store.DeletedBitmap())

	var admitted []SearchResult
	for _, id32 := range admittedIDs.ToArray() {
		id := VectorId(id32)
		vec, err := idx.store.Get(id)
		if err != nil {
			continue
		}
		d, err := idx.distance(query, vec)
		if err != nil {
			return nil, err
		}
		admitted = append(admitted, SearchResult{ID: id, Distance: d})
	}
	sortByDistance(admitted)
	if len(admitted) > k {
		admitted = admitted[:k]
	}
	return admitted, nil
}

func (idx *Index) postFilterSearch(query []float32, k, ef int, f filter.Expr) ([]SearchResult, error) {
	candidates, err := idx.graph.Search(idx.store, query, ef, ef)
	if err != nil {
		return idx.emptyOnEmptyIndex(err)
	}
	var out []SearchResult
	for _, c := range candidates {
		rec := idx.meta.Get(c.ID)
		if filter.Eval(f, rec) {
			out = append(out, SearchResult{ID: c.ID, Distance: c.Distance})
			if len(out) >= k {
				break
			}
		}
	}
	return out, nil
}

func (idx *Index) distance(a, b []float32) (float32, error) {
	d, err := metric.Distance(idx.cfg.Metric, a, b)
	if err != nil {
		return 0, wrapErrorf("Search", ErrInvalidInput, err)
	}
	return d, nil
}

// SoftDelete tombstones id in both the graph and storage.
func (idx *Index) SoftDelete(id VectorId) error {
	if err := idx.graph.SoftDelete(id); err != nil {
		return translateHNSWErr("SoftDelete", err)
	}
	if err := idx.store.MarkDeleted(id); err != nil {
		return translateStorageErr("SoftDelete", err)
	}
	idx.meta.Delete(id)
	delete(idx.bqVectors, id)
	return nil
}

// EnableBQ builds the binary-quantization index from every currently
// stored vector. Metric must be a float metric BQ can rescore against;
// EnableBQ itself never fails on metric grounds in this implementation
// (Hamming is only used for coarse candidate generation, never in place of
// the configured metric).
func (idx *Index) EnableBQ() error {
	idx.bq = quantize.New(idx.cfg.Dim)
	idx.bqVectors = make(map[VectorId][]byte, idx.store.Len())
	for i := 1; i <= idx.store.Len(); i++ {
		id := VectorId(i)
		vec, err := idx.store.Get(id)
		if err != nil {
			continue
		}
		bits, err := idx.bq.Encode(vec)
		if err != nil {
			return wrapErrorf("EnableBQ", ErrInvalidInput, err)
		}
		idx.bqVectors[id] = bits
	}
	idx.bqEnabled = true
	idx.logger.Info("bq enabled", "count", len(idx.bqVectors))
	return nil
}

// BQSearch runs BQ coarse search plus exact-float rescoring.
func (idx *Index) BQSearch(query []float32, k int) ([]SearchResult, error) {
	if !idx.bqEnabled {
		return nil, wrapError("BQSearch", ErrInvalidConfig)
	}
	queryBits, err := idx.bq.Encode(query)
	if err != nil {
		return nil, wrapErrorf("BQSearch", ErrInvalidInput, err)
	}
	rescoreFactor := idx.cfg.BQ.RescoreFactor
	if rescoreFactor <= 0 {
		rescoreFactor = quantize.DefaultRescoreFactor
	}
	results, err := quantize.SearchAndRescore(idx.graph, nil, idx.store, queryBits, query, idx.bqVectors, k, rescoreFactor, idx.cfg.Metric)
	if err != nil {
		return nil, wrapErrorf("BQSearch", ErrInvalidInput, err)
	}
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{ID: r.ID, Distance: r.Distance}
	}
	return out, nil
}

// InsertSparse adds a sparse (keyword/BM25) vector under id, sharing the
// dense VectorId space.
func (idx *Index) InsertSparse(id VectorId, vec SparseVector) error {
	if err := idx.sparseIdx.Insert(sparse.SparseId(id), vec); err != nil {
		return wrapErrorf("InsertSparse", ErrInvalidInput, err)
	}
	return nil
}

// SparseResult is one ranked sparse (BM25) search hit.
type SparseResult struct {
	ID    VectorId
	Score float32
}

// SparseSearch runs BM25 search over the sparse index.
func (idx *Index) SparseSearch(query SparseVector, k int) []SparseResult {
	hits := idx.sparseIdx.Search(query, k)
	out := make([]SparseResult, len(hits))
	for i, h := range hits {
		out[i] = SparseResult{ID: VectorId(h.ID), Score: h.Score}
	}
	return out
}

// HybridResult is one ranked fused dense+sparse search hit.
type HybridResult struct {
	ID    VectorId
	Score float32
}

// HybridSearch fuses a dense and a sparse search into one ranked list.
func (idx *Index) HybridSearch(cfg HybridConfig, query []float32, sparseQuery SparseVector, k int) ([]HybridResult, error) {
	denseResults, err := idx.Search(query, k, nil)
	if err != nil {
		return nil, err
	}
	sparseResults := idx.SparseSearch(sparseQuery, k)

	denseHits := make([]hybrid.Hit, len(denseResults))
	for i, r := range denseResults {
		denseHits[i] = hybrid.Hit{ID: uint64(r.ID), Score: r.Distance}
	}
	sparseHits := make([]hybrid.Hit, len(sparseResults))
	for i, r := range sparseResults {
		sparseHits[i] = hybrid.Hit{ID: uint64(r.ID), Score: r.Score}
	}

	var fused []hybrid.Fused
	if cfg.Method == "linear" {
		fused = hybrid.Linear(denseHits, sparseHits, cfg.Alpha, k)
	} else {
		fused = hybrid.RRF(denseHits, sparseHits, cfg.RRFK, k)
	}

	out := make([]HybridResult, len(fused))
	for i, f := range fused {
		out[i] = HybridResult{ID: VectorId(f.ID), Score: f.Score}
	}
	return out, nil
}

// Snapshot serializes the index to w.
func (idx *Index) Snapshot(w io.Writer) error {
	data, err := persist.Write(&persist.Snapshot{
		Storage:   idx.store,
		Graph:     idx.graph,
		Metadata:  idx.meta,
		BQEnabled: idx.bqEnabled,
	})
	if err != nil {
		return wrapErrorf("Snapshot", ErrIOError, err)
	}
	if _, err := w.Write(data); err != nil {
		return wrapErrorf("Snapshot", ErrIOError, err)
	}
	idx.logger.Info("snapshot written", "bytes", len(data))
	return nil
}

// Load reconstructs an Index from a snapshot stream produced by Snapshot.
// The returned Index uses cfg's Logger and search settings, but its
// storage/graph/metadata state comes entirely from the snapshot. No
// write-ahead log is attached to the loaded Index, whatever cfg.WAL says.
func Load(r io.Reader, cfg Config) (*Index, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, wrapErrorf("Load", ErrIOError, err)
	}
	snap, err := persist.Read(buf.Bytes())
	if err != nil {
		return nil, translatePersistErr("Load", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger()
	}
	id := uuid.New().String()
	logger = logger.With("instance", id)

	idx := &Index{
		id:        id,
		cfg:       cfg,
		logger:    logger,
		store:     snap.Storage,
		graph:     snap.Graph,
		meta:      snap.Metadata,
		sparseIdx: sparse.New(cfg.SparseDim),
	}
	if snap.BQEnabled {
		if err := idx.EnableBQ(); err != nil {
			return nil, err
		}
	}
	idx.logger.Info("snapshot loaded")
	return idx, nil
}

// Close releases the WAL file handle, if any.
func (idx *Index) Close() error {
	return idx.store.Close()
}

func toSearchResults(results []hnsw.Result) []SearchResult {
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{ID: r.ID, Distance: r.Distance}
	}
	return out
}

func sortByDistance(results []SearchResult) {
	for i := 0; i < len(results)-1; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Distance < results[i].Distance {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
}
