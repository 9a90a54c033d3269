package edgevec

import "github.com/matte1782/edgevec-sub002/pkg/metric"

// WALConfig controls write-ahead logging for crash recovery.
type WALConfig struct {
	Enabled bool
	Path    string
	// SyncEvery is not read by the Index: the log is flushed and fsynced
	// after every append whatever its value.
	SyncEvery int
}

// BQConfig controls binary quantization.
type BQConfig struct {
	Enabled bool
	// RescoreFactor controls how many coarse Hamming candidates are
	// retrieved per requested result before exact-float rescoring; see
	// SPEC_FULL.md section 13 for the recall/factor tradeoff this value was
	// chosen for.
	RescoreFactor int
}

// Config parameterizes a new Index, following sqvect's Config /
// DefaultConfig(dim) pattern in pkg/core/embedding.go.
type Config struct {
	Dim            int
	Metric         metric.Kind
	M              int
	M0             int
	EfConstruction int
	EfSearch       int
	Seed           int64
	MaxLayer       int

	WAL WALConfig
	BQ  BQConfig

	// SparseDim is the term-index universe size for the sparse/BM25 index,
	// independent of the dense vector dimension Dim. 0 means the sparse
	// index is not used; InsertSparse then rejects any non-empty vector
	// as out of range and SparseSearch returns no hits.
	SparseDim int

	Logger Logger
}

// DefaultConfig returns a Config for dim-dimensional vectors with
// reasonable numeric defaults: m=16, m0=32, ef_construction=100,
// ef_search=64, max_layer=16, rescore_factor=5.
func DefaultConfig(dim int) Config {
	return Config{
		Dim:            dim,
		Metric:         metric.L2Squared,
		M:              16,
		M0:             32,
		EfConstruction: 100,
		EfSearch:       64,
		Seed:           0,
		MaxLayer:       16,
		BQ:             BQConfig{RescoreFactor: 5},
		Logger:         NopLogger(),
	}
}

// validate reports ErrInvalidConfig for any nonsensical field combination.
func (c Config) validate() error {
	if c.Dim <= 0 {
		return wrapError("New", ErrInvalidConfig)
	}
	if c.M < 0 || c.M0 < 0 || c.EfConstruction < 0 || c.EfSearch < 0 {
		return wrapError("New", ErrInvalidConfig)
	}
	if c.WAL.Enabled && c.WAL.Path == "" {
		return wrapError("New", ErrInvalidConfig)
	}
	return nil
}
