// Package edgevec is an embeddable approximate nearest-neighbor vector
// search engine: a hierarchical navigable small-world (HNSW) graph over
// float32 vectors, with optional binary quantization for coarse candidate
// generation, a BM25 sparse index for keyword-style search, dense/sparse
// hybrid fusion, and a metadata filter language with a cost-aware search
// strategy. It is built to run both as a native Go library and compiled to
// WebAssembly, so the whole engine is single-threaded, allocation-frugal on
// the hot paths, and durable across process restarts via an optional
// write-ahead log and a CRC-checked snapshot format.
//
// # Quick start
//
//	cfg := edgevec.DefaultConfig(128)
//	idx, err := edgevec.New(cfg)
//	id, err := idx.Insert(vector, map[string]edgevec.Value{"category": edgevec.String("a")})
//	results, err := idx.Search(query, 10, nil)
//
// # Durability
//
//	cfg.WAL.Enabled = true
//	cfg.WAL.Path = "index.wal"
//	idx, _ := edgevec.New(cfg)
//	// ... inserts are replayed from the WAL if the process crashes before
//	// the next Snapshot.
//
// # Filtering
//
//	f, err := filter.Parse(`category = "a" AND price >= 10`)
//	results, err := idx.Search(query, 10, f)
//
// See SPEC_FULL.md in the repository root for the full component-by-component
// specification this package implements.
package edgevec
