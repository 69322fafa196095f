// Package am wires the lower packages into the callback surface a host
// access method drives: Build, Insert, BuildEmpty, BeginScan/Rescan,
// GetTuple, EndScan. Grounded on
// original_source/timescale_vector/src/access_method/mod.rs's callback
// names and the validations scattered across build.rs/scan.rs that
// spec.md's distillation states only as prose invariants.
package am

import (
	"context"
	"fmt"

	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/build"
	"github.com/pgvectorscale/tsv/pkg/vamana/graph"
	"github.com/pgvectorscale/tsv/pkg/vamana/host"
	"github.com/pgvectorscale/tsv/pkg/vamana/metapage"
	"github.com/pgvectorscale/tsv/pkg/vamana/observability"
	"github.com/pgvectorscale/tsv/pkg/vamana/page"
	"github.com/pgvectorscale/tsv/pkg/vamana/query"
	"github.com/pgvectorscale/tsv/pkg/vamana/storage"
)

// IndexDef is the single-column index definition a host hands to Build.
// NumKeyColumns must be 1: get_attribute_number in the original asserts
// exactly one indexed attribute, and spec.md gives this module no
// multi-column story.
type IndexDef struct {
	NumKeyColumns int
	Dims          int
}

func (d IndexDef) validate() error {
	if d.NumKeyColumns != 1 {
		return &vamana.Error{Kind: vamana.ConfigError, Field: "num_key_columns", Err: fmt.Errorf("vamana indexes exactly one column, got %d", d.NumKeyColumns)}
	}
	if d.Dims <= 0 || d.Dims >= vamana.MaxDims {
		return &vamana.Error{Kind: vamana.SchemaError, Field: "dims", Err: fmt.Errorf("dims %d must be in (0, %d)", d.Dims, vamana.MaxDims)}
	}
	return nil
}

// Build validates def and opts, then runs the full two-pass construction.
func Build(ctx context.Context, def IndexDef, mgr page.Manager, opts *vamana.IndexOptions, rows host.HeapFetcher, cancel host.CancelSignal, logger *observability.Logger, metrics *observability.Metrics) (*build.Result, error) {
	if err := def.validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return build.Build(ctx, mgr, opts, rows, cancel, logger, metrics)
}

// BuildEmpty is a real, explicit error path rather than a silent no-op:
// ambuildempty in the original panics with a named message, since an
// unlogged relation has no rows to seed a Vamana graph's entry point from.
func BuildEmpty() error {
	return &vamana.Error{Kind: vamana.Invariant, Err: fmt.Errorf("am: build on an empty relation is not supported")}
}

// Scan is one open cursor over an index, wrapping the search iterator with
// the access-method's BeginScan/Rescan/GetTuple/EndScan lifecycle.
type Scan struct {
	mgr     page.Manager
	store   storage.Storage
	meta    *metapage.MetaPage
	logger  *observability.Logger
	metrics *observability.Metrics
	it      *query.Iterator
}

// BeginScan opens a scan against an already-built index.
func BeginScan(mgr page.Manager, st storage.Storage, meta *metapage.MetaPage, logger *observability.Logger, metrics *observability.Metrics) *Scan {
	return &Scan{mgr: mgr, store: st, meta: meta, logger: logger, metrics: metrics}
}

// Rescan validates that exactly one ORDER BY key was supplied and starts a
// fresh greedy search toward it. Grounded on amrescan's original assertion
// that a Vamana scan accepts exactly one orderby operator (nearest-to).
func (s *Scan) Rescan(orderByKeys []vamana.Vector, runtimeListSize int) error {
	if len(orderByKeys) != 1 {
		return &vamana.Error{Kind: vamana.ConfigError, Field: "orderby_keys", Err: fmt.Errorf("vamana scans require exactly one ORDER BY key, got %d", len(orderByKeys))}
	}
	it, err := query.New(s.mgr, s.store, s.meta, orderByKeys[0], runtimeListSize, s.logger, s.metrics)
	if err != nil {
		return err
	}
	s.it = it
	return nil
}

// GetTuple returns the next result in ascending distance order.
func (s *Scan) GetTuple() (vamana.HeapPointer, float32, bool, error) {
	if s.it == nil {
		return vamana.HeapPointer{}, 0, false, &vamana.Error{Kind: vamana.Invariant, Err: fmt.Errorf("am: GetTuple called before Rescan")}
	}
	return s.it.Next()
}

// EndScan closes the cursor, logging scan statistics.
func (s *Scan) EndScan() {
	if s.it != nil {
		s.it.End()
	}
}

// Insert links one new vector into an already-built graph outside of a
// bulk build, using DiskStore so every neighbor read/write goes straight
// through the storage variant's page-backed GetNeighbors/SetNeighbors.
// A nil v (a SQL NULL column) is skipped: Insert writes nothing and returns
// the zero IndexPointer with a nil error.
func Insert(mgr page.Manager, st storage.Storage, meta *metapage.MetaPage, opts *vamana.IndexOptions, v vamana.Vector, heapPtr vamana.HeapPointer, metrics *observability.Metrics) (vamana.IndexPointer, error) {
	if v == nil {
		return vamana.IndexPointer{}, nil
	}
	neighbors := graph.NewDiskStore(st, meta)
	ip, err := graph.Insert(mgr, st, meta, neighbors, opts, v, heapPtr, metrics)
	if err != nil {
		return ip, err
	}
	if err := st.Flush(mgr); err != nil {
		return ip, err
	}
	if err := metapage.UpdateNodeTapeBlock(mgr, st.LastBlock()); err != nil {
		return ip, err
	}
	meta.NodeTapeBlock = st.LastBlock()
	return ip, nil
}
