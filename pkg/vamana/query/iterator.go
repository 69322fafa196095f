// Package query implements the streaming top-k iterator a host scan drives
// one GetTuple call at a time. Each page touched during greedy search is
// read and released within a single page.ReadItem call before the next
// node is visited: page.ReadItem copies a node's bytes out before
// releasing, so no page stays pinned between Next calls, including the
// page that holds the last-returned result.
package query

import (
	"time"

	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/graph"
	"github.com/pgvectorscale/tsv/pkg/vamana/metapage"
	"github.com/pgvectorscale/tsv/pkg/vamana/observability"
	"github.com/pgvectorscale/tsv/pkg/vamana/page"
	"github.com/pgvectorscale/tsv/pkg/vamana/storage"
)

// Iterator is a single active scan. Unlike a one-shot bounded search, it
// holds a live graph.StreamSearch that keeps expanding the frontier on
// every Next call, so the candidates it can surface are never capped at the
// search's configured list size. Unvisited candidates that the search drops
// once its list overflows are not revisited, so a full scan can miss nodes
// that are reachable only through them.
type Iterator struct {
	mgr    page.Manager
	store  storage.Storage
	search *graph.StreamSearch
	pos    int

	variant string
	logger  *observability.Logger
	metrics *observability.Metrics
	start   time.Time
}

// New seeds a streaming greedy search from the index's entry point toward
// query and returns an iterator over it. runtimeListSize overrides meta's
// build-time search list size when positive (spec.md §6's
// query_search_list_size, the one sanctioned piece of host-sourced runtime
// state).
func New(mgr page.Manager, st storage.Storage, meta *metapage.MetaPage, query vamana.Vector, runtimeListSize int, logger *observability.Logger, metrics *observability.Metrics) (*Iterator, error) {
	it := &Iterator{mgr: mgr, store: st, logger: logger, metrics: metrics, start: time.Now(), variant: variantLabel(meta.StorageDiscriminant)}
	if !meta.HasInitID() {
		return it, nil
	}

	listSize := meta.SearchListSize
	if runtimeListSize > 0 {
		listSize = runtimeListSize
	}

	qdm := st.QueryDistanceMeasure(meta, query)
	neighbors := graph.NewDiskStore(st, meta)
	search, err := graph.NewStreamSearch(mgr, neighbors, qdm, meta.InitID(), listSize)
	if err != nil {
		return nil, err
	}
	it.search = search
	return it, nil
}

// Next returns the next closest result, skipping tombstoned rows silently
// (spec.md §4.5: a deleted row's graph node is never surfaced, but its
// edges are still walked during search since removing them eagerly would
// require reverse-mapping cleanup the Non-goals exclude).
func (it *Iterator) Next() (vamana.HeapPointer, float32, bool, error) {
	if it.search == nil {
		return vamana.HeapPointer{}, 0, false, nil
	}
	for {
		r, ok, err := it.search.Next()
		if err != nil {
			return vamana.HeapPointer{}, 0, false, err
		}
		if !ok {
			return vamana.HeapPointer{}, 0, false, nil
		}
		hp, err := it.store.HeapPointer(it.mgr, r.IndexPointer)
		if err != nil {
			return vamana.HeapPointer{}, 0, false, err
		}
		if hp.Tombstoned() {
			continue
		}
		it.pos++
		return hp, r.Distance, true, nil
	}
}

// End logs and records scan statistics. Grounded on
// original_source/.../scan.rs's end_scan debug logging of candidates
// visited and distance comparisons.
func (it *Iterator) End() {
	visited := 0
	if it.search != nil {
		visited = it.search.Visited()
	}
	if it.logger != nil {
		it.logger.Debug("query: scan ended", map[string]interface{}{
			"candidates_visited": visited,
			"results_returned":   it.pos,
		})
	}
	if it.metrics != nil {
		it.metrics.RecordQuery(it.variant, time.Since(it.start), visited)
	}
}

func variantLabel(discriminant vamana.StorageType) string {
	switch discriminant {
	case vamana.PqCompression:
		return "pq"
	case vamana.BqSpeedup:
		return "bq"
	default:
		return "plain"
	}
}
