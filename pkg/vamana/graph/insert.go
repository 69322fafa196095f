package graph

import (
	"time"

	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/metapage"
	"github.com/pgvectorscale/tsv/pkg/vamana/observability"
	"github.com/pgvectorscale/tsv/pkg/vamana/page"
	"github.com/pgvectorscale/tsv/pkg/vamana/storage"
)

// Insert adds one vector to an already-built (or empty) graph: it creates
// the node, greedy-searches from the current entry point to find a
// candidate pool, robust-prunes that pool down to the node's neighbor set,
// then walks each new neighbor and robust-prunes its back-edge in if doing
// so would overflow its own degree. The very first insert into an empty
// index just becomes the entry point with no neighbors. Grounded on
// other_examples' Insert, simplified to a single synchronous call per
// vector (no background rebuild trigger — spec.md's Non-goals exclude
// concurrent background maintenance).
func Insert(mgr page.Manager, store storage.Storage, meta *metapage.MetaPage, neighbors NeighborStore, opts *vamana.IndexOptions, v vamana.Vector, heapPtr vamana.HeapPointer, metrics *observability.Metrics) (vamana.IndexPointer, error) {
	start := time.Now()
	if !meta.HasInitID() {
		ip, err := store.CreateNode(mgr, v, heapPtr, meta)
		if err != nil {
			return vamana.IndexPointer{}, err
		}
		if err := neighbors.SetNeighbors(mgr, ip, nil); err != nil {
			return vamana.IndexPointer{}, err
		}
		if err := metapage.UpdateInitIDs(mgr, ip); err != nil {
			return vamana.IndexPointer{}, err
		}
		meta.InitIDBlock, meta.InitIDOffset = ip.BlockNumber, ip.Offset
		if metrics != nil {
			metrics.RecordInsert(time.Since(start), 0)
		}
		return ip, nil
	}

	newIP, err := store.CreateNode(mgr, v, heapPtr, meta)
	if err != nil {
		return vamana.IndexPointer{}, err
	}

	qdm := store.QueryDistanceMeasure(meta, v)
	candidates, visited, err := GreedySearch(mgr, neighbors, qdm, meta.InitID(), opts.SearchListSize)
	if err != nil {
		return vamana.IndexPointer{}, err
	}

	pool := make(map[vamana.IndexPointer]float32, len(candidates)+len(visited))
	for _, c := range candidates {
		pool[c.IndexPointer] = c.Distance
	}
	for _, ip := range visited {
		if _, ok := pool[ip]; ok {
			continue
		}
		d, err := qdm.DistanceToNode(mgr, ip)
		if err != nil {
			return vamana.IndexPointer{}, err
		}
		pool[ip] = d
	}
	poolList := make([]SearchResult, 0, len(pool))
	for ip, d := range pool {
		poolList = append(poolList, SearchResult{IndexPointer: ip, Distance: d})
	}

	// Prune to the store's own slack cap, not opts.NumNeighbors directly:
	// BuilderStore's cap is the build-time slack (MaxNeighborsDuringBuild),
	// with the trim to NumNeighbors deferred to finalize; DiskStore's cap is
	// already the final degree, so this is a no-op distinction there.
	newNeighbors, err := RobustPrune(mgr, store, meta, newIP, poolList, opts.MaxAlpha, neighbors.MaxNeighbors())
	if err != nil {
		return vamana.IndexPointer{}, err
	}
	if err := neighbors.SetNeighbors(mgr, newIP, newNeighbors); err != nil {
		return vamana.IndexPointer{}, err
	}

	for _, n := range newNeighbors {
		if err := addBackEdge(mgr, store, meta, neighbors, n.IndexPointer, newIP, n.Distance, opts.MaxAlpha); err != nil {
			return vamana.IndexPointer{}, err
		}
	}

	if metrics != nil {
		metrics.RecordInsert(time.Since(start), len(poolList)-len(newNeighbors))
	}
	return newIP, nil
}

// addBackEdge links from back to newIP, robust-pruning back's own neighbor
// list down if the addition would overflow its degree.
func addBackEdge(mgr page.Manager, store storage.Storage, meta *metapage.MetaPage, neighbors NeighborStore, back, newIP vamana.IndexPointer, dist float32, alpha float32) error {
	existing, err := neighbors.GetNeighbors(mgr, back)
	if err != nil {
		return err
	}
	combined := append(existing, storage.NeighborWithDistance{IndexPointer: newIP, Distance: dist})
	if len(combined) <= neighbors.MaxNeighbors() {
		return neighbors.SetNeighbors(mgr, back, combined)
	}

	candPool := make([]SearchResult, len(combined))
	for i, c := range combined {
		candPool[i] = SearchResult{IndexPointer: c.IndexPointer, Distance: c.Distance}
	}
	pruned, err := RobustPrune(mgr, store, meta, back, candPool, alpha, neighbors.MaxNeighbors())
	if err != nil {
		return err
	}
	return neighbors.SetNeighbors(mgr, back, pruned)
}
