package graph

import (
	"sort"

	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/metapage"
	"github.com/pgvectorscale/tsv/pkg/vamana/page"
	"github.com/pgvectorscale/tsv/pkg/vamana/storage"
)

// RobustPrune selects at most maxNeighbors candidates for p using the
// Vamana alpha-pruning rule: repeatedly take the closest remaining
// candidate to p, keep it, then drop every other candidate p' for which
// alpha * distance(selected, p') <= distance(p, p') — a node already well
// covered by a just-selected, closer neighbor doesn't also need a direct
// edge. Grounded on other_examples' robustPrune, which uses this exact
// exact-comparison form (not a >= tie-breaking variant).
func RobustPrune(mgr page.Manager, store storage.Storage, meta *metapage.MetaPage, p vamana.IndexPointer, candidates []SearchResult, alpha float32, maxNeighbors int) ([]storage.NeighborWithDistance, error) {
	type item struct {
		ip   vamana.IndexPointer
		dist float32
	}
	remaining := make([]item, 0, len(candidates))
	for _, c := range candidates {
		if c.IndexPointer == p {
			continue
		}
		remaining = append(remaining, item{c.IndexPointer, c.Distance})
	}

	var result []storage.NeighborWithDistance
	for len(remaining) > 0 && len(result) < maxNeighbors {
		sort.SliceStable(remaining, func(i, j int) bool {
			if remaining[i].dist != remaining[j].dist {
				return remaining[i].dist < remaining[j].dist
			}
			return indexPointerLess(remaining[i].ip, remaining[j].ip)
		})
		selected := remaining[0]
		remaining = remaining[1:]
		result = append(result, storage.NeighborWithDistance{IndexPointer: selected.ip, Distance: selected.dist})

		ndm, err := store.NodeDistanceMeasure(mgr, meta, selected.ip)
		if err != nil {
			return nil, err
		}
		kept := remaining[:0]
		for _, cand := range remaining {
			dSelCand, err := ndm.DistanceToNode(mgr, cand.ip)
			if err != nil {
				return nil, err
			}
			if alpha*dSelCand > cand.dist {
				kept = append(kept, cand)
			}
		}
		remaining = kept
	}
	return result, nil
}

// indexPointerLess orders IndexPointers by block then offset, giving
// RobustPrune's sort a stable secondary key so candidates tied on exact
// distance (plausible with axis-aligned test vectors) sort deterministically
// instead of depending on map/slice iteration order.
func indexPointerLess(a, b vamana.IndexPointer) bool {
	if a.BlockNumber != b.BlockNumber {
		return a.BlockNumber < b.BlockNumber
	}
	return a.Offset < b.Offset
}
