package graph

import (
	"container/heap"
	"sort"

	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/page"
	"github.com/pgvectorscale/tsv/pkg/vamana/storage"
)

// SearchResult is one candidate surfaced by GreedySearch, ranked by
// distance from whatever reference point (query or node) drove the search.
type SearchResult struct {
	IndexPointer vamana.IndexPointer
	Distance     float32
}

type candEntry struct {
	ip   vamana.IndexPointer
	dist float32
}

// candHeap is a container/heap min-heap ordered by distance, adapted from
// other_examples' minDistHeap/candDist frontier.
type candHeap []candEntry

func (h candHeap) Len() int            { return len(h) }
func (h candHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h candHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candHeap) Push(x interface{}) { *h = append(*h, x.(candEntry)) }
func (h *candHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// GreedySearch runs the Vamana beam search from start toward whatever point
// qdm measures distance to, maintaining a candidate list capped at
// searchListSize. It returns the final candidate list (closest first,
// trimmed to searchListSize) and every node actually visited, in visit
// order — the latter is the candidate pool RobustPrune needs when this
// search is run during insert rather than query.
func GreedySearch(mgr page.Manager, neighbors NeighborStore, qdm storage.QueryDistanceMeasure, start vamana.IndexPointer, searchListSize int) ([]SearchResult, []vamana.IndexPointer, error) {
	visited := make(map[vamana.IndexPointer]bool)
	inList := make(map[vamana.IndexPointer]float32)
	frontier := &candHeap{}
	heap.Init(frontier)

	startDist, err := qdm.DistanceToNode(mgr, start)
	if err != nil {
		return nil, nil, err
	}
	heap.Push(frontier, candEntry{start, startDist})
	inList[start] = startDist

	var visitedOrder []vamana.IndexPointer

	for frontier.Len() > 0 {
		cur := heap.Pop(frontier).(candEntry)
		d, stillMember := inList[cur.ip]
		if !stillMember || d != cur.dist {
			continue // stale: trimmed out of inList since being pushed
		}
		if visited[cur.ip] {
			continue
		}
		visited[cur.ip] = true
		visitedOrder = append(visitedOrder, cur.ip)

		nbrs, err := neighbors.GetNeighbors(mgr, cur.ip)
		if err != nil {
			return nil, nil, err
		}
		for _, n := range nbrs {
			if visited[n.IndexPointer] {
				continue
			}
			if _, ok := inList[n.IndexPointer]; ok {
				continue
			}
			dist, err := qdm.DistanceToNode(mgr, n.IndexPointer)
			if err != nil {
				return nil, nil, err
			}
			inList[n.IndexPointer] = dist
			heap.Push(frontier, candEntry{n.IndexPointer, dist})
		}

		if len(inList) > searchListSize {
			trimInList(inList, searchListSize)
		}
	}

	results := make([]SearchResult, 0, len(inList))
	for ip, dist := range inList {
		results = append(results, SearchResult{IndexPointer: ip, Distance: dist})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > searchListSize {
		results = results[:searchListSize]
	}
	return results, visitedOrder, nil
}

func trimInList(inList map[vamana.IndexPointer]float32, keep int) {
	type kv struct {
		ip vamana.IndexPointer
		d  float32
	}
	arr := make([]kv, 0, len(inList))
	for ip, d := range inList {
		arr = append(arr, kv{ip, d})
	}
	sort.Slice(arr, func(i, j int) bool { return arr[i].d < arr[j].d })
	for _, e := range arr[keep:] {
		delete(inList, e.ip)
	}
}
