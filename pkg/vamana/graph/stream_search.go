package graph

import (
	"sort"

	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/page"
	"github.com/pgvectorscale/tsv/pkg/vamana/storage"
)

// streamCandidate is one node StreamSearch currently knows about: a distance
// to the query and whether it has already been visited (expanded).
type streamCandidate struct {
	dist    float32
	visited bool
}

// StreamSearch is a persistent greedy-search cursor for query-time
// iteration, grounded on original_source/.../scan.rs's
// greedy_search_streaming_init + greedy_search_iterate + consume: unlike
// GreedySearch (a one-shot search whose result list is capped at
// searchListSize for good, used for build/insert candidate generation),
// StreamSearch keeps its candidate list alive across calls and only ever
// discards *unvisited* candidates once capacity is exceeded. Because Next
// removes the candidate it returns, each call frees room for the search to
// keep expanding outward, so repeated calls are not limited to the first
// searchListSize results. An unvisited candidate that trim drops is seen
// again only if a node expanded later links to it.
type StreamSearch struct {
	mgr            page.Manager
	neighbors      NeighborStore
	qdm            storage.QueryDistanceMeasure
	searchListSize int

	list     map[vamana.IndexPointer]*streamCandidate
	returned map[vamana.IndexPointer]bool
	visited  int
}

// NewStreamSearch seeds a streaming search at start.
func NewStreamSearch(mgr page.Manager, neighbors NeighborStore, qdm storage.QueryDistanceMeasure, start vamana.IndexPointer, searchListSize int) (*StreamSearch, error) {
	dist, err := qdm.DistanceToNode(mgr, start)
	if err != nil {
		return nil, err
	}
	s := &StreamSearch{
		mgr:            mgr,
		neighbors:      neighbors,
		qdm:            qdm,
		searchListSize: searchListSize,
		list:           map[vamana.IndexPointer]*streamCandidate{start: {dist: dist}},
		returned:       map[vamana.IndexPointer]bool{},
	}
	return s, nil
}

// Next returns the next-closest node not yet returned, expanding the
// frontier as needed (graph.greedy_search_iterate) before consuming it
// (lsr.consume). It returns ok=false once the candidate list is empty.
func (s *StreamSearch) Next() (SearchResult, bool, error) {
	for {
		ip, cand, ok := s.closest()
		if !ok {
			return SearchResult{}, false, nil
		}
		if cand.visited {
			delete(s.list, ip)
			s.returned[ip] = true
			return SearchResult{IndexPointer: ip, Distance: cand.dist}, true, nil
		}

		cand.visited = true
		s.visited++
		nbrs, err := s.neighbors.GetNeighbors(s.mgr, ip)
		if err != nil {
			return SearchResult{}, false, err
		}
		for _, n := range nbrs {
			if _, exists := s.list[n.IndexPointer]; exists || s.returned[n.IndexPointer] {
				continue
			}
			dist, err := s.qdm.DistanceToNode(s.mgr, n.IndexPointer)
			if err != nil {
				return SearchResult{}, false, err
			}
			s.list[n.IndexPointer] = &streamCandidate{dist: dist}
		}
		s.trim()
	}
}

// Visited reports how many distinct nodes this search has expanded so far.
func (s *StreamSearch) Visited() int { return s.visited }

// closest returns the list entry with the smallest distance, breaking exact
// ties by IndexPointer so iteration order never affects which node surfaces
// first.
func (s *StreamSearch) closest() (vamana.IndexPointer, *streamCandidate, bool) {
	var bestIP vamana.IndexPointer
	var best *streamCandidate
	for ip, c := range s.list {
		if best == nil || c.dist < best.dist || (c.dist == best.dist && indexPointerLess(ip, bestIP)) {
			bestIP, best = ip, c
		}
	}
	return bestIP, best, best != nil
}

// trim caps the *unvisited* portion of the list at searchListSize, dropping
// the farthest unvisited candidates once it overflows. Visited candidates
// are never evicted: they are pending return and must eventually come out
// through Next, which is what lets a streaming search surface more nodes
// than searchListSize over its lifetime.
func (s *StreamSearch) trim() {
	overflow := len(s.list) - s.searchListSize
	if overflow <= 0 {
		return
	}
	type kv struct {
		ip   vamana.IndexPointer
		dist float32
	}
	unvisited := make([]kv, 0, len(s.list))
	for ip, c := range s.list {
		if !c.visited {
			unvisited = append(unvisited, kv{ip, c.dist})
		}
	}
	if overflow > len(unvisited) {
		overflow = len(unvisited)
	}
	if overflow == 0 {
		return
	}
	sort.Slice(unvisited, func(i, j int) bool { return unvisited[i].dist < unvisited[j].dist })
	for _, e := range unvisited[len(unvisited)-overflow:] {
		delete(s.list, e.ip)
	}
}
