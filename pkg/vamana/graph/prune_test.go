package graph_test

import (
	"testing"

	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/graph"
	"github.com/pgvectorscale/tsv/pkg/vamana/metapage"
	"github.com/pgvectorscale/tsv/pkg/vamana/storage"
)

func TestRobustPruneAggressiveAlphaCollapsesCollinearCandidates(t *testing.T) {
	mgr := openTestManager(t)
	meta, err := metapage.Create(mgr, vamana.DefaultOptions(1))
	if err != nil {
		t.Fatalf("metapage.Create failed: %v", err)
	}
	st, err := storage.NewPlainStorage(mgr, 1, vamana.L2, 8)
	if err != nil {
		t.Fatalf("NewPlainStorage failed: %v", err)
	}

	p, _ := st.CreateNode(mgr, vamana.Vector{0}, vamana.HeapPointer{BlockNumber: 1}, meta)
	c1, _ := st.CreateNode(mgr, vamana.Vector{10}, vamana.HeapPointer{BlockNumber: 2}, meta)
	c2, _ := st.CreateNode(mgr, vamana.Vector{11}, vamana.HeapPointer{BlockNumber: 3}, meta)
	c3, _ := st.CreateNode(mgr, vamana.Vector{20}, vamana.HeapPointer{BlockNumber: 4}, meta)

	candidates := []graph.SearchResult{
		{IndexPointer: c1, Distance: 10},
		{IndexPointer: c2, Distance: 11},
		{IndexPointer: c3, Distance: 20},
	}

	result, err := graph.RobustPrune(mgr, st, meta, p, candidates, 1.0, 3)
	if err != nil {
		t.Fatalf("RobustPrune failed: %v", err)
	}
	// c2 sits almost on the segment from p through c1 (alpha*dist(c1,c2)=1 <=
	// its own distance to p), so alpha=1.0 prunes it; same for c3 relative
	// to c1. Only the closest candidate survives.
	if len(result) != 1 || result[0].IndexPointer != c1 {
		t.Fatalf("RobustPrune(alpha=1.0) = %+v, want only c1", result)
	}
}

func TestRobustPruneLargerAlphaKeepsMoreCandidates(t *testing.T) {
	mgr := openTestManager(t)
	meta, err := metapage.Create(mgr, vamana.DefaultOptions(1))
	if err != nil {
		t.Fatalf("metapage.Create failed: %v", err)
	}
	st, err := storage.NewPlainStorage(mgr, 1, vamana.L2, 8)
	if err != nil {
		t.Fatalf("NewPlainStorage failed: %v", err)
	}

	p, _ := st.CreateNode(mgr, vamana.Vector{0}, vamana.HeapPointer{BlockNumber: 1}, meta)
	c1, _ := st.CreateNode(mgr, vamana.Vector{10}, vamana.HeapPointer{BlockNumber: 2}, meta)
	c2, _ := st.CreateNode(mgr, vamana.Vector{11}, vamana.HeapPointer{BlockNumber: 3}, meta)
	c3, _ := st.CreateNode(mgr, vamana.Vector{20}, vamana.HeapPointer{BlockNumber: 4}, meta)

	candidates := []graph.SearchResult{
		{IndexPointer: c1, Distance: 10},
		{IndexPointer: c2, Distance: 11},
		{IndexPointer: c3, Distance: 20},
	}

	result, err := graph.RobustPrune(mgr, st, meta, p, candidates, 3.0, 3)
	if err != nil {
		t.Fatalf("RobustPrune failed: %v", err)
	}
	// alpha=3.0 no longer prunes c3 (3*dist(c1,c3)=30 > 20), though c2 stays
	// pruned (3*dist(c1,c2)=3 <= 11).
	if len(result) != 2 || result[0].IndexPointer != c1 || result[1].IndexPointer != c3 {
		t.Fatalf("RobustPrune(alpha=3.0) = %+v, want [c1 c3]", result)
	}
}

func TestRobustPruneExcludesPItselfFromCandidates(t *testing.T) {
	mgr := openTestManager(t)
	meta, err := metapage.Create(mgr, vamana.DefaultOptions(1))
	if err != nil {
		t.Fatalf("metapage.Create failed: %v", err)
	}
	st, err := storage.NewPlainStorage(mgr, 1, vamana.L2, 8)
	if err != nil {
		t.Fatalf("NewPlainStorage failed: %v", err)
	}

	p, _ := st.CreateNode(mgr, vamana.Vector{0}, vamana.HeapPointer{BlockNumber: 1}, meta)
	c1, _ := st.CreateNode(mgr, vamana.Vector{5}, vamana.HeapPointer{BlockNumber: 2}, meta)

	candidates := []graph.SearchResult{
		{IndexPointer: p, Distance: 0},
		{IndexPointer: c1, Distance: 5},
	}
	result, err := graph.RobustPrune(mgr, st, meta, p, candidates, 1.2, 8)
	if err != nil {
		t.Fatalf("RobustPrune failed: %v", err)
	}
	for _, r := range result {
		if r.IndexPointer == p {
			t.Fatalf("RobustPrune must not select p as its own neighbor, got %+v", result)
		}
	}
}
