package graph_test

import (
	"testing"

	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/graph"
	"github.com/pgvectorscale/tsv/pkg/vamana/metapage"
	"github.com/pgvectorscale/tsv/pkg/vamana/storage"
)

func TestInsertFirstNodeBecomesEntryPointWithNoNeighbors(t *testing.T) {
	mgr := openTestManager(t)
	opts := vamana.DefaultOptions(2)
	meta, err := metapage.Create(mgr, opts)
	if err != nil {
		t.Fatalf("metapage.Create failed: %v", err)
	}
	st, err := storage.NewPlainStorage(mgr, 2, vamana.L2, opts.MaxNeighborsDuringBuild())
	if err != nil {
		t.Fatalf("NewPlainStorage failed: %v", err)
	}
	builder := graph.NewBuilderStore(opts.MaxNeighborsDuringBuild())

	if meta.HasInitID() {
		t.Fatal("a fresh MetaPage should have no init ID")
	}
	ip, err := graph.Insert(mgr, st, meta, builder, opts, vamana.Vector{1, 1}, vamana.HeapPointer{BlockNumber: 1}, nil)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if !meta.HasInitID() || meta.InitID() != ip {
		t.Fatalf("first Insert should set meta's init ID to the new node, got InitID=%+v want %+v", meta.InitID(), ip)
	}
	neighbors, err := builder.GetNeighbors(mgr, ip)
	if err != nil || len(neighbors) != 0 {
		t.Fatalf("first node's neighbors = %+v, %v, want empty", neighbors, err)
	}
}

func TestInsertLinksSubsequentNodesViaGreedySearch(t *testing.T) {
	mgr := openTestManager(t)
	opts := vamana.DefaultOptions(1)
	opts.NumNeighbors = 2
	opts.SearchListSize = 10
	meta, err := metapage.Create(mgr, opts)
	if err != nil {
		t.Fatalf("metapage.Create failed: %v", err)
	}
	st, err := storage.NewPlainStorage(mgr, 1, vamana.L2, opts.MaxNeighborsDuringBuild())
	if err != nil {
		t.Fatalf("NewPlainStorage failed: %v", err)
	}
	builder := graph.NewBuilderStore(opts.MaxNeighborsDuringBuild())

	var ips []vamana.IndexPointer
	for i, c := range []float32{0, 10, 20, 30} {
		ip, err := graph.Insert(mgr, st, meta, builder, opts, vamana.Vector{c}, vamana.HeapPointer{BlockNumber: uint32(i + 1)}, nil)
		if err != nil {
			t.Fatalf("Insert(%v) failed: %v", c, err)
		}
		ips = append(ips, ip)
	}

	// Every non-first node must end up with at least one neighbor: the
	// greedy search from the (sole, by construction) entry point always
	// finds a non-empty candidate pool once more than one node exists.
	for i, ip := range ips[1:] {
		neighbors, err := builder.GetNeighbors(mgr, ip)
		if err != nil {
			t.Fatalf("GetNeighbors(%d) failed: %v", i+1, err)
		}
		if len(neighbors) == 0 {
			t.Fatalf("node %d (inserted after the first) has no neighbors", i+1)
		}
	}

	// The closest pair (20 and 30) should have linked each other as a back
	// edge: inserting 30 must have found 20 as a near candidate.
	last := ips[len(ips)-1]
	neighbors, err := builder.GetNeighbors(mgr, last)
	if err != nil {
		t.Fatalf("GetNeighbors(last) failed: %v", err)
	}
	foundNear := false
	for _, n := range neighbors {
		if n.IndexPointer == ips[2] {
			foundNear = true
		}
	}
	if !foundNear {
		t.Fatalf("node at 30's neighbors = %+v, expected to include the node at 20", neighbors)
	}
}
