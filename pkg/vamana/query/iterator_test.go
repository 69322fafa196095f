package query_test

import (
	"path/filepath"
	"testing"

	"github.com/pgvectorscale/tsv/internal/pagefile"
	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/graph"
	"github.com/pgvectorscale/tsv/pkg/vamana/metapage"
	"github.com/pgvectorscale/tsv/pkg/vamana/query"
	"github.com/pgvectorscale/tsv/pkg/vamana/storage"
)

func openTestManager(t *testing.T) *pagefile.Manager {
	t.Helper()
	mgr, err := pagefile.Open(filepath.Join(t.TempDir(), "query.idx"))
	if err != nil {
		t.Fatalf("pagefile.Open failed: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

// buildChain indexes four 1-dimensional points through graph.Insert (the
// same incremental path am.Insert drives), so the iterator is exercised
// against a realistically-linked graph rather than a hand-wired one.
func buildChain(t *testing.T, opts *vamana.IndexOptions) (mgr *pagefile.Manager, st storage.Storage, meta *metapage.MetaPage, ips []vamana.IndexPointer) {
	t.Helper()
	mgr = openTestManager(t)
	meta, err := metapage.Create(mgr, opts)
	if err != nil {
		t.Fatalf("metapage.Create failed: %v", err)
	}
	st, err = storage.NewPlainStorage(mgr, opts.Dims, opts.Metric, opts.MaxNeighborsDuringBuild())
	if err != nil {
		t.Fatalf("NewPlainStorage failed: %v", err)
	}
	neighbors := graph.NewDiskStore(st, meta)
	for i, c := range []float32{0, 10, 20, 30} {
		ip, err := graph.Insert(mgr, st, meta, neighbors, opts, vamana.Vector{c}, vamana.HeapPointer{BlockNumber: uint32(i + 1)}, nil)
		if err != nil {
			t.Fatalf("Insert(%v) failed: %v", c, err)
		}
		ips = append(ips, ip)
	}
	return mgr, st, meta, ips
}

func TestIteratorReturnsNearestFirst(t *testing.T) {
	opts := vamana.DefaultOptions(1)
	opts.NumNeighbors = 3
	opts.SearchListSize = 10
	mgr, st, meta, _ := buildChain(t, opts)

	it, err := query.New(mgr, st, meta, vamana.Vector{22}, 0, nil, nil)
	if err != nil {
		t.Fatalf("query.New failed: %v", err)
	}
	hp, dist, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("Next() = %+v, %v, %v, %v", hp, dist, ok, err)
	}
	// The point at 20 (heap pointer block 3) is closest to the query at 22.
	if hp.BlockNumber != 3 {
		t.Fatalf("first result's heap pointer = %+v, want BlockNumber 3", hp)
	}
	it.End()
}

func TestIteratorSkipsTombstonedRows(t *testing.T) {
	mgr := openTestManager(t)
	opts := vamana.DefaultOptions(1)
	opts.NumNeighbors = 3
	opts.SearchListSize = 10
	meta, err := metapage.Create(mgr, opts)
	if err != nil {
		t.Fatalf("metapage.Create failed: %v", err)
	}
	st, err := storage.NewPlainStorage(mgr, 1, vamana.L2, opts.MaxNeighborsDuringBuild())
	if err != nil {
		t.Fatalf("NewPlainStorage failed: %v", err)
	}
	neighbors := graph.NewDiskStore(st, meta)

	// The node closest to the query (at 20) is created already tombstoned,
	// as if the host had deleted its row between indexing and this scan.
	coords := []float32{0, 10, 20, 30}
	tombstoned := []bool{false, false, true, false}
	for i, c := range coords {
		hp := vamana.HeapPointer{BlockNumber: uint32(i + 1)}
		if tombstoned[i] {
			hp.Offset = vamana.InvalidOffset
		}
		if _, err := graph.Insert(mgr, st, meta, neighbors, opts, vamana.Vector{c}, hp, nil); err != nil {
			t.Fatalf("Insert(%v) failed: %v", c, err)
		}
	}

	it, err := query.New(mgr, st, meta, vamana.Vector{22}, 0, nil, nil)
	if err != nil {
		t.Fatalf("query.New failed: %v", err)
	}
	hp, _, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("Next() after tombstoning the closest node = %+v, %v, %v", hp, ok, err)
	}
	if hp.BlockNumber == 3 {
		t.Fatal("Next() returned a tombstoned row instead of skipping it")
	}
}

func TestIteratorOnEmptyIndexReturnsNoResults(t *testing.T) {
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
	if meta.HasInitID() {
		t.Fatal("a fresh MetaPage should have no init ID")
	}

	it, err := query.New(mgr, st, meta, vamana.Vector{1, 1}, 0, nil, nil)
	if err != nil {
		t.Fatalf("query.New on an empty index failed: %v", err)
	}
	_, _, ok, err := it.Next()
	if err != nil || ok {
		t.Fatalf("Next() on an empty index = ok=%v, err=%v, want ok=false, err=nil", ok, err)
	}
}

func TestIteratorRuntimeListSizeOverridesBuildTimeDefault(t *testing.T) {
	opts := vamana.DefaultOptions(1)
	opts.NumNeighbors = 3
	opts.SearchListSize = 100
	mgr, st, meta, _ := buildChain(t, opts)

	it, err := query.New(mgr, st, meta, vamana.Vector{22}, 1, nil, nil)
	if err != nil {
		t.Fatalf("query.New failed: %v", err)
	}
	count := 0
	for {
		_, _, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next() failed: %v", err)
		}
		if !ok {
			break
		}
		count++
	}
	if count == 0 {
		t.Fatal("Next() with a runtime list size of 1 returned no results")
	}
}
