package build_test

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/pgvectorscale/tsv/internal/pagefile"
	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/build"
	"github.com/pgvectorscale/tsv/pkg/vamana/host"
)

// fakeFetcher replays a fixed slice of rows, Rewind-able so a PQ/BQ build's
// training and insert passes can both walk it, mirroring the in-memory test
// fixture shape the host package's doc comment calls out for cmd/vamanactl.
type fakeFetcher struct {
	rows []host.TableSlot
	pos  int
}

func (f *fakeFetcher) Next() (host.TableSlot, bool, error) {
	if f.pos >= len(f.rows) {
		return host.TableSlot{}, false, nil
	}
	slot := f.rows[f.pos]
	f.pos++
	return slot, true, nil
}

func (f *fakeFetcher) Rewind() error {
	f.pos = 0
	return nil
}

func randomRows(n, dims int) []host.TableSlot {
	r := rand.New(rand.NewSource(1))
	rows := make([]host.TableSlot, n)
	for i := range rows {
		v := make(vamana.Vector, dims)
		for j := range v {
			v[j] = r.Float32()
		}
		rows[i] = host.TableSlot{HeapPointer: vamana.HeapPointer{BlockNumber: uint32(i + 1)}, Vector: v}
	}
	return rows
}

func openTestManager(t *testing.T) *pagefile.Manager {
	t.Helper()
	mgr, err := pagefile.Open(filepath.Join(t.TempDir(), "build.idx"))
	if err != nil {
		t.Fatalf("pagefile.Open failed: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestBuildPlainIndexesAllRows(t *testing.T) {
	mgr := openTestManager(t)
	opts := vamana.DefaultOptions(4)
	opts.NumNeighbors = 4
	opts.SearchListSize = 8
	rows := &fakeFetcher{rows: randomRows(20, 4)}

	result, err := build.Build(context.Background(), mgr, opts, rows, nil, nil, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if result.RowsIndexed != 20 {
		t.Fatalf("RowsIndexed = %d, want 20", result.RowsIndexed)
	}
	if result.RowsSkippedNull != 0 {
		t.Fatalf("RowsSkippedNull = %d, want 0", result.RowsSkippedNull)
	}
	if !result.Meta.HasInitID() {
		t.Fatal("a built index must have an init ID")
	}
}

func TestBuildSkipsNullVectorRows(t *testing.T) {
	mgr := openTestManager(t)
	opts := vamana.DefaultOptions(3)
	opts.NumNeighbors = 4
	opts.SearchListSize = 8
	rows := randomRows(5, 3)
	rows[2].Vector = nil
	fetcher := &fakeFetcher{rows: rows}

	result, err := build.Build(context.Background(), mgr, opts, fetcher, nil, nil, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if result.RowsIndexed != 4 {
		t.Fatalf("RowsIndexed = %d, want 4", result.RowsIndexed)
	}
	if result.RowsSkippedNull != 1 {
		t.Fatalf("RowsSkippedNull = %d, want 1", result.RowsSkippedNull)
	}
}

func TestBuildPQVariantTrainsThenIndexes(t *testing.T) {
	mgr := openTestManager(t)
	opts := vamana.DefaultOptions(8)
	opts.NumNeighbors = 4
	opts.SearchListSize = 8
	opts.UsePQ = true
	opts.PQVecLen = 2
	rows := &fakeFetcher{rows: randomRows(300, 8)}

	result, err := build.Build(context.Background(), mgr, opts, rows, nil, nil, nil)
	if err != nil {
		t.Fatalf("Build (PQ) failed: %v", err)
	}
	if result.RowsIndexed != 300 {
		t.Fatalf("RowsIndexed = %d, want 300", result.RowsIndexed)
	}
	if result.Meta.StorageDiscriminant != vamana.PqCompression {
		t.Fatalf("StorageDiscriminant = %v, want PqCompression", result.Meta.StorageDiscriminant)
	}
}

func TestBuildBQVariantTrainsThenIndexes(t *testing.T) {
	mgr := openTestManager(t)
	opts := vamana.DefaultOptions(8)
	opts.NumNeighbors = 4
	opts.SearchListSize = 8
	opts.UseBQ = true
	rows := &fakeFetcher{rows: randomRows(50, 8)}

	result, err := build.Build(context.Background(), mgr, opts, rows, nil, nil, nil)
	if err != nil {
		t.Fatalf("Build (BQ) failed: %v", err)
	}
	if result.RowsIndexed != 50 {
		t.Fatalf("RowsIndexed = %d, want 50", result.RowsIndexed)
	}
	if result.Meta.StorageDiscriminant != vamana.BqSpeedup {
		t.Fatalf("StorageDiscriminant = %v, want BqSpeedup", result.Meta.StorageDiscriminant)
	}
}

func TestBuildFlushesNodeTapeBlock(t *testing.T) {
	mgr := openTestManager(t)
	opts := vamana.DefaultOptions(4)
	opts.NumNeighbors = 4
	opts.SearchListSize = 8
	rows := &fakeFetcher{rows: randomRows(10, 4)}

	// Build's final Flush+UpdateNodeTapeBlock call (wired so the storage
	// variant's last in-progress page is durable, not just cached in
	// memory) must leave Meta.NodeTapeBlock pointing at a real block.
	result, err := build.Build(context.Background(), mgr, opts, rows, nil, nil, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if result.Meta.NodeTapeBlock == 0 {
		t.Fatal("NodeTapeBlock was never updated by Build")
	}
}

func TestBuildLowNumNeighborsStillSucceeds(t *testing.T) {
	mgr := openTestManager(t)
	opts := vamana.DefaultOptions(4)
	opts.NumNeighbors = 4
	opts.SearchListSize = 8
	rows := &fakeFetcher{rows: randomRows(5, 4)}

	// NumNeighbors below the recommended floor (38) only warns, per
	// SPEC_FULL.md's decision not to silently raise it; Build must still
	// succeed.
	result, err := build.Build(context.Background(), mgr, opts, rows, nil, nil, nil)
	if err != nil {
		t.Fatalf("Build with low num_neighbors failed: %v", err)
	}
	if result.RowsIndexed != 5 {
		t.Fatalf("RowsIndexed = %d, want 5", result.RowsIndexed)
	}
}

func TestBuildRejectsInvalidOptions(t *testing.T) {
	mgr := openTestManager(t)
	opts := vamana.DefaultOptions(4)
	opts.NumNeighbors = 0
	rows := &fakeFetcher{rows: randomRows(1, 4)}

	if _, err := build.Build(context.Background(), mgr, opts, rows, nil, nil, nil); err == nil {
		t.Fatal("Build with num_neighbors=0 should fail validation")
	}
}
