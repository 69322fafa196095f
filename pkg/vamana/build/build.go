// Package build implements the two-pass Vamana construction pipeline:
// a training pass that feeds the configured quantizer (skipped entirely
// for Plain storage, which needs no training), then an insert pass that
// walks the rows again and links each one in via graph.Insert, and a
// finalize pass that prunes every node's build-time slack-expanded
// neighbor list down to its final degree before flushing to disk.
// Grounded on the teacher's pkg/diskann/build.go phase-orchestration shape
// and original_source/.../build.rs's per-1000-row progress logging.
package build

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/graph"
	"github.com/pgvectorscale/tsv/pkg/vamana/host"
	"github.com/pgvectorscale/tsv/pkg/vamana/metapage"
	"github.com/pgvectorscale/tsv/pkg/vamana/observability"
	"github.com/pgvectorscale/tsv/pkg/vamana/page"
	"github.com/pgvectorscale/tsv/pkg/vamana/storage"
)

// Result summarizes a completed build.
type Result struct {
	Meta            *metapage.MetaPage
	RowsIndexed     int
	RowsSkippedNull int
}

// Build runs a full index construction against rows, writing pages through
// mgr. cancel, logger, and metrics may all be nil.
func Build(ctx context.Context, mgr page.Manager, opts *vamana.IndexOptions, rows host.HeapFetcher, cancel host.CancelSignal, logger *observability.Logger, metrics *observability.Metrics) (*Result, error) {
	if logger == nil {
		logger = observability.NewDefaultLogger()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	meta, err := metapage.Create(mgr, opts)
	if err != nil {
		return nil, err
	}

	// On-page frames reserve NumNeighbors slots, the same count storage.Open
	// uses on reopen; the slack-expanded lists live only in builderStore
	// until finalize prunes them back down.
	maxNeighbors := opts.MaxNeighborsDuringBuild()
	st, err := newStorage(mgr, opts, opts.NumNeighbors)
	if err != nil {
		return nil, err
	}

	if opts.UsePQ || opts.UseBQ {
		logger.Info("build: training pass starting")
		samples, err := trainingPass(st, meta, rows, cancel)
		if err != nil {
			return nil, err
		}
		if metrics != nil {
			metrics.RecordQuantizerSamples(samples)
		}
		if err := st.FinishTraining(mgr, meta); err != nil {
			return nil, err
		}
		if err := rows.Rewind(); err != nil {
			return nil, err
		}
		logger.Info("build: training pass completed", map[string]interface{}{"samples": samples})
	}

	builderStore := graph.NewBuilderStore(maxNeighbors)
	result := &Result{Meta: meta}

	logger.Info("build: insert pass starting")
	for {
		if cancel != nil && cancel.Cancelled() {
			return nil, &vamana.Error{Kind: vamana.Interrupted, Err: fmt.Errorf("build: cancelled during insert pass")}
		}
		slot, ok, err := rows.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if slot.Vector == nil {
			result.RowsSkippedNull++
			continue
		}
		if opts.BuildIOLimiter != nil {
			if err := opts.BuildIOLimiter.Wait(ctx); err != nil {
				return nil, &vamana.Error{Kind: vamana.Interrupted, Err: err}
			}
		}

		if _, err := graph.Insert(mgr, st, meta, builderStore, opts, slot.Vector, slot.HeapPointer, metrics); err != nil {
			return nil, err
		}
		result.RowsIndexed++
		if result.RowsIndexed%1000 == 0 {
			logger.Debug("build: insert pass progress", map[string]interface{}{"rows_indexed": result.RowsIndexed})
		}
	}

	if err := finalize(mgr, st, meta, builderStore, opts); err != nil {
		return nil, err
	}
	if err := st.Flush(mgr); err != nil {
		return nil, err
	}
	if err := metapage.UpdateNodeTapeBlock(mgr, st.LastBlock()); err != nil {
		return nil, err
	}
	meta.NodeTapeBlock = st.LastBlock()

	if metrics != nil {
		metrics.RecordBuild(time.Since(start), result.RowsIndexed)
	}
	logger.Info("build: completed", map[string]interface{}{
		"rows_indexed": result.RowsIndexed, "rows_skipped_null": result.RowsSkippedNull, "duration": time.Since(start),
	})

	// Low num_neighbors can fail full-reachability (spec.md's P7); this is
	// not silently corrected, only surfaced, per SPEC_FULL.md's Open
	// Question 4 decision.
	if opts.NumNeighbors < 38 {
		logger.Warn("build: num_neighbors below the recommended floor may leave the graph disconnected", map[string]interface{}{"num_neighbors": opts.NumNeighbors})
	}

	return result, nil
}

func trainingPass(st storage.Storage, meta *metapage.MetaPage, rows host.HeapFetcher, cancel host.CancelSignal) (int, error) {
	st.StartTraining(meta)
	count := 0
	for {
		if cancel != nil && cancel.Cancelled() {
			return count, &vamana.Error{Kind: vamana.Interrupted, Err: fmt.Errorf("build: cancelled during training pass")}
		}
		slot, ok, err := rows.Next()
		if err != nil {
			return count, err
		}
		if !ok {
			break
		}
		if slot.Vector == nil {
			continue
		}
		st.AddSample(slot.Vector)
		count++
	}
	return count, nil
}

// finalize re-prunes every node's build-time (slack-expanded) neighbor
// list down to its final degree and flushes the result through the
// storage variant's FinalizeNode.
func finalize(mgr page.Manager, st storage.Storage, meta *metapage.MetaPage, builder *graph.BuilderStore, opts *vamana.IndexOptions) error {
	for ip, neighbors := range builder.Edges() {
		if len(neighbors) > opts.NumNeighbors {
			pool := make([]graph.SearchResult, len(neighbors))
			for i, n := range neighbors {
				pool[i] = graph.SearchResult{IndexPointer: n.IndexPointer, Distance: n.Distance}
			}
			pruned, err := graph.RobustPrune(mgr, st, meta, ip, pool, opts.MaxAlpha, opts.NumNeighbors)
			if err != nil {
				return err
			}
			neighbors = pruned
		}
		if err := st.FinalizeNode(mgr, meta, ip, neighbors); err != nil {
			return err
		}
	}
	return nil
}

func newStorage(mgr page.Manager, opts *vamana.IndexOptions, maxNeighbors int) (storage.Storage, error) {
	switch opts.StorageDiscriminant() {
	case vamana.PqCompression:
		return storage.NewPqStorage(mgr, opts.Dims, opts.PQVecLen, opts.Metric, maxNeighbors)
	case vamana.BqSpeedup:
		return storage.NewBqStorage(mgr, opts.Dims, opts.Metric, maxNeighbors)
	default:
		return storage.NewPlainStorage(mgr, opts.Dims, opts.Metric, maxNeighbors)
	}
}
