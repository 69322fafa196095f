package storage

import (
	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/metapage"
	"github.com/pgvectorscale/tsv/pkg/vamana/page"
)

// Open reopens whichever Storage variant meta.StorageDiscriminant names,
// resuming the node tape at meta.NodeTapeBlock. maxNeighbors should be the
// same final degree the index was built with (meta.NumNeighbors), since
// incremental insert and scan both operate against an already-finalized
// graph rather than the slack-expanded build-time cap.
func Open(mgr page.Manager, meta *metapage.MetaPage, maxNeighbors int) (Storage, error) {
	switch meta.StorageDiscriminant {
	case vamana.PqCompression:
		return OpenPqStorage(mgr, meta, maxNeighbors, meta.NodeTapeBlock)
	case vamana.BqSpeedup:
		return OpenBqStorage(mgr, meta, maxNeighbors, meta.NodeTapeBlock)
	default:
		return ResumePlainStorage(mgr, meta.Dims, meta.Metric, maxNeighbors, meta.NodeTapeBlock)
	}
}
