// Package graph implements the Vamana algorithm proper: greedy beam search,
// robust-prune, and the incremental insert/build loops that drive them,
// grounded on other_examples' VamanaEngine (findMedoid / buildPass /
// greedySearch / robustPrune) and on
// original_source/timescale_vector/src/access_method/disk_index_graph.rs's
// thin dispatcher, which is why NeighborStore below stays a one-line
// pass-through rather than growing its own caching logic.
package graph

import (
	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/metapage"
	"github.com/pgvectorscale/tsv/pkg/vamana/page"
	"github.com/pgvectorscale/tsv/pkg/vamana/storage"
)

// NeighborStore abstracts where a node's adjacency list currently lives.
// During the first build pass, a freshly-linked node's neighbors churn too
// often to pay page I/O for each robust-prune; BuilderStore keeps them in
// memory. Once a node is finalized, DiskStore is the only store that
// matters, since everything after build talks to the page substrate.
type NeighborStore interface {
	GetNeighbors(mgr page.Manager, ip vamana.IndexPointer) ([]storage.NeighborWithDistance, error)
	SetNeighbors(mgr page.Manager, ip vamana.IndexPointer, neighbors []storage.NeighborWithDistance) error
	MaxNeighbors() int
}

// BuilderStore holds the whole graph's adjacency lists in memory, used
// during a build's two passes before any node is finalized to disk.
type BuilderStore struct {
	maxNeighbors int
	edges        map[vamana.IndexPointer][]storage.NeighborWithDistance
}

// NewBuilderStore creates an empty in-memory adjacency map sized to the
// slack-expanded neighbor cap (spec.md §4.1: nodes may temporarily exceed
// their final degree mid-build, pruned back down at finalize).
func NewBuilderStore(maxNeighbors int) *BuilderStore {
	return &BuilderStore{maxNeighbors: maxNeighbors, edges: make(map[vamana.IndexPointer][]storage.NeighborWithDistance)}
}

func (b *BuilderStore) GetNeighbors(mgr page.Manager, ip vamana.IndexPointer) ([]storage.NeighborWithDistance, error) {
	return append([]storage.NeighborWithDistance(nil), b.edges[ip]...), nil
}

func (b *BuilderStore) SetNeighbors(mgr page.Manager, ip vamana.IndexPointer, neighbors []storage.NeighborWithDistance) error {
	b.edges[ip] = append([]storage.NeighborWithDistance(nil), neighbors...)
	return nil
}

func (b *BuilderStore) MaxNeighbors() int { return b.maxNeighbors }

// Edges exposes the accumulated adjacency map for the build pipeline's
// finalize step, which flushes every node's pruned list to disk via
// Storage.FinalizeNode.
func (b *BuilderStore) Edges() map[vamana.IndexPointer][]storage.NeighborWithDistance { return b.edges }

// DiskStore dispatches directly to a Storage variant's own GetNeighbors/
// SetNeighbors, used once an index is built and for incremental inserts
// against an already-finalized graph.
type DiskStore struct {
	storage storage.Storage
	meta    *metapage.MetaPage
}

func NewDiskStore(s storage.Storage, meta *metapage.MetaPage) *DiskStore {
	return &DiskStore{storage: s, meta: meta}
}

func (d *DiskStore) GetNeighbors(mgr page.Manager, ip vamana.IndexPointer) ([]storage.NeighborWithDistance, error) {
	return d.storage.GetNeighbors(mgr, d.meta, ip)
}

func (d *DiskStore) SetNeighbors(mgr page.Manager, ip vamana.IndexPointer, neighbors []storage.NeighborWithDistance) error {
	return d.storage.SetNeighbors(mgr, d.meta, ip, neighbors)
}

func (d *DiskStore) MaxNeighbors() int { return d.meta.NumNeighbors }
