// Package host names the external collaborators this module consumes but
// never implements: the host's relation/buffer manager and row source.
// spec.md §1 scopes these out as "external collaborators"; this package is
// only the shape that a concrete host (e.g. a Postgres access method, or
// the in-process harness cmd/vamanactl uses) must present.
package host

import (
	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/page"
)

// RelationManager describes the on-disk relation backing an index: how
// many blocks it currently spans, and how to release it when a build or
// scan finishes.
type RelationManager interface {
	BlockCount() (uint32, error)
	Close() error
}

// BufferManager is the same page I/O substrate page.Manager already
// specifies, re-exported under host vocabulary so am.go's callback surface
// can name its dependency without every caller importing page directly.
type BufferManager = page.Manager

// TableSlot is one fetched heap row: its identifying pointer and its
// indexed column's vector value. Vector is nil when the column is SQL
// NULL, which build and insert both skip silently (spec.md §4.5 edge
// case).
type TableSlot struct {
	HeapPointer vamana.HeapPointer
	Vector      vamana.Vector
}

// HeapFetcher iterates the rows a build pass or insert scan must visit.
// Next returns ok=false once exhausted. Rewind restarts iteration from the
// beginning, used between a build's training pass and its insert pass.
type HeapFetcher interface {
	Next() (TableSlot, bool, error)
	Rewind() error
}

// CancelSignal lets a long-running build or scan observe host-side
// cancellation (a cancelled query, a terminated backend). The build passes
// check it once per row.
type CancelSignal interface {
	Cancelled() bool
}
