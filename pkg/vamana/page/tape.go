package page

import "github.com/pgvectorscale/tsv/pkg/vamana"

// Manager is the host-provided page substrate that Tape writes through.
// It is an external collaborator (spec.md §1): the relation/buffer manager
// itself is out of scope for this module, but the shape of the interface it
// must present is part of this design.
type Manager interface {
	// NewPage allocates a fresh page of the given type and returns its
	// block number plus the page to fill in.
	NewPage(t Type) (block uint32, p *Page, err error)
	// Modify returns an exclusively-latched page for writing.
	Modify(block uint32) (p *Page, err error)
	// Read returns a shared-latched page for reading.
	Read(block uint32) (p *Page, err error)
	// Commit releases a page acquired via Modify, persisting its contents.
	Commit(block uint32, p *Page) error
	// Release releases a page acquired via Read without persisting.
	Release(block uint32, p *Page)
}

// Tape is a single-threaded write cursor bound to a Manager and a page
// Type. Write appends bytes to the current page, allocating a new page of
// the same type when the current one runs out of room. Readers never block
// writers on other pages: a Tape only ever holds the one page it is
// actively appending to.
type Tape struct {
	mgr   Manager
	typ   Type
	block uint32
	page  *Page
}

// NewTape allocates the first page for a fresh tape of type t.
func NewTape(mgr Manager, t Type) (*Tape, error) {
	block, p, err := mgr.NewPage(t)
	if err != nil {
		return nil, err
	}
	return &Tape{mgr: mgr, typ: t, block: block, page: p}, nil
}

// ResumeTape reopens a tape at an existing last-written page, for hosts
// that persist the tape's frontier across index opens.
func ResumeTape(mgr Manager, t Type, block uint32) (*Tape, error) {
	p, err := mgr.Modify(block)
	if err != nil {
		return nil, err
	}
	if p.Type() != t {
		return nil, &vamana.Error{Kind: vamana.StorageError, Err: errPageTypeMismatch(t, p.Type())}
	}
	return &Tape{mgr: mgr, typ: t, block: block, page: p}, nil
}

// Write appends bytes, allocating a new page of the tape's type if the
// current page lacks space, and returns the stable IndexPointer of the
// written item.
func (t *Tape) Write(data []byte) (vamana.IndexPointer, error) {
	if !t.page.CanInsert(len(data)) {
		if err := t.mgr.Commit(t.block, t.page); err != nil {
			return vamana.IndexPointer{}, err
		}
		block, p, err := t.mgr.NewPage(t.typ)
		if err != nil {
			return vamana.IndexPointer{}, err
		}
		t.block, t.page = block, p
	}
	offset, ok := t.page.AddItem(data)
	if !ok {
		return vamana.IndexPointer{}, &vamana.Error{Kind: vamana.StorageError, Err: errItemTooLarge(len(data))}
	}
	return vamana.IndexPointer{BlockNumber: t.block, Offset: offset}, nil
}

// Block returns the block number of the page the tape is currently
// appending to, for a host to persist as the resume point for ResumeTape.
func (t *Tape) Block() uint32 { return t.block }

// Close flushes the tape's current page.
func (t *Tape) Close() error {
	return t.mgr.Commit(t.block, t.page)
}

// ReadItem fetches an item by IndexPointer through the manager, releasing
// the page's shared latch before returning.
func ReadItem(mgr Manager, ip vamana.IndexPointer, wantType Type) ([]byte, error) {
	p, err := mgr.Read(ip.BlockNumber)
	if err != nil {
		return nil, err
	}
	defer mgr.Release(ip.BlockNumber, p)
	if p.Type() != wantType {
		return nil, &vamana.Error{Kind: vamana.StorageError, Err: errPageTypeMismatch(wantType, p.Type())}
	}
	data, ok := p.GetItem(ip.Offset)
	if !ok {
		return nil, &vamana.Error{Kind: vamana.StorageError, Err: errShortRead(ip)}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// ModifyItem fetches a page exclusively, applies fn to the current bytes of
// the item at ip, writes the result back in place (same length only), and
// commits the page.
func ModifyItem(mgr Manager, ip vamana.IndexPointer, wantType Type, fn func(current []byte) []byte) error {
	p, err := mgr.Modify(ip.BlockNumber)
	if err != nil {
		return err
	}
	if p.Type() != wantType {
		return &vamana.Error{Kind: vamana.StorageError, Err: errPageTypeMismatch(wantType, p.Type())}
	}
	current, ok := p.GetItem(ip.Offset)
	if !ok {
		return &vamana.Error{Kind: vamana.StorageError, Err: errShortRead(ip)}
	}
	next := fn(current)
	if !p.SetItem(ip.Offset, next) {
		return &vamana.Error{Kind: vamana.Invariant, Err: errResizedItem(ip)}
	}
	return mgr.Commit(ip.BlockNumber, p)
}
