// Package metapage implements the index's page-0 anchor: a versioned
// header item plus a body item carrying build parameters, the init-ids
// pointer, and the quantizer blob pointer. Grounded on
// original_source/timescale_vector/src/access_method/meta_page.rs, which
// is the authoritative source for the exact magic number, version, and
// migrate-in-place semantics that spec.md §3/§4.2 describe only in prose.
package metapage

import (
	"encoding/binary"

	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/page"
)

// Magic identifies a valid MetaPage header. Value carried over from the
// original implementation so on-disk layout decisions stay traceable to a
// real source.
const Magic uint32 = 768756476

// CurrentVersion is the only version this package writes. VersionV1 is
// read-and-migrated on sight.
const (
	VersionV1 uint32 = 1
	CurrentVersion uint32 = 2
)

const (
	headerBlock  uint32 = 0
	headerOffset uint16 = 1
	bodyOffset   uint16 = 2
)

// MetaPage is the anchor page (block 0) of an index.
type MetaPage struct {
	Dims                int
	NumNeighbors        int
	SearchListSize      int
	MaxAlpha            float32
	InitIDBlock         uint32
	InitIDOffset        uint16
	StorageDiscriminant vamana.StorageType
	QuantizerVecLen     int
	QuantizerBlobBlock  uint32
	QuantizerBlobOffset uint16
	Metric              vamana.Metric
	NodeTapeBlock       uint32
}

type header struct {
	Magic   uint32
	Version uint32
}

const headerSize = 8

func encodeHeader(h header) []byte {
	b := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(b[0:], h.Magic)
	binary.LittleEndian.PutUint32(b[4:], h.Version)
	return b
}

func decodeHeader(b []byte) header {
	return header{
		Magic:   binary.LittleEndian.Uint32(b[0:]),
		Version: binary.LittleEndian.Uint32(b[4:]),
	}
}

const bodySize = 4*8 + 4 + 2 + 2 + 4 + 4

func encodeBody(m *MetaPage) []byte {
	b := make([]byte, bodySize)
	i := 0
	putU32 := func(v uint32) { binary.LittleEndian.PutUint32(b[i:], v); i += 4 }
	putU32(uint32(m.Dims))
	putU32(uint32(m.NumNeighbors))
	putU32(uint32(m.SearchListSize))
	binary.LittleEndian.PutUint32(b[i:], float32bits(m.MaxAlpha))
	i += 4
	putU32(m.InitIDBlock)
	binary.LittleEndian.PutUint16(b[i:], m.InitIDOffset)
	i += 2
	putU32(uint32(m.StorageDiscriminant))
	putU32(uint32(m.QuantizerVecLen))
	putU32(m.QuantizerBlobBlock)
	binary.LittleEndian.PutUint16(b[i:], m.QuantizerBlobOffset)
	i += 2
	putU32(uint32(m.Metric))
	putU32(m.NodeTapeBlock)
	return b
}

func decodeBody(b []byte) *MetaPage {
	i := 0
	getU32 := func() uint32 { v := binary.LittleEndian.Uint32(b[i:]); i += 4; return v }
	m := &MetaPage{}
	m.Dims = int(getU32())
	m.NumNeighbors = int(getU32())
	m.SearchListSize = int(getU32())
	m.MaxAlpha = float32frombits(getU32())
	m.InitIDBlock = getU32()
	m.InitIDOffset = binary.LittleEndian.Uint16(b[i:])
	i += 2
	m.StorageDiscriminant = vamana.StorageType(getU32())
	m.QuantizerVecLen = int(getU32())
	m.QuantizerBlobBlock = getU32()
	m.QuantizerBlobOffset = binary.LittleEndian.Uint16(b[i:])
	i += 2
	m.Metric = vamana.Metric(getU32())
	m.NodeTapeBlock = getU32()
	return m
}

// Create writes page 0 with a fresh header and body: zero init-ids, zero
// quantizer pointer.
func Create(mgr page.Manager, opts *vamana.IndexOptions) (*MetaPage, error) {
	m := &MetaPage{
		Dims:                opts.Dims,
		NumNeighbors:        opts.NumNeighbors,
		SearchListSize:      opts.SearchListSize,
		MaxAlpha:            opts.MaxAlpha,
		StorageDiscriminant: opts.StorageDiscriminant(),
		QuantizerVecLen:     opts.PQVecLen,
		Metric:              opts.Metric,
	}

	block, p, err := mgr.NewPage(page.TypeMeta)
	if err != nil {
		return nil, err
	}
	if block != headerBlock {
		return nil, &vamana.Error{Kind: vamana.Invariant, Err: errNotFirstPage(block)}
	}
	if _, ok := p.AddItem(encodeHeader(header{Magic: Magic, Version: CurrentVersion})); !ok {
		return nil, &vamana.Error{Kind: vamana.StorageError, Err: errWriteHeader()}
	}
	if _, ok := p.AddItem(encodeBody(m)); !ok {
		return nil, &vamana.Error{Kind: vamana.StorageError, Err: errWriteBody()}
	}
	if err := mgr.Commit(block, p); err != nil {
		return nil, err
	}
	return m, nil
}

// Fetch reads page 0. If it is tagged MetaV1, it is migrated in place:
// page 0 is rewritten with the current layout, preserving the fields the
// old layout carried, and only the first Fetch after a version bump pays
// the migration cost — subsequent Fetch calls see CurrentVersion directly.
func Fetch(mgr page.Manager) (*MetaPage, error) {
	p, err := mgr.Read(headerBlock)
	if err != nil {
		return nil, err
	}
	headerBytes, ok := p.GetItem(headerOffset)
	if !ok {
		mgr.Release(headerBlock, p)
		return nil, &vamana.Error{Kind: vamana.StorageError, Err: errMissingHeader()}
	}
	h := decodeHeader(headerBytes)
	if h.Magic != Magic {
		mgr.Release(headerBlock, p)
		return nil, &vamana.Error{Kind: vamana.StorageError, Err: errBadMagic(h.Magic)}
	}

	switch h.Version {
	case CurrentVersion:
		bodyBytes, ok := p.GetItem(bodyOffset)
		mgr.Release(headerBlock, p)
		if !ok {
			return nil, &vamana.Error{Kind: vamana.StorageError, Err: errMissingBody()}
		}
		return decodeBody(bodyBytes), nil
	case VersionV1:
		mgr.Release(headerBlock, p)
		return migrateV1(mgr)
	default:
		mgr.Release(headerBlock, p)
		return nil, &vamana.Error{Kind: vamana.StorageError, Err: errUnknownVersion(h.Version)}
	}
}

// migrateV1 rewrites page 0 from the V1 layout (body carried only dims and
// num_neighbors; no quantizer pointer existed yet) to CurrentVersion.
func migrateV1(mgr page.Manager) (*MetaPage, error) {
	p, err := mgr.Modify(headerBlock)
	if err != nil {
		return nil, err
	}
	defer mgr.Commit(headerBlock, p)

	v1Body, ok := p.GetItem(bodyOffset)
	if !ok {
		return nil, &vamana.Error{Kind: vamana.StorageError, Err: errMissingBody()}
	}
	m := decodeV1Body(v1Body)

	if !p.ReplaceItem(headerOffset, encodeHeader(header{Magic: Magic, Version: CurrentVersion})) {
		return nil, &vamana.Error{Kind: vamana.StorageError, Err: errWriteHeader()}
	}
	if !p.ReplaceItem(bodyOffset, encodeBody(m)) {
		return nil, &vamana.Error{Kind: vamana.StorageError, Err: errWriteBody()}
	}
	return m, nil
}

const v1BodySize = 8

func decodeV1Body(b []byte) *MetaPage {
	return &MetaPage{
		Dims:           int(binary.LittleEndian.Uint32(b[0:])),
		NumNeighbors:   int(binary.LittleEndian.Uint32(b[4:])),
		SearchListSize: 100,
		MaxAlpha:       1.2,
	}
}

// UpdateInitIDs overwrites the body's init-id block/offset. The design
// tracks a single init-id in practice (see SPEC_FULL.md Open Question 3)
// though a multi-seed caller could extend this to a list without changing
// the on-disk body shape beyond adding a count field.
func UpdateInitIDs(mgr page.Manager, ip vamana.IndexPointer) error {
	return update(mgr, func(m *MetaPage) {
		m.InitIDBlock = ip.BlockNumber
		m.InitIDOffset = ip.Offset
	})
}

// UpdateQuantizerPointer overwrites the body's quantizer blob pointer.
func UpdateQuantizerPointer(mgr page.Manager, ip vamana.IndexPointer) error {
	return update(mgr, func(m *MetaPage) {
		m.QuantizerBlobBlock = ip.BlockNumber
		m.QuantizerBlobOffset = ip.Offset
	})
}

// UpdateNodeTapeBlock overwrites the body's node-tape resume block, called
// after a build's finalize pass and after every incremental insert so a
// later reopen's storage.Open call resumes the tape at the right page.
func UpdateNodeTapeBlock(mgr page.Manager, block uint32) error {
	return update(mgr, func(m *MetaPage) {
		m.NodeTapeBlock = block
	})
}

func update(mgr page.Manager, mutate func(*MetaPage)) error {
	p, err := mgr.Modify(headerBlock)
	if err != nil {
		return err
	}
	defer mgr.Commit(headerBlock, p)

	bodyBytes, ok := p.GetItem(bodyOffset)
	if !ok {
		return &vamana.Error{Kind: vamana.StorageError, Err: errMissingBody()}
	}
	m := decodeBody(bodyBytes)
	mutate(m)
	if !p.ReplaceItem(bodyOffset, encodeBody(m)) {
		return &vamana.Error{Kind: vamana.Invariant, Err: errResizedBody()}
	}
	return nil
}

// HasInitID reports whether the index has at least one node to search from.
func (m *MetaPage) HasInitID() bool {
	return m.InitIDBlock != 0 || m.InitIDOffset != 0
}

// InitID returns the current single init-id as an IndexPointer.
func (m *MetaPage) InitID() vamana.IndexPointer {
	return vamana.IndexPointer{BlockNumber: m.InitIDBlock, Offset: m.InitIDOffset}
}
