// Package page implements the fixed-size slotted-page layout used by the
// index's on-disk pages, and a Tape write cursor over a host-provided
// page manager. Grounded on the slotted-page idiom of a generic SQL
// pager (item array + item-pointer array + free-space hole + page-type
// discriminator + capacity check before insert), adapted from a key/value
// B-tree layout to a pure append-only one.
package page

import "encoding/binary"

// Size is the fixed page size. 8 KiB matches a typical host database block.
const Size = 8192

const (
	headerTypeOffset  = 0
	headerCountOffset = 2
	headerLowerOffset = 4 // end of item-data region (grows up)
	headerUpperOffset = 6 // start of item-pointer array (grows down)
	headerSize        = 8

	itemPointerSize = 4 // offset:uint16 + length:uint16
)

// Type discriminates the purpose of a page's contents. Tape operations
// assert the page type matches the tape's declared type.
type Type uint16

const (
	TypeMeta Type = iota + 1
	TypeMetaV1
	TypeNode
	TypePqBlob
	TypeBqBlob
)

// Page is a fixed-size buffer with a header, an item-data region growing
// up from just after the header, and an item-pointer array growing down
// from the end of the page. The gap between them is free space.
type Page struct {
	buf []byte
}

// New formats a fresh, empty page of the given type.
func New(t Type) *Page {
	p := &Page{buf: make([]byte, Size)}
	p.SetType(t)
	binary.LittleEndian.PutUint16(p.buf[headerLowerOffset:], headerSize)
	binary.LittleEndian.PutUint16(p.buf[headerUpperOffset:], uint16(Size))
	return p
}

// Wrap adapts an existing in-memory buffer (e.g. one handed back by a
// host's buffer manager) as a Page without copying.
func Wrap(buf []byte) *Page {
	if len(buf) != Size {
		panic("vamana/page: buffer must be exactly Size bytes")
	}
	return &Page{buf: buf}
}

// Bytes returns the page's raw backing buffer, for handing back to a host
// buffer manager to persist.
func (p *Page) Bytes() []byte { return p.buf }

func (p *Page) Type() Type {
	return Type(binary.LittleEndian.Uint16(p.buf[headerTypeOffset:]))
}

func (p *Page) SetType(t Type) {
	binary.LittleEndian.PutUint16(p.buf[headerTypeOffset:], uint16(t))
}

func (p *Page) ItemCount() int {
	return int(binary.LittleEndian.Uint16(p.buf[headerCountOffset:]))
}

func (p *Page) lower() uint16 { return binary.LittleEndian.Uint16(p.buf[headerLowerOffset:]) }
func (p *Page) upper() uint16 { return binary.LittleEndian.Uint16(p.buf[headerUpperOffset:]) }

func (p *Page) setLower(v uint16) { binary.LittleEndian.PutUint16(p.buf[headerLowerOffset:], v) }
func (p *Page) setUpper(v uint16) { binary.LittleEndian.PutUint16(p.buf[headerUpperOffset:], v) }

// FreeSpace returns the number of bytes available for a new item,
// accounting for the item pointer its insertion would also consume.
func (p *Page) FreeSpace() int {
	return int(p.upper()) - int(p.lower()) - itemPointerSize
}

// CanInsert reports whether an item of the given length fits.
func (p *Page) CanInsert(length int) bool {
	return length >= 0 && p.FreeSpace() >= length
}

// AddItem appends data to the item-data region and allocates a new item
// pointer for it, returning the item's 1-based offset within the page (the
// second component of an IndexPointer). Returns false if there isn't room;
// callers must allocate a new page and retry there.
func (p *Page) AddItem(data []byte) (offset uint16, ok bool) {
	if !p.CanInsert(len(data)) {
		return 0, false
	}
	lower := p.lower()
	upper := p.upper()

	copy(p.buf[lower:int(lower)+len(data)], data)
	newUpper := upper - itemPointerSize
	binary.LittleEndian.PutUint16(p.buf[newUpper:], lower)
	binary.LittleEndian.PutUint16(p.buf[newUpper+2:], uint16(len(data)))

	p.setLower(lower + uint16(len(data)))
	p.setUpper(newUpper)

	count := p.ItemCount()
	binary.LittleEndian.PutUint16(p.buf[headerCountOffset:], uint16(count+1))
	return uint16(count + 1), true
}

// GetItem returns the bytes stored at the given 1-based item offset, or
// (nil, false) if the offset is out of range.
func (p *Page) GetItem(offset uint16) ([]byte, bool) {
	count := p.ItemCount()
	if offset == 0 || int(offset) > count {
		return nil, false
	}
	ptrOff := uint16(Size) - uint16(offset)*itemPointerSize
	itemOffset := binary.LittleEndian.Uint16(p.buf[ptrOff:])
	itemLen := binary.LittleEndian.Uint16(p.buf[ptrOff+2:])
	return p.buf[itemOffset : itemOffset+itemLen], true
}

// SetItem overwrites an existing item's bytes in place. The new payload
// must be the same length as the original; this is used for the
// fixed-shape neighbor-slot array of a node, which never changes size
// after creation.
func (p *Page) SetItem(offset uint16, data []byte) bool {
	count := p.ItemCount()
	if offset == 0 || int(offset) > count {
		return false
	}
	ptrOff := uint16(Size) - uint16(offset)*itemPointerSize
	itemOffset := binary.LittleEndian.Uint16(p.buf[ptrOff:])
	itemLen := binary.LittleEndian.Uint16(p.buf[ptrOff+2:])
	if int(itemLen) != len(data) {
		return false
	}
	copy(p.buf[itemOffset:itemOffset+itemLen], data)
	return true
}

// ReplaceItem replaces the item at offset with data of any length,
// preserving offset's identity (and every other item's) by rebuilding the
// item-data region from scratch in slot order. This is how the MetaPage
// body item grows across a version migration without relocating the
// header item next to it. Grounded on the full-page rewrite pattern a
// slotted-page key/value store uses to keep variable-length entries
// compact (SetEntries rebuilds the whole page rather than leaving holes).
func (p *Page) ReplaceItem(offset uint16, data []byte) bool {
	count := p.ItemCount()
	if offset == 0 || int(offset) > count {
		return false
	}
	items := make([][]byte, count)
	for i := 1; i <= count; i++ {
		b, ok := p.GetItem(uint16(i))
		if !ok {
			return false
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		items[i-1] = cp
	}
	items[offset-1] = data

	total := headerSize
	for _, it := range items {
		total += len(it) + itemPointerSize
	}
	if total > Size {
		return false
	}

	t := p.Type()
	lower := uint16(headerSize)
	upper := uint16(Size)
	for i, it := range items {
		copy(p.buf[lower:int(lower)+len(it)], it)
		newUpper := upper - itemPointerSize
		binary.LittleEndian.PutUint16(p.buf[newUpper:], lower)
		binary.LittleEndian.PutUint16(p.buf[newUpper+2:], uint16(len(it)))
		lower += uint16(len(it))
		upper = newUpper
		_ = i
	}
	p.setLower(lower)
	p.setUpper(upper)
	p.SetType(t)
	binary.LittleEndian.PutUint16(p.buf[headerCountOffset:], uint16(count))
	return true
}
