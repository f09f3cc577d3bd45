package cache

import (
	"fmt"

	"github.com/tidwall/btree"
)

// Reference-table flag bits, per spec.md §3.
const (
	FlagIdentifiers byte = 0x01
	FlagWhirlpool   byte = 0x02
	FlagSizes       byte = 0x04
	FlagHash        byte = 0x08
)

// ChildEntry is a member descriptor nested under a reference-table Entry.
type ChildEntry struct {
	ID         int
	SlotIndex  int
	Identifier int32 // -1 if absent
}

// Entry describes one archive within an index's reference table.
type Entry struct {
	ID           int
	SlotIndex    int
	Identifier   int32 // -1 if absent
	CRC          int32
	Compressed   int32
	Uncompressed int32
	Hash         int32
	Version      int32
	Whirlpool    [64]byte

	children           *btree.BTree // keyed by ChildEntry.ID
	childIdentifiers   *IdentifierTable
}

func childLess(a, b interface{}) bool {
	return a.(*ChildEntry).ID < b.(*ChildEntry).ID
}

func entryLess(a, b interface{}) bool {
	return a.(*Entry).ID < b.(*Entry).ID
}

// ChildCount reports the child capacity of this entry: the highest child
// id plus one, or 0 when it has no children. This is the container member
// count used by CacheStore.ReadMember.
func (e *Entry) ChildCount() int {
	if e.children == nil {
		return 0
	}
	max := -1
	e.children.Ascend(nil, func(v interface{}) bool {
		if id := v.(*ChildEntry).ID; id > max {
			max = id
		}
		return true
	})
	return max + 1
}

// Child looks up the child entry with the given id, or (nil, false).
func (e *Entry) Child(id int) (*ChildEntry, bool) {
	if e.children == nil {
		return nil, false
	}
	v := e.children.Get(&ChildEntry{ID: id})
	if v == nil {
		return nil, false
	}
	return v.(*ChildEntry), true
}

// ReferenceTable is the decoded per-index metadata described in
// spec.md §3/§4.4.
type ReferenceTable struct {
	Format  byte
	Version int32
	Flags   byte

	entries     *btree.BTree // keyed by Entry.ID
	identifiers *IdentifierTable
	entryIDs    []int32 // slot index -> archive id, parallels identifiers' stored slot values
}

func newReferenceTable() *ReferenceTable {
	return &ReferenceTable{entries: btree.New(entryLess)}
}

// Entry looks up the entry for archive id, or (nil, false).
func (rt *ReferenceTable) Entry(id int) (*Entry, bool) {
	if rt.entries == nil {
		return nil, false
	}
	v := rt.entries.Get(&Entry{ID: id})
	if v == nil {
		return nil, false
	}
	return v.(*Entry), true
}

// Capacity is maxKey+1 across all entries, or 0 if the table is empty.
func (rt *ReferenceTable) Capacity() int {
	max := -1
	rt.Each(func(e *Entry) bool {
		if e.ID > max {
			max = e.ID
		}
		return true
	})
	return max + 1
}

// Each iterates entries in ascending id order.
func (rt *ReferenceTable) Each(fn func(e *Entry) bool) {
	if rt.entries == nil {
		return
	}
	rt.entries.Ascend(nil, func(v interface{}) bool {
		return fn(v.(*Entry))
	})
}

// Len reports the number of entries.
func (rt *ReferenceTable) Len() int {
	if rt.entries == nil {
		return 0
	}
	return rt.entries.Len()
}

// TotalArchivesSize sums every entry's Uncompressed size as 64-bit, then
// narrows to a wrapping 32-bit result, matching spec.md §4.4.
func (rt *ReferenceTable) TotalArchivesSize() int32 {
	var total int64
	rt.Each(func(e *Entry) bool {
		total += int64(e.Uncompressed)
		return true
	})
	return int32(total)
}

// FindByIdentifier resolves a name hash to an archive id via the
// top-level identifier table, or -1 if not found / not built. The table
// stores a slot index (its position in ascending-id order), which is
// translated back to the real archive id via entryIDs.
func (rt *ReferenceTable) FindByIdentifier(identifier int32) int32 {
	slot := rt.identifiers.Lookup(identifier)
	if slot < 0 || int(slot) >= len(rt.entryIDs) {
		return -1
	}
	return rt.entryIDs[slot]
}

type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) u8() (byte, error) {
	if c.pos+1 > len(c.buf) {
		return 0, fmt.Errorf("%w: EOF reading u8", ErrMalformed)
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) i8() (int8, error) {
	v, err := c.u8()
	return int8(v), err
}

func (c *cursor) u16() (uint16, error) {
	if c.pos+2 > len(c.buf) {
		return 0, fmt.Errorf("%w: EOF reading u16", ErrMalformed)
	}
	v := be16(c.buf[c.pos : c.pos+2])
	c.pos += 2
	return v, nil
}

func (c *cursor) i32() (int32, error) {
	if c.pos+4 > len(c.buf) {
		return 0, fmt.Errorf("%w: EOF reading i32", ErrMalformed)
	}
	v := int32(be32(c.buf[c.pos : c.pos+4]))
	c.pos += 4
	return v, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if c.pos+n > len(c.buf) {
		return nil, fmt.Errorf("%w: EOF reading %d bytes", ErrMalformed, n)
	}
	v := c.buf[c.pos : c.pos+n]
	c.pos += n
	return v, nil
}

// smartInt reads a smart-int per spec.md §4.4/GLOSSARY: 2 bytes when the
// next byte's top bit is clear, 4 bytes (top bit masked off) otherwise.
func (c *cursor) smartInt() (int32, error) {
	if c.pos >= len(c.buf) {
		return 0, fmt.Errorf("%w: EOF reading smart-int", ErrMalformed)
	}
	if c.buf[c.pos]&0x80 != 0 {
		v, err := c.i32()
		if err != nil {
			return 0, err
		}
		return v & 0x7FFFFFFF, nil
	}
	v, err := c.u16()
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// DecodeReferenceTable decodes the bytes of a (decompressed) reference
// table archive, per spec.md §4.4.
func DecodeReferenceTable(data []byte) (*ReferenceTable, error) {
	c := &cursor{buf: data}

	formatByte, err := c.u8()
	if err != nil {
		return nil, err
	}
	format := formatByte
	if format < 5 || format > 7 {
		return nil, fmt.Errorf("%w: unsupported reference table format %d", ErrMalformed, format)
	}

	var version int32
	if format >= 6 {
		version, err = c.i32()
		if err != nil {
			return nil, err
		}
	}

	flags, err := c.u8()
	if err != nil {
		return nil, err
	}

	rt := newReferenceTable()
	rt.Format = format
	rt.Version = version
	rt.Flags = flags

	var entryCount int32
	if format == 7 {
		entryCount, err = c.smartInt()
	} else {
		var v uint16
		v, err = c.u16()
		entryCount = int32(v)
	}
	if err != nil {
		return nil, err
	}

	ids := make([]int32, entryCount)
	entries := make([]*Entry, entryCount)
	id := int32(0)
	for i := int32(0); i < entryCount; i++ {
		var delta int32
		if format == 7 {
			delta, err = c.smartInt()
		} else {
			var v uint16
			v, err = c.u16()
			delta = int32(v)
		}
		if err != nil {
			return nil, err
		}
		id += delta
		ids[i] = id

		e := &Entry{ID: int(id), SlotIndex: int(i), Identifier: -1}
		entries[i] = e
		rt.entries.Set(e)
	}
	rt.entryIDs = ids

	hasIdentifiers := flags&FlagIdentifiers != 0
	hasHash := flags&FlagHash != 0
	hasWhirlpool := flags&FlagWhirlpool != 0
	hasSizes := flags&FlagSizes != 0

	if hasIdentifiers {
		for _, e := range entries {
			v, err := c.i32()
			if err != nil {
				return nil, err
			}
			e.Identifier = v
		}
		rt.identifiers = BuildIdentifierTable(identifiersOf(entries))
	}

	for _, e := range entries {
		v, err := c.i32()
		if err != nil {
			return nil, err
		}
		e.CRC = v
	}

	if hasHash {
		for _, e := range entries {
			v, err := c.i32()
			if err != nil {
				return nil, err
			}
			e.Hash = v
		}
	}

	if hasWhirlpool {
		for _, e := range entries {
			b, err := c.bytes(64)
			if err != nil {
				return nil, err
			}
			copy(e.Whirlpool[:], b)
		}
	}

	if hasSizes {
		for _, e := range entries {
			comp, err := c.i32()
			if err != nil {
				return nil, err
			}
			uncomp, err := c.i32()
			if err != nil {
				return nil, err
			}
			e.Compressed = comp
			e.Uncompressed = uncomp
		}
	}

	for _, e := range entries {
		v, err := c.i32()
		if err != nil {
			return nil, err
		}
		e.Version = v
	}

	// Child entries.
	childCounts := make([]int32, entryCount)
	for i, e := range entries {
		var n int32
		if format >= 7 {
			n, err = c.smartInt()
		} else {
			var v uint16
			v, err = c.u16()
			n = int32(v)
		}
		if err != nil {
			return nil, err
		}
		childCounts[i] = n
		e.children = btree.New(childLess)
	}

	childLists := make([][]*ChildEntry, entryCount)
	for i, e := range entries {
		n := childCounts[i]
		childID := int32(0)
		list := make([]*ChildEntry, n)
		for j := int32(0); j < n; j++ {
			var delta int32
			if format >= 7 {
				delta, err = c.smartInt()
			} else {
				var v uint16
				v, err = c.u16()
				delta = int32(v)
			}
			if err != nil {
				return nil, err
			}
			childID += delta
			ce := &ChildEntry{ID: int(childID), SlotIndex: int(j), Identifier: -1}
			list[j] = ce
			e.children.Set(ce)
		}
		childLists[i] = list
	}

	if hasIdentifiers {
		for i, e := range entries {
			list := childLists[i]
			for _, ce := range list {
				v, err := c.i32()
				if err != nil {
					return nil, err
				}
				ce.Identifier = v
			}
			e.childIdentifiers = BuildIdentifierTable(childIdentifiersOf(list))
		}
	}

	return rt, nil
}

func identifiersOf(entries []*Entry) []int32 {
	out := make([]int32, len(entries))
	for i, e := range entries {
		out[i] = e.Identifier
	}
	return out
}

func childIdentifiersOf(list []*ChildEntry) []int32 {
	out := make([]int32, len(list))
	for i, ce := range list {
		out[i] = ce.Identifier
	}
	return out
}

// EncodeReferenceTable is the mirror of DecodeReferenceTable. It is a
// first-class operation (not just test scaffolding, per SPEC_FULL.md) so
// that cache-rebuilding tools can regenerate index-255 archives.
func EncodeReferenceTable(rt *ReferenceTable) ([]byte, error) {
	var buf []byte
	putU8 := func(v byte) { buf = append(buf, v) }
	putU16 := func(v uint16) { buf = append(buf, byte(v>>8), byte(v)) }
	putI32 := func(v int32) {
		buf = append(buf, byte(uint32(v)>>24), byte(uint32(v)>>16), byte(uint32(v)>>8), byte(v))
	}
	putSmartInt := func(v int32) {
		if v < 0 || v > 0x7FFF {
			putI32(int32(uint32(v) | 0x80000000))
		} else {
			putU16(uint16(v))
		}
	}
	putVarint := func(v int32) {
		if rt.Format == 7 {
			putSmartInt(v)
		} else {
			putU16(uint16(v))
		}
	}

	putU8(rt.Format)
	if rt.Format >= 6 {
		putI32(rt.Version)
	}
	putU8(rt.Flags)

	var entries []*Entry
	rt.Each(func(e *Entry) bool {
		entries = append(entries, e)
		return true
	})

	if rt.Format == 7 {
		putSmartInt(int32(len(entries)))
	} else {
		putU16(uint16(len(entries)))
	}

	prev := int32(0)
	for _, e := range entries {
		delta := int32(e.ID) - prev
		prev = int32(e.ID)
		putVarint(delta)
	}

	hasIdentifiers := rt.Flags&FlagIdentifiers != 0
	hasHash := rt.Flags&FlagHash != 0
	hasWhirlpool := rt.Flags&FlagWhirlpool != 0
	hasSizes := rt.Flags&FlagSizes != 0

	if hasIdentifiers {
		for _, e := range entries {
			putI32(e.Identifier)
		}
	}
	for _, e := range entries {
		putI32(e.CRC)
	}
	if hasHash {
		for _, e := range entries {
			putI32(e.Hash)
		}
	}
	if hasWhirlpool {
		for _, e := range entries {
			buf = append(buf, e.Whirlpool[:]...)
		}
	}
	if hasSizes {
		for _, e := range entries {
			putI32(e.Compressed)
			putI32(e.Uncompressed)
		}
	}
	for _, e := range entries {
		putI32(e.Version)
	}

	childLists := make([][]*ChildEntry, len(entries))
	for i, e := range entries {
		var list []*ChildEntry
		if e.children != nil {
			e.children.Ascend(nil, func(v interface{}) bool {
				list = append(list, v.(*ChildEntry))
				return true
			})
		}
		childLists[i] = list

		if rt.Format >= 7 {
			putSmartInt(int32(len(list)))
		} else {
			putU16(uint16(len(list)))
		}
	}

	for _, list := range childLists {
		prevChild := int32(0)
		for _, ce := range list {
			delta := int32(ce.ID) - prevChild
			prevChild = int32(ce.ID)
			if rt.Format >= 7 {
				putSmartInt(delta)
			} else {
				putU16(uint16(delta))
			}
		}
	}

	if hasIdentifiers {
		for _, list := range childLists {
			for _, ce := range list {
				putI32(ce.Identifier)
			}
		}
	}

	return buf, nil
}
