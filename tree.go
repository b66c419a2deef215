package bmff

// ImmutableBox is the tagged-union interface a box type implements to
// take part in a Boxes tree; Container is the only implementation in
// this package. It mirrors the box.go BoxType registry: a box reports
// its own type and encoded size, and knows how to marshal/unmarshal its
// body. The 8-byte size+type header is written by Boxes.Marshal, not by
// the box itself; Boxes has no Unmarshal counterpart.
type ImmutableBox interface {
	// Type returns the box's 4CC type.
	Type() BoxType
	// Size returns the encoded size of the box body only (excluding the
	// 8-byte size+type header and excluding any children).
	Size() int
	// Marshal appends the box body to buf at *pos, advancing *pos.
	Marshal(buf []byte, pos *int)
	// Unmarshal parses the box body (excluding the header) from data.
	Unmarshal(data []byte) error
}

// Boxes is an ordered composition-tree node: one box plus its owned
// children. Every child in the tree is owned by exactly the Boxes value
// it is nested under.
type Boxes struct {
	Box      ImmutableBox
	Children []Boxes
}

// Size returns the total encoded size of this box and all descendants
// (8-byte header + body + children).
func (b Boxes) Size() int {
	size := 8 + b.Box.Size()
	for _, c := range b.Children {
		size += c.Size()
	}
	return size
}

// Marshal appends the full encoded box (header, body, children) to buf
// at *pos.
func (b Boxes) Marshal(buf []byte, pos *int) {
	writeBoxHeader(buf, pos, b.Size(), b.Box.Type())
	b.Box.Marshal(buf, pos)
	for _, c := range b.Children {
		c.Marshal(buf, pos)
	}
}

// MarshalToBytes allocates a buffer sized by Size and marshals into it.
func (b Boxes) MarshalToBytes() []byte {
	buf := make([]byte, b.Size())
	pos := 0
	b.Marshal(buf, &pos)
	return buf
}

// Child returns the first direct child whose box type matches t, or the
// zero Boxes and false if none is found.
func (b Boxes) Child(t BoxType) (Boxes, bool) {
	for _, c := range b.Children {
		if c.Box.Type() == t {
			return c, true
		}
	}
	return Boxes{}, false
}

// ChildList returns every direct child whose box type matches t.
func (b Boxes) ChildList(t BoxType) []Boxes {
	var out []Boxes
	for _, c := range b.Children {
		if c.Box.Type() == t {
			out = append(out, c)
		}
	}
	return out
}

func writeBoxHeader(buf []byte, pos *int, size int, t BoxType) {
	be.PutUint32(buf[*pos:], uint32(size))
	*pos += 4
	copy(buf[*pos:], t[:])
	*pos += 4
}

// Container is a zero-body ImmutableBox for boxes that only group
// children (moov, trak, mdia, minf, dinf, stbl, udta, mvex, moof, traf,
// edts). Marshal/Unmarshal are no-ops; Size is always 0.
type Container struct {
	typ BoxType
}

// NewContainer returns a Container box of the given type.
func NewContainer(t BoxType) Container { return Container{typ: t} }

// Type implements ImmutableBox.
func (c Container) Type() BoxType { return c.typ }

// Size implements ImmutableBox.
func (c Container) Size() int { return 0 }

// Marshal implements ImmutableBox; containers have no body of their own.
func (c Container) Marshal([]byte, *int) {}

// Unmarshal implements ImmutableBox; containers have no body to parse.
func (c Container) Unmarshal([]byte) error { return nil }

// FullBox carries the version and flags shared by every "full box".
// Its Marshal/Unmarshal write and parse the 4-byte version+flags field
// that precedes a full box's own fields.
type FullBox struct {
	Version uint8
	Flags   [3]byte
}

// GetFlags packs the 24-bit flags field into a uint32.
func (f FullBox) GetFlags() uint32 {
	return uint32(f.Flags[0])<<16 | uint32(f.Flags[1])<<8 | uint32(f.Flags[2])
}

// CheckFlag reports whether every bit set in flag is also set in f.
func (f FullBox) CheckFlag(flag uint32) bool {
	return f.GetFlags()&flag == flag
}

// Size returns the 4-byte version+flags field width.
func (FullBox) Size() int { return 4 }

// Marshal writes the version+flags field.
func (f FullBox) Marshal(buf []byte, pos *int) {
	buf[*pos] = f.Version
	buf[*pos+1] = f.Flags[0]
	buf[*pos+2] = f.Flags[1]
	buf[*pos+3] = f.Flags[2]
	*pos += 4
}

// Unmarshal parses the version+flags field from the start of data and
// returns the remaining bytes.
func (f *FullBox) Unmarshal(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrTruncated
	}
	f.Version = data[0]
	f.Flags = [3]byte{data[1], data[2], data[3]}
	return data[4:], nil
}
