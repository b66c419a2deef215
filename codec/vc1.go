package codec

// VC1Config is the dvc1/DecoderSpecificInfo record carried by a VC-1
// sample entry, storing the raw sequence-header EBDU (Elementary
// Bitstream Data Unit) verbatim. Unlike H.264/HEVC, ISO/IEC 14496-15's
// VC-1 binding (Annex J) stores the sequence/entry-point headers
// opaquely rather than field-by-field, so this type is a thin wrapper
// rather than a bit-field parser, matching the "opaque box body when no
// parser is registered" fallback box.go's registry falls back to.
type VC1Config struct {
	// SequenceHeader is the raw VC-1 sequence-header EBDU, starting
	// with its 0x0000010F start code.
	SequenceHeader []byte
}

// Size returns the encoded byte length.
func (c VC1Config) Size() int { return len(c.SequenceHeader) }

// Marshal appends the raw sequence header to buf at *pos.
func (c VC1Config) Marshal(buf []byte, pos *int) {
	copy(buf[*pos:], c.SequenceHeader)
	*pos += len(c.SequenceHeader)
}

// Unmarshal stores data as the sequence header verbatim.
func (c *VC1Config) Unmarshal(data []byte) error {
	c.SequenceHeader = append([]byte(nil), data...)
	return nil
}
