package codec

// EAC3SpecificBox is the EC3SpecificBox carried by the dec3 box nested
// under an ec-3 sample entry (ETSI TS 102 366 Annex F), generalizing
// Ac3SpecificBox to E-AC-3's multiple independent/dependent substreams.
type EAC3SpecificBox struct {
	Substreams []EAC3Substream
}

// EAC3Substream describes one independent substream and its dependent
// substreams, mirroring the per-substream loop in the dec3 box.
type EAC3Substream struct {
	FscodSampleRate int
	Bsid            uint8 // 5 bits
	Bsmod           uint8 // 5 bits
	Acmod           uint8 // 3 bits
	LfeOn           bool
	NumDepSub       uint8 // 4 bits
	ChanLoc         uint16 // 9 bits, present only if NumDepSub > 0
}

// Size returns the encoded byte length of the dec3 body.
func (e EAC3SpecificBox) Size() int {
	return 2 + 3*len(e.Substreams)
}

// Marshal appends the dec3 body to buf at *pos.
func (e EAC3SpecificBox) Marshal(buf []byte, pos *int) {
	p := *pos
	dataRate := uint16(0) // unknown/VBR; left 0 per spec's "0 = unknown" convention
	be16(buf, p, dataRate<<3|uint16(len(e.Substreams))&0x07)
	p += 2
	for _, s := range e.Substreams {
		fscod := reverseLookup(ac3SampleRates[:], s.FscodSampleRate)
		bits := uint32(fscod&0x03)<<30 | uint32(s.Bsid&0x1F)<<25 |
			uint32(s.Bsmod&0x1F)<<20 | uint32(s.Acmod&0x07)<<17 |
			uint32(boolBit(s.LfeOn)&0x01)<<16 | uint32(s.NumDepSub&0x0F)<<12 |
			uint32(s.ChanLoc&0x1FF)<<3
		buf[p] = byte(bits >> 24)
		buf[p+1] = byte(bits >> 16)
		buf[p+2] = byte(bits >> 8)
		p += 3
	}
	*pos = p
}
