package codec

// AlacSpecificBox is the ALACSpecificConfig "magic cookie" carried by
// the alac box nested under an alac sample entry (Apple's ALAC
// specification). Like VC1Config, ALAC's configuration is conventionally
// treated as an opaque blob by muxers that don't themselves encode ALAC
// (neither pack repo touches ALAC), so this stores the 24-byte fixed
// record field-by-field for callers that build one from scratch, while
// still accepting raw bytes from an importer via Unmarshal.
type AlacSpecificBox struct {
	FrameLength       uint32
	CompatibleVersion uint8
	BitDepth          uint8
	Pb                uint8
	Mb                uint8
	Kb                uint8
	NumChannels       uint8
	MaxRun            uint16
	MaxFrameBytes     uint32
	AvgBitrate        uint32
	SampleRate        uint32
}

// Size returns the encoded byte length (24 bytes).
func (a AlacSpecificBox) Size() int { return 24 }

// Marshal appends the alac body to buf at *pos.
func (a AlacSpecificBox) Marshal(buf []byte, pos *int) {
	p := *pos
	be32(buf, p, a.FrameLength)
	buf[p+4] = a.CompatibleVersion
	buf[p+5] = a.BitDepth
	buf[p+6] = a.Pb
	buf[p+7] = a.Mb
	buf[p+8] = a.Kb
	buf[p+9] = a.NumChannels
	be16(buf, p+10, a.MaxRun)
	be32(buf, p+12, a.MaxFrameBytes)
	be32(buf, p+16, a.AvgBitrate)
	be32(buf, p+20, a.SampleRate)
	*pos = p + 24
}

// Unmarshal parses a 24-byte alac body.
func (a *AlacSpecificBox) Unmarshal(data []byte) error {
	if len(data) < 24 {
		return ErrSyncFrameTooShort
	}
	a.FrameLength = be32r(data, 0)
	a.CompatibleVersion = data[4]
	a.BitDepth = data[5]
	a.Pb = data[6]
	a.Mb = data[7]
	a.Kb = data[8]
	a.NumChannels = data[9]
	a.MaxRun = be16r(data, 10)
	a.MaxFrameBytes = be32r(data, 12)
	a.AvgBitrate = be32r(data, 16)
	a.SampleRate = be32r(data, 20)
	return nil
}

func be32r(data []byte, pos int) uint32 {
	return uint32(data[pos])<<24 | uint32(data[pos+1])<<16 | uint32(data[pos+2])<<8 | uint32(data[pos+3])
}

func be16r(data []byte, pos int) uint16 {
	return uint16(data[pos])<<8 | uint16(data[pos+1])
}
