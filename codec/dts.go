package codec

// DTSSpecificBox is the DTSSpecificBox carried by ddts, nested under a
// dtsc/dtsh/dtsl/dtse sample entry (ETSI TS 102 114). There is no DTS
// precedent anywhere in the retrieval pack; this follows the same
// "sample rate + bitrate + frame-duration-code + stream-construction
// flags" shape every other sync-frame descriptor in this package uses.
type DTSSpecificBox struct {
	DTSSamplingFrequency   uint32
	MaxBitrate             uint32
	AvgBitrate             uint32
	PcmSampleDepth         uint8 // 8 bits
	FrameDuration          uint8 // 2 bits: 512/1024/2048/4096 samples
	StreamConstruction     uint8 // 5 bits
	CoreLFEPresent         bool
	CoreLayout             uint8 // 6 bits
	CoreSize               uint16 // 14 bits
	StereoDownmix          bool
	RepresentationType     uint8 // 3 bits
}

// Size returns the encoded byte length of the ddts body.
func (d DTSSpecificBox) Size() int { return 20 }

// Marshal appends the ddts body to buf at *pos.
func (d DTSSpecificBox) Marshal(buf []byte, pos *int) {
	p := *pos
	be32(buf, p, d.DTSSamplingFrequency)
	be32(buf, p+4, d.MaxBitrate)
	be32(buf, p+8, d.AvgBitrate)
	buf[p+12] = d.PcmSampleDepth
	buf[p+13] = d.FrameDuration<<6 | d.StreamConstruction<<1 | boolBit(d.CoreLFEPresent)
	be16(buf, p+14, uint16(d.CoreLayout)<<10|d.CoreSize)
	buf[p+16] = boolBit(d.StereoDownmix)<<7 | d.RepresentationType<<4
	buf[p+17], buf[p+18], buf[p+19] = 0, 0, 0 // reserved
	*pos = p + 20
}
