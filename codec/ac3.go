package codec

import (
	"bytes"
	"errors"

	"github.com/icza/bitio"
)

// ErrSyncFrameTooShort is returned when a codec sync frame is shorter
// than its fixed header.
var ErrSyncFrameTooShort = errors.New("codec: sync frame too short")

// ac3SampleRates mirrors the AC-3 fscod table (ATSC A/52 §5.4.1.3).
var ac3SampleRates = [4]int{48000, 44100, 32000, 0}

// Ac3SpecificBox is the AC3SpecificBox carried by the dac3 box nested
// under an ac-3 sample entry (ETSI TS 102 366 Annex F).
type Ac3SpecificBox struct {
	FscodSampleRate int
	Bsid            uint8 // 5 bits
	Bsmod           uint8 // 3 bits
	Acmod           uint8 // 3 bits
	LfeOn           bool
	BitRateCode     uint8 // 5 bits, "bit_rate_code" (maps to a table, stored verbatim)
}

// ParseAc3SyncFrame reads the fixed fields of an AC-3 sync frame header
// needed to build a dac3 record, using icza/bitio the way
// SentryShot-sentryshot's h264/aac parsers do for other bitstream
// formats (ATSC A/52 §5.4.1).
func ParseAc3SyncFrame(frame []byte) (Ac3SpecificBox, error) {
	var a Ac3SpecificBox
	if len(frame) < 7 {
		return a, ErrSyncFrameTooShort
	}
	// frame[0:2] is the 0x0B77 sync word.
	br := bitio.NewReader(bytes.NewReader(frame[2:]))
	if _, err := br.ReadBits(16); err != nil { // crc1
		return a, err
	}
	fscod, err := br.ReadBits(2)
	if err != nil {
		return a, err
	}
	a.FscodSampleRate = ac3SampleRates[fscod]
	frmsizecod, err := br.ReadBits(6)
	if err != nil {
		return a, err
	}
	bsid, err := br.ReadBits(5)
	if err != nil {
		return a, err
	}
	a.Bsid = uint8(bsid)
	bsmod, err := br.ReadBits(3)
	if err != nil {
		return a, err
	}
	a.Bsmod = uint8(bsmod)
	acmod, err := br.ReadBits(3)
	if err != nil {
		return a, err
	}
	a.Acmod = uint8(acmod)
	// Skip the channel-configuration bits that depend on acmod, except
	// lfeon which always follows them.
	skipBits := acmodSkipBits(a.Acmod)
	if skipBits > 0 {
		if _, err := br.ReadBits(uint8(skipBits)); err != nil {
			return a, err
		}
	}
	lfeon, err := br.ReadBits(1)
	if err != nil {
		return a, err
	}
	a.LfeOn = lfeon == 1
	a.BitRateCode = uint8(frmsizecod >> 1)
	return a, nil
}

// acmodSkipBits returns the number of bits occupied by the
// acmod-dependent channel fields (cmixlev, surmixlev, dsurmod) that sit
// between acmod and lfeon in the AC-3 BSI (ATSC A/52 Table 5.3).
func acmodSkipBits(acmod uint8) int {
	if acmod == 1 {
		return 0
	}
	if acmod == 2 {
		return 2 // dsurmod
	}
	n := 0
	if acmod&0x01 != 0 {
		n += 2 // cmixlev
	}
	if acmod&0x04 != 0 {
		n += 2 // surmixlev
	}
	return n
}

// Size returns the encoded byte length of the dac3 body (3 bytes).
func (a Ac3SpecificBox) Size() int { return 3 }

// Marshal appends the dac3 body to buf at *pos. Layout (24 bits total):
// fscod(2) bsid(5) bsmod(3) acmod(3) lfeon(1) bit_rate_code(5) reserved(5).
func (a Ac3SpecificBox) Marshal(buf []byte, pos *int) {
	fscod := reverseLookup(ac3SampleRates[:], a.FscodSampleRate)
	bits := uint32(fscod&0x03)<<22 | uint32(a.Bsid&0x1F)<<17 |
		uint32(a.Bsmod&0x07)<<14 | uint32(a.Acmod&0x07)<<11 |
		uint32(boolBit(a.LfeOn)&0x01)<<10 | uint32(a.BitRateCode&0x1F)<<5
	p := *pos
	buf[p] = byte(bits >> 16)
	buf[p+1] = byte(bits >> 8)
	buf[p+2] = byte(bits)
	*pos = p + 3
}

func reverseLookup(table []int, v int) byte {
	for i, t := range table {
		if t == v {
			return byte(i)
		}
	}
	return 0
}
