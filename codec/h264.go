package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/icza/bitio"
)

// H.264 profile_idc values that carry chroma/bit-depth extension fields
// in the sequence parameter set (ISO/IEC 14496-10 §7.3.2.1.1).
const (
	AVCBaselineProfile  = 66
	AVCMainProfile      = 77
	AVCExtendedProfile  = 88
	AVCHighProfile      = 100
	AVCHigh10Profile    = 110
	AVCHigh422Profile   = 122
	AVCHigh444Profile   = 244
	AVCCAVLC444IntraProfile = 44
)

// Errors returned by SPS parsing.
var (
	ErrSPSTooShort  = errors.New("codec: h264 sps too short")
	ErrSPSNotAnSPS  = errors.New("codec: nal unit is not a sequence parameter set")
)

// SPS is the subset of an H.264 sequence parameter set needed to build
// an avcC record and recover the coded picture size.
type SPS struct {
	ProfileIDC           uint8
	ProfileCompatibility uint8
	LevelIDC             uint8
	ChromaFormatIDC      uint32 // only meaningful for the high-profile family
	BitDepthLumaMinus8   uint32
	BitDepthChromaMinus8 uint32
	SeparateColourPlane  bool

	picWidthInMbsMinus1  uint32
	picHeightInMapUnitsMinus1 uint32
	frameMbsOnlyFlag     bool
	cropLeft, cropRight  uint32
	cropTop, cropBottom  uint32
}

// hasChromaExtension reports whether ProfileIDC's family carries the
// chroma_format_idc/bit_depth extension fields (ISO/IEC 14496-10
// Table 7-1 footnote), matching the set of profiles
// SentryShot-sentryshot's AvcC.HighProfileFieldsEnabled gates on.
func hasChromaExtension(profileIDC uint8) bool {
	switch profileIDC {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		return true
	}
	return false
}

// ParseSPS decodes a sequence parameter set NAL unit (with the 1-byte
// NAL header still attached, emulation prevention bytes still present).
func ParseSPS(nal []byte) (SPS, error) {
	var s SPS
	nal = removeEmulationPrevention(nal)
	if len(nal) < 4 {
		return s, ErrSPSTooShort
	}
	if nal[0]&0x1F != 7 {
		return s, ErrSPSNotAnSPS
	}
	s.ProfileIDC = nal[1]
	s.ProfileCompatibility = nal[2]
	s.LevelIDC = nal[3]

	br := bitio.NewReader(bytes.NewReader(nal[4:]))
	if _, err := readUE(br); err != nil { // seq_parameter_set_id
		return s, err
	}

	if hasChromaExtension(s.ProfileIDC) {
		chroma, err := readUE(br)
		if err != nil {
			return s, err
		}
		s.ChromaFormatIDC = chroma
		if chroma == 3 {
			v, err := br.ReadBits(1)
			if err != nil {
				return s, err
			}
			s.SeparateColourPlane = v == 1
		}
		if s.BitDepthLumaMinus8, err = readUE(br); err != nil {
			return s, err
		}
		if s.BitDepthChromaMinus8, err = readUE(br); err != nil {
			return s, err
		}
		if _, err := br.ReadBits(1); err != nil { // qpprime_y_zero_transform_bypass_flag
			return s, err
		}
		seqScalingMatrixPresent, err := br.ReadBits(1)
		if err != nil {
			return s, err
		}
		if seqScalingMatrixPresent == 1 {
			if err := skipScalingMatrix(br, s.ChromaFormatIDC); err != nil {
				return s, err
			}
		}
	} else {
		s.ChromaFormatIDC = 1
	}

	if _, err := readUE(br); err != nil { // log2_max_frame_num_minus4
		return s, err
	}
	picOrderCntType, err := readUE(br)
	if err != nil {
		return s, err
	}
	switch picOrderCntType {
	case 0:
		if _, err := readUE(br); err != nil { // log2_max_pic_order_cnt_lsb_minus4
			return s, err
		}
	case 1:
		if _, err := br.ReadBits(1); err != nil { // delta_pic_order_always_zero_flag
			return s, err
		}
		if _, err := readSE(br); err != nil { // offset_for_non_ref_pic
			return s, err
		}
		if _, err := readSE(br); err != nil { // offset_for_top_to_bottom_field
			return s, err
		}
		n, err := readUE(br)
		if err != nil {
			return s, err
		}
		for i := uint32(0); i < n; i++ {
			if _, err := readSE(br); err != nil {
				return s, err
			}
		}
	}
	if _, err := readUE(br); err != nil { // max_num_ref_frames
		return s, err
	}
	if _, err := br.ReadBits(1); err != nil { // gaps_in_frame_num_value_allowed_flag
		return s, err
	}
	if s.picWidthInMbsMinus1, err = readUE(br); err != nil {
		return s, err
	}
	if s.picHeightInMapUnitsMinus1, err = readUE(br); err != nil {
		return s, err
	}
	frameMbsOnly, err := br.ReadBits(1)
	if err != nil {
		return s, err
	}
	s.frameMbsOnlyFlag = frameMbsOnly == 1
	if !s.frameMbsOnlyFlag {
		if _, err := br.ReadBits(1); err != nil { // mb_adaptive_frame_field_flag
			return s, err
		}
	}
	if _, err := br.ReadBits(1); err != nil { // direct_8x8_inference_flag
		return s, err
	}
	cropFlag, err := br.ReadBits(1)
	if err != nil {
		return s, err
	}
	if cropFlag == 1 {
		if s.cropLeft, err = readUE(br); err != nil {
			return s, err
		}
		if s.cropRight, err = readUE(br); err != nil {
			return s, err
		}
		if s.cropTop, err = readUE(br); err != nil {
			return s, err
		}
		if s.cropBottom, err = readUE(br); err != nil {
			return s, err
		}
	}
	// vui_parameters_present_flag and beyond are not needed for avcC
	// construction or picture size and are left unparsed.
	return s, nil
}

// Width returns the coded picture width in pixels.
func (s SPS) Width() int {
	w := int(s.picWidthInMbsMinus1+1) * 16
	return w - int(s.cropLeft+s.cropRight)*2
}

// Height returns the coded picture height in pixels.
func (s SPS) Height() int {
	mul := 2
	if s.frameMbsOnlyFlag {
		mul = 1
	}
	h := mul * int(s.picHeightInMapUnitsMinus1+1) * 16
	return h - int(s.cropTop+s.cropBottom)*2
}

// AVCParameterSet is one length-prefixed SPS or PPS NAL unit stored in
// an avcC record.
type AVCParameterSet struct {
	NALUnit []byte
}

// AvcC is the AVCDecoderConfigurationRecord carried by the avcC box
// nested under an avc1/avc3 sample entry (ISO/IEC 14496-15 §5.3.3.1).
type AvcC struct {
	ConfigurationVersion   uint8
	Profile                uint8
	ProfileCompatibility   uint8
	Level                  uint8
	LengthSizeMinusOne     uint8 // 0-3
	SequenceParameterSets  []AVCParameterSet
	PictureParameterSets   []AVCParameterSet

	// High-profile chroma/bit-depth extension; present only when Profile
	// is one of the profiles hasChromaExtension recognizes.
	ChromaFormat         uint8
	BitDepthLumaMinus8   uint8
	BitDepthChromaMinus8 uint8
}

// NewAvcC builds an AvcC record from a parsed SPS and the raw
// (emulation-prevention-included) SPS/PPS NAL units, matching
// SentryShot-sentryshot's mp4muxer.generateVideoStsd field mapping.
// Unlike SentryShot's AvcC.Marshal (which calls log.Fatal on an
// inconsistent profile/extension-field combination), inconsistency here
// is reported as an error so the caller's mux/remux call can fail
// cleanly instead of crashing the process.
func NewAvcC(sps SPS, spsNAL, ppsNAL []byte) (AvcC, error) {
	a := AvcC{
		ConfigurationVersion: 1,
		Profile:              sps.ProfileIDC,
		ProfileCompatibility: sps.ProfileCompatibility,
		Level:                sps.LevelIDC,
		LengthSizeMinusOne:   3,
		SequenceParameterSets: []AVCParameterSet{{NALUnit: spsNAL}},
		PictureParameterSets:  []AVCParameterSet{{NALUnit: ppsNAL}},
	}
	if hasChromaExtension(sps.ProfileIDC) {
		if sps.ChromaFormatIDC > 3 {
			return AvcC{}, fmt.Errorf("%w: chroma_format_idc %d out of range", ErrUnsupportedField, sps.ChromaFormatIDC)
		}
		a.ChromaFormat = uint8(sps.ChromaFormatIDC)
		a.BitDepthLumaMinus8 = uint8(sps.BitDepthLumaMinus8)
		a.BitDepthChromaMinus8 = uint8(sps.BitDepthChromaMinus8)
	}
	return a, nil
}

// ErrUnsupportedField is returned when a parsed field value is outside
// the range this implementation can encode.
var ErrUnsupportedField = errors.New("codec: field value out of supported range")

// Size returns the encoded byte length of the avcC body.
func (a AvcC) Size() int {
	n := 6
	for _, ps := range a.SequenceParameterSets {
		n += 2 + len(ps.NALUnit)
	}
	n++ // numOfPictureParameterSets
	for _, ps := range a.PictureParameterSets {
		n += 2 + len(ps.NALUnit)
	}
	if hasChromaExtension(a.Profile) {
		n += 4
	}
	return n
}

// Marshal appends the avcC body to buf at *pos.
func (a AvcC) Marshal(buf []byte, pos *int) {
	p := *pos
	buf[p] = a.ConfigurationVersion
	buf[p+1] = a.Profile
	buf[p+2] = a.ProfileCompatibility
	buf[p+3] = a.Level
	buf[p+4] = 0xFC | (a.LengthSizeMinusOne & 0x03)
	buf[p+5] = 0xE0 | uint8(len(a.SequenceParameterSets))&0x1F
	p += 6
	for _, ps := range a.SequenceParameterSets {
		be16(buf, p, uint16(len(ps.NALUnit)))
		p += 2
		copy(buf[p:], ps.NALUnit)
		p += len(ps.NALUnit)
	}
	buf[p] = uint8(len(a.PictureParameterSets))
	p++
	for _, ps := range a.PictureParameterSets {
		be16(buf, p, uint16(len(ps.NALUnit)))
		p += 2
		copy(buf[p:], ps.NALUnit)
		p += len(ps.NALUnit)
	}
	if hasChromaExtension(a.Profile) {
		buf[p] = 0xFC | (a.ChromaFormat & 0x03)
		buf[p+1] = 0xF8 | (a.BitDepthLumaMinus8 & 0x07)
		buf[p+2] = 0xF8 | (a.BitDepthChromaMinus8 & 0x07)
		buf[p+3] = 0 // numOfSequenceParameterSetExt
		p += 4
	}
	*pos = p
}

func be16(buf []byte, pos int, v uint16) {
	buf[pos] = byte(v >> 8)
	buf[pos+1] = byte(v)
}

// readUE reads an unsigned Exp-Golomb code.
func readUE(br *bitio.Reader) (uint32, error) {
	leadingZeros := 0
	for {
		b, err := br.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if b != 0 {
			break
		}
		leadingZeros++
	}
	code := uint32(0)
	for n := leadingZeros; n > 0; n-- {
		b, err := br.ReadBits(1)
		if err != nil {
			return 0, err
		}
		code |= uint32(b) << (n - 1)
	}
	return (1 << uint(leadingZeros)) - 1 + code, nil
}

// readSE reads a signed Exp-Golomb code.
func readSE(br *bitio.Reader) (int32, error) {
	v, err := readUE(br)
	if err != nil {
		return 0, err
	}
	vi := int32(v)
	if vi&1 != 0 {
		return (vi + 1) / 2, nil
	}
	return -vi / 2, nil
}

func skipScalingMatrix(br *bitio.Reader, chromaFormatIDC uint32) error {
	n := 8
	if chromaFormatIDC == 3 {
		n = 12
	}
	for i := 0; i < n; i++ {
		present, err := br.ReadBits(1)
		if err != nil {
			return err
		}
		if present == 0 {
			continue
		}
		size := 16
		if i >= 6 {
			size = 64
		}
		lastScale, nextScale := int32(8), int32(8)
		for j := 0; j < size; j++ {
			if nextScale != 0 {
				delta, err := readSE(br)
				if err != nil {
					return err
				}
				nextScale = (lastScale + delta + 256) % 256
			}
			if nextScale != 0 {
				lastScale = nextScale
			}
		}
	}
	return nil
}

// removeEmulationPrevention strips 0x03 emulation-prevention bytes that
// follow a 0x0000 prefix, per ISO/IEC 14496-10 Annex B.
func removeEmulationPrevention(nal []byte) []byte {
	out := make([]byte, 0, len(nal))
	zeros := 0
	for _, b := range nal {
		if zeros >= 2 && b == 0x03 {
			zeros = 0
			continue
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, b)
	}
	return out
}
