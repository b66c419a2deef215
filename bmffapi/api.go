package bmffapi

import (
	"errors"
	"io"

	"github.com/gobmff/bmff"
	"github.com/gobmff/bmff/codec"
	"github.com/gobmff/bmff/timeline"
)

// ErrNoMoov is returned by Open when no moov box is found.
var ErrNoMoov = errors.New("bmffapi: no moov box in stream")

// Track is one parsed track: its codec description and reconstructed
// per-sample timeline, the information cmd/mp4probe and cmd/mp4remux
// both need (grounded on tetsuo-mp4's cmd/mp4probe/main.go, which
// walks a remux.Track's Codec/Samples/TimeScale fields directly).
type Track struct {
	TrackID     uint32
	HandlerType [4]byte
	Codec       string // MIME-style codec string, e.g. "avc1.64001f" or "mp4a.40"
	TimeScale   uint32
	Samples     []timeline.Sample

	// CompositionToDecodeShift is max(0, max_i(DTS_i-CTS_i)) over
	// Samples, the value a cslg box would carry for this track.
	CompositionToDecodeShift int64
}

// Duration returns the track's duration in seconds.
func (t *Track) Duration() float64 {
	if len(t.Samples) == 0 || t.TimeScale == 0 {
		return 0
	}
	last := t.Samples[len(t.Samples)-1]
	return float64(last.DTS+int64(last.Duration)) / float64(t.TimeScale)
}

// File is an opened ISOBMFF file's parsed moov metadata.
type File struct {
	MajorBrand [4]byte
	Tracks     []*Track
}

// Open scans rs for ftyp/moov, parses moov, and reconstructs every
// track's timeline. Sample data itself is not read; Samples[i].Offset
// is a byte offset into the original stream for callers that want to
// read sample bytes on demand.
func Open(rs io.ReadSeeker) (*File, error) {
	sc := bmff.NewScanner(rs)
	var moovBuf []byte
	var f File

	for sc.Next() {
		e := sc.Entry()
		switch e.Type {
		case bmff.TypeFtyp:
			buf := make([]byte, e.DataSize())
			if err := sc.ReadBody(buf); err != nil {
				return nil, err
			}
			info := bmff.ReadFtyp(buf)
			f.MajorBrand = info.MajorBrand
		case bmff.TypeMoov:
			moovBuf = make([]byte, e.DataSize())
			if err := sc.ReadBody(moovBuf); err != nil {
				return nil, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if moovBuf == nil {
		return nil, ErrNoMoov
	}

	tracks, err := parseMoov(moovBuf)
	if err != nil {
		return nil, err
	}
	f.Tracks = tracks
	return &f, nil
}

// stblTables holds the raw box bodies collected while walking one
// track's stbl, before they are handed to timeline.Build.
type stblTables struct {
	stsd                   []byte
	stsz, stts, stsc       []byte
	stco, co64             []byte
	ctts                   []byte
	cttsVersion            uint8
	stss                   []byte
}

func parseMoov(moovBuf []byte) ([]*Track, error) {
	var tracks []*Track

	r := bmff.NewReader(moovBuf)
	for r.Next() {
		if r.Type() != bmff.TypeTrak {
			continue
		}
		t, err := parseTrak(&r)
		if err != nil {
			return nil, err
		}
		if t != nil {
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

func parseTrak(r *bmff.Reader) (*Track, error) {
	var trackID uint32
	var handlerType [4]byte
	var timescale uint32
	var tables stblTables
	var elst []bmff.ElstEntry

	r.Enter()
	for r.Next() {
		switch r.Type() {
		case bmff.TypeTkhd:
			trackID, _, _, _ = r.ReadTkhd()
		case bmff.TypeEdts:
			r.Enter()
			for r.Next() {
				if r.Type() == bmff.TypeElst {
					version := r.Version()
					it := bmff.NewElstIter(r.Data(), version)
					for {
						e, ok := it.Next()
						if !ok {
							break
						}
						elst = append(elst, e)
					}
				}
			}
			r.Exit()
		case bmff.TypeMdia:
			r.Enter()
			for r.Next() {
				switch r.Type() {
				case bmff.TypeMdhd:
					timescale, _, _ = r.ReadMdhd()
				case bmff.TypeHdlr:
					handlerType = r.ReadHdlr()
				case bmff.TypeMinf:
					r.Enter()
					for r.Next() {
						if r.Type() == bmff.TypeStbl {
							parseStbl(r, &tables)
						}
					}
					r.Exit()
				}
			}
			r.Exit()
		}
	}
	r.Exit()

	if tables.stsz == nil {
		return nil, nil // no sample table (e.g. a hint/reference track); skip
	}

	samples, err := timeline.Build(timeline.Tables{
		Stsz:        tables.stsz,
		Stts:        tables.stts,
		Stsc:        tables.stsc,
		Stco:        tables.stco,
		Co64:        tables.co64,
		Ctts:        tables.ctts,
		CttsVersion: tables.cttsVersion,
		Stss:        tables.stss,
	})
	if err != nil {
		return nil, err
	}
	samples = timeline.ApplyEditList(samples, elst, timescale)

	return &Track{
		TrackID:                  trackID,
		HandlerType:              handlerType,
		Codec:                    sniffCodec(tables.stsd),
		TimeScale:                timescale,
		Samples:                  samples,
		CompositionToDecodeShift: timeline.CompositionToDecodeShift(samples),
	}, nil
}

func parseStbl(r *bmff.Reader, tables *stblTables) {
	r.Enter()
	for r.Next() {
		switch r.Type() {
		case bmff.TypeStsd:
			tables.stsd = append([]byte(nil), r.Data()...)
		case bmff.TypeStsz:
			tables.stsz = append([]byte(nil), r.Data()...)
		case bmff.TypeStts:
			tables.stts = append([]byte(nil), r.Data()...)
		case bmff.TypeStsc:
			tables.stsc = append([]byte(nil), r.Data()...)
		case bmff.TypeStco:
			tables.stco = append([]byte(nil), r.Data()...)
		case bmff.TypeCo64:
			tables.co64 = append([]byte(nil), r.Data()...)
		case bmff.TypeCtts:
			tables.ctts = append([]byte(nil), r.Data()...)
			tables.cttsVersion = r.Version()
		case bmff.TypeStss:
			tables.stss = append([]byte(nil), r.Data()...)
		}
	}
	r.Exit()
}

// sniffCodec derives a MIME-style codec string from an stsd box's
// first sample entry, grounded on tetsuo-mp4's reader.go
// ReadVisualSampleEntry/ReadAudioSampleEntry plus ReadAvcC, extended
// here to also recognize mp4a/esds via codec.DecodeEsdsMimeCodec.
func sniffCodec(stsd []byte) string {
	if len(stsd) < 12 {
		return ""
	}
	r := bmff.NewReader(stsd)
	r.Skip(4) // entry count
	if !r.Next() {
		return ""
	}
	entryType := r.Type()
	entryData := r.Data()

	switch entryType {
	case bmff.TypeAvc1, bmff.TypeAvc3:
		vse := bmff.ReadVisualSampleEntry(entryData)
		if vse.ChildOffset >= len(entryData) {
			return "avc1"
		}
		cr := bmff.NewReader(entryData[vse.ChildOffset:])
		for cr.Next() {
			if cr.Type() == bmff.TypeAvcC {
				return "avc1." + bmff.ReadAvcC(cr.Data())
			}
		}
		return "avc1"
	case bmff.TypeHvc1, bmff.TypeHev1:
		return "hvc1"
	case bmff.TypeMp4a:
		ase := bmff.ReadAudioSampleEntry(entryData)
		if ase.ChildOffset >= len(entryData) {
			return "mp4a"
		}
		cr := bmff.NewReader(entryData[ase.ChildOffset:])
		for cr.Next() {
			if cr.Type() == bmff.TypeEsds {
				if oti := codec.DecodeEsdsMimeCodec(cr.Data()); oti != "" {
					return "mp4a." + oti
				}
			}
		}
		return "mp4a"
	default:
		return entryType.String()
	}
}
