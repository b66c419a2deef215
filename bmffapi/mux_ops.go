package bmffapi

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/gobmff/bmff"
	"github.com/gobmff/bmff/mux"
)

// ErrNoTracks is returned by MuxSamples/Remux when given no tracks.
var ErrNoTracks = errors.New("bmffapi: no tracks")

// MuxOptions configures MuxSamples, following this module's plain-
// struct configuration convention (see SPEC_FULL.md's ambient-stack
// decision to avoid functional options, matching tetsuo-mp4's own
// constructors).
type MuxOptions struct {
	MajorBrand       [4]byte
	CompatibleBrands [][4]byte
	ChunkDuration    uint32 // per-track timescale units; 0 selects mux.DefaultChunkDuration
	ChunkByteCeiling uint32 // 0 selects mux.DefaultChunkByteCeiling
	Fragmented       bool   // emit moof/mdat fragments instead of one trailing moov
	FastStart        bool   // rewrite so moov precedes mdat (ignored when Fragmented)
}

// MuxSamples multiplexes one or more elementary-stream sources into a
// new progressive or fragmented ISOBMFF stream written to w.
func MuxSamples(w io.Writer, sources []SampleSource, opts MuxOptions) error {
	if len(sources) == 0 {
		return ErrNoTracks
	}

	tracks := make([]*mux.Track, len(sources))
	muxSources := make([]mux.SampleSource, len(sources))
	allSamples := make([][]Sample, len(sources))
	for i, src := range sources {
		info := src.Info()
		tracks[i] = mux.NewTrack(uint32(i+1), info.Timescale)

		samples, err := drainSampleSource(src)
		if err != nil {
			return err
		}
		allSamples[i] = samples
		muxSamples := make([]mux.Sample, len(samples))
		for j, s := range samples {
			muxSamples[j] = mux.Sample{
				Data:      s.Data,
				Duration:  s.Duration,
				CTSOffset: s.PresentationOffset,
				Sync:      s.Sync,
			}
		}
		muxSources[i] = mux.NewSliceSource(muxSamples)
	}

	if opts.Fragmented {
		return muxFragmented(w, tracks, sources, allSamples, opts)
	}

	buf := make([]byte, 0, 1<<20)
	bw := bmff.NewWriter(buf)

	brand := opts.MajorBrand
	if brand == ([4]byte{}) {
		brand = [4]byte{'i', 's', 'o', 'm'}
	}
	bw.WriteFtyp(brand, 0, opts.CompatibleBrands)

	bw.StartBox(bmff.TypeMdat)

	if err := mux.Mux(&bw, tracks, muxSources, opts.ChunkDuration, opts.ChunkByteCeiling); err != nil {
		return err
	}
	bw.EndBox()

	writeMoov(&bw, tracks, sources)

	out, err := mux.SynthesizeEditLists(bw.Bytes())
	if err != nil {
		return err
	}

	if opts.FastStart {
		out, err = mux.Finalize(out)
		if err != nil && !errors.Is(err, mux.ErrNoMoov) {
			return err
		}
	}

	_, err = w.Write(out)
	return err
}

// RemuxOptions configures Remux.
type RemuxOptions struct {
	FastStart bool
}

// Remux copies every track's samples, one track after another, from an
// already-opened File into a single mdat after an ftyp and writes the
// result to w, reading sample bytes from ra on demand. The output has
// no moov, so it carries no track or sample-table metadata, and
// FastStart leaves it unchanged (Finalize finds no moov to move). This mirrors tetsuo-mp4's remux.Writer.WriteToFrom, which
// remuxes by copying the existing byte ranges named by each track's
// reconstructed timeline rather than re-encoding.
func Remux(w io.Writer, f *File, ra io.ReaderAt, opts RemuxOptions) error {
	if len(f.Tracks) == 0 {
		return ErrNoTracks
	}

	buf := make([]byte, 0, 1<<20)
	bw := bmff.NewWriter(buf)
	bw.WriteFtyp(f.MajorBrand, 0, nil)

	bw.StartBox(bmff.TypeMdat)
	copyBuf := make([]byte, 32*1024)
	for _, t := range f.Tracks {
		for _, s := range t.Samples {
			remaining := int64(s.Size)
			off := s.Offset
			for remaining > 0 {
				n := int64(len(copyBuf))
				if n > remaining {
					n = remaining
				}
				nr, err := ra.ReadAt(copyBuf[:n], off)
				if nr > 0 {
					if _, werr := bw.Write(copyBuf[:nr]); werr != nil {
						return werr
					}
					off += int64(nr)
					remaining -= int64(nr)
				}
				if err != nil && err != io.EOF {
					return err
				}
				if err == io.EOF && remaining > 0 {
					return io.ErrUnexpectedEOF
				}
			}
		}
	}
	bw.EndBox()

	out := bw.Bytes()
	if opts.FastStart {
		var err error
		out, err = mux.Finalize(out)
		if err != nil && !errors.Is(err, mux.ErrNoMoov) {
			return err
		}
	}

	_, err := w.Write(out)
	return err
}

// movieTimescale is the timescale used for the movie-level mvhd duration;
// individual tracks keep their own media timescale in mdhd.
const movieTimescale = 1000

// writeMoov appends the trailing moov box describing tracks, whose
// sample tables were accumulated during the preceding mux.Mux call.
// Writing moov after mdat (rather than before, as a player prefers)
// matches a straightforward single-pass muxer; MuxOptions.FastStart
// moves moov back in front via mux.Finalize's chunk-offset patch.
func writeMoov(w *bmff.Writer, tracks []*mux.Track, sources []SampleSource) {
	var movieDuration uint64
	for _, t := range tracks {
		d := t.Duration()
		if t.Timescale > 0 {
			d = d * movieTimescale / uint64(t.Timescale)
		}
		if d > movieDuration {
			movieDuration = d
		}
	}

	w.StartBox(bmff.TypeMoov)
	w.WriteMvhd(movieTimescale, movieDuration, uint32(len(tracks)+1))
	for i, t := range tracks {
		writeTrak(w, t, sources[i].Info())
	}
	w.EndBox()
}

func trackDurationInMovieTimescale(t *mux.Track) uint64 {
	d := t.Duration()
	if t.Timescale > 0 {
		d = d * movieTimescale / uint64(t.Timescale)
	}
	return d
}

func writeTrak(w *bmff.Writer, t *mux.Track, info SampleSourceInfo) {
	w.StartBox(bmff.TypeTrak)
	// tkhd's duration field is in movie-timescale units (ISO/IEC
	// 14496-12 §8.3.2), not the track's own media timescale, so it
	// needs the same scaling writeMoov applies to mvhd's duration.
	w.WriteTkhd(0x7, t.ID, trackDurationInMovieTimescale(t), 0, 0)

	w.StartBox(bmff.TypeMdia)
	w.WriteMdhd(t.Timescale, t.Duration(), 0)
	handler := info.HandlerType
	if handler == ([4]byte{}) {
		handler = [4]byte{'s', 'o', 'u', 'n'}
	}
	w.WriteHdlr(handler, "")

	w.StartBox(bmff.TypeMinf)
	if handler == ([4]byte{'v', 'i', 'd', 'e'}) {
		w.WriteVmhd()
	} else {
		w.WriteSmhd()
	}
	w.StartBox(bmff.TypeDinf)
	w.WriteDref()
	w.EndBox()

	w.StartBox(bmff.TypeStbl)
	w.StartFullBox(bmff.TypeStsd, 0, 0)
	writeSampleEntry(w, handler, info)
	w.EndBox()
	mux.WriteStbl(w, t)
	w.EndBox() // stbl
	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak
}

// writeSampleEntry writes a minimal, codec-agnostic sample description
// entry: enough of the avc1/mp4a header to let a reader locate the
// sample tables that follow. Exact avcC/esds configuration bytes are
// outside MuxSamples' scope; importers that need them write directly
// against bmff.Writer/codec instead of going through SampleSource.
func writeSampleEntry(w *bmff.Writer, handler [4]byte, info SampleSourceInfo) {
	var entryCount [4]byte
	binary.BigEndian.PutUint32(entryCount[:], 1)
	w.Write(entryCount[:])

	if handler == ([4]byte{'v', 'i', 'd', 'e'}) {
		boxType := bmff.TypeAvc1
		if len(info.Codec) >= 4 && info.Codec[:4] == "avc3" {
			boxType = bmff.TypeAvc3
		}
		w.StartBox(boxType)
		w.WriteVisualSampleEntry(1, 0, 0, 1, 24, info.Codec)
		w.EndBox()
		return
	}
	w.StartBox(bmff.TypeMp4a)
	w.WriteAudioSampleEntry(1, 2, 16, info.Timescale<<16)
	w.EndBox()
}
