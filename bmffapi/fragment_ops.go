package bmffapi

import (
	"io"
	"strconv"

	"github.com/gobmff/bmff"
	"github.com/gobmff/bmff/mux"
	"github.com/gobmff/bmff/timeline"
)

// toTimelineSamples converts drained elementary-stream samples into the
// timeline.Sample form mux/fragment.go's boundary finder and trun
// builder operate on, computing each sample's DTS by accumulating
// durations in decoding order (mirroring how timeline.Build derives
// DTS from stts on the read side, but forward instead of from a
// pre-existing table).
func toTimelineSamples(samples []Sample) []timeline.Sample {
	out := make([]timeline.Sample, len(samples))
	var dts int64
	for i, s := range samples {
		out[i] = timeline.Sample{
			Size:               uint32(len(s.Data)),
			Duration:           s.Duration,
			DTS:                dts,
			PresentationOffset: s.PresentationOffset,
			Sync:               s.Sync,
		}
		dts += int64(s.Duration)
	}
	return out
}

// fragmentDuration sums a fragment's sample durations in its track's
// timescale.
func fragmentDuration(f mux.Fragment) int64 {
	var total int64
	for _, s := range f.Samples {
		total += int64(s.Duration)
	}
	return total
}

// muxFragmented writes tracks as a fragmented ISOBMFF stream: a moov
// carrying mvex/trex (no sample tables, since samples live in moof/traf
// instead), followed by one moof+mdat pair per fragment per track,
// fragments interleaved round-robin the same way Mux interleaves chunks
// in the progressive path. This is the flavor MuxOptions.Fragmented was
// declared to select but, before this, never produced.
func muxFragmented(w io.Writer, tracks []*mux.Track, sources []SampleSource, allSamples [][]Sample, opts MuxOptions) error {
	buf := make([]byte, 0, 1<<20)
	bw := bmff.NewWriter(buf)

	brand := opts.MajorBrand
	if brand == ([4]byte{}) {
		brand = [4]byte{'i', 's', 'o', '5'}
	}
	compat := opts.CompatibleBrands
	if len(compat) == 0 {
		compat = [][4]byte{{'i', 's', 'o', '5'}, {'i', 's', 'o', '6'}, {'m', 'p', '4', '1'}}
	}
	bw.WriteFtyp(brand, 0, compat)

	timelines := make([][]timeline.Sample, len(tracks))
	fragDurations := make([]int64, len(tracks))
	durations := make([]uint64, len(tracks))
	for i, t := range tracks {
		timelines[i] = toTimelineSamples(allSamples[i])
		fd := int64(opts.ChunkDuration)
		if fd == 0 {
			fd = int64(mux.DefaultFragmentDuration) * int64(t.Timescale)
		}
		fragDurations[i] = fd

		var total uint64
		for _, s := range allSamples[i] {
			total += uint64(s.Duration)
		}
		durations[i] = total
	}

	writeFragmentedMoov(&bw, tracks, sources, durations)

	pos := make([]int, len(tracks))
	seqNum := uint32(1)
	for {
		progressed := false
		for i, t := range tracks {
			if pos[i] >= len(timelines[i]) {
				continue
			}
			frag := mux.NextFragmentBoundary(timelines[i], pos[i], fragDurations[i], 0)
			if len(frag.Samples) == 0 {
				pos[i] = len(timelines[i])
				continue
			}

			mux.WriteMoof(&bw, seqNum, t.ID, frag)
			seqNum++

			bw.StartBox(bmff.TypeMdat)
			for j := range frag.Samples {
				sample := allSamples[i][frag.FirstIndex+j]
				if _, err := bw.Write(sample.Data); err != nil {
					return err
				}
			}
			bw.EndBox()

			pos[i] = frag.FirstIndex + len(frag.Samples)
			progressed = true
		}
		if !progressed {
			break
		}
	}

	_, err := w.Write(bw.Bytes())
	return err
}

// writeFragmentedMoov writes a moov box carrying no sample-data tables
// (every stbl is present but empty, satisfying readers that expect one)
// and an mvex/trex pair per track declaring the default sample flags a
// reader falls back to if a given traf/trun entry omits them. durations
// holds each track's presentation duration in its own timescale, parallel
// to tracks; pass a zero entry when a track's duration is not yet known
// (e.g. an open-ended DASH initialization segment), which matches a
// live/dynamic MPD's own duration=0 init.
func writeFragmentedMoov(w *bmff.Writer, tracks []*mux.Track, sources []SampleSource, durations []uint64) {
	var movieDuration uint64
	for i, t := range tracks {
		if durations[i] == 0 || t.Timescale == 0 {
			continue
		}
		d := durations[i] * movieTimescale / uint64(t.Timescale)
		if d > movieDuration {
			movieDuration = d
		}
	}

	w.StartBox(bmff.TypeMoov)
	w.WriteMvhd(movieTimescale, movieDuration, uint32(len(tracks)+1))
	for i, t := range tracks {
		writeFragmentedTrak(w, t, sources[i].Info(), durations[i])
	}

	w.StartBox(bmff.TypeMvex)
	for _, t := range tracks {
		w.WriteTrex(t.ID, 1, 0, 0, 0)
	}
	w.EndBox()
	w.EndBox()
}

func writeFragmentedTrak(w *bmff.Writer, t *mux.Track, info SampleSourceInfo, duration uint64) {
	var movieDuration uint64
	if t.Timescale > 0 {
		movieDuration = duration * movieTimescale / uint64(t.Timescale)
	}

	w.StartBox(bmff.TypeTrak)
	w.WriteTkhd(0x7, t.ID, movieDuration, 0, 0)

	w.StartBox(bmff.TypeMdia)
	w.WriteMdhd(t.Timescale, duration, 0)
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
	w.WriteStsz(0, nil)
	w.WriteStts(nil)
	w.WriteStsc(nil)
	w.WriteStco(nil)
	w.EndBox() // stbl
	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak
}

// DashOptions configures MuxDash.
type DashOptions struct {
	MajorBrand      [4]byte // defaults to "dash"
	SegmentDuration uint32  // in the track's own timescale; 0 selects mux.DefaultFragmentDuration*timescale
	SegmentBaseName string  // defaults to "segment"; media segments are named "<base>_<k>.m4s"
}

// DashSegmenter receives each file a DASH/CMAF segmented mux produces:
// one initialization segment ("init.mp4") followed by one media segment
// per fragment, named by MuxDash under the "<base>_<k>" convention a
// DASH manifest's SegmentTemplate expects.
type DashSegmenter interface {
	WriteSegment(name string, data []byte) error
}

// sidxReferenceFieldOffset is the byte offset of the first reference's
// reference_type/referenced_size field relative to the start of a v1
// sidx box: 8 (box header) + 4 (version/flags) + 4 (reference_ID) + 4
// (timescale) + 8 (earliest_presentation_time) + 8 (first_offset) + 2
// (reserved) + 2 (reference_count).
const sidxReferenceFieldOffset = 40

// MuxDash multiplexes a single elementary-stream source into a
// DASH/CMAF indexed-segmentation stream: an initialization segment
// (ftyp+moov, major brand "dash", with mvex/trex) followed by one
// styp+sidx+moof+mdat media segment per fragment, each self-describing
// via its leading sidx so a client can byte-range or separately fetch
// segments without re-parsing the whole stream.
func MuxDash(src SampleSource, opts DashOptions, seg DashSegmenter) error {
	info := src.Info()
	samples, err := drainSampleSource(src)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return ErrNoTracks
	}

	timescale := info.Timescale
	segDuration := int64(opts.SegmentDuration)
	if segDuration == 0 {
		segDuration = int64(mux.DefaultFragmentDuration) * int64(timescale)
	}
	baseName := opts.SegmentBaseName
	if baseName == "" {
		baseName = "segment"
	}
	brand := opts.MajorBrand
	if brand == ([4]byte{}) {
		brand = [4]byte{'d', 'a', 's', 'h'}
	}

	track := mux.NewTrack(1, timescale)
	tlSamples := toTimelineSamples(samples)

	initW := bmff.NewWriter(make([]byte, 0, 4096))
	initW.WriteFtyp(brand, 0, [][4]byte{{'i', 's', 'o', '6'}, {'m', 's', 'd', 'h'}, {'m', 's', 'i', 'x'}})
	writeFragmentedMoov(&initW, []*mux.Track{track}, []SampleSource{src}, []uint64{0})
	if err := seg.WriteSegment("init.mp4", initW.Bytes()); err != nil {
		return err
	}

	seqNum := uint32(1)
	idx := 0
	segIdx := 0
	for idx < len(tlSamples) {
		frag := mux.NextFragmentBoundary(tlSamples, idx, segDuration, 0)
		if len(frag.Samples) == 0 {
			break
		}

		sw := bmff.NewWriter(make([]byte, 0, 1<<16))
		sw.WriteStyp(brand, 0, [][4]byte{{'m', 's', 'd', 'h'}, {'m', 's', 'i', 'x'}})

		sidxStart := sw.Len()
		first := frag.Samples[0]
		sw.WriteSidx(track.ID, timescale, uint64(first.DTS+int64(first.PresentationOffset)), 0, []bmff.SidxEntry{{
			SubsegDuration: uint32(fragmentDuration(frag)),
			StartsWithSAP:  first.Sync,
			SAPType:        1,
		}})
		afterSidx := sw.Len()

		mux.WriteMoof(&sw, seqNum, track.ID, frag)
		seqNum++

		sw.StartBox(bmff.TypeMdat)
		for j := range frag.Samples {
			sample := samples[frag.FirstIndex+j]
			if _, err := sw.Write(sample.Data); err != nil {
				return err
			}
		}
		sw.EndBox()

		// referenced_size covers everything this sidx entry indexes:
		// the moof+mdat pair that follows it in this same segment.
		referencedSize := int32(sw.Len() - afterSidx)
		sw.PatchInt32(sidxStart+sidxReferenceFieldOffset, referencedSize)

		name := segmentName(baseName, segIdx)
		if err := seg.WriteSegment(name, sw.Bytes()); err != nil {
			return err
		}

		idx = frag.FirstIndex + len(frag.Samples)
		segIdx++
	}

	return nil
}

func segmentName(base string, index int) string {
	return base + "_" + strconv.Itoa(index) + ".m4s"
}
