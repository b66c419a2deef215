package mux

import (
	"github.com/gobmff/bmff"
	"github.com/gobmff/bmff/timeline"
)

// DefaultFragmentDuration is the minimum fragment duration, in seconds,
// used when a caller does not pick one explicitly (tetsuo-mp4's
// remux.Writer uses the same default under the name minFragmentDuration).
const DefaultFragmentDuration = 2

// Fragment describes one moof/mdat pair worth of samples drawn from a
// track's reconstructed timeline.
type Fragment struct {
	Samples     []timeline.Sample
	FirstIndex  int // index of Samples[0] within the track's full timeline
	TrunVersion uint8
	BaseDecodeTime uint64
}

// NextFragmentBoundary finds the end of the next fragment starting at
// samples[first], grounded on tetsuo-mp4's remux.generateFragment:
// samples are grouped until a sync sample is reached at or past
// fragmentDuration (in the track's timescale) past the fragment's first
// sample, or until endDTS (if positive) is reached.
func NextFragmentBoundary(samples []timeline.Sample, first int, fragmentDuration int64, endDTS int64) Fragment {
	if first >= len(samples) {
		return Fragment{FirstIndex: first}
	}

	startDTS := samples[first].DTS
	last := first

	for last < len(samples) {
		s := samples[last]
		pts := s.DTS + int64(s.PresentationOffset)

		if endDTS > 0 && pts >= endDTS {
			break
		}

		if endDTS == 0 && last > first && s.Sync {
			if s.DTS-startDTS >= fragmentDuration {
				break
			}
		}

		last++
	}

	frag := Fragment{
		Samples:        samples[first:last],
		FirstIndex:     first,
		BaseDecodeTime: uint64(startDTS),
	}
	for _, s := range frag.Samples {
		if s.PresentationOffset < 0 {
			frag.TrunVersion = 1
		}
	}
	return frag
}

// Trun flags used for sync and non-sync samples, matching tetsuo-mp4's
// sample_flags convention for fragmented tracks (ISO/IEC 14496-12
// §8.8.3.1: sample_depends_on, is_non_sync_sample).
const (
	syncSampleFlags    = 0x2000000
	nonSyncSampleFlags = 0x1010000
)

// TrunEntries converts a Fragment's samples into bmff.TrunEntry values.
func TrunEntries(f Fragment) []bmff.TrunEntry {
	entries := make([]bmff.TrunEntry, len(f.Samples))
	for i, s := range f.Samples {
		flags := uint32(syncSampleFlags)
		if !s.Sync {
			flags = nonSyncSampleFlags
		}
		entries[i] = bmff.TrunEntry{
			Duration:              s.Duration,
			Size:                  s.Size,
			Flags:                 flags,
			CompositionTimeOffset: s.PresentationOffset,
		}
	}
	return entries
}

// mdatHeaderSize is the byte length of a standard (32-bit size) mdat
// box header.
const mdatHeaderSize = 8

// trunDataOffsetFieldOffset is the byte offset of trun's data_offset
// field relative to the start of the trun box: 8 (box header) + 4
// (version/flags) + 4 (sample_count).
const trunDataOffsetFieldOffset = 16

// WriteMoof writes a single-track moof box (mfhd/traf/tfhd/tfdt/trun)
// describing fragment f, using the Writer's backpatch box nesting
// rather than hand-computed box sizes, generalizing tetsuo-mp4's own
// WriteMfhd/WriteTfhd/WriteTfdt/WriteTrun calls into one fragment
// writer the way remux.writeMoof composes them for a single track.
//
// The trun's data_offset (the byte distance from the start of this
// moof to the first sample's data, i.e. past the following mdat
// header) is only known once moof has finished writing, so it is
// written as a placeholder and backpatched afterward, the same way
// EndBox backpatches a box's own size field.
func WriteMoof(w *bmff.Writer, seqNum uint32, trackID uint32, f Fragment) {
	moofStart := w.Len()

	w.StartBox(bmff.TypeMoof)
	w.WriteMfhd(seqNum)

	w.StartBox(bmff.TypeTraf)
	w.WriteTfhd(bmff.TfhdDefaultBaseIsMoof, trackID)
	w.WriteTfdt(f.BaseDecodeTime)

	trunStart := w.Len()
	trunFlags := uint32(bmff.TrunDataOffsetPresent |
		bmff.TrunSampleDurationPresent |
		bmff.TrunSampleSizePresent |
		bmff.TrunSampleFlagsPresent |
		bmff.TrunSampleCompositionTimeOffsetPresent)
	w.WriteTrun(trunFlags, 0, TrunEntries(f))
	w.EndBox() // traf

	w.EndBox() // moof

	moofSize := w.Len() - moofStart
	w.PatchInt32(trunStart+trunDataOffsetFieldOffset, int32(moofSize+mdatHeaderSize))
}
