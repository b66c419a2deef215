// Package timeline reconstructs a track's per-sample timeline — byte
// offset, size, decode and presentation time, sync flag — from the
// stbl sample tables of a moov-parsed track.
//
// The walk is grounded on tetsuo-mp4's remux.buildSampleTable, which
// drives the same stsz/stts/stsc/ctts/stss/stco-or-co64 tables in
// lockstep with a cursor per table. This package rebuilds that cursor
// walk against the box-body byte slices and iterators already defined
// in the root bmff package (bmff.StszIter and friends) instead of
// remux's own pre-parsed mp4.Box tree, since remux's own package
// depends on an external mp4 package this module does not have.
package timeline

import (
	"errors"

	"github.com/gobmff/bmff"
)

// ErrMissingTable is returned when a sample table required to build a
// timeline is absent.
var ErrMissingTable = errors.New("timeline: missing required sample table")

// Sample describes one sample's position and timing within a track.
type Sample struct {
	Offset             int64
	Size               uint32
	Duration           uint32
	DTS                int64
	PresentationOffset int32
	Sync               bool
}

// Tables bundles the raw stbl child box bodies needed to build a
// timeline. Co64 takes precedence over Stco when both are present.
// Ctts and Stss are optional; a nil slice means absent.
type Tables struct {
	Stsz []byte
	Stts []byte
	Stsc []byte
	Stco []byte
	Co64 []byte

	Ctts        []byte
	CttsVersion uint8
	Stss        []byte
}

// Build reconstructs the per-sample timeline for one track, walking
// the sample-size, time-to-sample, sample-to-chunk, chunk-offset,
// composition-offset and sync-sample tables in lockstep, exactly as
// tetsuo-mp4's remux.buildSampleTable does for its own box tree.
func Build(t Tables) ([]Sample, error) {
	if t.Stsz == nil {
		return nil, ErrMissingTable
	}
	if t.Stts == nil {
		return nil, ErrMissingTable
	}
	if t.Stsc == nil {
		return nil, ErrMissingTable
	}

	var chunkOffsets []int64
	switch {
	case t.Co64 != nil:
		it := bmff.NewCo64Iter(t.Co64)
		chunkOffsets = make([]int64, 0, it.Count())
		for {
			v, ok := it.Next()
			if !ok {
				break
			}
			chunkOffsets = append(chunkOffsets, int64(v))
		}
	case t.Stco != nil:
		it := bmff.NewUint32Iter(t.Stco)
		chunkOffsets = make([]int64, 0, it.Count())
		for {
			v, ok := it.Next()
			if !ok {
				break
			}
			chunkOffsets = append(chunkOffsets, int64(v))
		}
	default:
		return nil, ErrMissingTable
	}

	stscEntries := readStsc(t.Stsc)
	if len(stscEntries) == 0 {
		return nil, ErrMissingTable
	}

	sttsEntries := readStts(t.Stts)
	if len(sttsEntries) == 0 {
		return nil, ErrMissingTable
	}

	var cttsEntries []bmff.CttsEntry
	if t.Ctts != nil {
		it := bmff.NewCttsIter(t.Ctts, t.CttsVersion)
		for {
			e, ok := it.Next()
			if !ok {
				break
			}
			cttsEntries = append(cttsEntries, e)
		}
	}

	var syncSamples []uint32
	if t.Stss != nil {
		it := bmff.NewUint32Iter(t.Stss)
		for {
			v, ok := it.Next()
			if !ok {
				break
			}
			syncSamples = append(syncSamples, v)
		}
	}

	szIt := bmff.NewStszIter(t.Stsz)
	numSamples := int(szIt.Count())
	samples := make([]Sample, numSamples)

	sampleInChunk := 0
	chunk := 0
	var offsetInChunk int64
	stscIdx := 0

	var dts int64
	sttsIdx := 0
	sttsOff := 0

	cttsIdx := 0
	cttsOff := 0

	syncIdx := 0

	for i := 0; i < numSamples; i++ {
		size, ok := szIt.Next()
		if !ok {
			return nil, ErrMissingTable
		}

		duration := sttsEntries[sttsIdx].Duration

		var presentationOffset int32
		if cttsEntries != nil && cttsIdx < len(cttsEntries) {
			presentationOffset = cttsEntries[cttsIdx].Offset
		}

		sync := true
		if syncSamples != nil {
			sync = syncIdx < len(syncSamples) && syncSamples[syncIdx] == uint32(i+1)
		}

		if chunk >= len(chunkOffsets) {
			return nil, ErrMissingTable
		}

		samples[i] = Sample{
			Offset:             offsetInChunk + chunkOffsets[chunk],
			Size:               size,
			Duration:           duration,
			DTS:                dts,
			PresentationOffset: presentationOffset,
			Sync:               sync,
		}

		if sync && syncSamples != nil {
			syncIdx++
		}

		if i+1 >= numSamples {
			break
		}

		currEntry := stscEntries[stscIdx]
		sampleInChunk++
		offsetInChunk += int64(size)
		if sampleInChunk >= int(currEntry.SamplesPerChunk) {
			sampleInChunk = 0
			offsetInChunk = 0
			chunk++
			if stscIdx+1 < len(stscEntries) {
				nextEntry := stscEntries[stscIdx+1]
				if uint32(chunk+1) >= nextEntry.FirstChunk {
					stscIdx++
				}
			}
		}

		dts += int64(duration)
		sttsOff++
		if sttsOff >= int(sttsEntries[sttsIdx].Count) {
			sttsIdx++
			sttsOff = 0
		}

		if cttsEntries != nil {
			cttsOff++
			if cttsIdx < len(cttsEntries) && cttsOff >= int(cttsEntries[cttsIdx].Count) {
				cttsIdx++
				cttsOff = 0
			}
		}
	}

	return samples, nil
}

func readStsc(data []byte) []bmff.StscEntry {
	it := bmff.NewStscIter(data)
	entries := make([]bmff.StscEntry, 0, it.Count())
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		entries = append(entries, e)
	}
	return entries
}

func readStts(data []byte) []bmff.SttsEntry {
	it := bmff.NewSttsIter(data)
	entries := make([]bmff.SttsEntry, 0, it.Count())
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		entries = append(entries, e)
	}
	return entries
}

// CompositionToDecodeShift returns the constant a track's composition
// times must be shifted by so that no sample's presentation time falls
// before its decode time, i.e. max(0, max_i(DTS_i - CTS_i)). A cslg box
// (ISO/IEC 14496-12 §8.6.1.3) stores exactly this value so a player can
// offset every sample's composition time without rescanning ctts; a
// muxer that never shifts presentation times ahead of decode order
// (PresentationOffset always >= 0) will see this come out to 0.
func CompositionToDecodeShift(samples []Sample) int64 {
	var shift int64
	for _, s := range samples {
		cts := s.DTS + int64(s.PresentationOffset)
		if d := s.DTS - cts; d > shift {
			shift = d
		}
	}
	return shift
}

// ApplyEditList trims and re-times samples per an edit list (elst),
// per the composition-to-presentation mapping of ISO/IEC 14496-12
// §8.6.6. Only the common single non-empty edit is handled: samples
// whose composition time (DTS + PresentationOffset) falls before
// MediaTime are dropped, and remaining sample
// DTS values are shifted so the first retained sample starts at zero.
func ApplyEditList(samples []Sample, edits []bmff.ElstEntry, timescale uint32) []Sample {
	if len(edits) == 0 {
		return samples
	}
	var mediaTime int64 = -1
	for _, e := range edits {
		if e.MediaTime >= 0 {
			mediaTime = e.MediaTime
			break
		}
	}
	if mediaTime < 0 {
		return samples
	}

	out := samples[:0:0]
	for _, s := range samples {
		if s.DTS+int64(s.PresentationOffset) < mediaTime {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return out
	}
	shift := out[0].DTS
	for i := range out {
		out[i].DTS -= shift
	}
	return out
}
