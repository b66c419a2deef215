// Package mux multiplexes decoded samples from one or more tracks into
// progressive-download ISOBMFF output, interleaving tracks by chunk
// and writing the stts/ctts/stsc/stsz/stco/stss sample tables that
// describe the result.
//
// The chunking algorithm is grounded on SentryShot-sentryshot's
// mp4muxer.muxer (writeVideoSample/writeAudioSample): consecutive
// samples from the same track merge into the current run-length table
// entry (stts/ctts) or the current chunk (stsc/stco) until a sample
// from a different track, or a configured duration/byte ceiling, forces
// a new chunk. That muxer hard-codes exactly one video and one audio
// track; this package generalizes the same merge rule to N tracks.
package mux

import (
	"errors"

	"github.com/gobmff/bmff"
)

// ErrNoTracks is returned when Mux is called with no tracks to multiplex.
var ErrNoTracks = errors.New("mux: no tracks")

// DefaultChunkDuration is the target chunk duration used when Mux is
// called with chunkDuration 0.
const DefaultChunkDuration = 2 // seconds, matches the default fragment duration decision

// DefaultChunkByteCeiling bounds how large a single chunk's accumulated
// sample bytes may grow before a new chunk is forced, independent of
// duration, so that a high-bitrate track can't produce unreasonably
// large chunks within the duration window.
const DefaultChunkByteCeiling = 2 << 20 // 2 MiB

// Sample is one input sample handed to the multiplexer by a track's
// sample source.
type Sample struct {
	Data       []byte
	Duration   uint32 // in the track's timescale
	CTSOffset  int32  // composition time offset, in the track's timescale
	Sync       bool
}

// Track accumulates sample-table state for one input track as Mux
// appends samples to it.
type Track struct {
	ID        uint32
	Timescale uint32

	stts []bmff.SttsEntry
	ctts []bmff.CttsEntry
	stsc []bmff.StscEntry
	stsz []uint32
	stco []uint32
	stss []uint32

	inCurrChunk      bool
	sampleCount      uint32
	chunkBytes       uint32
	chunkSamples     uint32
	chunkDurationSum uint32
}

// NewTrack creates a Track with the given ID and media timescale.
func NewTrack(id uint32, timescale uint32) *Track {
	return &Track{ID: id, Timescale: timescale}
}

// Duration returns the total track duration in its own timescale.
func (t *Track) Duration() uint64 {
	var total uint64
	for _, e := range t.stts {
		total += uint64(e.Count) * uint64(e.Duration)
	}
	return total
}

// SampleCount returns the number of samples appended so far.
func (t *Track) SampleCount() uint32 { return t.sampleCount }

// Mux interleaves samples from the given tracks' sources, chunk by
// chunk, and writes their data into w, accumulating in each Track the
// sample tables WriteStbl later turns into stbl boxes.
//
// chunkDuration and byteCeiling bound how large an in-progress chunk
// for one track may grow (in the track's own timescale units and
// bytes respectively) before Mux forces a chunk boundary even if the
// same track's samples keep coming; 0 selects the package defaults.
func Mux(w *bmff.Writer, tracks []*Track, sources []SampleSource, chunkDuration uint32, byteCeiling uint32) error {
	if len(tracks) == 0 || len(tracks) != len(sources) {
		return ErrNoTracks
	}
	if byteCeiling == 0 {
		byteCeiling = DefaultChunkByteCeiling
	}

	active := make([]bool, len(tracks))
	thresholds := make([]uint32, len(tracks))
	for i, t := range tracks {
		active[i] = true
		cd := chunkDuration
		if cd == 0 {
			cd = DefaultChunkDuration * t.Timescale
		}
		thresholds[i] = cd
	}

	lastTrack := -1
	for {
		// Pick the next track to draw a sample from: prefer continuing
		// the current chunk's track until it has accumulated a full
		// chunk's worth of media duration or bytes, else round-robin to
		// the next still-active track. This is what keeps tracks
		// interleaved by time rather than draining one track's entire
		// source before starting the next, which a pure byte-ceiling
		// check alone would allow.
		idx := nextTrack(active, lastTrack, tracks, thresholds, byteCeiling)
		if idx < 0 {
			break
		}

		s, ok, err := sources[idx].Next()
		if err != nil {
			return err
		}
		if !ok {
			active[idx] = false
			continue
		}

		t := tracks[idx]
		// stco must hold absolute file offsets, so the chunk-open offset
		// is read from the writer's current position rather than a
		// private per-track byte counter: tracks share one mdat and are
		// interleaved into it, so a per-track counter starting at 0
		// would both omit the bytes written before mdat (ftyp + the
		// mdat header itself) and overlap other tracks' byte ranges.
		absOffset := uint32(w.Len())
		appendSample(t, s, idx != lastTrack, thresholds[idx], byteCeiling, absOffset)
		if _, err := w.Write(s.Data); err != nil {
			return err
		}
		lastTrack = idx
	}

	return nil
}

func nextTrack(active []bool, lastTrack int, tracks []*Track, thresholds []uint32, byteCeiling uint32) int {
	if lastTrack >= 0 && active[lastTrack] &&
		tracks[lastTrack].chunkBytes < byteCeiling &&
		tracks[lastTrack].chunkDurationSum < thresholds[lastTrack] {
		return lastTrack
	}
	for k := 1; k <= len(active); k++ {
		i := (lastTrack + k) % len(active)
		if active[i] && i != lastTrack {
			return i
		}
	}
	if lastTrack >= 0 && active[lastTrack] {
		return lastTrack
	}
	return -1
}

func appendSample(t *Track, s Sample, chunkBoundary bool, chunkDuration, byteCeiling, absOffset uint32) {
	if len(t.stts) > 0 && t.stts[len(t.stts)-1].Duration == s.Duration {
		t.stts[len(t.stts)-1].Count++
	} else {
		t.stts = append(t.stts, bmff.SttsEntry{Count: 1, Duration: s.Duration})
	}

	if len(t.ctts) > 0 && t.ctts[len(t.ctts)-1].Offset == s.CTSOffset {
		t.ctts[len(t.ctts)-1].Count++
	} else {
		t.ctts = append(t.ctts, bmff.CttsEntry{Count: 1, Offset: s.CTSOffset})
	}

	forceNewChunk := chunkBoundary || !t.inCurrChunk ||
		t.chunkBytes+uint32(len(s.Data)) > byteCeiling ||
		t.chunkDurationSum+s.Duration > chunkDuration

	if forceNewChunk {
		t.stco = append(t.stco, absOffset)
		t.stsc = append(t.stsc, bmff.StscEntry{
			FirstChunk:          uint32(len(t.stco)),
			SamplesPerChunk:     1,
			SampleDescriptionId: 1,
		})
		t.inCurrChunk = true
		t.chunkBytes = 0
		t.chunkSamples = 0
		t.chunkDurationSum = 0
	} else {
		t.stsc[len(t.stsc)-1].SamplesPerChunk++
	}

	t.chunkBytes += uint32(len(s.Data))
	t.chunkSamples++
	t.chunkDurationSum += s.Duration
	t.stsz = append(t.stsz, uint32(len(s.Data)))
	t.sampleCount++

	if s.Sync {
		t.stss = append(t.stss, t.sampleCount)
	}
}

// SampleSource supplies samples for one track in decoding order,
// matching the Scanner-style Next/error idiom used elsewhere in this
// module rather than returning a pre-built slice, so a live encoder can
// feed Mux without materializing every sample up front.
type SampleSource interface {
	// Next returns the next sample. ok is false when the source is
	// exhausted; err is non-nil only on a genuine read failure.
	Next() (Sample, bool, error)
}

// SliceSource adapts an in-memory slice of samples to SampleSource.
type SliceSource struct {
	samples []Sample
	pos     int
}

// NewSliceSource creates a SampleSource backed by samples.
func NewSliceSource(samples []Sample) *SliceSource {
	return &SliceSource{samples: samples}
}

// Next implements SampleSource.
func (s *SliceSource) Next() (Sample, bool, error) {
	if s.pos >= len(s.samples) {
		return Sample{}, false, nil
	}
	sample := s.samples[s.pos]
	s.pos++
	return sample, true, nil
}

// WriteStbl writes the sample-table boxes (stsz, stts, ctts, stsc,
// stco, stss) accumulated for t into w, nested inside an already
// open stbl container that the caller owns. ctts is written only when
// some sample has a non-zero composition offset, stss only when some
// sample is a sync sample.
func WriteStbl(w *bmff.Writer, t *Track) {
	w.WriteStsz(0, t.stsz)
	w.WriteStts(t.stts)
	for _, e := range t.ctts {
		if e.Offset != 0 {
			w.WriteCtts(t.ctts)
			break
		}
	}
	w.WriteStsc(t.stsc)
	w.WriteStco(t.stco)
	if len(t.stss) > 0 {
		w.WriteStss(t.stss)
	}
}
