// Package bmffapi is the public operation surface described by the
// demonstration binaries in cmd/: open a file, probe its tracks, mux
// elementary samples into a new file, remux an existing file's samples
// into a new container, and finalize the result.
package bmffapi

import (
	"io"
	"time"
)

// SampleSourceInfo describes one elementary-stream track an importer
// offers to Mux.
type SampleSourceInfo struct {
	Codec       string  // MIME-style codec string, e.g. "avc1.64001f"
	Timescale   uint32
	HandlerType [4]byte // e.g. "vide", "soun", "text"
}

// Sample is one elementary-stream access unit handed to Mux by a
// SampleSource, in the track's own timescale.
type Sample struct {
	Data               []byte
	Duration           uint32
	PresentationOffset int32
	Sync               bool
}

// SampleSource is the interface an elementary-stream importer
// implements to feed Mux, mirroring the Scanner's Next/error idiom
// used throughout this module rather than handing over a pre-built
// slice, so encoders can stream samples as they are produced.
type SampleSource interface {
	Info() SampleSourceInfo
	// NextSample returns the next sample in decoding order.
	// io.EOF signals the end of the track.
	NextSample() (Sample, error)
}

// drainSampleSource reads every remaining sample from src.
func drainSampleSource(src SampleSource) ([]Sample, error) {
	var out []Sample
	for {
		s, err := src.NextSample()
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, err
		}
		out = append(out, s)
	}
}

// TimecodeSource supplies already-parsed per-frame presentation
// timestamps, in nanoseconds, for a track being imported without its
// own embedded timing (e.g. an image-sequence source). Parsing
// external timecode file formats (v1/v2 text) is outside this
// package's scope; callers do that parsing and hand over the result.
type TimecodeSource interface {
	// Next returns the next frame's presentation time. ok is false
	// once the source is exhausted.
	Next() (pts time.Duration, ok bool)
}

// SliceTimecodeSource adapts a slice of timestamps to TimecodeSource.
type SliceTimecodeSource struct {
	times []time.Duration
	pos   int
}

// NewSliceTimecodeSource creates a TimecodeSource backed by times.
func NewSliceTimecodeSource(times []time.Duration) *SliceTimecodeSource {
	return &SliceTimecodeSource{times: times}
}

// Next implements TimecodeSource.
func (s *SliceTimecodeSource) Next() (time.Duration, bool) {
	if s.pos >= len(s.times) {
		return 0, false
	}
	t := s.times[s.pos]
	s.pos++
	return t, true
}
