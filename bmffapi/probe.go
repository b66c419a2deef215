package bmffapi

// KeyframeStats summarizes sync-sample spacing for one track, the
// statistics tetsuo-mp4's cmd/mp4probe/main.go computes inline
// (average/min/max interval between keyframes) pulled out into a
// reusable result type.
type KeyframeStats struct {
	Count       int
	AvgInterval float64 // seconds
	MinInterval float64
	MaxInterval float64
}

// ProbeTrack is one track's summary as reported by Probe.
type ProbeTrack struct {
	TrackID   uint32
	Codec     string
	TimeScale uint32
	Samples   int
	Duration  float64
	Keyframes KeyframeStats
}

// ProbeResult summarizes a file's tracks for tools like cmd/mp4probe,
// and is the value bmffapi.ProbeCache persists.
type ProbeResult struct {
	MajorBrand [4]byte
	Tracks     []ProbeTrack
}

// Probe summarizes every track of an already opened f, the library-level
// equivalent of tetsuo-mp4's cmd/mp4probe/main.go loop.
func Probe(f *File) ProbeResult {
	result := ProbeResult{MajorBrand: f.MajorBrand}
	for _, t := range f.Tracks {
		result.Tracks = append(result.Tracks, ProbeTrack{
			TrackID:   t.TrackID,
			Codec:     t.Codec,
			TimeScale: t.TimeScale,
			Samples:   len(t.Samples),
			Duration:  t.Duration(),
			Keyframes: keyframeStats(t),
		})
	}
	return result
}

func keyframeStats(t *Track) KeyframeStats {
	var stats KeyframeStats
	var prevPTS float64
	var intervals []float64

	for _, s := range t.Samples {
		if !s.Sync {
			continue
		}
		pts := float64(s.DTS+int64(s.PresentationOffset)) / float64(t.TimeScale)
		if stats.Count > 0 {
			intervals = append(intervals, pts-prevPTS)
		}
		prevPTS = pts
		stats.Count++
	}

	if len(intervals) == 0 {
		return stats
	}
	stats.MinInterval, stats.MaxInterval = intervals[0], intervals[0]
	var sum float64
	for _, v := range intervals {
		sum += v
		if v < stats.MinInterval {
			stats.MinInterval = v
		}
		if v > stats.MaxInterval {
			stats.MaxInterval = v
		}
	}
	stats.AvgInterval = sum / float64(len(intervals))
	return stats
}
