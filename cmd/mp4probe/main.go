// Command mp4probe gathers information about tracks and keyframe
// distribution from an MP4 file.
package main

import (
	"fmt"
	"os"

	"github.com/gobmff/bmff/bmffapi"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file.mp4>\n", os.Args[0])
		os.Exit(1)
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	file, err := bmffapi.Open(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	result := bmffapi.Probe(file)
	fmt.Printf("brand: %s\n\n", string(result.MajorBrand[:]))

	for i, t := range result.Tracks {
		fmt.Printf("Track %d: %s (id=%d)\n", i, t.Codec, t.TrackID)
		fmt.Printf("  Total samples: %d\n", t.Samples)
		fmt.Printf("  Duration: %.2fs\n", t.Duration)
		fmt.Printf("  TimeScale: %d\n", t.TimeScale)

		if t.Keyframes.Count > 0 {
			fmt.Printf("  Total keyframes: %d\n", t.Keyframes.Count)
			fmt.Printf("  Keyframe interval: avg=%.3fs min=%.3fs max=%.3fs\n",
				t.Keyframes.AvgInterval, t.Keyframes.MinInterval, t.Keyframes.MaxInterval)
		}
		fmt.Println()
	}
}
