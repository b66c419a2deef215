// Command mp4remux copies an MP4's sample data into a fresh file made
// of an ftyp and one mdat. The output has no moov, so -faststart has
// nothing to move.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gobmff/bmff/bmffapi"
)

func main() {
	fastStart := flag.Bool("faststart", true, "move moov before mdat in the output when it has one")
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [-faststart=true] <in.mp4> <out.mp4>\n", os.Args[0])
		os.Exit(1)
	}

	if err := run(args[0], args[1], *fastStart); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(inPath, outPath string, fastStart bool) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	f, err := bmffapi.Open(in)
	if err != nil {
		return fmt.Errorf("opening %s: %w", inPath, err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	return bmffapi.Remux(out, f, in, bmffapi.RemuxOptions{FastStart: fastStart})
}
