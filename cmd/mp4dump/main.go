// Command mp4dump reads an MP4 file and prints its box structure.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gobmff/bmff"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file.mp4>\n", os.Args[0])
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading file: %v\n", err)
		os.Exit(1)
	}

	r := bmff.NewReader(data)
	dumpLevel(&r, 0)
}

// dumpLevel prints every sibling box at the reader's current nesting
// level, descending into container boxes.
func dumpLevel(r *bmff.Reader, depth int) {
	for r.Next() {
		indent := strings.Repeat("  ", depth)
		vf := ""
		if bmff.IsFullBox(r.Type()) {
			vf = fmt.Sprintf(" v=%d flags=0x%06x", r.Version(), r.Flags())
		}
		uuidStr := ""
		if u, ok := r.UUID(); ok {
			uuidStr = fmt.Sprintf(" uuid=%x", u)
		}

		fmt.Printf("%s[%s] size=%d%s%s%s\n", indent, r.Type(), r.Size(), vf, uuidStr, boxInfo(r))

		if bmff.IsContainerBox(r.Type()) {
			r.Enter()
			dumpLevel(r, depth+1)
			r.Exit()
		}
	}
}

// boxInfo formats any extra per-box-type detail mp4dump shows inline,
// the same fields tetsuo-mp4's original mp4dump printed per box type,
// rewritten against bmff.Reader's field accessors instead of a
// pre-decoded box tree.
func boxInfo(r *bmff.Reader) string {
	switch r.Type() {
	case bmff.TypeFtyp, bmff.TypeStyp:
		f := bmff.ReadFtyp(r.Data())
		compat := make([]string, len(f.Compatible))
		for i, c := range f.Compatible {
			compat[i] = string(c[:])
		}
		return fmt.Sprintf(" brand=%s ver=%d compat=[%s]", f.MajorBrand, f.MinorVersion, strings.Join(compat, ","))
	case bmff.TypeMvhd:
		ts, dur, next := r.ReadMvhd()
		return fmt.Sprintf(" timescale=%d duration=%d nextTrackId=%d", ts, dur, next)
	case bmff.TypeTkhd:
		id, dur, w, h := r.ReadTkhd()
		return fmt.Sprintf(" trackId=%d duration=%d size=%dx%d", id, dur, w>>16, h>>16)
	case bmff.TypeMdhd:
		ts, dur, lang := r.ReadMdhd()
		return fmt.Sprintf(" timescale=%d duration=%d lang=%d", ts, dur, lang)
	case bmff.TypeHdlr:
		t := r.ReadHdlr()
		return fmt.Sprintf(" type=%s name=%q", string(t[:]), r.ReadHdlrName())
	case bmff.TypeStsz:
		it := bmff.NewStszIter(r.Data())
		return fmt.Sprintf(" entries=%d", it.Count())
	case bmff.TypeStco:
		it := bmff.NewUint32Iter(r.Data())
		return fmt.Sprintf(" entries=%d", it.Count())
	case bmff.TypeCo64:
		it := bmff.NewCo64Iter(r.Data())
		return fmt.Sprintf(" entries=%d", it.Count())
	case bmff.TypeStts:
		it := bmff.NewSttsIter(r.Data())
		return fmt.Sprintf(" entries=%d", it.Count())
	case bmff.TypeCtts:
		it := bmff.NewCttsIter(r.Data(), r.Version())
		return fmt.Sprintf(" entries=%d", it.Count())
	case bmff.TypeStsc:
		it := bmff.NewStscIter(r.Data())
		return fmt.Sprintf(" entries=%d", it.Count())
	case bmff.TypeElst:
		it := bmff.NewElstIter(r.Data(), r.Version())
		return fmt.Sprintf(" entries=%d", it.Count())
	case bmff.TypeMfhd:
		return fmt.Sprintf(" seq=%d", r.ReadMfhd())
	case bmff.TypeTfhd:
		return fmt.Sprintf(" trackId=%d", r.ReadTfhd())
	case bmff.TypeTfdt:
		return fmt.Sprintf(" baseMediaDecodeTime=%d", r.ReadTfdt())
	case bmff.TypeMdat:
		return fmt.Sprintf(" dataLen=%d", len(r.Data()))
	}
	return ""
}
