package mux

import (
	"encoding/binary"
	"errors"

	"github.com/gobmff/bmff"
)

var be = binary.BigEndian

// ErrNoMoov is returned when Finalize cannot find a moov box to
// relocate.
var ErrNoMoov = errors.New("mux: no moov box")

// ErrNoMdat is returned when Finalize cannot find an mdat box.
var ErrNoMdat = errors.New("mux: no mdat box")

// Finalize rewrites an in-memory ISOBMFF byte stream so that moov
// precedes mdat ("fast start"/progressive-download layout), patching
// every stco/co64 chunk offset inside moov by moov's size (the byte
// distance mdat moves). If moov already precedes the first mdat, data
// is returned unchanged.
//
// This is the two-pass shape tetsuo-mp4's remux.Writer.WriteTo/
// WriteToFrom use (resolve positions first, then stream the rewritten
// result), adapted from fragment copying to a single whole-file
// relocation: pass 1 walks top-level boxes to find moov/mdat and their
// extents, pass 2 reassembles the buffer with moov patched and moved.
func Finalize(data []byte) ([]byte, error) {
	type span struct {
		typ        bmff.BoxType
		start, end int
	}
	var spans []span

	r := bmff.NewReader(data)
	for r.Next() {
		spans = append(spans, span{typ: r.Type(), start: r.Offset(), end: r.Offset() + int(r.Size())})
	}

	moovIdx, mdatIdx := -1, -1
	for i, s := range spans {
		if s.typ == bmff.TypeMoov && moovIdx < 0 {
			moovIdx = i
		}
		if s.typ == bmff.TypeMdat && mdatIdx < 0 {
			mdatIdx = i
		}
	}
	if moovIdx < 0 {
		return nil, ErrNoMoov
	}
	if mdatIdx < 0 {
		return nil, ErrNoMdat
	}
	if moovIdx < mdatIdx {
		return data, nil
	}

	moovSpan := spans[moovIdx]
	mdatSpan := spans[mdatIdx]

	moovBuf := make([]byte, moovSpan.end-moovSpan.start)
	copy(moovBuf, data[moovSpan.start:moovSpan.end])

	delta := int64(len(moovBuf))
	if err := PatchChunkOffsets(moovBuf, delta); err != nil {
		return nil, err
	}

	// mdatSpan.start < moovSpan.start holds since moov comes after
	// mdat; reassemble as: [0,mdatStart) + moov + [mdatStart,moovStart) + [moovEnd,end)
	out := make([]byte, 0, len(data))
	out = append(out, data[:mdatSpan.start]...)
	out = append(out, moovBuf...)
	out = append(out, data[mdatSpan.start:moovSpan.start]...)
	out = append(out, data[moovSpan.end:]...)

	return out, nil
}

// PatchChunkOffsets walks moovBuf's box tree looking for stco/co64
// boxes nested under any stbl and adds delta to every chunk offset
// entry, in place. Used by Finalize after relocating moov, and
// reusable directly by a caller building a custom progressive-download
// layout outside Finalize's default ordering.
func PatchChunkOffsets(moovBuf []byte, delta int64) error {
	return walkBoxes(bmff.NewReader(moovBuf), moovBuf, delta)
}

func walkBoxes(r bmff.Reader, buf []byte, delta int64) error {
	for r.Next() {
		t := r.Type()
		switch t {
		case bmff.TypeStco:
			patchStco(buf, r.DataOffset(), r.Data(), delta)
		case bmff.TypeCo64:
			patchCo64(buf, r.DataOffset(), r.Data(), delta)
		}
		if bmff.IsContainerBox(t) {
			r.Enter()
			if err := walkBoxes(r, buf, delta); err != nil {
				return err
			}
			r.Exit()
		}
	}
	return nil
}

func patchStco(buf []byte, bodyStart int, body []byte, delta int64) {
	it := bmff.NewUint32Iter(body)
	count := int(it.Count())
	for i := 0; i < count; i++ {
		off := bodyStart + 4 + i*4
		v := be.Uint32(buf[off:])
		be.PutUint32(buf[off:], uint32(int64(v)+delta))
	}
}

func patchCo64(buf []byte, bodyStart int, body []byte, delta int64) {
	it := bmff.NewCo64Iter(body)
	count := int(it.Count())
	for i := 0; i < count; i++ {
		off := bodyStart + 4 + i*8
		v := be.Uint64(buf[off:])
		be.PutUint64(buf[off:], uint64(int64(v)+delta))
	}
}

// SynthesizeEditLists rewrites data's moov so that every trak lacking an
// edts/elst gets the default single-segment edit list a muxer that
// performs no trimming still owes a reader (ISO/IEC 14496-12 §8.6.6):
// one entry spanning the track's whole duration (as already recorded in
// tkhd, in movie-timescale ticks), starting at media time zero, played
// at normal rate. A track that already carries its own edit list (an
// importer that trimmed or shifted it) is left untouched.
//
// This is the same two-pass shape as Finalize: walk the existing tree
// to find insertion points and current sizes, then rebuild the buffer
// with the new boxes spliced in and every affected size field patched.
func SynthesizeEditLists(data []byte) ([]byte, error) {
	type trakInfo struct {
		start        int
		mdiaInsertAt int
		duration     uint64
	}

	moovStart := -1
	var traks []trakInfo

	r := bmff.NewReader(data)
	for r.Next() {
		if r.Type() != bmff.TypeMoov {
			continue
		}
		moovStart = r.Offset()

		r.Enter()
		for r.Next() {
			if r.Type() != bmff.TypeTrak {
				continue
			}
			info := trakInfo{start: r.Offset()}
			hasEdts := false

			r.Enter()
			for r.Next() {
				switch r.Type() {
				case bmff.TypeTkhd:
					_, info.duration, _, _ = r.ReadTkhd()
				case bmff.TypeEdts:
					hasEdts = true
				case bmff.TypeMdia:
					if info.mdiaInsertAt == 0 {
						info.mdiaInsertAt = r.Offset()
					}
				}
			}
			r.Exit()

			if !hasEdts && info.mdiaInsertAt > 0 {
				traks = append(traks, info)
			}
		}
		r.Exit()
		break
	}

	if moovStart < 0 || len(traks) == 0 {
		return data, nil
	}

	out := make([]byte, 0, len(data)+len(traks)*44)
	pos := 0
	shift := 0
	trakPatches := make([]int, len(traks))
	for i, tk := range traks {
		out = append(out, data[pos:tk.mdiaInsertAt]...)
		trakPatches[i] = tk.start + shift

		edts := buildDefaultEdts(tk.duration)
		out = append(out, edts...)
		shift += len(edts)
		pos = tk.mdiaInsertAt
	}
	out = append(out, data[pos:]...)

	for i, off := range trakPatches {
		inserted := uint32(len(buildDefaultEdts(traks[i].duration)))
		size := be.Uint32(out[off:]) + inserted
		be.PutUint32(out[off:], size)
	}
	be.PutUint32(out[moovStart:], be.Uint32(out[moovStart:])+uint32(shift))

	return out, nil
}

// buildDefaultEdts builds a complete edts box containing one elst entry
// covering [0, duration) at normal playback rate.
func buildDefaultEdts(duration uint64) []byte {
	w := bmff.NewWriter(nil)
	w.StartBox(bmff.TypeEdts)
	w.WriteElst([]bmff.ElstEntry{{SegmentDuration: duration, MediaTime: 0, MediaRateInt: 1}})
	w.EndBox()
	return w.Bytes()
}
