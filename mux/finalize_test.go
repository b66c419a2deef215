package mux

import (
	"testing"

	"github.com/gobmff/bmff"
)

func buildMdatFirstFile(t *testing.T) []byte {
	t.Helper()

	w := bmff.NewWriter(nil)
	w.WriteFtyp([4]byte{'i', 's', 'o', 'm'}, 0, nil)

	mdatStart := w.Len() + 8
	w.StartBox(bmff.TypeMdat)
	w.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	w.EndBox()

	w.StartBox(bmff.TypeMoov)
	w.StartBox(bmff.TypeTrak)
	w.StartBox(bmff.TypeMdia)
	w.StartBox(bmff.TypeMinf)
	w.StartBox(bmff.TypeStbl)
	w.WriteStco([]uint32{uint32(mdatStart), uint32(mdatStart + 4)})
	w.EndBox() // stbl
	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak
	w.EndBox() // moov

	return w.Bytes()
}

func firstStco(t *testing.T, data []byte) []uint32 {
	t.Helper()
	r := bmff.NewReader(data)
	for r.Next() {
		if r.Type() == bmff.TypeMoov {
			r.Enter()
			return findStco(t, r)
		}
		if bmff.IsContainerBox(r.Type()) {
			r.Enter()
			if got := findStco(t, r); got != nil {
				return got
			}
			r.Exit()
		}
	}
	t.Fatal("stco not found")
	return nil
}

func findStco(t *testing.T, r bmff.Reader) []uint32 {
	t.Helper()
	for r.Next() {
		if r.Type() == bmff.TypeStco {
			it := bmff.NewUint32Iter(r.Data())
			var out []uint32
			for {
				v, ok := it.Next()
				if !ok {
					break
				}
				out = append(out, v)
			}
			return out
		}
		if bmff.IsContainerBox(r.Type()) {
			r.Enter()
			if got := findStco(t, r); got != nil {
				return got
			}
			r.Exit()
		}
	}
	return nil
}

func TestFinalizeMovesMoovBeforeMdatAndPatchesOffsets(t *testing.T) {
	data := buildMdatFirstFile(t)

	before := firstStco(t, data)

	out, err := Finalize(data)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	r := bmff.NewReader(out)
	var order []bmff.BoxType
	var moovSize uint32
	for r.Next() {
		order = append(order, r.Type())
		if r.Type() == bmff.TypeMoov {
			moovSize = uint32(r.Size())
		}
	}
	if len(order) != 3 || order[0] != bmff.TypeFtyp || order[1] != bmff.TypeMoov || order[2] != bmff.TypeMdat {
		t.Fatalf("box order = %v, want [ftyp moov mdat]", order)
	}

	after := firstStco(t, out)
	if len(after) != len(before) {
		t.Fatalf("got %d patched offsets, want %d", len(after), len(before))
	}

	// mdat now sits after moov, so every chunk offset grows by moov's size.
	delta := moovSize
	for i := range before {
		if after[i] != before[i]+delta {
			t.Errorf("offset %d = %d, want %d", i, after[i], before[i]+delta)
		}
	}
}

func TestFinalizeNoOpWhenMoovAlreadyFirst(t *testing.T) {
	w := bmff.NewWriter(nil)
	w.WriteFtyp([4]byte{'i', 's', 'o', 'm'}, 0, nil)
	w.StartBox(bmff.TypeMoov)
	w.EndBox()
	w.StartBox(bmff.TypeMdat)
	w.Write([]byte{1, 2, 3})
	w.EndBox()
	data := w.Bytes()

	out, err := Finalize(data)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(out) != len(data) {
		t.Fatalf("Finalize changed length of an already-fast-start file: got %d, want %d", len(out), len(data))
	}
}

func TestFinalizeNoMoov(t *testing.T) {
	w := bmff.NewWriter(nil)
	w.WriteFtyp([4]byte{'i', 's', 'o', 'm'}, 0, nil)
	w.StartBox(bmff.TypeMdat)
	w.Write([]byte{1, 2, 3})
	w.EndBox()

	if _, err := Finalize(w.Bytes()); err != ErrNoMoov {
		t.Fatalf("Finalize with no moov: got %v, want ErrNoMoov", err)
	}
}

func buildSingleTrakMoov(t *testing.T, trackDuration uint64, withEdts bool) []byte {
	t.Helper()

	w := bmff.NewWriter(make([]byte, 0, 512))
	w.StartBox(bmff.TypeMoov)
	w.StartBox(bmff.TypeTrak)
	w.WriteTkhd(0x7, 1, trackDuration, 0, 0)
	if withEdts {
		w.StartBox(bmff.TypeEdts)
		w.WriteElst([]bmff.ElstEntry{{SegmentDuration: trackDuration, MediaTime: 0, MediaRateInt: 1}})
		w.EndBox()
	}
	w.StartBox(bmff.TypeMdia)
	w.WriteMdhd(1000, trackDuration, 0)
	w.EndBox() // mdia
	w.EndBox() // trak
	w.EndBox() // moov

	return w.Bytes()
}

func findEdts(data []byte) (found bool, entries []bmff.ElstEntry) {
	r := bmff.NewReader(data)
	for r.Next() {
		if r.Type() != bmff.TypeMoov {
			continue
		}
		r.Enter()
		for r.Next() {
			if r.Type() != bmff.TypeTrak {
				continue
			}
			r.Enter()
			for r.Next() {
				if r.Type() != bmff.TypeEdts {
					continue
				}
				found = true
				r.Enter()
				for r.Next() {
					if r.Type() != bmff.TypeElst {
						continue
					}
					it := bmff.NewElstIter(r.Data(), r.Version())
					for {
						e, ok := it.Next()
						if !ok {
							break
						}
						entries = append(entries, e)
					}
				}
				r.Exit()
			}
			r.Exit()
		}
		r.Exit()
	}
	return found, entries
}

func TestSynthesizeEditListsAddsDefaultElst(t *testing.T) {
	data := buildSingleTrakMoov(t, 250, false)

	out, err := SynthesizeEditLists(data)
	if err != nil {
		t.Fatalf("SynthesizeEditLists: %v", err)
	}

	found, entries := findEdts(out)
	if !found {
		t.Fatal("expected trak to gain an edts box")
	}
	if len(entries) != 1 {
		t.Fatalf("got %d elst entries, want 1", len(entries))
	}
	if entries[0].SegmentDuration != 250 || entries[0].MediaTime != 0 || entries[0].MediaRateInt != 1 {
		t.Errorf("elst entry = %+v, want {SegmentDuration:250 MediaTime:0 MediaRateInt:1}", entries[0])
	}

	r := bmff.NewReader(out)
	if !r.Next() || r.Type() != bmff.TypeMoov {
		t.Fatal("expected a moov box")
	}
	if int(r.Size()) != len(out) {
		t.Errorf("moov size %d does not match rebuilt buffer length %d", r.Size(), len(out))
	}
}

func TestSynthesizeEditListsLeavesExistingEdtsAlone(t *testing.T) {
	data := buildSingleTrakMoov(t, 250, true)

	out, err := SynthesizeEditLists(data)
	if err != nil {
		t.Fatalf("SynthesizeEditLists: %v", err)
	}
	if len(out) != len(data) {
		t.Fatalf("SynthesizeEditLists changed length of a trak that already has an edts: got %d, want %d", len(out), len(data))
	}
}
