package timeline

import (
	"testing"

	"github.com/gobmff/bmff"
)

func boxBody(t *testing.T, build func(w *bmff.Writer)) []byte {
	t.Helper()
	w := bmff.NewWriter(nil)
	build(&w)
	r := bmff.NewReader(w.Bytes())
	if !r.Next() {
		t.Fatal("expected one box")
	}
	return append([]byte(nil), r.Data()...)
}

func TestBuildSingleChunkTrack(t *testing.T) {
	stsz := boxBody(t, func(w *bmff.Writer) { w.WriteStsz(0, []uint32{100, 200, 150}) })
	stts := boxBody(t, func(w *bmff.Writer) { w.WriteStts([]bmff.SttsEntry{{Count: 3, Duration: 1000}}) })
	stsc := boxBody(t, func(w *bmff.Writer) {
		w.WriteStsc([]bmff.StscEntry{{FirstChunk: 1, SamplesPerChunk: 3, SampleDescriptionId: 1}})
	})
	stco := boxBody(t, func(w *bmff.Writer) { w.WriteStco([]uint32{1000}) })
	stss := boxBody(t, func(w *bmff.Writer) { w.WriteStss([]uint32{1}) })

	samples, err := Build(Tables{
		Stsz: stsz,
		Stts: stts,
		Stsc: stsc,
		Stco: stco,
		Stss: stss,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}

	want := []Sample{
		{Offset: 1000, Size: 100, Duration: 1000, DTS: 0, Sync: true},
		{Offset: 1100, Size: 200, Duration: 1000, DTS: 1000, Sync: false},
		{Offset: 1300, Size: 150, Duration: 1000, DTS: 2000, Sync: false},
	}
	for i, s := range samples {
		if s != want[i] {
			t.Errorf("sample %d = %+v, want %+v", i, s, want[i])
		}
	}
}

func TestBuildMissingTable(t *testing.T) {
	_, err := Build(Tables{})
	if err != ErrMissingTable {
		t.Fatalf("Build with no tables: got %v, want ErrMissingTable", err)
	}
}

func TestApplyEditListDropsLeadingSamples(t *testing.T) {
	samples := []Sample{
		{DTS: 0, Duration: 1000},
		{DTS: 1000, Duration: 1000},
		{DTS: 2000, Duration: 1000},
	}
	edits := []bmff.ElstEntry{{SegmentDuration: 2000, MediaTime: 1000, MediaRateInt: 1}}

	out := ApplyEditList(samples, edits, 1000)
	if len(out) != 2 {
		t.Fatalf("got %d samples after edit, want 2", len(out))
	}
	if out[0].DTS != 0 || out[1].DTS != 1000 {
		t.Fatalf("unexpected DTS values after shift: %+v", out)
	}
}

func TestApplyEditListNoOp(t *testing.T) {
	samples := []Sample{{DTS: 0}, {DTS: 1000}}
	out := ApplyEditList(samples, nil, 1000)
	if len(out) != 2 {
		t.Fatalf("got %d samples, want 2 (no edits means no-op)", len(out))
	}
}

func TestCompositionToDecodeShiftZeroWhenNeverAhead(t *testing.T) {
	samples := []Sample{
		{DTS: 0, PresentationOffset: 0},
		{DTS: 1000, PresentationOffset: 200},
		{DTS: 2000, PresentationOffset: 100},
	}
	if got := CompositionToDecodeShift(samples); got != 0 {
		t.Errorf("CompositionToDecodeShift = %d, want 0", got)
	}
}

func TestCompositionToDecodeShiftReordered(t *testing.T) {
	samples := []Sample{
		{DTS: 0, PresentationOffset: 300},
		{DTS: 1000, PresentationOffset: -400},
		{DTS: 2000, PresentationOffset: -150},
	}
	// CTS of sample 1 is 1000-400=600, behind its own DTS by 400; that's
	// the largest DTS-CTS gap across the track.
	if got := CompositionToDecodeShift(samples); got != 400 {
		t.Errorf("CompositionToDecodeShift = %d, want 400", got)
	}
}
