package bmff

import "testing"

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter(nil)
	w.WriteFtyp([4]byte{'i', 's', 'o', 'm'}, 512, [][4]byte{{'i', 's', 'o', '2'}, {'m', 'p', '4', '1'}})
	w.StartBox(TypeMoov)
	w.WriteMvhd(1000, 5000, 2)
	w.WriteTkhd(0x7, 1, 5000, 640<<16, 480<<16)
	w.EndBox()

	buf := w.Bytes()

	r := NewReader(buf)
	if !r.Next() {
		t.Fatal("expected ftyp box")
	}
	if r.Type() != TypeFtyp {
		t.Fatalf("got box type %s, want ftyp", r.Type())
	}
	f := ReadFtyp(r.Data())
	if f.MajorBrand != [4]byte{'i', 's', 'o', 'm'} || f.MinorVersion != 512 {
		t.Fatalf("unexpected ftyp contents: %+v", f)
	}
	if len(f.Compatible) != 2 {
		t.Fatalf("got %d compatible brands, want 2", len(f.Compatible))
	}

	if !r.Next() {
		t.Fatal("expected moov box")
	}
	if r.Type() != TypeMoov {
		t.Fatalf("got box type %s, want moov", r.Type())
	}

	r.Enter()
	if !r.Next() {
		t.Fatal("expected mvhd child")
	}
	ts, dur, next := r.ReadMvhd()
	if ts != 1000 || dur != 5000 || next != 2 {
		t.Fatalf("unexpected mvhd fields: ts=%d dur=%d next=%d", ts, dur, next)
	}

	if !r.Next() {
		t.Fatal("expected tkhd child")
	}
	id, tdur, w16, h16 := r.ReadTkhd()
	if id != 1 || tdur != 5000 || w16>>16 != 640 || h16>>16 != 480 {
		t.Fatalf("unexpected tkhd fields: id=%d dur=%d w=%d h=%d", id, tdur, w16>>16, h16>>16)
	}
	r.Exit()

	if r.Next() {
		t.Fatal("expected no more top-level boxes")
	}
}

func TestWriterEndBoxPatchesSize(t *testing.T) {
	w := NewWriter(nil)
	w.StartBox(TypeMoov)
	w.WriteMvhd(1000, 0, 1)
	w.EndBox()

	buf := w.Bytes()
	r := NewReader(buf)
	if !r.Next() {
		t.Fatal("expected moov box")
	}
	if int(r.Size()) != len(buf) {
		t.Fatalf("patched moov size %d does not cover buffer of length %d", r.Size(), len(buf))
	}
}

func TestIsContainerBox(t *testing.T) {
	cases := []struct {
		bt   BoxType
		want bool
	}{
		{TypeMoov, true},
		{TypeTrak, true},
		{TypeStbl, true},
		{TypeMdat, false},
		{TypeFtyp, false},
	}
	for _, c := range cases {
		if got := IsContainerBox(c.bt); got != c.want {
			t.Errorf("IsContainerBox(%s) = %v, want %v", c.bt, got, c.want)
		}
	}
}
