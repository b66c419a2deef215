package mux

import (
	"bytes"
	"testing"

	"github.com/gobmff/bmff"
	"github.com/gobmff/bmff/timeline"
)

func TestMuxInterleavesTracksAndBuildsTables(t *testing.T) {
	video := NewTrack(1, 90000)
	audio := NewTrack(2, 48000)

	videoSamples := []Sample{
		{Data: []byte{1, 1, 1}, Duration: 3000, Sync: true},
		{Data: []byte{2, 2}, Duration: 3000},
	}
	audioSamples := []Sample{
		{Data: []byte{9, 9, 9, 9}, Duration: 1024, Sync: true},
		{Data: []byte{8, 8}, Duration: 1024, Sync: true},
	}

	w := bmff.NewWriter(nil)
	err := Mux(&w,
		[]*Track{video, audio},
		[]SampleSource{NewSliceSource(videoSamples), NewSliceSource(audioSamples)},
		0, 0,
	)
	if err != nil {
		t.Fatalf("Mux: %v", err)
	}

	if video.SampleCount() != 2 {
		t.Fatalf("video SampleCount() = %d, want 2", video.SampleCount())
	}
	if audio.SampleCount() != 2 {
		t.Fatalf("audio SampleCount() = %d, want 2", audio.SampleCount())
	}
	if video.Duration() != 6000 {
		t.Errorf("video Duration() = %d, want 6000", video.Duration())
	}

	wantBytes := 3 + 2 + 4 + 2
	if got := w.Len(); got != wantBytes {
		t.Errorf("wrote %d bytes, want %d", got, wantBytes)
	}
}

func TestMuxStcoOffsetsAreAbsolute(t *testing.T) {
	w := bmff.NewWriter(nil)
	w.WriteFtyp([4]byte{'i', 's', 'o', 'm'}, 0, nil)
	mdatStart := w.Len() + 8 // StartBox writes its 8-byte header immediately
	w.StartBox(bmff.TypeMdat)

	track := NewTrack(1, 1000)
	src := NewSliceSource([]Sample{
		{Data: []byte{1, 2, 3}, Duration: 1000, Sync: true},
	})
	if err := Mux(&w, []*Track{track}, []SampleSource{src}, 0, 0); err != nil {
		t.Fatalf("Mux: %v", err)
	}
	w.EndBox()

	if len(track.stco) != 1 {
		t.Fatalf("got %d chunks, want 1", len(track.stco))
	}
	if track.stco[0] != uint32(mdatStart) {
		t.Errorf("stco[0] = %d, want %d (mdat payload base, not 0)", track.stco[0], mdatStart)
	}
}

func TestMuxInterleavedTracksGetNonOverlappingAbsoluteOffsets(t *testing.T) {
	video := NewTrack(1, 90000)
	audio := NewTrack(2, 48000)

	videoSamples := []Sample{
		{Data: []byte{1, 1, 1}, Duration: 3000, Sync: true},
		{Data: []byte{2, 2}, Duration: 3000, Sync: true},
	}
	audioSamples := []Sample{
		{Data: []byte{9, 9, 9, 9}, Duration: 1024, Sync: true},
		{Data: []byte{8, 8}, Duration: 1024, Sync: true},
	}

	w := bmff.NewWriter(nil)
	w.WriteFtyp([4]byte{'i', 's', 'o', 'm'}, 0, nil)
	w.StartBox(bmff.TypeMdat)
	// Force a new chunk per sample so both tracks record a chunk offset
	// for every sample, the easiest way to see every recorded offset.
	err := Mux(&w,
		[]*Track{video, audio},
		[]SampleSource{NewSliceSource(videoSamples), NewSliceSource(audioSamples)},
		1, 0,
	)
	if err != nil {
		t.Fatalf("Mux: %v", err)
	}
	w.EndBox()

	data := w.Bytes()
	check := func(track *Track, samples []Sample) {
		for i, off := range track.stco {
			size := samples[i].Data
			if int(off)+len(size) > len(data) {
				t.Fatalf("stco[%d] = %d extends past written buffer of length %d", i, off, len(data))
			}
			if !bytes.Equal(data[off:int(off)+len(size)], size) {
				t.Errorf("stco[%d] = %d does not point at its own sample bytes %v, got %v", i, off, size, data[off:int(off)+len(size)])
			}
		}
	}
	check(video, videoSamples)
	check(audio, audioSamples)
}

func TestMuxNoTracks(t *testing.T) {
	w := bmff.NewWriter(nil)
	if err := Mux(&w, nil, nil, 0, 0); err != ErrNoTracks {
		t.Fatalf("Mux with no tracks: got %v, want ErrNoTracks", err)
	}
}

func TestWriteStblProducesValidBoxes(t *testing.T) {
	track := NewTrack(1, 1000)
	w := bmff.NewWriter(nil)
	src := NewSliceSource([]Sample{
		{Data: []byte{1, 2, 3}, Duration: 1000, Sync: true},
		{Data: []byte{4, 5}, Duration: 1000},
	})
	if err := Mux(&w, []*Track{track}, []SampleSource{src}, 0, 0); err != nil {
		t.Fatalf("Mux: %v", err)
	}

	stblW := bmff.NewWriter(nil)
	WriteStbl(&stblW, track)

	r := bmff.NewReader(stblW.Bytes())
	var seen []bmff.BoxType
	for r.Next() {
		seen = append(seen, r.Type())
	}
	want := []bmff.BoxType{bmff.TypeStsz, bmff.TypeStts, bmff.TypeStsc, bmff.TypeStco, bmff.TypeStss}
	if len(seen) != len(want) {
		t.Fatalf("got boxes %v, want %v", seen, want)
	}
	for i, bt := range want {
		if seen[i] != bt {
			t.Errorf("box %d = %s, want %s", i, seen[i], bt)
		}
	}
}

func TestNextFragmentBoundaryClosesOnSyncSampleAfterDuration(t *testing.T) {
	samples := []timeline.Sample{
		{DTS: 0, Duration: 1000, Sync: true},
		{DTS: 1000, Duration: 1000, Sync: false},
		{DTS: 2000, Duration: 1000, Sync: true},
		{DTS: 3000, Duration: 1000, Sync: false},
	}

	frag := NextFragmentBoundary(samples, 0, 1500, 0)
	if len(frag.Samples) != 2 {
		t.Fatalf("got %d samples in fragment, want 2 (close at next sync sample past duration)", len(frag.Samples))
	}
	if frag.BaseDecodeTime != 0 {
		t.Errorf("BaseDecodeTime = %d, want 0", frag.BaseDecodeTime)
	}
}

func TestWriteMoofPatchesTrunDataOffset(t *testing.T) {
	samples := []timeline.Sample{
		{Size: 100, Duration: 1000, Sync: true},
	}
	frag := Fragment{Samples: samples, BaseDecodeTime: 0}

	w := bmff.NewWriter(nil)
	WriteMoof(&w, 1, 1, frag)

	buf := w.Bytes()
	r := bmff.NewReader(buf)
	if !r.Next() || r.Type() != bmff.TypeMoof {
		t.Fatal("expected moof box")
	}
	moofSize := int(r.Size())
	if moofSize != len(buf) {
		t.Fatalf("moof size %d does not cover written buffer of length %d", moofSize, len(buf))
	}

	var dataOffset int32
	found := false
	r.Enter()
	for r.Next() {
		if r.Type() != bmff.TypeTraf {
			continue
		}
		r.Enter()
		for r.Next() {
			if r.Type() == bmff.TypeTrun {
				it := bmff.NewTrunIter(r.Data(), r.Flags())
				dataOffset, found = it.DataOffset(), true
			}
		}
		r.Exit()
	}
	if !found {
		t.Fatal("expected a trun box inside moof/traf")
	}
	if want := int32(moofSize + 8); dataOffset != want {
		t.Errorf("trun data_offset = %d, want %d (moof size + mdat header)", dataOffset, want)
	}
}
