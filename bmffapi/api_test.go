package bmffapi_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/gobmff/bmff"
	"github.com/gobmff/bmff/bmffapi"
	"github.com/gobmff/bmff/codec"
)

// buildMinimalFile writes a tiny ftyp+moov+mdat stream with a single
// AAC audio track, three samples, one chunk, no edit list.
func buildMinimalFile(t *testing.T) []byte {
	t.Helper()

	cfg := codec.MPEG4AudioConfig{ObjectType: 2, SampleRate: 48000, ChannelCount: 2}
	asc, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	esds := codec.EsdsBox{ESID: 1, Config: asc}
	esdsBody := make([]byte, esds.Size())
	pos := 0
	esds.Marshal(esdsBody, &pos)

	w := bmff.NewWriter(nil)
	w.WriteFtyp([4]byte{'i', 's', 'o', 'm'}, 0, nil)

	mdatStart := w.Len() + 8
	samples := [][]byte{{1, 2, 3, 4}, {5, 6}, {7, 8, 9}}
	w.StartBox(bmff.TypeMdat)
	for _, s := range samples {
		w.Write(s)
	}
	w.EndBox()

	w.StartBox(bmff.TypeMoov)
	w.WriteMvhd(1000, 3000, 2)

	w.StartBox(bmff.TypeTrak)
	w.WriteTkhd(0x7, 1, 3000, 0, 0)
	w.StartBox(bmff.TypeMdia)
	w.WriteMdhd(48000, 3000, 0)
	w.WriteHdlr([4]byte{'s', 'o', 'u', 'n'}, "SoundHandler")
	w.StartBox(bmff.TypeMinf)
	w.WriteSmhd()
	w.StartBox(bmff.TypeDinf)
	w.WriteDref()
	w.EndBox()
	w.StartBox(bmff.TypeStbl)
	w.StartFullBox(bmff.TypeStsd, 0, 0)
	var entryCount [4]byte
	binary.BigEndian.PutUint32(entryCount[:], 1)
	w.Write(entryCount[:])
	w.StartBox(bmff.TypeMp4a)
	w.WriteAudioSampleEntry(1, 2, 16, 48000<<16)
	w.StartFullBox(bmff.TypeEsds, 0, 0)
	w.Write(esdsBody)
	w.EndBox()
	w.EndBox() // mp4a
	w.EndBox() // stsd
	w.WriteStsz(0, []uint32{4, 2, 3})
	w.WriteStts([]bmff.SttsEntry{{Count: 3, Duration: 1000}})
	w.WriteStsc([]bmff.StscEntry{{FirstChunk: 1, SamplesPerChunk: 3, SampleDescriptionId: 1}})
	w.WriteStco([]uint32{uint32(mdatStart)})
	w.EndBox() // stbl
	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak

	w.EndBox() // moov

	return w.Bytes()
}

func TestOpenAndProbeMinimalFile(t *testing.T) {
	data := buildMinimalFile(t)

	f, err := bmffapi.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if f.MajorBrand != ([4]byte{'i', 's', 'o', 'm'}) {
		t.Errorf("MajorBrand = %q, want isom", f.MajorBrand)
	}
	if len(f.Tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(f.Tracks))
	}

	tr := f.Tracks[0]
	if tr.TrackID != 1 {
		t.Errorf("TrackID = %d, want 1", tr.TrackID)
	}
	if tr.Codec != "mp4a.40" {
		t.Errorf("Codec = %q, want mp4a.40", tr.Codec)
	}
	if len(tr.Samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(tr.Samples))
	}
	if tr.Samples[0].Size != 4 || tr.Samples[1].Size != 2 || tr.Samples[2].Size != 3 {
		t.Errorf("unexpected sample sizes: %+v", tr.Samples)
	}

	result := bmffapi.Probe(f)
	if result.MajorBrand != f.MajorBrand {
		t.Errorf("Probe MajorBrand mismatch")
	}
	if len(result.Tracks) != 1 {
		t.Fatalf("got %d probed tracks, want 1", len(result.Tracks))
	}
	if result.Tracks[0].Samples != 3 {
		t.Errorf("probed Samples = %d, want 3", result.Tracks[0].Samples)
	}
}

type sliceSampleSource struct {
	info    bmffapi.SampleSourceInfo
	samples []bmffapi.Sample
	pos     int
}

func (s *sliceSampleSource) Info() bmffapi.SampleSourceInfo { return s.info }

func (s *sliceSampleSource) NextSample() (bmffapi.Sample, error) {
	if s.pos >= len(s.samples) {
		return bmffapi.Sample{}, io.EOF
	}
	sample := s.samples[s.pos]
	s.pos++
	return sample, nil
}

func TestMuxSamplesProducesReadableFile(t *testing.T) {
	src := &sliceSampleSource{
		info: bmffapi.SampleSourceInfo{
			Codec:       "mp4a.40.2",
			Timescale:   48000,
			HandlerType: [4]byte{'s', 'o', 'u', 'n'},
		},
		samples: []bmffapi.Sample{
			{Data: []byte{1, 2, 3}, Duration: 1024, Sync: true},
			{Data: []byte{4, 5}, Duration: 1024, Sync: true},
		},
	}

	var buf bytes.Buffer
	err := bmffapi.MuxSamples(&buf, []bmffapi.SampleSource{src}, bmffapi.MuxOptions{
		MajorBrand: [4]byte{'i', 's', 'o', 'm'},
	})
	if err != nil {
		t.Fatalf("MuxSamples: %v", err)
	}

	f, err := bmffapi.Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Open muxed output: %v", err)
	}
	if len(f.Tracks) != 1 {
		t.Fatalf("got %d tracks in muxed output, want 1", len(f.Tracks))
	}
	if len(f.Tracks[0].Samples) != 2 {
		t.Fatalf("got %d samples in muxed output, want 2", len(f.Tracks[0].Samples))
	}
}

func TestMuxSamplesNoSources(t *testing.T) {
	var buf bytes.Buffer
	err := bmffapi.MuxSamples(&buf, nil, bmffapi.MuxOptions{})
	if err != bmffapi.ErrNoTracks {
		t.Fatalf("MuxSamples with no sources: got %v, want ErrNoTracks", err)
	}
}

func TestMuxSamplesAddsDefaultEditList(t *testing.T) {
	src := &sliceSampleSource{
		info: bmffapi.SampleSourceInfo{Timescale: 1000, HandlerType: [4]byte{'s', 'o', 'u', 'n'}},
		samples: []bmffapi.Sample{
			{Data: []byte{1, 2}, Duration: 100, Sync: true},
			{Data: []byte{3, 4}, Duration: 150, Sync: true},
		},
	}

	var buf bytes.Buffer
	if err := bmffapi.MuxSamples(&buf, []bmffapi.SampleSource{src}, bmffapi.MuxOptions{}); err != nil {
		t.Fatalf("MuxSamples: %v", err)
	}

	found := false
	r := bmff.NewReader(buf.Bytes())
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
				if r.Type() == bmff.TypeEdts {
					found = true
				}
			}
			r.Exit()
		}
		r.Exit()
	}
	if !found {
		t.Fatal("muxed output's trak has no edts box")
	}
}

func TestMuxFragmentedProducesMoofPerFragment(t *testing.T) {
	src := &sliceSampleSource{
		info: bmffapi.SampleSourceInfo{Timescale: 1000, HandlerType: [4]byte{'s', 'o', 'u', 'n'}},
		samples: []bmffapi.Sample{
			{Data: []byte{1, 2}, Duration: 1000, Sync: true},
			{Data: []byte{3, 4}, Duration: 1000, Sync: true},
			{Data: []byte{5, 6}, Duration: 1000, Sync: true},
		},
	}

	var buf bytes.Buffer
	err := bmffapi.MuxSamples(&buf, []bmffapi.SampleSource{src}, bmffapi.MuxOptions{
		Fragmented:    true,
		ChunkDuration: 1500, // force a boundary partway through
	})
	if err != nil {
		t.Fatalf("MuxSamples fragmented: %v", err)
	}

	var types []bmff.BoxType
	r := bmff.NewReader(buf.Bytes())
	for r.Next() {
		types = append(types, r.Type())
	}
	if len(types) < 2 || types[0] != bmff.TypeFtyp || types[1] != bmff.TypeMoov {
		t.Fatalf("top-level boxes = %v, want [ftyp moov moof mdat ...]", types)
	}
	var moofCount, mdatCount int
	for _, bt := range types {
		if bt == bmff.TypeMoof {
			moofCount++
		}
		if bt == bmff.TypeMdat {
			mdatCount++
		}
	}
	if moofCount == 0 {
		t.Error("fragmented output has no moof boxes")
	}
	if moofCount != mdatCount {
		t.Errorf("got %d moof and %d mdat boxes, want equal counts", moofCount, mdatCount)
	}
}

type recordingDashSegmenter struct {
	names []string
	data  [][]byte
}

func (r *recordingDashSegmenter) WriteSegment(name string, data []byte) error {
	r.names = append(r.names, name)
	cp := append([]byte(nil), data...)
	r.data = append(r.data, cp)
	return nil
}

func TestMuxDashWritesInitAndNamedSegments(t *testing.T) {
	src := &sliceSampleSource{
		info: bmffapi.SampleSourceInfo{Timescale: 1000, HandlerType: [4]byte{'v', 'i', 'd', 'e'}},
		samples: []bmffapi.Sample{
			{Data: []byte{1, 2, 3}, Duration: 1000, Sync: true},
			{Data: []byte{4, 5, 6}, Duration: 1000, Sync: true},
			{Data: []byte{7, 8, 9}, Duration: 1000, Sync: true},
		},
	}

	seg := &recordingDashSegmenter{}
	err := bmffapi.MuxDash(src, bmffapi.DashOptions{SegmentDuration: 1500}, seg)
	if err != nil {
		t.Fatalf("MuxDash: %v", err)
	}

	if len(seg.names) < 2 {
		t.Fatalf("got %d segments, want at least an init + one media segment", len(seg.names))
	}
	if seg.names[0] != "init.mp4" {
		t.Errorf("first segment name = %q, want %q", seg.names[0], "init.mp4")
	}
	if seg.names[1] != "segment_0.m4s" {
		t.Errorf("second segment name = %q, want %q", seg.names[1], "segment_0.m4s")
	}

	initR := bmff.NewReader(seg.data[0])
	if !initR.Next() || initR.Type() != bmff.TypeFtyp {
		t.Fatal("init segment does not start with ftyp")
	}

	mediaR := bmff.NewReader(seg.data[1])
	if !mediaR.Next() || mediaR.Type() != bmff.TypeStyp {
		t.Fatal("media segment does not start with styp")
	}
	if !mediaR.Next() || mediaR.Type() != bmff.TypeSidx {
		t.Fatal("media segment's second box is not sidx")
	}
	if !mediaR.Next() || mediaR.Type() != bmff.TypeMoof {
		t.Fatal("media segment's third box is not moof")
	}
	if !mediaR.Next() || mediaR.Type() != bmff.TypeMdat {
		t.Fatal("media segment's fourth box is not mdat")
	}
}
