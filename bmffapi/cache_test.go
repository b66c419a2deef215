package bmffapi_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gobmff/bmff/bmffapi"
)

func TestProbeCachePutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()

	target := filepath.Join(dir, "movie.mp4")
	if err := os.WriteFile(target, []byte("fake movie bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cache, err := bmffapi.OpenProbeCache(filepath.Join(dir, "probe.bolt"))
	if err != nil {
		t.Fatalf("OpenProbeCache: %v", err)
	}
	defer cache.Close()

	want := bmffapi.ProbeResult{
		MajorBrand: [4]byte{'i', 's', 'o', 'm'},
		Tracks: []bmffapi.ProbeTrack{
			{TrackID: 1, Codec: "avc1.64001f", TimeScale: 90000, Samples: 120, Duration: 4.0},
		},
	}

	if _, found, err := cache.Get(target); err != nil {
		t.Fatalf("Get before Put: %v", err)
	} else if found {
		t.Fatal("Get before Put: found an entry, want none")
	}

	if err := cache.Put(target, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, found, err := cache.Get(target)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("Get after Put: not found")
	}
	if got.MajorBrand != want.MajorBrand {
		t.Errorf("MajorBrand = %v, want %v", got.MajorBrand, want.MajorBrand)
	}
	if len(got.Tracks) != 1 || got.Tracks[0].Codec != "avc1.64001f" {
		t.Errorf("Tracks = %+v, want one avc1.64001f track", got.Tracks)
	}
}

func TestProbeCacheInvalidatesOnModification(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "movie.mp4")
	if err := os.WriteFile(target, []byte("v1"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cache, err := bmffapi.OpenProbeCache(filepath.Join(dir, "probe.bolt"))
	if err != nil {
		t.Fatalf("OpenProbeCache: %v", err)
	}
	defer cache.Close()

	if err := cache.Put(target, bmffapi.ProbeResult{MajorBrand: [4]byte{'i', 's', 'o', 'm'}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := os.WriteFile(target, []byte("v2, a different size"), 0o644); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}

	if _, found, err := cache.Get(target); err != nil {
		t.Fatalf("Get after modification: %v", err)
	} else if found {
		t.Fatal("Get after modification: found a stale entry, want a cache miss")
	}
}
