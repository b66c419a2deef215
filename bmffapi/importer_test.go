package bmffapi_test

import (
	"testing"
	"time"

	"github.com/gobmff/bmff/bmffapi"
)

func TestSliceTimecodeSourceYieldsInOrder(t *testing.T) {
	src := bmffapi.NewSliceTimecodeSource([]time.Duration{0, 33 * time.Millisecond, 66 * time.Millisecond})

	var got []time.Duration
	for {
		pts, ok := src.Next()
		if !ok {
			break
		}
		got = append(got, pts)
	}

	if len(got) != 3 {
		t.Fatalf("got %d timestamps, want 3", len(got))
	}
	for i, want := range []time.Duration{0, 33 * time.Millisecond, 66 * time.Millisecond} {
		if got[i] != want {
			t.Errorf("timestamp %d = %v, want %v", i, got[i], want)
		}
	}
}

func TestSliceTimecodeSourceEmpty(t *testing.T) {
	src := bmffapi.NewSliceTimecodeSource(nil)
	if _, ok := src.Next(); ok {
		t.Fatal("Next on empty source returned ok=true")
	}
}
