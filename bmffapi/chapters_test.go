package bmffapi_test

import (
	"testing"
	"time"

	"github.com/gobmff/bmff/bmffapi"
)

func TestNewChapterImporterSortsByStart(t *testing.T) {
	imp := bmffapi.NewChapterImporter([]bmffapi.Chapter{
		{Title: "Credits", Start: 90 * time.Second},
		{Title: "Intro", Start: 0},
		{Title: "Act One", Start: 10 * time.Second},
	})

	got := imp.Chapters()
	if len(got) != 3 {
		t.Fatalf("got %d chapters, want 3", len(got))
	}
	want := []string{"Intro", "Act One", "Credits"}
	for i, title := range want {
		if got[i].Title != title {
			t.Errorf("chapter %d = %q, want %q", i, got[i].Title, title)
		}
	}
}

func TestChapterImporterSamplesRunToNextChapterOrEnd(t *testing.T) {
	imp := bmffapi.NewChapterImporter([]bmffapi.Chapter{
		{Title: "Intro", Start: 0},
		{Title: "Act One", Start: 10 * time.Second},
	})

	samples := imp.Samples(30 * time.Second)
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if string(samples[0].Data) != "Intro" || samples[0].Duration != 10000 {
		t.Errorf("sample 0 = %+v, want Intro/10000", samples[0])
	}
	if string(samples[1].Data) != "Act One" || samples[1].Duration != 20000 {
		t.Errorf("sample 1 = %+v, want Act One/20000", samples[1])
	}
	if !samples[0].Sync || !samples[1].Sync {
		t.Error("chapter samples must all be sync samples")
	}
}

func TestChapterImporterEmpty(t *testing.T) {
	imp := bmffapi.NewChapterImporter(nil)
	if len(imp.Chapters()) != 0 {
		t.Fatalf("got %d chapters, want 0", len(imp.Chapters()))
	}
	if samples := imp.Samples(time.Second); len(samples) != 0 {
		t.Fatalf("got %d samples, want 0", len(samples))
	}
}
