package bmffapi

import "time"

// Chapter is one chapter-list entry: a title and its start time within
// the presentation.
type Chapter struct {
	Title string
	Start time.Duration
}

// ChapterImporter accepts already-parsed chapter entries, keeps them
// sorted by start time, and converts them into text samples (see
// Samples), the way an external chapter-file parser would feed this
// library without the library itself parsing any chapter file format.
// It does not build a chapter track or add a `chap` track reference.
type ChapterImporter struct {
	chapters []Chapter
}

// NewChapterImporter creates a ChapterImporter from already-parsed
// chapter entries, sorted by Start.
func NewChapterImporter(chapters []Chapter) *ChapterImporter {
	sorted := make([]Chapter, len(chapters))
	copy(sorted, chapters)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Start > sorted[j].Start; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return &ChapterImporter{chapters: sorted}
}

// Chapters returns the sorted chapter list.
func (c *ChapterImporter) Chapters() []Chapter { return c.chapters }

// Samples converts the chapter list into elementary samples for a text
// track: one sample per chapter, carrying the title as its payload and
// running until either the next chapter's start or totalDuration.
func (c *ChapterImporter) Samples(totalDuration time.Duration) []Sample {
	samples := make([]Sample, len(c.chapters))
	for i, ch := range c.chapters {
		end := totalDuration
		if i+1 < len(c.chapters) {
			end = c.chapters[i+1].Start
		}
		samples[i] = Sample{
			Data:     []byte(ch.Title),
			Duration: uint32((end - ch.Start).Seconds() * 1000),
			Sync:     true,
		}
	}
	return samples
}
