// Package audit flags chapters whose target-language text looks like
// boilerplate or untranslated source text, so they can be re-acquired.
package audit

import (
	"errors"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/classical-corpus/internal/corpus"
)

// Options tunes the suspect-passage heuristics.
type Options struct {
	// MinTargetLength is the shortest trimmed target text, in characters, that is not suspect.
	MinTargetLength int `mapstructure:"min_target_length"`
	// SourceScriptRatio is the share of source-script characters above which a target is suspect.
	SourceScriptRatio float64 `mapstructure:"source_script_ratio"`
	// BadChapterRatio is the share of suspect passages above which a chapter is bad.
	BadChapterRatio float64 `mapstructure:"bad_chapter_ratio"`
	// Phrases are matched case-insensitively against target text.
	Phrases []string `mapstructure:"phrases"`
}

// DefaultOptions returns the thresholds used for ctext.org documents.
func DefaultOptions() Options {
	return Options{
		MinTargetLength:   10,
		SourceScriptRatio: 0.3,
		BadChapterRatio:   0.5,
		Phrases: []string{
			"Enjoy this site? Please help",
			"Please help",
			"Site feedback",
			"ctext.org",
			"Log in",
			"Sign up",
			"Privacy policy",
			"Terms of service",
		},
	}
}

// Validate checks threshold ranges.
func (o Options) Validate() error {
	var errs []error
	if o.MinTargetLength < 0 {
		errs = append(errs, errors.New("min target length must not be negative"))
	}
	if o.SourceScriptRatio < 0 || o.SourceScriptRatio > 1 {
		errs = append(errs, errors.New("source script ratio must be between 0 and 1"))
	}
	if o.BadChapterRatio < 0 || o.BadChapterRatio > 1 {
		errs = append(errs, errors.New("bad chapter ratio must be between 0 and 1"))
	}
	return errors.Join(errs...)
}

// sourceScript covers CJK Unified Ideographs and Extension A.
var sourceScript = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x3400, Hi: 0x4DBF, Stride: 1},
		{Lo: 0x4E00, Hi: 0x9FFF, Stride: 1},
	},
}

// IsSuspect reports whether target text looks like a missing translation.
func IsSuspect(target string, opts Options) bool {
	if utf8.RuneCountInString(strings.TrimSpace(target)) < opts.MinTargetLength {
		return true
	}
	lower := strings.ToLower(target)
	for _, phrase := range opts.Phrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	total, source := 0, 0
	for _, r := range target {
		total++
		if unicode.Is(sourceScript, r) {
			source++
		}
	}
	return total > 0 && float64(source)/float64(total) > opts.SourceScriptRatio
}

// BadChapter describes one chapter flagged for re-acquisition.
type BadChapter struct {
	Index         int
	Number        string
	Slug          string
	Title         string
	BadPassages   int
	TotalPassages int
}

// Report summarizes one work.
type Report struct {
	ID              string
	Title           string
	TotalChapters   int
	TotalPassages   int
	BadPassages     int
	BadChapters     []BadChapter
	Fixed           bool
	ChaptersRemoved int
}

// OK reports whether no chapter was flagged.
func (r Report) OK() bool {
	return len(r.BadChapters) == 0
}

// Audit scans every chapter of w. BadPassages counts suspect passages in
// every chapter, flagged or not.
func Audit(w *corpus.Work, opts Options) Report {
	report := Report{ID: w.ID, Title: w.TitleEn, TotalChapters: len(w.Chapters)}
	for i, ch := range w.Chapters {
		total := len(ch.Passages)
		report.TotalPassages += total
		bad := 0
		for _, p := range ch.Passages {
			if IsSuspect(p.Target, opts) {
				bad++
			}
		}
		report.BadPassages += bad
		if total > 0 && float64(bad)/float64(total) > opts.BadChapterRatio {
			report.BadChapters = append(report.BadChapters, BadChapter{
				Index:         i,
				Number:        ch.Number,
				Slug:          ch.Slug,
				Title:         ch.Title,
				BadPassages:   bad,
				TotalPassages: total,
			})
		}
	}
	return report
}

// Fix removes the report's bad chapters from w, highest index first, and
// records the removal on the report.
func Fix(w *corpus.Work, report *Report) int {
	indices := make([]int, 0, len(report.BadChapters))
	for _, bc := range report.BadChapters {
		indices = append(indices, bc.Index)
	}
	slices.Sort(indices)
	removed := 0
	for i := len(indices) - 1; i >= 0; i-- {
		idx := indices[i]
		if idx < 0 || idx >= len(w.Chapters) {
			continue
		}
		w.Chapters = slices.Delete(w.Chapters, idx, idx+1)
		removed++
	}
	if removed > 0 {
		report.Fixed = true
		report.ChaptersRemoved = removed
	}
	return removed
}
