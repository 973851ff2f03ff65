// Package align refines coarse passage pairs into sentence-level pairs.
//
// Each side is split into sentences and the two lists are paired by count:
// equal counts pair one to one, counts that differ by one merge the two
// trailing sentences of the longer side, and anything else keeps the whole
// text as a single passage so nothing is lost.
package align

import (
	"strconv"
	"strings"

	"github.com/JakeFAU/classical-corpus/internal/corpus"
)

// Align splits both texts and pairs their sentences into passages numbered
// from startRef within chapter. It returns the next unused ref index.
func Align(source, target string, chapter, startRef int) ([]corpus.Passage, int) {
	return AlignSentences(SplitSource(source), SplitTarget(target), chapter, startRef)
}

// AlignSentences pairs already split sentences.
func AlignSentences(source, target []string, chapter, startRef int) ([]corpus.Passage, int) {
	m, n := len(source), len(target)
	next := startRef
	emit := func(src, tgt string) corpus.Passage {
		p := corpus.Passage{Ref: corpus.Ref(chapter, next), Source: src, Target: tgt}
		next++
		return p
	}

	switch {
	case m == 0 && n == 0:
		return nil, startRef
	case m == 0:
		return []corpus.Passage{emit("", strings.Join(target, " "))}, next
	case n == 0:
		return []corpus.Passage{emit(strings.Join(source, ""), "")}, next
	case m == n:
	case m == n+1:
		source = mergeTail(source, "")
	case n == m+1:
		target = mergeTail(target, " ")
	default:
		return []corpus.Passage{emit(strings.Join(source, ""), strings.Join(target, " "))}, next
	}

	passages := make([]corpus.Passage, 0, len(source))
	for i := range source {
		passages = append(passages, emit(source[i], target[i]))
	}
	return passages, next
}

// mergeTail joins the last two sentences into one.
func mergeTail(sentences []string, sep string) []string {
	k := len(sentences)
	merged := make([]string, 0, k-1)
	merged = append(merged, sentences[:k-2]...)
	return append(merged, sentences[k-2]+sep+sentences[k-1])
}

// Stats counts passages with an empty side after alignment.
type Stats struct {
	Passages    int
	EmptySource int
	EmptyTarget int
}

// AlignChapter refines every passage of ch into one continuously numbered
// chapter carrying the given number. Title and slug are kept.
func AlignChapter(ch *corpus.Chapter, number int) (*corpus.Chapter, Stats) {
	out := &corpus.Chapter{
		Number:   strconv.Itoa(number),
		Title:    ch.Title,
		Slug:     ch.Slug,
		Passages: []corpus.Passage{},
	}
	next := 1
	for _, p := range ch.Passages {
		var aligned []corpus.Passage
		aligned, next = Align(p.Source, p.Target, number, next)
		out.Passages = append(out.Passages, aligned...)
	}

	stats := Stats{Passages: len(out.Passages)}
	for _, p := range out.Passages {
		if strings.TrimSpace(p.Source) == "" {
			stats.EmptySource++
		}
		if strings.TrimSpace(p.Target) == "" {
			stats.EmptyTarget++
		}
	}
	return out, stats
}
