// Package corpus defines the persisted bilingual document model and its on-disk store.
package corpus

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Work is one complete bilingual text as persisted in <id>.json.
type Work struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	TitleEn  string     `json:"titleEn"`
	Source   string     `json:"source"`
	Chapters []*Chapter `json:"chapters"`
}

// Chapter is one fetchable page of a work, or the whole of a single-page work.
type Chapter struct {
	Number   string    `json:"number"`
	Title    string    `json:"title"`
	Slug     string    `json:"slug,omitempty"`
	Passages []Passage `json:"passages"`
}

// Passage is one aligned source/target pair.
type Passage struct {
	Ref    string `json:"ref"`
	Source string `json:"zh"`
	Target string `json:"en"`
}

// ChapterKey identifies a persisted chapter for resume deduplication.
// It is either BySlug or ByNumber.
type ChapterKey interface {
	isChapterKey()
	String() string
}

// BySlug keys a chapter by its stable page identifier.
type BySlug string

// ByNumber keys a legacy chapter that was persisted without a slug.
type ByNumber string

func (BySlug) isChapterKey()   {}
func (ByNumber) isChapterKey() {}

func (k BySlug) String() string   { return "slug:" + string(k) }
func (k ByNumber) String() string { return "number:" + string(k) }

// Key returns BySlug when the chapter has a slug and ByNumber otherwise.
func (c *Chapter) Key() ChapterKey {
	if c.Slug != "" {
		return BySlug(c.Slug)
	}
	return ByNumber(c.Number)
}

// NumberValue parses the chapter number. Non-numeric numbers sort as 0.
func (c *Chapter) NumberValue() int {
	n, err := strconv.Atoi(strings.TrimSpace(c.Number))
	if err != nil {
		return 0
	}
	return n
}

// HasPassages reports whether the chapter holds at least one passage.
func (c *Chapter) HasPassages() bool {
	return c != nil && len(c.Passages) > 0
}

// PassageCount sums the passages of every chapter.
func (w *Work) PassageCount() int {
	total := 0
	for _, ch := range w.Chapters {
		total += len(ch.Passages)
	}
	return total
}

// Find returns the chapter matching key, if any.
func (w *Work) Find(key ChapterKey) (*Chapter, bool) {
	for _, ch := range w.Chapters {
		switch k := key.(type) {
		case BySlug:
			if ch.Slug == string(k) {
				return ch, true
			}
		case ByNumber:
			if ch.Slug == "" && ch.Number == string(k) {
				return ch, true
			}
		}
	}
	return nil, false
}

// FindNumber returns the chapter with the given number regardless of slug.
func (w *Work) FindNumber(number string) (int, *Chapter, bool) {
	for i, ch := range w.Chapters {
		if ch.Number == number {
			return i, ch, true
		}
	}
	return -1, nil, false
}

// SortChapters orders chapters ascending by numeric number. Ties keep their order.
func (w *Work) SortChapters() {
	slices.SortStableFunc(w.Chapters, func(a, b *Chapter) int {
		return a.NumberValue() - b.NumberValue()
	})
}

// Validate checks that chapter numbers are unique and sorted and that refs
// are unique within each chapter.
func (w *Work) Validate() error {
	seen := make(map[string]struct{}, len(w.Chapters))
	var errs []error
	for i, ch := range w.Chapters {
		if _, dup := seen[ch.Number]; dup {
			errs = append(errs, fmt.Errorf("chapter number %q is duplicated", ch.Number))
		}
		seen[ch.Number] = struct{}{}
		if i > 0 && w.Chapters[i-1].NumberValue() > ch.NumberValue() {
			errs = append(errs, fmt.Errorf("chapter %q is out of order", ch.Number))
		}
		refs := make(map[string]struct{}, len(ch.Passages))
		for _, p := range ch.Passages {
			if _, dup := refs[p.Ref]; dup {
				errs = append(errs, fmt.Errorf("chapter %q: ref %q is duplicated", ch.Number, p.Ref))
			}
			refs[p.Ref] = struct{}{}
		}
	}
	return errors.Join(errs...)
}

// ChapterTitle derives a display title from a page slug: "xue-er" becomes "Xue Er".
func ChapterTitle(slug string) string {
	words := strings.Fields(strings.ReplaceAll(slug, "-", " "))
	for i, word := range words {
		r, size := utf8.DecodeRuneInString(word)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(word[size:])
	}
	return strings.Join(words, " ")
}

// Ref formats a passage reference. Chapter 0 yields a plain index.
func Ref(chapter, index int) string {
	if chapter == 0 {
		return strconv.Itoa(index)
	}
	return strconv.Itoa(chapter) + ":" + strconv.Itoa(index)
}
