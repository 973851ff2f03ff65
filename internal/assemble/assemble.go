// Package assemble builds per-work documents from fetched catalog pages and
// merges them with previously persisted progress.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/classical-corpus/internal/catalog"
	"github.com/JakeFAU/classical-corpus/internal/corpus"
	"github.com/JakeFAU/classical-corpus/internal/extract"
	"github.com/JakeFAU/classical-corpus/internal/metrics"
	"github.com/JakeFAU/classical-corpus/internal/transport"
)

// Fetcher retrieves the passage pairs of one page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]extract.Pair, error)
}

// Store persists work documents.
type Store interface {
	Load(id string) (*corpus.Work, error)
	Save(ctx context.Context, w *corpus.Work) (bool, error)
	Lock(id string) (func() error, error)
}

// Assembler drives page fetches for catalog entries.
type Assembler struct {
	fetcher Fetcher
	store   Store
	metrics *metrics.Recorder
	logger  *zap.Logger
	source  string
}

// New builds an Assembler. source is the attribution written into new documents.
func New(fetcher Fetcher, store Store, recorder *metrics.Recorder, logger *zap.Logger, source string) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		fetcher: fetcher,
		store:   store,
		metrics: recorder,
		logger:  logger,
		source:  source,
	}
}

// Result is the outcome of assembling one work in memory.
type Result struct {
	// Work is nil when there was no existing document and no page yielded passages.
	Work        *corpus.Work
	Added       int
	Fetched     int
	Skipped     int
	// Conflicts counts pages never fetched because their number is held by
	// a chapter with a different slug.
	Conflicts   int
	Empty       int
	Failed      int
	Interrupted bool
}

// Summary reports one work's run.
type Summary struct {
	ID          string
	Title       string
	Chapters    int
	Passages    int
	Added       int
	Fetched     int
	Skipped     int
	Conflicts   int
	Empty       int
	Failed      int
	Interrupted bool
	Saved       bool
}

// Run locks, loads, assembles and persists one work. The document is saved
// even when ctx is canceled mid-run, and only rewritten when chapters were added.
// A rewrite carries only Work schema fields; anything else in the file on
// disk is lost.
func (a *Assembler) Run(ctx context.Context, entry catalog.Entry) (Summary, error) {
	summary := Summary{ID: entry.ID, Title: entry.TitleEn}

	unlock, err := a.store.Lock(entry.ID)
	if err != nil {
		return summary, fmt.Errorf("lock %s: %w", entry.ID, err)
	}
	defer func() {
		if err := unlock(); err != nil {
			a.logger.Warn("release document lock", zap.String("work", entry.ID), zap.Error(err))
		}
	}()

	existing, err := a.store.Load(entry.ID)
	if err != nil {
		return summary, fmt.Errorf("load %s: %w", entry.ID, err)
	}

	res := a.Assemble(ctx, entry, existing)
	summary.Added = res.Added
	summary.Fetched = res.Fetched
	summary.Skipped = res.Skipped
	summary.Conflicts = res.Conflicts
	summary.Empty = res.Empty
	summary.Failed = res.Failed
	summary.Interrupted = res.Interrupted
	if res.Work == nil {
		return summary, nil
	}
	summary.Chapters = len(res.Work.Chapters)
	summary.Passages = res.Work.PassageCount()
	if err := res.Work.Validate(); err != nil {
		a.logger.Warn("document has structural problems", zap.String("work", entry.ID), zap.Error(err))
	}

	if res.Added == 0 {
		return summary, nil
	}
	if res.Interrupted {
		a.logger.Info("interrupted, saving partial progress", zap.String("work", entry.ID), zap.Int("chapters", summary.Chapters))
	}
	saved, err := a.store.Save(context.WithoutCancel(ctx), res.Work)
	if err != nil {
		return summary, fmt.Errorf("save %s: %w", entry.ID, err)
	}
	summary.Saved = saved
	return summary, nil
}

// Assemble fetches the pages missing from existing and merges them in.
// Existing chapters are kept verbatim. existing is modified in place.
func (a *Assembler) Assemble(ctx context.Context, entry catalog.Entry, existing *corpus.Work) Result {
	log := a.logger.With(zap.String("work", entry.ID))
	res := Result{Work: existing}
	if entry.SinglePage() {
		a.assembleSinglePage(ctx, log, entry, &res)
	} else {
		a.assembleChapters(ctx, log, entry, &res)
	}
	if res.Work != nil {
		res.Work.SortChapters()
	}
	return res
}

func (a *Assembler) assembleSinglePage(ctx context.Context, log *zap.Logger, entry catalog.Entry, res *Result) {
	if res.Work != nil && len(res.Work.Chapters) > 0 && res.Work.Chapters[0].HasPassages() {
		log.Info("already complete, skipping")
		res.Skipped++
		a.metrics.ObservePage(entry.ID, metrics.PageSkipped)
		return
	}
	if ctx.Err() != nil {
		res.Interrupted = true
		return
	}
	log.Info("fetching", zap.String("url", entry.URL))
	pairs, ok := a.fetch(ctx, log, entry, entry.URL, res)
	if !ok {
		return
	}
	ch := &corpus.Chapter{Number: "1", Title: entry.TitleEn, Passages: passages(0, pairs)}
	w := a.ensureWork(entry, res)
	if i, _, found := w.FindNumber("1"); found {
		w.Chapters[i] = ch
	} else {
		w.Chapters = append(w.Chapters, ch)
	}
	res.Added++
}

func (a *Assembler) assembleChapters(ctx context.Context, log *zap.Logger, entry catalog.Entry, res *Result) {
	total := len(entry.Chapters)
	var pending []int
	for i, slug := range entry.Chapters {
		number := i + 1
		switch a.present(log, res.Work, slug, number) {
		case presentMatch:
			res.Skipped++
			a.metrics.ObservePage(entry.ID, metrics.PageSkipped)
			continue
		case presentConflict:
			res.Conflicts++
			a.metrics.ObservePage(entry.ID, metrics.PageConflict)
			continue
		}
		pending = append(pending, number)
	}
	if len(pending) == 0 {
		log.Info("all chapters already present, skipping", zap.Int("chapters", total))
		return
	}
	log.Info("chapters to fetch", zap.Int("missing", len(pending)), zap.Int("chapters", total))

	for _, number := range pending {
		if ctx.Err() != nil {
			res.Interrupted = true
			return
		}
		slug := entry.Chapters[number-1]
		pageURL := entry.PageURL(slug)
		log.Info("fetching",
			zap.String("progress", strconv.Itoa(number)+"/"+strconv.Itoa(total)),
			zap.String("slug", slug))

		pairs, ok := a.fetch(ctx, log.With(zap.String("slug", slug)), entry, pageURL, res)
		if !ok {
			if res.Interrupted {
				return
			}
			continue
		}
		w := a.ensureWork(entry, res)
		w.Chapters = append(w.Chapters, &corpus.Chapter{
			Number:   strconv.Itoa(number),
			Title:    corpus.ChapterTitle(slug),
			Slug:     slug,
			Passages: passages(number, pairs),
		})
		res.Added++
	}
}

type presence int

const (
	absent presence = iota
	presentMatch
	presentConflict
)

// present reports whether the page is already in the document. Legacy
// chapters without a slug are matched by their page number. A number held
// by a chapter with a different slug is a conflict: the page is not fetched
// so chapter numbers stay unique.
func (a *Assembler) present(log *zap.Logger, w *corpus.Work, slug string, number int) presence {
	if w == nil {
		return absent
	}
	if _, ok := w.Find(corpus.BySlug(slug)); ok {
		return presentMatch
	}
	key := corpus.ByNumber(strconv.Itoa(number))
	if _, ok := w.Find(key); ok {
		log.Warn("matched chapter without slug by number", zap.String("slug", slug), zap.Int("number", number))
		return presentMatch
	}
	if _, ch, ok := w.FindNumber(string(key)); ok {
		log.Warn("chapter number already used by another slug, not fetching",
			zap.String("slug", slug), zap.String("existing_slug", ch.Slug), zap.Int("number", number))
		return presentConflict
	}
	return absent
}

// fetch retrieves one page and classifies the outcome. ok is false when the
// page yields nothing to add.
func (a *Assembler) fetch(ctx context.Context, log *zap.Logger, entry catalog.Entry, pageURL string, res *Result) ([]extract.Pair, bool) {
	pairs, err := a.fetcher.Fetch(ctx, pageURL)
	switch {
	case ctx.Err() != nil:
		res.Interrupted = true
		return nil, false
	case errors.Is(err, transport.ErrNotFound):
		log.Warn("page not found", zap.String("url", pageURL))
		res.Failed++
		a.metrics.ObservePage(entry.ID, metrics.PageNotFound)
		return nil, false
	case err != nil:
		log.Error("page failed", zap.String("url", pageURL), zap.Error(err))
		res.Failed++
		a.metrics.ObservePage(entry.ID, metrics.PageFailed)
		return nil, false
	case len(pairs) == 0:
		log.Warn("page has no passages", zap.String("url", pageURL))
		res.Empty++
		a.metrics.ObservePage(entry.ID, metrics.PageEmpty)
		return nil, false
	}
	log.Info("page fetched", zap.Int("passages", len(pairs)))
	res.Fetched++
	a.metrics.ObservePage(entry.ID, metrics.PageFetched)
	a.metrics.ObservePassages(entry.ID, len(pairs))
	return pairs, true
}

func (a *Assembler) ensureWork(entry catalog.Entry, res *Result) *corpus.Work {
	if res.Work == nil {
		res.Work = &corpus.Work{
			ID:       entry.ID,
			Title:    entry.Title,
			TitleEn:  entry.TitleEn,
			Source:   a.source,
			Chapters: []*corpus.Chapter{},
		}
	}
	return res.Work
}

// passages numbers pairs from 1. Chapter 0 yields plain refs.
func passages(chapter int, pairs []extract.Pair) []corpus.Passage {
	out := make([]corpus.Passage, len(pairs))
	for j, p := range pairs {
		out[j] = corpus.Passage{Ref: corpus.Ref(chapter, j+1), Source: p.Source, Target: p.Target}
	}
	return out
}
