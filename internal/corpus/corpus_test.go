package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChapterKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, BySlug("xue-er"), (&Chapter{Number: "1", Slug: "xue-er"}).Key())
	assert.Equal(t, ByNumber("3"), (&Chapter{Number: "3"}).Key())
}

func TestWorkFind(t *testing.T) {
	t.Parallel()

	w := &Work{Chapters: []*Chapter{
		{Number: "1", Slug: "xue-er"},
		{Number: "2"},
	}}

	ch, ok := w.Find(BySlug("xue-er"))
	require.True(t, ok)
	assert.Equal(t, "1", ch.Number)

	_, ok = w.Find(ByNumber("1"))
	assert.False(t, ok, "a slugged chapter is not matched by number")

	ch, ok = w.Find(ByNumber("2"))
	require.True(t, ok)
	assert.Empty(t, ch.Slug)

	_, ok = w.Find(BySlug("wei-zheng"))
	assert.False(t, ok)
}

func TestSortChaptersNumerically(t *testing.T) {
	t.Parallel()

	w := &Work{Chapters: []*Chapter{
		{Number: "10"}, {Number: "2"}, {Number: "1"}, {Number: "x"},
	}}
	w.SortChapters()

	var got []string
	for _, ch := range w.Chapters {
		got = append(got, ch.Number)
	}
	assert.Equal(t, []string{"x", "1", "2", "10"}, got)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	ok := &Work{Chapters: []*Chapter{
		{Number: "1", Passages: []Passage{{Ref: "1:1"}, {Ref: "1:2"}}},
		{Number: "3"},
	}}
	require.NoError(t, ok.Validate())

	bad := &Work{Chapters: []*Chapter{
		{Number: "2", Passages: []Passage{{Ref: "2:1"}, {Ref: "2:1"}}},
		{Number: "1"},
		{Number: "1"},
	}}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicated")
	assert.Contains(t, err.Error(), "out of order")
}

func TestChapterTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Xue Er", ChapterTitle("xue-er"))
	assert.Equal(t, "Gong Ye Chang", ChapterTitle("gong-ye-chang"))
	assert.Equal(t, "Liang Hui Wang I", ChapterTitle("liang-hui-wang-i"))
	assert.Empty(t, ChapterTitle(""))
}

func TestRef(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "3", Ref(0, 3))
	assert.Equal(t, "2:7", Ref(2, 7))
}

func TestPassageCount(t *testing.T) {
	t.Parallel()

	w := &Work{Chapters: []*Chapter{
		{Passages: make([]Passage, 2)},
		{Passages: make([]Passage, 3)},
	}}
	assert.Equal(t, 5, w.PassageCount())
	assert.True(t, w.Chapters[0].HasPassages())
	assert.False(t, (&Chapter{}).HasPassages())
}
