package transport

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/classical-corpus/internal/extract"
)

// DefaultBlockKeywords are phrases found on interstitial challenge pages.
func DefaultBlockKeywords() []string {
	return []string{
		"access denied",
		"too many requests",
		"unusual traffic",
		"verify you are human",
		"are you a robot",
	}
}

// DefaultBlockSelectors match challenge widgets.
func DefaultBlockSelectors() []string {
	return []string{"#challenge-form", "#cf-challenge-running", ".g-recaptcha", ".h-captcha"}
}

// BlockDetector recognizes 200 responses that are really block pages.
// A page holding any marked passage cell is never a block page.
type BlockDetector struct {
	markers   extract.Markers
	selectors []string
	keywords  []string
}

// NewBlockDetector constructs a detector. Empty keywords and selectors are ignored.
func NewBlockDetector(markers extract.Markers, selectors, keywords []string) *BlockDetector {
	lower := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lower = append(lower, strings.ToLower(kw))
	}
	sels := make([]string, 0, len(selectors))
	for _, sel := range selectors {
		if strings.TrimSpace(sel) != "" {
			sels = append(sels, sel)
		}
	}
	return &BlockDetector{markers: markers, selectors: sels, keywords: lower}
}

// IsBlockPage inspects a 200 body.
func (d *BlockDetector) IsBlockPage(body []byte) bool {
	if d == nil || len(body) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	if d.hasPassageCells(doc) {
		return false
	}
	for _, sel := range d.selectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	if len(d.keywords) == 0 {
		return false
	}
	text := strings.ToLower(doc.Find("title").Text() + " " + doc.Find("body").Text())
	for _, kw := range d.keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func (d *BlockDetector) hasPassageCells(doc *goquery.Document) bool {
	found := false
	doc.Find("td[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		if class == d.markers.Source || class == d.markers.Target {
			found = true
			return false
		}
		return true
	})
	return found
}
