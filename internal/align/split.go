package align

import (
	"strings"
)

const (
	sourceTerminals = "。！？"
	closingQuotes   = "」』\"'”’"
	targetTerminals = ".!?"
)

// abbreviations are protected from sentence splitting. Order matters when
// one abbreviation is a prefix of another.
var abbreviations = []struct {
	text        string
	placeholder string
}{
	{"Mr.", "__MR__"},
	{"Mrs.", "__MRS__"},
	{"Dr.", "__DR__"},
	{"etc.", "__ETC__"},
	{"i.e.", "__IE__"},
	{"e.g.", "__EG__"},
	{"vs.", "__VS__"},
}

// SplitSource splits source-language text after each terminal mark, keeping
// the mark and any closing quotes that follow it. Trailing text without a
// terminal mark becomes a final sentence.
func SplitSource(text string) []string {
	runes := []rune(text)
	var sentences []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !strings.ContainsRune(sourceTerminals, runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && strings.ContainsRune(closingQuotes, runes[end]) {
			end++
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			sentences = append(sentences, s)
		}
		start = end
		i = end - 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// SplitTarget splits target-language text at terminal punctuation, optionally
// followed by a quote, when the next word starts with a capital letter, a
// quote or an opening parenthesis.
func SplitTarget(text string) []string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return nil
	}
	protected := normalized
	for _, a := range abbreviations {
		protected = strings.ReplaceAll(protected, a.text, a.placeholder)
	}

	var sentences []string
	start := 0
	for i := 1; i < len(protected)-1; i++ {
		if protected[i] != ' ' || !endsSentence(protected[:i]) || !startsSentence(protected[i+1]) {
			continue
		}
		sentences = appendRestored(sentences, protected[start:i])
		start = i + 1
	}
	return appendRestored(sentences, protected[start:])
}

func endsSentence(s string) bool {
	last := s[len(s)-1]
	if strings.IndexByte(targetTerminals, last) >= 0 {
		return true
	}
	if (last == '"' || last == '\'') && len(s) >= 2 {
		return strings.IndexByte(targetTerminals, s[len(s)-2]) >= 0
	}
	return false
}

func startsSentence(b byte) bool {
	return (b >= 'A' && b <= 'Z') || b == '"' || b == '\'' || b == '('
}

func appendRestored(sentences []string, part string) []string {
	for _, a := range abbreviations {
		part = strings.ReplaceAll(part, a.placeholder, a.text)
	}
	if part = strings.TrimSpace(part); part != "" {
		sentences = append(sentences, part)
	}
	return sentences
}
