// Package extract recovers ordered source/target passage pairs from parallel-text page markup.
//
// The scanner walks the token stream without building a DOM. Table cells whose
// class attribute exactly equals one of two markers switch capture on; text
// inside them is buffered and paired positionally: each non-empty target cell
// is paired with the most recent unconsumed non-empty source cell. Pairing is
// heuristic, so malformed or reordered markup yields dropped or mismatched
// pairs rather than an error.
package extract

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Pair is one source-language passage and its target-language rendering.
type Pair struct {
	Source string
	Target string
}

// Markers are the class values that identify source and target cells.
type Markers struct {
	Source string
	Target string
}

// DefaultMarkers match the cell classes used on ctext.org pages.
var DefaultMarkers = Markers{Source: "ctext", Target: "etext"}

type captureState int

const (
	stateIdle captureState = iota
	stateCapturingSource
	stateCapturingTarget
)

// scanner holds the capture state for one page.
type scanner struct {
	markers Markers
	state   captureState
	buf     strings.Builder

	// pending holds the last closed source cell not yet paired. A newer
	// source cell replaces it.
	pending    string
	hasPending bool

	pairs []Pair
}

// Extract scans markup with the default markers.
func Extract(markup []byte) []Pair {
	return ExtractWith(markup, DefaultMarkers)
}

// ExtractWith scans markup using the given cell markers.
func ExtractWith(markup []byte, markers Markers) []Pair {
	pairs, _ := ExtractReader(bytes.NewReader(markup), markers)
	return pairs
}

// ExtractReader scans a markup stream. Pairs found before a read error are
// still returned alongside the error.
func ExtractReader(r io.Reader, markers Markers) ([]Pair, error) {
	s := &scanner{markers: markers}
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return s.pairs, err
			}
			return s.pairs, nil
		case html.StartTagToken:
			s.open(z)
		case html.SelfClosingTagToken:
			if s.open(z) {
				s.close()
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "td" {
				s.close()
			}
		case html.TextToken:
			if s.state != stateIdle {
				s.buf.Write(z.Text())
			}
		}
	}
}

// open handles a start tag and reports whether it entered a capture mode.
func (s *scanner) open(z *html.Tokenizer) bool {
	name, hasAttr := z.TagName()
	if string(name) != "td" || !hasAttr {
		return false
	}
	class := ""
	for {
		key, val, more := z.TagAttr()
		if string(key) == "class" {
			class = string(val)
		}
		if !more {
			break
		}
	}
	if class == "" {
		return false
	}
	switch class {
	case s.markers.Source:
		s.state = stateCapturingSource
	case s.markers.Target:
		s.state = stateCapturingTarget
	default:
		return false
	}
	s.buf.Reset()
	return true
}

func (s *scanner) close() {
	text := strings.TrimSpace(s.buf.String())
	switch s.state {
	case stateCapturingSource:
		if text != "" {
			s.pending = text
			s.hasPending = true
		}
	case stateCapturingTarget:
		if s.hasPending && text != "" {
			s.pairs = append(s.pairs, Pair{Source: s.pending, Target: text})
			s.pending = ""
			s.hasPending = false
		}
	case stateIdle:
		return
	}
	s.state = stateIdle
	s.buf.Reset()
}
