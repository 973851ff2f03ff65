package transport

import (
	"testing"

	"github.com/JakeFAU/classical-corpus/internal/extract"
)

func TestBlockDetector(t *testing.T) {
	d := NewBlockDetector(extract.DefaultMarkers, DefaultBlockSelectors(), DefaultBlockKeywords())

	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "keyword in title", body: blockPage, want: true},
		{name: "challenge widget", body: `<html><body><div class="g-recaptcha"></div></body></html>`, want: true},
		{name: "passage page", body: passagePage, want: false},
		{
			name: "passage page quoting a keyword",
			body: `<table><tr><td class="ctext">甲</td><td class="etext">Access denied to the ruler.</td></tr></table>`,
			want: false,
		},
		{name: "ordinary page without passages", body: `<html><body><p>Contents</p></body></html>`, want: false},
		{name: "empty body", body: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.IsBlockPage([]byte(tt.body)); got != tt.want {
				t.Fatalf("expected %v got %v", tt.want, got)
			}
		})
	}
}

func TestNilBlockDetector(t *testing.T) {
	var d *BlockDetector
	if d.IsBlockPage([]byte(blockPage)) {
		t.Fatal("nil detector must not report blocks")
	}
}
