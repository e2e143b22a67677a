package domain

import (
	"reflect"
	"strings"
	"testing"
)

func strptr(s string) *string { return &s }

func TestPostSegments(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		thread *string
		want   []string
	}{
		{"no thread", "hello", nil, []string{"hello"}},
		{"empty thread string", "hello", strptr("  "), []string{"hello"}},
		{"malformed json", "hello", strptr("[oops"), []string{"hello"}},
		{"empty array", "hello", strptr("[]"), []string{"hello"}},
		{"only blanks", "hello", strptr(`["", "  "]`), []string{"hello"}},
		{"ordered", "ignored", strptr(`["a","b","c"]`), []string{"a", "b", "c"}},
		{"non-strings dropped", "t", strptr(`["a",1,null,"b"]`), []string{"a", "b"}},
		{"object not array", "t", strptr(`{"a":1}`), []string{"t"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &Post{Text: tc.text, ThreadJSON: tc.thread}
			if got := p.Segments(); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Segments() = %#v; want %#v", got, tc.want)
			}
		})
	}
}

func TestEncodeThread_PreservesOrder(t *testing.T) {
	enc, err := EncodeThread([]string{" first ", "", "second", "third"})
	if err != nil {
		t.Fatalf("EncodeThread: %v", err)
	}
	if enc == nil || *enc != `["first","second","third"]` {
		t.Fatalf("unexpected encoding: %v", enc)
	}
	p := &Post{Text: "x", ThreadJSON: enc}
	if !p.IsThread() {
		t.Fatalf("expected thread")
	}
	if got := p.Segments(); !reflect.DeepEqual(got, []string{"first", "second", "third"}) {
		t.Fatalf("round trip lost order: %v", got)
	}

	enc, err = EncodeThread([]string{" ", ""})
	if err != nil || enc != nil {
		t.Fatalf("empty input should encode to nil, got %v err=%v", enc, err)
	}
}

func TestSegmentLength_CountsNormalizedRunes(t *testing.T) {
	// "e" + combining acute composes to a single rune under NFC.
	decomposed := strings.Repeat("e\u0301", MaxSegmentRunes)
	if SegmentTooLong(decomposed) {
		t.Fatalf("NFC-composed text of %d runes should fit", MaxSegmentRunes)
	}
	if !SegmentTooLong(strings.Repeat("a", MaxSegmentRunes+1)) {
		t.Fatalf("expected too long")
	}
	if got := NormalizeSegment("  e\u0301 "); got != "\u00e9" {
		t.Fatalf("NormalizeSegment = %q", got)
	}
}
