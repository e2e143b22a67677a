package domain

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxSegmentRunes is the platform limit for a single post segment.
const MaxSegmentRunes = 280

// MaxThreadSegments caps how many segments one thread may publish. Together
// with the client timeout it bounds how long a publish can hold its claim.
const MaxThreadSegments = 25

// NormalizeSegment trims s and converts it to NFC so rune counts match what
// the platform counts.
func NormalizeSegment(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// SegmentTooLong reports whether s exceeds MaxSegmentRunes after normalization.
func SegmentTooLong(s string) bool {
	return utf8.RuneCountInString(NormalizeSegment(s)) > MaxSegmentRunes
}

// EncodeThread serializes segments as a JSON array, preserving order. Empty
// segments are dropped; an empty result yields nil.
func EncodeThread(segments []string) (*string, error) {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = NormalizeSegment(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	v := string(b)
	return &v, nil
}

// Segments returns the ordered texts to publish for p. A missing, malformed,
// or empty thread falls back to the primary text as a single segment.
func (p *Post) Segments() []string {
	if p.ThreadJSON != nil && strings.TrimSpace(*p.ThreadJSON) != "" {
		var raw []any
		if err := json.Unmarshal([]byte(*p.ThreadJSON), &raw); err == nil {
			out := make([]string, 0, len(raw))
			for _, v := range raw {
				s, ok := v.(string)
				if !ok {
					continue
				}
				if s = NormalizeSegment(s); s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return []string{NormalizeSegment(p.Text)}
}

// IsThread reports whether p publishes as more than one linked segment.
func (p *Post) IsThread() bool { return len(p.Segments()) > 1 }
