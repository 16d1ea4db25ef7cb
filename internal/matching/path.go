package matching

import (
	"errors"
	"fmt"
	"strings"
)

// SegmentKind distinguishes literal and wildcard segments.
type SegmentKind int

// Segment kinds.
const (
	SegmentLiteral SegmentKind = iota
	SegmentSingle
	SegmentCatchAll
)

// String returns a readable name for the kind.
func (k SegmentKind) String() string {
	switch k {
	case SegmentSingle:
		return "single"
	case SegmentCatchAll:
		return "catch-all"
	default:
		return "literal"
	}
}

// Rank returns how specific the kind is; see the Rank constants.
func (k SegmentKind) Rank() int {
	switch k {
	case SegmentSingle:
		return RankSingle
	case SegmentCatchAll:
		return RankCatchAll
	default:
		return RankLiteral
	}
}

// Segment is one element of a Pattern.
type Segment struct {
	Kind    SegmentKind
	Literal string
}

// String returns the segment as written in a pattern.
func (s Segment) String() string {
	switch s.Kind {
	case SegmentSingle:
		return "*"
	case SegmentCatchAll:
		return "**"
	default:
		return s.Literal
	}
}

// ErrCatchAllNotLast is returned when "**" appears before the final segment.
var ErrCatchAllNotLast = errors.New(`"**" must be the last path segment`)

// Pattern is a compiled path pattern.
type Pattern struct {
	segments []Segment
	wildcard int
}

// ParsePattern compiles a slash-separated path pattern. Empty segments are
// ignored, so "/a//b/" and "a/b" compile to the same pattern.
func ParsePattern(path string) (Pattern, error) {
	var p Pattern
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		p.segments = append(p.segments, parseSegment(part))
	}
	if err := p.validate(); err != nil {
		return Pattern{}, fmt.Errorf("pattern %q: %w", path, err)
	}
	return p, nil
}

// MustParsePattern is like ParsePattern but panics on error.
func MustParsePattern(path string) Pattern {
	p, err := ParsePattern(path)
	if err != nil {
		panic(err)
	}
	return p
}

// NewPattern compiles a pattern from already split segments.
func NewPattern(segments []string) (Pattern, error) {
	return ParsePattern(strings.Join(segments, "/"))
}

func parseSegment(s string) Segment {
	switch s {
	case "*":
		return Segment{Kind: SegmentSingle}
	case "**":
		return Segment{Kind: SegmentCatchAll}
	default:
		return Segment{Kind: SegmentLiteral, Literal: s}
	}
}

func (p *Pattern) validate() error {
	p.wildcard = 0
	for i, seg := range p.segments {
		if seg.Kind != SegmentLiteral {
			p.wildcard++
		}
		if seg.Kind == SegmentCatchAll && i != len(p.segments)-1 {
			return ErrCatchAllNotLast
		}
	}
	return nil
}

// Segments returns a copy of the pattern's segments.
func (p Pattern) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	copy(out, p.segments)
	return out
}

// Len returns the number of segments.
func (p Pattern) Len() int { return len(p.segments) }

// Wildcards returns the number of "*" and "**" segments.
func (p Pattern) Wildcards() int { return p.wildcard }

// String renders the pattern with a leading slash.
func (p Pattern) String() string {
	parts := make([]string, len(p.segments))
	for i, seg := range p.segments {
		parts[i] = seg.String()
	}
	return "/" + strings.Join(parts, "/")
}

// Match reports whether the concrete path segments satisfy the pattern.
func (p Pattern) Match(path []string) bool {
	for i, seg := range p.segments {
		switch seg.Kind {
		case SegmentCatchAll:
			// last segment by construction: swallows whatever remains
			return true
		case SegmentSingle:
			if i >= len(path) {
				return false
			}
		default:
			if i >= len(path) || path[i] != seg.Literal {
				return false
			}
		}
	}
	return len(path) == len(p.segments)
}

// MatchPath is Match for a slash-separated path.
func (p Pattern) MatchPath(path string) bool {
	return p.Match(SplitPath(path))
}

// Compare orders two patterns by specificity. It returns a positive number
// when a is more specific than b, negative when less, and zero when the two
// rank the same, such as two different all-literal patterns of equal length,
// which can never match the same path.
func Compare(a, b Pattern) int {
	if a.wildcard != b.wildcard {
		return b.wildcard - a.wildcard
	}

	n := min(len(a.segments), len(b.segments))
	for i := 0; i < n; i++ {
		ra, rb := a.segments[i].Kind.Rank(), b.segments[i].Kind.Rank()
		if ra != rb {
			return ra - rb
		}
	}

	return len(a.segments) - len(b.segments)
}

// SplitPath splits a URL path into its non-empty segments.
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
