package matching

// Segment ranks used when comparing patterns of equal wildcard count.
// Higher ranks are more specific.
const (
	// RankCatchAll is the rank of a "**" segment.
	RankCatchAll = 1

	// RankSingle is the rank of a "*" segment.
	RankSingle = 2

	// RankLiteral is the rank of a literal segment.
	RankLiteral = 3
)
