// Package matching provides path pattern matching for mock routes.
//
// A pattern is a sequence of segments, each one of:
//
//   - Literal: matches only the identical text
//   - "*": matches exactly one segment of any value
//   - "**": matches zero or more remaining segments; only valid last
//
// When several patterns match the same concrete path, Compare orders them by
// specificity so the caller can pick one deterministically:
//
//  1. fewer wildcard segments wins
//  2. otherwise the first differing segment, left to right, decides:
//     literal beats "*" beats "**"
//  3. otherwise the pattern with more segments wins
//
// For example, for the path /api/users/42:
//
//	/api/users/42   (no wildcards)          wins over
//	/api/users/*    (one "*")               wins over
//	/api/users/**   (one "**")              wins over
//	/api/*/*        (two wildcards)
package matching
