// Package retrieval ranks captured documents against a question using
// lexical overlap, tag overlap and recency.
//
// Everything in this package is pure: callers pass immutable snapshots of
// documents and memory items, plus the reference time for recency.
package retrieval
