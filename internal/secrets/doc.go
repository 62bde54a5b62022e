// Package secrets redacts credentials from captured text before it is
// analyzed or persisted.
//
// Pasted AI conversations regularly carry API keys, tokens and connection
// strings. Scrub replaces each match with a placeholder and reports which
// rules fired, never the matched values.
package secrets
