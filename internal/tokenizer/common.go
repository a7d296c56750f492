// Package tokenizer splits corpus field text into the lowercase,
// whitespace-delimited tokens CorpusChunk indexes substrings of (spec §4.4).
package tokenizer

// IsWhitespace returns true if c is ASCII whitespace.
func IsWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Lowercase converts ASCII uppercase to lowercase.
// Non-uppercase bytes are returned unchanged.
func Lowercase(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
