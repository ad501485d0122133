package pipeline

import "unicode/utf8"

// ChunkTranscript splits a transcript into consecutive non-overlapping
// chunks of at most max bytes each, never cutting a rune in half. The
// concatenation of the chunks equals the original string.
func ChunkTranscript(s string, max int) []string {
	if max <= 0 || len(s) <= max {
		return []string{s}
	}

	chunks := make([]string, 0, len(s)/max+1)
	for len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = max
		}
		chunks = append(chunks, s[:cut])
		s = s[cut:]
	}
	return append(chunks, s)
}

// truncate caps s at max bytes on a rune boundary.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		cut = max
	}
	return s[:cut]
}
