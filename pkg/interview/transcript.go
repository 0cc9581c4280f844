package interview

import "strings"

// JoinTranscript joins transcript parts with single spaces and trims the result.
func JoinTranscript(parts ...string) string {
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			fields = append(fields, p)
		}
	}
	return strings.TrimSpace(strings.Join(fields, " "))
}

// WordCount counts whitespace separated words.
func WordCount(transcript string) int {
	return len(strings.Fields(transcript))
}
