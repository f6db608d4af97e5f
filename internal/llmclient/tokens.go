package llmclient

import "strings"

// CountTokens estimates the token count of text. It counts whitespace-delimited
// words and falls back to a character heuristic for unbroken text.
func CountTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	if words := strings.Fields(text); len(words) > 1 {
		return len(words)
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
