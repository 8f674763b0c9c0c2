package service

import "strings"

const (
	hedgePrefixMedium = "Based on the available internal documentation:\n\n"
	hedgePrefixLow    = "The available internal documentation provides limited information.\n\n"
)

var disallowedPrefixes = []string{
	"Based on the available internal documentation:",
	"Based on the provided context:",
	"Here is the answer:",
}

// calibrateAnswer adjusts answer wording and its confidence label based on
// retrieval strength and how much of the answer is grounded in the context.
// A high score only earns the high label when the answer shares more than
// 12 distinct words with the context; a fluent answer with no grounding
// should not sound certain.
func calibrateAnswer(answer, context string, confidence float32) (string, string) {
	overlap := wordOverlap(answer, context)

	if confidence >= 0.75 && overlap > 12 {
		return answer, "high"
	}
	if confidence >= 0.45 {
		return hedgePrefixMedium + answer, "medium"
	}
	return hedgePrefixLow + answer, "low"
}

// stripDisallowedPrefixes removes boilerplate lead-ins the model sometimes
// echoes from the calibration prefixes of cached or prior answers.
func stripDisallowedPrefixes(text string) string {
	for _, p := range disallowedPrefixes {
		for strings.HasPrefix(text, p) {
			text = strings.TrimSpace(text[len(p):])
		}
	}
	return text
}

func wordOverlap(a, b string) int {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(a)) {
		words[w] = true
	}
	seen := make(map[string]bool)
	count := 0
	for _, w := range strings.Fields(strings.ToLower(b)) {
		if words[w] && !seen[w] {
			seen[w] = true
			count++
		}
	}
	return count
}
