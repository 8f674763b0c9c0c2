// Package intent classifies incoming questions so the chat orchestrator can
// route small talk away from retrieval and restrict evidence to sources that
// plausibly answer the question category.
package intent

import "strings"

// Intent is a coarse question category.
type Intent string

const (
	Greeting    Intent = "GREETING"
	DateTime    Intent = "DATE_TIME"
	SystemInfo  Intent = "SYSTEM_INFO"
	Explanation Intent = "EXPLANATION"
	Fact        Intent = "FACT"
	General     Intent = "GENERAL"
)

var greetings = map[string]bool{
	"hi":             true,
	"hello":          true,
	"hey":            true,
	"greetings":      true,
	"good morning":   true,
	"good afternoon": true,
	"good evening":   true,
}

var dateTimeKeywords = []string{
	"what time", "current time", "time is it", "time now",
	"today's date", "current date", "what is the date", "what's the date",
	"what day", "what is today", "current day",
}

var explanationPrefixes = []string{
	"what is", "explain", "describe", "how does", "how do", "what are",
}

var conversationalPatterns = []string{
	"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
	"how are you", "what's up", "sup", "thank you", "thanks", "bye", "goodbye",
	"help me", "can you help", "how can you help", "what can you do", "who are you",
}

// Detect classifies a question. Matching is ordered: exact greetings win,
// then date/time keywords, then questions about the assistant itself, then
// phrasing-based categories.
func Detect(question string) Intent {
	q := strings.TrimSpace(strings.ToLower(question))

	if greetings[q] {
		return Greeting
	}
	for _, kw := range dateTimeKeywords {
		if strings.Contains(q, kw) {
			return DateTime
		}
	}
	if strings.Contains(q, "corpwise") || strings.Contains(q, "who are you") ||
		strings.Contains(q, "what is this") || strings.Contains(q, "purpose") {
		return SystemInfo
	}
	for _, prefix := range explanationPrefixes {
		if strings.HasPrefix(q, prefix) {
			return Explanation
		}
	}
	if strings.HasPrefix(q, "when") || strings.HasPrefix(q, "how long") {
		return Fact
	}
	return General
}

// IsConversational reports whether the question is a greeting or small talk
// that should be answered directly without touching the knowledge base.
// Long questions never count; a real question can mention "thanks" in
// passing.
func IsConversational(question string) bool {
	q := strings.TrimSpace(strings.ToLower(question))
	if len(strings.Fields(q)) > 15 {
		return false
	}
	for _, pattern := range conversationalPatterns {
		if strings.Contains(q, pattern) {
			return true
		}
	}
	return false
}

// DefaultDomains maps intents to the source-name keywords their evidence
// may come from. Tenants can override this table through their config.
func DefaultDomains() map[string][]string {
	return map[string][]string{
		string(Explanation): {
			"memory", "storage", "conversation", "retrieval", "hybrid", "encoder",
			"it", "hr", "policy", "support", "security", "general", "test",
		},
		string(Fact): {
			"memory", "storage",
			"it", "hr", "policy", "general", "test",
		},
		string(General): {
			"overview", "architecture",
			"it", "hr", "general", "test",
		},
	}
}

// AllowedSource reports whether a source name is admissible for the intent
// under the given domain table. Intents absent from the table are
// unrestricted.
func AllowedSource(domains map[string][]string, it Intent, source string) bool {
	keys, ok := domains[string(it)]
	if !ok || len(keys) == 0 {
		return true
	}
	src := strings.ToLower(source)
	for _, k := range keys {
		if strings.Contains(src, k) {
			return true
		}
	}
	return false
}
