package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/corpwise/corpwise/internal/intent"
	"github.com/corpwise/corpwise/internal/repository"
)

// buildPrompt assembles the generation prompt: branded system instructions,
// optional context block, then the conversation transcript ending with the
// current question.
func buildPrompt(messages []repository.Message, context, tenantSlug string) string {
	brandName := "the Assistant"
	assistantName := "CORPWISE"
	if tenantSlug != "" && tenantSlug != "none" {
		brandName = titleCase(tenantSlug)
		assistantName = brandName + " AI"
	}

	parts := []string{
		fmt.Sprintf("SYSTEM: You are %s, a friendly and professional assistant for %s.", assistantName, brandName),
		fmt.Sprintf("SYSTEM: When users greet you, welcome them to %s.", brandName),
		"",
		"SYSTEM: === CRITICAL INSTRUCTION ===",
		"SYSTEM: You will receive context chunks below. Your job is to:",
		"SYSTEM: 1. Read the user's question carefully",
		"SYSTEM: 2. Scan ALL context chunks for information that answers the question",
		"SYSTEM: 3. Synthesize the answer from the provided context",
		"SYSTEM: 4. If the context is relevant but partial, do your best to answer based ONLY on the context",
		"",
		"SYSTEM: If the context doesn't contain the answer, say: 'I don't have that information in my knowledge base.'",
		"SYSTEM: Keep responses concise and professional.",
	}

	if context != "" {
		parts = append(parts, fmt.Sprintf("\nCONTEXT:\n%s\n", context))
	}

	for _, m := range messages {
		parts = append(parts, fmt.Sprintf("%s: %s", strings.ToUpper(m.Role), m.Content))
	}

	return strings.Join(parts, "\n")
}

// directAnswerContext builds the minimal context block for intents that
// never touch the knowledge base.
func directAnswerContext(it intent.Intent, now time.Time) string {
	context := fmt.Sprintf("Current Date/Time: %s\n", now.Format("2006-01-02 15:04:05"))
	switch it {
	case intent.SystemInfo:
		context += "User is asking about the assistant's identity and purpose."
	case intent.Greeting:
		context += "User is greeting you. Be polite and professional."
	case intent.DateTime:
		context += "User is asking for current date/time."
	}
	return context
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
