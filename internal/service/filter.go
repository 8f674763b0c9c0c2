package service

import (
	"strings"

	"github.com/corpwise/corpwise/internal/intent"
	"github.com/corpwise/corpwise/internal/retrieval"
)

// filterChunksByQuery keeps chunks that share at least one query token.
// If no chunk overlaps lexically the original set stands; a purely semantic
// match is still a match.
func filterChunksByQuery(chunks []*retrieval.Chunk, query string) []*retrieval.Chunk {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return chunks
	}
	kept := make([]*retrieval.Chunk, 0, len(chunks))
	for _, c := range chunks {
		text := strings.ToLower(c.Text)
		for _, t := range tokens {
			if strings.Contains(text, t) {
				kept = append(kept, c)
				break
			}
		}
	}
	if len(kept) == 0 {
		return chunks
	}
	return kept
}

// dominantChunks narrows the evidence to the majority source when one source
// backs at least 60% of the chunks. Mixing disparate documents into one
// answer produces worse generations than a single coherent source.
func dominantChunks(chunks []*retrieval.Chunk) []*retrieval.Chunk {
	if len(chunks) == 0 {
		return chunks
	}
	counts := make(map[string]int)
	for _, c := range chunks {
		counts[c.Source]++
	}
	var topSource string
	var topCount int
	for src, n := range counts {
		if n > topCount {
			topSource, topCount = src, n
		}
	}
	if float32(topCount)/float32(len(chunks)) < 0.6 {
		return chunks
	}
	kept := make([]*retrieval.Chunk, 0, topCount)
	for _, c := range chunks {
		if c.Source == topSource {
			kept = append(kept, c)
		}
	}
	return kept
}

// restrictChunksByIntent drops chunks whose source falls outside the
// intent's domain allow-list. Emptying the set keeps the original chunks.
func restrictChunksByIntent(chunks []*retrieval.Chunk, it intent.Intent, domains map[string][]string) []*retrieval.Chunk {
	kept := make([]*retrieval.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if intent.AllowedSource(domains, it, c.Source) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return chunks
	}
	return kept
}

// rebuildContext reassembles the prompt context and source list after the
// post-retrieval filters may have dropped chunks.
func rebuildContext(chunks []*retrieval.Chunk) (string, []string) {
	parts := make([]string, 0, len(chunks))
	counts := make(map[string]int)
	order := make([]string, 0, len(chunks))
	for _, c := range chunks {
		text := strings.Join(strings.Fields(c.Text), " ")
		if text != "" {
			parts = append(parts, text)
		}
		if c.Source == "" {
			continue
		}
		if _, ok := counts[c.Source]; !ok {
			order = append(order, c.Source)
		}
		counts[c.Source]++
	}

	var sources []string
	if len(chunks) > 0 {
		for _, src := range order {
			if float32(counts[src])/float32(len(chunks)) >= 0.7 {
				sources = []string{src}
				break
			}
		}
		if sources == nil {
			sources = order
		}
	}
	return strings.Join(parts, "\n\n"), sources
}
