package ingest

import (
	"regexp"
	"sort"
	"strings"
)

// Default paragraph size bounds in characters.
const (
	DefaultMinParagraph = 50
	DefaultMaxParagraph = 2000
)

var (
	crlfRE       = regexp.MustCompile(`\r\n`)
	multiBlankRE = regexp.MustCompile(`\n{3,}`)
	multiSpaceRE = regexp.MustCompile(` {2,}`)
	blankSplitRE = regexp.MustCompile(`\n\n+`)

	// headingRE matches section openers common in regulatory documents at
	// the start of a line: "1.2.3 Title", "Requirement 1", "Section 1",
	// "Article 1", "1. Title", "Clause 1:".
	headingRE = regexp.MustCompile(`(?m)^(?:\d+\.\d+(?:\.\d+)?\s+[A-Z]|Requirement\s+\d+|Section\s+\d+|Article\s+\d+|\d+\.\s+[A-Z]|[A-Z][a-z]+\s+\d+:)`)

	// sentenceBoundaryRE locates a terminator followed by whitespace and a
	// capital; the split point is just before the capital.
	sentenceBoundaryRE = regexp.MustCompile(`[.!?]\s+[A-Z]`)
)

// Paragraphize segments raw document text into paragraphs. Text is split on
// blank lines and section headings; chunks shorter than minLen are dropped,
// chunks longer than maxLen are re-segmented on sentence boundaries. If no
// structural breaks exist, lines are accumulated into minLen-sized
// paragraphs as a last resort.
func Paragraphize(text string, minLen, maxLen int) []string {
	text = crlfRE.ReplaceAllString(text, "\n")
	text = multiBlankRE.ReplaceAllString(text, "\n\n")
	text = multiSpaceRE.ReplaceAllString(text, " ")

	var paragraphs []string
	for _, block := range blankSplitRE.Split(text, -1) {
		for _, chunk := range splitAtHeadings(block) {
			chunk = strings.TrimSpace(chunk)
			if len(chunk) < 10 {
				continue
			}
			if len(chunk) > maxLen {
				paragraphs = append(paragraphs, splitLongChunk(chunk, minLen, maxLen)...)
			} else if len(chunk) >= minLen {
				paragraphs = append(paragraphs, chunk)
			}
		}
	}

	if len(paragraphs) == 0 {
		paragraphs = joinLines(text, minLen)
	}
	return paragraphs
}

// splitAtHeadings cuts a block at every heading start after the first
// character, keeping the heading with its following text.
func splitAtHeadings(block string) []string {
	matches := headingRE.FindAllStringIndex(block, -1)
	var cuts []int
	for _, m := range matches {
		if m[0] > 0 {
			cuts = append(cuts, m[0])
		}
	}
	if len(cuts) == 0 {
		return []string{block}
	}
	sort.Ints(cuts)
	var chunks []string
	prev := 0
	for _, cut := range cuts {
		chunks = append(chunks, block[prev:cut])
		prev = cut
	}
	return append(chunks, block[prev:])
}

// splitLongChunk re-segments an oversize chunk along sentence boundaries,
// flushing accumulated sentences once they reach minLen.
func splitLongChunk(chunk string, minLen, maxLen int) []string {
	sentences := splitSentences(chunk)
	var out []string
	var current []string
	length := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		para := strings.Join(current, " ")
		if len(para) >= minLen {
			out = append(out, para)
		}
		current = nil
		length = 0
	}

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		current = append(current, sentence)
		length += len(sentence)
		if length >= minLen {
			flush()
		}
	}
	flush()
	return out
}

// splitSentences cuts text just before the capital letter that follows a
// sentence terminator.
func splitSentences(text string) []string {
	matches := sentenceBoundaryRE.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	var sentences []string
	prev := 0
	for _, m := range matches {
		cut := m[1] - 1 // index of the capital letter
		sentences = append(sentences, text[prev:cut])
		prev = cut
	}
	return append(sentences, text[prev:])
}

// joinLines accumulates non-empty lines into paragraphs of at least minLen
// characters. Used when the text has no structural breaks at all.
func joinLines(text string, minLen int) []string {
	var paragraphs []string
	var current []string
	length := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		current = append(current, line)
		length += len(line)
		if length >= minLen {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = nil
			length = 0
		}
	}
	if len(current) > 0 {
		para := strings.Join(current, " ")
		if len(para) >= minLen {
			paragraphs = append(paragraphs, para)
		}
	}
	return paragraphs
}
