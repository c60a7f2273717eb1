// Package extract classifies regulatory paragraphs as obligations using a
// lexicon of modal phrases, severity keywords, deadline patterns, and stop
// phrases. Classification is deterministic: the same paragraph and lexicon
// always produce the same obligation.
package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
)

// Severity grades an obligation.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// DefaultMinLength filters out headings and fragments.
const DefaultMinLength = 30

// Obligation is one extracted requirement. Immutable once created.
type Obligation struct {
	SectionID    string   `json:"section_id"`
	Text         string   `json:"text"`
	Severity     Severity `json:"severity"`
	Citations    []string `json:"citations"`
	ModalPhrases []string `json:"modal_phrases"`
	HasDeadline  bool     `json:"has_deadline"`
}

// Stats summarizes a set of extracted obligations.
type Stats struct {
	Total         int              `json:"total"`
	BySeverity    map[Severity]int `json:"by_severity"`
	WithDeadlines int              `json:"with_deadlines"`
	WithCitations int              `json:"with_citations"`
}

type modalPattern struct {
	phrase   string
	category string
	re       *regexp.Regexp
}

// Extractor applies a compiled lexicon to paragraphs.
type Extractor struct {
	lexicon   *Lexicon
	modals    []modalPattern
	severity  map[string][]*regexp.Regexp
	deadlines []*regexp.Regexp
	stops     []*regexp.Regexp
	logger    *slog.Logger
}

// citationPatterns match common regulatory cross-references with optional
// dotted sub-numbering, e.g. "Section 4.2" or "Article 12".
var citationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Section\s+\d+(?:\.\d+)*`),
	regexp.MustCompile(`(?i)Article\s+\d+(?:\.\d+)*`),
	regexp.MustCompile(`(?i)Clause\s+\d+(?:\.\d+)*`),
	regexp.MustCompile(`(?i)Paragraph\s+\d+(?:\.\d+)*`),
	regexp.MustCompile(`(?i)Regulation\s+\d+(?:\.\d+)*`),
}

// New compiles the lexicon into an Extractor. A malformed lexicon (missing
// groups or invalid regular expressions) fails here, not during extraction.
func New(lexicon *Lexicon, logger *slog.Logger) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := lexicon.Validate(); err != nil {
		return nil, err
	}

	e := &Extractor{
		lexicon:  lexicon,
		severity: make(map[string][]*regexp.Regexp),
		logger:   logger,
	}

	for _, cat := range lexicon.categories() {
		for _, phrase := range lexicon.ModalPhrases[cat] {
			re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`)
			if err != nil {
				return nil, fmt.Errorf("%w: modal phrase %q: %v", ErrLexicon, phrase, err)
			}
			e.modals = append(e.modals, modalPattern{phrase: phrase, category: cat, re: re})
		}
	}
	for level, keywords := range lexicon.SeverityKeywords {
		for _, kw := range keywords {
			re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
			if err != nil {
				return nil, fmt.Errorf("%w: severity keyword %q: %v", ErrLexicon, kw, err)
			}
			e.severity[level] = append(e.severity[level], re)
		}
	}
	for _, pat := range lexicon.DeadlinePatterns {
		re, err := regexp.Compile(`(?i)` + pat)
		if err != nil {
			return nil, fmt.Errorf("%w: deadline pattern %q: %v", ErrLexicon, pat, err)
		}
		e.deadlines = append(e.deadlines, re)
	}
	for _, pat := range lexicon.StopPhrases {
		re, err := regexp.Compile(`(?i)` + pat)
		if err != nil {
			return nil, fmt.Errorf("%w: stop phrase %q: %v", ErrLexicon, pat, err)
		}
		e.stops = append(e.stops, re)
	}

	logger.Debug("extractor initialized",
		slog.Int("modal_patterns", len(e.modals)),
		slog.Int("deadline_patterns", len(e.deadlines)))
	return e, nil
}

// ExtractObligations classifies one paragraph. It returns zero or one
// obligations: a paragraph below minLength, matching a stop phrase, or
// containing no modal phrase yields none. Extraction never fails at runtime.
func (e *Extractor) ExtractObligations(text, sectionID string, minLength int) []Obligation {
	if len(text) < minLength || e.isStopPhrase(text) {
		return nil
	}
	modalPhrases := e.detectModalPhrases(text)
	if len(modalPhrases) == 0 {
		return nil
	}
	hasDeadline := e.hasDeadline(text)
	severity := e.determineSeverity(text, hasDeadline)

	ob := Obligation{
		SectionID:    sectionID,
		Text:         text,
		Severity:     severity,
		Citations:    extractCitations(text),
		ModalPhrases: modalPhrases,
		HasDeadline:  hasDeadline,
	}
	e.logger.Debug("extracted obligation",
		slog.String("section_id", sectionID),
		slog.String("severity", string(severity)))
	return []Obligation{ob}
}

// ExtractFromParagraphs applies ExtractObligations to each paragraph with
// section IDs "para_{index}". A minLength of 0 keeps every paragraph eligible.
func (e *Extractor) ExtractFromParagraphs(paragraphs []string, minLength int) []Obligation {
	var all []Obligation
	for i, para := range paragraphs {
		all = append(all, e.ExtractObligations(para, fmt.Sprintf("para_%d", i), minLength)...)
	}
	e.logger.Info("extraction complete",
		slog.Int("obligations", len(all)),
		slog.Int("paragraphs", len(paragraphs)))
	return all
}

func (e *Extractor) isStopPhrase(text string) bool {
	for _, re := range e.stops {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// detectModalPhrases returns matched phrases in lexicon order.
func (e *Extractor) detectModalPhrases(text string) []string {
	var found []string
	for _, mp := range e.modals {
		if mp.re.MatchString(text) {
			found = append(found, mp.phrase)
		}
	}
	return found
}

func (e *Extractor) hasDeadline(text string) bool {
	for _, re := range e.deadlines {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// determineSeverity applies the classification rules in strict order; the
// first matching rule wins. The ordering is a behavioral contract: high
// keywords, then prohibitions, then deadline escalation of mandatory
// obligations, then medium keywords, then mandatory phrases, then low.
func (e *Extractor) determineSeverity(text string, hasDeadline bool) Severity {
	for _, re := range e.severity["high"] {
		if re.MatchString(text) {
			return SeverityHigh
		}
	}
	for _, mp := range e.modals {
		if mp.category == CategoryProhibition && mp.re.MatchString(text) {
			return SeverityHigh
		}
	}
	if hasDeadline {
		for _, re := range e.severity["medium"] {
			if re.MatchString(text) {
				return SeverityHigh
			}
		}
		for _, mp := range e.modals {
			if mp.category == CategoryMandatory && mp.re.MatchString(text) {
				return SeverityHigh
			}
		}
	}
	for _, re := range e.severity["medium"] {
		if re.MatchString(text) {
			return SeverityMedium
		}
	}
	for _, mp := range e.modals {
		if mp.category == CategoryMandatory && mp.re.MatchString(text) {
			return SeverityMedium
		}
	}
	return SeverityLow
}

// extractCitations returns the deduplicated, sorted set of reference strings.
func extractCitations(text string) []string {
	seen := make(map[string]struct{})
	for _, re := range citationPatterns {
		for _, m := range re.FindAllString(text, -1) {
			seen[m] = struct{}{}
		}
	}
	citations := make([]string, 0, len(seen))
	for c := range seen {
		citations = append(citations, c)
	}
	sort.Strings(citations)
	return citations
}

// ComputeStats aggregates extraction results for reporting.
func ComputeStats(obligations []Obligation) Stats {
	stats := Stats{
		Total:      len(obligations),
		BySeverity: map[Severity]int{SeverityHigh: 0, SeverityMedium: 0, SeverityLow: 0},
	}
	for _, ob := range obligations {
		stats.BySeverity[ob.Severity]++
		if ob.HasDeadline {
			stats.WithDeadlines++
		}
		if len(ob.Citations) > 0 {
			stats.WithCitations++
		}
	}
	return stats
}
