package extract

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrLexicon indicates a missing or structurally invalid lexicon.
var ErrLexicon = errors.New("invalid lexicon")

// Modal phrase categories with defined classification semantics.
const (
	CategoryMandatory   = "mandatory"
	CategoryProhibition = "prohibitions"
	CategoryRecommended = "recommended"
)

// Lexicon holds the named pattern groups that drive obligation extraction.
// Modal phrases and severity keywords are matched case-insensitively on
// whole words; deadline and stop entries are regular expressions.
type Lexicon struct {
	ModalPhrases     map[string][]string `yaml:"modal_phrases"`
	SeverityKeywords map[string][]string `yaml:"severity_keywords"`
	DeadlinePatterns []string            `yaml:"deadline_patterns"`
	StopPhrases      []string            `yaml:"stop_phrases"`
}

// DefaultLexicon returns the built-in lexicon for regulatory English.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		ModalPhrases: map[string][]string{
			CategoryMandatory: {
				"shall", "must", "is required to", "are required to", "required to",
			},
			CategoryProhibition: {
				"shall not", "must not", "may not", "is prohibited", "are prohibited",
			},
			CategoryRecommended: {
				"should", "is recommended", "are recommended", "is advised", "are advised",
			},
		},
		SeverityKeywords: map[string][]string{
			"high": {
				"immediately", "critical", "material breach", "penalty", "penalties",
				"sanction", "sanctions", "revoke", "revocation", "suspend", "suspension",
			},
			"medium": {
				"report", "notify", "notification", "document", "retain", "submit", "disclose",
			},
		},
		DeadlinePatterns: []string{
			`\bwithin \d+ (?:calendar |business )?(?:days?|hours?|weeks?|months?)\b`,
			`\bno later than\b`,
			`\bby the end of\b`,
			`\bprior to\b`,
		},
		StopPhrases: []string{
			`table of contents`,
			`this page (?:is )?intentionally left blank`,
			`all rights reserved`,
			`^\s*page \d+\s*$`,
		},
	}
}

// LoadLexicon reads a lexicon from a YAML file and validates it.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrLexicon, path, err)
	}
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrLexicon, path, err)
	}
	if err := lex.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &lex, nil
}

// Validate checks that the required pattern groups are present. Extraction
// without mandatory modal phrases cannot classify anything, so that group
// must be non-empty.
func (l *Lexicon) Validate() error {
	if len(l.ModalPhrases) == 0 {
		return fmt.Errorf("%w: missing modal_phrases group", ErrLexicon)
	}
	if len(l.ModalPhrases[CategoryMandatory]) == 0 {
		return fmt.Errorf("%w: modal_phrases requires a non-empty %q category", ErrLexicon, CategoryMandatory)
	}
	if len(l.SeverityKeywords) == 0 {
		return fmt.Errorf("%w: missing severity_keywords group", ErrLexicon)
	}
	return nil
}

// categories returns the modal phrase categories in a stable order: the
// defined categories first, then any extras sorted by name. Extraction
// results must not depend on map iteration order.
func (l *Lexicon) categories() []string {
	known := []string{CategoryMandatory, CategoryProhibition, CategoryRecommended}
	var extras []string
	for cat := range l.ModalPhrases {
		switch cat {
		case CategoryMandatory, CategoryProhibition, CategoryRecommended:
		default:
			extras = append(extras, cat)
		}
	}
	sort.Strings(extras)
	var out []string
	for _, cat := range known {
		if len(l.ModalPhrases[cat]) > 0 {
			out = append(out, cat)
		}
	}
	return append(out, extras...)
}
