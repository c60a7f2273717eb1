package mapper

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Scorer computes a lexical similarity in [0,1] between two texts. A scorer
// may refuse an input pair with an error, in which case the caller falls
// back to the next scorer in its chain.
type Scorer interface {
	Name() string
	Similarity(a, b string) (float64, error)
}

// maxEditInput bounds the token-normalized strings fed to the edit-distance
// scorer; diff computation is quadratic in input length.
const maxEditInput = 4096

// editScorer measures similarity as 1 - levenshtein/maxLen over the
// token-set normalized forms of both texts, so word order and repetition
// do not affect the score.
type editScorer struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewEditScorer returns the primary lexical scorer, built on the
// diff-match-patch edit distance.
func NewEditScorer() Scorer {
	return &editScorer{dmp: diffmatchpatch.New()}
}

func (s *editScorer) Name() string { return "editratio" }

func (s *editScorer) Similarity(a, b string) (float64, error) {
	na := tokenSetString(a)
	nb := tokenSetString(b)
	if len(na) > maxEditInput || len(nb) > maxEditInput {
		return 0, fmt.Errorf("editratio: input exceeds %d bytes after normalization", maxEditInput)
	}
	if na == "" || nb == "" {
		return 0, nil
	}
	diffs := s.dmp.DiffMain(na, nb, false)
	lev := s.dmp.DiffLevenshtein(diffs)
	maxLen := len([]rune(na))
	if l := len([]rune(nb)); l > maxLen {
		maxLen = l
	}
	sim := 1.0 - float64(lev)/float64(maxLen)
	if sim < 0 {
		sim = 0
	}
	return sim, nil
}

// tokenOverlapScorer is the degraded fallback: Jaccard overlap of token sets.
type tokenOverlapScorer struct{}

// NewTokenOverlapScorer returns the token-overlap fallback scorer.
func NewTokenOverlapScorer() Scorer {
	return tokenOverlapScorer{}
}

func (tokenOverlapScorer) Name() string { return "tokenoverlap" }

func (tokenOverlapScorer) Similarity(a, b string) (float64, error) {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0, nil
	}
	intersection := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union), nil
}

func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokens(text) {
		set[tok] = struct{}{}
	}
	return set
}

// tokenSetString joins the sorted unique tokens of text with single spaces.
func tokenSetString(text string) string {
	set := tokenSet(text)
	sorted := make([]string, 0, len(set))
	for tok := range set {
		sorted = append(sorted, tok)
	}
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}
