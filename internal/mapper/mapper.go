// Package mapper ranks catalog controls against extracted obligations using
// a blended similarity score: cosine similarity from the embedding index
// weighted with a lexical similarity, triaged against two thresholds.
package mapper

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dshills/regdelta/internal/catalog"
	"github.com/dshills/regdelta/internal/embed"
	"github.com/dshills/regdelta/internal/extract"
)

// ErrIndexNotBuilt indicates a search or mapping call before BuildIndex.
// This is a precondition violation, not a recoverable runtime state.
var ErrIndexNotBuilt = errors.New("mapper index not built")

// Status is the triage classification of one mapping.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusReview   Status = "review"
	StatusRejected Status = "rejected"
)

// Default blend weights and triage thresholds.
const (
	DefaultCosineWeight  = 0.7
	DefaultLexicalWeight = 0.3
	DefaultThresholdHigh = 0.75
	DefaultThresholdLow  = 0.60
	DefaultTopK          = 5
)

// Mapping relates one obligation to one candidate control.
type Mapping struct {
	ObligationText string  `json:"obligation_text"`
	ControlID      string  `json:"control_id"`
	ControlTitle   string  `json:"control_title"`
	Score          float64 `json:"score"`
	CosineScore    float64 `json:"cosine_score"`
	LexicalScore   float64 `json:"lexical_score"`
	Status         Status  `json:"status"`
	Reviewer       string  `json:"reviewer,omitempty"`
	Comment        string  `json:"comment,omitempty"`
}

// Candidate is one search result before triage.
type Candidate struct {
	Control      catalog.Control
	Score        float64
	CosineScore  float64
	LexicalScore float64
}

// Stats summarizes a full mapping table.
type Stats struct {
	TotalMappings           int            `json:"total_mappings"`
	ByStatus                map[Status]int `json:"by_status"`
	AvgScore                float64        `json:"avg_score"`
	TopScore                float64        `json:"top_score"`
	ObligationsWithMappings int            `json:"obligations_with_mappings"`
}

// Mapper searches a control catalog by blended similarity. The catalog and
// index are immutable after BuildIndex, so a Mapper is safe for concurrent
// searches across runs.
type Mapper struct {
	catalog       *catalog.Catalog
	embedder      embed.Embedder
	index         *embed.Index
	scorers       []Scorer
	cosineWeight  float64
	lexicalWeight float64
	logger        *slog.Logger
}

// New creates a Mapper over a loaded catalog. scorers are tried in order for
// each lexical comparison; pass NewEditScorer() and NewTokenOverlapScorer()
// for the standard chain. BuildIndex must be called before any search.
func New(cat *catalog.Catalog, embedder embed.Embedder, scorers []Scorer, cosineWeight, lexicalWeight float64, logger *slog.Logger) (*Mapper, error) {
	if cat == nil || cat.Len() == 0 {
		return nil, fmt.Errorf("mapper requires a non-empty catalog")
	}
	if embedder == nil {
		return nil, fmt.Errorf("mapper requires an embedder")
	}
	if len(scorers) == 0 {
		return nil, fmt.Errorf("mapper requires at least one lexical scorer")
	}
	if cosineWeight < 0 || lexicalWeight < 0 || cosineWeight+lexicalWeight == 0 {
		return nil, fmt.Errorf("invalid blend weights cosine=%g lexical=%g", cosineWeight, lexicalWeight)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{
		catalog:       cat,
		embedder:      embedder,
		scorers:       scorers,
		cosineWeight:  cosineWeight,
		lexicalWeight: lexicalWeight,
		logger:        logger,
	}, nil
}

// BuildIndex embeds every control's title and description into the search
// index. It must complete before SearchControls or MapObligations.
func (m *Mapper) BuildIndex() error {
	texts := make([]string, m.catalog.Len())
	for i, ctrl := range m.catalog.Controls() {
		texts[i] = ctrl.EmbeddingText()
	}
	index, err := embed.BuildIndex(m.embedder, texts)
	if err != nil {
		return fmt.Errorf("building control index: %w", err)
	}
	m.index = index
	m.logger.Info("control index built", slog.Int("vectors", index.Len()))
	return nil
}

// IndexBuilt reports whether BuildIndex has completed.
func (m *Mapper) IndexBuilt() bool { return m.index != nil }

// lexicalSimilarity runs the scorer chain, returning the first successful
// score and the name of the scorer that produced it.
func (m *Mapper) lexicalSimilarity(a, b string) (float64, string) {
	var lastErr error
	for _, scorer := range m.scorers {
		score, err := scorer.Similarity(a, b)
		if err == nil {
			return score, scorer.Name()
		}
		lastErr = err
	}
	// Every chain ends with the token-overlap scorer, which cannot fail;
	// reaching this point means the chain was misassembled.
	m.logger.Warn("all lexical scorers failed", slog.String("error", lastErr.Error()))
	return 0, "none"
}

// SearchControls returns the top-k controls for the query text, ranked by
// blended score descending. Ties preserve index-search order.
func (m *Mapper) SearchControls(text string, k int) ([]Candidate, error) {
	if m.index == nil {
		return nil, ErrIndexNotBuilt
	}
	results, err := m.index.Search(m.embedder.Embed(text), k)
	if err != nil {
		return nil, fmt.Errorf("searching controls: %w", err)
	}

	candidates := make([]Candidate, 0, len(results))
	for _, res := range results {
		ctrl := m.catalog.Controls()[res.Index]
		lexical, scorerName := m.lexicalSimilarity(text, ctrl.EmbeddingText())
		if scorerName != m.scorers[0].Name() {
			m.logger.Warn("lexical scorer degraded",
				slog.String("scorer", scorerName),
				slog.String("control_id", ctrl.ControlID))
		}
		candidates = append(candidates, Candidate{
			Control:      ctrl,
			Score:        m.cosineWeight*res.Score + m.lexicalWeight*lexical,
			CosineScore:  res.Score,
			LexicalScore: lexical,
		})
	}

	// Stable insertion sort by blended score keeps index-search order on ties.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].Score > candidates[j-1].Score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
	return candidates, nil
}

// Classify triages a blended score against the two thresholds. The result
// is monotonic in score: at or above high accepts, at or above low reviews,
// below low rejects.
func Classify(score, thresholdHigh, thresholdLow float64) Status {
	switch {
	case score >= thresholdHigh:
		return StatusAccepted
	case score >= thresholdLow:
		return StatusReview
	default:
		return StatusRejected
	}
}

// MapObligations produces the per-obligation mapping table, keyed by section
// ID. Requires thresholdHigh >= thresholdLow and a built index.
func (m *Mapper) MapObligations(obligations []extract.Obligation, k int, thresholdHigh, thresholdLow float64) (map[string][]Mapping, error) {
	if m.index == nil {
		return nil, ErrIndexNotBuilt
	}
	if thresholdHigh < thresholdLow {
		return nil, fmt.Errorf("threshold_high %g < threshold_low %g", thresholdHigh, thresholdLow)
	}

	mappings := make(map[string][]Mapping, len(obligations))
	for _, ob := range obligations {
		candidates, err := m.SearchControls(ob.Text, k)
		if err != nil {
			return nil, err
		}
		rows := make([]Mapping, 0, len(candidates))
		for _, cand := range candidates {
			rows = append(rows, Mapping{
				ObligationText: ob.Text,
				ControlID:      cand.Control.ControlID,
				ControlTitle:   cand.Control.Title,
				Score:          cand.Score,
				CosineScore:    cand.CosineScore,
				LexicalScore:   cand.LexicalScore,
				Status:         Classify(cand.Score, thresholdHigh, thresholdLow),
			})
		}
		mappings[ob.SectionID] = rows
	}
	m.logger.Info("mapping complete", slog.Int("obligations", len(obligations)))
	return mappings, nil
}

// ComputeStats aggregates a mapping table for reporting.
func ComputeStats(mappings map[string][]Mapping) Stats {
	stats := Stats{
		ByStatus:                map[Status]int{StatusAccepted: 0, StatusReview: 0, StatusRejected: 0},
		ObligationsWithMappings: len(mappings),
	}
	var sum float64
	for _, rows := range mappings {
		for _, m := range rows {
			stats.TotalMappings++
			stats.ByStatus[m.Status]++
			sum += m.Score
			if m.Score > stats.TopScore {
				stats.TopScore = m.Score
			}
		}
	}
	if stats.TotalMappings > 0 {
		stats.AvgScore = sum / float64(stats.TotalMappings)
	}
	return stats
}
