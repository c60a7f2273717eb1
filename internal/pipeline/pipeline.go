// Package pipeline orchestrates the change-impact analysis as a fixed-stage
// state machine: ingest, diff, extract, map. Stages run strictly in order
// within a run; every stage outcome is recorded as exactly one audit entry,
// and a failed audit append fails the stage that attempted it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/regdelta/internal/audit"
	"github.com/dshills/regdelta/internal/catalog"
	"github.com/dshills/regdelta/internal/config"
	"github.com/dshills/regdelta/internal/docdiff"
	"github.com/dshills/regdelta/internal/embed"
	"github.com/dshills/regdelta/internal/extract"
	"github.com/dshills/regdelta/internal/ingest"
	"github.com/dshills/regdelta/internal/mapper"
)

// Status is the run state.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusIngest     Status = "ingest"
	StatusDiff       Status = "diff"
	StatusExtract    Status = "extract"
	StatusMap        Status = "map"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// DocSummary describes one ingested document for reporting.
type DocSummary struct {
	File       string `json:"file"`
	Paragraphs int    `json:"paragraphs"`
	Chars      int    `json:"chars"`
	Extractor  string `json:"extractor"`
	SHA256     string `json:"sha256"`
}

// IngestResult is the ingest stage outcome. A document that failed to
// extract appears in Errors; the stage itself succeeds with what it has.
type IngestResult struct {
	Scenario string      `json:"scenario"`
	Baseline *DocSummary `json:"baseline,omitempty"`
	Revised  *DocSummary `json:"revised,omitempty"`
	Errors   []string    `json:"errors,omitempty"`
}

// DiffResult is the diff stage outcome.
type DiffResult struct {
	Skipped bool             `json:"skipped,omitempty"`
	Summary *docdiff.Summary `json:"summary,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// ExtractResult is the extract stage outcome.
type ExtractResult struct {
	Stats *extract.Stats `json:"stats,omitempty"`
	Error string         `json:"error,omitempty"`
}

// MapResult is the map stage outcome.
type MapResult struct {
	Stats *mapper.Stats `json:"stats,omitempty"`
	Error string        `json:"error,omitempty"`
}

// Report is the full run outcome, suitable for rendering.
type Report struct {
	Tool            string         `json:"tool"`
	RunID           string         `json:"run_id"`
	Scenario        string         `json:"scenario"`
	Status          Status         `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     time.Time      `json:"completed_at"`
	DurationSeconds float64        `json:"duration_seconds"`
	Ingest          *IngestResult  `json:"ingest,omitempty"`
	Diff            *DiffResult    `json:"diff,omitempty"`
	Extract         *ExtractResult `json:"extract,omitempty"`
	Map             *MapResult     `json:"map,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// Run is the run-scoped mutable state, owned exclusively by the Orchestrator
// and mutated only by stage transitions.
type Run struct {
	ID          string
	Scenario    string
	Status      Status
	Baseline    *ingest.Document
	Revised     *ingest.Document
	Diff        *docdiff.Diff
	Obligations []extract.Obligation
	Mappings    map[string][]mapper.Mapping
}

// Orchestrator sequences the pipeline stages for one run at a time. Distinct
// runs use distinct Orchestrator instances; they may share one audit log
// (append-serialized) and one immutable catalog/index.
type Orchestrator struct {
	cfg    *config.Config
	audit  *audit.Log
	logger *slog.Logger

	chain     *ingest.Chain
	extractor *extract.Extractor
	mapper    *mapper.Mapper

	run *Run
}

// New creates an Orchestrator. Init must be called before RunPipeline.
func New(cfg *config.Config, auditLog *audit.Log, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:    cfg,
		audit:  auditLog,
		logger: logger,
		chain:  ingest.NewChain(logger),
	}
}

// Init constructs the extractor and mapper from configuration and builds the
// control index. Configuration failures here are fatal and not retryable.
func (o *Orchestrator) Init() error {
	lexicon := extract.DefaultLexicon()
	lexiconSource := "builtin"
	if o.cfg.Lexicon.File != "" {
		loaded, err := extract.LoadLexicon(o.cfg.Lexicon.File)
		if err != nil {
			return err
		}
		lexicon = loaded
		lexiconSource = o.cfg.Lexicon.File
	}
	extractor, err := extract.New(lexicon, o.logger)
	if err != nil {
		return err
	}
	o.extractor = extractor
	if _, err := o.audit.Append("system", "agent_init", map[string]any{
		"agent": "extractor", "lexicon": lexiconSource,
	}); err != nil {
		return err
	}

	cat, err := catalog.Load(o.cfg.Controls.CatalogDir, o.cfg.Controls.Catalogs, o.logger)
	if err != nil {
		return err
	}
	embedder, err := embed.NewEmbedder(o.cfg.Embedding.Provider)
	if err != nil {
		return err
	}
	m, err := mapper.New(cat, embedder,
		[]mapper.Scorer{mapper.NewEditScorer(), mapper.NewTokenOverlapScorer()},
		o.cfg.Mapping.Blend.CosineWeight, o.cfg.Mapping.Blend.LexicalWeight, o.logger)
	if err != nil {
		return err
	}
	if _, err := o.audit.Append("system", "agent_init", map[string]any{
		"agent": "mapper", "controls_loaded": cat.Len(),
	}); err != nil {
		return err
	}

	if err := m.BuildIndex(); err != nil {
		return err
	}
	o.mapper = m
	_, err = o.audit.Append("system", "index_built", map[string]any{"vectors": cat.Len()})
	return err
}

// Run returns the current run state, or nil before the first stage.
func (o *Orchestrator) Run() *Run { return o.run }

// StageIngest loads the revised document and, when supplied, the baseline.
// Per-document extraction failures are recorded and do not abort the stage.
func (o *Orchestrator) StageIngest(ctx context.Context, baselinePath, revisedPath, scenario string) (*IngestResult, error) {
	o.run = &Run{ID: uuid.NewString(), Scenario: scenario, Status: StatusIngest}
	result := &IngestResult{Scenario: scenario}

	if baselinePath != "" {
		doc, err := o.chain.Load(ctx, baselinePath)
		if err != nil {
			o.logger.Error("baseline ingestion failed", slog.String("error", err.Error()))
			result.Errors = append(result.Errors, fmt.Sprintf("baseline: %v", err))
		} else {
			o.run.Baseline = doc
			result.Baseline = summarize(doc)
		}
	}
	if revisedPath != "" {
		doc, err := o.chain.Load(ctx, revisedPath)
		if err != nil {
			o.logger.Error("revised ingestion failed", slog.String("error", err.Error()))
			result.Errors = append(result.Errors, fmt.Sprintf("revised: %v", err))
		} else {
			o.run.Revised = doc
			result.Revised = summarize(doc)
		}
	} else {
		result.Errors = append(result.Errors, "revised: no document supplied")
	}

	payload := map[string]any{"scenario": scenario, "run_id": o.run.ID, "errors": len(result.Errors)}
	if result.Baseline != nil {
		payload["baseline_paragraphs"] = result.Baseline.Paragraphs
	}
	if result.Revised != nil {
		payload["revised_paragraphs"] = result.Revised.Paragraphs
	}
	if _, err := o.audit.Append("pipeline", "ingest", payload); err != nil {
		return nil, err
	}
	return result, nil
}

func summarize(doc *ingest.Document) *DocSummary {
	return &DocSummary{
		File:       filepath.Base(doc.Path),
		Paragraphs: len(doc.Paragraphs),
		Chars:      len(doc.Text),
		Extractor:  doc.Extractor,
		SHA256:     doc.SHA256,
	}
}

// StageDiff computes the paragraph diff. It is skipped, not failed, when no
// baseline was supplied; a missing revised document is a recorded error.
func (o *Orchestrator) StageDiff() (*DiffResult, error) {
	o.run.Status = StatusDiff
	result := &DiffResult{}
	switch {
	case o.run.Baseline == nil:
		result.Skipped = true
	case o.run.Revised == nil:
		result.Error = "missing revised document"
	default:
		o.run.Diff = docdiff.Compute(o.run.Baseline.Paragraphs, o.run.Revised.Paragraphs)
		summary := o.run.Diff.Summary()
		result.Summary = &summary
	}

	payload := map[string]any{"run_id": o.run.ID}
	switch {
	case result.Skipped:
		payload["skipped"] = true
	case result.Error != "":
		payload["error"] = result.Error
	default:
		payload["total_ops"] = result.Summary.TotalOps
		payload["paragraphs_added"] = result.Summary.ParagraphsAdded
		payload["paragraphs_removed"] = result.Summary.ParagraphsRemoved
	}
	if _, err := o.audit.Append("pipeline", "compute_diff", payload); err != nil {
		return nil, err
	}
	return result, nil
}

// StageExtract extracts obligations from the revised document. An
// uninitialized extractor is a precondition violation and fails the run.
func (o *Orchestrator) StageExtract() (*ExtractResult, error) {
	o.run.Status = StatusExtract
	if o.extractor == nil {
		return nil, fmt.Errorf("extractor not initialized: call Init before StageExtract")
	}

	result := &ExtractResult{}
	if o.run.Revised == nil {
		result.Error = "missing revised document"
	} else {
		o.run.Obligations = o.extractor.ExtractFromParagraphs(o.run.Revised.Paragraphs, o.cfg.Extract.MinLength)
		stats := extract.ComputeStats(o.run.Obligations)
		result.Stats = &stats
	}

	payload := map[string]any{"run_id": o.run.ID}
	if result.Error != "" {
		payload["error"] = result.Error
	} else {
		payload["total"] = result.Stats.Total
		payload["high"] = result.Stats.BySeverity[extract.SeverityHigh]
		payload["medium"] = result.Stats.BySeverity[extract.SeverityMedium]
		payload["low"] = result.Stats.BySeverity[extract.SeverityLow]
	}
	if _, err := o.audit.Append("extractor", "extract_obligations", payload); err != nil {
		return nil, err
	}
	return result, nil
}

// StageMap maps obligations to controls. An uninitialized mapper or unbuilt
// index is a precondition violation; an empty obligation list is a recorded
// error, not a failure.
func (o *Orchestrator) StageMap() (*MapResult, error) {
	o.run.Status = StatusMap
	if o.mapper == nil || !o.mapper.IndexBuilt() {
		return nil, fmt.Errorf("mapper not initialized: call Init before StageMap")
	}

	result := &MapResult{}
	if len(o.run.Obligations) == 0 {
		result.Error = "no obligations"
	} else {
		mappings, err := o.mapper.MapObligations(o.run.Obligations,
			o.cfg.Mapping.TopK, o.cfg.Mapping.Thresholds.High, o.cfg.Mapping.Thresholds.Low)
		if err != nil {
			return nil, err
		}
		o.run.Mappings = mappings
		stats := mapper.ComputeStats(mappings)
		result.Stats = &stats
	}

	payload := map[string]any{"run_id": o.run.ID}
	if result.Error != "" {
		payload["error"] = result.Error
	} else {
		payload["total_mappings"] = result.Stats.TotalMappings
		payload["accepted"] = result.Stats.ByStatus[mapper.StatusAccepted]
		payload["review"] = result.Stats.ByStatus[mapper.StatusReview]
		payload["rejected"] = result.Stats.ByStatus[mapper.StatusRejected]
	}
	if _, err := o.audit.Append("mapper", "map_obligations", payload); err != nil {
		return nil, err
	}
	return result, nil
}

// RunPipeline executes all stages in order for one scenario. Stage-local
// problems (a failed document, an empty obligation list) are recorded in the
// report; infrastructure and precondition errors transition the run to
// failed, emit a pipeline_failed audit entry, and halt remaining stages.
func (o *Orchestrator) RunPipeline(ctx context.Context, baselinePath, revisedPath, scenario string) (*Report, error) {
	started := time.Now().UTC()
	report := &Report{
		Tool:      "regdelta",
		Scenario:  scenario,
		Status:    StatusNotStarted,
		StartedAt: started,
	}

	fail := func(stageErr error) (*Report, error) {
		o.run.Status = StatusFailed
		report.Status = StatusFailed
		report.Error = stageErr.Error()
		report.CompletedAt = time.Now().UTC()
		report.DurationSeconds = report.CompletedAt.Sub(started).Seconds()
		if _, err := o.audit.Append("pipeline", "pipeline_failed", map[string]any{
			"run_id": o.run.ID, "scenario": scenario, "error": stageErr.Error(),
		}); err != nil {
			o.logger.Error("audit append failed while recording failure", slog.String("error", err.Error()))
		}
		return report, stageErr
	}

	ingestResult, err := o.StageIngest(ctx, baselinePath, revisedPath, scenario)
	if err != nil {
		if o.run == nil {
			o.run = &Run{Scenario: scenario}
		}
		return fail(err)
	}
	report.RunID = o.run.ID
	report.Ingest = ingestResult

	diffResult, err := o.StageDiff()
	if err != nil {
		return fail(err)
	}
	report.Diff = diffResult

	extractResult, err := o.StageExtract()
	if err != nil {
		return fail(err)
	}
	report.Extract = extractResult

	mapResult, err := o.StageMap()
	if err != nil {
		return fail(err)
	}
	report.Map = mapResult

	o.run.Status = StatusSuccess
	report.Status = StatusSuccess
	report.CompletedAt = time.Now().UTC()
	report.DurationSeconds = report.CompletedAt.Sub(started).Seconds()
	if _, err := o.audit.Append("pipeline", "pipeline_complete", map[string]any{
		"run_id": o.run.ID, "scenario": scenario, "duration_seconds": report.DurationSeconds,
	}); err != nil {
		return fail(err)
	}
	o.logger.Info("pipeline complete",
		slog.String("scenario", scenario),
		slog.Float64("duration_seconds", report.DurationSeconds))
	return report, nil
}
