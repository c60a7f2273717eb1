package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/dshills/regdelta/internal/audit"
	"github.com/dshills/regdelta/internal/config"
)

const testCatalog = `controls:
  - control_id: IR-1
    domain: incident_response
    title: Incident reporting procedure
    description: Security incidents must be reported to the regulator within defined timeframes, with severity classification and root cause analysis.
    owner: security
  - control_id: AC-1
    domain: access_control
    title: Access review
    description: User access rights are reviewed quarterly and revoked when no longer required.
    owner: it
`

const baselineDoc = `Introduction to the operational resilience requirements for regulated firms.

Firms should maintain an inventory of critical business services and review it annually.
`

const revisedDoc = `Introduction to the operational resilience requirements for regulated firms.

The firm shall report all security incidents to the regulator within 24 hours of detection, including a severity classification.

Firms should maintain an inventory of critical business services and review it annually.
`

// noObligationsDoc has enough text to survive paragraph filtering but no
// modal verbs.
const noObligationsDoc = `This chapter provides background on the history of the regulatory framework and its evolution over the last decade.
`

type testEnv struct {
	orch  *Orchestrator
	audit *audit.Log
	cfg   *config.Config
	dir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	catalogDir := filepath.Join(dir, "catalogs")
	if err := os.MkdirAll(catalogDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(catalogDir, "controls.yml"), []byte(testCatalog), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Storage.AuditDir = filepath.Join(dir, "audit")
	cfg.Controls.CatalogDir = catalogDir
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	log, err := audit.Open(cfg.AuditFile())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { log.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	orch := New(cfg, log, logger)
	if err := orch.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return &testEnv{orch: orch, audit: log, cfg: cfg, dir: dir}
}

func (e *testEnv) writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunPipeline_FullScenario(t *testing.T) {
	env := newTestEnv(t)
	baseline := env.writeDoc(t, "baseline.txt", baselineDoc)
	revised := env.writeDoc(t, "revised.txt", revisedDoc)

	report, err := env.orch.RunPipeline(context.Background(), baseline, revised, "q3_update")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if report.Status != StatusSuccess {
		t.Fatalf("Status = %q, want %q (error: %s)", report.Status, StatusSuccess, report.Error)
	}
	if report.RunID == "" {
		t.Error("RunID is empty")
	}
	if report.Scenario != "q3_update" {
		t.Errorf("Scenario = %q", report.Scenario)
	}

	if report.Ingest == nil || report.Ingest.Baseline == nil || report.Ingest.Revised == nil {
		t.Fatalf("Ingest = %+v, want both documents", report.Ingest)
	}
	if len(report.Ingest.Errors) != 0 {
		t.Errorf("Ingest.Errors = %v", report.Ingest.Errors)
	}
	if report.Ingest.Revised.SHA256 == "" || report.Ingest.Revised.Paragraphs == 0 {
		t.Errorf("Revised summary incomplete: %+v", report.Ingest.Revised)
	}

	if report.Diff == nil || report.Diff.Skipped || report.Diff.Summary == nil {
		t.Fatalf("Diff = %+v, want computed summary", report.Diff)
	}
	if report.Diff.Summary.ParagraphsAdded == 0 {
		t.Errorf("ParagraphsAdded = 0, want the new obligation paragraph counted")
	}

	if report.Extract == nil || report.Extract.Stats == nil {
		t.Fatalf("Extract = %+v", report.Extract)
	}
	if report.Extract.Stats.Total == 0 {
		t.Error("extracted zero obligations from a document with modal verbs")
	}

	if report.Map == nil || report.Map.Stats == nil {
		t.Fatalf("Map = %+v", report.Map)
	}
	if report.Map.Stats.TotalMappings == 0 {
		t.Error("TotalMappings = 0, want candidates for each obligation")
	}
	if report.DurationSeconds < 0 {
		t.Errorf("DurationSeconds = %f", report.DurationSeconds)
	}
}

func TestRunPipeline_NoBaseline_SkipsDiff(t *testing.T) {
	env := newTestEnv(t)
	revised := env.writeDoc(t, "revised.txt", revisedDoc)

	report, err := env.orch.RunPipeline(context.Background(), "", revised, "initial_load")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if report.Status != StatusSuccess {
		t.Fatalf("Status = %q, want success", report.Status)
	}
	if report.Diff == nil || !report.Diff.Skipped {
		t.Errorf("Diff = %+v, want skipped", report.Diff)
	}
	if report.Extract == nil || report.Extract.Stats == nil || report.Extract.Stats.Total == 0 {
		t.Errorf("Extract = %+v, want obligations despite skipped diff", report.Extract)
	}
}

func TestRunPipeline_MissingBaselineFile_RecordedNotFatal(t *testing.T) {
	env := newTestEnv(t)
	revised := env.writeDoc(t, "revised.txt", revisedDoc)

	report, err := env.orch.RunPipeline(context.Background(),
		filepath.Join(env.dir, "does_not_exist.txt"), revised, "partial")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if report.Status != StatusSuccess {
		t.Fatalf("Status = %q, want success despite baseline failure", report.Status)
	}
	if len(report.Ingest.Errors) != 1 || !strings.HasPrefix(report.Ingest.Errors[0], "baseline:") {
		t.Errorf("Ingest.Errors = %v, want one baseline error", report.Ingest.Errors)
	}
	if report.Diff == nil || !report.Diff.Skipped {
		t.Errorf("Diff = %+v, want skipped without a baseline", report.Diff)
	}
}

func TestRunPipeline_NoObligations_MapRecordsError(t *testing.T) {
	env := newTestEnv(t)
	revised := env.writeDoc(t, "revised.txt", noObligationsDoc)

	report, err := env.orch.RunPipeline(context.Background(), "", revised, "background_only")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if report.Status != StatusSuccess {
		t.Fatalf("Status = %q, want success", report.Status)
	}
	if report.Extract.Stats.Total != 0 {
		t.Fatalf("Total = %d, want 0 obligations", report.Extract.Stats.Total)
	}
	if report.Map == nil || report.Map.Error != "no obligations" {
		t.Errorf("Map = %+v, want recorded no-obligations error", report.Map)
	}
}

func TestStageExtract_WithoutInit_Fails(t *testing.T) {
	dir := t.TempDir()
	log, err := audit.Open(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	orch := New(cfg, log, logger)

	docPath := filepath.Join(dir, "revised.txt")
	if err := os.WriteFile(docPath, []byte(revisedDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := orch.StageIngest(context.Background(), "", docPath, "uninit"); err != nil {
		t.Fatalf("StageIngest: %v", err)
	}
	if _, err := orch.StageExtract(); err == nil {
		t.Fatal("StageExtract succeeded without Init")
	}
}

func TestRunPipeline_AuditTrail(t *testing.T) {
	env := newTestEnv(t)
	baseline := env.writeDoc(t, "baseline.txt", baselineDoc)
	revised := env.writeDoc(t, "revised.txt", revisedDoc)

	if _, err := env.orch.RunPipeline(context.Background(), baseline, revised, "trail"); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}

	valid, line, err := env.audit.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !valid {
		t.Fatalf("audit chain invalid at line %d", line)
	}

	entries, err := env.audit.Entries(audit.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	var actions []string
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	want := []string{
		"agent_init", "agent_init", "index_built",
		"ingest", "compute_diff", "extract_obligations", "map_obligations",
		"pipeline_complete",
	}
	if !reflect.DeepEqual(actions, want) {
		t.Errorf("audit actions = %v, want %v", actions, want)
	}
}

func TestSaveArtifacts_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	baseline := env.writeDoc(t, "baseline.txt", baselineDoc)
	revised := env.writeDoc(t, "revised.txt", revisedDoc)

	if _, err := env.orch.RunPipeline(context.Background(), baseline, revised, "persist"); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}

	outDir := filepath.Join(env.dir, "out")
	written, err := env.orch.SaveArtifacts(outDir)
	if err != nil {
		t.Fatalf("SaveArtifacts: %v", err)
	}
	if len(written) != 3 {
		t.Fatalf("wrote %d artifacts (%v), want obligations, mappings, diff", len(written), written)
	}

	obligations, err := LoadObligations(filepath.Join(outDir, "persist_obligations.json"))
	if err != nil {
		t.Fatalf("LoadObligations: %v", err)
	}
	if !reflect.DeepEqual(obligations, env.orch.Run().Obligations) {
		t.Error("obligations did not survive the round trip")
	}

	mappings, err := LoadMappings(filepath.Join(outDir, "persist_mappings.json"))
	if err != nil {
		t.Fatalf("LoadMappings: %v", err)
	}
	if len(mappings) != len(env.orch.Run().Mappings) {
		t.Errorf("mappings sections = %d, want %d", len(mappings), len(env.orch.Run().Mappings))
	}
	for section, got := range mappings {
		origin := env.orch.Run().Mappings[section]
		if len(got) != len(origin) {
			t.Errorf("section %s: %d mappings, want %d", section, len(got), len(origin))
			continue
		}
		for i := range got {
			if got[i].ControlID != origin[i].ControlID || got[i].Status != origin[i].Status {
				t.Errorf("section %s mapping %d = %+v, want %+v", section, i, got[i], origin[i])
			}
		}
	}
}

func TestSaveArtifacts_NoRun(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.orch.SaveArtifacts(t.TempDir()); err == nil {
		t.Fatal("SaveArtifacts succeeded with no run state")
	}
}
