package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeCatalog(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

const accessCatalog = `controls:
  - control_id: AC-1
    domain: access
    title: Access review
    description: Quarterly review of user access rights.
    owner: security
    evidence_examples: [review minutes, access report]
  - control_id: AC-2
    domain: access
    title: Joiner-mover-leaver process
    description: Access is provisioned and revoked through a documented process.
    owner: security
`

const incidentCatalog = `controls:
  - control_id: IR-1
    domain: incident
    title: Incident reporting
    description: Security incidents are reported to the regulator within defined timelines.
    owner: ciso
`

func TestLoad_MultipleFilesInSortedOrder(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "incident.yml", incidentCatalog)
	writeCatalog(t, dir, "access.yml", accessCatalog)

	cat, err := Load(dir, []string{"*.yml"}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cat.Len() != 3 {
		t.Fatalf("Len = %d, want 3", cat.Len())
	}
	// access.yml sorts before incident.yml, so AC controls come first.
	if cat.Controls()[0].ControlID != "AC-1" || cat.Controls()[2].ControlID != "IR-1" {
		t.Errorf("insertion order = %v, want AC-1 first and IR-1 last", cat.Controls())
	}

	ctrl, ok := cat.ByID("IR-1")
	if !ok || ctrl.Title != "Incident reporting" {
		t.Errorf("ByID(IR-1) = %+v, %v", ctrl, ok)
	}
}

func TestLoad_DuplicateControlID(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "a.yml", incidentCatalog)
	writeCatalog(t, dir, "b.yml", incidentCatalog)

	_, err := Load(dir, []string{"*.yml"}, nil)
	if !errors.Is(err, ErrDuplicateControl) {
		t.Errorf("Load error = %v, want ErrDuplicateControl", err)
	}
}

func TestLoad_EmptyResultIsError(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir, []string{"*.yml"}, nil)
	if !errors.Is(err, ErrNoControls) {
		t.Errorf("Load error = %v, want ErrNoControls", err)
	}
}

func TestLoad_DoublestarPattern(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "frameworks", "iso")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	writeCatalog(t, sub, "controls.yaml", accessCatalog)

	cat, err := Load(dir, []string{"**/*.yaml"}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cat.Len() != 2 {
		t.Errorf("Len = %d, want 2", cat.Len())
	}
}

func TestEmbeddingText(t *testing.T) {
	c := Control{Title: "Access review", Description: "Quarterly review."}
	if got := c.EmbeddingText(); got != "Access review. Quarterly review." {
		t.Errorf("EmbeddingText = %q", got)
	}
}
