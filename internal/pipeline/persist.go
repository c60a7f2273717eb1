package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/regdelta/internal/docdiff"
	"github.com/dshills/regdelta/internal/extract"
	"github.com/dshills/regdelta/internal/mapper"
)

// DiffArtifact is the on-disk form of a computed diff.
type DiffArtifact struct {
	Summary    docdiff.Summary `json:"summary"`
	Operations []docdiff.Op    `json:"operations"`
}

// SaveArtifacts writes the run's obligations, mappings, and diff (when
// present) to dir as JSON files keyed by scenario name. It returns the
// paths written.
func (o *Orchestrator) SaveArtifacts(dir string) ([]string, error) {
	if o.run == nil {
		return nil, fmt.Errorf("no run state: nothing to save")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}

	var written []string
	if o.run.Obligations != nil {
		path := filepath.Join(dir, o.run.Scenario+"_obligations.json")
		if err := writeJSON(path, o.run.Obligations); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if o.run.Mappings != nil {
		path := filepath.Join(dir, o.run.Scenario+"_mappings.json")
		if err := writeJSON(path, o.run.Mappings); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if o.run.Diff != nil {
		path := filepath.Join(dir, o.run.Scenario+"_diff.json")
		artifact := DiffArtifact{Summary: o.run.Diff.Summary(), Operations: o.run.Diff.Ops}
		if err := writeJSON(path, artifact); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// LoadObligations reads a persisted obligations artifact.
func LoadObligations(path string) ([]extract.Obligation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading obligations: %w", err)
	}
	var obligations []extract.Obligation
	if err := json.Unmarshal(data, &obligations); err != nil {
		return nil, fmt.Errorf("parsing obligations %s: %w", path, err)
	}
	return obligations, nil
}

// LoadMappings reads a persisted mappings artifact.
func LoadMappings(path string) (map[string][]mapper.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mappings: %w", err)
	}
	var mappings map[string][]mapper.Mapping
	if err := json.Unmarshal(data, &mappings); err != nil {
		return nil, fmt.Errorf("parsing mappings %s: %w", path, err)
	}
	return mappings, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
