// Package catalog loads control catalogs from YAML files. A catalog is
// read-only for the life of a run: controls are loaded once and never
// mutated afterwards.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// ErrNoControls indicates the configured catalogs produced zero controls.
var ErrNoControls = errors.New("no controls loaded")

// ErrDuplicateControl indicates a control_id occurs more than once across
// the loaded catalog set.
var ErrDuplicateControl = errors.New("duplicate control_id")

// Control is one catalog entry.
type Control struct {
	ControlID        string   `yaml:"control_id" json:"control_id"`
	Domain           string   `yaml:"domain" json:"domain"`
	Title            string   `yaml:"title" json:"title"`
	Description      string   `yaml:"description" json:"description"`
	Owner            string   `yaml:"owner" json:"owner"`
	EvidenceExamples []string `yaml:"evidence_examples" json:"evidence_examples"`
}

// EmbeddingText returns the combined text used to embed this control.
func (c Control) EmbeddingText() string {
	return c.Title + ". " + c.Description
}

// catalogFile is the on-disk document shape.
type catalogFile struct {
	Controls []Control `yaml:"controls"`
}

// Catalog is an immutable, ordered set of controls.
type Catalog struct {
	controls []Control
	byID     map[string]int
}

// Load reads every catalog file under dir matching the glob patterns
// (doublestar syntax, e.g. "*.yml" or "frameworks/**/*.yaml"). Files are
// processed in sorted path order so catalog insertion order is stable.
// Duplicate control IDs and an empty result are configuration errors;
// a pattern with no matches is logged and skipped.
func Load(dir string, patterns []string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsys := os.DirFS(dir)

	var paths []string
	seen := make(map[string]struct{})
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("catalog pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			logger.Warn("catalog pattern matched no files",
				slog.String("dir", dir), slog.String("pattern", pattern))
			continue
		}
		for _, m := range matches {
			if _, ok := seen[m]; !ok {
				seen[m] = struct{}{}
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)

	cat := &Catalog{byID: make(map[string]int)}
	for _, rel := range paths {
		path := filepath.Join(dir, rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading catalog %s: %w", path, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
		}
		for _, ctrl := range file.Controls {
			if ctrl.ControlID == "" {
				return nil, fmt.Errorf("catalog %s: control with empty control_id", path)
			}
			if _, exists := cat.byID[ctrl.ControlID]; exists {
				return nil, fmt.Errorf("%w: %s in %s", ErrDuplicateControl, ctrl.ControlID, path)
			}
			cat.byID[ctrl.ControlID] = len(cat.controls)
			cat.controls = append(cat.controls, ctrl)
		}
		logger.Info("loaded catalog",
			slog.String("file", rel), slog.Int("controls", len(file.Controls)))
	}

	if len(cat.controls) == 0 {
		return nil, fmt.Errorf("%w: dir %s, patterns %v", ErrNoControls, dir, patterns)
	}
	return cat, nil
}

// Controls returns the loaded controls in insertion order. Callers must not
// modify the returned slice.
func (c *Catalog) Controls() []Control {
	return c.controls
}

// Len returns the number of loaded controls.
func (c *Catalog) Len() int {
	return len(c.controls)
}

// ByID returns the control with the given ID.
func (c *Catalog) ByID(id string) (Control, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Control{}, false
	}
	return c.controls[idx], true
}
