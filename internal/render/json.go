package render

import (
	"encoding/json"

	"github.com/dshills/regdelta/internal/pipeline"
)

type jsonRenderer struct{}

func (r *jsonRenderer) Render(report *pipeline.Report) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}
