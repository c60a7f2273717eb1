package render

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/dshills/regdelta/internal/extract"
	"github.com/dshills/regdelta/internal/mapper"
	"github.com/dshills/regdelta/internal/pipeline"
)

type markdownRenderer struct{}

// mdView flattens the report maps so the template stays index-free.
type mdView struct {
	*pipeline.Report
	High, Medium, Low             int
	Accepted, Review, Rejected    int
	WithDeadlines, WithCitations  int
	TotalObligations, TotalMapped int
	AvgScore                      float64
}

var mdTemplate = template.Must(template.New("report").Parse(`# RegDelta Report

**Scenario:** {{ .Scenario }}
**Run:** {{ .RunID }}
**Status:** {{ .Status }}
**Duration:** {{ printf "%.2f" .DurationSeconds }}s
{{ if .Error }}
> Pipeline error: {{ .Error }}
{{ end }}{{ if .Ingest }}
---

## Ingest
{{ if .Ingest.Baseline }}
- Baseline: {{ .Ingest.Baseline.File }} ({{ .Ingest.Baseline.Paragraphs }} paragraphs, {{ .Ingest.Baseline.Extractor }})
{{- end }}{{ if .Ingest.Revised }}
- Revised: {{ .Ingest.Revised.File }} ({{ .Ingest.Revised.Paragraphs }} paragraphs, {{ .Ingest.Revised.Extractor }})
{{- end }}{{ range .Ingest.Errors }}
- Error: {{ . }}
{{- end }}{{ end }}{{ if .Diff }}
---

## Diff
{{ if .Diff.Skipped }}Skipped: no baseline document.
{{ else if .Diff.Error }}Error: {{ .Diff.Error }}
{{ else }}| Added | Removed | Unchanged | Operations |
|------:|--------:|----------:|-----------:|
| {{ .Diff.Summary.ParagraphsAdded }} | {{ .Diff.Summary.ParagraphsRemoved }} | {{ .Diff.Summary.ParagraphsUnchanged }} | {{ .Diff.Summary.TotalOps }} |
{{ end }}{{ end }}{{ if .Extract }}
---

## Obligations
{{ if .Extract.Error }}Error: {{ .Extract.Error }}
{{ else }}**Total:** {{ .TotalObligations }} (high {{ .High }}, medium {{ .Medium }}, low {{ .Low }})
Deadlines: {{ .WithDeadlines }} | Citations: {{ .WithCitations }}
{{ end }}{{ end }}{{ if .Map }}
---

## Control Mappings
{{ if .Map.Error }}Error: {{ .Map.Error }}
{{ else }}**Total:** {{ .TotalMapped }} (accepted {{ .Accepted }}, review {{ .Review }}, rejected {{ .Rejected }})
Average score: {{ printf "%.3f" .AvgScore }}
{{ end }}{{ end }}
---
*Generated by {{ .Tool }}*
`))

func (r *markdownRenderer) Render(report *pipeline.Report) ([]byte, error) {
	view := mdView{Report: report}
	if report.Extract != nil && report.Extract.Stats != nil {
		s := report.Extract.Stats
		view.TotalObligations = s.Total
		view.High = s.BySeverity[extract.SeverityHigh]
		view.Medium = s.BySeverity[extract.SeverityMedium]
		view.Low = s.BySeverity[extract.SeverityLow]
		view.WithDeadlines = s.WithDeadlines
		view.WithCitations = s.WithCitations
	}
	if report.Map != nil && report.Map.Stats != nil {
		s := report.Map.Stats
		view.TotalMapped = s.TotalMappings
		view.Accepted = s.ByStatus[mapper.StatusAccepted]
		view.Review = s.ByStatus[mapper.StatusReview]
		view.Rejected = s.ByStatus[mapper.StatusRejected]
		view.AvgScore = s.AvgScore
	}
	var buf bytes.Buffer
	if err := mdTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.Bytes(), nil
}
