// Package docdiff computes a structural edit script between two documents at
// paragraph granularity. Each paragraph is an opaque comparison unit; no
// junk filtering is applied, so repeated boilerplate participates fully.
package docdiff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// OpType classifies one edit operation.
type OpType string

const (
	OpEqual   OpType = "equal"
	OpInsert  OpType = "insert"
	OpDelete  OpType = "delete"
	OpReplace OpType = "replace"
)

// Op is one contiguous edit operation. Ranges are half-open intervals into
// the baseline and revised paragraph sequences; concatenating all ops in
// order reconstructs both sequences exactly.
type Op struct {
	Type     OpType   `json:"op"`
	OldRange [2]int   `json:"old_range"`
	NewRange [2]int   `json:"new_range"`
	OldText  []string `json:"old_text"`
	NewText  []string `json:"new_text"`
}

// Summary holds per-op-type counts and aggregate paragraph counts.
type Summary struct {
	Equal               int `json:"equal"`
	Insert              int `json:"insert"`
	Delete              int `json:"delete"`
	Replace             int `json:"replace"`
	TotalOps            int `json:"total_ops"`
	ParagraphsAdded     int `json:"paragraphs_added"`
	ParagraphsRemoved   int `json:"paragraphs_removed"`
	ParagraphsUnchanged int `json:"paragraphs_unchanged"`
}

// Change is a changed op with surrounding unchanged context paragraphs.
type Change struct {
	Type          OpType   `json:"op"`
	ContextBefore []string `json:"context_before"`
	OldText       []string `json:"old_text"`
	NewText       []string `json:"new_text"`
	ContextAfter  []string `json:"context_after"`
	OldRange      [2]int   `json:"old_range"`
	NewRange      [2]int   `json:"new_range"`
}

// Diff is the computed edit script between two paragraph sequences.
type Diff struct {
	Ops []Op `json:"operations"`
}

// Compute diffs two paragraph sequences. Each distinct paragraph is encoded
// as a single rune so the underlying character diff operates on whole
// paragraphs; adjacent delete/insert runs are coalesced into replace ops.
func Compute(old, new []string) *Diff {
	oldRunes, newRunes, table := encodeParagraphs(old, new)

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMainRunes(oldRunes, newRunes, false)

	d := &Diff{}
	oldIdx, newIdx := 0, 0
	var pendingOld, pendingNew []string

	flush := func() {
		switch {
		case len(pendingOld) > 0 && len(pendingNew) > 0:
			d.Ops = append(d.Ops, Op{
				Type:     OpReplace,
				OldRange: [2]int{oldIdx, oldIdx + len(pendingOld)},
				NewRange: [2]int{newIdx, newIdx + len(pendingNew)},
				OldText:  pendingOld,
				NewText:  pendingNew,
			})
		case len(pendingOld) > 0:
			d.Ops = append(d.Ops, Op{
				Type:     OpDelete,
				OldRange: [2]int{oldIdx, oldIdx + len(pendingOld)},
				NewRange: [2]int{newIdx, newIdx},
				OldText:  pendingOld,
				NewText:  []string{},
			})
		case len(pendingNew) > 0:
			d.Ops = append(d.Ops, Op{
				Type:     OpInsert,
				OldRange: [2]int{oldIdx, oldIdx},
				NewRange: [2]int{newIdx, newIdx + len(pendingNew)},
				OldText:  []string{},
				NewText:  pendingNew,
			})
		}
		oldIdx += len(pendingOld)
		newIdx += len(pendingNew)
		pendingOld, pendingNew = nil, nil
	}

	for _, df := range diffs {
		paras := decodeParagraphs(df.Text, table)
		switch df.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			d.Ops = append(d.Ops, Op{
				Type:     OpEqual,
				OldRange: [2]int{oldIdx, oldIdx + len(paras)},
				NewRange: [2]int{newIdx, newIdx + len(paras)},
				OldText:  paras,
				NewText:  paras,
			})
			oldIdx += len(paras)
			newIdx += len(paras)
		case diffmatchpatch.DiffDelete:
			pendingOld = append(pendingOld, paras...)
		case diffmatchpatch.DiffInsert:
			pendingNew = append(pendingNew, paras...)
		}
	}
	flush()
	return d
}

// encodeParagraphs maps each distinct paragraph to a unique rune, skipping
// the surrogate range so the encoded runes survive string conversion.
func encodeParagraphs(old, new []string) ([]rune, []rune, []string) {
	seen := make(map[string]rune)
	var table []string
	next := rune(1)

	encode := func(paras []string) []rune {
		encoded := make([]rune, len(paras))
		for i, p := range paras {
			r, ok := seen[p]
			if !ok {
				r = next
				seen[p] = r
				table = append(table, p)
				next++
				if next == 0xD800 {
					next = 0xE000
				}
			}
			encoded[i] = r
		}
		return encoded
	}

	return encode(old), encode(new), table
}

// decodeParagraphs reverses the rune encoding.
func decodeParagraphs(encoded string, table []string) []string {
	runes := []rune(encoded)
	paras := make([]string, len(runes))
	for i, r := range runes {
		idx := int(r) - 1
		if r >= 0xE000 {
			idx = int(r) - 1 - (0xE000 - 0xD800)
		}
		paras[i] = table[idx]
	}
	return paras
}

// Summary returns counts per op type and aggregate paragraph counts.
func (d *Diff) Summary() Summary {
	s := Summary{TotalOps: len(d.Ops)}
	for _, op := range d.Ops {
		switch op.Type {
		case OpEqual:
			s.Equal++
			s.ParagraphsUnchanged += len(op.OldText)
		case OpInsert:
			s.Insert++
			s.ParagraphsAdded += len(op.NewText)
		case OpDelete:
			s.Delete++
			s.ParagraphsRemoved += len(op.OldText)
		case OpReplace:
			s.Replace++
			s.ParagraphsAdded += len(op.NewText)
			s.ParagraphsRemoved += len(op.OldText)
		}
	}
	return s
}

// ChangedSections returns all non-equal ops in original order.
func (d *Diff) ChangedSections() []Op {
	var changed []Op
	for _, op := range d.Ops {
		if op.Type != OpEqual {
			changed = append(changed, op)
		}
	}
	return changed
}

// WithContext returns every changed op together with up to n trailing
// paragraphs of the nearest preceding equal op and up to n leading paragraphs
// of the nearest following equal op.
func (d *Diff) WithContext(n int) []Change {
	var changes []Change
	for i, op := range d.Ops {
		if op.Type == OpEqual {
			continue
		}
		var before, after []string
		for j := i - 1; j >= 0; j-- {
			if d.Ops[j].Type == OpEqual {
				text := d.Ops[j].OldText
				if len(text) > n {
					text = text[len(text)-n:]
				}
				before = text
				break
			}
		}
		for j := i + 1; j < len(d.Ops); j++ {
			if d.Ops[j].Type == OpEqual {
				text := d.Ops[j].OldText
				if len(text) > n {
					text = text[:n]
				}
				after = text
				break
			}
		}
		changes = append(changes, Change{
			Type:          op.Type,
			ContextBefore: before,
			OldText:       op.OldText,
			NewText:       op.NewText,
			ContextAfter:  after,
			OldRange:      op.OldRange,
			NewRange:      op.NewRange,
		})
	}
	return changes
}

// Unified renders the changed sections in a unified-diff-like text form.
func (d *Diff) Unified(oldLabel, newLabel string) string {
	var sb strings.Builder
	for _, op := range d.Ops {
		if op.Type == OpEqual {
			continue
		}
		fmt.Fprintf(&sb, "@@ %s old[%d:%d] new[%d:%d] @@\n",
			strings.ToUpper(string(op.Type)), op.OldRange[0], op.OldRange[1], op.NewRange[0], op.NewRange[1])
		if len(op.OldText) > 0 {
			fmt.Fprintf(&sb, "--- %s\n", oldLabel)
			for i, p := range op.OldText {
				fmt.Fprintf(&sb, "- [%d] %s\n", op.OldRange[0]+i, clip(p, 200))
			}
		}
		if len(op.NewText) > 0 {
			fmt.Fprintf(&sb, "+++ %s\n", newLabel)
			for i, p := range op.NewText {
				fmt.Fprintf(&sb, "+ [%d] %s\n", op.NewRange[0]+i, clip(p, 200))
			}
		}
	}
	return sb.String()
}

// clip limits a string to maxLen runes, appending "..." if truncated.
func clip(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
