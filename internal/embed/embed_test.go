package embed

import (
	"math"
	"reflect"
	"testing"
)

func TestNewEmbedder_ParsesSpec(t *testing.T) {
	e, err := NewEmbedder("hash:128")
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	if e.Dim() != 128 {
		t.Errorf("Dim = %d, want 128", e.Dim())
	}
}

func TestNewEmbedder_RejectsInvalidSpecs(t *testing.T) {
	for _, spec := range []string{"", "hash", "hash:", ":128", "hash:0", "hash:-4", "hash:abc", "onnx:128"} {
		if _, err := NewEmbedder(spec); err == nil {
			t.Errorf("NewEmbedder(%q) succeeded, want error", spec)
		}
	}
}

func TestEmbed_Deterministic(t *testing.T) {
	e, _ := NewEmbedder("hash:64")
	a := e.Embed("Security incidents are reported within defined timelines.")
	b := e.Embed("Security incidents are reported within defined timelines.")
	if !reflect.DeepEqual(a, b) {
		t.Error("same text produced different vectors")
	}
}

func TestEmbed_UnitLength(t *testing.T) {
	e, _ := NewEmbedder("hash:64")
	vec := e.Embed("access rights are reviewed quarterly by the security team")
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("squared norm = %g, want 1.0", sum)
	}
}

func TestEmbed_EmptyTextIsZeroVector(t *testing.T) {
	e, _ := NewEmbedder("hash:16")
	vec := e.Embed("")
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("vec[%d] = %g, want 0", i, v)
		}
	}
}

func TestSearch_RanksSimilarTextHigher(t *testing.T) {
	e, _ := NewEmbedder("hash:256")
	corpus := []string{
		"Incident reporting. Security incidents are reported to the regulator within defined timelines.",
		"Backup verification. Backups are restored and verified on a monthly schedule.",
		"Access review. Quarterly review of user access rights.",
	}
	ix, err := BuildIndex(e, corpus)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}

	query := e.Embed("The institution shall report security incidents to the regulator within 72 hours.")
	results, err := ix.Search(query, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Index != 0 {
		t.Errorf("top result = corpus[%d], want corpus[0] (incident reporting)", results[0].Index)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted descending at %d: %g > %g", i, results[i].Score, results[i-1].Score)
		}
	}
}

func TestSearch_TiesPreserveInsertionOrder(t *testing.T) {
	e, _ := NewEmbedder("hash:64")
	// Identical corpus texts guarantee identical scores.
	ix, err := BuildIndex(e, []string{"duplicate control text", "duplicate control text"})
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	results, err := ix.Search(e.Embed("duplicate control text"), 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results[0].Index != 0 || results[1].Index != 1 {
		t.Errorf("tie order = [%d %d], want [0 1]", results[0].Index, results[1].Index)
	}
}

func TestSearch_KLargerThanCorpus(t *testing.T) {
	e, _ := NewEmbedder("hash:64")
	ix, _ := BuildIndex(e, []string{"only entry"})
	results, err := ix.Search(e.Embed("query"), 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestBuildIndex_EmptyCorpus(t *testing.T) {
	e, _ := NewEmbedder("hash:64")
	if _, err := BuildIndex(e, nil); err == nil {
		t.Error("BuildIndex succeeded on empty corpus, want error")
	}
}
