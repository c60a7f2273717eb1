package audit

import "testing"

func TestCanonicalJSON_SortsKeys(t *testing.T) {
	got, err := canonicalJSON(map[string]any{"z": 1, "a": 2, "m": 3})
	if err != nil {
		t.Fatalf("canonicalJSON: %v", err)
	}
	want := `{"a":2,"m":3,"z":1}`
	if string(got) != want {
		t.Errorf("canonicalJSON = %s, want %s", got, want)
	}
}

func TestCanonicalJSON_NumericSubtypesHashIdentically(t *testing.T) {
	// The same logical payload expressed with different numeric types must
	// serialize to the same bytes.
	asInt, err := canonicalJSON(map[string]any{"count": int(5), "score": float32(0.5)})
	if err != nil {
		t.Fatalf("canonicalJSON: %v", err)
	}
	asFloat, err := canonicalJSON(map[string]any{"count": float64(5), "score": float64(0.5)})
	if err != nil {
		t.Fatalf("canonicalJSON: %v", err)
	}
	if string(asInt) != string(asFloat) {
		t.Errorf("numeric forms diverge: %s vs %s", asInt, asFloat)
	}
}

func TestCanonicalJSON_NoExponentNotation(t *testing.T) {
	got, err := canonicalJSON(map[string]any{"n": 1e3})
	if err != nil {
		t.Fatalf("canonicalJSON: %v", err)
	}
	want := `{"n":1000}`
	if string(got) != want {
		t.Errorf("canonicalJSON = %s, want %s", got, want)
	}
}

func TestCanonicalJSON_NestedStructures(t *testing.T) {
	got, err := canonicalJSON(map[string]any{
		"outer": map[string]any{"b": []any{1, "two", nil, true}, "a": 0.25},
	})
	if err != nil {
		t.Fatalf("canonicalJSON: %v", err)
	}
	want := `{"outer":{"a":0.25,"b":[1,"two",null,true]}}`
	if string(got) != want {
		t.Errorf("canonicalJSON = %s, want %s", got, want)
	}
}
