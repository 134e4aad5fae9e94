package registry

import "testing"

func TestLookup_FindsKnownEntry(t *testing.T) {
	reg := New()
	m, ok := reg.Lookup("smollm2-360m-q8")
	if !ok {
		t.Fatal("expected smollm2-360m-q8 to be found")
	}
	if m.SizeBytes <= 0 || m.URL == "" || m.SHA256 == "" {
		t.Fatalf("incomplete entry: %+v", m)
	}
}

func TestLookup_UnknownIDNotFound(t *testing.T) {
	reg := New()
	if _, ok := reg.Lookup("does-not-exist"); ok {
		t.Fatal("expected lookup miss for unknown id")
	}
}

func TestList_ReturnsDefensiveCopy(t *testing.T) {
	reg := New()
	list := reg.List()
	list[0].ID = "mutated"
	if Catalog[0].ID == "mutated" {
		t.Fatal("List() must return a copy, not the backing array")
	}
}

func TestCatalog_HasEachModelKind(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range Catalog {
		seen[m.Kind.String()] = true
	}
	for _, want := range []string{"text", "vision_backbone", "vision_projector"} {
		if !seen[want] {
			t.Fatalf("catalog missing a model of kind %q", want)
		}
	}
}
