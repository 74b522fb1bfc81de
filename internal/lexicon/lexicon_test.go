package lexicon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLexicon() *Lexicon {
	return &Lexicon{
		Categories: map[string][]string{
			"drugs":      {"amoxicillin", "meloxicam"},
			"conditions": {"otitis"},
			"breeds":     {"dachshund"},
		},
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(dir, "lexicon.yaml")
		doc := "terms:\n  drugs:\n    - amoxicillin\n    - meloxicam\n  breeds:\n    - dachshund\n"
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}

		lex, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile: %v", err)
		}
		if got := lex.All(); len(got) != 3 {
			t.Errorf("terms = %v, want 3 entries", got)
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("words:\n  drugs: [a]\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFile(path); err == nil {
			t.Error("expected error for unknown top-level key")
		}
	})

	t.Run("empty lexicon rejected", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		if err := os.WriteFile(path, []byte("terms: {}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFile(path); err == nil {
			t.Error("expected error for a lexicon with no terms")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadFile(filepath.Join(dir, "absent.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestLexicon_AllDeduplicates(t *testing.T) {
	lex := &Lexicon{
		Categories: map[string][]string{
			"a": {"Meloxicam", " otitis "},
			"b": {"meloxicam", ""},
		},
	}
	got := lex.All()
	if len(got) != 2 {
		t.Fatalf("All() = %v, want 2 deduplicated terms", got)
	}
}

func TestCorrector_PhoneticRewrite(t *testing.T) {
	c := NewCorrector(testLexicon())

	got, changed := c.Correct("gave the dog amoxicilin twice daily")
	if changed != 1 {
		t.Fatalf("changed = %d, want 1", changed)
	}
	if !strings.Contains(got, "amoxicillin") {
		t.Errorf("corrected text = %q, want amoxicillin spelled out", got)
	}
}

func TestCorrector_PreservesPunctuation(t *testing.T) {
	c := NewCorrector(testLexicon())

	got, changed := c.Correct("started otitus, left ear")
	if changed != 1 {
		t.Fatalf("changed = %d, want 1", changed)
	}
	if !strings.Contains(got, "otitis,") {
		t.Errorf("corrected text = %q, want comma kept after the term", got)
	}
}

func TestCorrector_NormalisesExactTerms(t *testing.T) {
	c := NewCorrector(testLexicon())

	got, changed := c.Correct("prescribed Meloxicam today")
	if changed != 1 {
		t.Fatalf("changed = %d, want 1", changed)
	}
	if !strings.Contains(got, "meloxicam") {
		t.Errorf("corrected text = %q, want canonical casing", got)
	}
}

func TestCorrector_LeavesOrdinaryTextAlone(t *testing.T) {
	c := NewCorrector(testLexicon())

	in := "she is a happy and playful puppy"
	got, changed := c.Correct(in)
	if changed != 0 {
		t.Fatalf("changed = %d, want 0", changed)
	}
	if got != in {
		t.Errorf("text rewritten: %q", got)
	}
}

func TestCorrector_SkipsShortWords(t *testing.T) {
	c := NewCorrector(testLexicon())

	// Function words must never be pulled toward clinical vocabulary.
	if got, changed := c.Correct("it is on the ear"); changed != 0 {
		t.Errorf("short words rewritten: %q", got)
	}
}
