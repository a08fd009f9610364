package arabic

import "testing"

func TestNormalize_StripsDiacriticsAndTatweel(t *testing.T) {
	n := Normalizer{Diacritics: DiacriticsStrip, Digits: NumeralsWestern}

	// "مُحَمَّد" with harakat plus a tatweel.
	got, err := n.Normalize("مُـحَمَّد")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "محمد" {
		t.Errorf("got %q, want %q", got, "محمد")
	}
}

func TestNormalize_PreservesDiacritics(t *testing.T) {
	n := Normalizer{Diacritics: DiacriticsPreserve, Digits: NumeralsWestern}

	got, err := n.Normalize("مُحَمَّد")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "مُحَمَّد" {
		t.Errorf("diacritics were not preserved: got %q", got)
	}
}

func TestNormalize_CharacterVariants(t *testing.T) {
	n := Normalizer{}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"alef hamza above", "أحمد", "احمد"},
		{"alef hamza below", "إلى", "الي"},
		{"alef madda", "آخر", "اخر"},
		{"alef wasla", "ٱلله", "الله"},
		{"final alef maksura", "مستشفى", "مستشفي"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Digits(t *testing.T) {
	western := Normalizer{Digits: NumeralsWestern}
	eastern := Normalizer{Digits: NumeralsEastern}

	got, err := western.Normalize("٠١٢٣٤٥٦٧٨٩ و ۴۵")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0123456789 و 45" {
		t.Errorf("western: got %q", got)
	}

	got, err = eastern.Normalize("42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "٤٢" {
		t.Errorf("eastern: got %q", got)
	}
}

func TestNormalize_CollapsesWhitespace(t *testing.T) {
	n := Normalizer{}
	got, err := n.Normalize("  مرحبا \t\n  بالعالم  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "مرحبا بالعالم" {
		t.Errorf("got %q", got)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"أهلاً وسهلاً في المستشفى رقم ٤٥",
		"mixed عربي and English 123",
		"مُـحَمَّد إلى آخر",
		"",
	}

	for _, cfg := range []Normalizer{
		{Diacritics: DiacriticsStrip, Digits: NumeralsWestern},
		{Diacritics: DiacriticsPreserve, Digits: NumeralsEastern},
	} {
		for _, in := range inputs {
			once, err := cfg.Normalize(in)
			if err != nil {
				t.Fatalf("first pass: %v", err)
			}
			twice, err := cfg.Normalize(once)
			if err != nil {
				t.Fatalf("second pass: %v", err)
			}
			if once != twice {
				t.Errorf("not idempotent for %q: first %q, second %q", in, once, twice)
			}
		}
	}
}

func TestNormalize_InvalidEncoding(t *testing.T) {
	n := Normalizer{}
	_, err := n.Normalize("abc\xff\xfe")
	if err == nil {
		t.Fatal("expected error for invalid UTF-8")
	}
	encErr, ok := err.(*EncodingError)
	if !ok {
		t.Fatalf("error type = %T, want *EncodingError", err)
	}
	if encErr.Offset != 3 {
		t.Errorf("offset = %d, want 3", encErr.Offset)
	}
}
