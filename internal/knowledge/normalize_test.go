package knowledge

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases", in: "HOLA Mundo", want: "hola mundo"},
		{name: "strips diacritics", in: "¿Cuánto cuesta la financiación?", want: "cuanto cuesta la financiacion"},
		{name: "strips punctuation", in: "precio!!! ($100)", want: "precio 100"},
		{name: "collapses whitespace", in: "  hola \t\n mundo  ", want: "hola mundo"},
		{name: "keeps digits", in: "cuota 12 de 18", want: "cuota 12 de 18"},
		{name: "empty", in: "", want: ""},
		{name: "only punctuation", in: "¿¡!?", want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Normalize(tt.in)
			if got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := Normalize(got); again != got {
				t.Fatalf("Normalize is not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()

	set := Tokens("Hola, hola MUNDO")
	if len(set) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(set))
	}
	for _, tok := range []string{"hola", "mundo"} {
		if _, ok := set[tok]; !ok {
			t.Fatalf("missing token %q", tok)
		}
	}
}
