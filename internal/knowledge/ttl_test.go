package knowledge

import (
	"testing"
	"time"
)

func TestTTLPolicyDays(t *testing.T) {
	t.Parallel()

	policy := TTLPolicy{DefaultDays: 180, PriceDays: 30}

	tests := []struct {
		name     string
		question string
		answer   string
		want     int
	}{
		{name: "plain question", question: "¿Hacen envíos?", answer: "Sí, a todo el país.", want: 180},
		{name: "price word in question", question: "¿Cuál es el precio?", answer: "Te paso el detalle.", want: 30},
		{name: "price word in answer", question: "¿Me pasás info?", answer: "La cuota es mensual.", want: 30},
		{name: "price word with accents", question: "¿Tienen financiación?", answer: "Sí.", want: 30},
		{name: "currency symbol", question: "¿Cuánto sale?", answer: "Sale $1200.", want: 30},
		{name: "euro symbol", question: "precio?", answer: "€40", want: 30},
		{name: "price as substring does not count", question: "¿Está el precioso modelo azul?", answer: "Sí.", want: 180},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := policy.Days(tt.question, tt.answer); got != tt.want {
				t.Fatalf("Days(%q, %q) = %d, want %d", tt.question, tt.answer, got, tt.want)
			}
		})
	}
}

func TestTTLPolicyExpiresAt(t *testing.T) {
	t.Parallel()

	policy := TTLPolicy{DefaultDays: 180, PriceDays: 30}
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	got := policy.ExpiresAt("¿Cuánto cuesta?", "Sale $500.", created)
	want := created.Add(30 * 24 * time.Hour)
	if !got.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", got, want)
	}
}
