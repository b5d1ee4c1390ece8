package knowledge

import (
	"math"
	"testing"
)

func TestJaccard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{name: "identical", a: "cuanto cuesta", b: "cuanto cuesta", want: 1},
		{name: "disjoint", a: "hola mundo", b: "precio envio", want: 0},
		{name: "partial overlap", a: "alpha beta gamma", b: "alpha beta delta", want: 0.5},
		{name: "normalizes before comparing", a: "¿Cuánto CUESTA?", b: "cuanto cuesta", want: 1},
		{name: "both empty", a: "", b: "", want: 0},
		{name: "one empty", a: "hola", b: "", want: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Jaccard(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Jaccard(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if sym := Jaccard(tt.b, tt.a); math.Abs(sym-got) > 1e-9 {
				t.Fatalf("Jaccard is not symmetric: %v vs %v", got, sym)
			}
		})
	}
}
