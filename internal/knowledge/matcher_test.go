package knowledge

import (
	"context"
	"testing"
	"time"
)

var testOpts = Options{
	LearnedMinScore: 0.58,
	KBMinScore:      0.35,
	PatternHitScore: 0.9,
}

func seedLearned(t *testing.T, entries ...LearnedEntry) *MemoryLearnedStore {
	t.Helper()
	store := NewMemoryLearnedStore()
	for _, e := range entries {
		if err := store.Append(context.Background(), e); err != nil {
			t.Fatalf("seed learned store: %v", err)
		}
	}
	return store
}

func TestResolveLearnedShortCircuit(t *testing.T) {
	t.Parallel()

	// Learned scores 3/5 = 0.60 against the input, past its threshold; the
	// KB pattern would score 0.9 but must not be consulted.
	learned := seedLearned(t, LearnedEntry{
		Question: "alpha beta gamma",
		Answer:   "respuesta aprendida",
	})
	static := []Entry{{
		Question: "pattern entry",
		Patterns: []string{`alpha`},
		Answer:   "respuesta kb",
	}}
	m := NewMatcher(nil, testOpts, static, learned)

	res, err := m.Resolve(context.Background(), "alpha beta gamma delta epsilon")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Source != SourceLearned {
		t.Fatalf("source = %q, want %q", res.Source, SourceLearned)
	}
	if res.Answer != "respuesta aprendida" {
		t.Fatalf("answer = %q", res.Answer)
	}
	if res.Score < 0.59 || res.Score > 0.61 {
		t.Fatalf("score = %v, want 0.60", res.Score)
	}
}

func TestResolveKBWhenLearnedBelowThreshold(t *testing.T) {
	t.Parallel()

	learned := seedLearned(t, LearnedEntry{
		Question: "omega",
		Answer:   "no debe salir",
	})
	static := []Entry{{
		Question: "horario de atencion",
		Answer:   "Atendemos de 9 a 18.",
	}}
	m := NewMatcher(nil, testOpts, static, learned)

	res, err := m.Resolve(context.Background(), "cual es el horario de atencion")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Source != SourceKB {
		t.Fatalf("source = %q, want %q", res.Source, SourceKB)
	}
	if res.Score < testOpts.KBMinScore {
		t.Fatalf("score = %v, want >= %v", res.Score, testOpts.KBMinScore)
	}
}

func TestResolveReturnsHigherWhenNeitherQualifies(t *testing.T) {
	t.Parallel()

	// Learned shares 1 of 10 tokens (0.10); the single-token KB question
	// shares 1 of 5 (0.20). Both are below their thresholds, so the higher
	// one comes back for the caller to reject.
	learned := seedLearned(t, LearnedEntry{Question: "alpha o1 o2 o3 o4 o5", Answer: "x"})
	static := []Entry{{Question: "alpha", Answer: "respuesta debil"}}
	m := NewMatcher(nil, testOpts, static, learned)

	res, err := m.Resolve(context.Background(), "alpha beta gamma delta epsilon")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Source != SourceKB {
		t.Fatalf("source = %q, want %q", res.Source, SourceKB)
	}
	if res.Score < 0.19 || res.Score > 0.21 {
		t.Fatalf("score = %v, want 0.20", res.Score)
	}
}

func TestResolvePatternHit(t *testing.T) {
	t.Parallel()

	static := []Entry{{
		Question: "envios",
		Patterns: []string{`\benv[ií]o\b`},
		Answer:   "Hacemos envíos a todo el país.",
	}}
	m := NewMatcher(nil, testOpts, static, nil)

	res, err := m.Resolve(context.Background(), "Hola! Hacen Envío al interior?")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Score != testOpts.PatternHitScore {
		t.Fatalf("score = %v, want %v", res.Score, testOpts.PatternHitScore)
	}
	if res.Answer != "Hacemos envíos a todo el país." {
		t.Fatalf("answer = %q", res.Answer)
	}
}

func TestResolveSkipsExpiredLearned(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	learned := seedLearned(t,
		LearnedEntry{
			Question:  "cuanto cuesta el plan",
			Answer:    "respuesta vieja",
			ExpiresAt: now.Add(-time.Hour),
		},
		LearnedEntry{
			Question:  "cuanto cuesta el plan",
			Answer:    "respuesta vigente",
			ExpiresAt: now.Add(time.Hour),
		},
	)
	m := NewMatcher(nil, testOpts, nil, learned)
	m.SetClock(func() time.Time { return now })

	res, err := m.Resolve(context.Background(), "cuanto cuesta el plan")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Answer != "respuesta vigente" {
		t.Fatalf("answer = %q, want the non-expired entry", res.Answer)
	}
}

func TestNewMatcherSkipsMalformedPattern(t *testing.T) {
	t.Parallel()

	static := []Entry{{
		Question: "mixed patterns",
		Patterns: []string{`[unclosed`, `valid`},
		Answer:   "sigue funcionando",
	}}
	m := NewMatcher(nil, testOpts, static, nil)

	res, err := m.Resolve(context.Background(), "esto es valid texto")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Score != testOpts.PatternHitScore {
		t.Fatalf("score = %v, want pattern hit from surviving pattern", res.Score)
	}
}

func TestResolveExact(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	learned := seedLearned(t,
		LearnedEntry{
			Question:  "¿Tienen stock?",
			Answer:    "expirada",
			ExpiresAt: now.Add(-time.Minute),
		},
		LearnedEntry{
			Question:  "¿Tienen stock?",
			Answer:    "Sí, hay stock.",
			ExpiresAt: now.Add(time.Hour),
		},
	)
	m := NewMatcher(nil, testOpts, nil, learned)
	m.SetClock(func() time.Time { return now })

	entry, err := m.ResolveExact(context.Background(), "tienen STOCK??")
	if err != nil {
		t.Fatalf("ResolveExact: %v", err)
	}
	if entry == nil {
		t.Fatal("expected an exact match")
	}
	if entry.Answer != "Sí, hay stock." {
		t.Fatalf("answer = %q", entry.Answer)
	}

	miss, err := m.ResolveExact(context.Background(), "tienen stock en rojo")
	if err != nil {
		t.Fatalf("ResolveExact: %v", err)
	}
	if miss != nil {
		t.Fatalf("expected no match, got %+v", miss)
	}
}
