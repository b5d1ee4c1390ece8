package knowledge

import (
	"context"
	"log/slog"
	"regexp"
	"time"
)

// Result is the matcher's answer for one input text. A zero Score with an
// empty Answer signals "no answer".
type Result struct {
	Score  float64
	Answer string
	Source string
}

// Options carries the resolution thresholds.
type Options struct {
	// LearnedMinScore short-circuits resolution: a learned hit at or above
	// it wins even when a KB entry would score higher, since a human
	// already vetted that question.
	LearnedMinScore float64
	// KBMinScore accepts a KB hit when no learned entry qualified.
	KBMinScore float64
	// PatternHitScore is the fixed score contributed by a regex pattern
	// match, kept below 1.0 so it stays comparable with Jaccard scores.
	PatternHitScore float64
}

type compiledEntry struct {
	question string
	normQ    string
	answer   string
	patterns []*regexp.Regexp
}

// Matcher resolves free text against the static KB and the learned store.
type Matcher struct {
	logger  *slog.Logger
	opts    Options
	static  []compiledEntry
	learned LearnedStore
	now     func() time.Time
}

// NewMatcher compiles the static entries and returns a Matcher. A pattern
// that fails to compile is skipped with a warning; it never aborts loading
// the rest of the entry or the store.
func NewMatcher(log *slog.Logger, opts Options, entries []Entry, learned LearnedStore) *Matcher {
	if log == nil {
		log = slog.Default()
	}
	m := &Matcher{
		logger:  log.With(slog.String("service", "matcher")),
		opts:    opts,
		learned: learned,
		now:     time.Now,
	}
	for _, entry := range entries {
		ce := compiledEntry{
			question: entry.Question,
			normQ:    Normalize(entry.Question),
			answer:   entry.Answer,
		}
		for _, src := range entry.Patterns {
			re, err := regexp.Compile("(?i)" + src)
			if err != nil {
				m.logger.Warn("skipping malformed pattern",
					slog.String("question", entry.Question),
					slog.String("pattern", src),
					slog.Any("error", err))
				continue
			}
			ce.patterns = append(ce.patterns, re)
		}
		m.static = append(m.static, ce)
	}
	return m
}

// SetClock overrides the matcher's clock, for tests.
func (m *Matcher) SetClock(now func() time.Time) { m.now = now }

// Resolve scores text against both stores and applies the asymmetric
// decision rule: best learned >= LearnedMinScore wins outright; otherwise
// best KB >= KBMinScore; otherwise whichever scored higher, possibly a
// zero-confidence result. The first entry seen at the winning score is kept.
func (m *Matcher) Resolve(ctx context.Context, text string) (Result, error) {
	learned, err := m.bestLearned(ctx, text)
	if err != nil {
		return Result{}, err
	}
	if learned.Score >= m.opts.LearnedMinScore {
		return learned, nil
	}
	kb := m.bestStatic(text)
	if kb.Score >= m.opts.KBMinScore {
		return kb, nil
	}
	if learned.Score > kb.Score {
		return learned, nil
	}
	return kb, nil
}

// ResolveExact returns the first non-expired learned entry whose normalized
// question equals the normalized input, or nil.
func (m *Matcher) ResolveExact(ctx context.Context, text string) (*LearnedEntry, error) {
	entries, err := m.learnedEntries(ctx)
	if err != nil {
		return nil, err
	}
	n := Normalize(text)
	if n == "" {
		return nil, nil
	}
	now := m.now()
	for _, e := range entries {
		if e.IsExpired(now) {
			continue
		}
		if Normalize(e.Question) == n {
			entry := e
			return &entry, nil
		}
	}
	return nil, nil
}

func (m *Matcher) learnedEntries(ctx context.Context) ([]LearnedEntry, error) {
	if m.learned == nil {
		return nil, nil
	}
	return m.learned.Scan(ctx)
}

func (m *Matcher) bestLearned(ctx context.Context, text string) (Result, error) {
	entries, err := m.learnedEntries(ctx)
	if err != nil {
		return Result{}, err
	}
	best := Result{Source: SourceLearned}
	now := m.now()
	for _, e := range entries {
		if e.IsExpired(now) {
			continue
		}
		score := Jaccard(text, e.Question)
		if score > best.Score {
			best = Result{Score: score, Answer: e.Answer, Source: SourceLearned}
		}
	}
	return best, nil
}

func (m *Matcher) bestStatic(text string) Result {
	best := Result{Source: SourceKB}
	for _, e := range m.static {
		score := 0.0
		for _, re := range e.patterns {
			if re.MatchString(text) {
				score = m.opts.PatternHitScore
				break
			}
		}
		if j := Jaccard(text, e.question); j > score {
			score = j
		}
		if score > best.Score {
			best = Result{Score: score, Answer: e.answer, Source: SourceKB}
		}
	}
	return best
}
