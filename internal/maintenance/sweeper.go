// Package maintenance runs the periodic housekeeping the bridge core
// deliberately leaves to an external policy: evicting long-idle
// conversation records and reporting learned-store expiry for audit.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/deskbridge/deskbridge/internal/conversation"
	"github.com/deskbridge/deskbridge/internal/knowledge"
)

// Sweeper is the scheduled housekeeping job.
type Sweeper struct {
	logger    *slog.Logger
	states    conversation.Store
	learned   knowledge.LearnedStore
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	now       func() time.Time
}

// NewSweeper creates a Sweeper with the given idle-state retention and cron
// schedule expression.
func NewSweeper(log *slog.Logger, states conversation.Store, learned knowledge.LearnedStore, retention time.Duration, schedule string) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		logger:    log.With(slog.String("service", "maintenance")),
		states:    states,
		learned:   learned,
		retention: retention,
		schedule:  schedule,
		now:       time.Now,
	}
}

// Start schedules the sweep. It returns an error for a malformed schedule
// expression.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sweep scheduled", slog.String("schedule", s.schedule))
	return nil
}

// Stop halts the schedule, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep performs one pass: evicts conversation records idle past the
// retention and logs how many learned entries aged out since creation.
// LearnedEntry expiry is monotonic, so the aged-out count only grows; the
// entries themselves stay in the log for audit.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()

	states, err := s.states.Scan(ctx)
	if err != nil {
		s.logger.Error("state scan failed", slog.Any("error", err))
	} else {
		evicted := 0
		for _, st := range states {
			if st.LastTouch.IsZero() || now.Sub(st.LastTouch) <= s.retention {
				continue
			}
			if err := s.states.Delete(ctx, st.ConversationID); err != nil {
				s.logger.Warn("state eviction failed",
					slog.String("conversation_id", st.ConversationID),
					slog.Any("error", err))
				continue
			}
			evicted++
		}
		if evicted > 0 {
			s.logger.Info("idle conversations evicted", slog.Int("count", evicted))
		}
	}

	entries, err := s.learned.Scan(ctx)
	if err != nil {
		s.logger.Error("learned scan failed", slog.Any("error", err))
		return
	}
	aged := 0
	for _, e := range entries {
		if !e.Expired && e.IsExpired(now) {
			aged++
		}
	}
	if aged > 0 {
		s.logger.Info("learned entries aged out", slog.Int("count", aged))
	}
}
