package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deskbridge/deskbridge/internal/channel"
	"github.com/deskbridge/deskbridge/internal/conversation"
	"github.com/deskbridge/deskbridge/internal/correlation"
	"github.com/deskbridge/deskbridge/internal/knowledge"
)

// Phrases that pull a human in, matched by normalized-text containment
// rather than fuzzy score.
var humanPhrases = []string{"contactar asesor", "continuar asesor"}

// Options carries the orchestrator policy. The observed defaults (60s
// answer window, 8s shortcut cooldown) come in through configuration.
type Options struct {
	BotName          string
	BrandName        string
	AnswerWindow     time.Duration
	ShortcutCooldown time.Duration
	TTL              knowledge.TTLPolicy
	LearnedMinScore  float64
	KBMinScore       float64
}

// Orchestrator applies the handoff policy. It is the only writer of
// conversation state and learned entries, and it touches both exclusively
// inside the conversation's lock scope.
type Orchestrator struct {
	logger      *slog.Logger
	opts        Options
	matcher     *knowledge.Matcher
	learned     knowledge.LearnedStore
	states      conversation.Store
	locks       *conversation.KeyedLock
	tagger      *correlation.Tagger
	platform    Platform
	supervisors channel.Sender
	now         func() time.Time
}

// NewOrchestrator wires the orchestrator.
func NewOrchestrator(log *slog.Logger, opts Options, matcher *knowledge.Matcher, learned knowledge.LearnedStore, states conversation.Store, locks *conversation.KeyedLock, tagger *correlation.Tagger, platform Platform, supervisors channel.Sender) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		logger:      log.With(slog.String("service", "bridge")),
		opts:        opts,
		matcher:     matcher,
		learned:     learned,
		states:      states,
		locks:       locks,
		tagger:      tagger,
		platform:    platform,
		supervisors: supervisors,
		now:         time.Now,
	}
}

// SetClock overrides the orchestrator clock, for tests.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

func (o *Orchestrator) signed(text string) string {
	return "_" + o.opts.BotName + ": " + text + "_"
}

// customerTimeout bounds the processing of one acknowledged delivery.
const customerTimeout = 2 * time.Minute

// HandleCustomerMessage processes one support-platform event under the
// conversation's lock.
func (o *Orchestrator) HandleCustomerMessage(ctx context.Context, ev CustomerMessage) error {
	if strings.TrimSpace(ev.ConversationID) == "" {
		return ErrMissingConversation
	}
	return o.locks.Do(ctx, ev.ConversationID, func() error {
		return o.processCustomerMessage(ctx, ev)
	})
}

// EnqueueCustomerMessage claims the conversation's place in the lock chain
// before returning, so deliveries acknowledged in sequence also process in
// that sequence, then runs in the background and reports the outcome to done.
func (o *Orchestrator) EnqueueCustomerMessage(ev CustomerMessage, done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	if strings.TrimSpace(ev.ConversationID) == "" {
		done(ErrMissingConversation)
		return
	}
	o.locks.Go(ev.ConversationID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), customerTimeout)
		defer cancel()
		done(o.processCustomerMessage(ctx, ev))
	})
}

func (o *Orchestrator) processCustomerMessage(ctx context.Context, ev CustomerMessage) error {
	st, err := o.loadState(ctx, ev.ConversationID)
	if err != nil {
		return err
	}
	norm := knowledge.Normalize(ev.Text)

	fired, err := o.tryHumanShortcut(ctx, &st, ev, norm)
	if fired || err != nil {
		return err
	}

	if ev.MessageType == DirectionIncoming && st.SupervisorActive {
		return o.answerOrAsk(ctx, &st, ev.Text, ev.AttachmentURLs)
	}

	if ev.MessageType == DirectionIncoming && ev.AllowGreeting && !st.Greeted {
		st.Greeted = true
		if err := o.states.Put(ctx, st); err != nil {
			return err
		}
		greeting := fmt.Sprintf("Hola, soy %s. ¿Querés hablar con un asesor?", o.opts.BotName)
		return o.platform.PostText(ctx, st.ConversationID, greeting)
	}

	return o.states.Put(ctx, st)
}

// tryHumanShortcut fires the "request human" shortcut when the normalized
// text contains one of the trigger phrases. The shortcut always sets
// SupervisorActive and runs the answer-or-ask path, subject to the
// fingerprint dedupe and per-kind cooldown. It reports true whenever the
// message was consumed, including deduped repeats.
func (o *Orchestrator) tryHumanShortcut(ctx context.Context, st *conversation.State, ev CustomerMessage, norm string) (bool, error) {
	matched := false
	for _, phrase := range humanPhrases {
		if strings.Contains(norm, phrase) {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	key := Fingerprint(ev.EventID, norm, ShortcutHuman)
	if !shouldFireShortcut(st, ShortcutHuman, key, o.now(), o.opts.ShortcutCooldown) {
		return true, o.states.Put(ctx, *st)
	}
	st.SupervisorActive = true
	if err := o.states.Put(ctx, *st); err != nil {
		return true, err
	}
	if err := o.platform.PostText(ctx, st.ConversationID, "Perfecto, te atiende el asesor."); err != nil {
		return true, err
	}
	if err := o.platform.PostPrivate(ctx, st.ConversationID, "Asesor solicitado → activando puente con supervisores."); err != nil {
		o.logger.Warn("private note failed", slog.String("conversation_id", st.ConversationID), slog.Any("error", err))
	}
	return true, o.answerOrAsk(ctx, st, ev.Text, ev.AttachmentURLs)
}

// answerOrAsk answers from the matcher when confident and escalates to the
// supervisor channel otherwise.
func (o *Orchestrator) answerOrAsk(ctx context.Context, st *conversation.State, raw string, attachmentURLs []string) error {
	st.SupervisorActive = true

	exact, err := o.matcher.ResolveExact(ctx, raw)
	if err != nil {
		return err
	}
	if exact != nil && exact.Answer != "" {
		if err := o.states.Put(ctx, *st); err != nil {
			return err
		}
		if err := o.platform.PostText(ctx, st.ConversationID, o.signed(exact.Answer)); err != nil {
			return err
		}
		return o.platform.PostPrivate(ctx, st.ConversationID, "Respuesta aprendida usada (coincidencia exacta).")
	}

	res, err := o.matcher.Resolve(ctx, raw)
	if err != nil {
		return err
	}
	if res.Answer != "" && o.confident(res) {
		if err := o.states.Put(ctx, *st); err != nil {
			return err
		}
		if err := o.platform.PostText(ctx, st.ConversationID, o.signed(res.Answer)); err != nil {
			return err
		}
		note := fmt.Sprintf("%s respondió (%s) con score=%.2f.", o.opts.BotName, res.Source, res.Score)
		return o.platform.PostPrivate(ctx, st.ConversationID, note)
	}

	return o.escalate(ctx, st, raw, attachmentURLs)
}

func (o *Orchestrator) confident(res knowledge.Result) bool {
	if res.Source == knowledge.SourceLearned {
		return res.Score >= o.opts.LearnedMinScore
	}
	return res.Score >= o.opts.KBMinScore
}

// escalate records the pending question, acknowledges the customer, and
// forwards the tagged question (plus attachments) to the supervisor group.
func (o *Orchestrator) escalate(ctx context.Context, st *conversation.State, question string, attachmentURLs []string) error {
	st.Pending = &conversation.PendingQuestion{Text: question, AskedAt: o.now()}
	st.LastAnsweredAt = time.Time{}
	if err := o.states.Put(ctx, *st); err != nil {
		return err
	}
	ack := o.signed("Estoy consultando con el equipo y te respondo al toque.")
	if err := o.platform.PostText(ctx, st.ConversationID, ack); err != nil {
		return err
	}
	if err := o.forwardToSupervisors(ctx, st.ConversationID, question, attachmentURLs); err != nil {
		o.logger.Error("escalation forward failed",
			slog.String("conversation_id", st.ConversationID),
			slog.Any("error", err))
		apology := o.signed("Perdón, no pude contactar al equipo. Probá de nuevo en un rato.")
		return o.platform.PostText(ctx, st.ConversationID, apology)
	}
	note := fmt.Sprintf("Consulta enviada al grupo de supervisores. Pregunta: %q", question)
	return o.platform.PostPrivate(ctx, st.ConversationID, note)
}

func (o *Orchestrator) forwardToSupervisors(ctx context.Context, conversationID, question string, attachmentURLs []string) error {
	text := strings.TrimSpace(question)
	if text == "" {
		text = "(sin texto)"
	}
	header := fmt.Sprintf("Consulta de %s %s\nPregunta: %s", o.opts.BrandName, correlation.Tag(conversationID), text)
	if err := o.supervisors.SendText(ctx, header); err != nil {
		return err
	}
	for _, u := range attachmentURLs {
		att, err := o.platform.FetchAttachment(ctx, u)
		if err != nil {
			o.logger.Warn("attachment fetch failed", slog.String("url", u), slog.Any("error", err))
			continue
		}
		att.Caption = att.Name
		if err := o.supervisors.SendAttachment(ctx, att); err != nil {
			o.logger.Warn("attachment forward failed", slog.String("url", u), slog.Any("error", err))
		}
	}
	o.tagger.Remember(correlation.SharedChannel, conversationID)
	return nil
}

// HandleSupervisorMessage routes one supervisor-channel message: resolve
// the target conversation, run commands, then apply the learn-and-answer
// policy under the conversation's lock, suppressing answers that land
// inside the collision window of a previous one.
func (o *Orchestrator) HandleSupervisorMessage(ctx context.Context, msg channel.InboundMessage) error {
	text := msg.PlainText()
	if text == "" && len(msg.Attachments) == 0 {
		return nil
	}
	conversationID, ok := o.tagger.Resolve(msg.SenderID, text)
	if !ok {
		o.logger.Debug("supervisor message without target dropped",
			slog.String("message_id", msg.MessageID),
			slog.String("sender", msg.SenderID))
		return nil
	}
	o.tagger.Remember(msg.SenderID, conversationID)

	if handled, err := o.handleCommand(ctx, conversationID, text); handled {
		return err
	}

	clean := correlation.Strip(text)
	return o.locks.Do(ctx, conversationID, func() error {
		st, err := o.loadState(ctx, conversationID)
		if err != nil {
			return err
		}
		now := o.now()

		if clean != "" {
			if st.InWindow(now, o.opts.AnswerWindow) {
				note := fmt.Sprintf("Otro supervisor agregó: %q (ignorado para evitar doble respuesta).", clean)
				if err := o.platform.PostPrivate(ctx, conversationID, note); err != nil {
					return err
				}
			} else if err := o.applyAnswer(ctx, &st, clean, now); err != nil {
				return err
			}
		}

		for _, att := range msg.Attachments {
			content := "_" + o.opts.BotName + " envió un archivo_"
			if att.Caption != "" {
				content = o.signed(att.Caption)
			}
			if err := o.platform.PostAttachments(ctx, conversationID, content, []channel.Attachment{att}); err != nil {
				o.logger.Error("attachment relay failed",
					slog.String("conversation_id", conversationID),
					slog.Any("error", err))
			}
		}

		return o.states.Put(ctx, st)
	})
}

// applyAnswer records the supervisor reply as a learned entry, forwards it
// to the customer, and opens the collision window.
func (o *Orchestrator) applyAnswer(ctx context.Context, st *conversation.State, answer string, now time.Time) error {
	question := answer
	if st.Pending != nil && strings.TrimSpace(st.Pending.Text) != "" {
		question = st.Pending.Text
	}
	entry := knowledge.LearnedEntry{
		ID:             uuid.NewString(),
		Question:       question,
		Answer:         answer,
		ConversationID: st.ConversationID,
		Source:         knowledge.EntrySourceSupervisor,
		CreatedAt:      now,
		ExpiresAt:      o.opts.TTL.ExpiresAt(question, answer, now),
	}
	if err := o.learned.Append(ctx, entry); err != nil {
		return fmt.Errorf("append learned entry: %w", err)
	}
	note := fmt.Sprintf("%s aprendió: %q → %q", o.opts.BotName, question, answer)
	if err := o.platform.PostPrivate(ctx, st.ConversationID, note); err != nil {
		o.logger.Warn("private note failed", slog.String("conversation_id", st.ConversationID), slog.Any("error", err))
	}
	if err := o.platform.PostText(ctx, st.ConversationID, o.signed(answer)); err != nil {
		return err
	}
	st.Pending = nil
	st.LastAnsweredAt = now
	return nil
}

// loadState returns the conversation record, initializing a fresh one for
// unseen ids, with LastTouch stamped.
func (o *Orchestrator) loadState(ctx context.Context, conversationID string) (conversation.State, error) {
	st, err := o.states.Get(ctx, conversationID)
	if err != nil {
		if !errors.Is(err, conversation.ErrNotFound) {
			return conversation.State{}, err
		}
		st = conversation.State{ConversationID: conversationID}
	}
	st.LastTouch = o.now()
	return st, nil
}
