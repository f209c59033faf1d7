// Package bot ties the conversation store, the scripted state machine and the
// follow-up dispatcher into the single operation behind the webhook.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/evelynmon/wabot/core/conversation"
	"github.com/evelynmon/wabot/core/logger"
	"github.com/evelynmon/wabot/core/metrics"
	"github.com/evelynmon/wabot/core/session"
)

// Dispatcher schedules follow-ups without blocking.
type Dispatcher interface {
	Dispatch(ctx context.Context, fu conversation.FollowUp)
}

// Service handles one inbound message at a time per sender.
type Service struct {
	store     session.Store
	locker    *session.Locker
	machine   *conversation.Machine
	followUps Dispatcher
}

// NewService wires the store, machine and dispatcher together.
func NewService(store session.Store, machine *conversation.Machine, followUps Dispatcher) *Service {
	return &Service{
		store:     store,
		locker:    session.NewLocker(),
		machine:   machine,
		followUps: followUps,
	}
}

// Handle advances the sender's conversation with body and returns the reply text.
// A follow-up, if any, is scheduled only after the new state is committed.
func (s *Service) Handle(ctx context.Context, sender, body string) (string, error) {
	metrics.MessagesReceived.Inc()

	out, err := s.step(ctx, sender, body)
	if err != nil {
		return "", err
	}
	if out.FollowUp != nil && s.followUps != nil {
		s.followUps.Dispatch(ctx, *out.FollowUp)
	}
	return out.Reply, nil
}

func (s *Service) step(ctx context.Context, sender, body string) (conversation.Outcome, error) {
	unlock := s.locker.Lock(sender)
	defer unlock()

	st, err := s.store.GetOrCreate(ctx, sender)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("get").Inc()
		return conversation.Outcome{}, fmt.Errorf("bot: load conversation: %w", err)
	}

	next, out := s.machine.Step(sender, st, body)

	if out.Terminate {
		if err := s.store.Delete(ctx, sender); err != nil {
			metrics.StoreErrors.WithLabelValues("delete").Inc()
			return conversation.Outcome{}, fmt.Errorf("bot: delete conversation: %w", err)
		}
	} else if err := s.store.Save(ctx, sender, next); err != nil {
		metrics.StoreErrors.WithLabelValues("save").Inc()
		return conversation.Outcome{}, fmt.Errorf("bot: save conversation: %w", err)
	}

	metrics.Transitions.WithLabelValues(out.Label).Inc()
	s.logStep(ctx, st, next, body, out)
	return out, nil
}

// Snapshot returns every active conversation for the debug page.
func (s *Service) Snapshot(ctx context.Context) (map[string]conversation.State, error) {
	return s.store.Snapshot(ctx)
}

func (s *Service) logStep(ctx context.Context, prev, next conversation.State, body string, out conversation.Outcome) {
	attrs := []slog.Attr{
		slog.String("stage", string(prev.Stage)),
		slog.String("next_stage", string(next.Stage)),
		slog.String("outcome", out.Label),
	}
	logger.Info(ctx, "bot", "conversation.step", attrs...)

	if !logger.ShouldSampleDebug() {
		return
	}
	if q := s.pendingQuestion(prev); q != "" {
		logger.Debug(ctx, "bot", "qa.answered",
			slog.String("question", logger.SanitizeLimit(q, 120)),
			slog.String("answer", logger.SanitizeLimit(body, 120)),
		)
	}
	logger.Debug(ctx, "bot", "qa.asked",
		slog.String("question", logger.SanitizeLimit(out.Reply, 120)),
	)
}

// pendingQuestion is the prompt the sender was answering in st.
func (s *Service) pendingQuestion(st conversation.State) string {
	q := s.machine.Questions()
	switch st.Stage {
	case conversation.AwaitingName:
		return q.At(conversation.QuestionName)
	case conversation.AwaitingInterest:
		return q.Format(conversation.QuestionInterest, st.DisplayName)
	case conversation.AwaitingContinuation:
		return q.At(conversation.QuestionContinue)
	}
	return ""
}
