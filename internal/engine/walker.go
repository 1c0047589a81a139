package engine

import (
	"context"

	"github.com/LugmanS/chatbot/internal/metrics"
	"github.com/LugmanS/chatbot/pkg/domain"
)

// walk executes steps from startID following successor links until a
// blocking step or a step with no successor is reached, then persists the
// session at that step. Graph compilation guarantees every link resolves
// and that no chain of non-blocking steps loops.
func (e *Engine) walk(ctx context.Context, graph *domain.Graph, session *domain.Session, ev *domain.Event, startID string) error {
	current, ok := graph.Step(startID)
	if !ok {
		e.logger.Error("walk target missing from flow, ending session",
			"session", session.ID, "step", startID)
		return e.endSession(ctx, session)
	}
	for {
		e.executeStep(ctx, current, ev, session.Variables)
		metrics.StepsExecuted.WithLabelValues(string(current.Type)).Inc()
		e.logger.Info("step executed",
			"step", current.ID,
			"type", current.Type,
			"user", ev.UserPhoneNumber,
		)

		if current.Blocking() || current.NextID == "" {
			session.LastStepID = current.ID
			session.LastStepAttempts = 0
			session.Active = current.NextID != ""
			if err := e.sessions.UpdateSession(ctx, session); err != nil {
				return err
			}
			if !session.Active {
				metrics.SessionsEnded.Inc()
				e.logger.Info("session ended", "session", session.ID, "user", session.UserPhoneNumber)
			}
			return nil
		}
		current, _ = graph.Step(current.NextID)
	}
}
