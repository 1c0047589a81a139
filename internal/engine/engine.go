// Package engine drives scripted conversations: it resolves sessions,
// matches intents, walks flow step graphs, and validates answers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"github.com/LugmanS/chatbot/internal/logging"
	"github.com/LugmanS/chatbot/internal/metrics"
	"github.com/LugmanS/chatbot/pkg/domain"
	"github.com/LugmanS/chatbot/pkg/ports"
)

// Engine executes one inbound event at a time against the persisted
// conversation state. All I/O inside one HandleEvent call is sequential;
// concurrency control lives in the session store's active claim.
type Engine struct {
	bots      ports.BotStore
	flows     ports.FlowStore
	sessions  ports.SessionStore
	messenger ports.Messenger
	client    *http.Client
	logger    *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithHTTPClient sets the client used by api_call steps. The default
// client carries a timeout so a hung endpoint cannot pin a unit of work
// forever.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) {
		e.client = client
	}
}

// New creates an Engine wired to its persistence and messaging ports.
func New(bots ports.BotStore, flows ports.FlowStore, sessions ports.SessionStore, messenger ports.Messenger, opts ...Option) *Engine {
	e := &Engine{
		bots:      bots,
		flows:     flows,
		sessions:  sessions,
		messenger: messenger,
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleEvent processes one normalized webhook event as a full unit of
// work: resume the user's active conversation if one exists, otherwise
// try to start one.
func (e *Engine) HandleEvent(ctx context.Context, ev *domain.Event) error {
	e.logger.Info("message event received",
		"kind", ev.Message.Kind,
		"user", ev.UserPhoneNumber,
		"account", ev.AccountID,
	)
	metrics.EventsReceived.Inc()

	session, err := e.sessions.ActiveSession(ctx, ev.UserPhoneNumber)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return e.startConversation(ctx, ev)
	case err != nil:
		return fmt.Errorf("resolving session for %s: %w", ev.UserPhoneNumber, err)
	default:
		return e.resumeConversation(ctx, ev, session)
	}
}

// startConversation handles an event from a user with no active session:
// match the first text message against the bot's flow intents and begin
// walking the selected flow.
func (e *Engine) startConversation(ctx context.Context, ev *domain.Event) error {
	e.logger.Info("no active session found", "user", ev.UserPhoneNumber, "account", ev.AccountID)

	bot, err := e.bots.PublishedBot(ctx, ev.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrBotNotFound) {
			e.logger.Warn("no published bot for account", "account", ev.AccountID)
			metrics.EventsIgnored.Inc()
			return nil
		}
		return fmt.Errorf("loading bot for account %s: %w", ev.AccountID, err)
	}

	refs, err := e.flows.FlowsByBot(ctx, bot.ID)
	if err != nil {
		return fmt.Errorf("listing flows of bot %s: %w", bot.ID, err)
	}

	// A conversation can only start from a text message.
	if ev.Message.Kind != domain.InboundText {
		e.sendFallback(ctx, ev, refs)
		e.logger.Info("non-text message without session, fallback sent", "user", ev.UserPhoneNumber)
		return nil
	}

	ref, ok := matchIntent(refs, ev.Message.Text)
	if !ok {
		e.sendFallback(ctx, ev, refs)
		e.logger.Info("no intent matched, fallback sent", "user", ev.UserPhoneNumber, "text", ev.Message.Text)
		return nil
	}

	flow, err := e.flows.Flow(ctx, ref.ID)
	if err != nil {
		return fmt.Errorf("loading flow %s: %w", ref.ID, err)
	}
	graph, err := flow.Compile()
	if err != nil {
		return fmt.Errorf("compiling flow %s: %w", flow.ID, err)
	}

	session := domain.NewSession(flow.ID, ev.UserPhoneNumber)
	session.LastStepID = graph.First
	if err := e.sessions.ClaimActive(ctx, session, bot.SessionExpiry()); err != nil {
		if errors.Is(err, domain.ErrSessionConflict) {
			// Another delivery for this user won the claim; abandon.
			e.logger.Info("active session claim lost, abandoning", "user", ev.UserPhoneNumber)
			return nil
		}
		return fmt.Errorf("claiming session for %s: %w", ev.UserPhoneNumber, err)
	}
	metrics.SessionsStarted.Inc()
	e.logger.Info("session created",
		"session", session.ID,
		"flow", flow.ID,
		"user", ev.UserPhoneNumber,
	)

	return e.walk(ctx, graph, session, ev, graph.First)
}

// resumeConversation re-validates the session's recorded blocking step
// against the new inbound event and, on success, continues the walk from
// that step's successor.
func (e *Engine) resumeConversation(ctx context.Context, ev *domain.Event, session *domain.Session) error {
	e.logger.Info("session found",
		"session", session.ID,
		"user", ev.UserPhoneNumber,
		"step", session.LastStepID,
	)

	flow, err := e.flows.Flow(ctx, session.FlowID)
	if err != nil {
		return fmt.Errorf("loading flow %s of session %s: %w", session.FlowID, session.ID, err)
	}
	graph, err := flow.Compile()
	if err != nil {
		return fmt.Errorf("compiling flow %s: %w", flow.ID, err)
	}

	last, ok := graph.Step(session.LastStepID)
	if !ok {
		// The graph no longer names the recorded step; the conversation
		// cannot continue.
		e.logger.Error("recorded step missing from flow, ending session",
			"session", session.ID, "step", session.LastStepID)
		return e.endSession(ctx, session)
	}

	valid := e.validateAnswer(ctx, last, ev, session.Variables)
	if last.Type == domain.StepAskQuestion && !valid {
		session.LastStepAttempts++
		e.logger.Info("answer rejected",
			"session", session.ID,
			"step", last.ID,
			"attempts", session.LastStepAttempts,
		)
		if last.MaxAttempts > 0 && session.LastStepAttempts >= last.MaxAttempts {
			return e.applyInvalidPolicy(ctx, graph, last, session, ev)
		}
		return e.sessions.UpdateSession(ctx, session)
	}

	if last.NextID == "" {
		return e.endSession(ctx, session)
	}
	session.LastStepAttempts = 0
	return e.walk(ctx, graph, session, ev, last.NextID)
}

// applyInvalidPolicy runs a question's configured on-invalid-response
// policy once its attempt budget is exhausted.
func (e *Engine) applyInvalidPolicy(ctx context.Context, graph *domain.Graph, step domain.Step, session *domain.Session, ev *domain.Event) error {
	e.logger.Info("question attempts exhausted",
		"session", session.ID,
		"step", step.ID,
		"policy", step.OnInvalidResponse,
	)
	switch step.OnInvalidResponse {
	case domain.PolicySkipStep:
		if step.NextID == "" {
			return e.endSession(ctx, session)
		}
		session.LastStepAttempts = 0
		return e.walk(ctx, graph, session, ev, step.NextID)
	case domain.PolicyFallback:
		if step.NextIDOnFailure == "" {
			return e.endSession(ctx, session)
		}
		session.LastStepAttempts = 0
		return e.walk(ctx, graph, session, ev, step.NextIDOnFailure)
	default: // end_flow and anything unconfigured
		return e.endSession(ctx, session)
	}
}

func (e *Engine) endSession(ctx context.Context, session *domain.Session) error {
	session.Active = false
	if err := e.sessions.UpdateSession(ctx, session); err != nil {
		return err
	}
	metrics.SessionsEnded.Inc()
	e.logger.Info("session ended", "session", session.ID, "user", session.UserPhoneNumber)
	return nil
}
