package ports

import (
	"context"
	"time"

	"github.com/LugmanS/chatbot/pkg/domain"
)

// BotStore is the persistence gateway for bot records.
type BotStore interface {
	// SaveBot creates or replaces a bot record.
	SaveBot(ctx context.Context, bot *domain.Bot) error

	// Bot retrieves a bot by its identifier.
	// Returns domain.ErrBotNotFound when it does not exist.
	Bot(ctx context.Context, id string) (*domain.Bot, error)

	// PublishedBot retrieves the published bot serving a channel account.
	// Returns domain.ErrBotNotFound when none is published for it.
	PublishedBot(ctx context.Context, whatsappAccountID string) (*domain.Bot, error)
}

// FlowStore is the persistence gateway for flow definitions.
type FlowStore interface {
	// SaveFlow creates or replaces a flow record.
	SaveFlow(ctx context.Context, flow *domain.Flow) error

	// Flow retrieves a flow by its identifier.
	// Returns domain.ErrFlowNotFound when it does not exist.
	Flow(ctx context.Context, id string) (*domain.Flow, error)

	// FlowsByBot lists the flow summaries of a bot, in creation order.
	FlowsByBot(ctx context.Context, botID string) ([]domain.FlowRef, error)
}

// SessionStore is the persistence gateway for conversation sessions. It
// owns the "at most one active session per user" invariant: claiming is a
// conditional write, not a check-then-act.
type SessionStore interface {
	// ClaimActive atomically records the session as the user's single
	// active session and persists it. Returns domain.ErrSessionConflict
	// when another session already holds the claim. A non-zero ttl is an
	// idle expiry enforced at the persistence layer.
	ClaimActive(ctx context.Context, session *domain.Session, ttl time.Duration) error

	// ActiveSession retrieves the user's active session.
	// Returns domain.ErrSessionNotFound when there is none.
	ActiveSession(ctx context.Context, userPhoneNumber string) (*domain.Session, error)

	// UpdateSession persists session progress. While the session stays
	// active each update restarts the idle expiry; when it is no longer
	// active the user's claim is released in the same write.
	UpdateSession(ctx context.Context, session *domain.Session) error
}
