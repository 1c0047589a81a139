// Package redis implements the persistence gateway for bots, flows, and
// conversation sessions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LugmanS/chatbot/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store persists bot, flow, and session records. The active-session
// claim (one key per user, written with SET NX) is what enforces the
// at-most-one-active-session invariant: whoever loses the conditional
// write abandons its unit of work.
type Store struct {
	client *backend.Client
	prefix string
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix sets the key prefix for all records.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Store on top of an existing redis client.
func New(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: "chatbot:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) botKey(id string) string      { return s.prefix + "bot:" + id }
func (s *Store) accountKey(id string) string  { return s.prefix + "waba:" + id }
func (s *Store) flowKey(id string) string     { return s.prefix + "flow:" + id }
func (s *Store) botFlowsKey(id string) string { return s.prefix + "botflows:" + id }
func (s *Store) sessionKey(id string) string  { return s.prefix + "session:" + id }
func (s *Store) activeKey(user string) string { return s.prefix + "active:" + user }

// SaveBot creates or replaces a bot record. A published bot is indexed
// by its channel account so webhook events can resolve it.
func (s *Store) SaveBot(ctx context.Context, bot *domain.Bot) error {
	data, err := json.Marshal(bot)
	if err != nil {
		return fmt.Errorf("encoding bot: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.botKey(bot.ID), data, 0)
	if bot.IsPublished {
		pipe.Set(ctx, s.accountKey(bot.WhatsappAccountID), bot.ID, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving bot %s: %w", bot.ID, err)
	}
	return nil
}

// Bot retrieves a bot by identifier.
func (s *Store) Bot(ctx context.Context, id string) (*domain.Bot, error) {
	val, err := s.client.Get(ctx, s.botKey(id)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrBotNotFound
		}
		return nil, fmt.Errorf("loading bot %s: %w", id, err)
	}
	var bot domain.Bot
	if err := json.Unmarshal([]byte(val), &bot); err != nil {
		return nil, fmt.Errorf("decoding bot %s: %w", id, err)
	}
	return &bot, nil
}

// PublishedBot resolves the published bot serving a channel account.
func (s *Store) PublishedBot(ctx context.Context, whatsappAccountID string) (*domain.Bot, error) {
	botID, err := s.client.Get(ctx, s.accountKey(whatsappAccountID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrBotNotFound
		}
		return nil, fmt.Errorf("resolving account %s: %w", whatsappAccountID, err)
	}
	bot, err := s.Bot(ctx, botID)
	if err != nil {
		return nil, err
	}
	if !bot.IsPublished {
		return nil, domain.ErrBotNotFound
	}
	return bot, nil
}

// SaveFlow creates or replaces a flow record, keeping the bot's flow
// list in creation order.
func (s *Store) SaveFlow(ctx context.Context, flow *domain.Flow) error {
	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("encoding flow: %w", err)
	}
	exists, err := s.client.Exists(ctx, s.flowKey(flow.ID)).Result()
	if err != nil {
		return fmt.Errorf("checking flow %s: %w", flow.ID, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.flowKey(flow.ID), data, 0)
	if exists == 0 {
		pipe.RPush(ctx, s.botFlowsKey(flow.BotID), flow.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving flow %s: %w", flow.ID, err)
	}
	return nil
}

// Flow retrieves a flow by identifier.
func (s *Store) Flow(ctx context.Context, id string) (*domain.Flow, error) {
	val, err := s.client.Get(ctx, s.flowKey(id)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrFlowNotFound
		}
		return nil, fmt.Errorf("loading flow %s: %w", id, err)
	}
	var flow domain.Flow
	if err := json.Unmarshal([]byte(val), &flow); err != nil {
		return nil, fmt.Errorf("decoding flow %s: %w", id, err)
	}
	return &flow, nil
}

// FlowsByBot lists a bot's flow summaries in creation order.
func (s *Store) FlowsByBot(ctx context.Context, botID string) ([]domain.FlowRef, error) {
	ids, err := s.client.LRange(ctx, s.botFlowsKey(botID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing flows of bot %s: %w", botID, err)
	}
	refs := make([]domain.FlowRef, 0, len(ids))
	for _, id := range ids {
		flow, err := s.Flow(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrFlowNotFound) {
				continue
			}
			return nil, err
		}
		refs = append(refs, domain.FlowRef{ID: flow.ID, Name: flow.Name, Intent: flow.Intent})
	}
	return refs, nil
}

// ClaimActive atomically records the session as the user's single active
// session. The claim is a SET NX write; losing it reports
// domain.ErrSessionConflict so the caller abandons its unit of work
// instead of retry-creating. A non-zero ttl is an idle expiry: it is
// refreshed on every progress update, so only a conversation the user
// walked away from lapses.
func (s *Store) ClaimActive(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	claimed, err := s.client.SetNX(ctx, s.activeKey(session.UserPhoneNumber), session.ID, ttl).Result()
	if err != nil {
		return fmt.Errorf("claiming active session for %s: %w", session.UserPhoneNumber, err)
	}
	if !claimed {
		return domain.ErrSessionConflict
	}
	session.IdleTTLSeconds = int(ttl / time.Second)
	return s.writeSession(ctx, session)
}

// ActiveSession retrieves the user's active session via the claim key.
func (s *Store) ActiveSession(ctx context.Context, userPhoneNumber string) (*domain.Session, error) {
	sessionID, err := s.client.Get(ctx, s.activeKey(userPhoneNumber)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("resolving active session of %s: %w", userPhoneNumber, err)
	}
	val, err := s.client.Get(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			// Stale claim with no record behind it; drop it.
			s.client.Del(ctx, s.activeKey(userPhoneNumber))
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	var session domain.Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", sessionID, err)
	}
	if !session.Active {
		return nil, domain.ErrSessionNotFound
	}
	return &session, nil
}

// UpdateSession persists session progress. While the session is active,
// each update restarts the claim's idle expiry. Deactivation releases
// the user's claim in the same transaction and keeps the record without
// expiry.
func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	if session.Active {
		return s.writeSession(ctx, session)
	}
	session.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(session.ID), data, 0)
	pipe.Del(ctx, s.activeKey(session.UserPhoneNumber))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving session %s: %w", session.ID, err)
	}
	return nil
}

// writeSession stores an active session's record with the idle expiry
// and refreshes the claim to match. The record expires together with
// the claim, so a lapsed conversation never leaves a record flagged
// active behind.
func (s *Store) writeSession(ctx context.Context, session *domain.Session) error {
	session.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	ttl := time.Duration(session.IdleTTLSeconds) * time.Second
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(session.ID), data, ttl)
	if ttl > 0 {
		pipe.Expire(ctx, s.activeKey(session.UserPhoneNumber), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving session %s: %w", session.ID, err)
	}
	return nil
}
