package redis_test

import (
	"context"
	"testing"
	"time"

	redisstore "github.com/LugmanS/chatbot/internal/adapters/redis"
	"github.com/LugmanS/chatbot/pkg/domain"
	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return redisstore.New(client), mr
}

func TestBot_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	bot := &domain.Bot{
		ID:                "bot-1",
		AccountID:         "acc-1",
		Name:              "support",
		WhatsappAccountID: "waba-1",
		IsPublished:       true,
		SessionTTL:        1800,
	}
	require.NoError(t, store.SaveBot(ctx, bot))

	got, err := store.Bot(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, bot.Name, got.Name)
	assert.Equal(t, bot.SessionTTL, got.SessionTTL)

	_, err = store.Bot(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrBotNotFound)
}

func TestPublishedBot_ResolvesByAccount(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	bot := &domain.Bot{ID: "bot-1", WhatsappAccountID: "waba-1", IsPublished: true}
	require.NoError(t, store.SaveBot(ctx, bot))

	got, err := store.PublishedBot(ctx, "waba-1")
	require.NoError(t, err)
	assert.Equal(t, "bot-1", got.ID)

	_, err = store.PublishedBot(ctx, "waba-unknown")
	assert.ErrorIs(t, err, domain.ErrBotNotFound)
}

func TestPublishedBot_UnpublishedIsHidden(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// Publish, then save an unpublished revision. The account index still
	// points at the bot, but resolution must refuse it.
	bot := &domain.Bot{ID: "bot-1", WhatsappAccountID: "waba-1", IsPublished: true}
	require.NoError(t, store.SaveBot(ctx, bot))
	bot.IsPublished = false
	require.NoError(t, store.SaveBot(ctx, bot))

	_, err := store.PublishedBot(ctx, "waba-1")
	assert.ErrorIs(t, err, domain.ErrBotNotFound)
}

func TestFlows_RoundTripAndListing(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	steps := []domain.Step{{
		ID:      "welcome",
		Type:    domain.StepSendMessage,
		Message: &domain.MessageConfig{Type: domain.MessageText, Text: "hi"},
	}}
	first := &domain.Flow{ID: "flow-1", BotID: "bot-1", Name: "sales", Intent: "sales", Steps: steps}
	second := &domain.Flow{ID: "flow-2", BotID: "bot-1", Name: "catchall", Intent: "*", Steps: steps}
	require.NoError(t, store.SaveFlow(ctx, first))
	require.NoError(t, store.SaveFlow(ctx, second))

	got, err := store.Flow(ctx, "flow-1")
	require.NoError(t, err)
	assert.Equal(t, "sales", got.Intent)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "hi", got.Steps[0].Message.Text)

	refs, err := store.FlowsByBot(ctx, "bot-1")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "flow-1", refs[0].ID, "listing keeps creation order")
	assert.Equal(t, "flow-2", refs[1].ID)

	// Re-saving must not duplicate the listing entry.
	first.Name = "sales v2"
	require.NoError(t, store.SaveFlow(ctx, first))
	refs, err = store.FlowsByBot(ctx, "bot-1")
	require.NoError(t, err)
	assert.Len(t, refs, 2)
	assert.Equal(t, "sales v2", refs[0].Name)

	_, err = store.Flow(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestClaimActive_SecondClaimConflicts(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := domain.NewSession("flow-1", "+5511999990000")
	require.NoError(t, store.ClaimActive(ctx, first, 0))

	second := domain.NewSession("flow-2", "+5511999990000")
	err := store.ClaimActive(ctx, second, 0)
	assert.ErrorIs(t, err, domain.ErrSessionConflict)

	// The winning session is the one resolvable for the user.
	got, err := store.ActiveSession(ctx, "+5511999990000")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestSession_RoundTripVariables(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	session := domain.NewSession("flow-1", "+5511999990000")
	session.LastStepID = "ask_name"
	session.Variables["name"] = "Ada"
	session.Variables["crm"] = `{"ticket":"T-42"}`
	require.NoError(t, store.ClaimActive(ctx, session, 0))

	got, err := store.ActiveSession(ctx, "+5511999990000")
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, "ask_name", got.LastStepID)
	assert.Equal(t, session.Variables, got.Variables)
	assert.True(t, got.Active)
}

func TestUpdateSession_DeactivationReleasesClaim(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	session := domain.NewSession("flow-1", "+5511999990000")
	require.NoError(t, store.ClaimActive(ctx, session, 0))

	session.Active = false
	session.LastStepID = "bye"
	require.NoError(t, store.UpdateSession(ctx, session))

	_, err := store.ActiveSession(ctx, "+5511999990000")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// A new conversation for the user can claim again.
	next := domain.NewSession("flow-1", "+5511999990000")
	assert.NoError(t, store.ClaimActive(ctx, next, 0))
}

func TestClaimActive_TTLExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	session := domain.NewSession("flow-1", "+5511999990000")
	require.NoError(t, store.ClaimActive(ctx, session, 30*time.Minute))

	_, err := store.ActiveSession(ctx, "+5511999990000")
	require.NoError(t, err)

	mr.FastForward(31 * time.Minute)

	_, err = store.ActiveSession(ctx, "+5511999990000")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "expired claim means no active session")

	next := domain.NewSession("flow-1", "+5511999990000")
	assert.NoError(t, store.ClaimActive(ctx, next, 30*time.Minute))
}

func TestUpdateSession_RefreshesIdleExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	session := domain.NewSession("flow-1", "+5511999990000")
	require.NoError(t, store.ClaimActive(ctx, session, 10*time.Minute))

	// Progress just before the claim would lapse.
	mr.FastForward(8 * time.Minute)
	session.LastStepID = "ask_more"
	require.NoError(t, store.UpdateSession(ctx, session))

	// Past the original expiry but within the refreshed one: the
	// conversation merely progressed, it was never idle that long.
	mr.FastForward(8 * time.Minute)
	got, err := store.ActiveSession(ctx, "+5511999990000")
	require.NoError(t, err)
	assert.Equal(t, "ask_more", got.LastStepID)

	// Genuinely idle past the full timeout: claim and record both lapse,
	// so no record flagged active is left behind.
	mr.FastForward(11 * time.Minute)
	_, err = store.ActiveSession(ctx, "+5511999990000")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.False(t, mr.Exists("chatbot:session:"+session.ID))
}

func TestUpdateSession_DeactivationKeepsRecord(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	session := domain.NewSession("flow-1", "+5511999990000")
	require.NoError(t, store.ClaimActive(ctx, session, 10*time.Minute))

	session.Active = false
	session.LastStepID = "bye"
	require.NoError(t, store.UpdateSession(ctx, session))

	// A finished conversation's record outlives the idle window.
	mr.FastForward(11 * time.Minute)
	assert.True(t, mr.Exists("chatbot:session:"+session.ID))
}

func TestActiveSession_StaleClaimIsDropped(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	// A claim pointing at a session record that no longer exists.
	mr.Set("chatbot:active:+5511999990000", "gone")

	_, err := store.ActiveSession(ctx, "+5511999990000")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.False(t, mr.Exists("chatbot:active:+5511999990000"), "stale claim must be removed")
}
