package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/LugmanS/chatbot/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore backs all three persistence ports in memory. Claim semantics
// mirror the redis adapter: one active session per user, first claim wins.
type fakeStore struct {
	bots     map[string]*domain.Bot
	flows    map[string]*domain.Flow
	sessions map[string]*domain.Session
	active   map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bots:     make(map[string]*domain.Bot),
		flows:    make(map[string]*domain.Flow),
		sessions: make(map[string]*domain.Session),
		active:   make(map[string]string),
	}
}

func (s *fakeStore) SaveBot(ctx context.Context, bot *domain.Bot) error {
	s.bots[bot.ID] = bot
	return nil
}

func (s *fakeStore) Bot(ctx context.Context, id string) (*domain.Bot, error) {
	bot, ok := s.bots[id]
	if !ok {
		return nil, domain.ErrBotNotFound
	}
	return bot, nil
}

func (s *fakeStore) PublishedBot(ctx context.Context, whatsappAccountID string) (*domain.Bot, error) {
	for _, bot := range s.bots {
		if bot.WhatsappAccountID == whatsappAccountID && bot.IsPublished {
			return bot, nil
		}
	}
	return nil, domain.ErrBotNotFound
}

func (s *fakeStore) SaveFlow(ctx context.Context, flow *domain.Flow) error {
	s.flows[flow.ID] = flow
	return nil
}

func (s *fakeStore) Flow(ctx context.Context, id string) (*domain.Flow, error) {
	flow, ok := s.flows[id]
	if !ok {
		return nil, domain.ErrFlowNotFound
	}
	return flow, nil
}

func (s *fakeStore) FlowsByBot(ctx context.Context, botID string) ([]domain.FlowRef, error) {
	var refs []domain.FlowRef
	for _, flow := range s.flows {
		if flow.BotID == botID {
			refs = append(refs, domain.FlowRef{ID: flow.ID, Name: flow.Name, Intent: flow.Intent})
		}
	}
	return refs, nil
}

func (s *fakeStore) ClaimActive(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	if _, claimed := s.active[session.UserPhoneNumber]; claimed {
		return domain.ErrSessionConflict
	}
	s.active[session.UserPhoneNumber] = session.ID
	s.sessions[session.ID] = session
	return nil
}

func (s *fakeStore) ActiveSession(ctx context.Context, userPhoneNumber string) (*domain.Session, error) {
	id, ok := s.active[userPhoneNumber]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	session, ok := s.sessions[id]
	if !ok || !session.Active {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *fakeStore) UpdateSession(ctx context.Context, session *domain.Session) error {
	s.sessions[session.ID] = session
	if !session.Active {
		delete(s.active, session.UserPhoneNumber)
	}
	return nil
}

type sentMessage struct {
	to  string
	msg *domain.MessageConfig
}

type fakeMessenger struct {
	sent []sentMessage
}

func (m *fakeMessenger) Send(ctx context.Context, phoneNumberID, to string, msg *domain.MessageConfig) error {
	m.sent = append(m.sent, sentMessage{to: to, msg: msg})
	return nil
}

func (m *fakeMessenger) texts() []string {
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.msg.Text)
	}
	return out
}

const (
	testAccountID = "waba-1"
	testUser      = "+5511999990000"
)

func seedBotAndFlow(t *testing.T, store *fakeStore, steps ...domain.Step) *domain.Flow {
	t.Helper()
	bot := &domain.Bot{
		ID:                "bot-1",
		Name:              "support",
		WhatsappAccountID: testAccountID,
		IsPublished:       true,
		SessionTTL:        3600,
	}
	require.NoError(t, store.SaveBot(context.Background(), bot))
	flow := &domain.Flow{
		ID:     "flow-1",
		BotID:  bot.ID,
		Name:   "sales",
		Intent: "sales",
		Steps:  steps,
	}
	require.NoError(t, store.SaveFlow(context.Background(), flow))
	return flow
}

func textEvent(text string) *domain.Event {
	return &domain.Event{
		AccountID:       testAccountID,
		PhoneNumberID:   "pn-1",
		UserName:        "Ada",
		UserPhoneNumber: testUser,
		Message:         domain.InboundMessage{ID: "wamid.1", Kind: domain.InboundText, Text: text},
	}
}

func sendStep(id, text, nextID string) domain.Step {
	return domain.Step{
		ID:      id,
		Type:    domain.StepSendMessage,
		NextID:  nextID,
		Message: &domain.MessageConfig{Type: domain.MessageText, Text: text},
	}
}

func askStep(id, text, variable, nextID string) domain.Step {
	return domain.Step{
		ID:              id,
		Type:            domain.StepAskQuestion,
		NextID:          nextID,
		StorageVariable: variable,
		Message:         &domain.MessageConfig{Type: domain.MessageText, Text: text},
	}
}

func TestMatchIntent(t *testing.T) {
	refs := []domain.FlowRef{
		{ID: "f1", Intent: "sales"},
		{ID: "f2", Intent: "*"},
		{ID: "f3", Intent: "support"},
	}

	ref, ok := matchIntent(refs, "support")
	assert.True(t, ok)
	assert.Equal(t, "f3", ref.ID, "exact intent must beat the wildcard")

	ref, ok = matchIntent(refs, "anything else")
	assert.True(t, ok)
	assert.Equal(t, "f2", ref.ID)

	_, ok = matchIntent([]domain.FlowRef{{ID: "f1", Intent: "sales"}}, "billing")
	assert.False(t, ok)

	_, ok = matchIntent(nil, "sales")
	assert.False(t, ok)
}

func TestCheckConstraints(t *testing.T) {
	v := &domain.ValidationConfig{Min: 3, Max: 5, Regex: "^[0-9]+$"}

	assert.False(t, checkConstraints(v, "12"), "below min length")
	assert.True(t, checkConstraints(v, "12345"))
	assert.False(t, checkConstraints(v, "123456"), "above max length")
	assert.False(t, checkConstraints(v, "abcd"), "pattern mismatch")
	assert.True(t, checkConstraints(nil, ""), "nil config accepts everything")
}

func TestCheckConstraints_CountsCharactersNotBytes(t *testing.T) {
	// Multibyte answers measure by character count, not encoded length.
	assert.True(t, checkConstraints(&domain.ValidationConfig{Max: 4}, "café"))
	assert.True(t, checkConstraints(&domain.ValidationConfig{Min: 3, Max: 3}, "日本語"))
	assert.False(t, checkConstraints(&domain.ValidationConfig{Min: 5}, "café"))
}

func TestHandleEvent_WalksToTerminalStep(t *testing.T) {
	store := newFakeStore()
	messenger := &fakeMessenger{}
	seedBotAndFlow(t, store,
		sendStep("a", "one", "b"),
		sendStep("b", "two", "c"),
		sendStep("c", "three", ""),
	)
	eng := New(store, store, store, messenger)

	require.NoError(t, eng.HandleEvent(context.Background(), textEvent("sales")))

	assert.Equal(t, []string{"one", "two", "three"}, messenger.texts())
	require.Len(t, store.sessions, 1)
	for _, session := range store.sessions {
		assert.False(t, session.Active)
		assert.Equal(t, "c", session.LastStepID)
	}
	assert.Empty(t, store.active, "terminal walk must release the active claim")
}

func TestHandleEvent_BlocksAtQuestion(t *testing.T) {
	store := newFakeStore()
	messenger := &fakeMessenger{}
	seedBotAndFlow(t, store,
		sendStep("a", "welcome", "q"),
		askStep("q", "your name?", "name", "bye"),
		sendStep("bye", "thanks {{name}}", ""),
	)
	eng := New(store, store, store, messenger)

	require.NoError(t, eng.HandleEvent(context.Background(), textEvent("sales")))

	assert.Equal(t, []string{"welcome", "your name?"}, messenger.texts())
	session, err := store.ActiveSession(context.Background(), testUser)
	require.NoError(t, err)
	assert.True(t, session.Active)
	assert.Equal(t, "q", session.LastStepID)
}

func TestHandleEvent_ResumeValidAnswer(t *testing.T) {
	store := newFakeStore()
	messenger := &fakeMessenger{}
	seedBotAndFlow(t, store,
		askStep("q", "your name?", "name", "bye"),
		sendStep("bye", "thanks {{name}}", ""),
	)
	eng := New(store, store, store, messenger)

	require.NoError(t, eng.HandleEvent(context.Background(), textEvent("sales")))
	messenger.sent = nil

	require.NoError(t, eng.HandleEvent(context.Background(), textEvent("Ada")))

	assert.Equal(t, []string{"thanks Ada"}, messenger.texts())
	for _, session := range store.sessions {
		assert.Equal(t, "Ada", session.Variables["name"])
		assert.False(t, session.Active)
	}
}

func TestHandleEvent_InvalidAnswerIncrementsAttempts(t *testing.T) {
	store := newFakeStore()
	messenger := &fakeMessenger{}
	q := askStep("q", "how many seats?", "seats", "bye")
	q.Validations = &domain.ValidationConfig{Min: 3, Regex: "^[0-9]+$"}
	q.InvalidInputErrorText = "Please send a number with at least 3 digits."
	seedBotAndFlow(t, store, q, sendStep("bye", "done", ""))
	eng := New(store, store, store, messenger)

	require.NoError(t, eng.HandleEvent(context.Background(), textEvent("sales")))
	messenger.sent = nil

	require.NoError(t, eng.HandleEvent(context.Background(), textEvent("12")))

	assert.Equal(t, []string{"Please send a number with at least 3 digits."}, messenger.texts())
	session, err := store.ActiveSession(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, session.LastStepAttempts)
	assert.Equal(t, "q", session.LastStepID)
	assert.NotContains(t, session.Variables, "seats")
}

func TestHandleEvent_KindMismatchResendsQuestion(t *testing.T) {
	store := newFakeStore()
	messenger := &fakeMessenger{}
	seedBotAndFlow(t, store,
		askStep("q", "your name?", "name", "bye"),
		sendStep("bye", "done", ""),
	)
	eng := New(store, store, store, messenger)

	require.NoError(t, eng.HandleEvent(context.Background(), textEvent("sales")))
	messenger.sent = nil

	ev := textEvent("")
	ev.Message = domain.InboundMessage{ID: "wamid.2", Kind: domain.InboundImage}
	require.NoError(t, eng.HandleEvent(context.Background(), ev))

	assert.Equal(t, []string{"your name?"}, messenger.texts())
	session, err := store.ActiveSession(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, session.LastStepAttempts)
}

func TestHandleEvent_InteractiveAnswerStoresTitle(t *testing.T) {
	store := newFakeStore()
	messenger := &fakeMessenger{}
	q := domain.Step{
		ID:              "q",
		Type:            domain.StepAskQuestion,
		StorageVariable: "plan",
		NextID:          "bye",
		Message: &domain.MessageConfig{
			Type:            domain.MessageInteractive,
			InteractionType: domain.InteractionList,
			Text:            "Choose a plan",
			ButtonText:      "Plans",
			Options: []domain.ListOption{
				{ID: "basic", Title: "Basic"},
				{ID: "pro", Title: "Pro"},
			},
		},
	}
	seedBotAndFlow(t, store, q, sendStep("bye", "you chose {{plan}}", ""))
	eng := New(store, store, store, messenger)

	require.NoError(t, eng.HandleEvent(context.Background(), textEvent("sales")))
	messenger.sent = nil

	ev := textEvent("")
	ev.Message = domain.InboundMessage{
		ID:        "wamid.2",
		Kind:      domain.InboundInteractive,
		Selection: &domain.Selection{ID: "pro", Title: "Pro"},
	}
	require.NoError(t, eng.HandleEvent(context.Background(), ev))

	assert.Equal(t, []string{"you chose Pro"}, messenger.texts())
}

func TestHandleEvent_InteractiveReplyWithoutSelectionResendsQuestion(t *testing.T) {
	store := newFakeStore()
	messenger := &fakeMessenger{}
	q := domain.Step{
		ID:              "q",
		Type:            domain.StepAskQuestion,
		StorageVariable: "plan",
		NextID:          "bye",
		Message: &domain.MessageConfig{
			Type:            domain.MessageInteractive,
			InteractionType: domain.InteractionList,
			Text:            "Choose a plan",
			Options:         []domain.ListOption{{ID: "basic", Title: "Basic"}},
		},
	}
	seedBotAndFlow(t, store, q, sendStep("bye", "done", ""))
	eng := New(store, store, store, messenger)

	require.NoError(t, eng.HandleEvent(context.Background(), textEvent("sales")))
	messenger.sent = nil

	// An interactive reply of an unrecognized subtype normalizes to a
	// nil selection; it cannot answer the question.
	ev := textEvent("")
	ev.Message = domain.InboundMessage{ID: "wamid.2", Kind: domain.InboundInteractive}
	require.NoError(t, eng.HandleEvent(context.Background(), ev))

	assert.Equal(t, []string{"Choose a plan"}, messenger.texts())
	session, err := store.ActiveSession(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, "q", session.LastStepID)
	assert.Equal(t, 1, session.LastStepAttempts)
	assert.NotContains(t, session.Variables, "plan")
}

func TestHandleEvent_MaxAttemptsPolicies(t *testing.T) {
	tests := []struct {
		name       string
		policy     domain.InvalidResponsePolicy
		wantText   []string
		wantActive bool
		wantStep   string
	}{
		{
			name:       "end_flow deactivates the session",
			policy:     domain.PolicyEndFlow,
			wantText:   []string{},
			wantActive: false,
		},
		{
			name:       "skip_step advances without a value",
			policy:     domain.PolicySkipStep,
			wantText:   []string{"done"},
			wantActive: false,
			wantStep:   "bye",
		},
		{
			name:       "fallback resumes at the failure step",
			policy:     domain.PolicyFallback,
			wantText:   []string{"an agent will reach out"},
			wantActive: false,
			wantStep:   "handoff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			messenger := &fakeMessenger{}
			q := askStep("q", "how many seats?", "seats", "bye")
			q.Validations = &domain.ValidationConfig{Regex: "^[0-9]+$"}
			q.MaxAttempts = 1
			q.OnInvalidResponse = tt.policy
			q.NextIDOnFailure = "handoff"
			seedBotAndFlow(t, store,
				q,
				sendStep("bye", "done", ""),
				sendStep("handoff", "an agent will reach out", ""),
			)
			eng := New(store, store, store, messenger)

			require.NoError(t, eng.HandleEvent(context.Background(), textEvent("sales")))
			messenger.sent = nil

			require.NoError(t, eng.HandleEvent(context.Background(), textEvent("not a number")))

			// The rejection always sends the error text first.
			texts := messenger.texts()
			require.NotEmpty(t, texts)
			assert.Equal(t, "how many seats?", texts[0])
			assert.Equal(t, tt.wantText, texts[1:], "messages after the rejection")

			for _, session := range store.sessions {
				assert.Equal(t, tt.wantActive, session.Active)
				if tt.wantStep != "" {
					assert.Equal(t, tt.wantStep, session.LastStepID)
				}
			}
		})
	}
}

func TestHandleEvent_NoIntentSendsFallback(t *testing.T) {
	store := newFakeStore()
	messenger := &fakeMessenger{}
	seedBotAndFlow(t, store, sendStep("a", "hello", ""))
	eng := New(store, store, store, messenger)

	require.NoError(t, eng.HandleEvent(context.Background(), textEvent("billing")))

	require.Len(t, messenger.sent, 1)
	text := messenger.sent[0].msg.Text
	assert.True(t, strings.HasPrefix(text, "Hey Ada,"), "fallback greets by name: %q", text)
	assert.Contains(t, text, "1. sales")
	assert.Empty(t, store.sessions, "fallback must not create a session")
}

func TestHandleEvent_NonTextWithoutSessionSendsFallback(t *testing.T) {
	store := newFakeStore()
	messenger := &fakeMessenger{}
	seedBotAndFlow(t, store, sendStep("a", "hello", ""))
	eng := New(store, store, store, messenger)

	ev := textEvent("")
	ev.Message = domain.InboundMessage{ID: "wamid.9", Kind: domain.InboundAudio}
	require.NoError(t, eng.HandleEvent(context.Background(), ev))

	require.Len(t, messenger.sent, 1)
	assert.Contains(t, messenger.sent[0].msg.Text, "Try sending any of the below keys")
	assert.Empty(t, store.sessions)
}

func TestHandleEvent_ClaimConflictAbandons(t *testing.T) {
	store := newFakeStore()
	messenger := &fakeMessenger{}
	seedBotAndFlow(t, store, sendStep("a", "hello", ""))
	// Simulate a concurrent delivery that claimed the user after our
	// session lookup: the claim exists but names no readable session.
	store.active[testUser] = "session-elsewhere"
	eng := New(store, store, store, messenger)

	require.NoError(t, eng.HandleEvent(context.Background(), textEvent("sales")))

	assert.Empty(t, messenger.sent, "losing the claim must not execute any step")
	assert.NotContains(t, store.sessions, "session-elsewhere")
}

func TestHandleEvent_NoPublishedBotIgnoresEvent(t *testing.T) {
	store := newFakeStore()
	messenger := &fakeMessenger{}
	eng := New(store, store, store, messenger)

	require.NoError(t, eng.HandleEvent(context.Background(), textEvent("sales")))
	assert.Empty(t, messenger.sent)
}

func TestHandleEvent_APICallStoresResponse(t *testing.T) {
	var gotBody, gotContentType, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"ticket":"T-42"}`)
	}))
	defer srv.Close()

	store := newFakeStore()
	messenger := &fakeMessenger{}
	call := domain.Step{
		ID:              "notify",
		Type:            domain.StepAPICall,
		Method:          http.MethodPost,
		URL:             srv.URL,
		Headers:         map[string]string{"Authorization": "Bearer secret"},
		Body:            &domain.CallBody{ContentType: "JSON", Payload: `{"name":"{{name}}"}`},
		StorageVariable: "crm",
		NextID:          "bye",
	}
	seedBotAndFlow(t, store,
		askStep("q", "your name?", "name", "notify"),
		call,
		sendStep("bye", "created {{crm}}", ""),
	)
	eng := New(store, store, store, messenger)

	require.NoError(t, eng.HandleEvent(context.Background(), textEvent("sales")))
	messenger.sent = nil
	require.NoError(t, eng.HandleEvent(context.Background(), textEvent("Ada")))

	assert.Equal(t, `{"name":"Ada"}`, gotBody)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, []string{`created {"ticket":"T-42"}`}, messenger.texts())
}

func TestHandleEvent_APICallFailureContinuesWalk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newFakeStore()
	messenger := &fakeMessenger{}
	call := domain.Step{
		ID:              "notify",
		Type:            domain.StepAPICall,
		Method:          http.MethodGet,
		URL:             srv.URL,
		StorageVariable: "crm",
		NextID:          "bye",
	}
	seedBotAndFlow(t, store, call, sendStep("bye", "crm said {{crm}}", ""))
	eng := New(store, store, store, messenger)

	require.NoError(t, eng.HandleEvent(context.Background(), textEvent("sales")))

	// The failed call captures nothing, so the placeholder survives.
	assert.Equal(t, []string{"crm said {{crm}}"}, messenger.texts())
	for _, session := range store.sessions {
		assert.False(t, session.Active)
	}
}
