package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"antenatal-agent/internal/domain"
	"antenatal-agent/internal/integrations/whatsapp"
)

type fakeSubscribers struct {
	byPlatform map[string]domain.Subscriber
	getErr     error
	createErr  error
	saveErr    error
	created    []domain.Subscriber
	saved      []domain.Subscriber
}

func (f *fakeSubscribers) GetSubscriberByPlatformID(_ context.Context, platformID string) (*domain.Subscriber, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	sub, ok := f.byPlatform[platformID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (f *fakeSubscribers) CreateSubscriber(_ context.Context, sub domain.Subscriber) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, sub)
	if f.byPlatform == nil {
		f.byPlatform = map[string]domain.Subscriber{}
	}
	f.byPlatform[sub.PlatformID] = sub
	return nil
}

func (f *fakeSubscribers) SaveSubscriber(_ context.Context, sub domain.Subscriber) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, sub)
	f.byPlatform[sub.PlatformID] = sub
	return nil
}

type fakeTurns struct {
	turns []domain.Turn
	err   error
}

func (f *fakeTurns) AppendTurn(_ context.Context, turn domain.Turn) error {
	if f.err != nil {
		return f.err
	}
	f.turns = append(f.turns, turn)
	return nil
}

type sentMessage struct {
	to, body string
}

type fakeMessenger struct {
	sent    []sentMessage
	read    []string
	sendErr error
	readErr error
}

func (f *fakeMessenger) SendText(_ context.Context, to, body string) error {
	f.sent = append(f.sent, sentMessage{to, body})
	return f.sendErr
}

func (f *fakeMessenger) MarkRead(_ context.Context, messageID string) error {
	f.read = append(f.read, messageID)
	return f.readErr
}

type stubGenerator struct {
	out   GenerateOutput
	calls []GenerateInput
}

func (g *stubGenerator) Generate(_ context.Context, in GenerateInput) GenerateOutput {
	g.calls = append(g.calls, in)
	return g.out
}

type fakeGate struct {
	err      error
	acquired []string
	released int
}

func (g *fakeGate) Acquire(_ context.Context, key string) (func(), error) {
	if g.err != nil {
		return nil, g.err
	}
	g.acquired = append(g.acquired, key)
	return func() { g.released++ }, nil
}

type harness struct {
	subs      *fakeSubscribers
	turns     *fakeTurns
	messenger *fakeMessenger
	gen       *stubGenerator
	gate      *fakeGate
	svc       *ConversationService
}

func newHarness(t *testing.T, existing ...domain.Subscriber) *harness {
	t.Helper()
	h := &harness{
		subs:      &fakeSubscribers{byPlatform: map[string]domain.Subscriber{}},
		turns:     &fakeTurns{},
		messenger: &fakeMessenger{},
		gen: &stubGenerator{out: GenerateOutput{
			Reply:       "Please rest and drink water, and visit your clinic soon, Mama.",
			GeneratorID: "gpt-4o-mini",
		}},
		gate: &fakeGate{},
	}
	for _, s := range existing {
		h.subs.byPlatform[s.PlatformID] = s
	}
	responder, err := NewEmergencyResponder(&fakeFacilities{list: migoriFacilities()}, "Migori", nil)
	require.NoError(t, err)
	h.svc, err = NewConversationService(h.subs, h.turns, h.messenger, h.gen, responder, WithGate(h.gate))
	require.NoError(t, err)

	clock := testNow
	h.svc.now = func() time.Time {
		clock = clock.Add(250 * time.Millisecond)
		return clock
	}
	return h
}

func registeredSubscriber() domain.Subscriber {
	sub := namedSubscriber()
	sub.GestationalAgeWeeks = intPtr(30)
	sub.RegistrationComplete = true
	sub.EnrolledAt = testNow.Add(-15 * 24 * time.Hour)
	return sub
}

func textMessage(text string) domain.InboundMessage {
	return domain.InboundMessage{
		FromNumber: "254700000001",
		PlatformID: "254700000001",
		MessageID:  "wamid.1",
		Kind:       "text",
		Text:       text,
		HasText:    true,
	}
}

func TestNewConversationService_Validation(t *testing.T) {
	r, err := NewEmergencyResponder(&fakeFacilities{}, "Migori", nil)
	require.NoError(t, err)
	_, err = NewConversationService(nil, &fakeTurns{}, &fakeMessenger{}, &stubGenerator{}, r)
	require.Error(t, err)
	_, err = NewConversationService(&fakeSubscribers{}, nil, &fakeMessenger{}, &stubGenerator{}, r)
	require.Error(t, err)
	_, err = NewConversationService(&fakeSubscribers{}, &fakeTurns{}, nil, &stubGenerator{}, r)
	require.Error(t, err)
	_, err = NewConversationService(&fakeSubscribers{}, &fakeTurns{}, &fakeMessenger{}, nil, r)
	require.Error(t, err)
	_, err = NewConversationService(&fakeSubscribers{}, &fakeTurns{}, &fakeMessenger{}, &stubGenerator{}, nil)
	require.Error(t, err)
}

func TestHandleInbound_NonTextIsNoop(t *testing.T) {
	h := newHarness(t, registeredSubscriber())
	msg := textMessage("")
	msg.Kind = "image"
	msg.HasText = false

	require.NoError(t, h.svc.HandleInbound(context.Background(), msg))
	require.Empty(t, h.turns.turns)
	require.Empty(t, h.messenger.sent)
	require.Empty(t, h.messenger.read)
	require.Empty(t, h.gate.acquired)
}

func TestHandleInbound_MissingPlatformID(t *testing.T) {
	h := newHarness(t)
	msg := textMessage("hi")
	msg.PlatformID, msg.FromNumber = "", ""
	err := h.svc.HandleInbound(context.Background(), msg)

	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorInvalidInput, ucErr.Code)
}

func TestHandleInbound_NewSubscriberGetsWelcome(t *testing.T) {
	h := newHarness(t)
	orig := newUUID
	newUUID = func() string { return "uuid-1" }
	t.Cleanup(func() { newUUID = orig })

	require.NoError(t, h.svc.HandleInbound(context.Background(), textMessage("Hello")))

	require.Len(t, h.subs.created, 1)
	created := h.subs.created[0]
	require.Equal(t, "uuid-1", created.ID)
	require.Equal(t, domain.CohortIntervention, created.Cohort)
	require.Equal(t, domain.LanguageEnglish, created.Language)
	require.True(t, created.Active)
	require.Equal(t, domain.StateAwaitingConsent, created.RegistrationState())

	require.Len(t, h.messenger.sent, 1)
	require.Equal(t, WelcomeMessage(domain.LanguageEnglish), h.messenger.sent[0].body)
	require.Empty(t, h.turns.turns)
	require.Equal(t, []string{"wamid.1"}, h.messenger.read)
	require.Equal(t, []string{"254700000001"}, h.gate.acquired)
	require.Equal(t, 1, h.gate.released)
}

func TestHandleInbound_PlatformIDFallsBackToPhone(t *testing.T) {
	h := newHarness(t)
	msg := textMessage("Hello")
	msg.PlatformID = ""
	require.NoError(t, h.svc.HandleInbound(context.Background(), msg))
	require.Equal(t, "254700000001", h.subs.created[0].PlatformID)
}

func TestHandleInbound_CreationRaceUsesStoredRecord(t *testing.T) {
	h := newHarness(t)
	h.subs.createErr = domain.ErrSubscriberExists
	stored := freshSubscriber()
	// The fake only returns the winner after the losing create.
	lookups := 0
	h.svc.subscribers = &raceSubscribers{fakeSubscribers: h.subs, winner: stored, lookups: &lookups}

	require.NoError(t, h.svc.HandleInbound(context.Background(), textMessage("yes")))
	require.Len(t, h.turns.turns, 1)
	require.Len(t, h.subs.saved, 1)
	require.True(t, h.subs.saved[0].ConsentGiven)
}

type raceSubscribers struct {
	*fakeSubscribers
	winner  domain.Subscriber
	lookups *int
}

func (r *raceSubscribers) GetSubscriberByPlatformID(_ context.Context, _ string) (*domain.Subscriber, error) {
	*r.lookups++
	if *r.lookups == 1 {
		return nil, nil
	}
	w := r.winner
	return &w, nil
}

func TestHandleInbound_InactiveIsDropped(t *testing.T) {
	sub := registeredSubscriber()
	sub.Active = false
	h := newHarness(t, sub)

	require.NoError(t, h.svc.HandleInbound(context.Background(), textMessage("hello")))
	require.Empty(t, h.turns.turns)
	require.Empty(t, h.messenger.sent)
}

func TestHandleInbound_RegistrationConsent(t *testing.T) {
	h := newHarness(t, freshSubscriber())

	require.NoError(t, h.svc.HandleInbound(context.Background(), textMessage("YES")))

	require.Len(t, h.turns.turns, 1)
	require.Equal(t, domain.DirectionIncoming, h.turns.turns[0].Direction)
	require.Nil(t, h.turns.turns[0].GestationalAgeWeeks)
	require.Len(t, h.subs.saved, 1)
	require.Equal(t, domain.StateAwaitingName, h.subs.saved[0].RegistrationState())
	require.Len(t, h.messenger.sent, 1)
	require.Contains(t, h.messenger.sent[0].body, "What is your name?")
	require.Empty(t, h.gen.calls)
}

func TestHandleInbound_RegistrationDecline(t *testing.T) {
	h := newHarness(t, freshSubscriber())

	require.NoError(t, h.svc.HandleInbound(context.Background(), textMessage("no")))
	require.False(t, h.subs.saved[0].Active)
	require.Len(t, h.messenger.sent, 1)

	require.NoError(t, h.svc.HandleInbound(context.Background(), textMessage("hello?")))
	require.Len(t, h.messenger.sent, 1, "no further prompts after declining")
	require.Len(t, h.turns.turns, 1)
}

func TestHandleInbound_RegistrationRePromptDoesNotSave(t *testing.T) {
	h := newHarness(t, freshSubscriber())
	require.NoError(t, h.svc.HandleInbound(context.Background(), textMessage("maybe")))
	require.Empty(t, h.subs.saved)
	require.Contains(t, h.messenger.sent[0].body, "YES or NO")
}

func TestHandleInbound_RegistrationCompletes(t *testing.T) {
	h := newHarness(t, namedSubscriber())
	require.NoError(t, h.svc.HandleInbound(context.Background(), textMessage("20")))
	require.Len(t, h.subs.saved, 1)
	require.True(t, h.subs.saved[0].RegistrationComplete)
	require.Contains(t, h.messenger.sent[0].body, "You are registered!")
	require.Empty(t, h.gen.calls)
}

func TestHandleInbound_RegularQuestion(t *testing.T) {
	h := newHarness(t, registeredSubscriber())

	require.NoError(t, h.svc.HandleInbound(context.Background(), textMessage("What foods are good for me?")))

	require.Len(t, h.gen.calls, 1)
	in := h.gen.calls[0]
	require.False(t, in.DangerSign)
	require.Equal(t, 32, *in.GestationalAgeWeeks)
	require.Equal(t, domain.LanguageEnglish, in.Language)

	require.Len(t, h.messenger.sent, 1)
	require.Equal(t, h.gen.out.Reply, h.messenger.sent[0].body)

	require.Len(t, h.turns.turns, 2)
	incoming, outgoing := h.turns.turns[0], h.turns.turns[1]
	require.Equal(t, domain.DirectionIncoming, incoming.Direction)
	require.Equal(t, 32, *incoming.GestationalAgeWeeks)
	require.Equal(t, domain.DirectionOutgoing, outgoing.Direction)
	require.Equal(t, h.gen.out.Reply, outgoing.Text)
	require.False(t, outgoing.DangerSignDetected)
	require.Nil(t, outgoing.DangerSignKeywords)
	require.Equal(t, "gpt-4o-mini", *outgoing.GeneratorID)
	require.NotNil(t, outgoing.ResponseTimeMillis)
	require.Positive(t, *outgoing.ResponseTimeMillis)
}

func TestHandleInbound_WaterBrokeEndToEnd(t *testing.T) {
	h := newHarness(t, registeredSubscriber())

	require.NoError(t, h.svc.HandleInbound(context.Background(), textMessage("my water broke")))

	require.Len(t, h.gen.calls, 1)
	require.True(t, h.gen.calls[0].DangerSign)

	require.Len(t, h.messenger.sent, 2)
	urgent := h.messenger.sent[0].body
	require.True(t, strings.HasPrefix(urgent, "URGENT:"))
	require.Contains(t, urgent, "Nearest facilities:\n- Migori County Referral Hospital: 0800 723 253")
	require.Equal(t, h.gen.out.Reply, h.messenger.sent[1].body)

	outgoing := h.turns.turns[1]
	require.True(t, outgoing.DangerSignDetected)
	require.NotNil(t, outgoing.DangerSignKeywords)
	require.Contains(t, *outgoing.DangerSignKeywords, "water broke")
	require.Equal(t, urgent+"\n\n"+h.gen.out.Reply, outgoing.Text)
}

func TestHandleInbound_DangerShortReplyNotSent(t *testing.T) {
	h := newHarness(t, registeredSubscriber())
	h.gen.out = GenerateOutput{Reply: "Go now, Mama.", GeneratorID: "gpt-4o-mini"}

	require.NoError(t, h.svc.HandleInbound(context.Background(), textMessage("heavy bleeding and severe headache")))

	require.Len(t, h.messenger.sent, 1)
	outgoing := h.turns.turns[1]
	require.Equal(t, h.messenger.sent[0].body, outgoing.Text)
	require.Equal(t, "heavy bleeding, severe headache", *outgoing.DangerSignKeywords)
}

func TestHandleInbound_DispatchFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, registeredSubscriber())
	h.messenger.sendErr = &whatsapp.HTTPStatusError{StatusCode: 500}
	h.messenger.readErr = errors.New("read receipt failed")

	require.NoError(t, h.svc.HandleInbound(context.Background(), textMessage("Is walking safe?")))
	require.Len(t, h.turns.turns, 2)
}

func TestHandleInbound_StorageErrors(t *testing.T) {
	h := newHarness(t, registeredSubscriber())
	h.subs.getErr = errors.New("throttled")
	err := h.svc.HandleInbound(context.Background(), textMessage("hi"))
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorInternal, ucErr.Code)
	require.Equal(t, "dynamodb_lookup_error", ucErr.Reason)
	require.Equal(t, 1, h.gate.released)

	h = newHarness(t, registeredSubscriber())
	h.turns.err = errors.New("write failed")
	err = h.svc.HandleInbound(context.Background(), textMessage("hi"))
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, "dynamodb_write_error", ucErr.Reason)
	require.Empty(t, h.gen.calls)

	h = newHarness(t)
	h.subs.createErr = errors.New("table missing")
	err = h.svc.HandleInbound(context.Background(), textMessage("hi"))
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, "dynamodb_write_error", ucErr.Reason)
	require.Empty(t, h.messenger.sent)

	h = newHarness(t, freshSubscriber())
	h.subs.saveErr = errors.New("conditional check failed")
	err = h.svc.HandleInbound(context.Background(), textMessage("yes"))
	require.ErrorAs(t, err, &ucErr)
	require.Empty(t, h.messenger.sent)
}

func TestHandleInbound_GateUnavailableProceeds(t *testing.T) {
	h := newHarness(t, registeredSubscriber())
	h.gate.err = errors.New("redis: connection refused")

	require.NoError(t, h.svc.HandleInbound(context.Background(), textMessage("hello")))
	require.Len(t, h.turns.turns, 2)
	require.Equal(t, 0, h.gate.released)
}

func TestHandleInbound_SwahiliSubscriber(t *testing.T) {
	sub := registeredSubscriber()
	sub.Language = domain.LanguageSwahili
	h := newHarness(t, sub)

	require.NoError(t, h.svc.HandleInbound(context.Background(), textMessage("nina damu nyingi")))
	require.True(t, strings.HasPrefix(h.messenger.sent[0].body, "DHARURA:"))
	require.Equal(t, domain.LanguageSwahili, h.gen.calls[0].Language)
}
