package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"antenatal-agent/internal/dangersign"
	"antenatal-agent/internal/domain"
)

// Generated replies at or below this many characters are not worth a second
// message after the emergency template.
const minSupplementaryReplyLen = 20

type SubscriberStore interface {
	GetSubscriberByPlatformID(ctx context.Context, platformID string) (*domain.Subscriber, error)
	CreateSubscriber(ctx context.Context, sub domain.Subscriber) error
	SaveSubscriber(ctx context.Context, sub domain.Subscriber) error
}

type TurnLog interface {
	AppendTurn(ctx context.Context, turn domain.Turn) error
}

type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	MarkRead(ctx context.Context, messageID string) error
}

type ReplyGenerator interface {
	Generate(ctx context.Context, in GenerateInput) GenerateOutput
}

// SubscriberGate serializes work for one platform id across processes.
type SubscriberGate interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type ConversationService struct {
	subscribers SubscriberStore
	turns       TurnLog
	messenger   Messenger
	generator   ReplyGenerator
	emergency   *EmergencyResponder
	gate        SubscriberGate
	logger      *slog.Logger
	now         func() time.Time
}

type ConversationOption func(*ConversationService)

func WithGate(g SubscriberGate) ConversationOption {
	return func(s *ConversationService) {
		s.gate = g
	}
}

func WithConversationLogger(l *slog.Logger) ConversationOption {
	return func(s *ConversationService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewConversationService(subs SubscriberStore, turns TurnLog, m Messenger, gen ReplyGenerator, emergency *EmergencyResponder, opts ...ConversationOption) (*ConversationService, error) {
	if subs == nil {
		return nil, errors.New("usecase: subscriber store must not be nil")
	}
	if turns == nil {
		return nil, errors.New("usecase: turn log must not be nil")
	}
	if m == nil {
		return nil, errors.New("usecase: messenger must not be nil")
	}
	if gen == nil {
		return nil, errors.New("usecase: reply generator must not be nil")
	}
	if emergency == nil {
		return nil, errors.New("usecase: emergency responder must not be nil")
	}
	s := &ConversationService{
		subscribers: subs,
		turns:       turns,
		messenger:   m,
		generator:   gen,
		emergency:   emergency,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// HandleInbound processes one normalized webhook message end to end. Non-text
// messages and messages from inactive subscribers are dropped. Dispatch
// failures are logged and swallowed; storage failures are returned.
func (s *ConversationService) HandleInbound(ctx context.Context, msg domain.InboundMessage) error {
	if !msg.HasText {
		return nil
	}
	platformID := strings.TrimSpace(msg.PlatformID)
	if platformID == "" {
		platformID = strings.TrimSpace(msg.FromNumber)
	}
	if platformID == "" {
		return newError(ErrorInvalidInput, "missing_platform_id", nil)
	}
	start := s.now()
	log := s.logger.With("platform_id", platformID)

	if s.gate != nil {
		release, err := s.gate.Acquire(ctx, platformID)
		if err != nil {
			log.Warn("subscriber gate unavailable, continuing ungated", "err", err)
		} else {
			defer release()
		}
	}

	if msg.MessageID != "" {
		if err := s.messenger.MarkRead(ctx, msg.MessageID); err != nil {
			log.Warn("mark read failed", "err", err)
		}
	}

	sub, err := s.subscribers.GetSubscriberByPlatformID(ctx, platformID)
	if err != nil {
		return newError(ErrorInternal, "dynamodb_lookup_error", err)
	}
	if sub == nil {
		created, err := s.enroll(ctx, log, platformID, msg.FromNumber)
		if err != nil || created {
			return err
		}
		// Lost the creation race; continue with the stored record.
		sub, err = s.subscribers.GetSubscriberByPlatformID(ctx, platformID)
		if err != nil {
			return newError(ErrorInternal, "dynamodb_lookup_error", err)
		}
		if sub == nil {
			return newError(ErrorInternal, "subscriber_vanished", nil)
		}
	}
	if !sub.Active {
		return nil
	}
	log = log.With("subscriber_id", sub.ID)

	now := s.now()
	if err := s.turns.AppendTurn(ctx, domain.Turn{
		SubscriberID:        sub.ID,
		Direction:           domain.DirectionIncoming,
		Text:                msg.Text,
		GestationalAgeWeeks: sub.CurrentGestationalAge(now),
		CreatedAt:           now,
	}); err != nil {
		return newError(ErrorInternal, "dynamodb_write_error", err)
	}

	if sub.RegistrationState() != domain.StateRegistered {
		return s.register(ctx, log, *sub, msg.Text, now)
	}

	language := sub.PreferredLanguage()
	danger := dangersign.Classify(msg.Text)
	in := GenerateInput{
		SubscriberID:        sub.ID,
		Text:                msg.Text,
		GestationalAgeWeeks: sub.CurrentGestationalAge(now),
		Language:            language,
		DangerSign:          danger.Detected,
	}

	var response string
	var gen GenerateOutput
	if danger.Detected {
		log.Warn("danger sign detected", "categories", danger.Categories)
		urgent := s.emergency.Message(ctx, language)
		s.dispatch(ctx, log, sub.PhoneNumber, urgent)

		gen = s.generator.Generate(ctx, in)
		response = urgent
		if utf8.RuneCountInString(gen.Reply) > minSupplementaryReplyLen {
			s.dispatch(ctx, log, sub.PhoneNumber, gen.Reply)
			response = urgent + "\n\n" + gen.Reply
		}
	} else {
		gen = s.generator.Generate(ctx, in)
		s.dispatch(ctx, log, sub.PhoneNumber, gen.Reply)
		response = gen.Reply
	}

	done := s.now()
	latency := done.Sub(start).Milliseconds()
	out := domain.Turn{
		SubscriberID:        sub.ID,
		Direction:           domain.DirectionOutgoing,
		Text:                response,
		GestationalAgeWeeks: sub.CurrentGestationalAge(done),
		DangerSignDetected:  danger.Detected,
		ResponseTimeMillis:  &latency,
		CreatedAt:           done,
	}
	if len(danger.Keywords) > 0 {
		kw := strings.Join(danger.Keywords, ", ")
		out.DangerSignKeywords = &kw
	}
	if gen.GeneratorID != "" {
		id := gen.GeneratorID
		out.GeneratorID = &id
	}
	if err := s.turns.AppendTurn(ctx, out); err != nil {
		return newError(ErrorInternal, "dynamodb_write_error", err)
	}
	log.Info("inbound message handled", "latency_ms", latency, "danger_sign", danger.Detected)
	return nil
}

// enroll creates a subscriber for an unseen platform id and sends the welcome
// prompt. It reports false when another delivery created the record first.
func (s *ConversationService) enroll(ctx context.Context, log *slog.Logger, platformID, phone string) (bool, error) {
	if strings.TrimSpace(phone) == "" {
		phone = platformID
	}
	sub := domain.Subscriber{
		ID:          newUUID(),
		PhoneNumber: phone,
		PlatformID:  platformID,
		Cohort:      domain.CohortIntervention,
		Active:      true,
		Language:    domain.LanguageEnglish,
		EnrolledAt:  s.now(),
	}
	if err := s.subscribers.CreateSubscriber(ctx, sub); err != nil {
		if errors.Is(err, domain.ErrSubscriberExists) {
			return false, nil
		}
		return false, newError(ErrorInternal, "dynamodb_write_error", err)
	}
	log.Info("subscriber enrolled", "subscriber_id", sub.ID)
	s.dispatch(ctx, log, sub.PhoneNumber, WelcomeMessage(sub.PreferredLanguage()))
	return true, nil
}

func (s *ConversationService) register(ctx context.Context, log *slog.Logger, sub domain.Subscriber, text string, now time.Time) error {
	updated, reply := Advance(sub, text, now)
	if updated.RegistrationState() != sub.RegistrationState() || updated.Active != sub.Active {
		if err := s.subscribers.SaveSubscriber(ctx, updated); err != nil {
			return newError(ErrorInternal, "dynamodb_write_error", err)
		}
		log.Info("registration advanced", "state", string(updated.RegistrationState()), "active", updated.Active)
	}
	if reply != "" {
		s.dispatch(ctx, log, updated.PhoneNumber, reply)
	}
	return nil
}

// dispatch sends best-effort; the messenger already retried.
func (s *ConversationService) dispatch(ctx context.Context, log *slog.Logger, to, body string) {
	if err := s.messenger.SendText(ctx, to, body); err != nil {
		if status, ok := upstreamStatusCode(err); ok {
			log.Error("message dispatch failed", "status", status, "err", err)
			return
		}
		log.Error("message dispatch failed", "err", err)
	}
}

var newUUID = func() string {
	return uuid.NewString()
}
