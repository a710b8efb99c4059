package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"antenatal-agent/internal/domain"
)

// FallbackGeneratorID marks turns answered with the canned fallback text.
const FallbackGeneratorID = "fallback"

var fallbackReplies = map[string]string{
	domain.LanguageEnglish: "I am sorry, I am unable to help right now. Please try again later. " +
		"If you have a medical emergency, please go to your nearest health facility immediately.",
	domain.LanguageSwahili: "Samahani, siwezi kukusaidia kwa wakati huu. Tafadhali jaribu tena baadaye. " +
		"Ikiwa una dharura ya kimatibabu, tafadhali nenda hospitali iliyo karibu nawe mara moja.",
}

// FallbackReply returns the localized canned reply used when generation fails.
func FallbackReply(language string) string {
	if r, ok := fallbackReplies[language]; ok {
		return r
	}
	return fallbackReplies[domain.LanguageEnglish]
}

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

// ContextWindow is the rolling per-subscriber history cache. Implementations
// never fail; an unavailable cache reads as empty.
type ContextWindow interface {
	Recent(ctx context.Context, subscriberID string) []string
	Append(ctx context.Context, subscriberID, userText, replyText string)
}

type GenerateInput struct {
	SubscriberID        string
	Text                string
	GestationalAgeWeeks *int
	Language            string
	DangerSign          bool
}

type GenerateOutput struct {
	Reply       string
	GeneratorID string
	Latency     time.Duration
	Fallback    bool
}

// ResponseGenerator produces replies from the chat model, enriched with the
// subscriber's recent context.
type ResponseGenerator struct {
	params           ParamGetter
	llm              LLMClient
	window           ContextWindow
	modelParam       string
	appendOnFallback bool
	logger           *slog.Logger
	now              func() time.Time

	cacheMu     sync.RWMutex
	cacheLoaded bool
	model       string
}

type GeneratorOption func(*ResponseGenerator)

// WithContextOnFallback controls whether fallback replies are written to the
// context window.
func WithContextOnFallback(enabled bool) GeneratorOption {
	return func(g *ResponseGenerator) {
		g.appendOnFallback = enabled
	}
}

func WithGeneratorLogger(l *slog.Logger) GeneratorOption {
	return func(g *ResponseGenerator) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewResponseGenerator(p ParamGetter, llm LLMClient, window ContextWindow, modelParam string, opts ...GeneratorOption) (*ResponseGenerator, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if window == nil {
		return nil, errors.New("usecase: context window must not be nil")
	}
	modelParam = strings.TrimSpace(modelParam)
	if modelParam == "" {
		return nil, errors.New("usecase: model parameter must not be empty")
	}
	g := &ResponseGenerator{
		params:           p,
		llm:              llm,
		window:           window,
		modelParam:       modelParam,
		appendOnFallback: true,
		logger:           slog.Default(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate never fails: any model or configuration error yields the localized
// fallback reply.
func (g *ResponseGenerator) Generate(ctx context.Context, in GenerateInput) GenerateOutput {
	start := g.now()
	language := in.Language
	if language != domain.LanguageSwahili {
		language = domain.LanguageEnglish
	}
	in.Language = language

	reply, model, err := g.complete(ctx, in)
	out := GenerateOutput{Reply: reply, GeneratorID: model}
	if err != nil {
		g.logger.Error("response generation failed", "subscriber_id", in.SubscriberID, "err", err)
		out = GenerateOutput{Reply: FallbackReply(language), GeneratorID: FallbackGeneratorID, Fallback: true}
	}

	if !out.Fallback || g.appendOnFallback {
		g.window.Append(ctx, in.SubscriberID, in.Text, out.Reply)
	}

	out.Latency = g.now().Sub(start)
	g.logger.Info("response generated",
		"subscriber_id", in.SubscriberID,
		"latency_ms", out.Latency.Milliseconds(),
		"generator", out.GeneratorID,
		"danger_sign", in.DangerSign,
	)
	return out
}

func (g *ResponseGenerator) complete(ctx context.Context, in GenerateInput) (string, string, error) {
	model, err := g.ensureModel(ctx)
	if err != nil {
		return "", "", err
	}
	history := g.window.Recent(ctx, in.SubscriberID)
	reply, err := g.llm.Chat(ctx, model, buildPromptMessages(in, history))
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok {
			return "", "", fmt.Errorf("usecase: chat completion status %d: %w", status, err)
		}
		return "", "", fmt.Errorf("usecase: chat completion: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", "", errors.New("usecase: chat completion returned empty text")
	}
	return reply, model, nil
}

// ensureModel loads the model name once; a failed load is retried on the next
// request.
func (g *ResponseGenerator) ensureModel(ctx context.Context) (string, error) {
	g.cacheMu.RLock()
	if g.cacheLoaded {
		model := g.model
		g.cacheMu.RUnlock()
		return model, nil
	}
	g.cacheMu.RUnlock()

	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	if g.cacheLoaded {
		return g.model, nil
	}
	model, err := g.params.GetParameter(ctx, g.modelParam)
	if err != nil {
		return "", fmt.Errorf("usecase: load model name: %w", err)
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("usecase: model name parameter is empty")
	}
	g.model = model
	g.cacheLoaded = true
	return model, nil
}
