package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-redis/redis/v8"

	"antenatal-agent/handler"
	"antenatal-agent/internal/contextstore"
	"antenatal-agent/internal/integrations/openai"
	"antenatal-agent/internal/integrations/paramstore"
	"antenatal-agent/internal/integrations/whatsapp"
	"antenatal-agent/internal/repository"
	"antenatal-agent/internal/usecase"
)

const (
	whatsappTokenParam  = "whatsapp/access-token"
	verifyTokenParam    = "whatsapp/verify-token"
	appSecretParam      = "whatsapp/app-secret"
	openaiTokenParam    = "open-ai-token"
	openaiModelParam    = "config/openai_model"
	defaultFacilityArea = "Migori"
)

func main() {
	ctx := context.Background()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	phoneNumberID := mustEnv("WHATSAPP_PHONE_NUMBER_ID")
	whatsappURL := os.Getenv("WHATSAPP_API_URL")
	redisAddr := envString("REDIS_ADDR", "localhost:6379")
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := envInt("REDIS_DB", 0)
	contextMaxTurns := envInt("CONTEXT_MAX_TURNS", 6)
	contextTTL := envDuration("CONTEXT_TTL", 24*time.Hour)
	contextOnFallback := envBool("CONTEXT_ON_FALLBACK", true)
	defaultCounty := envString("DEFAULT_COUNTY", defaultFacilityArea)
	sendAttempts := envInt("SEND_ATTEMPTS", 3)
	lockTTL := envDuration("SUBSCRIBER_LOCK_TTL", 30*time.Second)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg), paramPrefix)
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	stateClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		slog.Error("failed to create state client", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})
	window, err := contextstore.New(rdb,
		contextstore.WithMaxTurns(contextMaxTurns),
		contextstore.WithTTL(contextTTL),
		contextstore.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to create context store", "err", err)
		os.Exit(1)
	}
	gate, err := contextstore.NewGate(rdb, lockTTL, logger)
	if err != nil {
		slog.Error("failed to create subscriber gate", "err", err)
		os.Exit(1)
	}

	openaiClient, err := openai.NewClient(ssmClient, openaiTokenParam)
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}
	whatsappClient, err := whatsapp.NewClient(ssmClient, whatsappTokenParam, phoneNumberID,
		whatsapp.WithBaseURL(whatsappURL),
		whatsapp.WithAttempts(sendAttempts),
		whatsapp.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to create WhatsApp client", "err", err)
		os.Exit(1)
	}

	// ---- Services ----
	generator, err := usecase.NewResponseGenerator(ssmClient, openaiClient, window, openaiModelParam,
		usecase.WithContextOnFallback(contextOnFallback),
		usecase.WithGeneratorLogger(logger),
	)
	if err != nil {
		slog.Error("failed to create response generator", "err", err)
		os.Exit(1)
	}
	emergency, err := usecase.NewEmergencyResponder(stateClient, defaultCounty, logger)
	if err != nil {
		slog.Error("failed to create emergency responder", "err", err)
		os.Exit(1)
	}
	conversations, err := usecase.NewConversationService(stateClient, stateClient, whatsappClient, generator, emergency,
		usecase.WithGate(gate),
		usecase.WithConversationLogger(logger),
	)
	if err != nil {
		slog.Error("failed to create conversation service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	verifyToken, err := paramstore.Token(ctx, ssmClient, verifyTokenParam, false)
	if err != nil {
		slog.Error("failed to load webhook verify token", "err", err)
		os.Exit(1)
	}
	appSecret, err := paramstore.Token(ctx, ssmClient, appSecretParam, true)
	if err != nil {
		slog.Error("failed to load webhook app secret", "err", err)
		os.Exit(1)
	}
	if appSecret == "" {
		slog.Warn("webhook signature verification disabled")
	}

	h, err := handler.NewHandler(conversations, verifyToken, appSecret, handler.WithLogger(logger))
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
