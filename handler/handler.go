package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"antenatal-agent/internal/domain"
	"antenatal-agent/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	signatureHeader   = "X-Hub-Signature-256"
	signaturePrefix   = "sha256="

	statusOK      = "ok"
	statusIgnored = "ignored"
)

type InboundHandler interface {
	HandleInbound(ctx context.Context, msg domain.InboundMessage) error
}

// Handler is the API Gateway entrypoint for the messaging webhook. POST
// deliveries are always acknowledged with 200 so the platform never redelivers
// an event whose side effects were already applied.
type Handler struct {
	uc          InboundHandler
	verifyToken string
	appSecret   string
	logger      *slog.Logger
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler builds the webhook handler. An empty appSecret disables
// signature checks.
func NewHandler(uc InboundHandler, verifyToken, appSecret string, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: inbound handler must not be nil")
	}
	if strings.TrimSpace(verifyToken) == "" {
		return nil, errors.New("handler: verify token must not be empty")
	}
	h := &Handler{
		uc:          uc,
		verifyToken: verifyToken,
		appSecret:   appSecret,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.logger.With("correlation_id", correlationID)

	switch req.HTTPMethod {
	case http.MethodGet:
		return h.verify(log, req, correlationID), nil
	case http.MethodPost:
		return h.receive(ctx, log, req, correlationID), nil
	default:
		return jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: "METHOD_NOT_ALLOWED"}, correlationID), nil
	}
}

func (h *Handler) verify(log *slog.Logger, req events.APIGatewayProxyRequest, correlationID string) events.APIGatewayProxyResponse {
	q := req.QueryStringParameters
	token := q["hub.verify_token"]
	if q["hub.mode"] == "subscribe" && subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) == 1 {
		log.Info("webhook verified")
		return textResponse(http.StatusOK, q["hub.challenge"], correlationID)
	}
	log.Warn("webhook verification failed")
	return textResponse(http.StatusForbidden, "", correlationID)
}

func (h *Handler) receive(ctx context.Context, log *slog.Logger, req events.APIGatewayProxyRequest, correlationID string) events.APIGatewayProxyResponse {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			log.Warn("webhook body is not valid base64", "err", err)
			return jsonResponse(http.StatusOK, statusResponse{Status: statusIgnored}, correlationID)
		}
		body = decoded
	}

	if h.appSecret != "" && !validSignature(body, headerValue(req.Headers, signatureHeader), h.appSecret) {
		log.Warn("invalid webhook signature")
		return jsonResponse(http.StatusOK, statusResponse{Status: statusIgnored}, correlationID)
	}

	msg, ok, err := parseInbound(body)
	if err != nil {
		log.Warn("malformed webhook payload", "err", err)
		return jsonResponse(http.StatusOK, statusResponse{Status: statusOK}, correlationID)
	}
	if !ok {
		return jsonResponse(http.StatusOK, statusResponse{Status: statusOK}, correlationID)
	}

	if err := h.uc.HandleInbound(ctx, msg); err != nil {
		var ucErr *usecase.Error
		if errors.As(err, &ucErr) {
			log.Error("inbound message failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
		} else {
			log.Error("inbound message failed", "err", err)
		}
	}
	return jsonResponse(http.StatusOK, statusResponse{Status: statusOK}, correlationID)
}

// validSignature checks "sha256=<hex HMAC-SHA256(body, secret)>" in constant
// time.
func validSignature(body []byte, header, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := signaturePrefix + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func jsonResponse(status int, payload any, correlationID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
		status = http.StatusInternalServerError
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}

func textResponse(status int, body, correlationID string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "text/plain",
			correlationHeader: correlationID,
		},
		Body: body,
	}
}
