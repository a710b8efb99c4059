// Package whatsapp sends outbound messages through the WhatsApp Cloud API.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/go-resty/resty/v2"

	"antenatal-agent/internal/integrations/paramstore"
)

const (
	defaultBaseURL    = "https://graph.facebook.com/v18.0"
	defaultAttempts   = 3
	defaultRetryDelay = 200 * time.Millisecond
)

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type sendTextRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type markReadRequest struct {
	MessagingProduct string `json:"messaging_product"`
	Status           string `json:"status"`
	MessageID        string `json:"message_id"`
}

// HTTPStatusError captures non-2xx responses from the Cloud API.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("whatsapp: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client posts messages for one business phone number. Every call is tried up
// to attempts times; the final error is returned to the caller.
type Client struct {
	http          *resty.Client
	phoneNumberID string
	getter        paramstore.Getter
	tokenParam    string
	attempts      uint
	retryDelay    time.Duration
	logger        *slog.Logger

	tokenMu sync.Mutex
	token   string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if u := strings.TrimRight(strings.TrimSpace(baseURL), "/"); u != "" {
			c.http.SetBaseURL(u)
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = uint(n)
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client. The access token is read from tokenParam on the
// first send and cached once loaded; a failed load is retried on the next send.
func NewClient(ps paramstore.Getter, tokenParam, phoneNumberID string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("whatsapp: paramstore getter must not be nil")
	}
	if strings.TrimSpace(tokenParam) == "" {
		return nil, errors.New("whatsapp: token parameter name must not be empty")
	}
	phoneNumberID = strings.TrimSpace(phoneNumberID)
	if phoneNumberID == "" {
		return nil, errors.New("whatsapp: phone number id must not be empty")
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(defaultBaseURL).
			SetTimeout(30*time.Second).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		phoneNumberID: phoneNumberID,
		getter:        ps,
		tokenParam:    tokenParam,
		attempts:      defaultAttempts,
		retryDelay:    defaultRetryDelay,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	token, err := paramstore.Token(ctx, c.getter, c.tokenParam, false)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

func (c *Client) messagesPath() string {
	return "/" + c.phoneNumberID + "/messages"
}

// SendText delivers a plain text message to the given recipient.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("whatsapp: recipient must not be empty")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("whatsapp: body must not be empty")
	}
	err := c.post(ctx, "send_text", sendTextRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return fmt.Errorf("whatsapp: send text: %w", err)
	}
	return nil
}

// MarkRead sends a read receipt for an inbound message.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	if strings.TrimSpace(messageID) == "" {
		return errors.New("whatsapp: message id must not be empty")
	}
	err := c.post(ctx, "mark_read", markReadRequest{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
	})
	if err != nil {
		return fmt.Errorf("whatsapp: mark read: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, op string, payload any) error {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}
	path := c.messagesPath()

	return retry.Do(
		func() error {
			resp, err := c.http.R().
				SetContext(ctx).
				SetAuthToken(token).
				SetBody(payload).
				Post(path)
			if err != nil {
				return err
			}
			if resp.IsError() {
				body := resp.String()
				if len(body) > 4096 {
					body = body[:4096]
				}
				return &HTTPStatusError{StatusCode: resp.StatusCode(), URL: path, Body: body}
			}
			return nil
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(c.retryDelay),
		retry.MaxJitter(c.retryDelay/2+time.Millisecond),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("whatsapp request failed", "op", op, "attempt", n+1, "err", err)
		}),
	)
}
