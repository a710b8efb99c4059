package handler

import (
	"encoding/json"
	"fmt"

	"antenatal-agent/internal/domain"
)

type webhookEnvelope struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      string          `json:"id"`
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	Contacts []webhookContact `json:"contacts"`
	Messages []webhookMessage `json:"messages"`
}

type webhookContact struct {
	WaID string `json:"wa_id"`
}

type webhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
}

// parseInbound extracts the first message of the first change. ok is false for
// events that carry no message, such as delivery status callbacks.
func parseInbound(body []byte) (domain.InboundMessage, bool, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.InboundMessage{}, false, fmt.Errorf("handler: decode webhook: %w", err)
	}
	if len(env.Entry) == 0 || len(env.Entry[0].Changes) == 0 {
		return domain.InboundMessage{}, false, nil
	}
	value := env.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return domain.InboundMessage{}, false, nil
	}

	m := value.Messages[0]
	kind := m.Type
	if kind == "" {
		kind = "text"
	}
	platformID := m.From
	if len(value.Contacts) > 0 && value.Contacts[0].WaID != "" {
		platformID = value.Contacts[0].WaID
	}

	msg := domain.InboundMessage{
		FromNumber: m.From,
		PlatformID: platformID,
		MessageID:  m.ID,
		Kind:       kind,
		Timestamp:  m.Timestamp,
	}
	if kind == "text" && m.Text != nil && m.Text.Body != "" {
		msg.Text = m.Text.Body
		msg.HasText = true
	}
	return msg, true, nil
}
