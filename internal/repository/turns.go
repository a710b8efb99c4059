package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"antenatal-agent/internal/domain"
)

// Fixed width so sort keys order lexically by time.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

func turnsPK(subscriberID string) string {
	return pkPrefixTurns + subscriberID
}

// AppendTurn writes one message to the subscriber's turn log. Turns are
// append-only; a zero CreatedAt is stamped with the current time.
func (c *Client) AppendTurn(ctx context.Context, turn domain.Turn) error {
	if strings.TrimSpace(turn.SubscriberID) == "" {
		return errors.New("repository: AppendTurn: subscriber id is required")
	}
	if turn.Direction != domain.DirectionIncoming && turn.Direction != domain.DirectionOutgoing {
		return fmt.Errorf("repository: AppendTurn: invalid direction %q", turn.Direction)
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = c.now()
	}
	ts := turn.CreatedAt.UTC()

	item := map[string]types.AttributeValue{
		"PK":                 sAttr(turnsPK(turn.SubscriberID)),
		"SK":                 sAttr(skPrefixMsg + ts.Format(sortableTime) + "#" + string(turn.Direction)),
		"subscriberId":       sAttr(turn.SubscriberID),
		"direction":          sAttr(string(turn.Direction)),
		"text":               sAttr(turn.Text),
		"dangerSignDetected": bAttr(turn.DangerSignDetected),
		"createdAt":          tsAttr(ts),
	}
	if turn.GestationalAgeWeeks != nil {
		item["gestationalAgeWeeks"] = nAttr(int64(*turn.GestationalAgeWeeks))
	}
	if turn.DangerSignKeywords != nil {
		item["dangerSignKeywords"] = sAttr(*turn.DangerSignKeywords)
	}
	if turn.ResponseTimeMillis != nil {
		item["responseTimeMs"] = nAttr(*turn.ResponseTimeMillis)
	}
	if turn.GeneratorID != nil {
		item["generatorId"] = sAttr(*turn.GeneratorID)
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendTurn: %w", err)
	}
	return nil
}
