package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"antenatal-agent/internal/domain"
)

const dateLayout = "2006-01-02"

func subscriberPK(platformID string) string {
	return pkPrefixSubscriber + platformID
}

func subscriberKey(platformID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": sAttr(subscriberPK(platformID)),
		"SK": sAttr(skProfile),
	}
}

// GetSubscriberByPlatformID returns nil, nil when no subscriber has the id.
func (c *Client) GetSubscriberByPlatformID(ctx context.Context, platformID string) (*domain.Subscriber, error) {
	if strings.TrimSpace(platformID) == "" {
		return nil, errors.New("repository: GetSubscriberByPlatformID: platform id is required")
	}
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            subscriberKey(platformID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetSubscriberByPlatformID get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	sub, err := itemToSubscriber(out.Item)
	if err != nil {
		return nil, fmt.Errorf("repository: GetSubscriberByPlatformID decode: %w", err)
	}
	return &sub, nil
}

// CreateSubscriber inserts a new subscriber. A concurrent first message from
// the same platform id loses the race with domain.ErrSubscriberExists.
func (c *Client) CreateSubscriber(ctx context.Context, sub domain.Subscriber) error {
	if sub.ID == "" || sub.PlatformID == "" {
		return errors.New("repository: CreateSubscriber: id and platform id are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                subscriberItem(sub),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return domain.ErrSubscriberExists
		}
		return fmt.Errorf("repository: CreateSubscriber: %w", err)
	}
	return nil
}

// SaveSubscriber replaces the stored profile of an existing subscriber.
func (c *Client) SaveSubscriber(ctx context.Context, sub domain.Subscriber) error {
	if sub.ID == "" || sub.PlatformID == "" {
		return errors.New("repository: SaveSubscriber: id and platform id are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                subscriberItem(sub),
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveSubscriber: %w", err)
	}
	return nil
}

func subscriberItem(sub domain.Subscriber) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":                   sAttr(subscriberPK(sub.PlatformID)),
		"SK":                   sAttr(skProfile),
		"id":                   sAttr(sub.ID),
		"phoneNumber":          sAttr(sub.PhoneNumber),
		"platformId":           sAttr(sub.PlatformID),
		"cohort":               sAttr(sub.Cohort),
		"active":               bAttr(sub.Active),
		"language":             sAttr(sub.Language),
		"consentGiven":         bAttr(sub.ConsentGiven),
		"registrationComplete": bAttr(sub.RegistrationComplete),
		"enrolledAt":           tsAttr(sub.EnrolledAt),
	}
	if sub.Name != nil {
		item["name"] = sAttr(*sub.Name)
	}
	if sub.GestationalAgeWeeks != nil {
		item["gestationalAgeAtEnrollment"] = nAttr(int64(*sub.GestationalAgeWeeks))
	}
	if sub.ExpectedDeliveryDate != nil {
		item["expectedDeliveryDate"] = sAttr(sub.ExpectedDeliveryDate.Format(dateLayout))
	}
	if sub.ConsentGivenAt != nil {
		item["consentGivenAt"] = tsAttr(*sub.ConsentGivenAt)
	}
	return item
}

func itemToSubscriber(item map[string]types.AttributeValue) (domain.Subscriber, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Subscriber{}, err
	}
	platformID, err := strAttr(item, "platformId")
	if err != nil {
		return domain.Subscriber{}, err
	}
	phone, _ := strAttr(item, "phoneNumber")
	cohort, _ := strAttr(item, "cohort")
	language, _ := strAttr(item, "language")

	ga, err := optIntAttr(item, "gestationalAgeAtEnrollment")
	if err != nil {
		return domain.Subscriber{}, err
	}
	consentAt, err := timeAttr(item, "consentGivenAt")
	if err != nil {
		return domain.Subscriber{}, err
	}
	enrolledAt, err := timeAttr(item, "enrolledAt")
	if err != nil {
		return domain.Subscriber{}, err
	}

	sub := domain.Subscriber{
		ID:                   id,
		PhoneNumber:          phone,
		PlatformID:           platformID,
		Name:                 optStrAttr(item, "name"),
		Cohort:               cohort,
		GestationalAgeWeeks:  ga,
		Active:               boolAttr(item, "active"),
		Language:             language,
		ConsentGiven:         boolAttr(item, "consentGiven"),
		ConsentGivenAt:       consentAt,
		RegistrationComplete: boolAttr(item, "registrationComplete"),
	}
	if enrolledAt != nil {
		sub.EnrolledAt = *enrolledAt
	}
	if edd := optStrAttr(item, "expectedDeliveryDate"); edd != nil {
		d, err := time.Parse(dateLayout, *edd)
		if err != nil {
			return domain.Subscriber{}, fmt.Errorf("repository: parse attribute %q: %w", "expectedDeliveryDate", err)
		}
		sub.ExpectedDeliveryDate = &d
	}
	return sub, nil
}
