package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"antenatal-agent/internal/domain"
)

func countyPK(county string) string {
	return pkPrefixCounty + strings.ToLower(strings.TrimSpace(county))
}

// facilitySK keys a facility by name only, so re-putting it with a new
// priority replaces the existing item.
func facilitySK(name string) string {
	return skPrefixFacility + strings.ToLower(strings.TrimSpace(name))
}

// PutFacility upserts a facility into the county directory.
func (c *Client) PutFacility(ctx context.Context, f domain.Facility) error {
	if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.County) == "" {
		return errors.New("repository: PutFacility: name and county are required")
	}
	item := map[string]types.AttributeValue{
		"PK":                   sAttr(countyPK(f.County)),
		"SK":                   sAttr(facilitySK(f.Name)),
		"name":                 sAttr(f.Name),
		"county":               sAttr(f.County),
		"active":               bAttr(f.Active),
		"hasEmergencyServices": bAttr(f.HasEmergencyServices),
		"verified":             bAttr(f.Verified),
		"displayPriority":      nAttr(int64(f.DisplayPriority)),
	}
	if f.PhoneNumber != "" {
		item["phoneNumber"] = sAttr(f.PhoneNumber)
	}
	if f.EmergencyLine != "" {
		item["emergencyLine"] = sAttr(f.EmergencyLine)
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: PutFacility: %w", err)
	}
	return nil
}

// EmergencyFacilities returns up to limit active, verified facilities with
// emergency services in the county, ordered by display priority then name.
func (c *Client) EmergencyFacilities(ctx context.Context, county string, limit int) ([]domain.Facility, error) {
	if strings.TrimSpace(county) == "" {
		return nil, errors.New("repository: EmergencyFacilities: county is required")
	}

	// Filters apply after Limit in DynamoDB and the sort key carries no
	// priority, so every page is read and ordered here.
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		FilterExpression:       aws.String("active = :t AND hasEmergencyServices = :t AND verified = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": sAttr(countyPK(county)),
			":sk": sAttr(skPrefixFacility),
			":t":  bAttr(true),
		},
	}

	var out []domain.Facility
	for {
		page, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: EmergencyFacilities query: %w", err)
		}
		for _, it := range page.Items {
			f, err := itemToFacility(it)
			if err != nil {
				return nil, fmt.Errorf("repository: EmergencyFacilities decode: %w", err)
			}
			out = append(out, f)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DisplayPriority != out[j].DisplayPriority {
			return out[i].DisplayPriority < out[j].DisplayPriority
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func itemToFacility(item map[string]types.AttributeValue) (domain.Facility, error) {
	name, err := strAttr(item, "name")
	if err != nil {
		return domain.Facility{}, err
	}
	county, _ := strAttr(item, "county")
	prio, err := intAttr(item, "displayPriority")
	if err != nil {
		return domain.Facility{}, err
	}
	phone, _ := strAttr(item, "phoneNumber")
	emergency, _ := strAttr(item, "emergencyLine")
	return domain.Facility{
		Name:                 name,
		County:               county,
		PhoneNumber:          phone,
		EmergencyLine:        emergency,
		Active:               boolAttr(item, "active"),
		HasEmergencyServices: boolAttr(item, "hasEmergencyServices"),
		Verified:             boolAttr(item, "verified"),
		DisplayPriority:      prio,
	}, nil
}
