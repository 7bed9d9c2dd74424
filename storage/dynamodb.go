package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/johnwmail/taskgrab/models"
)

// DynamoStore implements ListingStore using DynamoDB
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewDynamoStore creates a new DynamoDB storage backend
func NewDynamoStore(tableName, region string) (*DynamoStore, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, err
	}

	client := dynamodb.NewFromConfig(cfg)

	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}, nil
}

// Store saves a listing to DynamoDB
func (d *DynamoStore) Store(listing *models.Listing) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      marshalListing(listing),
	})
	return err
}

// Get retrieves a listing by its ID
func (d *DynamoStore) Get(id string) (*models.Listing, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil // Not found
	}
	return unmarshalListing(out.Item), nil
}

// UpdateExpiry sets a new expiry timestamp for a listing
func (d *DynamoStore) UpdateExpiry(id string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression: aws.String("SET expires_at = :e"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":e": &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Unix(), 10)},
		},
	})
	return err
}

// Delete removes a listing from DynamoDB
func (d *DynamoStore) Delete(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	return err
}

// List returns all persisted listings via a full table scan. The table only
// ever holds currently-live listings, so the scan stays small.
func (d *DynamoStore) List() ([]*models.Listing, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var listings []*models.Listing
	var startKey map[string]types.AttributeValue
	for {
		out, err := d.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(d.tableName),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			listings = append(listings, unmarshalListing(item))
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return listings, nil
}

// Close is a no-op for DynamoDB
func (d *DynamoStore) Close() error {
	return nil
}

func marshalListing(listing *models.Listing) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"id":               &types.AttributeValueMemberS{Value: listing.ID},
		"title":            &types.AttributeValueMemberS{Value: listing.Title},
		"contact":          &types.AttributeValueMemberS{Value: listing.Contact},
		"owner_capability": &types.AttributeValueMemberS{Value: listing.OwnerCapability},
		"is_permanent":     &types.AttributeValueMemberBOOL{Value: listing.IsPermanent},
		"created_at":       &types.AttributeValueMemberN{Value: strconv.FormatInt(listing.CreatedAt.Unix(), 10)},
	}
	if listing.Category != "" {
		item["category"] = &types.AttributeValueMemberS{Value: listing.Category}
	}
	if len(listing.Attributes) > 0 {
		// A list, not a string set: sets reject duplicate and empty
		// members, and attribute tags are free-form user input.
		members := make([]types.AttributeValue, 0, len(listing.Attributes))
		for _, attr := range listing.Attributes {
			members = append(members, &types.AttributeValueMemberS{Value: attr})
		}
		item["attributes"] = &types.AttributeValueMemberL{Value: members}
	}
	if !listing.ExpiresAt.IsZero() {
		item["expires_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(listing.ExpiresAt.Unix(), 10)}
	}
	return item
}

func unmarshalListing(item map[string]types.AttributeValue) *models.Listing {
	listing := &models.Listing{}
	if v, ok := item["id"].(*types.AttributeValueMemberS); ok {
		listing.ID = v.Value
	}
	if v, ok := item["title"].(*types.AttributeValueMemberS); ok {
		listing.Title = v.Value
	}
	if v, ok := item["contact"].(*types.AttributeValueMemberS); ok {
		listing.Contact = v.Value
	}
	if v, ok := item["owner_capability"].(*types.AttributeValueMemberS); ok {
		listing.OwnerCapability = v.Value
	}
	if v, ok := item["category"].(*types.AttributeValueMemberS); ok {
		listing.Category = v.Value
	}
	if v, ok := item["attributes"].(*types.AttributeValueMemberL); ok {
		for _, member := range v.Value {
			if s, ok := member.(*types.AttributeValueMemberS); ok {
				listing.Attributes = append(listing.Attributes, s.Value)
			}
		}
	}
	if v, ok := item["is_permanent"].(*types.AttributeValueMemberBOOL); ok {
		listing.IsPermanent = v.Value
	}
	if v, ok := item["created_at"].(*types.AttributeValueMemberN); ok {
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			listing.CreatedAt = time.Unix(n, 0)
		}
	}
	if v, ok := item["expires_at"].(*types.AttributeValueMemberN); ok {
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			listing.ExpiresAt = time.Unix(n, 0)
		}
	}
	return listing
}
