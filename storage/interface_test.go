package storage

import (
	"reflect"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/johnwmail/taskgrab/models"
)

// Compile-time checks that every backend implements ListingStore
var (
	_ ListingStore = (*FilesystemStore)(nil)
	_ ListingStore = (*MongoStore)(nil)
	_ ListingStore = (*DynamoStore)(nil)
	_ ListingStore = (*RedisStore)(nil)
)

func TestDynamoMarshalRoundTrip(t *testing.T) {
	listing := &models.Listing{
		ID:              "ABC12",
		Title:           "need one more",
		Contact:         "V:abc",
		Category:        "game",
		Attributes:      []string{"urgent"},
		OwnerCapability: "cap-1",
		CreatedAt:       time.Unix(1700000000, 0),
		ExpiresAt:       time.Unix(1700000900, 0),
	}

	got := unmarshalListing(marshalListing(listing))
	if got.ID != listing.ID || got.Title != listing.Title || got.Contact != listing.Contact {
		t.Errorf("round-trip mismatch: got %+v", got)
	}
	if got.OwnerCapability != listing.OwnerCapability {
		t.Errorf("owner capability lost: got %q", got.OwnerCapability)
	}
	if !got.CreatedAt.Equal(listing.CreatedAt) || !got.ExpiresAt.Equal(listing.ExpiresAt) {
		t.Errorf("timestamps lost: got created=%v expires=%v", got.CreatedAt, got.ExpiresAt)
	}
}

func TestDynamoMarshalPermanent(t *testing.T) {
	listing := &models.Listing{
		ID:              "OFFIC",
		Title:           "official",
		Contact:         "group:123",
		OwnerCapability: models.OfficialCapability,
		IsPermanent:     true,
		CreatedAt:       time.Unix(1700000000, 0),
	}

	item := marshalListing(listing)
	if _, ok := item["expires_at"]; ok {
		t.Error("permanent listing should not carry expires_at")
	}

	got := unmarshalListing(item)
	if !got.IsPermanent {
		t.Error("IsPermanent flag lost in round-trip")
	}
	if !got.ExpiresAt.IsZero() {
		t.Errorf("permanent listing expiry should stay zero, got %v", got.ExpiresAt)
	}
}

func TestDynamoMarshalAttributesAsList(t *testing.T) {
	// Duplicate and empty tags are legal listing input; a string set
	// attribute would make PutItem reject the whole record.
	listing := &models.Listing{
		ID:         "ABC12",
		Title:      "t",
		Contact:    "c",
		Attributes: []string{"urgent", "urgent", ""},
	}

	item := marshalListing(listing)
	if _, ok := item["attributes"].(*types.AttributeValueMemberL); !ok {
		t.Fatalf("attributes should marshal as a list, got %T", item["attributes"])
	}

	got := unmarshalListing(item)
	if !reflect.DeepEqual(got.Attributes, listing.Attributes) {
		t.Errorf("attributes round-trip = %v, want %v", got.Attributes, listing.Attributes)
	}
}

func TestRedisEncodeDecode(t *testing.T) {
	listing := &models.Listing{
		ID:              "ABC12",
		Title:           "need one more",
		Contact:         "V:abc",
		OwnerCapability: "cap-1",
		Attributes:      []string{"urgent"},
		CreatedAt:       time.Unix(1700000000, 0),
		ExpiresAt:       time.Unix(1700000900, 0),
	}

	data, err := encodeListing(listing)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := decodeListing(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.ID != listing.ID || got.Contact != listing.Contact || got.OwnerCapability != listing.OwnerCapability {
		t.Errorf("round-trip mismatch: got %+v", got)
	}
}
