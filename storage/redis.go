package storage

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/johnwmail/taskgrab/models"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "listing:"

// RedisStore implements ListingStore using Redis with gob-encoded records.
// Keys carry no Redis TTL: the exchange owns expiry and purges stale
// records itself at restore time.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis storage backend
func NewRedisStore(addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func encodeListing(listing *models.Listing) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(listing); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeListing(data []byte) (*models.Listing, error) {
	var listing models.Listing
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// Store saves a listing record to Redis
func (r *RedisStore) Store(listing *models.Listing) error {
	data, err := encodeListing(listing)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return r.client.Set(ctx, redisKey(listing.ID), data, 0).Err()
}

// Get retrieves a listing by its ID
func (r *RedisStore) Get(id string) (*models.Listing, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := r.client.Get(ctx, redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return decodeListing(data)
}

// UpdateExpiry rewrites the record with a new expiry timestamp
func (r *RedisStore) UpdateExpiry(id string, expiresAt time.Time) error {
	listing, err := r.Get(id)
	if err != nil {
		return err
	}
	if listing == nil {
		return fmt.Errorf("listing %s not found", id)
	}
	listing.ExpiresAt = expiresAt
	return r.Store(listing)
}

// Delete removes a listing from Redis
func (r *RedisStore) Delete(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return r.client.Del(ctx, redisKey(id)).Err()
}

// List returns all persisted listings
func (r *RedisStore) List() ([]*models.Listing, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var listings []*models.Listing
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // deleted between scan and get
			}
			return nil, err
		}
		listing, err := decodeListing(data)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return listings, nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
