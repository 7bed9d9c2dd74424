package storage

import (
	"time"

	"github.com/johnwmail/taskgrab/models"
)

// ListingStore defines the interface for durable listing storage backends.
// The backing store is a crash-recovery shadow of the in-memory exchange
// index: written through on every mutation, read back only at startup,
// never used to serve live traffic.
type ListingStore interface {
	// Store saves a listing record to the storage backend
	Store(listing *models.Listing) error

	// Get retrieves a listing by its ID, or nil if not present
	Get(id string) (*models.Listing, error)

	// UpdateExpiry sets a new expiry timestamp for a listing (renewal)
	UpdateExpiry(id string, expiresAt time.Time) error

	// Delete removes a listing from storage
	Delete(id string) error

	// List returns all persisted listings, expired ones included.
	// Used by the exchange to rebuild its index at startup.
	List() ([]*models.Listing, error)

	// Close closes the storage connection
	Close() error
}
