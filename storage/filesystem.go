package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/johnwmail/taskgrab/models"
)

// FilesystemStore implements ListingStore using one JSON file per listing
type FilesystemStore struct {
	dataDir string
	mu      sync.Mutex
}

// record is the on-disk shape of a listing. models.Listing hides the contact
// and owner capability from JSON, so the store maps through an explicit
// record type to keep them in the durable copy.
type record struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Contact         string    `json:"contact"`
	Category        string    `json:"category,omitempty"`
	Attributes      []string  `json:"attributes,omitempty"`
	OwnerCapability string    `json:"owner_capability"`
	IsPermanent     bool      `json:"is_permanent"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

func toRecord(l *models.Listing) *record {
	return &record{
		ID:              l.ID,
		Title:           l.Title,
		Contact:         l.Contact,
		Category:        l.Category,
		Attributes:      l.Attributes,
		OwnerCapability: l.OwnerCapability,
		IsPermanent:     l.IsPermanent,
		CreatedAt:       l.CreatedAt,
		ExpiresAt:       l.ExpiresAt,
	}
}

func (r *record) toListing() *models.Listing {
	return &models.Listing{
		ID:              r.ID,
		Title:           r.Title,
		Contact:         r.Contact,
		Category:        r.Category,
		Attributes:      r.Attributes,
		OwnerCapability: r.OwnerCapability,
		IsPermanent:     r.IsPermanent,
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

// NewFilesystemStore creates a new filesystem storage backend rooted at dataDir
func NewFilesystemStore(dataDir string) (*FilesystemStore, error) {
	if dataDir == "" {
		dataDir = "./data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", dataDir, err)
	}
	return &FilesystemStore{dataDir: dataDir}, nil
}

func (fs *FilesystemStore) path(id string) string {
	return filepath.Join(fs.dataDir, id+".json")
}

// Store saves a listing record as a JSON file
func (fs *FilesystemStore) Store(listing *models.Listing) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.MarshalIndent(toRecord(listing), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(fs.path(listing.ID), data, 0o600); err != nil {
		log.Printf("[ERROR] FS Store: failed to write record for %s: %v", listing.ID, err)
		return err
	}
	return nil
}

// Get retrieves a listing by its ID
func (fs *FilesystemStore) Get(id string) (*models.Listing, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.read(fs.path(id))
}

func (fs *FilesystemStore) read(path string) (*models.Listing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec.toListing(), nil
}

// UpdateExpiry rewrites the record with a new expiry timestamp
func (fs *FilesystemStore) UpdateExpiry(id string, expiresAt time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	listing, err := fs.read(fs.path(id))
	if err != nil {
		return err
	}
	if listing == nil {
		return fmt.Errorf("listing %s not found", id)
	}
	listing.ExpiresAt = expiresAt

	data, err := json.MarshalIndent(toRecord(listing), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fs.path(id), data, 0o600)
}

// Delete removes a listing file. Deleting a missing record is not an error.
func (fs *FilesystemStore) Delete(id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.path(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns all persisted listings
func (fs *FilesystemStore) List() ([]*models.Listing, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entries, err := os.ReadDir(fs.dataDir)
	if err != nil {
		return nil, err
	}

	var listings []*models.Listing
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		listing, err := fs.read(filepath.Join(fs.dataDir, entry.Name()))
		if err != nil {
			log.Printf("[WARN] FS List: skipping unreadable record %s: %v", entry.Name(), err)
			continue
		}
		if listing != nil {
			listings = append(listings, listing)
		}
	}
	return listings, nil
}

// Close is a no-op for the filesystem backend
func (fs *FilesystemStore) Close() error {
	return nil
}
