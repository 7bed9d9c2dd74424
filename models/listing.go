package models

import (
	"time"
)

// OfficialCapability is the sentinel owner capability assigned to permanent
// "official" listings installed at startup. It is public knowledge, so it
// must never authorize renew/cancel.
const OfficialCapability = "official"

// RedactedContact is the placeholder shown in place of the private contact
// payload everywhere except a successful claim response.
const RedactedContact = "***"

// Listing represents a task listing in the exchange
type Listing struct {
	ID              string    `json:"id" bson:"_id"`
	Title           string    `json:"title" bson:"title"`
	Contact         string    `json:"-" bson:"contact"` // Private payload, never exposed in JSON
	Category        string    `json:"category,omitempty" bson:"category,omitempty"`
	Attributes      []string  `json:"attributes,omitempty" bson:"attributes,omitempty"`
	OwnerCapability string    `json:"-" bson:"owner_capability"` // Bearer secret, never exposed in JSON
	IsPermanent     bool      `json:"is_permanent" bson:"is_permanent"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
	ExpiresAt       time.Time `json:"expires_at" bson:"expires_at"` // Zero for permanent listings
}

// IsExpired checks if the listing has expired
func (l *Listing) IsExpired() bool {
	if l.IsPermanent {
		return false
	}
	return time.Now().After(l.ExpiresAt)
}

// RemainingTTL returns the time left until expiry, clamped to zero.
// Permanent listings report zero; callers check IsPermanent first.
func (l *Listing) RemainingTTL() time.Duration {
	if l.IsPermanent {
		return 0
	}
	d := time.Until(l.ExpiresAt)
	if d < 0 {
		return 0
	}
	return d
}

// PublicListing is the redacted projection of a Listing that is safe to
// broadcast to subscribers and return from snapshots.
type PublicListing struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Contact     string    `json:"contact"` // Always RedactedContact
	Category    string    `json:"category,omitempty"`
	Attributes  []string  `json:"attributes,omitempty"`
	IsPermanent bool      `json:"is_permanent"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Public returns the redacted view of the listing. The contact payload and
// owner capability never cross this boundary.
func (l *Listing) Public() PublicListing {
	return PublicListing{
		ID:          l.ID,
		Title:       l.Title,
		Contact:     RedactedContact,
		Category:    l.Category,
		Attributes:  l.Attributes,
		IsPermanent: l.IsPermanent,
		CreatedAt:   l.CreatedAt,
		ExpiresAt:   l.ExpiresAt,
	}
}
