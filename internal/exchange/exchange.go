// Package exchange implements the authoritative in-memory listing index.
//
// All lifecycle transitions (create, claim, renew, cancel, expire) are
// serialized under a single mutex. The durable store and the notification
// bus are side effects issued strictly after the in-memory decision; their
// failures are logged and reconciled at next startup, never fed back into
// the decision path.
package exchange

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnwmail/taskgrab/internal/metrics"
	"github.com/johnwmail/taskgrab/models"
	"github.com/johnwmail/taskgrab/storage"
	"github.com/johnwmail/taskgrab/utils"
)

var (
	// ErrNotFound means the listing is not currently active: already
	// claimed, cancelled, expired, or never created. The distinction is
	// deliberately not exposed.
	ErrNotFound = errors.New("listing not found")

	// ErrUnauthorized means the presented capability does not grant
	// mutation rights on the listing.
	ErrUnauthorized = errors.New("not authorized for this listing")
)

// Bus is the notification fan-out consumed by the exchange. Implementations
// must not block; delivery is best-effort and subscribers resync via
// Snapshot.
type Bus interface {
	// PublishCreated announces a new or renewed listing (redacted view)
	PublishCreated(listing models.PublicListing)

	// PublishRemoved announces that a listing is gone (claimed, cancelled
	// or expired)
	PublishRemoved(id string)
}

// entry couples a listing with its expiry timer. The generation counter
// makes a stale timer fire a no-op: every re-arm bumps gen, and the
// callback only acts if its captured gen still matches.
type entry struct {
	listing *models.Listing
	timer   *time.Timer
	gen     uint64
}

// Exchange is the authoritative index of active listings
type Exchange struct {
	mu     sync.Mutex
	items  map[string]*entry
	closed bool

	store storage.ListingStore
	bus   Bus
	ttl   time.Duration

	// now is swappable for tests
	now func() time.Time
}

// OfficialSpec describes a permanent listing installed at startup
type OfficialSpec struct {
	Title      string   `json:"title"`
	Contact    string   `json:"contact"`
	Category   string   `json:"category,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
}

// New creates an Exchange backed by store, publishing to bus, with the
// given default TTL for new listings.
func New(store storage.ListingStore, bus Bus, ttl time.Duration) *Exchange {
	return &Exchange{
		items: make(map[string]*entry),
		store: store,
		bus:   bus,
		ttl:   ttl,
		now:   time.Now,
	}
}

// TTL returns the configured default TTL
func (e *Exchange) TTL() time.Duration {
	return e.ttl
}

// newID generates a listing id that is not currently indexed. Caller must
// hold e.mu.
func (e *Exchange) newID() (string, error) {
	for _, length := range []int{5, 6, 7} {
		candidates, err := utils.RandomIDBatch(5, length)
		if err != nil {
			return "", fmt.Errorf("failed to generate id batch: %w", err)
		}
		for _, candidate := range candidates {
			if _, taken := e.items[candidate]; !taken {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("failed to generate unique id after 3 batches")
}

// Create indexes a new listing and returns it. The returned listing carries
// the owner capability; this is the only moment the capability leaves the
// exchange.
func (e *Exchange) Create(title, contact, category string, attributes []string) (*models.Listing, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, fmt.Errorf("exchange is closed")
	}

	id, err := e.newID()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}

	now := e.now()
	listing := &models.Listing{
		ID:              id,
		Title:           title,
		Contact:         contact,
		Category:        category,
		Attributes:      attributes,
		OwnerCapability: uuid.NewString(),
		CreatedAt:       now,
		ExpiresAt:       now.Add(e.ttl),
	}

	ent := &entry{listing: listing}
	e.items[id] = ent
	e.armTimer(ent, e.ttl)
	active := len(e.items)
	// The indexed record is only ever touched under e.mu. Snapshot it here
	// so the write-through, the broadcast and the caller all work on a
	// detached copy that a concurrent renewal cannot mutate.
	rec := *listing
	pub := listing.Public()
	e.mu.Unlock()

	e.persist(func() error { return e.store.Store(&rec) }, "store", id)
	e.bus.PublishCreated(pub)
	metrics.ListingsCreated.Inc()
	metrics.ActiveListings.Set(float64(active))

	if utils.IsDebugEnabled() {
		log.Printf("[DEBUG] created listing %s (expires %s)", id, rec.ExpiresAt.Format(time.RFC3339))
	}
	return &rec, nil
}

// Claim resolves a listing: the first caller to observe presence wins the
// private contact payload and the listing is destroyed. Later callers get
// ErrNotFound. Permanent listings are claimable repeatedly and survive.
func (e *Exchange) Claim(id string) (string, error) {
	e.mu.Lock()
	ent, ok := e.items[id]
	if !ok {
		e.mu.Unlock()
		return "", ErrNotFound
	}

	contact := ent.listing.Contact
	if ent.listing.IsPermanent {
		e.mu.Unlock()
		metrics.ListingsClaimed.Inc()
		return contact, nil
	}

	e.remove(ent, id)
	active := len(e.items)
	e.mu.Unlock()

	e.persist(func() error { return e.store.Delete(id) }, "delete", id)
	e.bus.PublishRemoved(id)
	metrics.ListingsClaimed.Inc()
	metrics.ActiveListings.Set(float64(active))

	if utils.IsDebugEnabled() {
		log.Printf("[DEBUG] listing %s claimed", id)
	}
	return contact, nil
}

// Renew re-arms the expiry timer with a fresh full TTL window and returns
// the new expiry. Requires the owner capability minted at creation.
func (e *Exchange) Renew(id, capability string) (time.Time, error) {
	e.mu.Lock()
	ent, ok := e.items[id]
	if !ok {
		e.mu.Unlock()
		return time.Time{}, ErrNotFound
	}
	if !authorized(ent.listing, capability) {
		e.mu.Unlock()
		return time.Time{}, ErrUnauthorized
	}

	expiresAt := e.now().Add(e.ttl)
	ent.listing.ExpiresAt = expiresAt
	e.armTimer(ent, e.ttl)
	// Project the redacted view before unlocking; a concurrent renewal
	// writes ExpiresAt on the shared record under the mutex.
	pub := ent.listing.Public()
	e.mu.Unlock()

	e.persist(func() error { return e.store.UpdateExpiry(id, expiresAt) }, "update-expiry", id)
	e.bus.PublishCreated(pub)
	metrics.ListingsRenewed.Inc()

	if utils.IsDebugEnabled() {
		log.Printf("[DEBUG] listing %s renewed until %s", id, expiresAt.Format(time.RFC3339))
	}
	return expiresAt, nil
}

// Cancel removes a listing without disclosing its payload. Idempotent:
// cancelling an id that is already gone is success.
func (e *Exchange) Cancel(id, capability string) error {
	e.mu.Lock()
	ent, ok := e.items[id]
	if !ok {
		e.mu.Unlock()
		return nil
	}
	if !authorized(ent.listing, capability) {
		e.mu.Unlock()
		return ErrUnauthorized
	}

	e.remove(ent, id)
	active := len(e.items)
	e.mu.Unlock()

	e.persist(func() error { return e.store.Delete(id) }, "delete", id)
	e.bus.PublishRemoved(id)
	metrics.ListingsCancelled.Inc()
	metrics.ActiveListings.Set(float64(active))

	if utils.IsDebugEnabled() {
		log.Printf("[DEBUG] listing %s cancelled", id)
	}
	return nil
}

// Snapshot returns the redacted views of all active listings, newest
// created first, ties broken by id.
func (e *Exchange) Snapshot() []models.PublicListing {
	e.mu.Lock()
	defer e.mu.Unlock()

	views := make([]models.PublicListing, 0, len(e.items))
	for _, ent := range e.items {
		views = append(views, ent.listing.Public())
	}
	sort.Slice(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.After(views[j].CreatedAt)
		}
		return views[i].ID < views[j].ID
	})
	return views
}

// Restore rebuilds the index from persisted records at startup. Live
// records get a timer for their remaining lifetime; already-expired ones
// are purged from storage without broadcasting (no subscribers exist yet);
// permanent ones are indexed with no timer.
func (e *Exchange) Restore(listings []*models.Listing) {
	now := e.now()
	restored := 0
	var stale []string

	e.mu.Lock()
	for _, listing := range listings {
		if listing.IsPermanent {
			e.items[listing.ID] = &entry{listing: listing}
			restored++
			continue
		}
		if !now.Before(listing.ExpiresAt) {
			stale = append(stale, listing.ID)
			continue
		}
		ent := &entry{listing: listing}
		e.items[listing.ID] = ent
		e.armTimer(ent, listing.ExpiresAt.Sub(now))
		restored++
	}
	active := len(e.items)
	e.mu.Unlock()

	for _, id := range stale {
		sid := id
		e.persist(func() error { return e.store.Delete(sid) }, "purge", sid)
	}

	metrics.ActiveListings.Set(float64(active))
	log.Printf("Restored %d listings, purged %d expired", restored, len(stale))
}

// InstallOfficial indexes the configured permanent listings. A permanent
// listing whose title was already restored from storage is skipped, so
// restarts do not duplicate officials.
func (e *Exchange) InstallOfficial(specs []OfficialSpec) error {
	for _, spec := range specs {
		e.mu.Lock()
		if e.hasPermanentTitle(spec.Title) {
			e.mu.Unlock()
			continue
		}
		id, err := e.newID()
		if err != nil {
			e.mu.Unlock()
			return err
		}
		listing := &models.Listing{
			ID:              id,
			Title:           spec.Title,
			Contact:         spec.Contact,
			Category:        spec.Category,
			Attributes:      spec.Attributes,
			OwnerCapability: models.OfficialCapability,
			IsPermanent:     true,
			CreatedAt:       e.now(),
		}
		e.items[id] = &entry{listing: listing}
		active := len(e.items)
		rec := *listing
		e.mu.Unlock()

		e.persist(func() error { return e.store.Store(&rec) }, "store", id)
		metrics.ActiveListings.Set(float64(active))
		log.Printf("Installed official listing %s (%s)", id, spec.Title)
	}
	return nil
}

// Close stops all expiry timers and rejects further creates
func (e *Exchange) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	for _, ent := range e.items {
		if ent.timer != nil {
			ent.timer.Stop()
		}
		ent.gen++
	}
}

// --- internal ---------------------------------------------------------------

// armTimer (re)schedules expiry for ent after d. Caller must hold e.mu.
func (e *Exchange) armTimer(ent *entry, d time.Duration) {
	if ent.timer != nil {
		ent.timer.Stop()
	}
	ent.gen++
	gen := ent.gen
	id := ent.listing.ID
	ent.timer = time.AfterFunc(d, func() {
		e.expire(id, gen)
	})
}

// remove deletes ent from the index and invalidates its timer. Caller must
// hold e.mu.
func (e *Exchange) remove(ent *entry, id string) {
	if ent.timer != nil {
		ent.timer.Stop()
	}
	ent.gen++
	delete(e.items, id)
}

// expire is the timer callback. It re-checks under the mutex that the id
// still maps to the generation the timer was armed for; a claim, cancel or
// renew that raced the firing makes this a no-op.
func (e *Exchange) expire(id string, gen uint64) {
	e.mu.Lock()
	ent, ok := e.items[id]
	if !ok || ent.gen != gen {
		e.mu.Unlock()
		return
	}
	delete(e.items, id)
	active := len(e.items)
	e.mu.Unlock()

	e.persist(func() error { return e.store.Delete(id) }, "delete", id)
	e.bus.PublishRemoved(id)
	metrics.ListingsExpired.Inc()
	metrics.ActiveListings.Set(float64(active))

	if utils.IsDebugEnabled() {
		log.Printf("[DEBUG] listing %s expired", id)
	}
}

// persist runs a durable-store write-through. The in-memory decision has
// already been made, so a failure is logged for startup reconciliation,
// never returned to the caller.
func (e *Exchange) persist(op func() error, what, id string) {
	if err := op(); err != nil {
		log.Printf("[ERROR] persistence %s for listing %s failed: %v", what, id, err)
	}
}

// hasPermanentTitle reports whether a permanent listing with this title is
// already indexed. Caller must hold e.mu.
func (e *Exchange) hasPermanentTitle(title string) bool {
	for _, ent := range e.items {
		if ent.listing.IsPermanent && ent.listing.Title == title {
			return true
		}
	}
	return false
}

// authorized compares the presented capability against the listing owner's.
// Constant-content comparison; the sentinel official capability never
// authorizes mutation (permanent listings have no owner).
func authorized(listing *models.Listing, capability string) bool {
	if listing.IsPermanent {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(listing.OwnerCapability), []byte(capability)) == 1
}
