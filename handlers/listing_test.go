package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/taskgrab/internal/exchange"
	"github.com/johnwmail/taskgrab/models"
)

// nullStore is a storage.ListingStore that remembers nothing
type nullStore struct{}

func (nullStore) Store(*models.Listing) error          { return nil }
func (nullStore) Get(string) (*models.Listing, error)  { return nil, nil }
func (nullStore) UpdateExpiry(string, time.Time) error { return nil }
func (nullStore) Delete(string) error                  { return nil }
func (nullStore) List() ([]*models.Listing, error)     { return nil, nil }
func (nullStore) Close() error                         { return nil }

// nullBus swallows broadcasts
type nullBus struct{}

func (nullBus) PublishCreated(models.PublicListing) {}
func (nullBus) PublishRemoved(string)               {}

func newTestRouter(t *testing.T) (*gin.Engine, *exchange.Exchange) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ex := exchange.New(nullStore{}, nullBus{}, time.Hour)
	t.Cleanup(ex.Close)

	h := NewListingHandler(ex)
	router := gin.New()
	router.POST("/api/post", h.Create)
	router.POST("/api/grab", h.Claim)
	router.POST("/api/renew", h.Renew)
	router.POST("/api/cancel", h.Cancel)
	router.GET("/api/listings", h.List)
	return router, ex
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response %q: %v", w.Body.String(), err)
		}
	}
	return w, resp
}

func TestCreateListing(t *testing.T) {
	router, _ := newTestRouter(t)

	w, resp := doJSON(t, router, "POST", "/api/post", CreateRequest{
		Title:   "缺1人",
		Contact: "V:abc",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if resp["success"] != true {
		t.Error("expected success=true")
	}
	if resp["id"] == "" || resp["id"] == nil {
		t.Error("response missing listing id")
	}
	if resp["owner_capability"] == "" || resp["owner_capability"] == nil {
		t.Error("response missing owner capability")
	}
}

func TestCreateListingValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name string
		body CreateRequest
	}{
		{"empty title", CreateRequest{Contact: "V:abc"}},
		{"empty contact", CreateRequest{Title: "t"}},
		{"whitespace only", CreateRequest{Title: "   ", Contact: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := doJSON(t, router, "POST", "/api/post", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestGrabFlow(t *testing.T) {
	router, ex := newTestRouter(t)

	listing, err := ex.Create("缺1人", "V:abc", "", nil)
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}

	w, resp := doJSON(t, router, "POST", "/api/grab", ClaimRequest{ID: listing.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["success"] != true || resp["contact"] != "V:abc" {
		t.Errorf("grab response = %v", resp)
	}

	// Second grab: gone, but still HTTP 200 since a miss is a normal outcome
	w, resp = doJSON(t, router, "POST", "/api/grab", ClaimRequest{ID: listing.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["success"] != false {
		t.Errorf("second grab should report success=false, got %v", resp)
	}
	if _, ok := resp["contact"]; ok {
		t.Error("missed grab must not carry a contact")
	}
}

func TestRenewEndpoint(t *testing.T) {
	router, ex := newTestRouter(t)

	listing, _ := ex.Create("t", "V:abc", "", nil)

	w, resp := doJSON(t, router, "POST", "/api/renew", OwnerRequest{
		ID:              listing.ID,
		OwnerCapability: listing.OwnerCapability,
	})
	if w.Code != http.StatusOK || resp["success"] != true {
		t.Errorf("renew: status = %d, resp = %v", w.Code, resp)
	}

	w, _ = doJSON(t, router, "POST", "/api/renew", OwnerRequest{
		ID:              listing.ID,
		OwnerCapability: "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("renew with wrong token: status = %d, want 401", w.Code)
	}

	w, _ = doJSON(t, router, "POST", "/api/renew", OwnerRequest{
		ID:              "ZZZ99",
		OwnerCapability: listing.OwnerCapability,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("renew of missing listing: status = %d, want 404", w.Code)
	}

	w, _ = doJSON(t, router, "POST", "/api/renew", OwnerRequest{
		ID:              "bad id!",
		OwnerCapability: listing.OwnerCapability,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("renew with malformed id: status = %d, want 400", w.Code)
	}
}

func TestCancelEndpoint(t *testing.T) {
	router, ex := newTestRouter(t)

	listing, _ := ex.Create("t", "V:abc", "", nil)

	w, _ := doJSON(t, router, "POST", "/api/cancel", OwnerRequest{
		ID:              listing.ID,
		OwnerCapability: "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("cancel with wrong token: status = %d, want 401", w.Code)
	}

	w, resp := doJSON(t, router, "POST", "/api/cancel", OwnerRequest{
		ID:              listing.ID,
		OwnerCapability: listing.OwnerCapability,
	})
	if w.Code != http.StatusOK || resp["success"] != true {
		t.Errorf("cancel: status = %d, resp = %v", w.Code, resp)
	}

	// Idempotent: already gone is still success
	w, resp = doJSON(t, router, "POST", "/api/cancel", OwnerRequest{
		ID:              listing.ID,
		OwnerCapability: listing.OwnerCapability,
	})
	if w.Code != http.StatusOK || resp["success"] != true {
		t.Errorf("repeat cancel: status = %d, resp = %v", w.Code, resp)
	}
}

func TestListEndpointRedacts(t *testing.T) {
	router, ex := newTestRouter(t)

	if _, err := ex.Create("t", "V:super-secret", "game", []string{"urgent"}); err != nil {
		t.Fatalf("seed listing: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/listings", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("super-secret")) {
		t.Errorf("listing view leaked contact: %s", w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(models.RedactedContact)) {
		t.Errorf("listing view missing redaction marker: %s", w.Body.String())
	}
}

func TestInvalidBody(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest("POST", "/api/grab", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid body: status = %d, want 400", w.Code)
	}
}
