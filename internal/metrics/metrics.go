// Package metrics registers the taskgrab Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ListingsCreated counts listings posted via the create endpoint
	ListingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskgrab_listings_created_total",
		Help: "Total number of listings created.",
	})

	// ListingsClaimed counts successful claims (permanent ones included)
	ListingsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskgrab_listings_claimed_total",
		Help: "Total number of successful claims.",
	})

	// ListingsExpired counts listings removed by their expiry timer
	ListingsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskgrab_listings_expired_total",
		Help: "Total number of listings that expired unclaimed.",
	})

	// ListingsCancelled counts owner-initiated removals
	ListingsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskgrab_listings_cancelled_total",
		Help: "Total number of listings cancelled by their owner.",
	})

	// ListingsRenewed counts successful renewals
	ListingsRenewed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskgrab_listings_renewed_total",
		Help: "Total number of listing renewals.",
	})

	// ActiveListings tracks the current size of the in-memory index
	ActiveListings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskgrab_active_listings",
		Help: "Number of currently active listings.",
	})

	// ConnectedSubscribers tracks currently connected WebSocket clients
	ConnectedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskgrab_connected_subscribers",
		Help: "Number of currently connected WebSocket subscribers.",
	})
)
