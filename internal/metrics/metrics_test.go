package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeHost(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"places api", "https://maps.googleapis.com/maps/api/place/textsearch/json?query=x", "maps.googleapis.com"},
		{"upper case", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "127.0.0.1:8080", "127.0.0.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeHost(tc.input); got != tc.expected {
				t.Errorf("SanitizeHost(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveHelpersRecord(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	ObserveSearch("textsearch", "ok")
	ObserveWorkItem("persisted")
	ObserveRecord("inserted")
	ObserveRecord("inserted")
	ObserveEvent("ok")
	ObserveRateLimitDelay("https://maps.googleapis.com/x", 250*time.Millisecond)

	if val := testutil.ToFloat64(searchRequestsTotal.WithLabelValues("textsearch", "ok")); val != 1 {
		t.Errorf("expected one search observation, got %f", val)
	}
	if val := testutil.ToFloat64(recordsTotal.WithLabelValues("inserted")); val != 2 {
		t.Errorf("expected two inserted records, got %f", val)
	}
	if val := testutil.ToFloat64(workItemsTotal.WithLabelValues("persisted")); val != 1 {
		t.Errorf("expected one persisted work item, got %f", val)
	}
	if val := testutil.CollectAndCount(rateLimitDelaySeconds); val <= 0 {
		t.Errorf("expected rate limit delay to be observed, got %d", val)
	}
}
