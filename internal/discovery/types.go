package discovery

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a persisted business.
type Status string

// Business statuses; transitions only move forward.
const (
	StatusDiscovered Status = "discovered"
	StatusEnriched   Status = "enriched"
	StatusVerified   Status = "verified"
)

// rank orders statuses so merges never regress a record.
func (s Status) rank() int {
	switch s {
	case StatusVerified:
		return 3
	case StatusEnriched:
		return 2
	case StatusDiscovered:
		return 1
	default:
		return 0
	}
}

// WorkItem is one (province, city, search term) unit of discovery work.
type WorkItem struct {
	Province   string `json:"province"`
	City       string `json:"city"`
	SearchTerm string `json:"search_term"`
	// Position is the index of the item in the unfiltered worklist.
	Position int `json:"position"`
}

// Key identifies the item across runs for resume bookkeeping.
func (w WorkItem) Key() string {
	return strings.ToLower(w.Province + "|" + w.City + "|" + w.SearchTerm)
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RawPlace is a single provider result before normalization.
type RawPlace struct {
	ExternalID       string
	Name             string
	FormattedAddress string
	Coordinates      *Coordinates
	Rating           *float64
	ReviewCount      *int
	CategoryTags     []string
	BusinessStatus   string
}

// Business is the normalized record persisted in the store and read by the
// web front-end. JSON field names are part of the consumer contract.
type Business struct {
	ExternalID      string       `json:"externalId"`
	Slug            string       `json:"slug"`
	Name            string       `json:"name"`
	Address         string       `json:"address"`
	City            string       `json:"city"`
	Province        string       `json:"province"`
	ProvinceAbbr    string       `json:"provinceAbbr"`
	Postcode        string       `json:"postcode,omitempty"`
	Coordinates     *Coordinates `json:"coordinates,omitempty"`
	Phone           string       `json:"phone,omitempty"`
	Website         string       `json:"website,omitempty"`
	Rating          *float64     `json:"rating"`
	ReviewCount     *int         `json:"reviewCount"`
	ServiceTypes    []string     `json:"serviceTypes"`
	Specializations []string     `json:"specializations"`
	Certifications  []string     `json:"certifications"`
	CategoryTags    []string     `json:"categoryTags"`
	Status          Status       `json:"status"`
	DiscoveredAt    time.Time    `json:"discoveredAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// Classification is the output of a Classifier.
type Classification struct {
	ServiceTypes    []string
	Specializations []string
	Certifications  []string
}

// UpsertOutcome reports what an upsert did to the store.
type UpsertOutcome string

// Upsert outcomes.
const (
	OutcomeInserted  UpsertOutcome = "inserted"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

// UpsertResult is returned by BusinessStore.UpsertBusiness.
type UpsertResult struct {
	Outcome UpsertOutcome
	Slug    string
}

// ProvinceCount is one row of the per-province aggregate.
type ProvinceCount struct {
	Province string `json:"province"`
	Count    int64  `json:"count"`
}

// ServiceTypeCount is one row of the per-service-type aggregate.
type ServiceTypeCount struct {
	ServiceType string `json:"serviceType"`
	Count       int64  `json:"count"`
}

// ListFilter narrows ListBusinesses. Empty fields match everything.
type ListFilter struct {
	Province    string
	City        string
	ServiceType string
	Status      Status
	Limit       int
	Offset      int
}

// RunState is the terminal or current state of a pipeline run.
type RunState string

// Run states.
const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunAborted   RunState = "aborted"
)

// RunCounters are the per-run totals reported at the end of a run.
type RunCounters struct {
	Processed     int `json:"processed"`
	Skipped       int `json:"skipped"`
	FailedItems   int `json:"failed_items"`
	Results       int `json:"results"`
	Inserted      int `json:"inserted"`
	Updated       int `json:"updated"`
	Unchanged     int `json:"unchanged"`
	FailedRecords int `json:"failed_records"`
}

// Run is the bookkeeping row for one pipeline invocation.
type Run struct {
	ID         string      `json:"id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	State      RunState    `json:"state"`
	DryRun     bool        `json:"dry_run"`
	Resume     bool        `json:"resume"`
	Counters   RunCounters `json:"counters"`
	Error      string      `json:"error,omitempty"`
}
