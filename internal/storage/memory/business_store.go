package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vindloodgieter/discovery/internal/discovery"
)

// BusinessStore provides an in-memory discovery.BusinessStore for tests and
// --no-db runs.
type BusinessStore struct {
	mu     sync.RWMutex
	byID   map[string]discovery.Business
	bySlug map[string]string
	now    func() time.Time

	// FailFor makes UpsertBusiness fail for the listed external IDs.
	FailFor map[string]error
}

// NewBusinessStore constructs a BusinessStore. A nil clock uses time.Now.
func NewBusinessStore(now func() time.Time) *BusinessStore {
	if now == nil {
		now = time.Now
	}
	return &BusinessStore{
		byID:   make(map[string]discovery.Business),
		bySlug: make(map[string]string),
		now:    now,
	}
}

// UpsertBusiness inserts b or merges it onto the stored record.
func (s *BusinessStore) UpsertBusiness(_ context.Context, b discovery.Business) (discovery.UpsertResult, error) {
	if b.ExternalID == "" {
		return discovery.UpsertResult{}, errors.New("external id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.FailFor[b.ExternalID]; ok {
		return discovery.UpsertResult{}, err
	}

	b = discovery.Normalize(b)
	now := s.now().UTC()
	if existing, ok := s.byID[b.ExternalID]; ok {
		merged, changed := discovery.Merge(existing, b, now)
		if !changed {
			return discovery.UpsertResult{Outcome: discovery.OutcomeUnchanged, Slug: existing.Slug}, nil
		}
		s.byID[b.ExternalID] = merged
		return discovery.UpsertResult{Outcome: discovery.OutcomeUpdated, Slug: merged.Slug}, nil
	}

	slug, err := s.resolveSlug(b)
	if err != nil {
		return discovery.UpsertResult{}, err
	}
	b.Slug = slug
	if b.DiscoveredAt.IsZero() {
		b.DiscoveredAt = now
	}
	b.UpdatedAt = now
	s.byID[b.ExternalID] = b
	s.bySlug[slug] = b.ExternalID
	return discovery.UpsertResult{Outcome: discovery.OutcomeInserted, Slug: slug}, nil
}

func (s *BusinessStore) resolveSlug(b discovery.Business) (string, error) {
	base := b.Slug
	if base == "" {
		base = discovery.SlugBase(b.Name, b.City)
	}
	if base == "" {
		base = discovery.Slugify(b.ExternalID)
	}
	for attempt := 1; attempt <= discovery.MaxSlugAttempts; attempt++ {
		candidate := discovery.SlugCandidate(base, attempt)
		if _, taken := s.bySlug[candidate]; !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("slug %q: %w", base, discovery.ErrSlugSpaceExhausted)
}

// SlugExists reports whether slug is assigned.
func (s *BusinessStore) SlugExists(_ context.Context, slug string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.bySlug[slug]
	return ok, nil
}

// GetBySlug fetches a business by slug.
func (s *BusinessStore) GetBySlug(_ context.Context, slug string) (discovery.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySlug[slug]
	if !ok {
		return discovery.Business{}, discovery.ErrNotFound
	}
	return s.byID[id], nil
}

// ListBusinesses returns matching businesses ordered like the Postgres store.
func (s *BusinessStore) ListBusinesses(_ context.Context, filter discovery.ListFilter) ([]discovery.Business, error) {
	s.mu.RLock()
	all := make([]discovery.Business, 0, len(s.byID))
	for _, b := range s.byID {
		if matches(b, filter) {
			all = append(all, b)
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Province != b.Province {
			return a.Province < b.Province
		}
		if a.City != b.City {
			return a.City < b.City
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ExternalID < b.ExternalID
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []discovery.Business{}, nil
	}
	all = all[offset:]
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all, nil
}

func matches(b discovery.Business, f discovery.ListFilter) bool {
	if f.Province != "" && !strings.EqualFold(b.Province, f.Province) {
		return false
	}
	if f.City != "" && !strings.EqualFold(b.City, f.City) {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.ServiceType != "" {
		for _, st := range b.ServiceTypes {
			if st == f.ServiceType {
				return true
			}
		}
		return false
	}
	return true
}

// CountByProvince returns per-province counts ordered by province.
func (s *BusinessStore) CountByProvince(_ context.Context) ([]discovery.ProvinceCount, error) {
	s.mu.RLock()
	counts := make(map[string]int64)
	for _, b := range s.byID {
		counts[b.Province]++
	}
	s.mu.RUnlock()

	out := make([]discovery.ProvinceCount, 0, len(counts))
	for p, n := range counts {
		out = append(out, discovery.ProvinceCount{Province: p, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Province < out[j].Province })
	return out, nil
}

// CountByServiceType returns per-label counts, most common first.
func (s *BusinessStore) CountByServiceType(_ context.Context) ([]discovery.ServiceTypeCount, error) {
	s.mu.RLock()
	counts := make(map[string]int64)
	for _, b := range s.byID {
		for _, st := range b.ServiceTypes {
			counts[st]++
		}
	}
	s.mu.RUnlock()

	out := make([]discovery.ServiceTypeCount, 0, len(counts))
	for st, n := range counts {
		out = append(out, discovery.ServiceTypeCount{ServiceType: st, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ServiceType < out[j].ServiceType
	})
	return out, nil
}

// All returns a snapshot of every stored business keyed by external ID.
func (s *BusinessStore) All() map[string]discovery.Business {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]discovery.Business, len(s.byID))
	for k, v := range s.byID {
		out[k] = v
	}
	return out
}

var _ discovery.BusinessStore = (*BusinessStore)(nil)
