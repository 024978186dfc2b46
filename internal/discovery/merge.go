package discovery

import (
	"reflect"
	"time"
)

// Normalize replaces nil slices with empty ones and defaults the status so
// that stored records always satisfy the non-null array contract.
func Normalize(b Business) Business {
	b.ServiceTypes = nonNil(b.ServiceTypes)
	b.Specializations = nonNil(b.Specializations)
	b.Certifications = nonNil(b.Certifications)
	b.CategoryTags = nonNil(b.CategoryTags)
	if b.Status == "" {
		b.Status = StatusDiscovered
	}
	return b
}

// Merge applies a later sighting of a business onto the stored version.
// Non-empty scalar fields of incoming overwrite, arrays are unioned in
// first-seen order, status never regresses and the slug is kept. The bool
// reports whether anything changed; UpdatedAt only moves when it did, which
// makes repeated application of the same sighting a no-op.
func Merge(existing, incoming Business, now time.Time) (Business, bool) {
	existing = Normalize(existing)
	incoming = Normalize(incoming)

	out := existing
	out.ServiceTypes = union(existing.ServiceTypes, incoming.ServiceTypes)
	out.Specializations = union(existing.Specializations, incoming.Specializations)
	out.Certifications = union(existing.Certifications, incoming.Certifications)
	out.CategoryTags = union(existing.CategoryTags, incoming.CategoryTags)

	if out.Slug == "" {
		out.Slug = incoming.Slug
	}
	overwrite(&out.Name, incoming.Name)
	overwrite(&out.Address, incoming.Address)
	overwrite(&out.City, incoming.City)
	overwrite(&out.Province, incoming.Province)
	overwrite(&out.ProvinceAbbr, incoming.ProvinceAbbr)
	overwrite(&out.Postcode, incoming.Postcode)
	overwrite(&out.Phone, incoming.Phone)
	overwrite(&out.Website, incoming.Website)
	if incoming.Coordinates != nil {
		c := *incoming.Coordinates
		out.Coordinates = &c
	}
	if incoming.Rating != nil {
		r := *incoming.Rating
		out.Rating = &r
	}
	if incoming.ReviewCount != nil {
		n := *incoming.ReviewCount
		out.ReviewCount = &n
	}
	if incoming.Status.rank() > out.Status.rank() {
		out.Status = incoming.Status
	}
	if out.DiscoveredAt.IsZero() || (!incoming.DiscoveredAt.IsZero() && incoming.DiscoveredAt.Before(out.DiscoveredAt)) {
		out.DiscoveredAt = incoming.DiscoveredAt
	}

	if reflect.DeepEqual(out, existing) {
		return existing, false
	}
	out.UpdatedAt = now
	return out, true
}

func overwrite(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
