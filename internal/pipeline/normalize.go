package pipeline

import (
	"regexp"
	"strings"
	"time"

	"github.com/vindloodgieter/discovery/internal/discovery"
	"github.com/vindloodgieter/discovery/internal/geo"
)

var postcodePattern = regexp.MustCompile(`\b([1-9]\d{3})\s?([A-Z]{2})\b`)

// Postcode extracts a Dutch postcode ("1234 AB") from a formatted address.
func Postcode(address string) string {
	m := postcodePattern.FindStringSubmatch(address)
	if m == nil {
		return ""
	}
	return m[1] + " " + m[2]
}

var countrySuffixes = map[string]struct{}{
	"nederland":       {},
	"netherlands":     {},
	"the netherlands": {},
	"nl":              {},
}

// ResolveLocation picks the city and province of a result. The locality of
// the formatted address wins when it names a known city; otherwise the work
// item's city is used. Ambiguous city names prefer the item's province.
func ResolveLocation(table *geo.Table, item discovery.WorkItem, address string) (city, province string) {
	parts := strings.Split(address, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		part := strings.TrimSpace(postcodePattern.ReplaceAllString(parts[i], ""))
		if part == "" {
			continue
		}
		if _, ok := countrySuffixes[strings.ToLower(part)]; ok {
			continue
		}
		if c, p, ok := table.ResolveCity(part, item.Province); ok {
			return c, p
		}
	}
	if c, p, ok := table.ResolveCity(item.City, item.Province); ok {
		return c, p
	}
	return item.City, item.Province
}

// Normalize builds the business record for one provider result.
func Normalize(
	table *geo.Table,
	classifier discovery.Classifier,
	item discovery.WorkItem,
	raw discovery.RawPlace,
	now time.Time,
) discovery.Business {
	city, province := ResolveLocation(table, item, raw.FormattedAddress)
	labels := classifier.Classify(raw.Name, raw.CategoryTags)

	b := discovery.Business{
		ExternalID:      raw.ExternalID,
		Slug:            discovery.SlugBase(raw.Name, city),
		Name:            raw.Name,
		Address:         raw.FormattedAddress,
		City:            city,
		Province:        province,
		ProvinceAbbr:    table.Abbreviation(province),
		Postcode:        Postcode(raw.FormattedAddress),
		Rating:          raw.Rating,
		ReviewCount:     raw.ReviewCount,
		ServiceTypes:    labels.ServiceTypes,
		Specializations: labels.Specializations,
		Certifications:  labels.Certifications,
		CategoryTags:    raw.CategoryTags,
		Status:          discovery.StatusDiscovered,
		DiscoveredAt:    now,
		UpdatedAt:       now,
	}
	if raw.Coordinates != nil {
		c := *raw.Coordinates
		b.Coordinates = &c
	}
	return discovery.Normalize(b)
}
