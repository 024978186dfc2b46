package geo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vindloodgieter/discovery/internal/discovery"
)

// ErrUnknownProvince and ErrUnknownCity are returned for filters that do not
// match the table. They are configuration errors.
var (
	ErrUnknownProvince = errors.New("unknown province")
	ErrUnknownCity     = errors.New("unknown city")
)

// Filter narrows the worklist. Zero values match everything.
type Filter struct {
	Province string
	City     string
	// Limit caps the number of items; <= 0 means unlimited.
	Limit int
}

// Worklist enumerates work items in province, city, then term order.
// Positions refer to the unfiltered enumeration so they stay stable across
// filtered and resumed runs.
func (t *Table) Worklist(terms []string, f Filter) ([]discovery.WorkItem, error) {
	if len(terms) == 0 {
		return nil, errors.New("at least one search term is required")
	}
	if f.Province != "" {
		if _, ok := t.Province(f.Province); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvince, f.Province)
		}
	}
	if f.City != "" && !t.hasCity(f.Province, f.City) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCity, f.City)
	}

	var items []discovery.WorkItem
	pos := 0
	for _, p := range t.provinces {
		for _, c := range p.Cities {
			for _, term := range terms {
				matched := (f.Province == "" || strings.EqualFold(p.Name, strings.TrimSpace(f.Province))) &&
					(f.City == "" || strings.EqualFold(c, strings.TrimSpace(f.City)))
				if matched {
					items = append(items, discovery.WorkItem{
						Province:   p.Name,
						City:       c,
						SearchTerm: term,
						Position:   pos,
					})
				}
				pos++
			}
		}
	}
	return Truncate(items, f.Limit), nil
}

// Truncate returns at most n items; n <= 0 returns items unchanged.
func Truncate(items []discovery.WorkItem, n int) []discovery.WorkItem {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[:n]
}

func (t *Table) hasCity(province, city string) bool {
	for _, p := range t.provinces {
		if province != "" && !strings.EqualFold(p.Name, strings.TrimSpace(province)) {
			continue
		}
		for _, c := range p.Cities {
			if strings.EqualFold(c, strings.TrimSpace(city)) {
				return true
			}
		}
	}
	return false
}
