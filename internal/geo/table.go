// Package geo holds the static geography of the Netherlands used to build the
// discovery worklist: provinces, their abbreviation codes and cities.
package geo

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Province is one entry of the geography table.
type Province struct {
	Name   string   `yaml:"name"`
	Abbr   string   `yaml:"abbr"`
	Cities []string `yaml:"cities"`
}

// Table is the read-only province → cities mapping. Build it once at start-up
// and pass it to the components that need it.
type Table struct {
	provinces []Province
	byName    map[string]int
	// cityIndex maps a lower-cased city to the provinces that contain it.
	cityIndex map[string][]int
}

// NewTable validates and indexes the provinces. Order is preserved.
func NewTable(provinces []Province) (*Table, error) {
	if len(provinces) == 0 {
		return nil, errors.New("geography table has no provinces")
	}
	t := &Table{
		provinces: make([]Province, 0, len(provinces)),
		byName:    make(map[string]int, len(provinces)),
		cityIndex: make(map[string][]int),
	}
	for _, p := range provinces {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, errors.New("province name is required")
		}
		if strings.TrimSpace(p.Abbr) == "" {
			return nil, fmt.Errorf("province %q has no abbreviation", name)
		}
		if len(p.Cities) == 0 {
			return nil, fmt.Errorf("province %q has no cities", name)
		}
		key := strings.ToLower(name)
		if _, dup := t.byName[key]; dup {
			return nil, fmt.Errorf("duplicate province %q", name)
		}
		cities := make([]string, 0, len(p.Cities))
		for _, c := range p.Cities {
			c = strings.TrimSpace(c)
			if c == "" {
				return nil, fmt.Errorf("province %q has an empty city name", name)
			}
			cities = append(cities, c)
		}
		idx := len(t.provinces)
		t.provinces = append(t.provinces, Province{Name: name, Abbr: strings.TrimSpace(p.Abbr), Cities: cities})
		t.byName[key] = idx
		for _, c := range cities {
			ck := strings.ToLower(c)
			t.cityIndex[ck] = append(t.cityIndex[ck], idx)
		}
	}
	return t, nil
}

// LoadTable reads a YAML file of the form
//
//	provinces:
//	  - name: Utrecht
//	    abbr: UT
//	    cities: [Utrecht, Amersfoort]
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path.
	if err != nil {
		return nil, fmt.Errorf("read geography file: %w", err)
	}
	var doc struct {
		Provinces []Province `yaml:"provinces"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse geography file: %w", err)
	}
	return NewTable(doc.Provinces)
}

// Provinces returns a copy of the provinces in table order.
func (t *Table) Provinces() []Province {
	out := make([]Province, len(t.provinces))
	for i, p := range t.provinces {
		out[i] = Province{Name: p.Name, Abbr: p.Abbr, Cities: append([]string(nil), p.Cities...)}
	}
	return out
}

// Province looks up a province case-insensitively.
func (t *Table) Province(name string) (Province, bool) {
	idx, ok := t.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Province{}, false
	}
	return t.provinces[idx], true
}

// Abbreviation returns the province code, or "" if the province is unknown.
func (t *Table) Abbreviation(province string) string {
	p, ok := t.Province(province)
	if !ok {
		return ""
	}
	return p.Abbr
}

// ResolveCity finds the canonical spelling of city and the province it
// belongs to. When the city exists in several provinces, preferProvince wins
// if it is one of them; otherwise the first province in table order is used.
func (t *Table) ResolveCity(city, preferProvince string) (canonical string, province string, ok bool) {
	idxs := t.cityIndex[strings.ToLower(strings.TrimSpace(city))]
	if len(idxs) == 0 {
		return "", "", false
	}
	chosen := idxs[0]
	if pref, found := t.byName[strings.ToLower(strings.TrimSpace(preferProvince))]; found {
		for _, i := range idxs {
			if i == pref {
				chosen = i
				break
			}
		}
	}
	p := t.provinces[chosen]
	for _, c := range p.Cities {
		if strings.EqualFold(c, strings.TrimSpace(city)) {
			return c, p.Name, true
		}
	}
	return "", "", false
}
