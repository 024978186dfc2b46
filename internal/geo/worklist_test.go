package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable([]Province{
		{Name: "Utrecht", Abbr: "UT", Cities: []string{"Utrecht", "Zeist"}},
		{Name: "Limburg", Abbr: "LI", Cities: []string{"Maastricht", "Bergen"}},
		{Name: "Noord-Holland", Abbr: "NH", Cities: []string{"Bergen"}},
	})
	require.NoError(t, err)
	return table
}

func TestWorklistDeterministicOrder(t *testing.T) {
	t.Parallel()

	table := smallTable(t)
	items, err := table.Worklist([]string{"loodgieter", "cv monteur"}, Filter{})
	require.NoError(t, err)
	require.Len(t, items, 10)

	assert.Equal(t, "Utrecht", items[0].Province)
	assert.Equal(t, "Utrecht", items[0].City)
	assert.Equal(t, "loodgieter", items[0].SearchTerm)
	assert.Equal(t, "cv monteur", items[1].SearchTerm)
	assert.Equal(t, "Zeist", items[2].City)
	assert.Equal(t, "Noord-Holland", items[9].Province)
	for i, it := range items {
		assert.Equal(t, i, it.Position)
	}

	again, err := table.Worklist([]string{"loodgieter", "cv monteur"}, Filter{})
	require.NoError(t, err)
	assert.Equal(t, items, again)
}

func TestWorklistFiltersKeepPositions(t *testing.T) {
	t.Parallel()

	table := smallTable(t)
	items, err := table.Worklist([]string{"loodgieter", "cv monteur"}, Filter{Province: "limburg", City: "bergen"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Limburg", items[0].Province)
	assert.Equal(t, "Bergen", items[0].City)
	assert.Equal(t, 6, items[0].Position)

	limited, err := table.Worklist([]string{"loodgieter"}, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestWorklistUnknownFilters(t *testing.T) {
	t.Parallel()

	table := smallTable(t)
	_, err := table.Worklist([]string{"loodgieter"}, Filter{Province: "Atlantis"})
	require.ErrorIs(t, err, ErrUnknownProvince)

	_, err = table.Worklist([]string{"loodgieter"}, Filter{Province: "Utrecht", City: "Maastricht"})
	require.ErrorIs(t, err, ErrUnknownCity)

	_, err = table.Worklist(nil, Filter{})
	require.Error(t, err)
}

func TestResolveCityPrefersProvince(t *testing.T) {
	t.Parallel()

	table := smallTable(t)
	city, province, ok := table.ResolveCity("BERGEN", "Noord-Holland")
	require.True(t, ok)
	assert.Equal(t, "Bergen", city)
	assert.Equal(t, "Noord-Holland", province)

	_, province, ok = table.ResolveCity("bergen", "Utrecht")
	require.True(t, ok)
	assert.Equal(t, "Limburg", province)

	_, _, ok = table.ResolveCity("Parijs", "")
	assert.False(t, ok)
	assert.Equal(t, "UT", table.Abbreviation("utrecht"))
}

func TestDefaultTableHasTwelveProvinces(t *testing.T) {
	t.Parallel()

	table := Default()
	assert.Len(t, table.Provinces(), 12)
	items, err := table.Worklist(DefaultSearchTerms, Filter{Province: "Utrecht", City: "Utrecht"})
	require.NoError(t, err)
	assert.Len(t, items, len(DefaultSearchTerms))
}

func TestLoadTable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "geo.yaml")
	doc := `
provinces:
  - name: Zeeland
    abbr: ZE
    cities: [Middelburg, Goes]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)
	p, ok := table.Province("zeeland")
	require.True(t, ok)
	assert.Equal(t, []string{"Middelburg", "Goes"}, p.Cities)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("provinces:\n  - name: X\n    cities: [A]\n"), 0o600))
	_, err = LoadTable(bad)
	require.Error(t, err)
}
