package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceTypesIncludeBaselineFirst(t *testing.T) {
	t.Parallel()

	c := Default()
	cases := []struct {
		name string
		tags []string
		want []string
	}{
		{name: "Jansen CV Service", want: []string{"Loodgieter", "CV Installatie"}},
		{name: "Jansen Spoed Loodgieter", want: []string{"Loodgieter", "Spoed Loodgieter"}},
		{name: "De Vries & Zn", want: []string{"Loodgieter"}},
		{
			name: "Ontstoppingsdienst 24/7 Riool Service",
			want: []string{"Loodgieter", "Spoed Loodgieter", "Riolering & Ontstopping"},
		},
		{name: "Bakker", tags: []string{"roofing_contractor"}, want: []string{"Loodgieter", "Dakwerk"}},
		{name: "Loodgieter Utrecht", want: []string{"Loodgieter"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, c.Classify(tc.name, tc.tags).ServiceTypes)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	t.Parallel()

	c := Default()
	first := c.Classify("Erkend Installatiebedrijf Warmtepomp & Badkamer", []string{"plumber"})
	for i := 0; i < 20; i++ {
		require.Equal(t, first, c.Classify("Erkend Installatiebedrijf Warmtepomp & Badkamer", []string{"plumber"}))
	}
	assert.Equal(t, []string{"Loodgieter", "Badkamer Renovatie", "Installatietechniek"}, first.ServiceTypes)
	assert.Equal(t, []string{"Warmtepompen"}, first.Specializations)
	assert.Equal(t, []string{"Erkend Installateur"}, first.Certifications)
}

func TestClassifyEmptyListsAreNotNil(t *testing.T) {
	t.Parallel()

	got := Default().Classify("", nil)
	assert.Equal(t, []string{Baseline}, got.ServiceTypes)
	assert.NotNil(t, got.Specializations)
	assert.NotNil(t, got.Certifications)
}

func TestCustomRulesArePluggable(t *testing.T) {
	t.Parallel()

	c := New(Rules{
		{Label: "Lange Naam", Match: func(text string) bool { return len(strings.TrimSpace(text)) > 10 }},
		{Label: Baseline, Match: Keywords("x")},
	}, nil, nil)
	assert.Equal(t, []string{"Loodgieter", "Lange Naam"}, c.Classify("a very long business", nil).ServiceTypes)
	assert.Equal(t, []string{"Loodgieter"}, c.Classify("x", nil).ServiceTypes)
}
