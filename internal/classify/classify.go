// Package classify maps free-text business names and provider category tags
// onto the canonical service-type, specialization and certification labels
// shown on the directory.
package classify

import (
	"strings"

	"github.com/vindloodgieter/discovery/internal/discovery"
)

// Baseline is always the first service type of every business.
const Baseline = "Loodgieter"

// Predicate decides whether a lower-cased text matches a rule.
type Predicate func(text string) bool

// Rule pairs a canonical label with its predicate.
type Rule struct {
	Label string
	Match Predicate
}

// Keywords builds a predicate that matches when any keyword is a substring.
func Keywords(words ...string) Predicate {
	lowered := make([]string, len(words))
	for i, w := range words {
		lowered[i] = strings.ToLower(w)
	}
	return func(text string) bool {
		for _, w := range lowered {
			if strings.Contains(text, w) {
				return true
			}
		}
		return false
	}
}

// Rules is a ranked list; output follows rule order, not match order.
type Rules []Rule

// Apply returns the labels of every matching rule in rule order.
func (rs Rules) Apply(text string) []string {
	out := []string{}
	for _, r := range rs {
		if r.Match != nil && r.Match(text) && !contains(out, r.Label) {
			out = append(out, r.Label)
		}
	}
	return out
}

// Classifier is the keyword-heuristic implementation of discovery.Classifier.
type Classifier struct {
	serviceTypes    Rules
	specializations Rules
	certifications  Rules
}

var _ discovery.Classifier = (*Classifier)(nil)

// New builds a Classifier from explicit rule sets.
func New(serviceTypes, specializations, certifications Rules) *Classifier {
	return &Classifier{
		serviceTypes:    serviceTypes,
		specializations: specializations,
		certifications:  certifications,
	}
}

// Default returns the classifier configured with the built-in taxonomy.
func Default() *Classifier {
	return New(ServiceTypeRules(), SpecializationRules(), CertificationRules())
}

// Classify implements discovery.Classifier.
func (c *Classifier) Classify(name string, tags []string) discovery.Classification {
	text := matchText(name, tags)
	return discovery.Classification{
		ServiceTypes:    c.serviceTypesFor(text),
		Specializations: c.specializations.Apply(text),
		Certifications:  c.certifications.Apply(text),
	}
}

func (c *Classifier) serviceTypesFor(text string) []string {
	out := []string{Baseline}
	for _, label := range c.serviceTypes.Apply(text) {
		if !contains(out, label) {
			out = append(out, label)
		}
	}
	return out
}

// matchText joins the name and tags into one lower-cased haystack. Tags such
// as "general_contractor" are split on underscores.
func matchText(name string, tags []string) string {
	parts := make([]string, 0, len(tags)+1)
	parts = append(parts, strings.ToLower(name))
	for _, t := range tags {
		parts = append(parts, strings.ToLower(strings.ReplaceAll(t, "_", " ")))
	}
	return strings.Join(parts, " | ")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
