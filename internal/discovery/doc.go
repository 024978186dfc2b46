// Package discovery defines the shared types and contracts of the plumber
// discovery pipeline: work items, raw provider results, the persisted
// Business record, and the interfaces implemented by the search client,
// classifier, stores and sinks.
package discovery
