// Package resolver turns a Chilean street address into a postal code.
//
// The Engine is a cache-aside workflow: it probes the Store (and an optional
// hot ResultCache) using normalized keys, falls back to a Scraper against the
// Correos portal on a miss, and persists the scraped result with
// find-or-create semantics so concurrent first-time lookups of the same
// address converge on a single row.
package resolver
