package resolver

import "context"

// Store persists the address hierarchy. Lookups that match nothing return an
// error wrapping ErrNoRecord. FindOrCreate* methods must tolerate concurrent
// inserts of the same natural key and return the surviving row.
type Store interface {
	FindCommuneByNormalizedName(ctx context.Context, normalizedName string) (Commune, error)
	FindStreetNumber(ctx context.Context, value, streetNormalizedName, communeID string) (StreetNumber, error)
	FindOrCreateStreet(ctx context.Context, name, normalizedName string, commune Commune) (Street, error)
	FindOrCreatePostalCode(ctx context.Context, code string) (PostalCode, error)
	FindOrCreateStreetNumber(ctx context.Context, value string, street Street, postalCode PostalCode) (StreetNumber, error)
	ReloadStreetNumber(ctx context.Context, id string) (StreetNumber, error)
	FindByPostalCode(ctx context.Context, code string) ([]StreetNumber, error)
	Ping(ctx context.Context) error
}

// Scraper looks an address up against the external portal. It never returns
// transport errors directly; failures are reported through Outcome.Err.
type Scraper interface {
	Lookup(ctx context.Context, commune, street, number string) Outcome
}

// ResultCache is an optional hot cache in front of the Store.
type ResultCache interface {
	Get(ctx context.Context, key string) (Result, bool, error)
	Set(ctx context.Context, key string, result Result) error
}
