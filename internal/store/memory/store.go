// Package memory provides an in-memory resolver.Store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/postal-resolver/internal/normalize"
	"github.com/JakeFAU/postal-resolver/internal/resolver"
)

// IDGenerator produces row identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

type streetKey struct {
	normalizedName string
	communeID      string
}

type numberKey struct {
	value    string
	streetID string
}

type numberRow struct {
	id           string
	value        string
	streetID     string
	postalCodeID string
}

// Store keeps the address hierarchy in maps guarded by a single mutex, which
// makes every find-or-create atomic.
type Store struct {
	mu    sync.RWMutex
	idGen IDGenerator

	communes    map[string]resolver.Commune // by normalized name
	streets     map[string]resolver.Street  // by id
	streetIndex map[streetKey]string
	codes       map[string]resolver.PostalCode // by id
	codeIndex   map[string]string
	numbers     map[string]*numberRow // by id
	numberIndex map[numberKey]string
}

// NewStore constructs an empty Store.
func NewStore(idGen IDGenerator) *Store {
	return &Store{
		idGen:       idGen,
		communes:    make(map[string]resolver.Commune),
		streets:     make(map[string]resolver.Street),
		streetIndex: make(map[streetKey]string),
		codes:       make(map[string]resolver.PostalCode),
		codeIndex:   make(map[string]string),
		numbers:     make(map[string]*numberRow),
		numberIndex: make(map[numberKey]string),
	}
}

// SeedCommune registers reference data. Missing IDs are generated and the
// normalized name is derived from the display name when empty.
func (s *Store) SeedCommune(c resolver.Commune) (resolver.Commune, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.NormalizedName == "" {
		c.NormalizedName = normalize.Key(c.Name)
	}
	if c.ID == "" {
		id, err := s.idGen.NewID()
		if err != nil {
			return resolver.Commune{}, err
		}
		c.ID = id
	}
	if c.Region.ID == "" {
		id, err := s.idGen.NewID()
		if err != nil {
			return resolver.Commune{}, err
		}
		c.Region.ID = id
	}
	s.communes[c.NormalizedName] = c
	return c, nil
}

// FindCommuneByNormalizedName implements resolver.Store.
func (s *Store) FindCommuneByNormalizedName(_ context.Context, normalizedName string) (resolver.Commune, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.communes[normalizedName]
	if !ok {
		return resolver.Commune{}, fmt.Errorf("commune %q: %w", normalizedName, resolver.ErrNoRecord)
	}
	return c, nil
}

// FindStreetNumber implements resolver.Store.
func (s *Store) FindStreetNumber(
	_ context.Context,
	value, streetNormalizedName, communeID string,
) (resolver.StreetNumber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	streetID, ok := s.streetIndex[streetKey{normalizedName: streetNormalizedName, communeID: communeID}]
	if !ok {
		return resolver.StreetNumber{}, fmt.Errorf("street %q: %w", streetNormalizedName, resolver.ErrNoRecord)
	}
	numberID, ok := s.numberIndex[numberKey{value: value, streetID: streetID}]
	if !ok {
		return resolver.StreetNumber{}, fmt.Errorf("number %q: %w", value, resolver.ErrNoRecord)
	}
	return s.hydrateLocked(s.numbers[numberID]), nil
}

// FindOrCreateStreet implements resolver.Store.
func (s *Store) FindOrCreateStreet(
	_ context.Context,
	name, normalizedName string,
	commune resolver.Commune,
) (resolver.Street, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := streetKey{normalizedName: normalizedName, communeID: commune.ID}
	if id, ok := s.streetIndex[key]; ok {
		return s.streets[id], nil
	}
	id, err := s.idGen.NewID()
	if err != nil {
		return resolver.Street{}, err
	}
	st := resolver.Street{ID: id, Name: name, NormalizedName: normalizedName, Commune: commune}
	s.streets[id] = st
	s.streetIndex[key] = id
	return st, nil
}

// FindOrCreatePostalCode implements resolver.Store.
func (s *Store) FindOrCreatePostalCode(_ context.Context, code string) (resolver.PostalCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.codeIndex[code]; ok {
		return s.codes[id], nil
	}
	id, err := s.idGen.NewID()
	if err != nil {
		return resolver.PostalCode{}, err
	}
	pc := resolver.PostalCode{ID: id, Code: code}
	s.codes[id] = pc
	s.codeIndex[code] = id
	return pc, nil
}

// FindOrCreateStreetNumber implements resolver.Store. An existing row without
// a postal code gets postalCode attached; one with a code keeps it.
func (s *Store) FindOrCreateStreetNumber(
	_ context.Context,
	value string,
	street resolver.Street,
	postalCode resolver.PostalCode,
) (resolver.StreetNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := numberKey{value: value, streetID: street.ID}
	if id, ok := s.numberIndex[key]; ok {
		row := s.numbers[id]
		if row.postalCodeID == "" {
			row.postalCodeID = postalCode.ID
		}
		return s.hydrateLocked(row), nil
	}
	id, err := s.idGen.NewID()
	if err != nil {
		return resolver.StreetNumber{}, err
	}
	row := &numberRow{id: id, value: value, streetID: street.ID, postalCodeID: postalCode.ID}
	s.numbers[id] = row
	s.numberIndex[key] = id
	return s.hydrateLocked(row), nil
}

// ReloadStreetNumber implements resolver.Store.
func (s *Store) ReloadStreetNumber(_ context.Context, id string) (resolver.StreetNumber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.numbers[id]
	if !ok {
		return resolver.StreetNumber{}, fmt.Errorf("street number %s: %w", id, resolver.ErrNoRecord)
	}
	return s.hydrateLocked(row), nil
}

// FindByPostalCode implements resolver.Store, ordered by street then number.
func (s *Store) FindByPostalCode(_ context.Context, code string) ([]resolver.StreetNumber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codeID, ok := s.codeIndex[code]
	if !ok {
		return nil, nil
	}
	var out []resolver.StreetNumber
	for _, row := range s.numbers {
		if row.postalCodeID == codeID {
			out = append(out, s.hydrateLocked(row))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Street.Name != out[j].Street.Name {
			return out[i].Street.Name < out[j].Street.Name
		}
		return out[i].Value < out[j].Value
	})
	return out, nil
}

// Ping implements resolver.Store.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Counts reports row totals for streets, postal codes and street numbers.
func (s *Store) Counts() (streets, postalCodes, streetNumbers int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streets), len(s.codes), len(s.numbers)
}

func (s *Store) hydrateLocked(row *numberRow) resolver.StreetNumber {
	n := resolver.StreetNumber{
		ID:     row.id,
		Value:  row.value,
		Street: s.streets[row.streetID],
	}
	if pc, ok := s.codes[row.postalCodeID]; ok {
		n.PostalCode = &pc
	}
	return n
}
