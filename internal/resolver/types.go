package resolver

import "strings"

// Region is immutable reference data seeded out of band.
type Region struct {
	ID          string
	Number      int
	RomanNumber string
	Label       string
	Name        string
}

// Commune belongs to exactly one Region and is matched by NormalizedName.
type Commune struct {
	ID             string
	Name           string
	NormalizedName string
	Region         Region
}

// Street is unique per (NormalizedName, Commune.ID).
type Street struct {
	ID             string
	Name           string
	NormalizedName string
	Commune        Commune
}

// PostalCode is an opaque, globally unique code as published by the portal.
type PostalCode struct {
	ID   string
	Code string
}

// StreetNumber links a house number on a Street to its PostalCode. A row with
// a non-nil PostalCode is a resolved cache entry.
type StreetNumber struct {
	ID         string
	Value      string
	Street     Street
	PostalCode *PostalCode
}

// Resolved reports whether the number already carries a postal code.
func (n StreetNumber) Resolved() bool {
	return n.PostalCode != nil && n.PostalCode.Code != ""
}

// Result is the caller-facing shape of a resolved address.
type Result struct {
	ID         string `json:"id"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	Commune    string `json:"commune"`
	Region     string `json:"region"`
	PostalCode string `json:"postalCode"`
}

// ResultFromNumber renders a fully hydrated StreetNumber. Display fields are
// uppercased; the postal code is only trimmed.
func ResultFromNumber(n StreetNumber) Result {
	res := Result{
		Street:  strings.ToUpper(n.Street.Name),
		Number:  n.Value,
		Commune: strings.ToUpper(n.Street.Commune.Name),
		Region:  strings.ToUpper(n.Street.Commune.Region.Label),
	}
	if n.PostalCode != nil {
		res.ID = n.PostalCode.ID
		res.PostalCode = strings.TrimSpace(n.PostalCode.Code)
	}
	return res
}

// Outcome is the tagged result of a portal lookup: exactly one of PostalCode
// or Err is set.
type Outcome struct {
	PostalCode string
	Err        error
}

// Found builds a successful Outcome.
func Found(code string) Outcome {
	return Outcome{PostalCode: code}
}

// Failed builds a failed Outcome.
func Failed(err error) Outcome {
	return Outcome{Err: err}
}

// OK reports whether the lookup produced a postal code.
func (o Outcome) OK() bool {
	return o.Err == nil && strings.TrimSpace(o.PostalCode) != ""
}
