// Package postgres provides the Postgres-backed resolver.Store.
//
// Expected schema (migrations are managed outside this service):
//
//	CREATE TABLE regions (
//		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//		number INT NOT NULL,
//		roman_number TEXT NOT NULL,
//		label TEXT NOT NULL,
//		name TEXT NOT NULL
//	);
//	CREATE TABLE communes (
//		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//		name TEXT NOT NULL,
//		normalized_name TEXT NOT NULL UNIQUE,
//		region_id UUID NOT NULL REFERENCES regions(id)
//	);
//	CREATE TABLE streets (
//		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//		name TEXT NOT NULL,
//		normalized_name TEXT NOT NULL,
//		commune_id UUID NOT NULL REFERENCES communes(id),
//		UNIQUE (normalized_name, commune_id)
//	);
//	CREATE TABLE postal_codes (
//		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//		code TEXT NOT NULL UNIQUE
//	);
//	CREATE TABLE street_numbers (
//		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//		value TEXT NOT NULL,
//		street_id UUID NOT NULL REFERENCES streets(id) ON DELETE CASCADE,
//		postal_code_id UUID REFERENCES postal_codes(id),
//		UNIQUE (value, street_id)
//	);
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/postal-resolver/internal/resolver"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// Store implements resolver.Store on top of pgx.
type Store struct {
	pool querier
}

// NewStore connects to Postgres using cfg.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

const communeQuery = `
SELECT c.id::text, c.name, c.normalized_name,
	r.id::text, r.number, r.roman_number, r.label, r.name
FROM communes c
JOIN regions r ON r.id = c.region_id
WHERE c.normalized_name = $1`

// FindCommuneByNormalizedName implements resolver.Store.
func (s *Store) FindCommuneByNormalizedName(ctx context.Context, normalizedName string) (resolver.Commune, error) {
	var c resolver.Commune
	err := s.pool.QueryRow(ctx, communeQuery, normalizedName).Scan(
		&c.ID,
		&c.Name,
		&c.NormalizedName,
		&c.Region.ID,
		&c.Region.Number,
		&c.Region.RomanNumber,
		&c.Region.Label,
		&c.Region.Name,
	)
	if err != nil {
		return resolver.Commune{}, notFoundOr(err, "find commune")
	}
	return c, nil
}

// numberSelect hydrates a street number with its full relation chain.
const numberSelect = `
SELECT sn.id::text, sn.value,
	s.id::text, s.name, s.normalized_name,
	c.id::text, c.name, c.normalized_name,
	r.id::text, r.number, r.roman_number, r.label, r.name,
	pc.id::text, pc.code
FROM street_numbers sn
JOIN streets s ON s.id = sn.street_id
JOIN communes c ON c.id = s.commune_id
JOIN regions r ON r.id = c.region_id
LEFT JOIN postal_codes pc ON pc.id = sn.postal_code_id`

// FindStreetNumber implements resolver.Store.
func (s *Store) FindStreetNumber(
	ctx context.Context,
	value, streetNormalizedName, communeID string,
) (resolver.StreetNumber, error) {
	query := numberSelect + `
WHERE sn.value = $1 AND s.normalized_name = $2 AND c.id = $3`
	n, err := scanNumber(s.pool.QueryRow(ctx, query, value, streetNormalizedName, communeID))
	if err != nil {
		return resolver.StreetNumber{}, notFoundOr(err, "find street number")
	}
	return n, nil
}

// ReloadStreetNumber implements resolver.Store.
func (s *Store) ReloadStreetNumber(ctx context.Context, id string) (resolver.StreetNumber, error) {
	query := numberSelect + `
WHERE sn.id = $1`
	n, err := scanNumber(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return resolver.StreetNumber{}, notFoundOr(err, "reload street number")
	}
	return n, nil
}

// FindByPostalCode implements resolver.Store.
func (s *Store) FindByPostalCode(ctx context.Context, code string) ([]resolver.StreetNumber, error) {
	query := numberSelect + `
WHERE pc.code = $1
ORDER BY s.name, sn.value`
	rows, err := s.pool.Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("find by postal code: %w", err)
	}
	defer rows.Close()

	var out []resolver.StreetNumber
	for rows.Next() {
		n, err := scanNumber(rows)
		if err != nil {
			return nil, fmt.Errorf("scan street number row: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate street numbers: %w", err)
	}
	return out, nil
}

const (
	insertStreet = `
INSERT INTO streets (name, normalized_name, commune_id)
VALUES ($1, $2, $3)
ON CONFLICT (normalized_name, commune_id) DO NOTHING
RETURNING id::text, name`
	selectStreet = `
SELECT id::text, name FROM streets
WHERE normalized_name = $1 AND commune_id = $2`
)

// FindOrCreateStreet implements resolver.Store.
func (s *Store) FindOrCreateStreet(
	ctx context.Context,
	name, normalizedName string,
	commune resolver.Commune,
) (resolver.Street, error) {
	st := resolver.Street{NormalizedName: normalizedName, Commune: commune}
	err := s.pool.QueryRow(ctx, insertStreet, name, normalizedName, commune.ID).Scan(&st.ID, &st.Name)
	if conflict(err) {
		err = s.pool.QueryRow(ctx, selectStreet, normalizedName, commune.ID).Scan(&st.ID, &st.Name)
	}
	if err != nil {
		return resolver.Street{}, fmt.Errorf("find or create street: %w", err)
	}
	return st, nil
}

const (
	insertPostalCode = `
INSERT INTO postal_codes (code)
VALUES ($1)
ON CONFLICT (code) DO NOTHING
RETURNING id::text`
	selectPostalCode = `
SELECT id::text FROM postal_codes WHERE code = $1`
)

// FindOrCreatePostalCode implements resolver.Store.
func (s *Store) FindOrCreatePostalCode(ctx context.Context, code string) (resolver.PostalCode, error) {
	pc := resolver.PostalCode{Code: code}
	err := s.pool.QueryRow(ctx, insertPostalCode, code).Scan(&pc.ID)
	if conflict(err) {
		err = s.pool.QueryRow(ctx, selectPostalCode, code).Scan(&pc.ID)
	}
	if err != nil {
		return resolver.PostalCode{}, fmt.Errorf("find or create postal code: %w", err)
	}
	return pc, nil
}

// upsertStreetNumber attaches the postal code only when the row lacks one.
const upsertStreetNumber = `
INSERT INTO street_numbers (value, street_id, postal_code_id)
VALUES ($1, $2, $3)
ON CONFLICT (value, street_id) DO UPDATE
SET postal_code_id = COALESCE(street_numbers.postal_code_id, EXCLUDED.postal_code_id)
RETURNING id::text, postal_code_id::text`

const selectStreetNumberID = `
SELECT id::text, postal_code_id::text FROM street_numbers
WHERE value = $1 AND street_id = $2`

// FindOrCreateStreetNumber implements resolver.Store.
func (s *Store) FindOrCreateStreetNumber(
	ctx context.Context,
	value string,
	street resolver.Street,
	postalCode resolver.PostalCode,
) (resolver.StreetNumber, error) {
	var (
		id     string
		codeID *string
	)
	err := s.pool.QueryRow(ctx, upsertStreetNumber, value, street.ID, postalCode.ID).Scan(&id, &codeID)
	if conflict(err) {
		err = s.pool.QueryRow(ctx, selectStreetNumberID, value, street.ID).Scan(&id, &codeID)
	}
	if err != nil {
		return resolver.StreetNumber{}, fmt.Errorf("find or create street number: %w", err)
	}
	n := resolver.StreetNumber{ID: id, Value: value, Street: street}
	if codeID != nil && *codeID == postalCode.ID {
		pc := postalCode
		n.PostalCode = &pc
	}
	return n, nil
}

func scanNumber(row pgx.Row) (resolver.StreetNumber, error) {
	var (
		n      resolver.StreetNumber
		codeID *string
		code   *string
	)
	c := &n.Street.Commune
	err := row.Scan(
		&n.ID,
		&n.Value,
		&n.Street.ID,
		&n.Street.Name,
		&n.Street.NormalizedName,
		&c.ID,
		&c.Name,
		&c.NormalizedName,
		&c.Region.ID,
		&c.Region.Number,
		&c.Region.RomanNumber,
		&c.Region.Label,
		&c.Region.Name,
		&codeID,
		&code,
	)
	if err != nil {
		return resolver.StreetNumber{}, err
	}
	if codeID != nil && code != nil {
		n.PostalCode = &resolver.PostalCode{ID: *codeID, Code: *code}
	}
	return n, nil
}

// conflict reports whether an insert lost a race: either ON CONFLICT DO
// NOTHING returned no row, or another unique constraint fired.
func conflict(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, resolver.ErrNoRecord)
	}
	return fmt.Errorf("%s: %w", op, err)
}
