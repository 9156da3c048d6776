package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/postal-resolver/internal/metrics"
	"github.com/JakeFAU/postal-resolver/internal/normalize"
	"github.com/JakeFAU/postal-resolver/internal/pool"
)

const defaultPersistTimeout = 10 * time.Second

// Config controls Engine behavior.
type Config struct {
	// PersistTimeout bounds the write-back after a successful scrape.
	PersistTimeout time.Duration
}

// Engine resolves addresses from the store, falling back to the scraper.
type Engine struct {
	store   Store
	scraper Scraper
	cache   ResultCache
	cfg     Config
	logger  *zap.Logger
}

// NewEngine builds an Engine. cache may be nil.
func NewEngine(store Store, scraper Scraper, cache ResultCache, cfg Config, logger *zap.Logger) *Engine {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		scraper: scraper,
		cache:   cache,
		cfg:     cfg,
		logger:  logger,
	}
}

// Resolve returns the postal code for an address, scraping and persisting it
// on first sight.
func (e *Engine) Resolve(ctx context.Context, commune, street, number string) (Result, error) {
	res, outcome, err := e.resolve(ctx, commune, street, number)
	metrics.ObserveResolution(outcome)
	return res, err
}

func (e *Engine) resolve(ctx context.Context, commune, street, number string) (Result, string, error) {
	communeInput := strings.TrimSpace(commune)
	streetInput := strings.TrimSpace(street)
	numberValue := strings.TrimSpace(number)
	switch {
	case numberValue == "":
		return Result{}, metrics.OutcomeInvalidInput, fmt.Errorf("%w: street number is required", ErrInvalidInput)
	case communeInput == "":
		return Result{}, metrics.OutcomeInvalidInput, fmt.Errorf("%w: commune is required", ErrInvalidInput)
	case streetInput == "":
		return Result{}, metrics.OutcomeInvalidInput, fmt.Errorf("%w: street is required", ErrInvalidInput)
	}

	nCommune := normalize.Key(communeInput)
	nStreet := normalize.Key(streetInput)
	log := e.logger.With(
		zap.String("commune", nCommune),
		zap.String("street", nStreet),
		zap.String("number", numberValue),
	)
	key := CacheKey(nCommune, nStreet, numberValue)

	if res, ok := e.cached(ctx, key, log); ok {
		return res, metrics.OutcomeCacheHit, nil
	}

	c, err := e.store.FindCommuneByNormalizedName(ctx, nCommune)
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			return Result{}, metrics.OutcomeNotFound, fmt.Errorf("%w: commune %q", ErrNotFound, communeInput)
		}
		return Result{}, metrics.OutcomeError, fmt.Errorf("%w: find commune: %w", ErrPersistence, err)
	}

	existing, err := e.store.FindStreetNumber(ctx, numberValue, nStreet, c.ID)
	switch {
	case err == nil && existing.Resolved():
		log.Debug("store hit", zap.String("postal_code", existing.PostalCode.Code))
		res := ResultFromNumber(existing)
		e.remember(ctx, key, res, log)
		return res, metrics.OutcomeCacheHit, nil
	case err != nil && !errors.Is(err, ErrNoRecord):
		return Result{}, metrics.OutcomeError, fmt.Errorf("%w: find street number: %w", ErrPersistence, err)
	}

	// From here on the work is paid for; finish it even if the caller leaves.
	work := context.WithoutCancel(ctx)

	start := time.Now()
	outcome := e.scraper.Lookup(work, c.Name, streetInput, numberValue)
	if !outcome.OK() {
		metrics.ObserveScrape(metrics.ScrapeFailed, time.Since(start))
		reason := outcome.Err
		if reason == nil {
			reason = errors.New("empty postal code")
		}
		log.Warn("scrape failed", zap.Error(reason))
		if handleUnavailable(reason) {
			return Result{}, metrics.OutcomeHandleUnavailable, fmt.Errorf("%w: %w", ErrHandleUnavailable, reason)
		}
		return Result{}, metrics.OutcomeScrapeFailed, fmt.Errorf("%w: %w", ErrScrapeFailed, reason)
	}
	metrics.ObserveScrape(metrics.ScrapeSucceeded, time.Since(start))
	code := strings.TrimSpace(outcome.PostalCode)
	log.Info("scraped postal code", zap.String("postal_code", code))

	persistCtx, cancel := context.WithTimeout(work, e.cfg.PersistTimeout)
	defer cancel()
	res, err := e.persist(persistCtx, c, streetInput, nStreet, numberValue, code)
	if err != nil {
		return Result{}, metrics.OutcomeError, err
	}
	e.remember(persistCtx, key, res, log)
	return res, metrics.OutcomeScraped, nil
}

func (e *Engine) persist(ctx context.Context, c Commune, streetName, nStreet, number, code string) (Result, error) {
	st, err := e.store.FindOrCreateStreet(ctx, strings.ToUpper(streetName), nStreet, c)
	if err != nil {
		return Result{}, fmt.Errorf("%w: street: %w", ErrPersistence, err)
	}
	pc, err := e.store.FindOrCreatePostalCode(ctx, code)
	if err != nil {
		return Result{}, fmt.Errorf("%w: postal code: %w", ErrPersistence, err)
	}
	link, err := e.store.FindOrCreateStreetNumber(ctx, number, st, pc)
	if err != nil {
		return Result{}, fmt.Errorf("%w: street number: %w", ErrPersistence, err)
	}
	full, err := e.store.ReloadStreetNumber(ctx, link.ID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: reload street number: %w", ErrPersistence, err)
	}
	return ResultFromNumber(full), nil
}

// FindByPostalCode lists every known address sharing a postal code.
func (e *Engine) FindByPostalCode(ctx context.Context, code string) ([]Result, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: postal code is required", ErrInvalidInput)
	}
	numbers, err := e.store.FindByPostalCode(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: find by postal code: %w", ErrPersistence, err)
	}
	if len(numbers) == 0 {
		return nil, fmt.Errorf("%w: postal code %q", ErrNotFound, trimmed)
	}
	out := make([]Result, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, ResultFromNumber(n))
	}
	return out, nil
}

func (e *Engine) cached(ctx context.Context, key string, log *zap.Logger) (Result, bool) {
	if e.cache == nil {
		return Result{}, false
	}
	res, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		log.Warn("result cache read failed", zap.Error(err))
		return Result{}, false
	}
	return res, ok
}

func (e *Engine) remember(ctx context.Context, key string, res Result, log *zap.Logger) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, key, res); err != nil {
		log.Warn("result cache write failed", zap.Error(err))
	}
}

// CacheKey builds the hot-cache key from already normalized parts.
func CacheKey(normalizedCommune, normalizedStreet, number string) string {
	return "postal:" + normalizedCommune + "|" + normalizedStreet + "|" + number
}

func handleUnavailable(err error) bool {
	return errors.Is(err, pool.ErrHandleCreation) ||
		errors.Is(err, pool.ErrExhausted) ||
		errors.Is(err, pool.ErrClosed)
}
