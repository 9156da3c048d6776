package browser

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/postal-resolver/internal/metrics"
	"github.com/JakeFAU/postal-resolver/internal/pool"
	"github.com/JakeFAU/postal-resolver/internal/portal"
)

const defaultSessionTimeout = 10 * time.Second

// NewPool builds a pool that launches browsers on demand and reports its
// evictions and occupancy to metrics.
func NewPool(opts Options, poolOpts pool.Options, logger *zap.Logger) *pool.Pool[*Browser] {
	if logger == nil {
		logger = zap.NewNop()
	}
	if poolOpts.OnEvict == nil {
		poolOpts.OnEvict = metrics.ObservePoolEviction
	}
	if poolOpts.OnStats == nil {
		poolOpts.OnStats = reportPoolStats
	}
	factory := func(ctx context.Context) (*Browser, error) {
		return Launch(ctx, opts)
	}
	return pool.New(factory, poolOpts, logger.Named("browser_pool"))
}

// handles is the part of pool.Pool that Sessions needs.
type handles interface {
	Acquire(ctx context.Context) (*Browser, error)
	Release(*Browser)
}

// Sessions is a portal.SessionSource that renders the landing page in a
// pooled browser.
type Sessions struct {
	pool    handles
	visit   func(ctx context.Context, b *Browser, url string, timeout time.Duration) (Page, error)
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

var _ portal.SessionSource = (*Sessions)(nil)

// NewSessions builds a browser-backed session source for baseURL.
func NewSessions(p *pool.Pool[*Browser], baseURL string, timeout time.Duration, logger *zap.Logger) *Sessions {
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{
		pool:    p,
		visit: func(ctx context.Context, b *Browser, url string, timeout time.Duration) (Page, error) {
			return b.Visit(ctx, url, timeout)
		},
		baseURL: baseURL,
		timeout: timeout,
		logger:  logger.Named("browser_sessions"),
	}
}

// Session implements portal.SessionSource. Pool errors are returned unwrapped
// so callers can tell a missing browser from a portal failure.
func (s *Sessions) Session(ctx context.Context) (portal.Session, error) {
	b, err := s.pool.Acquire(ctx)
	if err != nil {
		return portal.Session{}, err
	}
	defer s.pool.Release(b)

	page, err := s.visit(ctx, b, s.baseURL, s.timeout)
	if err != nil {
		s.logger.Warn("browser session failed", zap.Error(err))
		return portal.Session{}, err
	}
	token, err := portal.ExtractAuthToken(page.HTML)
	if err != nil {
		return portal.Session{}, err
	}
	return portal.Session{Cookies: page.Cookies, AuthToken: token}, nil
}

func reportPoolStats(st pool.Stats) {
	metrics.SetPoolHandles(st.Total, st.InUse)
}
