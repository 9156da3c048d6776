// Package portal looks up postal codes on the Correos de Chile web portal by
// replaying the AJAX call its postal-code form makes.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/postal-resolver/internal/normalize"
	"github.com/JakeFAU/postal-resolver/internal/resolver"
)

// Defaults match the portal as currently deployed.
const (
	DefaultBaseURL        = "https://www.correos.cl/codigo-postal"
	DefaultPortletID      = "cl_cch_codigopostal_portlet_CodigoPostalPortlet_INSTANCE_MloJQpiDsCw9"
	DefaultUserAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultSessionTimeout = 10 * time.Second
	DefaultLookupTimeout  = 15 * time.Second
)

// ErrNotFound marks a well-formed portal answer that carried no postal code.
var ErrNotFound = errors.New("postal code not found")

// Config controls how the portal is reached.
type Config struct {
	BaseURL        string
	PortletID      string
	UserAgent      string
	SessionTimeout time.Duration
	LookupTimeout  time.Duration
	// RequestsPerSecond throttles outbound lookups. Zero disables throttling.
	RequestsPerSecond float64
	Burst             int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.PortletID == "" {
		c.PortletID = DefaultPortletID
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = DefaultLookupTimeout
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

// Client implements resolver.Scraper against the portal.
type Client struct {
	cfg       Config
	sessions  SessionSource
	limiter   *rate.Limiter
	transport http.RoundTripper
	logger    *zap.Logger
}

var _ resolver.Scraper = (*Client)(nil)

// NewClient builds a Client. A nil sessions source falls back to HTTPSessions.
func NewClient(cfg Config, sessions SessionSource, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if sessions == nil {
		sessions = NewHTTPSessions(cfg)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		cfg:       cfg,
		sessions:  sessions,
		limiter:   rate.NewLimiter(limit, cfg.Burst),
		transport: newHTTPTransport(),
		logger:    logger.Named("portal"),
	}
}

// Lookup opens a fresh session and asks the portal for the postal code of an
// address. Every failure is reported through the returned Outcome.
func (c *Client) Lookup(ctx context.Context, commune, street, number string) resolver.Outcome {
	com := normalize.Key(commune)
	str := normalize.Key(street)
	num := normalize.Key(number)
	log := c.logger.With(zap.String("commune", com), zap.String("street", str), zap.String("number", num))

	if err := c.limiter.Wait(ctx); err != nil {
		return resolver.Failed(fmt.Errorf("portal throttle: %w", err))
	}

	sess, err := c.sessions.Session(ctx)
	if err != nil {
		log.Warn("portal session failed", zap.Error(err))
		if !errors.Is(err, ErrSession) {
			err = fmt.Errorf("%w: %w", ErrSession, err)
		}
		return resolver.Failed(err)
	}

	body, err := c.post(ctx, sess, com, str, num)
	if err != nil {
		log.Warn("portal lookup failed", zap.Error(err))
		return resolver.Failed(err)
	}

	decoded, err := decodeResponse(body)
	if err != nil {
		log.Warn("portal response unreadable", zap.Error(err))
		return resolver.Failed(err)
	}
	if decoded.kind == responseEmpty {
		log.Info("portal has no postal code for address")
		return resolver.Failed(ErrNotFound)
	}
	log.Debug("portal answered", zap.Stringer("shape", decoded.kind), zap.String("postal_code", decoded.code))
	return resolver.Found(decoded.code)
}

func (c *Client) post(ctx context.Context, sess Session, commune, street, number string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()

	prefix := "_" + c.cfg.PortletID + "_"
	form := map[string]string{
		prefix + "comuna": commune,
		prefix + "calle":  street,
		prefix + "numero": number,
		"p_auth":          sess.AuthToken,
	}
	cookie := CookieHeader(sess.Cookies)

	var (
		body    []byte
		respErr error
	)
	col := newCollector(c.cfg.UserAgent, c.cfg.LookupTimeout, c.transport)
	col.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Cookie", cookie)
		r.Headers.Set("X-Requested-With", "XMLHttpRequest")
	})
	col.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	col.OnError(func(_ *colly.Response, err error) {
		respErr = err
	})

	lookupURL, err := c.resourceURL()
	if err != nil {
		return nil, err
	}
	if err := runCollector(ctx, func() error { return col.Post(lookupURL, form) }, &respErr); err != nil {
		return nil, err
	}
	return body, nil
}

// resourceURL is the portlet resource endpoint the form posts to.
func (c *Client) resourceURL() (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse portal base url: %w", err)
	}
	q := u.Query()
	q.Set("p_p_id", c.cfg.PortletID)
	q.Set("p_p_lifecycle", "2")
	q.Set("p_p_state", "normal")
	q.Set("p_p_mode", "view")
	q.Set("p_p_resource_id", "COOKIES_RESOURCE_ACTION")
	q.Set("p_p_cacheability", "cacheLevelPage")
	q.Set("_"+c.cfg.PortletID+"_cmd", "CMD_ADD_COOKIE")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
