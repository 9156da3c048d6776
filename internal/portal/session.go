package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gocolly/colly/v2"
)

// ErrSession marks a failure to open a portal session.
var ErrSession = errors.New("portal session failed")

var authTokenPattern = regexp.MustCompile(`Liferay\.authToken\s*=\s*'([^']+)'`)

// sessionCookies are forwarded to the lookup request, in this order.
var sessionCookies = []string{"__uzma", "__uzmb", "__uzme", "JSESSIONID", "SERVER_ID"}

// Session is the state the portal requires before it answers a lookup.
type Session struct {
	Cookies   []*http.Cookie
	AuthToken string
}

// SessionSource opens portal sessions.
type SessionSource interface {
	Session(ctx context.Context) (Session, error)
}

// ExtractAuthToken pulls the anti-forgery token out of the landing page HTML.
func ExtractAuthToken(html string) (string, error) {
	m := authTokenPattern.FindStringSubmatch(html)
	if len(m) < 2 || m[1] == "" {
		return "", fmt.Errorf("%w: auth token not found", ErrSession)
	}
	return m[1], nil
}

// CookieHeader renders the allow-listed cookies plus the fixed locale pair.
// Later cookies with the same name win.
func CookieHeader(cookies []*http.Cookie) string {
	jar := make(map[string]string, len(cookies))
	for _, c := range cookies {
		if c != nil && c.Value != "" {
			jar[c.Name] = c.Value
		}
	}
	pairs := make([]string, 0, len(sessionCookies)+2)
	for _, name := range sessionCookies {
		if v, ok := jar[name]; ok {
			pairs = append(pairs, name+"="+v)
		}
	}
	pairs = append(pairs, "COOKIE_SUPPORT=true", "GUEST_LANGUAGE_ID=es_ES")
	return strings.Join(pairs, "; ")
}

// HTTPSessions opens sessions with a plain GET of the landing page.
type HTTPSessions struct {
	cfg       Config
	transport http.RoundTripper
}

// NewHTTPSessions builds an HTTP session source.
func NewHTTPSessions(cfg Config) *HTTPSessions {
	return &HTTPSessions{cfg: cfg.withDefaults(), transport: newHTTPTransport()}
}

// Session implements SessionSource.
func (s *HTTPSessions) Session(ctx context.Context) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SessionTimeout)
	defer cancel()

	var (
		body    string
		cookies []*http.Cookie
		respErr error
	)
	c := newCollector(s.cfg.UserAgent, s.cfg.SessionTimeout, s.transport)
	c.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
		if r.Headers != nil {
			cookies = (&http.Response{Header: *r.Headers}).Cookies()
		}
	})
	c.OnError(func(_ *colly.Response, err error) {
		respErr = err
	})

	if err := runCollector(ctx, func() error { return c.Visit(s.cfg.BaseURL) }, &respErr); err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrSession, err)
	}
	token, err := ExtractAuthToken(body)
	if err != nil {
		return Session{}, err
	}
	return Session{Cookies: cookies, AuthToken: token}, nil
}
