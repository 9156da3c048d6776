package portal

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// newCollector returns a single-use collector. Cookies are handled by hand so
// that only the allow-listed session cookies reach the portal.
func newCollector(userAgent string, timeout time.Duration, transport http.RoundTripper) *colly.Collector {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.DisableCookies()
	if userAgent != "" {
		c.UserAgent = userAgent
	}
	c.SetRequestTimeout(timeout)
	c.WithTransport(transport)
	return c
}

// runCollector executes visit and honors ctx cancellation while it runs.
func runCollector(ctx context.Context, visit func() error, respErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- visit()
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("portal request canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("portal request failed: %w", err)
		}
		if *respErr != nil {
			return fmt.Errorf("portal response failed: %w", *respErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
}
