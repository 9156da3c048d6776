package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/postal-resolver/internal/resolver"
)

type fakeResolver struct {
	result  resolver.Result
	results []resolver.Result
	err     error
	gotArgs []string
	panics  bool
}

func (f *fakeResolver) Resolve(_ context.Context, commune, street, number string) (resolver.Result, error) {
	if f.panics {
		panic("boom")
	}
	f.gotArgs = []string{commune, street, number}
	return f.result, f.err
}

func (f *fakeResolver) FindByPostalCode(_ context.Context, code string) ([]resolver.Result, error) {
	f.gotArgs = []string{code}
	return f.results, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func serve(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestResolveReturnsResult(t *testing.T) {
	t.Parallel()

	want := resolver.Result{
		ID:         "pc-1",
		Street:     "LAS ACACIAS",
		Number:     "7700",
		Commune:    "LA FLORIDA",
		Region:     "METROPOLITANA DE SANTIAGO",
		PostalCode: "8260323",
	}
	fake := &fakeResolver{result: want}
	s := NewServer(fake, nil, zap.NewNop())

	rec := serve(t, s, "/v1/postal-codes/resolve?commune=La+Florida&street=Las+Acacias&number=7700")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Equal(t, []string{"La Florida", "Las Acacias", "7700"}, fake.gotArgs)

	var got resolver.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, want, got)
	require.Contains(t, rec.Body.String(), `"postalCode":"8260323"`)
}

func TestResolveErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{name: "invalid", err: fmt.Errorf("%w: street number is required", resolver.ErrInvalidInput), status: http.StatusBadRequest, body: "street number is required"},
		{name: "not found", err: fmt.Errorf("%w: commune %q", resolver.ErrNotFound, "Atlantis"), status: http.StatusNotFound, body: "Atlantis"},
		{name: "scrape failed", err: fmt.Errorf("%w: portal down", resolver.ErrScrapeFailed), status: http.StatusBadGateway, body: "portal down"},
		{name: "no handle", err: fmt.Errorf("%w: pool: exhausted", resolver.ErrHandleUnavailable), status: http.StatusServiceUnavailable, body: "exhausted"},
		{name: "persistence", err: fmt.Errorf("%w: connection reset", resolver.ErrPersistence), status: http.StatusInternalServerError, body: "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := NewServer(&fakeResolver{err: tc.err}, nil, zap.NewNop())
			rec := serve(t, s, "/v1/postal-codes/resolve?commune=a&street=b&number=1")

			require.Equal(t, tc.status, rec.Code)
			require.Contains(t, rec.Body.String(), tc.body)
		})
	}
}

func TestPersistenceErrorsDoNotLeakDetails(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeResolver{err: errors.New("pq: password authentication failed")}, nil, zap.NewNop())
	rec := serve(t, s, "/v1/postal-codes/resolve?commune=a&street=b&number=1")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "password")
}

func TestFindByPostalCode(t *testing.T) {
	t.Parallel()

	fake := &fakeResolver{results: []resolver.Result{
		{Street: "LAS ACACIAS", Number: "7700", PostalCode: "8260323"},
		{Street: "LAS ACACIAS", Number: "7702", PostalCode: "8260323"},
	}}
	s := NewServer(fake, nil, zap.NewNop())

	rec := serve(t, s, "/v1/postal-codes/8260323")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"8260323"}, fake.gotArgs)
	var got []resolver.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
}

func TestFindByPostalCodeNotFound(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeResolver{err: resolver.ErrNotFound}, nil, zap.NewNop())
	rec := serve(t, s, "/v1/postal-codes/0000000")

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeResolver{}, map[string]Pinger{"store": fakePinger{}}, zap.NewNop())
	require.Equal(t, http.StatusOK, serve(t, s, "/healthz").Code)
	require.Equal(t, http.StatusOK, serve(t, s, "/readyz").Code)

	s = NewServer(&fakeResolver{}, map[string]Pinger{
		"store": fakePinger{},
		"cache": fakePinger{err: errors.New("connection refused")},
	}, zap.NewNop())
	rec := serve(t, s, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "cache")
	require.NotContains(t, rec.Body.String(), `"store"`)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeResolver{}, nil, zap.NewNop())
	serve(t, s, "/healthz")

	rec := serve(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeResolver{panics: true}, nil, zap.NewNop())
	rec := serve(t, s, "/v1/postal-codes/resolve?commune=a&street=b&number=1")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeResolver{}, nil, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}
