package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testToken = "tok-123"

type fakePortal struct {
	lookupBody   string
	lookupStatus int
	landingHTML  string

	sessions atomic.Int32
	lookups  atomic.Int32

	gotCookie atomic.Value
	gotForm   atomic.Value
	gotQuery  atomic.Value
}

func newFakePortal(t *testing.T, lookupBody string) (*fakePortal, *httptest.Server) {
	t.Helper()
	fp := &fakePortal{
		lookupBody:   lookupBody,
		lookupStatus: http.StatusOK,
		landingHTML:  fmt.Sprintf(`<html><script>Liferay.authToken = '%s';</script></html>`, testToken),
	}
	srv := httptest.NewServer(http.HandlerFunc(fp.serve))
	t.Cleanup(srv.Close)
	return fp, srv
}

func (fp *fakePortal) serve(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		fp.sessions.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "sess-1"})
		http.SetCookie(w, &http.Cookie{Name: "__uzma", Value: "uz-a"})
		http.SetCookie(w, &http.Cookie{Name: "_ga", Value: "tracking"})
		_, _ = w.Write([]byte(fp.landingHTML))
	case http.MethodPost:
		fp.lookups.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fp.gotCookie.Store(r.Header.Get("Cookie"))
		fp.gotForm.Store(r.PostForm)
		fp.gotQuery.Store(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fp.lookupStatus)
		_, _ = w.Write([]byte(fp.lookupBody))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func testConfig(srv *httptest.Server) Config {
	return Config{
		BaseURL:        srv.URL + "/codigo-postal",
		SessionTimeout: 2 * time.Second,
		LookupTimeout:  2 * time.Second,
	}
}

func TestLookupFindsPostalCode(t *testing.T) {
	t.Parallel()

	fp, srv := newFakePortal(t, `{"direcciones":[{"codPostal":"8260323"}]}`)
	client := NewClient(testConfig(srv), nil, nil)

	outcome := client.Lookup(context.Background(), "La Florida", "Las Acácias", "7700")
	require.True(t, outcome.OK(), "unexpected error: %v", outcome.Err)
	require.Equal(t, "8260323", outcome.PostalCode)
	require.EqualValues(t, 1, fp.sessions.Load())
	require.EqualValues(t, 1, fp.lookups.Load())

	require.Equal(t,
		"__uzma=uz-a; JSESSIONID=sess-1; COOKIE_SUPPORT=true; GUEST_LANGUAGE_ID=es_ES",
		fp.gotCookie.Load())

	form := fp.gotForm.Load().(url.Values)
	prefix := "_" + DefaultPortletID + "_"
	require.Equal(t, []string{"LA FLORIDA"}, form[prefix+"comuna"])
	require.Equal(t, []string{"LAS ACACIAS"}, form[prefix+"calle"])
	require.Equal(t, []string{"7700"}, form[prefix+"numero"])
	require.Equal(t, []string{testToken}, form["p_auth"])

	query := fp.gotQuery.Load().(url.Values)
	require.Equal(t, []string{DefaultPortletID}, query["p_p_id"])
	require.Equal(t, []string{"2"}, query["p_p_lifecycle"])
	require.Equal(t, []string{"COOKIES_RESOURCE_ACTION"}, query["p_p_resource_id"])
	require.Equal(t, []string{"CMD_ADD_COOKIE"}, query["_"+DefaultPortletID+"_cmd"])
}

func TestLookupEmbeddedResponse(t *testing.T) {
	t.Parallel()

	_, srv := newFakePortal(t, `{"currentDir":"{\"codPostal\":\"7500000\"}"}`)
	client := NewClient(testConfig(srv), nil, nil)

	outcome := client.Lookup(context.Background(), "Providencia", "Los Leones", "100")
	require.True(t, outcome.OK())
	require.Equal(t, "7500000", outcome.PostalCode)
}

func TestLookupEmptyResponseIsNotFound(t *testing.T) {
	t.Parallel()

	_, srv := newFakePortal(t, `{"direcciones":[]}`)
	client := NewClient(testConfig(srv), nil, nil)

	outcome := client.Lookup(context.Background(), "La Florida", "Nowhere", "1")
	require.False(t, outcome.OK())
	require.ErrorIs(t, outcome.Err, ErrNotFound)
}

func TestLookupMissingTokenIsSessionError(t *testing.T) {
	t.Parallel()

	fp, srv := newFakePortal(t, `{"direcciones":[{"codPostal":"8260323"}]}`)
	fp.landingHTML = "<html>maintenance</html>"
	client := NewClient(testConfig(srv), nil, nil)

	outcome := client.Lookup(context.Background(), "La Florida", "Las Acacias", "7700")
	require.False(t, outcome.OK())
	require.ErrorIs(t, outcome.Err, ErrSession)
	require.Zero(t, fp.lookups.Load())
}

func TestLookupServerErrorFails(t *testing.T) {
	t.Parallel()

	fp, srv := newFakePortal(t, `oops`)
	fp.lookupStatus = http.StatusInternalServerError
	client := NewClient(testConfig(srv), nil, nil)

	outcome := client.Lookup(context.Background(), "La Florida", "Las Acacias", "7700")
	require.False(t, outcome.OK())
	require.Error(t, outcome.Err)
}

type stubSessions struct {
	sess Session
	err  error
}

func (s stubSessions) Session(context.Context) (Session, error) {
	return s.sess, s.err
}

func TestLookupUsesProvidedSessionSource(t *testing.T) {
	t.Parallel()

	fp, srv := newFakePortal(t, `{"direcciones":[{"codPostal":"8260323"}]}`)
	sessions := stubSessions{sess: Session{
		Cookies:   []*http.Cookie{{Name: "SERVER_ID", Value: "browser"}},
		AuthToken: "from-browser",
	}}
	client := NewClient(testConfig(srv), sessions, nil)

	outcome := client.Lookup(context.Background(), "La Florida", "Las Acacias", "7700")
	require.True(t, outcome.OK())
	require.Zero(t, fp.sessions.Load())
	require.Equal(t, "SERVER_ID=browser; COOKIE_SUPPORT=true; GUEST_LANGUAGE_ID=es_ES", fp.gotCookie.Load())
	form := fp.gotForm.Load().(url.Values)
	require.Equal(t, []string{"from-browser"}, form["p_auth"])
}

func TestLookupKeepsSessionSourceErrorChain(t *testing.T) {
	t.Parallel()

	errNoHandle := errors.New("no browser")
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1/codigo-postal"}, stubSessions{err: errNoHandle}, nil)

	outcome := client.Lookup(context.Background(), "La Florida", "Las Acacias", "7700")
	require.ErrorIs(t, outcome.Err, ErrSession)
	require.ErrorIs(t, outcome.Err, errNoHandle)
}

func TestLookupHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	_, srv := newFakePortal(t, `{"direcciones":[{"codPostal":"8260323"}]}`)
	cfg := testConfig(srv)
	cfg.RequestsPerSecond = 0.001
	client := NewClient(cfg, nil, nil)

	// The first call drains the single burst token.
	require.True(t, client.Lookup(context.Background(), "La Florida", "Las Acacias", "7700").OK())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	outcome := client.Lookup(ctx, "La Florida", "Las Acacias", "7700")
	require.False(t, outcome.OK())
	require.Error(t, outcome.Err)
}
