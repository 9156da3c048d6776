package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/postal-resolver/internal/config"
)

func withRuntime(t *testing.T, cfg *config.Config) {
	t.Helper()
	prev := loadRuntime
	loadRuntime = func(string) (*runtime, error) {
		return &runtime{cfg: cfg, logger: zap.NewNop()}, nil
	}
	t.Cleanup(func() { loadRuntime = prev })
}

func portalConfig(baseURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Portal: config.PortalConfig{
			BaseURL:               baseURL,
			SessionTimeoutSeconds: 2,
			LookupTimeoutSeconds:  2,
			SessionMode:           config.SessionModeHTTP,
		},
		Resolver: config.ResolverConfig{PersistTimeoutSeconds: 1},
	}
}

func TestLookupCommandPrintsPostalCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`<script>Liferay.authToken = 'tok';</script>`))
			return
		}
		_, _ = w.Write([]byte(`{"direcciones":[{"codPostal":"8260323"}]}`))
	}))
	defer srv.Close()
	withRuntime(t, portalConfig(srv.URL+"/codigo-postal"))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"lookup", "La Florida", "Las Acacias", "7700"})
	require.NoError(t, root.Execute())

	var got lookupOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, "8260323", got.PostalCode)
	require.Empty(t, got.Error)
}

func TestLookupCommandReportsFailure(t *testing.T) {
	withRuntime(t, portalConfig("http://127.0.0.1:1/codigo-postal"))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"lookup", "La Florida", "Las Acacias", "7700"})
	require.Error(t, root.Execute())

	var got lookupOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Empty(t, got.PostalCode)
	require.NotEmpty(t, got.Error)
}

func TestLookupCommandRequiresThreeArgs(t *testing.T) {
	withRuntime(t, portalConfig("http://127.0.0.1:1/codigo-postal"))

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"lookup", "La Florida"})
	require.Error(t, root.Execute())
}
