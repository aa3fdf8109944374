package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlstn/go-odata-sql/internal/config"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Driver:      config.DriverMemory,
		Namespace:   "Demo",
		MaxPageSize: 2,
		LogLevel:    "error",
		LogFormat:   "text",
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestDemoService(t *testing.T) {
	cfg := memoryConfig(t)
	svc, closeEngine, err := newService(context.Background(), cfg, cfg.NewLogger(&bytes.Buffer{}))
	require.NoError(t, err)
	defer closeEngine()

	assert.Equal(t, []string{"ProductDescriptions", "Products"}, svc.EntitySets())

	req := httptest.NewRequest(http.MethodGet, "/ProductDescriptions(ProductID=2,LanguageKey='DE')?$format=json", nil)
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"Text":"Kabellose Maus"`)

	req = httptest.NewRequest(http.MethodGet, "/Products?$filter=Category%20eq%20'Electronics'&$format=json", nil)
	rec = httptest.NewRecorder()
	svc.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"@odata.nextLink":"http://example.com/Products?`)
}

func TestDemoServiceWithServerTiming(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.ServerTiming = true
	svc, closeEngine, err := newService(context.Background(), cfg, cfg.NewLogger(&bytes.Buffer{}))
	require.NoError(t, err)
	defer closeEngine()

	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/Products/$count", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Server-Timing"))
}

func TestTablesCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"tables", "--driver", "memory"})

	require.NoError(t, root.Execute())
	assert.Equal(t, []string{"ProductDescriptions", "Products"}, strings.Fields(out.String()))
}
