package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"demandcast/internal/pkg/httpclient"
	"demandcast/internal/service/registry/domain"
)

func newMLflowServer(t *testing.T) (*httptest.Server, *[]transitionRequest) {
	t.Helper()
	var transitions []transitionRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/mlflow/model-versions/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "name='demand'", r.URL.Query().Get("filter"))
		_ = json.NewEncoder(w).Encode(searchVersionsResponse{ModelVersions: []mlflowModelVersion{
			{Name: "demand", Version: "1", CreationTimestamp: 1000, CurrentStage: "Production", RunID: "run-1"},
			{Name: "demand", Version: "2", CreationTimestamp: 2000, CurrentStage: "Staging", RunID: "run-2"},
		}})
	})
	mux.HandleFunc("/api/2.0/mlflow/runs/get", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("run_id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"run":{"data":{"metrics":[{"key":"mape","value":9.5},{"key":"r2_score","value":0.91}]}}}`))
	})
	mux.HandleFunc("/api/2.0/mlflow/model-versions/get", func(w http.ResponseWriter, r *http.Request) {
		stage := "Staging"
		if r.URL.Query().Get("version") == "1" {
			stage = "Production"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"model_version": mlflowModelVersion{
			Name: "demand", Version: r.URL.Query().Get("version"), CurrentStage: stage,
		}})
	})
	mux.HandleFunc("/api/2.0/mlflow/model-versions/transition-stage", func(w http.ResponseWriter, r *http.Request) {
		var req transitionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		transitions = append(transitions, req)
		_, _ = w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &transitions
}

func newTestMLflowRegistry(url string) *MLflowRegistry {
	return NewMLflowRegistry(httpclient.NewClient(noop.NewTracerProvider().Tracer("test"), url))
}

func TestMLflowRegistry_GetVersions(t *testing.T) {
	srv, _ := newMLflowServer(t)
	reg := newTestMLflowRegistry(srv.URL)

	versions, err := reg.GetVersions(context.Background(), "demand", domain.StageStaging)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "2", versions[0].VersionID)
	assert.Equal(t, 0.91, versions[0].Metrics["r2"])
}

func TestMLflowRegistry_GetRunMetricsNotFound(t *testing.T) {
	srv, _ := newMLflowServer(t)
	_, err := newTestMLflowRegistry(srv.URL).GetRunMetrics(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMLflowRegistry_SwapProduction(t *testing.T) {
	srv, transitions := newMLflowServer(t)
	reg := newTestMLflowRegistry(srv.URL)

	archived, err := reg.SwapProduction(context.Background(), "demand", "2")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, archived)
	require.Len(t, *transitions, 1)
	assert.True(t, (*transitions)[0].ArchiveExistingVersions)
	assert.Equal(t, "Production", (*transitions)[0].Stage)
}

func TestMLflowRegistry_TransitionRejectsIllegal(t *testing.T) {
	srv, transitions := newMLflowServer(t)
	err := newTestMLflowRegistry(srv.URL).TransitionStage(context.Background(), "demand", "1", domain.StageStaging)
	assert.True(t, errors.Is(err, domain.ErrIllegalTransition))
	assert.Empty(t, *transitions)
}

func TestMLflowRegistry_ServerErrorIsRegistryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	_, err := newTestMLflowRegistry(srv.URL).GetVersions(context.Background(), "demand")
	assert.True(t, errors.Is(err, domain.ErrRegistry))
}

func TestNameFilter_Quoting(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"demand", "name='demand'"},
		{"o'brien", `name="o'brien"`},
		{`x' OR name LIKE '%`, `name="x' OR name LIKE '%"`},
	}
	for _, tc := range cases {
		got, err := nameFilter(tc.name)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := nameFilter(`a'b"c`)
	assert.True(t, errors.Is(err, domain.ErrRegistry))
}

func TestMLflowRegistry_GetVersionsQuotesName(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Query().Get("filter")
		_, _ = w.Write([]byte(`{"model_versions":[]}`))
	}))
	defer srv.Close()
	reg := newTestMLflowRegistry(srv.URL)

	_, err := reg.GetVersions(context.Background(), "o'brien")
	require.NoError(t, err)
	assert.Equal(t, `name="o'brien"`, seen)

	_, err = reg.GetVersions(context.Background(), `a'b"c`)
	assert.True(t, errors.Is(err, domain.ErrRegistry))
}
