package http_test

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpgw "github.com/aretw0/weave/pkg/adapters/http"
	"github.com/aretw0/weave/pkg/adapters/memory"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports/tests"
)

// newTestServer exposes the graph API backed by the in-memory gateway, in
// the same JSON shapes the real service answers with.
func newTestServer(t *testing.T) (*httptest.Server, *memory.Gateway, *requestLog) {
	t.Helper()
	backend := memory.NewGateway()
	backend.SeedGraph(tests.FixtureDocument())
	backend.SeedTemplates(tests.FixtureTemplates())
	log := &requestLog{}

	writeJSON := func(w stdhttp.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}
	writeErr := func(w stdhttp.ResponseWriter, status int, msg string) {
		writeJSON(w, status, map[string]string{"error": msg})
	}

	r := chi.NewRouter()
	r.Use(func(next stdhttp.Handler) stdhttp.Handler {
		return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
			log.record(req)
			next.ServeHTTP(w, req)
		})
	})

	r.Get("/api/graphs/{name}", func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
		doc, err := backend.FetchGraph(req.Context(), chi.URLParam(req, "name"))
		if err != nil {
			writeErr(w, stdhttp.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, stdhttp.StatusOK, doc)
	})
	r.Put("/api/graphs/{name}", func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
		var doc domain.Document
		if err := json.NewDecoder(req.Body).Decode(&doc); err != nil {
			writeErr(w, stdhttp.StatusBadRequest, "malformed document")
			return
		}
		baseline, err := backend.SaveGraph(req.Context(), &doc)
		if err != nil {
			writeErr(w, stdhttp.StatusConflict, err.Error())
			return
		}
		writeJSON(w, stdhttp.StatusOK, baseline)
	})
	r.Get("/api/templates", func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
		templates, _ := backend.FetchTemplates(req.Context())
		writeJSON(w, stdhttp.StatusOK, templates)
	})
	r.Get("/api/nodes/{id}/status", func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
		update, _ := backend.FetchNodeStatus(req.Context(), chi.URLParam(req, "id"))
		writeJSON(w, stdhttp.StatusOK, update)
	})
	r.Get("/api/nodes/{id}/state", func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
		state, _ := backend.FetchNodeState(req.Context(), chi.URLParam(req, "id"))
		writeJSON(w, stdhttp.StatusOK, state)
	})
	r.Put("/api/nodes/{id}/state", func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
		var state map[string]any
		if err := json.NewDecoder(req.Body).Decode(&state); err != nil {
			writeErr(w, stdhttp.StatusBadRequest, "malformed state")
			return
		}
		backend.PutNodeState(req.Context(), chi.URLParam(req, "id"), state)
		w.WriteHeader(stdhttp.StatusNoContent)
	})
	r.Post("/api/nodes/{id}/provision", func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
		backend.Provision(req.Context(), chi.URLParam(req, "id"))
		w.WriteHeader(stdhttp.StatusAccepted)
	})
	r.Post("/api/nodes/{id}/deprovision", func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
		backend.Deprovision(req.Context(), chi.URLParam(req, "id"))
		w.WriteHeader(stdhttp.StatusAccepted)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, backend, log
}

type requestLog struct {
	mu      sync.Mutex
	headers []stdhttp.Header
}

func (l *requestLog) record(req *stdhttp.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.headers = append(l.headers, req.Header.Clone())
}

func (l *requestLog) last() stdhttp.Header {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.headers[len(l.headers)-1]
}

func TestHTTPGateway_Contract(t *testing.T) {
	srv, _, _ := newTestServer(t)
	gw := httpgw.NewGateway(srv.URL)
	tests.GatewayContractTest(t, gw)
}

func TestHTTPGateway_BearerToken(t *testing.T) {
	srv, _, log := newTestServer(t)
	gw := httpgw.NewGateway(srv.URL, httpgw.WithAPIKey("sekrit"))

	_, err := gw.FetchTemplates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer sekrit", log.last().Get("Authorization"))
}

func TestHTTPGateway_SurfacesServerErrorMessage(t *testing.T) {
	srv, _, _ := newTestServer(t)
	gw := httpgw.NewGateway(srv.URL)

	_, err := gw.FetchGraph(context.Background(), "does-not-exist")
	require.Error(t, err)
	// The server's own message must reach the caller, not a generic code.
	assert.Contains(t, err.Error(), "not found")
}

func TestHTTPGateway_NonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
		stdhttp.Error(w, "upstream exploded", stdhttp.StatusBadGateway)
	}))
	defer srv.Close()

	gw := httpgw.NewGateway(srv.URL)
	_, err := gw.FetchTemplates(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestHTTPGateway_EscapesIdentifiers(t *testing.T) {
	srv, backend, _ := newTestServer(t)
	doc := tests.FixtureDocument()
	doc.Name = "demo graph"
	backend.SeedGraph(doc)

	gw := httpgw.NewGateway(srv.URL)
	got, err := gw.FetchGraph(context.Background(), "demo graph")
	require.NoError(t, err)
	assert.Equal(t, "demo graph", got.Name)
}
