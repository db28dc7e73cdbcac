package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/abacus/internal/types"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "No file uploaded"})
			return
		}
		defer f.Close()
		content, _ := io.ReadAll(f)
		if hdr.Filename != "claims.csv" || string(content) != "a,b\n1,2\n" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Unsupported file format"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "File uploaded, processing started", "id": "job-1"})
	})
	mux.HandleFunc("GET /api/results/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "job-1" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Dataset not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(types.Record{ID: "job-1", Status: types.StatusPending})
	})
	mux.HandleFunc("GET /api/datasets", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]types.Record{{ID: "job-2"}, {ID: "job-1"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSubmit(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL+"/", srv.Client())

	id, err := c.Submit(context.Background(), writeFile(t, "claims.csv", "a,b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
}

func TestSubmit_ServerRejects(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, srv.Client())

	_, err := c.Submit(context.Background(), writeFile(t, "claims.txt", "x"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Unsupported file format", apiErr.Message)
}

func TestSubmit_MissingFile(t *testing.T) {
	c := New("http://127.0.0.1:1", nil)
	_, err := c.Submit(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGetJob(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, srv.Client())

	rec, err := c.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, rec.Status)

	_, err = c.GetJob(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListJobs(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, srv.Client())

	recs, err := c.ListJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "job-2", recs[0].ID)
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(addr, nil).GetJob(context.Background(), "job-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
