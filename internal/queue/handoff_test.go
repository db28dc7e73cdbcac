package queue

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/codebuildervaibhav/abacus/internal/errors"
	"github.com/codebuildervaibhav/abacus/internal/types"
)

type memBlobs map[string][]byte

func (m memBlobs) Open(ref types.BlobRef) (io.ReadCloser, error) {
	b, ok := m[ref.Key]
	if !ok {
		return nil, apperrors.NotFoundf("upload %s not found", ref.Key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func TestHTTPHandOff_PostsMultipart(t *testing.T) {
	type received struct {
		path, datasetID, callback, filename, content string
	}
	got := make(chan received, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile(FieldFile)
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		got <- received{
			path:      r.URL.Path,
			datasetID: r.FormValue(FieldDatasetID),
			callback:  r.FormValue(FieldCallbackURL),
			filename:  hdr.Filename,
			content:   string(body),
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	blobs := memBlobs{"1-claims.csv": []byte("claim_id,zip_code\n1,12345\n")}
	h := NewHTTPHandOff(srv.URL+"/", "http://api.local:5000/", blobs, srv.Client())

	err := h.HandOff(context.Background(), NewTask("job-1", types.BlobRef{Key: "1-claims.csv", Name: "claims.csv"}))
	require.NoError(t, err)

	r := <-got
	assert.Equal(t, "/process", r.path)
	assert.Equal(t, "job-1", r.datasetID)
	assert.Equal(t, "http://api.local:5000/api/datasets/job-1/result", r.callback)
	assert.Equal(t, "claims.csv", r.filename)
	assert.Equal(t, "claim_id,zip_code\n1,12345\n", r.content)
}

func TestHTTPHandOff_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "File not found", http.StatusNotFound)
	}))
	defer srv.Close()

	h := NewHTTPHandOff(srv.URL, "http://api", memBlobs{"k": []byte("x")}, srv.Client())
	err := h.HandOff(context.Background(), NewTask("job-1", types.BlobRef{Key: "k"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "File not found")
}

func TestHTTPHandOff_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	h := NewHTTPHandOff(addr, "http://api", memBlobs{"k": []byte("x")}, nil)
	err := h.HandOff(context.Background(), NewTask("job-1", types.BlobRef{Key: "k"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker unreachable")
}

func TestHTTPHandOff_InvalidAddress(t *testing.T) {
	for _, base := range []string{"", "localhost:8000", "ftp://worker", "http://"} {
		h := NewHTTPHandOff(base, "http://api", memBlobs{"k": []byte("x")}, nil)
		err := h.HandOff(context.Background(), NewTask("job-1", types.BlobRef{Key: "k"}))
		assert.Errorf(t, err, "base %q", base)
	}
}

func TestHTTPHandOff_MissingBlob(t *testing.T) {
	h := NewHTTPHandOff("http://worker", "http://api", memBlobs{}, nil)
	err := h.HandOff(context.Background(), NewTask("job-1", types.BlobRef{Key: "gone"}))
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
