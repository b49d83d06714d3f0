package models

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pms-api/preview"

	"github.com/stretchr/testify/require"
)

func TestRemoteStore_Fetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/documents/doc-1/download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/tiff")
		w.Header().Set("Content-Disposition", `attachment; filename="scan 1.tif"`)
		w.Write([]byte("II*\x00"))
	})
	mux.HandleFunc("/documents/gone/download", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/documents/missing-on-share/download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("File not found: \\\\share\\scan.tif"))
	})
	mux.HandleFunc("/documents/broken/download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})
	mux.HandleFunc("/documents/huge/download", func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 64))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	store := NewRemoteStore(server.URL+"/", 5*time.Second, 32)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		req := require.New(t)

		doc, err := store.Fetch(ctx, "doc-1")

		req.NoError(err)
		req.Equal("doc-1", doc.ID)
		req.Equal("scan 1.tif", doc.FileName)
		req.Equal("image/tiff", doc.ContentType)
		req.Equal([]byte("II*\x00"), doc.Data)
	})

	t.Run("404 is not found", func(t *testing.T) {
		_, err := store.Fetch(ctx, "gone")

		require.True(t, preview.IsNotFound(err))
	})

	t.Run("Plain-text not found body", func(t *testing.T) {
		_, err := store.Fetch(ctx, "missing-on-share")

		require.True(t, preview.IsNotFound(err))
	})

	t.Run("Other status is a fetch error", func(t *testing.T) {
		req := require.New(t)

		_, err := store.Fetch(ctx, "broken")

		var fe *preview.FetchError
		req.ErrorAs(err, &fe)
		req.False(fe.NotFound)
		req.Contains(err.Error(), "502")
	})

	t.Run("Body over the limit", func(t *testing.T) {
		_, err := store.Fetch(ctx, "huge")

		require.Error(t, err)
		require.False(t, preview.IsNotFound(err))
	})

	t.Run("Unreachable server", func(t *testing.T) {
		dead := NewRemoteStore("http://127.0.0.1:1", time.Second, 0)

		_, err := dead.Fetch(ctx, "doc-1")

		var fe *preview.FetchError
		require.ErrorAs(t, err, &fe)
	})
}
