package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler, cfg Config) *BlobStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, cfg)
	require.NoError(t, err)
	return store
}

func TestPutObjectUploadsSnapshot(t *testing.T) {
	t.Parallel()
	const objectName = "snapshots/layout/shanghai/zhangjiang/1700000000.html"

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/rent-archive/o")
		assert.Equal(t, objectName, r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "<html>")
		assert.Contains(t, string(body), "text/html")

		fmt.Fprintln(w, `{ "name": "`+objectName+`", "bucket": "rent-archive" }`)
	})
	store := newTestStore(t, handler, Config{Bucket: "rent-archive", Prefix: "/snapshots/"})

	uri, err := store.PutObject(context.Background(), "layout/shanghai/zhangjiang/1700000000.html", "text/html; charset=utf-8", strings.NewReader("<html></html>"))
	require.NoError(t, err)
	require.Equal(t, "gs://rent-archive/"+objectName, uri)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	store := newTestStore(t, handler, Config{Bucket: "rent-archive"})

	_, err := store.PutObject(context.Background(), "layout/x.html", "text/html", strings.NewReader("x"))
	require.Error(t, err)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
	_, err = New(&storage.Client{}, Config{})
	require.Error(t, err)
}
