package gcs_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/cna-research/geoharvest/internal/sink/gcs"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newClient(t *testing.T, rt roundTripperFunc) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(
		context.Background(),
		option.WithoutAuthentication(),
		option.WithHTTPClient(&http.Client{Transport: rt}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // best-effort close
	return client
}

func jsonResponse(req *http.Request, code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": {"application/json"}},
		Request:    req,
	}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := gcs.New(nil, gcs.Config{Bucket: "b"})
	require.Error(t, err)

	client := newClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(req, http.StatusOK, `{}`), nil
	})
	_, err = gcs.New(client, gcs.Config{})
	require.Error(t, err)
}

func TestExists(t *testing.T) {
	t.Parallel()

	t.Run("present", func(t *testing.T) {
		client := newClient(t, func(req *http.Request) (*http.Response, error) {
			assert.Contains(t, req.URL.Path, "/b/harvest-bucket/o/")
			return jsonResponse(req, http.StatusOK, `{"name":"geofiles/GF-1.pdf"}`), nil
		})
		store, err := gcs.New(client, gcs.Config{Bucket: "harvest-bucket"})
		require.NoError(t, err)

		ok, err := store.Exists(context.Background(), "geofiles/GF-1.pdf")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("absent", func(t *testing.T) {
		client := newClient(t, func(req *http.Request) (*http.Response, error) {
			return jsonResponse(req, http.StatusNotFound, `{"error":{"code":404}}`), nil
		})
		store, err := gcs.New(client, gcs.Config{Bucket: "harvest-bucket"})
		require.NoError(t, err)

		ok, err := store.Exists(context.Background(), "geofiles/GF-2.pdf")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestWriteSetsDoesNotExistPrecondition(t *testing.T) {
	t.Parallel()

	var sawPrecondition bool
	client := newClient(t, func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "/upload/") {
			sawPrecondition = req.URL.Query().Get("ifGenerationMatch") == "0"
		}
		return jsonResponse(req, http.StatusOK, `{"name":"geofiles/GF-3.pdf"}`), nil
	})
	store, err := gcs.New(client, gcs.Config{Bucket: "harvest-bucket"})
	require.NoError(t, err)

	err = store.Write(context.Background(), "geofiles/GF-3.pdf", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.True(t, sawPrecondition, "upload must carry the no-overwrite precondition")
}

func TestWriteRejectsEmptyName(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(req, http.StatusOK, `{}`), nil
	})
	store, err := gcs.New(client, gcs.Config{Bucket: "harvest-bucket"})
	require.NoError(t, err)

	require.Error(t, store.Write(context.Background(), "  ", strings.NewReader("x")))
}
