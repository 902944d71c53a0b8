package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	endpoint, err := url.Parse(srv.URL)
	require.NoError(t, err)

	logger := logrus.New()
	logger.Out = io.Discard

	return &Client{
		endpoint:   endpoint,
		httpClient: srv.Client(),
		logger:     logger,
	}
}

func productHandler(t *testing.T, entries []productEntry) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apis/product-catalog/products/cos", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(entries))
	})
}

func testEntries() []productEntry {
	older := productEntry{Version: "2.4.76"}
	older.Configuration.CloneURL = "https://vcs.internal/vcs/cray/cos-config-management.git"
	older.Configuration.Commit = "oldcommit"

	newer := productEntry{Version: "2.5.1"}
	newer.Configuration.CloneURL = "https://vcs.internal/vcs/cray/cos-config-management.git"
	newer.Configuration.Commit = "newcommit"

	return []productEntry{older, newer}
}

func TestProductLatestVersion(t *testing.T) {
	c := newTestClient(t, productHandler(t, testEntries()))

	product, err := c.Product(context.Background(), "cos", "")
	require.NoError(t, err)

	assert.Equal(t, "2.5.1", product.Version)
	assert.Equal(t, "newcommit", product.Commit)
}

func TestProductExplicitVersion(t *testing.T) {
	c := newTestClient(t, productHandler(t, testEntries()))

	product, err := c.Product(context.Background(), "cos", "2.4.76")
	require.NoError(t, err)

	assert.Equal(t, "2.4.76", product.Version)
	assert.Equal(t, "oldcommit", product.Commit)
}

func TestProductMissingVersion(t *testing.T) {
	c := newTestClient(t, productHandler(t, testEntries()))

	_, err := c.Product(context.Background(), "cos", "9.9.9")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCatalogQuery)
}

func TestProductNotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	c := newTestClient(t, handler)

	_, err := c.Product(context.Background(), "cos", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCatalogQuery)
}

func TestProductLatestVersionSkipsPrerelease(t *testing.T) {
	release := productEntry{Version: "2.0.0"}
	release.Configuration.Commit = "releasecommit"

	prerelease := productEntry{Version: "2.0.0-alpha"}
	prerelease.Configuration.Commit = "alphacommit"

	c := newTestClient(t, productHandler(t, []productEntry{release, prerelease}))

	product, err := c.Product(context.Background(), "cos", "")
	require.NoError(t, err)

	assert.Equal(t, "2.0.0", product.Version)
	assert.Equal(t, "releasecommit", product.Commit)
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"2.4.76", "2.5.1", -1},
		{"2.10.0", "2.9.0", 1},
		{"1.0.0", "1.0.0", 0},
		{"1.0", "1.0.1", -1},
		{"2.0.0-alpha", "2.0.0", -1},
		{"2.0.0-alpha", "2.0.0-beta", -1},
		{"not-semver", "1.0.0", -1},
		{"not-semver", "also-not-semver", 1},
	}

	for _, tc := range tests {
		got := compareVersions(tc.a, tc.b)

		switch {
		case tc.expected < 0:
			assert.Negative(t, got, "%s vs %s", tc.a, tc.b)
		case tc.expected > 0:
			assert.Positive(t, got, "%s vs %s", tc.a, tc.b)
		default:
			assert.Zero(t, got, "%s vs %s", tc.a, tc.b)
		}
	}
}
