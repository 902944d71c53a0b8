// Package catalog resolves installed product entries to the source of their
// configuration content.
package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/metal-toolbox/composer/internal/app"
	"github.com/metal-toolbox/composer/internal/metrics"
	"github.com/metal-toolbox/composer/internal/model"
)

const pkgName = "internal/catalog"

// ErrCatalogQuery is returned when a product catalog query fails.
var ErrCatalogQuery = errors.New("product catalog query returned error")

// productEntry is one versioned entry in the catalog's product listing.
type productEntry struct {
	Version       string `json:"version"`
	Configuration struct {
		CloneURL string `json:"clone_url"`
		Commit   string `json:"commit"`
	} `json:"configuration"`
}

// Client reads the product catalog service. Implements
// model.ProductCatalog.
type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient returns a product catalog client.
func NewClient(httpClient *http.Client, cfg *app.GatewayOptions, logger *logrus.Logger) (*Client, error) {
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, errors.Wrap(ErrCatalogQuery, "gateway endpoint URL error: "+err.Error())
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Product returns the catalog entry for the given product. An empty version
// selects the latest installed version.
func (c *Client) Product(ctx context.Context, name, version string) (model.Product, error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "Client.Product")
	defer span.End()

	rawURL := c.endpoint.JoinPath("apis", "product-catalog", "products", name).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return model.Product{}, errors.Wrap(ErrCatalogQuery, err.Error())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.GatewayRequestError("product-catalog", http.MethodGet)

		return model.Product{}, errors.Wrap(ErrCatalogQuery, err.Error())
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return model.Product{}, errors.Wrap(ErrCatalogQuery, "no such product: "+name)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.GatewayRequestError("product-catalog", http.MethodGet)

		return model.Product{}, errors.Wrap(ErrCatalogQuery,
			"GET "+req.URL.Path+" returned status "+resp.Status)
	}

	var entries []productEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return model.Product{}, errors.Wrap(ErrCatalogQuery, "decoding response body: "+err.Error())
	}

	entry, err := selectVersion(entries, version)
	if err != nil {
		return model.Product{}, errors.Wrap(err, "product "+name)
	}

	c.logger.WithFields(logrus.Fields{
		"product": name,
		"version": entry.Version,
	}).Debug("resolved product catalog entry")

	return model.Product{
		Name:     name,
		Version:  entry.Version,
		CloneURL: entry.Configuration.CloneURL,
		Commit:   entry.Configuration.Commit,
	}, nil
}

// selectVersion picks the requested version from the entries, the highest
// version when none is requested.
func selectVersion(entries []productEntry, version string) (productEntry, error) {
	if len(entries) == 0 {
		return productEntry{}, errors.Wrap(ErrCatalogQuery, "no installed versions")
	}

	if version != "" {
		for _, entry := range entries {
			if entry.Version == version {
				return entry, nil
			}
		}

		return productEntry{}, errors.Wrap(ErrCatalogQuery, "no installed version "+version)
	}

	latest := entries[0]
	for _, entry := range entries[1:] {
		if compareVersions(entry.Version, latest.Version) > 0 {
			latest = entry
		}
	}

	return latest, nil
}

// compareVersions orders catalog version strings by semantic version
// precedence, prereleases below their release. Entries that do not parse as
// a semantic version fall back to string order below every parseable one.
func compareVersions(a, b string) int {
	av, aErr := semver.NewVersion(a)
	bv, bErr := semver.NewVersion(b)

	switch {
	case aErr == nil && bErr == nil:
		return av.Compare(bv)
	case aErr == nil:
		return 1
	case bErr == nil:
		return -1
	default:
		return strings.Compare(a, b)
	}
}
