package store

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/metal-toolbox/composer/internal/model"
)

// ConfigurationIterator walks the configuration listing lazily. The v2
// schema returns the whole listing in one response; v3 pages it with a
// continuation token that the iterator threads through follow-up requests.
//
// A transport or decode failure poisons the iterator - every later Next
// call returns the same error.
type ConfigurationIterator struct {
	client *client

	// buffered records of the current page, consumed front to back
	pending []map[string]any

	// afterID is the v3 continuation token for the next page.
	afterID string

	// exhausted is set once the service has no further pages.
	exhausted bool

	err error
}

// ListConfigurations returns an iterator over all configurations. No request
// is made until the first Next call.
func (c *client) ListConfigurations(context.Context) *ConfigurationIterator {
	return &ConfigurationIterator{client: c}
}

// Next returns the next configuration, or nil once the listing is
// exhausted.
func (it *ConfigurationIterator) Next(ctx context.Context) (*model.Configuration, error) {
	if it.err != nil {
		return nil, it.err
	}

	if len(it.pending) == 0 && !it.exhausted {
		if err := it.fetch(ctx); err != nil {
			it.err = err

			return nil, err
		}
	}

	if len(it.pending) == 0 {
		return nil, nil
	}

	record := it.pending[0]
	it.pending = it.pending[1:]

	cfg, err := model.ConfigurationFromRecord(it.client.version, record)
	if err != nil {
		it.err = err

		return nil, err
	}

	return cfg, nil
}

// fetch retrieves the next page into the pending buffer.
func (it *ConfigurationIterator) fetch(ctx context.Context) error {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "ConfigurationIterator.fetch")
	defer span.End()

	rawURL := it.client.requestURL("configurations")

	if it.client.version == model.SchemaV2 {
		// one unpaged response
		it.exhausted = true

		var records []map[string]any
		if err := it.client.do(ctx, http.MethodGet, rawURL, nil, nil, &records); err != nil {
			return errors.Wrap(err, "could not list configurations")
		}

		it.pending = records

		return nil
	}

	var query url.Values
	if it.afterID != "" {
		query = url.Values{it.client.version.JoinWords("after", "id"): []string{it.afterID}}
	}

	var page struct {
		Configurations []map[string]any `json:"configurations"`
		Next           *struct {
			AfterID string `json:"after_id"`
		} `json:"next"`
	}

	if err := it.client.do(ctx, http.MethodGet, rawURL, query, nil, &page); err != nil {
		return errors.Wrap(err, "could not list configurations")
	}

	it.pending = page.Configurations

	if page.Next == nil || page.Next.AfterID == "" {
		it.exhausted = true
	} else {
		it.afterID = page.Next.AfterID
	}

	return nil
}
