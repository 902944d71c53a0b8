package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/metal-toolbox/composer/internal/app"
)

const (
	// connectionTimeout is the maximum amount of time spent on each http connection to the API gateway.
	connectionTimeout = 30 * time.Second

	pkgName = "internal/store"
)

var (
	// ErrGatewayQuery is returned when a request through the API gateway fails.
	ErrGatewayQuery = errors.New("API gateway query returned error")

	// ErrNotFound is returned when the queried resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrConfigurationExists is returned when a configuration save would
	// overwrite an existing configuration without overwrite set.
	ErrConfigurationExists = errors.New("configuration already exists")
)

// NewGatewayHTTPClient returns a gateway retryable http client with Otel and Oauth wrapped in.
// The client is shared across the gateway service clients.
func NewGatewayHTTPClient(ctx context.Context, cfg *app.GatewayOptions, logger *logrus.Logger) (*http.Client, error) {
	// init retryable http client
	retryableClient := retryablehttp.NewClient()

	// set retryable HTTP client to be the otel http client to collect telemetry
	retryableClient.HTTPClient = otelhttp.DefaultClient

	// disable default debug logging on the retryable client
	if logger.Level < logrus.DebugLevel {
		retryableClient.Logger = nil
	} else {
		retryableClient.Logger = logger
	}

	if !cfg.DisableOAuth {
		// setup oidc provider
		provider, err := oidc.NewProvider(ctx, cfg.OidcIssuerEndpoint)
		if err != nil {
			return nil, err
		}

		clientID := "composer"

		if cfg.OidcClientID != "" {
			clientID = cfg.OidcClientID
		}

		// setup oauth configuration
		oauthConfig := clientcredentials.Config{
			ClientID:       clientID,
			ClientSecret:   cfg.OidcClientSecret,
			TokenURL:       provider.Endpoint().TokenURL,
			Scopes:         cfg.OidcClientScopes,
			EndpointParams: url.Values{"audience": []string{cfg.OidcAudienceEndpoint}},
		}

		// wrap OAuth transport, cookie jar in the retryable client
		oAuthclient := oauthConfig.Client(ctx)

		retryableClient.HTTPClient.Transport = oAuthclient.Transport
		retryableClient.HTTPClient.Jar = oAuthclient.Jar
	}

	httpClient := retryableClient.StandardClient()
	httpClient.Timeout = connectionTimeout

	return httpClient, nil
}

// apiError builds the error for a non-2xx gateway response, folding in the
// title and detail members of an application/problem+json body when the
// service sent one.
func apiError(resp *http.Response) error {
	msg := resp.Request.Method + " request to URL '" + resp.Request.URL.String() +
		"' failed with status code " + strconv.Itoa(resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(ErrGatewayQuery, msg)
	}

	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}

	if err := json.Unmarshal(body, &problem); err != nil {
		return errors.Wrap(ErrGatewayQuery, msg)
	}

	if problem.Title != "" {
		msg += ". " + problem.Title
	}

	if problem.Detail != "" {
		msg += " Detail: " + problem.Detail
	}

	return errors.Wrap(ErrGatewayQuery, msg)
}
