// Package inventory is the client for the hardware state service behind the
// API gateway - component listing, containment queries and membership
// filtering on positional component names.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/metal-toolbox/composer/internal/app"
	"github.com/metal-toolbox/composer/internal/metrics"
	"github.com/metal-toolbox/composer/internal/model"
	"github.com/metal-toolbox/composer/internal/store"
	"github.com/metal-toolbox/composer/internal/xname"
)

const pkgName = "internal/inventory"

var (
	// ErrInventoryQuery is returned when a hardware state service query fails.
	ErrInventoryQuery = errors.New("hardware state query returned error")

	// ErrInvalidXName is returned when a query is given a malformed
	// component name.
	ErrInvalidXName = errors.New("invalid component xname")
)

// Component is one hardware component known to the state service.
type Component struct {
	ID      string `json:"ID"`
	Type    string `json:"Type"`
	State   string `json:"State,omitempty"`
	Role    string `json:"Role,omitempty"`
	Enabled *bool  `json:"Enabled,omitempty"`
}

// XName returns the component's positional name.
func (c Component) XName() xname.XName { return xname.New(c.ID) }

// Client queries hardware components from the state service.
type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient returns a hardware state service client.
func NewClient(httpClient *http.Client, cfg *app.GatewayOptions, logger *logrus.Logger) (*Client, error) {
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, errors.Wrap(ErrInventoryQuery, "gateway endpoint URL error: "+err.Error())
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

func (c *Client) requestURL(elems ...string) string {
	elems = append([]string{"apis", "smd", "hsm", "v2"}, elems...)

	return c.endpoint.JoinPath(elems...).String()
}

// get runs one GET against the state service, decoding the JSON response
// into out.
func (c *Client) get(ctx context.Context, rawURL string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return errors.Wrap(ErrInventoryQuery, err.Error())
	}

	if len(params) > 0 {
		req.URL.RawQuery = params.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.GatewayRequestError("hsm", http.MethodGet)

		return errors.Wrap(ErrInventoryQuery, err.Error())
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.GatewayRequestError("hsm", http.MethodGet)

		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)

		return errors.Wrap(ErrInventoryQuery,
			"GET "+req.URL.Path+" returned status "+resp.Status+": "+buf.String())
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(ErrInventoryQuery, "decoding response body: "+err.Error())
	}

	return nil
}

// componentsEnvelope is the state service's component listing response.
type componentsEnvelope struct {
	Components []Component `json:"Components"`
}

// Components returns the components matching the given state service query
// parameters, all components when params is nil.
func (c *Client) Components(ctx context.Context, params url.Values) ([]Component, error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "Client.Components")
	defer span.End()

	var envelope componentsEnvelope
	if err := c.get(ctx, c.requestURL("State", "Components"), params, &envelope); err != nil {
		return nil, errors.Wrap(err, "failed to get components")
	}

	return envelope.Components, nil
}

// ComponentsByAncestor returns the components contained in the given
// ancestor component, optionally restricted to one component type.
func (c *Client) ComponentsByAncestor(ctx context.Context, ancestor xname.XName, componentType string) ([]Component, error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "Client.ComponentsByAncestor")
	defer span.End()

	if !ancestor.Valid() {
		return nil, errors.Wrap(ErrInvalidXName, ancestor.String())
	}

	var params url.Values
	if componentType != "" {
		params = url.Values{"type": []string{componentType}}
	}

	var envelope componentsEnvelope
	if err := c.get(ctx, c.requestURL("State", "Components", "Query", ancestor.String()), params, &envelope); err != nil {
		return nil, errors.Wrap(err, "failed to query components under "+ancestor.String())
	}

	return envelope.Components, nil
}

// NodeComponents returns the node components of the system, restricted to
// those contained in ancestor when one is given.
func (c *Client) NodeComponents(ctx context.Context, ancestor xname.XName) ([]Component, error) {
	if ancestor.Valid() {
		return c.ComponentsByAncestor(ctx, ancestor, "Node")
	}

	return c.Components(ctx, url.Values{"type": []string{"Node"}})
}

// ComponentXNames returns the positional names of components matching the
// given query parameters, skipping components with unparseable names.
func (c *Client) ComponentXNames(ctx context.Context, params url.Values) ([]xname.XName, error) {
	components, err := c.Components(ctx, params)
	if err != nil {
		return nil, err
	}

	names := make([]xname.XName, 0, len(components))

	for _, component := range components {
		name := component.XName()
		if !name.Valid() {
			c.logger.WithField("id", component.ID).Warn("skipping component with unparseable xname")

			continue
		}

		names = append(names, name)
	}

	return names, nil
}

// FilterMembers partitions the node components of the system against the
// given containment filters.
func (c *Client) FilterMembers(ctx context.Context, filters []xname.XName) (*xname.Matches, error) {
	nodes, err := c.NodeComponents(ctx, xname.XName{})
	if err != nil {
		return nil, err
	}

	members := make([]xname.XName, 0, len(nodes))
	for _, node := range nodes {
		members = append(members, node.XName())
	}

	matches := xname.Partition(filters, members)

	return &matches, nil
}

// DesiredConfigurations returns the distinct configurations desired across
// the components matching the given query parameters.
func (c *Client) DesiredConfigurations(ctx context.Context, configClient store.Client, params url.Values) ([]*model.Configuration, error) {
	names, err := c.ComponentXNames(ctx, params)
	if err != nil {
		return nil, err
	}

	return configClient.ConfigurationsForComponents(ctx, names)
}
