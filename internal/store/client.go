// Package store is the client for the configuration service behind the API
// gateway - configurations, sessions and per-component desired configuration
// state, in both the v2 and v3 wire schemas.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/metal-toolbox/composer/internal/app"
	"github.com/metal-toolbox/composer/internal/metrics"
	"github.com/metal-toolbox/composer/internal/model"
	"github.com/metal-toolbox/composer/internal/xname"
)

// maxSessionNameLength is the longest session name the service accepts,
// inherited from kubernetes object naming limits.
const maxSessionNameLength = 45

// Client queries and modifies configurations, sessions and component
// desired-configuration state in one schema version of the service API.
type Client interface {
	SchemaVersion() model.SchemaVersion

	GetConfiguration(ctx context.Context, name string) (*model.Configuration, error)
	// PutConfiguration creates or updates the named configuration and
	// returns the configuration as the service stored it. With overwrite
	// disabled, updating an existing configuration is an error.
	PutConfiguration(ctx context.Context, name string, cfg *model.Configuration, overwrite bool) (*model.Configuration, error)
	DeleteConfiguration(ctx context.Context, name string) error
	// ListConfigurations returns an iterator over all configurations.
	ListConfigurations(ctx context.Context) *ConfigurationIterator

	CreateSession(ctx context.Context, spec SessionSpec) (*Session, error)
	GetSession(ctx context.Context, name string) (*Session, error)
	DeleteSession(ctx context.Context, name string) error

	// ComponentDesiredConfig returns the name of the configuration desired
	// for a component, empty when none is set.
	ComponentDesiredConfig(ctx context.Context, component xname.XName) (string, error)
	SetComponentDesiredConfig(ctx context.Context, component xname.XName, configName string) error
	// ConfigurationsForComponents returns the distinct configurations
	// desired across the given components. Components that cannot be
	// queried are logged and skipped.
	ConfigurationsForComponents(ctx context.Context, components []xname.XName) ([]*model.Configuration, error)
}

// client implements Client for one schema version.
type client struct {
	version    model.SchemaVersion
	endpoint   *url.URL
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient returns a configuration service client speaking the schema
// version selected in the gateway options.
func NewClient(httpClient *http.Client, cfg *app.GatewayOptions, logger *logrus.Logger) (Client, error) {
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, errors.Wrap(ErrGatewayQuery, "gateway endpoint URL error: "+err.Error())
	}

	version := model.SchemaVersion(cfg.APIVersion)
	if version == "" {
		version = model.SchemaV3
	}

	return &client{
		version:    version,
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

func (c *client) SchemaVersion() model.SchemaVersion { return c.version }

// requestURL joins the endpoint, the versioned base path and the resource
// path elements.
func (c *client) requestURL(elems ...string) string {
	elems = append([]string{"apis", "cfs", string(c.version)}, elems...)

	u := c.endpoint.JoinPath(elems...)

	return u.String()
}

func (c *client) registerMetric(method string) {
	metrics.GatewayRequestError("cfs", method)
}

// do runs one JSON request against the service. A nil body sends no request
// body; a non-nil out decodes the response body into it. Non-2xx responses
// come back as ErrGatewayQuery, 404 as ErrNotFound.
func (c *client) do(ctx context.Context, method, rawURL string, query url.Values, body, out any) error {
	var reqBody *bytes.Buffer

	if body != nil {
		reqBody = &bytes.Buffer{}
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return errors.Wrap(ErrGatewayQuery, "encoding request body: "+err.Error())
		}
	}

	var req *http.Request
	var err error

	if reqBody != nil {
		req, err = http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, rawURL, http.NoBody)
	}

	if err != nil {
		return errors.Wrap(ErrGatewayQuery, err.Error())
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.registerMetric(method)

		return errors.Wrap(ErrGatewayQuery, err.Error())
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.Wrap(ErrNotFound, method+" "+req.URL.Path)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.registerMetric(method)

		return apiError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(ErrGatewayQuery, "decoding response body: "+err.Error())
		}
	}

	return nil
}

// GetConfiguration returns the named configuration.
func (c *client) GetConfiguration(ctx context.Context, name string) (*model.Configuration, error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "client.GetConfiguration")
	defer span.End()

	var record map[string]any
	if err := c.do(ctx, http.MethodGet, c.requestURL("configurations", name), nil, nil, &record); err != nil {
		return nil, errors.Wrap(err, "could not retrieve configuration "+name)
	}

	cfg, err := model.ConfigurationFromRecord(c.version, record)
	if err != nil {
		return nil, errors.Wrap(err, "could not retrieve configuration "+name)
	}

	return cfg, nil
}

// PutConfiguration creates or updates the named configuration.
func (c *client) PutConfiguration(ctx context.Context, name string, cfg *model.Configuration, overwrite bool) (*model.Configuration, error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "client.PutConfiguration")
	defer span.End()

	if !overwrite {
		_, err := c.GetConfiguration(ctx, name)
		if err == nil {
			return nil, errors.Wrap(ErrConfigurationExists,
				"configuration "+name+" already exists and will not be overwritten")
		}

		if !errors.Is(err, ErrNotFound) {
			return nil, errors.Wrap(err, "could not determine whether configuration "+name+" exists")
		}
	}

	var record map[string]any
	if err := c.do(ctx, http.MethodPut, c.requestURL("configurations", name), nil, cfg.MarshalRecord(), &record); err != nil {
		return nil, errors.Wrap(err, "could not save configuration "+name)
	}

	saved, err := model.ConfigurationFromRecord(c.version, record)
	if err != nil {
		return nil, errors.Wrap(err, "could not save configuration "+name)
	}

	return saved, nil
}

// DeleteConfiguration removes the named configuration.
func (c *client) DeleteConfiguration(ctx context.Context, name string) error {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "client.DeleteConfiguration")
	defer span.End()

	return c.do(ctx, http.MethodDelete, c.requestURL("configurations", name), nil, nil, nil)
}

// SessionSpec carries the parameters for a new session.
type SessionSpec struct {
	// NamePrefix prefixes the generated session name. Left empty the name
	// is a bare uuid.
	NamePrefix string
	// ConfigurationName selects the configuration the session applies.
	ConfigurationName string
	// TargetGroups maps inventory group names to their members.
	TargetGroups map[string][]string
}

// Session is one configuration session as reported by the service.
type Session struct {
	Name              string
	ConfigurationName string
	// Data is the raw session record.
	Data map[string]any
}

// sessionName composes a unique session name within the service's length
// limit, truncating an oversized prefix.
func (c *client) sessionName(prefix string) string {
	uuidStr := uuid.New().String()

	if prefix == "" {
		return uuidStr
	}

	// account for the "-" separating prefix from uuid
	prefixMaxLen := maxSessionNameLength - len(uuidStr) - 1
	if len(prefix) > prefixMaxLen {
		c.logger.WithFields(logrus.Fields{
			"prefix": prefix,
			"max":    prefixMaxLen,
		}).Warn("session name prefix is too long and will be truncated")

		prefix = prefix[:prefixMaxLen]
	}

	return prefix + "-" + uuidStr
}

// CreateSession starts a new configuration session against the target
// groups.
func (c *client) CreateSession(ctx context.Context, spec SessionSpec) (*Session, error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "client.CreateSession")
	defer span.End()

	groups := make([]map[string]any, 0, len(spec.TargetGroups))
	for group, members := range spec.TargetGroups {
		groups = append(groups, map[string]any{"name": group, "members": members})
	}

	body := map[string]any{
		"name": c.sessionName(spec.NamePrefix),
		c.version.JoinWords("configuration", "name"): spec.ConfigurationName,
		"target": map[string]any{
			"definition": "dynamic",
			"groups":     groups,
		},
	}

	var record map[string]any
	if err := c.do(ctx, http.MethodPost, c.requestURL("sessions"), nil, body, &record); err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}

	return sessionFromRecord(c.version, record), nil
}

// GetSession returns the named session.
func (c *client) GetSession(ctx context.Context, name string) (*Session, error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "client.GetSession")
	defer span.End()

	var record map[string]any
	if err := c.do(ctx, http.MethodGet, c.requestURL("sessions", name), nil, nil, &record); err != nil {
		return nil, errors.Wrap(err, "failed to get session "+name)
	}

	return sessionFromRecord(c.version, record), nil
}

// DeleteSession removes the named session.
func (c *client) DeleteSession(ctx context.Context, name string) error {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "client.DeleteSession")
	defer span.End()

	return c.do(ctx, http.MethodDelete, c.requestURL("sessions", name), nil, nil, nil)
}

func sessionFromRecord(version model.SchemaVersion, record map[string]any) *Session {
	session := &Session{Data: record}

	if name, ok := record["name"].(string); ok {
		session.Name = name
	}

	if configName, ok := record[version.JoinWords("configuration", "name")].(string); ok {
		session.ConfigurationName = configName
	}

	return session
}

// ComponentDesiredConfig returns the configuration name desired for the
// given component, empty when none is set.
func (c *client) ComponentDesiredConfig(ctx context.Context, component xname.XName) (string, error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "client.ComponentDesiredConfig")
	defer span.End()

	var record map[string]any
	if err := c.do(ctx, http.MethodGet, c.requestURL("components", component.String()), nil, nil, &record); err != nil {
		return "", errors.Wrap(err, "could not retrieve component "+component.String())
	}

	configName, _ := record[c.version.JoinWords("desired", "config")].(string)

	return configName, nil
}

// SetComponentDesiredConfig marks the named configuration as desired for the
// given component.
func (c *client) SetComponentDesiredConfig(ctx context.Context, component xname.XName, configName string) error {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "client.SetComponentDesiredConfig")
	defer span.End()

	body := map[string]any{
		c.version.JoinWords("desired", "config"): configName,
	}

	err := c.do(ctx, http.MethodPatch, c.requestURL("components", component.String()), nil, body, nil)

	return errors.Wrap(err, "could not update desired configuration of component "+component.String())
}

// ConfigurationsForComponents returns the distinct configurations desired
// across the given components, skipping components that fail to resolve.
func (c *client) ConfigurationsForComponents(ctx context.Context, components []xname.XName) ([]*model.Configuration, error) {
	seen := map[string]struct{}{}
	configs := []*model.Configuration{}

	for _, component := range components {
		configName, err := c.ComponentDesiredConfig(ctx, component)
		if err != nil {
			c.logger.WithError(err).WithField("component", component.String()).
				Warn("could not retrieve desired configuration for component")

			continue
		}

		if configName == "" {
			continue
		}

		c.logger.WithFields(logrus.Fields{
			"configuration": configName,
			"component":     component.String(),
		}).Info("found desired configuration for component")

		if _, ok := seen[configName]; ok {
			continue
		}

		seen[configName] = struct{}{}

		cfg, err := c.GetConfiguration(ctx, configName)
		if err != nil {
			return nil, err
		}

		configs = append(configs, cfg)
	}

	return configs, nil
}
