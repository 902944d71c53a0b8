package app

import (
	"net/url"
	"os"
	"strings"

	"github.com/jeremywohl/flatten"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

const appName = "composer"

var (
	ErrConfig = errors.New("configuration error")
)

// Configuration holds application configuration read from a YAML file or set
// by env variables.
//
// nolint:govet // prefer readability over field alignment optimization for this case.
type Configuration struct {
	// LogLevel is the app verbose logging level.
	// one of - info, debug, trace
	LogLevel string `mapstructure:"log_level"`

	// GatewayOptions defines the API gateway client configuration parameters.
	GatewayOptions *GatewayOptions `mapstructure:"gateway"`

	// VCSAskPassPath is the path to a GIT_ASKPASS helper supplying version
	// control credentials to git.
	VCSAskPassPath string `mapstructure:"vcs_askpass_path"`
}

// GatewayOptions defines configuration for the API gateway clients.
type GatewayOptions struct {
	EndpointURL          *url.URL
	Endpoint             string   `mapstructure:"endpoint"`
	APIVersion           string   `mapstructure:"api_version"`
	OidcIssuerEndpoint   string   `mapstructure:"oidc_issuer_endpoint"`
	OidcAudienceEndpoint string   `mapstructure:"oidc_audience_endpoint"`
	OidcClientSecret     string   `mapstructure:"oidc_client_secret"`
	OidcClientID         string   `mapstructure:"oidc_client_id"`
	OidcClientScopes     []string `mapstructure:"oidc_client_scopes"`
	DisableOAuth         bool     `mapstructure:"disable_oauth"`
}

// LoadConfiguration loads application configuration
//
// Reads in the cfgFile when available and overrides from environment variables.
func (a *App) LoadConfiguration(cfgFile string) error {
	a.v.SetConfigType("yaml")
	a.v.SetEnvPrefix(appName)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	// these are initialized here so viper can read in configuration from env vars
	// once https://github.com/spf13/viper/pull/1429 is merged, this can go.
	a.Config.GatewayOptions = &GatewayOptions{}

	if cfgFile != "" {
		fh, err := os.Open(cfgFile)
		if err != nil {
			return errors.Wrap(ErrConfig, err.Error())
		}

		if err = a.v.ReadConfig(fh); err != nil {
			return errors.Wrap(ErrConfig, "ReadConfig error:"+err.Error())
		}
	}

	a.v.SetDefault("log.level", "info")

	if err := a.envBindVars(); err != nil {
		return errors.Wrap(ErrConfig, "env var bind error:"+err.Error())
	}

	if err := a.v.Unmarshal(a.Config); err != nil {
		return errors.Wrap(ErrConfig, "Unmarshal error: "+err.Error())
	}

	a.envVarAppOverrides()

	if err := a.envVarGatewayOverrides(); err != nil {
		return errors.Wrap(ErrConfig, "gateway env overrides error:"+err.Error())
	}

	return nil
}

func (a *App) envVarAppOverrides() {
	if a.v.GetString("log.level") != "" {
		a.Config.LogLevel = a.v.GetString("log.level")
	}

	if a.v.GetString("vcs.askpass.path") != "" {
		a.Config.VCSAskPassPath = a.v.GetString("vcs.askpass.path")
	}
}

// envBindVars binds environment variables to the struct
// without a configuration file being unmarshalled,
// this is a workaround for a viper bug,
//
// This can be replaced by the solution in https://github.com/spf13/viper/pull/1429
// once that PR is merged.
func (a *App) envBindVars() error {
	envKeysMap := map[string]interface{}{}
	if err := mapstructure.Decode(a.Config, &envKeysMap); err != nil {
		return err
	}

	// Flatten nested conf map
	flat, err := flatten.Flatten(envKeysMap, "", flatten.DotStyle)
	if err != nil {
		return errors.Wrap(err, "Unable to flatten config")
	}

	for k := range flat {
		if err := a.v.BindEnv(k); err != nil {
			return errors.Wrap(ErrConfig, "env var bind error: "+err.Error())
		}
	}

	return nil
}

// API gateway configuration options

// nolint:gocyclo // parameter validation is cyclomatic
func (a *App) envVarGatewayOverrides() error {
	if a.Config.GatewayOptions == nil {
		a.Config.GatewayOptions = &GatewayOptions{}
	}

	if a.v.GetString("gateway.endpoint") != "" {
		a.Config.GatewayOptions.Endpoint = a.v.GetString("gateway.endpoint")
	}

	if a.Config.GatewayOptions.Endpoint == "" {
		return errors.New("gateway.endpoint not defined")
	}

	endpointURL, err := url.Parse(a.Config.GatewayOptions.Endpoint)
	if err != nil {
		return errors.New("gateway endpoint URL error: " + err.Error())
	}

	a.Config.GatewayOptions.EndpointURL = endpointURL

	if a.v.GetString("gateway.api.version") != "" {
		a.Config.GatewayOptions.APIVersion = a.v.GetString("gateway.api.version")
	}

	if a.v.GetString("gateway.disable.oauth") != "" {
		a.Config.GatewayOptions.DisableOAuth = a.v.GetBool("gateway.disable.oauth")
	}

	if a.Config.GatewayOptions.DisableOAuth {
		return nil
	}

	if a.v.GetString("gateway.oidc.issuer.endpoint") != "" {
		a.Config.GatewayOptions.OidcIssuerEndpoint = a.v.GetString("gateway.oidc.issuer.endpoint")
	}

	if a.Config.GatewayOptions.OidcIssuerEndpoint == "" {
		return errors.New("gateway oidc.issuer.endpoint not defined")
	}

	if a.v.GetString("gateway.oidc.audience.endpoint") != "" {
		a.Config.GatewayOptions.OidcAudienceEndpoint = a.v.GetString("gateway.oidc.audience.endpoint")
	}

	if a.Config.GatewayOptions.OidcAudienceEndpoint == "" {
		return errors.New("gateway oidc.audience.endpoint not defined")
	}

	if a.v.GetString("gateway.oidc.client.secret") != "" {
		a.Config.GatewayOptions.OidcClientSecret = a.v.GetString("gateway.oidc.client.secret")
	}

	if a.Config.GatewayOptions.OidcClientSecret == "" {
		return errors.New("gateway.oidc.client.secret not defined")
	}

	if a.v.GetString("gateway.oidc.client.id") != "" {
		a.Config.GatewayOptions.OidcClientID = a.v.GetString("gateway.oidc.client.id")
	}

	if a.Config.GatewayOptions.OidcClientID == "" {
		return errors.New("gateway.oidc.client.id not defined")
	}

	if a.v.GetString("gateway.oidc.client.scopes") != "" {
		a.Config.GatewayOptions.OidcClientScopes = a.v.GetStringSlice("gateway.oidc.client.scopes")
	}

	if len(a.Config.GatewayOptions.OidcClientScopes) == 0 {
		return errors.New("gateway oidc.client.scopes not defined")
	}

	return nil
}
