// Package cmd holds the composer CLI commands.
package cmd

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/equinix-labs/otel-init-go/otelinit"
	"github.com/spf13/cobra"

	"github.com/metal-toolbox/composer/internal/app"
	"github.com/metal-toolbox/composer/internal/catalog"
	"github.com/metal-toolbox/composer/internal/inventory"
	"github.com/metal-toolbox/composer/internal/metrics"
	"github.com/metal-toolbox/composer/internal/store"
	"github.com/metal-toolbox/composer/internal/vcs"
	"github.com/metal-toolbox/composer/internal/version"
)

var (
	cfgFile       string
	logLevel      string
	enableMetrics bool
)

var rootCmd = &cobra.Command{
	Use:   "composer",
	Short: "composer manages declarative configuration layers for system components",
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "set logging level - info, debug, trace")
	rootCmd.PersistentFlags().BoolVar(&enableMetrics, "enable-metrics", false, "serve prometheus metrics on "+metrics.MetricsEndpoint)
}

// cliApp bundles the application with the gateway clients shared by the
// commands.
type cliApp struct {
	*app.App

	httpClient *http.Client
	store      store.Client
}

// bootstrap initializes the application and the configuration service
// client. The returned cancel func ends the command context on a TERM
// signal.
func bootstrap(ctx context.Context) (*cliApp, context.Context, context.CancelFunc) {
	composer, err := app.New(ctx, cfgFile, logLevel)
	if err != nil {
		log.Fatal(err)
	}

	if enableMetrics {
		version.ExportBuildInfoMetric()
		metrics.ListenAndServe()
	}

	ctx, otelShutdown := otelinit.InitOpenTelemetry(ctx, "composer")

	ctx, cancelFunc := context.WithCancel(ctx)

	// routine listens for termination signal and cancels the context
	go func() {
		<-composer.TermCh
		composer.Logger.Info("got TERM signal, exiting...")
		cancelFunc()
	}()

	httpClient, err := store.NewGatewayHTTPClient(ctx, composer.Config.GatewayOptions, composer.Logger)
	if err != nil {
		composer.Logger.Fatal(err)
	}

	client, err := store.NewClient(httpClient, composer.Config.GatewayOptions, composer.Logger)
	if err != nil {
		composer.Logger.Fatal(err)
	}

	cancel := func() {
		cancelFunc()
		otelShutdown(ctx)
	}

	cli := &cliApp{
		App:        composer,
		httpClient: httpClient,
		store:      client,
	}

	return cli, ctx, cancel
}

// inventory and catalog clients reuse the gateway transport

func (c *cliApp) newInventoryClient() *inventory.Client {
	client, err := inventory.NewClient(c.httpClient, c.Config.GatewayOptions, c.Logger)
	if err != nil {
		c.Logger.Fatal(err)
	}

	return client
}

func (c *cliApp) newCatalogClient() *catalog.Client {
	client, err := catalog.NewClient(c.httpClient, c.Config.GatewayOptions, c.Logger)
	if err != nil {
		c.Logger.Fatal(err)
	}

	return client
}

func (c *cliApp) newVCSClient() *vcs.Client {
	return vcs.NewClient(c.Logger, c.Config.VCSAskPassPath)
}

func (c *cliApp) exitOnError(err error) {
	if err != nil {
		c.Logger.Error(err)
		os.Exit(1)
	}
}
