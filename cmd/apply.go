package cmd

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/metal-toolbox/composer/internal/metrics"
	"github.com/metal-toolbox/composer/internal/model"
	"github.com/metal-toolbox/composer/internal/store"
)

var cmdApply = &cobra.Command{
	Use:   "apply CONFIGURATION",
	Short: "Ensure a configuration layer is present in a configuration",
	Args:  cobra.ExactArgs(1),
}

// apply command flags
var (
	applyFlags layerFlags

	applyResolveBranch bool
	applyDryRun        bool
)

// layerFlags carries the layer parameters shared by apply and remove.
type layerFlags struct {
	cloneURL       string
	source         string
	layerName      string
	playbook       string
	commit         string
	branch         string
	product        string
	productVersion string
	requireDkms    bool
	inventoryLayer bool
}

func (f *layerFlags) spec(dkmsSet bool) model.LayerSpec {
	spec := model.LayerSpec{
		CloneURL: f.cloneURL,
		Source:   f.source,
		Name:     f.layerName,
		Playbook: f.playbook,
		Commit:   f.commit,
		Branch:   f.branch,
	}

	if dkmsSet {
		spec.RequireDkms = &f.requireDkms
	}

	return spec
}

func (f *layerFlags) kind() model.LayerKind {
	if f.inventoryLayer {
		return model.LayerKindInventory
	}

	return model.LayerKindConfig
}

// buildLayer constructs the desired layer from the command flags, consulting
// the product catalog when a product is named.
func buildLayer(ctx context.Context, cli *cliApp, flags *layerFlags, dkmsSet bool) *model.Layer {
	version := cli.store.SchemaVersion()

	if flags.product != "" {
		layer, err := model.LayerFromProduct(
			ctx,
			cli.newCatalogClient(),
			cli.Config.GatewayOptions.Endpoint,
			version,
			flags.kind(),
			flags.product,
			flags.productVersion,
			flags.spec(dkmsSet),
		)
		cli.exitOnError(err)

		return layer
	}

	layer, err := model.NewLayer(version, flags.kind(), flags.spec(dkmsSet))
	cli.exitOnError(err)

	return layer
}

func applyLayer(ctx context.Context, configName string) {
	cli, ctx, cancel := bootstrap(ctx)
	defer cancel()

	dkmsSet := cmdApply.Flags().Changed("require-dkms")
	desired := buildLayer(ctx, cli, &applyFlags, dkmsSet)

	if applyResolveBranch {
		cli.exitOnError(desired.ResolveBranchToCommit(ctx, cli.newVCSClient()))
	}

	cfg, err := cli.store.GetConfiguration(ctx, configName)
	if errors.Is(err, store.ErrNotFound) {
		cli.Logger.WithField("configuration", configName).Info("configuration does not exist, creating it")

		cfg = model.NewConfiguration(cli.store.SchemaVersion())
		err = nil
	}

	cli.exitOnError(err)

	cfg.SetLogger(cli.Logger.WithField("configuration", configName))

	if applyFlags.inventoryLayer {
		cfg.SetAdditionalInventory(desired)
	} else {
		cfg.EnsureLayer(desired, model.LayerStatePresent)
	}

	metrics.LayerReconcileCounter.WithLabelValues(
		string(model.LayerStatePresent), strconv.FormatBool(cfg.Changed()),
	).Inc()

	if !cfg.Changed() {
		return
	}

	if applyDryRun {
		cli.Logger.Info("dry run, configuration changes not saved")

		return
	}

	saved, err := cli.store.PutConfiguration(ctx, configName, cfg, true)
	cli.exitOnError(err)

	cli.Logger.WithField("configuration", saved.Name()).Info("configuration updated")
}

func init() {
	// assigned here rather than in the composite literal to avoid an
	// initialization cycle between cmdApply and applyLayer
	cmdApply.Run = func(cmd *cobra.Command, args []string) {
		applyLayer(cmd.Context(), args[0])
	}

	rootCmd.AddCommand(cmdApply)

	registerLayerFlags(cmdApply, &applyFlags)

	cmdApply.Flags().BoolVar(&applyResolveBranch, "resolve-branch", false, "pin the layer branch to its current head commit before saving")
	cmdApply.Flags().BoolVar(&applyDryRun, "dry-run", false, "reconcile without saving the configuration")
}

func registerLayerFlags(cmd *cobra.Command, flags *layerFlags) {
	cmd.Flags().StringVar(&flags.cloneURL, "clone-url", "", "clone URL of the configuration content repository")
	cmd.Flags().StringVar(&flags.source, "source", "", "named content source (v3 schema only)")
	cmd.Flags().StringVar(&flags.layerName, "layer-name", "", "layer name, derived when not given")
	cmd.Flags().StringVar(&flags.playbook, "playbook", "", "playbook the layer runs")
	cmd.Flags().StringVar(&flags.commit, "commit", "", "commit hash pinning the content revision")
	cmd.Flags().StringVar(&flags.branch, "branch", "", "content branch")
	cmd.Flags().StringVar(&flags.product, "product", "", "build the layer from this installed product")
	cmd.Flags().StringVar(&flags.productVersion, "product-version", "", "product version, latest when not given")
	cmd.Flags().BoolVar(&flags.requireDkms, "require-dkms", false, "mark the layer as needing a kernel module build")
	cmd.Flags().BoolVar(&flags.inventoryLayer, "additional-inventory", false, "target the additional-inventory layer instead of the layer list")
}
