package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/metal-toolbox/composer/internal/metrics"
	"github.com/metal-toolbox/composer/internal/model"
)

var cmdRemove = &cobra.Command{
	Use:   "remove CONFIGURATION",
	Short: "Ensure a configuration layer is absent from a configuration",
	Args:  cobra.ExactArgs(1),
}

// remove command flags
var (
	removeFlags  layerFlags
	removeDryRun bool
)

func removeLayer(ctx context.Context, configName string) {
	cli, ctx, cancel := bootstrap(ctx)
	defer cancel()

	cfg, err := cli.store.GetConfiguration(ctx, configName)
	cli.exitOnError(err)

	cfg.SetLogger(cli.Logger.WithField("configuration", configName))

	if removeFlags.inventoryLayer {
		// the singleton inventory layer needs no identifying flags
		cfg.SetAdditionalInventory(nil)
	} else {
		dkmsSet := cmdRemove.Flags().Changed("require-dkms")
		desired := buildLayer(ctx, cli, &removeFlags, dkmsSet)

		cfg.EnsureLayer(desired, model.LayerStateAbsent)
	}

	metrics.LayerReconcileCounter.WithLabelValues(
		string(model.LayerStateAbsent), strconv.FormatBool(cfg.Changed()),
	).Inc()

	if !cfg.Changed() {
		return
	}

	if removeDryRun {
		cli.Logger.Info("dry run, configuration changes not saved")

		return
	}

	saved, err := cli.store.PutConfiguration(ctx, configName, cfg, true)
	cli.exitOnError(err)

	cli.Logger.WithField("configuration", saved.Name()).Info("configuration updated")
}

func init() {
	// assigned here rather than in the composite literal to avoid an
	// initialization cycle between cmdRemove and removeLayer
	cmdRemove.Run = func(cmd *cobra.Command, args []string) {
		removeLayer(cmd.Context(), args[0])
	}

	rootCmd.AddCommand(cmdRemove)

	registerLayerFlags(cmdRemove, &removeFlags)

	cmdRemove.Flags().BoolVar(&removeDryRun, "dry-run", false, "reconcile without saving the configuration")
}
