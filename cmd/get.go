package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var cmdGet = &cobra.Command{
	Use:   "get CONFIGURATION",
	Short: "Retrieve a configuration and print or save it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		getConfiguration(cmd.Context(), args[0])
	},
}

// get command flags
var (
	getOutputFile string
	getOverwrite  bool
)

func getConfiguration(ctx context.Context, configName string) {
	cli, ctx, cancel := bootstrap(ctx)
	defer cancel()

	cfg, err := cli.store.GetConfiguration(ctx, configName)
	cli.exitOnError(err)

	if getOutputFile != "" {
		cli.exitOnError(cfg.SaveToFile(getOutputFile, getOverwrite))

		cli.Logger.WithField("path", getOutputFile).Info("configuration saved")

		return
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	cli.exitOnError(encoder.Encode(cfg.MarshalRecord()))
}

func init() {
	rootCmd.AddCommand(cmdGet)

	cmdGet.Flags().StringVar(&getOutputFile, "output", "", "write the configuration to this file instead of stdout")
	cmdGet.Flags().BoolVar(&getOverwrite, "overwrite", false, "overwrite the output file if it exists")
}
