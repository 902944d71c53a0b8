package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cmdList = &cobra.Command{
	Use:   "list",
	Short: "List configurations",
	Run: func(cmd *cobra.Command, _ []string) {
		listConfigurations(cmd.Context())
	},
}

// list command flags
var listShowLayers bool

func listConfigurations(ctx context.Context) {
	cli, ctx, cancel := bootstrap(ctx)
	defer cancel()

	it := cli.store.ListConfigurations(ctx)

	for {
		cfg, err := it.Next(ctx)
		cli.exitOnError(err)

		if cfg == nil {
			return
		}

		fmt.Println(cfg.Name())

		if listShowLayers {
			for _, layer := range cfg.Layers {
				fmt.Println("  " + layer.String())
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(cmdList)

	cmdList.Flags().BoolVar(&listShowLayers, "layers", false, "also print the layers of each configuration")
}
