package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metal-toolbox/composer/internal/xname"
)

var cmdComponents = &cobra.Command{
	Use:   "components [FILTER ...]",
	Short: "List node components, filtered by containment within the given xnames",
	Run: func(cmd *cobra.Command, args []string) {
		listComponents(cmd.Context(), args)
	},
}

// components command flags
var componentsShowConfigs bool

func listComponents(ctx context.Context, rawFilters []string) {
	cli, ctx, cancel := bootstrap(ctx)
	defer cancel()

	filters := make([]xname.XName, 0, len(rawFilters))

	for _, raw := range rawFilters {
		filter := xname.New(raw)
		if !filter.Valid() {
			cli.Logger.WithField("xname", raw).Error("invalid component xname filter")

			return
		}

		filters = append(filters, filter)
	}

	inventoryClient := cli.newInventoryClient()

	var members []xname.XName

	if len(filters) == 0 {
		nodes, err := inventoryClient.NodeComponents(ctx, xname.XName{})
		cli.exitOnError(err)

		for _, node := range nodes {
			members = append(members, node.XName())
		}
	} else {
		matches, err := inventoryClient.FilterMembers(ctx, filters)
		cli.exitOnError(err)

		for _, filter := range matches.UnusedFilters {
			cli.Logger.WithField("xname", filter.String()).Warn("filter matched no components")
		}

		members = matches.Matched
	}

	for _, member := range members {
		fmt.Println(member.String())
	}

	if !componentsShowConfigs {
		return
	}

	configs, err := cli.store.ConfigurationsForComponents(ctx, members)
	cli.exitOnError(err)

	for _, cfg := range configs {
		fmt.Println("configuration: " + cfg.Name())
	}
}

func init() {
	rootCmd.AddCommand(cmdComponents)

	cmdComponents.Flags().BoolVar(&componentsShowConfigs, "desired-configs", false, "also print the configurations desired for the matched components")
}
