package cmd

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/metal-toolbox/composer/internal/store"
)

var cmdSession = &cobra.Command{
	Use:   "session",
	Short: "Manage configuration sessions",
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

var cmdSessionCreate = &cobra.Command{
	Use:   "create",
	Short: "Start a configuration session against target groups",
	Run: func(cmd *cobra.Command, _ []string) {
		createSession(cmd.Context())
	},
}

var cmdSessionGet = &cobra.Command{
	Use:   "get SESSION",
	Short: "Print a session record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		getSession(cmd.Context(), args[0])
	},
}

var cmdSessionDelete = &cobra.Command{
	Use:   "delete SESSION",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		deleteSession(cmd.Context(), args[0])
	},
}

// session create flags
var (
	sessionConfigName string
	sessionNamePrefix string
	sessionGroups     []string
)

// parseTargetGroups maps "group=member,member" flag values into target
// groups.
func parseTargetGroups(raw []string) (map[string][]string, error) {
	groups := map[string][]string{}

	for _, entry := range raw {
		group, members, found := strings.Cut(entry, "=")
		if !found || group == "" || members == "" {
			return nil, errors.New("malformed target group, expected NAME=MEMBER[,MEMBER...]: " + entry)
		}

		groups[group] = strings.Split(members, ",")
	}

	return groups, nil
}

func createSession(ctx context.Context) {
	cli, ctx, cancel := bootstrap(ctx)
	defer cancel()

	groups, err := parseTargetGroups(sessionGroups)
	cli.exitOnError(err)

	session, err := cli.store.CreateSession(ctx, store.SessionSpec{
		NamePrefix:        sessionNamePrefix,
		ConfigurationName: sessionConfigName,
		TargetGroups:      groups,
	})
	cli.exitOnError(err)

	cli.Logger.WithField("session", session.Name).Info("session created")
}

func getSession(ctx context.Context, name string) {
	cli, ctx, cancel := bootstrap(ctx)
	defer cancel()

	session, err := cli.store.GetSession(ctx, name)
	cli.exitOnError(err)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	cli.exitOnError(encoder.Encode(session.Data))
}

func deleteSession(ctx context.Context, name string) {
	cli, ctx, cancel := bootstrap(ctx)
	defer cancel()

	cli.exitOnError(cli.store.DeleteSession(ctx, name))

	cli.Logger.WithField("session", name).Info("session deleted")
}

func init() {
	rootCmd.AddCommand(cmdSession)
	cmdSession.AddCommand(cmdSessionCreate, cmdSessionGet, cmdSessionDelete)

	cmdSessionCreate.Flags().StringVar(&sessionConfigName, "configuration", "", "configuration the session applies")
	cmdSessionCreate.Flags().StringVar(&sessionNamePrefix, "name-prefix", "composer", "prefix for the generated session name")
	cmdSessionCreate.Flags().StringArrayVar(&sessionGroups, "group", nil, "target group as NAME=MEMBER[,MEMBER...], repeatable")

	_ = cmdSessionCreate.MarkFlagRequired("configuration")
	_ = cmdSessionCreate.MarkFlagRequired("group")
}
