package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillgarden/pkg/presenter"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the configured skill sources",
	Long: `List every skill source and whether it is enabled. With --refresh the
registry file and awesome list are reloaded first, which checks that they are
reachable and parse.`,
	Run: func(cmd *cobra.Command, _ []string) {
		refresh, _ := cmd.Flags().GetBool("refresh")
		runSourcesCommand(cmd.Context(), refresh)
	},
}

func init() {
	sourcesCmd.Flags().Bool("refresh", false, "Reload sources before listing them")
}

func runSourcesCommand(ctx context.Context, refresh bool) {
	svc, _, err := newService(ctx)
	if err != nil {
		presenter.Error(err, "failed to start")
		os.Exit(1)
	}
	defer closeService(ctx, svc)

	if refresh {
		if err := svc.Refresh(ctx); err != nil {
			presenter.Warning("some sources failed to refresh: " + err.Error())
		} else {
			presenter.Success("sources refreshed")
		}
	}
	presenter.Sources(svc.Sources())
}
