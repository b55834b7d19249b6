package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillgarden/pkg/logger"
	"github.com/jingkaihe/skillgarden/pkg/mcp"
	"github.com/jingkaihe/skillgarden/pkg/presenter"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve skill tools over the Model Context Protocol",
	Long: `Expose skill search as MCP tools (search_skills, get_skill, add_skill and
get_cache_stats) so agents can find and load skills on demand.

The stdio transport is the default and is what most MCP clients launch. Logs
are written to stderr. Use --transport sse to serve over HTTP instead.`,
	Run: func(cmd *cobra.Command, _ []string) {
		runMCPCommand(cmd.Context())
	},
}

func init() {
	mcpCmd.Flags().String("transport", mcp.TransportStdio, "MCP transport (stdio or sse)")
	mcpCmd.Flags().String("host", "127.0.0.1", "Host to bind the SSE server to")
	mcpCmd.Flags().Int("port", 8080, "Port to bind the SSE server to")

	viper.BindPFlag("mcp.transport", mcpCmd.Flags().Lookup("transport"))
	viper.BindPFlag("mcp.host", mcpCmd.Flags().Lookup("host"))
	viper.BindPFlag("mcp.port", mcpCmd.Flags().Lookup("port"))
}

func runMCPCommand(ctx context.Context) {
	svc, cfg, err := newService(ctx)
	if err != nil {
		presenter.Error(err, "failed to start")
		os.Exit(1)
	}
	defer closeService(ctx, svc)

	server, err := mcp.NewServer(svc, mcp.Config{
		Transport: cfg.MCP.Transport,
		Host:      cfg.MCP.Host,
		Port:      cfg.MCP.Port,
	})
	if err != nil {
		presenter.Error(err, "failed to create MCP server")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := server.Serve(ctx); err != nil {
		logger.G(ctx).WithError(err).Error("MCP server stopped with error")
		presenter.Error(err, "MCP server failed")
		os.Exit(1)
	}
}
