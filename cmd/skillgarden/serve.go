package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillgarden/pkg/api"
	"github.com/jingkaihe/skillgarden/pkg/logger"
	"github.com/jingkaihe/skillgarden/pkg/presenter"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server exposing skill search as a JSON API.

Endpoints:
  GET  /search?q=...        search skills
  POST /search              search skills with a JSON body
  GET  /skills/{owner}/{repo}/{skill_id}
  GET  /sources             list configured sources
  POST /sources/refresh     reload the registry and awesome list
  GET  /health              health and cache statistics

The server listens on 0.0.0.0:8000 by default.`,
	Run: func(cmd *cobra.Command, _ []string) {
		origin, _ := cmd.Flags().GetString("allowed-origin")
		runServeCommand(cmd.Context(), origin)
	},
}

func init() {
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind the API server to")
	serveCmd.Flags().Int("port", 8000, "Port to bind the API server to")
	serveCmd.Flags().String("allowed-origin", "*", "Value of the Access-Control-Allow-Origin header")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

// validateHost rejects hosts that cannot be bound
func validateHost(host string) error {
	if host == "" {
		return errors.New("host cannot be empty")
	}
	if host == "localhost" || net.ParseIP(host) != nil {
		return nil
	}
	if strings.ContainsAny(host, " :") {
		return errors.Errorf("invalid host: %s", host)
	}
	return nil
}

func runServeCommand(ctx context.Context, allowedOrigin string) {
	svc, cfg, err := newService(ctx)
	if err != nil {
		presenter.Error(err, "failed to start")
		os.Exit(1)
	}
	defer closeService(ctx, svc)

	if err := validateHost(cfg.Server.Host); err != nil {
		presenter.Error(err, "invalid server configuration")
		os.Exit(1)
	}
	if cfg.Server.Port < 1024 {
		logger.G(ctx).WithField("port", cfg.Server.Port).Warn("using privileged port (< 1024) may require elevated permissions")
	}

	server, err := api.NewServer(svc, &api.ServerConfig{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		AllowedOrigin: allowedOrigin,
	})
	if err != nil {
		presenter.Error(err, "failed to create API server")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.G(ctx).WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("starting API server")
	presenter.Success(fmt.Sprintf("API server starting on http://%s", server.Address()))
	presenter.Info("Press Ctrl+C to stop the server")

	if err := server.Start(ctx); err != nil {
		presenter.Error(err, "API server failed")
		os.Exit(1)
	}

	presenter.Info("API server stopped")
}
