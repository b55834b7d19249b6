package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillgarden/pkg/config"
	"github.com/jingkaihe/skillgarden/pkg/logger"
	"github.com/jingkaihe/skillgarden/pkg/presenter"
	"github.com/jingkaihe/skillgarden/pkg/service"
)

func init() {
	config.Setup(viper.GetViper())
}

var rootCmd = &cobra.Command{
	Use:   "skillgarden",
	Short: "Search and retrieve agent skills",
	Long: `Skill Garden searches skill registries for SKILL.md documents and returns
them with their full instructions, ready to be loaded into an agent's context.

It can be used directly from the command line, served over HTTP, or exposed
to agents as MCP tools.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initConfig(cmd)
	},
}

// initConfig reads the config file, if any, and applies the logging settings
func initConfig(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		viper.SetConfigFile(path)
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "failed to read config file")
		}
	}

	// stdout belongs to the MCP protocol in stdio mode, so logs always go to stderr
	if err := logger.Configure(viper.GetString("log_level"), viper.GetString("log_format"), os.Stderr); err != nil {
		return err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.G(cmd.Context()).WithField("path", used).Debug("loaded config file")
	}
	return nil
}

// newService loads the configuration and builds the skill service. The
// caller must Close the service.
func newService(ctx context.Context) (*service.SkillService, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg, err
	}
	svc, err := service.New(ctx, cfg)
	if err != nil {
		return nil, cfg, errors.Wrap(err, "failed to create skill service")
	}
	return svc, cfg, nil
}

func closeService(ctx context.Context, svc *service.SkillService) {
	if err := svc.Close(); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to close skill service")
	}
}

func main() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default $HOME/.skillgarden/config.yaml or ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (panic, fatal, error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "Log format (fmt or json)")
	rootCmd.PersistentFlags().String("github-token", "", "GitHub token for API requests (defaults to $GITHUB_TOKEN)")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("github.token", rootCmd.PersistentFlags().Lookup("github-token"))

	rootCmd.AddCommand(withTracing(serveCmd))
	rootCmd.AddCommand(withTracing(mcpCmd))
	rootCmd.AddCommand(withTracing(searchCmd))
	rootCmd.AddCommand(withTracing(getCmd))
	rootCmd.AddCommand(withTracing(addCmd))
	rootCmd.AddCommand(withTracing(sourcesCmd))
	rootCmd.AddCommand(versionCmd)

	ctx := context.Background()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}
}
